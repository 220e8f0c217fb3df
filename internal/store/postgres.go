package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pairplay/duet/internal/match"
	"github.com/pairplay/duet/internal/puzzle"
)

type matchRow struct {
	ID          string `gorm:"primaryKey"`
	PairingID   string `gorm:"index:idx_matches_history,priority:1;not null"`
	Kind        string `gorm:"index:idx_matches_history,priority:2;not null"`
	PuzzleID    string `gorm:"not null"`
	Status      string `gorm:"not null"`
	Version     int64  `gorm:"not null;default:0"`
	CreatedAt   time.Time
	CompletedAt *time.Time `gorm:"index:idx_matches_history,priority:3"`
	Data        []byte     `gorm:"type:jsonb;not null"`
}

func (matchRow) TableName() string { return "matches" }

type outboxRow struct {
	MatchID     string `gorm:"primaryKey"`
	Payload     []byte `gorm:"type:jsonb;not null"`
	CreatedAt   time.Time
	Attempts    int
	LastError   string
	DeliveredAt *time.Time `gorm:"index"`
}

func (outboxRow) TableName() string { return "completion_outbox" }

// OpenPostgres connects with gorm and migrates the match and outbox tables.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&matchRow{}, &outboxRow{}); err != nil {
		return nil, err
	}
	err = db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS matches_one_active
		ON matches (pairing_id, kind) WHERE status = 'active'`).Error
	if err != nil {
		return nil, err
	}
	return db, nil
}

// Postgres is the gorm-backed store. Update takes a row lock and also checks
// the version, so concurrent writers across instances cannot interleave.
type Postgres struct {
	db *gorm.DB
}

func NewPostgres(db *gorm.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *Postgres) Create(ctx context.Context, m *match.Match) error {
	row, err := toRow(m)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Create(&row).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return match.ErrConflict
	}
	return err
}

func (s *Postgres) Get(ctx context.Context, id string) (*match.Match, error) {
	var row matchRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return fromRow(row)
}

func (s *Postgres) Active(ctx context.Context, pairingID string, kind puzzle.Kind) (*match.Match, error) {
	var row matchRow
	err := s.db.WithContext(ctx).
		Where("pairing_id = ? AND kind = ? AND status = ?", pairingID, string(kind), string(match.StatusActive)).
		First(&row).Error
	if err != nil {
		return nil, notFound(err)
	}
	return fromRow(row)
}

func (s *Postgres) Update(ctx context.Context, id string, fn func(*match.Match) error) (*match.Match, error) {
	var out *match.Match
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row matchRow
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&row, "id = ?", id).Error; err != nil {
			return notFound(err)
		}
		m, err := fromRow(row)
		if err != nil {
			return err
		}
		read := row.Version
		wasActive := m.Status == match.StatusActive

		if err := fn(m); err != nil {
			return err
		}

		m.Version = read + 1
		next, err := toRow(m)
		if err != nil {
			return err
		}
		res := tx.Model(&matchRow{}).
			Where("id = ? AND version = ?", id, read).
			Updates(map[string]any{
				"status":       next.Status,
				"version":      next.Version,
				"completed_at": next.CompletedAt,
				"data":         next.Data,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return match.ErrConflict
		}

		if wasActive {
			if ev, ok := match.NewCompletionEvent(m); ok {
				payload, err := json.Marshal(ev)
				if err != nil {
					return err
				}
				err = tx.Clauses(clause.OnConflict{DoNothing: true}).
					Create(&outboxRow{MatchID: m.ID, Payload: payload, CreatedAt: time.Now().UTC()}).Error
				if err != nil {
					return fmt.Errorf("recording completion: %w", err)
				}
			}
		}
		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Postgres) Completions(ctx context.Context, pairingID string, kind puzzle.Kind) ([]puzzle.Completion, error) {
	var rows []matchRow
	err := s.db.WithContext(ctx).
		Select("puzzle_id", "completed_at").
		Where("pairing_id = ? AND kind = ? AND status = ?", pairingID, string(kind), string(match.StatusCompleted)).
		Order("completed_at").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]puzzle.Completion, 0, len(rows))
	for _, r := range rows {
		if r.CompletedAt != nil {
			out = append(out, puzzle.Completion{PuzzleID: r.PuzzleID, CompletedAt: *r.CompletedAt})
		}
	}
	return out, nil
}

func (s *Postgres) Pending(ctx context.Context, limit int) ([]match.OutboxEntry, error) {
	q := s.db.WithContext(ctx).
		Where("delivered_at IS NULL").
		Order("created_at, match_id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []outboxRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]match.OutboxEntry, 0, len(rows))
	for _, r := range rows {
		e := match.OutboxEntry{CreatedAt: r.CreatedAt, Attempts: r.Attempts, LastError: r.LastError}
		if err := json.Unmarshal(r.Payload, &e.Event); err != nil {
			return nil, fmt.Errorf("decoding outbox payload: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *Postgres) MarkDelivered(ctx context.Context, matchID string) error {
	return s.db.WithContext(ctx).Model(&outboxRow{}).
		Where("match_id = ?", matchID).
		Updates(map[string]any{"delivered_at": time.Now().UTC(), "last_error": ""}).Error
}

func (s *Postgres) MarkFailed(ctx context.Context, matchID string, cause error) error {
	return s.db.WithContext(ctx).Model(&outboxRow{}).
		Where("match_id = ?", matchID).
		Updates(map[string]any{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": cause.Error(),
		}).Error
}

func toRow(m *match.Match) (matchRow, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return matchRow{}, err
	}
	return matchRow{
		ID:          m.ID,
		PairingID:   m.PairingID,
		Kind:        string(m.Kind),
		PuzzleID:    m.PuzzleID,
		Status:      string(m.Status),
		Version:     m.Version,
		CreatedAt:   m.CreatedAt,
		CompletedAt: m.CompletedAt,
		Data:        data,
	}, nil
}

func fromRow(row matchRow) (*match.Match, error) {
	var m match.Match
	if err := json.Unmarshal(row.Data, &m); err != nil {
		return nil, fmt.Errorf("decoding match: %w", err)
	}
	m.Version = row.Version
	return &m, nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return match.ErrMatchNotFound
	}
	return err
}
