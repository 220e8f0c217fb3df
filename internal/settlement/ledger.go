package settlement

import (
	"context"
	"database/sql"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pairplay/duet/internal/match"
)

type credit struct {
	userID string
	points int
	won    bool
}

func credits(ev match.CompletionEvent) []credit {
	out := make([]credit, 0, len(ev.Players))
	for _, p := range ev.Players {
		out = append(out, credit{
			userID: p,
			points: ev.Scores[p],
			won:    ev.WinnerID != nil && *ev.WinnerID == p,
		})
	}
	return out
}

// SQLLedger credits match scores into the points_ledger table created by
// the migrations. A (match_id, user_id) row is written at most once.
type SQLLedger struct {
	db *sql.DB
}

func NewSQLLedger(db *sql.DB) *SQLLedger {
	return &SQLLedger{db: db}
}

func (l *SQLLedger) Name() string { return "points_ledger" }

func (l *SQLLedger) Consume(ctx context.Context, ev match.CompletionEvent) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, c := range credits(ev) {
		won := 0
		if c.won {
			won = 1
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO points_ledger (match_id, user_id, points, won, credited_at)
			 VALUES (?, ?, ?, ?, ?)
			 ON CONFLICT(match_id, user_id) DO NOTHING`,
			ev.MatchID, c.userID, c.points, won, now,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Balance sums the points credited to a user.
func (l *SQLLedger) Balance(ctx context.Context, userID string) (int, error) {
	var total int
	err := l.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(points), 0) FROM points_ledger WHERE user_id = ?`, userID,
	).Scan(&total)
	return total, err
}

type ledgerRow struct {
	MatchID    string `gorm:"primaryKey"`
	UserID     string `gorm:"primaryKey;index"`
	Points     int    `gorm:"not null"`
	Won        bool   `gorm:"not null"`
	CreditedAt time.Time
}

func (ledgerRow) TableName() string { return "points_ledger" }

// GormLedger is the ledger for deployments running the postgres store.
type GormLedger struct {
	db *gorm.DB
}

func NewGormLedger(db *gorm.DB) (*GormLedger, error) {
	if err := db.AutoMigrate(&ledgerRow{}); err != nil {
		return nil, err
	}
	return &GormLedger{db: db}, nil
}

func (l *GormLedger) Name() string { return "points_ledger" }

func (l *GormLedger) Consume(ctx context.Context, ev match.CompletionEvent) error {
	now := time.Now().UTC()
	var rows []ledgerRow
	for _, c := range credits(ev) {
		rows = append(rows, ledgerRow{MatchID: ev.MatchID, UserID: c.userID, Points: c.points, Won: c.won, CreditedAt: now})
	}
	return l.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
}
