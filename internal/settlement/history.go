package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/pairplay/duet/internal/match"
)

type dynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

type historyItem struct {
	MatchID     string         `dynamodbav:"match_id"`
	PairingID   string         `dynamodbav:"pairing_id"`
	Kind        string         `dynamodbav:"kind"`
	PuzzleID    string         `dynamodbav:"puzzle_id"`
	Players     []string       `dynamodbav:"players"`
	Scores      map[string]int `dynamodbav:"scores"`
	WinnerID    string         `dynamodbav:"winner_id,omitempty"`
	HintsUsed   map[string]int `dynamodbav:"hints_used"`
	Turns       int            `dynamodbav:"turns"`
	CompletedAt string         `dynamodbav:"completed_at"`
}

// DynamoHistory appends finished matches to the pairing's activity history.
// The put is conditional on the match id, so redelivery is a no-op.
type DynamoHistory struct {
	client dynamoAPI
	table  string
}

func NewDynamoHistory(client dynamoAPI, table string) *DynamoHistory {
	return &DynamoHistory{client: client, table: table}
}

func (h *DynamoHistory) Name() string { return "activity_history" }

func (h *DynamoHistory) Consume(ctx context.Context, ev match.CompletionEvent) error {
	item := historyItem{
		MatchID:     ev.MatchID,
		PairingID:   ev.PairingID,
		Kind:        string(ev.Kind),
		PuzzleID:    ev.PuzzleID,
		Players:     ev.Players[:],
		Scores:      ev.Scores,
		HintsUsed:   ev.HintsUsed,
		Turns:       ev.Turns,
		CompletedAt: ev.CompletedAt.UTC().Format(time.RFC3339),
	}
	if ev.WinnerID != nil {
		item.WinnerID = *ev.WinnerID
	}
	av, err := attributevalue.MarshalMap(item)
	if err != nil {
		return fmt.Errorf("marshal history item: %w", err)
	}

	_, err = h.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(h.table),
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(match_id)"),
	})
	var exists *types.ConditionalCheckFailedException
	if errors.As(err, &exists) {
		return nil
	}
	return err
}

// LogHistory records history as log lines when no table is configured.
type LogHistory struct {
	logger *slog.Logger
}

func NewLogHistory(logger *slog.Logger) *LogHistory {
	return &LogHistory{logger: logger}
}

func (h *LogHistory) Name() string { return "activity_history" }

func (h *LogHistory) Consume(_ context.Context, ev match.CompletionEvent) error {
	h.logger.Info("activity recorded",
		"match_id", ev.MatchID,
		"pairing_id", ev.PairingID,
		"kind", ev.Kind,
		"puzzle_id", ev.PuzzleID,
		"scores", ev.Scores,
	)
	return nil
}
