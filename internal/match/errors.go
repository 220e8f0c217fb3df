package match

import "errors"

var (
	ErrNotYourTurn      = errors.New("not your turn")
	ErrInvalidMove      = errors.New("invalid move")
	ErrMatchCompleted   = errors.New("match already completed")
	ErrMatchNotFound    = errors.New("match not found")
	ErrNoHintsRemaining = errors.New("no hints remaining")

	// ErrConflict is returned by a Store when the record changed between read
	// and write. The service retries the whole operation.
	ErrConflict = errors.New("match changed concurrently")
)
