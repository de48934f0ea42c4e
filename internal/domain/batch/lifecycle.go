// Package batch holds the pieces shared by service and deposit batches: the
// one-way open-to-terminal state machine and a sequential item runner.
package batch

import (
	"context"

	"github.com/resident-trust-ledger/internal/domain/shared"
)

// Status of a batch. Every batch starts open.
type Status string

const StatusOpen Status = "open"

// Lifecycle is the state machine open -> Terminal. No transition leaves Terminal.
type Lifecycle struct {
	Terminal Status
}

func (l Lifecycle) Valid(s Status) bool {
	return s == StatusOpen || s == l.Terminal
}

func (l Lifecycle) IsTerminal(s Status) bool {
	return s == l.Terminal
}

// RequireOpen guards item mutations and deletion
func (l Lifecycle) RequireOpen(s Status) error {
	if s != StatusOpen {
		return shared.ErrBatchNotOpen
	}
	return nil
}

// Outcome is the result of applying one item
type Outcome[T any] struct {
	Item T
	Err  error
}

// ApplyFunc posts a single item
type ApplyFunc[T any] func(ctx context.Context, item T) error

// Run applies items one at a time in order. A failing item never stops the
// run; its error is kept on its outcome.
func Run[T any](ctx context.Context, items []T, apply ApplyFunc[T]) (outcomes []Outcome[T], succeeded int) {
	outcomes = make([]Outcome[T], 0, len(items))
	for _, item := range items {
		err := apply(ctx, item)
		if err == nil {
			succeeded++
		}
		outcomes = append(outcomes, Outcome[T]{Item: item, Err: err})
	}
	return outcomes, succeeded
}
