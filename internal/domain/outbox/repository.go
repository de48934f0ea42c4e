package outbox

import (
	"context"
	"strconv"

	"github.com/resident-trust-ledger/internal/domain/shared"
)

// Repository reads and updates outbox messages. Messages are written by the
// ledger repository in the same statement as their entry.
type Repository interface {
	GetPending(ctx context.Context, limit int) ([]*Message, error)
	UpdateStatus(ctx context.Context, id int64, status shared.OutboxStatus) error
	IncrementAttempts(ctx context.Context, id int64) error
}

// ErrMessageNotFound indicates missing outbox message
type ErrMessageNotFound struct {
	ID int64
}

func (e ErrMessageNotFound) Error() string {
	return "outbox message not found: " + strconv.FormatInt(e.ID, 10)
}
