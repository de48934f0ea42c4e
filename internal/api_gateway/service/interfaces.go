package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/resident-trust-ledger/internal/domain/preauth"
	"github.com/resident-trust-ledger/internal/domain/shared"
)

// PreAuthRunService queues monthly pre-authorization runs for the ledger worker
type PreAuthRunService interface {
	// RequestRun publishes a run request for one facility month.
	// Returns ErrInvalidState if the month's list is already closed.
	RequestRun(ctx context.Context, facilityID uuid.UUID, month, requestedBy, correlationID string) (*shared.PreAuthRunRequest, error)
}

// MonthlyListReader reads the state of a facility month before a run is queued
type MonthlyListReader interface {
	GetMonthlyList(ctx context.Context, facilityID uuid.UUID, month string) (*preauth.MonthlyList, error)
}
