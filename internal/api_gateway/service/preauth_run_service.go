package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/resident-trust-ledger/internal/domain/preauth"
	"github.com/resident-trust-ledger/internal/domain/shared"
	"github.com/resident-trust-ledger/internal/platform/messaging/producers"
)

// PreAuthRunServiceImpl implements the PreAuthRunService interface
type PreAuthRunServiceImpl struct {
	lists    MonthlyListReader
	producer producers.MessagePublisher
	logger   *slog.Logger
}

// NewPreAuthRunService creates a new pre-authorization run service
func NewPreAuthRunService(logger *slog.Logger, lists MonthlyListReader, producer producers.MessagePublisher) PreAuthRunService {
	return &PreAuthRunServiceImpl{
		lists:    lists,
		producer: producer,
		logger:   logger,
	}
}

// RequestRun validates the facility month and publishes the request keyed by
// facility, so runs for one facility stay ordered on a partition.
func (s *PreAuthRunServiceImpl) RequestRun(ctx context.Context, facilityID uuid.UUID, month, requestedBy, correlationID string) (*shared.PreAuthRunRequest, error) {
	if facilityID == uuid.Nil {
		return nil, shared.NewValidationError("facility_id", "is required")
	}
	if strings.TrimSpace(requestedBy) == "" {
		return nil, shared.NewValidationError("requested_by", "is required")
	}
	if _, err := preauth.ParseMonth(month); err != nil {
		return nil, err
	}

	list, err := s.lists.GetMonthlyList(ctx, facilityID, month)
	if err != nil {
		return nil, err
	}
	if list.Status == preauth.ListClosed {
		return nil, preauth.ErrListClosed{FacilityID: facilityID, Month: month}
	}

	req := &shared.PreAuthRunRequest{
		RequestID:     uuid.New(),
		FacilityID:    facilityID,
		Month:         month,
		RequestedBy:   requestedBy,
		CorrelationID: correlationID,
		Timestamp:     time.Now().UTC(),
	}

	if err := s.producer.Publish(ctx, facilityID.String(), req); err != nil {
		s.logger.Error("Failed to publish pre-authorization run request",
			"facility_id", facilityID,
			"month", month,
			"error", err,
		)
		return nil, shared.Remote("publish pre-authorization run", err)
	}

	s.logger.Info("Pre-authorization run requested",
		"request_id", req.RequestID,
		"facility_id", facilityID,
		"month", month,
		"pending", len(list.Authorizations),
	)
	return req, nil
}
