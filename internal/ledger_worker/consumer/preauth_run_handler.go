package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/resident-trust-ledger/internal/domain/preauth"
	"github.com/resident-trust-ledger/internal/domain/shared"
	"github.com/resident-trust-ledger/internal/engine"
	"github.com/resident-trust-ledger/internal/platform/messaging/producers"
)

// MonthProcessor runs the pending authorizations of one facility month
type MonthProcessor interface {
	ProcessMonth(ctx context.Context, facilityID uuid.UUID, month string) (*engine.RunResult, error)
}

// PreAuthRunHandler handles pre-authorization run requests from Kafka
type PreAuthRunHandler struct {
	processor MonthProcessor
	dlq       producers.DeadLetterPublisher
	topic     string
	logger    *slog.Logger
}

func NewPreAuthRunHandler(
	logger *slog.Logger,
	processor MonthProcessor,
	dlq producers.DeadLetterPublisher,
	topic string,
) *PreAuthRunHandler {
	return &PreAuthRunHandler{
		processor: processor,
		dlq:       dlq,
		topic:     topic,
		logger:    logger,
	}
}

// HandleMessage runs one request. Requests that can never succeed (bad JSON,
// unknown month, closed list) are dead-lettered and acknowledged; store
// failures are returned so the offset stays uncommitted.
func (h *PreAuthRunHandler) HandleMessage(ctx context.Context, key []byte, value []byte) error {
	var request shared.PreAuthRunRequest
	if err := json.Unmarshal(value, &request); err != nil {
		h.logger.Error("Failed to unmarshal pre-authorization run request", "error", err, "message_key", string(key))
		return h.deadLetter(ctx, key, value, "unmarshal pre-authorization run request", err)
	}

	logger := h.logger.With("request_id", request.RequestID.String())
	if request.CorrelationID != "" {
		logger = logger.With("correlation_id", request.CorrelationID)
	}

	if err := validate(request); err != nil {
		logger.Warn("Rejecting invalid pre-authorization run request", "error", err)
		return h.deadLetter(ctx, key, value, "invalid pre-authorization run request", err)
	}

	logger.Info("Received pre-authorization run request",
		"facility_id", request.FacilityID.String(),
		"month", request.Month,
		"requested_by", request.RequestedBy,
	)

	result, err := h.processor.ProcessMonth(ctx, request.FacilityID, request.Month)
	if err != nil {
		if permanent(err) {
			logger.Warn("Pre-authorization run cannot be processed", "error", err)
			return h.deadLetter(ctx, key, value, "pre-authorization run rejected", err)
		}
		logger.Error("Pre-authorization run failed", "error", err)
		return fmt.Errorf("pre-authorization run %s failed: %w", request.RequestID, err)
	}

	logger.Info("Pre-authorization run completed",
		"succeeded", result.SuccessCount,
		"failed", result.FailedCount,
	)
	return nil
}

func validate(r shared.PreAuthRunRequest) error {
	if r.FacilityID == uuid.Nil {
		return shared.NewValidationError("facility_id", "is required")
	}
	if _, err := preauth.ParseMonth(r.Month); err != nil {
		return err
	}
	return nil
}

func permanent(err error) bool {
	return errors.Is(err, shared.ErrValidation) ||
		errors.Is(err, shared.ErrNotFound) ||
		errors.Is(err, shared.ErrInvalidState)
}

// deadLetter parks the message. If the DLQ itself fails the cause is returned
// and the message is redelivered.
func (h *PreAuthRunHandler) deadLetter(ctx context.Context, key, value []byte, what string, cause error) error {
	if h.dlq == nil {
		return fmt.Errorf("%s: %w", what, cause)
	}
	reason := fmt.Sprintf("%s: %s", what, cause.Error())
	err := h.dlq.PublishToDLQ(ctx, producers.DeadLetter{
		SourceTopic: h.topic,
		Key:         string(key),
		Value:       value,
		Reason:      reason,
	})
	if err != nil {
		h.logger.Error("Failed to publish message to DLQ", "dlq_error", err, "original_error", cause, "message_key", string(key))
		return fmt.Errorf("%s: %w", what, cause)
	}
	h.logger.Info("Published unprocessable message to DLQ", "message_key", string(key), "reason", reason)
	return nil
}
