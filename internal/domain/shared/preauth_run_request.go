package shared

import (
	"time"

	"github.com/google/uuid"
)

// PreAuthRunRequest is the Kafka message asking a worker to process the
// pending authorizations of one facility month.
type PreAuthRunRequest struct {
	RequestID     uuid.UUID `json:"request_id"`
	FacilityID    uuid.UUID `json:"facility_id"`
	Month         string    `json:"month"`
	RequestedBy   string    `json:"requested_by"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}
