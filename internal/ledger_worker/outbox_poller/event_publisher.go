package outbox_poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/resident-trust-ledger/internal/domain/ledger"
	"github.com/resident-trust-ledger/internal/domain/outbox"
	"github.com/resident-trust-ledger/internal/domain/reporting"
	"github.com/resident-trust-ledger/internal/domain/shared"
	"github.com/resident-trust-ledger/internal/platform/messaging/producers"
)

// EventTypeEntryRecorded is the only event type on the ledger events topic
const EventTypeEntryRecorded = "ledger_entry_recorded"

// ErrUndecodablePayload marks an outbox message that can never be published
var ErrUndecodablePayload = errors.New("outbox payload is not a ledger entry")

// LedgerEvent is the value published for every recorded ledger entry
type LedgerEvent struct {
	EventType   string        `json:"event_type"`
	OutboxID    int64         `json:"outbox_id"`
	Entry       *ledger.Entry `json:"entry"`
	PublishedAt time.Time     `json:"published_at"`
}

// EntryPublisher delivers one outbox message downstream
type EntryPublisher interface {
	PublishEntry(ctx context.Context, message *outbox.Message) error
}

// LedgerEventPublisher appends withdrawals to the report log and publishes
// the entry to Kafka, then marks the message processed. Both side effects are
// idempotent so a message that fails halfway is simply retried.
type LedgerEventPublisher struct {
	outboxRepo  outbox.Repository
	withdrawals reporting.WithdrawalRepository
	events      producers.MessagePublisher
	logger      *slog.Logger
}

func NewLedgerEventPublisher(
	outboxRepo outbox.Repository,
	withdrawals reporting.WithdrawalRepository,
	events producers.MessagePublisher,
	logger *slog.Logger,
) *LedgerEventPublisher {
	return &LedgerEventPublisher{
		outboxRepo:  outboxRepo,
		withdrawals: withdrawals,
		events:      events,
		logger:      logger,
	}
}

func (p *LedgerEventPublisher) PublishEntry(ctx context.Context, message *outbox.Message) error {
	entry, err := message.GetLedgerEntry()
	if err != nil {
		p.logger.Error("Failed to unmarshal ledger entry from outbox payload", "outbox_id", message.ID, "error", err)
		if updateErr := p.outboxRepo.UpdateStatus(ctx, message.ID, shared.OutboxStatusFailedToPublish); updateErr != nil {
			p.logger.Error("Also failed to mark undecodable outbox message", "outbox_id", message.ID, "update_error", updateErr)
		}
		return fmt.Errorf("outbox %d: %w: %v", message.ID, ErrUndecodablePayload, err)
	}

	logger := p.logger.With("outbox_id", message.ID, "entry_id", entry.ID.String())
	if entry.CorrelationID != "" {
		logger = logger.With("correlation_id", entry.CorrelationID)
	}

	if entry.IsWithdrawal() {
		record, err := reporting.NewWithdrawalRecord(entry)
		if err != nil {
			return fmt.Errorf("build withdrawal record for %s: %w", entry.ID, err)
		}
		if err := p.withdrawals.Append(ctx, record); err != nil {
			return fmt.Errorf("append withdrawal record for %s: %w", entry.ID, err)
		}
		logger.Debug("Withdrawal record appended")
	}

	event := LedgerEvent{
		EventType:   EventTypeEntryRecorded,
		OutboxID:    message.ID,
		Entry:       entry,
		PublishedAt: time.Now().UTC(),
	}
	// keyed by resident so one resident's entries stay ordered within a partition
	if err := p.events.Publish(ctx, entry.ResidentID.String(), event); err != nil {
		return fmt.Errorf("publish ledger event for %s: %w", entry.ID, err)
	}

	if err := p.outboxRepo.UpdateStatus(ctx, message.ID, shared.OutboxStatusProcessed); err != nil {
		return fmt.Errorf("ledger event for %s published, but failed to mark outbox %d as PROCESSED: %w", entry.ID, message.ID, err)
	}
	logger.Info("Ledger entry published")
	return nil
}
