package producers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestDLQProducer_PublishToDLQ(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	dlqTopic := "ledger_dlq"
	ctx := context.Background()
	fixed := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	letter := DeadLetter{
		SourceTopic: "preauth_run_requests",
		Key:         "facility-1",
		Value:       []byte(`{"month":"2026-13"}`),
		Reason:      "invalid month",
	}

	t.Run("WritesPayloadAndHeaders", func(t *testing.T) {
		mockWriter := new(MockKafkaWriter)
		producer := &DLQProducer{
			logger:   logger,
			writer:   mockWriter,
			dlqTopic: dlqTopic,
			now:      func() time.Time { return fixed },
		}

		mockWriter.On("WriteMessages", ctx, mock.MatchedBy(func(msgs []kafka.Message) bool {
			if len(msgs) != 1 || string(msgs[0].Key) != letter.Key || len(msgs[0].Headers) != 2 {
				return false
			}
			var payload deadLetterPayload
			if err := json.Unmarshal(msgs[0].Value, &payload); err != nil {
				return false
			}
			return payload.SourceTopic == letter.SourceTopic &&
				payload.OriginalValue == string(letter.Value) &&
				payload.DLQReason == letter.Reason &&
				payload.Timestamp == fixed.Format(time.RFC3339Nano)
		})).Return(nil).Once()

		require.NoError(t, producer.PublishToDLQ(ctx, letter))
		mockWriter.AssertExpectations(t)
	})

	t.Run("WriterError", func(t *testing.T) {
		mockWriter := new(MockKafkaWriter)
		producer := &DLQProducer{logger: logger, writer: mockWriter, dlqTopic: dlqTopic}
		writerError := errors.New("kafka DLQ write error")

		mockWriter.On("WriteMessages", ctx, mock.AnythingOfType("[]kafka.Message")).Return(writerError).Once()

		err := producer.PublishToDLQ(ctx, letter)
		assert.ErrorIs(t, err, writerError)
		mockWriter.AssertExpectations(t)
	})

	t.Run("NilProducerIsDisabled", func(t *testing.T) {
		var producer *DLQProducer
		assert.ErrorIs(t, producer.PublishToDLQ(ctx, letter), ErrDLQDisabled)
		assert.NoError(t, producer.Close())
	})
}

func TestDLQProducer_Close(t *testing.T) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	t.Run("SuccessfulClose", func(t *testing.T) {
		mockWriter := new(MockKafkaWriter)
		producer := &DLQProducer{logger: logger, writer: mockWriter, dlqTopic: "ledger_dlq"}
		mockWriter.On("Close").Return(nil).Once()

		require.NoError(t, producer.Close())
		mockWriter.AssertExpectations(t)
	})

	t.Run("CloseError", func(t *testing.T) {
		mockWriter := new(MockKafkaWriter)
		producer := &DLQProducer{logger: logger, writer: mockWriter, dlqTopic: "ledger_dlq"}
		closeError := errors.New("kafka DLQ close error")
		mockWriter.On("Close").Return(closeError).Once()

		assert.ErrorIs(t, producer.Close(), closeError)
	})
}

var _ DeadLetterPublisher = (*DLQProducer)(nil)
