package mongo

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/resident-trust-ledger/internal/domain/reporting"
	"github.com/resident-trust-ledger/internal/platform/persistence"
)

// WithdrawalRepository implements reporting.WithdrawalRepository for MongoDB.
// The ledger entry id is the document _id, which makes Append idempotent.
type WithdrawalRepository struct {
	db     *mongo.Database
	logger *slog.Logger
}

// NewWithdrawalRepository creates a new MongoDB withdrawal log
func NewWithdrawalRepository(logger *slog.Logger, db *mongo.Database) *WithdrawalRepository {
	return &WithdrawalRepository{
		db:     db,
		logger: logger,
	}
}

// Append stores the record. A record that already exists for the entry is left untouched.
func (r *WithdrawalRepository) Append(ctx context.Context, rec *reporting.WithdrawalRecord) error {
	doc, err := newWithdrawalDocument(rec)
	if err != nil {
		return err
	}

	_, err = r.db.Collection(persistence.WithdrawalCollection).InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			r.logger.Debug("Withdrawal record already present", "entry_id", doc.EntryID)
			return nil
		}
		r.logger.Error("Failed to append withdrawal record",
			"entry_id", doc.EntryID,
			"error", err)
		return fmt.Errorf("failed to append withdrawal record: %w", err)
	}

	return nil
}

// ListByFacility returns withdrawals whose ledger entry was created in [from, to),
// oldest first
func (r *WithdrawalRepository) ListByFacility(ctx context.Context, facilityID uuid.UUID, from, to time.Time) ([]*reporting.WithdrawalRecord, error) {
	filter := bson.M{
		"facility_id": facilityID.String(),
		"entry_created_at": bson.M{
			"$gte": from,
			"$lt":  to,
		},
	}
	opts := options.Find().SetSort(bson.D{{Key: "entry_created_at", Value: 1}})

	cursor, err := r.db.Collection(persistence.WithdrawalCollection).Find(ctx, filter, opts)
	if err != nil {
		r.logger.Error("Failed to list withdrawal records",
			"facility_id", facilityID.String(),
			"error", err)
		return nil, fmt.Errorf("failed to list withdrawal records: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []withdrawalDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode withdrawal records: %w", err)
	}

	records := make([]*reporting.WithdrawalRecord, 0, len(docs))
	for i := range docs {
		rec, err := docs[i].record()
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}
