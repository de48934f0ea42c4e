package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/resident-trust-ledger/internal/domain/cashbox"
	"github.com/resident-trust-ledger/internal/domain/shared"
	"github.com/resident-trust-ledger/internal/platform/persistence"
)

// CashBoxHistoryRepository implements cashbox.HistoryRepository for MongoDB
type CashBoxHistoryRepository struct {
	db     *mongo.Database
	logger *slog.Logger
}

// NewCashBoxHistoryRepository creates a new MongoDB cash box history repository
func NewCashBoxHistoryRepository(logger *slog.Logger, db *mongo.Database) *CashBoxHistoryRepository {
	return &CashBoxHistoryRepository{
		db:     db,
		logger: logger,
	}
}

func (r *CashBoxHistoryRepository) collection() *mongo.Collection {
	return r.db.Collection(persistence.CashBoxHistoryCollection)
}

func (r *CashBoxHistoryRepository) Create(ctx context.Context, h *cashbox.History) error {
	doc, err := newHistoryDocument(h)
	if err != nil {
		return err
	}

	if _, err := r.collection().InsertOne(ctx, doc); err != nil {
		r.logger.Error("Failed to archive cash box period",
			"facility_id", doc.FacilityID,
			"error", err)
		return fmt.Errorf("failed to archive cash box period: %w", err)
	}
	return nil
}

// FindIncomplete returns the archived period whose reset never finished, or nil
func (r *CashBoxHistoryRepository) FindIncomplete(ctx context.Context, facilityID uuid.UUID) (*cashbox.History, error) {
	filter := bson.M{"facility_id": facilityID.String(), "reset_completed": false}
	opts := options.FindOne().SetSort(bson.D{{Key: "reset_date", Value: -1}})
	return r.findOne(ctx, filter, opts)
}

// GetLatest returns the most recent completed period, or nil when the
// facility was never reset
func (r *CashBoxHistoryRepository) GetLatest(ctx context.Context, facilityID uuid.UUID) (*cashbox.History, error) {
	filter := bson.M{"facility_id": facilityID.String(), "reset_completed": true}
	opts := options.FindOne().SetSort(bson.D{{Key: "reset_date", Value: -1}})
	return r.findOne(ctx, filter, opts)
}

func (r *CashBoxHistoryRepository) findOne(ctx context.Context, filter bson.M, opts *options.FindOneOptions) (*cashbox.History, error) {
	var doc historyDocument
	err := r.collection().FindOne(ctx, filter, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		r.logger.Error("Failed to get cash box history", "error", err)
		return nil, fmt.Errorf("failed to get cash box history: %w", err)
	}
	return doc.history()
}

func (r *CashBoxHistoryRepository) MarkCompleted(ctx context.Context, h *cashbox.History) error {
	update := bson.M{
		"$set": bson.M{
			"reset_completed": true,
			"completed_at":    h.CompletedAt,
		},
	}

	result, err := r.collection().UpdateOne(ctx, bson.M{"_id": h.ID.String()}, update)
	if err != nil {
		r.logger.Error("Failed to complete cash box history",
			"history_id", h.ID.String(),
			"error", err)
		return fmt.Errorf("failed to complete cash box history: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("cash box history %s: %w", h.ID, shared.ErrNotFound)
	}
	return nil
}

// ListByFacility returns archived periods, newest first
func (r *CashBoxHistoryRepository) ListByFacility(ctx context.Context, facilityID uuid.UUID, limit int) ([]*cashbox.History, error) {
	opts := options.Find().SetSort(bson.D{{Key: "reset_date", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.collection().Find(ctx, bson.M{"facility_id": facilityID.String()}, opts)
	if err != nil {
		r.logger.Error("Failed to list cash box history",
			"facility_id", facilityID.String(),
			"error", err)
		return nil, fmt.Errorf("failed to list cash box history: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []historyDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode cash box history: %w", err)
	}

	histories := make([]*cashbox.History, 0, len(docs))
	for i := range docs {
		h, err := docs[i].history()
		if err != nil {
			return nil, err
		}
		histories = append(histories, h)
	}
	return histories, nil
}
