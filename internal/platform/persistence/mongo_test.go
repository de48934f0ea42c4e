package persistence

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func TestMongoDB_EnsureIndexes(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	mt.Run("Success", func(mt *mtest.T) {
		db := &MongoDB{logger: logger, client: mt.Client, database: mt.DB}
		mt.AddMockResponses(mtest.CreateSuccessResponse(), mtest.CreateSuccessResponse())

		assert.NoError(t, db.EnsureIndexes(context.Background()))
		assert.Equal(t, mt.DB, db.Database())
		assert.Equal(t, WithdrawalCollection, db.Collection(WithdrawalCollection).Name())
	})

	mt.Run("ConflictingIndex", func(mt *mtest.T) {
		db := &MongoDB{logger: logger, client: mt.Client, database: mt.DB}
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    85,
			Name:    "IndexOptionsConflict",
			Message: "index already exists with different options",
		}))

		err := db.EnsureIndexes(context.Background())
		assert.ErrorContains(t, err, "failed to create indexes")
	})
}
