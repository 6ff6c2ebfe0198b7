package repository

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fintrack/receipt-processor/internal/entity"
)

const processingLogCollection = "processing_log"

// ProcessingLogRepository is the append-only audit trail. Append failures
// are surfaced to callers but the pipeline treats them as non-fatal.
type ProcessingLogRepository interface {
	Append(ctx context.Context, entry *entity.ProcessingLogEntry) error
	ListByJob(ctx context.Context, jobID uuid.UUID) ([]*entity.ProcessingLogEntry, error)
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type MongoProcessingLogRepository struct {
	collection *mongo.Collection
	logger     *slog.Logger
}

func NewProcessingLogRepository(logger *slog.Logger, db *MongoDB) ProcessingLogRepository {
	return &MongoProcessingLogRepository{
		collection: db.Collection(processingLogCollection),
		logger:     logger,
	}
}

func (r *MongoProcessingLogRepository) Append(ctx context.Context, entry *entity.ProcessingLogEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	if _, err := r.collection.InsertOne(ctx, entry); err != nil {
		r.logger.Error("Failed to append audit entry", "step", entry.Step, "error", err)
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

func (r *MongoProcessingLogRepository) ListByJob(ctx context.Context, jobID uuid.UUID) ([]*entity.ProcessingLogEntry, error) {
	filter := bson.M{"job_id": jobID}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		r.logger.Error("Failed to list audit entries", "job_id", jobID.String(), "error", err)
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []*entity.ProcessingLogEntry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, fmt.Errorf("failed to decode audit entries: %w", err)
	}
	return entries, nil
}

// PurgeOlderThan deletes audit entries past the retention window and
// returns the number removed.
func (r *MongoProcessingLogRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.collection.DeleteMany(ctx, bson.M{"created_at": bson.M{"$lt": cutoff}})
	if err != nil {
		r.logger.Error("Failed to purge audit entries", "cutoff", cutoff, "error", err)
		return 0, fmt.Errorf("failed to purge audit entries: %w", err)
	}
	r.logger.Info("Purged audit entries", "cutoff", cutoff, "removed", res.DeletedCount)
	return res.DeletedCount, nil
}
