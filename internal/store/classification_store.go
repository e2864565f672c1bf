package store

import (
	"context"
	"fmt"
	"time"

	"taxotree/internal/database"
	"taxotree/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ClassificationStore persists classified conversations in a single
// collection scoped by (tenantId, useCaseId).
type ClassificationStore struct {
	collection *mongo.Collection
}

// NewClassificationStore creates a classification store.
func NewClassificationStore(mongodb *database.MongoDB) *ClassificationStore {
	return &ClassificationStore{
		collection: mongodb.Collection(database.CollectionClassifications),
	}
}

// Upsert writes a classification keyed by conversation id, so re-running a
// batch over the same conversations replaces rather than duplicates.
func (s *ClassificationStore) Upsert(ctx context.Context, rec *models.ClassificationRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	filter := bson.M{
		"tenantId":                rec.TenantID,
		"useCaseId":               rec.UseCaseID,
		"metadata.conversationId": rec.Metadata.ConversationID,
	}

	result, err := s.collection.UpdateOne(ctx, filter, bson.M{"$set": bson.M{
		"tenantId":       rec.TenantID,
		"useCaseId":      rec.UseCaseID,
		"classification": rec.Classification,
		"metadata":       rec.Metadata,
		"stats":          rec.Stats,
		"createdAt":      rec.CreatedAt,
	}}, options.Update().SetUpsert(true))
	if err != nil {
		return mapErr("classification upsert", err)
	}
	if result.UpsertedID != nil {
		if oid, ok := result.UpsertedID.(primitive.ObjectID); ok {
			rec.ID = oid
		}
	}
	return nil
}

// Query returns the flat classification records for a scope, newest first,
// narrowed by the optional date (one UTC day) and batch filters. The
// grouping into a hierarchy happens in code, not in the store.
func (s *ClassificationStore) Query(ctx context.Context, tenantID, useCaseID string, filters models.ClassificationFilters) ([]models.ClassificationRecord, error) {
	match := bson.M{
		"tenantId":  tenantID,
		"useCaseId": useCaseID,
	}

	if filters.Date != "" {
		day, err := time.Parse("2006-01-02", filters.Date)
		if err != nil {
			return nil, fmt.Errorf("invalid date filter %q: %w", filters.Date, err)
		}
		day = day.UTC()
		match["createdAt"] = bson.M{
			"$gte": day,
			"$lt":  day.Add(24 * time.Hour),
		}
	}

	if filters.Batch != "" {
		match["metadata.batch"] = filters.Batch
	}

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$sort", Value: bson.D{{Key: "createdAt", Value: -1}}}},
	}

	cursor, err := s.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, mapErr("classification query", err)
	}
	defer cursor.Close(ctx)

	var records []models.ClassificationRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, mapErr("classification decode", err)
	}
	return records, nil
}

// Count returns how many classifications a scope holds.
func (s *ClassificationStore) Count(ctx context.Context, tenantID, useCaseID string) (int64, error) {
	n, err := s.collection.CountDocuments(ctx, bson.M{
		"tenantId":  tenantID,
		"useCaseId": useCaseID,
	})
	if err != nil {
		return 0, mapErr("classification count", err)
	}
	return n, nil
}
