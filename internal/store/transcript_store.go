package store

import (
	"context"
	"fmt"
	"time"

	"taxotree/internal/database"
	"taxotree/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// TranscriptStore reads raw conversation transcripts awaiting classification.
type TranscriptStore struct {
	collection *mongo.Collection
}

// NewTranscriptStore creates a transcript store.
func NewTranscriptStore(mongodb *database.MongoDB) *TranscriptStore {
	return &TranscriptStore{
		collection: mongodb.Collection(database.CollectionTranscripts),
	}
}

// Fetch returns up to limit transcripts, optionally narrowed to one UTC day.
func (s *TranscriptStore) Fetch(ctx context.Context, date string, limit int64) ([]models.Transcript, error) {
	filter := bson.M{}
	if date != "" {
		day, err := time.Parse("2006-01-02", date)
		if err != nil {
			return nil, fmt.Errorf("invalid date filter %q: %w", date, err)
		}
		day = day.UTC()
		filter["createdAt"] = bson.M{
			"$gte": day,
			"$lt":  day.Add(24 * time.Hour),
		}
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}

	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, mapErr("transcript fetch", err)
	}
	defer cursor.Close(ctx)

	var transcripts []models.Transcript
	if err := cursor.All(ctx, &transcripts); err != nil {
		return nil, mapErr("transcript decode", err)
	}
	return transcripts, nil
}
