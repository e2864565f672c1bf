package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoDB wraps the MongoDB client and database
type MongoDB struct {
	client   *mongo.Client
	database *mongo.Database
	dbName   string
}

// Collection names
const (
	CollectionTranscripts       = "transcripts"
	CollectionClassifications   = "classifications"
	CollectionHierarchyVersions = "hierarchy_versions"
	CollectionProposalLog       = "hierarchy_proposal_log"
	CollectionActiveHierarchies = "active_hierarchies"
	CollectionActivationClaims  = "hierarchy_activation_claims"
)

// NewMongoDB creates a new MongoDB connection with connection pooling
func NewMongoDB(uri string) (*MongoDB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Configure client options with connection pooling
	clientOptions := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(50).
		SetMinPoolSize(5).
		SetMaxConnIdleTime(30 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetConnectTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	// Ping to verify connection
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	// Extract database name from URI or use default
	dbName := extractDBName(uri)
	if dbName == "" {
		dbName = "taxotree"
	}

	db := &MongoDB{
		client:   client,
		database: client.Database(dbName),
		dbName:   dbName,
	}

	log.Printf("✅ Connected to MongoDB database: %s", dbName)

	return db, nil
}

// extractDBName extracts the database name from MongoDB URI
func extractDBName(uri string) string {
	// Find the database name between the last "/" and "?" or end of string
	// mongodb://localhost:27017/taxotree?authSource=admin -> taxotree
	lastSlash := -1
	questionMark := -1

	for i, c := range uri {
		if c == '/' {
			lastSlash = i
		}
		if c == '?' && questionMark == -1 {
			questionMark = i
		}
	}

	if lastSlash != -1 {
		start := lastSlash + 1
		end := len(uri)
		if questionMark != -1 && questionMark > lastSlash {
			end = questionMark
		}
		if start < end {
			dbName := uri[start:end]
			if dbName != "" {
				return dbName
			}
		}
	}

	return "taxotree"
}

// Initialize creates indexes for all collections
func (m *MongoDB) Initialize(ctx context.Context) error {
	log.Println("📦 Initializing MongoDB indexes...")

	// Transcripts collection indexes
	if err := m.createIndexes(ctx, CollectionTranscripts, []mongo.IndexModel{
		{Keys: bson.D{{Key: "conversationId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "createdAt", Value: -1}}},
	}); err != nil {
		return fmt.Errorf("failed to create transcripts indexes: %w", err)
	}

	// Classifications collection indexes
	if err := m.createIndexes(ctx, CollectionClassifications, []mongo.IndexModel{
		{Keys: bson.D{{Key: "tenantId", Value: 1}, {Key: "useCaseId", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "tenantId", Value: 1}, {Key: "useCaseId", Value: 1}, {Key: "metadata.conversationId", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "metadata.batch", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("failed to create classifications indexes: %w", err)
	}

	// Hierarchy versions: compound scope key replaces the legacy
	// one-collection-per-tenant layout
	if err := m.createIndexes(ctx, CollectionHierarchyVersions, []mongo.IndexModel{
		{Keys: bson.D{{Key: "tenantId", Value: 1}, {Key: "useCaseId", Value: 1}, {Key: "version", Value: -1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "tenantId", Value: 1}, {Key: "useCaseId", Value: 1}, {Key: "metadata.active", Value: 1}}},
		{Keys: bson.D{{Key: "tenantId", Value: 1}, {Key: "useCaseId", Value: 1}, {Key: "metadata.status", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("failed to create hierarchy_versions indexes: %w", err)
	}

	// Proposal log indexes (append-only)
	if err := m.createIndexes(ctx, CollectionProposalLog, []mongo.IndexModel{
		{Keys: bson.D{{Key: "tenantId", Value: 1}, {Key: "useCaseId", Value: 1}, {Key: "loggedAt", Value: -1}}},
		{Keys: bson.D{{Key: "versionId", Value: 1}}, Options: options.Index().SetUnique(true)},
	}); err != nil {
		return fmt.Errorf("failed to create hierarchy_proposal_log indexes: %w", err)
	}

	// Active hierarchies mirror: one document per (tenant, use case)
	if err := m.createIndexes(ctx, CollectionActiveHierarchies, []mongo.IndexModel{
		{Keys: bson.D{{Key: "tenantId", Value: 1}, {Key: "useCaseId", Value: 1}}, Options: options.Index().SetUnique(true)},
	}); err != nil {
		return fmt.Errorf("failed to create active_hierarchies indexes: %w", err)
	}

	// Activation claims: one document per (tenant, use case). The unique
	// index is what makes competing first activations collide.
	if err := m.createIndexes(ctx, CollectionActivationClaims, []mongo.IndexModel{
		{Keys: bson.D{{Key: "tenantId", Value: 1}, {Key: "useCaseId", Value: 1}}, Options: options.Index().SetUnique(true)},
	}); err != nil {
		return fmt.Errorf("failed to create hierarchy_activation_claims indexes: %w", err)
	}

	log.Println("✅ MongoDB indexes initialized successfully")
	return nil
}

// createIndexes creates indexes for a collection
func (m *MongoDB) createIndexes(ctx context.Context, collectionName string, indexes []mongo.IndexModel) error {
	collection := m.database.Collection(collectionName)
	_, err := collection.Indexes().CreateMany(ctx, indexes)
	return err
}

// Collection returns a collection handle
func (m *MongoDB) Collection(name string) *mongo.Collection {
	return m.database.Collection(name)
}

// Client returns the underlying MongoDB client
func (m *MongoDB) Client() *mongo.Client {
	return m.client
}

// Database returns the underlying MongoDB database
func (m *MongoDB) Database() *mongo.Database {
	return m.database
}

// Close closes the MongoDB connection
func (m *MongoDB) Close(ctx context.Context) error {
	log.Println("🔌 Closing MongoDB connection...")
	return m.client.Disconnect(ctx)
}

// Ping checks if the database connection is alive
func (m *MongoDB) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}
