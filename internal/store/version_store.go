// Package store implements the persistence adapters over MongoDB. Adapters
// persist and query; they never decide lifecycle policy and never retry.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"taxotree/internal/database"
	"taxotree/internal/lifecycle"
	"taxotree/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// VersionStore is the MongoDB-backed lifecycle.VersionStore. The primary
// collection is hierarchy_versions keyed by (tenantId, useCaseId, version);
// hierarchy_proposal_log and active_hierarchies are derived views, and
// hierarchy_activation_claims holds one swap-serializing document per scope.
type VersionStore struct {
	versions  *mongo.Collection
	proposals *mongo.Collection
	active    *mongo.Collection
	claims    *mongo.Collection
}

// NewVersionStore creates a version store over the shared Mongo connection.
func NewVersionStore(mongodb *database.MongoDB) *VersionStore {
	return &VersionStore{
		versions:  mongodb.Collection(database.CollectionHierarchyVersions),
		proposals: mongodb.Collection(database.CollectionProposalLog),
		active:    mongodb.Collection(database.CollectionActiveHierarchies),
		claims:    mongodb.Collection(database.CollectionActivationClaims),
	}
}

func scopeFilter(tenantID, useCaseID string) bson.M {
	return bson.M{"tenantId": tenantID, "useCaseId": useCaseID}
}

// mapErr translates driver failures into the lifecycle error taxonomy.
func mapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return lifecycle.ErrVersionNotFound
	}
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %v", lifecycle.ErrStoreUnavailable, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// LatestVersion returns the highest version number in scope, 0 when none exist.
func (s *VersionStore) LatestVersion(ctx context.Context, tenantID, useCaseID string) (int, error) {
	opts := options.FindOne().
		SetSort(bson.D{{Key: "version", Value: -1}}).
		SetProjection(bson.M{"version": 1})

	var doc struct {
		Version int `bson:"version"`
	}
	err := s.versions.FindOne(ctx, scopeFilter(tenantID, useCaseID), opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, mapErr("latest version lookup", err)
	}
	return doc.Version, nil
}

// FindActive returns the active version in scope, or (nil, nil) when none is.
func (s *VersionStore) FindActive(ctx context.Context, tenantID, useCaseID string) (*models.VersionRecord, error) {
	filter := scopeFilter(tenantID, useCaseID)
	filter["metadata.active"] = true

	var rec models.VersionRecord
	err := s.versions.FindOne(ctx, filter).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, mapErr("active version lookup", err)
	}
	return &rec, nil
}

// FindByID resolves a version id within the scope.
func (s *VersionStore) FindByID(ctx context.Context, tenantID, useCaseID, id string) (*models.VersionRecord, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, lifecycle.ErrVersionNotFound
	}

	filter := scopeFilter(tenantID, useCaseID)
	filter["_id"] = oid

	var rec models.VersionRecord
	if err := s.versions.FindOne(ctx, filter).Decode(&rec); err != nil {
		return nil, mapErr("version lookup", err)
	}
	return &rec, nil
}

// Insert persists a new version record, assigning its id.
func (s *VersionStore) Insert(ctx context.Context, rec *models.VersionRecord) (string, error) {
	result, err := s.versions.InsertOne(ctx, rec)
	if err != nil {
		return "", mapErr("version insert", err)
	}
	rec.ID = result.InsertedID.(primitive.ObjectID)
	return rec.ID.Hex(), nil
}

// List returns versions in scope, newest version first.
func (s *VersionStore) List(ctx context.Context, tenantID, useCaseID string, opts lifecycle.ListOptions) ([]models.VersionRecord, error) {
	filter := scopeFilter(tenantID, useCaseID)
	if opts.OnlyActive {
		filter["metadata.active"] = true
	}
	if opts.Version != 0 {
		filter["version"] = opts.Version
	}
	if opts.Status != "" {
		filter["metadata.status"] = opts.Status
	}

	findOpts := options.Find().SetSort(bson.D{{Key: "version", Value: -1}})
	if opts.Limit > 0 {
		findOpts.SetLimit(opts.Limit)
	}

	cursor, err := s.versions.Find(ctx, filter, findOpts)
	if err != nil {
		return nil, mapErr("version list", err)
	}
	defer cursor.Close(ctx)

	var records []models.VersionRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, mapErr("version list decode", err)
	}
	return records, nil
}

// ClaimActivation advances the scope's single claim document from the
// expected active version to the target with one conditional write. A first
// activation inserts the document, so two of them collide on the unique scope
// index; later activations update it with the expected id in the filter, so a
// stale expectation matches nothing. Both failure shapes come back as
// ErrPreconditionFailed.
func (s *VersionStore) ClaimActivation(ctx context.Context, tenantID, useCaseID string, expectedID *string, targetID string) error {
	targetOID, err := primitive.ObjectIDFromHex(targetID)
	if err != nil {
		return lifecycle.ErrVersionNotFound
	}
	now := time.Now().UTC()

	if expectedID == nil {
		_, err := s.claims.InsertOne(ctx, models.ActivationClaim{
			TenantID:  tenantID,
			UseCaseID: useCaseID,
			VersionID: targetOID,
			UpdatedAt: now,
		})
		if mongo.IsDuplicateKeyError(err) {
			return lifecycle.ErrPreconditionFailed
		}
		return mapErr("activation claim insert", err)
	}

	expectedOID, err := primitive.ObjectIDFromHex(*expectedID)
	if err != nil {
		return lifecycle.ErrPreconditionFailed
	}

	filter := scopeFilter(tenantID, useCaseID)
	filter["versionId"] = expectedOID

	// Upsert covers the scope whose claim document predates this collection:
	// a missing document upserts, a document holding a different version id
	// trips the unique scope index instead of matching.
	result, err := s.claims.UpdateOne(ctx, filter,
		bson.M{"$set": bson.M{"versionId": targetOID, "updatedAt": now}},
		options.Update().SetUpsert(true),
	)
	if mongo.IsDuplicateKeyError(err) {
		return lifecycle.ErrPreconditionFailed
	}
	if err != nil {
		return mapErr("activation claim update", err)
	}
	if result.MatchedCount == 0 && result.UpsertedCount == 0 {
		return lifecycle.ErrPreconditionFailed
	}
	return nil
}

// ListClaims returns every activation claim document. Used by the reconciler
// to roll crashed swaps forward.
func (s *VersionStore) ListClaims(ctx context.Context) ([]models.ActivationClaim, error) {
	cursor, err := s.claims.Find(ctx, bson.M{})
	if err != nil {
		return nil, mapErr("claim scan", err)
	}
	defer cursor.Close(ctx)

	var claims []models.ActivationClaim
	if err := cursor.All(ctx, &claims); err != nil {
		return nil, mapErr("claim decode", err)
	}
	return claims, nil
}

// MarkInactive flips a version to inactive only while it is still active.
// An unmatched update on an existing record means another activation got
// there first.
func (s *VersionStore) MarkInactive(ctx context.Context, tenantID, useCaseID, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return lifecycle.ErrVersionNotFound
	}

	filter := scopeFilter(tenantID, useCaseID)
	filter["_id"] = oid
	filter["metadata.active"] = true

	result, err := s.versions.UpdateOne(ctx, filter, bson.M{"$set": bson.M{
		"metadata.active": false,
		"metadata.status": models.VersionStatusInactive,
	}})
	if err != nil {
		return mapErr("deactivate version", err)
	}
	if result.MatchedCount == 0 {
		return s.flagConflict(ctx, tenantID, useCaseID, id)
	}
	return nil
}

// MarkActive flips a version to active only while it is not.
func (s *VersionStore) MarkActive(ctx context.Context, tenantID, useCaseID, id string, activatedAt time.Time, previousID *string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return lifecycle.ErrVersionNotFound
	}

	filter := scopeFilter(tenantID, useCaseID)
	filter["_id"] = oid
	filter["metadata.active"] = false

	set := bson.M{
		"metadata.active":      true,
		"metadata.status":      models.VersionStatusActive,
		"metadata.activatedAt": activatedAt,
	}
	update := bson.M{"$set": set}
	if previousID != nil {
		if prevOID, err := primitive.ObjectIDFromHex(*previousID); err == nil {
			set["metadata.previousVersion"] = prevOID
		}
	} else {
		update["$unset"] = bson.M{"metadata.previousVersion": ""}
	}

	result, err := s.versions.UpdateOne(ctx, filter, update)
	if err != nil {
		return mapErr("activate version", err)
	}
	if result.MatchedCount == 0 {
		return s.flagConflict(ctx, tenantID, useCaseID, id)
	}
	return nil
}

// flagConflict distinguishes "id does not resolve" from "id resolved but the
// flag already changed" after an unmatched conditional update.
func (s *VersionStore) flagConflict(ctx context.Context, tenantID, useCaseID, id string) error {
	if _, err := s.FindByID(ctx, tenantID, useCaseID, id); err != nil {
		return err
	}
	return lifecycle.ErrPreconditionFailed
}

// AppendProposalLog mirrors a proposed version into the append-only log.
// Keyed by version id so a crashed-and-retried propose never duplicates.
func (s *VersionStore) AppendProposalLog(ctx context.Context, rec *models.VersionRecord) error {
	entry := models.ProposalLogEntry{
		VersionID: rec.ID,
		TenantID:  rec.TenantID,
		UseCaseID: rec.UseCaseID,
		Version:   rec.Version,
		Metadata:  rec.Metadata,
		LoggedAt:  time.Now().UTC(),
	}

	_, err := s.proposals.UpdateOne(ctx,
		bson.M{"versionId": rec.ID},
		bson.M{"$setOnInsert": entry},
		options.Update().SetUpsert(true),
	)
	return mapErr("proposal log append", err)
}

// UpsertActiveMirror replaces the read-optimized active document for the
// record's scope. One document per scope; re-running after a crash is safe.
func (s *VersionStore) UpsertActiveMirror(ctx context.Context, rec *models.VersionRecord) error {
	_, err := s.active.UpdateOne(ctx,
		scopeFilter(rec.TenantID, rec.UseCaseID),
		bson.M{"$set": bson.M{
			"tenantId":  rec.TenantID,
			"useCaseId": rec.UseCaseID,
			"versionId": rec.ID,
			"version":   rec.Version,
			"hierarchy": rec.Hierarchy,
			"updatedAt": time.Now().UTC(),
		}},
		options.Update().SetUpsert(true),
	)
	return mapErr("active mirror upsert", err)
}

// GetActiveMirror reads the mirror document for a scope, (nil, nil) when absent.
func (s *VersionStore) GetActiveMirror(ctx context.Context, tenantID, useCaseID string) (*models.ActiveHierarchy, error) {
	var doc models.ActiveHierarchy
	err := s.active.FindOne(ctx, scopeFilter(tenantID, useCaseID)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, mapErr("active mirror lookup", err)
	}
	return &doc, nil
}

// FindAllActive returns every active version across all scopes. Used by the
// mirror reconciler, which treats the primary collection as source of truth.
func (s *VersionStore) FindAllActive(ctx context.Context) ([]models.VersionRecord, error) {
	cursor, err := s.versions.Find(ctx, bson.M{"metadata.active": true})
	if err != nil {
		return nil, mapErr("all-active scan", err)
	}
	defer cursor.Close(ctx)

	var records []models.VersionRecord
	if err := cursor.All(ctx, &records); err != nil {
		return nil, mapErr("all-active decode", err)
	}
	return records, nil
}

// ListMirrors returns every active mirror document.
func (s *VersionStore) ListMirrors(ctx context.Context) ([]models.ActiveHierarchy, error) {
	cursor, err := s.active.Find(ctx, bson.M{})
	if err != nil {
		return nil, mapErr("mirror scan", err)
	}
	defer cursor.Close(ctx)

	var mirrors []models.ActiveHierarchy
	if err := cursor.All(ctx, &mirrors); err != nil {
		return nil, mapErr("mirror decode", err)
	}
	return mirrors, nil
}

// DeleteMirror removes a scope's mirror document. Used by the reconciler when
// the primary store shows no active version for the scope.
func (s *VersionStore) DeleteMirror(ctx context.Context, tenantID, useCaseID string) error {
	_, err := s.active.DeleteOne(ctx, scopeFilter(tenantID, useCaseID))
	return mapErr("mirror delete", err)
}
