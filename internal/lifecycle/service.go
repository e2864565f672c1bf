// Package lifecycle owns the creation and status transitions of hierarchy
// versions: proposing new versions, the activation state machine, and the
// queries over persisted versions. The aggregation itself is pure (package
// hierarchy); persistence is behind the VersionStore contract.
package lifecycle

import (
	"context"
	"log"
	"time"

	"taxotree/internal/hierarchy"
	"taxotree/internal/models"
)

// Service is the façade composing the aggregator, the version store and the
// activation state machine.
type Service struct {
	store   VersionStore
	machine *StateMachine
}

// Options tune lifecycle policy.
type Options struct {
	// AutoActivateAll activates every proposed version, not only the first
	// per scope.
	AutoActivateAll bool
}

// NewService creates a lifecycle service over the given store.
func NewService(store VersionStore, opts Options) *Service {
	return &Service{
		store:   store,
		machine: NewStateMachine(store, opts.AutoActivateAll),
	}
}

// Propose aggregates the records into a hierarchy and persists it as the next
// version for the scope. The very first version of a scope activates
// automatically; later ones stay proposed until activated explicitly. Nothing
// is persisted when aggregation input is rejected upstream or the store is
// unreachable.
func (s *Service) Propose(ctx context.Context, tenantID, useCaseID string, records []models.ClassificationRecord, filters models.ClassificationFilters) (*models.VersionRecord, error) {
	res := hierarchy.Aggregate(records)

	latest, err := s.store.LatestVersion(ctx, tenantID, useCaseID)
	if err != nil {
		return nil, err
	}

	rec := &models.VersionRecord{
		TenantID:  tenantID,
		UseCaseID: useCaseID,
		Version:   latest + 1,
		Hierarchy: res.Tree,
		Metadata: models.VersionMetadata{
			TotalClassifications: res.Tree.Total,
			SkippedRecords:       res.Skipped,
			Filters:              filters,
		},
		CreatedAt: time.Now().UTC(),
	}

	if err := s.machine.Create(ctx, rec); err != nil {
		return nil, err
	}

	if res.Skipped > 0 {
		log.Printf("⚠️ [LIFECYCLE] Proposed version %d for %s/%s with %d skipped records",
			rec.Version, tenantID, useCaseID, res.Skipped)
	}

	return rec, nil
}

// Activate makes the given version the authoritative one for its scope.
func (s *Service) Activate(ctx context.Context, tenantID, useCaseID, versionID string) (*ActivationResult, error) {
	return s.machine.Activate(ctx, tenantID, useCaseID, versionID)
}

// GetActive returns the active version for the scope, or (nil, nil) when the
// scope has none.
func (s *Service) GetActive(ctx context.Context, tenantID, useCaseID string) (*models.VersionRecord, error) {
	return s.store.FindActive(ctx, tenantID, useCaseID)
}

// GetVersion resolves a single version id within the scope.
func (s *Service) GetVersion(ctx context.Context, tenantID, useCaseID, versionID string) (*models.VersionRecord, error) {
	return s.store.FindByID(ctx, tenantID, useCaseID, versionID)
}

// ListVersions returns versions in scope, newest first, narrowed by opts.
func (s *Service) ListVersions(ctx context.Context, tenantID, useCaseID string, opts ListOptions) ([]models.VersionRecord, error) {
	return s.store.List(ctx, tenantID, useCaseID, opts)
}
