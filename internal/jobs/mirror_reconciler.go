// Package jobs holds the background maintenance jobs and their scheduler.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"taxotree/internal/lifecycle"
	"taxotree/internal/models"
	"taxotree/internal/services"
)

// MirrorStore is the slice of the version store the reconciler needs.
type MirrorStore interface {
	FindAllActive(ctx context.Context) ([]models.VersionRecord, error)
	ListMirrors(ctx context.Context) ([]models.ActiveHierarchy, error)
	UpsertActiveMirror(ctx context.Context, rec *models.VersionRecord) error
	DeleteMirror(ctx context.Context, tenantID, useCaseID string) error
	ListClaims(ctx context.Context) ([]models.ActivationClaim, error)
	MarkInactive(ctx context.Context, tenantID, useCaseID, id string) error
	MarkActive(ctx context.Context, tenantID, useCaseID, id string, activatedAt time.Time, previousID *string) error
}

// MirrorReconcilerJob repairs drift between the primary version collection
// and the active hierarchy mirror, and finishes activation swaps that crashed
// after winning their claim. The claim, then the primary collection, is the
// source of truth; mirrors that disagree are rewritten, mirrors for scopes
// with no active version are removed.
type MirrorReconcilerJob struct {
	store   MirrorStore
	metrics *services.Metrics
}

// NewMirrorReconcilerJob creates a new mirror reconciler job. metrics may be
// nil.
func NewMirrorReconcilerJob(store MirrorStore, metrics *services.Metrics) *MirrorReconcilerJob {
	return &MirrorReconcilerJob{store: store, metrics: metrics}
}

// Run performs one reconciliation pass. Claims roll forward first so the
// mirror pass sees the post-swap active set.
func (j *MirrorReconcilerJob) Run(ctx context.Context) error {
	startTime := time.Now()

	if err := j.rollForwardClaims(ctx); err != nil {
		return err
	}

	actives, err := j.store.FindAllActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to scan active versions: %w", err)
	}
	mirrors, err := j.store.ListMirrors(ctx)
	if err != nil {
		return fmt.Errorf("failed to scan mirrors: %w", err)
	}

	type scopeKey struct{ tenant, useCase string }
	activeByScope := make(map[scopeKey]models.VersionRecord, len(actives))
	for _, rec := range actives {
		activeByScope[scopeKey{rec.TenantID, rec.UseCaseID}] = rec
	}

	repaired := 0
	removed := 0

	mirrored := make(map[scopeKey]bool, len(mirrors))
	for _, mirror := range mirrors {
		key := scopeKey{mirror.TenantID, mirror.UseCaseID}
		mirrored[key] = true

		active, ok := activeByScope[key]
		if !ok {
			if err := j.store.DeleteMirror(ctx, mirror.TenantID, mirror.UseCaseID); err != nil {
				log.Printf("⚠️ [RECONCILER] Failed to remove stale mirror for %s/%s: %v",
					mirror.TenantID, mirror.UseCaseID, err)
				continue
			}
			removed++
			continue
		}

		if mirror.VersionID != active.ID {
			if err := j.store.UpsertActiveMirror(ctx, &active); err != nil {
				log.Printf("⚠️ [RECONCILER] Failed to repair mirror for %s/%s: %v",
					mirror.TenantID, mirror.UseCaseID, err)
				continue
			}
			repaired++
		}
	}

	// Scopes with an active version but no mirror at all.
	for key, active := range activeByScope {
		if mirrored[key] {
			continue
		}
		if err := j.store.UpsertActiveMirror(ctx, &active); err != nil {
			log.Printf("⚠️ [RECONCILER] Failed to create mirror for %s/%s: %v", key.tenant, key.useCase, err)
			continue
		}
		repaired++
	}

	if j.metrics != nil {
		for i := 0; i < repaired; i++ {
			j.metrics.RecordMirrorRepair()
		}
	}

	if repaired > 0 || removed > 0 {
		log.Printf("🔁 [RECONCILER] Pass complete in %v: %d repaired, %d removed (%d active scopes)",
			time.Since(startTime), repaired, removed, len(activeByScope))
	}
	return nil
}

// rollForwardClaims finishes swaps that won their activation claim but
// crashed before flipping the flags. The claim already committed the scope to
// its target version, so the only safe direction is forward; leaving such a
// claim behind would make every later activation of the scope lose its race.
func (j *MirrorReconcilerJob) rollForwardClaims(ctx context.Context) error {
	claims, err := j.store.ListClaims(ctx)
	if err != nil {
		return fmt.Errorf("failed to scan activation claims: %w", err)
	}
	if len(claims) == 0 {
		return nil
	}

	actives, err := j.store.FindAllActive(ctx)
	if err != nil {
		return fmt.Errorf("failed to scan active versions: %w", err)
	}

	type scopeKey struct{ tenant, useCase string }
	activeByScope := make(map[scopeKey]models.VersionRecord, len(actives))
	for _, rec := range actives {
		activeByScope[scopeKey{rec.TenantID, rec.UseCaseID}] = rec
	}

	for _, claim := range claims {
		active, hasActive := activeByScope[scopeKey{claim.TenantID, claim.UseCaseID}]
		if hasActive && active.ID == claim.VersionID {
			continue
		}

		var previousID *string
		if hasActive {
			id := active.ID.Hex()
			previousID = &id
			if err := j.store.MarkInactive(ctx, claim.TenantID, claim.UseCaseID, id); err != nil && !errors.Is(err, lifecycle.ErrPreconditionFailed) {
				log.Printf("⚠️ [RECONCILER] Failed to deactivate %s for %s/%s: %v",
					id, claim.TenantID, claim.UseCaseID, err)
				continue
			}
		}
		if err := j.store.MarkActive(ctx, claim.TenantID, claim.UseCaseID, claim.VersionID.Hex(), claim.UpdatedAt, previousID); err != nil && !errors.Is(err, lifecycle.ErrPreconditionFailed) {
			log.Printf("⚠️ [RECONCILER] Failed to activate claimed %s for %s/%s: %v",
				claim.VersionID.Hex(), claim.TenantID, claim.UseCaseID, err)
			continue
		}

		log.Printf("🔁 [RECONCILER] Rolled activation of %s forward for %s/%s",
			claim.VersionID.Hex(), claim.TenantID, claim.UseCaseID)
		if j.metrics != nil {
			j.metrics.RecordMirrorRepair()
		}
	}
	return nil
}
