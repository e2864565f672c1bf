package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"taxotree/internal/models"
)

// StateMachine drives the activation state of each (tenant, use case) scope.
// A scope is in one of two states: no active version, or exactly one active
// version. A swap first wins the scope's activation claim, a compare-and-swap
// keyed to the active version the caller observed, then flips the flags and
// upserts the mirror in a fixed order. Competing swaps lose at the claim, and
// a crash mid-sequence leaves a claim the reconciler rolls forward.
type StateMachine struct {
	store VersionStore

	// autoActivateAll activates every proposed version immediately instead
	// of only the first one per scope.
	autoActivateAll bool
}

// NewStateMachine creates a state machine over the given store.
func NewStateMachine(store VersionStore, autoActivateAll bool) *StateMachine {
	return &StateMachine{store: store, autoActivateAll: autoActivateAll}
}

// ActivationResult reports the outcome of an activation swap. PreviousID
// equals NewID when the target was already active (idempotent no-op).
type ActivationResult struct {
	PreviousID string `json:"previous_version_id,omitempty"`
	NewID      string `json:"new_version_id"`
	Version    int    `json:"version"`
}

// Create persists a freshly proposed version and runs the create transition:
// a scope with no active version auto-activates the new record; otherwise the
// record stays proposed (unless the always-auto-activate policy is on, in
// which case a regular activation swap follows the insert). Auto-activation
// goes through the same claimed swap as an explicit activation, so a
// concurrent winner simply leaves the record proposed.
func (m *StateMachine) Create(ctx context.Context, rec *models.VersionRecord) error {
	current, err := m.store.FindActive(ctx, rec.TenantID, rec.UseCaseID)
	if err != nil {
		return err
	}

	rec.Metadata.Status = models.VersionStatusProposed
	rec.Metadata.Active = false

	if _, err := m.store.Insert(ctx, rec); err != nil {
		return err
	}

	// The proposal log gets every version, activated or not, right after the
	// primary insert.
	if err := m.store.AppendProposalLog(ctx, rec); err != nil {
		return fmt.Errorf("proposal log write failed: %w", err)
	}

	if current != nil && !m.autoActivateAll {
		return nil
	}

	if _, err := m.Activate(ctx, rec.TenantID, rec.UseCaseID, rec.ID.Hex()); err != nil {
		if _, ok := IsConcurrentModification(err); ok {
			log.Printf("⚠️ [LIFECYCLE] Version %d for %s/%s stays proposed, activation raced: %v",
				rec.Version, rec.TenantID, rec.UseCaseID, err)
			return nil
		}
		return err
	}
	if fresh, err := m.store.FindByID(ctx, rec.TenantID, rec.UseCaseID, rec.ID.Hex()); err == nil {
		rec.Metadata = fresh.Metadata
	}
	if current == nil {
		log.Printf("📌 [LIFECYCLE] Auto-activated version %d for %s/%s", rec.Version, rec.TenantID, rec.UseCaseID)
	}

	return nil
}

// Activate swaps the active version of a scope to the target id. The swap is
// idempotent for an already-active target, fails with ErrVersionNotFound for
// an unresolved id and with ConcurrentModificationError when another
// activation wins the claim race.
func (m *StateMachine) Activate(ctx context.Context, tenantID, useCaseID, targetID string) (*ActivationResult, error) {
	target, err := m.store.FindByID(ctx, tenantID, useCaseID, targetID)
	if err != nil {
		return nil, err
	}

	current, err := m.store.FindActive(ctx, tenantID, useCaseID)
	if err != nil {
		return nil, err
	}

	if current != nil && current.ID == target.ID {
		return &ActivationResult{
			PreviousID: targetID,
			NewID:      targetID,
			Version:    target.Version,
		}, nil
	}

	var expected, previousID *string
	if current != nil {
		id := current.ID.Hex()
		expected = &id
		previousID = &id
	}

	// Win the scope's activation claim before touching any flag. The claim
	// asserts the active version this call observed, so two swaps that both
	// read the same state (or one that read stale state) cannot both proceed.
	if err := m.store.ClaimActivation(ctx, tenantID, useCaseID, expected, targetID); err != nil {
		return nil, m.classifySwapFailure(ctx, tenantID, useCaseID, err)
	}

	now := time.Now().UTC()

	// Under the claim the flag flips cannot race another activation. A
	// precondition failure here can only mean the reconciler already rolled
	// this same claim forward, so the swap continues.
	if current != nil {
		if err := m.store.MarkInactive(ctx, tenantID, useCaseID, *previousID); err != nil && !errors.Is(err, ErrPreconditionFailed) {
			return nil, err
		}
	}

	if err := m.store.MarkActive(ctx, tenantID, useCaseID, targetID, now, previousID); err != nil && !errors.Is(err, ErrPreconditionFailed) {
		return nil, err
	}

	// Refresh the in-memory record so the mirror reflects the new state.
	target.Metadata.Status = models.VersionStatusActive
	target.Metadata.Active = true
	target.Metadata.ActivatedAt = &now
	target.Metadata.PreviousVersion = nil
	if current != nil {
		prev := current.ID
		target.Metadata.PreviousVersion = &prev
	}

	if err := m.store.UpsertActiveMirror(ctx, target); err != nil {
		return nil, fmt.Errorf("active mirror write failed: %w", err)
	}

	result := &ActivationResult{NewID: targetID, Version: target.Version}
	if previousID != nil {
		result.PreviousID = *previousID
	}

	log.Printf("🔁 [LIFECYCLE] Activated version %d for %s/%s (previous: %s)",
		target.Version, tenantID, useCaseID, result.PreviousID)

	return result, nil
}

// classifySwapFailure turns a lost activation claim into a
// ConcurrentModificationError carrying the id that is active now.
func (m *StateMachine) classifySwapFailure(ctx context.Context, tenantID, useCaseID string, cause error) error {
	if !errors.Is(cause, ErrPreconditionFailed) {
		return cause
	}

	cme := &ConcurrentModificationError{}
	if active, err := m.store.FindActive(ctx, tenantID, useCaseID); err == nil && active != nil {
		cme.CurrentActiveID = active.ID.Hex()
	}
	return cme
}
