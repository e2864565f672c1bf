package jobs

import (
	"context"
	"testing"
	"time"

	"taxotree/internal/lifecycle"
	"taxotree/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type fakeMirrorStore struct {
	records []*models.VersionRecord
	mirrors map[string]models.ActiveHierarchy
	claims  []models.ActivationClaim
}

func newFakeMirrorStore() *fakeMirrorStore {
	return &fakeMirrorStore{mirrors: make(map[string]models.ActiveHierarchy)}
}

func mirrorKey(tenantID, useCaseID string) string {
	return tenantID + "/" + useCaseID
}

func (f *fakeMirrorStore) add(rec models.VersionRecord) *models.VersionRecord {
	r := rec
	f.records = append(f.records, &r)
	return &r
}

func (f *fakeMirrorStore) find(id string) *models.VersionRecord {
	for _, r := range f.records {
		if r.ID.Hex() == id {
			return r
		}
	}
	return nil
}

func (f *fakeMirrorStore) FindAllActive(ctx context.Context) ([]models.VersionRecord, error) {
	var out []models.VersionRecord
	for _, r := range f.records {
		if r.Metadata.Active {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeMirrorStore) ListMirrors(ctx context.Context) ([]models.ActiveHierarchy, error) {
	var out []models.ActiveHierarchy
	for _, m := range f.mirrors {
		out = append(out, m)
	}
	return out, nil
}

func (f *fakeMirrorStore) UpsertActiveMirror(ctx context.Context, rec *models.VersionRecord) error {
	f.mirrors[mirrorKey(rec.TenantID, rec.UseCaseID)] = models.ActiveHierarchy{
		TenantID:  rec.TenantID,
		UseCaseID: rec.UseCaseID,
		VersionID: rec.ID,
		Version:   rec.Version,
		Hierarchy: rec.Hierarchy,
	}
	return nil
}

func (f *fakeMirrorStore) DeleteMirror(ctx context.Context, tenantID, useCaseID string) error {
	delete(f.mirrors, mirrorKey(tenantID, useCaseID))
	return nil
}

func (f *fakeMirrorStore) ListClaims(ctx context.Context) ([]models.ActivationClaim, error) {
	return f.claims, nil
}

func (f *fakeMirrorStore) MarkInactive(ctx context.Context, tenantID, useCaseID, id string) error {
	rec := f.find(id)
	if rec == nil {
		return lifecycle.ErrVersionNotFound
	}
	if !rec.Metadata.Active {
		return lifecycle.ErrPreconditionFailed
	}
	rec.Metadata.Active = false
	rec.Metadata.Status = models.VersionStatusInactive
	return nil
}

func (f *fakeMirrorStore) MarkActive(ctx context.Context, tenantID, useCaseID, id string, activatedAt time.Time, previousID *string) error {
	rec := f.find(id)
	if rec == nil {
		return lifecycle.ErrVersionNotFound
	}
	if rec.Metadata.Active {
		return lifecycle.ErrPreconditionFailed
	}
	rec.Metadata.Active = true
	rec.Metadata.Status = models.VersionStatusActive
	rec.Metadata.ActivatedAt = &activatedAt
	rec.Metadata.PreviousVersion = nil
	if previousID != nil {
		if oid, err := primitive.ObjectIDFromHex(*previousID); err == nil {
			rec.Metadata.PreviousVersion = &oid
		}
	}
	return nil
}

func activeRecord(tenant, useCase string, version int) models.VersionRecord {
	return models.VersionRecord{
		ID:        primitive.NewObjectID(),
		TenantID:  tenant,
		UseCaseID: useCase,
		Version:   version,
		Metadata:  models.VersionMetadata{Status: models.VersionStatusActive, Active: true},
	}
}

func proposedRecord(tenant, useCase string, version int) models.VersionRecord {
	return models.VersionRecord{
		ID:        primitive.NewObjectID(),
		TenantID:  tenant,
		UseCaseID: useCase,
		Version:   version,
		Metadata:  models.VersionMetadata{Status: models.VersionStatusProposed},
	}
}

func TestReconcilerRepairsDriftedMirror(t *testing.T) {
	store := newFakeMirrorStore()
	active := store.add(activeRecord("acme", "complaints", 3))
	store.mirrors[mirrorKey("acme", "complaints")] = models.ActiveHierarchy{
		TenantID:  "acme",
		UseCaseID: "complaints",
		VersionID: primitive.NewObjectID(), // points at the wrong version
		Version:   2,
	}

	job := NewMirrorReconcilerJob(store, nil)
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	mirror := store.mirrors[mirrorKey("acme", "complaints")]
	if mirror.VersionID != active.ID {
		t.Errorf("mirror points at %s, want %s", mirror.VersionID.Hex(), active.ID.Hex())
	}
	if mirror.Version != 3 {
		t.Errorf("mirror version = %d, want 3", mirror.Version)
	}
}

func TestReconcilerRemovesStaleMirror(t *testing.T) {
	store := newFakeMirrorStore()
	store.mirrors[mirrorKey("acme", "complaints")] = models.ActiveHierarchy{
		TenantID:  "acme",
		UseCaseID: "complaints",
		VersionID: primitive.NewObjectID(),
	}

	job := NewMirrorReconcilerJob(store, nil)
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(store.mirrors) != 0 {
		t.Errorf("stale mirror not removed: %v", store.mirrors)
	}
}

func TestReconcilerCreatesMissingMirror(t *testing.T) {
	store := newFakeMirrorStore()
	active := store.add(activeRecord("acme", "sales", 1))

	job := NewMirrorReconcilerJob(store, nil)
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	mirror, ok := store.mirrors[mirrorKey("acme", "sales")]
	if !ok {
		t.Fatal("mirror was not created")
	}
	if mirror.VersionID != active.ID {
		t.Errorf("mirror points at %s, want %s", mirror.VersionID.Hex(), active.ID.Hex())
	}
}

func TestReconcilerLeavesConsistentStateAlone(t *testing.T) {
	store := newFakeMirrorStore()
	active := store.add(activeRecord("acme", "complaints", 2))
	store.mirrors[mirrorKey("acme", "complaints")] = models.ActiveHierarchy{
		TenantID:  "acme",
		UseCaseID: "complaints",
		VersionID: active.ID,
		Version:   2,
	}
	store.claims = []models.ActivationClaim{{
		TenantID:  "acme",
		UseCaseID: "complaints",
		VersionID: active.ID,
		UpdatedAt: time.Now().UTC(),
	}}

	job := NewMirrorReconcilerJob(store, nil)
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !store.find(active.ID.Hex()).Metadata.Active {
		t.Error("settled active version was deactivated")
	}
	mirror := store.mirrors[mirrorKey("acme", "complaints")]
	if mirror.VersionID != active.ID || mirror.Version != 2 {
		t.Errorf("consistent mirror was modified: %+v", mirror)
	}
}

func TestReconcilerFinishesCrashedActivation(t *testing.T) {
	store := newFakeMirrorStore()
	v1 := store.add(activeRecord("acme", "complaints", 1))
	v2 := store.add(proposedRecord("acme", "complaints", 2))
	store.mirrors[mirrorKey("acme", "complaints")] = models.ActiveHierarchy{
		TenantID:  "acme",
		UseCaseID: "complaints",
		VersionID: v1.ID,
		Version:   1,
	}
	// The claim committed the scope to v2, but the process died before any
	// flag flipped.
	store.claims = []models.ActivationClaim{{
		TenantID:  "acme",
		UseCaseID: "complaints",
		VersionID: v2.ID,
		UpdatedAt: time.Now().UTC(),
	}}

	job := NewMirrorReconcilerJob(store, nil)
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if v1.Metadata.Active {
		t.Error("superseded version still active")
	}
	if !v2.Metadata.Active {
		t.Fatal("claimed version was not activated")
	}
	if v2.Metadata.PreviousVersion == nil || *v2.Metadata.PreviousVersion != v1.ID {
		t.Errorf("previousVersion not recorded, got %v", v2.Metadata.PreviousVersion)
	}

	activeCount := 0
	for _, rec := range store.records {
		if rec.Metadata.Active {
			activeCount++
		}
	}
	if activeCount != 1 {
		t.Fatalf("active versions = %d, want 1", activeCount)
	}

	mirror := store.mirrors[mirrorKey("acme", "complaints")]
	if mirror.VersionID != v2.ID || mirror.Version != 2 {
		t.Errorf("mirror did not follow the finished swap: %+v", mirror)
	}
}
