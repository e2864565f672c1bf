package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"taxotree/internal/lifecycle"
	"taxotree/internal/models"
	"taxotree/internal/services"

	"github.com/gofiber/fiber/v2"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// fakeVersionStore is an in-memory lifecycle.VersionStore for handler tests.
type fakeVersionStore struct {
	records []*models.VersionRecord
	claims  map[string]string
}

func (f *fakeVersionStore) inScope(rec *models.VersionRecord, tenantID, useCaseID string) bool {
	return rec.TenantID == tenantID && rec.UseCaseID == useCaseID
}

func (f *fakeVersionStore) LatestVersion(ctx context.Context, tenantID, useCaseID string) (int, error) {
	latest := 0
	for _, rec := range f.records {
		if f.inScope(rec, tenantID, useCaseID) && rec.Version > latest {
			latest = rec.Version
		}
	}
	return latest, nil
}

func (f *fakeVersionStore) FindActive(ctx context.Context, tenantID, useCaseID string) (*models.VersionRecord, error) {
	for _, rec := range f.records {
		if f.inScope(rec, tenantID, useCaseID) && rec.Metadata.Active {
			clone := *rec
			return &clone, nil
		}
	}
	return nil, nil
}

func (f *fakeVersionStore) find(tenantID, useCaseID, id string) *models.VersionRecord {
	for _, rec := range f.records {
		if f.inScope(rec, tenantID, useCaseID) && rec.ID.Hex() == id {
			return rec
		}
	}
	return nil
}

func (f *fakeVersionStore) FindByID(ctx context.Context, tenantID, useCaseID, id string) (*models.VersionRecord, error) {
	rec := f.find(tenantID, useCaseID, id)
	if rec == nil {
		return nil, lifecycle.ErrVersionNotFound
	}
	clone := *rec
	return &clone, nil
}

func (f *fakeVersionStore) Insert(ctx context.Context, rec *models.VersionRecord) (string, error) {
	rec.ID = primitive.NewObjectID()
	clone := *rec
	f.records = append(f.records, &clone)
	return rec.ID.Hex(), nil
}

func (f *fakeVersionStore) List(ctx context.Context, tenantID, useCaseID string, opts lifecycle.ListOptions) ([]models.VersionRecord, error) {
	var out []models.VersionRecord
	for _, rec := range f.records {
		if !f.inScope(rec, tenantID, useCaseID) {
			continue
		}
		if opts.OnlyActive && !rec.Metadata.Active {
			continue
		}
		out = append(out, *rec)
	}
	return out, nil
}

func (f *fakeVersionStore) ClaimActivation(ctx context.Context, tenantID, useCaseID string, expectedID *string, targetID string) error {
	if f.claims == nil {
		f.claims = make(map[string]string)
	}
	key := tenantID + "/" + useCaseID
	current, exists := f.claims[key]
	if expectedID == nil && exists {
		return lifecycle.ErrPreconditionFailed
	}
	if expectedID != nil && exists && current != *expectedID {
		return lifecycle.ErrPreconditionFailed
	}
	f.claims[key] = targetID
	return nil
}

func (f *fakeVersionStore) MarkInactive(ctx context.Context, tenantID, useCaseID, id string) error {
	rec := f.find(tenantID, useCaseID, id)
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

func (f *fakeVersionStore) MarkActive(ctx context.Context, tenantID, useCaseID, id string, activatedAt time.Time, previousID *string) error {
	rec := f.find(tenantID, useCaseID, id)
	if rec == nil {
		return lifecycle.ErrVersionNotFound
	}
	if rec.Metadata.Active {
		return lifecycle.ErrPreconditionFailed
	}
	rec.Metadata.Active = true
	rec.Metadata.Status = models.VersionStatusActive
	rec.Metadata.ActivatedAt = &activatedAt
	if previousID != nil {
		if oid, err := primitive.ObjectIDFromHex(*previousID); err == nil {
			rec.Metadata.PreviousVersion = &oid
		}
	}
	return nil
}

func (f *fakeVersionStore) AppendProposalLog(ctx context.Context, rec *models.VersionRecord) error {
	return nil
}

func (f *fakeVersionStore) UpsertActiveMirror(ctx context.Context, rec *models.VersionRecord) error {
	return nil
}

// fakeQuerier serves a fixed set of classification records.
type fakeQuerier struct {
	records []models.ClassificationRecord
}

func (f *fakeQuerier) Query(ctx context.Context, tenantID, useCaseID string, filters models.ClassificationFilters) ([]models.ClassificationRecord, error) {
	return f.records, nil
}

func classified(category, subcategory, detail string) models.ClassificationRecord {
	return models.ClassificationRecord{
		Classification: models.Classification{Category: category, Subcategory: subcategory, Detail: detail},
	}
}

func newTestApp(store *fakeVersionStore, querier *fakeQuerier) *fiber.App {
	lc := lifecycle.NewService(store, lifecycle.Options{})
	hierarchySvc := services.NewHierarchyService(lc, querier, nil, nil, nil)
	handler := NewHierarchyHandler(hierarchySvc)

	app := fiber.New()
	app.Post("/api/hierarchy/propose", handler.Propose)
	app.Post("/api/hierarchy/activate", handler.Activate)
	app.Get("/api/hierarchy/active", handler.GetActive)
	app.Get("/api/hierarchy/versions", handler.ListVersions)
	app.Get("/api/hierarchy/versions/:id", handler.GetVersion)
	return app
}

func doJSON(t *testing.T, app *fiber.App, method, url string, body interface{}) (*http.Response, map[string]interface{}) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, url, reader)
	req.Header.Set("Content-Type", "application/json")

	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}

	var decoded map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		t.Fatalf("decoding %s %s response: %v", method, url, err)
	}
	return resp, decoded
}

func TestProposeEndpointFirstVersionActivates(t *testing.T) {
	store := &fakeVersionStore{}
	querier := &fakeQuerier{records: []models.ClassificationRecord{
		classified("Products", "Cards", "blocked"),
		classified("Products", "Cards", "limit"),
	}}
	app := newTestApp(store, querier)

	resp, body := doJSON(t, app, "POST", "/api/hierarchy/propose", ProposeRequest{})
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("status = %d, want 201 (%v)", resp.StatusCode, body)
	}
	if body["version"].(float64) != 1 {
		t.Errorf("version = %v, want 1", body["version"])
	}
	meta := body["metadata"].(map[string]interface{})
	if meta["active"] != true || meta["status"] != "active" {
		t.Errorf("first version should auto-activate, got %v", meta)
	}
}

func TestActivateEndpointSwapsVersions(t *testing.T) {
	store := &fakeVersionStore{}
	querier := &fakeQuerier{records: []models.ClassificationRecord{
		classified("Products", "Cards", "blocked"),
	}}
	app := newTestApp(store, querier)

	doJSON(t, app, "POST", "/api/hierarchy/propose", ProposeRequest{})
	_, second := doJSON(t, app, "POST", "/api/hierarchy/propose", ProposeRequest{})
	secondID := second["id"].(string)

	resp, body := doJSON(t, app, "POST", "/api/hierarchy/activate", ActivateRequest{VersionID: secondID})
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200 (%v)", resp.StatusCode, body)
	}

	resp, active := doJSON(t, app, "GET", "/api/hierarchy/active", nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("GET active status = %d", resp.StatusCode)
	}
	if active["id"].(string) != secondID {
		t.Errorf("active id = %v, want %s", active["id"], secondID)
	}
}

func TestActivateEndpointUnknownVersion(t *testing.T) {
	app := newTestApp(&fakeVersionStore{}, &fakeQuerier{})

	resp, _ := doJSON(t, app, "POST", "/api/hierarchy/activate", ActivateRequest{
		VersionID: primitive.NewObjectID().Hex(),
	})
	if resp.StatusCode != fiber.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestActivateEndpointRequiresVersionID(t *testing.T) {
	app := newTestApp(&fakeVersionStore{}, &fakeQuerier{})

	resp, _ := doJSON(t, app, "POST", "/api/hierarchy/activate", ActivateRequest{})
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestGetActiveEndpointEmptyScope(t *testing.T) {
	app := newTestApp(&fakeVersionStore{}, &fakeQuerier{})

	resp, _ := doJSON(t, app, "GET", "/api/hierarchy/active", nil)
	if resp.StatusCode != fiber.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestListVersionsEndpoint(t *testing.T) {
	store := &fakeVersionStore{}
	querier := &fakeQuerier{records: []models.ClassificationRecord{
		classified("Products", "Cards", "blocked"),
	}}
	app := newTestApp(store, querier)

	for i := 0; i < 3; i++ {
		doJSON(t, app, "POST", "/api/hierarchy/propose", ProposeRequest{})
	}

	resp, body := doJSON(t, app, "GET", "/api/hierarchy/versions", nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if count := body["count"].(float64); count != 3 {
		t.Errorf("count = %v, want 3", count)
	}

	resp, body = doJSON(t, app, "GET", fmt.Sprintf("/api/hierarchy/versions?active=%s", "true"), nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("active filter status = %d", resp.StatusCode)
	}
	if count := body["count"].(float64); count != 1 {
		t.Errorf("active count = %v, want 1", count)
	}
}
