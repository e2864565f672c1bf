package handlers

import (
	"errors"
	"log"

	"taxotree/internal/lifecycle"
	"taxotree/internal/models"
	"taxotree/internal/services"

	"github.com/gofiber/fiber/v2"
)

// HierarchyHandler exposes the version lifecycle over HTTP.
type HierarchyHandler struct {
	hierarchy *services.HierarchyService
}

// NewHierarchyHandler creates a new hierarchy handler
func NewHierarchyHandler(hierarchy *services.HierarchyService) *HierarchyHandler {
	return &HierarchyHandler{hierarchy: hierarchy}
}

// scope pulls the tenant and use case from the query, falling back to
// "default" so single-tenant deployments need no parameters.
func scope(c *fiber.Ctx) (string, string) {
	tenantID := c.Query("tenant_id", "default")
	useCaseID := c.Query("use_case_id", "default")
	return tenantID, useCaseID
}

// lifecycleError maps the lifecycle error taxonomy onto HTTP responses.
func lifecycleError(c *fiber.Ctx, err error) error {
	var conflict *lifecycle.ConcurrentModificationError
	switch {
	case errors.As(err, &conflict):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error":             "Another activation modified this scope first",
			"current_active_id": conflict.CurrentActiveID,
		})
	case errors.Is(err, lifecycle.ErrVersionNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Version not found in this scope",
		})
	case errors.Is(err, lifecycle.ErrStoreUnavailable):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Storage is temporarily unavailable",
		})
	default:
		log.Printf("❌ [HIERARCHY] Internal error: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Internal server error",
		})
	}
}

// ProposeRequest is the body of POST /api/hierarchy/propose.
type ProposeRequest struct {
	Date  string `json:"date"`
	Batch string `json:"batch"`
}

// Propose builds a new hierarchy version from the scope's classifications.
func (h *HierarchyHandler) Propose(c *fiber.Ctx) error {
	tenantID, useCaseID := scope(c)

	var req ProposeRequest
	if err := c.BodyParser(&req); err != nil && len(c.Body()) > 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	filters := models.ClassificationFilters{Date: req.Date, Batch: req.Batch}
	rec, err := h.hierarchy.Propose(c.Context(), tenantID, useCaseID, filters)
	if err != nil {
		var groupingErr *services.GroupingError
		if errors.As(err, &groupingErr) {
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"error": "Category consolidation failed: " + groupingErr.Message,
			})
		}
		return lifecycleError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(rec)
}

// ActivateRequest is the body of POST /api/hierarchy/activate.
type ActivateRequest struct {
	VersionID string `json:"version_id"`
}

// Activate makes a proposed version the authoritative one for its scope.
func (h *HierarchyHandler) Activate(c *fiber.Ctx) error {
	tenantID, useCaseID := scope(c)

	var req ActivateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.VersionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "version_id is required",
		})
	}

	result, err := h.hierarchy.Activate(c.Context(), tenantID, useCaseID, req.VersionID)
	if err != nil {
		return lifecycleError(c, err)
	}

	return c.JSON(result)
}

// GetActive returns the active hierarchy for the scope.
func (h *HierarchyHandler) GetActive(c *fiber.Ctx) error {
	tenantID, useCaseID := scope(c)

	rec, err := h.hierarchy.GetActive(c.Context(), tenantID, useCaseID)
	if err != nil {
		return lifecycleError(c, err)
	}
	if rec == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "No active hierarchy for this scope",
		})
	}

	return c.JSON(rec)
}

// GetVersion returns one version by id.
func (h *HierarchyHandler) GetVersion(c *fiber.Ctx) error {
	tenantID, useCaseID := scope(c)

	rec, err := h.hierarchy.GetVersion(c.Context(), tenantID, useCaseID, c.Params("id"))
	if err != nil {
		return lifecycleError(c, err)
	}

	return c.JSON(rec)
}

// ListVersions returns the scope's versions, newest first.
func (h *HierarchyHandler) ListVersions(c *fiber.Ctx) error {
	tenantID, useCaseID := scope(c)

	opts := lifecycle.ListOptions{
		OnlyActive: c.QueryBool("active"),
		Version:    c.QueryInt("version"),
		Status:     models.VersionStatus(c.Query("status")),
		Limit:      int64(c.QueryInt("limit")),
	}

	records, err := h.hierarchy.ListVersions(c.Context(), tenantID, useCaseID, opts)
	if err != nil {
		return lifecycleError(c, err)
	}

	return c.JSON(fiber.Map{
		"versions": records,
		"count":    len(records),
	})
}
