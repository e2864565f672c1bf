package handlers

import (
	"errors"

	"taxotree/internal/models"
	"taxotree/internal/services"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// ClassifyHandler exposes the classification pipeline over HTTP.
type ClassifyHandler struct {
	classification *services.ClassificationService
}

// NewClassifyHandler creates a new classify handler
func NewClassifyHandler(classification *services.ClassificationService) *ClassifyHandler {
	return &ClassifyHandler{classification: classification}
}

// ClassifyRequest is the body of POST /api/classify.
type ClassifyRequest struct {
	ConversationID string                     `json:"conversation_id"`
	ClientID       string                     `json:"client_id"`
	ClientName     string                     `json:"client_name"`
	Batch          string                     `json:"batch"`
	Messages       []models.TranscriptMessage `json:"messages"`
}

func (r *ClassifyRequest) toTranscript() *models.Transcript {
	return &models.Transcript{
		ConversationID: r.ConversationID,
		ClientID:       r.ClientID,
		ClientName:     r.ClientName,
		Batch:          r.Batch,
		Messages:       r.Messages,
	}
}

// classifyError maps pipeline failures onto HTTP responses.
func classifyError(c *fiber.Ctx, err error) error {
	var cerr *services.ClassificationError
	if errors.As(err, &cerr) {
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": cerr.Error(),
		})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Internal server error",
	})
}

// Classify classifies one conversation and persists the result.
func (h *ClassifyHandler) Classify(c *fiber.Ctx) error {
	tenantID, useCaseID := scope(c)

	var req ClassifyRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.ConversationID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "conversation_id is required",
		})
	}
	if len(req.Messages) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "messages are required",
		})
	}

	rec, err := h.classification.ClassifyTranscript(c.Context(), tenantID, useCaseID, req.toTranscript(), req.Batch)
	if err != nil {
		return classifyError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(rec)
}

// BatchClassifyRequest is the body of POST /api/classify/batch.
type BatchClassifyRequest struct {
	Batch         string            `json:"batch"`
	Conversations []ClassifyRequest `json:"conversations"`
}

// ClassifyBatch classifies a set of conversations under one batch id,
// continuing past individual failures.
func (h *ClassifyHandler) ClassifyBatch(c *fiber.Ctx) error {
	tenantID, useCaseID := scope(c)

	var req BatchClassifyRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if len(req.Conversations) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "conversations are required",
		})
	}

	batch := req.Batch
	if batch == "" {
		batch = uuid.NewString()
	}

	transcripts := make([]models.Transcript, 0, len(req.Conversations))
	for i := range req.Conversations {
		transcripts = append(transcripts, *req.Conversations[i].toTranscript())
	}

	records, failed, err := h.classification.ClassifyBatch(c.Context(), tenantID, useCaseID, transcripts, batch)
	if err != nil {
		return classifyError(c, err)
	}

	return c.JSON(fiber.Map{
		"batch":      batch,
		"classified": len(records),
		"failed":     failed,
		"records":    records,
	})
}
