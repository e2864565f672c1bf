package services

import (
	"context"
	"errors"
	"log"
	"time"

	"taxotree/internal/models"
)

// ClassificationWriter is the slice of the classification store the
// classification service needs.
type ClassificationWriter interface {
	Upsert(ctx context.Context, rec *models.ClassificationRecord) error
}

// ClassificationService classifies transcripts and persists the results.
type ClassificationService struct {
	classifier  *ClassifierService
	transcripts *TranscriptService
	writer      ClassificationWriter
	metrics     *Metrics
}

// NewClassificationService wires the classification pipeline. metrics may be
// nil.
func NewClassificationService(classifier *ClassifierService, transcripts *TranscriptService, writer ClassificationWriter, metrics *Metrics) *ClassificationService {
	return &ClassificationService{
		classifier:  classifier,
		transcripts: transcripts,
		writer:      writer,
		metrics:     metrics,
	}
}

// ClassifyTranscript classifies one transcript and upserts the record for the
// scope. Transcripts with no usable text are rejected before calling the
// model.
func (s *ClassificationService) ClassifyTranscript(ctx context.Context, tenantID, useCaseID string, transcript *models.Transcript, batch string) (*models.ClassificationRecord, error) {
	text := s.transcripts.ExtractText(transcript)
	if text == "" {
		return nil, &ClassificationError{Message: "transcript has no usable text"}
	}

	start := time.Now()
	classification, stats, err := s.classifier.Classify(ctx, text)
	if s.metrics != nil {
		s.metrics.RecordClassification(time.Since(start).Seconds())
	}
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordClassificationError(errorType(err))
		}
		return nil, err
	}

	rec := &models.ClassificationRecord{
		TenantID:       tenantID,
		UseCaseID:      useCaseID,
		Classification: *classification,
		Metadata:       s.transcripts.BuildMetadata(transcript, batch),
		Stats:          *stats,
		CreatedAt:      time.Now().UTC(),
	}

	if err := s.writer.Upsert(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// ClassifyBatch classifies a set of transcripts, continuing past individual
// failures. It returns the persisted records plus the number of failures.
func (s *ClassificationService) ClassifyBatch(ctx context.Context, tenantID, useCaseID string, transcripts []models.Transcript, batch string) ([]models.ClassificationRecord, int, error) {
	var records []models.ClassificationRecord
	failed := 0

	for i := range transcripts {
		if ctx.Err() != nil {
			return records, failed, ctx.Err()
		}

		rec, err := s.ClassifyTranscript(ctx, tenantID, useCaseID, &transcripts[i], batch)
		if err != nil {
			failed++
			log.Printf("⚠️ [CLASSIFY] Skipping conversation %s: %v", transcripts[i].ConversationID, err)
			continue
		}
		records = append(records, *rec)
	}

	log.Printf("✅ [CLASSIFY] Batch %s for %s/%s: %d classified, %d failed",
		batch, tenantID, useCaseID, len(records), failed)
	return records, failed, nil
}

// errorType buckets classification failures for metrics.
func errorType(err error) string {
	var cerr *ClassificationError
	if errors.As(err, &cerr) {
		return "classification"
	}
	return "internal"
}
