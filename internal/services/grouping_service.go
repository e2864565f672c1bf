package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"taxotree/internal/models"

	"github.com/sirupsen/logrus"
)

const defaultGroupingPrompt = `You are consolidating a classification taxonomy.

Below is a list of category/subcategory pairs produced independently per
conversation. Merge near-duplicates (plural vs singular, synonyms, casing)
into canonical names.

Pairs:
%s

Respond with JSON in exactly this format:
{
  "mappings": [
    {"category": "[ORIGINAL_CATEGORY]", "subcategory": "[ORIGINAL_SUBCATEGORY]", "canonical_category": "[CANONICAL]", "canonical_subcategory": "[CANONICAL]"}
  ]
}

Keep the exact JSON format and include every input pair exactly once.`

// GroupingMapping maps one raw category/subcategory pair to its canonical form.
type GroupingMapping struct {
	Category             string `json:"category"`
	Subcategory          string `json:"subcategory"`
	CanonicalCategory    string `json:"canonical_category"`
	CanonicalSubcategory string `json:"canonical_subcategory"`
}

// GroupingService asks the model to consolidate near-duplicate category names
// before a hierarchy is proposed. It shares the classifier's endpoint.
type GroupingService struct {
	classifier *ClassifierService
	prompt     string
	logger     *logrus.Logger
}

// NewGroupingService creates a grouping service on top of an existing
// classifier client.
func NewGroupingService(classifier *ClassifierService, prompt string) *GroupingService {
	if prompt == "" {
		prompt = defaultGroupingPrompt
	}
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	return &GroupingService{classifier: classifier, prompt: prompt, logger: logger}
}

// Consolidate rewrites the records' classifications to canonical category and
// subcategory names. Records are modified in place. Every failure surfaces as
// *GroupingError and leaves the records untouched.
func (s *GroupingService) Consolidate(ctx context.Context, records []models.ClassificationRecord) error {
	pairs := uniquePairs(records)
	if len(pairs) < 2 {
		return nil
	}

	start := time.Now()
	listing := ""
	for _, p := range pairs {
		listing += fmt.Sprintf("- %s / %s\n", p.Category, p.Subcategory)
	}

	content, _, err := s.classifier.complete(ctx, fmt.Sprintf(s.prompt, listing))
	if err != nil {
		return &GroupingError{Message: "consolidation request failed", Cause: err}
	}

	block, ok := extractJSONBlock(content)
	if !ok {
		return &GroupingError{Message: "no JSON object found in model response"}
	}

	var result struct {
		Mappings []GroupingMapping `json:"mappings"`
	}
	if err := json.Unmarshal([]byte(block), &result); err != nil {
		return &GroupingError{Message: "model response is not valid JSON", Cause: err}
	}
	if len(result.Mappings) == 0 {
		return &GroupingError{Message: "model response has no mappings"}
	}

	type pairKey struct{ category, subcategory string }
	canonical := make(map[pairKey]GroupingMapping, len(result.Mappings))
	for _, m := range result.Mappings {
		if m.CanonicalCategory == "" || m.CanonicalSubcategory == "" {
			continue
		}
		canonical[pairKey{m.Category, m.Subcategory}] = m
	}

	renamed := 0
	for i := range records {
		c := &records[i].Classification
		m, ok := canonical[pairKey{c.Category, c.Subcategory}]
		if !ok {
			continue
		}
		if m.CanonicalCategory != c.Category || m.CanonicalSubcategory != c.Subcategory {
			renamed++
		}
		c.Category = m.CanonicalCategory
		c.Subcategory = m.CanonicalSubcategory
	}

	s.logger.WithFields(logrus.Fields{
		"pairs":         len(pairs),
		"renamed":       renamed,
		"processing_ms": time.Since(start).Milliseconds(),
	}).Info("classifications consolidated")

	return nil
}

// uniquePairs returns the distinct classifiable category/subcategory pairs in
// input order. Records without a subcategory never reach the taxonomy, so
// they are not sent for consolidation either.
func uniquePairs(records []models.ClassificationRecord) []models.Classification {
	seen := make(map[string]bool)
	var pairs []models.Classification
	for _, rec := range records {
		c := rec.Classification
		if c.Subcategory == "" {
			continue
		}
		key := c.Category + "\x00" + c.Subcategory
		if seen[key] {
			continue
		}
		seen[key] = true
		pairs = append(pairs, models.Classification{Category: c.Category, Subcategory: c.Subcategory})
	}
	return pairs
}
