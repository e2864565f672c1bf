package services

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"taxotree/internal/models"

	gocache "github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"
)

// defaultClassifyPrompt asks the model for the three-level classification in
// a strict JSON shape. Use cases can override it via configuration.
const defaultClassifyPrompt = `Classify the following conversation into a category and subcategory.

Conversation:
%s

Provide the classification as JSON in exactly this format:
{
  "category": "[MAIN_CATEGORY]",
  "subcategory": "[SUBCATEGORY]",
  "detail": "[SPECIFIC_DETAIL]"
}

Where:
- MAIN_CATEGORY: the general topic (e.g. Products, Services, Support)
- SUBCATEGORY: a more specific classification within the category
- DETAIL: additional context or specifics

Make sure to:
1. Use consistent categories
2. Be specific in the subcategories
3. Include relevant detail
4. Keep the exact JSON format`

// ClassifierConfig configures the OpenAI-compatible completion endpoint the
// classifier talks to.
type ClassifierConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	// Prompt overrides defaultClassifyPrompt; must contain one %s verb for
	// the conversation text.
	Prompt  string
	Timeout time.Duration
}

// ClassifierService submits conversation text to a chat-completions endpoint
// and parses the model's JSON answer. Identical text within the cache TTL is
// served from memory instead of re-spending tokens.
type ClassifierService struct {
	config     ClassifierConfig
	httpClient *http.Client
	cache      *gocache.Cache
	logger     *logrus.Logger
}

// NewClassifierService creates a classifier client.
func NewClassifierService(config ClassifierConfig) *ClassifierService {
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	if config.Prompt == "" {
		config.Prompt = defaultClassifyPrompt
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	return &ClassifierService{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		cache:      gocache.New(15*time.Minute, 5*time.Minute),
		logger:     logger,
	}
}

// Classify returns the structured classification for one conversation.
// Every failure mode (transport, non-2xx, malformed JSON, missing fields)
// surfaces as *ClassificationError.
func (s *ClassifierService) Classify(ctx context.Context, text string) (*models.Classification, *models.ClassificationStats, error) {
	start := time.Now()

	cacheKey := s.cacheKey(text)
	if cached, found := s.cache.Get(cacheKey); found {
		classification := cached.(models.Classification)
		s.logger.WithFields(logrus.Fields{
			"category":    classification.Category,
			"subcategory": classification.Subcategory,
			"cached":      true,
		}).Debug("classification served from cache")
		return &classification, &models.ClassificationStats{
			ProcessingMs: time.Since(start).Milliseconds(),
			TextLength:   len(text),
		}, nil
	}

	content, tokens, err := s.complete(ctx, fmt.Sprintf(s.config.Prompt, text))
	if err != nil {
		return nil, nil, err
	}

	classification, err := parseClassification(content)
	if err != nil {
		return nil, nil, err
	}

	s.cache.Set(cacheKey, *classification, gocache.DefaultExpiration)

	stats := &models.ClassificationStats{
		ProcessingMs: time.Since(start).Milliseconds(),
		TextLength:   len(text),
		TotalTokens:  tokens,
	}

	s.logger.WithFields(logrus.Fields{
		"category":      classification.Category,
		"subcategory":   classification.Subcategory,
		"processing_ms": stats.ProcessingMs,
		"tokens":        tokens,
	}).Info("conversation classified")

	return classification, stats, nil
}

// complete performs one chat-completions round trip and returns the
// assistant message content plus total token usage.
func (s *ClassifierService) complete(ctx context.Context, prompt string) (string, int, error) {
	requestBody := map[string]interface{}{
		"model": s.config.Model,
		"messages": []map[string]string{
			{"role": "user", "content": prompt},
		},
		"temperature": 0.2,
	}

	bodyBytes, err := json.Marshal(requestBody)
	if err != nil {
		return "", 0, &ClassificationError{Message: "failed to marshal request", Cause: err}
	}

	endpoint := strings.TrimSuffix(s.config.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, "POST", endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", 0, &ClassificationError{Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.config.APIKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", 0, &ClassificationError{Message: "completion request failed", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		s.logger.WithFields(logrus.Fields{
			"status": resp.StatusCode,
			"body":   truncate(string(body), 200),
		}).Error("completion endpoint returned error")
		return "", 0, &ClassificationError{
			Message: fmt.Sprintf("completion endpoint returned status %d", resp.StatusCode),
		}
	}

	var result struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			TotalTokens int `json:"total_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", 0, &ClassificationError{Message: "failed to parse completion response", Cause: err}
	}
	if len(result.Choices) == 0 {
		return "", 0, &ClassificationError{Message: "completion response has no choices"}
	}

	return result.Choices[0].Message.Content, result.Usage.TotalTokens, nil
}

func (s *ClassifierService) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(s.config.Model + "\x00" + text))
	return hex.EncodeToString(sum[:])
}

// parseClassification extracts the JSON object from the model's answer and
// validates the required fields.
func parseClassification(content string) (*models.Classification, error) {
	block, ok := extractJSONBlock(content)
	if !ok {
		return nil, &ClassificationError{Message: "no JSON object found in model response"}
	}

	var classification models.Classification
	if err := json.Unmarshal([]byte(block), &classification); err != nil {
		return nil, &ClassificationError{Message: "model response is not valid JSON", Cause: err}
	}

	if classification.Category == "" || classification.Subcategory == "" {
		return nil, &ClassificationError{Message: "model response is missing category or subcategory"}
	}

	return &classification, nil
}

// extractJSONBlock returns the outermost {...} span of s. Models often wrap
// their JSON in prose or code fences.
func extractJSONBlock(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end == -1 || end < start {
		return "", false
	}
	return s[start : end+1], true
}

// truncate shortens a string for log output.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
