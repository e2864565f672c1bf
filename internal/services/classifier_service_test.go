package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func completionResponse(content string, tokens int) map[string]interface{} {
	return map[string]interface{}{
		"choices": []map[string]interface{}{
			{"message": map[string]string{"role": "assistant", "content": content}},
		},
		"usage": map[string]int{"total_tokens": tokens},
	}
}

func newTestClassifier(t *testing.T, handler http.HandlerFunc) (*ClassifierService, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	svc := NewClassifierService(ClassifierConfig{
		BaseURL: server.URL,
		APIKey:  "test-key",
		Model:   "test-model",
	})
	return svc, server
}

func TestClassifyParsesModelResponse(t *testing.T) {
	svc, _ := newTestClassifier(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("unexpected auth header %q", got)
		}
		content := "Here is the classification:\n{\"category\": \"Products\", \"subcategory\": \"Cards\", \"detail\": \"limit increase\"}\nDone."
		json.NewEncoder(w).Encode(completionResponse(content, 42))
	})

	classification, stats, err := svc.Classify(context.Background(), "customer asks about card limit")
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if classification.Category != "Products" || classification.Subcategory != "Cards" || classification.Detail != "limit increase" {
		t.Errorf("unexpected classification %+v", classification)
	}
	if stats.TotalTokens != 42 {
		t.Errorf("TotalTokens = %d, want 42", stats.TotalTokens)
	}
	if stats.TextLength != len("customer asks about card limit") {
		t.Errorf("TextLength = %d", stats.TextLength)
	}
}

func TestClassifyCachesIdenticalText(t *testing.T) {
	var calls int32
	svc, _ := newTestClassifier(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		json.NewEncoder(w).Encode(completionResponse(`{"category":"A","subcategory":"B","detail":"c"}`, 10))
	})

	for i := 0; i < 3; i++ {
		if _, _, err := svc.Classify(context.Background(), "same text"); err != nil {
			t.Fatalf("Classify call %d: %v", i, err)
		}
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Errorf("endpoint called %d times, want 1", n)
	}
}

func TestClassifyMissingRequiredFields(t *testing.T) {
	svc, _ := newTestClassifier(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(completionResponse(`{"category":"A","detail":"no subcategory"}`, 5))
	})

	_, _, err := svc.Classify(context.Background(), "some text")
	var cerr *ClassificationError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *ClassificationError, got %v", err)
	}
}

func TestClassifyEndpointError(t *testing.T) {
	svc, _ := newTestClassifier(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	})

	_, _, err := svc.Classify(context.Background(), "some text")
	var cerr *ClassificationError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected *ClassificationError, got %v", err)
	}
}

func TestExtractJSONBlock(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		ok    bool
	}{
		{"bare object", `{"a":1}`, `{"a":1}`, true},
		{"wrapped in prose", "Sure:\n{\"a\":1}\nthanks", `{"a":1}`, true},
		{"code fence", "```json\n{\"a\":1}\n```", `{"a":1}`, true},
		{"no object", "no json here", "", false},
		{"reversed braces", "} {", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := extractJSONBlock(tt.input)
			if ok != tt.ok || got != tt.want {
				t.Errorf("extractJSONBlock(%q) = (%q, %v), want (%q, %v)", tt.input, got, ok, tt.want, tt.ok)
			}
		})
	}
}
