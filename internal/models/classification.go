package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SourceMetadata identifies where a classified conversation came from.
// It is carried opaquely through aggregation and surfaced as subcategory exemplars.
type SourceMetadata struct {
	ConversationID string    `bson:"conversationId,omitempty" json:"conversation_id,omitempty"`
	ClientID       string    `bson:"clientId,omitempty" json:"client_id,omitempty"`
	ClientName     string    `bson:"clientName,omitempty" json:"client_name,omitempty"`
	Batch          string    `bson:"batch,omitempty" json:"batch,omitempty"`
	Timestamp      time.Time `bson:"timestamp,omitempty" json:"timestamp,omitempty"`
}

// Classification is the structured answer the classifier model returns for one conversation.
type Classification struct {
	Category    string `bson:"category" json:"category"`
	Subcategory string `bson:"subcategory" json:"subcategory"`
	Detail      string `bson:"detail,omitempty" json:"detail,omitempty"`
}

// ClassificationStats records how much work a single classification took.
type ClassificationStats struct {
	ProcessingMs int64 `bson:"processingMs" json:"processing_ms"`
	TextLength   int   `bson:"textLength" json:"text_length"`
	TotalTokens  int   `bson:"totalTokens" json:"total_tokens"`
}

// ClassificationRecord is one classified conversation as persisted in the
// classifications collection. Immutable once ingested.
type ClassificationRecord struct {
	ID             primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	TenantID       string              `bson:"tenantId" json:"tenant_id"`
	UseCaseID      string              `bson:"useCaseId" json:"use_case_id"`
	Classification Classification      `bson:"classification" json:"classification"`
	Metadata       SourceMetadata      `bson:"metadata" json:"metadata"`
	Stats          ClassificationStats `bson:"stats,omitempty" json:"stats,omitempty"`
	CreatedAt      time.Time           `bson:"createdAt" json:"created_at"`
}

// ClassificationFilters narrows which records feed a hierarchy run.
// Date selects a single UTC day; Batch matches the ingestion batch tag.
type ClassificationFilters struct {
	Date  string `bson:"date,omitempty" json:"date,omitempty"`
	Batch string `bson:"batch,omitempty" json:"batch,omitempty"`
}
