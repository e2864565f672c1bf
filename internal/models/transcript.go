package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TranscriptMessage is a single turn in a raw conversation transcript.
type TranscriptMessage struct {
	Sender string `bson:"sender" json:"sender"`
	Text   string `bson:"text" json:"text"`
}

// Transcript is a raw conversation document as ingested from the channel
// integration, before classification.
type Transcript struct {
	ID             primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	ConversationID string              `bson:"conversationId" json:"conversation_id"`
	ClientID       string              `bson:"clientId,omitempty" json:"client_id,omitempty"`
	ClientName     string              `bson:"clientName,omitempty" json:"client_name,omitempty"`
	Batch          string              `bson:"batch,omitempty" json:"batch,omitempty"`
	Messages       []TranscriptMessage `bson:"messages" json:"messages"`
	CreatedAt      time.Time           `bson:"createdAt" json:"created_at"`
}
