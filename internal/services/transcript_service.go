package services

import (
	"strings"
	"time"

	"taxotree/internal/models"
)

// TranscriptService turns raw transcripts into classifier input.
type TranscriptService struct{}

// NewTranscriptService creates a transcript service.
func NewTranscriptService() *TranscriptService {
	return &TranscriptService{}
}

// ExtractText flattens a transcript into "Sender: text" lines, one message
// per line, skipping empty messages.
func (s *TranscriptService) ExtractText(transcript *models.Transcript) string {
	var b strings.Builder
	for _, msg := range transcript.Messages {
		text := strings.TrimSpace(msg.Text)
		if text == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(msg.Sender)
		b.WriteString(": ")
		b.WriteString(text)
	}
	return b.String()
}

// BuildMetadata derives the source metadata stored alongside a
// classification from its transcript.
func (s *TranscriptService) BuildMetadata(transcript *models.Transcript, batch string) models.SourceMetadata {
	timestamp := transcript.CreatedAt
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}
	return models.SourceMetadata{
		ConversationID: transcript.ConversationID,
		ClientID:       transcript.ClientID,
		ClientName:     transcript.ClientName,
		Batch:          batch,
		Timestamp:      timestamp,
	}
}
