package models

import (
	"errors"
	"strings"
)

// ErrEmptyQuestion is returned by AskRequest.Validate for a blank question.
var ErrEmptyQuestion = errors.New("question cannot be empty")

// Retrieval depth bounds for a question.
const (
	DefaultTopK = 5
	MaxTopK     = 50
)

// AskRequest is a question against one conversation.
type AskRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k,omitempty"`
}

// Validate ensures the question is non-empty and normalizes TopK.
func (q *AskRequest) Validate() error {
	q.Question = strings.TrimSpace(q.Question)
	if q.Question == "" {
		return ErrEmptyQuestion
	}
	if q.TopK <= 0 {
		q.TopK = DefaultTopK
	}
	if q.TopK > MaxTopK {
		q.TopK = MaxTopK
	}
	return nil
}

// AskResponse is the answer to an AskRequest together with the evidence used.
type AskResponse struct {
	ConversationID string   `json:"conversation_id"`
	Question       string   `json:"question"`
	Answer         string   `json:"answer"`
	Sources        []string `json:"sources"`
	Chunks         []Chunk  `json:"chunks"`
	// Degraded is set when the answer generator failed and Answer is an apology.
	Degraded bool `json:"degraded,omitempty"`
}

// FileReport is the per-file outcome of an upload.
type FileReport struct {
	Name   string `json:"name"`
	Chunks int    `json:"chunks"`
	Error  string `json:"error,omitempty"`
}

// UploadReport summarizes an upload or link ingestion into a conversation.
type UploadReport struct {
	ConversationID string       `json:"conversation_id"`
	Files          []FileReport `json:"files"`
	Added          int          `json:"added"`
}
