package api

import (
	"time"

	"github.com/google/uuid"
)

type CreateSessionRequest struct {
	Title string `json:"title"`
}

type ChatSession struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type GetSessionsResponse struct {
	Sessions []ChatSession `json:"sessions"`
}

type RenameSessionRequest struct {
	Title string `json:"title"`
}

type ChatMessage struct {
	ID                  uint      `json:"id"`
	SessionID           uuid.UUID `json:"session_id"`
	Role                string    `json:"role"`
	Content             string    `json:"content"`
	ReferencedDocuments []int64   `json:"referenced_documents,omitempty"`
	IsError             bool      `json:"is_error"`
	CreatedAt           time.Time `json:"created_at"`
}

type GetMessagesParams struct {
	Limit int `schema:"limit"`
}

type GetMessagesResponse struct {
	Messages []ChatMessage `json:"messages"`
}

type SendMessageRequest struct {
	Content     string  `json:"content"`
	PropertyID  *int64  `json:"property_id,omitempty"`
	DocumentIDs []int64 `json:"document_ids,omitempty"`
}

type SendMessageResponse struct {
	UserMessage      ChatMessage `json:"user_message"`
	AssistantMessage ChatMessage `json:"assistant_message"`

	ReferencedDocumentCount int    `json:"referenced_document_count"`
	ContextUsed             int    `json:"context_used"`
	SessionTitle            string `json:"session_title,omitempty"`
	// Set only when this turn named the session.
	UpdatedTitle string `json:"updated_title,omitempty"`
}

// ErrorResponse is the body of failed requests. Failed chat turns also carry
// the messages that were persisted.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`

	UserMessage      *ChatMessage `json:"user_message,omitempty"`
	AssistantMessage *ChatMessage `json:"assistant_message,omitempty"`
}
