package chat

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrInvalidInput         = errors.New("invalid input")
	ErrSessionNotFound      = errors.New("chat session not found")
	ErrRetrievalUnavailable = errors.New("document retrieval unavailable")
	ErrGenerationFailed     = errors.New("response generation failed")
)

type SessionStore interface {
	// Returns an error wrapping ErrSessionNotFound for unknown ids.
	GetSession(ctx context.Context, sessionID uuid.UUID) (*Session, error)

	// Returns at most limit of the newest messages, oldest first.
	ListRecentMessages(ctx context.Context, sessionID uuid.UUID, limit int) ([]Message, error)

	AppendMessage(ctx context.Context, sessionID uuid.UUID, msg NewMessage) (*Message, error)

	UpdateSessionTitle(ctx context.Context, sessionID uuid.UUID, title string) error

	// Sets the title only while it is still empty and reports whether it was applied.
	SetTitleIfEmpty(ctx context.Context, sessionID uuid.UUID, title string) (bool, error)
}

type DocumentStore interface {
	// Returns chunks of documents owned by userID, filtered by scope, in
	// descending score order.
	SimilaritySearch(ctx context.Context, userID int64, query string, scope *Scope, limit int) ([]Chunk, error)
}

type Generator interface {
	Name() string

	Generate(ctx context.Context, bundle *ContextBundle) (*Generation, error)
}

type TokenCounter interface {
	Count(text string) int
}
