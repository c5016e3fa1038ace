package chat

import (
	"time"

	"github.com/google/uuid"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Session struct {
	ID        uuid.UUID
	UserID    int64
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message is an immutable turn half. Messages of a session are ordered by
// (CreatedAt, ID).
type Message struct {
	ID                  uint
	SessionID           uuid.UUID
	Role                Role
	Content             string
	ReferencedDocuments []int64
	IsError             bool
	CreatedAt           time.Time
}

type NewMessage struct {
	Role                Role
	Content             string
	ReferencedDocuments []int64
	IsError             bool
}

// Scope narrows retrieval to a subset of the user's documents. A nil scope or
// zero value means all of the user's documents.
type Scope struct {
	PropertyID  *int64
	DocumentIDs []int64
}

func (s *Scope) IsEmpty() bool {
	return s == nil || (s.PropertyID == nil && len(s.DocumentIDs) == 0)
}

type Chunk struct {
	DocumentID   int64
	DocumentName string
	ChunkIndex   int
	Text         string
	Score        float64
}

type ContextBundle struct {
	// Oldest first.
	RecentMessages []Message
	// Descending score.
	Chunks   []Chunk
	UserText string
	Query    string

	RetrievalFailed bool
	DroppedMessages int
	DroppedChunks   int
}

type Generation struct {
	Text                  string
	ReferencedDocumentIDs []int64
	Backend               string
}

type TurnRequest struct {
	SessionID uuid.UUID
	UserID    int64
	Text      string
	Scope     *Scope
}

type TurnResult struct {
	UserMessage      Message
	AssistantMessage Message

	ReferencedDocumentCount int
	ContextUsed             int
	Backend                 string

	SessionTitle string
	// Set only when this turn derived the session title.
	UpdatedTitle string
}
