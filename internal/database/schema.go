package database

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	RoleUser      string = "user"
	RoleAssistant string = "assistant"
)

type ChatSession struct {
	ID     uuid.UUID `gorm:"type:uuid;primaryKey"`
	UserID int64     `gorm:"index;not null"`
	Title  string    `gorm:"not null;default:''"`

	CreatedAt time.Time
	UpdatedAt time.Time

	Messages []ChatMessage `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE"`
}

type ChatMessage struct {
	ID        uint      `gorm:"primaryKey"`
	SessionID uuid.UUID `gorm:"type:uuid;index;not null"`
	Role      string    `gorm:"size:20;not null"`
	Content   string    `gorm:"not null"`

	// JSON array of document ids, only set on assistant messages.
	ReferencedDocuments datatypes.JSON
	IsError             bool `gorm:"default:false"`

	CreatedAt time.Time `gorm:"index"`
}

const (
	IndexPending   string = "PENDING"
	IndexQueued    string = "QUEUED"
	IndexRunning   string = "RUNNING"
	IndexCompleted string = "COMPLETED"
	IndexFailed    string = "FAILED"
)

type Document struct {
	ID               int64  `gorm:"primaryKey"`
	OwnerID          int64  `gorm:"index;not null"`
	PropertyID       *int64 `gorm:"index"`
	OriginalFilename string `gorm:"not null"`
	Title            string

	IndexStatus string `gorm:"size:20;not null;default:'PENDING'"`
	IndexError  string
	ChunkCount  int `gorm:"default:0"`
	IndexedAt   sql.NullTime

	CreatedAt time.Time

	Chunks []DocumentChunk `gorm:"foreignKey:DocumentID;constraint:OnDelete:CASCADE"`
}

type DocumentChunk struct {
	ID         uint   `gorm:"primaryKey"`
	DocumentID int64  `gorm:"uniqueIndex:idx_document_chunk;not null"`
	ChunkIndex int    `gorm:"uniqueIndex:idx_document_chunk;not null"`
	ChunkText  string `gorm:"not null"`

	// JSON array of float32, null until the chunk is embedded.
	Embedding datatypes.JSON
}
