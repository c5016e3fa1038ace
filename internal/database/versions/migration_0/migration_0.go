package migration_0

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
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
	ID                  uint      `gorm:"primaryKey"`
	SessionID           uuid.UUID `gorm:"type:uuid;index;not null"`
	Role                string    `gorm:"size:20;not null"`
	Content             string    `gorm:"not null"`
	ReferencedDocuments datatypes.JSON
	CreatedAt           time.Time `gorm:"index"`
}

type Document struct {
	ID               int64  `gorm:"primaryKey"`
	OwnerID          int64  `gorm:"index;not null"`
	PropertyID       *int64 `gorm:"index"`
	OriginalFilename string `gorm:"not null"`
	Title            string
	CreatedAt        time.Time

	Chunks []DocumentChunk `gorm:"foreignKey:DocumentID;constraint:OnDelete:CASCADE"`
}

type DocumentChunk struct {
	ID         uint   `gorm:"primaryKey"`
	DocumentID int64  `gorm:"uniqueIndex:idx_document_chunk;not null"`
	ChunkIndex int    `gorm:"uniqueIndex:idx_document_chunk;not null"`
	ChunkText  string `gorm:"not null"`
	Embedding  datatypes.JSON
}

func Migration(db *gorm.DB) error {
	if err := db.AutoMigrate(&ChatSession{}, &ChatMessage{}, &Document{}, &DocumentChunk{}); err != nil {
		return fmt.Errorf("Migration0 failed: %w", err)
	}
	return nil
}
