package migration_1

import (
	"database/sql"
	"fmt"

	"gorm.io/gorm"
)

// Adds index tracking to documents and the error marker to chat messages.

type Document struct {
	IndexStatus string `gorm:"size:20;not null;default:'PENDING'"`
	IndexError  string
	ChunkCount  int `gorm:"default:0"`
	IndexedAt   sql.NullTime
}

type ChatMessage struct {
	IsError bool `gorm:"default:false"`
}

var documentColumns = []string{"IndexStatus", "IndexError", "ChunkCount", "IndexedAt"}

func Migration(db *gorm.DB) error {
	migrator := db.Migrator()

	for _, column := range documentColumns {
		if !migrator.HasColumn(&Document{}, column) {
			if err := migrator.AddColumn(&Document{}, column); err != nil {
				return fmt.Errorf("Migration1 failed to add documents.%s: %w", column, err)
			}
		}
	}

	if !migrator.HasColumn(&ChatMessage{}, "IsError") {
		if err := migrator.AddColumn(&ChatMessage{}, "IsError"); err != nil {
			return fmt.Errorf("Migration1 failed to add chat_messages.is_error: %w", err)
		}
	}

	// Documents that already have chunks were indexed before status tracking existed.
	if err := db.Exec(
		"UPDATE documents SET index_status = ? WHERE id IN (SELECT DISTINCT document_id FROM document_chunks)", "COMPLETED",
	).Error; err != nil {
		return fmt.Errorf("Migration1 failed to backfill index status: %w", err)
	}

	return nil
}

func Rollback(db *gorm.DB) error {
	migrator := db.Migrator()

	for _, column := range documentColumns {
		if err := migrator.DropColumn(&Document{}, column); err != nil {
			return fmt.Errorf("Rollback1 failed to drop documents.%s: %w", column, err)
		}
	}

	if err := migrator.DropColumn(&ChatMessage{}, "IsError"); err != nil {
		return fmt.Errorf("Rollback1 failed to drop chat_messages.is_error: %w", err)
	}

	return nil
}
