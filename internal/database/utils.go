package database

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
)

func UpdateDocumentIndexStatus(ctx context.Context, txn *gorm.DB, documentID int64, status string) error {
	updates := map[string]any{"index_status": status}
	if status == IndexRunning || status == IndexQueued {
		updates["index_error"] = ""
	}

	unlock := LockWrites(txn)
	defer unlock()

	if err := txn.WithContext(ctx).Model(&Document{ID: documentID}).Updates(updates).Error; err != nil {
		slog.Error("error updating document index status", "document_id", documentID, "status", status, "error", err)
		return err
	}
	return nil
}

func CompleteDocumentIndex(ctx context.Context, txn *gorm.DB, documentID int64, chunkCount int) error {
	updates := map[string]any{
		"index_status": IndexCompleted,
		"index_error":  "",
		"chunk_count":  chunkCount,
		"indexed_at":   time.Now().UTC(),
	}

	unlock := LockWrites(txn)
	defer unlock()

	if err := txn.WithContext(ctx).Model(&Document{ID: documentID}).Updates(updates).Error; err != nil {
		slog.Error("error completing document index", "document_id", documentID, "error", err)
		return err
	}
	return nil
}

func FailDocumentIndex(ctx context.Context, txn *gorm.DB, documentID int64, indexErr error) {
	updates := map[string]any{
		"index_status": IndexFailed,
		"index_error":  indexErr.Error(),
	}

	unlock := LockWrites(txn)
	defer unlock()

	if err := txn.WithContext(ctx).Model(&Document{ID: documentID}).Updates(updates).Error; err != nil {
		slog.Error("error saving document index failure", "document_id", documentID, "error", err)
	}
}

func EncodeDocumentIDs(ids []int64) ([]byte, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return nil, fmt.Errorf("could not marshal document ids: %w", err)
	}
	return data, nil
}

func DecodeDocumentIDs(data []byte) ([]int64, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}
	var ids []int64
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("could not unmarshal document ids: %w", err)
	}
	return ids, nil
}
