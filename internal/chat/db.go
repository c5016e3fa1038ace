package chat

import (
	"context"
	"docchat-backend/internal/database"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SQLSessionStore struct {
	db *gorm.DB
}

func NewSQLSessionStore(db *gorm.DB) *SQLSessionStore {
	return &SQLSessionStore{db: db}
}

func (s *SQLSessionStore) CreateSession(ctx context.Context, userID int64, title string) (*Session, error) {
	row := database.ChatSession{ID: uuid.New(), UserID: userID, Title: title}

	defer database.LockWrites(s.db)()
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, fmt.Errorf("error creating chat session: %w", err)
	}

	session := convertSession(row)
	return &session, nil
}

// ListSessions returns the user's sessions, most recently active first.
func (s *SQLSessionStore) ListSessions(ctx context.Context, userID int64) ([]Session, error) {
	var rows []database.ChatSession
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("error listing chat sessions: %w", err)
	}

	sessions := make([]Session, 0, len(rows))
	for _, row := range rows {
		sessions = append(sessions, convertSession(row))
	}
	return sessions, nil
}

func (s *SQLSessionStore) GetSession(ctx context.Context, sessionID uuid.UUID) (*Session, error) {
	var row database.ChatSession
	if err := s.db.WithContext(ctx).First(&row, "id = ?", sessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}
		return nil, fmt.Errorf("error loading chat session: %w", err)
	}

	session := convertSession(row)
	return &session, nil
}

func (s *SQLSessionStore) UpdateSessionTitle(ctx context.Context, sessionID uuid.UUID, title string) error {
	defer database.LockWrites(s.db)()

	result := s.db.WithContext(ctx).Model(&database.ChatSession{}).Where("id = ?", sessionID).Update("title", title)
	if result.Error != nil {
		return fmt.Errorf("error updating session title: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return nil
}

func (s *SQLSessionStore) SetTitleIfEmpty(ctx context.Context, sessionID uuid.UUID, title string) (bool, error) {
	defer database.LockWrites(s.db)()

	result := s.db.WithContext(ctx).
		Model(&database.ChatSession{}).
		Where("id = ? AND title = ?", sessionID, "").
		Update("title", title)
	if result.Error != nil {
		return false, fmt.Errorf("error setting session title: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (s *SQLSessionStore) DeleteSession(ctx context.Context, sessionID uuid.UUID) error {
	defer database.LockWrites(s.db)()

	return s.db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		if err := txn.Delete(&database.ChatMessage{}, "session_id = ?", sessionID).Error; err != nil {
			return fmt.Errorf("error deleting chat messages: %w", err)
		}
		result := txn.Delete(&database.ChatSession{}, "id = ?", sessionID)
		if result.Error != nil {
			return fmt.Errorf("error deleting chat session: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}
		return nil
	})
}

// ListMessages returns the full history of a session, oldest first.
func (s *SQLSessionStore) ListMessages(ctx context.Context, sessionID uuid.UUID) ([]Message, error) {
	var rows []database.ChatMessage
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("error listing chat messages: %w", err)
	}
	return convertMessages(rows)
}

func (s *SQLSessionStore) ListRecentMessages(ctx context.Context, sessionID uuid.UUID, limit int) ([]Message, error) {
	if limit <= 0 {
		return nil, nil
	}

	var rows []database.ChatMessage
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("error listing recent chat messages: %w", err)
	}

	slices.Reverse(rows)
	return convertMessages(rows)
}

func (s *SQLSessionStore) AppendMessage(ctx context.Context, sessionID uuid.UUID, msg NewMessage) (*Message, error) {
	refs, err := database.EncodeDocumentIDs(msg.ReferencedDocuments)
	if err != nil {
		return nil, err
	}

	row := database.ChatMessage{
		SessionID:           sessionID,
		Role:                string(msg.Role),
		Content:             msg.Content,
		ReferencedDocuments: refs,
		IsError:             msg.IsError,
		CreatedAt:           time.Now().UTC(),
	}

	defer database.LockWrites(s.db)()

	err = s.db.WithContext(ctx).Transaction(func(txn *gorm.DB) error {
		if err := txn.Create(&row).Error; err != nil {
			return fmt.Errorf("error saving chat message: %w", err)
		}
		if err := txn.Model(&database.ChatSession{}).Where("id = ?", sessionID).Update("updated_at", row.CreatedAt).Error; err != nil {
			return fmt.Errorf("error updating session timestamp: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return convertMessage(row)
}

func convertSession(row database.ChatSession) Session {
	return Session{
		ID:        row.ID,
		UserID:    row.UserID,
		Title:     row.Title,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}

func convertMessage(row database.ChatMessage) (*Message, error) {
	refs, err := database.DecodeDocumentIDs(row.ReferencedDocuments)
	if err != nil {
		return nil, err
	}
	return &Message{
		ID:                  row.ID,
		SessionID:           row.SessionID,
		Role:                Role(row.Role),
		Content:             row.Content,
		ReferencedDocuments: refs,
		IsError:             row.IsError,
		CreatedAt:           row.CreatedAt,
	}, nil
}

func convertMessages(rows []database.ChatMessage) ([]Message, error) {
	messages := make([]Message, 0, len(rows))
	for _, row := range rows {
		msg, err := convertMessage(row)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *msg)
	}
	return messages, nil
}
