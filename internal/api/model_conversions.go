package api

import (
	"docchat-backend/internal/chat"
	"docchat-backend/internal/database"
	"docchat-backend/pkg/api"
)

func convertSession(s chat.Session) api.ChatSession {
	return api.ChatSession{
		ID:        s.ID,
		Title:     s.Title,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

func convertSessions(sessions []chat.Session) []api.ChatSession {
	out := make([]api.ChatSession, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, convertSession(s))
	}
	return out
}

func convertMessage(m chat.Message) api.ChatMessage {
	return api.ChatMessage{
		ID:                  m.ID,
		SessionID:           m.SessionID,
		Role:                string(m.Role),
		Content:             m.Content,
		ReferencedDocuments: m.ReferencedDocuments,
		IsError:             m.IsError,
		CreatedAt:           m.CreatedAt,
	}
}

func convertMessages(messages []chat.Message) []api.ChatMessage {
	out := make([]api.ChatMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, convertMessage(m))
	}
	return out
}

func convertDocument(d database.Document) api.Document {
	doc := api.Document{
		ID:               d.ID,
		OriginalFilename: d.OriginalFilename,
		Title:            d.Title,
		PropertyID:       d.PropertyID,
		IndexStatus:      d.IndexStatus,
		IndexError:       d.IndexError,
		ChunkCount:       d.ChunkCount,
		CreatedAt:        d.CreatedAt,
	}
	if d.IndexedAt.Valid {
		indexedAt := d.IndexedAt.Time
		doc.IndexedAt = &indexedAt
	}
	return doc
}
