package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"docchat-backend/internal/chat"
	"docchat-backend/pkg/api"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type ChatService struct {
	sessions     *chat.SQLSessionStore
	orchestrator *chat.Orchestrator
}

func NewChatService(sessions *chat.SQLSessionStore, orchestrator *chat.Orchestrator) *ChatService {
	return &ChatService{sessions: sessions, orchestrator: orchestrator}
}

func (s *ChatService) AddRoutes(r chi.Router) {
	r.Route("/chat", func(r chi.Router) {
		r.Get("/sessions", RestHandler(s.GetSessions))
		r.Post("/sessions", RestHandler(s.CreateSession))
		r.Get("/sessions/{session_id}", RestHandler(s.GetSession))
		r.Delete("/sessions/{session_id}", RestHandler(s.DeleteSession))
		r.Post("/sessions/{session_id}/rename", RestHandler(s.RenameSession))
		r.Get("/sessions/{session_id}/messages", RestHandler(s.GetMessages))
		r.Post("/sessions/{session_id}/messages", RestHandler(s.SendMessage))
	})
}

func errorBody(code string, err error) api.ErrorResponse {
	return api.ErrorResponse{Code: code, Message: err.Error()}
}

var errSessionNotFound = CodedErrorWithBody(http.StatusNotFound, chat.ErrSessionNotFound, errorBody("session_not_found", chat.ErrSessionNotFound))

// Sessions of other users are reported as missing.
func (s *ChatService) ownedSession(r *http.Request) (*chat.Session, error) {
	userID, err := RequestUserID(r)
	if err != nil {
		return nil, err
	}

	sessionID, err := URLParamUUID(r, "session_id")
	if err != nil {
		return nil, err
	}

	session, err := s.sessions.GetSession(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, chat.ErrSessionNotFound) {
			return nil, errSessionNotFound
		}
		slog.Error("error loading chat session", "session_id", sessionID, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving chat session")
	}

	if session.UserID != userID {
		return nil, errSessionNotFound
	}

	return session, nil
}

func (s *ChatService) GetSessions(r *http.Request) (any, error) {
	userID, err := RequestUserID(r)
	if err != nil {
		return nil, err
	}

	sessions, err := s.sessions.ListSessions(r.Context(), userID)
	if err != nil {
		slog.Error("error listing chat sessions", "user_id", userID, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving chat sessions")
	}

	return api.GetSessionsResponse{Sessions: convertSessions(sessions)}, nil
}

func (s *ChatService) CreateSession(r *http.Request) (any, error) {
	userID, err := RequestUserID(r)
	if err != nil {
		return nil, err
	}

	req, err := ParseRequest[api.CreateSessionRequest](r)
	if err != nil {
		return nil, err
	}

	session, err := s.sessions.CreateSession(r.Context(), userID, strings.TrimSpace(req.Title))
	if err != nil {
		slog.Error("error creating chat session", "user_id", userID, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error creating chat session")
	}

	return convertSession(*session), nil
}

func (s *ChatService) GetSession(r *http.Request) (any, error) {
	session, err := s.ownedSession(r)
	if err != nil {
		return nil, err
	}

	return convertSession(*session), nil
}

func (s *ChatService) DeleteSession(r *http.Request) (any, error) {
	session, err := s.ownedSession(r)
	if err != nil {
		return nil, err
	}

	if err := s.sessions.DeleteSession(r.Context(), session.ID); err != nil {
		slog.Error("error deleting chat session", "session_id", session.ID, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error deleting chat session")
	}

	return nil, nil
}

func (s *ChatService) RenameSession(r *http.Request) (any, error) {
	session, err := s.ownedSession(r)
	if err != nil {
		return nil, err
	}

	req, err := ParseRequest[api.RenameSessionRequest](r)
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, CodedErrorWithBody(http.StatusBadRequest, chat.ErrInvalidInput, api.ErrorResponse{Code: "invalid_input", Message: "title cannot be empty"})
	}

	if err := s.sessions.UpdateSessionTitle(r.Context(), session.ID, title); err != nil {
		if errors.Is(err, chat.ErrSessionNotFound) {
			return nil, errSessionNotFound
		}
		slog.Error("error renaming chat session", "session_id", session.ID, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error renaming chat session")
	}

	session.Title = title
	return convertSession(*session), nil
}

func (s *ChatService) GetMessages(r *http.Request) (any, error) {
	session, err := s.ownedSession(r)
	if err != nil {
		return nil, err
	}

	params, err := ParseRequestQueryParams[api.GetMessagesParams](r)
	if err != nil {
		return nil, err
	}

	var messages []chat.Message
	if params.Limit > 0 {
		messages, err = s.sessions.ListRecentMessages(r.Context(), session.ID, params.Limit)
	} else {
		messages, err = s.sessions.ListMessages(r.Context(), session.ID)
	}
	if err != nil {
		slog.Error("error listing chat messages", "session_id", session.ID, "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error retrieving chat messages")
	}

	return api.GetMessagesResponse{Messages: convertMessages(messages)}, nil
}

func (s *ChatService) SendMessage(r *http.Request) (any, error) {
	userID, err := RequestUserID(r)
	if err != nil {
		return nil, err
	}

	sessionID, err := URLParamUUID(r, "session_id")
	if err != nil {
		return nil, err
	}

	req, err := ParseRequest[api.SendMessageRequest](r)
	if err != nil {
		return nil, err
	}

	result, err := s.orchestrator.HandleMessage(r.Context(), chat.TurnRequest{
		SessionID: sessionID,
		UserID:    userID,
		Text:      req.Content,
		Scope:     &chat.Scope{PropertyID: req.PropertyID, DocumentIDs: req.DocumentIDs},
	})
	if err != nil {
		return nil, turnError(sessionID, result, err)
	}

	return api.SendMessageResponse{
		UserMessage:             convertMessage(result.UserMessage),
		AssistantMessage:        convertMessage(result.AssistantMessage),
		ReferencedDocumentCount: result.ReferencedDocumentCount,
		ContextUsed:             result.ContextUsed,
		SessionTitle:            result.SessionTitle,
		UpdatedTitle:            result.UpdatedTitle,
	}, nil
}

func turnError(sessionID uuid.UUID, result *chat.TurnResult, err error) error {
	switch {
	case errors.Is(err, chat.ErrInvalidInput):
		return CodedErrorWithBody(http.StatusBadRequest, err, errorBody("invalid_input", err))

	case errors.Is(err, chat.ErrSessionNotFound):
		return errSessionNotFound

	case errors.Is(err, chat.ErrGenerationFailed):
		body := errorBody("generation_failed", chat.ErrGenerationFailed)
		if result != nil {
			userMsg := convertMessage(result.UserMessage)
			body.UserMessage = &userMsg
			if result.AssistantMessage.ID != 0 {
				assistantMsg := convertMessage(result.AssistantMessage)
				body.AssistantMessage = &assistantMsg
			}
		}
		return CodedErrorWithBody(http.StatusBadGateway, err, body)

	default:
		slog.Error("error handling chat message", "session_id", sessionID, "error", err)
		return CodedErrorf(http.StatusInternalServerError, "error handling chat message")
	}
}
