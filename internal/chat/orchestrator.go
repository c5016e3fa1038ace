package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Content of the assistant message persisted when no backend could answer.
const GenerationFailedNotice = "Sorry, I couldn't generate a response right now. Please try again in a moment."

type Orchestrator struct {
	sessions  SessionStore
	assembler *Assembler
	generator Generator
}

func NewOrchestrator(sessions SessionStore, assembler *Assembler, generator Generator) *Orchestrator {
	return &Orchestrator{sessions: sessions, assembler: assembler, generator: generator}
}

// HandleMessage runs one chat turn. The user message is persisted before any
// generation is attempted and every persisted user message is followed by
// exactly one assistant message, which is error marked when generation fails.
// In that case the result is returned together with an error wrapping
// ErrGenerationFailed.
func (o *Orchestrator) HandleMessage(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, fmt.Errorf("%w: message content cannot be empty", ErrInvalidInput)
	}

	session, err := o.sessions.GetSession(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}
	if session.UserID != req.UserID {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, req.SessionID)
	}

	// Once the user message is written the turn finishes even if the caller goes away.
	ctx = context.WithoutCancel(ctx)
	start := time.Now()

	userMsg, err := o.sessions.AppendMessage(ctx, session.ID, NewMessage{Role: RoleUser, Content: text})
	if err != nil {
		return nil, fmt.Errorf("error saving user message: %w", err)
	}

	result := &TurnResult{UserMessage: *userMsg, SessionTitle: session.Title}

	bundle, err := o.assembler.Build(ctx, BuildRequest{
		SessionID:        session.ID,
		UserID:           req.UserID,
		UserText:         text,
		Scope:            req.Scope,
		ExcludeMessageID: userMsg.ID,
	})
	if err != nil {
		if bundle == nil {
			return o.fail(ctx, result, fmt.Errorf("%w: %w", ErrGenerationFailed, err))
		}
		slog.Warn("continuing chat turn without document context", "session_id", session.ID, "error", err)
	}
	result.ContextUsed = len(bundle.Chunks)

	generation, err := o.generator.Generate(ctx, bundle)
	if err != nil {
		if !errors.Is(err, ErrGenerationFailed) {
			err = fmt.Errorf("%w: %w", ErrGenerationFailed, err)
		}
		return o.fail(ctx, result, err)
	}

	assistantMsg, err := o.sessions.AppendMessage(ctx, session.ID, NewMessage{
		Role:                RoleAssistant,
		Content:             generation.Text,
		ReferencedDocuments: generation.ReferencedDocumentIDs,
	})
	if err != nil {
		return result, fmt.Errorf("error saving assistant message: %w", err)
	}

	result.AssistantMessage = *assistantMsg
	result.ReferencedDocumentCount = countDistinct(generation.ReferencedDocumentIDs)
	result.Backend = generation.Backend

	if title := o.deriveTitle(ctx, session, text); title != "" {
		result.UpdatedTitle = title
		result.SessionTitle = title
	}

	slog.Info("chat turn completed", "session_id", session.ID, "backend", generation.Backend, "chunks", result.ContextUsed, "referenced_documents", result.ReferencedDocumentCount, "duration", time.Since(start))

	return result, nil
}

func (o *Orchestrator) fail(ctx context.Context, result *TurnResult, cause error) (*TurnResult, error) {
	slog.Error("chat turn failed", "session_id", result.UserMessage.SessionID, "error", cause)

	errorMsg, err := o.sessions.AppendMessage(ctx, result.UserMessage.SessionID, NewMessage{
		Role:    RoleAssistant,
		Content: GenerationFailedNotice,
		IsError: true,
	})
	if err != nil {
		return result, errors.Join(cause, fmt.Errorf("error saving failed turn marker: %w", err))
	}

	result.AssistantMessage = *errorMsg
	return result, cause
}

// deriveTitle titles a still untitled session after its first completed turn.
// The store applies the title only while it is empty, so concurrent first
// turns and explicit renames never get overwritten.
func (o *Orchestrator) deriveTitle(ctx context.Context, session *Session, text string) string {
	if session.Title != "" {
		return ""
	}

	title := DeriveTitle(text)
	applied, err := o.sessions.SetTitleIfEmpty(ctx, session.ID, title)
	if err != nil {
		slog.Error("error deriving session title", "session_id", session.ID, "error", err)
		return ""
	}
	if !applied {
		return ""
	}
	return title
}

func countDistinct(ids []int64) int {
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	return len(seen)
}
