package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

type AssemblerOptions struct {
	// Messages read from the session store.
	HistoryWindow int
	// Messages kept in the bundle and in the contextual query.
	ContextWindow  int
	RetrievalLimit int

	RetrievalTimeout time.Duration
	// Zero disables the token budget.
	MaxPromptTokens int
}

func DefaultAssemblerOptions() AssemblerOptions {
	return AssemblerOptions{
		HistoryWindow:    10,
		ContextWindow:    5,
		RetrievalLimit:   5,
		RetrievalTimeout: 10 * time.Second,
		MaxPromptTokens:  3000,
	}
}

type Assembler struct {
	sessions  SessionStore
	documents DocumentStore
	counter   TokenCounter
	opts      AssemblerOptions
}

func NewAssembler(sessions SessionStore, documents DocumentStore, counter TokenCounter, opts AssemblerOptions) *Assembler {
	return &Assembler{sessions: sessions, documents: documents, counter: counter, opts: opts}
}

type BuildRequest struct {
	SessionID uuid.UUID
	UserID    int64
	UserText  string
	Scope     *Scope

	// The just persisted user message, left out of the history.
	ExcludeMessageID uint
}

// Build assembles the context for one turn. When the document store fails the
// bundle is still returned, without chunks, together with an error wrapping
// ErrRetrievalUnavailable. Any other error means no bundle.
func (a *Assembler) Build(ctx context.Context, req BuildRequest) (*ContextBundle, error) {
	history, err := a.history(ctx, req.SessionID, req.ExcludeMessageID)
	if err != nil {
		return nil, err
	}

	recent := history
	if len(recent) > a.opts.ContextWindow {
		recent = recent[len(recent)-a.opts.ContextWindow:]
	}

	bundle := &ContextBundle{
		RecentMessages: recent,
		UserText:       req.UserText,
		Query:          ContextualQuery(recent, req.UserText),
	}

	var retrievalErr error
	chunks, err := a.retrieve(ctx, req.UserID, bundle.Query, req.Scope)
	if err != nil {
		bundle.RetrievalFailed = true
		if errors.Is(err, ErrRetrievalUnavailable) {
			retrievalErr = err
		} else {
			retrievalErr = fmt.Errorf("%w: %w", ErrRetrievalUnavailable, err)
		}
	} else {
		bundle.Chunks = chunks
	}

	if a.opts.MaxPromptTokens > 0 && a.counter != nil {
		FitToBudget(bundle, a.counter, a.opts.MaxPromptTokens)
		if bundle.DroppedMessages > 0 || bundle.DroppedChunks > 0 {
			slog.Info("context trimmed to token budget", "session_id", req.SessionID, "dropped_messages", bundle.DroppedMessages, "dropped_chunks", bundle.DroppedChunks, "max_tokens", a.opts.MaxPromptTokens)
		}
	}

	return bundle, retrievalErr
}

func (a *Assembler) history(ctx context.Context, sessionID uuid.UUID, exclude uint) ([]Message, error) {
	if a.opts.HistoryWindow <= 0 {
		return nil, nil
	}

	limit := a.opts.HistoryWindow
	if exclude != 0 {
		limit++
	}

	messages, err := a.sessions.ListRecentMessages(ctx, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("error loading conversation history: %w", err)
	}

	history := make([]Message, 0, len(messages))
	for _, msg := range messages {
		// Error placeholders carry no conversational content.
		if msg.ID == exclude || msg.IsError {
			continue
		}
		history = append(history, msg)
	}

	if len(history) > a.opts.HistoryWindow {
		history = history[len(history)-a.opts.HistoryWindow:]
	}
	return history, nil
}

func (a *Assembler) retrieve(ctx context.Context, userID int64, query string, scope *Scope) ([]Chunk, error) {
	if a.documents == nil || a.opts.RetrievalLimit <= 0 {
		return nil, nil
	}

	if a.opts.RetrievalTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.opts.RetrievalTimeout)
		defer cancel()
	}

	chunks, err := a.documents.SimilaritySearch(ctx, userID, query, scope, a.opts.RetrievalLimit)
	if err != nil {
		return nil, err
	}

	chunks = SortChunks(chunks)
	if len(chunks) > a.opts.RetrievalLimit {
		chunks = chunks[:a.opts.RetrievalLimit]
	}
	return chunks, nil
}

// ContextualQuery prefixes the new question with the role labelled recent
// conversation so follow-up questions retrieve the right documents.
func ContextualQuery(recent []Message, userText string) string {
	if len(recent) == 0 {
		return userText
	}

	var sb strings.Builder
	for i, msg := range recent {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(string(msg.Role))
		sb.WriteString(": ")
		sb.WriteString(msg.Content)
	}
	sb.WriteString("\n\nCurrent question: ")
	sb.WriteString(userText)
	return sb.String()
}

// SortChunks orders chunks by descending score. Equal scores keep the order
// the document store returned them in.
func SortChunks(chunks []Chunk) []Chunk {
	sorted := make([]Chunk, len(chunks))
	copy(sorted, chunks)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})
	return sorted
}
