package chat_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"docchat-backend/internal/chat"
	"docchat-backend/internal/llm"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type orchestratorFixture struct {
	store     *chat.SQLSessionStore
	docs      *fakeDocumentStore
	generator chat.Generator
	orch      *chat.Orchestrator
}

func newOrchestratorFixture(t *testing.T, generator chat.Generator) *orchestratorFixture {
	store := chat.NewSQLSessionStore(createDB(t))
	docs := &fakeDocumentStore{}
	assembler := chat.NewAssembler(store, docs, chat.EstimateCounter{}, chat.DefaultAssemblerOptions())
	return &orchestratorFixture{
		store:     store,
		docs:      docs,
		generator: generator,
		orch:      chat.NewOrchestrator(store, assembler, generator),
	}
}

func (f *orchestratorFixture) history(t *testing.T, sessionID uuid.UUID) []chat.Message {
	messages, err := f.store.ListMessages(context.Background(), sessionID)
	require.NoError(t, err)
	return messages
}

func TestHandleMessageFirstTurn(t *testing.T) {
	gen := &fakeGenerator{name: "hosted", text: "Invoice 4411 is due on May 1st.", refs: []int64{7}}
	f := newOrchestratorFixture(t, gen)
	f.docs.chunks = []chat.Chunk{{DocumentID: 7, DocumentName: "invoice-4411.pdf", Text: "Due date: 2024-05-01", Score: 0.82}}

	ctx := context.Background()
	session, err := f.store.CreateSession(ctx, 42, "")
	require.NoError(t, err)

	res, err := f.orch.HandleMessage(ctx, chat.TurnRequest{SessionID: session.ID, UserID: 42, Text: "What is the due date of invoice 4411?"})
	require.NoError(t, err)

	assert.Equal(t, "What is the due date of invoice 4411?", f.docs.lastCall().query)
	assert.Equal(t, chat.RoleUser, res.UserMessage.Role)
	assert.Equal(t, chat.RoleAssistant, res.AssistantMessage.Role)
	assert.Equal(t, "Invoice 4411 is due on May 1st.", res.AssistantMessage.Content)
	assert.Equal(t, []int64{7}, res.AssistantMessage.ReferencedDocuments)
	assert.Equal(t, 1, res.ReferencedDocumentCount)
	assert.Equal(t, 1, res.ContextUsed)
	assert.Equal(t, "What is the due date of invoice 4411?", res.UpdatedTitle)
	assert.Equal(t, "What is the due date of invoice 4411?", res.SessionTitle)

	stored, err := f.store.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "What is the due date of invoice 4411?", stored.Title)

	history := f.history(t, session.ID)
	require.Len(t, history, 2)
	assert.Equal(t, res.UserMessage.ID, history[0].ID)
	assert.Equal(t, res.AssistantMessage.ID, history[1].ID)
	assert.False(t, history[1].IsError)
}

func TestHandleMessageFollowUpUsesHistory(t *testing.T) {
	gen := &fakeGenerator{name: "hosted", text: "Page 4.", refs: []int64{3}}
	f := newOrchestratorFixture(t, gen)

	ctx := context.Background()
	session, err := f.store.CreateSession(ctx, 1, "")
	require.NoError(t, err)

	_, err = f.orch.HandleMessage(ctx, chat.TurnRequest{SessionID: session.ID, UserID: 1, Text: "What is the notice period in my lease?"})
	require.NoError(t, err)
	gen.text = "Page 4."

	res, err := f.orch.HandleMessage(ctx, chat.TurnRequest{SessionID: session.ID, UserID: 1, Text: "On which page?"})
	require.NoError(t, err)

	assert.Equal(t,
		"user: What is the notice period in my lease?\nassistant: Page 4.\n\nCurrent question: On which page?",
		f.docs.lastCall().query,
	)
	assert.Empty(t, res.UpdatedTitle, "title is only derived once")
	assert.Equal(t, "What is the notice period in my lease?", res.SessionTitle)

	lastBundle := gen.received[len(gen.received)-1]
	require.Len(t, lastBundle.RecentMessages, 2)
	assert.Equal(t, "On which page?", lastBundle.UserText)

	stored, err := f.store.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "What is the notice period in my lease?", stored.Title)
	assert.Len(t, f.history(t, session.ID), 4)
}

func TestHandleMessageFallsBackToHostedBackend(t *testing.T) {
	local := &fakeGenerator{name: "ollama", onCall: func(ctx context.Context) { <-ctx.Done() }}
	hosted := &fakeGenerator{name: "openai", text: "Your rent is $1,200.", refs: []int64{2}}
	f := newOrchestratorFixture(t, llm.NewChain(50*time.Millisecond, 5*time.Second, local, hosted))

	ctx := context.Background()
	session, err := f.store.CreateSession(ctx, 1, "")
	require.NoError(t, err)

	res, err := f.orch.HandleMessage(ctx, chat.TurnRequest{SessionID: session.ID, UserID: 1, Text: "How much is my rent?"})
	require.NoError(t, err)

	assert.Equal(t, 1, local.calls())
	assert.Equal(t, 1, hosted.calls())
	assert.Equal(t, "openai", res.Backend)
	assert.Equal(t, "Your rent is $1,200.", res.AssistantMessage.Content)
	assert.False(t, res.AssistantMessage.IsError)
}

func TestHandleMessageAllBackendsFail(t *testing.T) {
	local := &fakeGenerator{name: "ollama", err: fmt.Errorf("ollama: %w: connection refused", llm.ErrBackendUnavailable)}
	hosted := &fakeGenerator{name: "openai", err: fmt.Errorf("openai: %w: status 503", llm.ErrBackendUnavailable)}
	f := newOrchestratorFixture(t, llm.NewChain(time.Second, 5*time.Second, local, hosted))

	ctx := context.Background()
	session, err := f.store.CreateSession(ctx, 1, "")
	require.NoError(t, err)

	res, err := f.orch.HandleMessage(ctx, chat.TurnRequest{SessionID: session.ID, UserID: 1, Text: "Summarize my lease"})
	require.ErrorIs(t, err, chat.ErrGenerationFailed)
	require.NotNil(t, res)
	assert.True(t, res.AssistantMessage.IsError)
	assert.Empty(t, res.UpdatedTitle)

	history := f.history(t, session.ID)
	require.Len(t, history, 2)
	assert.Equal(t, chat.RoleUser, history[0].Role)
	assert.Equal(t, "Summarize my lease", history[0].Content)
	assert.Equal(t, chat.RoleAssistant, history[1].Role)
	assert.True(t, history[1].IsError)
	assert.Equal(t, chat.GenerationFailedNotice, history[1].Content)

	stored, err := f.store.GetSession(ctx, session.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.Title, "failed turns do not title the session")
}

func TestHandleMessageInvalidInput(t *testing.T) {
	gen := &fakeGenerator{name: "hosted", text: "unused"}
	f := newOrchestratorFixture(t, gen)

	session, err := f.store.CreateSession(context.Background(), 1, "")
	require.NoError(t, err)

	_, err = f.orch.HandleMessage(context.Background(), chat.TurnRequest{SessionID: session.ID, UserID: 1, Text: "  \n\t "})
	assert.ErrorIs(t, err, chat.ErrInvalidInput)
	assert.Empty(t, f.history(t, session.ID))
	assert.Equal(t, 0, gen.calls())
}

func TestHandleMessageSessionNotFound(t *testing.T) {
	gen := &fakeGenerator{name: "hosted", text: "unused"}
	f := newOrchestratorFixture(t, gen)

	_, err := f.orch.HandleMessage(context.Background(), chat.TurnRequest{SessionID: uuid.New(), UserID: 1, Text: "hello"})
	assert.ErrorIs(t, err, chat.ErrSessionNotFound)

	session, err := f.store.CreateSession(context.Background(), 1, "")
	require.NoError(t, err)

	_, err = f.orch.HandleMessage(context.Background(), chat.TurnRequest{SessionID: session.ID, UserID: 2, Text: "hello"})
	assert.ErrorIs(t, err, chat.ErrSessionNotFound, "sessions of other users are not visible")
	assert.Empty(t, f.history(t, session.ID))
	assert.Equal(t, 0, gen.calls())
}

func TestHandleMessageRetrievalUnavailable(t *testing.T) {
	gen := &fakeGenerator{name: "hosted", text: "I could not find that in your documents."}
	f := newOrchestratorFixture(t, gen)
	f.docs.err = errors.New("vector store down")

	session, err := f.store.CreateSession(context.Background(), 1, "")
	require.NoError(t, err)

	res, err := f.orch.HandleMessage(context.Background(), chat.TurnRequest{SessionID: session.ID, UserID: 1, Text: "Where is my deposit receipt?"})
	require.NoError(t, err)

	require.Equal(t, 1, gen.calls())
	assert.True(t, gen.received[0].RetrievalFailed)
	assert.Empty(t, gen.received[0].Chunks)
	assert.Equal(t, 0, res.ContextUsed)
	assert.False(t, res.AssistantMessage.IsError)
}

func TestHandleMessageKeepsExplicitTitle(t *testing.T) {
	gen := &fakeGenerator{name: "hosted", text: "ok"}
	f := newOrchestratorFixture(t, gen)

	session, err := f.store.CreateSession(context.Background(), 1, "Tax documents")
	require.NoError(t, err)

	res, err := f.orch.HandleMessage(context.Background(), chat.TurnRequest{SessionID: session.ID, UserID: 1, Text: "Which forms did I upload?"})
	require.NoError(t, err)
	assert.Empty(t, res.UpdatedTitle)
	assert.Equal(t, "Tax documents", res.SessionTitle)

	stored, err := f.store.GetSession(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, "Tax documents", stored.Title)
}

func TestHandleMessageConcurrentFirstTurnsTitleOnce(t *testing.T) {
	gen := &fakeGenerator{name: "hosted", text: "ok"}
	f := newOrchestratorFixture(t, gen)

	session, err := f.store.CreateSession(context.Background(), 1, "")
	require.NoError(t, err)

	texts := []string{"first question about rent", "second question about deposits", "third question about repairs"}
	results := make([]*chat.TurnResult, len(texts))

	var wg sync.WaitGroup
	for i, text := range texts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.orch.HandleMessage(context.Background(), chat.TurnRequest{SessionID: session.ID, UserID: 1, Text: text})
			assert.NoError(t, err)
			results[i] = res
		}()
	}
	wg.Wait()

	applied := 0
	for _, res := range results {
		if res != nil && res.UpdatedTitle != "" {
			applied++
		}
	}
	assert.LessOrEqual(t, applied, 1)

	stored, err := f.store.GetSession(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Contains(t, texts, stored.Title)
	assert.Len(t, f.history(t, session.ID), 6)
}

func TestHandleMessageSurvivesCallerCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gen := &fakeGenerator{name: "hosted", text: "still answered", onCall: func(context.Context) { cancel() }}
	f := newOrchestratorFixture(t, gen)

	session, err := f.store.CreateSession(context.Background(), 1, "")
	require.NoError(t, err)

	res, err := f.orch.HandleMessage(ctx, chat.TurnRequest{SessionID: session.ID, UserID: 1, Text: "Are you there?"})
	require.NoError(t, err)
	assert.Equal(t, "still answered", res.AssistantMessage.Content)
	assert.Len(t, f.history(t, session.ID), 2)
}
