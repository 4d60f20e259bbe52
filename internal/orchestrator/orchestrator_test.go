package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kawanbot/kawanbot/internal/llm/provider"
	"github.com/kawanbot/kawanbot/pkg/memory"
	"github.com/kawanbot/kawanbot/pkg/persona"
	"github.com/kawanbot/kawanbot/pkg/session"
)

type recorderMessenger struct {
	mu       sync.Mutex
	messages []string
}

func (r *recorderMessenger) SendMessage(ctx context.Context, userID, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, text)
	return nil
}

func (r *recorderMessenger) sent() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.messages...)
}

// stubCompleter serves the extraction side channel so consolidation
// goroutines never race with the turn pipeline's mock provider.
type stubCompleter struct {
	mu   sync.Mutex
	resp string
	err  error
}

func (s *stubCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resp, s.err
}

func newTestOrchestrator(t *testing.T, mock *provider.MockProvider) (*Orchestrator, *session.Manager, *recorderMessenger, *stubCompleter) {
	t.Helper()

	backend, err := session.NewFileBackend(t.TempDir())
	require.NoError(t, err)

	mgr := session.NewManager(backend, string(persona.Default))
	rec := &recorderMessenger{}

	o := New(mgr, persona.NewEngine(42), mock, rec, Options{
		Model:      "test-model",
		LLMTimeout: 5 * time.Second,
	})
	stub := &stubCompleter{resp: "NO_NEW_INFORMATION"}
	o.consolidator = memory.NewConsolidator(stub)

	t.Cleanup(o.Close)
	return o, mgr, rec, stub
}

func TestFirstMessage_CreatesSessionAndReplies(t *testing.T) {
	mock := provider.NewMockProvider("mock").
		AddCompletionResponse(provider.MockCompletionResponse("halo juga!"))
	o, mgr, _, _ := newTestOrchestrator(t, mock)

	reply := o.OnTextMessage(context.Background(), "101", "halo")
	assert.Equal(t, "halo juga!", reply)

	unlock := mgr.Lock("101")
	st, created := mgr.Get(context.Background(), "101")
	unlock()
	assert.False(t, created)
	assert.Equal(t, 1, st.InteractionCount)
	require.Len(t, st.Transcript, 2)
	assert.Equal(t, session.RoleUser, st.Transcript[0].Role)
	assert.Equal(t, "halo", st.Transcript[0].Text())
	assert.Equal(t, session.RoleModel, st.Transcript[1].Role)

	// The freshly built context carries the persona preamble and the
	// scripted opening before the live turn.
	req := mock.CompletionCalls[0]
	require.NotEmpty(t, req.Messages)
	assert.Equal(t, provider.RoleSystem, req.Messages[0].Role)
	assert.Equal(t, "halo", req.Messages[len(req.Messages)-1].Content)
	assert.Equal(t, "test-model", req.Model)
}

func TestLLMFailure_FallbackReplyKeepsUserTurnOnly(t *testing.T) {
	mock := provider.NewMockProvider("mock").
		AddError(errors.New("service unavailable"))
	o, mgr, _, _ := newTestOrchestrator(t, mock)

	reply := o.OnTextMessage(context.Background(), "102", "halo")
	assert.Equal(t, FallbackReply, reply)

	unlock := mgr.Lock("102")
	st, _ := mgr.Get(context.Background(), "102")
	unlock()
	require.Len(t, st.Transcript, 1)
	assert.Equal(t, session.RoleUser, st.Transcript[0].Role)
	assert.NotZero(t, st.LastInteractionTime)

	// The failed exchange must not leak into the next successful one;
	// past the script the mock serves its default reply.
	reply = o.OnTextMessage(context.Background(), "102", "masih ada?")
	assert.Equal(t, "Mock response", reply)

	unlock = mgr.Lock("102")
	st, _ = mgr.Get(context.Background(), "102")
	unlock()
	assert.Len(t, st.Transcript, 3)
}

func TestMoodChange_AtTenthInteraction(t *testing.T) {
	mock := provider.NewMockProvider("mock")
	o, mgr, rec, _ := newTestOrchestrator(t, mock)

	for i := 0; i < 10; i++ {
		o.OnTextMessage(context.Background(), "103", "pesan")
	}

	unlock := mgr.Lock("103")
	st, _ := mgr.Get(context.Background(), "103")
	unlock()
	assert.Equal(t, 10, st.InteractionCount)
	assert.True(t, persona.Known(st.Mood))

	notices := rec.sent()
	require.Len(t, notices, 1, "exactly one mood notice across ten turns")
	assert.Equal(t, persona.ChangeNotice(persona.Mood(st.Mood)), notices[0])

	// The mood change drops the context; the tenth request is a fresh
	// build replaying the 18 stored turns behind the preamble, where a
	// reused context would have carried 16 in-context messages.
	ninth := mock.CompletionCalls[8]
	tenth := mock.CompletionCalls[9]
	assert.Equal(t, provider.RoleSystem, tenth.Messages[0].Role)
	assert.Len(t, ninth.Messages, 20)
	assert.Len(t, tenth.Messages, 22)
}

func TestMoodChange_TranscriptSurvives(t *testing.T) {
	mock := provider.NewMockProvider("mock")
	o, mgr, _, _ := newTestOrchestrator(t, mock)

	for i := 0; i < 10; i++ {
		o.OnTextMessage(context.Background(), "104", "pesan")
	}

	unlock := mgr.Lock("104")
	st, _ := mgr.Get(context.Background(), "104")
	unlock()
	assert.Len(t, st.Transcript, 20, "mood change must not clear the transcript")
}

func TestConsolidation_StoresAndPersistsFacts(t *testing.T) {
	mock := provider.NewMockProvider("mock").
		AddCompletionResponse(provider.MockCompletionResponse("oke")).
		AddCompletionResponse(provider.MockCompletionResponse("siap")).
		AddCompletionResponse(provider.MockCompletionResponse("mantap"))
	o, mgr, _, stub := newTestOrchestrator(t, mock)
	stub.resp = "- Suka kopi\n- Tinggal di Bandung"

	// Three successful exchanges bring the transcript to six turns,
	// which triggers an extraction pass.
	o.OnTextMessage(context.Background(), "105", "aku suka kopi")
	o.OnTextMessage(context.Background(), "105", "aku tinggal di bandung")
	o.OnTextMessage(context.Background(), "105", "gitu deh")
	o.Wait()

	unlock := mgr.Lock("105")
	st, _ := mgr.Get(context.Background(), "105")
	unlock()
	require.Len(t, st.Memories, 2)
	assert.Equal(t, session.FactTypeUserInfo, st.Memories[0].Type)
	assert.Equal(t, "Suka kopi", st.Memories[0].Content)
	assert.NotZero(t, st.Memories[0].Timestamp)
}

func TestConsolidationFailure_IsNonFatal(t *testing.T) {
	mock := provider.NewMockProvider("mock").
		AddCompletionResponse(provider.MockCompletionResponse("a")).
		AddCompletionResponse(provider.MockCompletionResponse("b")).
		AddCompletionResponse(provider.MockCompletionResponse("c"))
	o, mgr, _, stub := newTestOrchestrator(t, mock)
	stub.err = errors.New("extractor down")

	o.OnTextMessage(context.Background(), "106", "satu")
	o.OnTextMessage(context.Background(), "106", "dua")
	reply := o.OnTextMessage(context.Background(), "106", "tiga")
	o.Wait()

	assert.Equal(t, "c", reply)
	unlock := mgr.Lock("106")
	st, _ := mgr.Get(context.Background(), "106")
	unlock()
	assert.Empty(t, st.Memories)
	assert.Len(t, st.Transcript, 6)
}

func TestReset_WipesEverything(t *testing.T) {
	mock := provider.NewMockProvider("mock")
	o, mgr, _, _ := newTestOrchestrator(t, mock)

	o.OnTextMessage(context.Background(), "107", "halo")
	welcome := o.Reset(context.Background(), "107")
	assert.NotEmpty(t, welcome)

	unlock := mgr.Lock("107")
	st, _ := mgr.Get(context.Background(), "107")
	unlock()
	assert.Equal(t, 0, st.InteractionCount)
	assert.Empty(t, st.Transcript)
	assert.Empty(t, st.Memories)
	assert.Equal(t, string(persona.Default), st.Mood)
}

func TestSticker_RendersBracketedTurn(t *testing.T) {
	mock := provider.NewMockProvider("mock").
		AddCompletionResponse(provider.MockCompletionResponse("hehe lucu"))
	o, mgr, _, _ := newTestOrchestrator(t, mock)

	reply := o.OnStickerMessage(context.Background(), "108", "😂")
	assert.Equal(t, "hehe lucu", reply)

	unlock := mgr.Lock("108")
	st, _ := mgr.Get(context.Background(), "108")
	unlock()
	require.Len(t, st.Transcript, 2)
	assert.Equal(t, "[sticker: 😂]", st.Transcript[0].Text())
}

func TestInfo_IsStatic(t *testing.T) {
	mock := provider.NewMockProvider("mock")
	o, _, _, _ := newTestOrchestrator(t, mock)
	assert.Equal(t, o.Info(), o.Info())
	assert.Contains(t, o.Info(), "/start")
}
