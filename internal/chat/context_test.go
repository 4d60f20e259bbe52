package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/kawanbot/kawanbot/internal/llm/provider"
)

func newTestContext(mock *provider.MockProvider) *Context {
	preamble := []provider.Message{
		{Role: provider.RoleSystem, Content: "persona prompt"},
		{Role: provider.RoleUser, Content: "opening"},
		{Role: provider.RoleAssistant, Content: "opening reply"},
	}
	return New(mock, preamble, Options{Model: "test-model", Temperature: 0.8})
}

func TestSendTurn_AppendsHistoryOnSuccess(t *testing.T) {
	mock := provider.NewMockProvider("mock").
		AddCompletionResponse(provider.MockCompletionResponse("halo juga!"))
	c := newTestContext(mock)

	reply, err := c.SendTurn(context.Background(), "halo")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "halo juga!" {
		t.Errorf("expected 'halo juga!', got %q", reply)
	}
	if c.HistoryLen() != 2 {
		t.Errorf("expected 2 history messages, got %d", c.HistoryLen())
	}

	// The request must carry preamble, history and the new turn in order.
	req := mock.CompletionCalls[0]
	if len(req.Messages) != 4 {
		t.Fatalf("expected 4 messages in request, got %d", len(req.Messages))
	}
	if req.Messages[0].Role != provider.RoleSystem {
		t.Errorf("expected preamble first, got role %s", req.Messages[0].Role)
	}
	if last := req.Messages[len(req.Messages)-1]; last.Content != "halo" {
		t.Errorf("expected user turn last, got %q", last.Content)
	}
	if req.Model != "test-model" {
		t.Errorf("expected test-model, got %s", req.Model)
	}
}

func TestSendTurn_HistoryUntouchedOnFailure(t *testing.T) {
	mock := provider.NewMockProvider("mock").
		AddCompletionResponse(provider.MockCompletionResponse("ok")).
		AddError(errors.New("upstream down"))
	c := newTestContext(mock)

	if _, err := c.SendTurn(context.Background(), "first"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := c.SendTurn(context.Background(), "second"); err == nil {
		t.Fatal("expected error")
	}

	if c.HistoryLen() != 2 {
		t.Errorf("failed turn must not grow history, got %d messages", c.HistoryLen())
	}
}

func TestSendTurn_GrowingHistoryIsReplayed(t *testing.T) {
	mock := provider.NewMockProvider("mock").
		AddCompletionResponse(provider.MockCompletionResponse("one")).
		AddCompletionResponse(provider.MockCompletionResponse("two"))
	c := newTestContext(mock)

	_, _ = c.SendTurn(context.Background(), "a")
	_, _ = c.SendTurn(context.Background(), "b")

	second := mock.CompletionCalls[1]
	// preamble (3) + first exchange (2) + new turn (1)
	if len(second.Messages) != 6 {
		t.Fatalf("expected 6 messages in second request, got %d", len(second.Messages))
	}
	if second.Messages[3].Content != "a" || second.Messages[4].Content != "one" {
		t.Error("expected the first exchange replayed before the new turn")
	}
}
