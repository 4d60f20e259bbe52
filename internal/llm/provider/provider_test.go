package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"google.golang.org/genai"
)

func TestRegistry_UnknownProvider(t *testing.T) {
	_, err := Create("no-such-provider", map[string]any{})
	if err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestRegistry_Names(t *testing.T) {
	names := Names()
	found := map[string]bool{}
	for _, n := range names {
		found[n] = true
	}
	if !found["gemini"] {
		t.Error("expected gemini to be registered")
	}
	if !found["openai"] {
		t.Error("expected openai to be registered")
	}
}

func TestOpenAIProvider_Factory_MissingKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	_, err := Create("openai", map[string]any{})
	if err == nil {
		t.Error("expected error without API key")
	}
}

func TestOpenAIProvider_Factory(t *testing.T) {
	p, err := Create("openai", map[string]any{"api_key": "test"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Name() != "openai" {
		t.Errorf("expected 'openai', got %s", p.Name())
	}
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code ErrorCode
	}{
		{"auth", errors.New("401 unauthorized credential"), ErrorCodeAuthentication},
		{"rate limit", errors.New("429 rate limit exceeded"), ErrorCodeRateLimit},
		{"quota", errors.New("quota exhausted"), ErrorCodeRateLimit},
		{"not found", errors.New("model not found"), ErrorCodeModelNotFound},
		{"invalid", errors.New("400 invalid argument"), ErrorCodeInvalidRequest},
		{"timeout", errors.New("context deadline exceeded"), ErrorCodeTimeout},
		{"server", errors.New("503 service unavailable"), ErrorCodeServerError},
		{"unknown", errors.New("something odd"), ErrorCodeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := classifyError(tt.err); got != tt.code {
				t.Errorf("expected %s, got %s", tt.code, got)
			}
		})
	}
}

func TestProviderError(t *testing.T) {
	inner := errors.New("boom")
	err := NewProviderError("gemini", ErrorCodeRateLimit, "boom", inner)

	if !err.IsRetryable {
		t.Error("rate limit errors should be retryable")
	}
	if !errors.Is(err, inner) {
		t.Error("expected Unwrap to reach the original error")
	}

	err = NewProviderError("gemini", ErrorCodeAuthentication, "denied", nil)
	if err.IsRetryable {
		t.Error("authentication errors should not be retryable")
	}
}

func TestIsRetryable(t *testing.T) {
	if !isRetryable(NewProviderError("openai", ErrorCodeServerError, "500", nil)) {
		t.Error("server errors should be retryable")
	}
	if isRetryable(NewProviderError("openai", ErrorCodeInvalidRequest, "400", nil)) {
		t.Error("invalid request should not be retryable")
	}
	if !isRetryable(errors.New("429 too many requests")) {
		t.Error("unclassified rate limit errors should be retryable")
	}
	if isRetryable(nil) {
		t.Error("nil is not retryable")
	}
}

func TestGeminiBackoff_Bounds(t *testing.T) {
	for attempt := 1; attempt <= 6; attempt++ {
		delay := geminiBackoff(attempt)
		if delay <= 0 {
			t.Errorf("attempt %d: non-positive delay %v", attempt, delay)
		}
		max := geminiMaxDelay + time.Duration(float64(geminiMaxDelay)*geminiJitterFactor)
		if delay > max {
			t.Errorf("attempt %d: delay %v above jittered max %v", attempt, delay, max)
		}
	}
}

func TestGeminiProvider_BuildContents(t *testing.T) {
	p := &GeminiProvider{}
	contents, system := p.buildContents([]Message{
		{Role: RoleSystem, Content: "You are helpful"},
		{Role: RoleUser, Content: "Hi"},
		{Role: RoleAssistant, Content: "Hello"},
	})

	if system == nil || system.Parts[0].Text != "You are helpful" {
		t.Fatal("expected system instruction to be extracted")
	}
	if len(contents) != 2 {
		t.Fatalf("expected 2 contents, got %d", len(contents))
	}
	if contents[0].Role != "user" {
		t.Errorf("expected 'user', got %s", contents[0].Role)
	}
	if contents[1].Role != "model" {
		t.Errorf("assistant role should be mapped to model, got %s", contents[1].Role)
	}
}

func TestGeminiProvider_BuildContents_MergesSystemMessages(t *testing.T) {
	p := &GeminiProvider{}
	contents, system := p.buildContents([]Message{
		{Role: RoleSystem, Content: "You are Kawan"},
		{Role: RoleSystem, Content: "Things you remember about this user:\n- Suka kopi"},
		{Role: RoleUser, Content: "halo"},
	})

	if system == nil {
		t.Fatal("expected a system instruction")
	}
	want := "You are Kawan\n\nThings you remember about this user:\n- Suka kopi"
	if got := system.Parts[0].Text; got != want {
		t.Errorf("system instruction = %q, want both system messages merged", got)
	}
	if len(contents) != 1 {
		t.Fatalf("expected 1 content, got %d", len(contents))
	}
}

func TestGeminiProvider_ParseResponse(t *testing.T) {
	p := &GeminiProvider{}

	resp, err := p.parseResponse(&genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{
				Content: &genai.Content{
					Role:  "model",
					Parts: []*genai.Part{{Text: "Halo "}, {Text: "juga!"}},
				},
				FinishReason: genai.FinishReasonStop,
			},
		},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount:     10,
			CandidatesTokenCount: 5,
			TotalTokenCount:      15,
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if resp.Content != "Halo juga!" {
		t.Errorf("expected concatenated parts, got %q", resp.Content)
	}
	if resp.FinishReason != "stop" {
		t.Errorf("expected 'stop', got %s", resp.FinishReason)
	}
	if resp.Usage.TotalTokens != 15 {
		t.Errorf("expected 15 total tokens, got %d", resp.Usage.TotalTokens)
	}
}

func TestGeminiProvider_ParseResponse_Empty(t *testing.T) {
	p := &GeminiProvider{}
	if _, err := p.parseResponse(&genai.GenerateContentResponse{}); err == nil {
		t.Error("expected error for empty response")
	}
}

func TestMockProvider_ScriptedResponses(t *testing.T) {
	mock := NewMockProvider("mock").
		AddCompletionResponse(MockCompletionResponse("first")).
		AddError(errors.New("transient"))

	resp, err := mock.CreateCompletion(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "first" {
		t.Errorf("expected 'first', got %s", resp.Content)
	}

	_, err = mock.CreateCompletion(context.Background(), CompletionRequest{})
	if err == nil {
		t.Fatal("expected scripted error")
	}

	// Past the script, the default response applies.
	resp, err = mock.CreateCompletion(context.Background(), CompletionRequest{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "Mock response" {
		t.Errorf("expected default response, got %s", resp.Content)
	}

	if len(mock.CompletionCalls) != 3 {
		t.Errorf("expected 3 recorded calls, got %d", len(mock.CompletionCalls))
	}
}

func TestInstrumentedProvider_Delegates(t *testing.T) {
	mock := NewMockProvider("mock").AddCompletionResponse(MockCompletionResponse("wrapped"))
	wrapped := WrapProvider(mock)

	if wrapped.Name() != "mock" {
		t.Errorf("expected inner name, got %s", wrapped.Name())
	}

	resp, err := wrapped.CreateCompletion(context.Background(), CompletionRequest{
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Content != "wrapped" {
		t.Errorf("expected 'wrapped', got %s", resp.Content)
	}
}

func TestWrapProvider_NoDoubleWrap(t *testing.T) {
	mock := NewMockProvider("mock")
	wrapped := WrapProvider(mock)
	if again := WrapProvider(wrapped); again != wrapped {
		t.Error("expected already wrapped provider to be returned as-is")
	}
	if UnwrapProvider(wrapped) != Provider(mock) {
		t.Error("expected unwrap to reach the mock")
	}
}
