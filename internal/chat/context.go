// Package chat holds the live conversational context for one user.
//
// A Context is what the persona layer hands to the LLM on every turn:
// a fixed preamble (persona prompt, memory recap, scripted opening)
// followed by the in-context history. Contexts are rebuilt whenever the
// persona mood changes, so the preamble always reflects the active mood.
package chat

import (
	"context"
	"strings"

	"github.com/kawanbot/kawanbot/internal/llm/provider"
)

// Context is a conversational handle bound to a single provider session.
// It is not safe for concurrent use; callers hold the per-user lock.
type Context struct {
	provider    provider.Provider
	model       string
	temperature float64
	maxTokens   int

	preamble []provider.Message
	history  []provider.Message
}

// Options configures a new Context.
type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

// New creates a chat context with the given preamble. The preamble is
// immutable for the lifetime of the context.
func New(p provider.Provider, preamble []provider.Message, opts Options) *Context {
	return &Context{
		provider:    p,
		model:       opts.Model,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
		preamble:    preamble,
	}
}

// SendTurn sends one user message and returns the assistant reply.
// The exchange is appended to the in-context history only on success,
// so a failed call leaves the context exactly as it was.
func (c *Context) SendTurn(ctx context.Context, userText string) (string, error) {
	messages := make([]provider.Message, 0, len(c.preamble)+len(c.history)+1)
	messages = append(messages, c.preamble...)
	messages = append(messages, c.history...)
	messages = append(messages, provider.Message{Role: provider.RoleUser, Content: userText})

	resp, err := c.provider.CreateCompletion(ctx, provider.CompletionRequest{
		Messages:    messages,
		Model:       c.model,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", err
	}

	reply := strings.TrimSpace(resp.Content)
	c.history = append(c.history,
		provider.Message{Role: provider.RoleUser, Content: userText},
		provider.Message{Role: provider.RoleAssistant, Content: reply},
	)
	return reply, nil
}

// HistoryLen reports the number of messages accumulated since the
// context was built.
func (c *Context) HistoryLen() int {
	return len(c.history)
}
