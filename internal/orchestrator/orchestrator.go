// Package orchestrator runs the per-message control loop: load or
// create the session, advance the mood, execute the LLM turn, trigger
// memory consolidation, persist. All collaborator failures are handled
// here; nothing propagates to the transport beyond the reply text.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kawanbot/kawanbot/internal/chat"
	"github.com/kawanbot/kawanbot/internal/llm/provider"
	"github.com/kawanbot/kawanbot/pkg/memory"
	"github.com/kawanbot/kawanbot/pkg/observability"
	"github.com/kawanbot/kawanbot/pkg/persona"
	"github.com/kawanbot/kawanbot/pkg/session"
)

const (
	// FallbackReply is sent verbatim when the LLM turn fails.
	FallbackReply = "Aduh, maaf banget, otakku lagi nge-blank nih. Coba kirim lagi ya?"

	// openingUser seeds every fresh conversational context with a fixed
	// scripted exchange so the model settles into the persona voice.
	openingUser = "Halo, kamu siapa?"

	// contextReplayTurns caps how much transcript is replayed into a
	// freshly built conversational context.
	contextReplayTurns = 30

	defaultLLMTimeout = 30 * time.Second
	defaultMoodPause  = 1500 * time.Millisecond
)

// Messenger delivers out-of-band notices (mood changes) to a user.
// The transport implements it; tests use a recorder.
type Messenger interface {
	SendMessage(ctx context.Context, userID, text string) error
}

// Options configures an Orchestrator.
type Options struct {
	Model            string
	Temperature      float64
	MaxTokens        int
	LLMTimeout       time.Duration // 0 means defaultLLMTimeout
	MoodNoticePause  time.Duration // 0 disables the pause (tests)
	AutosaveInterval time.Duration // 0 disables the autosave sweep
}

// Orchestrator coordinates sessions, persona, LLM and memory for every
// inbound message.
type Orchestrator struct {
	sessions     *session.Manager
	engine       *persona.Engine
	provider     provider.Provider
	consolidator *memory.Consolidator
	messenger    Messenger
	opts         Options

	mu       sync.Mutex
	contexts map[string]*chat.Context

	cron *cron.Cron
	wg   sync.WaitGroup
}

// New creates an orchestrator. messenger may be nil; mood-change
// notices are then skipped.
func New(sessions *session.Manager, engine *persona.Engine, p provider.Provider, messenger Messenger, opts Options) *Orchestrator {
	if opts.LLMTimeout <= 0 {
		opts.LLMTimeout = defaultLLMTimeout
	}

	o := &Orchestrator{
		sessions:     sessions,
		engine:       engine,
		provider:     p,
		consolidator: memory.NewConsolidator(providerCompleter{p: p, model: opts.Model}),
		messenger:    messenger,
		opts:         opts,
		contexts:     make(map[string]*chat.Context),
	}

	if opts.AutosaveInterval > 0 {
		o.cron = cron.New()
		spec := fmt.Sprintf("@every %s", opts.AutosaveInterval)
		if _, err := o.cron.AddFunc(spec, o.autosave); err != nil {
			log.Printf("[Orchestrator] autosave schedule rejected: %v", err)
		} else {
			o.cron.Start()
		}
	}
	return o
}

// OnTextMessage runs one full turn for a plain text message and
// returns the reply to deliver.
func (o *Orchestrator) OnTextMessage(ctx context.Context, userID, text string) string {
	return o.turn(ctx, userID, "text", text)
}

// OnStickerMessage renders a sticker as a bracketed event and runs the
// same turn pipeline, so stickers participate in the conversation.
func (o *Orchestrator) OnStickerMessage(ctx context.Context, userID, emoji string) string {
	if emoji == "" {
		emoji = "?"
	}
	return o.turn(ctx, userID, "sticker", fmt.Sprintf("[sticker: %s]", emoji))
}

func (o *Orchestrator) turn(ctx context.Context, userID, msgType, text string) string {
	start := time.Now()

	unlock := o.sessions.Lock(userID)
	defer unlock()

	st, created := o.sessions.Get(ctx, userID)
	if created {
		log.Printf("[Orchestrator] new session for user %s", userID)
	}
	st.Mood = string(persona.Normalize(st.Mood))

	st.InteractionCount++
	if newMood, changed := o.engine.MaybeAdvance(persona.Mood(st.Mood), st.InteractionCount); changed {
		st.Mood = string(newMood)
		o.dropContext(userID)
		observability.RecordMoodChange(st.Mood)
		log.Printf("[Orchestrator] user %s mood re-rolled to %s at interaction %d", userID, st.Mood, st.InteractionCount)

		if o.messenger != nil {
			if err := o.messenger.SendMessage(ctx, userID, persona.ChangeNotice(newMood)); err != nil {
				log.Printf("[Orchestrator] mood notice failed for user %s: %v", userID, err)
			}
		}
		// Let the notice land before the substantive reply.
		if o.opts.MoodNoticePause > 0 {
			time.Sleep(o.opts.MoodNoticePause)
		}
	}

	st.AppendUserTurn(text)

	cc := o.contextFor(userID, st)

	callCtx, cancel := context.WithTimeout(ctx, o.opts.LLMTimeout)
	reply, err := cc.SendTurn(callCtx, text)
	cancel()

	status := "ok"
	if err != nil {
		log.Printf("[Orchestrator] llm turn failed for user %s: %v", userID, err)
		reply = FallbackReply
		status = "fallback"
	} else {
		st.AppendModelTurn(reply)
		if memory.ShouldExtract(len(st.Transcript)) {
			o.spawnConsolidation(userID, st)
		}
	}

	st.LastInteractionTime = time.Now().Unix()
	if err := o.sessions.Save(ctx, userID); err != nil {
		log.Printf("[Orchestrator] save failed for user %s: %v", userID, err)
		observability.RecordSessionSaveFailure()
	}

	observability.SetActiveSessions(o.sessions.Loaded())
	observability.RecordMessage(msgType, status, time.Since(start))
	return reply
}

// contextFor returns the live conversational context for userID,
// building one lazily from the current mood, stored memories, the
// scripted opening and the recent transcript. Callers hold the user's
// session lock.
func (o *Orchestrator) contextFor(userID string, st *session.State) *chat.Context {
	o.mu.Lock()
	defer o.mu.Unlock()

	if cc, ok := o.contexts[userID]; ok {
		return cc
	}

	mood := persona.Normalize(st.Mood)
	preamble := []provider.Message{
		{Role: provider.RoleSystem, Content: o.engine.Prompt(mood)},
	}

	if len(st.Memories) > 0 {
		var b strings.Builder
		b.WriteString("Things you remember about this user:\n")
		for _, f := range st.Memories {
			fmt.Fprintf(&b, "- %s\n", f.Content)
		}
		preamble = append(preamble, provider.Message{Role: provider.RoleSystem, Content: b.String()})
	}

	preamble = append(preamble,
		provider.Message{Role: provider.RoleUser, Content: openingUser},
		provider.Message{Role: provider.RoleAssistant, Content: o.engine.Greeting(mood)},
	)

	// Replay the recent transcript, excluding the user turn of the
	// in-flight exchange; SendTurn carries that one.
	replay := st.Tail(contextReplayTurns)
	if n := len(replay); n > 0 && replay[n-1].Role == session.RoleUser {
		replay = replay[:n-1]
	}
	for _, t := range replay {
		role := provider.RoleUser
		if t.Role == session.RoleModel {
			role = provider.RoleAssistant
		}
		preamble = append(preamble, provider.Message{Role: role, Content: t.Text()})
	}

	cc := chat.New(o.provider, preamble, chat.Options{
		Model:       o.opts.Model,
		Temperature: o.opts.Temperature,
		MaxTokens:   o.opts.MaxTokens,
	})
	o.contexts[userID] = cc
	return cc
}

func (o *Orchestrator) dropContext(userID string) {
	o.mu.Lock()
	delete(o.contexts, userID)
	o.mu.Unlock()
}

// spawnConsolidation snapshots the extraction inputs under the user
// lock (held by the caller) and runs the extraction off-turn. New
// facts are re-deduplicated under the lock before being appended, then
// saved immediately so a crash cannot lose them.
func (o *Orchestrator) spawnConsolidation(userID string, st *session.State) {
	tail := st.Tail(memory.TailTurns)
	existing := append([]session.Fact(nil), st.Memories...)

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), o.opts.LLMTimeout)
		defer cancel()

		facts, err := o.consolidator.Extract(ctx, tail, existing)
		if err != nil {
			log.Printf("[Orchestrator] consolidation failed for user %s: %v", userID, err)
			return
		}
		if len(facts) == 0 {
			return
		}

		unlock := o.sessions.Lock(userID)
		defer unlock()

		added := 0
		for _, f := range facts {
			if st.AddFact(f.Content, time.Unix(f.Timestamp, 0)) {
				added++
			}
		}
		if added == 0 {
			return
		}
		observability.RecordFactsExtracted(added)

		if err := o.sessions.Save(context.Background(), userID); err != nil {
			log.Printf("[Orchestrator] memory save failed for user %s: %v", userID, err)
			observability.RecordSessionSaveFailure()
		}
	}()
}

// Reset wipes the user's session (transcript and memories included),
// persists the fresh state and returns the welcome text.
func (o *Orchestrator) Reset(ctx context.Context, userID string) string {
	unlock := o.sessions.Lock(userID)
	defer unlock()

	st := o.sessions.Reset(ctx, userID)
	o.dropContext(userID)
	log.Printf("[Orchestrator] session reset for user %s", userID)

	return o.engine.Greeting(persona.Normalize(st.Mood))
}

// Info returns the static help text.
func (o *Orchestrator) Info() string {
	return strings.Join([]string{
		"Aku Kawan, teman ngobrolmu.",
		"Mood-ku berubah-ubah sendiri, jadi jangan kaget kalau gayaku beda.",
		"Aku ingat hal-hal penting yang kamu ceritakan.",
		"",
		"/start - mulai dari awal (semua ingatan dihapus)",
		"/info  - pesan ini",
	}, "\n")
}

// Wait blocks until in-flight consolidation goroutines finish. Used by
// tests; Close calls it too.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) autosave() {
	failed := o.sessions.SaveAll(context.Background())
	observability.SetActiveSessions(o.sessions.Loaded())
	if failed > 0 {
		log.Printf("[Orchestrator] autosave sweep: %d save(s) failed", failed)
	}
}

// Close stops the autosave job, waits for consolidations and runs a
// final save sweep.
func (o *Orchestrator) Close() {
	if o.cron != nil {
		<-o.cron.Stop().Done()
	}
	o.wg.Wait()
	o.sessions.SaveAll(context.Background())
}

// providerCompleter adapts the chat provider to the consolidator's
// one-shot surface.
type providerCompleter struct {
	p     provider.Provider
	model string
}

func (c providerCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	resp, err := c.p.CreateCompletion(ctx, provider.CompletionRequest{
		Messages: []provider.Message{{Role: provider.RoleUser, Content: prompt}},
		Model:    c.model,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Content), nil
}
