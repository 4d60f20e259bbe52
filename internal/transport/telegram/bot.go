package telegram

import (
	"context"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Handler is the conversational surface the bot routes updates into.
// The orchestrator implements it.
type Handler interface {
	OnTextMessage(ctx context.Context, userID, text string) string
	OnStickerMessage(ctx context.Context, userID, emoji string) string
	Reset(ctx context.Context, userID string) string
	Info() string
}

// api is the slice of the Bot API the loop needs; *Client implements
// it, tests substitute a fake.
type api interface {
	GetUpdates(ctx context.Context, offset int64) ([]Update, error)
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendChatAction(ctx context.Context, chatID int64, action string) error
}

// BotOptions tunes the update loop.
type BotOptions struct {
	// RateLimit is the sustained per-chat message rate; RateBurst the
	// burst allowance. Messages over the limit are dropped.
	RateLimit rate.Limit
	RateBurst int
}

// Bot runs the long-poll loop and dispatches updates sequentially, so
// per-user turn order follows arrival order.
type Bot struct {
	client  api
	handler Handler
	opts    BotOptions

	mu       sync.Mutex
	limiters map[int64]*rate.Limiter
}

// NewBot creates a bot over the given client and handler.
func NewBot(client *Client, handler Handler, opts BotOptions) *Bot {
	return newBot(client, handler, opts)
}

func newBot(client api, handler Handler, opts BotOptions) *Bot {
	if opts.RateLimit <= 0 {
		opts.RateLimit = rate.Limit(1)
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 3
	}
	return &Bot{
		client:   client,
		handler:  handler,
		opts:     opts,
		limiters: make(map[int64]*rate.Limiter),
	}
}

// Run long-polls until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	var offset int64
	for {
		updates, err := b.client.GetUpdates(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("[Telegram] getUpdates failed: %v", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(3 * time.Second):
			}
			continue
		}

		for _, u := range updates {
			if u.UpdateID >= offset {
				offset = u.UpdateID + 1
			}
			b.handle(ctx, u)
		}
	}
}

func (b *Bot) handle(ctx context.Context, u Update) {
	m := u.Message
	if m == nil {
		return
	}

	chatID := m.Chat.ID
	if !b.limiter(chatID).Allow() {
		log.Printf("[Telegram] chat %d rate limited, dropping update %d", chatID, u.UpdateID)
		return
	}

	userID := strconv.FormatInt(chatID, 10)

	var reply string
	switch {
	case m.Sticker != nil:
		reply = b.handler.OnStickerMessage(ctx, userID, m.Sticker.Emoji)
	case strings.HasPrefix(m.Text, "/start"):
		reply = b.handler.Reset(ctx, userID)
	case strings.HasPrefix(m.Text, "/info"):
		reply = b.handler.Info()
	case strings.HasPrefix(m.Text, "/"):
		reply = b.handler.Info()
	case m.Text != "":
		if err := b.client.SendChatAction(ctx, chatID, "typing"); err != nil {
			log.Printf("[Telegram] sendChatAction failed for chat %d: %v", chatID, err)
		}
		reply = b.handler.OnTextMessage(ctx, userID, m.Text)
	default:
		return
	}

	if reply == "" {
		return
	}
	if err := b.client.SendMessage(ctx, chatID, reply); err != nil {
		log.Printf("[Telegram] sendMessage failed for chat %d: %v", chatID, err)
	}
}

func (b *Bot) limiter(chatID int64) *rate.Limiter {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.limiters[chatID]
	if !ok {
		l = rate.NewLimiter(b.opts.RateLimit, b.opts.RateBurst)
		b.limiters[chatID] = l
	}
	return l
}

// SendMessage delivers an out-of-band notice to a user. Implements the
// orchestrator's Messenger.
func (b *Bot) SendMessage(ctx context.Context, userID, text string) error {
	chatID, err := strconv.ParseInt(userID, 10, 64)
	if err != nil {
		return err
	}
	return b.client.SendMessage(ctx, chatID, text)
}
