package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/kawanbot/kawanbot/internal/llm/provider"
	intobs "github.com/kawanbot/kawanbot/internal/observability"
	"github.com/kawanbot/kawanbot/internal/orchestrator"
	"github.com/kawanbot/kawanbot/internal/transport/telegram"
	"github.com/kawanbot/kawanbot/pkg/config"
	"github.com/kawanbot/kawanbot/pkg/observability"
	"github.com/kawanbot/kawanbot/pkg/persona"
	"github.com/kawanbot/kawanbot/pkg/session"
)

// Version is set via ldflags
var Version = "dev"

func main() {
	var configFile string

	root := &cobra.Command{
		Use:     "kawanbot",
		Short:   "Kawan, a moody Telegram chat companion",
		Version: Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configFile)
		},
	}
	root.Flags().StringVarP(&configFile, "config", "c", os.Getenv("CONFIG_FILE"), "config file path (YAML)")

	if err := root.Execute(); err != nil {
		log.Fatalf("[Main] %v", err)
	}
}

func run(configFile string) error {
	// .env is optional; real deployments set the environment directly.
	if err := godotenv.Load(); err == nil {
		log.Println("[Main] loaded .env")
	}

	cfg, err := config.LoadConfig(configFile)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	log.Printf("[Main] starting kawanbot v%s (provider=%s store=%s)", Version, cfg.Provider, cfg.Store.Backend)

	observability.InitMetrics()
	if err := intobs.InitFromEnv(); err != nil {
		return fmt.Errorf("tracing init: %w", err)
	}

	p, err := provider.Create(cfg.Provider, map[string]any{"api_key": cfg.ProviderKey()})
	if err != nil {
		return fmt.Errorf("provider init: %w", err)
	}
	p = provider.WrapProvider(p)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("store init: %w", err)
	}

	mgr := session.NewManager(store, cfg.DefaultMood)

	client := telegram.NewClient(cfg.TelegramToken)
	me, err := client.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("telegram auth: %w", err)
	}
	log.Printf("[Main] authorized as @%s", me.Username)

	var bot *telegram.Bot
	orch := orchestrator.New(mgr, persona.NewEngine(0), p, messengerFunc(func(c context.Context, userID, text string) error {
		return bot.SendMessage(c, userID, text)
	}), orchestrator.Options{
		Model:            cfg.Model,
		Temperature:      cfg.Temperature,
		MaxTokens:        cfg.MaxTokens,
		LLMTimeout:       cfg.Runtime.LLMTimeout,
		MoodNoticePause:  cfg.Runtime.MoodNoticePause,
		AutosaveInterval: cfg.Runtime.AutosaveInterval,
	})

	bot = telegram.NewBot(client, orch, telegram.BotOptions{
		RateLimit: rate.Limit(cfg.Runtime.RatePerChat),
		RateBurst: cfg.Runtime.RateBurst,
	})

	checker := observability.InitHealthChecker()
	checker.RegisterCheck(observability.StoreCheck(func(c context.Context) error {
		_, err := store.Exists(c, "healthcheck")
		return err
	}))
	checker.RegisterCheck(observability.LLMCheck("telegram", func(c context.Context) error {
		_, err := client.GetMe(c)
		return err
	}))

	obsServer := observability.NewServer(cfg.Runtime.HTTPPort)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Printf("[Main] observability server on :%d", cfg.Runtime.HTTPPort)
		if err := obsServer.Start(); err != nil && gctx.Err() == nil {
			return fmt.Errorf("observability server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		err := bot.Run(gctx)
		if err != nil && gctx.Err() == nil {
			return fmt.Errorf("telegram loop: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := obsServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("[Main] observability shutdown: %v", err)
		}
		return nil
	})

	err = g.Wait()

	log.Println("[Main] shutting down")
	orch.Close()
	if cerr := mgr.Close(); cerr != nil {
		log.Printf("[Main] store close: %v", cerr)
	}
	if serr := intobs.Shutdown(context.Background()); serr != nil {
		log.Printf("[Main] tracing shutdown: %v", serr)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Println("[Main] stopped")
	return nil
}

func buildStore(ctx context.Context, cfg *config.Config) (session.Store, error) {
	switch cfg.Store.Backend {
	case "file":
		return session.NewFileBackend(cfg.Store.Dir)
	case "redis":
		return session.NewRedisBackend(session.RedisConfig{
			Addr:       cfg.Store.RedisAddr,
			Password:   cfg.Store.RedisPassword,
			DB:         cfg.Store.RedisDB,
			SessionTTL: cfg.Store.RedisTTL,
		})
	case "firestore":
		return session.NewFirestoreBackend(ctx, session.FirestoreConfig{
			ProjectID:       cfg.Store.FirestoreProject,
			CredentialsFile: cfg.Store.FirestoreCredentials,
			Collection:      cfg.Store.FirestoreCollection,
		})
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}
}

// messengerFunc adapts a closure to the orchestrator's Messenger.
type messengerFunc func(ctx context.Context, userID, text string) error

func (f messengerFunc) SendMessage(ctx context.Context, userID, text string) error {
	return f(ctx, userID, text)
}
