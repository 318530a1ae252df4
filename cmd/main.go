package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"poizon-bot/handler"
	"poizon-bot/internal/config"
	"poizon-bot/internal/dispatch"
	"poizon-bot/internal/integrations/paramstore"
	"poizon-bot/internal/integrations/poizon"
	"poizon-bot/internal/integrations/telegram"
	"poizon-bot/internal/notify"
	"poizon-bot/internal/orders"
	"poizon-bot/internal/quota"
	"poizon-bot/internal/repository"
	"poizon-bot/internal/session"
	"poizon-bot/internal/settings"
	"poizon-bot/internal/usecase"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "err", err)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Level()})))

	// ---- AWS SDK config ----
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("failed to load AWS config", "err", err)
		os.Exit(1)
	}

	// ---- Clients ----
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		slog.Error("failed to create SSM client", "err", err)
		os.Exit(1)
	}
	repo, err := repository.New(awsdynamodb.NewFromConfig(awsCfg), cfg.StateTable)
	if err != nil {
		slog.Error("failed to create state client", "err", err)
		os.Exit(1)
	}

	botToken, err := paramstore.Token(ctx, ssmClient, cfg.Param(config.ParamTelegramToken))
	if err != nil {
		slog.Error("failed to read bot token", "err", err)
		os.Exit(1)
	}
	botAPI, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		slog.Error("failed to create Bot API client", "err", err)
		os.Exit(1)
	}
	messenger, err := telegram.New(botAPI)
	if err != nil {
		slog.Error("failed to create messenger", "err", err)
		os.Exit(1)
	}

	lookup, err := poizon.NewClient(cfg.PoizonExtractURL, cfg.PoizonProductURL,
		poizon.WithTimeout(cfg.LookupTimeout),
		poizon.WithAPIKey(ssmClient, cfg.Param(config.ParamPoizonAPIKey)),
	)
	if err != nil {
		slog.Error("failed to create POIZON client", "err", err)
		os.Exit(1)
	}

	// ---- Components ----
	cache, err := settings.NewCache(repo)
	if err != nil {
		slog.Error("failed to create settings cache", "err", err)
		os.Exit(1)
	}
	if err := cache.Reload(ctx); err != nil {
		slog.Warn("settings not loaded, using defaults", "err", err)
	}
	tracker, err := quota.NewTracker(repo, func() int { return cache.Current().APILimitPerUser })
	if err != nil {
		slog.Error("failed to create quota tracker", "err", err)
		os.Exit(1)
	}
	orderManager, err := orders.NewManager(repo)
	if err != nil {
		slog.Error("failed to create order manager", "err", err)
		os.Exit(1)
	}
	notifier, err := notify.New(messenger, repo, func() []int64 { return cache.Current().AdminChatIDs },
		notify.WithDelay(cfg.BroadcastDelay))
	if err != nil {
		slog.Error("failed to create notifier", "err", err)
		os.Exit(1)
	}

	sessions := session.NewStore()
	engine, err := usecase.NewEngine(usecase.Deps{
		Messenger: messenger,
		Lookup:    lookup,
		Store:     repo,
		Quota:     tracker,
		Settings:  cache,
		Sessions:  sessions,
		Orders:    orderManager,
		Notifier:  notifier,
	})
	if err != nil {
		slog.Error("failed to create engine", "err", err)
		os.Exit(1)
	}

	// ---- Handler ----
	mailbox := dispatch.New(ctx)
	webhookSecret, err := paramstore.OptionalToken(ctx, ssmClient, cfg.Param(config.ParamWebhookSecret))
	if err != nil {
		slog.Error("failed to read webhook secret", "err", err)
		os.Exit(1)
	}
	if webhookSecret == "" {
		slog.Warn("webhook secret not configured, signature checks disabled")
	}
	h, err := handler.NewHandler(engine, mailbox, handler.WithWebhookSecret(webhookSecret))
	if err != nil {
		slog.Error("failed to create handler", "err", err)
		os.Exit(1)
	}

	switch cfg.Runtime {
	case config.RuntimeLambda:
		slog.Warn("starting lambda runtime; webhook acks wait for queued work and per-user order needs reserved concurrency 1",
			"preferred_runtime", config.RuntimeHTTP)
		lambda.Start(drainAfter(h.Handle, mailbox))
	case config.RuntimeHTTP:
		adminToken, err := paramstore.Token(ctx, ssmClient, cfg.Param(config.ParamAdminToken))
		if err != nil {
			slog.Error("failed to read admin token", "err", err)
			os.Exit(1)
		}
		admin, err := handler.NewAdmin(handler.AdminDeps{
			Orders:   orderManager,
			Notifier: notifier,
			Stats:    repo,
			Users:    repo,
			Settings: cache,
			Token:    adminToken,
		})
		if err != nil {
			slog.Error("failed to create admin API", "err", err)
			os.Exit(1)
		}
		if err := serveHTTP(cfg, handler.NewRouter(h, admin, lookup), mailbox, sessions); err != nil {
			slog.Error("http server failed", "err", err)
			os.Exit(1)
		}
	}
}

type webhookFunc func(context.Context, events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error)

// drainAfter finishes queued work before the invocation returns, since the
// execution environment may be frozen as soon as it does.
func drainAfter(next webhookFunc, mailbox *dispatch.Mailbox) webhookFunc {
	return func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		resp, err := next(ctx, req)
		if derr := mailbox.Drain(ctx); derr != nil {
			slog.Warn("mailbox not drained before deadline", "pending", mailbox.Pending(), "err", derr)
		}
		return resp, err
	}
}

func serveHTTP(cfg config.Config, router http.Handler, mailbox *dispatch.Mailbox, sessions *session.Store) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", cfg.ListenAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
		slog.Info("shutting down", "pending_tasks", mailbox.Pending(), "open_sessions", sessions.Len())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown incomplete", "err", err)
	}
	return mailbox.Close(shutdownCtx)
}
