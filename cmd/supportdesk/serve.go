package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yodabot/support-desk/internal/bot"
	"github.com/yodabot/support-desk/internal/config"
	"github.com/yodabot/support-desk/internal/handler"
	"github.com/yodabot/support-desk/internal/i18n"
	"github.com/yodabot/support-desk/internal/llm"
	natsclient "github.com/yodabot/support-desk/internal/nats"
	"github.com/yodabot/support-desk/internal/service"
	"github.com/yodabot/support-desk/internal/telegram"
	"github.com/yodabot/support-desk/pkg/logger"
	"github.com/yodabot/support-desk/pkg/tracing"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run both bots and the ops HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer log.Sync()

	log.Info("starting support desk", zap.String("env", cfg.Env))

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "support-desk", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(context.WithoutCancel(ctx), tp)
		}
	}

	st, err := openStore(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}

	var (
		publisher   service.EventPublisher
		events      *natsclient.StreamManager
		natsHealthy handler.ConnectionChecker
	)
	if cfg.NATSEnabled {
		nc, err := natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer nc.Close()

		events = natsclient.NewStreamManager(nc)
		if err := events.EnsureStream(ctx); err != nil {
			return fmt.Errorf("nats stream: %w", err)
		}
		publisher = events
		natsHealthy = nc
	}

	tickets := service.NewTicketService(st, log, serviceOptions(cfg, publisher))
	if err := tickets.Init(ctx); err != nil {
		return fmt.Errorf("init tickets: %w", err)
	}

	catalog, err := i18n.Load(cfg.LanguagesDir, cfg.DefaultLanguage, log)
	if err != nil {
		return fmt.Errorf("languages: %w", err)
	}

	userAPI, err := tgbotapi.NewBotAPI(cfg.UserBotToken)
	if err != nil {
		return fmt.Errorf("user bot: %w", err)
	}
	staffAPI, err := tgbotapi.NewBotAPI(cfg.StaffBotToken)
	if err != nil {
		return fmt.Errorf("staff bot: %w", err)
	}
	userMessenger := telegram.NewMessenger(userAPI)
	staffMessenger := telegram.NewMessenger(staffAPI)

	// The logs channel and all staff-facing output go through the staff bot.
	ops := bot.NewChannelLog(staffMessenger, cfg.LogsChannelID, log)

	relay := bot.NewStaffRelay(staffMessenger, catalog)
	userBot := bot.NewUserBot(bot.UserBotConfig{
		Messenger: userMessenger,
		Tickets:   tickets,
		Catalog:   catalog,
		Staff:     relay,
		Ops:       ops,
		Logger:    log,
	})

	staffCfg := bot.StaffBotConfig{
		Messenger:  staffMessenger,
		Tickets:    tickets,
		Catalog:    catalog,
		Users:      userBot,
		Ops:        ops,
		IsAdmin:    cfg.IsAdmin,
		PageSize:   cfg.TicketPageSize,
		ListTTL:    cfg.TicketListCacheTTL,
		DetailsTTL: cfg.TicketDetailsCacheTTL,
		Logger:     log,
	}
	if summarizer := newSummarizer(cfg, log); summarizer != nil {
		staffCfg.Summarizer = summarizer
	}
	staffBot := bot.NewStaffBot(staffCfg)
	relay.OnTicketClosed(staffBot.ForgetTicket)

	health := handler.NewHealthHandler(st, natsHealthy)
	routes := handler.RouterConfig{
		Health:            health,
		Tickets:           handler.NewTicketHandler(tickets, userBot, log),
		Logger:            log,
		JWTSecret:         cfg.JWTSecret,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
	}
	if events != nil {
		routes.Events = handler.NewEventHandler(events, tickets, log)
	}

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      handler.NewRouter(routes),
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	pollOpts := telegram.PollerOptions{Timeout: cfg.PollTimeout}
	pollers := []*telegram.Poller{
		telegram.NewPoller("user", userAPI, userBot, pollOpts, log),
		telegram.NewPoller("staff", staffAPI, staffBot, pollOpts, log),
	}

	var wg sync.WaitGroup
	for _, p := range pollers {
		wg.Add(1)
		go func(p *telegram.Poller) {
			defer wg.Done()
			if err := p.Run(ctx); err != nil {
				log.Error("poller stopped", zap.Error(err))
			}
		}(p)
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	if cfg.StaffChatID != 0 {
		if _, err := staffMessenger.Send(ctx, bot.Outgoing{ChatID: cfg.StaffChatID, Text: "✅ Support desk is online."}); err != nil {
			log.Warn("failed to announce startup", zap.Int64("chat_id", cfg.StaffChatID), zap.Error(err))
		}
	}

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-serverErr:
		log.Error("server error", zap.Error(err))
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}
	wg.Wait()

	log.Info("support desk stopped")
	return nil
}

// newSummarizer returns nil when no LLM key is configured.
func newSummarizer(cfg *config.Config, log *logger.Logger) *llm.TranscriptSummarizer {
	provider := llm.Provider(cfg.DefaultLLM)
	key := cfg.AnthropicAPIKey
	if provider == llm.ProviderOpenAI {
		key = cfg.OpenAIAPIKey
	}
	if key == "" {
		// fall back to whichever provider has a key
		switch {
		case cfg.AnthropicAPIKey != "":
			provider, key = llm.ProviderAnthropic, cfg.AnthropicAPIKey
		case cfg.OpenAIAPIKey != "":
			provider, key = llm.ProviderOpenAI, cfg.OpenAIAPIKey
		default:
			log.Info("no LLM key configured, transcript summaries disabled")
			return nil
		}
	}

	client, err := llm.NewClient(provider, key)
	if err != nil {
		log.Warn("failed to create LLM client, transcript summaries disabled", zap.Error(err))
		return nil
	}
	log.Info("transcript summaries enabled", zap.String("provider", client.Name()))
	return llm.NewTranscriptSummarizer(client, cfg.SummaryModel, log)
}
