package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/dental-ai-assistant/internal/api/router"
	"github.com/wolfman30/dental-ai-assistant/internal/booking"
	"github.com/wolfman30/dental-ai-assistant/internal/clinic"
	appconfig "github.com/wolfman30/dental-ai-assistant/internal/config"
	"github.com/wolfman30/dental-ai-assistant/internal/conversation"
	"github.com/wolfman30/dental-ai-assistant/internal/gsync"
	"github.com/wolfman30/dental-ai-assistant/internal/http/handlers"
	"github.com/wolfman30/dental-ai-assistant/internal/messaging"
	"github.com/wolfman30/dental-ai-assistant/internal/notify"
	"github.com/wolfman30/dental-ai-assistant/internal/patients"
	"github.com/wolfman30/dental-ai-assistant/internal/scheduler"
	"github.com/wolfman30/dental-ai-assistant/pkg/logging"
)

func main() {
	// .env is optional, real deployments set variables directly
	_ = godotenv.Load()

	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting dental-ai-assistant", "env", cfg.Env, "port", cfg.Port)

	ctx := context.Background()

	location, err := time.LoadLocation(cfg.ClinicTimezone)
	if err != nil {
		logger.Error("invalid clinic timezone", "timezone", cfg.ClinicTimezone, "error", err)
		os.Exit(1)
	}

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create postgres pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		logger.Error("postgres unreachable", "error", err)
		os.Exit(1)
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Error("redis unreachable", "addr", cfg.RedisAddr, "error", err)
		os.Exit(1)
	}
	defer rdb.Close()

	// Stores
	clientsRepo := patients.NewPgRepository(pool)
	bookingsRepo := booking.NewPgRepository(pool)
	clinicStore := clinic.NewPgStore(pool)
	history := conversation.NewHistoryStore(pool, nil)

	// Google sync, both optional
	calendar, err := gsync.NewCalendar(ctx, cfg.GoogleCredentialsPath, cfg.GoogleCalendarID, cfg.ClinicTimezone, logger.Named("calendar"))
	if err != nil {
		logger.Error("google calendar init failed", "error", err)
		os.Exit(1)
	}
	sheets, err := gsync.NewSheets(ctx, cfg.GoogleCredentialsPath, cfg.GoogleSheetsID, logger.Named("sheets"))
	if err != nil {
		logger.Error("google sheets init failed", "error", err)
		os.Exit(1)
	}

	// Transports
	whatsapp, err := messaging.NewGreenAPIClient(messaging.GreenAPIConfig{
		BaseURL:    cfg.GreenAPIBaseURL,
		InstanceID: cfg.GreenAPIInstanceID,
		Token:      cfg.GreenAPIToken,
		Logger:     logger.Named("greenapi"),
	})
	if err != nil {
		logger.Error("green-api init failed", "error", err)
		os.Exit(1)
	}

	var telegramBot *messaging.TelegramBot
	if cfg.TelegramBotToken != "" {
		telegramBot, err = messaging.NewTelegramBot(messaging.TelegramConfig{
			Token:  cfg.TelegramBotToken,
			Linker: clientsRepo,
			Logger: logger.Named("telegram"),
		})
		if err != nil {
			logger.Error("telegram init failed", "error", err)
			os.Exit(1)
		}
	}

	var telegramChannel notify.Channel
	if telegramBot != nil {
		telegramChannel = telegramBot
	}
	notifier := notify.NewService(clientsRepo, whatsapp, telegramChannel, logger.Named("notify"))

	// Conversation stack
	llm, err := conversation.NewOpenRouterClient(conversation.OpenRouterConfig{
		APIKey:  cfg.OpenRouterAPIKey,
		BaseURL: cfg.OpenRouterBaseURL,
		Model:   cfg.AIModel,
	})
	if err != nil {
		logger.Error("openrouter init failed", "error", err)
		os.Exit(1)
	}

	info := clinic.Info{
		Name:               cfg.ClinicName,
		Address:            cfg.ClinicAddress,
		Phone:              cfg.ClinicPhone,
		Hours:              clinic.DefaultHours,
		CancellationPolicy: "Cancellations and reschedules require at least 2 hours notice.",
	}
	rules := booking.Rules{
		HorizonDays:     cfg.BookingHorizonDays,
		GridMinutes:     cfg.SlotGridMinutes,
		CancelLeadHours: cfg.CancelLeadHours,
		ClosingHour:     cfg.ClinicClosingHour,
	}

	dispatcher := conversation.NewDispatcher(conversation.DispatcherConfig{
		Clients:     clientsRepo,
		Bookings:    bookingsRepo,
		Clinic:      clinicStore,
		Info:        info,
		Rules:       rules,
		SlotMinutes: cfg.SlotGridMinutes,
		Location:    location,
		Calendar:    calendar,
		Sheets:      sheets,
		Logger:      logger.Named("dispatcher"),
	})

	agent := conversation.NewAgent(conversation.AgentConfig{
		LLM:      llm,
		Executor: dispatcher,
		Clients:  clientsRepo,
		Bookings: bookingsRepo,
		History:  history,
		Notifier: notifier,
		Info:     info,
		Retry: conversation.RetryPolicy{
			MaxAttempts:    cfg.LLMMaxAttempts,
			Delay:          cfg.LLMRetryDelay,
			AttemptTimeout: cfg.LLMTimeout,
			Retryable:      conversation.IsTransient,
		},
		ToolLoopLimit: cfg.ToolLoopLimit,
		ContextBudget: cfg.ContextCharBudget,
		Location:      location,
		Logger:        logger.Named("agent"),
	})

	ingress := messaging.NewIngress(messaging.IngressConfig{
		Agent:           agent,
		Clients:         clientsRepo,
		Redis:           rdb,
		Logger:          logger.Named("ingress"),
		DedupTTL:        cfg.DedupTTL,
		RateLimitMax:    cfg.RateLimitMax,
		RateLimitWindow: cfg.RateLimitWindow,
		LockWaitTimeout: cfg.LockWaitTimeout,
	})

	webhook := handlers.NewWhatsAppWebhookHandler(ingress, whatsapp, logger.Named("webhook"))
	r := router.New(&router.Config{
		Logger:          logger,
		WhatsAppWebhook: webhook,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	workerCtx, stopWorkers := context.WithCancel(ctx)
	defer stopWorkers()

	jobs := scheduler.New(scheduler.Config{
		Store:    bookingsRepo,
		Notifier: notifier,
		Logger:   logger.Named("scheduler"),
		Interval: cfg.SchedulerInterval,
		Location: location,
	})
	go jobs.Run(workerCtx)

	if telegramBot != nil {
		go telegramBot.Poll(workerCtx, func(ctx context.Context, in messaging.Inbound) string {
			return ingress.Handle(ctx, in)
		})
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	stopWorkers()

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
