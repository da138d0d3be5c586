package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tiendademo/whatsapp-agent/internal/api"
	"github.com/tiendademo/whatsapp-agent/internal/biz/usecase"
	"github.com/tiendademo/whatsapp-agent/internal/conf"
	"github.com/tiendademo/whatsapp-agent/internal/data"
	"github.com/tiendademo/whatsapp-agent/internal/infra/groq"
	"github.com/tiendademo/whatsapp-agent/internal/infra/whatsapp"
	"github.com/tiendademo/whatsapp-agent/internal/server"
	"github.com/tiendademo/whatsapp-agent/internal/service"
	"github.com/tiendademo/whatsapp-agent/pkg/logger"
	"github.com/tiendademo/whatsapp-agent/pkg/tracing"
)

func main() {
	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := conf.LoadFromEnv()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logr, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logr.Sync()
	logger.SetGlobal(logr)

	if err := run(cfg, logr); err != nil {
		logr.Error("Agent stopped with error", zap.Error(err))
		logr.Sync()
		os.Exit(1)
	}
	logr.Info("Agent stopped")
}

func newLogger(cfg *conf.Config) (*logger.Logger, error) {
	if cfg.Debug || cfg.Env == "development" {
		return logger.NewDevelopment()
	}
	return logger.New(cfg.LogLevel)
}

func run(cfg *conf.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Tracing.Enabled {
		tp, err := tracing.InitTracer(ctx, "whatsapp-agent", cfg.Tracing.Endpoint)
		if err != nil {
			log.Warn("Failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(context.Background(), tp)
		}
	}

	// Optional analytics fan-out
	var publisher data.InteractionPublisher
	if cfg.NATSURL != "" {
		natsPub, err := data.NewNATSPublisher(cfg.NATSURL, log)
		if err != nil {
			log.Warn("NATS unavailable, analytics events will not be published", zap.Error(err))
		} else {
			defer natsPub.Close()
			publisher = natsPub
		}
	}

	// Initialize clients
	var groqClient *groq.Client
	if cfg.Groq.APIKey != "" {
		groqClient = groq.NewClient(cfg.Groq.APIKey, cfg.Groq.Model, cfg.Groq.BaseURL)
	} else {
		log.Warn("GROQ_API_KEY not set, AI assistance disabled")
	}

	waClient := whatsapp.NewClient(whatsapp.Config{
		DBPath:   cfg.WhatsApp.DBPath,
		QROutput: os.Stdout,
	}, log)

	// Initialize data layer
	repos, err := data.NewRepositories(waClient, groqClient, data.Options{
		ConfigPath:      cfg.ConfigPath,
		StoreName:       cfg.StoreName,
		AnalyticsDBPath: cfg.AnalyticsDBPath,
		Publisher:       publisher,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to create repositories: %w", err)
	}
	defer repos.Close()

	// Initialize usecase layer
	messages := cfg.ToMessages()
	router := usecase.NewRouter(messages, cfg.ToAdminCredentials())
	pipeline := usecase.NewAIPipeline(repos.Completion, repos.Analytics, messages, cfg.ToPipelineConfig(), log)

	// Initialize service layer
	convSvc := service.NewConversationService(router, pipeline,
		repos.ChatState, repos.Config, repos.Message,
		service.Options{BufferWindow: cfg.BufferWindow},
		log,
	)
	sweeper := service.NewSweeper(repos.ChatState, repos.Analytics, service.SweeperConfig{}, log)

	// Initialize servers
	waServer := server.NewWhatsAppServer(waClient, convSvc, log)
	apiServer := api.NewServer(api.Config{
		Addr:              cfg.HTTP.Addr,
		Username:          cfg.Admin.Username,
		Password:          cfg.Admin.Password,
		JWTSecret:         cfg.Admin.JWTSecret,
		RateLimitRequests: cfg.HTTP.RateLimitRequests,
		RateLimitWindow:   cfg.HTTP.RateLimitWindow,
	}, repos.Config, repos.ChatState, repos.Analytics, pipeline, waServer, log)

	log.Info("Starting WhatsApp agent",
		zap.String("store", cfg.StoreName),
		zap.String("config", cfg.ConfigPath),
		zap.Duration("buffer_window", cfg.BufferWindow),
		zap.Bool("ai_available", pipeline.Enabled(repos.Config.Get())),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return apiServer.Start(gctx)
	})
	g.Go(func() error {
		return waServer.Start(gctx)
	})
	g.Go(func() error {
		return repos.Config.Watch(gctx)
	})
	g.Go(func() error {
		sweeper.Start(gctx)
		<-gctx.Done()
		sweeper.Stop()
		return nil
	})

	err = g.Wait()
	log.Info("Shutting down...")
	return err
}
