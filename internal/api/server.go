package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tiendademo/whatsapp-agent/internal/biz/repo"
	"github.com/tiendademo/whatsapp-agent/internal/biz/usecase"
	"github.com/tiendademo/whatsapp-agent/internal/infra/whatsapp"
	"github.com/tiendademo/whatsapp-agent/internal/server"
	"github.com/tiendademo/whatsapp-agent/pkg/logger"
)

const shutdownTimeout = 5 * time.Second

// WhatsApp is the transport control surface exposed to the panel
type WhatsApp interface {
	Status() server.Status
	Logout(ctx context.Context) error
	Subscribe() (<-chan whatsapp.Event, func())
}

// Config contains admin API settings
type Config struct {
	Addr              string
	Username          string
	Password          string
	JWTSecret         string
	RateLimitRequests int
	RateLimitWindow   time.Duration
	AllowedOrigins    []string
}

// Server provides the admin HTTP API for the operator panel
type Server struct {
	config        Config
	configRepo    repo.ConfigRepo
	chatRepo      repo.ChatStateRepo
	analyticsRepo repo.AnalyticsRepo
	pipeline      *usecase.AIPipeline
	wa            WhatsApp
	log           *logger.Logger
	now           func() time.Time
}

// NewServer creates a new API server. analyticsRepo and wa may be nil.
func NewServer(
	config Config,
	configRepo repo.ConfigRepo,
	chatRepo repo.ChatStateRepo,
	analyticsRepo repo.AnalyticsRepo,
	pipeline *usecase.AIPipeline,
	wa WhatsApp,
	log *logger.Logger,
) *Server {
	if config.RateLimitRequests <= 0 {
		config.RateLimitRequests = 60
	}
	if config.RateLimitWindow <= 0 {
		config.RateLimitWindow = time.Minute
	}
	if len(config.AllowedOrigins) == 0 {
		config.AllowedOrigins = []string{"https://*", "http://*"}
	}
	return &Server{
		config:        config,
		configRepo:    configRepo,
		chatRepo:      chatRepo,
		analyticsRepo: analyticsRepo,
		pipeline:      pipeline,
		wa:            wa,
		log:           logger.OrGlobal(log).Component("api"),
		now:           time.Now,
	}
}

// Handler builds the router
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(Logging(s.log))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(RateLimit(s.config.RateLimitRequests, s.config.RateLimitWindow))

		r.Post("/login", s.handleLogin)

		r.Group(func(r chi.Router) {
			r.Use(Auth(s.config.JWTSecret))

			r.Get("/config", s.handleGetConfig)
			r.Post("/config", s.handleSaveConfig)

			r.Get("/context", s.handleGetContext)
			r.Post("/context/{section}", s.handleSetContext)
			r.Delete("/context/{section}", s.handleDeleteContext)

			r.Post("/reload", s.handleReload)

			r.Route("/whatsapp", func(r chi.Router) {
				r.Get("/status", s.handleWhatsAppStatus)
				r.Get("/qr", s.handleWhatsAppQR)
				r.Post("/logout", s.handleWhatsAppLogout)
				r.Get("/events", s.handleWhatsAppEvents)
			})

			r.Route("/ai", func(r chi.Router) {
				r.Post("/test", s.handleAITest)
				r.Post("/intent", s.handleAIIntent)
				r.Get("/metrics", s.handleAIMetrics)
			})

			r.Get("/chats/{id}", s.handleGetChat)
		})
	})

	return r
}

// Start serves until ctx is done, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("Admin API listening", zap.String("addr", s.config.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.log.Warn("Admin API forced to shutdown", zap.Error(err))
		return err
	}
	s.log.Info("Admin API stopped")
	return nil
}
