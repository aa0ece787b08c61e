package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/ledgerline/be-payment-approvals/internal/auth"
	"github.com/ledgerline/be-payment-approvals/internal/cache"
	"github.com/ledgerline/be-payment-approvals/internal/client"
	"github.com/ledgerline/be-payment-approvals/internal/config"
	"github.com/ledgerline/be-payment-approvals/internal/database"
	"github.com/ledgerline/be-payment-approvals/internal/handler"
	"github.com/ledgerline/be-payment-approvals/internal/logger"
	"github.com/ledgerline/be-payment-approvals/internal/repository"
	"github.com/ledgerline/be-payment-approvals/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(logger.Config{
		Level:       cfg.Log.Level,
		Environment: cfg.Service.Environment,
		ServiceName: cfg.Service.Name,
		Version:     cfg.Service.Version,
	})

	log.Info().
		Str("environment", cfg.Service.Environment).
		Msg("Starting Payment Approvals Service")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := database.New(ctx, database.Config{
		URL:         cfg.Database.URL,
		MaxConns:    cfg.Database.MaxConns,
		MinConns:    cfg.Database.MinConns,
		MaxIdleTime: cfg.Database.MaxIdleTime,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()
	log.Info().Msg("Database connection established")

	// Initialize route cache (optional)
	var routeCache service.RouteCache
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis unreachable, running without route cache")
		} else {
			routeCache = cache.NewRouteCache(rdb, cfg.Redis.RouteTTL, log.Logger)
			defer rdb.Close()
			log.Info().Str("addr", cfg.Redis.Addr).Msg("Route cache enabled")
		}
	}

	// Initialize notification publisher (optional)
	var notifier service.Notifier
	if cfg.NATS.URL != "" {
		nc, err := nats.Connect(cfg.NATS.URL,
			nats.Name(cfg.Service.Name),
			nats.MaxReconnects(-1),
		)
		if err != nil {
			log.Warn().Err(err).Str("url", cfg.NATS.URL).Msg("NATS unreachable, running without notifications")
		} else {
			notifier = client.NewNotificationPublisher(nc, log.Logger)
			defer nc.Drain()
			log.Info().Str("url", cfg.NATS.URL).Msg("Notification publisher enabled")
		}
	}

	// Initialize repositories
	routeRepo := repository.NewRouteRepository(db)
	approvalRepo := repository.NewApprovalRepository(db)
	stepRepo := repository.NewStepRepository(db)
	paymentRepo := repository.NewPaymentRepository(db)
	invoiceRepo := repository.NewInvoiceRepository(db)
	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	// Initialize services
	approvalService := service.NewApprovalService(
		routeRepo, approvalRepo, stepRepo, paymentRepo, invoiceRepo,
		userRepo, auditRepo, notifier, routeCache, log,
	)
	routeService := service.NewRouteService(routeRepo, routeCache, log)

	// Setup HTTP routes
	httpHandler := handler.NewHTTPHandler(approvalService, routeService, log)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(logger.RequestLogger(log))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(cfg.Server.RequestTimeout))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware([]byte(cfg.Auth.JWTSecret)))
		httpHandler.Register(r)
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	log.Info().Msg("Server stopped")
}
