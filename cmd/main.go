package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"signin_service/internal/auth"
	"signin_service/internal/config"
	"signin_service/internal/http_server/handlers/health"
	"signin_service/internal/http_server/handlers/me"
	"signin_service/internal/http_server/handlers/redeem"
	"signin_service/internal/http_server/handlers/signin"
	"signin_service/internal/metrics"
	authMiddleware "signin_service/internal/middleware/auth"
	rateLimit "signin_service/internal/middleware/ratelimit"
	"signin_service/internal/rabbitmq"
	"signin_service/internal/storage/postgres"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-playground/validator/v10"
)

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func main() {
	cfg := config.MustLoad("./config/config.yaml")

	log := setupLogger(cfg.Env)

	log.Info("starting sign-in service", slog.String("env", cfg.Env))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Info("Shutdown signal received")
		cancel()
	}()

	storage, err := postgres.New(ctx, cfg)
	if err != nil {
		log.Error("failed to connect postgres", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer storage.Close()

	msgBroker, err := rabbitmq.New(cfg.RabbitMQ.URL, cfg.RabbitMQ.QueueName)
	if err != nil {
		log.Error("failed to connect rabbitmq", slog.String("err", err.Error()))
		os.Exit(1)
	}
	defer msgBroker.Close()

	mtr := metrics.New()

	signInFlow := auth.New(
		log,
		storage,
		storage,
		storage,
		msgBroker,
		mtr,
		cfg.App.URL,
		cfg.Tokens.JWTSecret,
		cfg.Tokens.AccessTokenTTL,
		cfg.Tokens.RefreshTokenTTL,
		cfg.Tokens.VerificationTokenTTL,
	)

	router := setupRouter(log, signInFlow, storage, mtr, cfg.Tokens.JWTSecret)

	srv := &http.Server{
		Addr:         cfg.HTTPServer.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTPServer.Timeout,
		WriteTimeout: cfg.HTTPServer.Timeout,
		IdleTimeout:  cfg.HTTPServer.IdleTimeout,
	}

	go func() {
		log.Info("HTTP server is running")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Server failed", slog.String("err", err.Error()))
			cancel()
		}
	}()

	<-ctx.Done()

	log.Info("Shutting down HTTP server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown error", slog.String("err", err.Error()))
	} else {
		log.Info("Server stopped gracefully")
	}

	log.Info("Main service stopped")
}

func setupRouter(
	log *slog.Logger,
	signInFlow *auth.Auth,
	storage *postgres.PostgresRepo,
	mtr *metrics.Metrics,
	jwtSecret string,
) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	validate := validator.New()

	r.Route("/auth", func(r chi.Router) {
		r.With(rateLimit.SignIn()).Post("/signin",
			signin.New(log, validate, signInFlow),
		)
		r.With(rateLimit.Continue()).Get("/continue/{token}",
			redeem.New(log, signInFlow),
		)
	})

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.New(log, jwtSecret, storage, mtr))

		r.Get("/users/me", me.New(log))
	})

	r.Get("/health", health.New())
	r.Method(http.MethodGet, "/metrics", mtr.Handler())

	return r
}

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = slog.New(
			slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	}

	return log
}
