package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"voicethoughts/config"
	"voicethoughts/config/database"
	"voicethoughts/middleware"
	"voicethoughts/pkg/logger"
	"voicethoughts/pkg/metrics"
	"voicethoughts/router"
	"voicethoughts/socket"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables from OS")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logger.Init(cfg.LogLevel)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Sugar.Fatalf("Could not connect to database. Check your internet or Supabase status: %v", err)
	}
	defer db.Close()

	if cfg.DBAutoMigrate {
		if err := database.EnsureSchema(ctx, db); err != nil {
			logger.Sugar.Fatalf("Failed to apply schema: %v", err)
		}
	}

	var verifier middleware.Verifier
	switch cfg.AuthMode {
	case config.AuthModeJWT:
		verifier = middleware.NewJWTVerifier(cfg.JWTSecret, cfg.JWTAudience)
	default:
		verifier = middleware.NewRemoteVerifier(cfg.SupabaseURL, cfg.SupabaseAnonKey, cfg.AuthTimeout)
	}
	logger.Sugar.Infof("Verifying tokens with %s mode", cfg.AuthMode)

	m := metrics.New(cfg.MetricsNamespace)
	hub := socket.NewHub(m)
	go hub.Run(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router.Setup(cfg, db, hub, verifier, m),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Sugar.Infof("Go Backend listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Sugar.Fatalf("Server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Sugar.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Sugar.Errorf("Graceful shutdown failed: %v", err)
	}
}
