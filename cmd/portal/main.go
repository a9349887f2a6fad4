package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"careerjourney.app/portal/internal/portal/authapi"
	"careerjourney.app/portal/internal/portal/config"
	"careerjourney.app/portal/internal/portal/httpserver"
	"careerjourney.app/portal/internal/portal/logging"
	"careerjourney.app/portal/internal/portal/tokenstore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	baseLogger, err := logging.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("portal")

	if cfg.Token.Ephemeral {
		logger.Warn("PORTAL_TOKEN_HASH_KEY not set; token cookies will not survive a restart")
	}

	client, err := authapi.NewClient(cfg.APIBaseURL, http.DefaultClient)
	if err != nil {
		logger.Fatal("failed to initialise auth client", zap.Error(err))
	}

	tokens, err := tokenstore.New(tokenstore.Config{
		HashKey:  cfg.Token.HashKey,
		BlockKey: cfg.Token.BlockKey,
		Secure:   cfg.Token.Secure,
	})
	if err != nil {
		logger.Fatal("failed to initialise token store", zap.Error(err))
	}

	srv, err := httpserver.New(httpserver.Config{
		Address:          cfg.Address,
		LoginPath:        cfg.LoginPath,
		Authenticator:    client,
		Tokens:           tokens,
		Logger:           logger,
		CSRFCookieName:   cfg.CSRFCookieName,
		CSRFCookieSecure: cfg.Token.Secure,
	})
	if err != nil {
		logger.Fatal("failed to build http server", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	logger.Info("portal server listening",
		zap.String("addr", cfg.Address),
		zap.String("env", cfg.Environment),
		zap.String("login_endpoint", client.Endpoint()),
	)

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
		cancel()
		stop()
		os.Exit(1)
	}
	logger.Info("portal server stopped")
}
