// Command server runs the contract server over plain HTTP for local
// development.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jun/cote/internal/app"
	"github.com/jun/cote/internal/config"
	"github.com/jun/cote/internal/logging"
	"go.uber.org/zap"
)

func main() {
	cfg := config.LoadServer()

	logger, err := logging.New(logging.Options{
		Level:       os.Getenv("LOG_LEVEL"),
		Development: cfg.DevMode,
	})
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.NewApp(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize app", zap.Error(err))
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           application,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("starting local server", zap.String("addr", cfg.Addr), zap.Bool("dev_mode", cfg.DevMode))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server failed", zap.Error(err))
	}
}
