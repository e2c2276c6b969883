package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"github.com/Tyrowin/chathub/internal/hub"
	"github.com/Tyrowin/chathub/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run wires configuration, hub and HTTP server, then blocks until a signal
// or a listener failure, and shuts everything down in reverse order.
func run() error {
	// A missing .env file is fine, the environment alone is enough.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}

	config, err := server.NewConfigFromEnv()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	chatHub := hub.New(log, hub.Options{
		QueueSize:        config.HubQueueSize,
		RejectDuplicates: config.RejectDuplicateNames,
		VerifyChatter:    config.VerifyChatter,
	})
	go func() {
		if err := chatHub.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("Hub stopped unexpectedly", "error", err)
		}
	}()

	srv := server.New(log, chatHub, *config)
	httpServer := server.CreateServer(config.Port, srv.Routes())

	errChan := make(chan error, 1)
	go func() {
		if err := server.StartServer(log, httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	// Hijacked WebSocket connections are not tracked by http.Server, so the
	// server closes them itself before the hub goes away.
	shutdownErr := errors.Join(
		server.ShutdownServer(log, httpServer, config.ShutdownTimeout),
		srv.Shutdown(config.ShutdownTimeout),
		chatHub.Shutdown(config.ShutdownTimeout),
	)
	if shutdownErr != nil {
		return fmt.Errorf("shutdown: %w", shutdownErr)
	}

	log.Info("Program stopped cleanly")
	return nil
}
