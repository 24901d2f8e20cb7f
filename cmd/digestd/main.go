// Digestd is the digest personalization daemon.
//
// It serves an HTTP API that turns a batch of error records into
// per-recipient digests, routed through each project's ownership rules,
// and optionally publishes the results to NATS for delivery.
//
// Configuration is loaded from a YAML file and environment variables.
// See internal/config for details.
//
// Usage:
//
//	# Start with defaults
//	digestd
//
//	# Configure via file and environment
//	digestd -config /etc/sentry/digestd.yaml
//	SERVER_PORT=8080 DATABASE_PATH=/var/lib/sentry/directory.db digestd
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/anthrax3/sentry/internal/config"
	"github.com/anthrax3/sentry/internal/deliver"
	"github.com/anthrax3/sentry/internal/directory"
	sentryhttp "github.com/anthrax3/sentry/internal/http"
	"github.com/anthrax3/sentry/internal/logging"
	"github.com/anthrax3/sentry/internal/personalize"
	"github.com/anthrax3/sentry/internal/telemetry"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()
	args := flag.Args()

	if len(args) > 0 {
		switch args[0] {
		case "version":
			printVersion()
			os.Exit(0)
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", args[0])
			fmt.Fprintf(os.Stderr, "\nUsage:\n")
			fmt.Fprintf(os.Stderr, "  digestd           Start the digest daemon\n")
			fmt.Fprintf(os.Stderr, "  digestd version   Show version information\n")
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

func printVersion() {
	fmt.Printf("digestd\n")
	fmt.Printf("Version:    %s\n", version)
	fmt.Printf("Commit:     %s\n", gitCommit)
	fmt.Printf("Build Date: %s\n", buildDate)
}

// run starts the daemon and blocks until the context is cancelled.
//
// Initialization order:
//  1. Load and validate configuration
//  2. Initialize logger and telemetry
//  3. Open the directory database
//  4. Connect to NATS (when enabled)
//  5. Wire the personalization service and HTTP server
//  6. Graceful shutdown on context cancellation
func run(ctx context.Context, configPath string) error {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync() // Best-effort sync on shutdown
	}()

	logger.Info("starting digestd",
		zap.String("version", version),
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.String("database", cfg.Database.Path))

	tel, err := telemetry.New(ctx, telemetry.Config{
		Enabled:     cfg.Telemetry.Enabled,
		Endpoint:    cfg.Telemetry.Endpoint,
		ServiceName: cfg.Telemetry.ServiceName,
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", zap.Error(err))
		}
	}()

	store, err := directory.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open directory database: %w", err)
	}
	defer store.Close()

	var publisher sentryhttp.Publisher
	var natsConn *nats.Conn
	if cfg.NATS.Enabled {
		natsConn, err = nats.Connect(cfg.NATS.URL,
			nats.RetryOnFailedConnect(true),
			nats.MaxReconnects(5),
			nats.ReconnectWait(1*time.Second),
		)
		if err != nil {
			return fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
		}
		defer natsConn.Close()

		logger.Info("connected to NATS", zap.String("url", cfg.NATS.URL))

		publisher, err = deliver.NewPublisher(natsConn, cfg.NATS.SubjectPrefix, logger)
		if err != nil {
			return fmt.Errorf("failed to create publisher: %w", err)
		}
	}

	svc := personalize.NewService(store, logger, personalize.WithWorkers(cfg.Personalize.Workers))

	srv, err := sentryhttp.NewServer(svc, store, publisher, logger, &sentryhttp.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	})
	if err != nil {
		return fmt.Errorf("failed to create http server: %w", err)
	}

	srv.Echo().GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}
