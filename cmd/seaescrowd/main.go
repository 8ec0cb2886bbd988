package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"seaescrow/config"
	"seaescrow/core"
	"seaescrow/core/events"
	"seaescrow/observability/logging"
	"seaescrow/observability/metrics"
	telemetry "seaescrow/observability/otel"
	"seaescrow/rpc"
	"seaescrow/rpc/middleware"
	"seaescrow/storage"
	"seaescrow/storage/audit"
)

const serviceName = "seaescrowd"

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configFile, nil); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", serviceName, err)
		os.Exit(1)
	}
}

// run starts the daemon and blocks until ctx is cancelled. ready, when set,
// receives the bound RPC address once the listener is up.
func run(ctx context.Context, configPath string, ready chan<- string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, logCloser, err := logging.Setup(serviceName, cfg.Environment, logging.Options{
		Level:      cfg.Log.Level,
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	if err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	defer logCloser.Close()

	programID, err := cfg.ProgramAddress()
	if err != nil {
		return err
	}
	tokenProgramID, err := cfg.TokenProgramAddress()
	if err != nil {
		return err
	}

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: serviceName,
		Environment: cfg.Environment,
		ProgramID:   programID.String(),
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.String("error", err.Error()))
		}
	}()

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	db, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		return fmt.Errorf("open state: %w", err)
	}
	defer db.Close()

	journal, err := audit.Open(cfg.AuditDB)
	if err != nil {
		return fmt.Errorf("open audit journal: %w", err)
	}
	defer journal.Close()

	runtime, err := core.NewRuntime(db, programID, tokenProgramID,
		core.WithLogger(logger),
		core.WithMetrics(metrics.Escrow()),
		core.WithRecorder(journal),
		core.WithEmitter(eventLog{logger: logger}),
	)
	if err != nil {
		return err
	}

	authCfg := middleware.AuthConfig{
		Enabled:  cfg.RPC.RequireAuth,
		Issuer:   cfg.RPC.JWTIssuer,
		Audience: cfg.RPC.JWTAudience,
	}
	if cfg.RPC.RequireAuth {
		secret := strings.TrimSpace(os.Getenv(cfg.RPC.JWTSecretEnv))
		if secret == "" {
			return fmt.Errorf("rpc auth enabled but %s is empty", cfg.RPC.JWTSecretEnv)
		}
		authCfg.HMACSecret = secret
	}
	server, err := rpc.NewServer(runtime, journal, rpc.ServerConfig{
		MaxBodyBytes:      cfg.RPC.MaxBodyBytes,
		ReadHeaderTimeout: seconds(cfg.RPC.ReadHeaderTimeout),
		ReadTimeout:       seconds(cfg.RPC.ReadTimeout),
		WriteTimeout:      seconds(cfg.RPC.WriteTimeout),
		IdleTimeout:       seconds(cfg.RPC.IdleTimeout),
		TrustProxyHeaders: cfg.RPC.TrustProxyHeaders,
		SubmitRateLimit: middleware.RateLimit{
			RatePerSecond: cfg.RPC.RateLimitPerSecond,
			Burst:         cfg.RPC.RateLimitBurst,
		},
		Auth:    authCfg,
		Tracing: cfg.Telemetry.Traces,
	}, logger)
	if err != nil {
		return err
	}

	listener, err := net.Listen("tcp", cfg.RPCAddress)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	logger.Info("seaescrow daemon started",
		slog.String("program", programID.String()),
		slog.String("tokenProgram", runtime.TokenProgramID().String()),
		slog.String("rpc", listener.Addr().String()))
	if ready != nil {
		ready <- listener.Addr().String()
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Serve(listener) }()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", slog.String("error", err.Error()))
	}
	return nil
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// eventLog writes committed events to the service log. Attributes outside
// the logging allowlist are masked.
type eventLog struct {
	logger *slog.Logger
}

func (e eventLog) Emit(ev events.Event) {
	payload := events.Payload(ev)
	if payload == nil {
		return
	}
	attrs := make([]any, 0, len(payload.Attributes)+1)
	attrs = append(attrs, slog.String("event", payload.Type))
	for key, value := range payload.Attributes {
		attrs = append(attrs, logging.MaskField(key, value))
	}
	e.logger.Info("event committed", attrs...)
}
