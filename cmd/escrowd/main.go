package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"homeescrow/cmd/internal/passphrase"
	"homeescrow/config"
	"homeescrow/core"
	"homeescrow/core/events"
	"homeescrow/eventlog"
	"homeescrow/observability"
	"homeescrow/observability/logging"
	telemetry "homeescrow/observability/otel"
	"homeescrow/rpc"
	"homeescrow/storage"
)

const keystorePassEnv = "ESCROWD_KEYSTORE_PASS"

func main() {
	configFile := flag.String("config", "./escrowd.toml", "Path to the configuration file")
	listen := flag.String("listen", "", "Override the configured listen address")
	exportPath := flag.String("export-events", "", "Write the event log to this parquet file and exit")
	exportType := flag.String("export-type", "", "Only export events of this type")
	flag.Parse()

	var err error
	if strings.TrimSpace(*exportPath) != "" {
		err = runExport(*configFile, *exportPath, *exportType)
	} else {
		err = run(*configFile, *listen)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "escrowd: %v\n", err)
		os.Exit(1)
	}
}

func run(configFile, listenOverride string) error {
	passSource := passphrase.NewSource(keystorePassEnv)
	cfg, err := config.Load(configFile, config.WithKeystorePassphraseSource(passSource.Get))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if strings.TrimSpace(listenOverride) != "" {
		cfg.ListenAddress = strings.TrimSpace(listenOverride)
	}

	env := strings.TrimSpace(os.Getenv("ESCROWD_ENV"))
	if env == "" {
		env = cfg.Environment
	}
	logger, logCloser, err := logging.Setup("escrowd", logging.Options{
		Env:        env,
		Level:      cfg.Logging.Level,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: cfg.Telemetry.ServiceName,
		Environment: env,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	roles, err := cfg.Roles()
	if err != nil {
		return err
	}
	allocations, err := cfg.GenesisAllocations()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("prepare data directory: %w", err)
	}
	db, err := storage.Open(cfg.StateBackend, cfg.StatePath())
	if err != nil {
		return fmt.Errorf("open state database: %w", err)
	}
	defer db.Close()

	store, err := eventlog.Open(cfg.EventLog.Driver, cfg.ResolvedDSN(), logger)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	defer store.Close()

	node, err := core.NewNode(db, core.Options{
		Roles:       roles,
		Pauses:      cfg.Pauses,
		Sink:        events.Fanout{store, observability.Events()},
		Logger:      logger,
		Allocations: allocations,
	})
	if err != nil {
		return fmt.Errorf("create node: %w", err)
	}
	defer node.Close()
	observability.Escrow().SetCustodied(node.EscrowBalance())

	server, err := rpc.NewServer(node, store, rpc.ServerConfig{
		AuthToken: cfg.AuthToken(),
		JWT: rpc.JWTConfig{
			Enable:         cfg.RPC.JWT.Enable,
			Issuer:         cfg.RPC.JWT.Issuer,
			Audience:       cfg.RPC.JWT.Audience,
			HSSecretEnv:    cfg.RPC.JWT.HSSecretEnv,
			MaxSkewSeconds: cfg.RPC.JWT.MaxSkewSeconds,
		},
		RateLimitPerSecond: cfg.RPC.RateLimitPerSecond,
		RateLimitBurst:     cfg.RPC.RateLimitBurst,
		TrustProxyHeaders:  cfg.RPC.TrustProxyHeaders,
		ReadHeaderTimeout:  cfg.RPC.ReadHeaderTimeout(),
		MaxConnections:     cfg.RPC.MaxConnections,
		AllowedOrigins:     cfg.RPC.AllowedOrigins,
		EscrowQuota:        cfg.Quotas.Escrow.Runtime(),
		DeedQuota:          cfg.Quotas.Deed.Runtime(),
	}, logger)
	if err != nil {
		return fmt.Errorf("create rpc server: %w", err)
	}

	logger.Info("escrowd starting",
		slog.String("listen", cfg.ListenAddress),
		slog.String("dataDir", cfg.DataDir),
		slog.String("eventLog", cfg.EventLog.Driver),
		slog.String("seller", cfg.Escrow.Seller),
		slog.String("inspector", cfg.Escrow.Inspector),
		slog.String("lender", cfg.Escrow.Lender))

	if err := server.Serve(ctx, cfg.ListenAddress); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("rpc server: %w", err)
	}
	logger.Info("escrowd stopped")
	return nil
}
