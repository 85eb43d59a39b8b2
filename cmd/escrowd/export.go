package main

import (
	"context"
	"fmt"
	"strings"

	"homeescrow/config"
	"homeescrow/eventlog"
	"homeescrow/observability/logging"
)

// runExport dumps the configured event log to a parquet file without starting
// the node.
func runExport(configFile, path, eventType string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, logCloser, err := logging.Setup("escrowd", logging.Options{Env: cfg.Environment, Level: cfg.Logging.Level})
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer logCloser.Close()

	store, err := eventlog.Open(cfg.EventLog.Driver, cfg.ResolvedDSN(), logger)
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	defer store.Close()

	written, err := store.ExportParquet(context.Background(), path, eventlog.Filter{Type: strings.TrimSpace(eventType)})
	if err != nil {
		return err
	}
	fmt.Printf("exported %d events to %s\n", written, path)
	return nil
}
