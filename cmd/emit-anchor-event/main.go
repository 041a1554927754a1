// Copyright 2025 Certen Protocol
//
// emit-anchor-event runs one pass of the anchor event emitter: it expires
// stale READY requests back to PENDING, or promotes new PENDING requests to
// READY, and emits a signal when either step produces anything.

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/certen/cas/pkg/config"
	"github.com/certen/cas/pkg/database"
	"github.com/certen/cas/pkg/emitter"
)

func main() {
	configPath := flag.String("config", "config/cas.yaml", "path to the CAS batch config YAML file")
	flag.Parse()

	logger := log.New(os.Stdout, "[emit-anchor-event] ", log.LstdFlags)

	if err := run(*configPath, logger); err != nil {
		logger.Printf("fatal: %v", err)
		os.Exit(1)
	}
}

func run(configPath string, logger *log.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load environment config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid environment config: %w", err)
	}

	casCfg, err := config.LoadCASConfig(configPath)
	if err != nil {
		return fmt.Errorf("load CAS config %s: %w", configPath, err)
	}
	if err := casCfg.ValidateCASConfig(); err != nil {
		return fmt.Errorf("invalid CAS config: %w", err)
	}

	if !cfg.IsTest() {
		time.Sleep(2 * time.Second)
	}

	ctx := context.Background()

	db, err := database.NewClient(cfg, database.WithLogger(log.New(os.Stdout, "[Database] ", log.LstdFlags)))
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	if err := db.MigrateUp(ctx); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	requests := database.NewRequestRepository(db)

	maxStreamLimit := 1 << uint(casCfg.Merkle.DepthLimit)
	e := emitter.New(requests, emitter.Config{
		MaxStreamLimit: maxStreamLimit,
		MinStreamLimit: casCfg.Batch.MinStreamCount,
		ReadyExpiry:    casCfg.Batch.ReadyExpiry.Duration(),
	}, emitter.WithLogger(logger))

	if err := e.EmitIfReady(ctx); err != nil {
		return fmt.Errorf("emit if ready: %w", err)
	}

	return nil
}
