// Copyright 2025 Certen Protocol
//
// anchor-ready-requests runs one anchor batch pass: claims READY requests,
// builds a Merkle tree, commits the root to the ledger, publishes proof and
// anchor commit blocks, and persists the outcome. Intended to run on a
// cron-like cadence, not as a long-lived process.

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/certen/cas/pkg/blockstore"
	"github.com/certen/cas/pkg/config"
	"github.com/certen/cas/pkg/database"
	"github.com/certen/cas/pkg/ledger"
	"github.com/certen/cas/pkg/orchestrator"
)

func main() {
	configPath := flag.String("config", "config/cas.yaml", "path to the CAS batch config YAML file")
	flag.Parse()

	logger := log.New(os.Stdout, "[anchor-ready-requests] ", log.LstdFlags)

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
	anchors := database.NewAnchorRepository(db)
	metadata := database.NewMetadataRepository(db)
	batches := database.NewBatchRepository(db)

	store, err := blockstore.NewPGStore(ctx, cfg.BlockstoreDSN)
	if err != nil {
		return fmt.Errorf("open block store: %w", err)
	}
	defer store.Close()
	blocks := blockstore.NewAdapter(store)

	submitter := ledger.Submitter(ledger.NewSimulatedSubmitter())
	ledgerAdapter := ledger.NewAdapter(submitter, casCfg.Ledger.ChainID, casCfg.Ledger.TxType,
		ledger.WithLogger(log.New(os.Stdout, "[Ledger] ", log.LstdFlags)))

	oracle, err := buildOracle(casCfg.Oracle.ConflictResolution)
	if err != nil {
		return fmt.Errorf("configure oracle: %w", err)
	}

	orchCfg := orchestrator.Config{
		MinStreamLimit:          casCfg.Batch.MinStreamCount,
		MerkleDepthLimit:        casCfg.Merkle.DepthLimit,
		UseSmartContractAnchors: casCfg.Batch.UseSmartContractAnchors,
	}

	orch := orchestrator.New(db, requests, anchors, metadata, batches, blocks, ledgerAdapter, orchCfg,
		orchestrator.WithLogger(logger),
		orchestrator.WithOracle(oracle),
	)

	if err := orch.RunBatch(ctx); err != nil {
		return fmt.Errorf("run batch: %w", err)
	}

	return nil
}

func buildOracle(mode string) (orchestrator.StreamOracle, error) {
	switch mode {
	case "", "passthrough":
		return orchestrator.NewPassthroughOracle(), nil
	case "strict":
		// No external conflict resolver is wired in this process; strict
		// mode without one is a configuration error by design.
		return orchestrator.NewStrictOracle(nil)
	default:
		return nil, fmt.Errorf("unknown oracle.conflict_resolution %q", mode)
	}
}
