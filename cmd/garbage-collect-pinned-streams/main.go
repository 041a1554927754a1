// Copyright 2025 Certen Protocol
//
// garbage-collect-pinned-streams runs one GC pass over COMPLETED requests
// whose retention window has elapsed: it unpins each request's anchor
// commit block and clears its pinned flag, freeing the block store to
// reclaim content that no longer needs to stay retrievable.

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
)

func main() {
	configPath := flag.String("config", "config/cas.yaml", "path to the CAS batch config YAML file")
	flag.Parse()

	logger := log.New(os.Stdout, "[garbage-collect-pinned-streams] ", log.LstdFlags)

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
	store, err := blockstore.NewPGStore(ctx, cfg.BlockstoreDSN)
	if err != nil {
		return fmt.Errorf("open block store: %w", err)
	}
	defer store.Close()
	blocks := blockstore.NewAdapter(store)

	candidates, err := requests.FindRequestsToGarbageCollect(ctx, casCfg.Blockstore.GCRetention.Duration(), casCfg.Blockstore.GCBatchSize)
	if err != nil {
		return fmt.Errorf("find garbage collection candidates: %w", err)
	}
	if len(candidates) == 0 {
		logger.Printf("nothing to collect")
		return nil
	}

	var collected int
	for _, r := range candidates {
		record, err := anchors.GetAnchorRecordByRequest(ctx, r.ID)
		if err != nil {
			logger.Printf("request %s: failed to load anchor record: %v", r.ID, err)
			continue
		}

		// Only the per-stream anchor commit block is unpinned here; the
		// shared proof block's lifecycle is tied to its batch, not to any
		// one request, so it is left for the batch's own retention policy.
		if err := blocks.Unpin(ctx, record.CID); err != nil {
			logger.Printf("request %s: failed to unpin anchor commit %s: %v", r.ID, record.CID, err)
			continue
		}

		if err := requests.UnpinRequest(ctx, r.ID); err != nil {
			logger.Printf("request %s: failed to clear pinned flag: %v", r.ID, err)
			continue
		}

		if err := metadata.IncrementPinnedCount(ctx, r.StreamID, -1); err != nil {
			logger.Printf("stream %s: failed to decrement pinned count: %v", r.StreamID, err)
		}

		collected++
	}

	logger.Printf("garbage collection pass complete: %d/%d requests unpinned", collected, len(candidates))
	return nil
}
