// Copyright 2025 Certen Protocol
//
// build-witness assembles and publishes a witness archive for one already
// anchored request: the anchor commit, the chain proof, and every Merkle
// node on the path between them, read by CID from the block store and
// bundled into a self-contained archive a stream owner can verify offline
// with witness.Verify. The published archive is pinned so it stays
// retrievable independent of the request's own retention window.

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"

	"github.com/certen/cas/pkg/blockstore"
	"github.com/certen/cas/pkg/config"
	"github.com/certen/cas/pkg/database"
	"github.com/certen/cas/pkg/witness"
)

func main() {
	configPath := flag.String("config", "config/cas.yaml", "path to the CAS batch config YAML file")
	requestIDFlag := flag.String("request-id", "", "id of the anchored request to build a witness for")
	flag.Parse()

	logger := log.New(os.Stdout, "[build-witness] ", log.LstdFlags)

	if err := run(*configPath, *requestIDFlag, logger); err != nil {
		logger.Printf("fatal: %v", err)
		os.Exit(1)
	}
}

func run(configPath, requestIDStr string, logger *log.Logger) error {
	if requestIDStr == "" {
		return fmt.Errorf("-request-id is required")
	}
	requestID, err := uuid.Parse(requestIDStr)
	if err != nil {
		return fmt.Errorf("invalid -request-id: %w", err)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load environment config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid environment config: %w", err)
	}

	_, err = config.LoadCASConfig(configPath)
	if err != nil {
		return fmt.Errorf("load CAS config %s: %w", configPath, err)
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

	anchors := database.NewAnchorRepository(db)

	store, err := blockstore.NewPGStore(ctx, cfg.BlockstoreDSN)
	if err != nil {
		return fmt.Errorf("open block store: %w", err)
	}
	defer store.Close()
	blocks := blockstore.NewAdapter(store)

	record, err := anchors.GetAnchorRecordByRequest(ctx, requestID)
	if err != nil {
		return fmt.Errorf("load anchor record for request %s: %w", requestID, err)
	}

	archive, err := witness.Build(ctx, blocks, record.CID, record.ProofCID)
	if err != nil {
		return fmt.Errorf("build witness for request %s: %w", requestID, err)
	}

	archiveCID, err := blocks.PublishWitness(ctx, archive)
	if err != nil {
		return fmt.Errorf("publish witness for request %s: %w", requestID, err)
	}

	logger.Printf("request %s: witness archive published as %s", requestID, archiveCID)
	return nil
}
