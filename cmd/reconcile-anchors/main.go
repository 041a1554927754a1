// Copyright 2025 Certen Protocol
//
// reconcile-anchors replays the persist step for one batch whose ledger
// commit and block publication already succeeded but whose database
// transaction did not. It takes the batch id, the recomputed root, and the
// on-chain receipt an operator has already confirmed, as flags.

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/certen/cas/pkg/blockstore"
	"github.com/certen/cas/pkg/config"
	"github.com/certen/cas/pkg/database"
	"github.com/certen/cas/pkg/ledger"
	"github.com/certen/cas/pkg/orchestrator"
)

func main() {
	configPath := flag.String("config", "config/cas.yaml", "path to the CAS batch config YAML file")
	batchIDFlag := flag.String("batch-id", "", "id of the stuck batch to reconcile")
	rootFlag := flag.String("root", "", "merkle root the batch committed")
	txHashFlag := flag.String("tx-hash", "", "confirmed transaction hash")
	blockNumberFlag := flag.Uint64("block-number", 0, "confirmed block number")
	chainIDFlag := flag.String("chain-id", "", "chain id the transaction was confirmed on")
	txTypeFlag := flag.String("tx-type", "", "transaction type tag recorded on the proof block")
	blockTimestampFlag := flag.String("block-timestamp", "", "RFC3339 timestamp of the confirmed block (defaults to now)")
	flag.Parse()

	logger := log.New(os.Stdout, "[reconcile-anchors] ", log.LstdFlags)

	blockTimestamp := time.Now()
	if *blockTimestampFlag != "" {
		parsed, err := time.Parse(time.RFC3339, *blockTimestampFlag)
		if err != nil {
			logger.Printf("fatal: invalid -block-timestamp: %v", err)
			os.Exit(1)
		}
		blockTimestamp = parsed
	}

	if err := run(*configPath, *batchIDFlag, *rootFlag, *txHashFlag, *blockNumberFlag, *chainIDFlag, *txTypeFlag, blockTimestamp, logger); err != nil {
		logger.Printf("fatal: %v", err)
		os.Exit(1)
	}
}

func run(configPath, batchIDStr, root, txHash string, blockNumber uint64, chainID, txType string, blockTimestamp time.Time, logger *log.Logger) error {
	if batchIDStr == "" || root == "" || txHash == "" || chainID == "" {
		return fmt.Errorf("-batch-id, -root, -tx-hash, and -chain-id are required")
	}
	batchID, err := uuid.Parse(batchIDStr)
	if err != nil {
		return fmt.Errorf("invalid -batch-id: %w", err)
	}

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

	ledgerAdapter := ledger.NewAdapter(ledger.NewSimulatedSubmitter(), casCfg.Ledger.ChainID, casCfg.Ledger.TxType,
		ledger.WithLogger(log.New(os.Stdout, "[Ledger] ", log.LstdFlags)))

	orchCfg := orchestrator.Config{
		MinStreamLimit:          casCfg.Batch.MinStreamCount,
		MerkleDepthLimit:        casCfg.Merkle.DepthLimit,
		UseSmartContractAnchors: casCfg.Batch.UseSmartContractAnchors,
	}
	orch := orchestrator.New(db, requests, anchors, metadata, batches, blocks, ledgerAdapter, orchCfg,
		orchestrator.WithLogger(logger))

	receipt := &ledger.TxReceipt{
		TxHash:         txHash,
		BlockNumber:    blockNumber,
		BlockTimestamp: blockTimestamp,
		ChainID:        chainID,
		TxType:         txType,
	}

	if err := orch.ReconcilePersistFailure(ctx, batchID, root, receipt); err != nil {
		return fmt.Errorf("reconcile batch %s: %w", batchID, err)
	}

	return nil
}
