// Copyright 2025 Certen Protocol
//
// Postgres-backed Store. The CAS treats the block store as an opaque
// IPFS-shaped collaborator (content in, CID out), but the one-shot cmd/
// binaries that run the batch, reconciliation, and GC passes are separate
// process invocations, so an in-memory Store cannot carry blocks between
// them. PGStore gives the Store interface a backend that survives across
// runs using the same database/sql + lib/pq stack already used for
// request/anchor bookkeeping, addressed at BLOCKSTORE_DSN rather than
// DATABASE_URL so the two stores can be split onto different instances.

package blockstore

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"

	blocks "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"

	_ "github.com/lib/pq" // PostgreSQL driver
)

//go:embed pgmigrations/*.sql
var pgMigrationsFS embed.FS

// PGStore persists blocks in a `blocks` table keyed by CID string.
type PGStore struct {
	db *sql.DB
}

// NewPGStore opens a Postgres-backed Store at dsn and applies its schema.
func NewPGStore(ctx context.Context, dsn string) (*PGStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("blockstore dsn cannot be empty")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open blockstore database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping blockstore database: %w", err)
	}

	s := &PGStore{db: db}
	if err := s.migrate(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Close releases the underlying connection pool.
func (s *PGStore) Close() error {
	return s.db.Close()
}

func (s *PGStore) migrate(ctx context.Context) error {
	entries, err := fs.ReadDir(pgMigrationsFS, "pgmigrations")
	if err != nil {
		return fmt.Errorf("failed to read blockstore migrations: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		data, err := pgMigrationsFS.ReadFile("pgmigrations/" + name)
		if err != nil {
			return fmt.Errorf("failed to read blockstore migration %s: %w", name, err)
		}
		if _, err := s.db.ExecContext(ctx, string(data)); err != nil {
			return fmt.Errorf("failed to apply blockstore migration %s: %w", name, err)
		}
	}
	return nil
}

func (s *PGStore) Put(ctx context.Context, blk blocks.Block) error {
	query := `
		INSERT INTO blocks (cid, data)
		VALUES ($1, $2)
		ON CONFLICT (cid) DO NOTHING`
	_, err := s.db.ExecContext(ctx, query, blk.Cid().String(), blk.RawData())
	if err != nil {
		return fmt.Errorf("failed to put block: %w", err)
	}
	return nil
}

func (s *PGStore) Get(ctx context.Context, c cid.Cid) (blocks.Block, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM blocks WHERE cid = $1`, c.String()).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, ErrBlockNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get block: %w", err)
	}
	return blocks.NewBlockWithCid(data, c)
}

func (s *PGStore) Pin(ctx context.Context, c cid.Cid) error {
	result, err := s.db.ExecContext(ctx, `UPDATE blocks SET pinned = true WHERE cid = $1`, c.String())
	if err != nil {
		return fmt.Errorf("failed to pin block: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrBlockNotFound
	}
	return nil
}

func (s *PGStore) Unpin(ctx context.Context, c cid.Cid) error {
	_, err := s.db.ExecContext(ctx, `UPDATE blocks SET pinned = false WHERE cid = $1`, c.String())
	if err != nil {
		return fmt.Errorf("failed to unpin block: %w", err)
	}
	return nil
}
