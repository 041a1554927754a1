// Copyright 2025 Certen Protocol
//
// Runs against a real Postgres test database and is skipped unless
// CERTEN_TEST_DB is set, the same gate the orchestrator tests use.

package emitter

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/certen/cas/pkg/castypes"
	"github.com/certen/cas/pkg/config"
	"github.com/certen/cas/pkg/database"
)

type recordingSink struct {
	events []Event
}

func (s *recordingSink) Emit(_ context.Context, event Event) error {
	s.events = append(s.events, event)
	return nil
}

func connectTestDB(t *testing.T) *database.Client {
	t.Helper()
	connStr := os.Getenv("CERTEN_TEST_DB")
	if connStr == "" {
		t.Skip("CERTEN_TEST_DB not configured, skipping emitter integration tests")
	}
	db, err := database.NewClient(&config.Config{
		DatabaseURL:         connStr,
		DatabaseMaxConns:    5,
		DatabaseMinConns:    1,
		DatabaseMaxIdleTime: 300,
		DatabaseMaxLifetime: 3600,
	})
	if err != nil {
		t.Fatalf("connect test db: %v", err)
	}
	if err := db.MigrateUp(context.Background()); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestEmitIfReady_PromotesPendingAndEmits(t *testing.T) {
	db := connectTestDB(t)
	requests := database.NewRequestRepository(db)
	sink := &recordingSink{}
	e := New(requests, Config{MaxStreamLimit: 10, MinStreamLimit: 1, ReadyExpiry: time.Minute}, WithSink(sink))
	ctx := context.Background()

	if _, err := requests.CreateRequest(ctx, &castypes.NewRequest{StreamID: "s1", CID: "c1"}); err != nil {
		t.Fatalf("create request: %v", err)
	}

	if err := e.EmitIfReady(ctx); err != nil {
		t.Fatalf("EmitIfReady: %v", err)
	}
	if len(sink.events) != 1 {
		t.Fatalf("expected 1 emitted event, got %d", len(sink.events))
	}
	if sink.events[0].ReadyCount != 1 {
		t.Fatalf("expected readyCount 1, got %d", sink.events[0].ReadyCount)
	}
}

func TestEmitIfReady_NoPendingRequestsNoEmit(t *testing.T) {
	db := connectTestDB(t)
	requests := database.NewRequestRepository(db)
	sink := &recordingSink{}
	e := New(requests, Config{MaxStreamLimit: 10, MinStreamLimit: 1, ReadyExpiry: time.Minute}, WithSink(sink))

	if err := e.EmitIfReady(context.Background()); err != nil {
		t.Fatalf("EmitIfReady: %v", err)
	}
	if len(sink.events) != 0 {
		t.Fatalf("expected no emitted events, got %d", len(sink.events))
	}
}

func TestEmitIfReady_ExpiresStaleReadyBeforePromoting(t *testing.T) {
	db := connectTestDB(t)
	requests := database.NewRequestRepository(db)
	sink := &recordingSink{}
	e := New(requests, Config{MaxStreamLimit: 10, MinStreamLimit: 1, ReadyExpiry: 0}, WithSink(sink))
	ctx := context.Background()

	if _, err := requests.CreateRequest(ctx, &castypes.NewRequest{StreamID: "s1", CID: "c1"}); err != nil {
		t.Fatalf("create request: %v", err)
	}
	if _, err := requests.FindAndMarkReady(ctx, 10); err != nil {
		t.Fatalf("mark ready: %v", err)
	}

	if err := e.EmitIfReady(ctx); err != nil {
		t.Fatalf("EmitIfReady: %v", err)
	}
	if len(sink.events) != 1 {
		t.Fatalf("expected 1 emitted event for the expiry path, got %d", len(sink.events))
	}
}
