// Copyright 2025 Certen Protocol
//
// Block Store Adapter
//
// Wraps a content-addressed block store (IPFS-shaped) so the rest of the
// service can put/get JSON-encoded domain objects by CID without knowing
// about multihashes or multicodecs directly.

package blockstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	blocks "github.com/ipfs/go-block-format"
	"github.com/ipfs/go-cid"
	mc "github.com/multiformats/go-multicodec"
	"github.com/multiformats/go-multihash"

	"github.com/certen/cas/pkg/castypes"
)

// Store is a minimal content-addressed block store: content in, CID out;
// CID in, content out.
type Store interface {
	Put(ctx context.Context, blk blocks.Block) error
	Get(ctx context.Context, c cid.Cid) (blocks.Block, error)
	Pin(ctx context.Context, c cid.Cid) error
	Unpin(ctx context.Context, c cid.Cid) error
}

// MemStore is an in-memory Store, used in tests and as a local cache in
// front of a remote pinning service.
type MemStore struct {
	mu   sync.RWMutex
	data map[string]blocks.Block
	pins map[string]bool
}

// NewMemStore creates an empty in-memory block store.
func NewMemStore() *MemStore {
	return &MemStore{
		data: make(map[string]blocks.Block),
		pins: make(map[string]bool),
	}
}

func (m *MemStore) Put(_ context.Context, blk blocks.Block) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[blk.Cid().KeyString()] = blk
	return nil
}

func (m *MemStore) Get(_ context.Context, c cid.Cid) (blocks.Block, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	blk, ok := m.data[c.KeyString()]
	if !ok {
		return nil, ErrBlockNotFound
	}
	return blk, nil
}

func (m *MemStore) Pin(_ context.Context, c cid.Cid) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[c.KeyString()]; !ok {
		return ErrBlockNotFound
	}
	m.pins[c.KeyString()] = true
	return nil
}

func (m *MemStore) Unpin(_ context.Context, c cid.Cid) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.pins, c.KeyString())
	return nil
}

// Adapter exposes typed put/get operations for the domain objects the
// anchor pipeline publishes, on top of a raw Store.
type Adapter struct {
	store Store
}

// NewAdapter wraps a Store with CAS-domain typed helpers.
func NewAdapter(store Store) *Adapter {
	return &Adapter{store: store}
}

// Put stores arbitrary bytes under a raw-codec CID.
func (a *Adapter) Put(ctx context.Context, data []byte) (string, error) {
	c, err := deriveCID(data, mc.Raw)
	if err != nil {
		return "", err
	}
	blk, err := blocks.NewBlockWithCid(data, c)
	if err != nil {
		return "", fmt.Errorf("failed to build block: %w", err)
	}
	if err := a.store.Put(ctx, blk); err != nil {
		return "", fmt.Errorf("failed to put block: %w", err)
	}
	return c.String(), nil
}

// Get retrieves raw bytes for a CID.
func (a *Adapter) Get(ctx context.Context, cidStr string) ([]byte, error) {
	c, err := cid.Decode(cidStr)
	if err != nil {
		return nil, fmt.Errorf("invalid cid %q: %w", cidStr, err)
	}
	blk, err := a.store.Get(ctx, c)
	if err != nil {
		return nil, err
	}
	return blk.RawData(), nil
}

// PutNode stores a Merkle node as JSON bytes under a raw-codec CID. It implements
// merkle.Putter.
func (a *Adapter) PutNode(node castypes.MerkleNode) (string, error) {
	data, err := json.Marshal(node)
	if err != nil {
		return "", fmt.Errorf("failed to marshal merkle node: %w", err)
	}
	return a.Put(context.Background(), data)
}

// GetNode retrieves and decodes a Merkle node by CID.
func (a *Adapter) GetNode(ctx context.Context, cidStr string) (castypes.MerkleNode, error) {
	data, err := a.Get(ctx, cidStr)
	if err != nil {
		return castypes.MerkleNode{}, err
	}
	var node castypes.MerkleNode
	if err := json.Unmarshal(data, &node); err != nil {
		return castypes.MerkleNode{}, fmt.Errorf("failed to unmarshal merkle node: %w", err)
	}
	return node, nil
}

// PublishWitness stores a witness archive and pins it, since witnesses must
// remain retrievable for as long as the stream's anchor record exists.
func (a *Adapter) PublishWitness(ctx context.Context, archive castypes.WitnessArchive) (string, error) {
	data, err := json.Marshal(archive)
	if err != nil {
		return "", fmt.Errorf("failed to marshal witness archive: %w", err)
	}
	cidStr, err := a.Put(ctx, data)
	if err != nil {
		return "", err
	}
	c, err := cid.Decode(cidStr)
	if err != nil {
		return "", fmt.Errorf("invalid cid %q: %w", cidStr, err)
	}
	if err := a.store.Pin(ctx, c); err != nil {
		return "", fmt.Errorf("failed to pin witness archive: %w", err)
	}
	return cidStr, nil
}

// Unpin releases a previously pinned CID, letting the underlying store
// reclaim it. Used by garbage collection once a request's retention
// window has elapsed.
func (a *Adapter) Unpin(ctx context.Context, cidStr string) error {
	c, err := cid.Decode(cidStr)
	if err != nil {
		return fmt.Errorf("invalid cid %q: %w", cidStr, err)
	}
	return a.store.Unpin(ctx, c)
}

// ComputeCID derives the CID raw bytes would be stored under, without
// writing them. Reconciliation uses this to check whether a block a prior,
// interrupted run claims to have published actually exists.
func ComputeCID(data []byte) (string, error) {
	c, err := deriveCID(data, mc.Raw)
	if err != nil {
		return "", err
	}
	return c.String(), nil
}

func deriveCID(data []byte, codec mc.Code) (cid.Cid, error) {
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return cid.Undef, fmt.Errorf("failed to hash block: %w", err)
	}
	return cid.NewCidV1(uint64(codec), mh), nil
}
