package auth

import (
	"context"
	"sync"

	"github.com/setupranali/gateway/pkg/apierrors"
)

// Record pairs a persisted key hash with the Identity it authorizes. The
// store never hands back a raw key, only its hash.
type Record struct {
	KeyHash  string
	Identity Identity
}

// Store persists API keys in the control-plane database. Resolver reads keys
// from it only on cold start and on an explicit Refresh; steady-state lookups
// hit the in-memory map, matching spec.md §4.1's "O(1) over a concurrent map"
// requirement. Each successful Resolve also reports the key to the store
// through TouchLastUsed.
type Store interface {
	List(ctx context.Context) ([]Record, error)
	TouchLastUsed(ctx context.Context, keyHash string)
}

// Resolver maps a raw API key to its Identity. The live set of keys is held
// in a read-mostly map; reloads briefly hold an exclusive lock to swap the
// map, never while doing I/O (the new map is built off to the side first).
type Resolver struct {
	store Store

	mu      sync.RWMutex
	byHash  map[string]Identity // keyHash -> Identity
}

// NewResolver creates a Resolver backed by store. Call Refresh once before
// serving traffic.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store, byHash: make(map[string]Identity)}
}

// Refresh reloads the full key set from the store and atomically swaps it
// in.
func (r *Resolver) Refresh(ctx context.Context) error {
	records, err := r.store.List(ctx)
	if err != nil {
		return err
	}

	next := make(map[string]Identity, len(records))
	for _, rec := range records {
		next[rec.KeyHash] = rec.Identity
	}

	r.mu.Lock()
	r.byHash = next
	r.mu.Unlock()
	return nil
}

// Set installs or replaces a single identity by its key hash, without a full
// reload. Used right after an admin creates a key so it's usable
// immediately — GenerateKey's hash return value is the keyHash here, never
// the raw key.
func (r *Resolver) Set(keyHash string, id Identity) {
	r.mu.Lock()
	r.byHash[keyHash] = id
	r.mu.Unlock()
}

// Remove evicts a key by its hash, used right after an admin deletes it.
func (r *Resolver) Remove(keyHash string) {
	r.mu.Lock()
	delete(r.byHash, keyHash)
	r.mu.Unlock()
}

// Resolve looks up rawKey. Failure kinds per spec.md §4.1: empty key and
// unknown key are both Unauthenticated (401); role-based restrictions are
// enforced at the route level, not here.
func (r *Resolver) Resolve(ctx context.Context, rawKey string) (Identity, error) {
	if rawKey == "" {
		return Identity{}, apierrors.New(apierrors.KindUnauthenticated, apierrors.CodeUnauthenticated, "missing API key")
	}

	hash := HashKey(rawKey)

	r.mu.RLock()
	id, ok := r.byHash[hash]
	r.mu.RUnlock()

	if !ok {
		return Identity{}, apierrors.New(apierrors.KindUnauthenticated, apierrors.CodeUnauthenticated, "unknown API key")
	}

	r.store.TouchLastUsed(ctx, hash)
	return id, nil
}
