// Package memory provides process-local implementations of the driven ports.
// They honor the same contracts as the SQLite adapter and back unit tests and
// throwaway development servers.
package memory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/ericfisherdev/keyledger/internal/domain/model"
	"github.com/ericfisherdev/keyledger/internal/domain/port/driven"
)

// Compile-time interface satisfaction checks.
var (
	_ driven.CredentialStore = (*CredentialStore)(nil)
	_ driven.RotationLedger  = (*RotationLedger)(nil)
	_ driven.Transactor      = (*Store)(nil)
)

// Store holds all credential and rotation state behind one mutex so that
// WithinTx can snapshot and restore it as a unit.
type Store struct {
	mu sync.Mutex

	byID       map[string]model.Credential
	byHash     map[string]string // key hash -> id
	tombHashes map[string]struct{}
	tombIDs    map[string]struct{}
	rotations  []model.RotationEdge
	nextEdgeID int64
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		byID:       make(map[string]model.Credential),
		byHash:     make(map[string]string),
		tombHashes: make(map[string]struct{}),
		tombIDs:    make(map[string]struct{}),
	}
}

// Credentials returns the CredentialStore view of s.
func (s *Store) Credentials() *CredentialStore { return &CredentialStore{s: s, locking: true} }

// Rotations returns the RotationLedger view of s.
func (s *Store) Rotations() *RotationLedger { return &RotationLedger{s: s, locking: true} }

type snapshot struct {
	byID       map[string]model.Credential
	byHash     map[string]string
	tombHashes map[string]struct{}
	tombIDs    map[string]struct{}
	rotations  []model.RotationEdge
	nextEdgeID int64
}

func (s *Store) snapshot() snapshot {
	return snapshot{
		byID:       maps.Clone(s.byID),
		byHash:     maps.Clone(s.byHash),
		tombHashes: maps.Clone(s.tombHashes),
		tombIDs:    maps.Clone(s.tombIDs),
		rotations:  slices.Clone(s.rotations),
		nextEdgeID: s.nextEdgeID,
	}
}

func (s *Store) restore(snap snapshot) {
	s.byID = snap.byID
	s.byHash = snap.byHash
	s.tombHashes = snap.tombHashes
	s.tombIDs = snap.tombIDs
	s.rotations = snap.rotations
	s.nextEdgeID = snap.nextEdgeID
}

type txStores struct {
	creds *CredentialStore
	rots  *RotationLedger
}

func (t txStores) Credentials() driven.CredentialStore { return t.creds }
func (t txStores) Rotations() driven.RotationLedger    { return t.rots }

// WithinTx holds the store lock for the duration of fn and restores the
// pre-call state if fn fails.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx driven.TxStores) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	tx := txStores{
		creds: &CredentialStore{s: s},
		rots:  &RotationLedger{s: s},
	}
	if err := fn(ctx, tx); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

// CredentialStore is the in-memory CredentialStore. Views created inside
// WithinTx run without locking because the transaction already holds it.
type CredentialStore struct {
	s       *Store
	locking bool
}

func (c *CredentialStore) lock() func() {
	if !c.locking {
		return func() {}
	}
	c.s.mu.Lock()
	return c.s.mu.Unlock
}

// Insert stores cred. It fails with ErrCredentialConflict when the ID or key
// hash is live or tombstoned.
func (c *CredentialStore) Insert(_ context.Context, cred model.Credential) (model.Credential, error) {
	defer c.lock()()
	s := c.s

	if _, ok := s.byID[cred.ID]; ok {
		return model.Credential{}, fmt.Errorf("insert credential %s: %w", cred.ID, driven.ErrCredentialConflict)
	}
	if _, ok := s.byHash[cred.KeyHash]; ok {
		return model.Credential{}, fmt.Errorf("insert credential %s: %w", cred.ID, driven.ErrCredentialConflict)
	}
	if _, ok := s.tombHashes[cred.KeyHash]; ok {
		return model.Credential{}, fmt.Errorf("insert credential %s: retired key: %w", cred.ID, driven.ErrCredentialConflict)
	}
	if _, ok := s.tombIDs[cred.ID]; ok {
		return model.Credential{}, fmt.Errorf("insert credential %s: retired id: %w", cred.ID, driven.ErrCredentialConflict)
	}

	if cred.CreatedAt.IsZero() {
		cred.CreatedAt = time.Now()
	}
	cred.CreatedAt = cred.CreatedAt.UTC()
	s.byID[cred.ID] = copyCredential(cred)
	s.byHash[cred.KeyHash] = cred.ID
	return copyCredential(cred), nil
}

// FindByKeyHash returns the credential with the given hash, active or not.
// Returns nil, nil if none matches.
func (c *CredentialStore) FindByKeyHash(_ context.Context, keyHash string) (*model.Credential, error) {
	defer c.lock()()
	return c.findByHash(keyHash, false), nil
}

// FindActiveByKeyHash returns the credential with the given hash only if it is active.
func (c *CredentialStore) FindActiveByKeyHash(_ context.Context, keyHash string) (*model.Credential, error) {
	defer c.lock()()
	return c.findByHash(keyHash, true), nil
}

func (c *CredentialStore) findByHash(keyHash string, activeOnly bool) *model.Credential {
	id, ok := c.s.byHash[keyHash]
	if !ok {
		return nil
	}
	cred := c.s.byID[id]
	if activeOnly && !cred.Active {
		return nil
	}
	out := copyCredential(cred)
	return &out
}

// GetByID returns the credential with the given ID, or nil, nil.
func (c *CredentialStore) GetByID(_ context.Context, id string) (*model.Credential, error) {
	defer c.lock()()
	cred, ok := c.s.byID[id]
	if !ok {
		return nil, nil
	}
	out := copyCredential(cred)
	return &out, nil
}

// MarkUsed records the time the credential last passed validation.
func (c *CredentialStore) MarkUsed(_ context.Context, id string, at time.Time) error {
	defer c.lock()()
	cred, ok := c.s.byID[id]
	if !ok {
		return fmt.Errorf("mark credential used %s: %w", id, driven.ErrCredentialNotFound)
	}
	used := at.UTC()
	cred.LastUsedAt = &used
	c.s.byID[id] = cred
	return nil
}

// Deactivate flags the credential inactive.
func (c *CredentialStore) Deactivate(_ context.Context, id string) error {
	defer c.lock()()
	cred, ok := c.s.byID[id]
	if !ok {
		return fmt.Errorf("deactivate credential %s: %w", id, driven.ErrCredentialNotFound)
	}
	cred.Active = false
	c.s.byID[id] = cred
	return nil
}

// Delete removes the credential and tombstones its ID and key hash.
func (c *CredentialStore) Delete(_ context.Context, id string) error {
	defer c.lock()()
	cred, ok := c.s.byID[id]
	if !ok {
		return fmt.Errorf("delete credential %s: %w", id, driven.ErrCredentialNotFound)
	}
	delete(c.s.byID, id)
	delete(c.s.byHash, cred.KeyHash)
	c.s.tombHashes[cred.KeyHash] = struct{}{}
	c.s.tombIDs[id] = struct{}{}
	return nil
}

// ListAll returns at most limit credentials, newest first. A non-positive
// limit returns all of them.
func (c *CredentialStore) ListAll(_ context.Context, limit int) ([]model.Credential, error) {
	defer c.lock()()

	creds := make([]model.Credential, 0, len(c.s.byID))
	for _, cred := range c.s.byID {
		creds = append(creds, copyCredential(cred))
	}
	slices.SortFunc(creds, func(a, b model.Credential) int {
		if cmp := b.CreatedAt.Compare(a.CreatedAt); cmp != 0 {
			return cmp
		}
		if a.ID > b.ID {
			return -1
		}
		if a.ID < b.ID {
			return 1
		}
		return 0
	})

	if limit > 0 && len(creds) > limit {
		creds = creds[:limit]
	}
	return creds, nil
}

func copyCredential(c model.Credential) model.Credential {
	if c.LastUsedAt != nil {
		t := *c.LastUsedAt
		c.LastUsedAt = &t
	}
	return c
}

// RotationLedger is the in-memory RotationLedger.
type RotationLedger struct {
	s       *Store
	locking bool
}

// Record appends edge, assigning the next sequential ID.
func (r *RotationLedger) Record(_ context.Context, edge model.RotationEdge) error {
	if r.locking {
		r.s.mu.Lock()
		defer r.s.mu.Unlock()
	}
	r.s.nextEdgeID++
	edge.ID = r.s.nextEdgeID
	if edge.At.IsZero() {
		edge.At = time.Now()
	}
	edge.At = edge.At.UTC()
	r.s.rotations = append(r.s.rotations, edge)
	return nil
}

// List returns matching edges, newest first.
func (r *RotationLedger) List(_ context.Context, filter model.RotationFilter) ([]model.RotationEdge, error) {
	if r.locking {
		r.s.mu.Lock()
		defer r.s.mu.Unlock()
	}

	edges := []model.RotationEdge{}
	for i := len(r.s.rotations) - 1; i >= 0; i-- {
		edge := r.s.rotations[i]
		if filter.ReplacementID != "" && edge.ReplacementID != filter.ReplacementID {
			continue
		}
		if filter.RetiredID != "" && edge.RetiredID != filter.RetiredID {
			continue
		}
		edges = append(edges, edge)
		if filter.Limit > 0 && len(edges) == filter.Limit {
			break
		}
	}
	return edges, nil
}
