// Package markset tracks locally persisted id sets ("read", "dismissed")
// so feeds can be filtered across process restarts without a server
// round trip.
package markset

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Key names one logical mark set.
type Key string

// Built-in mark set keys.
const (
	KeyRead      Key = "read"
	KeyDismissed Key = "dismissed"
)

const storagePrefix = "markset:"

// Storage is the durable local key-value primitive the set is built on.
// No native set type is assumed; values are serialized JSON arrays.
type Storage interface {
	// GetString returns the stored value and whether the key exists.
	GetString(ctx context.Context, key string) (string, bool, error)
	SetString(ctx context.Context, key, value string) error
}

// Set is a persistent, append-only collection of string ids per key.
// Adds are idempotent and membership checks hit an in-memory mirror.
//
// Persistence is read-modify-write on a whole array. Entries are only
// ever added, so a lost write can reintroduce at most a transient
// duplicate, never remove an id for good.
type Set struct {
	mu      sync.Mutex
	storage Storage
	cache   map[Key]map[string]struct{}
}

// New creates a mark set backed by the given storage.
func New(storage Storage) *Set {
	return &Set{
		storage: storage,
		cache:   make(map[Key]map[string]struct{}),
	}
}

// Add records id under key. Adding an existing id is a no-op.
func (s *Set) Add(ctx context.Context, key Key, id string) error {
	return s.AddMany(ctx, key, []string{id})
}

// AddMany records all ids under key, skipping those already present.
// The in-memory mirror is updated even if the durable write fails, so
// optimistic UI removals are never rolled back.
func (s *Set) AddMany(ctx context.Context, key Key, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	members, err := s.loadLocked(ctx, key)
	if err != nil {
		return err
	}

	added := false
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := members[id]; ok {
			continue
		}
		members[id] = struct{}{}
		added = true
	}
	if !added {
		return nil
	}

	return s.persistLocked(ctx, key, members)
}

// Has reports whether id was previously added under key.
func (s *Set) Has(ctx context.Context, key Key, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	members, err := s.loadLocked(ctx, key)
	if err != nil {
		return false, err
	}
	_, ok := members[id]
	return ok, nil
}

// Missing returns how many of the given ids are not in the set. Used
// for unread badge counts.
func (s *Set) Missing(ctx context.Context, key Key, ids []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	members, err := s.loadLocked(ctx, key)
	if err != nil {
		return 0, err
	}

	missing := 0
	for _, id := range ids {
		if _, ok := members[id]; !ok {
			missing++
		}
	}
	return missing, nil
}

// loadLocked returns the member map for key, reading it from storage on
// first access. Callers must hold s.mu.
func (s *Set) loadLocked(ctx context.Context, key Key) (map[string]struct{}, error) {
	if members, ok := s.cache[key]; ok {
		return members, nil
	}

	members := make(map[string]struct{})
	raw, ok, err := s.storage.GetString(ctx, storagePrefix+string(key))
	if err != nil {
		return nil, fmt.Errorf("markset load %q: %w", key, err)
	}
	if ok && raw != "" {
		var ids []string
		if err := json.Unmarshal([]byte(raw), &ids); err != nil {
			return nil, fmt.Errorf("markset decode %q: %w", key, err)
		}
		for _, id := range ids {
			members[id] = struct{}{}
		}
	}

	s.cache[key] = members
	return members, nil
}

// persistLocked serializes the member map as a sorted JSON array and
// writes it back whole. Callers must hold s.mu.
func (s *Set) persistLocked(ctx context.Context, key Key, members map[string]struct{}) error {
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	data, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("markset encode %q: %w", key, err)
	}
	if err := s.storage.SetString(ctx, storagePrefix+string(key), string(data)); err != nil {
		return fmt.Errorf("markset persist %q: %w", key, err)
	}
	return nil
}
