// Package blockcache holds the in-memory set of blocked packages consulted on every app switch.
package blockcache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
)

// FallbackKey is the key the snapshot is mirrored under in the fallback store
const FallbackKey = "blocked_packages"

// Lister is the part of the ledger the cache rebuilds from
type Lister interface {
	ListBlockedPackages(ctx context.Context) ([]string, error)
}

// Fallback is a small key-value store that survives restarts
type Fallback interface {
	Get(key string) (string, bool)
	Set(key, value string) error
}

// snapshot is immutable once published
type snapshot struct {
	members  map[string]struct{}
	packages []string // sorted
}

func newSnapshot(packages []string) *snapshot {
	s := &snapshot{members: make(map[string]struct{}, len(packages))}
	for _, pkg := range packages {
		if pkg == "" {
			continue
		}
		if _, dup := s.members[pkg]; dup {
			continue
		}
		s.members[pkg] = struct{}{}
		s.packages = append(s.packages, pkg)
	}
	sort.Strings(s.packages)
	return s
}

// Cache answers "is this package blocked?" without locks or I/O
type Cache struct {
	store    Lister
	fallback Fallback
	logger   *slog.Logger

	rebuildMu sync.Mutex
	current   atomic.Pointer[snapshot]
}

// New creates a cache primed from the fallback store. A missing or unreadable
// fallback value starts the cache empty.
func New(store Lister, fallback Fallback, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Cache{
		store:    store,
		fallback: fallback,
		logger:   logger.With("component", "block-cache"),
	}
	c.current.Store(c.loadFallback())
	return c
}

func (c *Cache) loadFallback() *snapshot {
	if c.fallback == nil {
		return newSnapshot(nil)
	}
	raw, ok := c.fallback.Get(FallbackKey)
	if !ok || raw == "" {
		return newSnapshot(nil)
	}

	var packages []string
	if err := json.Unmarshal([]byte(raw), &packages); err != nil {
		c.logger.Warn("discarding unreadable fallback block list", "error", err)
		return newSnapshot(nil)
	}

	c.logger.Info("block list loaded from fallback", "count", len(packages))
	return newSnapshot(packages)
}

// ShouldBlock reports whether pkg is in the current blocked set
func (c *Cache) ShouldBlock(pkg string) bool {
	_, ok := c.current.Load().members[pkg]
	return ok
}

// Snapshot returns the current blocked packages, sorted
func (c *Cache) Snapshot() []string {
	packages := c.current.Load().packages
	out := make([]string, len(packages))
	copy(out, packages)
	return out
}

// Len returns the number of blocked packages
func (c *Cache) Len() int {
	return len(c.current.Load().packages)
}

// Rebuild reloads the blocked set from the store and publishes it.
// On a store error the previous snapshot stays in place.
func (c *Cache) Rebuild(ctx context.Context) error {
	c.rebuildMu.Lock()
	defer c.rebuildMu.Unlock()

	packages, err := c.store.ListBlockedPackages(ctx)
	if err != nil {
		c.logger.Warn("block list rebuild failed, keeping previous snapshot", "error", err)
		return fmt.Errorf("failed to list blocked packages: %w", err)
	}

	next := newSnapshot(packages)
	c.current.Store(next)
	c.logger.Debug("block list rebuilt", "count", len(next.packages))

	c.persist(next)
	return nil
}

// persist mirrors the snapshot to the fallback store; failures only cost cold-start accuracy
func (c *Cache) persist(s *snapshot) {
	if c.fallback == nil {
		return
	}
	packages := s.packages
	if packages == nil {
		packages = []string{}
	}
	data, err := json.Marshal(packages)
	if err != nil {
		c.logger.Warn("failed to encode block list", "error", err)
		return
	}
	if err := c.fallback.Set(FallbackKey, string(data)); err != nil {
		c.logger.Warn("failed to persist block list fallback", "error", err)
	}
}
