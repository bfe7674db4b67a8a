// Package catalog serves the fuzzy-match candidate sets for foods and
// exercises and loads the catalog seed.
package catalog

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/sync/singleflight"

	"github.com/edgard/nutribot/internal/database"
	"github.com/edgard/nutribot/internal/fuzzy"
)

// Source loads the most used catalog items of a kind.
type Source interface {
	TopCatalogByUsage(ctx context.Context, kind database.CatalogKind, limit int) ([]database.CatalogItem, error)
}

// Snapshot is an immutable candidate set. Items and Candidates are index
// aligned and ordered by usage, most used first.
type Snapshot struct {
	Items      []database.CatalogItem
	Candidates []fuzzy.Candidate
	LoadedAt   time.Time
}

type entry struct {
	snap    *Snapshot
	expires time.Time
}

// Cache keeps one Snapshot per kind for a fixed TTL. Concurrent misses for
// the same kind share a single load.
type Cache struct {
	src   Source
	ttl   time.Duration
	limit int
	log   *slog.Logger
	now   func() time.Time

	mu      sync.RWMutex
	entries map[database.CatalogKind]entry
	group   singleflight.Group
}

// NewCache creates a cache that loads up to limit items per kind.
func NewCache(src Source, ttl time.Duration, limit int, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Cache{
		src:     src,
		ttl:     ttl,
		limit:   limit,
		log:     logger.With("component", "catalog_cache"),
		now:     time.Now,
		entries: make(map[database.CatalogKind]entry),
	}
}

// SetClock replaces the time source. Intended for tests.
func (c *Cache) SetClock(now func() time.Time) { c.now = now }

// Snapshot returns the candidate set for kind, loading it when missing or
// stale.
func (c *Cache) Snapshot(ctx context.Context, kind database.CatalogKind) (*Snapshot, error) {
	c.mu.RLock()
	e, ok := c.entries[kind]
	c.mu.RUnlock()
	if ok && c.now().Before(e.expires) {
		return e.snap, nil
	}

	v, err, _ := c.group.Do(string(kind), func() (any, error) {
		items, err := c.src.TopCatalogByUsage(ctx, kind, c.limit)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to load catalog candidates", goerr.V("kind", kind))
		}
		snap := &Snapshot{
			Items:      items,
			Candidates: make([]fuzzy.Candidate, len(items)),
			LoadedAt:   c.now(),
		}
		for i := range items {
			snap.Candidates[i] = fuzzy.Candidate{Spaced: items[i].NormalizedName, Compact: items[i].CompactName}
		}

		c.mu.Lock()
		c.entries[kind] = entry{snap: snap, expires: snap.LoadedAt.Add(c.ttl)}
		c.mu.Unlock()

		c.log.DebugContext(ctx, "Catalog candidates loaded", "kind", kind, "count", len(items))
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}

// Invalidate drops the cached sets for the given kinds, or all kinds when
// none are given.
func (c *Cache) Invalidate(kinds ...database.CatalogKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(kinds) == 0 {
		c.entries = make(map[database.CatalogKind]entry)
		return
	}
	for _, k := range kinds {
		delete(c.entries, k)
	}
}
