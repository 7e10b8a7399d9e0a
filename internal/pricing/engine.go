package pricing

import (
	"maps"
	"sync"

	"github.com/kiwari-pos/catering/internal/enum"
)

// Source tells where a resolved price came from.
type Source int

const (
	// SourceDefault means no price could be resolved and zero was returned.
	SourceDefault Source = iota
	// SourceCatalog means the price was read from the menu item and cached.
	SourceCatalog
	// SourceCache means a price pinned earlier in the flow was returned.
	SourceCache
	// SourceNameTable means the legacy name table supplied the price.
	SourceNameTable
)

func (s Source) String() string {
	switch s {
	case SourceCatalog:
		return "catalog"
	case SourceCache:
		return "cache"
	case SourceNameTable:
		return "name_table"
	}
	return "default"
}

// Engine is the price cache and fee schedule for one order flow. It is safe
// for concurrent use but must not be shared between flows.
type Engine struct {
	mu    sync.RWMutex
	cache map[string]int64

	fees  FeeSchedule
	names *NameTable
}

// Option configures an Engine.
type Option func(*Engine)

// WithNameTable enables the name-keyed fallback used by ResolveByName.
func WithNameTable(t *NameTable) Option {
	return func(e *Engine) { e.names = t }
}

// NewEngine creates an engine with an empty cache.
func NewEngine(fees FeeSchedule, opts ...Option) *Engine {
	e := &Engine{
		cache: make(map[string]int64),
		fees:  fees,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ResolvePrice returns the price of a menu item for this flow. A cached price
// wins over item and loc even when they disagree with it.
func (e *Engine) ResolvePrice(id string, item *MenuItem, loc enum.Location) int64 {
	p, _ := e.Lookup(id, item, loc)
	return p
}

// Lookup is ResolvePrice plus the source of the value. With no cache entry,
// both item and loc are required and item must publish a price for loc;
// otherwise the result is (0, SourceDefault) and nothing is cached.
func (e *Engine) Lookup(id string, item *MenuItem, loc enum.Location) (int64, Source) {
	e.mu.RLock()
	p, ok := e.cache[id]
	e.mu.RUnlock()
	if ok {
		return p, SourceCache
	}

	p, ok = item.PriceAt(loc)
	if !ok {
		return 0, SourceDefault
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	// Another goroutine may have pinned a price since the read above.
	if cached, ok := e.cache[id]; ok {
		return cached, SourceCache
	}
	e.cache[id] = p
	return p, SourceCatalog
}

// ResolveByName prices a catalog entry that has no resolvable identifier by
// its display name. The value is pinned under id like any other price.
// Without a name table configured the result is (0, SourceDefault).
func (e *Engine) ResolveByName(id, name string) (int64, Source) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if p, ok := e.cache[id]; ok {
		return p, SourceCache
	}
	if e.names == nil {
		return 0, SourceDefault
	}
	p, _ := e.names.ByName(name)
	e.cache[id] = p
	return p, SourceNameTable
}

// Invalidate drops the cached prices for ids, or every cached price when no
// id is given.
func (e *Engine) Invalidate(ids ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(ids) == 0 {
		clear(e.cache)
		return
	}
	for _, id := range ids {
		delete(e.cache, id)
	}
}

// Cached reports whether a price is pinned for id.
func (e *Engine) Cached(id string) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.cache[id]
	return ok
}

// Len returns the number of pinned prices.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}

// DeliveryFee returns the flow's delivery fee for loc.
func (e *Engine) DeliveryFee(loc enum.Location) int64 {
	return e.fees.Fee(loc)
}

// Snapshot copies the pinned prices.
func (e *Engine) Snapshot() map[string]int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return maps.Clone(e.cache)
}

// Restore replaces the pinned prices with snap.
func (e *Engine) Restore(snap map[string]int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache = make(map[string]int64, len(snap))
	maps.Copy(e.cache, snap)
}
