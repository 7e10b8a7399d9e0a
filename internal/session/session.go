// Package session tracks order flows: the cart a customer assembles between
// choosing a location and submitting the order. Every flow owns its own
// pricing.Engine so prices pinned in one flow never leak into another.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/kiwari-pos/catering/internal/catalog"
	"github.com/kiwari-pos/catering/internal/enum"
	"github.com/kiwari-pos/catering/internal/pricing"
	"go.uber.org/zap"
)

var (
	ErrFlowNotFound    = errors.New("order flow not found")
	ErrLineNotFound    = errors.New("item not in cart")
	ErrInvalidQuantity = errors.New("quantity must be >= 0")
)

// ItemSource loads catalog entries. Satisfied by *catalog.Catalog.
type ItemSource interface {
	Get(ctx context.Context, id string) (*pricing.MenuItem, error)
}

// State is the serialisable view of a flow. Prices holds the pinned price of
// every item resolved from the catalog; a line whose item is missing from
// Prices was priced by the zero fallback.
type State struct {
	ID        uuid.UUID          `json:"id"`
	Location  enum.Location      `json:"location"`
	Lines     []pricing.CartLine `json:"lines"`
	Prices    map[string]int64   `json:"prices"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// Pinned reports whether the price of itemID came from the catalog.
func (s State) Pinned(itemID string) bool {
	_, ok := s.Prices[itemID]
	return ok
}

type flow struct {
	state  State
	engine *pricing.Engine
}

// snapshot copies f's state, taking the pinned prices from the engine.
func (f *flow) snapshot() State {
	s := f.state
	s.Lines = append([]pricing.CartLine(nil), f.state.Lines...)
	s.Prices = f.engine.Snapshot()
	return s
}

// Registry owns the live flows.
type Registry struct {
	mu    sync.Mutex
	flows map[uuid.UUID]*flow

	items ItemSource
	store Store
	fees  pricing.FeeSchedule
	names *pricing.NameTable
	ttl   time.Duration
	log   *zap.Logger
	now   func() time.Time
}

// Options configures a Registry.
type Options struct {
	Fees      pricing.FeeSchedule
	NameTable *pricing.NameTable // nil disables the name fallback
	Store     Store              // nil keeps flows in memory only
	TTL       time.Duration
	Logger    *zap.Logger
}

func NewRegistry(items ItemSource, opts Options) *Registry {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{
		flows: make(map[uuid.UUID]*flow),
		items: items,
		store: opts.Store,
		fees:  opts.Fees,
		names: opts.NameTable,
		ttl:   opts.TTL,
		log:   log,
		now:   time.Now,
	}
}

func (r *Registry) newEngine() *pricing.Engine {
	var opts []pricing.Option
	if r.names != nil {
		opts = append(opts, pricing.WithNameTable(r.names))
	}
	return pricing.NewEngine(r.fees, opts...)
}

// Begin starts a flow at loc. loc may be empty until the customer picks one.
func (r *Registry) Begin(ctx context.Context, loc enum.Location) (State, error) {
	now := r.now()
	f := &flow{
		state: State{
			ID:        uuid.New(),
			Location:  loc,
			CreatedAt: now,
			UpdatedAt: now,
		},
		engine: r.newEngine(),
	}

	r.mu.Lock()
	r.flows[f.state.ID] = f
	s := f.snapshot()
	r.mu.Unlock()

	if err := r.persist(ctx, s); err != nil {
		return State{}, err
	}
	r.log.Debug("flow started", zap.Stringer("flow_id", s.ID), zap.String("location", string(loc)))
	return s, nil
}

// Get returns the current state of a flow.
func (r *Registry) Get(ctx context.Context, id uuid.UUID) (State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, err := r.lookup(ctx, id)
	if err != nil {
		return State{}, err
	}
	return f.snapshot(), nil
}

// AddItem adds quantity of a menu item to the cart, resolving its price
// through the flow's engine. Adding an item already in the cart raises its
// quantity and keeps the snapshotted price. An item the catalog does not know
// is added at the zero fallback price with SourceDefault.
func (r *Registry) AddItem(ctx context.Context, id uuid.UUID, itemID string, quantity int64) (State, pricing.Source, error) {
	if quantity < 0 {
		return State{}, pricing.SourceDefault, ErrInvalidQuantity
	}
	item, err := r.fetch(ctx, itemID)
	if err != nil {
		return State{}, pricing.SourceDefault, err
	}

	r.mu.Lock()
	f, err := r.lookup(ctx, id)
	if err != nil {
		r.mu.Unlock()
		return State{}, pricing.SourceDefault, err
	}
	price, src := f.engine.Lookup(itemID, item, f.state.Location)

	line := pricing.CartLine{MenuItemID: itemID, UnitPrice: price, Quantity: quantity}
	if item != nil {
		line.Name = item.Name
	}
	addLine(f, line, src)
	s := r.touch(f)
	r.mu.Unlock()

	if src == pricing.SourceDefault {
		r.log.Warn("price defaulted to zero",
			zap.Stringer("flow_id", id),
			zap.String("menu_item_id", itemID),
			zap.String("location", string(s.Location)),
		)
	}
	return s, src, r.persist(ctx, s)
}

// AddLegacyItem adds an entry that has no catalog identifier, priced from the
// display-name table. The line key is LegacyKey(name).
func (r *Registry) AddLegacyItem(ctx context.Context, id uuid.UUID, name string, quantity int64) (State, pricing.Source, error) {
	if quantity < 0 {
		return State{}, pricing.SourceDefault, ErrInvalidQuantity
	}
	key := LegacyKey(name)

	r.mu.Lock()
	f, err := r.lookup(ctx, id)
	if err != nil {
		r.mu.Unlock()
		return State{}, pricing.SourceDefault, err
	}
	price, src := f.engine.ResolveByName(key, name)
	addLine(f, pricing.CartLine{MenuItemID: key, Name: name, UnitPrice: price, Quantity: quantity}, src)
	s := r.touch(f)
	r.mu.Unlock()
	return s, src, r.persist(ctx, s)
}

const legacyPrefix = "name:"

// LegacyKey is the cart key of a name-priced entry.
func LegacyKey(name string) string {
	return legacyPrefix + strings.ToLower(strings.TrimSpace(name))
}

// addLine appends line, or raises the quantity of an existing line for the
// same item. The existing unit price is replaced only when src says the new
// price is pinned, which heals a line first added at the zero fallback.
func addLine(f *flow, line pricing.CartLine, src pricing.Source) {
	for i := range f.state.Lines {
		if f.state.Lines[i].MenuItemID == line.MenuItemID {
			f.state.Lines[i].Quantity += line.Quantity
			if src != pricing.SourceDefault {
				f.state.Lines[i].UnitPrice = line.UnitPrice
				if line.Name != "" {
					f.state.Lines[i].Name = line.Name
				}
			}
			return
		}
	}
	f.state.Lines = append(f.state.Lines, line)
}

// SetQuantity changes the quantity of a cart line. Zero keeps the line.
func (r *Registry) SetQuantity(ctx context.Context, id uuid.UUID, itemID string, quantity int64) (State, error) {
	if quantity < 0 {
		return State{}, ErrInvalidQuantity
	}
	return r.mutate(ctx, id, func(f *flow) error {
		for i := range f.state.Lines {
			if f.state.Lines[i].MenuItemID == itemID {
				f.state.Lines[i].Quantity = quantity
				return nil
			}
		}
		return ErrLineNotFound
	})
}

// RemoveItem drops a cart line. The item's pinned price is kept, so adding
// it back later in the same flow shows the same price.
func (r *Registry) RemoveItem(ctx context.Context, id uuid.UUID, itemID string) (State, error) {
	return r.mutate(ctx, id, func(f *flow) error {
		for i := range f.state.Lines {
			if f.state.Lines[i].MenuItemID == itemID {
				f.state.Lines = append(f.state.Lines[:i], f.state.Lines[i+1:]...)
				return nil
			}
		}
		return ErrLineNotFound
	})
}

// ChangeLocation moves the flow to loc. Prices are location-dependent, so
// every pinned price is dropped and each line is re-priced for loc.
func (r *Registry) ChangeLocation(ctx context.Context, id uuid.UUID, loc enum.Location) (State, error) {
	current, err := r.Get(ctx, id)
	if err != nil {
		return State{}, err
	}
	items := make(map[string]*pricing.MenuItem, len(current.Lines))
	for _, l := range current.Lines {
		if isLegacyKey(l.MenuItemID) {
			continue
		}
		item, err := r.fetch(ctx, l.MenuItemID)
		if err != nil {
			return State{}, err
		}
		items[l.MenuItemID] = item
	}

	return r.mutate(ctx, id, func(f *flow) error {
		f.engine.Invalidate()
		f.state.Location = loc
		for i := range f.state.Lines {
			l := &f.state.Lines[i]
			if isLegacyKey(l.MenuItemID) {
				l.UnitPrice, _ = f.engine.ResolveByName(l.MenuItemID, l.Name)
				continue
			}
			// A line added after the fetch above has no entry and prices at zero.
			l.UnitPrice = f.engine.ResolvePrice(l.MenuItemID, items[l.MenuItemID], loc)
		}
		return nil
	})
}

// Quote computes the flow's totals from its snapshotted line prices.
func (r *Registry) Quote(ctx context.Context, id uuid.UUID) (pricing.Quote, State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, err := r.lookup(ctx, id)
	if err != nil {
		return pricing.Quote{}, State{}, err
	}
	s := f.snapshot()
	return f.engine.Quote(s.Lines, s.Location), s, nil
}

// End discards a flow after submission or abandonment.
func (r *Registry) End(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	_, live := r.flows[id]
	delete(r.flows, id)
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.Delete(ctx, id); err != nil {
			if errors.Is(err, ErrFlowNotFound) && live {
				return nil
			}
			return err
		}
		return nil
	}
	if !live {
		return ErrFlowNotFound
	}
	return nil
}

// Sweep drops in-memory flows idle for longer than the TTL and returns how
// many were removed. Persisted copies expire on their own.
func (r *Registry) Sweep() int {
	if r.ttl <= 0 {
		return 0
	}
	cutoff := r.now().Add(-r.ttl)
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, f := range r.flows {
		if f.state.UpdatedAt.Before(cutoff) {
			delete(r.flows, id)
			n++
		}
	}
	return n
}

// Run sweeps idle flows every interval until ctx is done.
// This should be called as a goroutine: go registry.Run(ctx, time.Minute)
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				r.log.Info("swept idle flows", zap.Int("count", n))
			}
		}
	}
}

func (r *Registry) mutate(ctx context.Context, id uuid.UUID, fn func(*flow) error) (State, error) {
	r.mu.Lock()
	f, err := r.lookup(ctx, id)
	if err != nil {
		r.mu.Unlock()
		return State{}, err
	}
	if err := fn(f); err != nil {
		r.mu.Unlock()
		return State{}, err
	}
	s := r.touch(f)
	r.mu.Unlock()
	return s, r.persist(ctx, s)
}

func (r *Registry) touch(f *flow) State {
	f.state.UpdatedAt = r.now()
	return f.snapshot()
}

// lookup finds a live flow, reloading it from the store when this process
// does not hold it. Callers hold r.mu.
func (r *Registry) lookup(ctx context.Context, id uuid.UUID) (*flow, error) {
	if f, ok := r.flows[id]; ok {
		if r.ttl > 0 && r.now().Sub(f.state.UpdatedAt) > r.ttl {
			delete(r.flows, id)
			return nil, ErrFlowNotFound
		}
		return f, nil
	}
	if r.store == nil {
		return nil, ErrFlowNotFound
	}
	s, err := r.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	f := &flow{state: s, engine: r.newEngine()}
	f.engine.Restore(s.Prices)
	f.state.Prices = nil
	r.flows[id] = f
	return f, nil
}

// fetch loads a catalog item. A missing item is not an error here: the engine
// turns it into the zero fallback.
func (r *Registry) fetch(ctx context.Context, itemID string) (*pricing.MenuItem, error) {
	item, err := r.items.Get(ctx, itemID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) || errors.Is(err, catalog.ErrInvalidID) {
			return nil, nil
		}
		return nil, fmt.Errorf("load menu item %s: %w", itemID, err)
	}
	return item, nil
}

// isLegacyKey reports whether a line was added by AddLegacyItem. Any other
// key, valid catalog id or not, is priced through the catalog.
func isLegacyKey(key string) bool {
	return strings.HasPrefix(key, legacyPrefix)
}

func (r *Registry) persist(ctx context.Context, s State) error {
	if r.store == nil {
		return nil
	}
	if err := r.store.Save(ctx, s, r.ttl); err != nil {
		return fmt.Errorf("persist flow: %w", err)
	}
	return nil
}
