package catalog

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/kiwari-pos/catering/internal/database"
	"github.com/kiwari-pos/catering/internal/enum"
)

// --- Mock store ---

type mockStore struct {
	items  map[uuid.UUID]database.MenuItem
	prices map[uuid.UUID][]database.MenuItemPrice
	err    error
}

func newMockStore() *mockStore {
	return &mockStore{
		items:  make(map[uuid.UUID]database.MenuItem),
		prices: make(map[uuid.UUID][]database.MenuItemPrice),
	}
}

func (m *mockStore) add(name string, prices map[enum.Location]int64) uuid.UUID {
	id := uuid.New()
	m.items[id] = database.MenuItem{ID: id, Name: name, IsActive: true}
	for loc, p := range prices {
		m.prices[id] = append(m.prices[id], database.MenuItemPrice{MenuItemID: id, Location: string(loc), PriceCents: p})
	}
	return id
}

func (m *mockStore) ListMenuItems(_ context.Context) ([]database.MenuItem, error) {
	if m.err != nil {
		return nil, m.err
	}
	var out []database.MenuItem
	for _, i := range m.items {
		out = append(out, i)
	}
	return out, nil
}

func (m *mockStore) GetMenuItem(_ context.Context, id uuid.UUID) (database.MenuItem, error) {
	if m.err != nil {
		return database.MenuItem{}, m.err
	}
	i, ok := m.items[id]
	if !ok {
		return database.MenuItem{}, pgx.ErrNoRows
	}
	return i, nil
}

func (m *mockStore) ListMenuItemPrices(_ context.Context, id uuid.UUID) ([]database.MenuItemPrice, error) {
	return m.prices[id], nil
}

func (m *mockStore) ListAllMenuItemPrices(_ context.Context) ([]database.MenuItemPrice, error) {
	var out []database.MenuItemPrice
	for _, ps := range m.prices {
		out = append(out, ps...)
	}
	// A price row for an item that is no longer listed must be ignored.
	out = append(out, database.MenuItemPrice{MenuItemID: uuid.New(), Location: "PARK_LANE", PriceCents: 1})
	return out, nil
}

func (m *mockStore) UpsertMenuItemPrice(_ context.Context, arg database.UpsertMenuItemPriceParams) (database.MenuItemPrice, error) {
	ps := m.prices[arg.MenuItemID]
	for i := range ps {
		if ps[i].Location == arg.Location {
			ps[i].PriceCents = arg.PriceCents
			return ps[i], nil
		}
	}
	p := database.MenuItemPrice{MenuItemID: arg.MenuItemID, Location: arg.Location, PriceCents: arg.PriceCents}
	m.prices[arg.MenuItemID] = append(ps, p)
	return p, nil
}

// --- Tests ---

func TestGet(t *testing.T) {
	store := newMockStore()
	id := store.add("Canapé Platter", map[enum.Location]int64{
		enum.LocationParkLane:  300,
		enum.LocationDocklands: 350,
	})

	item, err := New(store).Get(context.Background(), id.String())
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if item.ID != id.String() || item.Name != "Canapé Platter" {
		t.Errorf("unexpected item %+v", item)
	}
	if p, _ := item.PriceAt(enum.LocationDocklands); p != 350 {
		t.Errorf("docklands price: got %d, want 350", p)
	}
}

func TestGet_Errors(t *testing.T) {
	store := newMockStore()
	c := New(store)

	if _, err := c.Get(context.Background(), "not-a-uuid"); !errors.Is(err, ErrInvalidID) {
		t.Errorf("invalid id: got %v", err)
	}
	if _, err := c.Get(context.Background(), uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing: got %v", err)
	}

	store.err = errors.New("connection reset")
	if _, err := c.Get(context.Background(), uuid.NewString()); err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("db error should propagate, got %v", err)
	}
}

func TestList(t *testing.T) {
	store := newMockStore()
	a := store.add("A", map[enum.Location]int64{enum.LocationParkLane: 100})
	store.add("B", nil)

	items, err := New(store).List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
	for _, it := range items {
		if it.ID == a.String() {
			if p, ok := it.PriceAt(enum.LocationParkLane); !ok || p != 100 {
				t.Errorf("A price: got (%d, %v)", p, ok)
			}
		} else if len(it.Prices) != 0 {
			t.Errorf("B should have no prices, got %v", it.Prices)
		}
	}
}

func TestSetPrice(t *testing.T) {
	store := newMockStore()
	id := store.add("A", map[enum.Location]int64{enum.LocationParkLane: 100})
	c := New(store)
	ctx := context.Background()

	if err := c.SetPrice(ctx, id.String(), enum.LocationParkLane, 150); err != nil {
		t.Fatalf("SetPrice: %v", err)
	}
	item, _ := c.Get(ctx, id.String())
	if p, _ := item.PriceAt(enum.LocationParkLane); p != 150 {
		t.Errorf("got %d, want 150", p)
	}

	tests := []struct {
		name  string
		id    string
		loc   enum.Location
		cents int64
		want  error
	}{
		{"bad id", "x", enum.LocationParkLane, 1, ErrInvalidID},
		{"no location", id.String(), "", 1, ErrNoLocation},
		{"negative", id.String(), enum.LocationParkLane, -1, ErrNegativePrice},
		{"unknown item", uuid.NewString(), enum.LocationParkLane, 1, ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := c.SetPrice(ctx, tt.id, tt.loc, tt.cents); !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}
