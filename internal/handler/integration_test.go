//go:build integration

package handler_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiwari-pos/catering/internal/catalog"
	"github.com/kiwari-pos/catering/internal/config"
	"github.com/kiwari-pos/catering/internal/database"
	"github.com/kiwari-pos/catering/internal/enum"
	"github.com/kiwari-pos/catering/internal/pricing"
	"github.com/kiwari-pos/catering/internal/router"
	"github.com/kiwari-pos/catering/internal/session"
	"github.com/kiwari-pos/catering/internal/ws"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
)

// TestIntegrationFlow runs a catering order from price publication to
// delivery against a real PostgreSQL database, with every handler wired
// through the router.
func TestIntegrationFlow(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, connStr, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	runMigrations(t, connStr)

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	defer pool.Close()

	cfg := &config.Config{
		CurrencySymbol: "€",
		DeliveryFees: map[enum.Location]int64{
			enum.LocationParkLane:  1000,
			enum.LocationDocklands: 500,
		},
		DefaultDeliveryFee: 1000,
		SessionTTL:         time.Hour,
	}
	log := zap.NewNop()
	queries := database.New(pool)
	cat := catalog.New(queries)
	flows := session.NewRegistry(cat, session.Options{
		Fees:   pricing.NewFeeSchedule(cfg.DeliveryFees, cfg.DefaultDeliveryFee),
		TTL:    cfg.SessionTTL,
		Logger: log,
	})
	hub := ws.NewHub()
	go hub.Run(ctx)

	r := router.New(cfg, router.Deps{
		Queries: queries,
		Pool:    pool,
		DB:      pool,
		Catalog: cat,
		Flows:   flows,
		Hub:     hub,
		Log:     log,
	})
	server := httptest.NewServer(r)
	defer server.Close()

	// --- 1. Menu item (manual DB insert, no create endpoint) ---
	platterID := createMenuItem(t, ctx, pool, "Sandwich Platter")
	urnID := createMenuItem(t, ctx, pool, "Coffee Urn")

	// --- 2. Publish prices through the API ---
	httpJSON(t, server, "PUT", "/menu/"+platterID.String()+"/prices/PARK_LANE", map[string]interface{}{"price": "12.50"}, http.StatusOK)
	httpJSON(t, server, "PUT", "/menu/"+platterID.String()+"/prices/DOCKLANDS", map[string]interface{}{"price": "11.00"}, http.StatusOK)
	httpJSON(t, server, "PUT", "/menu/"+urnID.String()+"/prices/PARK_LANE", map[string]interface{}{"price": "30"}, http.StatusOK)

	menu := httpJSONList(t, server, "/locations/docklands/menu")
	if len(menu) != 1 || menu[0]["name"] != "Sandwich Platter" {
		t.Fatalf("docklands menu: got %v", menu)
	}

	// --- 3. Start a flow and watch it ---
	flow := httpJSON(t, server, "POST", "/flows", map[string]interface{}{"location": "PARK_LANE"}, http.StatusCreated)
	flowID := flow["id"].(string)
	conn := dialFlow(t, server, flowID)
	defer conn.Close()
	waitForWatcher(t, hub, uuid.MustParse(flowID))

	// --- 4. Add items, the price is pinned ---
	flow = httpJSON(t, server, "POST", "/flows/"+flowID+"/items",
		map[string]interface{}{"menu_item_id": platterID.String(), "quantity": 8}, http.StatusOK)
	if flow["price_source"] != "catalog" {
		t.Errorf("price_source: got %v, want catalog", flow["price_source"])
	}
	waitForEvent(t, conn, enum.EventQuoteUpdated)

	httpJSON(t, server, "PUT", "/menu/"+platterID.String()+"/prices/PARK_LANE", map[string]interface{}{"price": "99.00"}, http.StatusOK)
	flow = httpJSON(t, server, "POST", "/flows/"+flowID+"/items",
		map[string]interface{}{"menu_item_id": urnID.String(), "quantity": 1}, http.StatusOK)
	// 8 × 12.50 + 30.00 + 10.00 delivery
	if flow["total"] != float64(14000) {
		t.Fatalf("total: got %v, want 14000", flow["total"])
	}

	// --- 5. Switching location re-prices every line ---
	flow = httpJSON(t, server, "PUT", "/flows/"+flowID+"/location", map[string]interface{}{"location": "DOCKLANDS"}, http.StatusOK)
	// 8 × 11.00 + coffee urn unpriced at DOCKLANDS (0) + 5.00 delivery
	if flow["total"] != float64(9300) {
		t.Fatalf("total after location change: got %v, want 9300", flow["total"])
	}

	// The urn has no DOCKLANDS price, so submission is refused until it is removed.
	httpJSON(t, server, "POST", "/flows/"+flowID+"/submit", nil, http.StatusConflict)
	httpJSON(t, server, "DELETE", "/flows/"+flowID+"/items/"+urnID.String(), nil, http.StatusOK)

	// --- 6. Submit ---
	order := httpJSON(t, server, "POST", "/flows/"+flowID+"/submit", map[string]interface{}{"notes": "loading bay"}, http.StatusCreated)
	orderID := order["id"].(string)
	if !strings.HasPrefix(order["order_number"].(string), "CAT-") {
		t.Errorf("order_number: got %v", order["order_number"])
	}
	display := order["display"].(map[string]interface{})
	if display["total"] != "€93.00" {
		t.Errorf("display.total: got %v, want €93.00", display["total"])
	}
	waitForEvent(t, conn, enum.EventFlowClosed)
	httpJSON(t, server, "GET", "/flows/"+flowID, nil, http.StatusNotFound)

	// --- 7. Read back and move through statuses ---
	got := httpJSON(t, server, "GET", "/orders/"+orderID, nil, http.StatusOK)
	lines := got["lines"].([]interface{})
	if len(lines) != 1 {
		t.Fatalf("order lines: got %d, want 1", len(lines))
	}
	if line := lines[0].(map[string]interface{}); line["unit_price"] != float64(1100) || line["quantity"] != float64(8) {
		t.Errorf("order line: got %v", line)
	}

	httpJSON(t, server, "PATCH", "/orders/"+orderID+"/status", map[string]interface{}{"status": "CONFIRMED"}, http.StatusOK)
	httpJSON(t, server, "PATCH", "/orders/"+orderID+"/status", map[string]interface{}{"status": "DELIVERED"}, http.StatusOK)
	httpJSON(t, server, "PATCH", "/orders/"+orderID+"/status", map[string]interface{}{"status": "CANCELLED"}, http.StatusConflict)
}

// --- Helpers ---

func setupPostgresContainer(t *testing.T, ctx context.Context) (testcontainers.Container, string, func()) {
	t.Helper()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("catering_test"),
		tcpostgres.WithUsername("catering"),
		tcpostgres.WithPassword("catering"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}

	cleanup := func() {
		if err := pgContainer.Terminate(context.Background()); err != nil {
			t.Logf("terminate container: %v", err)
		}
	}
	return pgContainer, connStr, cleanup
}

func runMigrations(t *testing.T, connStr string) {
	t.Helper()

	// golang-migrate's postgres driver takes a database/sql handle.
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("open db for migrations: %v", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		t.Fatalf("create migrate driver: %v", err)
	}

	// Relative to internal/handler, where go test runs.
	m, err := migrate.NewWithDatabaseInstance("file://../../migrations", "postgres", driver)
	if err != nil {
		t.Fatalf("create migrate instance: %v", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		t.Fatalf("run migrations: %v", err)
	}
}

func createMenuItem(t *testing.T, ctx context.Context, pool *pgxpool.Pool, name string) uuid.UUID {
	t.Helper()
	var id uuid.UUID
	err := pool.QueryRow(ctx, `INSERT INTO menu_items (name) VALUES ($1) RETURNING id`, name).Scan(&id)
	if err != nil {
		t.Fatalf("create menu item: %v", err)
	}
	return id
}

func httpJSON(t *testing.T, server *httptest.Server, method, path string, body map[string]interface{}, want int) map[string]interface{} {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, server.URL+path, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		var e map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&e)
		t.Fatalf("%s %s: got %d, want %d; body: %v", method, path, resp.StatusCode, want, e)
	}
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}
	var out map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode %s %s: %v", method, path, err)
	}
	return out
}

func httpJSONList(t *testing.T, server *httptest.Server, path string) []map[string]interface{} {
	t.Helper()
	resp, err := http.Get(server.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: got %d", path, resp.StatusCode)
	}
	var out []map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode %s: %v", path, err)
	}
	return out
}

func dialFlow(t *testing.T, server *httptest.Server, flowID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/flows/" + flowID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	return conn
}

func waitForWatcher(t *testing.T, hub *ws.Hub, flowID uuid.UUID) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for hub.Watchers(flowID) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("websocket client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// waitForEvent reads until an event of type eventType arrives. Queued events
// share a frame, one JSON object per line.
func waitForEvent(t *testing.T, conn *websocket.Conn, eventType string) ws.Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", eventType, err)
		}
		for _, part := range bytes.Split(msg, []byte{'\n'}) {
			var ev ws.Event
			if err := json.Unmarshal(part, &ev); err != nil {
				t.Fatalf("decode ws event %q: %v", part, err)
			}
			if ev.Type == eventType {
				return ev
			}
		}
	}
}
