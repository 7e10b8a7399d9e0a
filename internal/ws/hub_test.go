package ws

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// mockClient creates a client for testing without a real WebSocket connection
func mockClient(hub *Hub, flowID uuid.UUID, buffer int) *Client {
	return &Client{
		hub:    hub,
		flowID: flowID,
		send:   make(chan []byte, buffer),
		log:    zap.NewNop(),
	}
}

func startHub(t *testing.T) *Hub {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := NewHub()
	go hub.Run(ctx)
	return hub
}

func TestHubRegistration(t *testing.T) {
	hub := startHub(t)
	flowID := uuid.New()
	client := mockClient(hub, flowID, 8)

	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	if hub.Watchers(flowID) != 1 {
		t.Fatalf("watchers: got %d, want 1", hub.Watchers(flowID))
	}
}

func TestHubUnregistrationCleansUpRoom(t *testing.T) {
	hub := startHub(t)
	flowID := uuid.New()
	c1 := mockClient(hub, flowID, 8)
	c2 := mockClient(hub, flowID, 8)

	hub.register <- c1
	hub.register <- c2
	time.Sleep(10 * time.Millisecond)

	hub.unregister <- c1
	time.Sleep(10 * time.Millisecond)
	if hub.Watchers(flowID) != 1 {
		t.Fatalf("watchers after first unregister: %d", hub.Watchers(flowID))
	}

	hub.unregister <- c2
	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	defer hub.mu.RUnlock()
	if hub.rooms[flowID] != nil {
		t.Fatal("room should be deleted when last client unregisters")
	}
	if _, open := <-c2.send; open {
		t.Error("send channel should be closed")
	}
}

func TestBroadcastToFlow_OnlyThatFlow(t *testing.T) {
	hub := startHub(t)
	flow1, flow2 := uuid.New(), uuid.New()
	c1 := mockClient(hub, flow1, 8)
	c2 := mockClient(hub, flow2, 8)
	hub.register <- c1
	hub.register <- c2
	time.Sleep(10 * time.Millisecond)

	payload := json.RawMessage(`{"total":11100,"display":{"total":"€111.00"}}`)
	hub.BroadcastToFlow(flow1, Event{Type: "quote.updated", Payload: payload})

	select {
	case msg := <-c1.send:
		var received Event
		if err := json.Unmarshal(msg, &received); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if received.Type != "quote.updated" {
			t.Errorf("type: got %q", received.Type)
		}
		if string(received.Payload) != string(payload) {
			t.Errorf("payload: got %s", received.Payload)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("flow1 client did not receive message")
	}

	select {
	case <-c2.send:
		t.Fatal("flow2 client should not receive flow1 events")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroadcastToFlow_AllWatchers(t *testing.T) {
	hub := startHub(t)
	flowID := uuid.New()
	clients := []*Client{mockClient(hub, flowID, 8), mockClient(hub, flowID, 8), mockClient(hub, flowID, 8)}
	for _, c := range clients {
		hub.register <- c
	}
	time.Sleep(10 * time.Millisecond)

	hub.BroadcastToFlow(flowID, Event{Type: "quote.updated", Payload: json.RawMessage(`{}`)})

	for i, c := range clients {
		select {
		case <-c.send:
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("client %d did not receive message", i)
		}
	}
}

func TestBroadcastToUnknownFlow(t *testing.T) {
	hub := startHub(t)
	c := mockClient(hub, uuid.New(), 8)
	hub.register <- c
	time.Sleep(10 * time.Millisecond)

	hub.BroadcastToFlow(uuid.New(), Event{Type: "quote.updated", Payload: json.RawMessage(`{}`)})

	select {
	case <-c.send:
		t.Fatal("client should not receive message for different flow")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSlowClientIsDropped(t *testing.T) {
	hub := startHub(t)
	flowID := uuid.New()
	slow := mockClient(hub, flowID, 0) // unbuffered and never read
	hub.register <- slow
	time.Sleep(10 * time.Millisecond)

	hub.BroadcastToFlow(flowID, Event{Type: "quote.updated", Payload: json.RawMessage(`{}`)})
	time.Sleep(20 * time.Millisecond)

	if hub.Watchers(flowID) != 0 {
		t.Errorf("slow client should be dropped, watchers=%d", hub.Watchers(flowID))
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub()
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	c := mockClient(hub, uuid.New(), 8)
	hub.register <- c
	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(100 * time.Millisecond):
		t.Fatal("Run did not return after cancel")
	}
	if _, open := <-c.send; open {
		t.Error("client channel should be closed on shutdown")
	}
}

func TestBroadcastToFlow_StoppedHubDoesNotBlock(t *testing.T) {
	hub := NewHub() // never run

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			hub.BroadcastToFlow(uuid.New(), Event{Type: "quote.updated", Payload: json.RawMessage(`{}`)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("BroadcastToFlow blocked on a stopped hub")
	}
}

func TestHubStopped_JoinAndLeaveDoNotBlock(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub()
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	c := mockClient(hub, uuid.New(), 8)
	if !hub.join(c) {
		t.Fatal("join should succeed on a running hub")
	}
	cancel()
	<-stopped

	done := make(chan struct{})
	go func() {
		hub.leave(c)
		if hub.join(mockClient(hub, uuid.New(), 8)) {
			t.Error("join should fail on a stopped hub")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("join/leave blocked after the hub stopped")
	}
}
