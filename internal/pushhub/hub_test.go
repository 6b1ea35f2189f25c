package pushhub

import (
	"context"
	"testing"
	"time"

	"github.com/mondominator/opsdec/internal/models"
)

func setupHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = hub.Serve(ctx) }()
	time.Sleep(10 * time.Millisecond)
	return hub, cancel
}

func newTestClient(hub *Hub) *Client {
	return &Client{id: clientIDCounter.Add(1), hub: hub, send: make(chan Message, 256)}
}

func TestNewHub(t *testing.T) {
	hub := NewHub()
	if hub.clients == nil || hub.broadcast == nil || hub.Register == nil || hub.Unregister == nil {
		t.Fatal("NewHub left a channel or map unset")
	}
	if hub.ClientCount() != 0 {
		t.Fatalf("ClientCount() = %d, want 0", hub.ClientCount())
	}
}

func TestHub_RegisterAndUnregister(t *testing.T) {
	hub, cancel := setupHub(t)
	defer cancel()

	c := newTestClient(hub)
	hub.Register <- c
	time.Sleep(20 * time.Millisecond)
	if hub.ClientCount() != 1 {
		t.Fatalf("ClientCount() after register = %d, want 1", hub.ClientCount())
	}

	hub.Unregister <- c
	time.Sleep(20 * time.Millisecond)
	if hub.ClientCount() != 0 {
		t.Fatalf("ClientCount() after unregister = %d, want 0", hub.ClientCount())
	}
}

func TestHub_BroadcastDeliversToClients(t *testing.T) {
	hub, cancel := setupHub(t)
	defer cancel()

	c := newTestClient(hub)
	hub.Register <- c
	time.Sleep(20 * time.Millisecond)

	sessions := []*models.Session{{ID: "s1", ServerID: "srv1", SessionKey: "k1"}}
	hub.Broadcast(sessions)

	select {
	case msg := <-c.send:
		if msg.Type != MessageTypeSessionUpdate {
			t.Fatalf("message type = %q, want %q", msg.Type, MessageTypeSessionUpdate)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast")
	}
}

func TestHub_BroadcastWithoutClientsDoesNotBlock(t *testing.T) {
	hub, cancel := setupHub(t)
	defer cancel()

	hub.Broadcast(nil)
	time.Sleep(10 * time.Millisecond)
}

func TestHub_BroadcastDropsOnFullSendBuffer(t *testing.T) {
	hub, cancel := setupHub(t)
	defer cancel()

	c := newTestClient(hub)
	hub.Register <- c
	time.Sleep(20 * time.Millisecond)

	// Fill the client's send buffer so the next dispatch must drop it.
	for i := 0; i < cap(c.send); i++ {
		c.send <- Message{Type: MessageTypeSessionUpdate}
	}

	hub.Broadcast([]*models.Session{{ID: "overflow"}})
	time.Sleep(20 * time.Millisecond)

	if hub.ClientCount() != 0 {
		t.Fatalf("ClientCount() after overflow = %d, want 0 (client should be dropped)", hub.ClientCount())
	}
}

func TestHub_ServeClosesClientsOnShutdown(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- hub.Serve(ctx) }()

	c := newTestClient(hub)
	hub.Register <- c
	time.Sleep(20 * time.Millisecond)

	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Serve did not return after context cancellation")
	}

	if _, ok := <-c.send; ok {
		t.Fatal("client send channel should be closed on shutdown")
	}
}
