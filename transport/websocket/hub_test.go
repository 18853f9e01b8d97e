package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/wricardo/mechanism-workbench/workbench/engine"
)

func newTestClient(hub *Hub, sessionID string) *Client {
	return &Client{
		hub:       hub,
		sessionID: sessionID,
		send:      make(chan []byte, 256),
	}
}

func TestNewHub(t *testing.T) {
	hub := NewHub()

	if hub.sessions == nil {
		t.Error("Hub sessions map is nil")
	}
	if hub.broadcast == nil || hub.register == nil || hub.unregister == nil {
		t.Error("Hub channels not initialized")
	}
}

func TestHubRegisterAndUnregister(t *testing.T) {
	hub := NewHub()
	client1 := newTestClient(hub, "abcd")
	client2 := newTestClient(hub, "abcd")

	hub.registerClient(client1)
	hub.registerClient(client2)
	if len(hub.sessions["abcd"]) != 2 {
		t.Fatalf("Expected 2 clients in session, got %d", len(hub.sessions["abcd"]))
	}

	hub.unregisterClient(client1)
	if !hub.sessions["abcd"][client2] {
		t.Error("client2 should still be registered")
	}
	if _, ok := <-client1.send; ok {
		t.Error("Expected client1 send channel to be closed")
	}

	hub.unregisterClient(client2)
	if _, exists := hub.sessions["abcd"]; exists {
		t.Error("Session should have been cleaned up after last client unregistered")
	}

	// Unregistering twice is harmless
	hub.unregisterClient(client2)
}

func TestHubBroadcastMessage(t *testing.T) {
	hub := NewHub()
	watcher := newTestClient(hub, "abcd")
	other := newTestClient(hub, "ef01")
	hub.registerClient(watcher)
	hub.registerClient(other)

	snap := &engine.Snapshot{
		Components:  []engine.Component{{ID: 1, Kind: engine.Actuator, State: engine.Engaged}},
		SystemState: engine.Engaged,
	}
	hub.broadcastMessage(&Message{SessionID: "abcd", State: snap, Event: "state_update"})

	select {
	case data := <-watcher.send:
		var message Message
		if err := json.Unmarshal(data, &message); err != nil {
			t.Fatalf("Failed to unmarshal message: %v", err)
		}
		if message.Event != "state_update" {
			t.Errorf("Expected event 'state_update', got %s", message.Event)
		}
		if message.State.SystemState != engine.Engaged || message.State.Components[0].Kind != engine.Actuator {
			t.Error("Snapshot not correctly transmitted")
		}
	default:
		t.Error("Expected a message for the watching client")
	}

	select {
	case <-other.send:
		t.Error("Client of another session should not receive the message")
	default:
	}
}

func TestHubDropsSlowClient(t *testing.T) {
	hub := NewHub()
	slow := &Client{hub: hub, sessionID: "abcd", send: make(chan []byte)}
	hub.registerClient(slow)

	hub.broadcastMessage(&Message{SessionID: "abcd", Event: "ping"})

	if _, exists := hub.sessions["abcd"]; exists {
		t.Error("Expected slow client to be dropped")
	}
}

func TestHubServeWS(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, r.URL.Query().Get("session"))
	}))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "?session=abcd"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(time.Second)
	for hub.ClientCount("abcd") != 1 {
		if time.Now().After(deadline) {
			t.Fatal("Client was not registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.BroadcastToSession("abcd", &engine.Snapshot{SystemState: engine.Released})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	var message Message
	if err := conn.ReadJSON(&message); err != nil {
		t.Fatalf("Failed to read message: %v", err)
	}
	if message.SessionID != "abcd" || message.State.SystemState != engine.Released {
		t.Errorf("Unexpected message: %+v", message)
	}

	hub.BroadcastEvent("abcd", "analysis_complete", map[string]int{"failures": 2})
	if err := conn.ReadJSON(&message); err != nil {
		t.Fatalf("Failed to read event: %v", err)
	}
	if message.Event != "analysis_complete" {
		t.Errorf("Expected event 'analysis_complete', got %s", message.Event)
	}
}

func TestHubShutdown(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	client := newTestClient(hub, "abcd")

	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	hub.register <- client

	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Hub did not stop")
	}

	if _, ok := <-client.send; ok {
		t.Error("Expected client to be closed on shutdown")
	}

	// Calls after shutdown return instead of blocking
	if n := hub.ClientCount("abcd"); n != 0 {
		t.Errorf("Expected 0 clients after shutdown, got %d", n)
	}
	for i := 0; i < broadcastBuffer+1; i++ {
		hub.BroadcastEvent("abcd", "late", nil)
	}
}
