package api

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/homepilot-core/internal/bridges/homepilot"
	"github.com/nerrad567/homepilot-core/internal/infrastructure/config"
)

func testHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10}, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

// startWSServer starts a real listener with an injected hub.
func startWSServer(t *testing.T) (*Server, *Hub) {
	t.Helper()

	hub := testHub(t)
	srv, err := New(Deps{
		Config: config.APIConfig{Host: "127.0.0.1", Port: 0},
		WS:     config.WebSocketConfig{Path: "/ws"},
		Logger: testLogger(),
		Bridge: newMockBridge(),
		Hub:    hub,
	})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	t.Cleanup(func() { srv.Close() })
	return srv, hub
}

func dialWS(t *testing.T, srv *Server, query string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial("ws://"+srv.Addr()+"/ws"+query, nil)
	if err != nil {
		t.Fatalf("Dial() error: %v", err)
	}
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readWS(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	//nolint:errcheck // test deadline
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON() error: %v", err)
	}
	return msg
}

// waitForClients polls until the hub has n clients.
func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("client count = %d, want %d", hub.ClientCount(), n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// ─── Hub Tests ─────────────────────────────────────────────────────

func TestHub_BroadcastToSubscribed(t *testing.T) {
	hub := testHub(t)

	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: map[string]struct{}{homepilot.BroadcastChannel: {}},
	}
	hub.Register(client)

	hub.Broadcast(homepilot.BroadcastChannel, map[string]any{"device_id": "1010", "position": 40})

	select {
	case msg := <-client.send:
		var wsMsg WSMessage
		if err := json.Unmarshal(msg, &wsMsg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if wsMsg.Type != WSTypeEvent {
			t.Errorf("type = %q, want %q", wsMsg.Type, WSTypeEvent)
		}
		if wsMsg.EventType != homepilot.BroadcastChannel {
			t.Errorf("event_type = %q, want %q", wsMsg.EventType, homepilot.BroadcastChannel)
		}
	case <-time.After(time.Second):
		t.Error("timed out waiting for broadcast message")
	}
}

func TestHub_NoMessageForUnsubscribed(t *testing.T) {
	hub := testHub(t)

	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: map[string]struct{}{"bridge.health": {}},
	}
	hub.Register(client)

	hub.Broadcast(homepilot.BroadcastChannel, map[string]any{"device_id": "1010"})

	select {
	case <-client.send:
		t.Error("unsubscribed client should not receive message")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHub_ClientCount(t *testing.T) {
	hub := testHub(t)

	if hub.ClientCount() != 0 {
		t.Errorf("initial client count = %d, want 0", hub.ClientCount())
	}

	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(map[string]struct{}),
	}
	hub.Register(client)
	if hub.ClientCount() != 1 {
		t.Errorf("after register count = %d, want 1", hub.ClientCount())
	}

	hub.Unregister(client)
	if hub.ClientCount() != 0 {
		t.Errorf("after unregister count = %d, want 0", hub.ClientCount())
	}

	// A second unregister must not close the channel twice.
	hub.Unregister(client)
}

func TestHub_SlowClientDoesNotBlock(t *testing.T) {
	hub := testHub(t)

	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, 1),
		subscriptions: map[string]struct{}{homepilot.BroadcastChannel: {}},
	}
	hub.Register(client)

	done := make(chan struct{})
	go func() {
		for _i := 0; _i < 10; _i++ {
			hub.Broadcast(homepilot.BroadcastChannel, map[string]any{"device_id": "1010"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Broadcast blocked on a full client buffer")
	}
	if len(client.send) != 1 {
		t.Errorf("buffered = %d, want 1", len(client.send))
	}
}

func TestHub_RunClosesClients(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, nil)
	ctx, cancel := context.WithCancel(context.Background())

	client := &WSClient{
		hub:           hub,
		send:          make(chan []byte, wsSendBufferSize),
		subscriptions: make(map[string]struct{}),
	}
	hub.Register(client)

	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Run() did not return after cancel")
	}
	if hub.ClientCount() != 0 {
		t.Errorf("client count = %d, want 0", hub.ClientCount())
	}
	if _, ok := <-client.send; ok {
		t.Error("send channel should be closed")
	}
}

func TestHub_Timings(t *testing.T) {
	hub := NewHub(config.WebSocketConfig{}, testLogger())
	maxSize, ping, pong := hub.timings()
	if maxSize != defaultWSMaxMessageSize || ping != defaultWSPingInterval || pong != defaultWSPongTimeout {
		t.Errorf("timings() = %d, %v, %v, want defaults", maxSize, ping, pong)
	}

	hub = NewHub(config.WebSocketConfig{MaxMessageSize: 1024, PingInterval: 5, PongTimeout: 2}, testLogger())
	maxSize, ping, pong = hub.timings()
	if maxSize != 1024 || ping != 5*time.Second || pong != 2*time.Second {
		t.Errorf("timings() = %d, %v, %v, want 1024, 5s, 2s", maxSize, ping, pong)
	}
}

// ─── WebSocket Integration Tests ───────────────────────────────────

func TestWebSocket_SubscribeAndReceive(t *testing.T) {
	srv, hub := startWSServer(t)
	conn := dialWS(t, srv, "")
	waitForClients(t, hub, 1)

	sub := WSMessage{
		Type:    WSTypeSubscribe,
		ID:      "sub-1",
		Payload: WSSubscribePayload{Channels: []string{homepilot.BroadcastChannel}},
	}
	if err := conn.WriteJSON(sub); err != nil {
		t.Fatalf("WriteJSON() error: %v", err)
	}

	resp := readWS(t, conn)
	if resp.Type != WSTypeResponse || resp.ID != "sub-1" {
		t.Fatalf("response = %+v, want subscribe response", resp)
	}

	hub.Broadcast(homepilot.BroadcastChannel, map[string]any{"device_id": "1010", "position": 40})

	event := readWS(t, conn)
	if event.Type != WSTypeEvent || event.EventType != homepilot.BroadcastChannel {
		t.Fatalf("event = %+v, want %s event", event, homepilot.BroadcastChannel)
	}
	payload, ok := event.Payload.(map[string]any)
	if !ok || payload["device_id"] != "1010" {
		t.Errorf("payload = %v, want device 1010", event.Payload)
	}
}

func TestWebSocket_ChannelsQuery(t *testing.T) {
	srv, hub := startWSServer(t)
	conn := dialWS(t, srv, "?channels=bridge.health,+"+homepilot.BroadcastChannel)
	waitForClients(t, hub, 1)

	hub.Broadcast(homepilot.BroadcastChannel, map[string]any{"device_id": "1020"})

	event := readWS(t, conn)
	if event.EventType != homepilot.BroadcastChannel {
		t.Errorf("event_type = %q, want %q", event.EventType, homepilot.BroadcastChannel)
	}
}

func TestWebSocket_Unsubscribe(t *testing.T) {
	srv, hub := startWSServer(t)
	conn := dialWS(t, srv, "?channels="+homepilot.BroadcastChannel)
	waitForClients(t, hub, 1)

	unsub := WSMessage{
		Type:    WSTypeUnsubscribe,
		ID:      "u-1",
		Payload: WSSubscribePayload{Channels: []string{homepilot.BroadcastChannel}},
	}
	if err := conn.WriteJSON(unsub); err != nil {
		t.Fatalf("WriteJSON() error: %v", err)
	}
	if resp := readWS(t, conn); resp.Type != WSTypeResponse {
		t.Fatalf("response type = %q, want %q", resp.Type, WSTypeResponse)
	}

	hub.Broadcast(homepilot.BroadcastChannel, map[string]any{"device_id": "1010"})

	// A ping after the broadcast proves nothing was queued before it.
	if err := conn.WriteJSON(WSMessage{Type: WSTypePing, ID: "p-1"}); err != nil {
		t.Fatalf("WriteJSON() error: %v", err)
	}
	if resp := readWS(t, conn); resp.Type != WSTypePong || resp.ID != "p-1" {
		t.Errorf("message = %+v, want pong", resp)
	}
}

func TestWebSocket_InvalidMessages(t *testing.T) {
	srv, hub := startWSServer(t)
	conn := dialWS(t, srv, "")
	waitForClients(t, hub, 1)

	tests := []struct {
		name string
		raw  string
	}{
		{"invalid JSON", `{nope`},
		{"unknown type", `{"type":"dance","id":"x"}`},
		{"empty subscribe", `{"type":"subscribe","id":"s","payload":{"channels":[]}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(tt.raw)); err != nil {
				t.Fatalf("WriteMessage() error: %v", err)
			}
			if resp := readWS(t, conn); resp.Type != WSTypeError {
				t.Errorf("type = %q, want %q", resp.Type, WSTypeError)
			}
		})
	}
}

func TestWebSocket_DisconnectUnregisters(t *testing.T) {
	srv, hub := startWSServer(t)
	conn := dialWS(t, srv, "")
	waitForClients(t, hub, 1)

	//nolint:errcheck // best-effort close frame
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	conn.Close()

	waitForClients(t, hub, 0)
}
