package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func dial(t *testing.T, srv *httptest.Server, origin string) *websocket.Conn {
	t.Helper()
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), header)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func waitClients(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.Clients() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d clients, have %d", n, h.Clients())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_BroadcastsEvents(t *testing.T) {
	h := NewHub(nil, nil)
	h.clock = func() time.Time { return time.Date(2025, 3, 4, 10, 0, 0, 0, time.UTC) }
	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	defer srv.Close()

	a := dial(t, srv, "")
	defer a.Close()
	b := dial(t, srv, "")
	defer b.Close()
	waitClients(t, h, 2)

	h.Publish(context.Background(), "call.enriched", 7)

	for _, conn := range []*websocket.Conn{a, b} {
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var ev Event
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("read: %v", err)
		}
		if ev.Type != "call.enriched" || ev.CallID != 7 {
			t.Fatalf("unexpected event %+v", ev)
		}
	}
}

func TestHub_RemovesDisconnectedClients(t *testing.T) {
	h := NewHub(nil, nil)
	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	defer srv.Close()

	conn := dial(t, srv, "")
	waitClients(t, h, 1)
	_ = conn.Close()
	waitClients(t, h, 0)

	h.Publish(context.Background(), "call.deleted", 1)
}

func TestHub_RejectsForeignOrigin(t *testing.T) {
	h := NewHub([]string{"https://praxis.example"}, nil)
	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	header := http.Header{"Origin": {"https://evil.example"}}
	if _, _, err := websocket.DefaultDialer.Dial(url, header); err == nil {
		t.Fatalf("expected handshake failure")
	}
	ok := dial(t, srv, "https://praxis.example")
	_ = ok.Close()
}
