package stream

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
)

func serve(t *testing.T, hub *Hub, snapshots *SnapshotCache) string {
	t.Helper()
	app := fiber.New()
	RegisterRoutes(app.Group("/stream"), hub, snapshots)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen error: %v", err)
	}
	go func() {
		_ = app.Listener(ln)
	}()
	t.Cleanup(func() {
		_ = app.Shutdown()
		ln.Close()
	})
	return "ws://" + ln.Addr().String() + "/stream/ws/"
}

func waitForSubscriber(t *testing.T, hub *Hub, sessionID string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for hub.Subscribers(sessionID) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("websocket client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStreamHandlersUpgradeRequired(t *testing.T) {
	app := fiber.New()
	RegisterRoutes(app.Group("/stream"), NewHub(nil, nil), nil)

	req := httptest.NewRequest(http.MethodGet, "/stream/ws/session-1", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	if resp.StatusCode == http.StatusOK {
		t.Fatalf("expected non-200 for non-websocket request")
	}
}

func TestStreamHandlersWebsocketBroadcast(t *testing.T) {
	hub := NewHub(nil, nil)
	base := serve(t, hub, nil)

	conn, _, err := websocket.DefaultDialer.Dial(base+"session-1", nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer conn.Close()
	waitForSubscriber(t, hub, "session-1")

	hub.Broadcast("session-1", []byte("hello"))
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read error: %v", err)
	}
	if string(msg) != "hello" {
		t.Fatalf("unexpected message")
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte("client")); err != nil {
		t.Fatalf("write error: %v", err)
	}
}

func TestStreamHandlersSendsSnapshotFirst(t *testing.T) {
	s := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer rdb.Close()

	snapshots := NewSnapshotCache(rdb, time.Minute)
	if err := snapshots.Save(context.Background(), "session-snap", []byte(`{"state":"idle"}`)); err != nil {
		t.Fatalf("save snapshot: %v", err)
	}

	base := serve(t, NewHub(nil, nil), snapshots)
	conn, _, err := websocket.DefaultDialer.Dial(base+"session-snap", nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil || string(msg) != `{"state":"idle"}` {
		t.Fatalf("expected snapshot, got %q (%v)", msg, err)
	}
}

func TestStreamHandlersClientLeaves(t *testing.T) {
	hub := NewHub(nil, nil)
	base := serve(t, hub, nil)

	conn, _, err := websocket.DefaultDialer.Dial(base+"session-3", nil)
	if err != nil {
		t.Fatalf("dial error: %v", err)
	}
	waitForSubscriber(t, hub, "session-3")

	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	conn.Close()

	deadline := time.Now().Add(time.Second)
	for hub.Subscribers("session-3") != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("client was not unregistered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	hub.Broadcast("session-3", []byte("ping"))
}
