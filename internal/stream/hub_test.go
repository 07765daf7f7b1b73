package stream

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func receive(t *testing.T, client *Client, timeout time.Duration) string {
	t.Helper()
	select {
	case msg := <-client.Send:
		return string(msg)
	case <-time.After(timeout):
		t.Fatalf("timeout waiting for message")
	}
	return ""
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub(nil, nil)
	defer hub.Close()
	client := hub.Register("session-1")
	defer hub.Unregister(client)

	hub.Broadcast("session-1", []byte("hello"))
	if msg := receive(t, client, 100*time.Millisecond); msg != "hello" {
		t.Fatalf("unexpected message %q", msg)
	}
	if hub.Subscribers("session-1") != 1 {
		t.Fatalf("expected one subscriber")
	}
}

func TestHubHelpers(t *testing.T) {
	ch := redisChannel("abc")
	if ch != "runs:abc:live" {
		t.Fatalf("unexpected channel %q", ch)
	}
	if sessionIDFromChannel(ch) != "abc" {
		t.Fatalf("unexpected session id")
	}
	if sessionIDFromChannel("bad") != "" {
		t.Fatalf("expected empty session id")
	}
	if sessionIDFromChannel("tracking:abc:broadcast") != "" {
		t.Fatalf("expected foreign channel to be ignored")
	}
}

func TestUnregisterCloses(t *testing.T) {
	hub := NewHub(nil, nil)
	client := hub.Register("session-2")
	hub.Unregister(client)
	_, ok := <-client.Send
	if ok {
		t.Fatalf("expected channel closed")
	}
	hub.Unregister(client)
	if hub.Subscribers("session-2") != 0 {
		t.Fatalf("expected no subscribers")
	}
}

func TestHubRedisFanOutAcrossInstances(t *testing.T) {
	s := miniredis.RunT(t)
	rdbA := redis.NewClient(&redis.Options{Addr: s.Addr()})
	rdbB := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer rdbA.Close()
	defer rdbB.Close()

	hubA := NewHub(rdbA, nil)
	defer hubA.Close()
	hubB := NewHub(rdbB, nil)
	defer hubB.Close()

	local := hubA.Register("session-redis")
	defer hubA.Unregister(local)
	remote := hubB.Register("session-redis")
	defer hubB.Unregister(remote)

	time.Sleep(50 * time.Millisecond)
	hubA.Broadcast("session-redis", []byte(`{"state":"active"}`))

	if msg := receive(t, local, 200*time.Millisecond); msg != `{"state":"active"}` {
		t.Fatalf("unexpected local message %q", msg)
	}
	if msg := receive(t, remote, time.Second); msg != `{"state":"active"}` {
		t.Fatalf("unexpected remote message %q", msg)
	}

	select {
	case msg := <-local.Send:
		t.Fatalf("local client received its own message twice: %q", msg)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHubIgnoresMalformedRedisMessages(t *testing.T) {
	s := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer rdb.Close()

	hub := NewHub(rdb, nil)
	defer hub.Close()
	client := hub.Register("session-x")
	defer hub.Unregister(client)

	time.Sleep(50 * time.Millisecond)
	if err := rdb.Publish(context.Background(), redisChannel("session-x"), "not json").Err(); err != nil {
		t.Fatalf("publish error: %v", err)
	}

	select {
	case msg := <-client.Send:
		t.Fatalf("unexpected message %q", msg)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHubRedisPublishError(t *testing.T) {
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	defer client.Close()

	hub := NewHub(client, nil)
	defer hub.Close()
	server.Close()

	node := hub.Register("session-bad")
	defer hub.Unregister(node)

	hub.Broadcast("session-bad", []byte("ping"))
	if msg := receive(t, node, 100*time.Millisecond); msg != "ping" {
		t.Fatalf("local delivery should not depend on redis")
	}
}

func TestSnapshotCache(t *testing.T) {
	s := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: s.Addr()})
	defer rdb.Close()

	cache := NewSnapshotCache(rdb, time.Minute)
	ctx := context.Background()

	if _, err := cache.Load(ctx, "session-1"); err != ErrNoSnapshot {
		t.Fatalf("expected no snapshot, got %v", err)
	}
	if err := cache.Save(ctx, "session-1", []byte(`{"speed_mps":4}`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := cache.Load(ctx, "session-1")
	if err != nil || string(got) != `{"speed_mps":4}` {
		t.Fatalf("load: %v %s", err, got)
	}
	if ttl := s.TTL(snapshotKey("session-1")); ttl != time.Minute {
		t.Fatalf("unexpected ttl %v", ttl)
	}

	if err := cache.Delete(ctx, "session-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := cache.Load(ctx, "session-1"); err != ErrNoSnapshot {
		t.Fatalf("expected snapshot gone, got %v", err)
	}
}

func TestSnapshotCacheWithoutRedis(t *testing.T) {
	var cache *SnapshotCache
	if err := cache.Save(context.Background(), "s", []byte("x")); err != nil {
		t.Fatalf("save without redis should be a no-op")
	}
	if _, err := NewSnapshotCache(nil, time.Minute).Load(context.Background(), "s"); err != ErrNoSnapshot {
		t.Fatalf("expected no snapshot")
	}
}
