package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

// chanConn delivers writes to a channel for inspection.
type chanConn struct {
	writes chan []byte
}

func newChanConn() *chanConn {
	return &chanConn{writes: make(chan []byte, 8)}
}

func (c *chanConn) Write(_ context.Context, data []byte) error {
	c.writes <- data
	return nil
}

func (c *chanConn) receive(t *testing.T) Envelope {
	t.Helper()
	select {
	case data := <-c.writes:
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("decoding envelope: %v", err)
		}
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return Envelope{}
	}
}

// failConn always fails writes.
type failConn struct {
	mu    sync.Mutex
	calls int
}

func (c *failConn) Write(context.Context, []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return errors.New("connection gone")
}

func TestRoomKey(t *testing.T) {
	if got := RoomKey(5, "104"); got != "house_104_5" {
		t.Errorf("room key = %q, want house_104_5", got)
	}
}

func TestPublishToSubscribers(t *testing.T) {
	hub := NewHub()
	a := newChanConn()
	b := newChanConn()
	hub.Join(1, "104", a)
	hub.Join(1, "104", b)

	hub.Publish(1, "104", "notification_answered", map[string]string{"status": "accepted"})

	for _, conn := range []*chanConn{a, b} {
		env := conn.receive(t)
		if env.Event != "notification_answered" {
			t.Errorf("event = %q, want notification_answered", env.Event)
		}
		payload, ok := env.Payload.(map[string]interface{})
		if !ok || payload["status"] != "accepted" {
			t.Errorf("payload = %v, want status accepted", env.Payload)
		}
	}
}

func TestPublishScopedToRoom(t *testing.T) {
	hub := NewHub()
	sameHouse := newChanConn()
	otherHouse := newChanConn()
	otherCommunity := newChanConn()
	hub.Join(1, "104", sameHouse)
	hub.Join(1, "201", otherHouse)
	hub.Join(2, "104", otherCommunity)

	hub.Publish(1, "104", "report_updated", nil)

	sameHouse.receive(t)
	select {
	case <-otherHouse.writes:
		t.Error("other house received the event")
	case <-otherCommunity.writes:
		t.Error("other community received the event")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishEmptyRoom(t *testing.T) {
	hub := NewHub()
	// No subscribers: publish is a no-op, not an error.
	hub.Publish(1, "104", "notification_expired", nil)
}

func TestLeave(t *testing.T) {
	hub := NewHub()
	conn := newChanConn()
	sub := hub.Join(1, "104", conn)

	if got := hub.Subscribers(1, "104"); got != 1 {
		t.Fatalf("subscribers = %d, want 1", got)
	}

	sub.Leave()
	sub.Leave() // double leave is safe

	if got := hub.Subscribers(1, "104"); got != 0 {
		t.Fatalf("subscribers = %d, want 0 after leave", got)
	}

	hub.Publish(1, "104", "report_updated", nil)
	select {
	case <-conn.writes:
		t.Error("left subscriber received an event")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestFailedWriteDropsSubscriber(t *testing.T) {
	hub := NewHub()
	bad := &failConn{}
	good := newChanConn()
	hub.Join(1, "104", bad)
	hub.Join(1, "104", good)

	hub.Publish(1, "104", "report_updated", nil)
	good.receive(t)

	// The failed subscriber is removed; later publishes skip it.
	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers(1, "104") != 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := hub.Subscribers(1, "104"); got != 1 {
		t.Fatalf("subscribers = %d, want 1 after drop", got)
	}

	hub.Publish(1, "104", "report_updated", nil)
	good.receive(t)
	bad.mu.Lock()
	calls := bad.calls
	bad.mu.Unlock()
	if calls != 1 {
		t.Errorf("failed conn written %d times, want 1", calls)
	}
}
