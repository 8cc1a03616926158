// Package realtime delivers state-change events to live connections
// subscribed to house channels. No persistence, no replay: a disconnected
// client re-fetches authoritative state on reconnect.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const writeTimeout = 5 * time.Second

// Conn is a writable client connection.
type Conn interface {
	Write(ctx context.Context, data []byte) error
}

// RoomKey is the logical channel name for a house.
func RoomKey(communityID int64, houseNumber string) string {
	return fmt.Sprintf("house_%s_%d", houseNumber, communityID)
}

// Envelope is the wire format of a published event.
type Envelope struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload,omitempty"`
}

// Hub maps house channels to their current subscribers. The registry is
// mutated only by Join and Leave on the owning connection.
type Hub struct {
	mu    sync.Mutex
	rooms map[string]map[*Subscription]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[*Subscription]struct{})}
}

// Subscription is one connection's membership in one room.
type Subscription struct {
	hub  *Hub
	room string
	conn Conn
}

// Join subscribes a connection to a house channel.
func (h *Hub) Join(communityID int64, houseNumber string, conn Conn) *Subscription {
	sub := &Subscription{hub: h, room: RoomKey(communityID, houseNumber), conn: conn}

	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.rooms[sub.room]
	if !ok {
		subs = make(map[*Subscription]struct{})
		h.rooms[sub.room] = subs
	}
	subs[sub] = struct{}{}

	slog.Debug("realtime join", "room", sub.room, "subscribers", len(subs))
	return sub
}

// Leave removes the subscription. Safe to call more than once.
func (s *Subscription) Leave() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	subs, ok := s.hub.rooms[s.room]
	if !ok {
		return
	}
	delete(subs, s)
	if len(subs) == 0 {
		delete(s.hub.rooms, s.room)
	}
}

// Publish delivers an event to every current subscriber of the house
// channel. Writes happen off the caller's goroutine; a failed write drops
// the subscriber.
func (h *Hub) Publish(communityID int64, houseNumber, event string, payload interface{}) {
	data, err := json.Marshal(Envelope{Event: event, Payload: payload})
	if err != nil {
		slog.Error("encoding realtime event", "event", event, "error", err)
		return
	}

	room := RoomKey(communityID, houseNumber)

	h.mu.Lock()
	subs := make([]*Subscription, 0, len(h.rooms[room]))
	for sub := range h.rooms[room] {
		subs = append(subs, sub)
	}
	h.mu.Unlock()

	for _, sub := range subs {
		go func(sub *Subscription) {
			ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
			defer cancel()
			if err := sub.conn.Write(ctx, data); err != nil {
				slog.Debug("realtime write failed, dropping subscriber", "room", room, "error", err)
				sub.Leave()
			}
		}(sub)
	}
}

// Subscribers returns the current subscriber count of a house channel.
func (h *Hub) Subscribers(communityID int64, houseNumber string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[RoomKey(communityID, houseNumber)])
}
