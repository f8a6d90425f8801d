package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Hub is the in-process Publisher: it tracks which clients subscribe to
// which rooms and fans published events out to their send queues.
//
// Delivery is best effort. A client whose queue is full misses the event;
// slow consumers never block a publisher.
type Hub struct {
	log *slog.Logger

	mu    sync.RWMutex
	rooms map[string]map[string]*Client // room -> session id -> client
}

// NewHub constructs a Hub instance.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		log:   log,
		rooms: make(map[string]map[string]*Client),
	}
}

// Subscribe adds the client to a room.
func (h *Hub) Subscribe(room string, c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[room]
	if !ok {
		members = make(map[string]*Client)
		h.rooms[room] = members
	}
	members[c.SessionID] = c
}

// Unsubscribe removes the client from a room, dropping the room when empty.
func (h *Hub) Unsubscribe(room string, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	members, ok := h.rooms[room]
	if !ok {
		return
	}
	delete(members, sessionID)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
}

// UnsubscribeAll removes the session from every room it joined.
func (h *Hub) UnsubscribeAll(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for room, members := range h.rooms {
		delete(members, sessionID)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
}

// Publish delivers an event to every live subscriber of the room.
func (h *Hub) Publish(ctx context.Context, room, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("realtime: marshal payload: %w", err)
	}
	body, err := json.Marshal(EventPayload{Room: room, Event: event, Data: data})
	if err != nil {
		return fmt.Errorf("realtime: marshal event: %w", err)
	}
	env := newEnvelope(TypeEvent, body, time.Now().UTC())

	h.mu.RLock()
	members := make([]*Client, 0, len(h.rooms[room]))
	for _, c := range h.rooms[room] {
		members = append(members, c)
	}
	h.mu.RUnlock()

	for _, c := range members {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.Done():
		case c.Send <- env:
		default:
			h.log.Info("realtime.drop.backpressure", "room", room, "event", event, "session_id", c.SessionID)
		}
	}
	return nil
}

// RoomSize reports the current subscriber count of a room.
func (h *Hub) RoomSize(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[room])
}

var _ Publisher = (*Hub)(nil)
