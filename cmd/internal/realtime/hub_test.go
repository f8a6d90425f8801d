package realtime

import (
	"context"
	"encoding/json"
	"testing"
)

func TestHub_PublishReachesRoomMembers(t *testing.T) {
	hub := NewHub(nil)
	ctx := context.Background()

	a := NewClient("u1", "s1", 8)
	b := NewClient("u1", "s2", 8)
	other := NewClient("u2", "s3", 8)

	hub.Subscribe(UserRoom("u1"), a)
	hub.Subscribe(UserRoom("u1"), b)
	hub.Subscribe(UserRoom("u2"), other)

	if err := hub.Publish(ctx, UserRoom("u1"), "email.verified", map[string]string{"userId": "u1"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	for _, c := range []*Client{a, b} {
		select {
		case env := <-c.Send:
			if env.Type != TypeEvent {
				t.Fatalf("type = %q", env.Type)
			}
			var p EventPayload
			if err := json.Unmarshal(env.Payload, &p); err != nil {
				t.Fatalf("unmarshal payload: %v", err)
			}
			if p.Room != UserRoom("u1") || p.Event != "email.verified" {
				t.Fatalf("payload = %+v", p)
			}
		default:
			t.Fatalf("client %s received nothing", c.SessionID)
		}
	}

	select {
	case env := <-other.Send:
		t.Fatalf("unexpected delivery to other room: %+v", env)
	default:
	}
}

func TestHub_UnsubscribeStopsDelivery(t *testing.T) {
	hub := NewHub(nil)
	ctx := context.Background()

	c := NewClient("u1", "s1", 8)
	hub.Subscribe(UserRoom("u1"), c)
	hub.Unsubscribe(UserRoom("u1"), "s1")

	if err := hub.Publish(ctx, UserRoom("u1"), "password.reset", nil); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	select {
	case env := <-c.Send:
		t.Fatalf("unexpected delivery after unsubscribe: %+v", env)
	default:
	}
	if hub.RoomSize(UserRoom("u1")) != 0 {
		t.Fatalf("room not dropped when empty")
	}
}

func TestHub_BackpressureDropsNotBlocks(t *testing.T) {
	hub := NewHub(nil)
	ctx := context.Background()

	c := NewClient("u1", "s1", 1)
	hub.Subscribe(UserRoom("u1"), c)

	// Second publish must not block even though the queue is full.
	for i := 0; i < 3; i++ {
		if err := hub.Publish(ctx, UserRoom("u1"), "session.revoked", nil); err != nil {
			t.Fatalf("Publish %d: %v", i, err)
		}
	}
	if got := len(c.Send); got != 1 {
		t.Fatalf("queued = %d, want 1", got)
	}
}

func TestHub_UnsubscribeAll(t *testing.T) {
	hub := NewHub(nil)

	c := NewClient("u1", "s1", 8)
	hub.Subscribe(UserRoom("u1"), c)
	hub.Subscribe("broadcast", c)

	hub.UnsubscribeAll("s1")
	if hub.RoomSize(UserRoom("u1")) != 0 || hub.RoomSize("broadcast") != 0 {
		t.Fatalf("session still subscribed somewhere")
	}
}
