package realtime

import "context"

// Publisher pushes an event to every live subscriber of a room.
//
// Auth services receive this capability explicitly at construction instead
// of reaching for a process-global hub, which keeps fan-out testable and
// makes "no realtime" (NoopPublisher) a first-class wiring.
type Publisher interface {
	Publish(ctx context.Context, room, event string, payload any) error
}

// NoopPublisher drops all events.
type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, string, string, any) error { return nil }

// UserRoom returns the private room name for a user's own lifecycle events.
func UserRoom(userID string) string { return "user:" + userID }
