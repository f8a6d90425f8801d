package mail

import "context"

// Message is the canonical payload for transactional email delivery.
type Message struct {
	To       string
	Subject  string
	HTMLBody string
}

// Sender delivers a single transactional email.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// NoopSender discards messages. It is the default when no SMTP host is
// configured, which keeps local development working without a mail relay.
type NoopSender struct{}

func (NoopSender) Send(_ context.Context, _ Message) error { return nil }
