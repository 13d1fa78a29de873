// Package notify delivers alerts to the configured channels.
// Delivery is best-effort: a failing channel is logged and skipped, it never
// fails the caller.
package notify

import (
	"context"

	"github.com/rs/zerolog/log"
)

// Sender delivers one message to one channel
type Sender interface {
	Name() string
	Send(ctx context.Context, message, title string) error
}

// Notifier fans a message out to every configured channel
type Notifier struct {
	senders []Sender
}

func New(senders ...Sender) *Notifier {
	return &Notifier{senders: senders}
}

// Send attempts every channel independently. Failures are logged, never
// returned.
func (n *Notifier) Send(ctx context.Context, message, title string) {
	for _, sender := range n.senders {
		if err := sender.Send(ctx, message, title); err != nil {
			log.Error().Err(err).Str("channel", sender.Name()).Msg("notification delivery failed")
		}
	}
}
