// Package notify dispatches password-reset mail through a message
// broker. The API server only publishes; an out-of-process mail worker
// consumes the queue and sends the actual email.
//
// Delivery is fire-and-forget from the caller's perspective: the
// forgot-password endpoint must answer uniformly whether or not a mail
// was dispatched, so publish failures are logged by the caller and never
// surfaced to the client.
package notify

import (
	"context"
	"encoding/json"
	"log"
)

// Notifier delivers a password-reset link to an address.
type Notifier interface {
	SendPasswordReset(ctx context.Context, email, link string) error
}

// Backend is a broker-agnostic publisher.
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Close() error
}

// ResetMail is the queue payload consumed by the mail worker.
type ResetMail struct {
	Email string `json:"email"`
	Link  string `json:"link"`
}

// QueueNotifier publishes reset mail onto a broker channel.
type QueueNotifier struct {
	backend Backend
	channel string
}

// NewQueueNotifier constructs a QueueNotifier for the given backend and
// channel name.
func NewQueueNotifier(backend Backend, channel string) *QueueNotifier {
	return &QueueNotifier{backend: backend, channel: channel}
}

func (n *QueueNotifier) SendPasswordReset(ctx context.Context, email, link string) error {
	payload, err := json.Marshal(ResetMail{Email: email, Link: link})
	if err != nil {
		return err
	}
	_, err = n.backend.Publish(ctx, n.channel, payload, map[string]string{"type": "password-reset"})
	return err
}

// Close closes the underlying backend.
func (n *QueueNotifier) Close() error {
	return n.backend.Close()
}

// LogNotifier is the development fallback when no broker is configured.
// It records that a reset was issued without logging the link, since the
// link embeds the plaintext token.
type LogNotifier struct{}

func (LogNotifier) SendPasswordReset(ctx context.Context, email, link string) error {
	log.Printf("notify: password reset issued for %s (no mail backend configured)", email)
	return nil
}
