package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	channel string
	data    []byte
	attrs   map[string]string
}

func (b *fakeBackend) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	b.channel = channel
	b.data = data
	b.attrs = attrs
	return "msg-1", nil
}

func (b *fakeBackend) Close() error { return nil }

func TestQueueNotifierPublishesResetMail(t *testing.T) {
	backend := &fakeBackend{}
	notifier := NewQueueNotifier(backend, "mail")

	err := notifier.SendPasswordReset(context.Background(), "alice@example.com", "https://app.example.com/reset-password?token=abc")
	require.NoError(t, err)

	assert.Equal(t, "mail", backend.channel)
	assert.Equal(t, "password-reset", backend.attrs["type"])

	var mail ResetMail
	require.NoError(t, json.Unmarshal(backend.data, &mail))
	assert.Equal(t, "alice@example.com", mail.Email)
	assert.Equal(t, "https://app.example.com/reset-password?token=abc", mail.Link)
}

func TestLogNotifierNeverLogsTheLink(t *testing.T) {
	orig := log.Writer()
	defer log.SetOutput(orig)
	var buf bytes.Buffer
	log.SetOutput(&buf)

	err := LogNotifier{}.SendPasswordReset(context.Background(), "alice@example.com", "https://app.example.com/reset-password?token=secret")
	require.NoError(t, err)

	assert.Contains(t, buf.String(), "alice@example.com")
	assert.NotContains(t, buf.String(), "token=secret")
}
