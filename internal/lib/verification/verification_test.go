package verification

import (
	"context"
	"errors"
	"strings"
	"testing"

	"signin_service/internal/models"

	"github.com/stretchr/testify/require"
)

type capturingPublisher struct {
	sent []models.Message
	err  error
}

func (p *capturingPublisher) SendMessage(_ context.Context, msg models.Message) error {
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, msg)
	return nil
}

func TestSendSignInLink(t *testing.T) {
	t.Parallel()

	pub := &capturingPublisher{}

	err := SendSignInLink(context.Background(), pub, "https://app.example.com", "user@example.com", "tok123")
	require.NoError(t, err)

	require.Len(t, pub.sent, 1)
	msg := pub.sent[0]
	require.Equal(t, "user@example.com", msg.Email)
	require.Equal(t, subject, msg.Subject)
	require.True(t, strings.Contains(msg.Body, "https://app.example.com/auth/continue/tok123"))
}

func TestSendSignInLink_TransportError(t *testing.T) {
	t.Parallel()

	pub := &capturingPublisher{err: errors.New("broker down")}

	err := SendSignInLink(context.Background(), pub, "https://app.example.com", "user@example.com", "tok123")
	require.Error(t, err)
	require.Empty(t, pub.sent)
}
