package verification

import (
	"context"
	"fmt"

	"signin_service/internal/models"
)

const subject = "Your sign-in link"

type Publisher interface {
	SendMessage(ctx context.Context, msg models.Message) error
}

// SendSignInLink composes the magic-link email for the given verification
// token and hands it to the transport. Delivery is at-least-once attempted;
// transport failures are returned, never retried here.
func SendSignInLink(ctx context.Context, pub Publisher, appURL, email, token string) error {
	const op = "lib.verification.SendSignInLink"

	link := fmt.Sprintf("%s/auth/continue/%s", appURL, token)

	msg := models.Message{
		Email:   email,
		Subject: subject,
		Body:    fmt.Sprintf("Hey there!\nPlease click the link below to sign in: %s", link),
	}

	if err := pub.SendMessage(ctx, msg); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}
