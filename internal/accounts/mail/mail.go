// Package mail delivers account notifications. The service layer depends
// only on the Mailer interface; the concrete mailer is picked by the app
// from configuration.
package mail

import (
	"context"
	"errors"
	"log/slog"

	"github.com/aussiebroadwan/accounts/pkg/slogx"
)

var ErrNoRecipient = errors.New("mail: no recipient")

// Message is a single outbound email.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Mailer sends a Message. Implementations must be safe for concurrent use.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// LogMailer logs messages instead of delivering them. Bodies are omitted
// because they may carry reset tokens.
type LogMailer struct{}

func (LogMailer) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return ErrNoRecipient
	}
	slogx.FromContext(ctx).Info("email not sent, delivery disabled",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
	)
	return nil
}
