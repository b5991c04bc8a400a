// Package notify sends the account lifecycle emails.
//
// Delivery is a side effect of signup and account deletion, never a
// precondition: callers log a Mailer error and carry on.
package notify

import (
	"context"
	"fmt"
	"log/slog"
)

// Mailer delivers the two transactional messages the service sends.
type Mailer interface {
	SendWelcome(ctx context.Context, email, name string) error
	SendCancellation(ctx context.Context, email, name string) error
}

// Message is a rendered plain-text email.
type Message struct {
	From    string
	To      string
	Subject string
	Body    string
}

// WelcomeMessage renders the signup email.
func WelcomeMessage(from, email, name string) Message {
	return Message{
		From:    from,
		To:      email,
		Subject: "Thanks for joining in!",
		Body:    fmt.Sprintf("Welcome to the app, %s. Let me know how you get along with the app.", name),
	}
}

// CancellationMessage renders the account-deletion email.
func CancellationMessage(from, email, name string) Message {
	return Message{
		From:    from,
		To:      email,
		Subject: "Sorry to see you go!",
		Body:    fmt.Sprintf("Goodbye, %s. I hope to see you back sometime soon.", name),
	}
}

// LogMailer "sends" mail by writing it to the structured log. It is the
// mailer used in development and tests, and the default when no outbound
// provider is configured.
type LogMailer struct {
	logger *slog.Logger
	from   string
}

var _ Mailer = (*LogMailer)(nil)

func NewLogMailer(logger *slog.Logger, from string) *LogMailer {
	return &LogMailer{logger: logger, from: from}
}

func (m *LogMailer) SendWelcome(ctx context.Context, email, name string) error {
	return m.send(ctx, WelcomeMessage(m.from, email, name))
}

func (m *LogMailer) SendCancellation(ctx context.Context, email, name string) error {
	return m.send(ctx, CancellationMessage(m.from, email, name))
}

func (m *LogMailer) send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return fmt.Errorf("notify: message %q has no recipient", msg.Subject)
	}
	m.logger.InfoContext(ctx, "mail sent",
		slog.String("from", msg.From),
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject),
		slog.String("body", msg.Body),
	)
	return nil
}
