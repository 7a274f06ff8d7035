package auth

import (
	"context"
	"log/slog"
)

// Mailer delivers magic sign-in links.
type Mailer interface {
	SendMagicLink(ctx context.Context, email, link string) error
}

// LogMailer writes the link to the log instead of sending mail. It is the
// default for development and single-user deployments.
type LogMailer struct {
	logger *slog.Logger
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) SendMagicLink(ctx context.Context, email, link string) error {
	m.logger.InfoContext(ctx, "magic sign-in link",
		slog.String("email", email),
		slog.String("link", link),
	)
	return nil
}
