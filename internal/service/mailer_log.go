package service

import (
	"context"
	"log/slog"
)

// LogMailer stands in for SMTP when no host is configured. The code itself
// is only written when exposeCode is set, which the provider limits to
// local-like environments.
type LogMailer struct {
	logger     *slog.Logger
	exposeCode bool
}

func NewLogMailer(logger *slog.Logger, exposeCode bool) *LogMailer {
	return &LogMailer{logger: logger, exposeCode: exposeCode}
}

func (m *LogMailer) Transport() string { return "log" }

func (m *LogMailer) SendLoginCode(ctx context.Context, msg LoginCodeMessage) error {
	args := []any{
		"email", msg.To,
		"subject", LoginCodeSubject,
		"expires_at", msg.ExpiresAt,
	}
	if m.exposeCode {
		args = append(args, "otp_code", msg.Code)
	}
	m.logger.InfoContext(ctx, "login code issued", args...)
	return nil
}
