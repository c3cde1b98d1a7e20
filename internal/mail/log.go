package mail

import (
	"context"
	"fmt"
	"log/slog"
)

// LogSender writes emails to the log instead of delivering them. Used in
// development and when no transport is configured.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a LogSender.
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

// Send logs the email. It fails only on an empty recipient or a done ctx.
func (s *LogSender) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if to == "" {
		return fmt.Errorf("no recipient")
	}
	s.logger.Info("Email send (log transport)",
		"to", to, "subject", subject, "body_bytes", len(body))
	return nil
}
