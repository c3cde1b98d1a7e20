// Package mail provides the outbound email transports used by the reminder
// job. Every transport satisfies reminders.Sender.
package mail

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mycarecoach/coachos/internal/config"
)

// Sender delivers one plain-text email. Implementations must honour ctx
// cancellation so a send never outlives its timeout.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Closer is implemented by transports holding a connection.
type Closer interface {
	Close() error
}

// New builds the transport selected by cfg.MailTransport.
func New(cfg *config.Config, logger *slog.Logger) (Sender, error) {
	switch cfg.MailTransport {
	case config.TransportSMTP:
		return NewSMTPSender(SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.MailFrom,
			Timeout:  cfg.SendTimeout,
		})
	case config.TransportAMQP:
		return NewQueueSender(QueueConfig{
			URL:        cfg.AMQPURL,
			Exchange:   cfg.AMQPExchange,
			RoutingKey: cfg.AMQPRoutingKey,
			Queue:      cfg.AMQPQueue,
			From:       cfg.MailFrom,
		}, logger)
	case config.TransportLog, "":
		return NewLogSender(logger), nil
	}
	return nil, fmt.Errorf("unknown mail transport %q", cfg.MailTransport)
}

// Close releases the transport's connection, if it holds one.
func Close(s Sender) error {
	if c, ok := s.(Closer); ok {
		return c.Close()
	}
	return nil
}
