package mail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// QueueConfig configures QueueSender.
type QueueConfig struct {
	URL        string
	Exchange   string
	RoutingKey string
	Queue      string
	From       string
}

// OutboundEmail is the JSON body published for the mail relay.
type OutboundEmail struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

var errChannelClosed = errors.New("amqp channel closed")

// amqpChannel is the part of *amqp.Channel QueueSender uses.
type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Confirm(noWait bool) error
	NotifyPublish(confirm chan amqp.Confirmation) chan amqp.Confirmation
	NotifyReturn(c chan amqp.Return) chan amqp.Return
	NotifyClose(c chan *amqp.Error) chan *amqp.Error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

type amqpConnection interface {
	Channel() (amqpChannel, error)
	IsClosed() bool
	Close() error
}

// dialedConnection adapts *amqp.Connection to amqpConnection.
type dialedConnection struct {
	*amqp.Connection
}

func (c dialedConnection) Channel() (amqpChannel, error) {
	ch, err := c.Connection.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func dialAMQP(url string) (amqpConnection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	return dialedConnection{conn}, nil
}

// QueueSender hands emails to a durable RabbitMQ queue consumed by a mail
// relay. A send succeeds once the broker confirms the publish and has not
// returned it as unroutable. A channel or connection closed by the broker is
// reopened on the next send.
type QueueSender struct {
	mu     sync.Mutex
	cfg    QueueConfig
	dial   func(url string) (amqpConnection, error)
	logger *slog.Logger

	conn     amqpConnection
	channel  amqpChannel
	confirms chan amqp.Confirmation
	returns  chan amqp.Return
	closed   chan *amqp.Error
}

// NewQueueSender connects, declares the exchange and the bound queue, and
// enables publisher confirms.
func NewQueueSender(cfg QueueConfig, logger *slog.Logger) (*QueueSender, error) {
	return newQueueSender(cfg, dialAMQP, logger)
}

func newQueueSender(cfg QueueConfig, dial func(string) (amqpConnection, error), logger *slog.Logger) (*QueueSender, error) {
	s := &QueueSender{cfg: cfg, dial: dial, logger: logger}
	if err := s.connect(); err != nil {
		s.Close()
		return nil, err
	}
	logger.Info("Mail queue connected",
		"exchange", cfg.Exchange, "routing_key", cfg.RoutingKey, "queue", cfg.Queue)
	return s, nil
}

// connect opens a channel, redialing first when the connection is gone.
// Callers hold s.mu except during construction.
func (s *QueueSender) connect() error {
	if s.conn == nil || s.conn.IsClosed() {
		conn, err := s.dial(s.cfg.URL)
		if err != nil {
			return fmt.Errorf("connect to rabbitmq: %w", err)
		}
		s.conn = conn
	}

	ch, err := s.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	if err := s.declare(ch); err != nil {
		ch.Close()
		return err
	}
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		return fmt.Errorf("enable publisher confirms: %w", err)
	}

	s.channel = ch
	s.confirms = ch.NotifyPublish(make(chan amqp.Confirmation, 1))
	s.returns = ch.NotifyReturn(make(chan amqp.Return, 1))
	s.closed = ch.NotifyClose(make(chan *amqp.Error, 1))
	return nil
}

func (s *QueueSender) declare(ch amqpChannel) error {
	if err := ch.ExchangeDeclare(s.cfg.Exchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %q: %w", s.cfg.Exchange, err)
	}
	if _, err := ch.QueueDeclare(s.cfg.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %q: %w", s.cfg.Queue, err)
	}
	if err := ch.QueueBind(s.cfg.Queue, s.cfg.RoutingKey, s.cfg.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %q: %w", s.cfg.Queue, err)
	}
	return nil
}

// ensureChannel reopens the channel if the broker closed it since the last
// send.
func (s *QueueSender) ensureChannel() error {
	if s.channel != nil {
		select {
		case err := <-s.closed:
			s.logger.Warn("Mail queue channel closed, reopening", "error", err)
			s.channel = nil
		default:
			return nil
		}
	}
	return s.connect()
}

// drop discards a channel whose state is unknown.
func (s *QueueSender) drop() {
	if s.channel != nil {
		_ = s.channel.Close()
		s.channel = nil
	}
}

// Send publishes the email as mandatory and waits for the broker ack.
func (s *QueueSender) Send(ctx context.Context, to, subject, body string) error {
	payload, err := json.Marshal(OutboundEmail{
		From:      s.cfg.From,
		To:        to,
		Subject:   subject,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode email: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureChannel(); err != nil {
		return err
	}

	err = s.channel.PublishWithContext(ctx, s.cfg.Exchange, s.cfg.RoutingKey, true, false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         payload,
		})
	if err != nil {
		s.drop()
		return fmt.Errorf("publish email: %w", err)
	}

	return s.awaitConfirm(ctx, to)
}

// awaitConfirm waits for the confirm of the only publish in flight. The
// broker sends basic.return before the ack of an unroutable message.
func (s *QueueSender) awaitConfirm(ctx context.Context, to string) error {
	var returned *amqp.Return
	for {
		select {
		case ret, ok := <-s.returns:
			if !ok {
				s.drop()
				return fmt.Errorf("wait for publish confirm: %w", errChannelClosed)
			}
			returned = &ret

		case c, ok := <-s.confirms:
			if !ok {
				s.drop()
				return fmt.Errorf("wait for publish confirm: %w", errChannelClosed)
			}
			if returned == nil {
				select {
				case ret, ok := <-s.returns:
					if ok {
						returned = &ret
					}
				default:
				}
			}
			if !c.Ack {
				return fmt.Errorf("broker nacked email to %s", to)
			}
			if returned != nil {
				return fmt.Errorf("email to %s unroutable: %d %s", to, returned.ReplyCode, returned.ReplyText)
			}
			return nil

		case err := <-s.closed:
			s.drop()
			return fmt.Errorf("wait for publish confirm: %w: %v", errChannelClosed, err)

		case <-ctx.Done():
			// A late confirm would be matched to the next publish.
			s.drop()
			return fmt.Errorf("wait for publish confirm: %w", ctx.Err())
		}
	}
}

// Close closes the channel and the connection.
func (s *QueueSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	if s.channel != nil {
		errs = append(errs, s.channel.Close())
		s.channel = nil
	}
	if s.conn != nil && !s.conn.IsClosed() {
		errs = append(errs, s.conn.Close())
	}
	return errors.Join(errs...)
}
