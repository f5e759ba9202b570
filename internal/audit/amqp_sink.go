package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	// DefaultExchange is the topic exchange events are published to.
	DefaultExchange = "appauth.audit"

	routingKeyPrefix = "appauth."
	publishTimeout   = 5 * time.Second
)

// Publisher is the subset of *amqp.Channel used by AMQPSink.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPSink publishes events as JSON to a topic exchange with routing key
// "appauth.<type>".
type AMQPSink struct {
	conn     *amqp.Connection
	ch       Publisher
	exchange string
	appID    string
}

// DialAMQPSink connects to url and declares the exchange.
func DialAMQPSink(url, exchange string) (*AMQPSink, error) {
	if exchange == "" {
		exchange = DefaultExchange
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to AMQP broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open AMQP channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	s := NewAMQPSink(ch, exchange)
	s.conn = conn
	return s, nil
}

// NewAMQPSink wraps an already open channel. The exchange must exist.
func NewAMQPSink(ch Publisher, exchange string) *AMQPSink {
	if exchange == "" {
		exchange = DefaultExchange
	}
	return &AMQPSink{ch: ch, exchange: exchange, appID: "appauth"}
}

// RoutingKey returns the routing key used for events of type t.
func RoutingKey(t EventType) string {
	return routingKeyPrefix + string(t)
}

func (s *AMQPSink) Emit(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	return s.ch.PublishWithContext(ctx, s.exchange, RoutingKey(ev.Type), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.ID,
		Timestamp:    ev.At,
		Type:         string(ev.Type),
		AppId:        s.appID,
		Body:         body,
	})
}

// Close closes the channel and, if the sink dialed it, the connection.
func (s *AMQPSink) Close() error {
	err := s.ch.Close()
	if s.conn != nil {
		if cerr := s.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
