package publish

import (
	"context"
	"errors"
	"fmt"

	"github.com/F0G3J3/Distributed-Embedded-Health-Monitor/internal/storage"
	amqp "github.com/rabbitmq/amqp091-go"
)

// amqpChannel is the subset of *amqp.Channel the publisher uses.
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPConfig holds the connection settings of the RabbitMQ publisher. An
// empty RoutingKey declares a fanout exchange, otherwise a topic one.
type AMQPConfig struct {
	URL        string
	Exchange   string
	RoutingKey string
}

// AMQPPublisher publishes readings as persistent JSON messages on an
// exchange.
type AMQPPublisher struct {
	conn       *amqp.Connection
	channel    amqpChannel
	exchange   string
	routingKey string
}

// NewAMQPPublisher dials the broker and declares the exchange.
func NewAMQPPublisher(cfg AMQPConfig) (*AMQPPublisher, error) {
	if cfg.Exchange == "" {
		cfg.Exchange = "health-readings"
	}

	conn, err := amqp.DialConfig(cfg.URL, amqp.Config{Dial: amqp.DefaultDial(connectTimeout)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	kind := "topic"
	if cfg.RoutingKey == "" {
		kind = "fanout"
	}

	err = ch.ExchangeDeclare(
		cfg.Exchange, // name
		kind,         // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	p := newAMQPPublisher(ch, cfg.Exchange, cfg.RoutingKey)
	p.conn = conn
	return p, nil
}

func newAMQPPublisher(ch amqpChannel, exchange, routingKey string) *AMQPPublisher {
	return &AMQPPublisher{channel: ch, exchange: exchange, routingKey: routingKey}
}

func (p *AMQPPublisher) Name() string { return "amqp" }

// Publish sends the event for reading. The message id is the reading id.
func (p *AMQPPublisher) Publish(ctx context.Context, reading storage.Reading) error {
	data, err := Encode(reading)
	if err != nil {
		return err
	}

	err = p.channel.PublishWithContext(
		ctx,
		p.exchange,   // exchange
		p.routingKey, // routing key
		false,        // mandatory
		false,        // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    fmt.Sprintf("%d", reading.ID),
			Timestamp:    reading.Timestamp,
			Type:         EventReadingSaved,
			Body:         data,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// Close closes the channel and connection
func (p *AMQPPublisher) Close() error {
	var errs []error
	if err := p.channel.Close(); err != nil {
		errs = append(errs, err)
	}
	if p.conn != nil {
		if err := p.conn.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
