// Package publish fans stored readings out to message brokers after they
// have been committed. Publication is best effort: a failing publisher
// never undoes or fails an ingestion.
package publish

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/F0G3J3/Distributed-Embedded-Health-Monitor/internal/config"
	"github.com/F0G3J3/Distributed-Embedded-Health-Monitor/internal/storage"
)

// EventReadingSaved is the type of every published event
const EventReadingSaved = "reading.saved"

// Publisher delivers one stored reading to a broker.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, reading storage.Reading) error
	Close() error
}

// Event is the message body sent to every broker.
type Event struct {
	Type    string          `json:"type"`
	Reading storage.Reading `json:"reading"`
}

// Encode renders the event for a stored reading as JSON.
func Encode(reading storage.Reading) ([]byte, error) {
	reading.Timestamp = reading.Timestamp.UTC()
	data, err := json.Marshal(Event{Type: EventReadingSaved, Reading: reading})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return data, nil
}

// Set is a group of publishers receiving every reading.
type Set []Publisher

// PublishAll sends reading to every publisher in turn. observe, when not
// nil, is told the outcome of each one. The returned error joins all
// failures.
func (s Set) PublishAll(ctx context.Context, reading storage.Reading, observe func(name string, err error)) error {
	var errs []error
	for _, p := range s {
		err := p.Publish(ctx, reading)
		if observe != nil {
			observe(p.Name(), err)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Close closes every publisher.
func (s Set) Close() error {
	var errs []error
	for _, p := range s {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// FromConfig connects the publishers enabled in configuration. A publisher
// is enabled by setting its address; an enabled publisher that cannot
// connect is a startup error.
func FromConfig(ctx context.Context) (Set, error) {
	set := Set{}

	if addr := config.StringValue("MONITOR_REDIS_ADDR"); addr != "" {
		p, err := NewRedisPublisher(ctx, RedisConfig{
			Addr:     addr,
			Password: config.StringValue("MONITOR_REDIS_PASSWORD"),
			DB:       config.IntValue("MONITOR_REDIS_DB"),
			Channel:  config.StringValue("MONITOR_REDIS_CHANNEL"),
		})
		if err != nil {
			return nil, err
		}
		set = append(set, p)
	}

	if url := config.StringValue("MONITOR_AMQP_URL"); url != "" {
		p, err := NewAMQPPublisher(AMQPConfig{
			URL:        url,
			Exchange:   config.StringValue("MONITOR_AMQP_EXCHANGE"),
			RoutingKey: config.StringValue("MONITOR_AMQP_ROUTING_KEY"),
		})
		if err != nil {
			set.Close()
			return nil, err
		}
		set = append(set, p)
	}

	return set, nil
}

// connectTimeout bounds broker handshakes at startup
const connectTimeout = 5 * time.Second
