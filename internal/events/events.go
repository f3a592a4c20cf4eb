// Package events publishes raster lifecycle events to Kafka.
package events

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/IBM/sarama"

	"github.com/mohammed-shakir/h3-raster-store/internal/observability"
)

const (
	OpCreated = "created"
	OpCloned  = "cloned"
	OpMasked  = "masked"
	OpDeleted = "deleted"
)

type Event struct {
	Op       string    `json:"op"`
	RasterID string    `json:"raster_id"`
	SourceID string    `json:"source_id,omitempty"`
	Kind     string    `json:"kind,omitempty"`
	Format   string    `json:"format,omitempty"`
	Bands    int       `json:"bands"`
	Rows     int       `json:"rows"`
	Columns  int       `json:"columns"`
	Origin   string    `json:"origin,omitempty"`
	TS       time.Time `json:"ts"`
}

// Publisher queues events and feeds them to an async producer. A nil
// *Publisher discards everything.
type Publisher struct {
	topic   string
	origin  string
	events  chan Event
	prod    sarama.AsyncProducer
	log     *slog.Logger
	stopped chan struct{}
	errDone chan struct{}
}

func NewPublisher(brokers []string, topic string, queueSize int, log *slog.Logger) (*Publisher, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Producer.Return.Errors = true
	cfg.Producer.Return.Successes = false

	prod, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("events: create async producer: %w", err)
	}
	return NewPublisherWithProducer(prod, topic, queueSize, log), nil
}

func NewPublisherWithProducer(prod sarama.AsyncProducer, topic string, queueSize int, log *slog.Logger) *Publisher {
	if queueSize <= 0 {
		queueSize = 1024
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	p := &Publisher{
		topic:   topic,
		events:  make(chan Event, queueSize),
		prod:    prod,
		log:     log,
		stopped: make(chan struct{}),
		errDone: make(chan struct{}),
	}

	go func() {
		defer close(p.stopped)
		for ev := range p.events {
			b, err := json.Marshal(ev)
			if err != nil {
				p.log.Error("events: marshal", "err", err)
				continue
			}
			p.prod.Input() <- &sarama.ProducerMessage{
				Topic: p.topic,
				Key:   sarama.StringEncoder(ev.RasterID),
				Value: sarama.ByteEncoder(b),
			}
		}
	}()

	go func() {
		defer close(p.errDone)
		for err := range p.prod.Errors() {
			if err != nil {
				p.log.Warn("events: producer error", "err", err)
			}
		}
	}()

	return p
}

// SetOrigin stamps every later event with the publishing instance id. Call
// it before the first Publish.
func (p *Publisher) SetOrigin(id string) {
	if p != nil {
		p.origin = id
	}
}

// Publish never blocks; events are dropped when the queue is full.
func (p *Publisher) Publish(ev Event) {
	if p == nil {
		return
	}
	if ev.Origin == "" {
		ev.Origin = p.origin
	}
	if ev.TS.IsZero() {
		ev.TS = time.Now().UTC()
	}
	select {
	case p.events <- ev:
	default:
		observability.IncEventsDropped()
	}
}

// Close drains queued events and closes the producer. Publish must not be
// called after Close.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	close(p.events)
	<-p.stopped

	if err := p.prod.Close(); err != nil {
		return fmt.Errorf("events: close producer: %w", err)
	}
	<-p.errDone
	return nil
}
