// Package outbox delivers recorded participation events to Kafka.
package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

type messageWriter interface {
	WriteMessages(context.Context, string, ...kafka.Message) error
}

// batchStore claims pending rows and records their fate.
type batchStore interface {
	Claim(ctx context.Context, limit int) ([]Message, error)
	MarkPublished(ctx context.Context, messages []Message) error
	Release(ctx context.Context, messages []Message) error
	DeadLetter(ctx context.Context, messages []Message, reason string) error
}

// Message represents a row fetched from participation_outbox.
type Message struct {
	Seq          int64
	EventID      string
	EventType    string
	Topic        string
	PartitionKey string
	Payload      json.RawMessage
	// Attempts counts earlier failed deliveries of this row.
	Attempts     int
}

// Dispatcher drains the outbox table and delivers events to Kafka.
type Dispatcher struct {
	store            batchStore
	producer         messageWriter
	pollInterval     time.Duration
	batchSize        int
	maxAttempts      int
	logger           *log.Logger
	shutdownComplete chan struct{}
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger overrides the dispatcher logger.
func WithLogger(logger *log.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithMaxAttempts sets how many failed deliveries a row gets before it is
// moved to the dead-letter table.
func WithMaxAttempts(attempts int) Option {
	return func(d *Dispatcher) {
		if attempts > 0 {
			d.maxAttempts = attempts
		}
	}
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(store batchStore, producer messageWriter, pollInterval time.Duration, batchSize int, opts ...Option) *Dispatcher {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	if batchSize <= 0 {
		batchSize = 25
	}
	d := &Dispatcher{
		store:            store,
		producer:         producer,
		pollInterval:     pollInterval,
		batchSize:        batchSize,
		maxAttempts:      3,
		logger:           log.New(log.Writer(), "outbox: ", log.LstdFlags),
		shutdownComplete: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start launches the polling loop. It should be called in a goroutine.
func (d *Dispatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(d.pollInterval)
	defer func() {
		ticker.Stop()
		close(d.shutdownComplete)
	}()

	for {
		if err := d.processBatch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			d.logger.Printf("dispatcher error: %v", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Wait waits until dispatcher stops.
func (d *Dispatcher) Wait() {
	<-d.shutdownComplete
}

func (d *Dispatcher) processBatch(ctx context.Context) error {
	start := time.Now()

	messages, err := d.store.Claim(ctx, d.batchSize)
	if err != nil {
		return err
	}
	if len(messages) == 0 {
		return nil
	}
	defer func() { batchDuration.Observe(time.Since(start).Seconds()) }()

	if err := d.deliver(ctx, messages); err != nil {
		if ctx.Err() != nil {
			// Rows stay claimed; the lease hands them back after shutdown.
			return ctx.Err()
		}
		d.logger.Printf("delivery failure for %d events: %v", len(messages), err)
		failedCounter.Add(float64(len(messages)))
		return d.settleFailure(ctx, messages, err)
	}

	if err := d.store.MarkPublished(ctx, messages); err != nil {
		return err
	}
	deliveredCounter.Add(float64(len(messages)))
	return nil
}

// settleFailure releases rows that still have attempts left for the next poll
// and dead-letters the rest.
func (d *Dispatcher) settleFailure(ctx context.Context, messages []Message, cause error) error {
	var retry, exhausted []Message
	for _, msg := range messages {
		if msg.Attempts+1 >= d.maxAttempts {
			exhausted = append(exhausted, msg)
		} else {
			retry = append(retry, msg)
		}
	}

	if len(retry) > 0 {
		if err := d.store.Release(ctx, retry); err != nil {
			return err
		}
		retriedCounter.Add(float64(len(retry)))
	}
	if len(exhausted) > 0 {
		if err := d.store.DeadLetter(ctx, exhausted, cause.Error()); err != nil {
			return err
		}
		for _, msg := range exhausted {
			dlqCounter.WithLabelValues(msg.Topic).Inc()
		}
	}
	return nil
}

// deliver writes one batch per topic, preserving claim order within a topic.
func (d *Dispatcher) deliver(ctx context.Context, messages []Message) error {
	batches := make(map[string][]kafka.Message)
	topics := make([]string, 0)

	for _, msg := range messages {
		record := kafka.Message{
			Key:   []byte(msg.PartitionKey),
			Value: []byte(msg.Payload),
			Headers: []kafka.Header{
				{Key: "event_id", Value: []byte(msg.EventID)},
				{Key: "event_type", Value: []byte(msg.EventType)},
			},
			Time: time.Now().UTC(),
		}
		if _, ok := batches[msg.Topic]; !ok {
			topics = append(topics, msg.Topic)
		}
		batches[msg.Topic] = append(batches[msg.Topic], record)
	}

	for _, topic := range topics {
		if err := d.producer.WriteMessages(ctx, topic, batches[topic]...); err != nil {
			return err
		}
	}
	return nil
}
