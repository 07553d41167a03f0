package outbox

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
)

// KafkaProducer publishes participation events, keeping one writer per topic
// so roster changes for the same activity reach the same partition.
type KafkaProducer struct {
	brokers []string
	mu      sync.Mutex
	writers map[string]*kafka.Writer
}

// NewKafkaProducer returns a producer for the given brokers. Writers are
// opened on first use of each topic.
func NewKafkaProducer(brokers []string) *KafkaProducer {
	return &KafkaProducer{
		brokers: brokers,
		writers: make(map[string]*kafka.Writer),
	}
}

// WriteMessages publishes a claimed outbox batch to topic. It returns only
// after every broker replica acknowledged the batch.
func (p *KafkaProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	return p.writerForTopic(topic).WriteMessages(ctx, msgs...)
}

// Events are keyed by activity name, so Hash keeps an activity's signups and
// removals on one partition in outbox order.
func (p *KafkaProducer) writerForTopic(topic string) *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()

	if writer, ok := p.writers[topic]; ok {
		return writer
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(p.brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		BatchTimeout:           50 * time.Millisecond,
		WriteTimeout:           10 * time.Second,
		AllowAutoTopicCreation: true,
	}
	p.writers[topic] = writer
	return writer
}

// Close flushes and closes every topic writer. The producer can be reused
// afterwards; new writers are opened on demand.
func (p *KafkaProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var errs error
	for topic, writer := range p.writers {
		errs = errors.Join(errs, writer.Close())
		delete(p.writers, topic)
	}
	return errs
}
