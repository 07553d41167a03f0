package outbox

import (
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/shanny2022/skills-integrate-mcp-with-copilot/internal/events"
)

func TestKafkaProducerKeepsOneWriterPerTopic(t *testing.T) {
	producer := NewKafkaProducer([]string{"kafka-1:9092", "kafka-2:9092"})

	writer := producer.writerForTopic(events.Topic)
	require.Same(t, writer, producer.writerForTopic(events.Topic))
	require.NotSame(t, writer, producer.writerForTopic("activity_participation_replay"))

	require.Equal(t, events.Topic, writer.Topic)
	require.IsType(t, &kafka.Hash{}, writer.Balancer)
	require.Equal(t, kafka.RequireAll, writer.RequiredAcks)
	require.Equal(t, 50*time.Millisecond, writer.BatchTimeout)

	require.NoError(t, producer.Close())
	require.Empty(t, producer.writers)
}
