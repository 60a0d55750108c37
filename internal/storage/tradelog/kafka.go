package tradelog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"github.com/ohikava/token-sandbox/internal/domain"
)

const defaultKafkaWriteTimeout = 5 * time.Second

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes trade records keyed by wallet so one wallet's trades
// stay ordered within a partition.
type KafkaSink struct {
	writer  messageWriter
	timeout time.Duration
}

// NewKafkaSink creates a synchronous producer for topic.
func NewKafkaSink(brokers []string, topic string) *KafkaSink {
	return &KafkaSink{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			RequiredAcks:           kafka.RequireAll,
			Async:                  false,
			BatchTimeout:           10 * time.Millisecond,
			AllowAutoTopicCreation: true,
		},
		timeout: defaultKafkaWriteTimeout,
	}
}

// Append implements Sink.
func (k *KafkaSink) Append(record domain.TradeRecord) error {
	ctx, cancel := context.WithTimeout(context.Background(), k.timeout)
	defer cancel()
	return k.Send(ctx, record)
}

// Send publishes record within ctx.
func (k *KafkaSink) Send(ctx context.Context, record domain.TradeRecord) error {
	value, err := json.Marshal(record)
	if err != nil {
		return errors.Wrap(err, "marshal trade record")
	}

	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(record.Wallet),
		Value: value,
		Time:  record.Timestamp,
	})
	return errors.Wrap(err, "publish trade record")
}

// Close flushes pending messages and closes the writer.
func (k *KafkaSink) Close() error {
	return k.writer.Close()
}
