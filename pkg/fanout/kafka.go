package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/mahaj/chatcore/pkg/model"
	"github.com/segmentio/kafka-go"
)

// KafkaRelay publishes envelopes to one topic and reads them back.
type KafkaRelay struct {
	writer  *kafka.Writer
	brokers []string
	topic   string
	log     *slog.Logger
}

func NewKafkaRelay(brokers []string, topic string, log *slog.Logger) *KafkaRelay {
	if log == nil {
		log = slog.Default()
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		Async:        true,
		BatchTimeout: 10 * time.Millisecond,
		Completion: func(messages []kafka.Message, err error) {
			if err != nil {
				log.Warn("relay write failed", slog.Int("messages", len(messages)), slog.Any("error", err))
			}
		},
	}
	return &KafkaRelay{writer: w, brokers: brokers, topic: topic, log: log}
}

// Publish is asynchronous; write errors surface through the writer's
// completion callback, never to the caller.
func (k *KafkaRelay) Publish(ctx context.Context, env model.Envelope) error {
	value, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return k.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(envelopeKey(env)),
		Value: value,
		Time:  env.Timestamp,
	})
}

// Consume reads envelopes with the given consumer group until ctx ends.
// Gateways use a group unique to the node so every node sees every envelope.
func (k *KafkaRelay) Consume(ctx context.Context, groupID string, handle func(model.Envelope)) error {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     k.brokers,
		Topic:       k.topic,
		GroupID:     groupID,
		StartOffset: kafka.LastOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     250 * time.Millisecond,
	})
	defer reader.Close()

	for {
		m, err := reader.ReadMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				return nil
			}
			k.log.Error("relay read failed, retrying", slog.Any("error", err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		var env model.Envelope
		if err := json.Unmarshal(m.Value, &env); err != nil {
			k.log.Warn("relay envelope decode failed", slog.Any("error", err))
			continue
		}
		handle(env)
	}
}

func (k *KafkaRelay) Close() error {
	return k.writer.Close()
}

// Envelopes for the same conversation land on the same partition so their
// relative order survives the relay.
func envelopeKey(env model.Envelope) string {
	if env.ConversationID != "" {
		return env.ConversationID
	}
	return env.Event
}

var _ Relay = (*KafkaRelay)(nil)
