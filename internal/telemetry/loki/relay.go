package loki

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

// MessageReader is the part of *kafka.Reader the relay uses.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Pusher pushes one raw event.
type Pusher interface {
	PushEventJSON(ctx context.Context, rawJSON []byte) error
}

// NewKafkaReader returns a consumer-group reader for the auth events topic.
func NewKafkaReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
}

// Relay copies events from r to p until ctx is done. A message is committed once pushed;
// push failures are logged and the message is committed anyway so one bad event cannot stall
// the partition. Returns nil on cancellation.
func Relay(ctx context.Context, r MessageReader, p Pusher) error {
	for {
		msg, err := r.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if err := p.PushEventJSON(ctx, msg.Value); err != nil {
			log.Warn().Err(err).Int64("offset", msg.Offset).Int("partition", msg.Partition).Msg("loki: push failed")
		}
		if err := r.CommitMessages(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}
