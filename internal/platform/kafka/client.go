// Package kafka wires franz-go clients for the integration event substrate.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kadm"
	"github.com/twmb/franz-go/pkg/kgo"

	"fundpool/internal/platform/config"
	"fundpool/pkg/platform/events"
)

// NewProducer builds a producing client. Returns nil when no brokers are
// configured; callers fall back to the in-process publisher.
func NewProducer(cfg config.KafkaConfig) (*kgo.Client, error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.ProducerBatchCompression(kgo.SnappyCompression()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return client, nil
}

// NewConsumer builds a group consumer over the given topics.
func NewConsumer(cfg config.KafkaConfig, topics ...string) (*kgo.Client, error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumerGroup(cfg.ConsumerGroup),
		kgo.ConsumeTopics(topics...),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	return client, nil
}

// EnsureTopics creates the fundpool topics if they do not exist yet.
// Safe to run on every startup.
func EnsureTopics(ctx context.Context, client *kgo.Client, partitions int32) error {
	admin := kadm.NewClient(client)
	existing, err := admin.ListTopics(ctx)
	if err != nil {
		return fmt.Errorf("list topics: %w", err)
	}
	for _, topic := range events.AllTopics() {
		if existing.Has(topic) {
			continue
		}
		if _, err := admin.CreateTopic(ctx, partitions, 1, nil, topic); err != nil {
			return fmt.Errorf("create topic %s: %w", topic, err)
		}
	}
	return nil
}

// Consume polls a group consumer and applies each envelope to the handler.
// Offsets commit only after a full fetch has been applied, so a crash
// mid-batch redelivers; handlers must be idempotent. Malformed records are
// dropped since redelivery can never fix them.
func Consume(ctx context.Context, client *kgo.Client, logger *slog.Logger, handler events.Handler) error {
	for {
		fetches := client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return ctx.Err()
		}
		if errs := fetches.Errors(); len(errs) > 0 {
			for _, fetchErr := range errs {
				logger.ErrorContext(ctx, "kafka fetch failed",
					"topic", fetchErr.Topic, "partition", fetchErr.Partition, "error", fetchErr.Err)
			}
			continue
		}

		var applyErr error
		fetches.EachRecord(func(record *kgo.Record) {
			if applyErr != nil {
				return
			}
			var envelope events.Envelope
			if err := json.Unmarshal(record.Value, &envelope); err != nil {
				logger.ErrorContext(ctx, "dropping malformed event record",
					"topic", record.Topic, "offset", record.Offset, "error", err)
				return
			}
			applyErr = handler(ctx, envelope)
		})
		if applyErr != nil {
			// Leave offsets uncommitted; the batch comes back.
			logger.ErrorContext(ctx, "event batch failed, will redeliver", "error", applyErr)
			continue
		}
		if err := client.CommitUncommittedOffsets(ctx); err != nil {
			logger.ErrorContext(ctx, "failed to commit offsets", "error", err)
		}
	}
}
