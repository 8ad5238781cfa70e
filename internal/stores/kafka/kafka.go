package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"lifecycle-service/pkg/logkey"

	"github.com/twmb/franz-go/pkg/kgo"
)

type Conf struct {
	client *kgo.Client
}

func NewConf(brokers string) (*Conf, error) {
	if brokers == "" {
		return nil, fmt.Errorf("kafka brokers not set")
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(strings.Split(brokers, ",")...),
		kgo.AllowAutoTopicCreation(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating kafka client: %w", err)
	}
	return &Conf{client: client}, nil
}

func (c *Conf) ProduceMessage(topic string, key []byte, value []byte) error {
	record := &kgo.Record{
		Topic: topic,
		Key:   key,
		Value: value,
	}

	res := c.client.ProduceSync(context.Background(), record)
	if err := res.FirstErr(); err != nil {
		return fmt.Errorf("producing message to %s: %w", topic, err)
	}
	return nil
}

func (c *Conf) Close() {
	c.client.Close()
}

// Consumer wraps a group consumer over the given topics and hands every
// record to fn. A record whose handler fails is logged and skipped; the
// catalog topics re-announce on a schedule so a drop is acceptable.
type Consumer struct {
	client *kgo.Client
}

func NewConsumer(brokers, group string, topics ...string) (*Consumer, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(strings.Split(brokers, ",")...),
		kgo.ConsumerGroup(group),
		kgo.ConsumeTopics(topics...),
	)
	if err != nil {
		return nil, fmt.Errorf("creating kafka consumer: %w", err)
	}
	return &Consumer{client: client}, nil
}

func (c *Consumer) Run(ctx context.Context, fn func(topic string, value []byte)) {
	for {
		fetches := c.client.PollFetches(ctx)
		if fetches.IsClientClosed() || ctx.Err() != nil {
			return
		}
		fetches.EachError(func(topic string, partition int32, err error) {
			slog.Error("kafka fetch error",
				slog.String("Topic", topic),
				slog.Int("Partition", int(partition)),
				slog.String(logkey.ERROR, err.Error()))
		})
		fetches.EachRecord(func(record *kgo.Record) {
			fn(record.Topic, record.Value)
		})
	}
}

func (c *Consumer) Close() {
	c.client.Close()
}
