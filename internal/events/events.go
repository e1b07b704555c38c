// Package events publishes committed order changes to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/antonminaichev/agroconnect/internal/types/order"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Producer is the part of *kgo.Client the publisher uses.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// KafkaPublisher produces order events synchronously. Every Publish gives up
// after timeout, so an unreachable broker delays a request by at most that.
type KafkaPublisher struct {
	producer Producer
	topic    string
	timeout  time.Duration
}

func NewKafkaPublisher(brokers []string, topic string, timeout time.Duration) (*KafkaPublisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.AllowAutoTopicCreation(),
		kgo.RecordDeliveryTimeout(timeout),
		kgo.ProduceRequestTimeout(timeout),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka client: %w", err)
	}
	return newPublisher(client, topic, timeout), nil
}

func newPublisher(p Producer, topic string, timeout time.Duration) *KafkaPublisher {
	return &KafkaPublisher{producer: p, topic: topic, timeout: timeout}
}

// Publish writes e keyed by order id so events of one order stay ordered
// within a partition.
func (p *KafkaPublisher) Publish(ctx context.Context, e order.Event) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	rec := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(strconv.FormatInt(e.OrderID, 10)),
		Value: payload,
	}
	if err := p.producer.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("produce %s: %w", e.Type, err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	p.producer.Close()
	return nil
}

// Nop drops every event. Used when no brokers are configured.
type Nop struct{}

func (Nop) Publish(context.Context, order.Event) error { return nil }

func (Nop) Close() error { return nil }
