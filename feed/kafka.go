// go-rendezvous - Proof of presence handshake network
// Copyright (c) 2020 Péter Szilágyi. All rights reserved.

package feed

import (
	"context"
	"fmt"

	"github.com/IBM/sarama"
)

// kafkaPublisher delivers match events into a Kafka topic.
type kafkaPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

// NewKafkaPublisher connects a synchronous producer to the given brokers,
// waiting for all in-sync replicas to acknowledge each event.
func NewKafkaPublisher(brokers []string, topic string) (Publisher, error) {
	config := sarama.NewConfig()
	config.ClientID = "rendezvous"
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return newKafkaPublisher(producer, topic), nil
}

// newKafkaPublisher wraps an existing producer, allowing tests to inject mocks.
func newKafkaPublisher(producer sarama.SyncProducer, topic string) Publisher {
	return &kafkaPublisher{producer: producer, topic: topic}
}

// Publish sends a single event, blocking until the brokers acknowledged it.
func (p *kafkaPublisher) Publish(ctx context.Context, key []byte, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, _, err := p.producer.SendMessage(&sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.ByteEncoder(key),
		Value: sarama.ByteEncoder(payload),
	})
	return err
}

// Close flushes and tears down the producer.
func (p *kafkaPublisher) Close() error {
	return p.producer.Close()
}
