package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// Producer is the write side of the command topic. It is used by the
// direct-client transport gateway (internal/transport) to translate
// legacy wire messages into commands.
type Producer struct {
	writer *kafka.Writer
}

// NewProducer opens a writer against topic on brokers.
func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

// Send encodes and publishes a single command.
func (p *Producer) Send(ctx context.Context, operation Operation, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("queue: marshal command data: %w", err)
	}
	cmd := Command{Operation: operation, Data: payload}
	body, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("queue: marshal command: %w", err)
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{Value: body}); err != nil {
		return fmt.Errorf("queue: write message: %w", err)
	}
	return nil
}

// Close releases the writer's connections.
func (p *Producer) Close() error {
	return p.writer.Close()
}
