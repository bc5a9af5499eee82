// Package queue adapts the durable, ordered command stream described in
// spec.md §6 onto Kafka via segmentio/kafka-go: a consumer-group reader
// with explicit, at-least-once acknowledgement by offset commit.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
)

// Operation is the closed set of command kinds the Command Consumer
// understands. FETCH/FETCH_ALL are read-only probes CC may ignore.
type Operation string

const (
	OpCreate   Operation = "CREATE"
	OpModify   Operation = "MODIFY"
	OpCancel   Operation = "CANCEL"
	OpFetch    Operation = "FETCH"
	OpFetchAll Operation = "FETCH_ALL"
)

// Command is the decoded wire command: {operation, data}.
type Command struct {
	Operation Operation       `json:"operation"`
	Data      json.RawMessage `json:"data"`
}

// Delivery pairs a decoded Command with the underlying broker message, so
// the caller can Ack it only once it is fully durable and observable.
type Delivery struct {
	Command Command
	message kafka.Message
}

// Queue is the consumer-side handle to the command topic.
type Queue struct {
	reader *kafka.Reader
}

// New opens a consumer-group reader over topic on brokers.
func New(brokers []string, topic, groupID string) *Queue {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: groupID,
	})
	return &Queue{reader: reader}
}

// Next blocks for the next command. Delivery is at-least-once: on
// restart, any command whose Ack was never called will be redelivered,
// per spec.md §5/§7.
func (q *Queue) Next(ctx context.Context) (Delivery, error) {
	msg, err := q.reader.FetchMessage(ctx)
	if err != nil {
		return Delivery{}, fmt.Errorf("queue: fetch message: %w", err)
	}
	var cmd Command
	if err := json.Unmarshal(msg.Value, &cmd); err != nil {
		return Delivery{}, fmt.Errorf("queue: decode command: %w", err)
	}
	return Delivery{Command: cmd, message: msg}, nil
}

// Ack commits the delivery's offset. Must only be called after the
// command is fully durable (WAL-logged) and its observable effects
// (publish) have happened — never before, per the CC pipeline contract.
func (q *Queue) Ack(ctx context.Context, d Delivery) error {
	if err := q.reader.CommitMessages(ctx, d.message); err != nil {
		return fmt.Errorf("queue: commit offset: %w", err)
	}
	return nil
}

// Close releases the underlying consumer group connection.
func (q *Queue) Close() error {
	return q.reader.Close()
}
