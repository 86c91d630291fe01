// Package broker defines the interface for the build-request queue and
// provides implementations.
package broker

import "context"

// Broker carries build requests from the webhook surface to the build
// workers. The in-memory implementation serves single-process local mode;
// the Redpanda implementation serves distributed mode where webhook intake
// and workers are separate processes.
type Broker interface {
	// Publish sends a message to a topic with a key used for partition
	// assignment. The in-memory broker ignores the key.
	Publish(ctx context.Context, topic string, key string, value []byte) error

	// Subscribe returns a channel for consuming messages from a topic.
	// groupID is used for consumer group coordination in Kafka; the
	// in-memory broker ignores it.
	Subscribe(ctx context.Context, topic string, groupID string) (<-chan Message, error)

	// Close shuts down the broker connection gracefully.
	Close() error
}

// Message represents a consumed message from a broker.
type Message struct {
	Topic     string
	Key       string
	Value     []byte
	Offset    int64
	Partition int32
	Timestamp int64
}
