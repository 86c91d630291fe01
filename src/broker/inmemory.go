package broker

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// InMemoryBroker is a channel-backed implementation of Broker for
// single-process operation. Every subscriber receives every message
// published to its topic.
type InMemoryBroker struct {
	mu          sync.Mutex
	subscribers map[string][]chan Message
	nextOffset  map[string]int64
	closed      bool
}

// NewInMemoryBroker creates a new InMemoryBroker instance.
func NewInMemoryBroker() *InMemoryBroker {
	return &InMemoryBroker{
		subscribers: make(map[string][]chan Message),
		nextOffset:  make(map[string]int64),
	}
}

// Publish delivers a message to all current subscribers of the topic.
// Implements the Broker interface.
func (b *InMemoryBroker) Publish(ctx context.Context, topic string, key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("broker is closed")
	}

	offset := b.nextOffset[topic]
	b.nextOffset[topic] = offset + 1

	msg := Message{
		Topic:     topic,
		Key:       key,
		Value:     value,
		Offset:    offset,
		Timestamp: time.Now().UnixMilli(),
	}

	for _, subscriber := range b.subscribers[topic] {
		select {
		case subscriber <- msg:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Subscribe registers a new subscriber channel for the topic.
// Implements the Broker interface.
func (b *InMemoryBroker) Subscribe(ctx context.Context, topic string, groupID string) (<-chan Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, fmt.Errorf("broker is closed")
	}

	// Buffered so a publisher is not blocked by a slow worker draining
	// the queue.
	subscriber := make(chan Message, 100)
	b.subscribers[topic] = append(b.subscribers[topic], subscriber)
	return subscriber, nil
}

// Close shuts down the broker and closes all subscriber channels.
func (b *InMemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for _, subscribers := range b.subscribers {
		for _, subscriber := range subscribers {
			close(subscriber)
		}
	}
	b.subscribers = make(map[string][]chan Message)
	return nil
}
