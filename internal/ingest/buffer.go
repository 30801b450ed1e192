package ingest

import (
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/suPer8Hu/chat-batch-worker/internal/chat"
)

// BufferedDelivery pairs a decoded payload with the delivery it must be acked or rejected through.
type BufferedDelivery struct {
	Payload  chat.IncomingMessage
	Delivery amqp.Delivery
}

// Buffer holds deliveries between flushes. The lock only covers the slice exchange.
type Buffer struct {
	mu    sync.Mutex
	items []BufferedDelivery
}

func NewBuffer() *Buffer {
	return &Buffer{}
}

// Append adds one delivery and returns the new buffer length.
func (b *Buffer) Append(item BufferedDelivery) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(b.items, item)
	return len(b.items)
}

// Drain returns everything buffered so far and leaves the buffer empty.
func (b *Buffer) Drain() []BufferedDelivery {
	b.mu.Lock()
	out := b.items
	b.items = nil
	b.mu.Unlock()
	return out
}

func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}
