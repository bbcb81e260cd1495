// Package bus carries inbound chat messages from channels to the command
// handler, and named events between the formatter and delivery channels.
package bus

import (
	"log/slog"
	"sync"
	"time"

	"chatfmt/internal/domain"
)

const (
	defaultBuffer  = 100
	publishTimeout = 10 * time.Second
)

// InMemoryBus queues inbound messages on a buffered channel. Publish runs the
// middleware chain before queueing.
type InMemoryBus struct {
	logger *slog.Logger
	queue  chan domain.InboundMessage

	mu    sync.RWMutex
	chain []domain.Middleware
	done  bool
}

func New(bufferSize int, logger *slog.Logger) *InMemoryBus {
	if bufferSize <= 0 {
		bufferSize = defaultBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &InMemoryBus{
		logger: logger,
		queue:  make(chan domain.InboundMessage, bufferSize),
	}
}

// Use appends mw to the chain. Middleware runs in registration order.
func (b *InMemoryBus) Use(mw domain.Middleware) {
	b.mu.Lock()
	b.chain = append(b.chain, mw)
	b.mu.Unlock()
}

// Publish rewrites msg and queues it. A full queue blocks the caller for up
// to publishTimeout before the message is dropped.
func (b *InMemoryBus) Publish(msg domain.InboundMessage) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.done {
		b.logger.Warn("publish on closed bus", "channel", msg.Channel)
		return
	}

	for _, mw := range b.chain {
		mw(&msg)
	}

	select {
	case b.queue <- msg:
		return
	default:
	}

	b.logger.Warn("inbound queue full, waiting", "channel", msg.Channel, "sender", msg.SenderID)
	timer := time.NewTimer(publishTimeout)
	defer timer.Stop()
	select {
	case b.queue <- msg:
	case <-timer.C:
		b.logger.Error("inbound message dropped", "channel", msg.Channel, "sender", msg.SenderID, "waited", publishTimeout)
	}
}

// Subscribe returns the queue. It is closed by Close.
func (b *InMemoryBus) Subscribe() <-chan domain.InboundMessage {
	return b.queue
}

// Close stops the bus. It is safe to call more than once.
func (b *InMemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.done {
		return
	}
	b.done = true
	close(b.queue)
}
