// Package events provides a small in-memory pub/sub bus for contract
// state-update notifications.
package events

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/nel349/midnight-ledger-reader/types"
)

// Common errors returned by the Bus.
var (
	ErrBusStopped         = errors.New("event bus has been stopped")
	ErrSubscriberExists   = errors.New("subscriber already exists")
	ErrSubscriberNotFound = errors.New("subscriber not found")
)

// DefaultBufferSize is the per-subscriber channel buffer.
const DefaultBufferSize = 64

// Bus is a thread-safe pub/sub bus for state updates. Publishing never
// blocks: updates to a subscriber with a full buffer are dropped and
// counted.
type Bus struct {
	bufferSize int

	mu            sync.RWMutex
	subscriptions map[string]chan types.StateUpdate

	stopped atomic.Bool
	dropped atomic.Uint64
}

// NewBus creates a bus with the default buffer size.
func NewBus() *Bus {
	return NewBusWithBuffer(DefaultBufferSize)
}

// NewBusWithBuffer creates a bus with a custom per-subscriber buffer.
func NewBusWithBuffer(size int) *Bus {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &Bus{
		bufferSize:    size,
		subscriptions: make(map[string]chan types.StateUpdate),
	}
}

// Subscribe registers a named subscriber and returns its channel. The
// channel is closed when the subscriber is removed or the bus stops.
func (b *Bus) Subscribe(name string) (<-chan types.StateUpdate, error) {
	if b.stopped.Load() {
		return nil, ErrBusStopped
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.subscriptions[name]; exists {
		return nil, ErrSubscriberExists
	}
	ch := make(chan types.StateUpdate, b.bufferSize)
	b.subscriptions[name] = ch
	return ch, nil
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.subscriptions[name]
	if !ok {
		return ErrSubscriberNotFound
	}
	delete(b.subscriptions, name)
	close(ch)
	return nil
}

// Publish delivers an update to all subscribers without blocking.
func (b *Bus) Publish(update types.StateUpdate) error {
	if b.stopped.Load() {
		return ErrBusStopped
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscriptions {
		select {
		case ch <- update:
		default:
			b.dropped.Add(1)
		}
	}
	return nil
}

// Dropped returns the number of updates dropped due to full buffers.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// Stop stops the bus and closes all subscriber channels.
func (b *Bus) Stop() {
	if b.stopped.Swap(true) {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	for name, ch := range b.subscriptions {
		delete(b.subscriptions, name)
		close(ch)
	}
}
