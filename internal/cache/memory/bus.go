// Package memory provides in-process implementations of the cache and bus
// interfaces for deployments that run without Redis.
package memory

import (
	"context"
	"sync"

	"github.com/mkoval/depthlab/internal/domain"
)

// subscriberBuffer is the per-subscriber channel capacity. Messages for a
// full subscriber are dropped rather than blocking the publisher.
const subscriberBuffer = 128

// SignalBus implements domain.SignalBus with in-process channel fan-out.
// Delivery semantics match the Redis implementation: ephemeral, per-channel,
// no replay.
type SignalBus struct {
	mu   sync.Mutex
	subs map[string][]chan []byte
}

// NewSignalBus creates an empty in-process bus.
func NewSignalBus() *SignalBus {
	return &SignalBus{subs: make(map[string][]chan []byte)}
}

// Publish delivers payload to every current subscriber of channel. Slow
// subscribers with a full buffer miss the message.
func (b *SignalBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[channel] {
		select {
		case ch <- payload:
		default:
		}
	}
	return nil
}

// Subscribe registers a new subscriber for channel. The returned channel is
// closed when ctx is cancelled.
func (b *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, subscriberBuffer)

	b.mu.Lock()
	b.subs[channel] = append(b.subs[channel], ch)
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		subs := b.subs[channel]
		for i, s := range subs {
			if s == ch {
				b.subs[channel] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		b.mu.Unlock()
		close(ch)
	}()

	return ch, nil
}

// Compile-time interface check.
var _ domain.SignalBus = (*SignalBus)(nil)
