package domain

import (
	"context"
	"time"
)

// BookCache stores the latest canonical snapshot per feed for out-of-process
// consumers.
type BookCache interface {
	SetSnapshot(ctx context.Context, key FeedKey, snap BookSnapshot) error
	GetSnapshot(ctx context.Context, key FeedKey) (BookSnapshot, error)
}

// SignalBus provides pub/sub fan-out of applied book updates.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// SimulationStore persists accepted simulation runs for later review.
type SimulationStore interface {
	Insert(ctx context.Context, key FeedKey, order SimulatedOrder) error
	ListRecent(ctx context.Context, limit int) ([]SimulatedOrder, error)
}

// Clock abstracts time for components that schedule or throttle work.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to the Clock interface.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }
