package sim

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mkoval/depthlab/internal/domain"
)

// BookSource is the read side of the canonical book the desk simulates
// against.
type BookSource interface {
	ActiveFeed() domain.FeedKey
	Snapshot() domain.BookSnapshot
}

// Request describes one simulation submission.
type Request struct {
	Kind     domain.OrderKind
	Side     domain.OrderSide
	Price    float64 // limit orders only; derived for market orders
	Quantity float64
	DelayMs  int64 // auto-clear the active simulation after this many ms
}

// Desk runs simulations against the current book and owns the resulting
// state: the active simulated order, the order history (most recent first),
// and the auto-clear timer. A later simulation supersedes the active one and
// cancels its pending expiry, so an orphaned timer can never fire against a
// newer simulation.
type Desk struct {
	books  BookSource
	store  domain.SimulationStore // optional audit trail
	clock  domain.Clock
	logger *slog.Logger

	// afterFunc schedules the expiry callback; injectable for tests.
	afterFunc func(d time.Duration, f func()) *time.Timer

	mu      sync.Mutex
	active  *domain.SimulatedOrder
	history []domain.SimulatedOrder
	expiry  *time.Timer
}

// NewDesk creates a Desk. store may be nil to disable the audit trail.
func NewDesk(books BookSource, store domain.SimulationStore, clock domain.Clock, logger *slog.Logger) *Desk {
	if clock == nil {
		clock = domain.ClockFunc(time.Now)
	}
	return &Desk{
		books:     books,
		store:     store,
		clock:     clock,
		logger:    logger.With(slog.String("component", "sim_desk")),
		afterFunc: time.AfterFunc,
	}
}

// Submit prices the request against the current book. It reports ok=false
// when the simulation preconditions fail (the caller should not present a
// result in that case). On success the returned order supersedes the active
// simulation and is prepended to the history.
func (d *Desk) Submit(ctx context.Context, req Request) (domain.SimulatedOrder, bool) {
	snap := d.books.Snapshot()

	order := domain.SimulatedOrder{
		ID:        uuid.NewString(),
		Kind:      req.Kind,
		Side:      req.Side,
		Price:     req.Price,
		Quantity:  req.Quantity,
		DelayMs:   req.DelayMs,
		CreatedAt: d.clock.Now().UnixMilli(),
	}

	// Market orders take their reference price from the best opposite level.
	if req.Kind == domain.OrderKindMarket {
		if req.Side == domain.OrderSideBuy {
			order.Price = snap.BestAsk()
		} else {
			order.Price = snap.BestBid()
		}
		if order.Price <= 0 {
			return domain.SimulatedOrder{}, false
		}
	}

	impact, ok := Simulate(order, snap)
	if !ok {
		return domain.SimulatedOrder{}, false
	}
	order.Impact = &impact

	d.mu.Lock()
	d.cancelExpiryLocked()
	d.active = &order
	d.history = append([]domain.SimulatedOrder{order}, d.history...)
	if order.DelayMs > 0 {
		id := order.ID
		d.expiry = d.afterFunc(time.Duration(order.DelayMs)*time.Millisecond, func() {
			d.clearIfActive(id)
		})
	}
	d.mu.Unlock()

	if d.store != nil {
		if err := d.store.Insert(ctx, d.books.ActiveFeed(), order); err != nil {
			d.logger.Warn("simulation audit insert failed",
				slog.String("order_id", order.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	return order, true
}

// Active returns the current simulated order, or nil when none is active.
func (d *Desk) Active() *domain.SimulatedOrder {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active == nil {
		return nil
	}
	cp := *d.active
	return &cp
}

// History returns the simulation history, most recent first.
func (d *Desk) History() []domain.SimulatedOrder {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]domain.SimulatedOrder(nil), d.history...)
}

// ClearHistory discards the simulation history.
func (d *Desk) ClearHistory() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.history = nil
}

// Reset clears the active simulation and cancels its expiry. Called on
// venue/symbol switches; the history survives until cleared explicitly.
func (d *Desk) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelExpiryLocked()
	d.active = nil
}

// clearIfActive drops the active order only when it is still the one the
// timer was armed for.
func (d *Desk) clearIfActive(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active != nil && d.active.ID == id {
		d.active = nil
		d.expiry = nil
	}
}

func (d *Desk) cancelExpiryLocked() {
	if d.expiry != nil {
		d.expiry.Stop()
		d.expiry = nil
	}
}
