package sim

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mkoval/depthlab/internal/domain"
)

type fakeBooks struct {
	snap domain.BookSnapshot
}

func (f *fakeBooks) ActiveFeed() domain.FeedKey {
	return domain.FeedKey{Venue: f.snap.Venue, Symbol: f.snap.Symbol}
}

func (f *fakeBooks) Snapshot() domain.BookSnapshot { return f.snap }

type recordingStore struct {
	mu     sync.Mutex
	orders []domain.SimulatedOrder
}

func (s *recordingStore) Insert(_ context.Context, _ domain.FeedKey, order domain.SimulatedOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = append(s.orders, order)
	return nil
}

func (s *recordingStore) ListRecent(_ context.Context, limit int) ([]domain.SimulatedOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit > len(s.orders) {
		limit = len(s.orders)
	}
	return append([]domain.SimulatedOrder(nil), s.orders[:limit]...), nil
}

// manualTimers captures scheduled expiries so tests fire them by hand.
type manualTimers struct {
	mu        sync.Mutex
	callbacks []func()
}

func (m *manualTimers) afterFunc(_ time.Duration, f func()) *time.Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, f)
	// The returned timer is never armed; Stop bookkeeping happens on a
	// real but inert timer.
	t := time.NewTimer(time.Hour)
	t.Stop()
	return t
}

func (m *manualTimers) fire(i int) {
	m.mu.Lock()
	f := m.callbacks[i]
	m.mu.Unlock()
	f()
}

func newTestDesk(books BookSource, store domain.SimulationStore) (*Desk, *manualTimers) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	d := NewDesk(books, store, nil, logger)
	timers := &manualTimers{}
	d.afterFunc = timers.afterFunc
	return d, timers
}

func deskBook() *fakeBooks {
	return &fakeBooks{snap: domain.BookSnapshot{
		Venue:  domain.VenueOKX,
		Symbol: "BTC-PERPETUAL",
		Bids:   []domain.PriceLevel{{Price: 99, Size: 5, Total: 5}},
		Asks:   []domain.PriceLevel{{Price: 100, Size: 5, Total: 5}},
	}}
}

func TestSubmitMarketOrderDerivesPrice(t *testing.T) {
	desk, _ := newTestDesk(deskBook(), nil)

	order, ok := desk.Submit(context.Background(), Request{
		Kind:     domain.OrderKindMarket,
		Side:     domain.OrderSideBuy,
		Quantity: 1,
	})
	if !ok {
		t.Fatal("expected accepted simulation")
	}
	if order.Price != 100 {
		t.Errorf("price = %v, want best ask 100", order.Price)
	}
	if order.Impact == nil {
		t.Fatal("impact missing")
	}
	if order.ID == "" || order.CreatedAt == 0 {
		t.Errorf("order identity not populated: %+v", order)
	}

	active := desk.Active()
	if active == nil || active.ID != order.ID {
		t.Error("submitted order should become active")
	}
}

func TestSubmitRejectsBadInput(t *testing.T) {
	desk, _ := newTestDesk(deskBook(), nil)

	if _, ok := desk.Submit(context.Background(), Request{
		Kind: domain.OrderKindMarket, Side: domain.OrderSideBuy, Quantity: 0,
	}); ok {
		t.Error("zero quantity accepted")
	}
	if desk.Active() != nil {
		t.Error("rejected submission must not become active")
	}
	if len(desk.History()) != 0 {
		t.Error("rejected submission must not enter history")
	}
}

func TestHistoryMostRecentFirst(t *testing.T) {
	desk, _ := newTestDesk(deskBook(), nil)

	first, _ := desk.Submit(context.Background(), Request{
		Kind: domain.OrderKindMarket, Side: domain.OrderSideBuy, Quantity: 1,
	})
	second, _ := desk.Submit(context.Background(), Request{
		Kind: domain.OrderKindMarket, Side: domain.OrderSideSell, Quantity: 2,
	})

	history := desk.History()
	if len(history) != 2 {
		t.Fatalf("history = %d entries, want 2", len(history))
	}
	if history[0].ID != second.ID || history[1].ID != first.ID {
		t.Error("history not ordered most recent first")
	}

	desk.ClearHistory()
	if len(desk.History()) != 0 {
		t.Error("history not cleared")
	}
}

func TestExpiryClearsActiveOrder(t *testing.T) {
	desk, timers := newTestDesk(deskBook(), nil)

	order, _ := desk.Submit(context.Background(), Request{
		Kind: domain.OrderKindMarket, Side: domain.OrderSideBuy, Quantity: 1, DelayMs: 5000,
	})
	if desk.Active() == nil {
		t.Fatal("order should be active before expiry")
	}

	timers.fire(0)
	if desk.Active() != nil {
		t.Error("expiry should clear the active order")
	}

	// History survives expiry.
	if history := desk.History(); len(history) != 1 || history[0].ID != order.ID {
		t.Error("history should retain the expired order")
	}
}

func TestSupersessionCancelsStaleTimer(t *testing.T) {
	desk, timers := newTestDesk(deskBook(), nil)

	desk.Submit(context.Background(), Request{
		Kind: domain.OrderKindMarket, Side: domain.OrderSideBuy, Quantity: 1, DelayMs: 5000,
	})
	second, _ := desk.Submit(context.Background(), Request{
		Kind: domain.OrderKindMarket, Side: domain.OrderSideSell, Quantity: 1, DelayMs: 5000,
	})

	// The first order's timer fires late, after supersession: it must not
	// clear the newer simulation.
	timers.fire(0)
	active := desk.Active()
	if active == nil || active.ID != second.ID {
		t.Error("stale expiry cleared a superseding simulation")
	}

	timers.fire(1)
	if desk.Active() != nil {
		t.Error("second order's own expiry should clear it")
	}
}

func TestResetClearsActiveKeepsHistory(t *testing.T) {
	desk, _ := newTestDesk(deskBook(), nil)

	desk.Submit(context.Background(), Request{
		Kind: domain.OrderKindMarket, Side: domain.OrderSideBuy, Quantity: 1, DelayMs: 5000,
	})
	desk.Reset()

	if desk.Active() != nil {
		t.Error("reset should clear the active simulation")
	}
	if len(desk.History()) != 1 {
		t.Error("reset should keep the history")
	}
}

func TestSubmitRecordsAudit(t *testing.T) {
	store := &recordingStore{}
	desk, _ := newTestDesk(deskBook(), store)

	order, ok := desk.Submit(context.Background(), Request{
		Kind: domain.OrderKindLimit, Side: domain.OrderSideBuy, Price: 99.5, Quantity: 1,
	})
	if !ok {
		t.Fatal("expected accepted simulation")
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.orders) != 1 || store.orders[0].ID != order.ID {
		t.Error("accepted simulation not written to the audit store")
	}
}
