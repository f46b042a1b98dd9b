package book

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/mkoval/depthlab/internal/domain"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestAggregator(clock domain.Clock) *Aggregator {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	agg := New(Config{}, nil, nil, clock, logger)
	agg.SetFeed(domain.FeedKey{Venue: domain.VenueOKX, Symbol: "BTC-PERPETUAL"})
	return agg
}

func mutation(id int64, bids, asks [][2]float64) *domain.BookMutation {
	return &domain.BookMutation{Bids: bids, Asks: asks, LastUpdateID: id}
}

func TestApplySortsCumulatesAndTruncates(t *testing.T) {
	agg := newTestAggregator(newFakeClock())

	bids := [][2]float64{{49998, 1}, {50000, 2}, {49999, 3}}
	asks := make([][2]float64, 0, 20)
	for i := 0; i < 20; i++ {
		asks = append(asks, [2]float64{50001 + float64(i), 1})
	}
	agg.Apply(domain.VenueOKX, mutation(9, bids, asks))

	state := agg.State()
	if state.Loading {
		t.Error("loading should clear on first applied update")
	}
	if state.LastUpdateID != 9 {
		t.Errorf("lastUpdateID = %d", state.LastUpdateID)
	}

	wantBids := []float64{50000, 49999, 49998}
	for i, lvl := range state.Bids {
		if lvl.Price != wantBids[i] {
			t.Errorf("bids[%d].Price = %v, want %v", i, lvl.Price, wantBids[i])
		}
	}

	// Bids strictly descending, asks strictly ascending, totals are prefix sums.
	var total float64
	for i, lvl := range state.Bids {
		if i > 0 && lvl.Price >= state.Bids[i-1].Price {
			t.Errorf("bids not strictly descending at %d", i)
		}
		total += lvl.Size
		if lvl.Total != total {
			t.Errorf("bids[%d].Total = %v, want %v", i, lvl.Total, total)
		}
	}
	total = 0
	for i, lvl := range state.Asks {
		if i > 0 && lvl.Price <= state.Asks[i-1].Price {
			t.Errorf("asks not strictly ascending at %d", i)
		}
		total += lvl.Size
		if lvl.Total != total {
			t.Errorf("asks[%d].Total = %v, want %v", i, lvl.Total, total)
		}
	}

	if len(state.Asks) != DefaultMaxDepth {
		t.Errorf("asks = %d levels, want truncation to %d", len(state.Asks), DefaultMaxDepth)
	}
}

func TestThrottleCoalescesInsideWindow(t *testing.T) {
	clock := newFakeClock()
	agg := newTestAggregator(clock)

	// Bootstrap: empty book applies immediately regardless of elapsed time.
	agg.Apply(domain.VenueOKX, mutation(1, [][2]float64{{100, 1}}, [][2]float64{{101, 1}}))
	if agg.Snapshot().LastUpdateID != 1 {
		t.Fatal("bootstrap update not applied immediately")
	}

	// Inside the window: buffered, not applied.
	clock.Advance(500 * time.Millisecond)
	agg.Apply(domain.VenueOKX, mutation(2, [][2]float64{{100, 2}}, [][2]float64{{101, 2}}))
	clock.Advance(500 * time.Millisecond)
	agg.Apply(domain.VenueOKX, mutation(3, [][2]float64{{100, 3}}, [][2]float64{{101, 3}}))
	if got := agg.Snapshot().LastUpdateID; got != 1 {
		t.Fatalf("lastUpdateID = %d inside throttle window, want 1", got)
	}

	// A later arrival past the boundary applies the freshest state, once.
	clock.Advance(1100 * time.Millisecond)
	agg.Apply(domain.VenueOKX, mutation(4, [][2]float64{{100, 4}}, [][2]float64{{101, 4}}))
	state := agg.State()
	if state.LastUpdateID != 4 {
		t.Errorf("lastUpdateID = %d after window, want 4", state.LastUpdateID)
	}
	if state.Bids[0].Size != 4 {
		t.Errorf("bids[0].Size = %v, want freshest mutation applied", state.Bids[0].Size)
	}
}

func TestAppliedUpdateClearsError(t *testing.T) {
	agg := newTestAggregator(newFakeClock())

	agg.SetError(domain.VenueOKX, errors.New("okx error: subscription rejected"))
	if agg.State().Error == "" {
		t.Fatal("error not recorded")
	}
	if agg.State().Loading {
		t.Error("error should replace loading indicator")
	}

	agg.Apply(domain.VenueOKX, mutation(1, [][2]float64{{100, 1}}, [][2]float64{{101, 1}}))
	if got := agg.State().Error; got != "" {
		t.Errorf("error = %q after valid data, want cleared", got)
	}
}

func TestSetErrorIgnoresInactiveVenue(t *testing.T) {
	agg := newTestAggregator(newFakeClock())
	agg.SetError(domain.VenueDeribit, errors.New("stale venue error"))
	if got := agg.State().Error; got != "" {
		t.Errorf("error = %q from inactive venue, want none", got)
	}
}

func TestApplyIgnoresInactiveVenue(t *testing.T) {
	agg := newTestAggregator(newFakeClock())
	agg.Apply(domain.VenueDeribit, mutation(1, [][2]float64{{100, 1}}, [][2]float64{{101, 1}}))
	if got := agg.Snapshot().LastUpdateID; got != 0 {
		t.Errorf("mutation from inactive venue applied (id=%d)", got)
	}
}

func TestPriceHistoryBoundedFIFO(t *testing.T) {
	clock := newFakeClock()
	agg := newTestAggregator(clock)

	// 101 applied updates, each contributing one bid and one ask point.
	for i := 0; i < 101; i++ {
		price := 100 + float64(i)
		agg.Apply(domain.VenueOKX, mutation(int64(i+1),
			[][2]float64{{price, 1}},
			[][2]float64{{price + 1, 1}},
		))
		clock.Advance(DefaultUpdateInterval)
	}

	points := agg.History()
	if len(points) != DefaultHistoryCap {
		t.Fatalf("history = %d points, want %d", len(points), DefaultHistoryCap)
	}
	// 202 points were produced; the first 102 were evicted oldest-first, so
	// the ring starts at the bid point of update 51 (0-indexed).
	if points[0].Side != domain.PriceSideBid {
		t.Errorf("oldest retained side = %s, want bid", points[0].Side)
	}
	if points[0].Price != 151 {
		t.Errorf("oldest retained price = %v, want 151", points[0].Price)
	}
	last := points[len(points)-1]
	if last.Side != domain.PriceSideAsk || last.Price != 201 {
		t.Errorf("newest point = %+v, want ask@201", last)
	}
}

func TestHistorySkippedWhenSideEmpty(t *testing.T) {
	agg := newTestAggregator(newFakeClock())
	agg.Apply(domain.VenueOKX, mutation(1, [][2]float64{{100, 1}}, nil))
	if got := len(agg.History()); got != 0 {
		t.Errorf("history = %d points for one-sided book, want 0", got)
	}
}

func TestSetFeedFullReset(t *testing.T) {
	agg := newTestAggregator(newFakeClock())
	agg.Apply(domain.VenueOKX, mutation(1, [][2]float64{{100, 1}}, [][2]float64{{101, 1}}))
	agg.SetError(domain.VenueOKX, errors.New("okx error: wobble"))

	agg.SetFeed(domain.FeedKey{Venue: domain.VenueDeribit, Symbol: "ETH-PERPETUAL"})

	state := agg.State()
	if len(state.Bids) != 0 || len(state.Asks) != 0 {
		t.Error("book not cleared on feed switch")
	}
	if state.Error != "" {
		t.Error("error not cleared on feed switch")
	}
	if !state.Loading {
		t.Error("loading should be set after feed switch")
	}
	if len(agg.History()) != 0 {
		t.Error("price history not cleared on feed switch")
	}
	if state.Venue != domain.VenueDeribit || state.Symbol != "ETH-PERPETUAL" {
		t.Errorf("active feed = %s/%s", state.Venue, state.Symbol)
	}

	// Bootstrap applies immediately on the new feed.
	agg.Apply(domain.VenueDeribit, mutation(2, [][2]float64{{200, 1}}, [][2]float64{{201, 1}}))
	if agg.Snapshot().LastUpdateID != 2 {
		t.Error("bootstrap after feed switch not applied")
	}
}
