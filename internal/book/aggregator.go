// Package book maintains the canonical order book for the active feed. It
// applies adapter output under a throttling policy, keeps the sorted
// cumulative price levels, records a bounded best-price history, and fans
// applied snapshots out to the optional cache and signal bus.
package book

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/mkoval/depthlab/internal/domain"
)

const (
	// DefaultUpdateInterval is the minimum spacing between applied updates
	// for a venue once the book has data. Updates arriving inside the window
	// are coalesced, keeping only the freshest.
	DefaultUpdateInterval = 2 * time.Second

	// DefaultMaxDepth is the number of levels retained per side after
	// sorting.
	DefaultMaxDepth = 15

	// DefaultHistoryCap bounds the best-price history ring.
	DefaultHistoryCap = 100

	// publishTimeout bounds best-effort cache/bus writes per applied update.
	publishTimeout = 2 * time.Second

	// BooksChannel is the signal-bus channel applied snapshots are
	// published on.
	BooksChannel = "books"
)

// Config tunes the aggregator. Zero values fall back to the defaults above.
type Config struct {
	UpdateInterval time.Duration
	MaxDepth       int
	HistoryCap     int
}

// State is the consumer-facing view of the aggregator: an internally
// consistent snapshot plus the loading/error indicators the presentation
// layer renders.
type State struct {
	domain.BookSnapshot
	Loading bool   `json:"loading"`
	Error   string `json:"error,omitempty"`
}

// Aggregator is the single writer of canonical book state. Readers always
// observe a complete snapshot: every applied update replaces the book
// wholesale, never patches it in place.
type Aggregator struct {
	cfg    Config
	clock  domain.Clock
	logger *slog.Logger

	// Optional out-of-process fan-out.
	cache domain.BookCache
	bus   domain.SignalBus

	mu          sync.RWMutex
	key         domain.FeedKey
	snap        domain.BookSnapshot
	loading     bool
	errMsg      string
	pending     map[domain.Venue]*domain.BookMutation
	lastApplied map[domain.Venue]time.Time
	history     *history
}

// New creates an Aggregator. cache and bus may be nil, in which case applied
// snapshots stay in-process only.
func New(cfg Config, cache domain.BookCache, bus domain.SignalBus, clock domain.Clock, logger *slog.Logger) *Aggregator {
	if cfg.UpdateInterval <= 0 {
		cfg.UpdateInterval = DefaultUpdateInterval
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	if cfg.HistoryCap <= 0 {
		cfg.HistoryCap = DefaultHistoryCap
	}
	if clock == nil {
		clock = domain.ClockFunc(time.Now)
	}
	return &Aggregator{
		cfg:         cfg,
		clock:       clock,
		logger:      logger.With(slog.String("component", "aggregator")),
		cache:       cache,
		bus:         bus,
		pending:     make(map[domain.Venue]*domain.BookMutation),
		lastApplied: make(map[domain.Venue]time.Time),
		history:     newHistory(cfg.HistoryCap),
	}
}

// SetFeed switches the active (venue, symbol). Everything derived from the
// previous feed is discarded: book, error, price history, throttle
// bookkeeping. This is a full reset, not an incremental change.
func (a *Aggregator) SetFeed(key domain.FeedKey) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.key = key
	a.snap = domain.BookSnapshot{Venue: key.Venue, Symbol: key.Symbol}
	a.loading = true
	a.errMsg = ""
	a.pending = make(map[domain.Venue]*domain.BookMutation)
	a.lastApplied = make(map[domain.Venue]time.Time)
	a.history.Clear()
}

// ActiveFeed returns the feed the aggregator currently tracks.
func (a *Aggregator) ActiveFeed() domain.FeedKey {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.key
}

// Apply folds one canonical mutation into the book under the throttle
// policy: apply immediately while the book is empty (bootstrap), otherwise
// only when UpdateInterval has elapsed since the venue's last applied
// update. An update arriving inside the window replaces any buffered one and
// is applied when a later arrival reopens the window, so the freshest state
// is never lost. Mutations for venues other than the active one are dropped;
// they can only come from a feed that is being torn down.
func (a *Aggregator) Apply(v domain.Venue, mut *domain.BookMutation) {
	if mut == nil {
		return
	}

	a.mu.Lock()
	if v != a.key.Venue {
		a.mu.Unlock()
		return
	}

	a.pending[v] = mut

	bootstrap := len(a.snap.Bids) == 0 && len(a.snap.Asks) == 0
	now := a.clock.Now()
	if !bootstrap && now.Sub(a.lastApplied[v]) < a.cfg.UpdateInterval {
		a.mu.Unlock()
		return
	}

	latest := a.pending[v]
	delete(a.pending, v)
	a.lastApplied[v] = now

	snap := buildSnapshot(a.key, latest, a.cfg.MaxDepth)
	a.snap = snap
	a.loading = false
	// Valid data is evidence of recovered connectivity.
	a.errMsg = ""

	if len(snap.Bids) > 0 && len(snap.Asks) > 0 {
		ts := now.UnixMilli()
		a.history.Append(
			domain.PricePoint{Time: ts, Price: snap.Bids[0].Price, Side: domain.PriceSideBid},
			domain.PricePoint{Time: ts, Price: snap.Asks[0].Price, Side: domain.PriceSideAsk},
		)
	}
	a.mu.Unlock()

	a.publish(snap)
}

// SetError records a venue-qualified error for the active feed. The book is
// left intact; the loading indicator is replaced by the error message.
func (a *Aggregator) SetError(v domain.Venue, err error) {
	if err == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if v != a.key.Venue {
		return
	}
	a.errMsg = err.Error()
	a.loading = false
}

// State returns a defensive copy of the current consumer-facing state.
func (a *Aggregator) State() State {
	a.mu.RLock()
	defer a.mu.RUnlock()

	snap := a.snap
	snap.Bids = append([]domain.PriceLevel(nil), a.snap.Bids...)
	snap.Asks = append([]domain.PriceLevel(nil), a.snap.Asks...)
	return State{BookSnapshot: snap, Loading: a.loading, Error: a.errMsg}
}

// Snapshot returns a copy of the canonical book only.
func (a *Aggregator) Snapshot() domain.BookSnapshot {
	return a.State().BookSnapshot
}

// History returns the retained best-price points, oldest first.
func (a *Aggregator) History() []domain.PricePoint {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.history.Snapshot()
}

// buildSnapshot sorts, cumulates, and truncates a mutation into a canonical
// snapshot. Adapter output is already deduplicated and filtered to positive
// sizes.
func buildSnapshot(key domain.FeedKey, mut *domain.BookMutation, maxDepth int) domain.BookSnapshot {
	bids := buildSide(mut.Bids, maxDepth, func(a, b [2]float64) bool { return a[0] > b[0] })
	asks := buildSide(mut.Asks, maxDepth, func(a, b [2]float64) bool { return a[0] < b[0] })
	return domain.BookSnapshot{
		Venue:        key.Venue,
		Symbol:       key.Symbol,
		Bids:         bids,
		Asks:         asks,
		LastUpdateID: mut.LastUpdateID,
	}
}

func buildSide(rows [][2]float64, maxDepth int, less func(a, b [2]float64) bool) []domain.PriceLevel {
	sorted := append([][2]float64(nil), rows...)
	sort.Slice(sorted, func(i, j int) bool { return less(sorted[i], sorted[j]) })
	if len(sorted) > maxDepth {
		sorted = sorted[:maxDepth]
	}

	levels := make([]domain.PriceLevel, len(sorted))
	total := 0.0
	for i, row := range sorted {
		total += row[1]
		levels[i] = domain.PriceLevel{Price: row[0], Size: row[1], Total: total}
	}
	return levels
}

// publish forwards an applied snapshot to the cache and signal bus. Both are
// best-effort: a slow or absent backend never blocks book maintenance.
func (a *Aggregator) publish(snap domain.BookSnapshot) {
	if a.cache == nil && a.bus == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	key := domain.FeedKey{Venue: snap.Venue, Symbol: snap.Symbol}
	if a.cache != nil {
		if err := a.cache.SetSnapshot(ctx, key, snap); err != nil {
			a.logger.Warn("cache snapshot failed",
				slog.String("feed", key.String()),
				slog.String("error", err.Error()),
			)
		}
	}
	if a.bus != nil {
		payload, err := json.Marshal(snap)
		if err != nil {
			return
		}
		if err := a.bus.Publish(ctx, BooksChannel, payload); err != nil {
			a.logger.Warn("publish snapshot failed",
				slog.String("feed", key.String()),
				slog.String("error", err.Error()),
			)
		}
	}
}
