package domain

// PriceLevel is a single price level on one side of the book. Total is the
// cumulative size of this level and every better level on the same side; it
// is recomputed whenever the side is rebuilt, never patched in place.
type PriceLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
	Total float64 `json:"total"`
}

// BookMutation is the canonical output of a protocol adapter: the price/size
// rows a single venue message contributes, before sorting, cumulation, and
// depth truncation. Rows are [price, size] pairs with size > 0; removals have
// already been filtered out by the adapter.
type BookMutation struct {
	Bids         [][2]float64
	Asks         [][2]float64
	LastUpdateID int64
}

// BookSnapshot is the canonical order book for a (venue, symbol) feed. Bids
// are strictly descending by price, asks strictly ascending, each side holds
// at most the configured depth, and Total carries the prefix sum of Size.
// Snapshots are replaced wholesale on every applied update; consumers never
// observe a book mid-rebuild.
type BookSnapshot struct {
	Venue        Venue        `json:"venue"`
	Symbol       string       `json:"symbol"`
	Bids         []PriceLevel `json:"bids"`
	Asks         []PriceLevel `json:"asks"`
	LastUpdateID int64        `json:"last_update_id"`
}

// BestBid returns the top bid price, or 0 when the side is empty.
func (s BookSnapshot) BestBid() float64 {
	if len(s.Bids) == 0 {
		return 0
	}
	return s.Bids[0].Price
}

// BestAsk returns the top ask price, or 0 when the side is empty.
func (s BookSnapshot) BestAsk() float64 {
	if len(s.Asks) == 0 {
		return 0
	}
	return s.Asks[0].Price
}

// MidPrice returns the midpoint of the best bid and best ask, or 0 when
// either side is empty.
func (s BookSnapshot) MidPrice() float64 {
	if len(s.Bids) == 0 || len(s.Asks) == 0 {
		return 0
	}
	return (s.Bids[0].Price + s.Asks[0].Price) / 2
}

// PriceSide tags a PricePoint with the side of the book it was taken from.
type PriceSide string

const (
	PriceSideBid PriceSide = "bid"
	PriceSideAsk PriceSide = "ask"
)

// PricePoint is one best-bid or best-ask observation, appended to the bounded
// price history whenever a snapshot with both sides populated is applied.
type PricePoint struct {
	Time  int64     `json:"timestamp"`
	Price float64   `json:"price"`
	Side  PriceSide `json:"side"`
}
