package domain

// OrderKind distinguishes market and limit simulations.
type OrderKind string

const (
	OrderKindMarket OrderKind = "market"
	OrderKindLimit  OrderKind = "limit"
)

// OrderSide is the direction of a simulated order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// SimulatedOrder is a hypothetical order to price against the current book.
// Price is required and positive for limit orders; for market orders it is
// derived from the best level of the opposite side at simulation time.
// Orders are immutable once created: a later simulation supersedes the
// active one rather than mutating it.
type SimulatedOrder struct {
	ID        string        `json:"id"`
	Kind      OrderKind     `json:"kind"`
	Side      OrderSide     `json:"side"`
	Price     float64       `json:"price"`
	Quantity  float64       `json:"quantity"`
	DelayMs   int64         `json:"delay_ms"`
	CreatedAt int64         `json:"created_at"`
	Impact    *ImpactResult `json:"impact,omitempty"`
}

// ImpactResult is the derived outcome of walking the book with a hypothetical
// order. It is a pure value: never persisted beyond the triggering simulation
// except as an audit record.
type ImpactResult struct {
	FillPercentage      float64 `json:"fill_percentage"`
	AveragePrice        float64 `json:"average_price"`
	SlippagePercent     float64 `json:"slippage_percent"`
	EstimatedCost       float64 `json:"estimated_cost"`
	WorstPrice          float64 `json:"worst_price"`
	DepthLevelsConsumed int     `json:"depth_levels_consumed"`
	ImpactBasisPoints   float64 `json:"impact_basis_points"`
	MidPrice            float64 `json:"mid_price"`

	// EstimatedMinutesToFill is a coarse heuristic produced only for limit
	// orders that do not fill completely. It is approximate, not a
	// queueing-theoretic estimate.
	EstimatedMinutesToFill int  `json:"estimated_minutes_to_fill,omitempty"`
	HasTimeEstimate        bool `json:"-"`
}
