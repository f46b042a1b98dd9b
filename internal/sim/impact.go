// Package sim prices hypothetical orders against the canonical book. The
// walk itself is a pure function; Desk owns the mutable simulation state
// (active order, history, expiry).
package sim

import (
	"math"

	"github.com/mkoval/depthlab/internal/domain"
)

// Simulate walks the book with a hypothetical order and derives the
// execution metrics. It reports ok=false when the inputs cannot produce a
// meaningful result: non-positive quantity, non-positive limit price, or a
// market order whose reference side is empty. It never mutates the snapshot.
func Simulate(order domain.SimulatedOrder, snap domain.BookSnapshot) (domain.ImpactResult, bool) {
	if order.Quantity <= 0 {
		return domain.ImpactResult{}, false
	}
	if order.Kind == domain.OrderKindLimit && order.Price <= 0 {
		return domain.ImpactResult{}, false
	}

	// Asks oppose a buy, bids oppose a sell.
	var side []domain.PriceLevel
	if order.Side == domain.OrderSideBuy {
		side = snap.Asks
	} else {
		side = snap.Bids
	}

	var targetPrice float64
	switch order.Kind {
	case domain.OrderKindMarket:
		if len(side) == 0 {
			return domain.ImpactResult{}, false
		}
		targetPrice = side[0].Price
	case domain.OrderKindLimit:
		targetPrice = order.Price
	default:
		return domain.ImpactResult{}, false
	}

	midPrice := snap.MidPrice()

	remaining := order.Quantity
	cost := 0.0
	lastPrice := targetPrice
	depthLevels := 0

	for _, level := range side {
		if remaining <= 0 {
			break
		}
		depthLevels++

		// A limit order stops before consuming a level whose price crosses
		// past the target in the unfavorable direction. Market orders only
		// stop on exhausted depth or a filled quantity.
		if order.Kind == domain.OrderKindLimit {
			outOfRange := (order.Side == domain.OrderSideBuy && level.Price > targetPrice) ||
				(order.Side == domain.OrderSideSell && level.Price < targetPrice)
			if outOfRange {
				break
			}
		}

		fill := math.Min(remaining, level.Size)
		cost += fill * level.Price
		remaining -= fill
		lastPrice = level.Price
	}

	filled := order.Quantity - remaining
	fillPct := filled / order.Quantity * 100

	avgPrice := targetPrice
	if filled > 0 {
		avgPrice = cost / filled
	}

	var slippagePct float64
	if order.Kind == domain.OrderKindMarket {
		if midPrice > 0 {
			slippagePct = (avgPrice - midPrice) / midPrice * 100
		}
	} else {
		// Relative to the order's own price, sign-adjusted so a favorable
		// fill is non-positive on either side.
		if order.Side == domain.OrderSideBuy {
			slippagePct = (avgPrice - targetPrice) / targetPrice * 100
		} else {
			slippagePct = (targetPrice - avgPrice) / targetPrice * 100
		}
	}

	var impactBps float64
	if midPrice > 0 {
		impactBps = math.Abs(lastPrice-midPrice) / midPrice * 10000
	}

	result := domain.ImpactResult{
		FillPercentage:      fillPct,
		AveragePrice:        avgPrice,
		SlippagePercent:     slippagePct,
		EstimatedCost:       cost,
		WorstPrice:          lastPrice,
		DepthLevelsConsumed: depthLevels,
		ImpactBasisPoints:   impactBps,
		MidPrice:            midPrice,
	}

	// Coarse fill-time heuristic, only for limit orders that do not fill
	// completely. Approximate by construction; not a queueing estimate.
	if order.Kind == domain.OrderKindLimit && fillPct < 100 {
		multiplier := math.Max(1, float64(depthLevels)/2)
		result.EstimatedMinutesToFill = int(math.Round((100 - fillPct) / 20 * multiplier))
		result.HasTimeEstimate = true
	}

	return result, true
}
