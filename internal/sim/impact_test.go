package sim

import (
	"math"
	"testing"

	"github.com/mkoval/depthlab/internal/domain"
)

func testBook() domain.BookSnapshot {
	return domain.BookSnapshot{
		Venue:  domain.VenueDeribit,
		Symbol: "BTC-PERPETUAL",
		Bids: []domain.PriceLevel{
			{Price: 99, Size: 2, Total: 2},
			{Price: 98, Size: 3, Total: 5},
		},
		Asks: []domain.PriceLevel{
			{Price: 100, Size: 2, Total: 2},
			{Price: 101, Size: 3, Total: 5},
		},
	}
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestMarketBuyWalksDepth(t *testing.T) {
	order := domain.SimulatedOrder{
		Kind:     domain.OrderKindMarket,
		Side:     domain.OrderSideBuy,
		Quantity: 4,
	}

	res, ok := Simulate(order, testBook())
	if !ok {
		t.Fatal("expected result")
	}
	if res.FillPercentage != 100 {
		t.Errorf("fill = %v%%, want 100", res.FillPercentage)
	}
	if !almostEqual(res.AveragePrice, 100.5) {
		t.Errorf("avgPrice = %v, want 100.5", res.AveragePrice)
	}
	if res.DepthLevelsConsumed != 2 {
		t.Errorf("depth = %d, want 2", res.DepthLevelsConsumed)
	}
	if !almostEqual(res.EstimatedCost, 100*2+101*2) {
		t.Errorf("cost = %v", res.EstimatedCost)
	}
	if res.WorstPrice != 101 {
		t.Errorf("worstPrice = %v, want 101", res.WorstPrice)
	}
	if res.HasTimeEstimate {
		t.Error("market orders never get a fill-time estimate")
	}

	// Slippage relative to mid (99.5): avg 100.5 is ~1.005% above.
	wantSlip := (100.5 - 99.5) / 99.5 * 100
	if !almostEqual(res.SlippagePercent, wantSlip) {
		t.Errorf("slippage = %v, want %v", res.SlippagePercent, wantSlip)
	}
	// Impact from last consumed level (101) vs mid.
	wantBps := (101 - 99.5) / 99.5 * 10000
	if !almostEqual(res.ImpactBasisPoints, wantBps) {
		t.Errorf("impactBps = %v, want %v", res.ImpactBasisPoints, wantBps)
	}
}

func TestLimitBuyStopsBeforeCrossing(t *testing.T) {
	order := domain.SimulatedOrder{
		Kind:     domain.OrderKindLimit,
		Side:     domain.OrderSideBuy,
		Price:    100,
		Quantity: 4,
	}

	res, ok := Simulate(order, testBook())
	if !ok {
		t.Fatal("expected result")
	}
	if res.FillPercentage != 50 {
		t.Errorf("fill = %v%%, want 50", res.FillPercentage)
	}
	if !almostEqual(res.AveragePrice, 100) {
		t.Errorf("avgPrice = %v, want 100", res.AveragePrice)
	}
	if !almostEqual(res.EstimatedCost, 200) {
		t.Errorf("cost = %v, want 200", res.EstimatedCost)
	}
	// The crossing level is visited but not consumed.
	if res.DepthLevelsConsumed != 2 {
		t.Errorf("depth = %d, want 2", res.DepthLevelsConsumed)
	}
	if !res.HasTimeEstimate {
		t.Fatal("unfilled limit order should carry a fill-time estimate")
	}
	// round(max(1, 2/2) * (100-50)/20) = round(2.5) = 3 (half away from zero).
	if res.EstimatedMinutesToFill != 3 {
		t.Errorf("estimatedMinutes = %d, want 3", res.EstimatedMinutesToFill)
	}
	// Fill entirely at the limit price: zero slippage.
	if !almostEqual(res.SlippagePercent, 0) {
		t.Errorf("slippage = %v, want 0", res.SlippagePercent)
	}
}

func TestLimitSellSlippageSign(t *testing.T) {
	// Sell limit below best bid fills at better prices than asked: the
	// sign-adjusted slippage must be non-positive.
	order := domain.SimulatedOrder{
		Kind:     domain.OrderKindLimit,
		Side:     domain.OrderSideSell,
		Price:    98,
		Quantity: 5,
	}

	res, ok := Simulate(order, testBook())
	if !ok {
		t.Fatal("expected result")
	}
	if res.FillPercentage != 100 {
		t.Errorf("fill = %v%%, want 100", res.FillPercentage)
	}
	// avg = (99*2 + 98*3) / 5 = 98.4, favorable vs target 98.
	if !almostEqual(res.AveragePrice, 98.4) {
		t.Errorf("avgPrice = %v, want 98.4", res.AveragePrice)
	}
	if res.SlippagePercent > 0 {
		t.Errorf("slippage = %v, want non-positive for favorable fill", res.SlippagePercent)
	}
}

func TestLimitZeroFillAveragePriceFallsBackToTarget(t *testing.T) {
	// Limit buy priced below the entire ask side fills nothing.
	order := domain.SimulatedOrder{
		Kind:     domain.OrderKindLimit,
		Side:     domain.OrderSideBuy,
		Price:    50,
		Quantity: 1,
	}

	res, ok := Simulate(order, testBook())
	if !ok {
		t.Fatal("expected result")
	}
	if res.FillPercentage != 0 {
		t.Errorf("fill = %v%%, want 0", res.FillPercentage)
	}
	if !almostEqual(res.AveragePrice, 50) {
		t.Errorf("avgPrice = %v, want target fallback 50", res.AveragePrice)
	}
	if !res.HasTimeEstimate {
		t.Error("unfilled limit order should carry a fill-time estimate")
	}
}

func TestPreconditions(t *testing.T) {
	book := testBook()
	tests := []struct {
		name  string
		order domain.SimulatedOrder
		snap  domain.BookSnapshot
	}{
		{
			"zero quantity",
			domain.SimulatedOrder{Kind: domain.OrderKindMarket, Side: domain.OrderSideBuy},
			book,
		},
		{
			"negative limit price",
			domain.SimulatedOrder{Kind: domain.OrderKindLimit, Side: domain.OrderSideBuy, Price: -1, Quantity: 1},
			book,
		},
		{
			"market buy with empty asks",
			domain.SimulatedOrder{Kind: domain.OrderKindMarket, Side: domain.OrderSideBuy, Quantity: 1},
			domain.BookSnapshot{Bids: book.Bids},
		},
		{
			"market sell with empty bids",
			domain.SimulatedOrder{Kind: domain.OrderKindMarket, Side: domain.OrderSideSell, Quantity: 1},
			domain.BookSnapshot{Asks: book.Asks},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := Simulate(tt.order, tt.snap); ok {
				t.Error("expected ok=false")
			}
		})
	}
}

func TestMarketSellPartialFill(t *testing.T) {
	order := domain.SimulatedOrder{
		Kind:     domain.OrderKindMarket,
		Side:     domain.OrderSideSell,
		Quantity: 10,
	}

	res, ok := Simulate(order, testBook())
	if !ok {
		t.Fatal("expected result")
	}
	// Only 5 units of bid depth exist.
	if res.FillPercentage != 50 {
		t.Errorf("fill = %v%%, want 50", res.FillPercentage)
	}
	if res.DepthLevelsConsumed != 2 {
		t.Errorf("depth = %d, want 2", res.DepthLevelsConsumed)
	}
	if res.WorstPrice != 98 {
		t.Errorf("worstPrice = %v, want 98", res.WorstPrice)
	}
}
