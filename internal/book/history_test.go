package book

import (
	"testing"

	"github.com/mkoval/depthlab/internal/domain"
)

func TestHistoryWrapsOldestFirst(t *testing.T) {
	h := newHistory(3)
	for i := 1; i <= 5; i++ {
		h.Append(domain.PricePoint{Time: int64(i), Price: float64(i)})
	}

	if h.Len() != 3 {
		t.Fatalf("len = %d, want 3", h.Len())
	}
	points := h.Snapshot()
	for i, want := range []float64{3, 4, 5} {
		if points[i].Price != want {
			t.Errorf("points[%d].Price = %v, want %v", i, points[i].Price, want)
		}
	}
}

func TestHistoryClear(t *testing.T) {
	h := newHistory(4)
	h.Append(domain.PricePoint{Time: 1}, domain.PricePoint{Time: 2})
	h.Clear()
	if h.Len() != 0 {
		t.Fatalf("len = %d after clear", h.Len())
	}
	h.Append(domain.PricePoint{Time: 3})
	if points := h.Snapshot(); len(points) != 1 || points[0].Time != 3 {
		t.Errorf("points = %+v after clear+append", points)
	}
}
