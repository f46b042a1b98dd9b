package book

import "github.com/mkoval/depthlab/internal/domain"

// history is a bounded FIFO ring of best-bid/best-ask observations. When the
// ring is full the oldest point is evicted first.
type history struct {
	points []domain.PricePoint
	start  int
	count  int
}

func newHistory(capacity int) *history {
	return &history{points: make([]domain.PricePoint, capacity)}
}

func (h *history) Append(pts ...domain.PricePoint) {
	for _, p := range pts {
		if h.count < len(h.points) {
			h.points[(h.start+h.count)%len(h.points)] = p
			h.count++
			continue
		}
		h.points[h.start] = p
		h.start = (h.start + 1) % len(h.points)
	}
}

// Snapshot returns the retained points, oldest first.
func (h *history) Snapshot() []domain.PricePoint {
	out := make([]domain.PricePoint, h.count)
	for i := 0; i < h.count; i++ {
		out[i] = h.points[(h.start+i)%len(h.points)]
	}
	return out
}

func (h *history) Len() int { return h.count }

func (h *history) Clear() {
	h.start, h.count = 0, 0
}
