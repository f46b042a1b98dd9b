package handler

import (
	"log/slog"
	"net/http"

	"github.com/mkoval/depthlab/internal/book"
	"github.com/mkoval/depthlab/internal/domain"
)

// BookReader is the read side of the aggregator the handler serves.
type BookReader interface {
	State() book.State
	History() []domain.PricePoint
}

// BookHandler serves the canonical order book and its best-price history.
type BookHandler struct {
	books  BookReader
	logger *slog.Logger
}

// NewBookHandler creates a BookHandler.
func NewBookHandler(books BookReader, logger *slog.Logger) *BookHandler {
	return &BookHandler{books: books, logger: logHandler(logger, "book")}
}

// GetBook responds with the current consumer-facing book state.
// GET /api/book
func (h *BookHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.books.State())
}

// GetHistory responds with the retained best-bid/best-ask points, oldest
// first.
// GET /api/book/history
func (h *BookHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	points := h.books.History()
	if points == nil {
		points = []domain.PricePoint{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"points": points,
	})
}
