package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mkoval/depthlab/internal/domain"
	"github.com/mkoval/depthlab/internal/service"
)

// FeedSwitcher is the feed-control surface the handler drives.
type FeedSwitcher interface {
	SetFeed(ctx context.Context, venue, symbol string) (domain.FeedKey, error)
	Status() service.FeedStatus
}

// FeedHandler serves feed status and feed switching.
type FeedHandler struct {
	feeds  FeedSwitcher
	logger *slog.Logger
}

// NewFeedHandler creates a FeedHandler.
func NewFeedHandler(feeds FeedSwitcher, logger *slog.Logger) *FeedHandler {
	return &FeedHandler{feeds: feeds, logger: logHandler(logger, "feed")}
}

// GetFeed responds with the active feed and its connection bookkeeping.
// GET /api/feed
func (h *FeedHandler) GetFeed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.feeds.Status())
}

// setFeedRequest is the body of a feed-switch request.
type setFeedRequest struct {
	Venue  string `json:"venue"`
	Symbol string `json:"symbol"`
}

// SetFeed switches the active venue/symbol pair.
// PUT /api/feed
func (h *FeedHandler) SetFeed(w http.ResponseWriter, r *http.Request) {
	var req setFeedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	key, err := h.feeds.SetFeed(r.Context(), req.Venue, req.Symbol)
	if err != nil {
		if errors.Is(err, domain.ErrUnknownVenue) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.ErrorContext(r.Context(), "feed switch failed",
			slog.String("venue", req.Venue),
			slog.String("symbol", req.Symbol),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"venue":  key.Venue.String(),
		"symbol": key.Symbol,
	})
}
