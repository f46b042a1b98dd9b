// Package service coordinates feed switching across the connection manager,
// the book aggregator, and the simulation desk.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mkoval/depthlab/internal/book"
	"github.com/mkoval/depthlab/internal/domain"
	"github.com/mkoval/depthlab/internal/feed"
)

// ConnManager is the connection-lifecycle surface FeedService drives.
type ConnManager interface {
	Connect(ctx context.Context, key domain.FeedKey) error
	Disconnect(v domain.Venue)
	DisconnectAll()
	States() []feed.ConnState
}

// BookControl is the aggregator surface FeedService drives.
type BookControl interface {
	SetFeed(key domain.FeedKey)
	ActiveFeed() domain.FeedKey
	State() book.State
}

// DeskControl clears simulation state when the feed changes.
type DeskControl interface {
	Reset()
}

// FeedStatus is the combined health view of the active feed.
type FeedStatus struct {
	Venue       string           `json:"venue"`
	Symbol      string           `json:"symbol"`
	Loading     bool             `json:"loading"`
	Error       string           `json:"error,omitempty"`
	Connections []feed.ConnState `json:"connections"`
}

// FeedService switches the active venue/symbol pair atomically: the old
// venue's connections are torn down, book and simulation state are cleared,
// and the new feed is connected.
type FeedService struct {
	manager ConnManager
	books   BookControl
	desk    DeskControl
	logger  *slog.Logger
}

// NewFeedService creates a FeedService with all required dependencies.
func NewFeedService(manager ConnManager, books BookControl, desk DeskControl, logger *slog.Logger) *FeedService {
	return &FeedService{
		manager: manager,
		books:   books,
		desk:    desk,
		logger:  logger,
	}
}

// Start connects the configured initial feed.
func (s *FeedService) Start(ctx context.Context, key domain.FeedKey) error {
	s.books.SetFeed(key)
	if err := s.manager.Connect(ctx, key); err != nil {
		return fmt.Errorf("feed_service: start %s: %w", key, err)
	}
	return nil
}

// SetFeed switches to a new venue/symbol pair. Switching to the already
// active feed reconnects it without clearing simulation history.
func (s *FeedService) SetFeed(ctx context.Context, venueName, symbol string) (domain.FeedKey, error) {
	v, err := domain.ParseVenue(venueName)
	if err != nil {
		return domain.FeedKey{}, fmt.Errorf("feed_service: %w", err)
	}
	if symbol == "" {
		return domain.FeedKey{}, fmt.Errorf("feed_service: empty symbol")
	}
	key := domain.FeedKey{Venue: v, Symbol: symbol}

	prev := s.books.ActiveFeed()
	if prev.Venue != domain.VenueUnknown && prev != key {
		s.manager.Disconnect(prev.Venue)
	}
	if prev != key {
		s.books.SetFeed(key)
		s.desk.Reset()
	}
	if err := s.manager.Connect(ctx, key); err != nil {
		return domain.FeedKey{}, fmt.Errorf("feed_service: connect %s: %w", key, err)
	}

	s.logger.InfoContext(ctx, "feed switched",
		slog.String("from", prev.String()),
		slog.String("to", key.String()),
	)
	return key, nil
}

// Status reports the active feed together with connection bookkeeping.
func (s *FeedService) Status() FeedStatus {
	key := s.books.ActiveFeed()
	st := s.books.State()
	return FeedStatus{
		Venue:       key.Venue.String(),
		Symbol:      key.Symbol,
		Loading:     st.Loading,
		Error:       st.Error,
		Connections: s.manager.States(),
	}
}

// Stop tears down every connection.
func (s *FeedService) Stop() {
	s.manager.DisconnectAll()
}
