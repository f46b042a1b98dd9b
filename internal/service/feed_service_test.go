package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/mkoval/depthlab/internal/book"
	"github.com/mkoval/depthlab/internal/domain"
	"github.com/mkoval/depthlab/internal/feed"
)

type fakeManager struct {
	connected    []domain.FeedKey
	disconnected []domain.Venue
	connectErr   error
}

func (m *fakeManager) Connect(_ context.Context, key domain.FeedKey) error {
	if m.connectErr != nil {
		return m.connectErr
	}
	m.connected = append(m.connected, key)
	return nil
}

func (m *fakeManager) Disconnect(v domain.Venue) { m.disconnected = append(m.disconnected, v) }
func (m *fakeManager) DisconnectAll()            {}
func (m *fakeManager) States() []feed.ConnState  { return nil }

type fakeBooks struct {
	active domain.FeedKey
	sets   []domain.FeedKey
	state  book.State
}

func (b *fakeBooks) SetFeed(key domain.FeedKey) {
	b.sets = append(b.sets, key)
	b.active = key
}

func (b *fakeBooks) ActiveFeed() domain.FeedKey { return b.active }
func (b *fakeBooks) State() book.State          { return b.state }

type fakeDesk struct {
	resets int
}

func (d *fakeDesk) Reset() { d.resets++ }

func newService(m *fakeManager, b *fakeBooks, d *fakeDesk) *FeedService {
	return NewFeedService(m, b, d, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSetFeedSwitchesVenue(t *testing.T) {
	m := &fakeManager{}
	b := &fakeBooks{active: domain.FeedKey{Venue: domain.VenueOKX, Symbol: "BTC-PERPETUAL"}}
	d := &fakeDesk{}
	s := newService(m, b, d)

	key, err := s.SetFeed(context.Background(), "deribit", "ETH-PERPETUAL")
	if err != nil {
		t.Fatalf("set feed: %v", err)
	}
	want := domain.FeedKey{Venue: domain.VenueDeribit, Symbol: "ETH-PERPETUAL"}
	if key != want {
		t.Fatalf("key = %v, want %v", key, want)
	}
	if len(m.disconnected) != 1 || m.disconnected[0] != domain.VenueOKX {
		t.Fatalf("expected old venue disconnected, got %v", m.disconnected)
	}
	if len(b.sets) != 1 || b.sets[0] != want {
		t.Fatalf("expected book reset to %v, got %v", want, b.sets)
	}
	if d.resets != 1 {
		t.Fatalf("expected desk reset once, got %d", d.resets)
	}
	if len(m.connected) != 1 || m.connected[0] != want {
		t.Fatalf("expected connect to %v, got %v", want, m.connected)
	}
}

func TestSetFeedSameVenueNewSymbol(t *testing.T) {
	m := &fakeManager{}
	b := &fakeBooks{active: domain.FeedKey{Venue: domain.VenueOKX, Symbol: "BTC-PERPETUAL"}}
	s := newService(m, b, &fakeDesk{})

	if _, err := s.SetFeed(context.Background(), "okx", "ETH-PERPETUAL"); err != nil {
		t.Fatalf("set feed: %v", err)
	}
	// Same venue still tears down the old symbol's connection.
	if len(m.disconnected) != 1 || m.disconnected[0] != domain.VenueOKX {
		t.Fatalf("expected old connection torn down, got %v", m.disconnected)
	}
}

func TestSetFeedSameFeedReconnects(t *testing.T) {
	active := domain.FeedKey{Venue: domain.VenueOKX, Symbol: "BTC-PERPETUAL"}
	m := &fakeManager{}
	b := &fakeBooks{active: active}
	d := &fakeDesk{}
	s := newService(m, b, d)

	if _, err := s.SetFeed(context.Background(), "okx", "BTC-PERPETUAL"); err != nil {
		t.Fatalf("set feed: %v", err)
	}
	if len(m.disconnected) != 0 {
		t.Fatalf("same feed should not disconnect, got %v", m.disconnected)
	}
	if len(b.sets) != 0 || d.resets != 0 {
		t.Fatalf("same feed should not clear state")
	}
	if len(m.connected) != 1 {
		t.Fatalf("expected reconnect attempt, got %v", m.connected)
	}
}

func TestSetFeedRejectsBadInput(t *testing.T) {
	s := newService(&fakeManager{}, &fakeBooks{}, &fakeDesk{})
	if _, err := s.SetFeed(context.Background(), "nyse", "BTC-PERPETUAL"); !errors.Is(err, domain.ErrUnknownVenue) {
		t.Fatalf("expected ErrUnknownVenue, got %v", err)
	}
	if _, err := s.SetFeed(context.Background(), "okx", ""); err == nil {
		t.Fatal("expected error for empty symbol")
	}
}

func TestStatusReportsAggregatorError(t *testing.T) {
	b := &fakeBooks{
		active: domain.FeedKey{Venue: domain.VenueOKX, Symbol: "BTC-PERPETUAL"},
		state:  book.State{Loading: false, Error: "subscription rejected"},
	}
	s := newService(&fakeManager{}, b, &fakeDesk{})

	st := s.Status()
	if st.Venue != "okx" || st.Symbol != "BTC-PERPETUAL" {
		t.Fatalf("unexpected status %+v", st)
	}
	if st.Error != "subscription rejected" {
		t.Fatalf("error = %q", st.Error)
	}
}
