// Package okx implements the protocol adapter for the OKX public order-book
// feed. OKX is a snapshot-style venue: every book message carries the full
// current level list for both sides, so each message fully replaces prior
// state for the feed.
package okx

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/mkoval/depthlab/internal/domain"
	"github.com/mkoval/depthlab/internal/venue"
)

const (
	wsURL = "wss://ws.okx.com:8443/ws/v5/public"

	// OKX drops idle connections after 30s; an opaque "ping" text frame
	// every 20s keeps it alive. The server answers with a "pong" text frame.
	keepaliveInterval = 20 * time.Second
)

// Adapter is the OKX protocol adapter. It is stateless and safe for
// concurrent use.
type Adapter struct{}

// New returns the OKX adapter.
func New() *Adapter { return &Adapter{} }

// Venue implements venue.Adapter.
func (a *Adapter) Venue() domain.Venue { return domain.VenueOKX }

// URL implements venue.Adapter.
func (a *Adapter) URL() string { return wsURL }

// subscribeRequest is the books-channel subscription frame.
type subscribeRequest struct {
	Op   string           `json:"op"`
	Args []subscribeTopic `json:"args"`
}

type subscribeTopic struct {
	Channel        string `json:"channel"`
	InstID         string `json:"instId"`
	UpdateInterval string `json:"updateInterval"`
}

// OnConnect returns the books subscription for the given symbol.
func (a *Adapter) OnConnect(symbol string) [][]byte {
	req := subscribeRequest{
		Op: "subscribe",
		Args: []subscribeTopic{{
			Channel:        "books",
			InstID:         InstrumentID(symbol),
			UpdateInterval: "100ms",
		}},
	}
	payload, err := json.Marshal(req)
	if err != nil {
		return nil
	}
	return [][]byte{payload}
}

// KeepaliveInterval implements venue.Adapter.
func (a *Adapter) KeepaliveInterval() time.Duration { return keepaliveInterval }

// Keepalive returns the opaque ping frame. No structured reply is expected;
// the "pong" text answer is dropped in Parse.
func (a *Adapter) Keepalive() []byte { return []byte("ping") }

// Reply implements venue.Adapter. OKX never requires an immediate response.
func (a *Adapter) Reply(raw []byte) []byte { return nil }

// InstrumentID maps the canonical perpetual symbols onto OKX instrument IDs.
// Unknown symbols pass through unchanged.
func InstrumentID(symbol string) string {
	switch symbol {
	case "BTC-PERPETUAL":
		return "BTC-USD-SWAP"
	case "ETH-PERPETUAL":
		return "ETH-USD-SWAP"
	default:
		return symbol
	}
}

// bookMessage is the envelope of a books-channel push.
type bookMessage struct {
	Event string `json:"event"`
	Msg   string `json:"msg"`
	Arg   struct {
		Channel string `json:"channel"`
	} `json:"arg"`
	Data []bookData `json:"data"`
}

type bookData struct {
	Bids [][]string `json:"bids"`
	Asks [][]string `json:"asks"`
	TS   string     `json:"ts"`
}

// Parse maps one raw OKX message to a canonical mutation. Subscription acks
// and pongs yield (nil, nil); venue error events yield a *domain.VenueError.
func (a *Adapter) Parse(raw []byte) (*domain.BookMutation, error) {
	if string(raw) == "pong" {
		return nil, nil
	}

	var msg bookMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, err
	}

	switch msg.Event {
	case "error":
		return nil, &domain.VenueError{Venue: domain.VenueOKX, Msg: msg.Msg}
	case "subscribe":
		return nil, nil
	}

	if msg.Arg.Channel != "books" || len(msg.Data) == 0 {
		return nil, nil
	}

	data := msg.Data[0]
	mut := &domain.BookMutation{
		Bids: parseRows(data.Bids),
		Asks: parseRows(data.Asks),
	}
	if ts, err := strconv.ParseInt(data.TS, 10, 64); err == nil {
		mut.LastUpdateID = ts
	}
	return mut, nil
}

// parseRows converts [priceStr, sizeStr, ...] rows, dropping rows whose size
// is not positive: that price no longer exists at this depth.
func parseRows(rows [][]string) [][2]float64 {
	out := make([][2]float64, 0, len(rows))
	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		price, err := strconv.ParseFloat(row[0], 64)
		if err != nil {
			continue
		}
		size, err := strconv.ParseFloat(row[1], 64)
		if err != nil || size <= 0 {
			continue
		}
		out = append(out, [2]float64{price, size})
	}
	return venue.DedupeRows(out)
}

// Compile-time interface check.
var _ venue.Adapter = (*Adapter)(nil)
