// Package deribit implements the protocol adapter for the Deribit public
// order-book feed. Deribit speaks JSON-RPC 2.0 over WebSocket and delivers
// delta-style rows tagged with an action ("new", "change", "delete"). Each
// batch is treated as authoritative for the levels it mentions; the feed's
// book channel always carries complete top-of-book payloads.
package deribit

import (
	"encoding/json"
	"math"
	"sync/atomic"
	"time"

	"github.com/mkoval/depthlab/internal/domain"
	"github.com/mkoval/depthlab/internal/venue"
)

const (
	wsURL = "wss://www.deribit.com/ws/api/v2"

	// The server negotiates a 30s heartbeat; a public/test keepalive every
	// 15s keeps the client's side of that contract comfortably inside it.
	heartbeatSeconds  = 30
	keepaliveInterval = 15 * time.Second
)

// Adapter is the Deribit protocol adapter. The only state it carries is a
// monotonic JSON-RPC request id counter.
type Adapter struct {
	nextID atomic.Int64
}

// New returns the Deribit adapter.
func New() *Adapter { return &Adapter{} }

// Venue implements venue.Adapter.
func (a *Adapter) Venue() domain.Venue { return domain.VenueDeribit }

// URL implements venue.Adapter.
func (a *Adapter) URL() string { return wsURL }

// request is an outbound JSON-RPC 2.0 call.
type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

func (a *Adapter) call(method string, params any) []byte {
	payload, err := json.Marshal(request{
		JSONRPC: "2.0",
		ID:      a.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil
	}
	return payload
}

// OnConnect negotiates the server heartbeat, then subscribes to the 100ms
// book channel for the symbol.
func (a *Adapter) OnConnect(symbol string) [][]byte {
	return [][]byte{
		a.call("public/set_heartbeat", map[string]any{"interval": heartbeatSeconds}),
		a.call("public/subscribe", map[string]any{
			"channels": []string{"book." + symbol + ".100ms"},
		}),
	}
}

// KeepaliveInterval implements venue.Adapter.
func (a *Adapter) KeepaliveInterval() time.Duration { return keepaliveInterval }

// Keepalive returns a public/test call.
func (a *Adapter) Keepalive() []byte {
	return a.call("public/test", map[string]any{})
}

// inbound is the envelope of a server push or RPC response.
type inbound struct {
	Method string `json:"method"`
	ID     int64  `json:"id"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Params struct {
		Type string        `json:"type"`
		Data *bookData     `json:"data"`
	} `json:"params"`
}

type bookData struct {
	Bids     []deltaRow `json:"bids"`
	Asks     []deltaRow `json:"asks"`
	ChangeID int64      `json:"change_id"`
}

// deltaRow decodes a [action, price, size] triple.
type deltaRow struct {
	Action string
	Price  float64
	Size   float64
}

func (r *deltaRow) UnmarshalJSON(data []byte) error {
	var tuple [3]json.RawMessage
	if err := json.Unmarshal(data, &tuple); err != nil {
		return err
	}
	if err := json.Unmarshal(tuple[0], &r.Action); err != nil {
		return err
	}
	if err := json.Unmarshal(tuple[1], &r.Price); err != nil {
		return err
	}
	return json.Unmarshal(tuple[2], &r.Size)
}

// Reply answers server liveness probes: a heartbeat push of type
// "test_request" must be acknowledged immediately with a public/test call
// carrying the same correlation id, or the server drops the connection.
func (a *Adapter) Reply(raw []byte) []byte {
	var msg inbound
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil
	}
	if msg.Method != "heartbeat" || msg.Params.Type != "test_request" {
		return nil
	}
	payload, err := json.Marshal(request{
		JSONRPC: "2.0",
		ID:      msg.ID,
		Method:  "public/test",
		Params:  map[string]any{},
	})
	if err != nil {
		return nil
	}
	return payload
}

// Parse maps one raw Deribit message to a canonical mutation. Heartbeats,
// RPC acks, and messages without a nested data section yield (nil, nil);
// error payloads yield a *domain.VenueError.
func (a *Adapter) Parse(raw []byte) (*domain.BookMutation, error) {
	var msg inbound
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, err
	}

	if msg.Error != nil {
		return nil, &domain.VenueError{Venue: domain.VenueDeribit, Msg: msg.Error.Message}
	}
	if msg.Method != "subscription" || msg.Params.Data == nil {
		return nil, nil
	}

	data := msg.Params.Data
	return &domain.BookMutation{
		Bids:         parseRows(data.Bids),
		Asks:         parseRows(data.Asks),
		LastUpdateID: data.ChangeID,
	}, nil
}

// parseRows keeps live rows only: "delete" actions and non-positive sizes
// are removed from consideration rather than emitted as zero levels.
func parseRows(rows []deltaRow) [][2]float64 {
	out := make([][2]float64, 0, len(rows))
	for _, row := range rows {
		if row.Action == "delete" || row.Size <= 0 {
			continue
		}
		out = append(out, [2]float64{row.Price, math.Abs(row.Size)})
	}
	return venue.DedupeRows(out)
}

// Compile-time interface check.
var _ venue.Adapter = (*Adapter)(nil)
