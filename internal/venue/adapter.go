// Package venue defines the protocol adapter contract that normalizes each
// venue's wire format into canonical book mutations, plus shared helpers used
// by the per-venue implementations.
package venue

import (
	"time"

	"github.com/mkoval/depthlab/internal/domain"
)

// Adapter translates one venue's wire protocol into canonical book
// mutations and describes the connection-time obligations (subscription
// frames, keepalive cadence, control replies) the feed manager must honor.
//
// Parse is a pure mapping: it returns (nil, nil) for messages that are not
// book updates (acks, heartbeats, pongs), a *domain.VenueError for venue
// error payloads, and a mutation otherwise. Adapters hold no connection
// state.
type Adapter interface {
	// Venue returns the venue this adapter speaks for.
	Venue() domain.Venue

	// URL is the venue's public market-data WebSocket endpoint.
	URL() string

	// OnConnect returns the text frames to send immediately after the
	// socket opens, in order (heartbeat negotiation, subscription).
	OnConnect(symbol string) [][]byte

	// KeepaliveInterval is the cadence at which Keepalive frames must be
	// sent while the socket is up. Zero disables client keepalives.
	KeepaliveInterval() time.Duration

	// Keepalive returns the frame to send each interval.
	Keepalive() []byte

	// Reply inspects an inbound message and returns a frame that must be
	// sent back immediately (server liveness probes), or nil.
	Reply(raw []byte) []byte

	// Parse maps one raw inbound message to zero-or-one canonical mutation.
	Parse(raw []byte) (*domain.BookMutation, error)
}

// DedupeRows resolves duplicate prices within a single message: the later
// occurrence in wire order wins. Relative order of first occurrences is
// preserved; sorting happens downstream in the aggregator.
func DedupeRows(rows [][2]float64) [][2]float64 {
	if len(rows) < 2 {
		return rows
	}
	idx := make(map[float64]int, len(rows))
	out := rows[:0]
	for _, row := range rows {
		if i, seen := idx[row[0]]; seen {
			out[i] = row
			continue
		}
		idx[row[0]] = len(out)
		out = append(out, row)
	}
	return out
}
