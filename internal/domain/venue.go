package domain

import (
	"fmt"
	"strings"
)

// Venue identifies a supported trading venue. The set is closed: venue
// handling (wire format, heartbeat obligations) is keyed off this type rather
// than free-form strings.
type Venue int

const (
	VenueUnknown Venue = iota
	// VenueOKX is a snapshot-style feed: every book message carries the full
	// level list for both sides.
	VenueOKX
	// VenueDeribit is a delta-style feed: rows are tagged with an action and
	// delivered over JSON-RPC.
	VenueDeribit
)

// String returns the lowercase venue name used in config, logs, and cache keys.
func (v Venue) String() string {
	switch v {
	case VenueOKX:
		return "okx"
	case VenueDeribit:
		return "deribit"
	default:
		return "unknown"
	}
}

// MarshalText renders the venue name so JSON payloads carry "okx" rather
// than the numeric enum value.
func (v Venue) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText parses a venue name.
func (v *Venue) UnmarshalText(text []byte) error {
	parsed, err := ParseVenue(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// ParseVenue converts a venue name (case-insensitive) into a Venue.
func ParseVenue(s string) (Venue, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "okx":
		return VenueOKX, nil
	case "deribit":
		return VenueDeribit, nil
	default:
		return VenueUnknown, fmt.Errorf("domain: %w: %q", ErrUnknownVenue, s)
	}
}

// FeedKey identifies one logical market-data feed. At most one live
// connection exists per key.
type FeedKey struct {
	Venue  Venue
	Symbol string
}

// String renders the key for logging and cache keys ("okx/BTC-PERPETUAL").
func (k FeedKey) String() string {
	return k.Venue.String() + "/" + k.Symbol
}
