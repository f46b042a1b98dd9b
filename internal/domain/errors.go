package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrUnknownVenue     = errors.New("unknown venue")
	ErrNotConnected     = errors.New("not connected")
	ErrRetriesExhausted = errors.New("reconnect attempts exhausted")
	ErrWSDisconnect     = errors.New("websocket disconnected")
)

// VenueError is an error payload reported by a venue over a healthy
// connection (rejected subscription, malformed request). It is surfaced as a
// recoverable error state and does not tear down the socket.
type VenueError struct {
	Venue Venue
	Msg   string
}

func (e *VenueError) Error() string {
	return fmt.Sprintf("%s error: %s", e.Venue, e.Msg)
}
