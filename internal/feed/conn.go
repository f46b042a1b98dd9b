package feed

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mkoval/depthlab/internal/domain"
	"github.com/mkoval/depthlab/internal/venue"
)

// writeWait bounds each frame write.
const writeWait = 10 * time.Second

// Conn is the transport surface the manager needs from a WebSocket
// connection.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// DialFunc opens a transport connection to a venue endpoint.
type DialFunc func(ctx context.Context, url string) (Conn, error)

// GorillaDial dials with a gorilla/websocket Dialer.
func GorillaDial(ctx context.Context, url string) (Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	c, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Status is the lifecycle phase of one feed connection.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusOpen         Status = "open"
	StatusClosing      Status = "closing"
)

// ConnState is the externally visible bookkeeping for one feed connection.
type ConnState struct {
	Key             domain.FeedKey `json:"-"`
	Status          Status         `json:"status"`
	Attempts        int            `json:"attempts"`
	LastPayloadTime time.Time      `json:"last_payload_time,omitzero"`
}

// conn is one live or pending connection record. Fields are guarded by the
// owning Manager's mutex except writeMu and the immutable key/adapter/ctx.
type conn struct {
	key     domain.FeedKey
	adapter venue.Adapter
	ctx     context.Context

	status          Status
	attempts        int
	sock            Conn
	reconnect       *time.Timer
	lastPayloadTime time.Time

	// done tears down the loops of the current socket session; replaced on
	// every redial. doneClosed guards against double close.
	done       chan struct{}
	doneClosed bool

	// writeMu serializes frame writes; the transport allows one writer.
	writeMu sync.Mutex
}

// write sends one text frame under the write lock.
func (c *conn) write(sock Conn, payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	sock.SetWriteDeadline(time.Now().Add(writeWait))
	return sock.WriteMessage(websocket.TextMessage, payload)
}
