// Package transport defines the abstract socket capability the session
// core consumes, plus a github.com/gorilla/websocket-backed
// implementation. The core never imports gorilla/websocket directly —
// it is injected through this interface instead, so a different
// transport can be substituted in tests or alternate deployments.
package transport

import (
	"context"
	"time"
)

// ReadyState mirrors a WebSocket connection's lifecycle state.
type ReadyState int

const (
	Connecting ReadyState = iota
	Open
	Closing
	Closed
)

// CloseEvent is delivered on Conn.Closed when the remote end (or the local
// read loop, on a transport error) closes the connection.
type CloseEvent struct {
	Code     int
	Reason   string
	WasClean bool
}

// Conn is the capability the core needs from a live socket: send
// bytes, receive bytes or a close notification, and be told to close.
// It collapses the read/write/close surface of a typical WebSocket
// library into a single channel-based API so the core's own goroutine
// can select over it alongside timers without callback re-entrancy.
type Conn interface {
	// Messages yields each inbound text/binary frame's raw bytes, in
	// arrival order. The channel is closed when the read loop ends,
	// whether due to a clean close, an error, or Close being called.
	Messages() <-chan []byte
	// Closed yields exactly one CloseEvent when the connection ends,
	// before Messages is closed.
	Closed() <-chan CloseEvent
	// Send enqueues a frame for writing. The frame type (text/binary)
	// was fixed at dial time by the negotiated payload codec.
	Send(ctx context.Context, frame []byte) error
	// Close initiates a clean close handshake with the given code, or
	// forcibly terminates the connection if graceful is false.
	Close(code int, reason string, graceful bool) error
	// State reports the connection's current lifecycle state.
	State() ReadyState
}

// Dialer opens a new Conn to url. Binary selects whether outbound
// frames are sent as WebSocket binary frames (msgpack codec, or any
// compressed session) or text frames (uncompressed JSON).
type Dialer interface {
	Dial(ctx context.Context, url string, binary bool) (Conn, error)
}

// DefaultDialTimeout is a 10-second handshake bound for Dialer
// implementations. The gorilla Dialer in this package does not apply
// it; its dial is bounded by ctx's deadline and gorilla/websocket's own
// default handshake timeout.
const DefaultDialTimeout = 10 * time.Second
