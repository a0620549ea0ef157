package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// gorillaDialer implements Dialer with github.com/gorilla/websocket.
type gorillaDialer struct {
	dialer *websocket.Dialer
}

// NewGorillaDialer returns a Dialer backed by gorilla/websocket's
// default dialer.
func NewGorillaDialer() Dialer {
	return &gorillaDialer{dialer: websocket.DefaultDialer}
}

func (d *gorillaDialer) Dial(ctx context.Context, url string, binary bool) (Conn, error) {
	conn, _, err := d.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: dial: %w", err)
	}
	return newGorillaConn(conn, binary), nil
}

type gorillaConn struct {
	conn   *websocket.Conn
	binary bool

	mu    sync.Mutex
	state ReadyState

	messages chan []byte
	closed   chan CloseEvent

	closeOnce sync.Once
}

func newGorillaConn(conn *websocket.Conn, binary bool) *gorillaConn {
	c := &gorillaConn{
		conn:     conn,
		binary:   binary,
		state:    Open,
		messages: make(chan []byte, 16),
		closed:   make(chan CloseEvent, 1),
	}

	conn.SetCloseHandler(func(code int, text string) error {
		c.finish(CloseEvent{Code: code, Reason: text, WasClean: true})
		return nil
	})

	go c.readPump()

	return c
}

func (c *gorillaConn) readPump() {
	defer close(c.messages)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			code, reason, wasClean := classifyReadErr(err)
			c.finish(CloseEvent{Code: code, Reason: reason, WasClean: wasClean})
			return
		}
		c.messages <- data
	}
}

func classifyReadErr(err error) (code int, reason string, wasClean bool) {
	if ce, ok := err.(*websocket.CloseError); ok {
		return ce.Code, ce.Text, ce.Code == websocket.CloseNormalClosure
	}
	return 1006, err.Error(), false
}

func (c *gorillaConn) finish(ev CloseEvent) {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.state = Closed
		c.mu.Unlock()
		c.closed <- ev
	})
}

func (c *gorillaConn) Messages() <-chan []byte     { return c.messages }
func (c *gorillaConn) Closed() <-chan CloseEvent    { return c.closed }

func (c *gorillaConn) State() ReadyState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *gorillaConn) Send(ctx context.Context, frame []byte) error {
	if c.State() != Open {
		return fmt.Errorf("transport: send on non-open connection")
	}

	frameType := websocket.TextMessage
	if c.binary {
		frameType = websocket.BinaryMessage
	}

	deadline := time.Now().Add(10 * time.Second)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("transport: set write deadline: %w", err)
	}

	return c.conn.WriteMessage(frameType, frame)
}

func (c *gorillaConn) Close(code int, reason string, graceful bool) error {
	c.mu.Lock()
	if c.state == Closed || c.state == Closing {
		c.mu.Unlock()
		return nil
	}
	c.state = Closing
	c.mu.Unlock()

	if !graceful {
		c.finish(CloseEvent{Code: code, Reason: reason, WasClean: false})
		return c.conn.Close()
	}

	msg := websocket.FormatCloseMessage(code, reason)
	deadline := time.Now().Add(1 * time.Second)
	if err := c.conn.WriteControl(websocket.CloseMessage, msg, deadline); err != nil {
		c.finish(CloseEvent{Code: code, Reason: reason, WasClean: false})
		return c.conn.Close()
	}

	return nil
}
