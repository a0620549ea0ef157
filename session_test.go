package shardcore

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/duskline/shardcore/sink"
	"github.com/duskline/shardcore/transport"
)

type fakeConn struct {
	in     chan []byte
	out    chan []byte
	closed chan transport.CloseEvent

	mu    sync.Mutex
	state transport.ReadyState
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan []byte, 16),
		out:    make(chan []byte, 16),
		closed: make(chan transport.CloseEvent, 1),
		state:  transport.Open,
	}
}

func (c *fakeConn) Messages() <-chan []byte             { return c.in }
func (c *fakeConn) Closed() <-chan transport.CloseEvent { return c.closed }

func (c *fakeConn) Send(ctx context.Context, frame []byte) error {
	c.out <- frame
	return nil
}

func (c *fakeConn) Close(code int, reason string, graceful bool) error {
	c.mu.Lock()
	c.state = transport.Closed
	c.mu.Unlock()
	select {
	case c.closed <- transport.CloseEvent{Code: code, Reason: reason, WasClean: graceful}:
	default:
	}
	return nil
}

func (c *fakeConn) State() transport.ReadyState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

type fakeDialer struct {
	conn *fakeConn
}

func (d *fakeDialer) Dial(ctx context.Context, url string, binary bool) (transport.Conn, error) {
	return d.conn, nil
}

type capturingSink struct {
	mu       sync.Mutex
	events   []sink.Event
	unknowns []sink.Unknown
}

func (s *capturingSink) Dispatch(e sink.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *capturingSink) DispatchUnknown(u sink.Unknown) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unknowns = append(s.unknowns, u)
}

func (s *capturingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func (s *capturingSink) unknownCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.unknowns)
}

func newTestSession(t *testing.T, isBot bool, sk sink.Sink) (*Session, *fakeConn, chan struct{}) {
	t.Helper()
	conn := newFakeConn()

	ready := make(chan struct{}, 1)
	sess, err := New(Config{
		Token:      "test-token",
		GatewayURL: "ws://fake-gateway",
		Dialer:     &fakeDialer{conn: conn},
		Sink:       sk,
		IsBot:      isBot,
		Handlers: Handlers{
			OnReady: func() {
				select {
				case ready <- struct{}{}:
				default:
				}
			},
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return sess, conn, ready
}

func waitFrame(t *testing.T, out chan []byte) map[string]any {
	t.Helper()
	select {
	case frame := <-out:
		var env map[string]any
		if err := json.Unmarshal(frame, &env); err != nil {
			t.Fatalf("unmarshal outbound frame: %v", err)
		}
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for outbound frame")
		return nil
	}
}

func TestHandshakeReachesReadyForBotSession(t *testing.T) {
	sk := &capturingSink{}
	sess, conn, ready := newTestSession(t, true, sk)

	if err := sess.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	conn.in <- []byte(`{"op":10,"d":{"heartbeat_interval":60000}}`)

	identify := waitFrame(t, conn.out)
	if identify["op"].(float64) != 2 {
		t.Fatalf("expected IDENTIFY (op 2), got %v", identify["op"])
	}

	conn.in <- []byte(`{"op":0,"t":"READY","s":1,"d":{"session_id":"sess-abc","resume_gateway_url":"ws://resume","guilds":[]}}`)

	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ready")
	}

	if !sess.IsReady() {
		t.Fatal("expected session to be ready")
	}
	if sess.SessionID() != "sess-abc" {
		t.Fatalf("SessionID = %q, want sess-abc", sess.SessionID())
	}
	if sess.Seq() != 1 {
		t.Fatalf("Seq() = %d, want 1", sess.Seq())
	}
}

func TestDispatchReachesSinkOnceReady(t *testing.T) {
	sk := &capturingSink{}
	sess, conn, ready := newTestSession(t, true, sk)

	if err := sess.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	conn.in <- []byte(`{"op":10,"d":{"heartbeat_interval":60000}}`)
	waitFrame(t, conn.out) // immediate HEARTBEAT; IDENTIFY follows it

	conn.in <- []byte(`{"op":0,"t":"READY","s":1,"d":{"session_id":"sess-abc","resume_gateway_url":"ws://resume","guilds":[]}}`)
	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ready")
	}

	conn.in <- []byte(`{"op":0,"t":"MESSAGE_CREATE","s":2,"d":{"content":"hi"}}`)

	deadline := time.Now().Add(2 * time.Second)
	for sk.count() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if sk.count() != 1 {
		t.Fatalf("expected 1 dispatched event, got %d", sk.count())
	}
}

func TestHeartbeatAckIsTracked(t *testing.T) {
	sess, conn, _ := newTestSession(t, true, &capturingSink{})

	if err := sess.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	conn.in <- []byte(`{"op":10,"d":{"heartbeat_interval":60000}}`)
	waitFrame(t, conn.out) // immediate HEARTBEAT; IDENTIFY follows it

	conn.in <- []byte(`{"op":11}`)

	cs := sess.activeConn()
	if cs == nil {
		t.Fatal("expected an active connection")
	}

	deadline := time.Now().Add(2 * time.Second)
	for !cs.hb.Acked() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if !cs.hb.Acked() {
		t.Fatal("expected heartbeat ack to be recorded")
	}
}

func TestUnknownDispatchNameRoutesToDispatchUnknown(t *testing.T) {
	sk := &capturingSink{}
	sess, conn, ready := newTestSession(t, true, sk)

	if err := sess.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	conn.in <- []byte(`{"op":10,"d":{"heartbeat_interval":60000}}`)
	waitFrame(t, conn.out) // immediate HEARTBEAT; IDENTIFY follows it

	conn.in <- []byte(`{"op":0,"t":"READY","s":1,"d":{"session_id":"sess-abc","resume_gateway_url":"ws://resume","guilds":[]}}`)
	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ready")
	}

	conn.in <- []byte(`{"op":0,"t":"SOME_FUTURE_EVENT","s":2,"d":{"x":1}}`)

	deadline := time.Now().Add(2 * time.Second)
	for sk.unknownCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if sk.unknownCount() != 1 {
		t.Fatalf("expected 1 unknown dispatch, got %d", sk.unknownCount())
	}
	if sk.count() != 0 {
		t.Fatalf("expected unknown dispatch not to also reach Dispatch, got %d", sk.count())
	}
}

func TestInvalidSessionCloseResetsSessionIdentity(t *testing.T) {
	sess, conn, ready := newTestSession(t, true, &capturingSink{})

	if err := sess.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	conn.in <- []byte(`{"op":10,"d":{"heartbeat_interval":60000}}`)
	waitFrame(t, conn.out) // immediate HEARTBEAT; IDENTIFY follows it

	conn.in <- []byte(`{"op":0,"t":"READY","s":42,"d":{"session_id":"sess-abc","resume_gateway_url":"ws://resume","guilds":[]}}`)
	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ready")
	}

	if sess.Seq() != 42 {
		t.Fatalf("Seq() = %d, want 42", sess.Seq())
	}

	conn.closed <- transport.CloseEvent{Code: 4006, Reason: "session invalidated", WasClean: true}

	deadline := time.Now().Add(2 * time.Second)
	for sess.Status() != Disconnected && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	if sess.SessionID() != "" {
		t.Fatalf("SessionID() = %q, want empty after a 4006 close", sess.SessionID())
	}
	if sess.Seq() != 0 {
		t.Fatalf("Seq() = %d, want 0 after a 4006 close", sess.Seq())
	}
}
