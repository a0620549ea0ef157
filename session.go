// Package shardcore implements the core of a single-shard gateway
// client: a long-lived, resumable, compressed, heartbeat-driven
// WebSocket session split across dial/handshake, heartbeat, rate
// limiting, decompression, backlog batching, and ready-orchestration
// concerns, each in its own package.
package shardcore

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/duskline/shardcore/backlog"
	"github.com/duskline/shardcore/codec"
	"github.com/duskline/shardcore/heartbeat"
	"github.com/duskline/shardcore/opcode"
	"github.com/duskline/shardcore/ratelimit"
	"github.com/duskline/shardcore/ready"
	"github.com/duskline/shardcore/sink"
	"github.com/duskline/shardcore/transport"
)

// reconnectMinMs and reconnectMaxMs bound the jittered backoff.
const (
	reconnectMinMs = 1000
	reconnectMaxMs = 30000
)

// Session is the gateway core. One Session owns at most one active
// socket at a time.
type Session struct {
	cfg Config

	payloadCodec codec.PayloadCodec

	mu               sync.RWMutex
	status           Status
	sessionID        string
	resumeGatewayURL string
	serverTrace      []string
	presence         Presence

	seq atomic.Uint64

	connectAttempts     int
	reconnectIntervalMs int

	conn   atomic.Pointer[connState]
	connMu sync.Mutex // serializes Connect/disconnect against each other

	globalBucket   *ratelimit.Bucket
	presenceBucket *ratelimit.Bucket

	guildSync   *backlog.Batcher
	memberFetch *backlog.Batcher
	readyOrch   *ready.Orchestrator

	unavailMu     sync.Mutex
	unavailGuilds map[string]bool

	log zerolog.Logger
}

// connState bundles everything scoped to one socket attempt, so tearing
// the socket down clears all of it atomically.
type connState struct {
	conn      transport.Conn
	inflater  codec.Inflater
	hb        *heartbeat.Driver
	cancel    context.CancelFunc
	connID    string
	connTimer *time.Timer

	closedOnce sync.Once
}

// New constructs a Session from cfg. It does not dial; call Connect.
func New(cfg Config) (*Session, error) {
	if cfg.Token == "" {
		return nil, ErrNoToken
	}
	cfg.applyDefaults()

	s := &Session{
		cfg:                 cfg,
		payloadCodec:        cfg.resolveCodec(),
		status:              Disconnected,
		presence:            cfg.DefaultPresence.clone(),
		reconnectIntervalMs: reconnectMinMs,
		log:                 *cfg.Logger,
	}
	s.seq.Store(0)

	s.globalBucket = ratelimit.New(120, 60*time.Second)
	s.presenceBucket = ratelimit.New(5, 60*time.Second)

	s.guildSync = backlog.New(backlog.GuildSyncBudget, s.flushGuildSync, s.IsReady)
	s.memberFetch = backlog.New(backlog.MemberFetchBudget, s.flushMemberFetch, s.IsReady)
	s.readyOrch = ready.New(cfg.GuildCreateTimeout, s.onReadyDrained, s.guildSync, s.memberFetch)

	return s, nil
}

// Status reports the session's current lifecycle state.
func (s *Session) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *Session) setStatus(st Status) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

// IsReady reports whether the session is in the Ready state: only Ready
// admits domain-event emission.
func (s *Session) IsReady() bool {
	return s.Status() == Ready
}

// Seq returns the current sequence counter.
func (s *Session) Seq() uint64 {
	return s.seq.Load()
}

// SessionID returns the current resumable session identifier, or "" if
// none.
func (s *Session) SessionID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionID
}

// ConnectAttempts returns the number of connect() calls since the last
// fully successful READY/RESUMED.
func (s *Session) ConnectAttempts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connectAttempts
}

// activeConn returns the current connState, or nil if disconnected.
func (s *Session) activeConn() *connState {
	return s.conn.Load()
}

// Connect opens the socket and drives the handshake. It returns once
// the dial itself succeeds or fails; the identify/resume/ready sequence
// continues asynchronously and is observed through Handlers.
//
// Calling Connect while a socket already exists in any state other
// than Disconnected is a usage error and a no-op.
func (s *Session) Connect(ctx context.Context) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()

	if s.activeConn() != nil {
		s.emitError(ErrAlreadyConnected)
		return ErrAlreadyConnected
	}

	s.mu.Lock()
	s.connectAttempts++
	s.mu.Unlock()

	s.setStatus(Connecting)

	binary := s.cfg.PayloadCodec == "msgpack" || s.cfg.Compress
	conn, err := s.cfg.Dialer.Dial(ctx, s.gatewayURL(), binary)
	if err != nil {
		s.setStatus(Disconnected)
		return fmt.Errorf("shardcore: connect: %w", err)
	}

	cs := &connState{
		conn:   conn,
		connID: uuid.NewString(),
	}
	if s.cfg.Compress {
		cs.inflater = s.cfg.resolveInflater()
	}

	runCtx, cancel := context.WithCancel(context.Background())
	cs.cancel = cancel
	cs.hb = heartbeat.New(s.sendHeartbeat, s.onHeartbeatMissed, func() int64 { return int64(s.seq.Load()) })

	s.conn.Store(cs)

	cs.connTimer = time.AfterFunc(s.cfg.ConnectionTimeout, func() { s.onConnectionTimeout(cs) })

	s.log.Info().Str("conn_id", cs.connID).Str("gateway", s.gatewayURL()).Msg("connecting")

	if s.cfg.Handlers.OnConnect != nil {
		s.cfg.Handlers.OnConnect()
	}

	go s.runConn(runCtx, cs)

	return nil
}

// gatewayURL returns the URL to dial: the resume gateway URL if one was
// captured from a prior READY, else Config.GatewayURL.
func (s *Session) gatewayURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.resumeGatewayURL != "" && s.sessionID != "" {
		return s.resumeGatewayURL
	}
	return s.cfg.GatewayURL
}

// runConn is the per-connection read loop: it pumps inbound frames and
// the close event into the dispatcher until the socket ends.
func (s *Session) runConn(ctx context.Context, cs *connState) {
	for {
		select {
		case <-ctx.Done():
			return

		case frame, ok := <-cs.conn.Messages():
			if !ok {
				continue
			}
			s.handleFrame(cs, frame)

		case ev, ok := <-cs.conn.Closed():
			if !ok {
				return
			}
			s.handleClose(cs, ev)
			return
		}
	}
}

func (s *Session) onConnectionTimeout(cs *connState) {
	if s.activeConn() != cs {
		return
	}
	if s.Status() != Connecting && s.Status() != Handshaking {
		return
	}
	s.log.Warn().Str("conn_id", cs.connID).Msg("connection timed out before handshake completed")
	s.teardown(cs, disconnectOptions{reconnect: true, err: fmt.Errorf("shardcore: connection timed out")})
}

// disconnectOptions parameterizes teardown, the session's single
// cancellation primitive.
type disconnectOptions struct {
	reconnect   bool
	err         error
	graceful    bool // send a clean 1000 close instead of terminating
	dropSession bool
	dropSeq     bool
}

// Disconnect is the public API for voluntarily ending the session. It
// always performs a graceful close and does not reconnect unless
// Config.AutoReconnect and reconnect are both true.
func (s *Session) Disconnect(reconnect bool) {
	cs := s.activeConn()
	if cs == nil {
		return
	}
	s.teardown(cs, disconnectOptions{reconnect: reconnect, graceful: true})
}

// teardown is the session's single cancellation primitive: clear the heartbeat timer,
// stop the ready orchestrator's timer, detach this connState so it
// cannot re-enter, close or terminate the socket, drop bucket work, and
// emit exactly one disconnect signal. Reconnect, if wanted, is armed by
// a timer rather than direct recursion.
func (s *Session) teardown(cs *connState, opts disconnectOptions) {
	cs.closedOnce.Do(func() {
		if cs.connTimer != nil {
			cs.connTimer.Stop()
		}
		cs.hb.Stop()
		s.readyOrch.Stop()

		s.conn.CompareAndSwap(cs, nil)
		cs.cancel()

		code := 1000
		if !opts.graceful {
			code = 1001
		}
		_ = cs.conn.Close(code, "", opts.graceful)

		s.globalBucket.Close()
		s.presenceBucket.Close()

		s.mu.Lock()
		if opts.dropSession {
			s.sessionID = ""
			s.resumeGatewayURL = ""
		}
		if opts.dropSeq {
			s.seq.Store(0)
		}
		s.mu.Unlock()

		s.setStatus(Disconnected)

		s.log.Info().Str("conn_id", cs.connID).Bool("reconnect", opts.reconnect).Err(opts.err).Msg("disconnect")

		if s.cfg.Handlers.OnDisconnect != nil {
			s.cfg.Handlers.OnDisconnect(opts.err)
		}

		isFatal := !opts.reconnect
		if isFatal {
			s.hardReset()
			return
		}

		if s.cfg.AutoReconnect {
			s.armReconnect()
		}
	})
}

// hardReset is invoked after a non-reconnecting disconnect:
// zero seq, forget session_id, reset reconnect interval, zero attempt
// counters, refresh presence from client defaults.
func (s *Session) hardReset() {
	s.mu.Lock()
	s.sessionID = ""
	s.resumeGatewayURL = ""
	s.serverTrace = nil
	s.presence = s.cfg.DefaultPresence.clone()
	s.connectAttempts = 0
	s.reconnectIntervalMs = reconnectMinMs
	s.mu.Unlock()
	s.seq.Store(0)
}

// armReconnect schedules the next Connect at the current jittered
// backoff, then advances the backoff for the attempt after that:
// reconnect_interval_ms *= uniform[1,3), rounded, capped at 30000.
func (s *Session) armReconnect() {
	s.mu.Lock()
	delay := s.reconnectIntervalMs
	factor := 1 + rand.Float64()*2 // uniform in [1, 3)
	next := int(float64(delay)*factor + 0.5)
	if next > reconnectMaxMs {
		next = reconnectMaxMs
	}
	s.reconnectIntervalMs = next
	s.mu.Unlock()

	s.log.Debug().Int("delay_ms", delay).Msg("reconnect armed")

	time.AfterFunc(time.Duration(delay)*time.Millisecond, func() {
		if err := s.Connect(context.Background()); err != nil {
			s.log.Warn().Err(err).Msg("reconnect attempt failed to dial")
		}
	})
}

// sendHeartbeat is the heartbeat.Sender the driver calls on each tick.
func (s *Session) sendHeartbeat(seq int64) error {
	var seqPtr *int64
	if seq != 0 {
		seqPtr = &seq
	}
	s.send(opcode.Heartbeat, seqPtr, true)
	return nil
}

// onHeartbeatMissed is the heartbeat.MissHandler: the driver itself
// never closes the socket, so the session does it here, reconnecting
// with the existing session identity intact.
func (s *Session) onHeartbeatMissed() {
	cs := s.activeConn()
	if cs == nil {
		return
	}
	s.log.Warn().Str("conn_id", cs.connID).Msg("heartbeat ack missed, reconnecting")
	s.teardown(cs, disconnectOptions{reconnect: true, err: ErrHeartbeatMissed})
}

func (s *Session) emitError(err error) {
	if s.cfg.Handlers.OnError != nil {
		s.cfg.Handlers.OnError(err)
	}
}

func (s *Session) emitWarn(msg string) {
	s.log.Warn().Msg(msg)
	if s.cfg.Handlers.OnWarn != nil {
		s.cfg.Handlers.OnWarn(msg)
	}
}

func (s *Session) emitUnknown(u sink.Unknown) {
	if s.cfg.Handlers.OnUnknown != nil {
		s.cfg.Handlers.OnUnknown(u)
	}
}
