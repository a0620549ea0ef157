package shardcore

import (
	"context"
	"math/rand"
	"strconv"
	"time"

	"github.com/duskline/shardcore/closecode"
	"github.com/duskline/shardcore/codec"
	"github.com/duskline/shardcore/opcode"
	"github.com/duskline/shardcore/sink"
	"github.com/duskline/shardcore/transport"
)

// handleFrame is the inbound pipeline for one raw frame off the socket:
// inflate it if compression is enabled, decode the envelope, update the
// sequence counter, and classify by op.
func (s *Session) handleFrame(cs *connState, frame []byte) {
	if s.cfg.Handlers.OnRawWS != nil {
		s.cfg.Handlers.OnRawWS(frame)
	}

	body := frame
	if cs.inflater != nil {
		out, ok, err := cs.inflater.Push(frame)
		if err != nil {
			// A broken compressed stream cannot recover on this socket.
			s.emitError(&DecodeError{Err: err})
			s.teardown(cs, disconnectOptions{reconnect: true, err: err})
			return
		}
		if !ok {
			// Not yet at a Z_SYNC_FLUSH boundary; wait for more frames.
			return
		}
		body = out
	}

	env, err := s.payloadCodec.Decode(body)
	if err != nil {
		s.emitError(&DecodeError{Err: err})
		return
	}

	s.updateSeq(env.S)

	switch env.Op {
	case opcode.Hello:
		s.handleHello(cs, env)
	case opcode.Heartbeat:
		cs.hb.ServerRequested()
	case opcode.HeartbeatACK:
		cs.hb.Ack()
	case opcode.Reconnect:
		s.log.Info().Str("conn_id", cs.connID).Msg("server requested reconnect")
		s.teardown(cs, disconnectOptions{reconnect: true, err: nil})
	case opcode.InvalidSession:
		s.handleInvalidSession(cs, env)
	case opcode.Dispatch:
		s.handleDispatch(cs, env)
	default:
		s.dispatchUnknownOp(env.Op, env.D)
	}
}

// updateSeq applies the seq-update policy: assign whenever the envelope
// carries one, and warn (never reject) on a non-consecutive jump while
// the socket is live and not resuming, since a resume legitimately
// replays a seq jump that a fresh session's gap would not.
func (s *Session) updateSeq(seq *uint64) {
	if seq == nil {
		return
	}
	prev := s.seq.Load()
	if prev != 0 && s.Status() != Resuming && *seq != prev+1 {
		s.emitWarn("sequence gap: expected " + strconv.FormatUint(prev+1, 10) + ", got " + strconv.FormatUint(*seq, 10))
	}
	s.seq.Store(*seq)
}

// dispatchUnknownOp surfaces an opcode this session doesn't recognize
// through the same Unknown path a dispatch with an unrecognized "t"
// uses, rather than only logging it.
func (s *Session) dispatchUnknownOp(op int, data []byte) {
	s.log.Debug().Int("op", op).Msg("unknown opcode")
	u := sink.Unknown{Name: "op:" + strconv.Itoa(op), Data: data}
	s.cfg.Sink.DispatchUnknown(u)
	s.emitUnknown(u)
}

// handleHello drives the initial handshake: start the heartbeat driver
// at the server-given interval, then send IDENTIFY or RESUME depending
// on whether a resumable session is on hand.
func (s *Session) handleHello(cs *connState, env codec.Envelope) {
	var hello helloPayload
	if err := s.payloadCodec.DecodePayload(env.D, &hello); err != nil {
		s.emitError(&DecodeError{Err: err})
		return
	}

	cs.connTimer.Stop()

	if s.cfg.Handlers.OnHello != nil {
		s.cfg.Handlers.OnHello(hello.Trace)
	}

	runCtx := context.Background()
	cs.hb.Start(runCtx, time.Duration(hello.HeartbeatInterval)*time.Millisecond)

	s.mu.RLock()
	sessionID := s.sessionID
	s.mu.RUnlock()

	if sessionID != "" {
		s.setStatus(Resuming)
		s.sendResume(sessionID)
		return
	}

	s.setStatus(Handshaking)
	s.sendIdentify()
}

// handleInvalidSession applies the resumable flag the gateway sends
// alongside op 9: true means the current session_id/seq may still be
// resumed after a short randomized delay; false means both must be
// dropped before the next identify.
func (s *Session) handleInvalidSession(cs *connState, env codec.Envelope) {
	var resumable bool
	_ = s.payloadCodec.DecodePayload(env.D, &resumable)

	s.log.Warn().Bool("resumable", resumable).Msg("invalid session")

	delay := time.Duration(1+rand.Intn(4)) * time.Second
	time.Sleep(delay)

	opts := disconnectOptions{reconnect: true}
	if !resumable {
		opts.dropSession = true
		opts.dropSeq = true
	}
	s.teardown(cs, opts)
}

// handleDispatch classifies a Dispatch envelope by its "t" name,
// updates internal state for the names the core itself cares about
// (READY/RESUMED/GUILD_CREATE/GUILD_MEMBERS_CHUNK), and forwards every
// event other than READY and RESUMED to the sink once the session is
// ready. A
// "t" that isn't one of the known Name constants is routed to
// DispatchUnknown instead of being forwarded as an ordinary event.
func (s *Session) handleDispatch(cs *connState, env codec.Envelope) {
	if env.T == nil {
		return
	}
	name := sink.Name(*env.T)

	if !sink.IsKnown(name) {
		s.log.Debug().Str("t", *env.T).Msg("unknown dispatch event")
		u := sink.Unknown{Name: *env.T, Data: env.D}
		s.cfg.Sink.DispatchUnknown(u)
		s.emitUnknown(u)
		return
	}

	switch name {
	case sink.Ready:
		s.handleReady(cs, env)
		return
	case sink.Resumed:
		s.handleResumed()
		return
	case sink.GuildCreate:
		s.handleGuildCreate(env)
	case sink.GuildMembersChunk:
		s.handleMembersChunk(env)
	}

	if !s.IsReady() {
		return
	}
	if s.cfg.DisableEvents[name] {
		return
	}
	s.cfg.Sink.Dispatch(sink.Event{Name: name, Seq: s.Seq(), Data: env.D})
}

func (s *Session) handleGuildCreate(env codec.Envelope) {
	var gc guildCreatePayload
	if err := s.payloadCodec.DecodePayload(env.D, &gc); err != nil {
		s.emitError(&DecodeError{Err: err})
		return
	}
	wasUnavailable := s.popUnavailable(gc.ID)
	s.readyOrch.GuildCreate(wasUnavailable)
	if wasUnavailable && !s.cfg.IsBot {
		s.guildSync.Enqueue(gc.ID)
	}
	if s.cfg.GetAllUsers {
		s.memberFetch.Enqueue(gc.ID)
	}
}

func (s *Session) handleMembersChunk(env codec.Envelope) {
	var mc membersChunkPayload
	if err := s.payloadCodec.DecodePayload(env.D, &mc); err != nil {
		s.emitError(&DecodeError{Err: err})
		return
	}
	s.readyOrch.MembersChunk(mc.GuildID)
}

// handleClose runs once per connection when the socket ends, per the
// close-code policy table.
func (s *Session) handleClose(cs *connState, ev transport.CloseEvent) {
	c := closecode.Classify(ev.Code, ev.Reason, ev.WasClean)

	s.log.Info().Str("conn_id", cs.connID).Int("code", ev.Code).Str("action", c.Action.String()).Msg("socket closed")

	if closecode.IsFatal(c) {
		s.teardown(cs, disconnectOptions{reconnect: false, err: &FatalCloseError{Code: ev.Code, Reason: ev.Reason}})
		return
	}

	if c.Err != nil {
		s.emitError(c.Err)
	}

	s.teardown(cs, disconnectOptions{
		reconnect:   true,
		err:         c.Err,
		dropSession: c.DropSession,
		dropSeq:     c.DropSeq,
	})
}
