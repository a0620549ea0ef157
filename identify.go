package shardcore

import (
	"runtime"

	"github.com/duskline/shardcore/codec"
	"github.com/duskline/shardcore/opcode"
)

// sendIdentify builds and sends IDENTIFY, deriving the connection
// properties from runtime.GOOS and the module's own name so the
// client fingerprint stays accurate across platforms.
func (s *Session) sendIdentify() {
	var shard *[2]int
	if s.cfg.ShardCount > 1 {
		shard = &[2]int{s.cfg.ShardID, s.cfg.ShardCount}
	}

	s.mu.RLock()
	presence := s.presence.clone()
	s.mu.RUnlock()

	payload := identifyPayload{
		Token:          s.cfg.Token,
		V:              6,
		Compress:       false, // transport-level compression is handled by the inflater, not this flag
		LargeThreshold: s.cfg.LargeThreshold,
		Properties: identifyProps{
			OS:      runtime.GOOS,
			Browser: "shardcore",
			Device:  "shardcore",
		},
		Shard:    shard,
		Presence: &presence,
		Intents:  s.cfg.Intents,
	}
	if payload.LargeThreshold == 0 {
		payload.LargeThreshold = 250
	}

	s.send(opcode.Identify, payload, true)
}

// sendResume builds and sends RESUME against the current sequence
// counter.
func (s *Session) sendResume(sessionID string) {
	s.send(opcode.Resume, resumePayload{
		Token:     s.cfg.Token,
		SessionID: sessionID,
		Seq:       s.seq.Load(),
	}, true)
}

// handleReady processes the READY dispatch: capture the resumable
// session identity, seed the ready orchestrator with the unavailable
// guild set, and fire the pre-ready callback. The orchestrator's own
// onReady callback (onReadyDrained) is what ultimately flips Status to
// Ready.
func (s *Session) handleReady(cs *connState, env codec.Envelope) {
	var rp readyPayload
	if err := s.payloadCodec.DecodePayload(env.D, &rp); err != nil {
		s.emitError(&DecodeError{Err: err})
		return
	}

	s.mu.Lock()
	s.sessionID = rp.SessionID
	s.resumeGatewayURL = rp.ResumeGatewayURL
	s.serverTrace = rp.Trace
	s.connectAttempts = 0
	s.mu.Unlock()

	ids := make([]string, 0, len(rp.Guilds))
	s.unavailMu.Lock()
	s.unavailGuilds = make(map[string]bool, len(rp.Guilds))
	for _, g := range rp.Guilds {
		if g.Unavailable {
			s.unavailGuilds[g.ID] = true
			ids = append(ids, g.ID)
		}
	}
	s.unavailMu.Unlock()

	if s.cfg.Handlers.OnShardPreReady != nil {
		s.cfg.Handlers.OnShardPreReady()
	}

	syncFn := func(guildID string) { s.guildSync.Enqueue(guildID) }
	s.readyOrch.Begin(len(ids), s.cfg.IsBot, syncFn, ids)
}

// handleResumed processes RESUMED: a resume always short-circuits
// straight to Ready without re-running the orchestrator, since the
// gateway only confirms a resume once every missed event has been
// replayed.
func (s *Session) handleResumed() {
	s.mu.Lock()
	s.connectAttempts = 0
	s.mu.Unlock()

	s.setStatus(Ready)
	if s.cfg.Handlers.OnResume != nil {
		s.cfg.Handlers.OnResume()
	}
}

// popUnavailable reports whether guildID was one of the unavailable
// guilds named in READY, removing it from the set either way so a
// later GUILD_DELETE/GUILD_CREATE pair for the same id isn't
// double-counted.
func (s *Session) popUnavailable(guildID string) bool {
	s.unavailMu.Lock()
	defer s.unavailMu.Unlock()
	if s.unavailGuilds == nil {
		return false
	}
	was := s.unavailGuilds[guildID]
	delete(s.unavailGuilds, guildID)
	return was
}

// onReadyDrained is the ready orchestrator's callback: flip Status to
// Ready and notify the host.
func (s *Session) onReadyDrained() {
	s.setStatus(Ready)
	s.log.Info().Str("session_id", s.SessionID()).Msg("ready")
	if s.cfg.Handlers.OnReady != nil {
		s.cfg.Handlers.OnReady()
	}
}

// flushGuildSync sends a batch of legacy per-guild sync ids as one
// SyncGuild frame, for non-bot sessions only.
func (s *Session) flushGuildSync(ids []string) {
	if len(ids) == 0 {
		return
	}
	s.send(opcode.SyncGuild, guildSyncPayload(ids), false)
	for range ids {
		s.readyOrch.GuildSynced()
	}
}

// flushMemberFetch sends a batch of guild ids as one GetGuildMembers
// frame and registers the expected chunk count with the orchestrator.
func (s *Session) flushMemberFetch(ids []string) {
	if len(ids) == 0 {
		return
	}
	s.send(opcode.GetGuildMembers, requestGuildMembersPayload{GuildID: ids}, false)
	for _, id := range ids {
		s.readyOrch.RequestMemberChunk(id, 1)
	}
}
