// Package ready implements the ready orchestrator: it
// tracks outstanding unavailable guilds, unsynced guilds (non-bot
// sessions), and pending member-chunk requests, and emits readiness
// exactly once per session when all three are drained and both backlog
// queues are empty.
package ready

import (
	"sync"
	"time"
)

// Queue is the subset of backlog.Batcher the orchestrator needs to
// check before it is allowed to call a session ready: any non-empty
// queue is flushed before the ready transition is permitted.
type Queue interface {
	Empty() bool
	Flush()
}

// Orchestrator gates the ready signal behind three counters —
// unavailable guilds, unsynced guilds, and pending member-chunk
// requests — plus the two backlog queues. It emits its callback
// exactly once per session.
type Orchestrator struct {
	mu sync.Mutex

	unavailableGuilds int
	unsyncedGuilds    int
	pendingChunks     map[string]int // guild_id -> remaining chunks

	guildCreateTimeout time.Duration
	timer              *time.Timer
	timedOut           bool

	queues []Queue

	onReady   func()
	readyDone bool
}

// New builds an Orchestrator. guildCreateTimeout defaults to 2000ms if
// zero.
func New(guildCreateTimeout time.Duration, onReady func(), queues ...Queue) *Orchestrator {
	if guildCreateTimeout <= 0 {
		guildCreateTimeout = 2000 * time.Millisecond
	}
	return &Orchestrator{
		guildCreateTimeout: guildCreateTimeout,
		pendingChunks:      make(map[string]int),
		queues:             queues,
		onReady:            onReady,
	}
}

// Begin resets the orchestrator for a new READY payload: unavailableCount
// initial unavailable guilds, and isBot controlling whether a legacy
// per-guild sync is expected for each of them (non-bot sessions only).
func (o *Orchestrator) Begin(unavailableCount int, isBot bool, syncGuild func(guildID string), unavailableGuildIDs []string) {
	o.mu.Lock()
	o.readyDone = false
	o.timedOut = false
	o.unavailableGuilds = unavailableCount
	o.unsyncedGuilds = 0
	o.pendingChunks = make(map[string]int)
	if !isBot {
		o.unsyncedGuilds = len(unavailableGuildIDs)
	}
	o.mu.Unlock()

	// syncGuild may flush a full batch, which calls back into
	// GuildSynced, so it runs without mu held.
	if !isBot && syncGuild != nil {
		for _, id := range unavailableGuildIDs {
			syncGuild(id)
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.armTimeoutLocked()
	o.checkReadyLocked()
}

// GuildCreate is called for every GUILD_CREATE dispatch. wasUnavailable
// must be true only when this guild was one of the initially-unavailable
// guilds named in READY; it rearms the guildCreateTimeout and advances
// the unavailable counter.
func (o *Orchestrator) GuildCreate(wasUnavailable bool) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !wasUnavailable {
		return
	}
	if o.unavailableGuilds > 0 {
		o.unavailableGuilds--
	}
	o.armTimeoutLocked()
	o.checkReadyLocked()
}

// GuildSynced decrements the unsynced-guild counter after a legacy
// per-guild sync completes.
func (o *Orchestrator) GuildSynced() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.unsyncedGuilds > 0 {
		o.unsyncedGuilds--
	}
	o.checkReadyLocked()
}

// RequestMemberChunk registers that count member chunks are expected
// for guildID, incrementing if a request for that guild is already
// outstanding.
func (o *Orchestrator) RequestMemberChunk(guildID string, count int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pendingChunks[guildID] += count
}

// MembersChunk decrements the outstanding chunk count for guildID on
// each GUILD_MEMBERS_CHUNK, removing the entry once it reaches zero.
func (o *Orchestrator) MembersChunk(guildID string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	remaining, ok := o.pendingChunks[guildID]
	if !ok {
		return
	}
	remaining--
	if remaining <= 0 {
		delete(o.pendingChunks, guildID)
	} else {
		o.pendingChunks[guildID] = remaining
	}
	o.checkReadyLocked()
}

// armTimeoutLocked rearms the guildCreateTimeout; expiry forces a ready
// check regardless of whether the counters have drained.
func (o *Orchestrator) armTimeoutLocked() {
	if o.timer != nil {
		o.timer.Stop()
	}
	o.timedOut = false
	o.timer = time.AfterFunc(o.guildCreateTimeout, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		o.timedOut = true
		o.checkReadyLocked()
	})
}

// checkReadyLocked emits onReady exactly once, once the three counters
// are drained and both backlog queues are empty.
func (o *Orchestrator) checkReadyLocked() {
	if o.readyDone {
		return
	}

	drained := o.unavailableGuilds == 0 && o.unsyncedGuilds == 0 && len(o.pendingChunks) == 0

	if !drained && !o.timedOut {
		return
	}

	o.readyDone = true
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}

	// A queue flush calls back into GuildSynced/RequestMemberChunk, so
	// the flushes and onReady run without mu held; readyDone is already
	// set, so any check they trigger returns at once. Every caller calls
	// checkReadyLocked last, with mu held, and mu is held again on return.
	o.mu.Unlock()
	defer o.mu.Lock()
	for _, q := range o.queues {
		if !q.Empty() {
			q.Flush()
		}
	}
	if o.onReady != nil {
		o.onReady()
	}
}

// Ready reports whether this session has already emitted its ready
// signal.
func (o *Orchestrator) Ready() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.readyDone
}

// Stop cancels the pending guildCreateTimeout, if any. Call this when
// the socket is torn down so a stale timer cannot fire into a dead
// session.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.timer != nil {
		o.timer.Stop()
		o.timer = nil
	}
}
