package shardcore

import (
	"github.com/duskline/shardcore/opcode"
)

// UpdatePresence changes the client's self-presence and, if the
// session is connected, sends STATUS_UPDATE immediately through the
// presence bucket. The new presence lasts until the caller changes it
// again or a hard reset replaces it with Config.DefaultPresence.
func (s *Session) UpdatePresence(p Presence) {
	s.mu.Lock()
	s.presence = p.clone()
	s.mu.Unlock()

	if s.activeConn() == nil {
		return
	}

	var since *int64
	var game *Game
	if p.Game != nil {
		g := *p.Game
		game = &g
	}

	s.send(opcode.StatusUpdate, statusUpdatePayload{
		Since:  since,
		Game:   game,
		Status: string(p.Status),
		AFK:    p.AFK,
	}, false)
}

// RequestGuildMembers enqueues a member-fetch request for guildID
// against the bounded batcher, registering the expected chunk count
// with the ready orchestrator so a request made before READY still
// gates readiness correctly. A request with a query or a limit does not
// go through the batcher: it is sent at once as its own frame.
func (s *Session) RequestGuildMembers(guildID, query string, limit int) {
	if query != "" || limit != 0 {
		s.send(opcode.GetGuildMembers, requestGuildMembersPayload{
			GuildID: []string{guildID},
			Query:   query,
			Limit:   limit,
		}, false)
		s.readyOrch.RequestMemberChunk(guildID, 1)
		return
	}
	s.memberFetch.Enqueue(guildID)
}
