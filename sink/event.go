// Package sink defines the domain sink collaborator interface that the
// core hands decoded dispatch events to. The core never caches
// guild/channel/member/user state itself; a sink implementation owns
// that.
package sink

import "encoding/json"

// Name is one of the gateway's dispatch event names carried in an
// envelope's "t" field.
type Name string

// The dispatch event names enumerated here are a fixed set of known
// names, with Unknown as the catch-all variant for anything the
// gateway sends that this list hasn't named yet.
const (
	Ready                   Name = "READY"
	Resumed                 Name = "RESUMED"
	GuildCreate             Name = "GUILD_CREATE"
	GuildUpdate             Name = "GUILD_UPDATE"
	GuildDelete             Name = "GUILD_DELETE"
	GuildMemberAdd          Name = "GUILD_MEMBER_ADD"
	GuildMemberUpdate       Name = "GUILD_MEMBER_UPDATE"
	GuildMemberRemove       Name = "GUILD_MEMBER_REMOVE"
	GuildMembersChunk       Name = "GUILD_MEMBERS_CHUNK"
	GuildRoleCreate         Name = "GUILD_ROLE_CREATE"
	GuildRoleUpdate         Name = "GUILD_ROLE_UPDATE"
	GuildRoleDelete         Name = "GUILD_ROLE_DELETE"
	ChannelCreate           Name = "CHANNEL_CREATE"
	ChannelUpdate           Name = "CHANNEL_UPDATE"
	ChannelDelete           Name = "CHANNEL_DELETE"
	ChannelPinsUpdate       Name = "CHANNEL_PINS_UPDATE"
	MessageCreate           Name = "MESSAGE_CREATE"
	MessageUpdate           Name = "MESSAGE_UPDATE"
	MessageDelete           Name = "MESSAGE_DELETE"
	MessageDeleteBulk       Name = "MESSAGE_DELETE_BULK"
	MessageReactionAdd      Name = "MESSAGE_REACTION_ADD"
	MessageReactionRemove   Name = "MESSAGE_REACTION_REMOVE"
	PresenceUpdate          Name = "PRESENCE_UPDATE"
	PresencesReplace        Name = "PRESENCES_REPLACE"
	TypingStart             Name = "TYPING_START"
	UserUpdate              Name = "USER_UPDATE"
	VoiceStateUpdate        Name = "VOICE_STATE_UPDATE"
	VoiceServerUpdate       Name = "VOICE_SERVER_UPDATE"
	WebhooksUpdate          Name = "WEBHOOKS_UPDATE"
	InteractionCreate       Name = "INTERACTION_CREATE"
	ThreadCreate            Name = "THREAD_CREATE"
	ThreadUpdate            Name = "THREAD_UPDATE"
	ThreadDelete            Name = "THREAD_DELETE"
)

var known = map[Name]bool{
	Ready:                 true,
	Resumed:               true,
	GuildCreate:           true,
	GuildUpdate:           true,
	GuildDelete:           true,
	GuildMemberAdd:        true,
	GuildMemberUpdate:     true,
	GuildMemberRemove:     true,
	GuildMembersChunk:     true,
	GuildRoleCreate:       true,
	GuildRoleUpdate:       true,
	GuildRoleDelete:       true,
	ChannelCreate:         true,
	ChannelUpdate:         true,
	ChannelDelete:         true,
	ChannelPinsUpdate:     true,
	MessageCreate:         true,
	MessageUpdate:         true,
	MessageDelete:         true,
	MessageDeleteBulk:     true,
	MessageReactionAdd:    true,
	MessageReactionRemove: true,
	PresenceUpdate:        true,
	PresencesReplace:      true,
	TypingStart:           true,
	UserUpdate:            true,
	VoiceStateUpdate:      true,
	VoiceServerUpdate:     true,
	WebhooksUpdate:        true,
	InteractionCreate:     true,
	ThreadCreate:          true,
	ThreadUpdate:          true,
	ThreadDelete:          true,
}

// IsKnown reports whether name is one of the Name constants above. A
// dispatch whose "t" field doesn't match any of them must be routed to
// DispatchUnknown instead of Dispatch.
func IsKnown(name Name) bool {
	return known[name]
}

// Event is a decoded dispatch frame handed to a Sink. Data is left in
// the session's native codec encoding; callers that need a typed
// struct decode it themselves with the same PayloadCodec the session
// was configured with.
type Event struct {
	Name Name
	Seq  uint64
	Data json.RawMessage
}

// Unknown wraps an event whose name is not one of the Name constants
// above, so an unrecognized dispatch name is surfaced rather than
// discarded silently.
type Unknown struct {
	Name string
	Data json.RawMessage
}

// Sink is the collaborator interface the core calls into for every
// decoded dispatch event once the session is ready. It is
// explicitly out of the core's scope to interpret these events; a
// caching layer (guild/channel/member/user stores) implements this.
type Sink interface {
	// Dispatch is called once per decoded event whose name is not in
	// the session's disabled-events set, in wire order, after seq has
	// already been advanced to this event's value.
	Dispatch(Event)
	// DispatchUnknown is called for event names the sink hasn't been
	// told about, so nothing is silently dropped.
	DispatchUnknown(Unknown)
}

// NopSink discards every event. Useful as a default and in tests that
// only care about the session state machine.
type NopSink struct{}

func (NopSink) Dispatch(Event)          {}
func (NopSink) DispatchUnknown(Unknown) {}
