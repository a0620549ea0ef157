package shardcore

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/duskline/shardcore/codec"
	"github.com/duskline/shardcore/sink"
	"github.com/duskline/shardcore/transport"
)

// Status enumerates the session's connection lifecycle.
type Status int

const (
	Disconnected Status = iota
	Connecting
	Handshaking
	Resuming
	Ready
)

func (s Status) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Handshaking:
		return "handshaking"
	case Resuming:
		return "resuming"
	case Ready:
		return "ready"
	default:
		return "unknown"
	}
}

// GameType mirrors the presence "game.type" enum.
type GameType int

const (
	GameTypePlaying   GameType = 0
	GameTypeStreaming GameType = 1
	GameTypeListening GameType = 2
)

// Game is the optional activity portion of a Presence.
type Game struct {
	Name string   `json:"name"`
	Type GameType `json:"type"`
	URL  string   `json:"url,omitempty"`
}

// PresenceStatus is the self-presence status enum.
type PresenceStatus string

const (
	StatusOnline    PresenceStatus = "online"
	StatusIdle      PresenceStatus = "idle"
	StatusDND       PresenceStatus = "dnd"
	StatusInvisible PresenceStatus = "invisible"
	StatusOffline   PresenceStatus = "offline"
)

// Presence is the client's self-presence configuration. It is
// deep-copied from Config.DefaultPresence at hard-reset time.
type Presence struct {
	Status PresenceStatus `json:"status"`
	AFK    bool           `json:"afk"`
	Game   *Game          `json:"game"`
}

// clone returns a deep copy, since Game is a pointer.
func (p Presence) clone() Presence {
	if p.Game == nil {
		return p
	}
	g := *p.Game
	p.Game = &g
	return p
}

// Handlers are the observable signals a session emits, invoked
// synchronously from the session's own goroutine as each one occurs.
// Every field is optional; a nil handler is simply skipped.
type Handlers struct {
	OnConnect       func()
	OnDisconnect    func(err error)
	OnHello         func(trace []string)
	OnShardPreReady func()
	OnReady         func()
	OnResume        func()
	OnError         func(err error)
	OnWarn          func(msg string)
	OnDebug         func(msg string)
	OnRawWS         func(frame []byte)
	OnUnknown       func(u sink.Unknown)
}

// Config recognizes the client configuration surface.
type Config struct {
	Token      string
	GatewayURL string

	// ShardID and ShardCount identify this core's slot in a
	// multi-shard deployment; the allocator that owns many cores is
	// explicitly out of scope, but a single core still needs
	// to tell the gateway which shard it is.
	ShardID    int
	ShardCount int
	Intents    int

	AutoReconnect      bool
	Compress           bool
	PayloadCodec       string // "json" (default) or "msgpack"
	InflateStrategy    string // "streaming" (default) or "sync"
	LargeThreshold     int
	DisableEvents      map[sink.Name]bool
	ConnectionTimeout  time.Duration
	GuildCreateTimeout time.Duration
	GetAllUsers        bool
	IsBot              bool

	DefaultPresence Presence

	Dialer transport.Dialer
	Sink   sink.Sink
	// Logger receives every lifecycle narration the session emits. Nil
	// means zerolog.Nop() — silent by default, matching a library that
	// should not write to stdout unless its host opts in.
	Logger *zerolog.Logger

	Handlers Handlers
}

// applyDefaults fills in every zero-valued field with its documented
// default, the way a config struct on the ambient stack typically
// resolves optional settings once at construction time.
func (c *Config) applyDefaults() {
	if c.ConnectionTimeout == 0 {
		c.ConnectionTimeout = 15 * time.Second
	}
	if c.GuildCreateTimeout == 0 {
		c.GuildCreateTimeout = 2000 * time.Millisecond
	}
	if c.PayloadCodec == "" {
		c.PayloadCodec = "json"
	}
	if c.InflateStrategy == "" {
		c.InflateStrategy = "streaming"
	}
	if c.Dialer == nil {
		c.Dialer = transport.NewGorillaDialer()
	}
	if c.Sink == nil {
		c.Sink = sink.NopSink{}
	}
	if c.Logger == nil {
		nop := zerolog.Nop()
		c.Logger = &nop
	}
	if c.DefaultPresence.Status == "" {
		c.DefaultPresence.Status = StatusOnline
	}
	if c.ShardCount == 0 {
		c.ShardCount = 1
	}
}

// resolveCodec returns the PayloadCodec Config names.
func (c *Config) resolveCodec() codec.PayloadCodec {
	if c.PayloadCodec == "msgpack" {
		return codec.Msgpack()
	}
	return codec.JSON()
}

// resolveInflater returns a fresh Inflater for a new connection attempt
// when Compress is enabled.
func (c *Config) resolveInflater() codec.Inflater {
	if c.InflateStrategy == "sync" {
		return codec.NewSyncInflater()
	}
	return codec.NewStreamingInflater()
}
