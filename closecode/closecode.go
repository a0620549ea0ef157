// Package closecode classifies WebSocket close codes into a retry
// policy,.
package closecode

import "fmt"

// Action is what the session state machine should do after a socket
// close with a given code.
type Action int

const (
	// Retry reconnects and resumes (or re-identifies) with the
	// existing session, if any.
	Retry Action = iota
	// RetryFreshSession reconnects but drops session_id and/or seq
	// before the next identify/resume attempt.
	RetryFreshSession
	// Fatal disconnects without rearming the reconnect timer; the
	// caller must explicitly call connect() again.
	Fatal
)

func (a Action) String() string {
	switch a {
	case Retry:
		return "retry"
	case RetryFreshSession:
		return "retry-fresh-session"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Classification is the result of classifying a close code: whether to
// retry, the human-readable error that goes with it, and whether the
// session identity (session_id) and/or the sequence counter must be
// discarded before the next attempt.
type Classification struct {
	Action      Action
	Err         error
	DropSession bool
	DropSeq     bool
}

// Well-known gateway close codes.
const (
	CloseNormal            = 1000
	CloseAbnormal          = 1006
	CloseInvalidOp         = 4001
	CloseInvalidMessage    = 4002
	CloseNotAuthenticated  = 4003
	CloseAuthFailed        = 4004
	CloseAlreadyAuthed     = 4005
	CloseInvalidSession1   = 4006
	CloseInvalidSequence   = 4007
	CloseRateLimited       = 4008
	CloseInvalidSession2   = 4009
	CloseInvalidShardKey   = 4010
	CloseTooManyGuilds     = 4011
)

// Classify maps a numeric close code and optional close reason to the
// action the session should take.
func Classify(code int, reason string, wasClean bool) Classification {
	switch code {
	case CloseNormal:
		return Classification{Action: Retry}
	case CloseAbnormal:
		return Classification{Action: Retry, Err: fmt.Errorf("connection reset by peer")}
	case CloseInvalidOp:
		return Classification{Action: Retry, Err: fmt.Errorf("invalid op")}
	case CloseInvalidMessage:
		return Classification{Action: Retry, Err: fmt.Errorf("invalid message")}
	case CloseNotAuthenticated:
		return Classification{Action: Retry, Err: fmt.Errorf("not authenticated")}
	case CloseAuthFailed:
		return Classification{Action: Fatal, Err: fmt.Errorf("authentication failed")}
	case CloseAlreadyAuthed:
		return Classification{Action: Retry, Err: fmt.Errorf("already authenticated")}
	case CloseInvalidSession1, CloseInvalidSession2:
		return Classification{Action: RetryFreshSession, Err: fmt.Errorf("invalid session"), DropSession: true, DropSeq: true}
	case CloseInvalidSequence:
		return Classification{Action: RetryFreshSession, Err: fmt.Errorf("invalid sequence"), DropSeq: true}
	case CloseRateLimited:
		return Classification{Action: Retry, Err: fmt.Errorf("rate limited")}
	case CloseInvalidShardKey:
		return Classification{Action: Fatal, Err: fmt.Errorf("invalid shard key")}
	case CloseTooManyGuilds:
		return Classification{Action: Fatal, Err: fmt.Errorf("too many guilds")}
	default:
		if wasClean {
			return Classification{Action: Retry}
		}
		if reason != "" {
			return Classification{Action: Retry, Err: fmt.Errorf("%d: %s", code, reason)}
		}
		return Classification{Action: Retry, Err: fmt.Errorf("%d: connection closed", code)}
	}
}

// IsFatal is a convenience predicate used by the session state machine.
func IsFatal(c Classification) bool {
	return c.Action == Fatal
}
