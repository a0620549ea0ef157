package shardcore

import (
	"context"

	"github.com/duskline/shardcore/opcode"
)

// send is the outbound multiplexer: encode the envelope, admit it
// through the global bucket (and, for StatusUpdate, the presence
// bucket first), then write it to the socket. If the socket has since
// been torn down, the frame is silently dropped rather than sent on a
// stale connection.
//
// priorityBypass marks HEARTBEAT/IDENTIFY/RESUME frames; it is
// documentation only here — every frame still observes the global
// bucket, since the gateway itself does not distinguish them.
func (s *Session) send(op int, payload any, priorityBypass bool) {
	cs := s.activeConn()
	if cs == nil {
		s.emitError(ErrNotConnected)
		return
	}

	body, err := s.payloadCodec.Encode(op, payload)
	if err != nil {
		s.emitError(&DecodeError{Err: err})
		return
	}

	if op == opcode.StatusUpdate {
		s.presenceBucket.Queue(func() {
			s.globalBucket.Queue(func() {
				s.sendFrame(cs, body)
			})
		})
		return
	}

	s.globalBucket.Queue(func() {
		s.sendFrame(cs, body)
	})
}

func (s *Session) sendFrame(cs *connState, body []byte) {
	if s.activeConn() != cs {
		return
	}
	if err := cs.conn.Send(context.Background(), body); err != nil {
		s.log.Debug().Err(err).Msg("send failed")
	}
}
