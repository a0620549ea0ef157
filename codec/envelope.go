// Package codec implements the frame codec: decompression
// of inbound binary gateway frames and encode/decode of the wire
// envelope, in either of two interchangeable payload formats.
package codec

// Envelope is the wire shape every gateway frame decodes to, whichever
// payload format is in use. D is left in the codec's native
// encoding so a caller decodes it a second time against a concrete
// event type via the same PayloadCodec's DecodePayload.
type Envelope struct {
	Op int
	D  []byte
	S  *uint64
	T  *string
}

// PayloadCodec encodes and decodes envelopes in one wire format. Two
// implementations exist: JSON (always available) and msgpack, a more
// compact binary envelope codec when the host opts in. The choice is
// made at session init and is sticky for the session's lifetime.
type PayloadCodec interface {
	// Name identifies the codec for logging ("json" or "msgpack").
	Name() string
	// Encode serializes op/payload into a wire envelope body.
	Encode(op int, payload any) ([]byte, error)
	// Decode parses a decompressed frame body into an Envelope.
	Decode(frame []byte) (Envelope, error)
	// DecodePayload unmarshals an Envelope's D into target, using this
	// codec's native format.
	DecodePayload(d []byte, target any) error
	// BinaryFrames reports the WebSocket frame type this codec
	// expects to send on the wire: true for binary, false for text.
	BinaryFrames() bool
}
