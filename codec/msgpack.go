package codec

import "github.com/vmihailenco/msgpack/v5"

// msgpackCodec is a compact binary envelope codec, used when the
// environment enables it (Config.PayloadCodec == "msgpack"). It
// yields the same {op, d, s?, t?} envelope shape as JSON but on the
// wire as binary frames.
type msgpackCodec struct{}

// Msgpack returns the compact binary PayloadCodec.
func Msgpack() PayloadCodec { return msgpackCodec{} }

func (msgpackCodec) Name() string { return "msgpack" }

func (msgpackCodec) BinaryFrames() bool { return true }

type wireEnvelopeMP struct {
	Op int     `msgpack:"op"`
	D  []byte  `msgpack:"d,omitempty"`
	S  *uint64 `msgpack:"s,omitempty"`
	T  *string `msgpack:"t,omitempty"`
}

func (msgpackCodec) Encode(op int, payload any) ([]byte, error) {
	d, err := msgpack.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(wireEnvelopeMP{Op: op, D: d})
}

func (msgpackCodec) Decode(frame []byte) (Envelope, error) {
	var w wireEnvelopeMP
	if err := msgpack.Unmarshal(frame, &w); err != nil {
		return Envelope{}, err
	}
	return Envelope{Op: w.Op, D: w.D, S: w.S, T: w.T}, nil
}

func (msgpackCodec) DecodePayload(d []byte, target any) error {
	if len(d) == 0 {
		return nil
	}
	return msgpack.Unmarshal(d, target)
}
