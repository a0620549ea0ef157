package codec

import "encoding/json"

// jsonCodec is the textual payload codec and the default; it is one of
// two sticky choices.
type jsonCodec struct{}

// JSON returns the textual PayloadCodec.
func JSON() PayloadCodec { return jsonCodec{} }

func (jsonCodec) Name() string { return "json" }

func (jsonCodec) BinaryFrames() bool { return false }

type wireEnvelope struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d,omitempty"`
	S  *uint64         `json:"s,omitempty"`
	T  *string         `json:"t,omitempty"`
}

func (jsonCodec) Encode(op int, payload any) ([]byte, error) {
	d, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(wireEnvelope{Op: op, D: d})
}

func (jsonCodec) Decode(frame []byte) (Envelope, error) {
	var w wireEnvelope
	if err := json.Unmarshal(frame, &w); err != nil {
		return Envelope{}, err
	}
	return Envelope{Op: w.Op, D: []byte(w.D), S: w.S, T: w.T}, nil
}

func (jsonCodec) DecodePayload(d []byte, target any) error {
	if len(d) == 0 {
		return nil
	}
	return json.Unmarshal(d, target)
}
