package codec

import (
	"bytes"
	"compress/zlib"
	"testing"
)

// compressWithFlushes zlib-compresses each message in msgs independently
// flushed (Z_SYNC_FLUSH semantics via Flush()), concatenated into one
// continuous stream, returning the raw bytes of each flushed chunk so
// tests can feed them to an Inflater message-by-message.
func compressWithFlushes(t *testing.T, msgs []string) [][]byte {
	t.Helper()

	var stream bytes.Buffer
	w := zlib.NewWriter(&stream)

	chunks := make([][]byte, 0, len(msgs))
	prevLen := 0
	for _, m := range msgs {
		if _, err := w.Write([]byte(m)); err != nil {
			t.Fatalf("write: %v", err)
		}
		if err := w.Flush(); err != nil {
			t.Fatalf("flush: %v", err)
		}
		full := stream.Bytes()
		chunk := append([]byte{}, full[prevLen:]...)
		chunks = append(chunks, chunk)
		prevLen = len(full)
	}
	return chunks
}

func TestStreamingInflaterRoundTrip(t *testing.T) {
	msgs := []string{`{"op":10,"d":{"heartbeat_interval":41250}}`, `{"op":0,"t":"READY","s":1,"d":{}}`}
	chunks := compressWithFlushes(t, msgs)

	inf := NewStreamingInflater()
	for i, c := range chunks {
		payload, ok, err := inf.Push(c)
		if err != nil {
			t.Fatalf("push %d: %v", i, err)
		}
		if !ok {
			t.Fatalf("push %d: expected flush, got none", i)
		}
		if string(payload) != msgs[i] {
			t.Fatalf("push %d: got %q want %q", i, payload, msgs[i])
		}
	}
}

func TestStreamingInflaterArbitraryChunkBoundaries(t *testing.T) {
	msgs := []string{`{"op":0,"t":"GUILD_CREATE","s":2,"d":{"id":"1"}}`}
	chunks := compressWithFlushes(t, msgs)
	whole := chunks[0]

	// Split the single flushed chunk into two arbitrary sub-chunks; only
	// the final sub-chunk carries the sentinel, so no flush should be
	// reported until it arrives.
	split := len(whole) / 2
	if split == 0 {
		split = 1
	}

	inf := NewStreamingInflater()
	_, ok, err := inf.Push(whole[:split])
	if err != nil {
		t.Fatalf("push first half: %v", err)
	}
	if ok {
		t.Fatalf("unexpected flush before sentinel arrived")
	}

	payload, ok, err := inf.Push(whole[split:])
	if err != nil {
		t.Fatalf("push second half: %v", err)
	}
	if !ok {
		t.Fatalf("expected flush on second half")
	}
	if string(payload) != msgs[0] {
		t.Fatalf("got %q want %q", payload, msgs[0])
	}
}

func TestSyncInflaterRoundTrip(t *testing.T) {
	msgs := []string{`{"op":11}`}
	chunks := compressWithFlushes(t, msgs)

	inf := NewSyncInflater()
	payload, ok, err := inf.Push(chunks[0])
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if !ok || string(payload) != msgs[0] {
		t.Fatalf("got ok=%v payload=%q", ok, payload)
	}
}

func TestHasFlushSentinel(t *testing.T) {
	cases := []struct {
		name string
		b    []byte
		want bool
	}{
		{"too short", []byte{0x00, 0xff}, false},
		{"no sentinel", []byte{1, 2, 3, 4, 5}, false},
		{"exact sentinel", flushSentinel, true},
		{"suffix sentinel", append([]byte{9, 9}, flushSentinel...), true},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			if got := hasFlushSentinel(c.b); got != c.want {
				t.Errorf("hasFlushSentinel(%v) = %v, want %v", c.b, got, c.want)
			}
		})
	}
}

func TestJSONCodecRoundTrip(t *testing.T) {
	c := JSON()

	encoded, err := c.Encode(2, map[string]string{"token": "abc"})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	env, err := c.Decode(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Op != 2 {
		t.Fatalf("op = %d, want 2", env.Op)
	}

	var out map[string]string
	if err := c.DecodePayload(env.D, &out); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if out["token"] != "abc" {
		t.Fatalf("token = %q, want abc", out["token"])
	}
}

func TestMsgpackCodecRoundTrip(t *testing.T) {
	c := Msgpack()

	encoded, err := c.Encode(1, int64(42))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	env, err := c.Decode(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Op != 1 {
		t.Fatalf("op = %d, want 1", env.Op)
	}

	var out int64
	if err := c.DecodePayload(env.D, &out); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if out != 42 {
		t.Fatalf("payload = %d, want 42", out)
	}
}
