package amqp

import (
	"github.com/Azure/go-amqp/internal/buffer"
	"github.com/Azure/go-amqp/internal/frame"
)

// fakeTransport is an in-memory amqp.Transport that records every byte
// handed to Send. Tests drive the peer side by hand, calling
// conn.OnBytesReceived with bytes built via encodeFrame, rather than
// running a goroutine-based responder: the core itself never blocks, so
// there is nothing to wait on.
type fakeTransport struct {
	sent [][]byte
}

func (f *fakeTransport) Send(p []byte) (int, error) {
	cp := append([]byte(nil), p...)
	f.sent = append(f.sent, cp)
	return len(p), nil
}

// all concatenates every Send call's bytes, for tests that want to parse
// whatever frames the core produced as a single stream.
func (f *fakeTransport) all() []byte {
	var out []byte
	for _, p := range f.sent {
		out = append(out, p...)
	}
	return out
}

func (f *fakeTransport) reset() {
	f.sent = nil
}

// decodeFrames parses every complete frame out of buf using a
// sufficiently large Reader, for asserting on what the core sent.
func decodeFrames(t interface{ Fatalf(string, ...any) }, buf []byte) []frame.Frame {
	r := frame.NewReader(1 << 20)
	r.Feed(buf)
	var out []frame.Frame
	for {
		fr, ok, err := r.Next()
		if err != nil {
			t.Fatalf("decodeFrames: %v", err)
		}
		if !ok {
			return out
		}
		out = append(out, fr)
	}
}

// encodeFrame marshals a single AMQP-type frame on channel ch, for
// building bytes to feed into Conn.OnBytesReceived as the simulated peer.
func encodeFrame(ch uint16, body frame.Body) []byte {
	var wr buffer.Buffer
	if err := frame.Encode(&wr, frame.Frame{Type: frame.TypeAMQP, Channel: ch, Body: body}); err != nil {
		panic(err)
	}
	return wr.Bytes()
}
