// Package frame implements the AMQP 1.0 frame codec: the 8-byte frame
// header, the AMQP (type 0) and SASL (type 1) performative bodies, and
// an incremental Reader that can be fed partial TCP reads without
// blocking, per spec.md §4.2.
package frame

import (
	"fmt"

	"github.com/Azure/go-amqp/internal/buffer"
	"github.com/Azure/go-amqp/internal/encoding"
)

// Type distinguishes the AMQP and SASL frame streams that share a
// connection's byte stream during the security-layer handshake.
type Type uint8

const (
	TypeAMQP Type = 0x0
	TypeSASL Type = 0x1
)

// HeaderSize is the fixed length of an AMQP frame header: 4-byte size,
// 1-byte data offset, 1-byte type, 2-byte type-specific (channel for
// AMQP, reserved for SASL).
const HeaderSize = 8

// MinMaxFrameSize is the smallest max-frame-size a peer may declare,
// per the spec's open.max-frame-size constraint.
const MinMaxFrameSize = 512

// Frame is one decoded AMQP frame: header fields plus its performative
// body. A transfer's trailing payload bytes are carried in
// PerformTransfer.Payload, not on Frame.
type Frame struct {
	Type    Type
	Channel uint16
	Body    Body
}

// Body is implemented by every performative and SASL frame body.
type Body interface {
	isFrameBody()
}

// Encode writes f's wire representation to wr: header, then the
// marshaled body. Performatives that carry a raw payload (transfer)
// append it after their composite fields from within Marshal.
func Encode(wr *buffer.Buffer, f Frame) error {
	wr.WriteByte(0) // size placeholder, patched below
	wr.WriteByte(0)
	wr.WriteByte(0)
	wr.WriteByte(0)
	wr.WriteByte(2) // doff: 2 * 4-byte words = 8-byte header, no extended header
	wr.WriteByte(byte(f.Type))
	wr.WriteUint16(f.Channel)

	if f.Body != nil {
		m, ok := f.Body.(encoding.Marshaler)
		if !ok {
			return fmt.Errorf("frame: body %T does not implement Marshal", f.Body)
		}
		if err := m.Marshal(wr); err != nil {
			return err
		}
	}

	buf := wr.Detach()
	patchSize(buf)
	return nil
}

func patchSize(buf []byte) {
	n := uint32(len(buf))
	buf[0] = byte(n >> 24)
	buf[1] = byte(n >> 16)
	buf[2] = byte(n >> 8)
	buf[3] = byte(n)
}

// ErrFrameTooSmall is returned when a frame's declared size is smaller
// than the 8-byte header it must at least contain.
var ErrFrameTooSmall = fmt.Errorf("frame: declared size smaller than header")

// Reader incrementally parses a byte stream into Frames without
// blocking: Feed appends newly-received bytes, and Next pulls off as
// many complete frames as are currently buffered, per OnBytesReceived's
// "consume what's there, leave the rest for the next call" contract.
type Reader struct {
	buf        []byte
	maxFrameSize uint32
}

// NewReader constructs a Reader that rejects any frame whose declared
// size exceeds maxFrameSize (0 disables the limit, used before the
// open exchange negotiates one).
func NewReader(maxFrameSize uint32) *Reader {
	return &Reader{maxFrameSize: maxFrameSize}
}

// SetMaxFrameSize updates the limit once open negotiation completes.
func (d *Reader) SetMaxFrameSize(n uint32) {
	d.maxFrameSize = n
}

// Feed appends newly-arrived bytes to the reader's internal buffer.
func (d *Reader) Feed(b []byte) {
	d.buf = append(d.buf, b...)
}

// Next attempts to decode one complete frame from the buffered bytes.
// It returns ok=false (no error) when fewer bytes than the next frame's
// declared size are currently buffered; the caller should call Feed
// again and retry once more bytes arrive.
func (d *Reader) Next() (fr Frame, ok bool, err error) {
	if len(d.buf) < 4 {
		return Frame{}, false, nil
	}
	size := be32(d.buf)
	if size < HeaderSize {
		return Frame{}, false, ErrFrameTooSmall
	}
	if d.maxFrameSize != 0 && size > d.maxFrameSize {
		return Frame{}, false, fmt.Errorf("frame: size %d exceeds max-frame-size %d", size, d.maxFrameSize)
	}
	if uint32(len(d.buf)) < size {
		return Frame{}, false, nil
	}

	raw := d.buf[:size]
	d.buf = d.buf[size:]

	doff := raw[4]
	typ := Type(raw[5])
	channel := be16(raw[6:8])

	bodyStart := int(doff) * 4
	if bodyStart < HeaderSize || bodyStart > len(raw) {
		return Frame{}, false, fmt.Errorf("frame: invalid data offset %d", doff)
	}

	body, err := decodeBody(typ, buffer.New(raw[bodyStart:]))
	if err != nil {
		return Frame{}, false, err
	}
	return Frame{Type: typ, Channel: channel, Body: body}, true, nil
}

// Pending reports how many bytes are buffered but not yet consumed by
// a completed frame, purely for diagnostics/logging.
func (d *Reader) Pending() int {
	return len(d.buf)
}

func be16(b []byte) uint16 { return uint16(b[0])<<8 | uint16(b[1]) }
func be32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

// decodeBody dispatches on the composite descriptor code at the start
// of the frame body to construct and unmarshal the right Body type. An
// empty body (heartbeat / empty frame, used for idle-timeout keepalive)
// is represented by returning a nil Body and nil error.
func decodeBody(typ Type, r *buffer.Buffer) (Body, error) {
	if r.Len() == 0 {
		return nil, nil
	}

	code, described, err := encoding.PeekComposite(r)
	if err != nil {
		return nil, err
	}
	if !described {
		return nil, fmt.Errorf("frame: body is not a described composite")
	}

	var body Body
	switch code {
	case typeCodeOpen:
		body = new(PerformOpen)
	case typeCodeBegin:
		body = new(PerformBegin)
	case typeCodeAttach:
		body = new(PerformAttach)
	case typeCodeFlow:
		body = new(PerformFlow)
	case typeCodeTransfer:
		body = new(PerformTransfer)
	case typeCodeDisposition:
		body = new(PerformDisposition)
	case typeCodeDetach:
		body = new(PerformDetach)
	case typeCodeEnd:
		body = new(PerformEnd)
	case typeCodeClose:
		body = new(PerformClose)
	case typeCodeSASLMechanisms:
		body = new(SASLMechanisms)
	case typeCodeSASLInit:
		body = new(SASLInit)
	case typeCodeSASLChallenge:
		body = new(SASLChallenge)
	case typeCodeSASLResponse:
		body = new(SASLResponse)
	case typeCodeSASLOutcome:
		body = new(SASLOutcome)
	default:
		return nil, fmt.Errorf("frame: unrecognized performative descriptor 0x%x", code)
	}

	u := body.(encoding.Unmarshaler)
	if err := u.Unmarshal(r); err != nil {
		return nil, err
	}
	return body, nil
}
