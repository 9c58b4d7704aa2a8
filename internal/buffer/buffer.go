// Package buffer provides a growable byte buffer used by the frame and
// value codecs. It is pure wire-level plumbing: it knows nothing about
// AMQP framing or types, only about reading/writing big-endian integers
// and byte ranges into a contiguous slice.
package buffer

import (
	"encoding/binary"
	"errors"
)

// Buffer is a growable byte buffer with a read cursor, used both for
// building outbound frames (via Write*) and for walking an inbound frame's
// body while decoding (via Read*/Next/Peek).
type Buffer struct {
	b   []byte
	off int
}

// New returns a Buffer wrapping b. The returned Buffer takes ownership of b;
// callers must not mutate b afterward.
func New(b []byte) *Buffer {
	return &Buffer{b: b}
}

// Reset discards all buffered data and the read cursor, retaining the
// underlying storage for reuse.
func (b *Buffer) Reset() {
	b.b = b.b[:0]
	b.off = 0
}

// Len returns the number of unread bytes in the buffer.
func (b *Buffer) Len() int {
	return len(b.b) - b.off
}

// Size returns the total number of bytes written to the buffer, ignoring
// the read cursor.
func (b *Buffer) Size() int {
	return len(b.b)
}

// Bytes returns the unread portion of the buffer. The returned slice is
// only valid until the next mutating call.
func (b *Buffer) Bytes() []byte {
	return b.b[b.off:]
}

// Detach returns the full underlying slice, ignoring the read cursor.
// Used when the buffer was only ever used as a write sink.
func (b *Buffer) Detach() []byte {
	return b.b
}

// Write appends p to the buffer.
func (b *Buffer) Write(p []byte) (int, error) {
	b.b = append(b.b, p...)
	return len(p), nil
}

// WriteString appends s to the buffer.
func (b *Buffer) WriteString(s string) {
	b.b = append(b.b, s...)
}

// WriteByte appends a single byte.
func (b *Buffer) WriteByte(c byte) error {
	b.b = append(b.b, c)
	return nil
}

// Append is an alias for Write that discards the error, which is always nil.
func (b *Buffer) Append(p []byte) {
	b.b = append(b.b, p...)
}

// WriteUint16 appends v in big-endian order.
func (b *Buffer) WriteUint16(v uint16) {
	b.b = append(b.b, byte(v>>8), byte(v))
}

// WriteUint32 appends v in big-endian order.
func (b *Buffer) WriteUint32(v uint32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	b.b = append(b.b, tmp[:]...)
}

// WriteUint64 appends v in big-endian order.
func (b *Buffer) WriteUint64(v uint64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], v)
	b.b = append(b.b, tmp[:]...)
}

var errBufferUnderflow = errors.New("buffer: not enough bytes remaining")

// Peek returns the next n unread bytes without advancing the cursor.
func (b *Buffer) Peek(n int) ([]byte, error) {
	if b.Len() < n {
		return nil, errBufferUnderflow
	}
	return b.b[b.off : b.off+n], nil
}

// Skip advances the read cursor by n bytes.
func (b *Buffer) Skip(n int) {
	b.off += n
	if b.off > len(b.b) {
		b.off = len(b.b)
	}
}

// Next returns the next min(n, Len()) unread bytes and advances the cursor
// past them. Unlike Peek, Next always succeeds, returning a shorter slice
// if the buffer is exhausted — used by the transfer fragmentation loop to
// pull successive max-frame-sized chunks off a message payload.
func (b *Buffer) Next(n int64) ([]byte, error) {
	if n < 0 {
		return nil, errors.New("buffer: negative read size")
	}
	avail := int64(b.Len())
	if n > avail {
		n = avail
	}
	out := b.b[b.off : b.off+int(n)]
	b.off += int(n)
	return out, nil
}

// ReadByte returns the next unread byte and advances the cursor.
func (b *Buffer) ReadByte() (byte, error) {
	if b.Len() < 1 {
		return 0, errBufferUnderflow
	}
	c := b.b[b.off]
	b.off++
	return c, nil
}

// ReadUint16 reads a big-endian uint16 and advances the cursor.
func (b *Buffer) ReadUint16() (uint16, error) {
	if b.Len() < 2 {
		return 0, errBufferUnderflow
	}
	v := binary.BigEndian.Uint16(b.b[b.off:])
	b.off += 2
	return v, nil
}

// ReadUint32 reads a big-endian uint32 and advances the cursor.
func (b *Buffer) ReadUint32() (uint32, error) {
	if b.Len() < 4 {
		return 0, errBufferUnderflow
	}
	v := binary.BigEndian.Uint32(b.b[b.off:])
	b.off += 4
	return v, nil
}

// ReadUint64 reads a big-endian uint64 and advances the cursor.
func (b *Buffer) ReadUint64() (uint64, error) {
	if b.Len() < 8 {
		return 0, errBufferUnderflow
	}
	v := binary.BigEndian.Uint64(b.b[b.off:])
	b.off += 8
	return v, nil
}
