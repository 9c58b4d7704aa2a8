package encoding

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
	"unicode/utf8"

	"github.com/Azure/go-amqp/internal/buffer"
)

// Marshaler is implemented by types that know how to encode themselves,
// typically performatives, message sections, and the described delivery
// states.
type Marshaler interface {
	Marshal(wr *buffer.Buffer) error
}

// Marshal writes the canonical AMQP encoding of i into wr. It dispatches
// on i's Go type, mirroring the teacher's original type-switch marshaler
// but exported and generalized for use outside the connection package.
func Marshal(wr *buffer.Buffer, i any) error {
	switch t := i.(type) {
	case nil:
		wr.WriteByte(byte(TypeCodeNull))
	case bool:
		if t {
			wr.WriteByte(byte(TypeCodeBoolTrue))
		} else {
			wr.WriteByte(byte(TypeCodeBoolFalse))
		}
	case *bool:
		return Marshal(wr, *t)
	case uint:
		writeUint64(wr, uint64(t))
	case *uint:
		return Marshal(wr, *t)
	case uint64:
		writeUint64(wr, t)
	case *uint64:
		return Marshal(wr, *t)
	case uint32:
		writeUint32(wr, t)
	case *uint32:
		return Marshal(wr, *t)
	case uint16:
		wr.WriteByte(byte(TypeCodeUshort))
		wr.WriteUint16(t)
	case *uint16:
		return Marshal(wr, *t)
	case uint8:
		_, _ = wr.Write([]byte{byte(TypeCodeUbyte), t})
	case *uint8:
		return Marshal(wr, *t)
	case int:
		writeInt64(wr, int64(t))
	case *int:
		return Marshal(wr, *t)
	case int8:
		_, _ = wr.Write([]byte{byte(TypeCodeByte), uint8(t)})
	case *int8:
		return Marshal(wr, *t)
	case int16:
		wr.WriteByte(byte(TypeCodeShort))
		wr.WriteUint16(uint16(t))
	case *int16:
		return Marshal(wr, *t)
	case int32:
		writeInt32(wr, t)
	case *int32:
		return Marshal(wr, *t)
	case int64:
		writeInt64(wr, t)
	case *int64:
		return Marshal(wr, *t)
	case float32:
		writeFloat(wr, t)
	case *float32:
		return Marshal(wr, *t)
	case float64:
		writeDouble(wr, t)
	case *float64:
		return Marshal(wr, *t)
	case string:
		return writeString(wr, t)
	case *string:
		return writeString(wr, *t)
	case []byte:
		return writeBinary(wr, t)
	case *[]byte:
		return writeBinary(wr, *t)
	case Symbol:
		return writeSymbol(wr, t)
	case *Symbol:
		return writeSymbol(wr, *t)
	case MultiSymbol:
		return writeMultiSymbol(wr, t)
	case *MultiSymbol:
		return writeMultiSymbol(wr, *t)
	case UUID:
		return writeUUID(wr, t)
	case *UUID:
		return writeUUID(wr, *t)
	case Milliseconds:
		writeUint32(wr, uint32(time.Duration(t)/time.Millisecond))
		return nil
	case *Milliseconds:
		return Marshal(wr, *t)
	case Role:
		return Marshal(wr, bool(t))
	case *Role:
		return Marshal(wr, *t)
	case SenderSettleMode:
		return Marshal(wr, uint8(t))
	case *SenderSettleMode:
		return Marshal(wr, *t)
	case ReceiverSettleMode:
		return Marshal(wr, uint8(t))
	case *ReceiverSettleMode:
		return Marshal(wr, *t)
	case time.Time:
		writeTimestamp(wr, t)
	case *time.Time:
		return Marshal(wr, *t)
	case map[any]any:
		return writeMap(wr, t)
	case *map[any]any:
		return writeMap(wr, *t)
	case map[string]any:
		m := make(map[any]any, len(t))
		for k, v := range t {
			m[k] = v
		}
		return writeMap(wr, m)
	case *map[string]any:
		return Marshal(wr, *t)
	case map[Symbol]any:
		m := make(map[any]any, len(t))
		for k, v := range t {
			m[k] = v
		}
		return writeMap(wr, m)
	case *map[Symbol]any:
		return Marshal(wr, *t)
	case Annotations:
		return writeMap(wr, map[any]any(t))
	case *Annotations:
		return writeMap(wr, map[any]any(*t))
	case []any:
		return writeList(wr, t)
	case *[]any:
		return writeList(wr, *t)
	case *Value:
		return t.Encode(wr)
	case Value:
		return t.Encode(wr)
	case Marshaler:
		return t.Marshal(wr)
	default:
		return fmt.Errorf("encoding: marshal not implemented for %T", i)
	}
	return nil
}

func writeInt32(wr *buffer.Buffer, n int32) {
	if n < 128 && n >= -128 {
		_, _ = wr.Write([]byte{byte(TypeCodeSmallint), byte(n)})
		return
	}
	wr.WriteByte(byte(TypeCodeInt))
	wr.WriteUint32(uint32(n))
}

func writeInt64(wr *buffer.Buffer, n int64) {
	if n < 128 && n >= -128 {
		_, _ = wr.Write([]byte{byte(TypeCodeSmalllong), byte(n)})
		return
	}
	wr.WriteByte(byte(TypeCodeLong))
	wr.WriteUint64(uint64(n))
}

func writeUint32(wr *buffer.Buffer, n uint32) {
	if n == 0 {
		wr.WriteByte(byte(TypeCodeUint0))
		return
	}
	if n < 256 {
		_, _ = wr.Write([]byte{byte(TypeCodeSmallUint), byte(n)})
		return
	}
	wr.WriteByte(byte(TypeCodeUint))
	wr.WriteUint32(n)
}

func writeUint64(wr *buffer.Buffer, n uint64) {
	if n == 0 {
		wr.WriteByte(byte(TypeCodeUlong0))
		return
	}
	if n < 256 {
		_, _ = wr.Write([]byte{byte(TypeCodeSmallUlong), byte(n)})
		return
	}
	wr.WriteByte(byte(TypeCodeUlong))
	wr.WriteUint64(n)
}

func writeFloat(wr *buffer.Buffer, f float32) {
	wr.WriteByte(byte(TypeCodeFloat))
	wr.WriteUint32(math.Float32bits(f))
}

func writeDouble(wr *buffer.Buffer, f float64) {
	wr.WriteByte(byte(TypeCodeDouble))
	wr.WriteUint64(math.Float64bits(f))
}

func writeTimestamp(wr *buffer.Buffer, t time.Time) {
	wr.WriteByte(byte(TypeCodeTimestamp))
	ms := t.UnixNano() / int64(time.Millisecond)
	wr.WriteUint64(uint64(ms))
}

func writeUUID(wr *buffer.Buffer, u UUID) error {
	wr.WriteByte(byte(TypeCodeUUID))
	_, _ = wr.Write(u[:])
	return nil
}

func writeString(wr *buffer.Buffer, str string) error {
	if !utf8.ValidString(str) {
		return ErrUTF8
	}
	l := len(str)
	switch {
	case l < 256:
		_, _ = wr.Write([]byte{byte(TypeCodeStr8), byte(l)})
		wr.WriteString(str)
		return nil
	case uint(l) < math.MaxUint32:
		wr.WriteByte(byte(TypeCodeStr32))
		wr.WriteUint32(uint32(l))
		wr.WriteString(str)
		return nil
	default:
		return fmt.Errorf("encoding: string too long (%d bytes)", l)
	}
}

func writeSymbol(wr *buffer.Buffer, sym Symbol) error {
	for i := 0; i < len(sym); i++ {
		if sym[i] >= utf8.RuneSelf {
			return ErrNotASCII
		}
	}
	l := len(sym)
	switch {
	case l < 256:
		_, _ = wr.Write([]byte{byte(TypeCodeSym8), byte(l)})
		wr.WriteString(string(sym))
		return nil
	case uint(l) < math.MaxUint32:
		wr.WriteByte(byte(TypeCodeSym32))
		wr.WriteUint32(uint32(l))
		wr.WriteString(string(sym))
		return nil
	default:
		return fmt.Errorf("encoding: symbol too long (%d bytes)", l)
	}
}

func writeMultiSymbol(wr *buffer.Buffer, syms MultiSymbol) error {
	if len(syms) == 1 {
		return writeSymbol(wr, syms[0])
	}
	return writeSymbolArray(wr, syms)
}

// writeSymbolArray encodes syms as an AMQP array (format code 0xe0/0xf0):
// a single element-type constructor followed by per-element length-prefixed
// bodies, per AMQP 1.0 §1.3 "array". A "multiple" field with more than one
// value (sasl-mechanisms.server-mechanisms, open's offered/desired
// capabilities, attach's capabilities) must use this encoding — a list is
// not interoperable here, since compliant peers only accept arrays.
func writeSymbolArray(wr *buffer.Buffer, syms MultiSymbol) error {
	wide := false
	for _, s := range syms {
		for i := 0; i < len(s); i++ {
			if s[i] >= utf8.RuneSelf {
				return ErrNotASCII
			}
		}
		if len(s) >= 256 {
			wide = true
		}
	}

	elemFC := TypeCodeSym8
	if wide {
		elemFC = TypeCodeSym32
	}

	var body buffer.Buffer
	body.WriteByte(byte(elemFC))
	for _, s := range syms {
		if wide {
			body.WriteUint32(uint32(len(s)))
		} else {
			body.WriteByte(byte(len(s)))
		}
		body.WriteString(string(s))
	}

	if body.Len() < 255 && len(syms) < 255 {
		_, _ = wr.Write([]byte{byte(TypeCodeArray8), byte(body.Len() + 1), byte(len(syms))})
		_, _ = wr.Write(body.Bytes())
		return nil
	}

	wr.WriteByte(byte(TypeCodeArray32))
	wr.WriteUint32(uint32(body.Len() + 4))
	wr.WriteUint32(uint32(len(syms)))
	_, _ = wr.Write(body.Bytes())
	return nil
}

func writeBinary(wr *buffer.Buffer, bin []byte) error {
	l := len(bin)
	switch {
	case l < 256:
		_, _ = wr.Write([]byte{byte(TypeCodeVbin8), byte(l)})
		_, _ = wr.Write(bin)
		return nil
	case uint(l) < math.MaxUint32:
		wr.WriteByte(byte(TypeCodeVbin32))
		wr.WriteUint32(uint32(l))
		_, _ = wr.Write(bin)
		return nil
	default:
		return fmt.Errorf("encoding: binary too long (%d bytes)", l)
	}
}

// writeList encodes vals as a list, choosing list8 vs list32 by
// pre-computing the encoded size of every element before writing the
// header — avoiding the double-serialization a naive implementation
// would need to discover which framing to use.
func writeList(wr *buffer.Buffer, vals []any) error {
	if len(vals) == 0 {
		wr.WriteByte(byte(TypeCodeList0))
		return nil
	}

	var body buffer.Buffer
	for _, v := range vals {
		if err := Marshal(&body, v); err != nil {
			return err
		}
	}

	if body.Len() < 255 && len(vals) < 255 {
		_, _ = wr.Write([]byte{byte(TypeCodeList8), byte(body.Len() + 1), byte(len(vals))})
		_, _ = wr.Write(body.Bytes())
		return nil
	}

	wr.WriteByte(byte(TypeCodeList32))
	wr.WriteUint32(uint32(body.Len() + 4))
	wr.WriteUint32(uint32(len(vals)))
	_, _ = wr.Write(body.Bytes())
	return nil
}

func writeMap(wr *buffer.Buffer, m map[any]any) error {
	var body buffer.Buffer
	for key, val := range m {
		if err := Marshal(&body, key); err != nil {
			return err
		}
		if err := Marshal(&body, val); err != nil {
			return err
		}
	}
	pairs := len(m) * 2

	if body.Len() < 255 && pairs < 255 {
		_, _ = wr.Write([]byte{byte(TypeCodeMap8), byte(body.Len() + 1), byte(pairs)})
		_, _ = wr.Write(body.Bytes())
		return nil
	}

	wr.WriteByte(byte(TypeCodeMap32))
	wr.WriteUint32(uint32(body.Len() + 4))
	wr.WriteUint32(uint32(pairs))
	_, _ = wr.Write(body.Bytes())
	return nil
}

// MarshalField is one field of a composite's field table: value to
// encode, or omit (encoded as null / elided if trailing).
type MarshalField struct {
	Value any
	Omit  bool
}

// MarshalComposite encodes a described list composite: descriptor byte,
// small-ulong descriptor code, list of fields. Trailing omitted fields
// are elided entirely (list0/short list); interior omitted fields are
// encoded as null so indices of later fields stay stable.
//
// This is the declarative replacement for per-field getter/setter
// boilerplate: every performative, message section, and delivery state
// in this repository is described as a []MarshalField walked here.
func MarshalComposite(wr *buffer.Buffer, code uint64, fields []MarshalField) error {
	lastSetIdx := -1
	for i, f := range fields {
		if !f.Omit {
			lastSetIdx = i
		}
	}

	if lastSetIdx == -1 {
		_, _ = wr.Write([]byte{0x0, byte(TypeCodeSmallUlong), byte(code), byte(TypeCodeList0)})
		return nil
	}

	writeDescriptor(wr, code)

	wr.WriteByte(byte(TypeCodeList32))
	sizeIdx := wr.Size()
	_, _ = wr.Write([]byte{0, 0, 0, 0})
	preFieldLen := wr.Size()

	wr.WriteUint32(uint32(lastSetIdx + 1))

	for _, f := range fields[:lastSetIdx+1] {
		if f.Omit {
			wr.WriteByte(byte(TypeCodeNull))
			continue
		}
		if err := Marshal(wr, f.Value); err != nil {
			return err
		}
	}

	size := uint32(wr.Size() - preFieldLen)
	buf := wr.Detach()
	binary.BigEndian.PutUint32(buf[sizeIdx:], size)
	return nil
}

func writeDescriptor(wr *buffer.Buffer, code uint64) {
	_, _ = wr.Write([]byte{0x0, byte(TypeCodeSmallUlong), byte(code)})
}

// EncodedSize reports the byte length Marshal(i) would produce, without
// retaining the encoded bytes.
func EncodedSize(i any) (int, error) {
	var buf buffer.Buffer
	if err := Marshal(&buf, i); err != nil {
		return 0, err
	}
	return buf.Size(), nil
}
