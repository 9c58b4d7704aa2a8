package encoding

import (
	"fmt"
	"time"

	"github.com/Azure/go-amqp/internal/buffer"
)

// Unmarshaler is implemented by types that know how to decode themselves
// from a single AMQP value (already positioned at its format code).
type Unmarshaler interface {
	Unmarshal(r *buffer.Buffer) error
}

// peekFormatCode returns the next format code without consuming it.
func peekFormatCode(r *buffer.Buffer) (FormatCode, error) {
	b, err := r.Peek(1)
	if err != nil {
		return 0, ErrTruncated
	}
	return FormatCode(b[0]), nil
}

// skipDescriptor consumes a leading 0x00 descriptor-marker byte and its
// descriptor value (if present), returning the descriptor's small-ulong
// code. If the next value is not described, it returns ok=false and
// leaves the cursor untouched.
func skipDescriptor(r *buffer.Buffer) (code uint64, ok bool, err error) {
	fc, err := peekFormatCode(r)
	if err != nil {
		return 0, false, err
	}
	if fc != TypeCodeDescriptor {
		return 0, false, nil
	}
	_, _ = r.ReadByte() // consume 0x00

	descFC, err := peekFormatCode(r)
	if err != nil {
		return 0, false, ErrDescriptorMissing
	}
	switch descFC {
	case TypeCodeSmallUlong:
		_, _ = r.ReadByte()
		b, err := r.ReadByte()
		if err != nil {
			return 0, false, ErrTruncated
		}
		return uint64(b), true, nil
	case TypeCodeUlong, TypeCodeUlong0:
		v, err := readULong(r)
		if err != nil {
			return 0, false, err
		}
		return v, true, nil
	default:
		// symbolic descriptor (rare, used by some brokers) — read and discard,
		// callers that need the symbol should not use skipDescriptor.
		if _, err := ReadAny(r); err != nil {
			return 0, false, err
		}
		return 0, true, nil
	}
}

// PeekComposite reports the small-ulong descriptor code of the described
// value at r's current position, without consuming any bytes. Used by
// frame decoding to pick which performative struct to allocate before
// handing off to its Unmarshal.
func PeekComposite(r *buffer.Buffer) (code uint64, described bool, err error) {
	scratch := *r
	return skipDescriptor(&scratch)
}

// Unmarshal decodes the next value from r into i, which must be a pointer
// (or, for interfaces implementing Unmarshaler, any addressable target).
// A null value leaves *i at its zero value.
func Unmarshal(r *buffer.Buffer, i any) error {
	if u, ok := i.(Unmarshaler); ok {
		fc, err := peekFormatCode(r)
		if err != nil {
			return err
		}
		if fc == TypeCodeNull {
			_, _ = r.ReadByte()
			return nil
		}
		return u.Unmarshal(r)
	}

	switch t := i.(type) {
	case *bool:
		v, err := readBool(r)
		if err != nil {
			return err
		}
		*t = v
	case *uint8:
		v, err := readUint(r)
		if err != nil {
			return err
		}
		*t = uint8(v)
	case *uint16:
		v, err := readUint(r)
		if err != nil {
			return err
		}
		*t = uint16(v)
	case *uint32:
		v, err := readUint(r)
		if err != nil {
			return err
		}
		*t = uint32(v)
	case **uint32:
		isNull, err := nullPeek(r)
		if err != nil {
			return err
		}
		if isNull {
			*t = nil
			return nil
		}
		v, err := readUint(r)
		if err != nil {
			return err
		}
		vv := uint32(v)
		*t = &vv
	case *uint64:
		v, err := readUint(r)
		if err != nil {
			return err
		}
		*t = v
	case **uint16:
		isNull, err := nullPeek(r)
		if err != nil {
			return err
		}
		if isNull {
			*t = nil
			return nil
		}
		v, err := readUint(r)
		if err != nil {
			return err
		}
		vv := uint16(v)
		*t = &vv
	case *int8:
		v, err := readInt(r)
		if err != nil {
			return err
		}
		*t = int8(v)
	case *int16:
		v, err := readInt(r)
		if err != nil {
			return err
		}
		*t = int16(v)
	case *int32:
		v, err := readInt(r)
		if err != nil {
			return err
		}
		*t = int32(v)
	case *int64:
		v, err := readInt(r)
		if err != nil {
			return err
		}
		*t = v
	case *float32:
		v, err := readFloat32(r)
		if err != nil {
			return err
		}
		*t = v
	case *float64:
		v, err := readFloat64(r)
		if err != nil {
			return err
		}
		*t = v
	case *string:
		v, err := readString(r)
		if err != nil {
			return err
		}
		*t = v
	case *[]byte:
		v, err := readBinary(r)
		if err != nil {
			return err
		}
		*t = v
	case *Symbol:
		v, err := readSymbol(r)
		if err != nil {
			return err
		}
		*t = v
	case *MultiSymbol:
		v, err := readMultiSymbol(r)
		if err != nil {
			return err
		}
		*t = v
	case *UUID:
		v, err := readUUID(r)
		if err != nil {
			return err
		}
		*t = v
	case *Milliseconds:
		isNull, err := nullPeek(r)
		if err != nil {
			return err
		}
		if isNull {
			_, _ = r.ReadByte()
			return nil
		}
		v, err := readUint(r)
		if err != nil {
			return err
		}
		*t = Milliseconds(time.Duration(v) * time.Millisecond)
	case *Role:
		v, err := readBool(r)
		if err != nil {
			return err
		}
		*t = Role(v)
	case **SenderSettleMode:
		isNull, err := nullPeek(r)
		if err != nil {
			return err
		}
		if isNull {
			*t = nil
			return nil
		}
		v, err := readUint(r)
		if err != nil {
			return err
		}
		vv := SenderSettleMode(v)
		*t = &vv
	case **ReceiverSettleMode:
		isNull, err := nullPeek(r)
		if err != nil {
			return err
		}
		if isNull {
			*t = nil
			return nil
		}
		v, err := readUint(r)
		if err != nil {
			return err
		}
		vv := ReceiverSettleMode(v)
		*t = &vv
	case *time.Time:
		v, err := readTimestamp(r)
		if err != nil {
			return err
		}
		*t = v
	case *map[Symbol]any:
		v, err := readMap(r)
		if err != nil {
			return err
		}
		m := make(map[Symbol]any, len(v))
		for k, val := range v {
			sym, _ := k.(Symbol)
			m[sym] = val
		}
		*t = m
	case *map[string]any:
		v, err := readMap(r)
		if err != nil {
			return err
		}
		m := make(map[string]any, len(v))
		for k, val := range v {
			s, _ := k.(string)
			m[s] = val
		}
		*t = m
	case *Annotations:
		v, err := readMap(r)
		if err != nil {
			return err
		}
		*t = Annotations(v)
	case **Error:
		isNull, err := nullPeek(r)
		if err != nil {
			return err
		}
		if isNull {
			_, _ = r.ReadByte()
			*t = nil
			return nil
		}
		v := new(Error)
		if err := v.Unmarshal(r); err != nil {
			return err
		}
		*t = v
	case **Source:
		isNull, err := nullPeek(r)
		if err != nil {
			return err
		}
		if isNull {
			_, _ = r.ReadByte()
			*t = nil
			return nil
		}
		v := new(Source)
		if err := v.Unmarshal(r); err != nil {
			return err
		}
		*t = v
	case **Target:
		isNull, err := nullPeek(r)
		if err != nil {
			return err
		}
		if isNull {
			_, _ = r.ReadByte()
			*t = nil
			return nil
		}
		v := new(Target)
		if err := v.Unmarshal(r); err != nil {
			return err
		}
		*t = v
	case **Coordinator:
		isNull, err := nullPeek(r)
		if err != nil {
			return err
		}
		if isNull {
			_, _ = r.ReadByte()
			*t = nil
			return nil
		}
		v := new(Coordinator)
		if err := v.Unmarshal(r); err != nil {
			return err
		}
		*t = v
	case *Value:
		return t.Unmarshal(r)
	case *any:
		v, err := ReadAny(r)
		if err != nil {
			return err
		}
		*t = v
	default:
		return fmt.Errorf("encoding: unmarshal not implemented for %T", i)
	}
	return nil
}

// nullPeek reports whether the next value is the null format code,
// without consuming anything.
func nullPeek(r *buffer.Buffer) (bool, error) {
	fc, err := peekFormatCode(r)
	if err != nil {
		return false, err
	}
	return fc == TypeCodeNull, nil
}

func readBool(r *buffer.Buffer) (bool, error) {
	fc, err := r.ReadByte()
	if err != nil {
		return false, ErrTruncated
	}
	switch FormatCode(fc) {
	case TypeCodeNull:
		return false, nil
	case TypeCodeBoolTrue:
		return true, nil
	case TypeCodeBoolFalse:
		return false, nil
	case TypeCodeBool:
		b, err := r.ReadByte()
		if err != nil {
			return false, ErrTruncated
		}
		return b != 0, nil
	default:
		return false, fmt.Errorf("%w: %#02x is not a boolean", ErrUnknownFormatCode, fc)
	}
}

func readUint(r *buffer.Buffer) (uint64, error) {
	fc, err := r.ReadByte()
	if err != nil {
		return 0, ErrTruncated
	}
	switch FormatCode(fc) {
	case TypeCodeNull, TypeCodeUint0, TypeCodeUlong0:
		return 0, nil
	case TypeCodeUbyte, TypeCodeSmallUint, TypeCodeSmallUlong:
		b, err := r.ReadByte()
		if err != nil {
			return 0, ErrTruncated
		}
		return uint64(b), nil
	case TypeCodeUshort:
		v, err := r.ReadUint16()
		if err != nil {
			return 0, ErrTruncated
		}
		return uint64(v), nil
	case TypeCodeUint:
		v, err := r.ReadUint32()
		if err != nil {
			return 0, ErrTruncated
		}
		return uint64(v), nil
	case TypeCodeUlong:
		v, err := r.ReadUint64()
		if err != nil {
			return 0, ErrTruncated
		}
		return v, nil
	default:
		return 0, fmt.Errorf("%w: %#02x is not an unsigned int", ErrUnknownFormatCode, fc)
	}
}

func readULong(r *buffer.Buffer) (uint64, error) {
	return readUint(r)
}

func readInt(r *buffer.Buffer) (int64, error) {
	fc, err := r.ReadByte()
	if err != nil {
		return 0, ErrTruncated
	}
	switch FormatCode(fc) {
	case TypeCodeNull:
		return 0, nil
	case TypeCodeByte, TypeCodeSmallint, TypeCodeSmalllong:
		b, err := r.ReadByte()
		if err != nil {
			return 0, ErrTruncated
		}
		return int64(int8(b)), nil
	case TypeCodeShort:
		v, err := r.ReadUint16()
		if err != nil {
			return 0, ErrTruncated
		}
		return int64(int16(v)), nil
	case TypeCodeInt:
		v, err := r.ReadUint32()
		if err != nil {
			return 0, ErrTruncated
		}
		return int64(int32(v)), nil
	case TypeCodeLong:
		v, err := r.ReadUint64()
		if err != nil {
			return 0, ErrTruncated
		}
		return int64(v), nil
	default:
		return 0, fmt.Errorf("%w: %#02x is not a signed int", ErrUnknownFormatCode, fc)
	}
}

func readFloat32(r *buffer.Buffer) (float32, error) {
	fc, err := r.ReadByte()
	if err != nil {
		return 0, ErrTruncated
	}
	if FormatCode(fc) == TypeCodeNull {
		return 0, nil
	}
	if FormatCode(fc) != TypeCodeFloat {
		return 0, fmt.Errorf("%w: %#02x is not a float", ErrUnknownFormatCode, fc)
	}
	v, err := r.ReadUint32()
	if err != nil {
		return 0, ErrTruncated
	}
	return float32FromBits(v), nil
}

func readFloat64(r *buffer.Buffer) (float64, error) {
	fc, err := r.ReadByte()
	if err != nil {
		return 0, ErrTruncated
	}
	if FormatCode(fc) == TypeCodeNull {
		return 0, nil
	}
	if FormatCode(fc) != TypeCodeDouble {
		return 0, fmt.Errorf("%w: %#02x is not a double", ErrUnknownFormatCode, fc)
	}
	v, err := r.ReadUint64()
	if err != nil {
		return 0, ErrTruncated
	}
	return float64FromBits(v), nil
}

func readTimestamp(r *buffer.Buffer) (time.Time, error) {
	fc, err := r.ReadByte()
	if err != nil {
		return time.Time{}, ErrTruncated
	}
	if FormatCode(fc) == TypeCodeNull {
		return time.Time{}, nil
	}
	if FormatCode(fc) != TypeCodeTimestamp {
		return time.Time{}, fmt.Errorf("%w: %#02x is not a timestamp", ErrUnknownFormatCode, fc)
	}
	ms, err := r.ReadUint64()
	if err != nil {
		return time.Time{}, ErrTruncated
	}
	return time.Unix(0, int64(ms)*int64(time.Millisecond)), nil
}

func readUUID(r *buffer.Buffer) (UUID, error) {
	var u UUID
	fc, err := r.ReadByte()
	if err != nil {
		return u, ErrTruncated
	}
	if FormatCode(fc) == TypeCodeNull {
		return u, nil
	}
	if FormatCode(fc) != TypeCodeUUID {
		return u, fmt.Errorf("%w: %#02x is not a uuid", ErrUnknownFormatCode, fc)
	}
	b, err := r.Peek(16)
	if err != nil {
		return u, ErrTruncated
	}
	copy(u[:], b)
	r.Skip(16)
	return u, nil
}

func readString(r *buffer.Buffer) (string, error) {
	fc, err := r.ReadByte()
	if err != nil {
		return "", ErrTruncated
	}
	var length uint32
	switch FormatCode(fc) {
	case TypeCodeNull:
		return "", nil
	case TypeCodeStr8:
		b, err := r.ReadByte()
		if err != nil {
			return "", ErrTruncated
		}
		length = uint32(b)
	case TypeCodeStr32:
		length, err = r.ReadUint32()
		if err != nil {
			return "", ErrTruncated
		}
	default:
		return "", fmt.Errorf("%w: %#02x is not a string", ErrUnknownFormatCode, fc)
	}
	b, err := r.Peek(int(length))
	if err != nil {
		return "", ErrTruncated
	}
	r.Skip(int(length))
	return string(b), nil
}

func readSymbol(r *buffer.Buffer) (Symbol, error) {
	fc, err := r.ReadByte()
	if err != nil {
		return "", ErrTruncated
	}
	var length uint32
	switch FormatCode(fc) {
	case TypeCodeNull:
		return "", nil
	case TypeCodeSym8:
		b, err := r.ReadByte()
		if err != nil {
			return "", ErrTruncated
		}
		length = uint32(b)
	case TypeCodeSym32:
		length, err = r.ReadUint32()
		if err != nil {
			return "", ErrTruncated
		}
	default:
		return "", fmt.Errorf("%w: %#02x is not a symbol", ErrUnknownFormatCode, fc)
	}
	b, err := r.Peek(int(length))
	if err != nil {
		return "", ErrTruncated
	}
	for _, c := range b {
		if c > 127 {
			return "", ErrNotASCII
		}
	}
	r.Skip(int(length))
	return Symbol(b), nil
}

func readMultiSymbol(r *buffer.Buffer) (MultiSymbol, error) {
	fc, err := peekFormatCode(r)
	if err != nil {
		return nil, err
	}
	if fc == TypeCodeNull {
		_, _ = r.ReadByte()
		return nil, nil
	}
	if fc == TypeCodeSym8 || fc == TypeCodeSym32 {
		sym, err := readSymbol(r)
		if err != nil {
			return nil, err
		}
		return MultiSymbol{sym}, nil
	}
	if fc != TypeCodeArray8 && fc != TypeCodeArray32 {
		return nil, fmt.Errorf("%w: %#02x is not a symbol array", ErrUnknownFormatCode, fc)
	}
	vals, err := readArray(r)
	if err != nil {
		return nil, err
	}
	out := make(MultiSymbol, len(vals))
	for i, v := range vals {
		sym, ok := v.(Symbol)
		if !ok {
			return nil, fmt.Errorf("%w: multi-symbol element is %T", ErrWrongType, v)
		}
		out[i] = sym
	}
	return out, nil
}

func readBinary(r *buffer.Buffer) ([]byte, error) {
	fc, err := r.ReadByte()
	if err != nil {
		return nil, ErrTruncated
	}
	var length uint32
	switch FormatCode(fc) {
	case TypeCodeNull:
		return nil, nil
	case TypeCodeVbin8:
		b, err := r.ReadByte()
		if err != nil {
			return nil, ErrTruncated
		}
		length = uint32(b)
	case TypeCodeVbin32:
		length, err = r.ReadUint32()
		if err != nil {
			return nil, ErrTruncated
		}
	default:
		return nil, fmt.Errorf("%w: %#02x is not binary", ErrUnknownFormatCode, fc)
	}
	b, err := r.Peek(int(length))
	if err != nil {
		return nil, ErrTruncated
	}
	out := append([]byte(nil), b...)
	r.Skip(int(length))
	return out, nil
}

// readListHeader consumes a list format code and header, returning the
// element count (-1 when the value is a null instead of a list).
func readListHeader(r *buffer.Buffer) (count int, err error) {
	fc, err := r.ReadByte()
	if err != nil {
		return 0, ErrTruncated
	}
	switch FormatCode(fc) {
	case TypeCodeNull:
		return -1, nil
	case TypeCodeList0:
		return 0, nil
	case TypeCodeList8:
		size, err := r.ReadByte()
		if err != nil {
			return 0, ErrTruncated
		}
		n, err := r.ReadByte()
		if err != nil {
			return 0, ErrTruncated
		}
		if int(size) != int(n)+1 && size < 1 {
			return 0, ErrSizeMismatch
		}
		return int(n), nil
	case TypeCodeList32:
		_, err := r.ReadUint32() // size, not needed once we trust doff
		if err != nil {
			return 0, ErrTruncated
		}
		n, err := r.ReadUint32()
		if err != nil {
			return 0, ErrTruncated
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("%w: %#02x is not a list", ErrUnknownFormatCode, fc)
	}
}

func readList(r *buffer.Buffer) ([]any, error) {
	n, err := readListHeader(r)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return nil, nil
	}
	out := make([]any, n)
	for i := 0; i < n; i++ {
		v, err := ReadAny(r)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func readMapHeader(r *buffer.Buffer) (pairs int, err error) {
	fc, err := r.ReadByte()
	if err != nil {
		return 0, ErrTruncated
	}
	switch FormatCode(fc) {
	case TypeCodeNull:
		return -1, nil
	case TypeCodeMap8:
		if _, err := r.ReadByte(); err != nil { // size
			return 0, ErrTruncated
		}
		n, err := r.ReadByte()
		if err != nil {
			return 0, ErrTruncated
		}
		return int(n), nil
	case TypeCodeMap32:
		if _, err := r.ReadUint32(); err != nil { // size
			return 0, ErrTruncated
		}
		n, err := r.ReadUint32()
		if err != nil {
			return 0, ErrTruncated
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("%w: %#02x is not a map", ErrUnknownFormatCode, fc)
	}
}

func readMap(r *buffer.Buffer) (map[any]any, error) {
	pairs, err := readMapHeader(r)
	if err != nil {
		return nil, err
	}
	if pairs <= 0 {
		return map[any]any{}, nil
	}
	if pairs%2 != 0 {
		return nil, ErrSizeMismatch
	}
	out := make(map[any]any, pairs/2)
	for i := 0; i < pairs/2; i++ {
		k, err := ReadAny(r)
		if err != nil {
			return nil, err
		}
		v, err := ReadAny(r)
		if err != nil {
			return nil, err
		}
		if _, dup := out[k]; dup {
			return nil, ErrDuplicateMapKey
		}
		out[k] = v
	}
	return out, nil
}

// ReadAny decodes the next value into its natural Go representation:
// nil, bool, a {u,}int{8,16,32,64}, float32/64, string, []byte, Symbol,
// time.Time, UUID, []any (list/array), map[any]any, or — for a described
// type this package doesn't otherwise recognize — a *Value carrying the
// raw descriptor and payload.
func ReadAny(r *buffer.Buffer) (any, error) {
	fc, err := peekFormatCode(r)
	if err != nil {
		return nil, err
	}

	if fc == TypeCodeDescriptor {
		return decodeDescribedAny(r)
	}

	switch {
	case fc == TypeCodeNull:
		_, _ = r.ReadByte()
		return nil, nil
	case fc == TypeCodeBoolTrue || fc == TypeCodeBoolFalse || fc == TypeCodeBool:
		return readBool(r)
	case fc == TypeCodeUbyte:
		v, err := readUint(r)
		return uint8(v), err
	case fc == TypeCodeUshort:
		v, err := readUint(r)
		return uint16(v), err
	case fc == TypeCodeUint || fc == TypeCodeSmallUint || fc == TypeCodeUint0:
		v, err := readUint(r)
		return uint32(v), err
	case fc == TypeCodeUlong || fc == TypeCodeSmallUlong || fc == TypeCodeUlong0:
		return readUint(r)
	case fc == TypeCodeByte:
		v, err := readInt(r)
		return int8(v), err
	case fc == TypeCodeShort:
		v, err := readInt(r)
		return int16(v), err
	case fc == TypeCodeInt || fc == TypeCodeSmallint:
		v, err := readInt(r)
		return int32(v), err
	case fc == TypeCodeLong || fc == TypeCodeSmalllong:
		return readInt(r)
	case fc == TypeCodeFloat:
		return readFloat32(r)
	case fc == TypeCodeDouble:
		return readFloat64(r)
	case fc == TypeCodeChar:
		_, _ = r.ReadByte()
		v, err := r.ReadUint32()
		return rune(v), err
	case fc == TypeCodeTimestamp:
		return readTimestamp(r)
	case fc == TypeCodeUUID:
		return readUUID(r)
	case fc == TypeCodeVbin8 || fc == TypeCodeVbin32:
		return readBinary(r)
	case fc == TypeCodeStr8 || fc == TypeCodeStr32:
		return readString(r)
	case fc == TypeCodeSym8 || fc == TypeCodeSym32:
		return readSymbol(r)
	case fc == TypeCodeList0 || fc == TypeCodeList8 || fc == TypeCodeList32:
		return readList(r)
	case fc == TypeCodeMap8 || fc == TypeCodeMap32:
		return readMap(r)
	case fc == TypeCodeArray8 || fc == TypeCodeArray32:
		return readArray(r)
	default:
		return nil, fmt.Errorf("%w: %#02x", ErrUnknownFormatCode, fc)
	}
}

// readArray decodes an array (homogeneous list) into a []any; elements
// keep their natural Go type.
func readArray(r *buffer.Buffer) ([]any, error) {
	fc, err := r.ReadByte()
	if err != nil {
		return nil, ErrTruncated
	}
	var count uint32
	switch FormatCode(fc) {
	case TypeCodeArray8:
		if _, err := r.ReadByte(); err != nil { // size
			return nil, ErrTruncated
		}
		n, err := r.ReadByte()
		if err != nil {
			return nil, ErrTruncated
		}
		count = uint32(n)
	case TypeCodeArray32:
		if _, err := r.ReadUint32(); err != nil { // size
			return nil, ErrTruncated
		}
		n, err := r.ReadUint32()
		if err != nil {
			return nil, ErrTruncated
		}
		count = n
	default:
		return nil, fmt.Errorf("%w: %#02x is not an array", ErrUnknownFormatCode, fc)
	}
	if count == 0 {
		// still need to consume the element-type constructor
		if _, err := r.ReadByte(); err != nil {
			return nil, ErrTruncated
		}
		return nil, nil
	}

	elemFC, err := peekFormatCode(r)
	if err != nil {
		return nil, err
	}
	_ = elemFC // the first element is read with its constructor; readArrayElement reads the rest

	out := make([]any, count)
	first, err := ReadAny(r)
	if err != nil {
		return nil, err
	}
	out[0] = first
	for i := uint32(1); i < count; i++ {
		v, err := readArrayElement(r, elemFC)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// readArrayElement reads one array element whose constructor byte was
// already consumed for the first element; AMQP arrays share a single
// constructor, so subsequent elements have no leading format code of
// their own when the format is a fixed-width primitive. This
// implementation re-peeks defensively in case the sender re-emitted it.
func readArrayElement(r *buffer.Buffer, elemFC FormatCode) (any, error) {
	b, err := r.Peek(1)
	if err == nil && FormatCode(b[0]) == elemFC {
		return ReadAny(r)
	}
	return readPrimitiveBody(r, elemFC)
}

// readPrimitiveBody reads a value's body given an already-known format
// code (no constructor byte present on the wire for this element).
func readPrimitiveBody(r *buffer.Buffer, fc FormatCode) (any, error) {
	switch fc {
	case TypeCodeNull, TypeCodeUint0, TypeCodeUlong0, TypeCodeBoolTrue, TypeCodeBoolFalse:
		return fcZeroValue(fc), nil
	case TypeCodeUbyte, TypeCodeByte, TypeCodeSmallUint, TypeCodeSmallUlong, TypeCodeSmallint, TypeCodeSmalllong, TypeCodeBool:
		b, err := r.ReadByte()
		if err != nil {
			return nil, ErrTruncated
		}
		return widenFixed(fc, []byte{b}), nil
	case TypeCodeUshort, TypeCodeShort:
		v, err := r.ReadUint16()
		if err != nil {
			return nil, ErrTruncated
		}
		var buf [2]byte
		buf[0], buf[1] = byte(v>>8), byte(v)
		return widenFixed(fc, buf[:]), nil
	case TypeCodeUint, TypeCodeInt, TypeCodeFloat, TypeCodeChar:
		v, err := r.ReadUint32()
		if err != nil {
			return nil, ErrTruncated
		}
		var buf [4]byte
		for i := 0; i < 4; i++ {
			buf[3-i] = byte(v)
			v >>= 8
		}
		return widenFixed(fc, buf[:]), nil
	case TypeCodeUlong, TypeCodeLong, TypeCodeDouble, TypeCodeTimestamp:
		v, err := r.ReadUint64()
		if err != nil {
			return nil, ErrTruncated
		}
		var buf [8]byte
		for i := 0; i < 8; i++ {
			buf[7-i] = byte(v)
			v >>= 8
		}
		return widenFixed(fc, buf[:]), nil
	case TypeCodeUUID:
		b, err := r.Peek(16)
		if err != nil {
			return nil, ErrTruncated
		}
		var u UUID
		copy(u[:], b)
		r.Skip(16)
		return u, nil
	case TypeCodeStr8, TypeCodeStr32:
		b, err := readVarBody(r, fc == TypeCodeStr32)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	case TypeCodeSym8, TypeCodeSym32:
		b, err := readVarBody(r, fc == TypeCodeSym32)
		if err != nil {
			return nil, err
		}
		for _, c := range b {
			if c > 127 {
				return nil, ErrNotASCII
			}
		}
		return Symbol(b), nil
	case TypeCodeVbin8, TypeCodeVbin32:
		b, err := readVarBody(r, fc == TypeCodeVbin32)
		if err != nil {
			return nil, err
		}
		return append([]byte(nil), b...), nil
	default:
		return nil, fmt.Errorf("%w: %#02x array element", ErrUnknownFormatCode, fc)
	}
}

// readVarBody reads a variable-width array element's length-prefixed body
// when its constructor byte was already consumed (either as the array's
// shared element-type constructor or by readArrayElement's re-peek); wide
// selects the 4-byte length form over the 1-byte form.
func readVarBody(r *buffer.Buffer, wide bool) ([]byte, error) {
	var length uint32
	if wide {
		n, err := r.ReadUint32()
		if err != nil {
			return nil, ErrTruncated
		}
		length = n
	} else {
		n, err := r.ReadByte()
		if err != nil {
			return nil, ErrTruncated
		}
		length = uint32(n)
	}
	b, err := r.Peek(int(length))
	if err != nil {
		return nil, ErrTruncated
	}
	r.Skip(int(length))
	return b, nil
}

func fcZeroValue(fc FormatCode) any {
	switch fc {
	case TypeCodeUint0:
		return uint32(0)
	case TypeCodeUlong0:
		return uint64(0)
	case TypeCodeBoolTrue:
		return true
	case TypeCodeBoolFalse:
		return false
	default:
		return nil
	}
}

func widenFixed(fc FormatCode, b []byte) any {
	switch fc {
	case TypeCodeUbyte:
		return uint8(b[0])
	case TypeCodeByte:
		return int8(b[0])
	case TypeCodeSmallUint:
		return uint32(b[0])
	case TypeCodeSmallUlong:
		return uint64(b[0])
	case TypeCodeSmallint:
		return int32(int8(b[0]))
	case TypeCodeSmalllong:
		return int64(int8(b[0]))
	case TypeCodeBool:
		return b[0] != 0
	case TypeCodeUshort:
		return uint16(uint16(b[0])<<8 | uint16(b[1]))
	case TypeCodeShort:
		return int16(uint16(b[0])<<8 | uint16(b[1]))
	case TypeCodeUint:
		return be32(b)
	case TypeCodeInt:
		return int32(be32(b))
	case TypeCodeFloat:
		return float32FromBits(be32(b))
	case TypeCodeChar:
		return rune(be32(b))
	case TypeCodeUlong:
		return be64(b)
	case TypeCodeLong:
		return int64(be64(b))
	case TypeCodeDouble:
		return float64FromBits(be64(b))
	case TypeCodeTimestamp:
		return time.Unix(0, int64(be64(b))*int64(time.Millisecond))
	default:
		return nil
	}
}

func be32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func be64(b []byte) uint64 {
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v
}

// decodeDescribedAny decodes a described value whose descriptor this
// package doesn't special-case, returning a *Value preserving the
// descriptor and underlying value for forward-compatible round-tripping.
func decodeDescribedAny(r *buffer.Buffer) (any, error) {
	_, _ = r.ReadByte() // consume 0x00
	descriptor, err := ReadAny(r)
	if err != nil {
		return nil, err
	}
	inner, err := ReadAny(r)
	if err != nil {
		return nil, err
	}
	return &Value{kind: KindDescribed, described: &Described{Descriptor: MustValue(descriptor), Value: MustValue(inner)}}, nil
}

// UnmarshalField is one field of a composite's unmarshal table.
type UnmarshalField struct {
	Field      any
	HandleNull func() error
}

// UnmarshalComposite decodes a described-list composite whose descriptor
// code must equal code, filling fields in list order. Fields beyond the
// encoded list's length are left untouched except for invoking
// HandleNull (forward-compatible trailing-field growth, per spec.md's
// "logical null" rule for indices past the decoded list length).
func UnmarshalComposite(r *buffer.Buffer, code uint64, fields ...UnmarshalField) error {
	gotCode, described, err := skipDescriptor(r)
	if err != nil {
		return err
	}
	if !described {
		return fmt.Errorf("encoding: expected described composite 0x%x, got undescribed value", code)
	}
	if gotCode != code {
		return fmt.Errorf("encoding: expected composite 0x%x, got 0x%x", code, gotCode)
	}

	n, err := readListHeader(r)
	if err != nil {
		return err
	}

	for i, f := range fields {
		if i >= n {
			if f.HandleNull != nil {
				if err := f.HandleNull(); err != nil {
					return err
				}
			}
			continue
		}
		isNull, err := nullPeek(r)
		if err != nil {
			return err
		}
		if isNull {
			_, _ = r.ReadByte()
			if f.HandleNull != nil {
				if err := f.HandleNull(); err != nil {
					return err
				}
			}
			continue
		}
		if err := Unmarshal(r, f.Field); err != nil {
			return err
		}
	}

	// drain any trailing fields beyond the ones we modeled, per the
	// "forward-compatible decoding of types that grew new trailing
	// fields" rule.
	for i := len(fields); i < n; i++ {
		if _, err := ReadAny(r); err != nil {
			return err
		}
	}

	return nil
}
