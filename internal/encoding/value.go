package encoding

import (
	"fmt"
	"math"
	"time"
	"unicode/utf8"

	"github.com/Azure/go-amqp/internal/buffer"
)

// Kind identifies which AMQP type a Value holds.
type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindUbyte
	KindUshort
	KindUint
	KindUlong
	KindByte
	KindShort
	KindInt
	KindLong
	KindFloat
	KindDouble
	KindChar
	KindTimestamp
	KindUUID
	KindBinary
	KindString
	KindSymbol
	KindList
	KindMap
	KindArray
	KindDescribed
	KindComposite
)

func (k Kind) String() string {
	names := [...]string{
		"null", "bool", "ubyte", "ushort", "uint", "ulong", "byte", "short",
		"int", "long", "float", "double", "char", "timestamp", "uuid",
		"binary", "string", "symbol", "list", "map", "array", "described",
		"composite",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// MapEntry is one key/value pair of a Value-kind map, preserving
// insertion order (AMQP maps are ordered key→value pairs).
type MapEntry struct {
	Key   Value
	Value Value
}

// Described is a {descriptor, value} pair. A Composite is a Described
// whose Value is a List and whose Descriptor identifies the composite's
// schema (a performative or message-section type).
type Described struct {
	Descriptor Value
	Value      Value
}

// Value is a tagged variant over the AMQP type system (spec.md §3/§4.1),
// grounded on the opaque AMQP_VALUE handle of the original C
// implementation (original_source/inc/amqpvalue.h's amqpvalue_create_*/
// amqpvalue_get_* functions), reimagined as an immutable Go value type
// with typed constructors and typed, fallible accessors.
//
// Every Value carries enough information to be encoded back to the exact
// bit pattern it was decoded from, modulo the equivalence class of
// same-value different-width representations (e.g. uint encoded as
// uint0/smalluint/uint — decoding never records which short form a peer
// used, since the decoder must not be sensitive to it).
type Value struct {
	kind Kind
	raw  any // scalar payload for Null..Symbol kinds

	list      []Value // List, Array element storage
	arrayKind Kind    // element kind, Array only

	m []MapEntry // Map

	described *Described // Described, Composite
}

// Kind reports which AMQP type the Value holds.
func (v Value) Kind() Kind { return v.kind }

// ---- constructors ----

func NewNull() Value { return Value{kind: KindNull} }

func NewBool(b bool) Value { return Value{kind: KindBool, raw: b} }

func NewUbyte(b uint8) Value   { return Value{kind: KindUbyte, raw: b} }
func NewUshort(u uint16) Value { return Value{kind: KindUshort, raw: u} }
func NewUint(u uint32) Value   { return Value{kind: KindUint, raw: u} }
func NewUlong(u uint64) Value  { return Value{kind: KindUlong, raw: u} }
func NewByte(b int8) Value     { return Value{kind: KindByte, raw: b} }
func NewShort(s int16) Value   { return Value{kind: KindShort, raw: s} }
func NewInt(i int32) Value     { return Value{kind: KindInt, raw: i} }
func NewLong(l int64) Value    { return Value{kind: KindLong, raw: l} }
func NewFloat(f float32) Value { return Value{kind: KindFloat, raw: f} }
func NewDouble(f float64) Value { return Value{kind: KindDouble, raw: f} }

// NewChar validates that r is a legal Unicode code point.
func NewChar(r rune) (Value, error) {
	if r < 0 || r > utf8.MaxRune {
		return Value{}, fmt.Errorf("%w: %#x is not a valid code point", ErrInvalidArgument, r)
	}
	return Value{kind: KindChar, raw: r}, nil
}

func NewTimestamp(t time.Time) Value { return Value{kind: KindTimestamp, raw: t} }

func NewUUID(u [16]byte) Value { return Value{kind: KindUUID, raw: UUID(u)} }

func NewBinary(b []byte) Value {
	cp := append([]byte(nil), b...)
	return Value{kind: KindBinary, raw: cp}
}

// NewString validates that s is valid UTF-8.
func NewString(s string) (Value, error) {
	if !utf8.ValidString(s) {
		return Value{}, fmt.Errorf("%w: %w", ErrUTF8, ErrInvalidArgument)
	}
	return Value{kind: KindString, raw: s}, nil
}

// NewSymbol validates that s contains only ASCII bytes.
func NewSymbol(s string) (Value, error) {
	for i := 0; i < len(s); i++ {
		if s[i] > 127 {
			return Value{}, fmt.Errorf("%w: %w", ErrNotASCII, ErrInvalidArgument)
		}
	}
	return Value{kind: KindSymbol, raw: Symbol(s)}, nil
}

// NewList constructs an ordered sequence of heterogeneous Values.
func NewList(items []Value) Value {
	cp := append([]Value(nil), items...)
	return Value{kind: KindList, list: cp}
}

// NewMap constructs an ordered key→value map. Keys must be unique.
func NewMap(entries []MapEntry) (Value, error) {
	seen := make(map[string]struct{}, len(entries))
	cp := make([]MapEntry, len(entries))
	for i, e := range entries {
		key := mapKeyString(e.Key)
		if _, dup := seen[key]; dup {
			return Value{}, fmt.Errorf("%w: %w", ErrDuplicateMapKey, ErrInvalidArgument)
		}
		seen[key] = struct{}{}
		cp[i] = e
	}
	return Value{kind: KindMap, m: cp}, nil
}

// NewArray constructs a homogeneous sequence; every item must have kind
// elemKind.
func NewArray(elemKind Kind, items []Value) (Value, error) {
	cp := make([]Value, len(items))
	for i, it := range items {
		if it.kind != elemKind {
			return Value{}, fmt.Errorf("%w: array element %d has kind %s, want %s", ErrInvalidArgument, i, it.kind, elemKind)
		}
		cp[i] = it
	}
	return Value{kind: KindArray, arrayKind: elemKind, list: cp}, nil
}

// NewDescribed constructs a described value: {descriptor, value}.
func NewDescribed(descriptor, value Value) Value {
	return Value{kind: KindDescribed, described: &Described{Descriptor: descriptor, Value: value}}
}

// NewComposite constructs a described list composite identified by code
// (the small-ulong descriptor value performatives and message sections
// use).
func NewComposite(code uint64, fields []Value) Value {
	return Value{
		kind: KindComposite,
		described: &Described{
			Descriptor: NewUlong(code),
			Value:      NewList(fields),
		},
	}
}

// MustValue wraps a native Go value (as produced by ReadAny) into a
// Value, panicking only on a programmer error (an unrepresentable Go
// type reaching this function, which ReadAny never produces).
func MustValue(native any) Value {
	v, err := FromNative(native)
	if err != nil {
		panic(err)
	}
	return v
}

// FromNative converts a native Go representation (as returned by ReadAny,
// or the equivalent caller-constructed value) into a Value.
func FromNative(native any) (Value, error) {
	switch t := native.(type) {
	case nil:
		return NewNull(), nil
	case bool:
		return NewBool(t), nil
	case uint8:
		return NewUbyte(t), nil
	case uint16:
		return NewUshort(t), nil
	case uint32:
		return NewUint(t), nil
	case uint64:
		return NewUlong(t), nil
	case int8:
		return NewByte(t), nil
	case int16:
		return NewShort(t), nil
	case int32: // rune is int32; ReadAny's char values land here as Int, not Char
		return NewInt(t), nil
	case int64:
		return NewLong(t), nil
	case float32:
		return NewFloat(t), nil
	case float64:
		return NewDouble(t), nil
	case time.Time:
		return NewTimestamp(t), nil
	case UUID:
		return NewUUID([16]byte(t)), nil
	case []byte:
		return NewBinary(t), nil
	case string:
		return NewString(t)
	case Symbol:
		return NewSymbol(string(t))
	case *Value:
		return *t, nil
	case []any:
		items := make([]Value, len(t))
		for i, it := range t {
			v, err := FromNative(it)
			if err != nil {
				return Value{}, err
			}
			items[i] = v
		}
		return NewList(items), nil
	case map[any]any:
		entries := make([]MapEntry, 0, len(t))
		for k, val := range t {
			kv, err := FromNative(k)
			if err != nil {
				return Value{}, err
			}
			vv, err := FromNative(val)
			if err != nil {
				return Value{}, err
			}
			entries = append(entries, MapEntry{Key: kv, Value: vv})
		}
		return NewMap(entries)
	default:
		return Value{}, fmt.Errorf("%w: cannot represent %T as a Value", ErrInvalidArgument, native)
	}
}

func mapKeyString(v Value) string {
	return fmt.Sprintf("%d:%v", v.kind, v.raw)
}

// ---- accessors ----

func (v Value) Bool() (bool, error) {
	if v.kind != KindBool {
		return false, fmt.Errorf("%w: Value is %s, not bool", ErrWrongType, v.kind)
	}
	return v.raw.(bool), nil
}

func (v Value) Uint64() (uint64, error) {
	switch v.kind {
	case KindUbyte:
		return uint64(v.raw.(uint8)), nil
	case KindUshort:
		return uint64(v.raw.(uint16)), nil
	case KindUint:
		return uint64(v.raw.(uint32)), nil
	case KindUlong:
		return v.raw.(uint64), nil
	default:
		return 0, fmt.Errorf("%w: Value is %s, not an unsigned integer", ErrWrongType, v.kind)
	}
}

func (v Value) Uint32() (uint32, error) {
	u, err := v.Uint64()
	if err != nil {
		return 0, err
	}
	if u > math.MaxUint32 {
		return 0, fmt.Errorf("%w: %d does not fit in uint32", ErrOverflow, u)
	}
	return uint32(u), nil
}

func (v Value) Uint16() (uint16, error) {
	u, err := v.Uint64()
	if err != nil {
		return 0, err
	}
	if u > math.MaxUint16 {
		return 0, fmt.Errorf("%w: %d does not fit in uint16", ErrOverflow, u)
	}
	return uint16(u), nil
}

func (v Value) Uint8() (uint8, error) {
	u, err := v.Uint64()
	if err != nil {
		return 0, err
	}
	if u > math.MaxUint8 {
		return 0, fmt.Errorf("%w: %d does not fit in uint8", ErrOverflow, u)
	}
	return uint8(u), nil
}

func (v Value) Int64() (int64, error) {
	switch v.kind {
	case KindByte:
		return int64(v.raw.(int8)), nil
	case KindShort:
		return int64(v.raw.(int16)), nil
	case KindInt:
		return int64(v.raw.(int32)), nil
	case KindLong:
		return v.raw.(int64), nil
	default:
		return 0, fmt.Errorf("%w: Value is %s, not a signed integer", ErrWrongType, v.kind)
	}
}

func (v Value) Int32() (int32, error) {
	i, err := v.Int64()
	if err != nil {
		return 0, err
	}
	if i > math.MaxInt32 || i < math.MinInt32 {
		return 0, fmt.Errorf("%w: %d does not fit in int32", ErrOverflow, i)
	}
	return int32(i), nil
}

func (v Value) Int16() (int16, error) {
	i, err := v.Int64()
	if err != nil {
		return 0, err
	}
	if i > math.MaxInt16 || i < math.MinInt16 {
		return 0, fmt.Errorf("%w: %d does not fit in int16", ErrOverflow, i)
	}
	return int16(i), nil
}

func (v Value) Int8() (int8, error) {
	i, err := v.Int64()
	if err != nil {
		return 0, err
	}
	if i > math.MaxInt8 || i < math.MinInt8 {
		return 0, fmt.Errorf("%w: %d does not fit in int8", ErrOverflow, i)
	}
	return int8(i), nil
}

func (v Value) Float32() (float32, error) {
	if v.kind != KindFloat {
		return 0, fmt.Errorf("%w: Value is %s, not float32", ErrWrongType, v.kind)
	}
	return v.raw.(float32), nil
}

func (v Value) Float64() (float64, error) {
	if v.kind != KindDouble {
		return 0, fmt.Errorf("%w: Value is %s, not float64", ErrWrongType, v.kind)
	}
	return v.raw.(float64), nil
}

func (v Value) Char() (rune, error) {
	if v.kind != KindChar {
		return 0, fmt.Errorf("%w: Value is %s, not char", ErrWrongType, v.kind)
	}
	return v.raw.(rune), nil
}

func (v Value) Timestamp() (time.Time, error) {
	if v.kind != KindTimestamp {
		return time.Time{}, fmt.Errorf("%w: Value is %s, not timestamp", ErrWrongType, v.kind)
	}
	return v.raw.(time.Time), nil
}

func (v Value) UUID() (UUID, error) {
	if v.kind != KindUUID {
		return UUID{}, fmt.Errorf("%w: Value is %s, not uuid", ErrWrongType, v.kind)
	}
	return v.raw.(UUID), nil
}

func (v Value) Binary() ([]byte, error) {
	if v.kind != KindBinary {
		return nil, fmt.Errorf("%w: Value is %s, not binary", ErrWrongType, v.kind)
	}
	return append([]byte(nil), v.raw.([]byte)...), nil
}

func (v Value) String() (string, error) {
	if v.kind != KindString {
		return "", fmt.Errorf("%w: Value is %s, not string", ErrWrongType, v.kind)
	}
	return v.raw.(string), nil
}

func (v Value) Symbol() (Symbol, error) {
	if v.kind != KindSymbol {
		return "", fmt.Errorf("%w: Value is %s, not symbol", ErrWrongType, v.kind)
	}
	return v.raw.(Symbol), nil
}

func (v Value) List() ([]Value, error) {
	if v.kind != KindList {
		return nil, fmt.Errorf("%w: Value is %s, not list", ErrWrongType, v.kind)
	}
	return append([]Value(nil), v.list...), nil
}

func (v Value) Map() ([]MapEntry, error) {
	if v.kind != KindMap {
		return nil, fmt.Errorf("%w: Value is %s, not map", ErrWrongType, v.kind)
	}
	return append([]MapEntry(nil), v.m...), nil
}

func (v Value) Array() ([]Value, Kind, error) {
	if v.kind != KindArray {
		return nil, 0, fmt.Errorf("%w: Value is %s, not array", ErrWrongType, v.kind)
	}
	return append([]Value(nil), v.list...), v.arrayKind, nil
}

func (v Value) Described() (*Described, error) {
	if v.kind != KindDescribed && v.kind != KindComposite {
		return nil, fmt.Errorf("%w: Value is %s, not described", ErrWrongType, v.kind)
	}
	return v.described, nil
}

// CompositeItem returns the i'th field of a composite's underlying list.
// An index past the decoded list's length returns a logical null instead
// of an error, so decoders of a type that later grew trailing fields
// remain forward-compatible.
func (v Value) CompositeItem(i int) (Value, error) {
	d, err := v.Described()
	if err != nil {
		return Value{}, err
	}
	items, err := d.Value.List()
	if err != nil {
		return Value{}, err
	}
	if i >= len(items) {
		return NewNull(), nil
	}
	return items[i], nil
}

// Clone returns a deep logical copy. Because Values are immutable,
// backing byte/string/slice storage may be shared rather than copied.
func (v Value) Clone() Value {
	return v
}

// ---- encode/decode ----

// Encode writes the canonical byte form of v to wr.
func (v Value) Encode(wr *buffer.Buffer) error {
	switch v.kind {
	case KindNull:
		wr.WriteByte(byte(TypeCodeNull))
		return nil
	case KindBool:
		return Marshal(wr, v.raw.(bool))
	case KindUbyte:
		return Marshal(wr, v.raw.(uint8))
	case KindUshort:
		return Marshal(wr, v.raw.(uint16))
	case KindUint:
		return Marshal(wr, v.raw.(uint32))
	case KindUlong:
		return Marshal(wr, v.raw.(uint64))
	case KindByte:
		return Marshal(wr, v.raw.(int8))
	case KindShort:
		return Marshal(wr, v.raw.(int16))
	case KindInt:
		return Marshal(wr, v.raw.(int32))
	case KindLong:
		return Marshal(wr, v.raw.(int64))
	case KindFloat:
		return Marshal(wr, v.raw.(float32))
	case KindDouble:
		return Marshal(wr, v.raw.(float64))
	case KindChar:
		wr.WriteByte(byte(TypeCodeChar))
		wr.WriteUint32(uint32(v.raw.(rune)))
		return nil
	case KindTimestamp:
		return Marshal(wr, v.raw.(time.Time))
	case KindUUID:
		return Marshal(wr, v.raw.(UUID))
	case KindBinary:
		return Marshal(wr, v.raw.([]byte))
	case KindString:
		return Marshal(wr, v.raw.(string))
	case KindSymbol:
		return Marshal(wr, v.raw.(Symbol))
	case KindList:
		vals := make([]any, len(v.list))
		for i, it := range v.list {
			vals[i] = it
		}
		return writeList(wr, vals)
	case KindMap:
		return writeValueMap(wr, v.m)
	case KindArray:
		return v.encodeArray(wr)
	case KindDescribed:
		writeDescriptorValue(wr, v.described.Descriptor)
		return v.described.Value.Encode(wr)
	case KindComposite:
		code, err := v.described.Descriptor.Uint64()
		if err != nil {
			return err
		}
		items, err := v.described.Value.List()
		if err != nil {
			return err
		}
		fields := make([]MarshalField, len(items))
		for i, it := range items {
			fields[i] = MarshalField{Value: it, Omit: it.kind == KindNull}
		}
		return MarshalComposite(wr, code, fields)
	default:
		return fmt.Errorf("encoding: unknown Value kind %d", v.kind)
	}
}

// writeValueMap encodes entries directly rather than routing through
// writeMap's map[any]any, since Value is not a comparable type (it
// embeds slices for its list/map/array variants) and cannot be used as
// a Go map key.
func writeValueMap(wr *buffer.Buffer, entries []MapEntry) error {
	var body buffer.Buffer
	for _, e := range entries {
		if err := e.Key.Encode(&body); err != nil {
			return err
		}
		if err := e.Value.Encode(&body); err != nil {
			return err
		}
	}
	pairs := len(entries) * 2

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

func writeDescriptorValue(wr *buffer.Buffer, descriptor Value) {
	wr.WriteByte(byte(TypeCodeDescriptor))
	_ = descriptor.Encode(wr)
}

// encodeArray writes a homogeneous array using the element kind's
// constructor once, followed by each element's body (no per-element
// constructor byte), per AMQP's array encoding.
func (v Value) encodeArray(wr *buffer.Buffer) error {
	var body buffer.Buffer
	fc, err := arrayElementFormatCode(v.arrayKind)
	if err != nil {
		return err
	}
	for _, it := range v.list {
		if err := it.encodeArrayElementBody(&body); err != nil {
			return err
		}
	}

	n := len(v.list)
	if body.Len()+1+4 <= 255 {
		_, _ = wr.Write([]byte{byte(TypeCodeArray8), byte(body.Len() + 2), byte(n), byte(fc)})
		_, _ = wr.Write(body.Bytes())
		return nil
	}
	wr.WriteByte(byte(TypeCodeArray32))
	wr.WriteUint32(uint32(body.Len() + 5))
	wr.WriteUint32(uint32(n))
	wr.WriteByte(byte(fc))
	_, _ = wr.Write(body.Bytes())
	return nil
}

func arrayElementFormatCode(k Kind) (FormatCode, error) {
	switch k {
	case KindBool:
		return TypeCodeBool, nil
	case KindUbyte:
		return TypeCodeUbyte, nil
	case KindUshort:
		return TypeCodeUshort, nil
	case KindUint:
		return TypeCodeUint, nil
	case KindUlong:
		return TypeCodeUlong, nil
	case KindByte:
		return TypeCodeByte, nil
	case KindShort:
		return TypeCodeShort, nil
	case KindInt:
		return TypeCodeInt, nil
	case KindLong:
		return TypeCodeLong, nil
	case KindFloat:
		return TypeCodeFloat, nil
	case KindDouble:
		return TypeCodeDouble, nil
	case KindChar:
		return TypeCodeChar, nil
	case KindTimestamp:
		return TypeCodeTimestamp, nil
	case KindUUID:
		return TypeCodeUUID, nil
	case KindBinary:
		return TypeCodeVbin32, nil
	case KindString:
		return TypeCodeStr32, nil
	case KindSymbol:
		return TypeCodeSym32, nil
	default:
		return 0, fmt.Errorf("encoding: %s cannot be an array element", k)
	}
}

// encodeArrayElementBody writes only the body bytes for an array
// element, using the full-width variable-length forms so every element
// is self-delimited without needing a repeated constructor.
func (v Value) encodeArrayElementBody(wr *buffer.Buffer) error {
	switch v.kind {
	case KindBool:
		b := v.raw.(bool)
		if b {
			wr.WriteByte(1)
		} else {
			wr.WriteByte(0)
		}
	case KindUbyte:
		wr.WriteByte(v.raw.(uint8))
	case KindUshort:
		wr.WriteUint16(v.raw.(uint16))
	case KindUint:
		wr.WriteUint32(v.raw.(uint32))
	case KindUlong:
		wr.WriteUint64(v.raw.(uint64))
	case KindByte:
		wr.WriteByte(byte(v.raw.(int8)))
	case KindShort:
		wr.WriteUint16(uint16(v.raw.(int16)))
	case KindInt:
		wr.WriteUint32(uint32(v.raw.(int32)))
	case KindLong:
		wr.WriteUint64(uint64(v.raw.(int64)))
	case KindFloat:
		wr.WriteUint32(math.Float32bits(v.raw.(float32)))
	case KindDouble:
		wr.WriteUint64(math.Float64bits(v.raw.(float64)))
	case KindChar:
		wr.WriteUint32(uint32(v.raw.(rune)))
	case KindTimestamp:
		ms := v.raw.(time.Time).UnixNano() / int64(time.Millisecond)
		wr.WriteUint64(uint64(ms))
	case KindUUID:
		u := v.raw.(UUID)
		_, _ = wr.Write(u[:])
	case KindBinary:
		b := v.raw.([]byte)
		wr.WriteUint32(uint32(len(b)))
		_, _ = wr.Write(b)
	case KindString:
		s := v.raw.(string)
		wr.WriteUint32(uint32(len(s)))
		wr.WriteString(s)
	case KindSymbol:
		s := string(v.raw.(Symbol))
		wr.WriteUint32(uint32(len(s)))
		wr.WriteString(s)
	default:
		return fmt.Errorf("encoding: %s cannot be an array element", v.kind)
	}
	return nil
}

// EncodedSize reports the byte length Encode would produce.
func (v Value) EncodedSize() (int, error) {
	var buf buffer.Buffer
	if err := v.Encode(&buf); err != nil {
		return 0, err
	}
	return buf.Size(), nil
}

// Unmarshal implements Unmarshaler, allowing *Value to appear as a field
// target in UnmarshalComposite tables (used for message body Value
// sections and application-properties entries).
func (v *Value) Unmarshal(r *buffer.Buffer) error {
	if fc, err := peekFormatCode(r); err == nil && (fc == TypeCodeArray8 || fc == TypeCodeArray32) {
		items, err := readArray(r)
		if err != nil {
			return err
		}
		out := Value{kind: KindArray, arrayKind: KindNull, list: make([]Value, len(items))}
		for i, it := range items {
			if out.list[i], err = FromNative(it); err != nil {
				return err
			}
			out.arrayKind = out.list[i].kind
		}
		*v = out
		return nil
	}
	native, err := ReadAny(r)
	if err != nil {
		return err
	}
	val, err := valueFromNativeOrSelf(native)
	if err != nil {
		return err
	}
	*v = val
	return nil
}

func valueFromNativeOrSelf(native any) (Value, error) {
	if val, ok := native.(*Value); ok {
		return *val, nil
	}
	return FromNative(native)
}

// DecodeValue parses one Value from buf, returning the value and the
// number of bytes consumed.
func DecodeValue(buf []byte) (Value, int, error) {
	r := buffer.New(buf)
	before := r.Len()
	var v Value
	if err := v.Unmarshal(r); err != nil {
		return Value{}, 0, err
	}
	consumed := before - r.Len()
	return v, consumed, nil
}

func float32FromBits(b uint32) float32 { return math.Float32frombits(b) }
func float64FromBits(b uint64) float64 { return math.Float64frombits(b) }
