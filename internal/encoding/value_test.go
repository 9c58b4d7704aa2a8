package encoding

import (
	"testing"
	"time"

	"github.com/Azure/go-amqp/internal/buffer"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, v Value) Value {
	t.Helper()
	var buf buffer.Buffer
	require.NoError(t, v.Encode(&buf))

	var out Value
	require.NoError(t, out.Unmarshal(&buf))
	return out
}

func TestValue_RoundTrip_Scalars(t *testing.T) {
	cases := []Value{
		NewNull(),
		NewBool(true),
		NewBool(false),
		NewUbyte(200),
		NewUshort(40000),
		NewUint(0),
		NewUint(70000),
		NewUlong(0),
		NewUlong(1 << 40),
		NewByte(-100),
		NewShort(-4000),
		NewInt(-70000),
		NewLong(-1 << 40),
		NewFloat(3.25),
		NewDouble(3.140625),
		NewUUID([16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}),
		NewBinary([]byte{0xde, 0xad, 0xbe, 0xef}),
	}
	for _, in := range cases {
		out := roundTrip(t, in)
		require.Equal(t, in.Kind(), out.Kind())
		require.Equal(t, in.raw, out.raw)
	}
}

func TestValue_RoundTrip_Timestamp(t *testing.T) {
	in := NewTimestamp(time.UnixMilli(1700000000123))
	out := roundTrip(t, in)
	require.Equal(t, KindTimestamp, out.Kind())
	got, err := out.Timestamp()
	require.NoError(t, err)
	require.True(t, in.raw.(time.Time).Equal(got))
}

func TestValue_RoundTrip_String(t *testing.T) {
	in, err := NewString("hello, amqp")
	require.NoError(t, err)
	out := roundTrip(t, in)
	s, err := out.String()
	require.NoError(t, err)
	require.Equal(t, "hello, amqp", s)
}

func TestValue_RoundTrip_String_Wide(t *testing.T) {
	long := make([]byte, 300)
	for i := range long {
		long[i] = byte('a' + i%26)
	}
	in, err := NewString(string(long))
	require.NoError(t, err)
	out := roundTrip(t, in)
	s, err := out.String()
	require.NoError(t, err)
	require.Equal(t, string(long), s)
}

func TestValue_RoundTrip_Symbol(t *testing.T) {
	in, err := NewSymbol("amqp:accepted:list")
	require.NoError(t, err)
	out := roundTrip(t, in)
	sym, err := out.Symbol()
	require.NoError(t, err)
	require.EqualValues(t, "amqp:accepted:list", sym)
}

func TestValue_RoundTrip_List(t *testing.T) {
	in := NewList([]Value{NewUint(1), NewBool(true), mustString(t, "three")})
	out := roundTrip(t, in)
	items, err := out.List()
	require.NoError(t, err)
	require.Len(t, items, 3)
	require.Equal(t, KindUint, items[0].Kind())
	require.Equal(t, KindBool, items[1].Kind())
	require.Equal(t, KindString, items[2].Kind())
}

func TestValue_RoundTrip_Map(t *testing.T) {
	in, err := NewMap([]MapEntry{
		{Key: mustSymbol(t, "k1"), Value: NewUint(1)},
		{Key: mustSymbol(t, "k2"), Value: NewBool(false)},
	})
	require.NoError(t, err)
	out := roundTrip(t, in)
	entries, err := out.Map()
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestValue_NewMap_RejectsDuplicateKeys(t *testing.T) {
	_, err := NewMap([]MapEntry{
		{Key: mustSymbol(t, "dup"), Value: NewUint(1)},
		{Key: mustSymbol(t, "dup"), Value: NewUint(2)},
	})
	require.ErrorIs(t, err, ErrDuplicateMapKey)
}

// Array round trips exercise the variable-width element kinds
// (string/symbol/binary) whose per-element bodies, unlike fixed-width
// kinds, carry their own length prefix on the wire.
func TestValue_RoundTrip_Array_Strings(t *testing.T) {
	in, err := NewArray(KindString, []Value{
		mustString(t, "one"), mustString(t, "two"), mustString(t, "three"),
	})
	require.NoError(t, err)
	out := roundTrip(t, in)
	items, kind, err := out.Array()
	require.NoError(t, err)
	require.Equal(t, KindString, kind)
	require.Len(t, items, 3)
	for i, want := range []string{"one", "two", "three"} {
		s, err := items[i].String()
		require.NoError(t, err)
		require.Equal(t, want, s)
	}
}

func TestValue_RoundTrip_Array_Symbols(t *testing.T) {
	in, err := NewArray(KindSymbol, []Value{
		mustSymbol(t, "PLAIN"), mustSymbol(t, "ANONYMOUS"), mustSymbol(t, "XOAUTH2"),
	})
	require.NoError(t, err)
	out := roundTrip(t, in)
	items, kind, err := out.Array()
	require.NoError(t, err)
	require.Equal(t, KindSymbol, kind)
	require.Len(t, items, 3)
	for i, want := range []Symbol{"PLAIN", "ANONYMOUS", "XOAUTH2"} {
		sym, err := items[i].Symbol()
		require.NoError(t, err)
		require.Equal(t, want, sym)
	}
}

func TestValue_RoundTrip_Array_Binary(t *testing.T) {
	in, err := NewArray(KindBinary, []Value{
		NewBinary([]byte{1, 2}), NewBinary([]byte{3, 4, 5}), NewBinary(nil),
	})
	require.NoError(t, err)
	out := roundTrip(t, in)
	items, kind, err := out.Array()
	require.NoError(t, err)
	require.Equal(t, KindBinary, kind)
	require.Len(t, items, 3)
	b, err := items[1].Binary()
	require.NoError(t, err)
	require.Equal(t, []byte{3, 4, 5}, b)
}

func TestValue_NewArray_RejectsMixedKinds(t *testing.T) {
	_, err := NewArray(KindString, []Value{mustString(t, "ok"), NewUint(1)})
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestValue_WrongAccessor_ReturnsErrWrongType(t *testing.T) {
	v := NewUint(42)
	_, err := v.String()
	require.ErrorIs(t, err, ErrWrongType)
}

func TestValue_NarrowingAccessor_ReturnsErrOverflow(t *testing.T) {
	v := NewUlong(1 << 40)
	_, err := v.Uint32()
	require.ErrorIs(t, err, ErrOverflow)
}

func TestValue_NewString_RejectsInvalidUTF8(t *testing.T) {
	_, err := NewString(string([]byte{0xff, 0xfe}))
	require.ErrorIs(t, err, ErrUTF8)
}

func TestValue_NewSymbol_RejectsNonASCII(t *testing.T) {
	_, err := NewSymbol("caf\xc3\xa9")
	require.ErrorIs(t, err, ErrNotASCII)
}

func mustString(t *testing.T, s string) Value {
	t.Helper()
	v, err := NewString(s)
	require.NoError(t, err)
	return v
}

func mustSymbol(t *testing.T, s string) Value {
	t.Helper()
	v, err := NewSymbol(s)
	require.NoError(t, err)
	return v
}
