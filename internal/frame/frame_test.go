package frame

import (
	"testing"
	"time"

	"github.com/Azure/go-amqp/internal/buffer"
	"github.com/Azure/go-amqp/internal/encoding"
	"github.com/stretchr/testify/require"
)

func encodeDecode(t *testing.T, typ Type, channel uint16, body Body) Frame {
	t.Helper()
	var buf buffer.Buffer
	require.NoError(t, Encode(&buf, Frame{Type: typ, Channel: channel, Body: body}))

	r := NewReader(0)
	r.Feed(buf.Bytes())
	fr, ok, err := r.Next()
	require.NoError(t, err)
	require.True(t, ok)
	return fr
}

func TestEncode_PatchesFrameSize(t *testing.T) {
	var buf buffer.Buffer
	require.NoError(t, Encode(&buf, Frame{Type: TypeAMQP, Channel: 3, Body: &PerformOpen{ContainerID: "c1"}}))
	b := buf.Bytes()
	require.EqualValues(t, len(b), be32(b))
	require.Equal(t, byte(HeaderSize/4), b[4])
	require.Equal(t, byte(TypeAMQP), b[5])
	require.EqualValues(t, 3, be16(b[6:8]))
}

func TestEncode_EmptyBody_IsValidKeepaliveFrame(t *testing.T) {
	var buf buffer.Buffer
	require.NoError(t, Encode(&buf, Frame{Type: TypeAMQP, Channel: 0, Body: nil}))
	require.Equal(t, HeaderSize, len(buf.Bytes()))

	r := NewReader(0)
	r.Feed(buf.Bytes())
	fr, ok, err := r.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Nil(t, fr.Body)
}

func TestRoundTrip_PerformOpen(t *testing.T) {
	in := &PerformOpen{
		ContainerID:         "container-1",
		Hostname:            "broker.example.com",
		MaxFrameSize:        16384,
		ChannelMax:          7,
		IdleTimeout:         30 * time.Second,
		OfferedCapabilities: encoding.MultiSymbol{"amqp:local-transactions"},
		DesiredCapabilities: encoding.MultiSymbol{"SHARED-SUBS", "ANONYMOUS-RELAY"},
	}
	fr := encodeDecode(t, TypeAMQP, 0, in)
	out, ok := fr.Body.(*PerformOpen)
	require.True(t, ok)
	require.Equal(t, in.ContainerID, out.ContainerID)
	require.Equal(t, in.Hostname, out.Hostname)
	require.EqualValues(t, 16384, out.MaxFrameSize)
	require.EqualValues(t, 7, out.ChannelMax)
	require.Equal(t, 30*time.Second, out.IdleTimeout)
	require.Equal(t, in.OfferedCapabilities, out.OfferedCapabilities)
	require.Equal(t, in.DesiredCapabilities, out.DesiredCapabilities)
}

func TestRoundTrip_PerformOpen_DefaultsWhenOmitted(t *testing.T) {
	in := &PerformOpen{ContainerID: "c"}
	fr := encodeDecode(t, TypeAMQP, 0, in)
	out := fr.Body.(*PerformOpen)
	require.EqualValues(t, 4294967295, out.MaxFrameSize)
	require.EqualValues(t, 65535, out.ChannelMax)
}

func TestRoundTrip_PerformFlow(t *testing.T) {
	handle := uint32(4)
	credit := uint32(100)
	count := uint32(9)
	in := &PerformFlow{
		NextOutgoingID: 1,
		IncomingWindow: 5000,
		OutgoingWindow: 5000,
		Handle:         &handle,
		DeliveryCount:  &count,
		LinkCredit:     &credit,
		Drain:          true,
	}
	fr := encodeDecode(t, TypeAMQP, 2, in)
	out := fr.Body.(*PerformFlow)
	require.EqualValues(t, 4, *out.Handle)
	require.EqualValues(t, 100, *out.LinkCredit)
	require.True(t, out.Drain)
}

func TestRoundTrip_PerformTransfer_CarriesPayload(t *testing.T) {
	deliveryID := uint32(5)
	in := &PerformTransfer{
		Handle:      1,
		DeliveryID:  &deliveryID,
		DeliveryTag: []byte("tag-1"),
		Payload:     []byte("hello world"),
	}
	fr := encodeDecode(t, TypeAMQP, 0, in)
	out := fr.Body.(*PerformTransfer)
	require.EqualValues(t, 1, out.Handle)
	require.EqualValues(t, 5, *out.DeliveryID)
	require.Equal(t, []byte("tag-1"), out.DeliveryTag)
	require.Equal(t, []byte("hello world"), out.Payload)
}

func TestRoundTrip_PerformDisposition(t *testing.T) {
	last := uint32(10)
	in := &PerformDisposition{
		Role:    encoding.RoleReceiver,
		First:   5,
		Last:    &last,
		Settled: true,
	}
	fr := encodeDecode(t, TypeAMQP, 0, in)
	out := fr.Body.(*PerformDisposition)
	require.Equal(t, encoding.RoleReceiver, out.Role)
	require.EqualValues(t, 5, out.First)
	require.EqualValues(t, 10, *out.Last)
	require.True(t, out.Settled)
}

func TestRoundTrip_SASLMechanisms_MultipleMechanisms(t *testing.T) {
	in := &SASLMechanisms{Mechanisms: encoding.MultiSymbol{"ANONYMOUS", "PLAIN", "XOAUTH2"}}
	fr := encodeDecode(t, TypeSASL, 0, in)
	out := fr.Body.(*SASLMechanisms)
	require.Equal(t, in.Mechanisms, out.Mechanisms)
}

func TestReader_Next_ReturnsNotOkOnPartialFrame(t *testing.T) {
	var buf buffer.Buffer
	require.NoError(t, Encode(&buf, Frame{Type: TypeAMQP, Body: &PerformOpen{ContainerID: "c"}}))
	full := buf.Bytes()

	r := NewReader(0)
	r.Feed(full[:len(full)-1])
	_, ok, err := r.Next()
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, len(full)-1, r.Pending())

	r.Feed(full[len(full)-1:])
	_, ok, err = r.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 0, r.Pending())
}

func TestReader_Next_RejectsFrameExceedingMaxFrameSize(t *testing.T) {
	var buf buffer.Buffer
	require.NoError(t, Encode(&buf, Frame{Type: TypeAMQP, Body: &PerformOpen{ContainerID: "c"}}))

	r := NewReader(uint32(len(buf.Bytes()) - 1))
	r.Feed(buf.Bytes())
	_, _, err := r.Next()
	require.Error(t, err)
}

func TestReader_Next_RejectsDeclaredSizeSmallerThanHeader(t *testing.T) {
	r := NewReader(0)
	r.Feed([]byte{0, 0, 0, 4, 2, 0, 0, 0})
	_, _, err := r.Next()
	require.ErrorIs(t, err, ErrFrameTooSmall)
}

func TestReader_Next_DecodesMultipleFramesAcrossFeeds(t *testing.T) {
	var first, second buffer.Buffer
	require.NoError(t, Encode(&first, Frame{Type: TypeAMQP, Channel: 1, Body: &PerformOpen{ContainerID: "a"}}))
	require.NoError(t, Encode(&second, Frame{Type: TypeAMQP, Channel: 2, Body: &PerformOpen{ContainerID: "b"}}))

	r := NewReader(0)
	r.Feed(append(first.Bytes(), second.Bytes()...))

	fr1, ok, err := r.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 1, fr1.Channel)

	fr2, ok, err := r.Next()
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 2, fr2.Channel)

	_, ok, err = r.Next()
	require.NoError(t, err)
	require.False(t, ok)
}
