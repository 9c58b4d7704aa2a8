package amqp

import (
	"testing"
	"time"

	"github.com/Azure/go-amqp/internal/buffer"
	"github.com/Azure/go-amqp/internal/encoding"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, in, out *Message) {
	t.Helper()
	var buf buffer.Buffer
	require.NoError(t, in.Marshal(&buf))
	require.NoError(t, out.Unmarshal(&buf))
}

func TestMessage_RoundTrip_DataBody(t *testing.T) {
	in := &Message{
		Header: &MessageHeader{Durable: true, Priority: 9, TTL: 5 * time.Second},
		Properties: &MessageProperties{
			To:          "queue1",
			ContentType: "application/json",
		},
		ApplicationProperties: map[string]any{"x-key": "x-val"},
		Data:                  [][]byte{[]byte("payload")},
	}
	out := &Message{}
	roundTrip(t, in, out)

	require.True(t, out.Header.Durable)
	require.EqualValues(t, 9, out.Header.Priority)
	require.Equal(t, 5*time.Second, out.Header.TTL)
	require.Equal(t, "queue1", out.Properties.To)
	require.EqualValues(t, "application/json", out.Properties.ContentType)
	require.Equal(t, "x-val", out.ApplicationProperties["x-key"])
	require.Equal(t, [][]byte{[]byte("payload")}, out.Data)
}

func TestMessage_RoundTrip_ValueBody(t *testing.T) {
	in := &Message{Value: "hello"}
	out := &Message{}
	roundTrip(t, in, out)
	if diff := cmp.Diff(in.Value, out.Value); diff != "" {
		t.Fatalf("Value mismatch (-want +got):\n%s", diff)
	}
}

func TestMessage_HeaderOmittedWhenNil(t *testing.T) {
	in := &Message{Value: int32(42)}
	var buf buffer.Buffer
	require.NoError(t, in.Marshal(&buf))

	out := &Message{}
	require.NoError(t, out.Unmarshal(&buf))
	require.Nil(t, out.Header)
	require.Nil(t, out.Properties)
	require.Equal(t, int32(42), out.Value)
}

func TestMessage_Annotations(t *testing.T) {
	in := &Message{
		MessageAnnotations: map[encoding.Symbol]any{"x-opt-key": int32(7)},
		Value:              "v",
	}
	out := &Message{}
	roundTrip(t, in, out)
	require.Equal(t, int32(7), out.MessageAnnotations["x-opt-key"])
}
