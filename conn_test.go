package amqp

import (
	"testing"

	"github.com/Azure/go-amqp/internal/buffer"
	"github.com/Azure/go-amqp/internal/encoding"
	"github.com/Azure/go-amqp/internal/frame"
	"github.com/stretchr/testify/require"
)

func TestNewConn_SendsAMQPHeaderImmediately(t *testing.T) {
	tp := &fakeTransport{}
	c, err := NewConn(tp, nil)
	require.NoError(t, err)
	require.Equal(t, ConnStateHdrSent, c.state)
	require.Equal(t, [][]byte{amqpHeader[:]}, tp.sent)
}

func TestConn_OpenHandshake(t *testing.T) {
	tp := &fakeTransport{}
	var gotStates []ConnState
	c, err := NewConn(tp, &ConnOptions{
		ContainerID:       "test-container",
		OnConnStateChange: func(s ConnState) { gotStates = append(gotStates, s) },
	})
	require.NoError(t, err)
	tp.reset() // drop our own protocol header; decodeFrames parses frames only

	// peer echoes the header, then our own sendOpen fires as a side effect
	require.NoError(t, c.OnBytesReceived(amqpHeader[:]))
	require.Equal(t, ConnStateOpenSent, c.state)

	// peer's open arrives
	peerOpen := encodeFrame(0, &frame.PerformOpen{
		ContainerID:  "peer",
		MaxFrameSize: 16384,
		ChannelMax:   10,
	})
	require.NoError(t, c.OnBytesReceived(peerOpen))
	require.Equal(t, ConnStateOpened, c.state)
	require.EqualValues(t, 16384, c.peerMaxFrameSize)
	require.EqualValues(t, 10, c.peerChannelMax)

	require.Contains(t, gotStates, ConnStateOpened)

	frames := decodeFrames(t, tp.all())
	require.Len(t, frames, 1)
	open, ok := frames[0].Body.(*frame.PerformOpen)
	require.True(t, ok)
	require.Equal(t, "test-container", open.ContainerID)
}

func TestConn_CloseEchoesAndReportsRemoteError(t *testing.T) {
	tp := &fakeTransport{}
	c, err := NewConn(tp, nil)
	require.NoError(t, err)
	require.NoError(t, c.OnBytesReceived(amqpHeader[:]))
	require.NoError(t, c.OnBytesReceived(encodeFrame(0, &frame.PerformOpen{})))
	tp.reset()

	peerClose := encodeFrame(0, &frame.PerformClose{})
	err = c.OnBytesReceived(peerClose)
	require.Error(t, err)
	require.Equal(t, ConnStateEnd, c.state)

	frames := decodeFrames(t, tp.all())
	require.Len(t, frames, 1)
	_, ok := frames[0].Body.(*frame.PerformClose)
	require.True(t, ok)

	// a connection that has ended rejects further bytes with the same error
	require.Error(t, c.OnBytesReceived([]byte{0}))
}

func TestConn_SASLPlainHandshake(t *testing.T) {
	tp := &fakeTransport{}
	c, err := NewConn(tp, &ConnOptions{
		SASLType:      SASLTypePlain,
		SASLPlainUser: "alice",
		SASLPlainPass: "secret",
	})
	require.NoError(t, err)
	require.Equal(t, ConnStateSASLHdrSent, c.state)
	require.Equal(t, [][]byte{saslHeader[:]}, tp.sent)

	require.NoError(t, c.OnBytesReceived(saslHeader[:]))
	require.Equal(t, ConnStateSASLHdrExch, c.state)

	tp.reset()
	require.NoError(t, c.OnBytesReceived(frameSASLMechanisms()))

	saslFrames := decodeFrames(t, tp.all())
	require.Len(t, saslFrames, 1)
	init, ok := saslFrames[0].Body.(*frame.SASLInit)
	require.True(t, ok)
	require.EqualValues(t, "PLAIN", init.Mechanism)

	tp.reset()
	require.NoError(t, c.OnBytesReceived(frameSASLOutcomeOK()))
	require.Equal(t, ConnStateHdrSent, c.state)
	require.Equal(t, [][]byte{amqpHeader[:]}, tp.sent)
}

// a broker offering more than one mechanism sends sasl-mechanisms.server-mechanisms
// as an AMQP array, not a list; this exercises that encode/decode path end to end.
func TestConn_SASLPlainHandshake_MultipleMechanismsOffered(t *testing.T) {
	tp := &fakeTransport{}
	c, err := NewConn(tp, &ConnOptions{
		SASLType:      SASLTypePlain,
		SASLPlainUser: "alice",
		SASLPlainPass: "secret",
	})
	require.NoError(t, err)
	require.NoError(t, c.OnBytesReceived(saslHeader[:]))

	tp.reset()
	mechs := encodeSASLFrame(&frame.SASLMechanisms{
		Mechanisms: encoding.MultiSymbol{"ANONYMOUS", "PLAIN", "XOAUTH2"},
	})
	require.NoError(t, c.OnBytesReceived(mechs))

	saslFrames := decodeFrames(t, tp.all())
	require.Len(t, saslFrames, 1)
	init, ok := saslFrames[0].Body.(*frame.SASLInit)
	require.True(t, ok)
	require.EqualValues(t, "PLAIN", init.Mechanism)
}

func TestConn_OnTick_SendsKeepaliveAfterHalfPeerIdleTimeout(t *testing.T) {
	tp := &fakeTransport{}
	c, err := NewConn(tp, nil)
	require.NoError(t, err)
	require.NoError(t, c.OnBytesReceived(amqpHeader[:]))
	require.NoError(t, c.OnBytesReceived(encodeFrame(0, &frame.PerformOpen{IdleTimeout: 1000 * 1000000})))
	require.EqualValues(t, 1000, c.peerIdleTimeout)
	tp.reset()

	require.NoError(t, c.OnTick(0))
	require.Empty(t, tp.sent, "first tick only establishes the baseline")

	require.NoError(t, c.OnTick(400))
	require.Empty(t, tp.sent, "under half the idle-timeout, no keepalive expected")

	require.NoError(t, c.OnTick(600))
	require.Len(t, tp.sent, 1, "past half the idle-timeout with no other activity, a keepalive must be sent")

	frames := decodeFrames(t, tp.all())
	require.Len(t, frames, 1)
	require.Nil(t, frames[0].Body, "keepalive is an empty frame")
}

func TestConn_OnTick_FatalClosesAfterLocalIdleTimeoutWithNoReceive(t *testing.T) {
	tp := &fakeTransport{}
	c, err := NewConn(tp, &ConnOptions{IdleTimeout: 1000})
	require.NoError(t, err)
	require.NoError(t, c.OnBytesReceived(amqpHeader[:]))
	require.NoError(t, c.OnBytesReceived(encodeFrame(0, &frame.PerformOpen{})))
	tp.reset()

	require.NoError(t, c.OnTick(0))
	require.Empty(t, tp.sent, "first tick only establishes the baseline")

	require.NoError(t, c.OnTick(999))
	require.Empty(t, tp.sent, "under the local idle-timeout with no received bytes, nothing fatal yet")
	require.NotEqual(t, ConnStateEnd, c.state)

	err = c.OnTick(1000)
	require.Error(t, err)
	require.Equal(t, ConnStateEnd, c.state)

	frames := decodeFrames(t, tp.all())
	require.Len(t, frames, 1)
	close, ok := frames[0].Body.(*frame.PerformClose)
	require.True(t, ok)
	require.NotNil(t, close.Error)
	require.EqualValues(t, "amqp:resource-limit-exceeded", close.Error.Condition)
}

func TestConn_OnTick_ReceivedBytesResetLocalIdleTimeoutBaseline(t *testing.T) {
	tp := &fakeTransport{}
	c, err := NewConn(tp, &ConnOptions{IdleTimeout: 1000})
	require.NoError(t, err)
	require.NoError(t, c.OnBytesReceived(amqpHeader[:]))
	require.NoError(t, c.OnBytesReceived(encodeFrame(0, &frame.PerformOpen{})))
	tp.reset()

	require.NoError(t, c.OnTick(0))
	require.NoError(t, c.OnTick(900))

	// an empty keepalive frame from the peer still counts as received activity
	require.NoError(t, c.OnBytesReceived(encodeFrame(0, nil)))
	require.NoError(t, c.OnTick(1500))
	require.NotEqual(t, ConnStateEnd, c.state, "recent receive should have reset the idle baseline")
}

func frameSASLMechanisms() []byte {
	return encodeSASLFrame(&frame.SASLMechanisms{Mechanisms: encoding.MultiSymbol{"PLAIN"}})
}

func frameSASLOutcomeOK() []byte {
	return encodeSASLFrame(&frame.SASLOutcome{Code: frame.SASLCodeOK})
}

func encodeSASLFrame(body frame.Body) []byte {
	var wr buffer.Buffer
	if err := frame.Encode(&wr, frame.Frame{Type: frame.TypeSASL, Channel: 0, Body: body}); err != nil {
		panic(err)
	}
	return wr.Bytes()
}
