package amqp

import (
	"testing"

	"github.com/Azure/go-amqp/internal/frame"
	"github.com/stretchr/testify/require"
)

func openedConn(t *testing.T) (*Conn, *fakeTransport) {
	tp := &fakeTransport{}
	c, err := NewConn(tp, nil)
	require.NoError(t, err)
	require.NoError(t, c.OnBytesReceived(amqpHeader[:]))
	require.NoError(t, c.OnBytesReceived(encodeFrame(0, &frame.PerformOpen{MaxFrameSize: 65536})))
	require.Equal(t, ConnStateOpened, c.state)
	tp.reset()
	return c, tp
}

func TestSession_BeginHandshake(t *testing.T) {
	c, tp := openedConn(t)

	s, err := c.NewSession(nil)
	require.NoError(t, err)
	require.Equal(t, SessionStateBeginSent, s.state)
	require.EqualValues(t, 0, s.channel)

	frames := decodeFrames(t, tp.all())
	require.Len(t, frames, 1)
	_, ok := frames[0].Body.(*frame.PerformBegin)
	require.True(t, ok)

	require.NoError(t, c.OnBytesReceived(encodeFrame(0, &frame.PerformBegin{
		NextOutgoingID: 0,
		IncomingWindow: 100,
		OutgoingWindow: 100,
	})))
	require.Equal(t, SessionStateMapped, s.state)
	require.EqualValues(t, 100, s.remoteIncomingWindow)
}

func TestSession_RemoteIncomingWindow_UpdatedBySessionLevelFlow(t *testing.T) {
	s, tp := mappedSession(t)
	_ = tp
	require.EqualValues(t, 5000, s.remoteIncomingWindow)

	require.NoError(t, s.conn.OnBytesReceived(encodeFrame(0, &frame.PerformFlow{
		NextOutgoingID: 1,
		IncomingWindow: 3,
		OutgoingWindow: 5000,
	})))
	require.EqualValues(t, 3, s.remoteIncomingWindow)
}

func TestSession_NextDeliveryID_DecrementsRemoteIncomingWindow(t *testing.T) {
	s, _ := mappedSession(t)
	require.EqualValues(t, 5000, s.remoteIncomingWindow)
	s.nextDeliveryID()
	require.EqualValues(t, 4999, s.remoteIncomingWindow)
}

func TestSession_SecondSessionGetsNextChannel(t *testing.T) {
	c, _ := openedConn(t)

	s1, err := c.NewSession(nil)
	require.NoError(t, err)
	s2, err := c.NewSession(nil)
	require.NoError(t, err)
	require.EqualValues(t, 0, s1.channel)
	require.EqualValues(t, 1, s2.channel)
}

func TestSession_EndClearsFromConn(t *testing.T) {
	c, _ := openedConn(t)
	s, err := c.NewSession(nil)
	require.NoError(t, err)
	require.NoError(t, c.OnBytesReceived(encodeFrame(0, &frame.PerformBegin{})))

	err = c.OnBytesReceived(encodeFrame(0, &frame.PerformEnd{}))
	require.Error(t, err)
	require.Equal(t, SessionStateUnmapped, s.state)
	_, stillThere := c.sessionsByChan[0]
	require.False(t, stillThere)
}
