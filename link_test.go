package amqp

import (
	"testing"

	"github.com/Azure/go-amqp/internal/encoding"
	"github.com/Azure/go-amqp/internal/frame"
	"github.com/stretchr/testify/require"
)

func mappedSession(t *testing.T) (*Session, *fakeTransport) {
	c, tp := openedConn(t)
	s, err := c.NewSession(nil)
	require.NoError(t, err)
	require.NoError(t, c.OnBytesReceived(encodeFrame(0, &frame.PerformBegin{
		IncomingWindow: 5000,
		OutgoingWindow: 5000,
	})))
	require.Equal(t, SessionStateMapped, s.state)
	tp.reset()
	return s, tp
}

func TestLink_AttachHandshake(t *testing.T) {
	s, tp := mappedSession(t)

	l := newLink(s, encoding.RoleSender, "test-link")
	l.target = &encoding.Target{Address: "addr"}
	l.source = new(encoding.Source)

	var states []LinkState
	l.onStateChange = func(st LinkState) { states = append(states, st) }

	require.NoError(t, l.sendAttach())
	require.Equal(t, LinkStateAttachSent, l.state)

	frames := decodeFrames(t, tp.all())
	require.Len(t, frames, 1)
	attach, ok := frames[0].Body.(*frame.PerformAttach)
	require.True(t, ok)
	require.Equal(t, "test-link", attach.Name)
	require.Equal(t, encoding.RoleSender, attach.Role)

	ssm := encoding.SenderSettleModeSettled
	resp := &frame.PerformAttach{
		Name:             "test-link",
		Handle:           attach.Handle,
		Role:             encoding.RoleReceiver,
		SenderSettleMode: &ssm,
		Source:           l.source,
		Target:           l.target,
	}
	require.NoError(t, l.handleFrame(frame.Frame{Body: resp}))
	require.Equal(t, LinkStateAttached, l.state)
	require.Equal(t, encoding.SenderSettleModeSettled, *l.senderSettleMode)
	require.Contains(t, states, LinkStateAttached)
}

func TestLink_RemoteRefusalThenDetach(t *testing.T) {
	s, _ := mappedSession(t)
	l := newLink(s, encoding.RoleSender, "refused")
	l.target = &encoding.Target{Address: "addr"}
	require.NoError(t, l.sendAttach())

	refusal := &frame.PerformAttach{Name: "refused", Handle: l.handle, Role: encoding.RoleReceiver}
	require.NoError(t, l.handleFrame(frame.Frame{Body: refusal}))
	require.Equal(t, LinkStateAttachSent, l.state, "refusal attach must not transition to Attached")

	detach := &frame.PerformDetach{Handle: l.handle, Closed: true, Error: &encoding.Error{Condition: "amqp:not-found"}}
	require.NoError(t, l.handleFrame(frame.Frame{Body: detach}))
	require.Equal(t, LinkStateDetached, l.state)
	require.Error(t, l.doneErr)
}

func TestLink_PeerInitiatedDetachEchoesClose(t *testing.T) {
	s, tp := mappedSession(t)
	l := newLink(s, encoding.RoleReceiver, "rcv")
	l.source = &encoding.Source{Address: "addr"}
	require.NoError(t, l.sendAttach())
	require.NoError(t, l.handleFrame(frame.Frame{Body: &frame.PerformAttach{
		Name: "rcv", Handle: l.handle, Role: encoding.RoleSender, Source: l.source, Target: new(encoding.Target),
	}}))
	require.Equal(t, LinkStateAttached, l.state)
	tp.reset()

	require.NoError(t, l.handleFrame(frame.Frame{Body: &frame.PerformDetach{Handle: l.handle, Closed: true}}))
	require.Equal(t, LinkStateDetached, l.state)

	frames := decodeFrames(t, tp.all())
	require.Len(t, frames, 1)
	d, ok := frames[0].Body.(*frame.PerformDetach)
	require.True(t, ok)
	require.True(t, d.Closed)
}
