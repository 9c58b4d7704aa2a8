package amqp

import (
	"testing"

	"github.com/Azure/go-amqp/internal/encoding"
	"github.com/Azure/go-amqp/internal/frame"
	"github.com/stretchr/testify/require"
)

func attachedSender(t *testing.T) (*Session, *Sender, *fakeTransport) {
	s, tp := mappedSession(t)
	snd, err := s.NewSender(&SenderOptions{Name: "snd", TargetAddress: "addr"})
	require.NoError(t, err)
	require.Equal(t, LinkStateAttachSent, snd.l.state)

	frames := decodeFrames(t, tp.all())
	require.Len(t, frames, 1)
	attach := frames[0].Body.(*frame.PerformAttach)

	require.NoError(t, snd.l.handleFrame(frame.Frame{Body: &frame.PerformAttach{
		Name: "snd", Handle: attach.Handle, Role: encoding.RoleReceiver,
		Source: new(encoding.Source), Target: &encoding.Target{Address: "addr"},
	}}))
	require.Equal(t, LinkStateAttached, snd.l.state)
	tp.reset()
	return s, snd, tp
}

func TestSender_SendWithoutCreditReturnsErrWouldBlock(t *testing.T) {
	_, snd, _ := attachedSender(t)
	_, err := snd.Send(&Message{Value: "hello"})
	require.ErrorIs(t, err, ErrWouldBlock)
}

func TestSender_SendAfterFlowWritesTransfer(t *testing.T) {
	_, snd, tp := attachedSender(t)

	credit := uint32(10)
	dc := uint32(0)
	require.NoError(t, snd.l.handleFrame(frame.Frame{Body: &frame.PerformFlow{
		Handle: &snd.l.handle, LinkCredit: &credit, DeliveryCount: &dc,
	}}))
	require.EqualValues(t, 10, snd.availableCredit)

	tp.reset()
	dh, err := snd.Send(&Message{Value: "hello"})
	require.NoError(t, err)
	require.NotNil(t, dh)
	require.False(t, dh.Settled)
	require.EqualValues(t, 9, snd.availableCredit)
	require.EqualValues(t, 1, snd.l.deliveryCount)

	frames := decodeFrames(t, tp.all())
	require.Len(t, frames, 1)
	transfer, ok := frames[0].Body.(*frame.PerformTransfer)
	require.True(t, ok)
	require.False(t, transfer.More)
	require.NotNil(t, transfer.DeliveryID)

	// disposition settles the pending delivery; broadcastDisposition in
	// production calls link.handleDisposition directly, bypassing handleFrame
	id := *transfer.DeliveryID
	snd.l.handleDisposition(&frame.PerformDisposition{
		Role: encoding.RoleReceiver, First: id, Settled: true, State: &encoding.StateAccepted{},
	})
	require.True(t, dh.Settled)
	_, stillPending := snd.pending[id]
	require.False(t, stillPending)
}

func TestSender_Send_BlocksWhenSessionRemoteIncomingWindowExhausted(t *testing.T) {
	s, snd, tp := attachedSender(t)

	credit := uint32(10)
	require.NoError(t, snd.l.handleFrame(frame.Frame{Body: &frame.PerformFlow{
		Handle: &snd.l.handle, LinkCredit: &credit,
	}}))

	// exhaust the session's remote-incoming-window independently of link credit
	s.remoteIncomingWindow = 0
	tp.reset()

	_, err := snd.Send(&Message{Value: "hello"})
	require.ErrorIs(t, err, ErrWouldBlock)
	require.Empty(t, tp.sent)

	// a subsequent session-level flow replenishing the window unblocks sends
	require.NoError(t, s.handleFrame(frame.Frame{Body: &frame.PerformFlow{
		IncomingWindow: 1,
		OutgoingWindow: 5000,
	}}))
	_, err = snd.Send(&Message{Value: "hello"})
	require.NoError(t, err)
}

func TestSender_HandleFlow_DrainZeroesCreditAndEchoesFlow(t *testing.T) {
	_, snd, tp := attachedSender(t)

	credit := uint32(10)
	dc := uint32(2)
	require.NoError(t, snd.l.handleFrame(frame.Frame{Body: &frame.PerformFlow{
		Handle: &snd.l.handle, LinkCredit: &credit, DeliveryCount: &dc,
	}}))
	require.EqualValues(t, 10, snd.availableCredit)

	tp.reset()
	require.NoError(t, snd.l.handleFrame(frame.Frame{Body: &frame.PerformFlow{
		Handle: &snd.l.handle, LinkCredit: &credit, DeliveryCount: &dc, Drain: true,
	}}))
	require.EqualValues(t, 0, snd.availableCredit)
	require.EqualValues(t, 0, snd.l.linkCredit)

	frames := decodeFrames(t, tp.all())
	require.Len(t, frames, 1)
	fl, ok := frames[0].Body.(*frame.PerformFlow)
	require.True(t, ok)
	require.EqualValues(t, 0, *fl.LinkCredit)
	require.EqualValues(t, dc, *fl.DeliveryCount)

	_, err := snd.Send(&Message{Value: "hello"})
	require.ErrorIs(t, err, ErrWouldBlock)
}

func TestSender_FragmentsLargePayload(t *testing.T) {
	_, snd, tp := attachedSender(t)
	snd.l.session.conn.peerMaxFrameSize = 100

	credit := uint32(5)
	require.NoError(t, snd.l.handleFrame(frame.Frame{Body: &frame.PerformFlow{
		Handle: &snd.l.handle, LinkCredit: &credit,
	}}))

	tp.reset()
	data := make([]byte, 400)
	_, err := snd.Send(&Message{Data: [][]byte{data}})
	require.NoError(t, err)

	frames := decodeFrames(t, tp.all())
	require.Greater(t, len(frames), 1, "payload should have fragmented across multiple transfers")
	last := frames[len(frames)-1].Body.(*frame.PerformTransfer)
	require.False(t, last.More)
}
