package amqp

import (
	"testing"

	"github.com/Azure/go-amqp/internal/buffer"
	"github.com/Azure/go-amqp/internal/encoding"
	"github.com/Azure/go-amqp/internal/frame"
	"github.com/stretchr/testify/require"
)

func attachedReceiver(t *testing.T, opts *ReceiverOptions) (*Session, *Receiver, *fakeTransport) {
	s, tp := mappedSession(t)
	if opts == nil {
		opts = &ReceiverOptions{}
	}
	opts.Name = "rcv"
	opts.SourceAddress = "addr"
	rcv, err := s.NewReceiver(opts)
	require.NoError(t, err)

	frames := decodeFrames(t, tp.all())
	require.Len(t, frames, 1)
	attach := frames[0].Body.(*frame.PerformAttach)

	tp.reset()
	require.NoError(t, rcv.l.handleFrame(frame.Frame{Body: &frame.PerformAttach{
		Name: "rcv", Handle: attach.Handle, Role: encoding.RoleSender,
		Source: &encoding.Source{Address: "addr"}, Target: new(encoding.Target),
	}}))
	require.Equal(t, LinkStateAttached, rcv.l.state)
	return s, rcv, tp
}

func TestReceiver_FlowSendsFrame(t *testing.T) {
	_, rcv, tp := attachedReceiver(t, nil)
	tp.reset()

	require.NoError(t, rcv.Flow(5))
	require.EqualValues(t, 5, rcv.l.linkCredit)

	frames := decodeFrames(t, tp.all())
	require.Len(t, frames, 1)
	fl, ok := frames[0].Body.(*frame.PerformFlow)
	require.True(t, ok)
	require.EqualValues(t, 5, *fl.LinkCredit)
}

func TestReceiver_CreditGrantedOnAttachViaOptions(t *testing.T) {
	_, rcv, tp := attachedReceiver(t, &ReceiverOptions{Credit: 3})
	require.EqualValues(t, 3, rcv.l.linkCredit)
	frames := decodeFrames(t, tp.all())
	require.Len(t, frames, 1)
	_, ok := frames[0].Body.(*frame.PerformFlow)
	require.True(t, ok)
}

func TestReceiver_ReassemblesFragmentedTransferAndInvokesOnMessage(t *testing.T) {
	var got *Message
	var dm *DeliveredMessage
	_, rcv, _ := attachedReceiver(t, &ReceiverOptions{
		OnMessage: func(m *Message, d *DeliveredMessage) { got = m; dm = d },
	})

	msg := &Message{Value: "hello world"}
	var buf = marshalMessage(t, msg)

	half := len(buf) / 2
	deliveryID := uint32(7)
	format := uint32(0)
	require.NoError(t, rcv.l.handleFrame(frame.Frame{Body: &frame.PerformTransfer{
		Handle: rcv.l.handle, DeliveryID: &deliveryID, DeliveryTag: []byte{1},
		MessageFormat: &format, More: true, Payload: buf[:half],
	}}))
	require.Nil(t, got, "should not deliver until final fragment")

	require.NoError(t, rcv.l.handleFrame(frame.Frame{Body: &frame.PerformTransfer{
		Handle: rcv.l.handle, More: false, Payload: buf[half:],
	}}))
	require.NotNil(t, got)
	require.Equal(t, "hello world", got.Value)
	require.NotNil(t, dm)
	require.False(t, dm.settled)
	require.EqualValues(t, 7, dm.deliveryID)
}

func TestReceiver_AcceptSettlesAndSendsDisposition(t *testing.T) {
	var dm *DeliveredMessage
	_, rcv, tp := attachedReceiver(t, &ReceiverOptions{
		OnMessage: func(_ *Message, d *DeliveredMessage) { dm = d },
	})

	buf := marshalMessage(t, &Message{Value: "x"})
	deliveryID := uint32(1)
	tp.reset()
	require.NoError(t, rcv.l.handleFrame(frame.Frame{Body: &frame.PerformTransfer{
		Handle: rcv.l.handle, DeliveryID: &deliveryID, DeliveryTag: []byte{1}, Payload: buf,
	}}))
	require.NotNil(t, dm)

	tp.reset()
	require.NoError(t, rcv.Accept(dm))
	require.True(t, dm.settled)

	frames := decodeFrames(t, tp.all())
	require.Len(t, frames, 1)
	disp, ok := frames[0].Body.(*frame.PerformDisposition)
	require.True(t, ok)
	_, isAccepted := disp.State.(*encoding.StateAccepted)
	require.True(t, isAccepted)
}

func TestReceiver_HandleTransfer_RejectsMissingDeliveryIDOnFirstFrame(t *testing.T) {
	_, rcv, tp := attachedReceiver(t, nil)
	tp.reset()

	err := rcv.l.handleFrame(frame.Frame{Body: &frame.PerformTransfer{
		Handle: rcv.l.handle, DeliveryTag: []byte{1}, Payload: []byte("x"),
	}})
	require.Error(t, err)
	var linkErr *LinkError
	require.ErrorAs(t, err, &linkErr)

	frames := decodeFrames(t, tp.all())
	require.Len(t, frames, 1)
	d, ok := frames[0].Body.(*frame.PerformDetach)
	require.True(t, ok)
	require.True(t, d.Closed)
}

func TestReceiver_HandleTransfer_RejectsDeliveryIDOnContinuationFrame(t *testing.T) {
	_, rcv, _ := attachedReceiver(t, nil)

	deliveryID := uint32(1)
	require.NoError(t, rcv.l.handleFrame(frame.Frame{Body: &frame.PerformTransfer{
		Handle: rcv.l.handle, DeliveryID: &deliveryID, DeliveryTag: []byte{1}, More: true, Payload: []byte("a"),
	}}))

	err := rcv.l.handleFrame(frame.Frame{Body: &frame.PerformTransfer{
		Handle: rcv.l.handle, DeliveryID: &deliveryID, Payload: []byte("b"),
	}})
	require.Error(t, err)
	var linkErr *LinkError
	require.ErrorAs(t, err, &linkErr)
}

func TestReceiver_Drain_SendsFlowWithDrainSet(t *testing.T) {
	_, rcv, tp := attachedReceiver(t, nil)
	require.NoError(t, rcv.Flow(5))
	tp.reset()

	require.NoError(t, rcv.Drain())

	frames := decodeFrames(t, tp.all())
	require.Len(t, frames, 1)
	fl, ok := frames[0].Body.(*frame.PerformFlow)
	require.True(t, ok)
	require.True(t, fl.Drain)
	require.EqualValues(t, 5, *fl.LinkCredit)

	// the remote sender's drained reply (link-credit 0) is applied through
	// the ordinary flow path, same as any other flow
	zero := uint32(0)
	require.NoError(t, rcv.l.handleFrame(frame.Frame{Body: &frame.PerformFlow{
		Handle: &rcv.l.handle, LinkCredit: &zero,
	}}))
	require.EqualValues(t, 0, rcv.l.linkCredit)
}

func marshalMessage(t *testing.T, m *Message) []byte {
	var buf buffer.Buffer
	require.NoError(t, m.Marshal(&buf))
	return buf.Bytes()
}
