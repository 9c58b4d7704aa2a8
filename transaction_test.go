package amqp

import (
	"testing"

	"github.com/Azure/go-amqp/internal/encoding"
	"github.com/Azure/go-amqp/internal/frame"
	"github.com/stretchr/testify/require"
)

func attachedTxnController(t *testing.T) (*TransactionController, *fakeTransport) {
	s, tp := mappedSession(t)
	tc, err := s.NewTransactionController(&TransactionControllerOptions{Capabilities: []string{"amqp:local-transactions"}})
	require.NoError(t, err)

	frames := decodeFrames(t, tp.all())
	require.Len(t, frames, 1)
	attach := frames[0].Body.(*frame.PerformAttach)
	require.NotNil(t, attach.Coordinator)
	require.Nil(t, attach.Target)

	require.NoError(t, tc.sender.l.handleFrame(frame.Frame{Body: &frame.PerformAttach{
		Name: attach.Name, Handle: attach.Handle, Role: encoding.RoleReceiver,
		Coordinator: &encoding.Coordinator{},
	}}))
	require.Equal(t, LinkStateAttached, tc.sender.l.state)

	credit := uint32(10)
	require.NoError(t, tc.sender.l.handleFrame(frame.Frame{Body: &frame.PerformFlow{
		Handle: &tc.sender.l.handle, LinkCredit: &credit,
	}}))
	tp.reset()
	return tc, tp
}

func TestTransactionController_DeclareThenDischarge(t *testing.T) {
	tc, tp := attachedTxnController(t)

	dh, err := tc.Declare(nil)
	require.NoError(t, err)
	require.False(t, dh.Settled)

	frames := decodeFrames(t, tp.all())
	require.Len(t, frames, 1)
	transfer := frames[0].Body.(*frame.PerformTransfer)
	require.NotNil(t, transfer.DeliveryID)

	// simulate the coordinator resolving the declare to a txn-id; broadcastDisposition
	// in production calls link.handleDisposition directly, bypassing handleFrame
	id := *transfer.DeliveryID
	txnID := []byte{1, 2, 3, 4}
	tc.sender.l.handleDisposition(&frame.PerformDisposition{
		Role: encoding.RoleReceiver, First: id, Settled: true, State: &encoding.Declared{TxnID: txnID},
	})

	got, err := dh.TxnID()
	require.NoError(t, err)
	require.Equal(t, txnID, got)

	tp.reset()
	_, err = tc.Discharge(txnID, false)
	require.NoError(t, err)
	frames = decodeFrames(t, tp.all())
	require.Len(t, frames, 1)
}

func TestDeliveryHandle_TxnID_ErrorsBeforeResolved(t *testing.T) {
	dh := &DeliveryHandle{}
	_, err := dh.TxnID()
	require.Error(t, err)
}
