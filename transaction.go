package amqp

import (
	"fmt"

	"github.com/Azure/go-amqp/internal/encoding"
	"github.com/pkg/errors"
)

// TransactionControllerOptions configures a TransactionController at
// construction.
type TransactionControllerOptions struct {
	Capabilities []string
}

// TransactionController is a client-side-only transaction coordinator
// link: it declares and discharges transactions against a resource's
// txn-id coordinator, but never itself acts as a coordinator and never
// resumes a prior transaction.
type TransactionController struct {
	sender *Sender
}

func newTransactionController(session *Session, opts *TransactionControllerOptions) *TransactionController {
	l := newLink(session, encoding.RoleSender, fmt.Sprintf("txn-ctrl-%p", session))
	l.coordinator = new(encoding.Coordinator)
	if opts != nil {
		for _, c := range opts.Capabilities {
			l.coordinator.Capabilities = append(l.coordinator.Capabilities, encoding.Symbol(c))
		}
	}

	s := &Sender{l: l, pending: map[uint32]*DeliveryHandle{}}
	l.onFlow = s.handleFlow
	l.onDisposition = s.handleDispositionFrame
	return &TransactionController{sender: s}
}

// Attach begins the attach handshake for the coordinator link.
func (tc *TransactionController) Attach(onStateChange func(LinkState)) error {
	tc.sender.l.onStateChange = onStateChange
	return tc.sender.l.sendAttach()
}

// Declare starts a new transaction and returns the DeliveryHandle of the
// declare message, not the txn-id. The id (read with DeliveryHandle.TxnID)
// is not known until the resulting disposition's Declared outcome
// arrives on a later OnBytesReceived call, so the caller must poll or
// observe the returned DeliveryHandle's State.
func (tc *TransactionController) Declare(globalID any) (*DeliveryHandle, error) {
	return tc.sender.Send(&Message{Value: &encoding.Declare{GlobalID: globalID}})
}

// Discharge ends the transaction identified by txnID. failed marks it
// rolled back instead of committed.
func (tc *TransactionController) Discharge(txnID []byte, failed bool) (*DeliveryHandle, error) {
	return tc.sender.Send(&Message{Value: &encoding.Discharge{TxnID: txnID, Failed: failed}})
}

// Close begins the detach handshake for the coordinator link.
func (tc *TransactionController) Close() error {
	return tc.sender.Close()
}

// TxnID extracts the assigned transaction-id from a Declare's
// DeliveryHandle, once its State has resolved to *encoding.Declared. Call
// it only after the handle's State is non-nil (observed via the
// disposition that settles it on a later OnBytesReceived call).
func (dh *DeliveryHandle) TxnID() ([]byte, error) {
	d, ok := dh.State.(*encoding.Declared)
	if !ok {
		return nil, errors.New("amqp: transaction declare has not resolved to an outcome yet")
	}
	return d.TxnID, nil
}
