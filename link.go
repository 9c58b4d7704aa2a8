package amqp

import (
	"fmt"

	"github.com/Azure/go-amqp/internal/encoding"
	"github.com/Azure/go-amqp/internal/frame"
	"github.com/Azure/go-amqp/internal/log"
	"github.com/pkg/errors"
)

// linkKey uniquely identifies a link on a session by name and direction,
// matching the teacher's (name, role) collision-detection key for
// incoming attach.
type linkKey struct {
	name string
	role encoding.Role
}

// LinkState is the attach/detach half of the Link FSM (spec.md §4.5).
type LinkState int

const (
	LinkStateUnattached LinkState = iota
	LinkStateAttachSent
	LinkStateAttached
	LinkStateDetachSent
	LinkStateDetached
)

func (s LinkState) String() string {
	switch s {
	case LinkStateUnattached:
		return "Unattached"
	case LinkStateAttachSent:
		return "AttachSent"
	case LinkStateAttached:
		return "Attached"
	case LinkStateDetachSent:
		return "DetachSent"
	case LinkStateDetached:
		return "Detached"
	default:
		return fmt.Sprintf("LinkState(%d)", int(s))
	}
}

// link holds the state and behavior shared by Sender and Receiver: the
// attach handshake, credit bookkeeping, and detach handshake. Sender and
// Receiver specialize it via the onTransfer/onFlow hooks rather than
// embedding a mux goroutine, per the synchronous dispatch model.
type link struct {
	key     linkKey
	handle  uint32
	session *Session
	state   LinkState

	source      *encoding.Source
	target      *encoding.Target
	coordinator *encoding.Coordinator // set instead of target for a transaction controller link
	properties  map[encoding.Symbol]any

	// "the delivery-count is ... a sequence number initialized at an
	// arbitrary point by the sender" (AMQP 1.0 §2.6.7)
	deliveryCount uint32
	linkCredit    uint32

	senderSettleMode   *encoding.SenderSettleMode
	receiverSettleMode *encoding.ReceiverSettleMode
	maxMessageSize     uint64

	doneErr error

	onStateChange func(LinkState)
	onTransfer    func(*frame.PerformTransfer) error
	onFlow        func(*frame.PerformFlow)
	onDisposition func(*frame.PerformDisposition)
}

func newLink(s *Session, r encoding.Role, name string) *link {
	return &link{
		key:     linkKey{name: name, role: r},
		session: s,
	}
}

func (l *link) setState(st LinkState) {
	l.state = st
	if l.onStateChange != nil {
		l.onStateChange(st)
	}
}

// sendAttach allocates a handle and sends this link's attach
// performative. The peer's reciprocal attach is consumed later by
// handleFrame from within Conn.OnBytesReceived.
func (l *link) sendAttach() error {
	if err := l.session.allocateHandle(l); err != nil {
		return err
	}

	attach := &frame.PerformAttach{
		Name:                 l.key.name,
		Handle:               l.handle,
		Role:                 l.key.role,
		SenderSettleMode:     l.senderSettleMode,
		ReceiverSettleMode:   l.receiverSettleMode,
		Source:               l.source,
		Target:               l.target,
		Coordinator:          l.coordinator,
		InitialDeliveryCount: l.deliveryCount,
		MaxMessageSize:       l.maxMessageSize,
		Properties:           l.properties,
	}
	if err := l.session.txFrame(attach); err != nil {
		return err
	}
	l.setState(LinkStateAttachSent)
	return nil
}

// handleFrame processes one performative addressed to this link's
// handle (or, for the reciprocal attach, routed by name).
func (l *link) handleFrame(fr frame.Frame) error {
	log.Debugf(log.LevelDebug, "RX (link %q): %v", l.key.name, fr.Body)

	switch body := fr.Body.(type) {
	case *frame.PerformAttach:
		return l.handleAttach(body)
	case *frame.PerformFlow:
		l.handleFlowLocked(body)
		if l.onFlow != nil {
			l.onFlow(body)
		}
		return nil
	case *frame.PerformTransfer:
		if l.onTransfer != nil {
			return l.onTransfer(body)
		}
		return nil
	case *frame.PerformDetach:
		return l.handleDetach(body)
	default:
		return errors.Errorf("amqp: link %q: unexpected frame %T", l.key.name, body)
	}
}

func (l *link) handleAttach(resp *frame.PerformAttach) error {
	if resp.Source == nil && resp.Target == nil && resp.Coordinator == nil && l.state == LinkStateAttachSent {
		// peer refused to create a terminus; it will immediately follow
		// with a detach carrying the reason (AMQP 1.0 §2.6.3).
		return nil
	}
	if l.maxMessageSize == 0 || (resp.MaxMessageSize != 0 && resp.MaxMessageSize < l.maxMessageSize) {
		l.maxMessageSize = resp.MaxMessageSize
	}
	l.senderSettleMode = settleOrDefault(l.senderSettleMode, resp.SenderSettleMode, encoding.SenderSettleModeMixed)
	l.receiverSettleMode = recvSettleOrDefault(l.receiverSettleMode, resp.ReceiverSettleMode, encoding.ReceiverSettleModeFirst)
	l.setState(LinkStateAttached)
	return nil
}

func settleOrDefault(local *encoding.SenderSettleMode, remote *encoding.SenderSettleMode, def encoding.SenderSettleMode) *encoding.SenderSettleMode {
	if remote != nil {
		return remote
	}
	if local != nil {
		return local
	}
	d := def
	return &d
}

func recvSettleOrDefault(local *encoding.ReceiverSettleMode, remote *encoding.ReceiverSettleMode, def encoding.ReceiverSettleMode) *encoding.ReceiverSettleMode {
	if remote != nil {
		return remote
	}
	if local != nil {
		return local
	}
	d := def
	return &d
}

func (l *link) handleFlowLocked(fl *frame.PerformFlow) {
	if fl.LinkCredit != nil {
		l.linkCredit = *fl.LinkCredit
	}
	if fl.DeliveryCount != nil {
		l.deliveryCount = *fl.DeliveryCount
	}
}

func (l *link) handleDetach(fr *frame.PerformDetach) error {
	wasLocalClose := l.state == LinkStateDetachSent
	l.session.deallocateHandle(l)

	if fr.Error != nil {
		l.doneErr = &LinkError{RemoteErr: fr.Error}
	} else if l.doneErr == nil {
		l.doneErr = &LinkError{}
	}
	l.setState(LinkStateDetached)

	if !wasLocalClose {
		// peer-initiated detach: acknowledge with our own closing detach
		return l.session.txFrame(&frame.PerformDetach{Handle: l.handle, Closed: true})
	}
	return nil
}

func (l *link) handleDisposition(d *frame.PerformDisposition) {
	if l.onDisposition != nil {
		l.onDisposition(d)
	}
}

// closeLink sends a closing detach. It does not wait for the peer's
// reciprocal detach: the caller observes completion via onStateChange
// (LinkStateDetached) from a later OnBytesReceived call, consistent with
// the synchronous dispatch model having no blocking wait primitive.
func (l *link) closeLink() error {
	if l.state == LinkStateDetachSent || l.state == LinkStateDetached {
		return nil
	}
	if err := l.session.txFrame(&frame.PerformDetach{Handle: l.handle, Closed: true}); err != nil {
		return err
	}
	l.setState(LinkStateDetachSent)
	return nil
}
