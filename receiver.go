package amqp

import (
	"fmt"

	"github.com/Azure/go-amqp/internal/buffer"
	"github.com/Azure/go-amqp/internal/encoding"
	"github.com/Azure/go-amqp/internal/frame"
	"github.com/Azure/go-amqp/internal/log"
	"github.com/pkg/errors"
)

// ReceiverOptions configures a Receiver at construction.
type ReceiverOptions struct {
	Name                string
	SourceAddress       string
	SettlementMode      *encoding.ReceiverSettleMode
	RequestedSenderMode *encoding.SenderSettleMode
	Credit              uint32
	Properties          map[string]any

	OnMessage func(*Message, *DeliveredMessage)
}

// DeliveredMessage is the handle a Receiver passes to OnMessage: enough
// to settle the delivery (for ReceiverSettleModeSecond links, where
// settlement is a distinct, explicit step from reassembly).
type DeliveredMessage struct {
	deliveryID uint32
	settled    bool
}

// Receiver receives messages on a single attached AMQP link. Every
// method is synchronous; incoming transfer frames are reassembled and
// delivered via OnMessage from within Conn.OnBytesReceived, never from a
// background goroutine.
type Receiver struct {
	l    *link
	opts ReceiverOptions

	// reassembly state for the delivery currently in progress
	curTag     []byte
	curID      *uint32
	curBuf     buffer.Buffer
	curFormat  uint32
	curSettled bool
	inProgress bool // true once a delivery's first frame has arrived and More was set

	unsettled map[uint32]struct{}
}

func newReceiver(session *Session, opts *ReceiverOptions) *Receiver {
	name := opts.Name
	if name == "" {
		name = fmt.Sprintf("receiver-%p", session)
	}
	l := newLink(session, encoding.RoleReceiver, name)
	l.source = &encoding.Source{Address: opts.SourceAddress}
	l.target = new(encoding.Target)
	l.senderSettleMode = opts.RequestedSenderMode
	l.receiverSettleMode = opts.SettlementMode
	if opts.Properties != nil {
		l.properties = make(map[encoding.Symbol]any, len(opts.Properties))
		for k, v := range opts.Properties {
			l.properties[encoding.Symbol(k)] = v
		}
	}

	r := &Receiver{l: l, opts: *opts, unsettled: map[uint32]struct{}{}}
	l.onTransfer = r.handleTransfer
	return r
}

// Attach begins the attach handshake and, if opts.Credit was set at
// construction, issues the initial flow once attached.
func (r *Receiver) Attach(onStateChange func(LinkState)) error {
	r.l.onStateChange = func(st LinkState) {
		if onStateChange != nil {
			onStateChange(st)
		}
		if st == LinkStateAttached && r.opts.Credit > 0 {
			_ = r.Flow(r.opts.Credit)
		}
	}
	return r.l.sendAttach()
}

// LinkName returns the name negotiated for this link.
func (r *Receiver) LinkName() string { return r.l.key.name }

// Flow grants additional link-credit to the peer. It is the only way
// messages start arriving: a freshly attached receiver has zero credit.
func (r *Receiver) Flow(credit uint32) error {
	r.l.linkCredit += credit
	deliveryCount := r.l.deliveryCount
	linkCredit := r.l.linkCredit
	return r.l.session.txFrame(&frame.PerformFlow{
		Handle:        &r.l.handle,
		DeliveryCount: &deliveryCount,
		LinkCredit:    &linkCredit,
	})
}

// Drain asks the remote sender to use up this link's outstanding credit
// immediately and report back once it has none left to use (AMQP 1.0
// §2.6.10). The peer's reply flow carries link-credit 0, which is
// applied to this link the ordinary way once it arrives (see
// link.handleFlowLocked) — no separate completion signal exists in the
// synchronous dispatch model, so callers observe drain completing via
// OnMessage deliveries stopping and a later Flow reflecting zero credit.
func (r *Receiver) Drain() error {
	deliveryCount := r.l.deliveryCount
	linkCredit := r.l.linkCredit
	return r.l.session.txFrame(&frame.PerformFlow{
		Handle:        &r.l.handle,
		DeliveryCount: &deliveryCount,
		LinkCredit:    &linkCredit,
		Drain:         true,
	})
}

// handleTransfer reassembles fragmented transfers (the More flag) into a
// complete Message and invokes OnMessage once the final fragment arrives.
func (r *Receiver) handleTransfer(fr *frame.PerformTransfer) error {
	// delivery-id/delivery-tag are mandatory on the first frame of a
	// delivery and MUST be absent on every continuation frame (AMQP 1.0
	// §2.6.12); a peer that gets this wrong is malformed and the link is
	// closed rather than silently resynced.
	if !r.inProgress {
		if fr.DeliveryID == nil || len(fr.DeliveryTag) == 0 {
			err := &LinkError{inner: errors.Errorf("amqp: link %q: transfer missing delivery-id/delivery-tag on first frame of a delivery", r.l.key.name)}
			_ = r.l.closeLink()
			return err
		}
		r.curID = fr.DeliveryID
		r.curTag = fr.DeliveryTag
		r.curBuf.Reset()
		if fr.MessageFormat != nil {
			r.curFormat = *fr.MessageFormat
		}
		r.curSettled = fr.Settled
	} else if fr.DeliveryID != nil || len(fr.DeliveryTag) != 0 {
		err := &LinkError{inner: errors.Errorf("amqp: link %q: transfer carries delivery-id/delivery-tag on a continuation frame", r.l.key.name)}
		_ = r.l.closeLink()
		return err
	}

	r.curBuf.Append(fr.Payload)
	if fr.Settled {
		r.curSettled = true
	}

	r.inProgress = fr.More
	if fr.More {
		return nil
	}

	msg := &Message{Format: r.curFormat, DeliveryTag: r.curTag}
	if err := msg.Unmarshal(&r.curBuf); err != nil {
		return errors.Wrapf(err, "amqp: failed to unmarshal message on link %q", r.l.key.name)
	}

	r.l.deliveryCount++
	if r.l.linkCredit > 0 {
		r.l.linkCredit--
	}

	dm := &DeliveredMessage{settled: r.curSettled}
	if r.curID != nil {
		dm.deliveryID = *r.curID
		if !r.curSettled {
			r.unsettled[dm.deliveryID] = struct{}{}
		}
	}

	log.Debugf(log.LevelFrames, "RX (receiver %q): delivery %v settled=%v", r.l.key.name, dm.deliveryID, dm.settled)

	if r.opts.OnMessage != nil {
		r.opts.OnMessage(msg, dm)
	}
	return nil
}

// settle sends a disposition for dm carrying state, and marks it settled
// locally. It is the shared implementation behind Accept/Reject/Release.
func (r *Receiver) settle(dm *DeliveredMessage, state encoding.DeliveryState) error {
	if dm.settled {
		return nil
	}
	dm.settled = true
	delete(r.unsettled, dm.deliveryID)

	return r.l.session.txFrame(&frame.PerformDisposition{
		Role:    encoding.RoleReceiver,
		First:   dm.deliveryID,
		Settled: true,
		State:   state,
	})
}

// Accept settles dm with the accepted outcome.
func (r *Receiver) Accept(dm *DeliveredMessage) error {
	return r.settle(dm, &encoding.StateAccepted{})
}

// Reject settles dm with the rejected outcome, carrying rejErr as the
// rejection reason if non-nil.
func (r *Receiver) Reject(dm *DeliveredMessage, rejErr *encoding.Error) error {
	return r.settle(dm, &encoding.StateRejected{Error: rejErr})
}

// Release settles dm with the released outcome, returning it to the
// sender's outgoing queue for redelivery.
func (r *Receiver) Release(dm *DeliveredMessage) error {
	return r.settle(dm, &encoding.StateReleased{})
}

// Close begins the detach handshake for this link.
func (r *Receiver) Close() error {
	return r.l.closeLink()
}
