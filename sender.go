package amqp

import (
	"encoding/binary"
	"fmt"

	"github.com/Azure/go-amqp/internal/buffer"
	"github.com/Azure/go-amqp/internal/encoding"
	"github.com/Azure/go-amqp/internal/frame"
	"github.com/Azure/go-amqp/internal/log"
	"github.com/pkg/errors"
)

const (
	maxDeliveryTagLength   = 32
	maxTransferFrameHeader = 66 // handle + delivery-id + tag + format + flags, rounded up
)

// SenderOptions configures a Sender at construction.
type SenderOptions struct {
	Name                  string
	TargetAddress         string
	SettlementMode        *encoding.SenderSettleMode
	RequestedReceiverMode *encoding.ReceiverSettleMode
	Properties            map[string]any
}

// DeliveryHandle tracks one in-flight transfer. Send returns it
// immediately after queuing the transfer frame(s); its State is updated
// in place when a disposition for it is processed by a later
// OnBytesReceived call, since there is no blocking wait primitive for a
// Send call to suspend on.
type DeliveryHandle struct {
	deliveryID uint32
	Settled    bool
	State      encoding.DeliveryState
}

// Sender sends messages on a single attached AMQP link. Every method is
// synchronous: Send marshals the message and writes its transfer
// frame(s) to the session before returning, fragmenting across multiple
// frames only when the payload exceeds the peer's negotiated max-frame-size.
type Sender struct {
	l *link

	buf             buffer.Buffer
	nextDeliveryTag uint64
	availableCredit uint32

	// pending tracks deliveries awaiting settlement, keyed by delivery-id,
	// so an incoming disposition's [First,Last] range can resolve them.
	pending map[uint32]*DeliveryHandle
}

func newSender(session *Session, opts *SenderOptions) *Sender {
	name := opts.Name
	if name == "" {
		name = fmt.Sprintf("sender-%p", session)
	}
	l := newLink(session, encoding.RoleSender, name)
	l.target = &encoding.Target{Address: opts.TargetAddress}
	l.source = new(encoding.Source)
	l.senderSettleMode = opts.SettlementMode
	l.receiverSettleMode = opts.RequestedReceiverMode
	if opts.Properties != nil {
		l.properties = make(map[encoding.Symbol]any, len(opts.Properties))
		for k, v := range opts.Properties {
			l.properties[encoding.Symbol(k)] = v
		}
	}

	s := &Sender{l: l, pending: map[uint32]*DeliveryHandle{}}
	l.onFlow = s.handleFlow
	l.onDisposition = s.handleDispositionFrame
	return s
}

// Attach begins the attach handshake. The peer's reciprocal attach is
// consumed by a later OnBytesReceived call; onStateChange (may be nil)
// fires when the link transitions to LinkStateAttached.
func (s *Sender) Attach(onStateChange func(LinkState)) error {
	s.l.onStateChange = onStateChange
	return s.l.sendAttach()
}

// LinkName returns the name negotiated for this link.
func (s *Sender) LinkName() string { return s.l.key.name }

// MaxMessageSize returns the smaller of the locally-configured and
// peer-advertised maximum message size, or 0 if unbounded.
func (s *Sender) MaxMessageSize() uint64 { return s.l.maxMessageSize }

func (s *Sender) handleFlow(fl *frame.PerformFlow) {
	linkCredit := s.l.linkCredit
	if fl.DeliveryCount != nil {
		linkCredit += *fl.DeliveryCount - s.l.deliveryCount
	}
	s.availableCredit = linkCredit

	if fl.Drain {
		// Send is caller-driven and queues nothing internally, so there is
		// no backlog to flush first: draining means consuming the credit
		// immediately and confirming so (AMQP 1.0 §2.6.10).
		s.availableCredit = 0
		s.l.linkCredit = 0
		deliveryCount := s.l.deliveryCount
		zero := uint32(0)
		_ = s.l.session.txFrame(&frame.PerformFlow{
			Handle:        &s.l.handle,
			DeliveryCount: &deliveryCount,
			LinkCredit:    &zero,
		})
		return
	}

	if fl.Echo {
		deliveryCount := s.l.deliveryCount
		_ = s.l.session.txFrame(&frame.PerformFlow{
			Handle:        &s.l.handle,
			DeliveryCount: &deliveryCount,
			LinkCredit:    &linkCredit,
		})
	}
}

func (s *Sender) handleDispositionFrame(d *frame.PerformDisposition) {
	last := d.First
	if d.Last != nil {
		last = *d.Last
	}
	for id := d.First; id <= last; id++ {
		dh, ok := s.pending[id]
		if !ok {
			continue
		}
		dh.State = d.State
		dh.Settled = d.Settled
		if d.Settled {
			delete(s.pending, id)
		}
	}
}

// Send marshals msg and writes its transfer frame(s) for this link. It
// returns once every fragment has been handed to the session's transport
// write, not once the delivery has settled; check the returned
// DeliveryHandle's Settled/State fields after a disposition arrives.
func (s *Sender) Send(msg *Message) (*DeliveryHandle, error) {
	if s.l.state != LinkStateAttached {
		return nil, &LinkError{inner: errors.Errorf("amqp: link %q is not attached (state %s)", s.l.key.name, s.l.state)}
	}
	if s.availableCredit == 0 {
		return nil, ErrWouldBlock
	}
	if !s.l.session.canSendTransfer() {
		return nil, ErrWouldBlock
	}
	if len(msg.DeliveryTag) > maxDeliveryTagLength {
		return nil, errors.Errorf("amqp: delivery tag length %d exceeds maximum of %d", len(msg.DeliveryTag), maxDeliveryTagLength)
	}

	s.buf.Reset()
	if err := msg.Marshal(&s.buf); err != nil {
		return nil, err
	}
	if s.l.maxMessageSize != 0 && uint64(s.buf.Len()) > s.l.maxMessageSize {
		return nil, errors.Errorf("amqp: encoded message size %d exceeds link max of %d", s.buf.Len(), s.l.maxMessageSize)
	}

	deliveryTag := msg.DeliveryTag
	if len(deliveryTag) == 0 {
		deliveryTag = make([]byte, 8)
		binary.BigEndian.PutUint64(deliveryTag, s.nextDeliveryTag)
		s.nextDeliveryTag++
	}

	maxPayloadSize := int64(s.l.session.conn.peerMaxFrameSize) - maxTransferFrameHeader
	if maxPayloadSize <= 0 {
		maxPayloadSize = int64(s.buf.Len())
	}

	senderSettled := s.l.senderSettleMode != nil &&
		(*s.l.senderSettleMode == encoding.SenderSettleModeSettled ||
			(*s.l.senderSettleMode == encoding.SenderSettleModeMixed && msg.SendSettled))

	deliveryID := s.l.session.nextDeliveryID()
	format := msg.Format

	dh := &DeliveryHandle{deliveryID: deliveryID, Settled: senderSettled}
	if !senderSettled {
		s.pending[deliveryID] = dh
	}

	fr := frame.PerformTransfer{
		Handle:        s.l.handle,
		DeliveryID:    &deliveryID,
		DeliveryTag:   deliveryTag,
		MessageFormat: &format,
		More:          true,
	}

	for fr.More {
		payload, _ := s.buf.Next(maxPayloadSize)
		fr.Payload = append([]byte(nil), payload...)
		fr.More = s.buf.Len() > 0
		if !fr.More {
			fr.Settled = senderSettled
		}

		log.Debugf(log.LevelFrames, "TX (sender %q): %v", s.l.key.name, fr)
		if err := s.l.session.txFrame(&fr); err != nil {
			return nil, err
		}

		// delivery-id/tag/format are only carried on the first frame of a transfer
		fr.DeliveryID = nil
		fr.DeliveryTag = nil
		fr.MessageFormat = nil
	}

	s.l.deliveryCount++
	if s.availableCredit > 0 {
		s.availableCredit--
	}

	return dh, nil
}

// Close begins the detach handshake for this link.
func (s *Sender) Close() error {
	return s.l.closeLink()
}
