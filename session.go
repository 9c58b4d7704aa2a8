package amqp

import (
	"github.com/Azure/go-amqp/internal/encoding"
	"github.com/Azure/go-amqp/internal/frame"
	"github.com/Azure/go-amqp/internal/log"
	"github.com/pkg/errors"
)

// SessionState is the Session FSM's state, per spec.md §4.4.
type SessionState int

const (
	SessionStateUnmapped SessionState = iota
	SessionStateBeginSent
	SessionStateBeginRcvd
	SessionStateMapped
	SessionStateEndSent
	SessionStateEndRcvd
	SessionStateDiscarding
)

// SessionOptions configures a Session at construction.
type SessionOptions struct {
	IncomingWindow     uint32
	OutgoingWindow     uint32
	HandleMax          uint32
	OnSessionStateChange func(SessionState)
}

func (o *SessionOptions) orDefaults() *SessionOptions {
	if o == nil {
		o = &SessionOptions{}
	}
	cp := *o
	if cp.IncomingWindow == 0 {
		cp.IncomingWindow = 5000
	}
	if cp.OutgoingWindow == 0 {
		cp.OutgoingWindow = 5000
	}
	if cp.HandleMax == 0 {
		cp.HandleMax = 4294967295
	}
	return &cp
}

// Session is the AMQP session endpoint multiplexed over one Conn
// channel: begin/end, the transfer-id sequence, incoming/outgoing
// credit windows, and the link-handle registry. Like Conn, it is
// entirely synchronous — handleFrame is invoked from Conn.OnBytesReceived
// and never suspends.
type Session struct {
	conn    *Conn
	channel uint16
	opts    *SessionOptions
	state   SessionState

	nextOutgoingID uint32
	nextIncomingID uint32
	incomingWindow uint32
	outgoingWindow uint32
	remoteIncomingWindow uint32
	remoteOutgoingWindow uint32

	linksByHandle map[uint32]*link
	linksByName   map[linkKey]*link
	nextHandle    uint32

	doneErr error
}

func newSession(c *Conn, channel uint16, opts *SessionOptions) *Session {
	o := opts.orDefaults()
	return &Session{
		conn:           c,
		channel:        channel,
		opts:           o,
		incomingWindow: o.IncomingWindow,
		outgoingWindow: o.OutgoingWindow,
		linksByHandle:  map[uint32]*link{},
		linksByName:    map[linkKey]*link{},
	}
}

func (s *Session) setState(st SessionState) {
	s.state = st
	if s.opts.OnSessionStateChange != nil {
		s.opts.OnSessionStateChange(st)
	}
}

func (s *Session) sendBegin() error {
	begin := &frame.PerformBegin{
		NextOutgoingID: s.nextOutgoingID,
		IncomingWindow: s.incomingWindow,
		OutgoingWindow: s.outgoingWindow,
		HandleMax:      s.opts.HandleMax,
	}
	if err := s.txFrame(begin); err != nil {
		return err
	}
	s.setState(SessionStateBeginSent)
	return nil
}

// txFrame marshals body onto this session's channel via the parent Conn.
func (s *Session) txFrame(body frame.Body) error {
	return s.conn.sendFrame(frame.TypeAMQP, s.channel, body)
}

// handleFrame dispatches one performative received on this session's
// channel, either updating session state or routing to the addressed
// link by handle.
func (s *Session) handleFrame(fr frame.Frame) error {
	log.Debugf(log.LevelFrames, "RX (session %d): %v", s.channel, fr.Body)

	switch body := fr.Body.(type) {
	case *frame.PerformBegin:
		s.remoteIncomingWindow = body.IncomingWindow
		s.remoteOutgoingWindow = body.OutgoingWindow
		if s.state == SessionStateBeginSent {
			s.setState(SessionStateMapped)
		}
		return nil
	case *frame.PerformEnd:
		s.doneErr = &SessionError{RemoteErr: body.Error}
		if s.state != SessionStateEndSent {
			_ = s.txFrame(&frame.PerformEnd{})
		}
		s.setState(SessionStateUnmapped)
		delete(s.conn.sessionsByChan, s.channel)
		return s.doneErr
	case *frame.PerformAttach:
		// the remote's declared role is the opposite of our local link's role
		return s.routeByName(body.Name, !body.Role, fr)
	case *frame.PerformFlow:
		// the session-level window fields are mandatory on every flow,
		// link-addressed or not (AMQP 1.0 §2.7.4); remote_incoming_window
		// gates whether we may still send a transfer (§2.5.6).
		s.remoteIncomingWindow = body.IncomingWindow
		s.remoteOutgoingWindow = body.OutgoingWindow
		if body.Handle == nil {
			return nil // session-level flow update only
		}
		return s.routeByHandle(*body.Handle, fr)
	case *frame.PerformTransfer:
		s.nextIncomingID++
		if s.incomingWindow > 0 {
			s.incomingWindow--
		}
		return s.routeByHandle(body.Handle, fr)
	case *frame.PerformDisposition:
		return s.broadcastDisposition(body)
	case *frame.PerformDetach:
		return s.routeByHandle(body.Handle, fr)
	default:
		return errors.Errorf("amqp: session %d: unexpected frame %T", s.channel, fr.Body)
	}
}

func (s *Session) routeByHandle(handle uint32, fr frame.Frame) error {
	l, ok := s.linksByHandle[handle]
	if !ok {
		return &SessionError{inner: errors.Errorf("amqp: frame for unattached handle %d", handle)}
	}
	return l.handleFrame(fr)
}

func (s *Session) routeByName(name string, role encoding.Role, fr frame.Frame) error {
	l, ok := s.linksByName[linkKey{name: name, role: role}]
	if !ok {
		return &SessionError{inner: errors.Errorf("amqp: attach response for unknown link %q", name)}
	}
	return l.handleFrame(fr)
}

// broadcastDisposition fans a disposition frame's settled range out to
// every link that has deliveries in it; a link ignores ranges that don't
// include any of its pending delivery-ids.
func (s *Session) broadcastDisposition(d *frame.PerformDisposition) error {
	for _, l := range s.linksByHandle {
		l.handleDisposition(d)
	}
	return nil
}

func (s *Session) allocateHandle(l *link) error {
	if uint32(len(s.linksByHandle)) >= s.opts.HandleMax {
		return &SessionError{inner: errors.Errorf("amqp: handle-max (%d) reached", s.opts.HandleMax)}
	}
	l.handle = s.nextHandle
	s.nextHandle++
	s.linksByHandle[l.handle] = l
	s.linksByName[l.key] = l
	return nil
}

// nextDeliveryID returns the transfer-id to stamp on the first frame of a
// new delivery and advances the session's outgoing sequence, per AMQP 1.0
// §2.5.6 (one id consumed per delivery, not per fragment).
func (s *Session) nextDeliveryID() uint32 {
	id := s.nextOutgoingID
	s.nextOutgoingID++
	if s.outgoingWindow > 0 {
		s.outgoingWindow--
	}
	if s.remoteIncomingWindow > 0 {
		s.remoteIncomingWindow--
	}
	return id
}

// canSendTransfer reports whether remote_incoming_window was positive,
// i.e. whether the peer has told us it still has room for another
// delivery on this session (AMQP 1.0 §2.5.6's critical invariant: a
// transfer is sent only when this was true immediately beforehand).
func (s *Session) canSendTransfer() bool {
	return s.remoteIncomingWindow > 0
}

func (s *Session) deallocateHandle(l *link) {
	delete(s.linksByHandle, l.handle)
	delete(s.linksByName, l.key)
}

// NewSender creates and attaches a sending link on this session. The
// attach handshake completes asynchronously, from a later
// Conn.OnBytesReceived call; NewSender registers no link state-change
// callback.
func (s *Session) NewSender(opts *SenderOptions) (*Sender, error) {
	if opts == nil {
		opts = &SenderOptions{}
	}
	snd := newSender(s, opts)
	if err := snd.Attach(nil); err != nil {
		return nil, err
	}
	return snd, nil
}

// NewReceiver creates and attaches a receiving link on this session. It
// does not grant any link-credit; call Receiver.Flow (or set
// ReceiverOptions.Credit) once attached.
func (s *Session) NewReceiver(opts *ReceiverOptions) (*Receiver, error) {
	if opts == nil {
		opts = &ReceiverOptions{}
	}
	rcv := newReceiver(s, opts)
	if err := rcv.Attach(nil); err != nil {
		return nil, err
	}
	return rcv, nil
}

// NewTransactionController creates and attaches a transaction-controller
// link on this session.
func (s *Session) NewTransactionController(opts *TransactionControllerOptions) (*TransactionController, error) {
	tc := newTransactionController(s, opts)
	if err := tc.Attach(nil); err != nil {
		return nil, err
	}
	return tc, nil
}

// Close begins the session-end handshake.
func (s *Session) Close() error {
	if s.state == SessionStateUnmapped || s.state == SessionStateEndSent {
		return nil
	}
	if err := s.txFrame(&frame.PerformEnd{}); err != nil {
		return err
	}
	s.setState(SessionStateEndSent)
	return nil
}
