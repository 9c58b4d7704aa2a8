package amqp

import (
	"fmt"
	"time"

	"github.com/Azure/go-amqp/internal/buffer"
	"github.com/Azure/go-amqp/internal/encoding"
	"github.com/Azure/go-amqp/internal/frame"
	"github.com/Azure/go-amqp/internal/log"
	"github.com/pkg/errors"
)

// Transport is the byte-stream collaborator a Conn is driven over. It is
// the one external interface this package depends on: a socket, TLS
// conn, or any other bidirectional byte stream. Transport.Send must not
// block indefinitely; a transport backed by a real blocking net.Conn
// should use the compat package's adapter.
type Transport interface {
	Send(p []byte) (int, error)
}

// ConnState is the Connection FSM's state, driven exclusively by
// OnBytesReceived, OnTick, and application calls — there is no internal
// goroutine advancing it.
type ConnState int

const (
	ConnStateStart ConnState = iota
	ConnStateSASLHdrSent
	ConnStateSASLHdrExch
	ConnStateSASLOutcome
	ConnStateHdrSent
	ConnStateHdrExch
	ConnStateOpenSent
	ConnStateOpened
	ConnStateCloseSent
	ConnStateEnd
)

func (s ConnState) String() string {
	switch s {
	case ConnStateStart:
		return "Start"
	case ConnStateSASLHdrSent:
		return "SASLHdrSent"
	case ConnStateSASLHdrExch:
		return "SASLHdrExch"
	case ConnStateSASLOutcome:
		return "SASLOutcome"
	case ConnStateHdrSent:
		return "HdrSent"
	case ConnStateHdrExch:
		return "HdrExch"
	case ConnStateOpenSent:
		return "OpenSent"
	case ConnStateOpened:
		return "Opened"
	case ConnStateCloseSent:
		return "CloseSent"
	case ConnStateEnd:
		return "End"
	default:
		return fmt.Sprintf("ConnState(%d)", int(s))
	}
}

var amqpHeader = [8]byte{'A', 'M', 'Q', 'P', 0, 1, 0, 0}
var saslHeader = [8]byte{'A', 'M', 'Q', 'P', 3, 1, 0, 0}

// ConnOptions configures a Conn at construction. A nil *ConnOptions means
// all defaults.
type ConnOptions struct {
	ContainerID     string
	HostName        string
	MaxFrameSize    uint32 // 0 means the default of 65536
	ChannelMax      uint16
	IdleTimeout     int64 // milliseconds; 0 advertises no idle-timeout and disables the inbound idle check (outbound keepalives follow the peer's idle-timeout)
	SASLType        SASLType
	SASLPlainUser   string
	SASLPlainPass   string
	OnConnStateChange func(ConnState)
}

func (o *ConnOptions) orDefaults() *ConnOptions {
	if o == nil {
		o = &ConnOptions{}
	}
	cp := *o
	if cp.ContainerID == "" {
		cp.ContainerID = "go-amqp"
	}
	if cp.MaxFrameSize == 0 {
		cp.MaxFrameSize = 65536
	}
	if cp.ChannelMax == 0 {
		cp.ChannelMax = 4999
	}
	return &cp
}

// Conn is the connection-level AMQP 1.0 state machine: protocol header
// exchange, optional SASL negotiation, open/close, idle-timeout
// keepalive, and channel demultiplexing to Sessions. It has no internal
// goroutine, lock, or blocking call; every method returns after doing
// synchronous, bounded work.
type Conn struct {
	transport Transport
	opts      *ConnOptions
	state     ConnState

	rxBuf  []byte // raw bytes not yet consumed by header/frame parsing
	reader *frame.Reader

	sasl *saslNegotiator

	peerIdleTimeout  int64 // milliseconds; 0 means the peer disabled keepalive
	peerMaxFrameSize uint32
	peerChannelMax   uint16

	tickBaselineSet    bool // first OnTick has recorded the idle baselines
	lastActivityMillis int64
	sentSinceLastTick  bool

	lastReceivedMillis    int64
	receivedSinceLastTick bool

	nextChannel    uint16
	sessionsByChan map[uint16]*Session

	doneErr error
}

// NewConn constructs a Conn over t and immediately writes the protocol
// (or, if opts.SASLType is set, SASL) header — the first byte on the
// wire for any AMQP 1.0 connection.
func NewConn(t Transport, opts *ConnOptions) (*Conn, error) {
	o := opts.orDefaults()
	c := &Conn{
		transport:      t,
		opts:           o,
		reader:         frame.NewReader(0),
		sessionsByChan: map[uint16]*Session{},
	}

	if o.SASLType != SASLTypeNone {
		c.sasl = newSASLNegotiator(o)
		if _, err := c.transport.Send(saslHeader[:]); err != nil {
			return nil, err
		}
		c.setState(ConnStateSASLHdrSent)
	} else {
		if _, err := c.transport.Send(amqpHeader[:]); err != nil {
			return nil, err
		}
		c.setState(ConnStateHdrSent)
	}
	return c, nil
}

func (c *Conn) setState(s ConnState) {
	c.state = s
	if c.opts.OnConnStateChange != nil {
		c.opts.OnConnStateChange(s)
	}
}

// OnBytesReceived feeds newly-arrived transport bytes into the
// connection. It never blocks and consumes as many complete frames as
// are currently buffered, leaving any partial frame for the next call.
func (c *Conn) OnBytesReceived(buf []byte) error {
	if c.state == ConnStateEnd {
		return c.doneErr
	}
	if len(buf) > 0 {
		c.receivedSinceLastTick = true
	}
	c.rxBuf = append(c.rxBuf, buf...)

	for c.state == ConnStateSASLHdrSent || c.state == ConnStateHdrSent {
		if len(c.rxBuf) < 8 {
			return nil
		}
		hdr := c.rxBuf[:8]
		c.rxBuf = c.rxBuf[8:]
		if err := c.handlePeerHeader(hdr); err != nil {
			return c.fatal(err)
		}
	}

	if len(c.rxBuf) > 0 {
		c.reader.Feed(c.rxBuf)
		c.rxBuf = c.rxBuf[:0]
	}

	for {
		fr, ok, err := c.reader.Next()
		if err != nil {
			return c.fatal(err)
		}
		if !ok {
			return nil
		}
		if fr.Type == frame.TypeSASL {
			if err := c.handleSASLFrame(fr); err != nil {
				return c.fatal(err)
			}
			continue
		}
		if err := c.handleFrame(fr); err != nil {
			return c.fatal(err)
		}
	}
}

func (c *Conn) handlePeerHeader(hdr []byte) error {
	switch c.state {
	case ConnStateSASLHdrSent:
		if string(hdr) != string(saslHeader[:]) {
			return errors.Errorf("amqp: unexpected SASL header from peer: %x", hdr)
		}
		c.setState(ConnStateSASLHdrExch)
		c.reader = frame.NewReader(512)
	case ConnStateHdrSent:
		if string(hdr) != string(amqpHeader[:]) {
			return errors.Errorf("amqp: unexpected protocol header from peer: %x", hdr)
		}
		c.setState(ConnStateHdrExch)
		c.reader = frame.NewReader(c.opts.MaxFrameSize)
		return c.sendOpen()
	}
	return nil
}

func (c *Conn) handleSASLFrame(fr frame.Frame) error {
	out, outcome, err := c.sasl.handle(fr.Body)
	if err != nil {
		return err
	}
	if out != nil {
		if err := c.sendFrame(frame.TypeSASL, 0, out); err != nil {
			return err
		}
	}
	if outcome {
		c.sasl.done = true
		if _, err := c.transport.Send(amqpHeader[:]); err != nil {
			return err
		}
		c.setState(ConnStateHdrSent)
		c.reader = frame.NewReader(0)
	}
	return nil
}

func (c *Conn) sendOpen() error {
	open := &frame.PerformOpen{
		ContainerID:  c.opts.ContainerID,
		Hostname:     c.opts.HostName,
		MaxFrameSize: c.opts.MaxFrameSize,
		ChannelMax:   c.opts.ChannelMax,
	}
	if c.opts.IdleTimeout > 0 {
		open.IdleTimeout = time.Duration(c.opts.IdleTimeout) * time.Millisecond
	}
	if err := c.sendFrame(frame.TypeAMQP, 0, open); err != nil {
		return err
	}
	c.setState(ConnStateOpenSent)
	return nil
}

func (c *Conn) handleFrame(fr frame.Frame) error {
	log.Debugf(log.LevelFrames, "RX (conn): channel %d: %v", fr.Channel, fr.Body)

	switch body := fr.Body.(type) {
	case *frame.PerformOpen:
		c.peerMaxFrameSize = body.MaxFrameSize
		c.peerChannelMax = body.ChannelMax
		c.peerIdleTimeout = body.IdleTimeout.Milliseconds()
		if c.state == ConnStateOpenSent {
			c.setState(ConnStateOpened)
		}
	case *frame.PerformClose:
		c.doneErr = &ConnError{RemoteErr: body.Error}
		if c.state != ConnStateCloseSent {
			_ = c.sendFrame(frame.TypeAMQP, 0, &frame.PerformClose{})
		}
		c.setState(ConnStateEnd)
		return c.doneErr
	case nil:
		// empty frame: idle-timeout keepalive, no action needed
	default:
		s, ok := c.sessionsByChan[fr.Channel]
		if !ok {
			return errors.Errorf("amqp: frame on unknown channel %d", fr.Channel)
		}
		return s.handleFrame(fr)
	}
	return nil
}

// OnTick drives idle-timeout handling in both directions: it emits an
// empty frame once at least half the peer's declared idle-timeout has
// elapsed since anything was last sent, and it fatally closes the
// connection if nothing at all has been received within our own
// locally-declared ConnOptions.IdleTimeout (spec.md §4.3). Host must
// call this at least once a second while the connection is open;
// nowMillis is host-supplied so the FSM never reads the clock itself.
func (c *Conn) OnTick(nowMillis int64) error {
	if c.state != ConnStateOpened && c.state != ConnStateOpenSent {
		return nil
	}
	if !c.tickBaselineSet {
		c.tickBaselineSet = true
		c.lastActivityMillis = nowMillis
		c.lastReceivedMillis = nowMillis
	}

	if c.opts.IdleTimeout > 0 {
		if c.receivedSinceLastTick {
			c.lastReceivedMillis = nowMillis
			c.receivedSinceLastTick = false
		} else if nowMillis-c.lastReceivedMillis >= c.opts.IdleTimeout {
			return c.idleTimeoutFatal()
		}
	}

	if c.sentSinceLastTick {
		c.lastActivityMillis = nowMillis
		c.sentSinceLastTick = false
		return nil
	}
	if c.peerIdleTimeout <= 0 {
		return nil
	}
	if nowMillis-c.lastActivityMillis < c.peerIdleTimeout/2 {
		return nil
	}
	if err := c.sendFrame(frame.TypeAMQP, 0, nil); err != nil {
		return c.fatal(err)
	}
	c.lastActivityMillis = nowMillis
	return nil
}

// idleTimeoutFatal closes the connection after the peer has gone silent
// longer than our declared idle-timeout, per AMQP 1.0 §2.4.5: the close
// carries amqp:resource-limit-exceeded since the peer failed to meet the
// timing contract it agreed to when the connection was opened.
func (c *Conn) idleTimeoutFatal() error {
	condErr := &encoding.Error{
		Condition:   "amqp:resource-limit-exceeded",
		Description: fmt.Sprintf("no frame received from peer within idle-timeout of %dms", c.opts.IdleTimeout),
	}
	_ = c.sendFrame(frame.TypeAMQP, 0, &frame.PerformClose{Error: condErr})
	return c.fatal(&ConnError{inner: errors.New(condErr.Description)})
}

func (c *Conn) fatal(err error) error {
	if c.doneErr == nil {
		c.doneErr = err
	}
	c.setState(ConnStateEnd)
	return err
}

// sendFrame marshals body and writes the framed bytes to the transport.
func (c *Conn) sendFrame(typ frame.Type, channel uint16, body frame.Body) error {
	var wr buffer.Buffer
	if err := frame.Encode(&wr, frame.Frame{Type: typ, Channel: channel, Body: body}); err != nil {
		return err
	}
	if _, err := c.transport.Send(wr.Bytes()); err != nil {
		return err
	}
	c.sentSinceLastTick = true
	return nil
}

// NewSession begins a new Session multiplexed on the next available
// channel. It sends the begin performative synchronously; the peer's
// begin response is consumed by a later OnBytesReceived call and the
// session transitions to SessionStateMapped at that point.
func (c *Conn) NewSession(opts *SessionOptions) (*Session, error) {
	if c.state != ConnStateOpened && c.state != ConnStateOpenSent {
		return nil, &ConnError{inner: errors.Errorf("amqp: connection not ready for new session (state %s)", c.state)}
	}
	ch := c.nextChannel
	c.nextChannel++

	s := newSession(c, ch, opts)
	c.sessionsByChan[ch] = s
	if err := s.sendBegin(); err != nil {
		return nil, err
	}
	return s, nil
}

// Close begins the connection close handshake: sends a close
// performative immediately. The peer's reciprocal close is observed by
// a later OnBytesReceived call.
func (c *Conn) Close() error {
	if c.state == ConnStateEnd || c.state == ConnStateCloseSent {
		return nil
	}
	if err := c.sendFrame(frame.TypeAMQP, 0, &frame.PerformClose{}); err != nil {
		return err
	}
	c.setState(ConnStateCloseSent)
	return nil
}

