// Package compat bridges a blocking net.Conn to the synchronous amqp
// core. It is the one place in this repository that spawns a goroutine:
// Pump reads off the socket and feeds bytes into Conn.OnBytesReceived,
// since a real net.Conn has no non-blocking read API to drive the core's
// OnBytesReceived/OnTick model directly.
package compat

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	amqp "github.com/Azure/go-amqp"
)

// NetConnTransport adapts a net.Conn to amqp.Transport.
type NetConnTransport struct {
	conn net.Conn
}

// NewNetConnTransport wraps c as an amqp.Transport.
func NewNetConnTransport(c net.Conn) *NetConnTransport {
	return &NetConnTransport{conn: c}
}

// Send writes p to the underlying net.Conn. It may block; Pump's reader
// goroutine is independent of this call, so a slow peer stalls the
// caller of Conn methods, not the connection's ability to receive.
func (t *NetConnTransport) Send(p []byte) (int, error) {
	return t.conn.Write(p)
}

// Pump reads from conn's net.Conn in a loop, calling c.OnBytesReceived
// for every chunk read, until the connection is closed or Stop is
// called. It also calls c.OnTick on tickInterval so idle-timeout
// keepalives are emitted without the host having to run its own timer.
// Run Pump in its own goroutine; it returns when the read loop ends.
type Pump struct {
	nc            net.Conn
	core          *amqp.Conn
	tickInterval  time.Duration
	stopOnce      sync.Once
	stopCh        chan struct{}
	doneCh        chan struct{}
	err           error
	errMu         sync.Mutex
}

// NewPump constructs a Pump for core over nc. tickInterval bounds how
// often OnTick runs; pass 0 to use one second, matching the core's
// "host must call OnTick at least once a second" contract.
func NewPump(nc net.Conn, core *amqp.Conn, tickInterval time.Duration) *Pump {
	if tickInterval <= 0 {
		tickInterval = time.Second
	}
	return &Pump{
		nc:           nc,
		core:         core,
		tickInterval: tickInterval,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
}

// Run is the goroutine body: alternates reads (bounded by a short
// deadline so Stop is responsive) with periodic OnTick calls. Call it as
// `go p.Run()`.
func (p *Pump) Run() {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.tickInterval)
	defer ticker.Stop()

	readDeadline := p.tickInterval
	if readDeadline > 250*time.Millisecond {
		readDeadline = 250 * time.Millisecond
	}

	buf := make([]byte, 32*1024)
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			if err := p.core.OnTick(time.Now().UnixMilli()); err != nil {
				p.setErr(err)
				return
			}
		default:
		}

		_ = p.nc.SetReadDeadline(time.Now().Add(readDeadline))
		n, err := p.nc.Read(buf)
		if n > 0 {
			if err := p.core.OnBytesReceived(buf[:n]); err != nil {
				p.setErr(err)
				return
			}
		}
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if errors.Is(err, io.EOF) {
				p.setErr(nil)
			} else {
				p.setErr(err)
			}
			return
		}
	}
}

// Stop signals Run to exit and waits for it to return.
func (p *Pump) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	<-p.doneCh
}

// Err returns the error that ended the read loop, if any (nil on a
// clean EOF or explicit Stop).
func (p *Pump) Err() error {
	p.errMu.Lock()
	defer p.errMu.Unlock()
	return p.err
}

func (p *Pump) setErr(err error) {
	p.errMu.Lock()
	p.err = err
	p.errMu.Unlock()
}
