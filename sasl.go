package amqp

import (
	"github.com/Azure/go-amqp/internal/encoding"
	"github.com/Azure/go-amqp/internal/frame"
	"github.com/pkg/errors"
)

// SASLType selects the mechanism a Conn offers during SASL negotiation.
// SASLTypeNone skips the SASL exchange entirely and goes straight to the
// AMQP protocol header, per spec.md's external-collaborator boundary:
// credential acquisition is the host's job, but the client still has to
// drive the sasl-mechanisms/sasl-init/sasl-outcome frame exchange itself.
type SASLType int

const (
	SASLTypeNone SASLType = iota
	SASLTypePlain
	SASLTypeAnonymous
)

// saslNegotiator drives the client side of the SASL frame exchange:
// receive sasl-mechanisms, pick one of ours from the intersection, send
// sasl-init, and wait for sasl-outcome. It holds no goroutine or timer;
// each inbound frame advances it by exactly one step.
type saslNegotiator struct {
	opts *ConnOptions
	done bool
}

func newSASLNegotiator(opts *ConnOptions) *saslNegotiator {
	return &saslNegotiator{opts: opts}
}

// handle advances the negotiator with one inbound SASL frame. It returns
// the frame (if any) to send in response, and outcome=true once the
// server's sasl-outcome has been processed (success only; failure is
// returned as an error).
func (n *saslNegotiator) handle(body frame.Body) (frame.Body, bool, error) {
	switch b := body.(type) {
	case *frame.SASLMechanisms:
		mech, init, err := n.selectMechanism(b.Mechanisms)
		if err != nil {
			return nil, false, err
		}
		return &frame.SASLInit{
			Mechanism:       mech,
			InitialResponse: init,
			Hostname:        n.opts.HostName,
		}, false, nil
	case *frame.SASLChallenge:
		// PLAIN/ANONYMOUS never challenge; respond empty to stay
		// protocol-compliant with a server that does anyway.
		return &frame.SASLResponse{}, false, nil
	case *frame.SASLOutcome:
		if b.Code != frame.SASLCodeOK {
			return nil, false, errors.Errorf("amqp: SASL negotiation failed: %s", b.Code)
		}
		return nil, true, nil
	default:
		return nil, false, errors.Errorf("amqp: unexpected frame during SASL negotiation: %T", body)
	}
}

func (n *saslNegotiator) selectMechanism(offered encoding.MultiSymbol) (encoding.Symbol, []byte, error) {
	has := func(name encoding.Symbol) bool {
		for _, m := range offered {
			if m == name {
				return true
			}
		}
		return false
	}

	switch n.opts.SASLType {
	case SASLTypePlain:
		if !has("PLAIN") {
			return "", nil, errors.New("amqp: server does not offer SASL PLAIN")
		}
		// PLAIN initial response: authzid \0 authcid \0 password
		resp := make([]byte, 0, len(n.opts.SASLPlainUser)*2+len(n.opts.SASLPlainPass)+2)
		resp = append(resp, 0)
		resp = append(resp, n.opts.SASLPlainUser...)
		resp = append(resp, 0)
		resp = append(resp, n.opts.SASLPlainPass...)
		return "PLAIN", resp, nil
	case SASLTypeAnonymous:
		if !has("ANONYMOUS") {
			return "", nil, errors.New("amqp: server does not offer SASL ANONYMOUS")
		}
		return "ANONYMOUS", []byte("anonymous"), nil
	default:
		return "", nil, errors.New("amqp: no SASL mechanism configured")
	}
}
