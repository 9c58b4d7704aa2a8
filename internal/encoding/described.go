package encoding

import (
	"fmt"

	"github.com/Azure/go-amqp/internal/buffer"
)

// composite descriptor codes for the described types declared in this
// file. Performative codes live in internal/frame; these are the
// "inner" described types a performative's fields point at (source,
// target, error, and the five delivery-state outcomes).
const (
	TypeCodeError = 0x1d

	TypeCodeSource = 0x28
	TypeCodeTarget = 0x29

	TypeCodeDeliveryAnnotations = 0x71
	TypeCodeMessageAnnotations  = 0x72
	TypeCodeHeader              = 0x70
	TypeCodeProperties          = 0x73
	TypeCodeApplicationProperties = 0x74
	TypeCodeApplicationData     = 0x75
	TypeCodeAMQPSequence        = 0x76
	TypeCodeAMQPValue           = 0x77
	TypeCodeFooter              = 0x78

	TypeCodeStateReceived = 0x23
	TypeCodeStateAccepted = 0x24
	TypeCodeStateRejected = 0x25
	TypeCodeStateReleased = 0x26
	TypeCodeStateModified = 0x27

	TypeCodeDeclare    = 0x31
	TypeCodeDischarge  = 0x32
	TypeCodeDeclared   = 0x33
	TypeCodeTxnState   = 0x34
	TypeCodeCoordinator = 0x30
)

// Error is the AMQP error record: a condition symbol (often one of the
// standard amqp:* / amqp:session:* / amqp:link:* conditions), a
// human-readable description, and an open info map. Carried on
// Detach/End/Close and on the sasl-outcome-adjacent disposition paths.
type Error struct {
	Condition   Symbol
	Description string
	Info        map[Symbol]any
}

func (e *Error) Marshal(wr *buffer.Buffer) error {
	return MarshalComposite(wr, TypeCodeError, []MarshalField{
		{Value: &e.Condition, Omit: false},
		{Value: &e.Description, Omit: e.Description == ""},
		{Value: e.Info, Omit: len(e.Info) == 0},
	})
}

func (e *Error) Unmarshal(r *buffer.Buffer) error {
	return UnmarshalComposite(r, TypeCodeError,
		UnmarshalField{Field: &e.Condition, HandleNull: func() error { return fmt.Errorf("Error.Condition is required") }},
		UnmarshalField{Field: &e.Description},
		UnmarshalField{Field: &e.Info},
	)
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Condition, e.Description)
}

// Source describes a link's originating terminus.
type Source struct {
	Address      string
	Durable      uint32
	ExpiryPolicy Symbol
	Timeout      uint32
	Dynamic      bool
	DynamicNodeProperties map[string]any
	DistributionMode Symbol
	Filter           map[Symbol]any
	DefaultOutcome   any
	Outcomes         MultiSymbol
	Capabilities     MultiSymbol
}

func (s *Source) Marshal(wr *buffer.Buffer) error {
	return MarshalComposite(wr, TypeCodeSource, []MarshalField{
		{Value: &s.Address, Omit: s.Address == ""},
		{Value: &s.Durable, Omit: s.Durable == 0},
		{Value: &s.ExpiryPolicy, Omit: s.ExpiryPolicy == ""},
		{Value: &s.Timeout, Omit: s.Timeout == 0},
		{Value: &s.Dynamic, Omit: !s.Dynamic},
		{Value: s.DynamicNodeProperties, Omit: len(s.DynamicNodeProperties) == 0},
		{Value: &s.DistributionMode, Omit: s.DistributionMode == ""},
		{Value: s.Filter, Omit: len(s.Filter) == 0},
		{Value: s.DefaultOutcome, Omit: s.DefaultOutcome == nil},
		{Value: &s.Outcomes, Omit: len(s.Outcomes) == 0},
		{Value: &s.Capabilities, Omit: len(s.Capabilities) == 0},
	})
}

func (s *Source) Unmarshal(r *buffer.Buffer) error {
	return UnmarshalComposite(r, TypeCodeSource,
		UnmarshalField{Field: &s.Address},
		UnmarshalField{Field: &s.Durable},
		UnmarshalField{Field: &s.ExpiryPolicy},
		UnmarshalField{Field: &s.Timeout},
		UnmarshalField{Field: &s.Dynamic},
		UnmarshalField{Field: &s.DynamicNodeProperties},
		UnmarshalField{Field: &s.DistributionMode},
		UnmarshalField{Field: &s.Filter},
		UnmarshalField{Field: &s.DefaultOutcome},
		UnmarshalField{Field: &s.Outcomes},
		UnmarshalField{Field: &s.Capabilities},
	)
}

// Target describes a link's destination terminus.
type Target struct {
	Address               string
	Durable               uint32
	ExpiryPolicy          Symbol
	Timeout               uint32
	Dynamic               bool
	DynamicNodeProperties map[string]any
	Capabilities          MultiSymbol
}

func (t *Target) Marshal(wr *buffer.Buffer) error {
	return MarshalComposite(wr, TypeCodeTarget, []MarshalField{
		{Value: &t.Address, Omit: t.Address == ""},
		{Value: &t.Durable, Omit: t.Durable == 0},
		{Value: &t.ExpiryPolicy, Omit: t.ExpiryPolicy == ""},
		{Value: &t.Timeout, Omit: t.Timeout == 0},
		{Value: &t.Dynamic, Omit: !t.Dynamic},
		{Value: t.DynamicNodeProperties, Omit: len(t.DynamicNodeProperties) == 0},
		{Value: &t.Capabilities, Omit: len(t.Capabilities) == 0},
	})
}

func (t *Target) Unmarshal(r *buffer.Buffer) error {
	return UnmarshalComposite(r, TypeCodeTarget,
		UnmarshalField{Field: &t.Address},
		UnmarshalField{Field: &t.Durable},
		UnmarshalField{Field: &t.ExpiryPolicy},
		UnmarshalField{Field: &t.Timeout},
		UnmarshalField{Field: &t.Dynamic},
		UnmarshalField{Field: &t.DynamicNodeProperties},
		UnmarshalField{Field: &t.Capabilities},
	)
}

// DeliveryState is satisfied by the five terminal/non-terminal outcomes
// and by the transaction states Declared and TransactionalState, i.e.
// everything a transfer or disposition's State field can carry.
type DeliveryState interface {
	Marshaler
	Unmarshaler
	isDeliveryState()
}

// StateReceived records the highest section/offset a partial transfer
// reached, used to resume an interrupted multi-frame delivery.
type StateReceived struct {
	SectionNumber uint32
	SectionOffset uint64
}

func (*StateReceived) isDeliveryState() {}

func (s *StateReceived) Marshal(wr *buffer.Buffer) error {
	return MarshalComposite(wr, TypeCodeStateReceived, []MarshalField{
		{Value: &s.SectionNumber, Omit: false},
		{Value: &s.SectionOffset, Omit: false},
	})
}

func (s *StateReceived) Unmarshal(r *buffer.Buffer) error {
	return UnmarshalComposite(r, TypeCodeStateReceived,
		UnmarshalField{Field: &s.SectionNumber, HandleNull: func() error { return fmt.Errorf("Received.SectionNumber is required") }},
		UnmarshalField{Field: &s.SectionOffset, HandleNull: func() error { return fmt.Errorf("Received.SectionOffset is required") }},
	)
}

// StateAccepted is the terminal outcome indicating the message was
// processed successfully.
type StateAccepted struct{}

func (*StateAccepted) isDeliveryState() {}

func (*StateAccepted) Marshal(wr *buffer.Buffer) error {
	return MarshalComposite(wr, TypeCodeStateAccepted, nil)
}

func (*StateAccepted) Unmarshal(r *buffer.Buffer) error {
	return UnmarshalComposite(r, TypeCodeStateAccepted)
}

// StateRejected is the terminal outcome indicating the message could
// not be processed, optionally carrying an Error describing why.
type StateRejected struct {
	Error *Error
}

func (*StateRejected) isDeliveryState() {}

func (s *StateRejected) Marshal(wr *buffer.Buffer) error {
	return MarshalComposite(wr, TypeCodeStateRejected, []MarshalField{
		{Value: s.Error, Omit: s.Error == nil},
	})
}

func (s *StateRejected) Unmarshal(r *buffer.Buffer) error {
	return UnmarshalComposite(r, TypeCodeStateRejected,
		UnmarshalField{Field: &s.Error},
	)
}

// StateReleased is the terminal outcome indicating the message is
// returned to the sender's node for redelivery without being processed.
type StateReleased struct{}

func (*StateReleased) isDeliveryState() {}

func (*StateReleased) Marshal(wr *buffer.Buffer) error {
	return MarshalComposite(wr, TypeCodeStateReleased, nil)
}

func (*StateReleased) Unmarshal(r *buffer.Buffer) error {
	return UnmarshalComposite(r, TypeCodeStateReleased)
}

// StateModified is the terminal outcome indicating the message was
// modified in some way (annotations changed, delivery-failed bumped,
// undeliverable-here set) before being made available again.
type StateModified struct {
	DeliveryFailed    bool
	UndeliverableHere bool
	MessageAnnotations map[Symbol]any
}

func (*StateModified) isDeliveryState() {}

func (s *StateModified) Marshal(wr *buffer.Buffer) error {
	return MarshalComposite(wr, TypeCodeStateModified, []MarshalField{
		{Value: &s.DeliveryFailed, Omit: !s.DeliveryFailed},
		{Value: &s.UndeliverableHere, Omit: !s.UndeliverableHere},
		{Value: s.MessageAnnotations, Omit: len(s.MessageAnnotations) == 0},
	})
}

func (s *StateModified) Unmarshal(r *buffer.Buffer) error {
	return UnmarshalComposite(r, TypeCodeStateModified,
		UnmarshalField{Field: &s.DeliveryFailed},
		UnmarshalField{Field: &s.UndeliverableHere},
		UnmarshalField{Field: &s.MessageAnnotations},
	)
}

// unmarshalDeliveryState peeks the described type's composite code and
// constructs the matching DeliveryState implementation. Used as the
// Unmarshal target for a performative's State field, since the AMQP
// schema types this field as the union "*" requires="delivery-state".
func unmarshalDeliveryState(r *buffer.Buffer) (DeliveryState, error) {
	fc, err := peekFormatCode(r)
	if err != nil {
		return nil, err
	}
	if fc == TypeCodeNull {
		_, _ = r.ReadByte()
		return nil, nil
	}

	save := *r
	code, described, err := skipDescriptor(r)
	if err != nil {
		return nil, err
	}
	*r = save
	if !described {
		return nil, fmt.Errorf("encoding: delivery-state is not a described type")
	}

	var ds DeliveryState
	switch code {
	case TypeCodeStateReceived:
		ds = &StateReceived{}
	case TypeCodeStateAccepted:
		ds = &StateAccepted{}
	case TypeCodeStateRejected:
		ds = &StateRejected{}
	case TypeCodeStateReleased:
		ds = &StateReleased{}
	case TypeCodeStateModified:
		ds = &StateModified{}
	case TypeCodeDeclared:
		ds = &Declared{}
	case TypeCodeTxnState:
		ds = &TransactionalState{}
	default:
		return nil, fmt.Errorf("encoding: unrecognized delivery-state descriptor 0x%x", code)
	}
	if err := ds.Unmarshal(r); err != nil {
		return nil, err
	}
	return ds, nil
}

// DeliveryStateField adapts DeliveryState's polymorphic decode to the
// UnmarshalField/Unmarshal machinery: the caller supplies a *DeliveryState
// and this wraps it in a dispatcher satisfying Unmarshaler.
type DeliveryStateField struct {
	Target *DeliveryState
}

func (f DeliveryStateField) Unmarshal(r *buffer.Buffer) error {
	ds, err := unmarshalDeliveryState(r)
	if err != nil {
		return err
	}
	*f.Target = ds
	return nil
}

// Declare and Discharge are the transaction-controller request
// composites; Declared is the response carrying the new txn-id.
type Declare struct {
	GlobalID any
}

func (d *Declare) Marshal(wr *buffer.Buffer) error {
	return MarshalComposite(wr, TypeCodeDeclare, []MarshalField{
		{Value: d.GlobalID, Omit: d.GlobalID == nil},
	})
}

func (d *Declare) Unmarshal(r *buffer.Buffer) error {
	return UnmarshalComposite(r, TypeCodeDeclare,
		UnmarshalField{Field: &d.GlobalID},
	)
}

type Discharge struct {
	TxnID   []byte
	Failed  bool
}

func (d *Discharge) Marshal(wr *buffer.Buffer) error {
	return MarshalComposite(wr, TypeCodeDischarge, []MarshalField{
		{Value: &d.TxnID, Omit: false},
		{Value: &d.Failed, Omit: !d.Failed},
	})
}

func (d *Discharge) Unmarshal(r *buffer.Buffer) error {
	return UnmarshalComposite(r, TypeCodeDischarge,
		UnmarshalField{Field: &d.TxnID, HandleNull: func() error { return fmt.Errorf("Discharge.TxnID is required") }},
		UnmarshalField{Field: &d.Failed},
	)
}

type Declared struct {
	TxnID []byte
}

func (*Declared) isDeliveryState() {}

func (d *Declared) Marshal(wr *buffer.Buffer) error {
	return MarshalComposite(wr, TypeCodeDeclared, []MarshalField{
		{Value: &d.TxnID, Omit: false},
	})
}

func (d *Declared) Unmarshal(r *buffer.Buffer) error {
	return UnmarshalComposite(r, TypeCodeDeclared,
		UnmarshalField{Field: &d.TxnID, HandleNull: func() error { return fmt.Errorf("Declared.TxnID is required") }},
	)
}

// TransactionalState wraps an ordinary DeliveryState outcome with the
// transaction it belongs to, for transfers/dispositions inside a txn.
type TransactionalState struct {
	TxnID   []byte
	Outcome DeliveryState
}

func (*TransactionalState) isDeliveryState() {}

func (t *TransactionalState) Marshal(wr *buffer.Buffer) error {
	return MarshalComposite(wr, TypeCodeTxnState, []MarshalField{
		{Value: &t.TxnID, Omit: false},
		{Value: t.Outcome, Omit: t.Outcome == nil},
	})
}

func (t *TransactionalState) Unmarshal(r *buffer.Buffer) error {
	return UnmarshalComposite(r, TypeCodeTxnState,
		UnmarshalField{Field: &t.TxnID, HandleNull: func() error { return fmt.Errorf("TransactionalState.TxnID is required") }},
		UnmarshalField{Field: DeliveryStateField{Target: &t.Outcome}},
	)
}

// Coordinator is the target type an AMQP transaction-controller link
// attaches to in place of an ordinary Target.
type Coordinator struct {
	Capabilities MultiSymbol
}

func (c *Coordinator) Marshal(wr *buffer.Buffer) error {
	return MarshalComposite(wr, TypeCodeCoordinator, []MarshalField{
		{Value: &c.Capabilities, Omit: len(c.Capabilities) == 0},
	})
}

func (c *Coordinator) Unmarshal(r *buffer.Buffer) error {
	return UnmarshalComposite(r, TypeCodeCoordinator,
		UnmarshalField{Field: &c.Capabilities},
	)
}
