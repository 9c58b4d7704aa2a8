package amqp

import (
	"time"

	"github.com/Azure/go-amqp/internal/buffer"
	"github.com/Azure/go-amqp/internal/encoding"
	"github.com/pkg/errors"
)

// MessageHeader carries transport-level delivery hints: durability,
// priority, time-to-live, and the delivery-count the sender has already
// attempted (AMQP 1.0 §3.2.1).
type MessageHeader struct {
	Durable       bool
	Priority      uint8
	TTL           time.Duration // 0 means unset
	FirstAcquirer bool
	DeliveryCount uint32
}

func (h *MessageHeader) Marshal(wr *buffer.Buffer) error {
	return encoding.MarshalComposite(wr, encoding.TypeCodeHeader, []encoding.MarshalField{
		{Value: &h.Durable, Omit: !h.Durable},
		{Value: &h.Priority, Omit: h.Priority == 4}, // 4 is the default priority
		{Value: (*encoding.Milliseconds)(&h.TTL), Omit: h.TTL == 0},
		{Value: &h.FirstAcquirer, Omit: !h.FirstAcquirer},
		{Value: &h.DeliveryCount, Omit: h.DeliveryCount == 0},
	})
}

func (h *MessageHeader) Unmarshal(r *buffer.Buffer) error {
	return encoding.UnmarshalComposite(r, encoding.TypeCodeHeader,
		encoding.UnmarshalField{Field: &h.Durable},
		encoding.UnmarshalField{Field: &h.Priority, HandleNull: func() error { h.Priority = 4; return nil }},
		encoding.UnmarshalField{Field: (*encoding.Milliseconds)(&h.TTL)},
		encoding.UnmarshalField{Field: &h.FirstAcquirer},
		encoding.UnmarshalField{Field: &h.DeliveryCount},
	)
}

// MessageProperties is the immutable, application-addressable
// properties section (AMQP 1.0 §3.2.4).
type MessageProperties struct {
	MessageID          any
	UserID             []byte
	To                 string
	Subject            string
	ReplyTo            string
	CorrelationID      any
	ContentType        encoding.Symbol
	ContentEncoding    encoding.Symbol
	AbsoluteExpiryTime time.Time
	CreationTime       time.Time
	GroupID            string
	GroupSequence      uint32
	ReplyToGroupID     string
}

func (p *MessageProperties) Marshal(wr *buffer.Buffer) error {
	return encoding.MarshalComposite(wr, encoding.TypeCodeProperties, []encoding.MarshalField{
		{Value: p.MessageID, Omit: p.MessageID == nil},
		{Value: &p.UserID, Omit: len(p.UserID) == 0},
		{Value: &p.To, Omit: p.To == ""},
		{Value: &p.Subject, Omit: p.Subject == ""},
		{Value: &p.ReplyTo, Omit: p.ReplyTo == ""},
		{Value: p.CorrelationID, Omit: p.CorrelationID == nil},
		{Value: &p.ContentType, Omit: p.ContentType == ""},
		{Value: &p.ContentEncoding, Omit: p.ContentEncoding == ""},
		{Value: &p.AbsoluteExpiryTime, Omit: p.AbsoluteExpiryTime.IsZero()},
		{Value: &p.CreationTime, Omit: p.CreationTime.IsZero()},
		{Value: &p.GroupID, Omit: p.GroupID == ""},
		{Value: &p.GroupSequence, Omit: p.GroupSequence == 0},
		{Value: &p.ReplyToGroupID, Omit: p.ReplyToGroupID == ""},
	})
}

func (p *MessageProperties) Unmarshal(r *buffer.Buffer) error {
	return encoding.UnmarshalComposite(r, encoding.TypeCodeProperties,
		encoding.UnmarshalField{Field: &p.MessageID},
		encoding.UnmarshalField{Field: &p.UserID},
		encoding.UnmarshalField{Field: &p.To},
		encoding.UnmarshalField{Field: &p.Subject},
		encoding.UnmarshalField{Field: &p.ReplyTo},
		encoding.UnmarshalField{Field: &p.CorrelationID},
		encoding.UnmarshalField{Field: &p.ContentType},
		encoding.UnmarshalField{Field: &p.ContentEncoding},
		encoding.UnmarshalField{Field: &p.AbsoluteExpiryTime},
		encoding.UnmarshalField{Field: &p.CreationTime},
		encoding.UnmarshalField{Field: &p.GroupID},
		encoding.UnmarshalField{Field: &p.GroupSequence},
		encoding.UnmarshalField{Field: &p.ReplyToGroupID},
	)
}

// Message is the standardized AMQP message shell: the sections spec.md
// §3 calls out, each its own described composite walked through the same
// MarshalComposite/UnmarshalComposite table machinery as performatives.
// Exactly one of Data, Sequence, or Value should be set for the body.
type Message struct {
	Header                 *MessageHeader
	DeliveryAnnotations    map[encoding.Symbol]any
	MessageAnnotations     map[encoding.Symbol]any
	Properties             *MessageProperties
	ApplicationProperties  map[string]any
	Data                   [][]byte
	Sequence               [][]any
	Value                  any
	Footer                 map[encoding.Symbol]any

	// DeliveryTag and SendSettled are transfer-level, not part of the
	// wire-encoded message; Sender.Send consults them directly.
	DeliveryTag []byte
	Format      uint32
	SendSettled bool
}

// Marshal encodes every populated section in wire order.
func (m *Message) Marshal(wr *buffer.Buffer) error {
	if m.Header != nil {
		if err := m.Header.Marshal(wr); err != nil {
			return err
		}
	}
	if len(m.DeliveryAnnotations) > 0 {
		if err := marshalAnnotations(wr, encoding.TypeCodeDeliveryAnnotations, m.DeliveryAnnotations); err != nil {
			return err
		}
	}
	if len(m.MessageAnnotations) > 0 {
		if err := marshalAnnotations(wr, encoding.TypeCodeMessageAnnotations, m.MessageAnnotations); err != nil {
			return err
		}
	}
	if m.Properties != nil {
		if err := m.Properties.Marshal(wr); err != nil {
			return err
		}
	}
	if len(m.ApplicationProperties) > 0 {
		if err := encoding.MarshalComposite(wr, encoding.TypeCodeApplicationProperties, []encoding.MarshalField{
			{Value: m.ApplicationProperties, Omit: false},
		}); err != nil {
			return err
		}
	}
	switch {
	case len(m.Data) > 0:
		for _, d := range m.Data {
			if err := encoding.MarshalComposite(wr, encoding.TypeCodeApplicationData, []encoding.MarshalField{
				{Value: &d, Omit: false},
			}); err != nil {
				return err
			}
		}
	case len(m.Sequence) > 0:
		for _, seq := range m.Sequence {
			if err := encoding.MarshalComposite(wr, encoding.TypeCodeAMQPSequence, []encoding.MarshalField{
				{Value: seq, Omit: false},
			}); err != nil {
				return err
			}
		}
	case m.Value != nil:
		if err := encoding.MarshalComposite(wr, encoding.TypeCodeAMQPValue, []encoding.MarshalField{
			{Value: m.Value, Omit: false},
		}); err != nil {
			return err
		}
	}
	if len(m.Footer) > 0 {
		if err := marshalAnnotations(wr, encoding.TypeCodeFooter, m.Footer); err != nil {
			return err
		}
	}
	return nil
}

func marshalAnnotations(wr *buffer.Buffer, code uint64, m map[encoding.Symbol]any) error {
	return encoding.MarshalComposite(wr, code, []encoding.MarshalField{
		{Value: m, Omit: false},
	})
}

// Unmarshal decodes every section present in r, in wire order, stopping
// at Len()==0. Unknown leading sections are rejected; this package only
// ever produces the nine well-known section descriptors.
func (m *Message) Unmarshal(r *buffer.Buffer) error {
	for r.Len() > 0 {
		code, described, err := encoding.PeekComposite(r)
		if err != nil {
			return err
		}
		if !described {
			return errors.New("amqp: message section is not a described composite")
		}
		switch code {
		case encoding.TypeCodeHeader:
			m.Header = &MessageHeader{}
			if err := m.Header.Unmarshal(r); err != nil {
				return err
			}
		case encoding.TypeCodeDeliveryAnnotations:
			if err := unmarshalAnnotations(r, code, &m.DeliveryAnnotations); err != nil {
				return err
			}
		case encoding.TypeCodeMessageAnnotations:
			if err := unmarshalAnnotations(r, code, &m.MessageAnnotations); err != nil {
				return err
			}
		case encoding.TypeCodeProperties:
			m.Properties = &MessageProperties{}
			if err := m.Properties.Unmarshal(r); err != nil {
				return err
			}
		case encoding.TypeCodeApplicationProperties:
			if err := encoding.UnmarshalComposite(r, code, encoding.UnmarshalField{Field: &m.ApplicationProperties}); err != nil {
				return err
			}
		case encoding.TypeCodeApplicationData:
			var d []byte
			if err := encoding.UnmarshalComposite(r, code, encoding.UnmarshalField{Field: &d}); err != nil {
				return err
			}
			m.Data = append(m.Data, d)
		case encoding.TypeCodeAMQPSequence:
			var seq any
			if err := encoding.UnmarshalComposite(r, code, encoding.UnmarshalField{Field: &seq}); err != nil {
				return err
			}
			if list, ok := seq.([]any); ok {
				m.Sequence = append(m.Sequence, list)
			}
		case encoding.TypeCodeAMQPValue:
			if err := encoding.UnmarshalComposite(r, code, encoding.UnmarshalField{Field: &m.Value}); err != nil {
				return err
			}
		case encoding.TypeCodeFooter:
			if err := unmarshalAnnotations(r, code, &m.Footer); err != nil {
				return err
			}
		default:
			return errors.Errorf("amqp: unrecognized message section descriptor 0x%x", code)
		}
	}
	return nil
}

func unmarshalAnnotations(r *buffer.Buffer, code uint64, target *map[encoding.Symbol]any) error {
	return encoding.UnmarshalComposite(r, code, encoding.UnmarshalField{Field: target})
}
