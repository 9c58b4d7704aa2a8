package frame

import (
	"fmt"
	"strconv"
	"time"

	"github.com/Azure/go-amqp/internal/buffer"
	"github.com/Azure/go-amqp/internal/encoding"
)

const (
	typeCodeOpen        uint64 = 0x10
	typeCodeBegin       uint64 = 0x11
	typeCodeAttach      uint64 = 0x12
	typeCodeFlow        uint64 = 0x13
	typeCodeTransfer    uint64 = 0x14
	typeCodeDisposition uint64 = 0x15
	typeCodeDetach      uint64 = 0x16
	typeCodeEnd         uint64 = 0x17
	typeCodeClose       uint64 = 0x18

	typeCodeSASLMechanisms uint64 = 0x40
	typeCodeSASLInit       uint64 = 0x41
	typeCodeSASLChallenge  uint64 = 0x42
	typeCodeSASLResponse   uint64 = 0x43
	typeCodeSASLOutcome    uint64 = 0x44
)

func formatUint16Ptr(p *uint16) string {
	if p == nil {
		return "<nil>"
	}
	return strconv.FormatUint(uint64(*p), 10)
}

func formatUint32Ptr(p *uint32) string {
	if p == nil {
		return "<nil>"
	}
	return strconv.FormatUint(uint64(*p), 10)
}

/*
<type name="open" class="composite" source="list" provides="frame">
    <descriptor name="amqp:open:list" code="0x00000000:0x00000010"/>
    <field name="container-id" type="string" mandatory="true"/>
    <field name="hostname" type="string"/>
    <field name="max-frame-size" type="uint" default="4294967295"/>
    <field name="channel-max" type="ushort" default="65535"/>
    <field name="idle-time-out" type="milliseconds"/>
    <field name="outgoing-locales" type="ietf-language-tag" multiple="true"/>
    <field name="incoming-locales" type="ietf-language-tag" multiple="true"/>
    <field name="offered-capabilities" type="symbol" multiple="true"/>
    <field name="desired-capabilities" type="symbol" multiple="true"/>
    <field name="properties" type="fields"/>
</type>
*/
type PerformOpen struct {
	ContainerID         string // required
	Hostname            string
	MaxFrameSize        uint32 // default: 4294967295
	ChannelMax          uint16 // default: 65535
	IdleTimeout         time.Duration
	OutgoingLocales     encoding.MultiSymbol
	IncomingLocales     encoding.MultiSymbol
	OfferedCapabilities encoding.MultiSymbol
	DesiredCapabilities encoding.MultiSymbol
	Properties          map[encoding.Symbol]any
}

func (*PerformOpen) isFrameBody() {}

func (o *PerformOpen) String() string {
	return fmt.Sprintf("Open{ContainerID: %s, Hostname: %s, MaxFrameSize: %d, ChannelMax: %d, "+
		"IdleTimeout: %v, OutgoingLocales: %v, IncomingLocales: %v, OfferedCapabilities: %v, "+
		"DesiredCapabilities: %v, Properties: %v}",
		o.ContainerID, o.Hostname, o.MaxFrameSize, o.ChannelMax, o.IdleTimeout,
		o.OutgoingLocales, o.IncomingLocales, o.OfferedCapabilities, o.DesiredCapabilities, o.Properties)
}

func (o *PerformOpen) Marshal(wr *buffer.Buffer) error {
	return encoding.MarshalComposite(wr, typeCodeOpen, []encoding.MarshalField{
		{Value: &o.ContainerID, Omit: false},
		{Value: &o.Hostname, Omit: o.Hostname == ""},
		{Value: &o.MaxFrameSize, Omit: o.MaxFrameSize == 4294967295},
		{Value: &o.ChannelMax, Omit: o.ChannelMax == 65535},
		{Value: (*encoding.Milliseconds)(&o.IdleTimeout), Omit: o.IdleTimeout == 0},
		{Value: &o.OutgoingLocales, Omit: len(o.OutgoingLocales) == 0},
		{Value: &o.IncomingLocales, Omit: len(o.IncomingLocales) == 0},
		{Value: &o.OfferedCapabilities, Omit: len(o.OfferedCapabilities) == 0},
		{Value: &o.DesiredCapabilities, Omit: len(o.DesiredCapabilities) == 0},
		{Value: o.Properties, Omit: len(o.Properties) == 0},
	})
}

func (o *PerformOpen) Unmarshal(r *buffer.Buffer) error {
	return encoding.UnmarshalComposite(r, typeCodeOpen,
		encoding.UnmarshalField{Field: &o.ContainerID, HandleNull: func() error { return fmt.Errorf("Open.ContainerID is required") }},
		encoding.UnmarshalField{Field: &o.Hostname},
		encoding.UnmarshalField{Field: &o.MaxFrameSize, HandleNull: func() error { o.MaxFrameSize = 4294967295; return nil }},
		encoding.UnmarshalField{Field: &o.ChannelMax, HandleNull: func() error { o.ChannelMax = 65535; return nil }},
		encoding.UnmarshalField{Field: (*encoding.Milliseconds)(&o.IdleTimeout)},
		encoding.UnmarshalField{Field: &o.OutgoingLocales},
		encoding.UnmarshalField{Field: &o.IncomingLocales},
		encoding.UnmarshalField{Field: &o.OfferedCapabilities},
		encoding.UnmarshalField{Field: &o.DesiredCapabilities},
		encoding.UnmarshalField{Field: &o.Properties},
	)
}

/*
<type name="begin" class="composite" source="list" provides="frame">
    <descriptor name="amqp:begin:list" code="0x00000000:0x00000011"/>
    <field name="remote-channel" type="ushort"/>
    <field name="next-outgoing-id" type="transfer-number" mandatory="true"/>
    <field name="incoming-window" type="uint" mandatory="true"/>
    <field name="outgoing-window" type="uint" mandatory="true"/>
    <field name="handle-max" type="handle" default="4294967295"/>
    <field name="offered-capabilities" type="symbol" multiple="true"/>
    <field name="desired-capabilities" type="symbol" multiple="true"/>
    <field name="properties" type="fields"/>
</type>
*/
type PerformBegin struct {
	RemoteChannel       *uint16
	NextOutgoingID      uint32 // required, RFC-1982 serial number
	IncomingWindow      uint32 // required
	OutgoingWindow      uint32 // required
	HandleMax           uint32 // default 4294967295
	OfferedCapabilities encoding.MultiSymbol
	DesiredCapabilities encoding.MultiSymbol
	Properties          map[encoding.Symbol]any
}

func (*PerformBegin) isFrameBody() {}

func (b *PerformBegin) String() string {
	return fmt.Sprintf("Begin{RemoteChannel: %s, NextOutgoingID: %d, IncomingWindow: %d, "+
		"OutgoingWindow: %d, HandleMax: %d, OfferedCapabilities: %v, DesiredCapabilities: %v, Properties: %v}",
		formatUint16Ptr(b.RemoteChannel), b.NextOutgoingID, b.IncomingWindow, b.OutgoingWindow,
		b.HandleMax, b.OfferedCapabilities, b.DesiredCapabilities, b.Properties)
}

func (b *PerformBegin) Marshal(wr *buffer.Buffer) error {
	return encoding.MarshalComposite(wr, typeCodeBegin, []encoding.MarshalField{
		{Value: b.RemoteChannel, Omit: b.RemoteChannel == nil},
		{Value: &b.NextOutgoingID, Omit: false},
		{Value: &b.IncomingWindow, Omit: false},
		{Value: &b.OutgoingWindow, Omit: false},
		{Value: &b.HandleMax, Omit: b.HandleMax == 4294967295},
		{Value: &b.OfferedCapabilities, Omit: len(b.OfferedCapabilities) == 0},
		{Value: &b.DesiredCapabilities, Omit: len(b.DesiredCapabilities) == 0},
		{Value: b.Properties, Omit: b.Properties == nil},
	})
}

func (b *PerformBegin) Unmarshal(r *buffer.Buffer) error {
	return encoding.UnmarshalComposite(r, typeCodeBegin,
		encoding.UnmarshalField{Field: &b.RemoteChannel},
		encoding.UnmarshalField{Field: &b.NextOutgoingID, HandleNull: func() error { return fmt.Errorf("Begin.NextOutgoingID is required") }},
		encoding.UnmarshalField{Field: &b.IncomingWindow, HandleNull: func() error { return fmt.Errorf("Begin.IncomingWindow is required") }},
		encoding.UnmarshalField{Field: &b.OutgoingWindow, HandleNull: func() error { return fmt.Errorf("Begin.OutgoingWindow is required") }},
		encoding.UnmarshalField{Field: &b.HandleMax, HandleNull: func() error { b.HandleMax = 4294967295; return nil }},
		encoding.UnmarshalField{Field: &b.OfferedCapabilities},
		encoding.UnmarshalField{Field: &b.DesiredCapabilities},
		encoding.UnmarshalField{Field: &b.Properties},
	)
}

/*
<type name="attach" class="composite" source="list" provides="frame">
    <descriptor name="amqp:attach:list" code="0x00000000:0x00000012"/>
    <field name="name" type="string" mandatory="true"/>
    <field name="handle" type="handle" mandatory="true"/>
    <field name="role" type="role" mandatory="true"/>
    <field name="snd-settle-mode" type="sender-settle-mode" default="mixed"/>
    <field name="rcv-settle-mode" type="receiver-settle-mode" default="first"/>
    <field name="source" type="*" requires="source"/>
    <field name="target" type="*" requires="target"/>
    <field name="unsettled" type="map"/>
    <field name="incomplete-unsettled" type="boolean" default="false"/>
    <field name="initial-delivery-count" type="sequence-no"/>
    <field name="max-message-size" type="ulong"/>
    <field name="offered-capabilities" type="symbol" multiple="true"/>
    <field name="desired-capabilities" type="symbol" multiple="true"/>
    <field name="properties" type="fields"/>
</type>
*/
type PerformAttach struct {
	Name                string // required
	Handle              uint32 // required
	Role                encoding.Role
	SenderSettleMode    *encoding.SenderSettleMode
	ReceiverSettleMode  *encoding.ReceiverSettleMode
	Source              *encoding.Source
	Target              *encoding.Target
	Coordinator         *encoding.Coordinator
	Unsettled           map[string]any
	IncompleteUnsettled bool
	InitialDeliveryCount uint32
	MaxMessageSize      uint64
	OfferedCapabilities encoding.MultiSymbol
	DesiredCapabilities encoding.MultiSymbol
	Properties          map[encoding.Symbol]any
}

func (*PerformAttach) isFrameBody() {}

func (a *PerformAttach) String() string {
	return fmt.Sprintf("Attach{Name: %s, Handle: %d, Role: %s, SenderSettleMode: %v, ReceiverSettleMode: %v, "+
		"Source: %v, Target: %v, Unsettled: %v, IncompleteUnsettled: %t, InitialDeliveryCount: %d, "+
		"MaxMessageSize: %d, OfferedCapabilities: %v, DesiredCapabilities: %v, Properties: %v}",
		a.Name, a.Handle, a.Role, a.SenderSettleMode, a.ReceiverSettleMode, a.Source, a.Target,
		a.Unsettled, a.IncompleteUnsettled, a.InitialDeliveryCount, a.MaxMessageSize,
		a.OfferedCapabilities, a.DesiredCapabilities, a.Properties)
}

// targetField marshals either an ordinary Target or, for a
// transaction-controller link, a Coordinator, in the same list slot;
// the two are mutually exclusive per attachment.
func (a *PerformAttach) targetField() any {
	if a.Coordinator != nil {
		return a.Coordinator
	}
	return a.Target
}

// attachTargetSlot decodes the target list slot into a.Coordinator when the
// peer sent a coordinator, and into a.Target otherwise.
type attachTargetSlot struct{ a *PerformAttach }

func (f attachTargetSlot) Unmarshal(r *buffer.Buffer) error {
	if code, _, err := encoding.PeekComposite(r); err == nil && code == encoding.TypeCodeCoordinator {
		f.a.Coordinator = new(encoding.Coordinator)
		return f.a.Coordinator.Unmarshal(r)
	}
	f.a.Target = new(encoding.Target)
	return f.a.Target.Unmarshal(r)
}

func (a *PerformAttach) Marshal(wr *buffer.Buffer) error {
	return encoding.MarshalComposite(wr, typeCodeAttach, []encoding.MarshalField{
		{Value: &a.Name, Omit: false},
		{Value: &a.Handle, Omit: false},
		{Value: &a.Role, Omit: false},
		{Value: a.SenderSettleMode, Omit: a.SenderSettleMode == nil},
		{Value: a.ReceiverSettleMode, Omit: a.ReceiverSettleMode == nil},
		{Value: a.Source, Omit: a.Source == nil},
		{Value: a.targetField(), Omit: a.Target == nil && a.Coordinator == nil},
		{Value: a.Unsettled, Omit: len(a.Unsettled) == 0},
		{Value: &a.IncompleteUnsettled, Omit: !a.IncompleteUnsettled},
		{Value: &a.InitialDeliveryCount, Omit: a.Role == encoding.RoleReceiver},
		{Value: &a.MaxMessageSize, Omit: a.MaxMessageSize == 0},
		{Value: &a.OfferedCapabilities, Omit: len(a.OfferedCapabilities) == 0},
		{Value: &a.DesiredCapabilities, Omit: len(a.DesiredCapabilities) == 0},
		{Value: a.Properties, Omit: len(a.Properties) == 0},
	})
}

func (a *PerformAttach) Unmarshal(r *buffer.Buffer) error {
	return encoding.UnmarshalComposite(r, typeCodeAttach,
		encoding.UnmarshalField{Field: &a.Name, HandleNull: func() error { return fmt.Errorf("Attach.Name is required") }},
		encoding.UnmarshalField{Field: &a.Handle, HandleNull: func() error { return fmt.Errorf("Attach.Handle is required") }},
		encoding.UnmarshalField{Field: &a.Role, HandleNull: func() error { return fmt.Errorf("Attach.Role is required") }},
		encoding.UnmarshalField{Field: &a.SenderSettleMode},
		encoding.UnmarshalField{Field: &a.ReceiverSettleMode},
		encoding.UnmarshalField{Field: &a.Source},
		encoding.UnmarshalField{Field: attachTargetSlot{a}},
		encoding.UnmarshalField{Field: &a.Unsettled},
		encoding.UnmarshalField{Field: &a.IncompleteUnsettled},
		encoding.UnmarshalField{Field: &a.InitialDeliveryCount},
		encoding.UnmarshalField{Field: &a.MaxMessageSize},
		encoding.UnmarshalField{Field: &a.OfferedCapabilities},
		encoding.UnmarshalField{Field: &a.DesiredCapabilities},
		encoding.UnmarshalField{Field: &a.Properties},
	)
}

/*
<type name="flow" class="composite" source="list" provides="frame">
    <descriptor name="amqp:flow:list" code="0x00000000:0x00000013"/>
    <field name="next-incoming-id" type="transfer-number"/>
    <field name="incoming-window" type="uint" mandatory="true"/>
    <field name="next-outgoing-id" type="transfer-number" mandatory="true"/>
    <field name="outgoing-window" type="uint" mandatory="true"/>
    <field name="handle" type="handle"/>
    <field name="delivery-count" type="sequence-no"/>
    <field name="link-credit" type="uint"/>
    <field name="available" type="uint"/>
    <field name="drain" type="boolean" default="false"/>
    <field name="echo" type="boolean" default="false"/>
    <field name="properties" type="fields"/>
</type>
*/
type PerformFlow struct {
	NextIncomingID *uint32
	IncomingWindow uint32 // required
	NextOutgoingID uint32
	OutgoingWindow uint32
	Handle         *uint32
	DeliveryCount  *uint32
	LinkCredit     *uint32
	Available      *uint32
	Drain          bool
	Echo           bool
	Properties     map[encoding.Symbol]any
}

func (*PerformFlow) isFrameBody() {}

func (f *PerformFlow) String() string {
	return fmt.Sprintf("Flow{NextIncomingID: %s, IncomingWindow: %d, NextOutgoingID: %d, OutgoingWindow: %d, "+
		"Handle: %s, DeliveryCount: %s, LinkCredit: %s, Available: %s, Drain: %t, Echo: %t, Properties: %v}",
		formatUint32Ptr(f.NextIncomingID), f.IncomingWindow, f.NextOutgoingID, f.OutgoingWindow,
		formatUint32Ptr(f.Handle), formatUint32Ptr(f.DeliveryCount), formatUint32Ptr(f.LinkCredit),
		formatUint32Ptr(f.Available), f.Drain, f.Echo, f.Properties)
}

func (f *PerformFlow) Marshal(wr *buffer.Buffer) error {
	return encoding.MarshalComposite(wr, typeCodeFlow, []encoding.MarshalField{
		{Value: f.NextIncomingID, Omit: f.NextIncomingID == nil},
		{Value: &f.IncomingWindow, Omit: false},
		{Value: &f.NextOutgoingID, Omit: false},
		{Value: &f.OutgoingWindow, Omit: false},
		{Value: f.Handle, Omit: f.Handle == nil},
		{Value: f.DeliveryCount, Omit: f.DeliveryCount == nil},
		{Value: f.LinkCredit, Omit: f.LinkCredit == nil},
		{Value: f.Available, Omit: f.Available == nil},
		{Value: &f.Drain, Omit: !f.Drain},
		{Value: &f.Echo, Omit: !f.Echo},
		{Value: f.Properties, Omit: len(f.Properties) == 0},
	})
}

func (f *PerformFlow) Unmarshal(r *buffer.Buffer) error {
	return encoding.UnmarshalComposite(r, typeCodeFlow,
		encoding.UnmarshalField{Field: &f.NextIncomingID},
		encoding.UnmarshalField{Field: &f.IncomingWindow, HandleNull: func() error { return fmt.Errorf("Flow.IncomingWindow is required") }},
		encoding.UnmarshalField{Field: &f.NextOutgoingID, HandleNull: func() error { return fmt.Errorf("Flow.NextOutgoingID is required") }},
		encoding.UnmarshalField{Field: &f.OutgoingWindow, HandleNull: func() error { return fmt.Errorf("Flow.OutgoingWindow is required") }},
		encoding.UnmarshalField{Field: &f.Handle},
		encoding.UnmarshalField{Field: &f.DeliveryCount},
		encoding.UnmarshalField{Field: &f.LinkCredit},
		encoding.UnmarshalField{Field: &f.Available},
		encoding.UnmarshalField{Field: &f.Drain},
		encoding.UnmarshalField{Field: &f.Echo},
		encoding.UnmarshalField{Field: &f.Properties},
	)
}

/*
<type name="transfer" class="composite" source="list" provides="frame">
    <descriptor name="amqp:transfer:list" code="0x00000000:0x00000014"/>
    <field name="handle" type="handle" mandatory="true"/>
    <field name="delivery-id" type="delivery-number"/>
    <field name="delivery-tag" type="delivery-tag"/>
    <field name="message-format" type="message-format"/>
    <field name="settled" type="boolean"/>
    <field name="more" type="boolean" default="false"/>
    <field name="rcv-settle-mode" type="receiver-settle-mode"/>
    <field name="state" type="*" requires="delivery-state"/>
    <field name="resume" type="boolean" default="false"/>
    <field name="aborted" type="boolean" default="false"/>
    <field name="batchable" type="boolean" default="false"/>
</type>
*/
type PerformTransfer struct {
	Handle             uint32 // required
	DeliveryID         *uint32
	DeliveryTag        []byte // up to 32 bytes
	MessageFormat      *uint32
	Settled            bool
	More               bool
	ReceiverSettleMode *encoding.ReceiverSettleMode
	State              encoding.DeliveryState
	Resume             bool
	Aborted            bool
	Batchable          bool

	Payload []byte
}

func (*PerformTransfer) isFrameBody() {}

func (t *PerformTransfer) String() string {
	deliveryTag := "<nil>"
	if t.DeliveryTag != nil {
		deliveryTag = fmt.Sprintf("%q", t.DeliveryTag)
	}
	return fmt.Sprintf("Transfer{Handle: %d, DeliveryID: %s, DeliveryTag: %s, MessageFormat: %s, "+
		"Settled: %t, More: %t, ReceiverSettleMode: %v, State: %v, Resume: %t, Aborted: %t, "+
		"Batchable: %t, Payload [size]: %d}",
		t.Handle, formatUint32Ptr(t.DeliveryID), deliveryTag, formatUint32Ptr(t.MessageFormat),
		t.Settled, t.More, t.ReceiverSettleMode, t.State, t.Resume, t.Aborted, t.Batchable, len(t.Payload))
}

func (t *PerformTransfer) Marshal(wr *buffer.Buffer) error {
	err := encoding.MarshalComposite(wr, typeCodeTransfer, []encoding.MarshalField{
		{Value: &t.Handle, Omit: false},
		{Value: t.DeliveryID, Omit: t.DeliveryID == nil},
		{Value: &t.DeliveryTag, Omit: len(t.DeliveryTag) == 0},
		{Value: t.MessageFormat, Omit: t.MessageFormat == nil},
		{Value: &t.Settled, Omit: !t.Settled},
		{Value: &t.More, Omit: !t.More},
		{Value: t.ReceiverSettleMode, Omit: t.ReceiverSettleMode == nil},
		{Value: t.State, Omit: t.State == nil},
		{Value: &t.Resume, Omit: !t.Resume},
		{Value: &t.Aborted, Omit: !t.Aborted},
		{Value: &t.Batchable, Omit: !t.Batchable},
	})
	if err != nil {
		return err
	}
	wr.Append(t.Payload)
	return nil
}

func (t *PerformTransfer) Unmarshal(r *buffer.Buffer) error {
	err := encoding.UnmarshalComposite(r, typeCodeTransfer,
		encoding.UnmarshalField{Field: &t.Handle, HandleNull: func() error { return fmt.Errorf("Transfer.Handle is required") }},
		encoding.UnmarshalField{Field: &t.DeliveryID},
		encoding.UnmarshalField{Field: &t.DeliveryTag},
		encoding.UnmarshalField{Field: &t.MessageFormat},
		encoding.UnmarshalField{Field: &t.Settled},
		encoding.UnmarshalField{Field: &t.More},
		encoding.UnmarshalField{Field: &t.ReceiverSettleMode},
		encoding.UnmarshalField{Field: encoding.DeliveryStateField{Target: &t.State}},
		encoding.UnmarshalField{Field: &t.Resume},
		encoding.UnmarshalField{Field: &t.Aborted},
		encoding.UnmarshalField{Field: &t.Batchable},
	)
	if err != nil {
		return err
	}
	t.Payload = append([]byte(nil), r.Bytes()...)
	return nil
}

/*
<type name="disposition" class="composite" source="list" provides="frame">
    <descriptor name="amqp:disposition:list" code="0x00000000:0x00000015"/>
    <field name="role" type="role" mandatory="true"/>
    <field name="first" type="delivery-number" mandatory="true"/>
    <field name="last" type="delivery-number"/>
    <field name="settled" type="boolean" default="false"/>
    <field name="state" type="*" requires="delivery-state"/>
    <field name="batchable" type="boolean" default="false"/>
</type>
*/
type PerformDisposition struct {
	Role      encoding.Role
	First     uint32 // required
	Last      *uint32
	Settled   bool
	State     encoding.DeliveryState
	Batchable bool
}

func (*PerformDisposition) isFrameBody() {}

func (d *PerformDisposition) String() string {
	return fmt.Sprintf("Disposition{Role: %s, First: %d, Last: %s, Settled: %t, State: %v, Batchable: %t}",
		d.Role, d.First, formatUint32Ptr(d.Last), d.Settled, d.State, d.Batchable)
}

func (d *PerformDisposition) Marshal(wr *buffer.Buffer) error {
	return encoding.MarshalComposite(wr, typeCodeDisposition, []encoding.MarshalField{
		{Value: &d.Role, Omit: false},
		{Value: &d.First, Omit: false},
		{Value: d.Last, Omit: d.Last == nil},
		{Value: &d.Settled, Omit: !d.Settled},
		{Value: d.State, Omit: d.State == nil},
		{Value: &d.Batchable, Omit: !d.Batchable},
	})
}

func (d *PerformDisposition) Unmarshal(r *buffer.Buffer) error {
	return encoding.UnmarshalComposite(r, typeCodeDisposition,
		encoding.UnmarshalField{Field: &d.Role, HandleNull: func() error { return fmt.Errorf("Disposition.Role is required") }},
		encoding.UnmarshalField{Field: &d.First, HandleNull: func() error { return fmt.Errorf("Disposition.First is required") }},
		encoding.UnmarshalField{Field: &d.Last},
		encoding.UnmarshalField{Field: &d.Settled},
		encoding.UnmarshalField{Field: encoding.DeliveryStateField{Target: &d.State}},
		encoding.UnmarshalField{Field: &d.Batchable},
	)
}

/*
<type name="detach" class="composite" source="list" provides="frame">
    <descriptor name="amqp:detach:list" code="0x00000000:0x00000016"/>
    <field name="handle" type="handle" mandatory="true"/>
    <field name="closed" type="boolean" default="false"/>
    <field name="error" type="error"/>
</type>
*/
type PerformDetach struct {
	Handle uint32 // required
	Closed bool
	Error  *encoding.Error
}

func (*PerformDetach) isFrameBody() {}

func (d *PerformDetach) String() string {
	return fmt.Sprintf("Detach{Handle: %d, Closed: %t, Error: %v}", d.Handle, d.Closed, d.Error)
}

func (d *PerformDetach) Marshal(wr *buffer.Buffer) error {
	return encoding.MarshalComposite(wr, typeCodeDetach, []encoding.MarshalField{
		{Value: &d.Handle, Omit: false},
		{Value: &d.Closed, Omit: !d.Closed},
		{Value: d.Error, Omit: d.Error == nil},
	})
}

func (d *PerformDetach) Unmarshal(r *buffer.Buffer) error {
	return encoding.UnmarshalComposite(r, typeCodeDetach,
		encoding.UnmarshalField{Field: &d.Handle, HandleNull: func() error { return fmt.Errorf("Detach.Handle is required") }},
		encoding.UnmarshalField{Field: &d.Closed},
		encoding.UnmarshalField{Field: &d.Error},
	)
}

/*
<type name="end" class="composite" source="list" provides="frame">
    <descriptor name="amqp:end:list" code="0x00000000:0x00000017"/>
    <field name="error" type="error"/>
</type>
*/
type PerformEnd struct {
	Error *encoding.Error
}

func (*PerformEnd) isFrameBody() {}

func (e *PerformEnd) String() string { return fmt.Sprintf("End{Error: %v}", e.Error) }

func (e *PerformEnd) Marshal(wr *buffer.Buffer) error {
	return encoding.MarshalComposite(wr, typeCodeEnd, []encoding.MarshalField{
		{Value: e.Error, Omit: e.Error == nil},
	})
}

func (e *PerformEnd) Unmarshal(r *buffer.Buffer) error {
	return encoding.UnmarshalComposite(r, typeCodeEnd,
		encoding.UnmarshalField{Field: &e.Error},
	)
}

/*
<type name="close" class="composite" source="list" provides="frame">
    <descriptor name="amqp:close:list" code="0x00000000:0x00000018"/>
    <field name="error" type="error"/>
</type>
*/
type PerformClose struct {
	Error *encoding.Error
}

func (*PerformClose) isFrameBody() {}

func (c *PerformClose) String() string { return fmt.Sprintf("Close{Error: %v}", c.Error) }

func (c *PerformClose) Marshal(wr *buffer.Buffer) error {
	return encoding.MarshalComposite(wr, typeCodeClose, []encoding.MarshalField{
		{Value: c.Error, Omit: c.Error == nil},
	})
}

func (c *PerformClose) Unmarshal(r *buffer.Buffer) error {
	return encoding.UnmarshalComposite(r, typeCodeClose,
		encoding.UnmarshalField{Field: &c.Error},
	)
}

/*
<type name="sasl-mechanisms" class="composite" source="list" provides="sasl-frame">
    <descriptor name="amqp:sasl-mechanisms:list" code="0x00000000:0x00000040"/>
    <field name="sasl-server-mechanisms" type="symbol" multiple="true" mandatory="true"/>
</type>
*/
type SASLMechanisms struct {
	Mechanisms encoding.MultiSymbol
}

func (*SASLMechanisms) isFrameBody() {}

func (s *SASLMechanisms) String() string { return fmt.Sprintf("SaslMechanisms{Mechanisms: %v}", s.Mechanisms) }

func (s *SASLMechanisms) Marshal(wr *buffer.Buffer) error {
	return encoding.MarshalComposite(wr, typeCodeSASLMechanisms, []encoding.MarshalField{
		{Value: &s.Mechanisms, Omit: false},
	})
}

func (s *SASLMechanisms) Unmarshal(r *buffer.Buffer) error {
	return encoding.UnmarshalComposite(r, typeCodeSASLMechanisms,
		encoding.UnmarshalField{Field: &s.Mechanisms, HandleNull: func() error { return fmt.Errorf("SASLMechanisms.Mechanisms is required") }},
	)
}

/*
<type name="sasl-init" class="composite" source="list" provides="sasl-frame">
    <descriptor name="amqp:sasl-init:list" code="0x00000000:0x00000041"/>
    <field name="mechanism" type="symbol" mandatory="true"/>
    <field name="initial-response" type="binary"/>
    <field name="hostname" type="string"/>
</type>
*/
type SASLInit struct {
	Mechanism       encoding.Symbol
	InitialResponse []byte
	Hostname        string
}

func (*SASLInit) isFrameBody() {}

func (s *SASLInit) String() string {
	// elide InitialResponse: it may carry a plaintext secret (SASL PLAIN)
	return fmt.Sprintf("SaslInit{Mechanism: %s, InitialResponse: ********, Hostname: %s}", s.Mechanism, s.Hostname)
}

func (s *SASLInit) Marshal(wr *buffer.Buffer) error {
	return encoding.MarshalComposite(wr, typeCodeSASLInit, []encoding.MarshalField{
		{Value: &s.Mechanism, Omit: false},
		{Value: &s.InitialResponse, Omit: len(s.InitialResponse) == 0},
		{Value: &s.Hostname, Omit: s.Hostname == ""},
	})
}

func (s *SASLInit) Unmarshal(r *buffer.Buffer) error {
	return encoding.UnmarshalComposite(r, typeCodeSASLInit,
		encoding.UnmarshalField{Field: &s.Mechanism, HandleNull: func() error { return fmt.Errorf("SASLInit.Mechanism is required") }},
		encoding.UnmarshalField{Field: &s.InitialResponse},
		encoding.UnmarshalField{Field: &s.Hostname},
	)
}

/*
<type name="sasl-challenge" class="composite" source="list" provides="sasl-frame">
    <descriptor name="amqp:sasl-challenge:list" code="0x00000000:0x00000042"/>
    <field name="challenge" type="binary" mandatory="true"/>
</type>
*/
type SASLChallenge struct {
	Challenge []byte
}

func (*SASLChallenge) isFrameBody() {}

func (s *SASLChallenge) String() string { return "SaslChallenge{Challenge: ********}" }

func (s *SASLChallenge) Marshal(wr *buffer.Buffer) error {
	return encoding.MarshalComposite(wr, typeCodeSASLChallenge, []encoding.MarshalField{
		{Value: &s.Challenge, Omit: false},
	})
}

func (s *SASLChallenge) Unmarshal(r *buffer.Buffer) error {
	return encoding.UnmarshalComposite(r, typeCodeSASLChallenge,
		encoding.UnmarshalField{Field: &s.Challenge, HandleNull: func() error { return fmt.Errorf("SASLChallenge.Challenge is required") }},
	)
}

/*
<type name="sasl-response" class="composite" source="list" provides="sasl-frame">
    <descriptor name="amqp:sasl-response:list" code="0x00000000:0x00000043"/>
    <field name="response" type="binary" mandatory="true"/>
</type>
*/
type SASLResponse struct {
	Response []byte
}

func (*SASLResponse) isFrameBody() {}

func (s *SASLResponse) String() string { return "SaslResponse{Response: ********}" }

func (s *SASLResponse) Marshal(wr *buffer.Buffer) error {
	return encoding.MarshalComposite(wr, typeCodeSASLResponse, []encoding.MarshalField{
		{Value: &s.Response, Omit: false},
	})
}

func (s *SASLResponse) Unmarshal(r *buffer.Buffer) error {
	return encoding.UnmarshalComposite(r, typeCodeSASLResponse,
		encoding.UnmarshalField{Field: &s.Response, HandleNull: func() error { return fmt.Errorf("SASLResponse.Response is required") }},
	)
}

// SASLCode is the sasl-outcome result code.
type SASLCode uint8

const (
	SASLCodeOK      SASLCode = 0
	SASLCodeAuth    SASLCode = 1
	SASLCodeSys     SASLCode = 2
	SASLCodeSysPerm SASLCode = 3
	SASLCodeSysTemp SASLCode = 4
)

func (c SASLCode) String() string {
	switch c {
	case SASLCodeOK:
		return "OK"
	case SASLCodeAuth:
		return "auth"
	case SASLCodeSys:
		return "sys"
	case SASLCodeSysPerm:
		return "sys-perm"
	case SASLCodeSysTemp:
		return "sys-temp"
	default:
		return fmt.Sprintf("SASLCode(%d)", uint8(c))
	}
}

/*
<type name="sasl-outcome" class="composite" source="list" provides="sasl-frame">
    <descriptor name="amqp:sasl-outcome:list" code="0x00000000:0x00000044"/>
    <field name="code" type="sasl-code" mandatory="true"/>
    <field name="additional-data" type="binary"/>
</type>
*/
type SASLOutcome struct {
	Code           SASLCode
	AdditionalData []byte
}

func (*SASLOutcome) isFrameBody() {}

func (s *SASLOutcome) String() string {
	return fmt.Sprintf("SaslOutcome{Code: %v, AdditionalData: %v}", s.Code, s.AdditionalData)
}

func (s *SASLOutcome) Marshal(wr *buffer.Buffer) error {
	return encoding.MarshalComposite(wr, typeCodeSASLOutcome, []encoding.MarshalField{
		{Value: uint8(s.Code), Omit: false},
		{Value: &s.AdditionalData, Omit: len(s.AdditionalData) == 0},
	})
}

func (s *SASLOutcome) Unmarshal(r *buffer.Buffer) error {
	var code uint8
	err := encoding.UnmarshalComposite(r, typeCodeSASLOutcome,
		encoding.UnmarshalField{Field: &code, HandleNull: func() error { return fmt.Errorf("SASLOutcome.Code is required") }},
		encoding.UnmarshalField{Field: &s.AdditionalData},
	)
	s.Code = SASLCode(code)
	return err
}
