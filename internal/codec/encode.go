package codec

import (
	"fmt"
	"slices"
	"strings"

	"amina-zigbee/internal/schema"
	"amina-zigbee/internal/zcl"
	"amina-zigbee/internal/zcl/clusters"
)

// OperationKind names the wire operation an Operation performs.
type OperationKind string

const (
	OpRead               OperationKind = "read"
	OpWrite              OperationKind = "write"
	OpCommand            OperationKind = "command"
	OpBind               OperationKind = "bind"
	OpConfigureReporting OperationKind = "configure_reporting"
)

// Command is a cluster-specific command with its encoded ZCL payload.
// Params carries the same payload by field name.
type Command struct {
	Name    string
	ID      uint8
	Params  map[string]any
	Payload []byte
}

// AttributeWrite is one attribute of a write operation.
type AttributeWrite struct {
	ID    uint16
	Type  uint8
	Value any
	Data  []byte
}

// Operation is exactly one wire operation against the charger.
// ManufacturerCode is zero when the frame is not manufacturer specific.
type Operation struct {
	Kind             OperationKind
	Endpoint         uint8
	Cluster          uint16
	ManufacturerCode uint16
	Attributes       []uint16 // OpRead
	Writes           []AttributeWrite
	Command          *Command
	Reporting        []schema.ReportingEntry
}

func (op Operation) String() string {
	switch op.Kind {
	case OpCommand:
		return fmt.Sprintf("command %s on 0x%04X/%d", op.Command.Name, op.Cluster, op.Endpoint)
	case OpRead:
		return fmt.Sprintf("read %04X on 0x%04X/%d", op.Attributes, op.Cluster, op.Endpoint)
	}
	return fmt.Sprintf("%s on 0x%04X/%d", op.Kind, op.Cluster, op.Endpoint)
}

func (c *Codec) op(kind OperationKind, cluster uint16) Operation {
	op := Operation{Kind: kind, Endpoint: c.schema.Endpoint(), Cluster: cluster}
	if c.schema.IsProprietary(cluster) {
		op.ManufacturerCode = c.schema.ManufacturerCode()
	}
	return op
}

func (c *Codec) field(key string) (schema.Field, error) {
	f, ok := c.schema.Field(key)
	if !ok {
		return schema.Field{}, &SchemaMissError{Revision: c.schema.Revision(), Field: key}
	}
	return f, nil
}

// EncodeSet translates a user set request into one wire operation.
// Invalid values return a *ValidationError.
func (c *Codec) EncodeSet(key string, value any) (Operation, error) {
	switch key {
	case schema.KeyChargeLimit:
		f, err := c.field(key)
		if err != nil {
			return Operation{}, err
		}
		level, err := c.checkRange(f, value)
		if err != nil {
			return Operation{}, err
		}
		return c.moveToLevel(f, uint8(level))

	case schema.KeyState:
		f, err := c.field(key)
		if err != nil {
			return Operation{}, err
		}
		name, err := c.switchCommand(value)
		if err != nil {
			return Operation{}, err
		}
		cmd, ok := clusters.OnOff.FindCommand(name)
		if !ok {
			return Operation{}, fmt.Errorf("codec: genOnOff has no %s command", name)
		}
		op := c.op(OpCommand, f.Cluster)
		op.Command = &Command{Name: cmd.Name, ID: cmd.ID, Params: map[string]any{}, Payload: []byte{}}
		return op, nil
	}

	f, err := c.field(key)
	if err != nil {
		return Operation{}, err
	}
	if f.Attribute.Access&zcl.AccessWrite == 0 {
		return Operation{}, fmt.Errorf("%w: %s is not settable", ErrUnsupportedKey, key)
	}
	if f.Settable() {
		if _, err := c.checkRange(f, value); err != nil {
			return Operation{}, err
		}
	}
	raw := value
	if n, ok := number(value); ok && f.Attribute.Type != zcl.TypeCharStr && f.Attribute.Type != zcl.TypeBool {
		raw = n
	}
	data, err := zcl.EncodeValue(f.Attribute.Type, raw)
	if err != nil {
		return Operation{}, c.invalid(key, value, err.Error())
	}
	op := c.op(OpWrite, f.Cluster)
	op.Writes = []AttributeWrite{{ID: f.Attribute.ID, Type: f.Attribute.Type, Value: raw, Data: data}}
	return op, nil
}

// moveToLevel sets the charge limit. The level is applied immediately.
func (c *Codec) moveToLevel(f schema.Field, level uint8) (Operation, error) {
	cmd, ok := clusters.LevelControl.FindCommand("moveToLevel")
	if !ok {
		return Operation{}, fmt.Errorf("codec: genLevelCtrl has no moveToLevel command")
	}
	op := c.op(OpCommand, f.Cluster)
	op.Command = &Command{
		Name:    cmd.Name,
		ID:      cmd.ID,
		Params:  map[string]any{"level": level, "transtime": uint16(0)},
		Payload: []byte{level, 0x00, 0x00},
	}
	return op, nil
}

func (c *Codec) switchCommand(value any) (string, error) {
	switch v := value.(type) {
	case bool:
		if v {
			return "on", nil
		}
		return "off", nil
	case string:
		switch strings.ToUpper(strings.TrimSpace(v)) {
		case "ON":
			return "on", nil
		case "OFF":
			return "off", nil
		case "TOGGLE":
			return "toggle", nil
		}
	}
	return "", c.invalid(schema.KeyState, value, "must be ON, OFF or TOGGLE")
}

// EncodeGet translates a user get request into one read operation.
// Derived keys read the attribute they are decoded from.
func (c *Codec) EncodeGet(key string) (Operation, error) {
	source := key
	switch key {
	case schema.KeyAlarmActive:
		source = schema.KeyAlarms
	case schema.KeyDerating:
		source = schema.KeyEVStatus
	}
	f, err := c.field(source)
	if err != nil {
		return Operation{}, err
	}
	if !f.Attribute.IsReadable() {
		return Operation{}, fmt.Errorf("%w: %s is not readable", ErrUnsupportedKey, key)
	}
	op := c.op(OpRead, f.Cluster)
	op.Attributes = []uint16{f.Attribute.ID}
	if source == schema.KeyChargeLimit {
		// The charger only answers currentLevel reads carrying its manufacturer code.
		op.ManufacturerCode = c.schema.ManufacturerCode()
	}
	return op, nil
}

// ConfigureOperations returns the interview sequence for a freshly joined
// charger: bind every cluster, then per cluster read initial values and
// configure reporting.
func (c *Codec) ConfigureOperations() []Operation {
	var ops []Operation
	for _, cluster := range c.schema.Clusters() {
		ops = append(ops, c.op(OpBind, cluster))
	}

	reads := c.schema.InitialReads()
	reporting := make(map[uint16][]schema.ReportingEntry)
	var order []uint16
	for _, g := range reads {
		order = append(order, g.Cluster)
	}
	for _, e := range c.schema.Reporting() {
		if _, seen := reporting[e.Cluster]; !seen && !slices.Contains(order, e.Cluster) {
			order = append(order, e.Cluster)
		}
		reporting[e.Cluster] = append(reporting[e.Cluster], e)
	}

	for _, cluster := range order {
		for _, g := range reads {
			if g.Cluster == cluster {
				op := c.op(OpRead, cluster)
				op.Attributes = append([]uint16(nil), g.IDs...)
				ops = append(ops, op)
			}
		}
		if entries := reporting[cluster]; len(entries) > 0 {
			op := c.op(OpConfigureReporting, cluster)
			op.Reporting = entries
			ops = append(ops, op)
		}
	}
	return ops
}
