package codec

import (
	"errors"
	"fmt"
	"math"

	"amina-zigbee/internal/metrics"
	"amina-zigbee/internal/schema"
	"amina-zigbee/internal/zcl"
)

// Reasons an attribute is ignored during decode.
const (
	ReasonUnknownAttribute = "unknown_attribute"
	ReasonBadValue         = "bad_value"
	ReasonNoStateSlot      = "no_state_slot"
)

// Ignored describes one attribute Decode skipped.
type Ignored struct {
	Attribute string
	Reason    string
}

// Result lists what Decode did with each attribute of a message.
type Result struct {
	Decoded []string // canonical keys, in message order
	Ignored []Ignored
}

// Decode turns one inbound message into a state patch. Measurements use
// their static scale unless the message itself carries their factors.
func (c *Codec) Decode(msg Message) State {
	st, _ := c.DecodeWithResult(msg)
	return st
}

// DecodeWithResult is Decode plus a record of decoded and ignored attributes.
func (c *Codec) DecodeWithResult(msg Message) (State, Result) {
	return c.DecodeCalibrated(msg, nil)
}

// DecodeCalibrated is DecodeWithResult with the measurement factors already
// known for the device. Factors carried by msg take precedence over known.
// known is not modified.
func (c *Codec) DecodeCalibrated(msg Message, known map[string]int64) (State, Result) {
	var (
		st  State
		res Result
	)
	factors := c.factors(msg, known)
	rev := string(c.schema.Revision())
	ignore := func(a AttributeValue, reason string, err error) {
		res.Ignored = append(res.Ignored, Ignored{Attribute: a.Ident(), Reason: reason})
		metrics.AttributesIgnored.WithLabelValues(rev, reason).Inc()
		c.logger.Debug("attribute ignored",
			"cluster", hexID(msg.Cluster),
			"attribute", a.Ident(),
			"reason", reason,
			"err", err,
		)
	}

	for _, a := range msg.Attributes {
		f, ok := c.resolve(msg.Cluster, a)
		if !ok {
			ignore(a, ReasonUnknownAttribute, nil)
			continue
		}
		if err := c.decodeField(&st, f, a.Value, factors); err != nil {
			reason := ReasonBadValue
			if errors.Is(err, errNoSlot) {
				reason = ReasonNoStateSlot
			}
			ignore(a, reason, err)
			continue
		}
		res.Decoded = append(res.Decoded, f.Key)
		metrics.AttributesDecoded.WithLabelValues(rev, f.Key).Inc()
	}
	return st, res
}

func (c *Codec) resolve(cluster uint16, a AttributeValue) (schema.Field, bool) {
	if a.Name != "" {
		return c.schema.LookupName(cluster, a.Name)
	}
	return c.schema.Lookup(cluster, a.ID)
}

var errNoSlot = errors.New("codec: field has no state slot")

// factors merges known with the valid factor attributes of msg.
func (c *Codec) factors(msg Message, known map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(known))
	for k, v := range known {
		out[k] = v
	}
	for _, a := range msg.Attributes {
		f, ok := c.resolve(msg.Cluster, a)
		if !ok || f.Decoding != schema.DecodeFactor {
			continue
		}
		if v, err := factorValue(a.Value); err == nil {
			out[f.Key] = v
		}
	}
	return out
}

func factorValue(value any) (int64, error) {
	v, ok := zcl.ToInt64(value)
	if !ok || v <= 0 || v > math.MaxUint16 {
		return 0, fmt.Errorf("want factor 1..65535, got %T %v", value, value)
	}
	return v, nil
}

// calibration returns the multiplier and divisor of a calibrated field once
// both are known.
func calibration(f schema.Field, factors map[string]int64) (mult, div float64, ok bool) {
	if !f.Calibrated() {
		return 0, 0, false
	}
	m, okM := factors[f.Calibration.Multiplier]
	d, okD := factors[f.Calibration.Divisor]
	if !okM || !okD {
		return 0, 0, false
	}
	div = float64(d)
	if f.Calibration.Kilo {
		div *= 1000
	}
	return float64(m), div, true
}

func (c *Codec) decodeField(st *State, f schema.Field, value any, factors map[string]int64) error {
	if mult, div, ok := calibration(f, factors); ok {
		raw, ok := zcl.ToFloat64(value)
		if !ok {
			return fmt.Errorf("want number, got %T", value)
		}
		p := st.numeric(f.Key)
		if p == nil {
			return errNoSlot
		}
		*p = ptr(scale(raw*mult, div, f.Precision))
		return nil
	}

	switch f.Decoding {
	case schema.DecodeFactor:
		v, err := factorValue(value)
		if err != nil {
			return err
		}
		if st.Calibration == nil {
			st.Calibration = make(map[string]int64)
		}
		st.Calibration[f.Key] = v
		return nil

	case schema.DecodeBool:
		v, ok := zcl.ToBool(value)
		if !ok {
			return fmt.Errorf("want bool, got %T", value)
		}
		if f.Key != schema.KeyState {
			return errNoSlot
		}
		st.Switch = &v
		return nil

	case schema.DecodeAlarms:
		raw, ok := zcl.ToUint64(value)
		if !ok || raw > math.MaxUint16 {
			return fmt.Errorf("want bitmap16, got %T %v", value, value)
		}
		st.Alarms, st.AlarmActive = c.decodeAlarms(uint16(raw))
		return nil

	case schema.DecodeStatus:
		raw, ok := zcl.ToUint64(value)
		if !ok || raw > math.MaxUint16 {
			return fmt.Errorf("want status bitmap, got %T %v", value, value)
		}
		label, derating := c.decodeStatus(uint16(raw))
		st.EVStatus = &label
		st.Derating = derating
		return nil

	case schema.DecodeScaled:
		raw, ok := zcl.ToFloat64(value)
		if !ok {
			return fmt.Errorf("want number, got %T", value)
		}
		p := st.numeric(f.Key)
		if p == nil {
			return errNoSlot
		}
		*p = ptr(scale(raw, f.Scale, f.Precision))
		return nil
	}

	// DecodeRaw
	if p := st.integer(f.Key); p != nil {
		raw, ok := zcl.ToInt64(value)
		if !ok {
			return fmt.Errorf("want integer, got %T %v", value, value)
		}
		*p = &raw
		return nil
	}
	if p := st.numeric(f.Key); p != nil {
		raw, ok := zcl.ToFloat64(value)
		if !ok {
			return fmt.Errorf("want number, got %T", value)
		}
		*p = &raw
		return nil
	}
	return errNoSlot
}

// decodeAlarms lists the catalogued alarm names whose bit is set, lowest bit first.
// Any set bit marks an alarm as active, including bits beyond the catalog.
func (c *Codec) decodeAlarms(raw uint16) ([]string, *bool) {
	catalog := c.schema.Alarms()
	names := make([]string, 0, catalog.Len())
	for i := 0; i < catalog.Len(); i++ {
		if raw>>i&0x01 == 1 {
			name, _ := catalog.Name(i)
			names = append(names, name)
		}
	}
	active := raw != 0
	return names, &active
}

// decodeStatus maps the low nibble of the status attribute to its label. A
// packed attribute also carries the derating flag in bit 15.
func (c *Codec) decodeStatus(raw uint16) (string, *int64) {
	var derating *int64
	if c.schema.StatusLayout() == schema.StatusPacked {
		derating = ptr(int64(raw >> schema.DeratingBit & 0x01))
	}
	if label, ok := c.schema.StatusLabel(uint8(raw & 0x0F)); ok {
		return label, derating
	}
	return fmt.Sprintf("Unknown Status: %d", raw), derating
}

func scale(raw, divisor float64, precision int) float64 {
	p := math.Pow(10, float64(precision))
	return math.Round(raw/divisor*p) / p
}
