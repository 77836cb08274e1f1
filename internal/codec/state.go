package codec

import (
	"encoding/json"
	"fmt"
	"slices"

	"amina-zigbee/internal/schema"
)

// State is the canonical charger state. A nil field is absent: the message
// that produced the state did not carry it. Alarms is absent when nil; an
// empty non-nil slice means no alarm bit is set.
//
// Calibration holds the device-reported measurement factors by key. It is
// persisted with the state but left out of Properties.
type State struct {
	Switch            *bool
	ChargeLimit       *int64
	ChargeLimitMax    *int64
	EVStatus          *string
	Derating          *int64
	Alarms            []string
	AlarmActive       *bool
	ConnectStatus     *int64
	TotalActiveEnergy *float64
	LastSessionEnergy *float64
	Power             *float64
	Current           *float64
	CurrentPhaseB     *float64
	CurrentPhaseC     *float64
	Voltage           *float64
	VoltagePhaseB     *float64
	VoltagePhaseC     *float64
	ACFrequency       *float64
	Calibration       map[string]int64
}

func (s *State) integer(key string) **int64 {
	switch key {
	case schema.KeyChargeLimit:
		return &s.ChargeLimit
	case schema.KeyChargeLimitMax:
		return &s.ChargeLimitMax
	case schema.KeyDerating:
		return &s.Derating
	case schema.KeyConnectStatus:
		return &s.ConnectStatus
	}
	return nil
}

func (s *State) numeric(key string) **float64 {
	switch key {
	case schema.KeyTotalActiveEnergy:
		return &s.TotalActiveEnergy
	case schema.KeyLastSessionEnergy:
		return &s.LastSessionEnergy
	case schema.KeyPower:
		return &s.Power
	case schema.KeyCurrent:
		return &s.Current
	case schema.KeyCurrentPhaseB:
		return &s.CurrentPhaseB
	case schema.KeyCurrentPhaseC:
		return &s.CurrentPhaseC
	case schema.KeyVoltage:
		return &s.Voltage
	case schema.KeyVoltagePhaseB:
		return &s.VoltagePhaseB
	case schema.KeyVoltagePhaseC:
		return &s.VoltagePhaseC
	case schema.KeyACFrequency:
		return &s.ACFrequency
	}
	return nil
}

// IsEmpty reports whether no field or calibration factor is present.
func (s State) IsEmpty() bool {
	return len(s.Properties()) == 0 && len(s.Calibration) == 0
}

// Merge applies patch on top of s: every field present in patch replaces the
// field in s, absent fields leave s untouched.
func (s *State) Merge(patch State) {
	if patch.Switch != nil {
		s.Switch = ptr(*patch.Switch)
	}
	if patch.EVStatus != nil {
		s.EVStatus = ptr(*patch.EVStatus)
	}
	if patch.Alarms != nil {
		s.Alarms = slices.Clone(patch.Alarms)
	}
	if patch.AlarmActive != nil {
		s.AlarmActive = ptr(*patch.AlarmActive)
	}
	for _, key := range integerKeys {
		if p := *patch.integer(key); p != nil {
			*s.integer(key) = ptr(*p)
		}
	}
	for _, key := range numericKeys {
		if p := *patch.numeric(key); p != nil {
			*s.numeric(key) = ptr(*p)
		}
	}
	for key, v := range patch.Calibration {
		if s.Calibration == nil {
			s.Calibration = make(map[string]int64, len(patch.Calibration))
		}
		s.Calibration[key] = v
	}
}

// Clone returns a deep copy.
func (s State) Clone() State {
	var out State
	out.Merge(s)
	return out
}

var integerKeys = []string{
	schema.KeyChargeLimit,
	schema.KeyChargeLimitMax,
	schema.KeyDerating,
	schema.KeyConnectStatus,
}

var numericKeys = []string{
	schema.KeyTotalActiveEnergy,
	schema.KeyLastSessionEnergy,
	schema.KeyPower,
	schema.KeyCurrent,
	schema.KeyCurrentPhaseB,
	schema.KeyCurrentPhaseC,
	schema.KeyVoltage,
	schema.KeyVoltagePhaseB,
	schema.KeyVoltagePhaseC,
	schema.KeyACFrequency,
}

// Properties flattens the present fields into the key/value shape published to
// consumers. The switch is rendered "ON"/"OFF".
func (s State) Properties() map[string]any {
	out := make(map[string]any)
	if s.Switch != nil {
		out[schema.KeyState] = onOff(*s.Switch)
	}
	if s.EVStatus != nil {
		out[schema.KeyEVStatus] = *s.EVStatus
	}
	if s.Alarms != nil {
		out[schema.KeyAlarms] = slices.Clone(s.Alarms)
	}
	if s.AlarmActive != nil {
		out[schema.KeyAlarmActive] = *s.AlarmActive
	}
	for _, key := range integerKeys {
		if p := *s.integer(key); p != nil {
			out[key] = *p
		}
	}
	for _, key := range numericKeys {
		if p := *s.numeric(key); p != nil {
			out[key] = *p
		}
	}
	return out
}

const calibrationKey = "calibration"

// MarshalJSON encodes the present fields. An empty alarm list is kept.
func (s State) MarshalJSON() ([]byte, error) {
	out := s.Properties()
	if len(s.Calibration) > 0 {
		out[calibrationKey] = s.Calibration
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores a state written by MarshalJSON. Unknown keys are dropped.
func (s *State) UnmarshalJSON(data []byte) error {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	var out State
	for key, raw := range m {
		if err := out.setJSON(key, raw); err != nil {
			return fmt.Errorf("codec: state field %q: %w", key, err)
		}
	}
	*s = out
	return nil
}

func (s *State) setJSON(key string, raw json.RawMessage) error {
	if string(raw) == "null" {
		return nil
	}
	switch key {
	case schema.KeyState:
		var v string
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		s.Switch = ptr(v == "ON")
		return nil
	case schema.KeyEVStatus:
		return json.Unmarshal(raw, &s.EVStatus)
	case schema.KeyAlarms:
		return json.Unmarshal(raw, &s.Alarms)
	case schema.KeyAlarmActive:
		return json.Unmarshal(raw, &s.AlarmActive)
	case calibrationKey:
		return json.Unmarshal(raw, &s.Calibration)
	}
	if p := s.integer(key); p != nil {
		return json.Unmarshal(raw, p)
	}
	if p := s.numeric(key); p != nil {
		return json.Unmarshal(raw, p)
	}
	return nil
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

func ptr[T any](v T) *T { return &v }
