// Package expose describes the charger entities offered to user interfaces
// and automations.
package expose

import (
	"amina-zigbee/internal/schema"
)

// Access bits.
const (
	AccessState uint8 = 1 << iota // published in state
	AccessSet                     // settable
	AccessGet                     // readable on demand

	AccessStateGet = AccessState | AccessGet
	AccessAll      = AccessState | AccessSet | AccessGet
)

// Entity types.
const (
	TypeSwitch  = "switch"
	TypeNumeric = "numeric"
	TypeText    = "text"
	TypeBinary  = "binary"
	TypeList    = "list"
)

// CategoryDiagnostic marks entities that are hidden by default.
const CategoryDiagnostic = "diagnostic"

// Entity is one exposed property.
type Entity struct {
	Type        string   `json:"type"`
	Name        string   `json:"name"`
	Property    string   `json:"property"`
	Access      uint8    `json:"access"`
	Unit        string   `json:"unit,omitempty"`
	ValueMin    *float64 `json:"value_min,omitempty"`
	ValueMax    *float64 `json:"value_max,omitempty"`
	ValueStep   *float64 `json:"value_step,omitempty"`
	ValueOn     any      `json:"value_on,omitempty"`
	ValueOff    any      `json:"value_off,omitempty"`
	ValueToggle string   `json:"value_toggle,omitempty"`
	Description string   `json:"description,omitempty"`
	Category    string   `json:"category,omitempty"`
}

// Settable reports whether the entity accepts set requests.
func (e Entity) Settable() bool { return e.Access&AccessSet != 0 }

type template struct {
	key         string
	source      string // schema field backing the entity, key when empty
	typ         string
	access      uint8
	description string
	category    string
}

var templates = []template{
	{key: schema.KeyState, typ: TypeSwitch, access: AccessAll, description: "On/off state of the switch"},
	{key: schema.KeyChargeLimit, typ: TypeNumeric, access: AccessAll, description: "Maximum allowed amperage draw"},
	{key: schema.KeyEVStatus, typ: TypeText, access: AccessState, description: "Current charging status"},
	{key: schema.KeyPower, typ: TypeNumeric, access: AccessState, description: "Instantaneous measured power"},
	{key: schema.KeyCurrent, typ: TypeNumeric, access: AccessState, description: "Instantaneous measured electrical current"},
	{key: schema.KeyTotalActiveEnergy, typ: TypeNumeric, access: AccessStateGet, description: "Sum of consumed energy"},
	{key: schema.KeyLastSessionEnergy, typ: TypeNumeric, access: AccessStateGet, description: "Sum of consumed energy last session"},
	{key: schema.KeyAlarms, typ: TypeList, access: AccessState, description: "Alarms reported by EV Charger"},
	{key: schema.KeyAlarmActive, source: schema.KeyAlarms, typ: TypeBinary, access: AccessState, description: "An active alarm is present"},
	{key: schema.KeyACFrequency, typ: TypeNumeric, access: AccessState, description: "Measured electrical AC frequency", category: CategoryDiagnostic},
	{key: schema.KeyVoltage, typ: TypeNumeric, access: AccessState, description: "Measured electrical potential value", category: CategoryDiagnostic},
	{key: schema.KeyVoltagePhaseB, typ: TypeNumeric, access: AccessState, description: "Measured electrical potential value on phase B", category: CategoryDiagnostic},
	{key: schema.KeyVoltagePhaseC, typ: TypeNumeric, access: AccessState, description: "Measured electrical potential value on phase C", category: CategoryDiagnostic},
	{key: schema.KeyCurrentPhaseB, typ: TypeNumeric, access: AccessState, description: "Instantaneous measured electrical current on phase B", category: CategoryDiagnostic},
	{key: schema.KeyCurrentPhaseC, typ: TypeNumeric, access: AccessState, description: "Instantaneous measured electrical current on phase C", category: CategoryDiagnostic},
}

// For returns the entities a schema revision can serve, in display order.
// Units and ranges come from the schema, so they follow the revision.
func For(s *schema.Schema) []Entity {
	out := make([]Entity, 0, len(templates))
	for _, t := range templates {
		source := t.source
		if source == "" {
			source = t.key
		}
		f, ok := s.Field(source)
		if !ok {
			continue
		}
		e := Entity{
			Type:        t.typ,
			Name:        t.key,
			Property:    t.key,
			Access:      t.access,
			Description: t.description,
			Category:    t.category,
		}
		switch t.typ {
		case TypeNumeric:
			e.Unit = f.Unit
			if f.Settable() {
				e.ValueMin = ptr(f.Min)
				e.ValueMax = ptr(f.Max)
				if f.Step > 0 {
					e.ValueStep = ptr(f.Step)
				}
			}
		case TypeSwitch:
			e.ValueOn, e.ValueOff, e.ValueToggle = "ON", "OFF", "TOGGLE"
		case TypeBinary:
			e.ValueOn, e.ValueOff = true, false
		}
		out = append(out, e)
	}
	return out
}

// Find returns the entity with the given property name.
func Find(entities []Entity, property string) (Entity, bool) {
	for _, e := range entities {
		if e.Property == property {
			return e, true
		}
	}
	return Entity{}, false
}

func ptr(v float64) *float64 { return &v }
