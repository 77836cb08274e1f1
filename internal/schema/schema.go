// Package schema holds the versioned attribute tables for the Amina S charger.
//
// Every firmware revision gets one immutable Schema describing where each
// canonical state field lives on the wire (cluster, attribute ID, data type)
// and how its raw value is interpreted. Lookups by canonical key serve the
// encode path; lookups by (cluster, attribute ID) or (cluster, attribute name)
// serve the decode path. A miss is always reported as "not present", never as
// a zero-valued field.
package schema

import (
	"fmt"
	"slices"

	"amina-zigbee/internal/zcl"
)

// Revision identifies one firmware/protocol generation.
type Revision string

// Decoding selects how a raw attribute value becomes canonical state.
type Decoding uint8

const (
	DecodeRaw    Decoding = iota // integer pass-through
	DecodeBool                   // on/off style boolean
	DecodeScaled                 // divide by Scale, round to Precision
	DecodeAlarms                 // bitmap against the alarm catalog
	DecodeStatus                 // 4-bit status code, layout per StatusLayout
	DecodeFactor                 // multiplier or divisor calibrating other fields
)

func (d Decoding) String() string {
	switch d {
	case DecodeRaw:
		return "raw"
	case DecodeBool:
		return "bool"
	case DecodeScaled:
		return "scaled"
	case DecodeAlarms:
		return "alarms"
	case DecodeStatus:
		return "status"
	case DecodeFactor:
		return "factor"
	}
	return fmt.Sprintf("decoding(%d)", d)
}

// StatusLayout describes how the EV status attribute is laid out.
type StatusLayout uint8

const (
	// StatusPacked: low nibble is the status code, bit 15 is the derating flag.
	StatusPacked StatusLayout = iota + 1
	// StatusIsolated: the attribute carries only the status code.
	StatusIsolated
)

func (l StatusLayout) String() string {
	switch l {
	case StatusPacked:
		return "packed"
	case StatusIsolated:
		return "isolated"
	}
	return "unset"
}

// DeratingBit is the bit of a packed status attribute that flags derating.
const DeratingBit = 15

// Field binds a canonical state key to a wire attribute.
type Field struct {
	Key       string
	Cluster   uint16
	Attribute zcl.AttributeDef
	Decoding  Decoding
	Scale     float64 // raw divisor for DecodeScaled; ignored otherwise
	Precision int     // decimal places kept after scaling or calibration
	Unit      string

	// Calibration, when set, replaces the static decoding once the device
	// has reported both of its factors.
	Calibration Calibration

	// Encode-side numeric bounds. Max == 0 means the field is not settable
	// through a numeric range.
	Min, Max, Step float64

	Read      bool   // read during configure
	Report    bool   // configure attribute reporting
	ReportMax uint16 // maximum report interval in seconds, 0 uses the schema default
}

// Calibration names the factor fields that scale a measurement to its base
// unit: value = raw * multiplier / divisor. Kilo publishes the result in
// thousands of the base unit.
type Calibration struct {
	Multiplier string
	Divisor    string
	Kilo       bool
}

// Calibrated reports whether the field is scaled by device-reported factors.
func (f Field) Calibrated() bool {
	return f.Calibration.Multiplier != "" || f.Calibration.Divisor != ""
}

// Settable reports whether the field carries an encode-side numeric range.
func (f Field) Settable() bool {
	return f.Max != 0
}

// AttributeRef addresses one attribute outside the canonical field set.
type AttributeRef struct {
	Cluster uint16
	ID      uint16
}

// ReportingEntry specifies attribute reporting configuration for one attribute.
type ReportingEntry struct {
	Cluster   uint16 `json:"cluster"`
	Attribute uint16 `json:"attribute"`
	Type      uint8  `json:"type"`
	Min       uint16 `json:"min"`
	Max       uint16 `json:"max"`
	Change    int    `json:"change"`
}

// Definition is the declarative input for one revision's schema.
type Definition struct {
	Revision         Revision
	Description      string
	Proprietary      uint16 // vendor cluster ID
	ManufacturerCode uint16
	Endpoint         uint8
	Status           StatusLayout
	StatusCodes      map[uint8]string
	Alarms           []string
	Fields           []Field
	ExtraReads       []AttributeRef // read during configure, not decoded
	ReportMaxSeconds uint16
}

type wireKey struct {
	cluster uint16
	id      uint16
}

type nameKey struct {
	cluster uint16
	name    string
}

// Schema is the frozen attribute table for one revision.
type Schema struct {
	def      Definition
	alarms   AlarmCatalog
	status   map[uint8]string
	fields   map[string]int
	byID     map[wireKey]int
	byName   map[nameKey]int
	clusters []uint16
}

// New validates a definition and builds its lookup indexes.
func New(def Definition) (*Schema, error) {
	if def.Revision == "" {
		return nil, fmt.Errorf("schema: revision is required")
	}
	if def.Endpoint == 0 {
		return nil, fmt.Errorf("schema %s: endpoint is required", def.Revision)
	}
	if len(def.Alarms) > 16 {
		return nil, fmt.Errorf("schema %s: %d alarms do not fit a bitmap16", def.Revision, len(def.Alarms))
	}

	s := &Schema{
		def:    def,
		alarms: AlarmCatalog(slices.Clone(def.Alarms)),
		status: make(map[uint8]string, len(def.StatusCodes)),
		fields: make(map[string]int, len(def.Fields)),
		byID:   make(map[wireKey]int, len(def.Fields)),
		byName: make(map[nameKey]int, len(def.Fields)),
	}
	s.def.Fields = slices.Clone(def.Fields)
	s.def.ExtraReads = slices.Clone(def.ExtraReads)
	s.def.Alarms = nil
	s.def.StatusCodes = nil

	for code, label := range def.StatusCodes {
		if code > 0x0F {
			return nil, fmt.Errorf("schema %s: status code %d does not fit 4 bits", def.Revision, code)
		}
		s.status[code] = label
	}

	for i, f := range s.def.Fields {
		if f.Key == "" {
			return nil, fmt.Errorf("schema %s: field %d has no key", def.Revision, i)
		}
		if _, dup := s.fields[f.Key]; dup {
			return nil, fmt.Errorf("schema %s: duplicate field %q", def.Revision, f.Key)
		}
		wk := wireKey{f.Cluster, f.Attribute.ID}
		if prev, dup := s.byID[wk]; dup {
			return nil, fmt.Errorf("schema %s: attribute 0x%04X in cluster 0x%04X bound to both %q and %q",
				def.Revision, f.Attribute.ID, f.Cluster, s.def.Fields[prev].Key, f.Key)
		}
		if f.Attribute.Name != "" {
			nk := nameKey{f.Cluster, f.Attribute.Name}
			if _, dup := s.byName[nk]; dup {
				return nil, fmt.Errorf("schema %s: attribute name %q repeated in cluster 0x%04X",
					def.Revision, f.Attribute.Name, f.Cluster)
			}
			s.byName[nk] = i
		}
		if !zcl.Known(f.Attribute.Type) {
			return nil, fmt.Errorf("schema %s: field %q has unsupported wire type 0x%02X", def.Revision, f.Key, f.Attribute.Type)
		}
		switch f.Decoding {
		case DecodeScaled:
			if f.Scale <= 0 || f.Precision < 0 {
				return nil, fmt.Errorf("schema %s: scaled field %q needs scale > 0 and precision >= 0", def.Revision, f.Key)
			}
		case DecodeStatus:
			if def.Status != StatusPacked && def.Status != StatusIsolated {
				return nil, fmt.Errorf("schema %s: status field %q without a status layout", def.Revision, f.Key)
			}
		case DecodeFactor:
			if !zcl.IsInteger(f.Attribute.Type) {
				return nil, fmt.Errorf("schema %s: factor field %q needs an integer wire type", def.Revision, f.Key)
			}
		}
		s.fields[f.Key] = i
		s.byID[wk] = i
		if !slices.Contains(s.clusters, f.Cluster) {
			s.clusters = append(s.clusters, f.Cluster)
		}
	}

	for _, f := range s.def.Fields {
		if !f.Calibrated() {
			continue
		}
		for _, key := range []string{f.Calibration.Multiplier, f.Calibration.Divisor} {
			i, ok := s.fields[key]
			if !ok || s.def.Fields[i].Decoding != DecodeFactor {
				return nil, fmt.Errorf("schema %s: field %q calibrated by %q, which is not a factor field",
					def.Revision, f.Key, key)
			}
		}
	}
	return s, nil
}

// Revision returns the revision this schema describes.
func (s *Schema) Revision() Revision { return s.def.Revision }

// Description returns a short human description of the revision.
func (s *Schema) Description() string { return s.def.Description }

// Proprietary returns the vendor cluster ID.
func (s *Schema) Proprietary() uint16 { return s.def.Proprietary }

// ManufacturerCode returns the code sent with every proprietary-cluster operation.
func (s *Schema) ManufacturerCode() uint16 { return s.def.ManufacturerCode }

// Endpoint returns the device endpoint every operation is addressed to.
func (s *Schema) Endpoint() uint8 { return s.def.Endpoint }

// StatusLayout returns the EV status attribute layout.
func (s *Schema) StatusLayout() StatusLayout { return s.def.Status }

// Alarms returns the alarm catalog.
func (s *Schema) Alarms() AlarmCatalog { return s.alarms }

// StatusLabel maps a 4-bit status code to its label.
func (s *Schema) StatusLabel(code uint8) (string, bool) {
	label, ok := s.status[code]
	return label, ok
}

// Field looks up a field by canonical key.
func (s *Schema) Field(key string) (Field, bool) {
	i, ok := s.fields[key]
	if !ok {
		return Field{}, false
	}
	return s.def.Fields[i], true
}

// Lookup finds the field bound to a numeric attribute ID in a cluster.
func (s *Schema) Lookup(cluster, id uint16) (Field, bool) {
	i, ok := s.byID[wireKey{cluster, id}]
	if !ok {
		return Field{}, false
	}
	return s.def.Fields[i], true
}

// LookupName finds the field bound to a named attribute in a cluster.
func (s *Schema) LookupName(cluster uint16, name string) (Field, bool) {
	i, ok := s.byName[nameKey{cluster, name}]
	if !ok {
		return Field{}, false
	}
	return s.def.Fields[i], true
}

// IsProprietary reports whether a cluster is the vendor cluster of this revision.
func (s *Schema) IsProprietary(cluster uint16) bool {
	return cluster == s.def.Proprietary
}

// Fields returns all fields in definition order.
func (s *Schema) Fields() []Field {
	return slices.Clone(s.def.Fields)
}

// Clusters returns every cluster that carries at least one field, in definition order.
func (s *Schema) Clusters() []uint16 {
	return slices.Clone(s.clusters)
}

// InitialReads returns the attributes to read during configure, grouped by cluster
// in definition order.
func (s *Schema) InitialReads() []AttributeGroup {
	var groups []AttributeGroup
	add := func(cluster, id uint16) {
		for i := range groups {
			if groups[i].Cluster == cluster {
				if !slices.Contains(groups[i].IDs, id) {
					groups[i].IDs = append(groups[i].IDs, id)
				}
				return
			}
		}
		groups = append(groups, AttributeGroup{Cluster: cluster, IDs: []uint16{id}})
	}
	for _, f := range s.def.Fields {
		if f.Read {
			add(f.Cluster, f.Attribute.ID)
		}
	}
	for _, ref := range s.def.ExtraReads {
		add(ref.Cluster, ref.ID)
	}
	return groups
}

// AttributeGroup is a set of attribute IDs in one cluster.
type AttributeGroup struct {
	Cluster uint16
	IDs     []uint16
}

// Reporting returns reporting configuration for every reportable field.
func (s *Schema) Reporting() []ReportingEntry {
	var out []ReportingEntry
	for _, f := range s.def.Fields {
		if !f.Report {
			continue
		}
		maxInterval := f.ReportMax
		if maxInterval == 0 {
			maxInterval = s.def.ReportMaxSeconds
		}
		out = append(out, ReportingEntry{
			Cluster:   f.Cluster,
			Attribute: f.Attribute.ID,
			Type:      f.Attribute.Type,
			Min:       0,
			Max:       maxInterval,
			Change:    0,
		})
	}
	return out
}
