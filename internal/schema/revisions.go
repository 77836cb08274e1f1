package schema

import (
	"amina-zigbee/internal/zcl"
	"amina-zigbee/internal/zcl/clusters"
)

// Known revisions, oldest first.
const (
	RevisionV1 Revision = "v1"
	RevisionV2 Revision = "v2"
	RevisionV3 Revision = "v3"
	RevisionV4 Revision = "v4"
)

// Device constants shared by every revision.
const (
	ProprietaryCluster uint16 = 0xFEE7
	ManufacturerCode   uint16 = 0x143B
	DefaultEndpoint    uint8  = 10
)

const (
	reportMinute = 60
	reportHour   = 3600
)

// LegacyAlarms is the alarm catalog of the first firmware generation.
// Later catalogs must keep it as a prefix.
func LegacyAlarms() []string {
	return []string{
		"Welded relay(s)",
		"Wrong voltage balance",
		"RDC-DD DC Leakage",
		"RDC-DD AC Leakage",
		"Temperature error",
		"Overvoltage alarm",
		"Overcurrent alarm",
		"Car communication error",
		"Charger processing error",
		"Critical overcurrent alarm",
	}
}

func statusCodes() map[uint8]string {
	return map[uint8]string{
		0b0000: "Not Connected",
		0b0001: "EV Connected",
		0b0011: "Ready to Charge",
		0b0111: "Charging",
		0b1011: "Paused",
	}
}

// proprietaryLayout is the part of the vendor cluster that drifts between revisions.
type proprietaryLayout struct {
	chargeLimitMax    uint16
	alarms            uint16
	evStatus          uint16
	evStatusType      uint8
	connectStatus     uint16
	totalActiveEnergy uint16
	lastSessionEnergy uint16
	energyInKWh       bool
	powerInKW         bool
}

func attr(c zcl.ClusterDef, name string) zcl.AttributeDef {
	a, ok := c.FindAttributeByName(name)
	if !ok {
		panic("schema: standard attribute " + name + " missing from " + c.Name)
	}
	return a
}

func ref(c zcl.ClusterDef, name string) AttributeRef {
	return AttributeRef{Cluster: c.ID, ID: attr(c, name).ID}
}

func vendorAttr(id uint16, name string, typeID uint8) zcl.AttributeDef {
	return zcl.AttributeDef{ID: id, Name: name, Type: typeID, Access: zcl.AccessRead | zcl.AccessReport}
}

func energyField(key string, id uint16, name string, kwh bool) Field {
	f := Field{
		Key:       key,
		Cluster:   ProprietaryCluster,
		Attribute: vendorAttr(id, name, zcl.TypeUint32),
		Decoding:  DecodeRaw,
		Unit:      "Wh",
		Read:      true,
	}
	if kwh {
		f.Decoding = DecodeScaled
		f.Scale = 1000
		f.Precision = 2
		f.Unit = "kWh"
	}
	return f
}

var (
	voltageCalibration = Calibration{Multiplier: KeyVoltageMultiplier, Divisor: KeyVoltageDivisor}
	currentCalibration = Calibration{Multiplier: KeyCurrentMultiplier, Divisor: KeyCurrentDivisor}
)

// electricalFields binds the measurement cluster. Until the charger has reported
// its multiplier and divisor, current is taken as mA and voltage and power as
// whole units.
func electricalFields(powerInKW bool) []Field {
	em := clusters.ElectricalMeasurement
	factor := func(key, name string) Field {
		return Field{Key: key, Cluster: em.ID, Attribute: attr(em, name), Decoding: DecodeFactor, Read: true}
	}
	current := func(key, name string) Field {
		return Field{
			Key:         key,
			Cluster:     em.ID,
			Attribute:   attr(em, name),
			Decoding:    DecodeScaled,
			Scale:       1000,
			Precision:   2,
			Unit:        "A",
			Calibration: currentCalibration,
		}
	}
	voltage := func(key, name string) Field {
		return Field{
			Key:         key,
			Cluster:     em.ID,
			Attribute:   attr(em, name),
			Decoding:    DecodeRaw,
			Precision:   2,
			Unit:        "V",
			Calibration: voltageCalibration,
		}
	}
	power := Field{
		Key:         KeyPower,
		Cluster:     em.ID,
		Attribute:   attr(em, "activePower"),
		Decoding:    DecodeRaw,
		Precision:   2,
		Unit:        "W",
		Calibration: Calibration{Multiplier: KeyPowerMultiplier, Divisor: KeyPowerDivisor},
	}
	if powerInKW {
		power.Decoding = DecodeScaled
		power.Scale = 1000
		power.Unit = "kW"
		power.Calibration.Kilo = true
	}
	return []Field{
		power,
		current(KeyCurrent, "rmsCurrent"),
		current(KeyCurrentPhaseB, "rmsCurrentPhB"),
		current(KeyCurrentPhaseC, "rmsCurrentPhC"),
		voltage(KeyVoltage, "rmsVoltage"),
		voltage(KeyVoltagePhaseB, "rmsVoltagePhB"),
		voltage(KeyVoltagePhaseC, "rmsVoltagePhC"),
		{Key: KeyACFrequency, Cluster: em.ID, Attribute: attr(em, "acFrequency"), Decoding: DecodeRaw, Unit: "Hz"},
		factor(KeyVoltageMultiplier, "acVoltageMultiplier"),
		factor(KeyVoltageDivisor, "acVoltageDivisor"),
		factor(KeyCurrentMultiplier, "acCurrentMultiplier"),
		factor(KeyCurrentDivisor, "acCurrentDivisor"),
		factor(KeyPowerMultiplier, "acPowerMultiplier"),
		factor(KeyPowerDivisor, "acPowerDivisor"),
	}
}

func buildDefinition(rev Revision, desc string, status StatusLayout, p proprietaryLayout) Definition {
	onOff := clusters.OnOff
	level := clusters.LevelControl

	fields := []Field{
		{
			Key:       KeyState,
			Cluster:   onOff.ID,
			Attribute: attr(onOff, "onOff"),
			Decoding:  DecodeBool,
			Read:      true,
			Report:    true,
			ReportMax: reportHour,
		},
		{
			Key:       KeyChargeLimit,
			Cluster:   level.ID,
			Attribute: attr(level, "currentLevel"),
			Decoding:  DecodeRaw,
			Unit:      "A",
			Min:       6,
			Max:       32,
			Step:      1,
			Read:      true,
			Report:    true,
		},
		{
			// Firmware answers unsupported attribute when read, so it is only decoded.
			Key:       KeyChargeLimitMax,
			Cluster:   ProprietaryCluster,
			Attribute: vendorAttr(p.chargeLimitMax, "maxCurrentLevel", zcl.TypeUint8),
			Decoding:  DecodeRaw,
			Unit:      "A",
		},
		{
			Key:       KeyAlarms,
			Cluster:   ProprietaryCluster,
			Attribute: vendorAttr(p.alarms, "alarms", zcl.TypeBitmap16),
			Decoding:  DecodeAlarms,
			Read:      true,
			Report:    true,
		},
		{
			Key:       KeyEVStatus,
			Cluster:   ProprietaryCluster,
			Attribute: vendorAttr(p.evStatus, "evStatus", p.evStatusType),
			Decoding:  DecodeStatus,
			Read:      true,
			Report:    true,
		},
		{
			Key:       KeyConnectStatus,
			Cluster:   ProprietaryCluster,
			Attribute: vendorAttr(p.connectStatus, "connectStatus", zcl.TypeBitmap16),
			Decoding:  DecodeRaw,
			Read:      true,
			Report:    true,
		},
		energyField(KeyTotalActiveEnergy, p.totalActiveEnergy, "totalActiveEnergy", p.energyInKWh),
		energyField(KeyLastSessionEnergy, p.lastSessionEnergy, "lastSessionEnergy", p.energyInKWh),
	}
	fields = append(fields, electricalFields(p.powerInKW)...)

	return Definition{
		Revision:         rev,
		Description:      desc,
		Proprietary:      ProprietaryCluster,
		ManufacturerCode: ManufacturerCode,
		Endpoint:         DefaultEndpoint,
		Status:           status,
		StatusCodes:      statusCodes(),
		Alarms:           LegacyAlarms(),
		Fields:           fields,
		ExtraReads: []AttributeRef{
			ref(level, "minLevel"),
			ref(level, "maxLevel"),
		},
		ReportMaxSeconds: reportMinute,
	}
}

// Definitions returns fresh definitions for every known revision, oldest first.
func Definitions() []Definition {
	return []Definition{
		buildDefinition(RevisionV1, "legacy firmware, packed EV status", StatusPacked, proprietaryLayout{
			chargeLimitMax:    0x0000,
			alarms:            0x0002,
			evStatus:          0x0003,
			evStatusType:      zcl.TypeBitmap16,
			connectStatus:     0x0004,
			totalActiveEnergy: 0x0010,
			lastSessionEnergy: 0x0011,
		}),
		buildDefinition(RevisionV2, "status attributes reordered", StatusPacked, proprietaryLayout{
			chargeLimitMax:    0x0000,
			alarms:            0x0003,
			evStatus:          0x0004,
			evStatusType:      zcl.TypeBitmap16,
			connectStatus:     0x0002,
			totalActiveEnergy: 0x0010,
			lastSessionEnergy: 0x0011,
		}),
		buildDefinition(RevisionV3, "attributes relocated, EV status isolated", StatusIsolated, proprietaryLayout{
			chargeLimitMax:    0x0100,
			alarms:            0x0102,
			evStatus:          0x0103,
			evStatusType:      zcl.TypeEnum8,
			connectStatus:     0x0104,
			totalActiveEnergy: 0x0110,
			lastSessionEnergy: 0x0111,
		}),
		buildDefinition(RevisionV4, "energy and power reported in kilo units", StatusIsolated, proprietaryLayout{
			chargeLimitMax:    0x0100,
			alarms:            0x0102,
			evStatus:          0x0103,
			evStatusType:      zcl.TypeEnum8,
			connectStatus:     0x0104,
			totalActiveEnergy: 0x0110,
			lastSessionEnergy: 0x0111,
			energyInKWh:       true,
			powerInKW:         true,
		}),
	}
}
