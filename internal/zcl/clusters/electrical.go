package clusters

import "amina-zigbee/internal/zcl"

// ElectricalMeasurement carries the charger's per-phase diagnostics.
var ElectricalMeasurement = zcl.ClusterDef{
	ID:   0x0B04,
	Name: "haElectricalMeasurement",
	Attributes: []zcl.AttributeDef{
		{ID: 0x0300, Name: "acFrequency", Type: zcl.TypeUint16, Access: zcl.AccessRead | zcl.AccessReport},
		{ID: 0x0505, Name: "rmsVoltage", Type: zcl.TypeUint16, Access: zcl.AccessRead | zcl.AccessReport},
		{ID: 0x0508, Name: "rmsCurrent", Type: zcl.TypeUint16, Access: zcl.AccessRead | zcl.AccessReport},
		{ID: 0x050B, Name: "activePower", Type: zcl.TypeInt16, Access: zcl.AccessRead | zcl.AccessReport},
		{ID: 0x0905, Name: "rmsVoltagePhB", Type: zcl.TypeUint16, Access: zcl.AccessRead | zcl.AccessReport},
		{ID: 0x0908, Name: "rmsCurrentPhB", Type: zcl.TypeUint16, Access: zcl.AccessRead | zcl.AccessReport},
		{ID: 0x0A05, Name: "rmsVoltagePhC", Type: zcl.TypeUint16, Access: zcl.AccessRead | zcl.AccessReport},
		{ID: 0x0A08, Name: "rmsCurrentPhC", Type: zcl.TypeUint16, Access: zcl.AccessRead | zcl.AccessReport},
		{ID: 0x0600, Name: "acVoltageMultiplier", Type: zcl.TypeUint16, Access: zcl.AccessRead},
		{ID: 0x0601, Name: "acVoltageDivisor", Type: zcl.TypeUint16, Access: zcl.AccessRead},
		{ID: 0x0602, Name: "acCurrentMultiplier", Type: zcl.TypeUint16, Access: zcl.AccessRead},
		{ID: 0x0603, Name: "acCurrentDivisor", Type: zcl.TypeUint16, Access: zcl.AccessRead},
		{ID: 0x0604, Name: "acPowerMultiplier", Type: zcl.TypeUint16, Access: zcl.AccessRead},
		{ID: 0x0605, Name: "acPowerDivisor", Type: zcl.TypeUint16, Access: zcl.AccessRead},
	},
}
