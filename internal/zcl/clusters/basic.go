package clusters

import "amina-zigbee/internal/zcl"

// Basic is read to identify the charger when the host stack does not announce it.
var Basic = zcl.ClusterDef{
	ID:   0x0000,
	Name: "genBasic",
	Attributes: []zcl.AttributeDef{
		{ID: 0x0000, Name: "zclVersion", Type: zcl.TypeUint8, Access: zcl.AccessRead},
		{ID: 0x0001, Name: "appVersion", Type: zcl.TypeUint8, Access: zcl.AccessRead},
		{ID: 0x0003, Name: "hwVersion", Type: zcl.TypeUint8, Access: zcl.AccessRead},
		{ID: 0x0004, Name: "manufacturerName", Type: zcl.TypeCharStr, Access: zcl.AccessRead},
		{ID: 0x0005, Name: "modelId", Type: zcl.TypeCharStr, Access: zcl.AccessRead},
		{ID: 0x0006, Name: "dateCode", Type: zcl.TypeCharStr, Access: zcl.AccessRead},
		{ID: 0x4000, Name: "swBuildId", Type: zcl.TypeCharStr, Access: zcl.AccessRead},
	},
}

// Basic attribute IDs used for identification.
const (
	BasicManufacturerName uint16 = 0x0004
	BasicModelID          uint16 = 0x0005
	BasicSWBuildID        uint16 = 0x4000
)
