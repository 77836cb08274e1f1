package clusters

import "amina-zigbee/internal/zcl"

var OnOff = zcl.ClusterDef{
	ID:   0x0006,
	Name: "genOnOff",
	Attributes: []zcl.AttributeDef{
		{ID: 0x0000, Name: "onOff", Type: zcl.TypeBool, Access: zcl.AccessRead | zcl.AccessReport},
	},
	Commands: []zcl.CommandDef{
		{ID: 0x00, Name: "off"},
		{ID: 0x01, Name: "on"},
		{ID: 0x02, Name: "toggle"},
	},
}
