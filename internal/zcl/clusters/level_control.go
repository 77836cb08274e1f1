package clusters

import "amina-zigbee/internal/zcl"

// LevelControl carries the charge limit: the charger maps currentLevel directly to amperes.
var LevelControl = zcl.ClusterDef{
	ID:   0x0008,
	Name: "genLevelCtrl",
	Attributes: []zcl.AttributeDef{
		{ID: 0x0000, Name: "currentLevel", Type: zcl.TypeUint8, Access: zcl.AccessRead | zcl.AccessReport},
		{ID: 0x0002, Name: "minLevel", Type: zcl.TypeUint8, Access: zcl.AccessRead},
		{ID: 0x0003, Name: "maxLevel", Type: zcl.TypeUint8, Access: zcl.AccessRead},
	},
	Commands: []zcl.CommandDef{
		{ID: 0x00, Name: "moveToLevel"},
		{ID: 0x04, Name: "moveToLevelWithOnOff"},
	},
}
