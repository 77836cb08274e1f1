package clusters

import "amina-zigbee/internal/zcl"

// Standard returns the public clusters the charger implements on its default endpoint.
func Standard() []zcl.ClusterDef {
	return []zcl.ClusterDef{Basic, OnOff, LevelControl, ElectricalMeasurement}
}

// Load registers every standard cluster.
func Load(reg *zcl.Registry) {
	for _, c := range Standard() {
		reg.Register(c)
	}
}
