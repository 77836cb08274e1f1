package store

import (
	"time"

	"amina-zigbee/internal/codec"
	"amina-zigbee/internal/schema"
)

// Device is a charger known to the bridge, bound to the schema revision it was
// identified as.
type Device struct {
	IEEEAddress   string          `json:"ieee_address"`
	Manufacturer  string          `json:"manufacturer,omitempty"`
	Model         string          `json:"model,omitempty"`
	SoftwareBuild string          `json:"sw_build_id,omitempty"`
	Revision      schema.Revision `json:"revision,omitempty"`
	FriendlyName  string          `json:"friendly_name,omitempty"`
	Configured    bool            `json:"configured"`
	JoinedAt      time.Time       `json:"joined_at"`
	LastSeen      time.Time       `json:"last_seen"`
	State         codec.State     `json:"state"`
}

// Name returns the friendly name, falling back to the IEEE address.
func (d *Device) Name() string {
	if d.FriendlyName != "" {
		return d.FriendlyName
	}
	return d.IEEEAddress
}
