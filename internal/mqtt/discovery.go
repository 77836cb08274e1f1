//go:build !no_mqtt

package mqtt

import (
	"fmt"
	"strings"

	"amina-zigbee/internal/expose"
	"amina-zigbee/internal/store"
)

// discoveryMsg is a Home Assistant MQTT discovery payload.
type discoveryMsg struct {
	Topic   string // e.g. "homeassistant/sensor/amina_0x0C43.../power/config"
	Payload []byte // JSON, empty means delete
}

// haDevice is the "device" block in HA discovery.
type haDevice struct {
	Identifiers  []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Model        string   `json:"model,omitempty"`
	SWVersion    string   `json:"sw_version,omitempty"`
	Name         string   `json:"name"`
}

// haDiscovery is a generic HA discovery payload.
type haDiscovery struct {
	Name              string   `json:"name"`
	UniqueID          string   `json:"unique_id"`
	StateTopic        string   `json:"state_topic"`
	CommandTopic      string   `json:"command_topic,omitempty"`
	CommandTemplate   string   `json:"command_template,omitempty"`
	AvailabilityTopic string   `json:"availability_topic"`
	ValueTemplate     string   `json:"value_template,omitempty"`
	UnitOfMeasurement string   `json:"unit_of_measurement,omitempty"`
	DeviceClass       string   `json:"device_class,omitempty"`
	StateClass        string   `json:"state_class,omitempty"`
	EntityCategory    string   `json:"entity_category,omitempty"`
	PayloadOn         string   `json:"payload_on,omitempty"`
	PayloadOff        string   `json:"payload_off,omitempty"`
	Min               *float64 `json:"min,omitempty"`
	Max               *float64 `json:"max,omitempty"`
	Step              *float64 `json:"step,omitempty"`
	Mode              string   `json:"mode,omitempty"`
	Device            haDevice `json:"device"`
}

// deviceDisplayName returns a display name for the device.
func deviceDisplayName(dev *store.Device) string {
	if dev.FriendlyName != "" {
		return dev.FriendlyName
	}
	if dev.Model != "" {
		return dev.Model + " " + dev.IEEEAddress
	}
	return dev.IEEEAddress
}

// deviceIdentifier returns the unique identifier for HA device registry.
func deviceIdentifier(dev *store.Device) string {
	return "amina_" + dev.IEEEAddress
}

// deviceTopicName returns the topic name for a device (friendly name or IEEE).
func deviceTopicName(dev *store.Device) string {
	if dev.FriendlyName != "" {
		// Sanitize: lowercase and keep only safe chars for MQTT topics.
		name := strings.ToLower(dev.FriendlyName)
		name = strings.Map(func(r rune) rune {
			if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
				return r
			}
			return '_'
		}, name)
		return name
	}
	return dev.IEEEAddress
}

// component returns the HA component an entity maps to.
func component(e expose.Entity) string {
	switch e.Type {
	case expose.TypeSwitch:
		return "switch"
	case expose.TypeBinary:
		return "binary_sensor"
	case expose.TypeNumeric:
		if e.Settable() {
			return "number"
		}
	}
	return "sensor"
}

// sensorClass derives HA device and state classes from a unit.
func sensorClass(unit string) (deviceClass, stateClass string) {
	switch unit {
	case "W", "kW":
		return "power", "measurement"
	case "A":
		return "current", "measurement"
	case "V":
		return "voltage", "measurement"
	case "Hz":
		return "frequency", "measurement"
	case "Wh", "kWh":
		return "energy", "total_increasing"
	}
	return "", ""
}

// suffix turns a property into a display suffix: "ev_status" -> "Ev status".
func suffix(property string) string {
	s := strings.ReplaceAll(property, "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// buildDiscovery generates HA discovery messages for a device from its exposed entities.
func buildDiscovery(dev *store.Device, entities []expose.Entity, prefix, discovery string) []discoveryMsg {
	if dev.Revision == "" {
		return nil
	}

	avail := prefix + "/bridge/state"
	stateTopic := prefix + "/" + deviceTopicName(dev)
	cmdTopic := stateTopic + "/set"
	nodeID := deviceIdentifier(dev)
	displayName := deviceDisplayName(dev)

	haDev := haDevice{
		Identifiers:  []string{nodeID},
		Manufacturer: dev.Manufacturer,
		Model:        dev.Model,
		SWVersion:    dev.SoftwareBuild,
		Name:         displayName,
	}

	msgs := make([]discoveryMsg, 0, len(entities))
	for _, e := range entities {
		comp := component(e)
		payload := haDiscovery{
			Name:              displayName + " " + suffix(e.Property),
			UniqueID:          nodeID + "_" + e.Property,
			StateTopic:        stateTopic,
			AvailabilityTopic: avail,
			ValueTemplate:     fmt.Sprintf("{{ value_json.%s }}", e.Property),
			EntityCategory:    e.Category,
			Device:            haDev,
		}
		switch comp {
		case "switch":
			payload.CommandTopic = cmdTopic
			payload.CommandTemplate = fmt.Sprintf(`{"%s": "{{ value }}"}`, e.Property)
			payload.PayloadOn, payload.PayloadOff = "ON", "OFF"
		case "binary_sensor":
			payload.ValueTemplate = fmt.Sprintf("{{ 'ON' if value_json.%s else 'OFF' }}", e.Property)
			payload.PayloadOn, payload.PayloadOff = "ON", "OFF"
			payload.DeviceClass = "problem"
		case "number":
			payload.CommandTopic = cmdTopic
			payload.CommandTemplate = fmt.Sprintf(`{"%s": {{ value }}}`, e.Property)
			payload.UnitOfMeasurement = e.Unit
			payload.Min, payload.Max, payload.Step = e.ValueMin, e.ValueMax, e.ValueStep
			payload.Mode = "box"
		default:
			payload.UnitOfMeasurement = e.Unit
			payload.DeviceClass, payload.StateClass = sensorClass(e.Unit)
			if e.Type == expose.TypeList {
				payload.ValueTemplate = fmt.Sprintf("{{ value_json.%s | join(', ') }}", e.Property)
			}
		}
		msgs = append(msgs, discoveryMsg{
			Topic:   fmt.Sprintf("%s/%s/%s/%s/config", discovery, comp, nodeID, e.Property),
			Payload: mustJSON(payload),
		})
	}
	return msgs
}

// buildRemoveDiscovery generates empty retained messages to remove a device from HA.
func buildRemoveDiscovery(dev *store.Device, entities []expose.Entity, discovery string) []discoveryMsg {
	nodeID := deviceIdentifier(dev)
	msgs := make([]discoveryMsg, 0, len(entities))
	for _, e := range entities {
		msgs = append(msgs, discoveryMsg{
			Topic:   fmt.Sprintf("%s/%s/%s/%s/config", discovery, component(e), nodeID, e.Property),
			Payload: nil, // empty retained = delete
		})
	}
	return msgs
}
