package coordinator

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"amina-zigbee/internal/schema"
	"amina-zigbee/internal/zcl"
)

// Identity strings reported by the charger's basic cluster.
const (
	AminaManufacturer = "Amina Distribution AS"
	AminaModel        = "amina S"
)

// FirmwareRule binds software builds starting with Prefix to a schema revision.
type FirmwareRule struct {
	Prefix   string          `json:"sw_build_prefix"`
	Revision schema.Revision `json:"revision"`
}

// ManufacturerGroup groups device models under one manufacturer name.
type ManufacturerGroup struct {
	Name   string             `json:"name"`
	Models []DeviceDefinition `json:"models"`
}

// DeviceDefinition maps a device model onto schema revisions. Revision is
// used when no firmware rule matches the reported software build.
type DeviceDefinition struct {
	Manufacturer string          `json:"manufacturer"`
	Model        string          `json:"model"`
	Revision     schema.Revision `json:"revision"`
	Firmware     []FirmwareRule  `json:"firmware,omitempty"`
}

// Resolve picks the revision for a software build. The longest matching
// prefix wins.
func (d *DeviceDefinition) Resolve(swBuild string) schema.Revision {
	best, bestLen := d.Revision, -1
	for _, r := range d.Firmware {
		if strings.HasPrefix(swBuild, r.Prefix) && len(r.Prefix) > bestLen {
			best, bestLen = r.Revision, len(r.Prefix)
		}
	}
	return best
}

// DeviceDB holds device definitions keyed by manufacturer+model.
type DeviceDB struct {
	defs map[string]*DeviceDefinition
}

func deviceKey(manufacturer, model string) string {
	return manufacturer + "\x00" + model
}

// NewDeviceDB creates an empty device database.
func NewDeviceDB() *DeviceDB {
	return &DeviceDB{defs: make(map[string]*DeviceDefinition)}
}

// BuiltinDevices returns a database holding the Amina S definition. Builds
// without a known prefix fall back to the legacy layout.
func BuiltinDevices() *DeviceDB {
	db := NewDeviceDB()
	db.Add(DeviceDefinition{
		Manufacturer: AminaManufacturer,
		Model:        AminaModel,
		Revision:     schema.RevisionV1,
		Firmware: []FirmwareRule{
			{Prefix: "1.", Revision: schema.RevisionV1},
			{Prefix: "2.", Revision: schema.RevisionV2},
			{Prefix: "3.", Revision: schema.RevisionV3},
			{Prefix: "4.", Revision: schema.RevisionV4},
		},
	})
	return db
}

// Add inserts a device definition into the database.
func (db *DeviceDB) Add(def DeviceDefinition) {
	cp := def
	cp.Firmware = append([]FirmwareRule(nil), def.Firmware...)
	db.defs[deviceKey(def.Manufacturer, def.Model)] = &cp
}

// Lookup finds a device definition by manufacturer and model. A definition
// without a manufacturer matches the model from any manufacturer.
func (db *DeviceDB) Lookup(manufacturer, model string) *DeviceDefinition {
	if d := db.defs[deviceKey(manufacturer, model)]; d != nil {
		return d
	}
	return db.defs[deviceKey("", model)]
}

// Len returns the number of device definitions.
func (db *DeviceDB) Len() int {
	return len(db.defs)
}

func (db *DeviceDB) check(schemas *schema.Registry) error {
	for _, d := range db.defs {
		if _, ok := schemas.Get(d.Revision); !ok {
			return fmt.Errorf("device %q: unknown revision %q", d.Model, d.Revision)
		}
		for _, r := range d.Firmware {
			if _, ok := schemas.Get(r.Revision); !ok {
				return fmt.Errorf("device %q: firmware %q: unknown revision %q", d.Model, r.Prefix, r.Revision)
			}
		}
	}
	return nil
}

// deviceFile is the JSON structure for files in the devices directory.
type deviceFile struct {
	Clusters      []zcl.ClusterDef    `json:"clusters,omitempty"`
	Devices       []DeviceDefinition  `json:"devices,omitempty"`
	Manufacturers []ManufacturerGroup `json:"manufacturers,omitempty"`
}

// LoadDeviceDir reads all *.json files from a directory on top of db, registering
// custom clusters into the ZCL registry. Definitions for an existing
// manufacturer+model replace it. Every revision referenced must exist in schemas.
// A missing or empty directory leaves db unchanged.
func LoadDeviceDir(dir string, db *DeviceDB, registry *zcl.Registry, schemas *schema.Registry, logger *slog.Logger) error {
	matches, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return fmt.Errorf("glob devices dir: %w", err)
	}
	if len(matches) == 0 {
		logger.Info("no device definition files found", "dir", dir)
		return nil
	}

	for _, path := range matches {
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		var df deviceFile
		if err := json.Unmarshal(data, &df); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}

		for _, c := range df.Clusters {
			registry.Register(c)
		}
		for _, d := range df.Devices {
			db.Add(d)
		}
		for _, mg := range df.Manufacturers {
			for _, d := range mg.Models {
				d.Manufacturer = mg.Name
				db.Add(d)
			}
		}

		deviceCount := len(df.Devices)
		for _, mg := range df.Manufacturers {
			deviceCount += len(mg.Models)
		}
		logger.Info("loaded device file", "path", filepath.Base(path),
			"clusters", len(df.Clusters), "devices", deviceCount)
	}

	if err := db.check(schemas); err != nil {
		return fmt.Errorf("devices dir %s: %w", dir, err)
	}
	logger.Info("device database loaded", "files", len(matches), "devices", db.Len())
	return nil
}
