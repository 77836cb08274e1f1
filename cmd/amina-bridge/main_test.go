package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"amina-zigbee/internal/schema"
	"amina-zigbee/internal/zcl"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(writeConfig(t, "host_stack:\n  url: ws://127.0.0.1:9000/ws\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HostStack.RequestTimeout != 10*time.Second {
		t.Errorf("request_timeout = %v", cfg.HostStack.RequestTimeout)
	}
	if cfg.Web.Listen != "127.0.0.1:8080" || cfg.Store.Path != "amina-bridge.db" {
		t.Errorf("web.listen = %q, store.path = %q", cfg.Web.Listen, cfg.Store.Path)
	}
	if cfg.MQTT.TopicPrefix != "amina" || cfg.MQTT.DiscoveryPrefix != "homeassistant" {
		t.Errorf("mqtt prefixes = %q, %q", cfg.MQTT.TopicPrefix, cfg.MQTT.DiscoveryPrefix)
	}
	if cfg.AutoConfigure != nil {
		t.Error("auto_configure should stay unset")
	}
	if err := cfg.validate(); err != nil {
		t.Errorf("validate: %v", err)
	}
}

func TestLoadConfigOverrides(t *testing.T) {
	cfg, err := loadConfig(writeConfig(t, `
host_stack:
  url: wss://stack.local/ws
  request_timeout: 3s
mqtt:
  enabled: true
  broker: tcp://broker:1883
  topic_prefix: chargers
log:
  level: debug
  format: json
auto_configure: false
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.HostStack.RequestTimeout != 3*time.Second {
		t.Errorf("request_timeout = %v", cfg.HostStack.RequestTimeout)
	}
	if cfg.MQTT.TopicPrefix != "chargers" || !cfg.MQTT.Enabled {
		t.Errorf("mqtt = %+v", cfg.MQTT)
	}
	if cfg.AutoConfigure == nil || *cfg.AutoConfigure {
		t.Error("auto_configure = false not honoured")
	}
	if err := cfg.validate(); err != nil {
		t.Errorf("validate: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"missing url", "web:\n  listen: :8080\n", "host_stack.url"},
		{"http url", "host_stack:\n  url: http://stack/ws\n", "ws://"},
		{"mqtt without broker", "host_stack:\n  url: ws://stack/ws\nmqtt:\n  enabled: true\n", "mqtt.broker"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := loadConfig(writeConfig(t, tt.body))
			if err != nil {
				t.Fatal(err)
			}
			err = cfg.validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("validate = %v, want error mentioning %q", err, tt.want)
			}
		})
	}
}

func TestLoadConfigErrors(t *testing.T) {
	if _, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file: expected error")
	}
	if _, err := loadConfig(writeConfig(t, "host_stack: [")); err == nil {
		t.Error("bad yaml: expected error")
	}
}

func TestRegisterVendorCluster(t *testing.T) {
	logger := newLogger(&Config{})
	schemas, err := schema.Builtin(logger)
	if err != nil {
		t.Fatal(err)
	}
	reg := zcl.NewRegistry(logger)
	registerVendorCluster(reg, schemas)

	def, ok := reg.Get(schema.ProprietaryCluster)
	if !ok {
		t.Fatal("vendor cluster not registered")
	}
	seen := make(map[uint16]bool)
	for _, a := range def.Attributes {
		if seen[a.ID] {
			t.Errorf("attribute 0x%04X registered twice", a.ID)
		}
		seen[a.ID] = true
	}
	if _, ok := def.FindAttributeByName("evStatus"); !ok {
		t.Error("evStatus missing from vendor cluster")
	}
}
