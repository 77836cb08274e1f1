//go:build !no_mqtt

package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"amina-zigbee/internal/coordinator"
	"amina-zigbee/internal/expose"
	"amina-zigbee/internal/metrics"
	"amina-zigbee/internal/store"
)

// Config holds MQTT bridge configuration.
type Config struct {
	Broker          string
	Username        string
	Password        string
	TopicPrefix     string
	DiscoveryPrefix string // Home Assistant discovery root, "homeassistant" when empty
}

// Bridge connects the charger coordinator to MQTT with HA autodiscovery.
type Bridge struct {
	client    pahomqtt.Client
	coord     *coordinator.Coordinator
	prefix    string
	discovery string
	timeout   time.Duration
	logger    *slog.Logger
	unsub     func()
}

// NewBridge creates and connects an MQTT bridge.
func NewBridge(coord *coordinator.Coordinator, cfg Config, logger *slog.Logger) (*Bridge, error) {
	b := newBridge(coord, nil, cfg, logger)

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID("amina-bridge-" + uuid.NewString()[:8]).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(b.prefix+"/bridge/state", "offline", 1, true).
		SetOnConnectHandler(func(_ pahomqtt.Client) {
			b.logger.Info("MQTT connected")
			b.onConnect()
		}).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			b.logger.Warn("MQTT connection lost", "err", err)
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := pahomqtt.NewClient(opts)
	b.client = client
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return b, nil
}

func newBridge(coord *coordinator.Coordinator, client pahomqtt.Client, cfg Config, logger *slog.Logger) *Bridge {
	prefix := cfg.TopicPrefix
	if prefix == "" {
		prefix = "amina"
	}
	discovery := cfg.DiscoveryPrefix
	if discovery == "" {
		discovery = "homeassistant"
	}
	return &Bridge{
		client:    client,
		coord:     coord,
		prefix:    prefix,
		discovery: discovery,
		timeout:   10 * time.Second,
		logger:    logger.With("component", "mqtt"),
	}
}

// Start subscribes to coordinator events and begins MQTT publishing.
func (b *Bridge) Start() {
	b.unsub = b.coord.Events().OnAll(b.handleEvent)
	b.logger.Info("MQTT bridge started", "prefix", b.prefix)
}

// Stop publishes offline state, unsubscribes, and disconnects.
func (b *Bridge) Stop() {
	if b.unsub != nil {
		b.unsub()
	}
	b.publishBridgeState("offline")
	b.client.Disconnect(1000)
	b.logger.Info("MQTT bridge stopped")
}

func (b *Bridge) onConnect() {
	b.publishBridgeState("online")
	for _, dev := range b.coord.Devices() {
		if dev.Revision == "" {
			continue
		}
		b.publishDeviceDiscovery(dev)
		if !dev.State.IsEmpty() {
			b.publishState(dev)
		}
	}
	b.subscribeCommands()
}

func (b *Bridge) handleEvent(event coordinator.Event) {
	switch event.Type {
	case coordinator.EventStateUpdate:
		u, ok := event.Data.(coordinator.StateUpdate)
		if !ok {
			return
		}
		dev, err := b.coord.Device(u.IEEE)
		if err != nil {
			return
		}
		dev.State = u.State
		b.publishState(dev)
	case coordinator.EventDeviceIdentified, coordinator.EventDeviceConfigured:
		de, ok := event.Data.(coordinator.DeviceEvent)
		if !ok || de.Error != "" {
			return
		}
		if dev, err := b.coord.Device(de.IEEE); err == nil {
			b.publishDeviceDiscovery(dev)
		}
	case coordinator.EventDeviceRemoved:
		de, ok := event.Data.(coordinator.DeviceEvent)
		if ok {
			b.handleDeviceRemoved(de)
		}
	case coordinator.EventHostStack:
		if state, ok := event.Data.(string); ok {
			b.publish(b.prefix+"/bridge/host_stack", []byte(state), true, "bridge")
		}
	}
}

func (b *Bridge) handleDeviceRemoved(de coordinator.DeviceEvent) {
	dev := &store.Device{IEEEAddress: de.IEEE, Revision: de.Revision}
	if de.Name != de.IEEE {
		dev.FriendlyName = de.Name
	}
	if s, ok := b.coord.Schemas().Get(de.Revision); ok {
		for _, msg := range buildRemoveDiscovery(dev, expose.For(s), b.discovery) {
			b.publish(msg.Topic, msg.Payload, true, "discovery")
		}
	}
	// Clear the retained state.
	b.publish(b.prefix+"/"+deviceTopicName(dev), nil, true, "state")
}

func (b *Bridge) publishBridgeState(state string) {
	b.publish(b.prefix+"/bridge/state", []byte(state), true, "bridge")
}

func (b *Bridge) publishState(dev *store.Device) {
	props := dev.State.Properties()
	if !dev.LastSeen.IsZero() {
		props["last_seen"] = dev.LastSeen.Format(time.RFC3339)
	}
	b.publish(b.prefix+"/"+deviceTopicName(dev), mustJSON(props), true, "state")
}

func (b *Bridge) publishDeviceDiscovery(dev *store.Device) {
	s, ok := b.coord.Schemas().Get(dev.Revision)
	if !ok {
		return
	}
	for _, msg := range buildDiscovery(dev, expose.For(s), b.prefix, b.discovery) {
		b.publish(msg.Topic, msg.Payload, true, "discovery")
	}
	b.logger.Info("published HA discovery", "ieee", dev.IEEEAddress, "name", deviceDisplayName(dev))
}

func (b *Bridge) subscribeCommands() {
	b.client.Subscribe(b.prefix+"/+/set", 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		b.handleCommand(msg.Topic(), msg.Payload(), false)
	})
	b.client.Subscribe(b.prefix+"/+/get", 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		b.handleCommand(msg.Topic(), msg.Payload(), true)
	})
}

// resolve maps the device segment of a command topic to an IEEE address.
func (b *Bridge) resolve(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, b.prefix+"/")
	if !ok {
		return "", false
	}
	name, _, ok := strings.Cut(rest, "/")
	if !ok || name == "bridge" {
		return "", false
	}
	for _, dev := range b.coord.Devices() {
		if deviceTopicName(dev) == name || dev.IEEEAddress == name {
			return dev.IEEEAddress, true
		}
	}
	return "", false
}

func (b *Bridge) handleCommand(topic string, payload []byte, read bool) {
	ieee, ok := b.resolve(topic)
	if !ok {
		b.logger.Warn("command for unknown device", "topic", topic)
		return
	}

	var cmd map[string]any
	if err := json.Unmarshal(payload, &cmd); err != nil {
		b.logger.Warn("invalid command JSON", "ieee", ieee, "err", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	if !read {
		if err := b.coord.Apply(ctx, ieee, cmd); err != nil {
			b.logger.Warn("set command failed", "ieee", ieee, "err", err)
		}
		return
	}

	keys := make([]string, 0, len(cmd))
	for k := range cmd {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if _, err := b.coord.Get(ctx, ieee, key); err != nil {
			b.logger.Warn("get command failed", "ieee", ieee, "key", key, "err", err)
		}
	}
}

func (b *Bridge) publish(topic string, payload []byte, retained bool, kind string) {
	token := b.client.Publish(topic, 1, retained, payload)
	metrics.MQTTPublished.WithLabelValues(kind).Inc()
	go func() {
		if !token.WaitTimeout(5 * time.Second) {
			b.logger.Warn("MQTT publish timeout", "topic", topic)
		} else if err := token.Error(); err != nil {
			b.logger.Warn("MQTT publish error", "topic", topic, "err", err)
		}
	}()
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
