package coordinator

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"amina-zigbee/internal/codec"
	"amina-zigbee/internal/metrics"
	"amina-zigbee/internal/schema"
	"amina-zigbee/internal/store"
	"amina-zigbee/internal/zcl"
	"amina-zigbee/internal/zcl/clusters"
)

var (
	// ErrUnknownDevice is returned for an IEEE address or name the bridge has never seen.
	ErrUnknownDevice = errors.New("coordinator: unknown device")
	// ErrUnidentified is returned for a known device whose revision could not be resolved.
	ErrUnidentified = errors.New("coordinator: device revision not identified")
	// ErrNameInUse is returned when a friendly name already belongs to another device.
	ErrNameInUse = errors.New("coordinator: friendly name in use")
)

// Config holds coordinator configuration.
type Config struct {
	// AutoConfigure runs the configure sequence for every identified
	// device that has not been configured yet.
	AutoConfigure    bool
	ConfigureTimeout time.Duration
}

// Transport delivers operations to one device through the host network stack.
type Transport interface {
	Send(ctx context.Context, ieee string, op codec.Operation) error
}

// target addresses a Transport to a single device.
type target struct {
	transport Transport
	ieee      string
}

func (t target) Dispatch(ctx context.Context, op codec.Operation) error {
	return t.transport.Send(ctx, t.ieee, op)
}

// Announce identifies a device: an explicit announce from the host stack or
// the identity attributes of its basic cluster.
type Announce struct {
	IEEE          string
	Manufacturer  string
	Model         string
	SoftwareBuild string
}

// ParseIEEE parses "DD:DD:DD:DD:DD:DD:DD:DD", "0xDDDDDDDDDDDDDDDD" or
// "DDDDDDDDDDDDDDDD" into [8]byte.
func ParseIEEE(s string) ([8]byte, error) {
	var result [8]byte
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	s = strings.ReplaceAll(s, ":", "")
	b, err := hex.DecodeString(s)
	if err != nil {
		return result, fmt.Errorf("parse ieee address: %w", err)
	}
	if len(b) != 8 {
		return result, fmt.Errorf("ieee address must be 8 bytes, got %d", len(b))
	}
	copy(result[:], b)
	return result, nil
}

// NormalizeIEEE returns the canonical "0x%016X" form of an IEEE address.
func NormalizeIEEE(s string) (string, error) {
	b, err := ParseIEEE(s)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("0x%X", b[:]), nil
}

type entry struct {
	dev         *store.Device
	codec       *codec.Codec
	configuring bool
}

// Coordinator binds chargers to schema revisions, accumulates their decoded
// state and routes set/get requests to the host stack.
type Coordinator struct {
	schemas   *schema.Registry
	deviceDB  *DeviceDB
	store     store.Store
	events    *EventBus
	transport Transport
	codecs    map[schema.Revision]*codec.Codec
	config    Config
	logger    *slog.Logger

	mu      sync.Mutex
	devices map[string]*entry

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a coordinator and restores known devices from the store.
func New(schemas *schema.Registry, deviceDB *DeviceDB, st store.Store, events *EventBus, transport Transport, cfg Config, logger *slog.Logger) (*Coordinator, error) {
	if cfg.ConfigureTimeout <= 0 {
		cfg.ConfigureTimeout = 2 * time.Minute
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		schemas:   schemas,
		deviceDB:  deviceDB,
		store:     st,
		events:    events,
		transport: transport,
		codecs:    make(map[schema.Revision]*codec.Codec),
		config:    cfg,
		logger:    logger,
		devices:   make(map[string]*entry),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, rev := range schemas.Revisions() {
		s, _ := schemas.Get(rev)
		c.codecs[rev] = codec.New(s, logger)
	}

	devs, err := st.ListDevices()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("coordinator: load devices: %w", err)
	}
	for _, dev := range devs {
		e := &entry{dev: dev, codec: c.codecs[dev.Revision]}
		if dev.Revision != "" && e.codec == nil {
			logger.Warn("stored device has unknown revision", "ieee", dev.IEEEAddress, "revision", dev.Revision)
		}
		c.devices[dev.IEEEAddress] = e
	}
	c.updateGauges()
	logger.Info("devices restored", "count", len(devs))
	return c, nil
}

// Stop cancels in-progress configure runs and waits for them.
func (c *Coordinator) Stop() {
	c.cancel()
	c.wg.Wait()
}

// Events returns the event bus.
func (c *Coordinator) Events() *EventBus {
	return c.events
}

// Schemas returns the schema registry.
func (c *Coordinator) Schemas() *schema.Registry {
	return c.schemas
}

// HandleAnnounce records a device identity and binds it to a revision. The
// device is kept even when no revision matches, in which case ErrUnidentified
// is returned.
func (c *Coordinator) HandleAnnounce(a Announce) (*store.Device, error) {
	ieee, err := NormalizeIEEE(a.IEEE)
	if err != nil {
		return nil, fmt.Errorf("coordinator: announce: %w", err)
	}
	now := time.Now()

	c.mu.Lock()
	e := c.devices[ieee]
	if e == nil {
		e = &entry{dev: &store.Device{IEEEAddress: ieee, JoinedAt: now}}
		c.devices[ieee] = e
	}
	dev := e.dev
	if a.Manufacturer != "" {
		dev.Manufacturer = a.Manufacturer
	}
	if a.Model != "" {
		dev.Model = a.Model
	}
	if a.SoftwareBuild != "" {
		dev.SoftwareBuild = a.SoftwareBuild
	}
	dev.LastSeen = now

	rev, ok := c.identify(dev)
	changed := dev.Revision != rev
	if changed {
		dev.Revision = rev
		dev.Configured = false
		e.codec = c.codecs[rev]
	}
	snapshot := cloneDevice(dev)
	c.save(snapshot)
	c.mu.Unlock()

	c.events.Emit(Event{Type: EventDeviceAnnounce, Data: deviceEvent(snapshot)})
	if !ok {
		c.logger.Warn("device not identified", "ieee", ieee,
			"manufacturer", snapshot.Manufacturer, "model", snapshot.Model, "sw_build", snapshot.SoftwareBuild)
		c.updateGauges()
		return snapshot, fmt.Errorf("%w: %s model %q build %q", ErrUnidentified, ieee, snapshot.Model, snapshot.SoftwareBuild)
	}
	if changed {
		c.logger.Info("device identified", "ieee", ieee, "model", snapshot.Model, "revision", rev)
		c.events.Emit(Event{Type: EventDeviceIdentified, Data: deviceEvent(snapshot)})
		c.updateGauges()
	}
	if c.config.AutoConfigure && !snapshot.Configured {
		c.configureAsync(ieee)
	}
	return snapshot, nil
}

func (c *Coordinator) identify(dev *store.Device) (schema.Revision, bool) {
	def := c.deviceDB.Lookup(dev.Manufacturer, dev.Model)
	if def == nil {
		return "", false
	}
	rev := def.Resolve(dev.SoftwareBuild)
	_, ok := c.codecs[rev]
	if !ok {
		return "", false
	}
	return rev, true
}

// HandleMessage decodes an inbound attribute message and merges the result
// into the device's accumulated state, which is returned. Basic cluster
// messages update the device identity instead.
func (c *Coordinator) HandleMessage(ieee string, msg codec.Message) (codec.State, error) {
	ieee, err := NormalizeIEEE(ieee)
	if err != nil {
		return codec.State{}, fmt.Errorf("coordinator: message: %w", err)
	}
	if msg.Cluster == clusters.Basic.ID {
		return c.handleBasic(ieee, msg)
	}

	c.mu.Lock()
	e := c.devices[ieee]
	if e == nil {
		c.mu.Unlock()
		return codec.State{}, fmt.Errorf("%w: %s", ErrUnknownDevice, ieee)
	}
	if e.codec == nil {
		c.mu.Unlock()
		return codec.State{}, fmt.Errorf("%w: %s", ErrUnidentified, ieee)
	}
	patch, _ := e.codec.DecodeCalibrated(msg, e.dev.State.Calibration)
	e.dev.LastSeen = time.Now()
	if patch.IsEmpty() {
		merged := e.dev.State.Clone()
		c.mu.Unlock()
		return merged, nil
	}
	e.dev.State.Merge(patch)
	snapshot := cloneDevice(e.dev)
	c.save(snapshot)
	c.mu.Unlock()

	c.events.Emit(Event{Type: EventStateUpdate, Data: StateUpdate{
		IEEE:     snapshot.IEEEAddress,
		Name:     snapshot.Name(),
		Revision: snapshot.Revision,
		Patch:    patch,
		State:    snapshot.State.Clone(),
	}})
	return snapshot.State, nil
}

func (c *Coordinator) handleBasic(ieee string, msg codec.Message) (codec.State, error) {
	a := Announce{IEEE: ieee}
	for _, av := range msg.Attributes {
		id := av.ID
		if av.Name != "" {
			attr, ok := clusters.Basic.FindAttributeByName(av.Name)
			if !ok {
				continue
			}
			id = attr.ID
		}
		s, ok := av.Value.(string)
		if !ok {
			continue
		}
		switch id {
		case clusters.BasicManufacturerName:
			a.Manufacturer = s
		case clusters.BasicModelID:
			a.Model = s
		case clusters.BasicSWBuildID:
			a.SoftwareBuild = s
		}
	}
	if a.Manufacturer == "" && a.Model == "" && a.SoftwareBuild == "" {
		return c.State(ieee)
	}
	dev, err := c.HandleAnnounce(a)
	if err != nil {
		return codec.State{}, err
	}
	return dev.State, nil
}

// State returns the accumulated state of a device.
func (c *Coordinator) State(ref string) (codec.State, error) {
	dev, err := c.Device(ref)
	if err != nil {
		return codec.State{}, err
	}
	return dev.State, nil
}

// Set encodes and dispatches a set request. On success the requested value is
// merged into the accumulated state ahead of the device's own report.
func (c *Coordinator) Set(ctx context.Context, ref, key string, value any) (codec.Operation, error) {
	ieee, cd, err := c.codecFor(ref)
	if err != nil {
		return codec.Operation{}, err
	}
	op, err := cd.Set(ctx, target{c.transport, ieee}, key, value)
	if err != nil {
		return op, err
	}
	c.applyOptimistic(ieee, op)
	return op, nil
}

// Apply sets several keys in name order. Every key is attempted; failures
// are joined.
func (c *Coordinator) Apply(ctx context.Context, ref string, values map[string]any) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var errs []error
	for _, k := range keys {
		if _, err := c.Set(ctx, ref, k, values[k]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Get encodes and dispatches a read request. The value arrives later as a
// read response.
func (c *Coordinator) Get(ctx context.Context, ref, key string) (codec.Operation, error) {
	ieee, cd, err := c.codecFor(ref)
	if err != nil {
		return codec.Operation{}, err
	}
	return cd.Get(ctx, target{c.transport, ieee}, key)
}

func (c *Coordinator) applyOptimistic(ieee string, op codec.Operation) {
	if op.Kind != codec.OpCommand || op.Command == nil {
		return
	}
	c.mu.Lock()
	e := c.devices[ieee]
	if e == nil {
		c.mu.Unlock()
		return
	}
	var patch codec.State
	switch op.Cluster {
	case clusters.LevelControl.ID:
		if level, ok := zcl.ToInt64(op.Command.Params["level"]); ok {
			patch.ChargeLimit = &level
		}
	case clusters.OnOff.ID:
		var on bool
		switch op.Command.Name {
		case "on":
			on = true
		case "off":
		case "toggle":
			if e.dev.State.Switch == nil {
				c.mu.Unlock()
				return
			}
			on = !*e.dev.State.Switch
		}
		patch.Switch = &on
	}
	if patch.IsEmpty() {
		c.mu.Unlock()
		return
	}
	e.dev.State.Merge(patch)
	snapshot := cloneDevice(e.dev)
	c.save(snapshot)
	c.mu.Unlock()

	c.events.Emit(Event{Type: EventStateUpdate, Data: StateUpdate{
		IEEE:     snapshot.IEEEAddress,
		Name:     snapshot.Name(),
		Revision: snapshot.Revision,
		Patch:    patch,
		State:    snapshot.State.Clone(),
	}})
}

// Configure runs the bind, read and reporting sequence of the device's
// revision. The first failing operation aborts the run.
func (c *Coordinator) Configure(ctx context.Context, ref string) error {
	ieee, cd, err := c.codecFor(ref)
	if err != nil {
		return err
	}
	logger := c.logger.With("ieee", ieee, "revision", cd.Schema().Revision())
	ops := cd.ConfigureOperations()
	logger.Info("configuring device", "operations", len(ops))

	dev := target{c.transport, ieee}
	for _, op := range ops {
		if err := cd.Dispatch(ctx, dev, op); err != nil {
			c.events.Emit(Event{Type: EventDeviceConfigured, Data: DeviceEvent{
				IEEE: ieee, Revision: cd.Schema().Revision(), Error: err.Error(),
			}})
			return fmt.Errorf("coordinator: configure %s: %s: %w", ieee, op, err)
		}
	}

	c.mu.Lock()
	var snapshot *store.Device
	if e := c.devices[ieee]; e != nil {
		e.dev.Configured = true
		snapshot = cloneDevice(e.dev)
		c.save(snapshot)
	}
	c.mu.Unlock()
	if snapshot == nil {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, ieee)
	}

	logger.Info("device configured")
	c.events.Emit(Event{Type: EventDeviceConfigured, Data: deviceEvent(snapshot)})
	return nil
}

func (c *Coordinator) configureAsync(ieee string) {
	c.mu.Lock()
	e := c.devices[ieee]
	if e == nil || e.configuring {
		c.mu.Unlock()
		return
	}
	e.configuring = true
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer func() {
			c.mu.Lock()
			if e := c.devices[ieee]; e != nil {
				e.configuring = false
			}
			c.mu.Unlock()
		}()
		ctx, cancel := context.WithTimeout(c.ctx, c.config.ConfigureTimeout)
		defer cancel()
		if err := c.Configure(ctx, ieee); err != nil {
			c.logger.Warn("configure failed", "ieee", ieee, "err", err)
		}
	}()
}

// Device returns a copy of a device by IEEE address or friendly name.
func (c *Coordinator) Device(ref string) (*store.Device, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, err := c.lookup(ref)
	if err != nil {
		return nil, err
	}
	return cloneDevice(e.dev), nil
}

// Devices returns copies of every known device ordered by IEEE address.
func (c *Coordinator) Devices() []*store.Device {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*store.Device, 0, len(c.devices))
	for _, e := range c.devices {
		out = append(out, cloneDevice(e.dev))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].IEEEAddress < out[j].IEEEAddress })
	return out
}

// Schema returns the schema a device is bound to.
func (c *Coordinator) Schema(ref string) (*schema.Schema, error) {
	_, cd, err := c.codecFor(ref)
	if err != nil {
		return nil, err
	}
	return cd.Schema(), nil
}

// Rename sets a device's friendly name. Names must be unique.
func (c *Coordinator) Rename(ref, name string) error {
	c.mu.Lock()
	e, err := c.lookup(ref)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	for ieee, other := range c.devices {
		if ieee != e.dev.IEEEAddress && name != "" && other.dev.FriendlyName == name {
			c.mu.Unlock()
			return fmt.Errorf("%w: %q belongs to %s", ErrNameInUse, name, ieee)
		}
	}
	e.dev.FriendlyName = name
	ieee := e.dev.IEEEAddress
	c.mu.Unlock()

	return c.store.UpdateDevice(ieee, func(dev *store.Device) error {
		dev.FriendlyName = name
		return nil
	})
}

// Remove forgets a device and deletes it from the store.
func (c *Coordinator) Remove(ref string) error {
	c.mu.Lock()
	e, err := c.lookup(ref)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	snapshot := cloneDevice(e.dev)
	delete(c.devices, snapshot.IEEEAddress)
	c.mu.Unlock()

	if err := c.store.DeleteDevice(snapshot.IEEEAddress); err != nil {
		return fmt.Errorf("coordinator: remove %s: %w", snapshot.IEEEAddress, err)
	}
	c.updateGauges()
	c.events.Emit(Event{Type: EventDeviceRemoved, Data: deviceEvent(snapshot)})
	return nil
}

// SetHostStackConnected publishes a host stack connection change.
func (c *Coordinator) SetHostStackConnected(connected bool) {
	state := "offline"
	if connected {
		state = "online"
	}
	c.events.Emit(Event{Type: EventHostStack, Data: state})
}

func (c *Coordinator) codecFor(ref string) (string, *codec.Codec, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, err := c.lookup(ref)
	if err != nil {
		return "", nil, err
	}
	if e.codec == nil {
		return "", nil, fmt.Errorf("%w: %s", ErrUnidentified, e.dev.IEEEAddress)
	}
	return e.dev.IEEEAddress, e.codec, nil
}

// lookup must be called with c.mu held.
func (c *Coordinator) lookup(ref string) (*entry, error) {
	if ieee, err := NormalizeIEEE(ref); err == nil {
		if e := c.devices[ieee]; e != nil {
			return e, nil
		}
	}
	for _, e := range c.devices {
		if e.dev.FriendlyName != "" && e.dev.FriendlyName == ref {
			return e, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, ref)
}

// save must be called with c.mu held so writes land in the order state changed.
func (c *Coordinator) save(dev *store.Device) {
	if err := c.store.SaveDevice(dev); err != nil {
		c.logger.Error("save device", "ieee", dev.IEEEAddress, "err", err)
	}
}

func (c *Coordinator) updateGauges() {
	c.mu.Lock()
	counts := make(map[schema.Revision]int)
	for _, e := range c.devices {
		if e.codec != nil {
			counts[e.dev.Revision]++
		}
	}
	c.mu.Unlock()
	for _, rev := range c.schemas.Revisions() {
		metrics.KnownDevices.WithLabelValues(string(rev)).Set(float64(counts[rev]))
	}
}

func cloneDevice(d *store.Device) *store.Device {
	cp := *d
	cp.State = d.State.Clone()
	return &cp
}

func deviceEvent(d *store.Device) DeviceEvent {
	return DeviceEvent{IEEE: d.IEEEAddress, Name: d.Name(), Model: d.Model, Revision: d.Revision}
}
