package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"amina-zigbee/internal/codec"
	"amina-zigbee/internal/schema"
	"amina-zigbee/internal/store"
	"amina-zigbee/internal/zcl/clusters"
)

const testIEEE = "0x0C4314FFFE65A1B2"

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeTransport struct {
	mu    sync.Mutex
	ops   []codec.Operation
	ieees []string
	err   error
}

func (f *fakeTransport) Send(_ context.Context, ieee string, op codec.Operation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, op)
	f.ieees = append(f.ieees, ieee)
	return f.err
}

func (f *fakeTransport) calls() []codec.Operation {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]codec.Operation(nil), f.ops...)
}

type fixture struct {
	coord *Coordinator
	store *store.BoltStore
	disp  *fakeTransport
	bus   *EventBus
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	st, err := store.NewBoltStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })
	return newFixtureWithStore(t, st, cfg)
}

func newFixtureWithStore(t *testing.T, st *store.BoltStore, cfg Config) *fixture {
	t.Helper()
	f := &fixture{store: st, disp: &fakeTransport{}, bus: NewEventBus(newTestLogger())}
	coord, err := New(testSchemas(t), BuiltinDevices(), st, f.bus, f.disp, cfg, newTestLogger())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(coord.Stop)
	f.coord = coord
	return f
}

func (f *fixture) announce(t *testing.T, build string) {
	t.Helper()
	_, err := f.coord.HandleAnnounce(Announce{
		IEEE:          testIEEE,
		Manufacturer:  AminaManufacturer,
		Model:         AminaModel,
		SoftwareBuild: build,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func vendorReport(attrs ...codec.AttributeValue) codec.Message {
	return codec.Message{Cluster: schema.ProprietaryCluster, Kind: codec.KindAttributeReport, Attributes: attrs}
}

func TestParseIEEE(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    [8]byte
		wantErr bool
	}{
		{
			"hex string no colons",
			"00124B001234ABCD",
			[8]byte{0x00, 0x12, 0x4B, 0x00, 0x12, 0x34, 0xAB, 0xCD},
			false,
		},
		{
			"hex string with colons",
			"00:12:4B:00:12:34:AB:CD",
			[8]byte{0x00, 0x12, 0x4B, 0x00, 0x12, 0x34, 0xAB, 0xCD},
			false,
		},
		{
			"0x prefix lower case",
			"0x0c4314fffe65a1b2",
			[8]byte{0x0C, 0x43, 0x14, 0xFF, 0xFE, 0x65, 0xA1, 0xB2},
			false,
		},
		{
			"all zeros",
			"0000000000000000",
			[8]byte{},
			false,
		},
		{
			"too short",
			"00124B",
			[8]byte{},
			true,
		},
		{
			"too long",
			"00124B001234ABCD00",
			[8]byte{},
			true,
		},
		{
			"invalid hex",
			"ZZZZZZZZZZZZZZZZ",
			[8]byte{},
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseIEEE(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseIEEE(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
				return
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseIEEE(%q) = %X, want %X", tt.input, got, tt.want)
			}
		})
	}
}

func TestNormalizeIEEE(t *testing.T) {
	for _, in := range []string{"0x0c4314fffe65a1b2", "0C:43:14:FF:FE:65:A1:B2", "0C4314FFFE65A1B2"} {
		got, err := NormalizeIEEE(in)
		if err != nil {
			t.Fatalf("NormalizeIEEE(%q): %v", in, err)
		}
		if got != testIEEE {
			t.Errorf("NormalizeIEEE(%q) = %q, want %q", in, got, testIEEE)
		}
	}
}

// --- EventBus tests ---

func TestEventBusEmitOn(t *testing.T) {
	eb := NewEventBus(newTestLogger())
	var received Event

	eb.On(EventDeviceAnnounce, func(e Event) {
		received = e
	})

	eb.Emit(Event{Type: EventDeviceAnnounce, Data: "test"})

	if received.Type != EventDeviceAnnounce {
		t.Errorf("type = %q, want %q", received.Type, EventDeviceAnnounce)
	}
	if received.Data != "test" {
		t.Errorf("data = %v, want %q", received.Data, "test")
	}
}

func TestEventBusOnDoesNotReceiveOtherTypes(t *testing.T) {
	eb := NewEventBus(newTestLogger())
	called := false

	eb.On(EventDeviceAnnounce, func(e Event) {
		called = true
	})

	eb.Emit(Event{Type: EventDeviceRemoved, Data: "test"})

	if called {
		t.Error("handler called for wrong event type")
	}
}

func TestEventBusOnAll(t *testing.T) {
	eb := NewEventBus(newTestLogger())
	var count atomic.Int32

	eb.OnAll(func(e Event) {
		count.Add(1)
	})

	eb.Emit(Event{Type: EventDeviceAnnounce})
	eb.Emit(Event{Type: EventDeviceRemoved})
	eb.Emit(Event{Type: EventStateUpdate})

	if count.Load() != 3 {
		t.Errorf("onAll called %d times, want 3", count.Load())
	}
}

func TestEventBusUnsubscribe(t *testing.T) {
	eb := NewEventBus(newTestLogger())
	var count atomic.Int32

	unsub := eb.On(EventStateUpdate, func(e Event) {
		count.Add(1)
	})

	eb.Emit(Event{Type: EventStateUpdate})
	if count.Load() != 1 {
		t.Fatalf("expected 1 call before unsub, got %d", count.Load())
	}

	unsub()
	eb.Emit(Event{Type: EventStateUpdate})
	if count.Load() != 1 {
		t.Errorf("expected 1 call after unsub, got %d", count.Load())
	}
}

func TestEventBusPanicRecovery(t *testing.T) {
	eb := NewEventBus(newTestLogger())
	var called atomic.Int32

	eb.On(EventStateUpdate, func(e Event) {
		called.Add(1)
		panic("test panic")
	})
	eb.On(EventStateUpdate, func(e Event) {
		called.Add(1)
	})

	eb.Emit(Event{Type: EventStateUpdate})

	if c := called.Load(); c != 2 {
		t.Errorf("expected 2 handlers called, got %d", c)
	}
}

func TestEventBusConcurrentEmit(t *testing.T) {
	eb := NewEventBus(newTestLogger())
	var count atomic.Int32

	eb.OnAll(func(e Event) {
		count.Add(1)
	})

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			eb.Emit(Event{Type: EventStateUpdate})
		}()
	}
	wg.Wait()

	if count.Load() != 100 {
		t.Errorf("got %d, want 100", count.Load())
	}
}

// --- Coordinator tests ---

func TestHandleAnnounceResolvesRevision(t *testing.T) {
	tests := []struct {
		build string
		want  schema.Revision
	}{
		{"", schema.RevisionV1},
		{"2.4.0", schema.RevisionV2},
		{"3.0.7", schema.RevisionV3},
		{"4.1.0", schema.RevisionV4},
	}
	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			f := newFixture(t, Config{})
			var identified []DeviceEvent
			f.bus.On(EventDeviceIdentified, func(e Event) {
				identified = append(identified, e.Data.(DeviceEvent))
			})

			dev, err := f.coord.HandleAnnounce(Announce{
				IEEE: "0c:43:14:ff:fe:65:a1:b2", Manufacturer: AminaManufacturer, Model: AminaModel, SoftwareBuild: tt.build,
			})
			if err != nil {
				t.Fatal(err)
			}
			if dev.IEEEAddress != testIEEE {
				t.Errorf("ieee = %q, want %q", dev.IEEEAddress, testIEEE)
			}
			if dev.Revision != tt.want {
				t.Errorf("revision = %q, want %q", dev.Revision, tt.want)
			}
			if len(identified) != 1 || identified[0].Revision != tt.want {
				t.Errorf("identified events = %+v", identified)
			}

			stored, err := f.store.GetDevice(testIEEE)
			if err != nil {
				t.Fatal(err)
			}
			if stored.Revision != tt.want {
				t.Errorf("stored revision = %q, want %q", stored.Revision, tt.want)
			}
		})
	}
}

func TestHandleAnnounceUnidentified(t *testing.T) {
	f := newFixture(t, Config{})

	dev, err := f.coord.HandleAnnounce(Announce{IEEE: testIEEE, Manufacturer: "Other", Model: "plug"})
	if !errors.Is(err, ErrUnidentified) {
		t.Fatalf("err = %v, want ErrUnidentified", err)
	}
	if dev == nil || dev.Revision != "" {
		t.Fatalf("device = %+v, want kept without revision", dev)
	}

	_, err = f.coord.HandleMessage(testIEEE, vendorReport(codec.AttributeValue{ID: 0x0002, Value: uint16(1)}))
	if !errors.Is(err, ErrUnidentified) {
		t.Errorf("message err = %v, want ErrUnidentified", err)
	}
	_, err = f.coord.Set(context.Background(), testIEEE, schema.KeyChargeLimit, 10)
	if !errors.Is(err, ErrUnidentified) {
		t.Errorf("set err = %v, want ErrUnidentified", err)
	}
	if n := len(f.disp.calls()); n != 0 {
		t.Errorf("dispatch calls = %d, want 0", n)
	}
}

func TestHandleAnnounceBadIEEE(t *testing.T) {
	f := newFixture(t, Config{})
	if _, err := f.coord.HandleAnnounce(Announce{IEEE: "nope"}); err == nil {
		t.Fatal("expected error for invalid ieee")
	}
}

func TestHandleMessageUnknownDevice(t *testing.T) {
	f := newFixture(t, Config{})
	_, err := f.coord.HandleMessage(testIEEE, vendorReport(codec.AttributeValue{ID: 0x0002, Value: uint16(1)}))
	if !errors.Is(err, ErrUnknownDevice) {
		t.Fatalf("err = %v, want ErrUnknownDevice", err)
	}
}

func TestHandleMessageAccumulatesState(t *testing.T) {
	f := newFixture(t, Config{})
	f.announce(t, "1.0.0")

	var updates []StateUpdate
	f.bus.On(EventStateUpdate, func(e Event) {
		updates = append(updates, e.Data.(StateUpdate))
	})

	_, err := f.coord.HandleMessage(testIEEE, vendorReport(
		codec.AttributeValue{ID: 0x0002, Value: uint16(0b101)},
		codec.AttributeValue{ID: 0x0003, Value: uint16(0x8017)},
	))
	if err != nil {
		t.Fatal(err)
	}
	st, err := f.coord.HandleMessage(testIEEE, codec.Message{
		Cluster:    clusters.LevelControl.ID,
		Kind:       codec.KindReadResponse,
		Attributes: []codec.AttributeValue{{Name: "currentLevel", Value: uint8(16)}},
	})
	if err != nil {
		t.Fatal(err)
	}

	if st.ChargeLimit == nil || *st.ChargeLimit != 16 {
		t.Errorf("charge_limit = %v, want 16", st.ChargeLimit)
	}
	if st.EVStatus == nil || *st.EVStatus != "Charging" {
		t.Errorf("ev_status = %v, want Charging", st.EVStatus)
	}
	if st.Derating == nil || *st.Derating != 1 {
		t.Errorf("derating = %v, want 1", st.Derating)
	}
	if len(st.Alarms) != 2 {
		t.Errorf("alarms = %v, want 2 entries", st.Alarms)
	}

	if len(updates) != 2 {
		t.Fatalf("state updates = %d, want 2", len(updates))
	}
	second := updates[1]
	if second.Patch.EVStatus != nil {
		t.Error("second patch carries ev_status, want only charge_limit")
	}
	if second.State.EVStatus == nil {
		t.Error("second merged state lost ev_status")
	}

	stored, err := f.store.GetDevice(testIEEE)
	if err != nil {
		t.Fatal(err)
	}
	if stored.State.ChargeLimit == nil || *stored.State.ChargeLimit != 16 {
		t.Errorf("stored charge_limit = %v, want 16", stored.State.ChargeLimit)
	}
}

func TestHandleMessageCalibratesElectrical(t *testing.T) {
	f := newFixture(t, Config{})
	f.announce(t, "1.0.0")
	em := clusters.ElectricalMeasurement.ID
	report := codec.Message{Cluster: em, Kind: codec.KindAttributeReport, Attributes: []codec.AttributeValue{
		{Name: "rmsCurrent", Value: uint16(160)},
	}}

	st, err := f.coord.HandleMessage(testIEEE, report)
	if err != nil {
		t.Fatal(err)
	}
	if st.Current == nil || *st.Current != 0.16 {
		t.Errorf("uncalibrated current = %v, want 0.16", st.Current)
	}

	if _, err := f.coord.HandleMessage(testIEEE, codec.Message{Cluster: em, Kind: codec.KindReadResponse, Attributes: []codec.AttributeValue{
		{ID: 0x0603, Value: uint16(10)},
		{ID: 0x0602, Value: uint16(1)},
	}}); err != nil {
		t.Fatal(err)
	}
	st, err = f.coord.HandleMessage(testIEEE, report)
	if err != nil {
		t.Fatal(err)
	}
	if st.Current == nil || *st.Current != 16 {
		t.Errorf("calibrated current = %v, want 16", st.Current)
	}
	if _, ok := st.Properties()[schema.KeyCurrentDivisor]; ok {
		t.Error("divisor published as a property")
	}

	stored, err := f.store.GetDevice(testIEEE)
	if err != nil {
		t.Fatal(err)
	}
	if stored.State.Calibration[schema.KeyCurrentDivisor] != 10 {
		t.Errorf("stored calibration = %v", stored.State.Calibration)
	}
}

func TestHandleMessageIgnoredAttributesEmitNothing(t *testing.T) {
	f := newFixture(t, Config{})
	f.announce(t, "")

	var count atomic.Int32
	f.bus.On(EventStateUpdate, func(Event) { count.Add(1) })

	if _, err := f.coord.HandleMessage(testIEEE, vendorReport(codec.AttributeValue{ID: 0x7777, Value: uint8(1)})); err != nil {
		t.Fatal(err)
	}
	if count.Load() != 0 {
		t.Errorf("state updates = %d, want 0", count.Load())
	}
}

func TestBasicClusterIdentifies(t *testing.T) {
	f := newFixture(t, Config{})

	_, err := f.coord.HandleMessage(testIEEE, codec.Message{
		Cluster: clusters.Basic.ID,
		Kind:    codec.KindReadResponse,
		Attributes: []codec.AttributeValue{
			{ID: clusters.BasicManufacturerName, Value: AminaManufacturer},
			{Name: "modelId", Value: AminaModel},
			{ID: clusters.BasicSWBuildID, Value: "3.2.0"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	dev, err := f.coord.Device(testIEEE)
	if err != nil {
		t.Fatal(err)
	}
	if dev.Revision != schema.RevisionV3 {
		t.Errorf("revision = %q, want v3", dev.Revision)
	}
	if dev.SoftwareBuild != "3.2.0" {
		t.Errorf("sw build = %q", dev.SoftwareBuild)
	}
}

func TestSetChargeLimit(t *testing.T) {
	f := newFixture(t, Config{})
	f.announce(t, "4.0.0")

	op, err := f.coord.Set(context.Background(), testIEEE, schema.KeyChargeLimit, 20)
	if err != nil {
		t.Fatal(err)
	}
	calls := f.disp.calls()
	if len(calls) != 1 {
		t.Fatalf("dispatch calls = %d, want 1", len(calls))
	}
	if calls[0].Command == nil || calls[0].Command.Name != "moveToLevel" {
		t.Errorf("op = %s, want moveToLevel", op)
	}
	if f.disp.ieees[0] != testIEEE {
		t.Errorf("sent to %q, want %q", f.disp.ieees[0], testIEEE)
	}

	st, err := f.coord.State(testIEEE)
	if err != nil {
		t.Fatal(err)
	}
	if st.ChargeLimit == nil || *st.ChargeLimit != 20 {
		t.Errorf("optimistic charge_limit = %v, want 20", st.ChargeLimit)
	}
}

func TestSetRejectedNeverDispatches(t *testing.T) {
	f := newFixture(t, Config{})
	f.announce(t, "")

	_, err := f.coord.Set(context.Background(), testIEEE, schema.KeyChargeLimit, 40)
	var verr *codec.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want *codec.ValidationError", err)
	}
	if n := len(f.disp.calls()); n != 0 {
		t.Errorf("dispatch calls = %d, want 0", n)
	}
}

func TestSetSwitchToggle(t *testing.T) {
	f := newFixture(t, Config{})
	f.announce(t, "")
	ctx := context.Background()

	if _, err := f.coord.Set(ctx, testIEEE, schema.KeyState, "ON"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.coord.Set(ctx, testIEEE, schema.KeyState, "TOGGLE"); err != nil {
		t.Fatal(err)
	}
	st, _ := f.coord.State(testIEEE)
	if st.Switch == nil || *st.Switch {
		t.Errorf("switch = %v, want off after toggle", st.Switch)
	}
}

func TestSetTransportError(t *testing.T) {
	f := newFixture(t, Config{})
	f.announce(t, "")
	boom := errors.New("link down")
	f.disp.err = boom

	_, err := f.coord.Set(context.Background(), testIEEE, schema.KeyChargeLimit, 10)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want transport error", err)
	}
	st, _ := f.coord.State(testIEEE)
	if st.ChargeLimit != nil {
		t.Error("failed set updated state")
	}
}

func TestApplyJoinsErrors(t *testing.T) {
	f := newFixture(t, Config{})
	f.announce(t, "")

	err := f.coord.Apply(context.Background(), testIEEE, map[string]any{
		schema.KeyChargeLimit: 12,
		schema.KeyState:       "ON",
		"bogus":               1,
	})
	if err == nil {
		t.Fatal("expected error for bogus key")
	}
	var miss *codec.SchemaMissError
	if !errors.As(err, &miss) || miss.Field != "bogus" {
		t.Errorf("err = %v, want schema miss for bogus", err)
	}
	if n := len(f.disp.calls()); n != 2 {
		t.Errorf("dispatch calls = %d, want 2", n)
	}
}

func TestGetDispatchesRead(t *testing.T) {
	f := newFixture(t, Config{})
	f.announce(t, "3.0.0")

	op, err := f.coord.Get(context.Background(), testIEEE, schema.KeyTotalActiveEnergy)
	if err != nil {
		t.Fatal(err)
	}
	if op.Kind != codec.OpRead || op.Cluster != schema.ProprietaryCluster {
		t.Errorf("op = %s", op)
	}
	if op.ManufacturerCode != schema.ManufacturerCode {
		t.Errorf("manufacturer code = 0x%04X", op.ManufacturerCode)
	}
}

func TestConfigure(t *testing.T) {
	f := newFixture(t, Config{})
	f.announce(t, "")

	var configured []DeviceEvent
	f.bus.On(EventDeviceConfigured, func(e Event) { configured = append(configured, e.Data.(DeviceEvent)) })

	if err := f.coord.Configure(context.Background(), testIEEE); err != nil {
		t.Fatal(err)
	}

	s, _ := f.coord.Schema(testIEEE)
	want := codec.New(s, newTestLogger()).ConfigureOperations()
	if got := f.disp.calls(); len(got) != len(want) {
		t.Errorf("dispatch calls = %d, want %d", len(got), len(want))
	}
	dev, _ := f.coord.Device(testIEEE)
	if !dev.Configured {
		t.Error("configured = false after configure")
	}
	if len(configured) != 1 || configured[0].Error != "" {
		t.Errorf("configured events = %+v", configured)
	}
}

func TestConfigureAbortsOnError(t *testing.T) {
	f := newFixture(t, Config{})
	f.announce(t, "")
	boom := errors.New("no ack")
	f.disp.err = boom

	err := f.coord.Configure(context.Background(), testIEEE)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped transport error", err)
	}
	if n := len(f.disp.calls()); n != 1 {
		t.Errorf("dispatch calls = %d, want 1", n)
	}
	dev, _ := f.coord.Device(testIEEE)
	if dev.Configured {
		t.Error("configured = true after failure")
	}
}

func TestAutoConfigure(t *testing.T) {
	f := newFixture(t, Config{AutoConfigure: true})
	f.announce(t, "2.0.0")

	deadline := time.Now().Add(2 * time.Second)
	for {
		dev, err := f.coord.Device(testIEEE)
		if err != nil {
			t.Fatal(err)
		}
		if dev.Configured {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("device not configured in time")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRestoreFromStore(t *testing.T) {
	st, err := store.NewBoltStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	limit := int64(8)
	if err := st.SaveDevice(&store.Device{
		IEEEAddress: testIEEE,
		Revision:    schema.RevisionV2,
		Configured:  true,
		State:       codec.State{ChargeLimit: &limit},
	}); err != nil {
		t.Fatal(err)
	}

	f := newFixtureWithStore(t, st, Config{})
	devs := f.coord.Devices()
	if len(devs) != 1 {
		t.Fatalf("devices = %d, want 1", len(devs))
	}
	if devs[0].State.ChargeLimit == nil || *devs[0].State.ChargeLimit != 8 {
		t.Errorf("restored charge_limit = %v, want 8", devs[0].State.ChargeLimit)
	}

	// v2 puts connect_status at 0x02.
	st2, err := f.coord.HandleMessage(testIEEE, vendorReport(codec.AttributeValue{ID: 0x0002, Value: uint16(7)}))
	if err != nil {
		t.Fatal(err)
	}
	if st2.ConnectStatus == nil || *st2.ConnectStatus != 7 {
		t.Errorf("connect_status = %v, want 7", st2.ConnectStatus)
	}
}

func TestRenameAndLookupByName(t *testing.T) {
	f := newFixture(t, Config{})
	f.announce(t, "")

	if err := f.coord.Rename(testIEEE, "garage"); err != nil {
		t.Fatal(err)
	}
	dev, err := f.coord.Device("garage")
	if err != nil {
		t.Fatal(err)
	}
	if dev.IEEEAddress != testIEEE {
		t.Errorf("ieee = %q", dev.IEEEAddress)
	}
	stored, _ := f.store.GetDevice(testIEEE)
	if stored.FriendlyName != "garage" {
		t.Errorf("stored name = %q", stored.FriendlyName)
	}

	if _, err := f.coord.HandleAnnounce(Announce{IEEE: "0x0000000000000002", Model: AminaModel, Manufacturer: AminaManufacturer}); err != nil {
		t.Fatal(err)
	}
	if err := f.coord.Rename("0x0000000000000002", "garage"); !errors.Is(err, ErrNameInUse) {
		t.Errorf("duplicate name: err = %v, want ErrNameInUse", err)
	}
}

func TestRemove(t *testing.T) {
	f := newFixture(t, Config{})
	f.announce(t, "")

	var removed atomic.Int32
	f.bus.On(EventDeviceRemoved, func(Event) { removed.Add(1) })

	if err := f.coord.Remove(testIEEE); err != nil {
		t.Fatal(err)
	}
	if _, err := f.coord.Device(testIEEE); !errors.Is(err, ErrUnknownDevice) {
		t.Errorf("err = %v, want ErrUnknownDevice", err)
	}
	if _, err := f.store.GetDevice(testIEEE); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("store err = %v, want ErrNotFound", err)
	}
	if removed.Load() != 1 {
		t.Errorf("removed events = %d, want 1", removed.Load())
	}
}
