package codec

import (
	"fmt"
	"log/slog"
	"maps"
	"math/bits"
	"os"
	"slices"
	"testing"

	"amina-zigbee/internal/schema"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func codecFor(t *testing.T, rev schema.Revision) *Codec {
	t.Helper()
	reg, err := schema.Builtin(testLogger())
	if err != nil {
		t.Fatalf("Builtin: %v", err)
	}
	s, ok := reg.Get(rev)
	if !ok {
		t.Fatalf("revision %s missing", rev)
	}
	return New(s, testLogger())
}

func vendor(attrs ...AttributeValue) Message {
	return Message{Cluster: schema.ProprietaryCluster, Kind: KindAttributeReport, Attributes: attrs}
}

func TestAlarmBitmapAllValues(t *testing.T) {
	c := codecFor(t, schema.RevisionV1)
	catalog := schema.LegacyAlarms()
	for raw := 0; raw <= 0xFFFF; raw++ {
		st := c.Decode(vendor(AttributeValue{ID: 0x0002, Value: uint16(raw)}))

		var want []string
		for i, name := range catalog {
			if raw>>i&1 == 1 {
				want = append(want, name)
			}
		}
		if st.Alarms == nil {
			t.Fatalf("raw 0x%04X: alarms absent", raw)
		}
		if !slices.Equal(st.Alarms, want) {
			t.Fatalf("raw 0x%04X: alarms = %v, want %v", raw, st.Alarms, want)
		}
		if st.AlarmActive == nil || *st.AlarmActive != (raw != 0) {
			t.Fatalf("raw 0x%04X: alarm_active = %v, want %v", raw, st.AlarmActive, raw != 0)
		}
		if len(st.Alarms) != bits.OnesCount16(uint16(raw)&0x03FF) {
			t.Fatalf("raw 0x%04X: %d names for %d catalogued bits", raw, len(st.Alarms), bits.OnesCount16(uint16(raw)&0x03FF))
		}
	}
}

func TestAlarmScenario(t *testing.T) {
	c := codecFor(t, schema.RevisionV1)
	st := c.Decode(vendor(AttributeValue{ID: 0x0002, Value: uint16(0b101)}))
	want := []string{"Welded relay(s)", "RDC-DD DC Leakage"}
	if !slices.Equal(st.Alarms, want) {
		t.Errorf("alarms = %v, want %v", st.Alarms, want)
	}
	if st.AlarmActive == nil || !*st.AlarmActive {
		t.Error("alarm_active should be true")
	}

	st = c.Decode(vendor(AttributeValue{ID: 0x0002, Value: uint16(0)}))
	if st.Alarms == nil || len(st.Alarms) != 0 {
		t.Errorf("alarms = %#v, want empty list", st.Alarms)
	}
	if st.AlarmActive == nil || *st.AlarmActive {
		t.Error("alarm_active should be false")
	}
}

func TestStatusCodes(t *testing.T) {
	labels := map[uint16]string{0: "Not Connected", 1: "EV Connected", 3: "Ready to Charge", 7: "Charging", 11: "Paused"}
	tests := []struct {
		rev   schema.Revision
		value func(uint16) any
	}{
		{schema.RevisionV1, func(v uint16) any { return v }},
		{schema.RevisionV2, func(v uint16) any { return v }},
		{schema.RevisionV3, func(v uint16) any { return uint8(v) }},
		{schema.RevisionV4, func(v uint16) any { return uint8(v) }},
	}
	for _, tt := range tests {
		t.Run(string(tt.rev), func(t *testing.T) {
			c := codecFor(t, tt.rev)
			f, _ := c.Schema().Field(schema.KeyEVStatus)
			for code := uint16(0); code < 16; code++ {
				st := c.Decode(vendor(AttributeValue{ID: f.Attribute.ID, Value: tt.value(code)}))
				want, ok := labels[code]
				if !ok {
					want = fmt.Sprintf("Unknown Status: %d", code)
				}
				if st.EVStatus == nil || *st.EVStatus != want {
					t.Errorf("code %d: ev_status = %v, want %q", code, st.EVStatus, want)
				}
				packed := c.Schema().StatusLayout() == schema.StatusPacked
				if packed && (st.Derating == nil || *st.Derating != 0) {
					t.Errorf("code %d: derating = %v, want 0", code, st.Derating)
				}
				if !packed && st.Derating != nil {
					t.Errorf("code %d: isolated layout produced derating %d", code, *st.Derating)
				}
			}
		})
	}
}

func TestPackedStatusScenarios(t *testing.T) {
	c := codecFor(t, schema.RevisionV1)
	tests := []struct {
		name         string
		raw          uint16
		wantStatus   string
		wantDerating int64
	}{
		{"0b10111", 0b10111, "Charging", 0},
		{"derating set", 0x8017, "Charging", 1},
		{"derating paused", 0x800B, "Paused", 1},
		{"unknown keeps full raw", 0x8002, "Unknown Status: 32770", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := c.Decode(vendor(AttributeValue{ID: 0x0003, Value: tt.raw}))
			if st.EVStatus == nil || *st.EVStatus != tt.wantStatus {
				t.Errorf("ev_status = %v, want %q", st.EVStatus, tt.wantStatus)
			}
			if st.Derating == nil || *st.Derating != tt.wantDerating {
				t.Errorf("derating = %v, want %d", st.Derating, tt.wantDerating)
			}
		})
	}
}

func TestIsolatedStatusMasksHighBits(t *testing.T) {
	c := codecFor(t, schema.RevisionV3)
	tests := []struct {
		name string
		raw  uint8
		want string
	}{
		{"code only", 0x07, "Charging"},
		{"high nibble set", 0x17, "Charging"},
		{"high nibble ready", 0xF3, "Ready to Charge"},
		{"unknown code keeps raw", 0x25, "Unknown Status: 37"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := c.Decode(vendor(AttributeValue{ID: 0x0103, Value: tt.raw}))
			if st.EVStatus == nil || *st.EVStatus != tt.want {
				t.Errorf("ev_status = %v, want %q", st.EVStatus, tt.want)
			}
			if st.Derating != nil {
				t.Errorf("derating = %d, want absent", *st.Derating)
			}
		})
	}
}

func TestScaledEnergy(t *testing.T) {
	c := codecFor(t, schema.RevisionV4)
	st := c.Decode(vendor(
		AttributeValue{ID: 0x0110, Value: uint32(45000)},
		AttributeValue{ID: 0x0111, Value: uint32(12346)},
	))
	if st.TotalActiveEnergy == nil || *st.TotalActiveEnergy != 45.00 {
		t.Errorf("total_active_energy = %v, want 45.00", st.TotalActiveEnergy)
	}
	if st.LastSessionEnergy == nil || *st.LastSessionEnergy != 12.35 {
		t.Errorf("last_session_energy = %v, want 12.35", st.LastSessionEnergy)
	}

	raw := codecFor(t, schema.RevisionV1).Decode(vendor(AttributeValue{ID: 0x0010, Value: uint32(45000)}))
	if raw.TotalActiveEnergy == nil || *raw.TotalActiveEnergy != 45000 {
		t.Errorf("v1 total_active_energy = %v, want 45000", raw.TotalActiveEnergy)
	}
}

func TestElectricalMeasurement(t *testing.T) {
	c := codecFor(t, schema.RevisionV1)
	st := c.Decode(Message{Cluster: 0x0B04, Attributes: []AttributeValue{
		{Name: "rmsVoltage", Value: uint16(231)},
		{Name: "rmsVoltagePhB", Value: uint16(229)},
		{ID: 0x0508, Value: uint16(16000)},
		{ID: 0x0908, Value: uint16(15990)},
		{ID: 0x050B, Value: int16(3680)},
		{ID: 0x0300, Value: uint16(50)},
	}})
	checks := []struct {
		key  string
		got  *float64
		want float64
	}{
		{"voltage", st.Voltage, 231},
		{"voltage_phase_b", st.VoltagePhaseB, 229},
		{"current", st.Current, 16},
		{"current_phase_b", st.CurrentPhaseB, 15.99},
		{"power", st.Power, 3680},
		{"ac_frequency", st.ACFrequency, 50},
	}
	for _, ch := range checks {
		if ch.got == nil || *ch.got != ch.want {
			t.Errorf("%s = %v, want %v", ch.key, ch.got, ch.want)
		}
	}
	if st.VoltagePhaseC != nil || st.CurrentPhaseC != nil {
		t.Error("phase C fields should be absent")
	}

	kw := codecFor(t, schema.RevisionV4).Decode(Message{Cluster: 0x0B04, Attributes: []AttributeValue{{ID: 0x050B, Value: int16(3680)}}})
	if kw.Power == nil || *kw.Power != 3.68 {
		t.Errorf("v4 power = %v, want 3.68", kw.Power)
	}
}

func electrical(attrs ...AttributeValue) Message {
	return Message{Cluster: 0x0B04, Kind: KindReadResponse, Attributes: attrs}
}

func TestElectricalFactorsDecode(t *testing.T) {
	c := codecFor(t, schema.RevisionV1)
	st, res := c.DecodeWithResult(electrical(
		AttributeValue{ID: 0x0603, Value: uint16(10)},
		AttributeValue{ID: 0x0602, Value: uint16(1)},
	))
	if len(res.Ignored) != 0 {
		t.Errorf("ignored = %v, want none", res.Ignored)
	}
	if !slices.Equal(res.Decoded, []string{schema.KeyCurrentDivisor, schema.KeyCurrentMultiplier}) {
		t.Errorf("decoded = %v", res.Decoded)
	}
	want := map[string]int64{schema.KeyCurrentDivisor: 10, schema.KeyCurrentMultiplier: 1}
	if !maps.Equal(st.Calibration, want) {
		t.Errorf("calibration = %v, want %v", st.Calibration, want)
	}
	if len(st.Properties()) != 0 {
		t.Errorf("factors leaked into properties: %v", st.Properties())
	}
	if st.IsEmpty() {
		t.Error("a patch carrying factors must not be empty")
	}

	_, res = c.DecodeWithResult(electrical(AttributeValue{ID: 0x0601, Value: uint16(0)}))
	if len(res.Ignored) != 1 || res.Ignored[0].Reason != ReasonBadValue {
		t.Errorf("zero divisor: ignored = %v, want bad_value", res.Ignored)
	}
}

func TestCalibratedMeasurements(t *testing.T) {
	current := map[string]int64{schema.KeyCurrentMultiplier: 1, schema.KeyCurrentDivisor: 10}
	tests := []struct {
		name  string
		rev   schema.Revision
		known map[string]int64
		msg   Message
		key   string
		want  float64
	}{
		{
			name:  "current from known factors",
			rev:   schema.RevisionV1,
			known: current,
			msg:   electrical(AttributeValue{ID: 0x0508, Value: uint16(160)}),
			key:   schema.KeyCurrent,
			want:  16,
		},
		{
			name: "current factors in the same message",
			rev:  schema.RevisionV3,
			msg: electrical(
				AttributeValue{ID: 0x0908, Value: uint16(162)},
				AttributeValue{ID: 0x0602, Value: uint16(1)},
				AttributeValue{ID: 0x0603, Value: uint16(10)},
			),
			key:  schema.KeyCurrentPhaseB,
			want: 16.2,
		},
		{
			name: "current static scale until factors known",
			rev:  schema.RevisionV1,
			msg:  electrical(AttributeValue{ID: 0x0508, Value: uint16(160)}),
			key:  schema.KeyCurrent,
			want: 0.16,
		},
		{
			name:  "divisor alone keeps static scale",
			rev:   schema.RevisionV1,
			known: map[string]int64{schema.KeyCurrentDivisor: 10},
			msg:   electrical(AttributeValue{ID: 0x0508, Value: uint16(16000)}),
			key:   schema.KeyCurrent,
			want:  16,
		},
		{
			name:  "voltage tenths",
			rev:   schema.RevisionV2,
			known: map[string]int64{schema.KeyVoltageMultiplier: 1, schema.KeyVoltageDivisor: 10},
			msg:   electrical(AttributeValue{ID: 0x0505, Value: uint16(2305)}),
			key:   schema.KeyVoltage,
			want:  230.5,
		},
		{
			name:  "power multiplier",
			rev:   schema.RevisionV1,
			known: map[string]int64{schema.KeyPowerMultiplier: 10, schema.KeyPowerDivisor: 1},
			msg:   electrical(AttributeValue{ID: 0x050B, Value: int16(368)}),
			key:   schema.KeyPower,
			want:  3680,
		},
		{
			name:  "kilowatt revision",
			rev:   schema.RevisionV4,
			known: map[string]int64{schema.KeyPowerMultiplier: 1, schema.KeyPowerDivisor: 1},
			msg:   electrical(AttributeValue{ID: 0x050B, Value: int16(3680)}),
			key:   schema.KeyPower,
			want:  3.68,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, _ := codecFor(t, tt.rev).DecodeCalibrated(tt.msg, tt.known)
			got, ok := st.Properties()[tt.key].(float64)
			if !ok || got != tt.want {
				t.Errorf("%s = %v, want %v", tt.key, st.Properties()[tt.key], tt.want)
			}
		})
	}
}

func TestDecodeCalibratedLeavesKnownUntouched(t *testing.T) {
	c := codecFor(t, schema.RevisionV1)
	known := map[string]int64{schema.KeyCurrentMultiplier: 1, schema.KeyCurrentDivisor: 1000}
	c.DecodeCalibrated(electrical(AttributeValue{ID: 0x0603, Value: uint16(10)}), known)
	if known[schema.KeyCurrentDivisor] != 1000 {
		t.Errorf("known divisor = %d, want 1000", known[schema.KeyCurrentDivisor])
	}
}

func TestChargeLimitPassThrough(t *testing.T) {
	c := codecFor(t, schema.RevisionV2)
	// Out-of-range values reported by the device are not clamped.
	for _, level := range []uint8{0, 6, 32, 40, 255} {
		st := c.Decode(Message{Cluster: 0x0008, Kind: KindReadResponse, Attributes: []AttributeValue{{ID: 0, Value: level}}})
		if st.ChargeLimit == nil || *st.ChargeLimit != int64(level) {
			t.Errorf("level %d: charge_limit = %v", level, st.ChargeLimit)
		}
	}
}

func TestChargeLimitMax(t *testing.T) {
	c := codecFor(t, schema.RevisionV1)
	st := c.Decode(vendor(AttributeValue{ID: 0x0000, Value: uint8(32)}))
	if st.ChargeLimitMax == nil || *st.ChargeLimitMax != 32 {
		t.Errorf("charge_limit_max = %v, want 32", st.ChargeLimitMax)
	}
	if st.ChargeLimit != nil {
		t.Error("vendor attribute 0 must not decode as charge_limit")
	}
}

func TestSwitchDecode(t *testing.T) {
	c := codecFor(t, schema.RevisionV4)
	st := c.Decode(Message{Cluster: 0x0006, Attributes: []AttributeValue{{Name: "onOff", Value: true}}})
	if st.Switch == nil || !*st.Switch {
		t.Fatalf("switch = %v, want true", st.Switch)
	}
	if got := st.Properties()["state"]; got != "ON" {
		t.Errorf("state property = %v, want ON", got)
	}
}

func TestDecodeIgnoresUnknownAndMalformed(t *testing.T) {
	c := codecFor(t, schema.RevisionV1)
	st, res := c.DecodeWithResult(vendor(
		AttributeValue{ID: 0x0099, Value: uint16(1)},
		AttributeValue{ID: 0x0002, Value: "not a bitmap"},
		AttributeValue{Name: "mystery", Value: 1},
		AttributeValue{ID: 0x0004, Value: uint16(1)},
	))
	if !slices.Equal(res.Decoded, []string{schema.KeyConnectStatus}) {
		t.Errorf("decoded = %v, want [connect_status]", res.Decoded)
	}
	want := []Ignored{
		{Attribute: "0x0099", Reason: ReasonUnknownAttribute},
		{Attribute: "0x0002", Reason: ReasonBadValue},
		{Attribute: "mystery", Reason: ReasonUnknownAttribute},
	}
	if !slices.Equal(res.Ignored, want) {
		t.Errorf("ignored = %v, want %v", res.Ignored, want)
	}
	if st.Alarms != nil || st.AlarmActive != nil {
		t.Error("malformed alarms must stay absent")
	}
	if st.ConnectStatus == nil || *st.ConnectStatus != 1 {
		t.Errorf("connect_status = %v, want 1", st.ConnectStatus)
	}

	// Another cluster with the same attribute ID is not the vendor cluster.
	other := c.Decode(Message{Cluster: 0x0B04, Attributes: []AttributeValue{{ID: 0x0002, Value: uint16(5)}}})
	if !other.IsEmpty() {
		t.Errorf("cross-cluster decode produced %v", other.Properties())
	}
}

func TestDecodeAcceptsJSONNumbers(t *testing.T) {
	c := codecFor(t, schema.RevisionV1)
	st := c.Decode(vendor(
		AttributeValue{ID: 0x0002, Value: float64(5)},
		AttributeValue{ID: 0x0003, Value: float64(7)},
	))
	if len(st.Alarms) != 2 {
		t.Errorf("alarms = %v", st.Alarms)
	}
	if st.EVStatus == nil || *st.EVStatus != "Charging" {
		t.Errorf("ev_status = %v", st.EVStatus)
	}
	st = c.Decode(vendor(AttributeValue{ID: 0x0002, Value: 2.5}))
	if st.Alarms != nil {
		t.Error("fractional bitmap must be ignored")
	}
}

// Feeding the same logical charger state through every revision's wire layout
// must produce the same canonical output.
func TestCrossRevisionCompatibility(t *testing.T) {
	type wire struct {
		alarms, status, connect, total uint16
		statusValue                    any
		totalRaw                       uint32
	}
	layouts := map[schema.Revision]wire{
		schema.RevisionV1: {alarms: 0x0002, status: 0x0003, connect: 0x0004, total: 0x0010, statusValue: uint16(7), totalRaw: 45000},
		schema.RevisionV2: {alarms: 0x0003, status: 0x0004, connect: 0x0002, total: 0x0010, statusValue: uint16(7), totalRaw: 45000},
		schema.RevisionV3: {alarms: 0x0102, status: 0x0103, connect: 0x0104, total: 0x0110, statusValue: uint8(7), totalRaw: 45000},
		schema.RevisionV4: {alarms: 0x0102, status: 0x0103, connect: 0x0104, total: 0x0110, statusValue: uint8(7), totalRaw: 45000},
	}

	var reference map[string]any
	for _, rev := range []schema.Revision{schema.RevisionV1, schema.RevisionV2, schema.RevisionV3, schema.RevisionV4} {
		w := layouts[rev]
		c := codecFor(t, rev)
		st := c.Decode(vendor(
			AttributeValue{ID: w.alarms, Value: uint16(0b101)},
			AttributeValue{ID: w.status, Value: w.statusValue},
			AttributeValue{ID: w.connect, Value: uint16(1)},
			AttributeValue{ID: w.total, Value: w.totalRaw},
		))
		st.Merge(c.Decode(Message{Cluster: 0x0008, Attributes: []AttributeValue{{ID: 0, Value: uint8(16)}}}))
		st.Merge(c.Decode(Message{Cluster: 0x0006, Attributes: []AttributeValue{{ID: 0, Value: true}}}))

		props := st.Properties()
		delete(props, schema.KeyDerating)
		energy := props[schema.KeyTotalActiveEnergy]
		delete(props, schema.KeyTotalActiveEnergy)

		wantEnergy := 45000.0
		if rev == schema.RevisionV4 {
			wantEnergy = 45.0
		}
		if energy != wantEnergy {
			t.Errorf("%s: total_active_energy = %v, want %v", rev, energy, wantEnergy)
		}

		if reference == nil {
			reference = props
			continue
		}
		if len(props) != len(reference) {
			t.Errorf("%s: %d keys, want %d", rev, len(props), len(reference))
		}
		for k, want := range reference {
			got := props[k]
			if fmt.Sprint(got) != fmt.Sprint(want) {
				t.Errorf("%s: %s = %v, want %v", rev, k, got, want)
			}
		}
	}
}
