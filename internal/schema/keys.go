package schema

// Canonical state keys. They are stable across revisions; only their wire
// bindings change.
const (
	KeyState             = "state"
	KeyChargeLimit       = "charge_limit"
	KeyChargeLimitMax    = "charge_limit_max"
	KeyAlarms            = "alarms"
	KeyAlarmActive       = "alarm_active"
	KeyEVStatus          = "ev_status"
	KeyDerating          = "derating"
	KeyConnectStatus     = "connect_status"
	KeyTotalActiveEnergy = "total_active_energy"
	KeyLastSessionEnergy = "last_session_energy"
	KeyPower             = "power"
	KeyCurrent           = "current"
	KeyCurrentPhaseB     = "current_phase_b"
	KeyCurrentPhaseC     = "current_phase_c"
	KeyVoltage           = "voltage"
	KeyVoltagePhaseB     = "voltage_phase_b"
	KeyVoltagePhaseC     = "voltage_phase_c"
	KeyACFrequency       = "ac_frequency"
)

// Calibration keys hold the multiplier and divisor the charger reports for its
// electrical measurements. They are kept with the device state but not published.
const (
	KeyVoltageMultiplier = "ac_voltage_multiplier"
	KeyVoltageDivisor    = "ac_voltage_divisor"
	KeyCurrentMultiplier = "ac_current_multiplier"
	KeyCurrentDivisor    = "ac_current_divisor"
	KeyPowerMultiplier   = "ac_power_multiplier"
	KeyPowerDivisor      = "ac_power_divisor"
)
