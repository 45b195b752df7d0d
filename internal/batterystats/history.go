// Package batterystats decodes Android BatteryStats history samples and
// wakelock records handed over by a battery-stats reader.
package batterystats

import (
	"fmt"
	"time"
)

// Command is the history entry command byte.
type Command uint8

const (
	CmdUpdate   Command = 0
	CmdStart    Command = 1
	CmdOverflow Command = 2
)

func (c Command) String() string {
	switch c {
	case CmdUpdate:
		return "update"
	case CmdStart:
		return "start"
	case CmdOverflow:
		return "overflow"
	}
	return fmt.Sprintf("cmd(%d)", uint8(c))
}

const (
	clockLayout     = "15:04:05"
	clockLayoutMsec = "15:04:05.000"
)

// HistorySample is one raw BatteryStats history entry. Time is in
// milliseconds on the reader's boot-relative clock. Temperature and
// voltage keep the reader's text verbatim.
//
// Values are never validated here; the reader is trusted to hand over
// well-formed platform data. See CheckSample for an opt-in check.
type HistorySample struct {
	Time               int64     `json:"time_ms"`
	Cmd                Command   `json:"cmd"`
	BatteryLevel       uint8     `json:"battery_level"`
	BatteryStatus      uint8     `json:"battery_status"`
	BatteryHealth      uint8     `json:"battery_health"`
	BatteryPlugType    uint8     `json:"battery_plug_type"`
	BatteryTemperature string    `json:"battery_temperature"`
	BatteryVoltage     string    `json:"battery_voltage"`
	States             StateBits `json:"states"`
}

// NewHistorySample stores every argument unchanged.
func NewHistorySample(timeMs int64, cmd Command, level, status, health, plugType uint8,
	temperature, voltage string, states StateBits) HistorySample {
	return HistorySample{
		Time:               timeMs,
		Cmd:                cmd,
		BatteryLevel:       level,
		BatteryStatus:      status,
		BatteryHealth:      health,
		BatteryPlugType:    plugType,
		BatteryTemperature: temperature,
		BatteryVoltage:     voltage,
		States:             states,
	}
}

// TimeString renders the raw, non-normalized time as HH:MM:SS.
func (s HistorySample) TimeString() string {
	return FormatClock(s.Time)
}

func (s HistorySample) Charging() bool      { return s.States.Has(FlagBatteryPlugged) }
func (s HistorySample) ScreenOn() bool      { return s.States.Has(FlagScreenOn) }
func (s HistorySample) WakeLock() bool      { return s.States.Has(FlagWakeLock) }
func (s HistorySample) WifiRunning() bool   { return s.States.Has(FlagWifiRunning) }
func (s HistorySample) GPSOn() bool         { return s.States.Has(FlagGPSOn) }
func (s HistorySample) PhoneInCall() bool   { return s.States.Has(FlagPhoneInCall) }
func (s HistorySample) PhoneScanning() bool { return s.States.Has(FlagPhoneScanning) }
func (s HistorySample) BluetoothOn() bool   { return s.States.Has(FlagBluetoothOn) }

func (s HistorySample) String() string {
	return fmt.Sprintf("HistorySample[time=%s cmd=%s level=%d status=%d health=%d plug=%d temp=%s volt=%s states=%s]",
		s.TimeString(), s.Cmd, s.BatteryLevel, s.BatteryStatus, s.BatteryHealth,
		s.BatteryPlugType, s.BatteryTemperature, s.BatteryVoltage, s.States)
}

// NormalizedSample is a HistorySample with a wall-clock offset applied.
// It is produced by Normalize and never modified afterwards.
type NormalizedSample struct {
	HistorySample
	Offset int64 `json:"offset_ms"`
}

// Normalize returns s aligned by offset milliseconds. s is not modified.
func Normalize(s HistorySample, offset int64) NormalizedSample {
	return NormalizedSample{HistorySample: s, Offset: offset}
}

// NormalizedTime is Time + Offset in milliseconds.
func (n NormalizedSample) NormalizedTime() int64 {
	return n.Time + n.Offset
}

// NormalizedTimeString renders the normalized time as HH:MM:SS.mmm.
func (n NormalizedSample) NormalizedTimeString() string {
	return FormatClockMillis(n.NormalizedTime())
}

// AlignmentOffset returns the offset that maps the last sample onto now.
// samples must be in chronological order. An empty set yields 0.
func AlignmentOffset(samples []HistorySample, now time.Time) int64 {
	if len(samples) == 0 {
		return 0
	}
	return now.UnixMilli() - samples[len(samples)-1].Time
}

// NormalizeAll applies the same offset to every sample, preserving order
// and the deltas between samples.
func NormalizeAll(samples []HistorySample, offset int64) []NormalizedSample {
	out := make([]NormalizedSample, len(samples))
	for i, s := range samples {
		out[i] = Normalize(s, offset)
	}
	return out
}

// AlignToWallClock normalizes samples so the most recent one lands on now.
func AlignToWallClock(samples []HistorySample, now time.Time) []NormalizedSample {
	return NormalizeAll(samples, AlignmentOffset(samples, now))
}

// FormatClock renders milliseconds since the epoch as a 24h UTC HH:MM:SS.
func FormatClock(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(clockLayout)
}

// FormatClockMillis is FormatClock with millisecond digits.
func FormatClockMillis(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(clockLayoutMsec)
}
