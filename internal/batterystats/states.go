package batterystats

import (
	"fmt"
	"strings"
)

// StateBits is the packed state word of a BatteryStats history entry.
type StateBits uint32

// StateFlag is a single-bit flag inside StateBits.
type StateFlag uint32

// Single-bit flags, from BatteryStats.HistoryItem.STATE_*_FLAG.
const (
	FlagSensorOn        StateFlag = 1 << 16
	FlagWakeLock        StateFlag = 1 << 17
	FlagVideoOn         StateFlag = 1 << 18
	FlagAudioOn         StateFlag = 1 << 19
	FlagBluetoothOn     StateFlag = 1 << 20
	FlagWifiMulticastOn StateFlag = 1 << 21
	FlagWifiScanLock    StateFlag = 1 << 22
	FlagWifiFullLock    StateFlag = 1 << 23
	FlagWifiRunning     StateFlag = 1 << 24
	FlagWifiOn          StateFlag = 1 << 25
	FlagPhoneScanning   StateFlag = 1 << 26
	FlagPhoneInCall     StateFlag = 1 << 27
	FlagGPSOn           StateFlag = 1 << 28
	FlagScreenOn        StateFlag = 1 << 29
	FlagBatteryPlugged  StateFlag = 1 << 30
)

// MostInterestingStates is the mask of flags listed by the compact sample view.
const MostInterestingStates = FlagBatteryPlugged | FlagScreenOn | FlagGPSOn | FlagPhoneInCall

// 4-bit sub-fields in the low half of the state word.
const (
	brightnessMask      = 0x000f
	brightnessShift     = 0
	signalStrengthMask  = 0x00f0
	signalStrengthShift = 4
	phoneStateMask      = 0x0f00
	phoneStateShift     = 8
	dataConnectionMask  = 0xf000
	dataConnectionShift = 12
)

// flagNames lists every flag in bit order. It is the single source for
// String, Flags and ParseStateFlag.
var flagNames = []struct {
	flag StateFlag
	name string
}{
	{FlagSensorOn, "sensor_on"},
	{FlagWakeLock, "wake_lock"},
	{FlagVideoOn, "video_on"},
	{FlagAudioOn, "audio_on"},
	{FlagBluetoothOn, "bluetooth_on"},
	{FlagWifiMulticastOn, "wifi_multicast_on"},
	{FlagWifiScanLock, "wifi_scan_lock"},
	{FlagWifiFullLock, "wifi_full_lock"},
	{FlagWifiRunning, "wifi_running"},
	{FlagWifiOn, "wifi_on"},
	{FlagPhoneScanning, "phone_scanning"},
	{FlagPhoneInCall, "phone_in_call"},
	{FlagGPSOn, "gps_on"},
	{FlagScreenOn, "screen_on"},
	{FlagBatteryPlugged, "battery_plugged"},
}

// AllFlags returns every known flag in ascending bit order.
func AllFlags() []StateFlag {
	flags := make([]StateFlag, len(flagNames))
	for i, f := range flagNames {
		flags[i] = f.flag
	}
	return flags
}

func (f StateFlag) String() string {
	for _, fn := range flagNames {
		if fn.flag == f {
			return fn.name
		}
	}
	return fmt.Sprintf("flag(0x%08x)", uint32(f))
}

// ParseStateFlag looks up a flag by its snake_case name.
func ParseStateFlag(name string) (StateFlag, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for _, fn := range flagNames {
		if fn.name == name {
			return fn.flag, true
		}
	}
	return 0, false
}

// Has reports whether flag is set.
func (b StateBits) Has(flag StateFlag) bool {
	return uint32(b)&uint32(flag) != 0
}

// Flags returns the known flags set in b, in ascending bit order.
func (b StateBits) Flags() []StateFlag {
	var set []StateFlag
	for _, fn := range flagNames {
		if b.Has(fn.flag) {
			set = append(set, fn.flag)
		}
	}
	return set
}

// Brightness is the screen brightness bin (SCREEN_BRIGHTNESS_*).
func (b StateBits) Brightness() uint8 {
	return uint8((uint32(b) & brightnessMask) >> brightnessShift)
}

// SignalStrength is the phone signal strength bin (SIGNAL_STRENGTH_*).
func (b StateBits) SignalStrength() uint8 {
	return uint8((uint32(b) & signalStrengthMask) >> signalStrengthShift)
}

// PhoneState is the telephony service state (ServiceState.STATE_*).
func (b StateBits) PhoneState() uint8 {
	return uint8((uint32(b) & phoneStateMask) >> phoneStateShift)
}

// DataConnection is the mobile data connection type (DATA_CONNECTION_*).
func (b StateBits) DataConnection() uint8 {
	return uint8((uint32(b) & dataConnectionMask) >> dataConnectionShift)
}

// Interesting returns the set flags that are also in MostInterestingStates.
func (b StateBits) Interesting() []StateFlag {
	return StateBits(uint32(b) & uint32(MostInterestingStates)).Flags()
}

func (b StateBits) String() string {
	names := make([]string, 0, len(flagNames))
	for _, f := range b.Flags() {
		names = append(names, f.String())
	}
	return fmt.Sprintf("0x%08x[%s]", uint32(b), strings.Join(names, ","))
}
