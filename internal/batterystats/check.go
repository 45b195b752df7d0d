package batterystats

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrMalformedSample marks input that fails CheckSample or CheckWakelock.
var ErrMalformedSample = errors.New("malformed sample")

// CheckSample reports values outside what the platform emits. Decoding
// never depends on it: a sample that fails the check decodes the same way.
func CheckSample(s HistorySample) error {
	if s.Cmd > CmdOverflow {
		return fmt.Errorf("%w: unknown command %d", ErrMalformedSample, uint8(s.Cmd))
	}
	if s.BatteryLevel > 100 {
		return fmt.Errorf("%w: battery level %d out of range", ErrMalformedSample, s.BatteryLevel)
	}
	if err := checkDecimal("temperature", s.BatteryTemperature); err != nil {
		return err
	}
	return checkDecimal("voltage", s.BatteryVoltage)
}

// CheckWakelock rejects negative durations.
func CheckWakelock(w WakelockRecord) error {
	if w.DurationMs < 0 {
		return fmt.Errorf("%w: wakelock %q has negative duration %d", ErrMalformedSample, w.Name, w.DurationMs)
	}
	return nil
}

func checkDecimal(field, text string) error {
	if _, err := strconv.ParseFloat(text, 64); err != nil {
		return fmt.Errorf("%w: %s %q is not a number", ErrMalformedSample, field, text)
	}
	return nil
}
