package batterystats

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHistorySample_Echo(t *testing.T) {
	s := NewHistorySample(1000, CmdStart, 87, 3, 2, 1, "25.10", "3700", 0x12345678)

	assert := assert.New(t)
	assert.Equal(int64(1000), s.Time)
	assert.Equal(CmdStart, s.Cmd)
	assert.Equal(uint8(87), s.BatteryLevel)
	assert.Equal(uint8(3), s.BatteryStatus)
	assert.Equal(uint8(2), s.BatteryHealth)
	assert.Equal(uint8(1), s.BatteryPlugType)
	assert.Equal("25.10", s.BatteryTemperature)
	assert.Equal("3700", s.BatteryVoltage)
	assert.Equal(StateBits(0x12345678), s.States)
}

func TestHistorySample_ChargingAndWakeLockScenario(t *testing.T) {
	s := NewHistorySample(1000, CmdUpdate, 50, 2, 2, 1, "25.0", "3700", 0x40020000)

	assert := assert.New(t)
	assert.True(s.Charging())
	assert.False(s.ScreenOn())
	assert.False(s.GPSOn())
	assert.True(s.WakeLock())

	n := Normalize(s, 500)
	assert.Equal(int64(1500), n.NormalizedTime())
	assert.Equal(int64(1000), s.Time, "original sample must be untouched")
}

func TestFlagAccessors_SingleBit(t *testing.T) {
	accessors := []struct {
		name string
		bit  uint
		get  func(HistorySample) bool
	}{
		{"Charging", 30, HistorySample.Charging},
		{"ScreenOn", 29, HistorySample.ScreenOn},
		{"GPSOn", 28, HistorySample.GPSOn},
		{"PhoneInCall", 27, HistorySample.PhoneInCall},
		{"PhoneScanning", 26, HistorySample.PhoneScanning},
		{"WifiRunning", 24, HistorySample.WifiRunning},
		{"BluetoothOn", 20, HistorySample.BluetoothOn},
		{"WakeLock", 17, HistorySample.WakeLock},
	}

	for _, a := range accessors {
		t.Run(a.name, func(t *testing.T) {
			only := HistorySample{States: StateBits(uint32(1) << a.bit)}
			assert.True(t, a.get(only), "bit %d alone", a.bit)

			allButOne := HistorySample{States: StateBits(^(uint32(1) << a.bit))}
			assert.False(t, a.get(allButOne), "every bit except %d", a.bit)
		})
	}
}

func TestFlagAccessors_RandomWords(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 2000; i++ {
		word := r.Uint32()
		s := HistorySample{States: StateBits(word)}
		require.Equal(t, word&(1<<30) != 0, s.Charging(), "word 0x%08x", word)
		require.Equal(t, word&(1<<29) != 0, s.ScreenOn(), "word 0x%08x", word)
		require.Equal(t, word&(1<<28) != 0, s.GPSOn(), "word 0x%08x", word)
		require.Equal(t, word&(1<<27) != 0, s.PhoneInCall(), "word 0x%08x", word)
		require.Equal(t, word&(1<<26) != 0, s.PhoneScanning(), "word 0x%08x", word)
		require.Equal(t, word&(1<<24) != 0, s.WifiRunning(), "word 0x%08x", word)
		require.Equal(t, word&(1<<20) != 0, s.BluetoothOn(), "word 0x%08x", word)
		require.Equal(t, word&(1<<17) != 0, s.WakeLock(), "word 0x%08x", word)
	}
}

func TestNormalize_DefaultsToRawTime(t *testing.T) {
	s := HistorySample{Time: 123456}
	assert.Equal(t, int64(123456), Normalize(s, 0).NormalizedTime())
}

func TestNormalize_TimeStringIgnoresOffset(t *testing.T) {
	s := HistorySample{Time: 3_600_000}
	n := Normalize(s, 90_000)

	assert.Equal(t, "01:00:00", s.TimeString())
	assert.Equal(t, "01:00:00", n.TimeString())
	assert.Equal(t, "01:01:30.000", n.NormalizedTimeString())
}

func TestAlignToWallClock(t *testing.T) {
	samples := []HistorySample{{Time: 100}, {Time: 250}, {Time: 1000}}
	now := time.UnixMilli(50_000)

	offset := AlignmentOffset(samples, now)
	assert.Equal(t, int64(49_000), offset)

	got := AlignToWallClock(samples, now)
	require.Len(t, got, 3)
	assert.Equal(t, int64(49_100), got[0].NormalizedTime())
	assert.Equal(t, int64(49_250), got[1].NormalizedTime())
	assert.Equal(t, now.UnixMilli(), got[2].NormalizedTime())
	assert.Equal(t, int64(150), got[1].NormalizedTime()-got[0].NormalizedTime())
}

func TestAlignmentOffset_Empty(t *testing.T) {
	assert.Equal(t, int64(0), AlignmentOffset(nil, time.Now()))
	assert.Empty(t, AlignToWallClock(nil, time.Now()))
}

func TestFormatClock(t *testing.T) {
	tests := []struct {
		ms        int64
		want      string
		wantMilli string
	}{
		{0, "00:00:00", "00:00:00.000"},
		{1500, "00:00:01", "00:00:01.500"},
		{23*3600_000 + 59*60_000 + 59_999, "23:59:59", "23:59:59.999"},
		{25 * 3600_000, "01:00:00", "01:00:00.000"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatClock(tt.ms))
		assert.Equal(t, tt.wantMilli, FormatClockMillis(tt.ms))
	}
}

func TestCommandString(t *testing.T) {
	assert.Equal(t, "update", CmdUpdate.String())
	assert.Equal(t, "start", CmdStart.String())
	assert.Equal(t, "overflow", CmdOverflow.String())
	assert.Equal(t, "cmd(9)", Command(9).String())
}

func TestHistorySampleString(t *testing.T) {
	s := NewHistorySample(1000, CmdUpdate, 50, 2, 2, 1, "25.0", "3700", 0x40020000)
	assert.Equal(t,
		"HistorySample[time=00:00:01 cmd=update level=50 status=2 health=2 plug=1 temp=25.0 volt=3700 states=0x40020000[wake_lock,battery_plugged]]",
		s.String())
}
