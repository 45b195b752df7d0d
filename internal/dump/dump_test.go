package dump

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/cptspacemanspiff/battery-history/internal/batterystats"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeDump(t *testing.T, lines ...string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "history.jsonl")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("write dump: %v", err)
	}
	return path
}

func TestLoad_HistoryWakelocksAndMeta(t *testing.T) {
	path := writeDump(t,
		`{"kind":"meta","captured_at_ms":1700000000000}`,
		`{"kind":"history","time":1000,"cmd":0,"level":50,"status":2,"health":2,"plug":1,"temp":"25.0","volt":"3700","states":1073872896}`,
		``,
		`{"kind":"history","time":2000,"cmd":1,"level":49,"status":3,"health":2,"plug":0,"temp":24.50,"volt":3650,"states":0}`,
		`{"kind":"wakelock","type":0,"name":"alarm","duration_ms":42}`,
	)

	snap, err := Load(discardLogger(), path, Options{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	wantHistory := []batterystats.HistorySample{
		batterystats.NewHistorySample(1000, batterystats.CmdUpdate, 50, 2, 2, 1, "25.0", "3700", 0x40020000),
		batterystats.NewHistorySample(2000, batterystats.CmdStart, 49, 3, 2, 0, "24.50", "3650", 0),
	}
	if !reflect.DeepEqual(snap.History, wantHistory) {
		t.Fatalf("History mismatch\n got: %#v\nwant: %#v", snap.History, wantHistory)
	}
	wantWakelocks := []batterystats.WakelockRecord{{Type: batterystats.WakeTypePartial, Name: "alarm", DurationMs: 42}}
	if !reflect.DeepEqual(snap.Wakelocks, wantWakelocks) {
		t.Fatalf("Wakelocks mismatch\n got: %#v\nwant: %#v", snap.Wakelocks, wantWakelocks)
	}
	if !snap.CapturedAt.Equal(time.UnixMilli(1700000000000)) {
		t.Fatalf("CapturedAt = %v", snap.CapturedAt)
	}
	if got := snap.AlignTime(time.Unix(5, 0)); !got.Equal(snap.CapturedAt) {
		t.Fatalf("AlignTime() = %v, want CapturedAt", got)
	}
}

func TestLoad_NegativeStatesWord(t *testing.T) {
	path := writeDump(t, `{"kind":"history","time":1,"temp":"1","volt":"1","states":-1}`)

	snap, err := Load(discardLogger(), path, Options{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if snap.History[0].States != 0xffffffff {
		t.Fatalf("States = %#x, want 0xffffffff", uint32(snap.History[0].States))
	}
}

func TestLoad_LenientSkipsMalformed(t *testing.T) {
	path := writeDump(t,
		`{not json}`,
		`{"kind":"battery"}`,
		`{"kind":"history","time":10,"level":150,"temp":"x","volt":"3700","states":0}`,
		`{"kind":"history","time":5,"temp":"20","volt":"3700","states":0}`,
		`{"kind":"wakelock","name":"neg","duration_ms":-3}`,
	)

	snap, err := Load(discardLogger(), path, Options{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(snap.History) != 2 {
		t.Fatalf("len(History) = %d, want 2 (suspicious entries are kept)", len(snap.History))
	}
	if snap.History[0].BatteryLevel != 150 || snap.History[0].BatteryTemperature != "x" {
		t.Fatalf("History[0] = %#v, want verbatim values", snap.History[0])
	}
	if len(snap.Wakelocks) != 1 || snap.Wakelocks[0].DurationMs != -3 {
		t.Fatalf("Wakelocks = %#v", snap.Wakelocks)
	}
	if got := snap.AlignTime(time.Unix(5, 0)); !got.Equal(snap.ModTime) {
		t.Fatalf("AlignTime() = %v, want file mod time %v without meta line", got, snap.ModTime)
	}
}

func TestLoad_AlignTimeFallsBackToModTime(t *testing.T) {
	path := writeDump(t, `{"kind":"history","time":1000,"temp":"1","volt":"1"}`)
	written := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	if err := os.Chtimes(path, written, written); err != nil {
		t.Fatalf("Chtimes: %v", err)
	}

	for _, now := range []time.Time{written.Add(time.Minute), written.Add(8 * time.Hour)} {
		snap, err := Load(discardLogger(), path, Options{})
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if got := snap.AlignTime(now); !got.Equal(written) {
			t.Fatalf("AlignTime(%v) = %v, want %v", now, got, written)
		}
	}

	var empty Snapshot
	if got := empty.AlignTime(time.Unix(5, 0)); !got.Equal(time.Unix(5, 0)) {
		t.Fatalf("AlignTime() on empty snapshot = %v, want now", got)
	}
}

func TestLoad_SignedByteFields(t *testing.T) {
	path := writeDump(t,
		`{"kind":"history","time":1,"cmd":2,"level":-1,"status":-128,"health":200,"plug":-1,"temp":"1","volt":"1"}`,
		`{"kind":"history","time":2,"plug":300,"temp":"1","volt":"1"}`,
	)

	snap, err := Load(discardLogger(), path, Options{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(snap.History) != 1 {
		t.Fatalf("len(History) = %d, want 1 (out-of-range byte skipped)", len(snap.History))
	}
	got := snap.History[0]
	if got.Cmd != batterystats.CmdOverflow || got.BatteryLevel != 0xff || got.BatteryStatus != 0x80 ||
		got.BatteryHealth != 200 || got.BatteryPlugType != 0xff {
		t.Fatalf("History[0] = %#v, want byte fields as unsigned bits", got)
	}
}

func TestLoad_LenientKeepsOutOfOrderHistory(t *testing.T) {
	path := writeDump(t,
		`{"kind":"history","time":1000,"temp":"1","volt":"1"}`,
		`{"kind":"history","time":9000,"temp":"1","volt":"1"}`,
		`{"kind":"history","time":5000,"temp":"1","volt":"1"}`,
		`{"kind":"history","time":7000,"temp":"1","volt":"1"}`,
	)

	snap, err := Load(discardLogger(), path, Options{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	var times []int64
	for _, s := range snap.History {
		times = append(times, s.Time)
	}
	if want := []int64{1000, 9000, 5000, 7000}; !reflect.DeepEqual(times, want) {
		t.Fatalf("History times = %v, want file order %v", times, want)
	}

	if _, err := Load(discardLogger(), path, Options{Strict: true}); !errors.Is(err, batterystats.ErrMalformedSample) {
		t.Fatalf("strict Load() error = %v, want ErrMalformedSample", err)
	}
}

func TestLoad_StrictRejects(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
	}{
		{name: "bad json", lines: []string{`{not json}`}},
		{name: "unknown kind", lines: []string{`{"kind":"battery"}`}},
		{name: "level out of range", lines: []string{`{"kind":"history","level":101,"temp":"1","volt":"1"}`}},
		{name: "bool temperature", lines: []string{`{"kind":"history","temp":true,"volt":"1"}`}},
		{name: "out of order", lines: []string{
			`{"kind":"history","time":10,"temp":"1","volt":"1"}`,
			`{"kind":"history","time":9,"temp":"1","volt":"1"}`,
		}},
		{name: "negative wakelock", lines: []string{`{"kind":"wakelock","name":"w","duration_ms":-1}`}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeDump(t, tt.lines...)
			_, err := Load(discardLogger(), path, Options{Strict: true})
			if !errors.Is(err, batterystats.ErrMalformedSample) {
				t.Fatalf("Load() error = %v, want ErrMalformedSample", err)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(discardLogger(), filepath.Join(t.TempDir(), "nope.jsonl"), Options{})
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("Load() error = %v, want not-exist", err)
	}
}

func TestLoad_LineTooLong(t *testing.T) {
	path := writeDump(t, `{"kind":"wakelock","name":"`+strings.Repeat("x", 200)+`"}`)
	if _, err := Load(discardLogger(), path, Options{MaxLineBytes: 64}); err == nil {
		t.Fatal("Load() error = nil, want token too long")
	}
}
