// Package dump reads the JSONL hand-off file written by a battery-stats
// reader: one history entry, wakelock record or meta line per line.
package dump

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/cptspacemanspiff/battery-history/internal/batterystats"
)

const (
	kindHistory  = "history"
	kindWakelock = "wakelock"
	kindMeta     = "meta"

	DefaultMaxLineBytes = 64 * 1024
)

// Options controls how strictly a dump is read.
type Options struct {
	// Strict fails the load on the first malformed line instead of
	// skipping it, and applies batterystats.CheckSample to every entry.
	Strict       bool
	MaxLineBytes int
}

// Snapshot is the raw content of one dump, in file order. Lenient loads may
// leave History out of time order; history.Build reorders it.
type Snapshot struct {
	History   []batterystats.HistorySample
	Wakelocks []batterystats.WakelockRecord
	// CapturedAt is when the reader queried the stats; zero if the dump
	// carries no meta line.
	CapturedAt time.Time
	// ModTime is the dump file's modification time when it was opened.
	ModTime time.Time
}

// AlignTime returns the wall-clock instant the newest history sample maps
// to: the meta capture time, else the file's modification time, else now.
// The result depends only on the dump, so reloading an unchanged file
// yields the same alignment.
func (s *Snapshot) AlignTime(now time.Time) time.Time {
	switch {
	case !s.CapturedAt.IsZero():
		return s.CapturedAt
	case !s.ModTime.IsZero():
		return s.ModTime
	default:
		return now
	}
}

// line is the union of every record kind. States is signed so dumps
// carrying Java ints with the top bit set still decode; the byte-sized
// fields are signed for the same reason and also accept 128..255.
type line struct {
	Kind string `json:"kind"`

	Time   int64       `json:"time"`
	Cmd    int16       `json:"cmd"`
	Level  int16       `json:"level"`
	Status int16       `json:"status"`
	Health int16       `json:"health"`
	Plug   int16       `json:"plug"`
	Temp   decimalText `json:"temp"`
	Volt   decimalText `json:"volt"`
	States int64       `json:"states"`

	Type       int    `json:"type"`
	Name       string `json:"name"`
	DurationMs int64  `json:"duration_ms"`

	CapturedAtMs int64 `json:"captured_at_ms"`
}

// decimalText keeps the exact source text of a JSON string or number.
type decimalText string

func (d *decimalText) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*d = decimalText(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("decimal must be a string or number: %w", err)
	}
	*d = decimalText(n)
	return nil
}

// Load reads the dump at path.
func Load(logger *slog.Logger, path string, opts Options) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dump: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat dump: %w", err)
	}

	maxLine := opts.MaxLineBytes
	if maxLine <= 0 {
		maxLine = DefaultMaxLineBytes
	}

	r := &reader{logger: logger, strict: opts.Strict, snap: &Snapshot{ModTime: info.ModTime()}}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, min(maxLine, DefaultMaxLineBytes)), maxLine)
	n := 0
	for scanner.Scan() {
		n++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		if err := r.handle(n, raw); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read dump: %w", err)
	}

	logger.Debug("dump loaded",
		"path", path,
		"history", len(r.snap.History),
		"wakelocks", len(r.snap.Wakelocks),
		"skipped", r.skipped)
	return r.snap, nil
}

type reader struct {
	logger   *slog.Logger
	strict   bool
	snap     *Snapshot
	skipped  int
	lastTime int64
}

// reject fails the load in strict mode and skips the line otherwise.
func (r *reader) reject(n int, err error) error {
	if r.strict {
		return fmt.Errorf("line %d: %w", n, err)
	}
	r.skipped++
	r.logger.Warn("skip malformed line", "line", n, "err", err)
	return nil
}

func (r *reader) handle(n int, raw []byte) error {
	var l line
	if err := json.Unmarshal(raw, &l); err != nil {
		return r.reject(n, fmt.Errorf("%w: %v", batterystats.ErrMalformedSample, err))
	}

	switch l.Kind {
	case kindHistory:
		for _, v := range []int16{l.Cmd, l.Level, l.Status, l.Health, l.Plug} {
			if v < -128 || v > 255 {
				return r.reject(n, fmt.Errorf("%w: byte field %d out of range", batterystats.ErrMalformedSample, v))
			}
		}
		s := batterystats.NewHistorySample(l.Time, batterystats.Command(byteValue(l.Cmd)),
			byteValue(l.Level), byteValue(l.Status), byteValue(l.Health), byteValue(l.Plug),
			string(l.Temp), string(l.Volt), batterystats.StateBits(uint32(l.States)))
		if err := batterystats.CheckSample(s); err != nil {
			if r.strict {
				return fmt.Errorf("line %d: %w", n, err)
			}
			r.logger.Warn("suspicious history entry kept", "line", n, "err", err)
		}
		if len(r.snap.History) > 0 && s.Time < r.lastTime {
			err := fmt.Errorf("%w: time %d before previous %d", batterystats.ErrMalformedSample, s.Time, r.lastTime)
			if r.strict {
				return fmt.Errorf("line %d: %w", n, err)
			}
			r.logger.Warn("history out of order, kept for reordering", "line", n, "err", err)
		}
		if len(r.snap.History) == 0 || s.Time > r.lastTime {
			r.lastTime = s.Time
		}
		r.snap.History = append(r.snap.History, s)
	case kindWakelock:
		w := batterystats.NewWakelockRecord(batterystats.WakeType(l.Type), l.Name, l.DurationMs)
		if err := batterystats.CheckWakelock(w); err != nil {
			if r.strict {
				return fmt.Errorf("line %d: %w", n, err)
			}
			r.logger.Warn("suspicious wakelock kept", "line", n, "err", err)
		}
		r.snap.Wakelocks = append(r.snap.Wakelocks, w)
	case kindMeta:
		if l.CapturedAtMs > 0 {
			r.snap.CapturedAt = time.UnixMilli(l.CapturedAtMs)
		}
	default:
		return r.reject(n, fmt.Errorf("%w: unknown kind %q", batterystats.ErrMalformedSample, l.Kind))
	}
	return nil
}

// byteValue reinterprets a Java byte, signed or not, as its unsigned bits.
func byteValue(v int16) uint8 {
	return uint8(v)
}
