package batterystats

import (
	"fmt"
	"sort"
)

// WakeType is the BatteryStats wakelock category.
type WakeType int

const (
	WakeTypePartial WakeType = 0
	WakeTypeFull    WakeType = 1
	WakeTypeWindow  WakeType = 2
)

func (t WakeType) String() string {
	switch t {
	case WakeTypePartial:
		return "partial"
	case WakeTypeFull:
		return "full"
	case WakeTypeWindow:
		return "window"
	}
	return fmt.Sprintf("type(%d)", int(t))
}

// WakelockRecord is the total time a holder kept a wakelock of one type.
type WakelockRecord struct {
	Type       WakeType `json:"type"`
	Name       string   `json:"name"`
	DurationMs int64    `json:"duration_ms"`
}

// NewWakelockRecord stores every argument unchanged.
func NewWakelockRecord(wakeType WakeType, name string, durationMs int64) WakelockRecord {
	return WakelockRecord{Type: wakeType, Name: name, DurationMs: durationMs}
}

func (w WakelockRecord) String() string {
	return fmt.Sprintf("WakelockRecord[type=%s name=%s duration=%dms]", w.Type, w.Name, w.DurationMs)
}

// AggregateWakelocks merges records sharing type and name, summing their
// durations. The result keeps first-seen order.
func AggregateWakelocks(records []WakelockRecord) []WakelockRecord {
	type key struct {
		t    WakeType
		name string
	}
	index := make(map[key]int, len(records))
	var out []WakelockRecord
	for _, r := range records {
		k := key{r.Type, r.Name}
		if i, ok := index[k]; ok {
			out[i].DurationMs += r.DurationMs
			continue
		}
		index[k] = len(out)
		out = append(out, r)
	}
	return out
}

// SortWakelocksByDuration sorts records longest first, ties by name.
func SortWakelocksByDuration(records []WakelockRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].DurationMs != records[j].DurationMs {
			return records[i].DurationMs > records[j].DurationMs
		}
		return records[i].Name < records[j].Name
	})
}
