package dbus

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	godbus "github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"github.com/cptspacemanspiff/battery-history/internal/batterystats"
	"github.com/cptspacemanspiff/battery-history/internal/history"
)

const (
	objPath   = "/io/github/cptspacemanspiff/BatteryHistory"
	ifaceName = "io.github.cptspacemanspiff.BatteryHistory"
)

const introspectXML = `
<node>
  <interface name="` + ifaceName + `">
    <method name="GetCurrentState">
      <arg direction="out" type="s" name="json"/>
    </method>
    <method name="GetHistory">
      <arg direction="in" type="x" name="from_ms"/>
      <arg direction="in" type="x" name="to_ms"/>
      <arg direction="out" type="s" name="json"/>
    </method>
    <method name="GetWakelocks">
      <arg direction="out" type="s" name="json"/>
    </method>
    <method name="GetSummary">
      <arg direction="out" type="s" name="json"/>
    </method>
    <method name="DecodeStates">
      <arg direction="in" type="u" name="states"/>
      <arg direction="out" type="s" name="json"/>
    </method>
  </interface>
` + introspect.IntrospectDataString + `
</node>`

// ErrInvalidRange is returned for a history query with a bad time range.
var ErrInvalidRange = errors.New("invalid time range")

// Service exposes the normalized battery history over D-Bus.
type Service struct {
	store    *history.Store
	busName  string
	maxRange time.Duration
}

// NewService creates a new D-Bus service. Queries spanning more than
// maxRange are rejected.
func NewService(store *history.Store, busName string, maxRange time.Duration) *Service {
	return &Service{store: store, busName: busName, maxRange: maxRange}
}

// Export registers the service on the session bus.
func (s *Service) Export() (*godbus.Conn, error) {
	conn, err := godbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}

	if err := conn.Export(s, objPath, ifaceName); err != nil {
		return nil, fmt.Errorf("export object: %w", err)
	}
	if err := conn.Export(introspect.Introspectable(introspectXML), objPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		return nil, fmt.Errorf("export introspection: %w", err)
	}

	reply, err := conn.RequestName(s.busName, godbus.NameFlagDoNotQueue)
	if err != nil {
		return nil, fmt.Errorf("request name: %w", err)
	}
	if reply != godbus.RequestNameReplyPrimaryOwner {
		return nil, fmt.Errorf("name %s already taken", s.busName)
	}

	return conn, nil
}

// sampleView is the JSON shape of one normalized sample.
type sampleView struct {
	TimeMs           int64      `json:"time_ms"`
	NormalizedTimeMs int64      `json:"normalized_time_ms"`
	Time             string     `json:"time"`
	NormalizedTime   string     `json:"normalized_time"`
	Cmd              string     `json:"cmd"`
	BatteryLevel     uint8      `json:"battery_level"`
	BatteryStatus    uint8      `json:"battery_status"`
	BatteryHealth    uint8      `json:"battery_health"`
	BatteryPlugType  uint8      `json:"battery_plug_type"`
	Temperature      string     `json:"battery_temperature"`
	Voltage          string     `json:"battery_voltage"`
	States           statesView `json:"states"`
}

type statesView struct {
	Raw            uint32   `json:"raw"`
	Flags          []string `json:"flags"`
	Brightness     uint8    `json:"brightness"`
	SignalStrength uint8    `json:"signal_strength"`
	PhoneState     uint8    `json:"phone_state"`
	DataConnection uint8    `json:"data_connection"`
}

type wakelockView struct {
	Type       string `json:"type"`
	TypeCode   int    `json:"type_code"`
	Name       string `json:"name"`
	DurationMs int64  `json:"duration_ms"`
}

func newStatesView(b batterystats.StateBits) statesView {
	flags := make([]string, 0, 4)
	for _, f := range b.Flags() {
		flags = append(flags, f.String())
	}
	return statesView{
		Raw:            uint32(b),
		Flags:          flags,
		Brightness:     b.Brightness(),
		SignalStrength: b.SignalStrength(),
		PhoneState:     b.PhoneState(),
		DataConnection: b.DataConnection(),
	}
}

func newSampleView(n batterystats.NormalizedSample) sampleView {
	return sampleView{
		TimeMs:           n.Time,
		NormalizedTimeMs: n.NormalizedTime(),
		Time:             n.TimeString(),
		NormalizedTime:   n.NormalizedTimeString(),
		Cmd:              n.Cmd.String(),
		BatteryLevel:     n.BatteryLevel,
		BatteryStatus:    n.BatteryStatus,
		BatteryHealth:    n.BatteryHealth,
		BatteryPlugType:  n.BatteryPlugType,
		Temperature:      n.BatteryTemperature,
		Voltage:          n.BatteryVoltage,
		States:           newStatesView(n.States),
	}
}

func marshal(v any) (string, *godbus.Error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", godbus.MakeFailedError(err)
	}
	return string(data), nil
}

func (s *Service) validateRange(fromMs, toMs int64) *godbus.Error {
	switch {
	case fromMs < 0:
		return godbus.MakeFailedError(fmt.Errorf("%w: from %d is negative", ErrInvalidRange, fromMs))
	case toMs < fromMs:
		return godbus.MakeFailedError(fmt.Errorf("%w: to %d before from %d", ErrInvalidRange, toMs, fromMs))
	case s.maxRange > 0 && toMs-fromMs > s.maxRange.Milliseconds():
		return godbus.MakeFailedError(fmt.Errorf("%w: span exceeds %s", ErrInvalidRange, s.maxRange))
	}
	return nil
}

// GetCurrentState returns the most recent sample as JSON, or null if none.
func (s *Service) GetCurrentState() (string, *godbus.Error) {
	latest := s.store.LatestSample()
	if latest == nil {
		return marshal(nil)
	}
	return marshal(newSampleView(*latest))
}

// GetHistory returns samples whose normalized time is within [fromMs, toMs].
func (s *Service) GetHistory(fromMs, toMs int64) (string, *godbus.Error) {
	if err := s.validateRange(fromMs, toMs); err != nil {
		return "", err
	}
	snap := s.store.Snapshot()
	samples := snap.SamplesInRange(fromMs, toMs)
	views := make([]sampleView, len(samples))
	for i, smp := range samples {
		views[i] = newSampleView(smp)
	}
	var alignedAt int64
	if !snap.AlignedAt.IsZero() {
		alignedAt = snap.AlignedAt.UnixMilli()
	}
	return marshal(map[string]any{
		"offset_ms":     snap.Offset,
		"aligned_at_ms": alignedAt,
		"samples":       views,
	})
}

// GetWakelocks returns the aggregated wakelocks, longest first.
func (s *Service) GetWakelocks() (string, *godbus.Error) {
	records := s.store.Wakelocks()
	views := make([]wakelockView, len(records))
	for i, r := range records {
		views[i] = wakelockView{Type: r.Type.String(), TypeCode: int(r.Type), Name: r.Name, DurationMs: r.DurationMs}
	}
	return marshal(views)
}

// GetSummary returns per-flag sample counts.
func (s *Service) GetSummary() (string, *godbus.Error) {
	return marshal(s.store.Summary())
}

// DecodeStates decodes an arbitrary state word.
func (s *Service) DecodeStates(states uint32) (string, *godbus.Error) {
	return marshal(newStatesView(batterystats.StateBits(states)))
}
