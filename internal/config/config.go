package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

const (
	minMaxLineBytes   = 4096
	maxMaxLineBytes   = 16 << 20
	minMaxRangeHours  = 1
	maxMaxRangeHours  = 8784
	minDebounceMillis = 0
	maxDebounceMillis = 60000
)

type Config struct {
	Dump    DumpConfig    `toml:"dump"`
	Decode  DecodeConfig  `toml:"decode"`
	Service ServiceConfig `toml:"service"`
	Reload  ReloadConfig  `toml:"reload"`
}

type DumpConfig struct {
	Path         string `toml:"path"`
	MaxLineBytes int    `toml:"max_line_bytes"`
}

type DecodeConfig struct {
	Strict bool `toml:"strict"`
}

type ServiceConfig struct {
	BusName       string `toml:"bus_name"`
	MaxRangeHours int    `toml:"max_range_hours"`
}

// ReloadConfig selects what triggers a dump reload besides SIGHUP. OnWake
// covers dumps replaced while the file watcher was unavailable or its
// events were lost across suspend.
type ReloadConfig struct {
	OnWake     bool `toml:"on_wake"`
	OnChange   bool `toml:"on_change"`
	DebounceMs int  `toml:"debounce_ms"`
}

func DefaultConfig() *Config {
	return &Config{
		Dump: DumpConfig{
			Path:         "/var/lib/battery-history/history.jsonl",
			MaxLineBytes: 64 * 1024,
		},
		Service: ServiceConfig{
			BusName:       "io.github.cptspacemanspiff.BatteryHistory",
			MaxRangeHours: 8784,
		},
		Reload: ReloadConfig{
			OnWake:     true,
			OnChange:   true,
			DebounceMs: 500,
		},
	}
}

func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return NormalizeAndValidate(cfg)
}

func NormalizeAndValidate(cfg *Config) (*Config, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}

	sanitized := *cfg

	var err error
	sanitized.Dump.Path, err = sanitizePath("dump.path", sanitized.Dump.Path)
	if err != nil {
		return nil, err
	}
	sanitized.Service.BusName, err = sanitizeBusName("service.bus_name", sanitized.Service.BusName)
	if err != nil {
		return nil, err
	}

	if err := validateRange("dump.max_line_bytes", sanitized.Dump.MaxLineBytes, minMaxLineBytes, maxMaxLineBytes); err != nil {
		return nil, err
	}
	if err := validateRange("service.max_range_hours", sanitized.Service.MaxRangeHours, minMaxRangeHours, maxMaxRangeHours); err != nil {
		return nil, err
	}
	if err := validateRange("reload.debounce_ms", sanitized.Reload.DebounceMs, minDebounceMillis, maxDebounceMillis); err != nil {
		return nil, err
	}

	return &sanitized, nil
}

func Save(path string, cfg *Config) error {
	trimmedPath := strings.TrimSpace(path)
	if trimmedPath == "" {
		return fmt.Errorf("config path must not be empty")
	}

	sanitized, err := NormalizeAndValidate(cfg)
	if err != nil {
		return err
	}

	var data bytes.Buffer
	if err := toml.NewEncoder(&data).Encode(sanitized); err != nil {
		return fmt.Errorf("encode config TOML: %w", err)
	}

	dir := filepath.Dir(trimmedPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".config-*.toml")
	if err != nil {
		return fmt.Errorf("create temp config file: %w", err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		if tmpPath != "" {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data.Bytes()); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("write temp config file: %w", err)
	}
	if err := tmpFile.Chmod(0o644); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("chmod temp config file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp config file: %w", err)
	}
	if err := os.Rename(tmpPath, trimmedPath); err != nil {
		return fmt.Errorf("replace config file: %w", err)
	}
	tmpPath = ""

	return nil
}

func sanitizePath(name, value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", fmt.Errorf("%s must not be empty", name)
	}
	cleaned := filepath.Clean(trimmed)
	if !filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("%s must be an absolute path, got %q", name, value)
	}
	return cleaned, nil
}

// sanitizeBusName accepts a well-known D-Bus name: at least two
// dot-separated elements of [A-Za-z0-9_-], none starting with a digit.
func sanitizeBusName(name, value string) (string, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return "", fmt.Errorf("%s must not be empty", name)
	}
	if len(trimmed) > 255 {
		return "", fmt.Errorf("%s must be at most 255 characters", name)
	}
	parts := strings.Split(trimmed, ".")
	if len(parts) < 2 {
		return "", fmt.Errorf("%s must contain at least two elements, got %q", name, value)
	}
	for _, p := range parts {
		if p == "" || (p[0] >= '0' && p[0] <= '9') {
			return "", fmt.Errorf("%s has an invalid element in %q", name, value)
		}
		for _, r := range p {
			ok := r == '_' || r == '-' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
			if !ok {
				return "", fmt.Errorf("%s has an invalid character %q in %q", name, r, value)
			}
		}
	}
	return trimmed, nil
}

func validateRange(name string, value, min, max int) error {
	if value < min || value > max {
		return fmt.Errorf("%s must be between %d and %d, got %d", name, min, max, value)
	}

	return nil
}
