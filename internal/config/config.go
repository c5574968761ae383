package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/danmuck/z21lan/internal/protocol/session"
	"github.com/danmuck/z21lan/internal/station"
)

var ErrInvalid = errors.New("config: invalid")

// Config is the resolved z21d configuration.
type Config struct {
	Listen      string
	AdminAddr   string
	AdminToken  string
	CorsOrigins []string
	Station     station.Config
	Store       StoreConfig
	Layout      LayoutConfig
}

type StoreConfig struct {
	Driver string
	Path   string
}

type LayoutConfig struct {
	Enabled           bool
	TelemetryInterval time.Duration
}

type fileConfig struct {
	Listen      string      `toml:"listen" yaml:"listen"`
	AdminAddr   string      `toml:"admin_addr" yaml:"admin_addr"`
	AdminToken  string      `toml:"admin_token" yaml:"admin_token"`
	CorsOrigins []string    `toml:"cors_origins" yaml:"cors_origins"`
	Station     stationFile `toml:"station" yaml:"station"`
	Store       storeFile   `toml:"store" yaml:"store"`
	Layout      layoutFile  `toml:"layout" yaml:"layout"`
}

type stationFile struct {
	SerialNumber    uint32 `toml:"serial_number" yaml:"serial_number"`
	HardwareType    uint32 `toml:"hardware_type" yaml:"hardware_type"`
	FirmwareVersion uint16 `toml:"firmware_version" yaml:"firmware_version"`
	MaxClients      int    `toml:"max_clients" yaml:"max_clients"`
	ClientLiveness  uint8  `toml:"client_liveness" yaml:"client_liveness"`
	TickInterval    string `toml:"tick_interval" yaml:"tick_interval"`
	Eviction        string `toml:"eviction" yaml:"eviction"`
	VerifyChecksum  bool   `toml:"verify_checksum" yaml:"verify_checksum"`
}

type storeFile struct {
	Driver string `toml:"driver" yaml:"driver"`
	Path   string `toml:"path" yaml:"path"`
}

type layoutFile struct {
	Enabled           bool   `toml:"enabled" yaml:"enabled"`
	TelemetryInterval string `toml:"telemetry_interval" yaml:"telemetry_interval"`
}

// definedFunc reports whether a dotted key path was present in the file.
type definedFunc func(key ...string) bool

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Listen:  ":21105",
		Station: station.DefaultConfig(),
		Store:   StoreConfig{Driver: "memory"},
		Layout:  LayoutConfig{Enabled: true, TelemetryInterval: 5 * time.Second},
	}
}

// Load reads a TOML file, or YAML for .yaml/.yml, over Default and validates
// the result.
func Load(path string) (Config, error) {
	var raw fileConfig
	var defined definedFunc
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		d, err := decodeYAML(path, &raw)
		if err != nil {
			return Config{}, err
		}
		defined = d
	default:
		meta, err := toml.DecodeFile(path, &raw)
		if err != nil {
			return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return Config{}, fmt.Errorf("%w: unknown key %q in %s", ErrInvalid, undecoded[0].String(), path)
		}
		defined = meta.IsDefined
	}

	cfg, err := overlay(Default(), raw, defined)
	if err != nil {
		return Config{}, err
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeYAML(path string, out *fileConfig) (definedFunc, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	if len(root.Content) == 0 {
		return func(...string) bool { return false }, nil
	}
	if err := root.Decode(out); err != nil {
		return nil, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	return yamlDefined(root.Content[0]), nil
}

func yamlDefined(doc *yaml.Node) definedFunc {
	return func(keys ...string) bool {
		n := doc
		for _, key := range keys {
			if n.Kind != yaml.MappingNode {
				return false
			}
			var next *yaml.Node
			for i := 0; i+1 < len(n.Content); i += 2 {
				if n.Content[i].Value == key {
					next = n.Content[i+1]
					break
				}
			}
			if next == nil {
				return false
			}
			n = next
		}
		return true
	}
}

func overlay(cfg Config, raw fileConfig, defined definedFunc) (Config, error) {
	if defined("listen") {
		cfg.Listen = strings.TrimSpace(raw.Listen)
	}
	if defined("admin_addr") {
		cfg.AdminAddr = strings.TrimSpace(raw.AdminAddr)
	}
	if defined("admin_token") {
		cfg.AdminToken = strings.TrimSpace(raw.AdminToken)
	}
	if defined("cors_origins") {
		cfg.CorsOrigins = normalizeOrigins(raw.CorsOrigins)
	}

	st := &cfg.Station
	if defined("station", "serial_number") {
		st.SerialNumber = raw.Station.SerialNumber
	}
	if defined("station", "hardware_type") {
		st.HardwareType = raw.Station.HardwareType
	}
	if defined("station", "firmware_version") {
		st.FirmwareVersion = raw.Station.FirmwareVersion
	}
	if defined("station", "max_clients") {
		st.Session.Capacity = raw.Station.MaxClients
	}
	if defined("station", "client_liveness") {
		st.Session.Liveness = raw.Station.ClientLiveness
	}
	if defined("station", "tick_interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Station.TickInterval))
		if err != nil {
			return Config{}, fmt.Errorf("parse station.tick_interval: %w", err)
		}
		st.Session.TickInterval = d
	}
	if defined("station", "eviction") {
		st.Session.Eviction = session.EvictionPolicy(strings.ToLower(strings.TrimSpace(raw.Station.Eviction)))
	}
	if defined("station", "verify_checksum") {
		st.VerifyChecksum = raw.Station.VerifyChecksum
	}

	if defined("store", "driver") {
		cfg.Store.Driver = strings.ToLower(strings.TrimSpace(raw.Store.Driver))
	}
	if defined("store", "path") {
		cfg.Store.Path = strings.TrimSpace(raw.Store.Path)
	}

	if defined("layout", "enabled") {
		cfg.Layout.Enabled = raw.Layout.Enabled
	}
	if defined("layout", "telemetry_interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Layout.TelemetryInterval))
		if err != nil {
			return Config{}, fmt.Errorf("parse layout.telemetry_interval: %w", err)
		}
		cfg.Layout.TelemetryInterval = d
	}
	return cfg, nil
}

func Validate(cfg Config) error {
	if strings.TrimSpace(cfg.Listen) == "" {
		return fmt.Errorf("%w: listen is required", ErrInvalid)
	}
	if err := cfg.Station.Session.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	switch cfg.Store.Driver {
	case "memory":
	case "sqlite":
		if cfg.Store.Path == "" {
			return fmt.Errorf("%w: store.path required for sqlite", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown store.driver %q", ErrInvalid, cfg.Store.Driver)
	}
	if cfg.Layout.Enabled && cfg.Layout.TelemetryInterval <= 0 {
		return fmt.Errorf("%w: layout.telemetry_interval must be positive", ErrInvalid)
	}
	return nil
}

func normalizeOrigins(in []string) []string {
	out := make([]string, 0, len(in))
	for _, origin := range in {
		v := strings.TrimSpace(origin)
		if v == "" {
			continue
		}
		out = append(out, v)
	}
	return out
}
