// Thermalright USB LCD
// Copyright (c) 2026 the-black-eagle (18698554+the-black-eagle@users.noreply.github.com)
// SPDX-License-Identifier: Apache-2.0

// Package config holds the on-disk TOML configuration: device identity and
// handshake tuning, the render service cadence, background selection, and
// the overlay layout (clock, date, labels and the six metric modules).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog/log"

	"github.com/the-black-eagle/Thermalright-usblcd/pkg/helpers/syncutil"
)

const (
	SchemaVersion = 1
	CfgEnv        = "USBLCD_CFG"
	CfgFile       = "config.toml"
)

// Font selects the overlay face for one element. Only size and weight are
// configurable; the embedded Go fonts cover both.
type Font struct {
	Size int  `toml:"size"`
	Bold bool `toml:"bold"`
}

// TextItem is one fixed overlay element: the clock, the date, the custom
// line or a metric label.
type TextItem struct {
	Color   string `toml:"color"`
	Format  string `toml:"format,omitempty"`
	Text    string `toml:"text,omitempty"`
	Font    Font   `toml:"font"`
	X       int    `toml:"x"`
	Y       int    `toml:"y"`
	Enabled bool   `toml:"enabled"`
}

// Module is one of the six metric slots rendered over the background.
type Module struct {
	Metric  string `toml:"metric"`
	Color   string `toml:"color"`
	Font    Font   `toml:"font"`
	X       int    `toml:"x"`
	Y       int    `toml:"y"`
	Enabled bool   `toml:"enabled"`
}

// Device pins the USB identity and the handshake timing. The defaults match
// the vendor driver; they are exposed for unusual hosts, not for discovery.
type Device struct {
	VID                 uint16 `toml:"vid"`
	PID                 uint16 `toml:"pid"`
	HandshakeDeadlineMS int    `toml:"handshake_deadline_ms"`
	HandshakeBackoffMS  int    `toml:"handshake_backoff_ms"`
	Debug               bool   `toml:"debug"`
}

// Service controls the render loop and the system info poll cadence.
type Service struct {
	RefreshIntervalMS int `toml:"refresh_interval_ms"`
	FastPollMS        int `toml:"fast_poll_ms"`
	SlowPollMS        int `toml:"slow_poll_ms"`
}

// Background selects what fills the panel behind the overlay. An animated
// path takes priority over the static image; with neither set a gradient is
// generated.
type Background struct {
	ImagePath    string `toml:"image_path,omitempty"`
	AnimatedPath string `toml:"animated_path,omitempty"`
	Mode         string `toml:"mode"`
	FPS          int    `toml:"fps"`
}

type Values struct {
	Modules      map[string]Module `toml:"module,omitempty"`
	Background   Background        `toml:"background"`
	Time         TextItem          `toml:"time"`
	Date         TextItem          `toml:"date"`
	Custom       TextItem          `toml:"custom"`
	CPULabel     TextItem          `toml:"cpu_label"`
	GPULabel     TextItem          `toml:"gpu_label"`
	Device       Device            `toml:"device"`
	Service      Service           `toml:"service"`
	ConfigSchema int               `toml:"config_schema"`
	DebugLogging bool              `toml:"debug_logging"`
}

func boldFont(size int) Font { return Font{Size: size, Bold: true} }

// BaseDefaults mirrors the vendor tool's stock layout: clock and date across
// the top, CPU row at y=140, GPU row at y=180.
var BaseDefaults = Values{
	ConfigSchema: SchemaVersion,
	Device: Device{
		VID:                 0x0402,
		PID:                 0x3922,
		HandshakeDeadlineMS: 10000,
		HandshakeBackoffMS:  5,
	},
	Service: Service{
		RefreshIntervalMS: 1000,
		FastPollMS:        1000,
		SlowPollMS:        5000,
	},
	Background: Background{
		Mode: "loop",
		FPS:  24,
	},
	Time: TextItem{
		X: 60, Y: 5, Font: boldFont(38), Color: "#FFFFFF", Enabled: true, Format: "12h",
	},
	Date: TextItem{
		X: 85, Y: 60, Font: boldFont(24), Color: "#CCCCCC", Enabled: true, Format: "02-01-2006",
	},
	Custom: TextItem{
		X: 90, Y: 90, Font: boldFont(38), Color: "#00FF00", Text: "LINUX",
	},
	CPULabel: TextItem{
		X: 15, Y: 140, Font: boldFont(20), Color: "#FF6B35", Enabled: true, Text: "CPU",
	},
	GPULabel: TextItem{
		X: 15, Y: 180, Font: boldFont(20), Color: "#35A7FF", Enabled: true, Text: "GPU",
	},
	Modules: map[string]Module{
		"M1": {Metric: "cpu_temp", Enabled: true, Font: boldFont(20), Color: "#FF6B35", X: 70, Y: 140},
		"M2": {Metric: "cpu_percent", Enabled: true, Font: boldFont(20), Color: "#FF6B35", X: 135, Y: 140},
		"M3": {Metric: "cpu_freq", Enabled: true, Font: boldFont(20), Color: "#FF6B35", X: 195, Y: 140},
		"M4": {Metric: "gpu_temp", Enabled: true, Font: boldFont(20), Color: "#35A7FF", X: 70, Y: 180},
		"M5": {Metric: "gpu_usage", Enabled: true, Font: boldFont(20), Color: "#35A7FF", X: 135, Y: 180},
		"M6": {Metric: "gpu_clock", Enabled: true, Font: boldFont(20), Color: "#35A7FF", X: 195, Y: 180},
	},
}

type Instance struct {
	cfgPath  string
	vals     Values
	defaults Values
	mu       syncutil.RWMutex
}

//nolint:gocritic // config struct copied for immutability
func NewConfig(configDir string, defaults Values) (*Instance, error) {
	cfgPath := os.Getenv(CfgEnv)
	if cfgPath != "" {
		log.Debug().Msgf("env config path: %s", cfgPath)
	} else {
		cfgPath = filepath.Join(configDir, CfgFile)
	}

	cfg := Instance{
		mu:       syncutil.RWMutex{},
		cfgPath:  cfgPath,
		vals:     defaults,
		defaults: defaults,
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		log.Info().Msg("saving new default config to disk")

		if err := os.MkdirAll(filepath.Dir(cfgPath), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create config directory: %w", err)
		}
		if err := cfg.Save(); err != nil {
			return nil, err
		}
	}

	if err := cfg.Load(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Instance) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfgPath == "" {
		return errors.New("config path not set")
	}

	data, err := os.ReadFile(c.cfgPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	// Start with defaults, then unmarshal file values on top, so fields not
	// present in the file retain their default values.
	newVals := c.defaults
	newVals.Modules = make(map[string]Module, len(c.defaults.Modules))
	for name, mod := range c.defaults.Modules {
		newVals.Modules[name] = mod
	}
	if err := toml.Unmarshal(data, &newVals); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if newVals.ConfigSchema != SchemaVersion {
		log.Error().Msgf(
			"schema version mismatch: got %d, expecting %d",
			newVals.ConfigSchema,
			SchemaVersion,
		)
		return errors.New("schema version mismatch")
	}

	c.vals = newVals
	return nil
}

func (c *Instance) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cfgPath == "" {
		return errors.New("config path not set")
	}

	c.vals.ConfigSchema = SchemaVersion

	data, err := toml.Marshal(&c.vals)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.cfgPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func (c *Instance) Path() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfgPath
}

func (c *Instance) Device() Device {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Device
}

func (c *Instance) DebugLogging() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.DebugLogging
}

func (c *Instance) SetDebugLogging(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.DebugLogging = enabled
}

// HandshakeDeadline returns the stage-1 deadline as a duration.
func (c *Instance) HandshakeDeadline() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.vals.Device.HandshakeDeadlineMS) * time.Millisecond
}

// HandshakeBackoff returns the stage-1 retry backoff as a duration.
func (c *Instance) HandshakeBackoff() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.vals.Device.HandshakeBackoffMS) * time.Millisecond
}

// RefreshInterval returns the render loop cadence as a duration.
func (c *Instance) RefreshInterval() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.vals.Service.RefreshIntervalMS) * time.Millisecond
}

// PollIntervals returns the fast and slow system info poll cadences.
func (c *Instance) PollIntervals() (fast, slow time.Duration) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return time.Duration(c.vals.Service.FastPollMS) * time.Millisecond,
		time.Duration(c.vals.Service.SlowPollMS) * time.Millisecond
}

func (c *Instance) Background() Background {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Background
}

func (c *Instance) SetBackgroundImage(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Background.ImagePath = path
}

func (c *Instance) SetBackgroundAnimation(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Background.AnimatedPath = path
}

func (c *Instance) TimeItem() TextItem {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Time
}

func (c *Instance) DateItem() TextItem {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Date
}

func (c *Instance) CustomItem() TextItem {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.Custom
}

func (c *Instance) SetCustomText(text string, enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals.Custom.Text = text
	c.vals.Custom.Enabled = enabled
}

// Labels returns the CPU and GPU row labels.
func (c *Instance) Labels() (cpu, gpu TextItem) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.vals.CPULabel, c.vals.GPULabel
}

// NamedModule is a metric slot together with its table key, so callers get a
// stable render order.
type NamedModule struct {
	Name string
	Module
}

// Modules returns the metric slots sorted by name (M1..M6).
func (c *Instance) Modules() []NamedModule {
	c.mu.RLock()
	defer c.mu.RUnlock()

	mods := make([]NamedModule, 0, len(c.vals.Modules))
	for name, mod := range c.vals.Modules {
		mods = append(mods, NamedModule{Name: name, Module: mod})
	}
	sort.Slice(mods, func(i, j int) bool { return mods[i].Name < mods[j].Name })
	return mods
}

// SetModule replaces one metric slot.
func (c *Instance) SetModule(name string, mod Module) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.vals.Modules == nil {
		c.vals.Modules = make(map[string]Module)
	}
	c.vals.Modules[name] = mod
}
