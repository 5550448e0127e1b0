// Thermalright USB LCD
// Copyright (c) 2026 the-black-eagle (18698554+the-black-eagle@users.noreply.github.com)
// SPDX-License-Identifier: Apache-2.0

package sysinfo

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// GPUStats is one sample of GPU telemetry. A value of -1 means the sensor
// exists but could not be read this round.
type GPUStats struct {
	Temperature float64
	Usage       float64
	Clock       float64
	Fan         float64
}

// GPU is a telemetry capability. Hosts without a readable GPU get an
// implementation that reports unavailable instead of a nil value, so callers
// never branch on presence of the object itself.
type GPU interface {
	Available() bool
	Name() string
	Stats() (GPUStats, error)
}

// DetectGPU probes sysfs for a readable GPU. root is the filesystem prefix
// ("/" on a real host; tests point it at a fixture tree). NVIDIA cards are
// recognized but report unavailable: their telemetry lives behind the
// proprietary NVML library, not sysfs.
func DetectGPU(root string) GPU {
	if root == "" {
		root = "/"
	}

	if hwmon := findHwmon(root, "amdgpu"); hwmon != "" {
		log.Debug().Str("hwmon", hwmon).Msg("amd gpu telemetry available")
		return &amdGPU{
			hwmon:    hwmon,
			busyPath: filepath.Join(root, "sys/class/drm/card1/device/gpu_busy_percent"),
		}
	}

	intelGT := filepath.Join(root, "sys/class/drm/card0/gt/gt0")
	if _, err := os.Stat(intelGT); err == nil {
		log.Debug().Msg("intel gpu telemetry available")
		return &intelGPU{gtPath: intelGT}
	}

	if _, err := os.Stat(filepath.Join(root, "proc/driver/nvidia/version")); err == nil {
		log.Debug().Msg("nvidia gpu present but telemetry needs NVML, reporting unavailable")
		return unavailableGPU{name: "nvidia"}
	}

	return unavailableGPU{name: "none"}
}

// findHwmon scans hwmon0..hwmon9 for a sensor with the given name.
func findHwmon(root, want string) string {
	for i := range 10 {
		path := filepath.Join(root, "sys/class/hwmon", fmt.Sprintf("hwmon%d", i))
		name, err := os.ReadFile(filepath.Join(path, "name"))
		if err != nil {
			continue
		}
		if strings.TrimSpace(string(name)) == want {
			return path
		}
	}
	return ""
}

func readIntFile(path string) (int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read %s: %w", path, err)
	}
	v, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return v, nil
}

type amdGPU struct {
	hwmon    string
	busyPath string
}

func (*amdGPU) Available() bool { return true }
func (*amdGPU) Name() string    { return "amdgpu" }

func (g *amdGPU) Stats() (GPUStats, error) {
	stats := GPUStats{Temperature: -1, Usage: -1, Clock: -1, Fan: -1}

	if v, err := readIntFile(filepath.Join(g.hwmon, "temp1_input")); err == nil {
		stats.Temperature = float64(v) / 1000.0 // millicelsius
	}
	if v, err := readIntFile(g.busyPath); err == nil {
		stats.Usage = float64(v)
	}
	if v, err := readIntFile(filepath.Join(g.hwmon, "freq1_input")); err == nil {
		stats.Clock = float64(v) / 1e6 // Hz to MHz
	}
	if v, err := readIntFile(filepath.Join(g.hwmon, "fan1_input")); err == nil {
		stats.Fan = float64(v)
	}

	return stats, nil
}

type intelGPU struct {
	gtPath string
}

func (*intelGPU) Available() bool { return true }
func (*intelGPU) Name() string    { return "intel" }

// Stats only reports the current frequency; i915 exposes no usage or
// temperature at this sysfs level.
func (g *intelGPU) Stats() (GPUStats, error) {
	stats := GPUStats{Temperature: -1, Usage: -1, Clock: -1, Fan: -1}

	if v, err := readIntFile(filepath.Join(g.gtPath, "freq0_cur_freq")); err == nil {
		stats.Clock = float64(v)
	}

	return stats, nil
}

type unavailableGPU struct {
	name string
}

func (unavailableGPU) Available() bool { return false }
func (g unavailableGPU) Name() string  { return g.name }

func (g unavailableGPU) Stats() (GPUStats, error) {
	return GPUStats{}, fmt.Errorf("gpu telemetry unavailable: %s", g.name)
}
