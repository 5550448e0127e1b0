// Thermalright USB LCD
// Copyright (c) 2026 the-black-eagle (18698554+the-black-eagle@users.noreply.github.com)
// SPDX-License-Identifier: Apache-2.0

package sysinfo

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// stubGPU feeds canned stats through the capability interface.
type stubGPU struct {
	stats GPUStats
}

func (stubGPU) Available() bool           { return true }
func (stubGPU) Name() string              { return "stub" }
func (s stubGPU) Stats() (GPUStats, error) { return s.stats, nil }

func TestMergeKeepsPreviousValues(t *testing.T) {
	t.Parallel()

	p := NewPoller(unavailableGPU{name: "none"}, clockwork.NewFakeClock(), time.Second, time.Minute)

	p.merge(map[string]float64{"cpu_temp": 48, "cpu_percent": 12})
	p.merge(map[string]float64{"cpu_percent": 30})

	snap := p.Snapshot()
	assert.InDelta(t, 48.0, snap["cpu_temp"], 0.01, "missing metric keeps its last value")
	assert.InDelta(t, 30.0, snap["cpu_percent"], 0.01)
}

func TestSnapshotIsACopy(t *testing.T) {
	t.Parallel()

	p := NewPoller(unavailableGPU{name: "none"}, clockwork.NewFakeClock(), time.Second, time.Minute)
	p.merge(map[string]float64{"cpu_temp": 48})

	snap := p.Snapshot()
	snap["cpu_temp"] = 99

	assert.InDelta(t, 48.0, p.Snapshot()["cpu_temp"], 0.01)
}

func TestAvailableMetricsSorted(t *testing.T) {
	t.Parallel()

	p := NewPoller(unavailableGPU{name: "none"}, clockwork.NewFakeClock(), time.Second, time.Minute)
	p.merge(map[string]float64{"mem_percent": 1, "cpu_temp": 2, "disk_percent": 3})

	assert.Equal(t, []string{"cpu_temp", "disk_percent", "mem_percent"}, p.AvailableMetrics())
}

func TestGPUStatsFiltering(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		stats   GPUStats
		want    map[string]float64
		wantNot []string
	}{
		{
			name:  "all sensors readable",
			stats: GPUStats{Temperature: 60, Usage: 45, Clock: 1800, Fan: 900},
			want: map[string]float64{
				"gpu_temp": 60, "gpu_usage": 45, "gpu_clock": 1800, "gpu_fan": 900,
			},
		},
		{
			name:    "unreadable sensors dropped",
			stats:   GPUStats{Temperature: -1, Usage: 45, Clock: -1, Fan: -1},
			want:    map[string]float64{"gpu_usage": 45},
			wantNot: []string{"gpu_temp", "gpu_clock", "gpu_fan"},
		},
		{
			name:    "idle usage still reported",
			stats:   GPUStats{Temperature: 55, Usage: 0, Clock: 500, Fan: 0},
			want:    map[string]float64{"gpu_temp": 55, "gpu_usage": 0, "gpu_clock": 500, "gpu_fan": 0},
		},
		{
			name:    "bogus temperature dropped",
			stats:   GPUStats{Temperature: 512, Usage: 10, Clock: 100, Fan: 100},
			want:    map[string]float64{"gpu_usage": 10},
			wantNot: []string{"gpu_temp"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := NewPoller(stubGPU{stats: tt.stats}, clockwork.NewFakeClock(), time.Second, time.Minute)
			out := p.pollFast(context.Background())

			for metric, want := range tt.want {
				require.Contains(t, out, metric)
				assert.InDelta(t, want, out[metric], 0.01, metric)
			}
			for _, metric := range tt.wantNot {
				assert.NotContains(t, out, metric)
			}
		})
	}
}

func TestSkipFilesystem(t *testing.T) {
	t.Parallel()

	tests := []struct {
		device, mountpoint, fstype string
		skip                       bool
	}{
		{"/dev/nvme0n1p2", "/", "ext4", false},
		{"/dev/sda1", "/home", "btrfs", false},
		{"tmpfs", "/tmp", "tmpfs", true},
		{"/dev/loop4", "/snap/core", "squashfs", true},
		{"/dev/sr0", "/media/cdrom", "iso9660", true},
		{"tmpfs", "/run/user/1000", "ext4", true},
		{"none", "/proc", "proc", true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.skip, skipFilesystem(tt.device, tt.mountpoint, tt.fstype),
			"%s on %s (%s)", tt.device, tt.mountpoint, tt.fstype)
	}
}

func TestFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		metric string
		value  float64
		want   string
	}{
		{"cpu_temp", 48.4, "48°C"},
		{"gpu_temp", 61.6, "62°C"},
		{"cpu_freq", 3400.2, "3400MHz"},
		{"gpu_clock", 900, " 900MHz"},
		{"cpu_percent", 12.7, "13%"},
		{"gpu_usage", 0, "0%"},
		{"mem_percent", 41.2, "RAM 41%"},
		{"mem_used_gb", 12.34, "RAM 12.3GB"},
		{"disk_percent", 77.7, "DISK 78%"},
		{"disk_free_gb", 120.6, "DISK 121GB free"},
		{"gpu_fan", 880, "880RPM"},
		{"cpu_count", 16, "16 cores"},
		{"unknown_metric", 5.5, "6"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Format(tt.metric, tt.value), tt.metric)
	}
}

func TestPollerStartStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	p := NewPoller(unavailableGPU{name: "none"}, clockwork.NewRealClock(), time.Minute, time.Minute)
	p.Start(context.Background())
	p.Stop()

	// Stop is idempotent and a second Start/Stop cycle works.
	p.Stop()
	p.Start(context.Background())
	p.Stop()
}
