// Thermalright USB LCD
// Copyright (c) 2026 the-black-eagle (18698554+the-black-eagle@users.noreply.github.com)
// SPDX-License-Identifier: Apache-2.0

// Package sysinfo samples host telemetry for the panel overlay: CPU load,
// temperature and frequency, memory, disk and network totals, plus GPU
// stats through a pluggable capability. Cheap metrics refresh on a fast
// cadence, expensive ones on a slow cadence.
package sysinfo

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/mem"
	gopsnet "github.com/shirou/gopsutil/v4/net"
	"github.com/shirou/gopsutil/v4/sensors"

	"github.com/the-black-eagle/Thermalright-usblcd/pkg/helpers/syncutil"
)

// Poller samples telemetry in the background and exposes the latest values
// as a flat metric map. Metrics that fail their sanity filter keep their
// previous value rather than flickering to zero on the panel.
type Poller struct {
	gpu   GPU
	clock clockwork.Clock
	fast  time.Duration
	slow  time.Duration

	mu   syncutil.RWMutex
	info map[string]float64

	stop chan struct{}
	done chan struct{}
}

func NewPoller(gpu GPU, clock clockwork.Clock, fast, slow time.Duration) *Poller {
	return &Poller{
		gpu:   gpu,
		clock: clock,
		fast:  fast,
		slow:  slow,
		info:  make(map[string]float64),
	}
}

// Start launches the background sampling loop. Both cadences are sampled
// once immediately so the first frame has data.
func (p *Poller) Start(ctx context.Context) {
	if p.stop != nil {
		return
	}
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	go p.run(ctx)
}

// Stop halts sampling and waits for the loop to exit.
func (p *Poller) Stop() {
	if p.stop == nil {
		return
	}
	close(p.stop)
	<-p.done
	p.stop = nil
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.done)

	p.merge(p.pollFast(ctx))
	p.merge(p.pollSlow(ctx))

	fast := p.clock.NewTicker(p.fast)
	defer fast.Stop()
	slow := p.clock.NewTicker(p.slow)
	defer slow.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		case <-fast.Chan():
			p.merge(p.pollFast(ctx))
		case <-slow.Chan():
			p.merge(p.pollSlow(ctx))
		}
	}
}

// Snapshot returns a copy of the latest metric values.
func (p *Poller) Snapshot() map[string]float64 {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make(map[string]float64, len(p.info))
	for k, v := range p.info {
		out[k] = v
	}
	return out
}

// AvailableMetrics lists the metrics that have produced at least one sane
// sample, sorted for stable presentation.
func (p *Poller) AvailableMetrics() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	keys := make([]string, 0, len(p.info))
	for k := range p.info {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (p *Poller) merge(updated map[string]float64) {
	if len(updated) == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for k, v := range updated {
		p.info[k] = v
	}
}

func (p *Poller) pollFast(ctx context.Context) map[string]float64 {
	out := make(map[string]float64)

	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		if pct := percents[0]; pct > 0 && pct < 101 {
			out["cpu_percent"] = pct
		}
	}

	if temp := cpuTemperature(ctx); temp > 15 && temp < 100 {
		out["cpu_temp"] = temp
	}

	if infos, err := cpu.InfoWithContext(ctx); err == nil && len(infos) > 0 && infos[0].Mhz > 0 {
		out["cpu_freq"] = infos[0].Mhz
	}

	if p.gpu.Available() {
		stats, err := p.gpu.Stats()
		if err != nil {
			log.Debug().Err(err).Msg("gpu stats read failed")
			return out
		}
		if stats.Temperature > 0 && stats.Temperature < 101 {
			out["gpu_temp"] = stats.Temperature
		}
		if stats.Usage > -1 {
			out["gpu_usage"] = stats.Usage
		}
		if stats.Clock > 0 {
			out["gpu_clock"] = stats.Clock
		}
		if stats.Fan > -1 {
			out["gpu_fan"] = stats.Fan
		}
	}

	return out
}

func (p *Poller) pollSlow(ctx context.Context) map[string]float64 {
	out := make(map[string]float64)

	if count, err := cpu.CountsWithContext(ctx, true); err == nil && count > 0 {
		out["cpu_count"] = float64(count)
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil && vm.Total > 0 {
		out["mem_percent"] = vm.UsedPercent
		out["mem_used_gb"] = float64(vm.Used) / (1024 * 1024 * 1024)
	}

	if percent, freeGB, ok := diskTotals(ctx); ok {
		out["disk_percent"] = percent
		out["disk_free_gb"] = freeGB
	}

	if counters, err := gopsnet.IOCountersWithContext(ctx, false); err == nil && len(counters) > 0 {
		out["net_sent_mb"] = float64(counters[0].BytesSent) / (1024 * 1024)
		out["net_recv_mb"] = float64(counters[0].BytesRecv) / (1024 * 1024)
	}

	return out
}

// cpuTemperature returns the hottest package sensor, or 0 when no CPU
// sensor is readable.
func cpuTemperature(ctx context.Context) float64 {
	temps, err := sensors.TemperaturesWithContext(ctx)
	if err != nil {
		return 0
	}

	maxTemp := 0.0
	for _, t := range temps {
		key := strings.ToLower(t.SensorKey)
		if !strings.Contains(key, "k10temp") && !strings.Contains(key, "coretemp") {
			continue
		}
		if t.Temperature > maxTemp {
			maxTemp = t.Temperature
		}
	}
	return maxTemp
}

// diskTotals sums usage across real filesystems, skipping the pseudo and
// removable mounts the kernel reports alongside them.
func diskTotals(ctx context.Context) (percent, freeGB float64, ok bool) {
	parts, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return 0, 0, false
	}

	var total, free, used uint64
	for _, part := range parts {
		if skipFilesystem(part.Device, part.Mountpoint, part.Fstype) {
			continue
		}
		usage, err := disk.UsageWithContext(ctx, part.Mountpoint)
		if err != nil {
			continue
		}
		total += usage.Total
		free += usage.Free
		used += usage.Used
	}

	if total == 0 {
		return 0, 0, false
	}
	return float64(used) / float64(total) * 100.0, float64(free) / 1e9, true
}

func skipFilesystem(device, mountpoint, fstype string) bool {
	switch fstype {
	case "tmpfs", "devtmpfs", "proc", "sysfs", "cgroup", "overlay", "squashfs", "ramfs", "":
		return true
	}
	if strings.HasPrefix(device, "/dev/loop") || strings.HasPrefix(device, "/dev/sr") {
		return true
	}
	return strings.Contains(mountpoint, "/run")
}

// Format renders one metric value the way the panel shows it.
func Format(metric string, value float64) string {
	switch metric {
	case "cpu_temp", "gpu_temp":
		return fmt.Sprintf("%.0f°C", value)
	case "cpu_freq":
		return fmt.Sprintf("%.0fMHz", value)
	case "gpu_clock":
		return fmt.Sprintf("%4.0fMHz", value)
	case "cpu_percent", "gpu_usage":
		return fmt.Sprintf("%.0f%%", value)
	case "mem_percent":
		return fmt.Sprintf("RAM %.0f%%", value)
	case "disk_percent":
		return fmt.Sprintf("DISK %.0f%%", value)
	case "mem_used_gb":
		return fmt.Sprintf("RAM %.1fGB", value)
	case "disk_free_gb":
		return fmt.Sprintf("DISK %.0fGB free", value)
	case "gpu_fan":
		return fmt.Sprintf("%.0fRPM", value)
	case "cpu_count":
		return fmt.Sprintf("%.0f cores", value)
	default:
		return fmt.Sprintf("%.0f", value)
	}
}
