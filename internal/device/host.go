package device

import (
	"context"
	"errors"
	"runtime"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/net"
	"github.com/shirou/gopsutil/v3/process"
)

var errNothingCollected = errors.New("no device metrics could be collected")

const (
	defaultSampleInterval = 200 * time.Millisecond
	topProcessCount       = 5
)

// HostCollector gathers a snapshot of the local machine using gopsutil.
// Subsystems that fail are logged and skipped; Collect only fails when nothing
// at all could be read.
type HostCollector struct {
	log            zerolog.Logger
	source         string
	diskPath       string
	sampleInterval time.Duration
	now            func() time.Time

	memCollector     func(context.Context) (*mem.VirtualMemoryStat, error)
	swapCollector    func(context.Context) (*mem.SwapMemoryStat, error)
	diskCollector    func(context.Context, string) (*disk.UsageStat, error)
	usageCollector   func(context.Context, time.Duration, bool) ([]float64, error)
	countCollector   func(context.Context, bool) (int, error)
	infoCollector    func(context.Context) ([]cpu.InfoStat, error)
	loadCollector    func(context.Context) (*load.AvgStat, error)
	ifaceCollector   func(context.Context) (net.InterfaceStatList, error)
	ioCollector      func(context.Context, bool) ([]net.IOCountersStat, error)
	hostCollector    func(context.Context) (*host.InfoStat, error)
	processCollector func(context.Context) ([]processSample, error)
	batteryReader    func() (batteryInfo, error)
}

// HostOption customizes a HostCollector.
type HostOption func(*HostCollector)

// WithDiskPath selects the mount point reported under storage.*.
func WithDiskPath(p string) HostOption { return func(h *HostCollector) { h.diskPath = p } }

// WithSampleInterval sets the CPU usage sampling window.
func WithSampleInterval(d time.Duration) HostOption {
	return func(h *HostCollector) { h.sampleInterval = d }
}

// WithSourceName overrides the snapshot source name.
func WithSourceName(name string) HostOption { return func(h *HostCollector) { h.source = name } }

// WithBatteryRoot reads battery state from a different power_supply directory.
func WithBatteryRoot(root string) HostOption {
	return func(h *HostCollector) { h.batteryReader = func() (batteryInfo, error) { return readBattery(root) } }
}

// NewHostCollector returns a collector bound to the local host.
func NewHostCollector(log zerolog.Logger, opts ...HostOption) *HostCollector {
	h := &HostCollector{
		log:              log.With().Str("component", "host").Logger(),
		source:           DefaultSource,
		diskPath:         defaultDiskPath(),
		sampleInterval:   defaultSampleInterval,
		now:              time.Now,
		memCollector:     mem.VirtualMemoryWithContext,
		swapCollector:    mem.SwapMemoryWithContext,
		diskCollector:    disk.UsageWithContext,
		usageCollector:   cpu.PercentWithContext,
		countCollector:   cpu.CountsWithContext,
		infoCollector:    cpu.InfoWithContext,
		loadCollector:    load.AvgWithContext,
		ifaceCollector:   net.InterfacesWithContext,
		ioCollector:      net.IOCountersWithContext,
		hostCollector:    host.InfoWithContext,
		processCollector: topProcesses,
		batteryReader:    func() (batteryInfo, error) { return readBattery(defaultPowerSupplyRoot) },
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

func defaultDiskPath() string {
	if runtime.GOOS == "windows" {
		return `C:\`
	}
	return "/"
}

// Collect implements Collector.
func (h *HostCollector) Collect(ctx context.Context) (Snapshot, error) {
	start := h.now()
	fields := make(map[string]any, 32)
	ok := 0

	if vm, err := h.memCollector(ctx); err != nil {
		h.log.Warn().Err(err).Msg("memory collection failed")
	} else {
		fields["memory.total_bytes"] = vm.Total
		fields["memory.used_bytes"] = vm.Used
		fields["memory.available_bytes"] = vm.Available
		fields["memory.used_percent"] = round1(vm.UsedPercent)
		ok++
	}
	if sw, err := h.swapCollector(ctx); err == nil && sw.Total > 0 {
		fields["memory.swap_used_percent"] = round1(sw.UsedPercent)
	}

	if du, err := h.diskCollector(ctx, h.diskPath); err != nil {
		h.log.Warn().Err(err).Str("path", h.diskPath).Msg("storage collection failed")
	} else {
		fields["storage.path"] = du.Path
		fields["storage.total_bytes"] = du.Total
		fields["storage.free_bytes"] = du.Free
		fields["storage.used_percent"] = round1(du.UsedPercent)
		ok++
	}

	if usage, err := h.usageCollector(ctx, h.sampleInterval, false); err != nil || len(usage) == 0 {
		h.log.Warn().Err(err).Msg("cpu usage collection failed")
	} else {
		fields["cpu.usage_percent"] = round1(usage[0])
		ok++
	}
	if n, err := h.countCollector(ctx, true); err == nil {
		fields["cpu.cores"] = n
	}
	if info, err := h.infoCollector(ctx); err == nil && len(info) > 0 {
		fields["cpu.model"] = info[0].ModelName
	}
	if avg, err := h.loadCollector(ctx); err == nil {
		fields["cpu.load1"] = round1(avg.Load1)
	}

	if ifaces, err := h.ifaceCollector(ctx); err != nil {
		h.log.Warn().Err(err).Msg("network interface collection failed")
	} else {
		up := upInterfaces(ifaces)
		fields["network.interfaces"] = up
		fields["network.connected"] = len(up) > 0
		ok++
	}
	if io, err := h.ioCollector(ctx, false); err == nil && len(io) > 0 {
		fields["network.bytes_sent"] = io[0].BytesSent
		fields["network.bytes_recv"] = io[0].BytesRecv
	}

	if hi, err := h.hostCollector(ctx); err == nil {
		fields["host.name"] = hi.Hostname
		fields["host.os"] = hi.OS
		fields["host.platform"] = hi.Platform
		fields["host.uptime_seconds"] = hi.Uptime
	}

	if procs, err := h.processCollector(ctx); err != nil {
		h.log.Debug().Err(err).Msg("process collection failed")
	} else {
		fields["process.count"] = len(procs)
		fields["process.top"] = topByMemory(procs, topProcessCount)
		ok++
	}

	bat, err := h.batteryReader()
	if err != nil {
		h.log.Debug().Err(err).Msg("battery read failed")
	}
	fields["battery.present"] = bat.Present
	if bat.Present {
		fields["battery.level"] = bat.Level
		fields["battery.charging"] = bat.Charging
		fields["battery.status"] = bat.Status
		ok++
	}
	fields["power.source"] = bat.PowerSource()

	if ok == 0 {
		return Snapshot{}, errNothingCollected
	}
	h.log.Debug().Int("fields", len(fields)).Dur("dur", h.now().Sub(start)).Msg("host snapshot collected")
	return NewSnapshot(h.source, h.now(), fields), nil
}

// upInterfaces lists non-loopback interfaces that are up and carry an address.
func upInterfaces(list net.InterfaceStatList) []string {
	var out []string
	for _, ifc := range list {
		isUp, isLoop := false, false
		for _, f := range ifc.Flags {
			switch f {
			case "up":
				isUp = true
			case "loopback":
				isLoop = true
			}
		}
		if isUp && !isLoop && len(ifc.Addrs) > 0 {
			out = append(out, ifc.Name)
		}
	}
	sort.Strings(out)
	return out
}

type processSample struct {
	Name          string
	MemoryPercent float32
}

func topProcesses(ctx context.Context) ([]processSample, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]processSample, 0, len(procs))
	for _, p := range procs {
		name, err := p.NameWithContext(ctx)
		if err != nil {
			continue
		}
		mp, _ := p.MemoryPercentWithContext(ctx)
		out = append(out, processSample{Name: name, MemoryPercent: mp})
	}
	return out, nil
}

func topByMemory(procs []processSample, n int) []string {
	sorted := append([]processSample(nil), procs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].MemoryPercent > sorted[j].MemoryPercent })
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	out := make([]string, 0, len(sorted))
	for _, p := range sorted {
		out = append(out, p.Name)
	}
	return out
}

func round1(v float64) float64 {
	if v < 0 {
		return float64(int64(v*10-0.5)) / 10
	}
	return float64(int64(v*10+0.5)) / 10
}
