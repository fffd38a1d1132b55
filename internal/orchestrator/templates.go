package orchestrator

import (
	"fmt"
	"strings"

	"insightd/internal/device"
	"insightd/internal/provider"
)

// Thresholds used by the fallback advice.
const (
	batteryLowPercent      = 20
	batteryModeratePercent = 50
	memoryHighPercent      = 85
	memoryElevatedPercent  = 70
	storageCriticalPercent = 90
	storageWarningPercent  = 75
	cpuHighPercent         = 80
	manyProcesses          = 400
)

type adviceRule func(device.Snapshot) []string

func batteryAdvice(s device.Snapshot) []string {
	var out []string
	if lvl, ok := s.Float("battery.level"); ok {
		switch {
		case lvl < batteryLowPercent:
			out = append(out, fmt.Sprintf("Battery is low (%.0f%%). Connect a charger soon and close power-hungry apps.", lvl))
		case lvl < batteryModeratePercent:
			out = append(out, fmt.Sprintf("Battery is at %.0f%%. Lower screen brightness or enable power saving to stretch it.", lvl))
		}
	}
	if charging, ok := s.Bool("battery.charging"); ok && charging {
		out = append(out, "The device is charging. Unplugging around 80% helps long-term battery health.")
	}
	return out
}

func memoryAdvice(s device.Snapshot) []string {
	used, ok := s.Float("memory.used_percent")
	switch {
	case !ok:
		return nil
	case used > memoryHighPercent:
		return []string{fmt.Sprintf("Memory usage is high (%.0f%%). Close unused apps or browser tabs.", used)}
	case used > memoryElevatedPercent:
		return []string{fmt.Sprintf("Memory usage is elevated (%.0f%%). Consider closing apps you are not using.", used)}
	}
	return nil
}

func storageAdvice(s device.Snapshot) []string {
	used, ok := s.Float("storage.used_percent")
	switch {
	case !ok:
		return nil
	case used > storageCriticalPercent:
		return []string{fmt.Sprintf("Storage is almost full (%.0f%%). Remove large files or move them elsewhere.", used)}
	case used > storageWarningPercent:
		return []string{fmt.Sprintf("Storage is filling up (%.0f%%). Clear caches and downloads you no longer need.", used)}
	}
	return nil
}

func cpuAdvice(s device.Snapshot) []string {
	if used, ok := s.Float("cpu.usage_percent"); ok && used > cpuHighPercent {
		return []string{fmt.Sprintf("CPU usage is high (%.0f%%). Check for apps running heavy background work.", used)}
	}
	return nil
}

func networkAdvice(s device.Snapshot) []string {
	if connected, ok := s.Bool("network.connected"); ok && !connected {
		return []string{"The device appears to be offline. Check Wi-Fi or cable connections."}
	}
	return nil
}

func processAdvice(s device.Snapshot) []string {
	if n, ok := s.Float("process.count"); ok && n > manyProcesses {
		return []string{fmt.Sprintf("%.0f processes are running. Disabling unneeded startup apps can free resources.", n)}
	}
	return nil
}

var (
	allRules         = []adviceRule{batteryAdvice, memoryAdvice, storageAdvice, cpuAdvice, networkAdvice, processAdvice}
	batteryRules     = []adviceRule{batteryAdvice}
	performanceRules = []adviceRule{memoryAdvice, cpuAdvice, storageAdvice, processAdvice}
)

var closingLines = map[provider.RequestKind]string{
	provider.RequestBattery:     "Keeping the battery between 20% and 80% and avoiding heat extends its lifespan.",
	provider.RequestPerformance: "Restarting the device occasionally and keeping the system updated helps performance.",
}

const genericLine = "Keep the system updated and restart occasionally to keep the device healthy."

// FallbackAdvice builds static advice from snapshot thresholds. It is used
// when every provider failed and never returns an empty string.
func FallbackAdvice(kind provider.RequestKind, s device.Snapshot) string {
	rules := allRules
	switch kind {
	case provider.RequestBattery:
		rules = batteryRules
	case provider.RequestPerformance:
		rules = performanceRules
	}
	var lines []string
	for _, r := range rules {
		lines = append(lines, r(s)...)
	}
	closing, ok := closingLines[kind]
	if !ok {
		closing = genericLine
	}
	if len(lines) == 0 {
		lines = append(lines, "No problems were detected in the current readings.")
	}
	lines = append(lines, closing)
	return strings.Join(lines, "\n")
}
