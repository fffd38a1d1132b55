package device

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// defaultPowerSupplyRoot is the Linux sysfs power_supply class directory.
// Other platforms simply report no battery.
const defaultPowerSupplyRoot = "/sys/class/power_supply"

type batteryInfo struct {
	Present     bool
	Level       float64
	Charging    bool
	Status      string
	MainsOnline bool
}

// PowerSource reports "ac", "battery" or "unknown".
func (b batteryInfo) PowerSource() string {
	switch {
	case b.MainsOnline || b.Charging:
		return "ac"
	case b.Present:
		return "battery"
	default:
		return "unknown"
	}
}

// readBattery scans a power_supply directory for the first battery and any
// mains adapter. A missing directory is not an error.
func readBattery(root string) (batteryInfo, error) {
	var info batteryInfo
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return info, nil
		}
		return info, err
	}
	for _, e := range entries {
		dir := filepath.Join(root, e.Name())
		switch readTrim(filepath.Join(dir, "type")) {
		case "Battery":
			if info.Present {
				continue
			}
			capStr := readTrim(filepath.Join(dir, "capacity"))
			lvl, err := strconv.ParseFloat(capStr, 64)
			if err != nil {
				continue
			}
			info.Present = true
			info.Level = lvl
			info.Status = strings.ToLower(readTrim(filepath.Join(dir, "status")))
			info.Charging = info.Status == "charging" || info.Status == "full"
		case "Mains", "USB":
			if readTrim(filepath.Join(dir, "online")) == "1" {
				info.MainsOnline = true
			}
		}
	}
	return info, nil
}

func readTrim(p string) string {
	b, err := os.ReadFile(p)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}
