package layout

import (
	"math"
	"strings"

	"github.com/shirou/gopsutil/v3/host"
)

// Thermometer supplies the central's temperature in degrees C.
type Thermometer interface {
	Celsius() int16
}

// FixedThermometer always reports the same temperature.
type FixedThermometer int16

func (f FixedThermometer) Celsius() int16 {
	return int16(f)
}

// roomTemperature is reported when the host exposes no sensors.
const roomTemperature = 25

// HostThermometer reads the host's hottest CPU-like sensor, so the simulated
// central warms up with the machine running it.
type HostThermometer struct{}

func (HostThermometer) Celsius() int16 {
	// gopsutil returns partial readings together with a warnings error
	stats, _ := host.SensorsTemperatures()
	best := math.Inf(-1)
	for _, s := range stats {
		if s.Temperature <= 0 || s.Temperature > 150 {
			continue
		}
		key := strings.ToLower(s.SensorKey)
		if !strings.Contains(key, "cpu") && !strings.Contains(key, "core") &&
			!strings.Contains(key, "package") && !strings.Contains(key, "k10temp") {
			continue
		}
		best = math.Max(best, s.Temperature)
	}
	if math.IsInf(best, -1) {
		return roomTemperature
	}
	return int16(math.Round(best))
}
