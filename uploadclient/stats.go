package uploadclient

import (
	"sync"
	"time"

	"github.com/docker/go-units"
)

type sample struct {
	at    time.Time
	bytes int64
}

// SpeedMeter measures throughput over a trailing time window.
type SpeedMeter struct {
	mu      sync.Mutex
	window  time.Duration
	samples []sample
	now     func() time.Time
}

// NewSpeedMeter create speed meter
func NewSpeedMeter(window time.Duration) *SpeedMeter {
	return &SpeedMeter{window: window, now: time.Now}
}

// Add records n bytes transferred now
func (m *SpeedMeter) Add(n int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.samples = append(m.samples, sample{at: now, bytes: n})
	m.trim(now)
}

func (m *SpeedMeter) trim(now time.Time) {
	cutoff := now.Add(-m.window)
	drop := 0
	for drop < len(m.samples) && m.samples[drop].at.Before(cutoff) {
		drop++
	}
	m.samples = m.samples[drop:]
}

// Speed bytes per second across the window; 0 with no recent samples
func (m *SpeedMeter) Speed() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	m.trim(now)
	if len(m.samples) == 0 {
		return 0
	}

	var total int64
	for _, s := range m.samples {
		total += s.bytes
	}
	// A young window is measured from its first sample, never shorter than one second
	span := now.Sub(m.samples[0].at)
	if span > m.window {
		span = m.window
	}
	if span < time.Second {
		span = time.Second
	}
	return float64(total) / span.Seconds()
}

// ETA projected time to send remaining bytes; 0 when unknown
func (m *SpeedMeter) ETA(remaining int64) time.Duration {
	speed := m.Speed()
	if speed <= 0 || remaining <= 0 {
		return 0
	}
	return time.Duration(float64(remaining) / speed * float64(time.Second))
}

// FormatSpeed renders a byte rate such as "12.5MB/s"
func FormatSpeed(bytesPerSecond float64) string {
	return units.HumanSizeWithPrecision(bytesPerSecond, 3) + "/s"
}
