package uploadclient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestSpeedMeterTrailingWindow(t *testing.T) {
	now := time.Unix(1000, 0)
	m := NewSpeedMeter(10 * time.Second)
	m.now = func() time.Time { return now }

	assert.Zero(t, m.Speed())
	assert.Zero(t, m.ETA(100))

	m.Add(1000)
	now = now.Add(2 * time.Second)
	m.Add(1000)
	// 2000 bytes over 2 seconds
	assert.InDelta(t, 1000, m.Speed(), 0.001)
	assert.Equal(t, 5*time.Second, m.ETA(5000))

	// The first sample drops out; 1000 bytes remain over 9 seconds
	now = now.Add(9 * time.Second)
	assert.InDelta(t, 1000.0/9, m.Speed(), 0.001)

	now = now.Add(time.Minute)
	assert.Zero(t, m.Speed())
}

func TestSpeedMeterShortSpan(t *testing.T) {
	now := time.Unix(1000, 0)
	m := NewSpeedMeter(10 * time.Second)
	m.now = func() time.Time { return now }

	m.Add(500)
	// A single fresh sample is spread over at least one second
	assert.InDelta(t, 500, m.Speed(), 0.001)
}

func TestFormatSpeed(t *testing.T) {
	assert.Equal(t, "1.5MB/s", FormatSpeed(1_500_000))
	assert.Equal(t, "0B/s", FormatSpeed(0))
}
