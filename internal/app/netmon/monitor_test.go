package netmon

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testThresholds() Thresholds {
	return Thresholds{
		GoodDownlinkMbps: 3.0,
		PoorDownlinkMbps: 1.0,
		GoodRTT:          150 * time.Millisecond,
		PoorRTT:          400 * time.Millisecond,
	}
}

func TestClassify(t *testing.T) {
	m := NewMonitor(nil, testThresholds(), time.Second, nil, nil)

	tests := []struct {
		name string
		down float64
		rtt  time.Duration
		want Tier
	}{
		{"fast link low rtt", 5.0, 50 * time.Millisecond, TierExcellent},
		{"fast link high rtt stays good", 5.0, 300 * time.Millisecond, TierGood},
		{"slow link low rtt stays good", 2.0, 50 * time.Millisecond, TierGood},
		{"both marginal", 0.8, 500 * time.Millisecond, TierPoor},
		{"near dead link", 0.1, 2 * time.Second, TierCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.Classify(tt.down, tt.rtt))
		})
	}
}

func TestDegradeNeedsThreeConsecutivePoorSamples(t *testing.T) {
	degrades, recovers := 0, 0
	m := NewMonitor(nil, testThresholds(), time.Second,
		func() { degrades++ },
		func() { recovers++ },
	)

	m.Observe(0.5, 500*time.Millisecond)
	m.Observe(0.5, 500*time.Millisecond)
	assert.Zero(t, degrades, "two poor samples must not degrade")
	assert.False(t, m.Degraded())

	m.Observe(0.5, 500*time.Millisecond)
	assert.Equal(t, 1, degrades)
	assert.True(t, m.Degraded())

	// Further poor samples do not re-fire.
	m.Observe(0.5, 500*time.Millisecond)
	assert.Equal(t, 1, degrades)

	// One good sample clears.
	m.Observe(5.0, 50*time.Millisecond)
	assert.Equal(t, 1, recovers)
	assert.False(t, m.Degraded())
}

func TestGoodSampleResetsStreak(t *testing.T) {
	degrades := 0
	m := NewMonitor(nil, testThresholds(), time.Second, func() { degrades++ }, nil)

	m.Observe(0.5, 500*time.Millisecond)
	m.Observe(0.5, 500*time.Millisecond)
	m.Observe(5.0, 50*time.Millisecond)
	m.Observe(0.5, 500*time.Millisecond)
	m.Observe(0.5, 500*time.Millisecond)
	assert.Zero(t, degrades, "streak must reset on a good sample")
}

func TestSamplesRing(t *testing.T) {
	m := NewMonitor(nil, testThresholds(), time.Second, nil, nil)
	for i := 0; i < ringSize+10; i++ {
		m.Observe(5.0, 50*time.Millisecond)
	}
	assert.Len(t, m.Samples(), ringSize)
}
