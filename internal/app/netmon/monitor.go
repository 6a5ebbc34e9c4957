// Package netmon samples network quality and drives the degraded-mode
// fallback with debounce in both directions.
package netmon

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Tier classifies one quality sample.
type Tier int

const (
	TierExcellent Tier = iota
	TierGood
	TierPoor
	TierCritical
)

func (t Tier) String() string {
	switch t {
	case TierExcellent:
		return "excellent"
	case TierGood:
		return "good"
	case TierPoor:
		return "poor"
	case TierCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Sample is one quality measurement.
type Sample struct {
	DownlinkMbps float64
	RTT          time.Duration
	Tier         Tier
	SampledAt    time.Time
}

// Sampler supplies raw measurements; the pion stats report in prod, a
// fake in tests.
type Sampler interface {
	Sample(ctx context.Context) (downlinkMbps float64, rtt time.Duration, err error)
}

// SamplerFunc adapts a function to the Sampler interface.
type SamplerFunc func(ctx context.Context) (float64, time.Duration, error)

func (f SamplerFunc) Sample(ctx context.Context) (float64, time.Duration, error) { return f(ctx) }

// Thresholds hold the two cutoff pairs. Both downlink and RTT must
// satisfy a tier for the sample to earn it.
type Thresholds struct {
	GoodDownlinkMbps float64
	PoorDownlinkMbps float64
	GoodRTT          time.Duration
	PoorRTT          time.Duration
}

const (
	DefaultInterval = 5 * time.Second
	// poorStreak is how many consecutive poor-or-worse samples confirm
	// degradation.
	poorStreak = 3
	ringSize   = 32
)

// Monitor periodically classifies network quality. Degrade fires only
// after poorStreak consecutive poor-or-worse samples; recovery needs a
// single good-or-better sample.
type Monitor struct {
	sampler   Sampler
	th        Thresholds
	interval  time.Duration
	onDegrade func()
	onRecover func()

	mu       sync.Mutex
	ring     []Sample
	streak   int
	degraded bool
	kick     chan struct{}
}

func NewMonitor(sampler Sampler, th Thresholds, interval time.Duration, onDegrade, onRecover func()) *Monitor {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Monitor{
		sampler:   sampler,
		th:        th,
		interval:  interval,
		onDegrade: onDegrade,
		onRecover: onRecover,
		kick:      make(chan struct{}, 1),
	}
}

// Run samples on the interval plus whenever Poke is called, until ctx
// is done.
func (m *Monitor) Run(ctx context.Context) {
	logger := log.With().Str("module", "netmon").Logger()
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("monitor stopped")
			return
		case <-ticker.C:
		case <-m.kick:
		}

		down, rtt, err := m.sampler.Sample(ctx)
		if err != nil {
			logger.Warn().Err(err).Msg("sample failed")
			continue
		}
		m.Observe(down, rtt)
	}
}

// Poke requests an immediate sample, used on network change
// notifications from the underlying layer.
func (m *Monitor) Poke() {
	select {
	case m.kick <- struct{}{}:
	default:
	}
}

// Classify maps one measurement to a tier; both thresholds must be met
// for the higher tier.
func (m *Monitor) Classify(downlinkMbps float64, rtt time.Duration) Tier {
	switch {
	case downlinkMbps >= m.th.GoodDownlinkMbps && rtt <= m.th.GoodRTT:
		return TierExcellent
	case downlinkMbps >= m.th.PoorDownlinkMbps && rtt <= m.th.PoorRTT:
		return TierGood
	case downlinkMbps >= m.th.PoorDownlinkMbps/2 && rtt <= 2*m.th.PoorRTT:
		return TierPoor
	default:
		return TierCritical
	}
}

// Observe records one measurement and applies the debounce policy.
func (m *Monitor) Observe(downlinkMbps float64, rtt time.Duration) {
	tier := m.Classify(downlinkMbps, rtt)
	s := Sample{DownlinkMbps: downlinkMbps, RTT: rtt, Tier: tier, SampledAt: time.Now()}

	m.mu.Lock()
	m.ring = append(m.ring, s)
	if len(m.ring) > ringSize {
		m.ring = m.ring[len(m.ring)-ringSize:]
	}

	var fire func()
	if tier >= TierPoor {
		m.streak++
		if m.streak >= poorStreak && !m.degraded {
			m.degraded = true
			fire = m.onDegrade
		}
	} else {
		m.streak = 0
		if m.degraded {
			m.degraded = false
			fire = m.onRecover
		}
	}
	m.mu.Unlock()

	log.Debug().Str("module", "netmon").Str("tier", tier.String()).Float64("downlink_mbps", downlinkMbps).Dur("rtt", rtt).Msg("sample")
	if fire != nil {
		fire()
	}
}

// Degraded reports the confirmed (debounced) state.
func (m *Monitor) Degraded() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.degraded
}

// Samples returns a copy of the retained ring, oldest first.
func (m *Monitor) Samples() []Sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Sample, len(m.ring))
	copy(out, m.ring)
	return out
}
