// Package orch drives one live avatar session through its connection
// state machine. The orchestrator is the single owner of the Session
// and the only dispatch point for transport events.
package orch

import (
	"context"
	"sync"
	"time"

	"github.com/antoncarlo/virtual-kin-connect-sub002/internal/app/netmon"
	"github.com/antoncarlo/virtual-kin-connect-sub002/internal/app/prewarm"
	"github.com/antoncarlo/virtual-kin-connect-sub002/internal/app/retry"
	"github.com/antoncarlo/virtual-kin-connect-sub002/internal/app/speech"
	"github.com/antoncarlo/virtual-kin-connect-sub002/internal/core"
	"github.com/antoncarlo/virtual-kin-connect-sub002/internal/domain"
)

// Options are the orchestrator timing and policy knobs.
type Options struct {
	RetryAttempts  int
	RetryBase      time.Duration
	FirstFrameWait time.Duration
	ReconnectWait  time.Duration
	StopWait       time.Duration
	PrewarmTTL     time.Duration
	SpeechPerChar  time.Duration
	SpeechMinimum  time.Duration
	SampleInterval time.Duration
	Thresholds     netmon.Thresholds
}

func (o *Options) withDefaults() {
	if o.RetryBase <= 0 {
		o.RetryBase = time.Second
	}
	if o.FirstFrameWait <= 0 {
		o.FirstFrameWait = 15 * time.Second
	}
	if o.ReconnectWait <= 0 {
		o.ReconnectWait = 30 * time.Second
	}
	if o.StopWait <= 0 {
		o.StopWait = 5 * time.Second
	}
}

// Orchestrator owns exactly one mutable ConnectionState and at most
// one Session. All sub-components read state through it; none keeps a
// private notion of session status.
type Orchestrator struct {
	signaler   core.Signaler
	transport  core.TransportFactory
	aggFactory core.AggregatorFactory
	sink       core.RenderSink
	retry      *retry.Controller
	prewarm    *prewarm.Cache
	speech     *speech.Coordinator
	monitor    *netmon.Monitor
	debug      *core.DebugLog
	opts       Options

	mu       sync.Mutex
	state    core.ConnectionState
	lastErr  error
	session  *domain.Session
	media    core.MediaConnection
	agg      core.StreamAggregator
	cancel   context.CancelFunc
	starting bool
	cleaning bool
	reaped   chan struct{}
	// gen invalidates async results from an earlier attempt; every
	// suspension point compares its captured value before applying.
	gen uint64

	subs []chan core.ConnectionState

	degradeCh chan struct{}
	recoverCh chan struct{}
}

func New(signaler core.Signaler, transport core.TransportFactory, aggFactory core.AggregatorFactory, sink core.RenderSink, sampler netmon.Sampler, opts Options) *Orchestrator {
	opts.withDefaults()
	o := &Orchestrator{
		signaler:   signaler,
		transport:  transport,
		aggFactory: aggFactory,
		sink:       sink,
		retry:      retry.NewController(opts.RetryAttempts, opts.RetryBase),
		prewarm:    prewarm.NewCache(signaler, opts.PrewarmTTL),
		debug:      core.NewDebugLog(0),
		opts:       opts,
		state:      core.StateIdle,
		degradeCh:  make(chan struct{}, 1),
		recoverCh:  make(chan struct{}, 1),
	}
	o.speech = speech.NewCoordinator(signaler, o.State, o.sessionID, opts.SpeechPerChar, opts.SpeechMinimum)
	if sampler != nil {
		o.monitor = netmon.NewMonitor(sampler, opts.Thresholds, opts.SampleInterval,
			func() { nudge(o.degradeCh) },
			func() { nudge(o.recoverCh) },
		)
	}
	return o
}

func nudge(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// State returns the authoritative connection state.
func (o *Orchestrator) State() core.ConnectionState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// LastError returns the failure that drove the error state, if any.
func (o *Orchestrator) LastError() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErr
}

// Session returns a copy of the current session, if one exists.
func (o *Orchestrator) Session() (domain.Session, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return domain.Session{}, false
	}
	return *o.session, true
}

func (o *Orchestrator) sessionID() domain.SessionID {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return ""
	}
	return o.session.ID
}

// Debug exposes the append-only diagnostic feed.
func (o *Orchestrator) Debug() *core.DebugLog { return o.debug }

// QualitySamples returns the monitor ring for diagnostics.
func (o *Orchestrator) QualitySamples() []netmon.Sample {
	if o.monitor == nil {
		return nil
	}
	return o.monitor.Samples()
}

// Speech returns the command coordinator.
func (o *Orchestrator) Speech() *speech.Coordinator { return o.speech }

// Prewarm speculatively fetches a credential for the next Start.
func (o *Orchestrator) Prewarm(ctx context.Context) { o.prewarm.Warm(ctx) }

// Subscribe returns a channel receiving every state change. Slow
// consumers miss transitions rather than block the orchestrator.
func (o *Orchestrator) Subscribe() (<-chan core.ConnectionState, func()) {
	ch := make(chan core.ConnectionState, 16)
	o.mu.Lock()
	o.subs = append(o.subs, ch)
	o.mu.Unlock()

	cancel := func() {
		o.mu.Lock()
		for i, s := range o.subs {
			if s == ch {
				o.subs = append(o.subs[:i], o.subs[i+1:]...)
				break
			}
		}
		o.mu.Unlock()
	}
	return ch, cancel
}

// setState transitions under the lock and notifies subscribers.
// Returns false when gen is stale; stale attempts never mutate state.
func (o *Orchestrator) setState(gen uint64, s core.ConnectionState) bool {
	o.mu.Lock()
	if gen != o.gen {
		o.mu.Unlock()
		return false
	}
	if o.state == s {
		o.mu.Unlock()
		return true
	}
	prev := o.state
	o.state = s
	subs := make([]chan core.ConnectionState, len(o.subs))
	copy(subs, o.subs)
	o.mu.Unlock()

	o.debug.Append("state", core.DebugInfo, prev.String()+" -> "+s.String())
	for _, ch := range subs {
		select {
		case ch <- s:
		default:
		}
	}
	return true
}

func (o *Orchestrator) validGen(gen uint64) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return gen == o.gen
}
