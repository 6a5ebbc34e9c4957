package orch

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/antoncarlo/virtual-kin-connect-sub002/internal/core"
)

// eventLoop is the single consumer of transport events, monitor
// signals, and remote pushes for one session attempt. It runs from the
// end of negotiation until teardown.
func (o *Orchestrator) eventLoop(ctx context.Context, gen uint64, mc core.MediaConnection, agg core.StreamAggregator) {
	logger := log.With().Str("module", "orch").Logger()

	transportUp := false
	frameReady := false
	connectedOnce := false

	frameTimer := time.NewTimer(o.opts.FirstFrameWait)
	defer frameTimer.Stop()
	reconnectTimer := time.NewTimer(o.opts.ReconnectWait)
	if !reconnectTimer.Stop() {
		<-reconnectTimer.C
	}
	defer reconnectTimer.Stop()

	readyCh := agg.Ready()
	remote := o.signaler.Events()

	maybeConnected := func() {
		if !transportUp || !frameReady || connectedOnce {
			return
		}
		connectedOnce = true
		frameTimer.Stop()
		o.setState(gen, core.StateConnected)
		o.debug.Append("connected", core.DebugSuccess, "")
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("event loop ctx done")
			return

		case ev := <-mc.Events():
			switch ev.Kind {
			case core.TrackArrived:
				agg.AddTrack(ctx, ev.Track)
				o.debug.Append("track", core.DebugInfo, ev.Track.Kind().String())

			case core.TransportConnected:
				transportUp = true
				if !reconnectTimer.Stop() {
					select {
					case <-reconnectTimer.C:
					default:
					}
				}
				if connectedOnce {
					// Transport restored; fall back to degraded if the
					// monitor still says so.
					target := core.StateConnected
					if o.monitor != nil && o.monitor.Degraded() {
						target = core.StateDegraded
					}
					if !o.setState(gen, target) {
						return
					}
				} else {
					maybeConnected()
				}

			case core.TransportDisconnected, core.TransportFailed:
				transportUp = false
				o.debug.Append("transport", core.DebugError, ev.Kind.String())
				if !o.setState(gen, core.StateReconnecting) {
					return
				}
				reconnectTimer.Reset(o.opts.ReconnectWait)
			}

		case <-readyCh:
			frameReady = true
			readyCh = nil
			o.debug.Append("first-frame", core.DebugSuccess, "")
			maybeConnected()

		case <-frameTimer.C:
			if !frameReady {
				o.fail(gen, fmt.Errorf("no first frame within %s", o.opts.FirstFrameWait))
				return
			}

		case <-reconnectTimer.C:
			o.fail(gen, &core.TransportFailure{Reason: "reconnect timeout exceeded"})
			return

		case ev := <-remote:
			o.speech.OnRemoteEvent(ev)
			o.debug.Append("remote-event", core.DebugInfo, string(ev.Kind))
			if ev.Kind == core.RemoteSessionClosed {
				o.reap(gen, core.StateEnded, nil)
				return
			}

		case <-o.degradeCh:
			if o.State() == core.StateConnected {
				if !o.setState(gen, core.StateDegraded) {
					return
				}
				agg.SetVideoEnabled(false)
				o.debug.Append("quality", core.DebugInfo, "degraded, dropping video")
			}

		case <-o.recoverCh:
			if o.State() == core.StateDegraded {
				if !o.setState(gen, core.StateConnected) {
					return
				}
				agg.SetVideoEnabled(true)
				o.debug.Append("quality", core.DebugInfo, "recovered, video restored")
			}
		}
	}
}
