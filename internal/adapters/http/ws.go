package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/antoncarlo/virtual-kin-connect-sub002/internal/core"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type wsEvent struct {
	Type  string           `json:"type"`
	State string           `json:"state,omitempty"`
	Debug *core.DebugEvent `json:"debug,omitempty"`
}

// HandleEventsWS streams state changes and debug entries to a
// diagnostics client. Read-only: nothing received here drives the
// orchestrator.
func (ctl *Controller) HandleEventsWS(ctx context.Context, c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("ws upgrade")
		return
	}

	states, cancelStates := ctl.Orch.Subscribe()
	debugs, cancelDebugs := ctl.Orch.Debug().Subscribe()

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		// Drain reads so pings/closes are noticed; payloads are ignored.
		defer cancel()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	go func() {
		defer func() {
			cancelStates()
			cancelDebugs()
			_ = ws.Close()
			log.Info().Str("module", "adapters.http").Msg("events ws closed")
		}()

		writeJSON := func(v wsEvent) bool {
			data, err := json.Marshal(v)
			if err != nil {
				log.Error().Err(err).Str("module", "adapters.http").Msg("events ws marshal")
				return true
			}
			if err := ws.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				return false
			}
			if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
				return false
			}
			return true
		}

		// Current state first so the client needs no separate poll.
		if !writeJSON(wsEvent{Type: "state", State: ctl.Orch.State().String()}) {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return
			case s := <-states:
				if !writeJSON(wsEvent{Type: "state", State: s.String()}) {
					return
				}
			case ev := <-debugs:
				if !writeJSON(wsEvent{Type: "debug", Debug: &ev}) {
					return
				}
			}
		}
	}()
}
