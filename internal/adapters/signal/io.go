package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/antoncarlo/virtual-kin-connect-sub002/internal/core"
)

func (c *Client) writePump(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Warn().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		log.Info().Str("module", "signal").Msg("readPump closing")
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("readPump read error")
				return
			}
			c.dispatch(data)
		}
	}
}

func (c *Client) dispatch(data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("bad json")
		return
	}

	// Correlated reply.
	if env.ID != "" {
		c.mu.RLock()
		reply, ok := c.pending[env.ID]
		c.mu.RUnlock()
		if !ok {
			log.Warn().Str("module", "signal").Str("id", env.ID).Msg("reply with no pending call")
			return
		}
		select {
		case reply <- env:
		default:
		}
		return
	}

	// Server push.
	if env.Event == "" {
		log.Warn().Str("module", "signal").Msg("frame without id or event")
		return
	}
	var body pushBody
	_ = json.Unmarshal(env.Body, &body)
	ev := core.RemoteEvent{Kind: core.RemoteEventKind(env.Event), Detail: body.Detail}
	select {
	case c.events <- ev:
	default:
		log.Warn().Str("module", "signal").Str("event", env.Event).Msg("event buffer full, dropping")
	}
}
