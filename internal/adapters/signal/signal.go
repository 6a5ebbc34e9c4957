// Package signal implements core.Signaler over a websocket JSON-RPC
// style envelope protocol.
package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/antoncarlo/virtual-kin-connect-sub002/internal/core"
	"github.com/antoncarlo/virtual-kin-connect-sub002/internal/domain"
)

var ErrBackpressure = errors.New("backpressure")

const (
	sendBuffer  = 32
	callTimeout = 10 * time.Second
	stopTimeout = 5 * time.Second
)

// Client is a websocket signaling client. One Client serves one
// orchestrator instance; requests are correlated by uuid.
type Client struct {
	url    string
	apiKey string

	conn *websocket.Conn
	send chan []byte

	mu      sync.RWMutex
	pending map[string]chan envelope
	closed  bool

	events chan core.RemoteEvent
	cancel context.CancelFunc
}

func NewClient(url, apiKey string) *Client {
	return &Client{
		url:     url,
		apiKey:  apiKey,
		send:    make(chan []byte, sendBuffer),
		pending: make(map[string]chan envelope),
		events:  make(chan core.RemoteEvent, 16),
	}
}

// Dial connects the websocket and starts the read/write pumps. The
// connection lives until Close or ctx cancellation.
func (c *Client) Dial(ctx context.Context) error {
	header := http.Header{}
	if c.apiKey != "" {
		header.Set("Authorization", "Bearer "+c.apiKey)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, header)
	if err != nil {
		return fmt.Errorf("signaling dial: %w", err)
	}
	c.conn = conn

	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	go c.writePump(ctx)
	go c.readPump(ctx)
	log.Info().Str("module", "signal").Str("url", c.url).Msg("signaling connected")
	return nil
}

func (c *Client) trySend(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- data:
	default:
		return ErrBackpressure
	}
	return nil
}

// call sends one request and waits for the correlated reply.
func (c *Client) call(ctx context.Context, action string, body any) (envelope, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return envelope{}, err
	}
	id := uuid.NewString()
	req := envelope{ID: id, Action: action, Body: raw}
	data, err := json.Marshal(req)
	if err != nil {
		return envelope{}, err
	}

	reply := make(chan envelope, 1)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return envelope{}, errors.New("connection closed")
	}
	c.pending[id] = reply
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	if err := c.trySend(data); err != nil {
		return envelope{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()
	select {
	case env := <-reply:
		return env, nil
	case <-ctx.Done():
		return envelope{}, ctx.Err()
	}
}

func (c *Client) GetCredential(ctx context.Context) (core.Credential, error) {
	env, err := c.call(ctx, actionGetToken, struct{}{})
	if err != nil {
		return core.Credential{}, &core.StepError{Step: actionGetToken, Err: err, Transient: true}
	}
	if env.Error != nil {
		if env.Error.Code == codeAuth {
			return core.Credential{}, fmt.Errorf("%w: %s", core.ErrAuth, env.Error.Message)
		}
		return core.Credential{}, &core.StepError{
			Step:      actionGetToken,
			Err:       errors.New(env.Error.Message),
			Transient: env.Error.Code == codeTransient,
		}
	}
	var body tokenBody
	if err := json.Unmarshal(env.Body, &body); err != nil {
		return core.Credential{}, &core.StepError{Step: actionGetToken, Err: err}
	}
	cred := core.Credential{Token: body.Token}
	if body.ExpiresIn > 0 {
		cred.ExpiresAt = time.Now().Add(time.Duration(body.ExpiresIn) * time.Second)
	}
	return cred, nil
}

func (c *Client) CreateSession(ctx context.Context, cred core.Credential, params domain.SessionParams) (core.CreateResult, error) {
	env, err := c.call(ctx, actionCreate, createBody{
		AvatarID: string(params.AvatarID),
		VoiceID:  string(params.VoiceID),
		Quality:  string(params.Quality),
		Token:    cred.Token,
	})
	if err != nil {
		return core.CreateResult{}, core.NewCreateError(err)
	}
	if env.Error != nil {
		if env.Error.Code == codeAuth {
			return core.CreateResult{}, fmt.Errorf("%w: %s", core.ErrAuth, env.Error.Message)
		}
		return core.CreateResult{}, core.NewCreateError(errors.New(env.Error.Message))
	}
	var body createReply
	if err := json.Unmarshal(env.Body, &body); err != nil {
		return core.CreateResult{}, core.NewCreateError(err)
	}

	res := core.CreateResult{
		SessionID: domain.SessionID(body.SessionID),
		RemoteOffer: webrtc.SessionDescription{
			Type: webrtc.SDPTypeOffer,
			SDP:  body.SDP,
		},
	}
	for _, s := range body.ICEServer {
		res.ICEServers = append(res.ICEServers, webrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	return res, nil
}

func (c *Client) StartSession(ctx context.Context, sid domain.SessionID, answer webrtc.SessionDescription) error {
	env, err := c.call(ctx, actionStart, startBody{SessionID: string(sid), SDP: answer.SDP})
	if err != nil {
		return core.NewNegotiationError(err)
	}
	if env.Error != nil {
		return core.NewNegotiationError(errors.New(env.Error.Message))
	}
	return nil
}

// SubmitCandidate is fire-and-forget: a dropped candidate is logged by
// the caller, never fatal.
func (c *Client) SubmitCandidate(ctx context.Context, sid domain.SessionID, cand webrtc.ICECandidateInit) error {
	body := candidateBody{
		SessionID:     string(sid),
		Candidate:     cand.Candidate,
		SDPMid:        cand.SDPMid,
		SDPMLineIndex: cand.SDPMLineIndex,
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	data, err := json.Marshal(envelope{Action: actionICECandidate, Body: raw})
	if err != nil {
		return err
	}
	return c.trySend(data)
}

func (c *Client) SendCommand(ctx context.Context, sid domain.SessionID, kind domain.CommandKind, payload string) error {
	var action string
	body := commandBody{SessionID: string(sid)}
	switch kind {
	case domain.CommandSpeak:
		action = actionSendTask
		body.Text = payload
	case domain.CommandGesture:
		action = actionSendGesture
		body.Value = payload
	case domain.CommandEmotion:
		action = actionSetEmotion
		body.Value = payload
	case domain.CommandListening:
		action = actionSetListening
		body.Value = payload
	case domain.CommandInterrupt:
		action = actionInterrupt
	default:
		return &core.CommandError{Kind: string(kind), Err: errors.New("unknown command kind")}
	}

	env, err := c.call(ctx, action, body)
	if err != nil {
		return &core.CommandError{Kind: string(kind), Err: err}
	}
	if env.Error != nil {
		return &core.CommandError{Kind: string(kind), Err: errors.New(env.Error.Message)}
	}
	return nil
}

// StopSession is best-effort with its own deadline so local cleanup is
// never blocked on a broken backend.
func (c *Client) StopSession(ctx context.Context, sid domain.SessionID) error {
	ctx, cancel := context.WithTimeout(ctx, stopTimeout)
	defer cancel()
	env, err := c.call(ctx, actionStop, sessionBody{SessionID: string(sid)})
	if err != nil {
		return err
	}
	if env.Error != nil {
		return errors.New(env.Error.Message)
	}
	return nil
}

func (c *Client) Events() <-chan core.RemoteEvent {
	return c.events
}

func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.mu.Unlock()

	if c.cancel != nil {
		c.cancel()
	}
	if c.conn != nil {
		_ = c.conn.Close()
	}
}
