package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/antoncarlo/virtual-kin-connect-sub002/internal/adapters/render"
	"github.com/antoncarlo/virtual-kin-connect-sub002/internal/app/orch"
	"github.com/antoncarlo/virtual-kin-connect-sub002/internal/core"
	"github.com/antoncarlo/virtual-kin-connect-sub002/internal/domain"
)

// Controller exposes one orchestrator instance over REST. The UI layer
// owns rendering only; session and track lifecycle stay behind the
// orchestrator.
type Controller struct {
	Orch *orch.Orchestrator
	Sink *render.StatsSink
}

func NewController(o *orch.Orchestrator, sink *render.StatsSink) *Controller {
	return &Controller{Orch: o, Sink: sink}
}

type startRequest struct {
	AvatarID  string `json:"avatar_id"`
	VoiceID   string `json:"voice_id"`
	Quality   string `json:"quality"`
	AudioOnly bool   `json:"audio_only"`
}

type textRequest struct {
	Text string `json:"text"`
}

type kindRequest struct {
	Kind string `json:"kind"`
}

type listeningRequest struct {
	On bool `json:"on"`
}

func (ctl *Controller) handleStart(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	params, err := domain.NewSessionParams(domain.AvatarID(req.AvatarID), domain.VoiceID(req.VoiceID), domain.QualityTier(req.Quality))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	params.AudioOnly = req.AudioOnly

	if err := ctl.Orch.Start(c.Request.Context(), params); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"state": ctl.Orch.State().String()})
}

func (ctl *Controller) handleStop(c *gin.Context) {
	ctl.Orch.Stop()
	c.JSON(http.StatusOK, gin.H{"state": ctl.Orch.State().String()})
}

func (ctl *Controller) handlePrewarm(c *gin.Context) {
	// Outlives the request; prewarm is speculative background work.
	go ctl.Orch.Prewarm(context.Background())
	c.JSON(http.StatusAccepted, gin.H{"status": "warming"})
}

func (ctl *Controller) handleStatus(c *gin.Context) {
	resp := gin.H{
		"state":              ctl.Orch.State().String(),
		"speaking":           ctl.Orch.Speech().IsSpeaking(),
		"speaking_estimated": ctl.Orch.Speech().SpeakingEstimated(),
	}
	if sess, ok := ctl.Orch.Session(); ok {
		resp["session"] = sess
	}
	if err := ctl.Orch.LastError(); err != nil {
		resp["last_error"] = err.Error()
	}
	if samples := ctl.Orch.QualitySamples(); len(samples) > 0 {
		last := samples[len(samples)-1]
		resp["quality_tier"] = last.Tier.String()
	}
	c.JSON(http.StatusOK, resp)
}

func (ctl *Controller) handleMediaStats(c *gin.Context) {
	if ctl.Sink == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no sink attached"})
		return
	}
	c.JSON(http.StatusOK, ctl.Sink.Snapshot())
}

func (ctl *Controller) handleSpeak(c *gin.Context) {
	var req textRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid text"})
		return
	}
	if err := ctl.Orch.Speak(c.Request.Context(), req.Text); err != nil {
		ctl.commandError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"speaking": true, "estimated": true})
}

func (ctl *Controller) handleInterrupt(c *gin.Context) {
	if err := ctl.Orch.Interrupt(c.Request.Context()); err != nil {
		ctl.commandError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"speaking": false})
}

func (ctl *Controller) handleGesture(c *gin.Context) {
	var req kindRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Kind == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid kind"})
		return
	}
	if err := ctl.Orch.Gesture(c.Request.Context(), req.Kind); err != nil {
		ctl.commandError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{})
}

func (ctl *Controller) handleEmotion(c *gin.Context) {
	var req kindRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Kind == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid kind"})
		return
	}
	if err := ctl.Orch.SetEmotion(c.Request.Context(), req.Kind); err != nil {
		ctl.commandError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{})
}

func (ctl *Controller) handleListening(c *gin.Context) {
	var req listeningRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	if err := ctl.Orch.SetListening(c.Request.Context(), req.On); err != nil {
		ctl.commandError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{})
}

func (ctl *Controller) handleDebugSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, ctl.Orch.Debug().Snapshot())
}

func (ctl *Controller) commandError(c *gin.Context, err error) {
	if errors.Is(err, core.ErrNotActive) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	var cmdErr *core.CommandError
	if errors.As(err, &cmdErr) {
		c.JSON(http.StatusBadGateway, gin.H{"error": cmdErr.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}
