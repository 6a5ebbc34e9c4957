package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	osignal "os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/antoncarlo/virtual-kin-connect-sub002/internal/adapters/http"
	"github.com/antoncarlo/virtual-kin-connect-sub002/internal/adapters/render"
	"github.com/antoncarlo/virtual-kin-connect-sub002/internal/adapters/rtc"
	"github.com/antoncarlo/virtual-kin-connect-sub002/internal/adapters/signal"
	"github.com/antoncarlo/virtual-kin-connect-sub002/internal/app/media"
	"github.com/antoncarlo/virtual-kin-connect-sub002/internal/app/netmon"
	"github.com/antoncarlo/virtual-kin-connect-sub002/internal/app/orch"
	"github.com/antoncarlo/virtual-kin-connect-sub002/internal/config"
	"github.com/antoncarlo/virtual-kin-connect-sub002/internal/core"
	"github.com/antoncarlo/virtual-kin-connect-sub002/internal/domain"
)

func main() {
	ctx, cancel := osignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
	}

	sig := signal.NewClient(cfg.SignalingURL, cfg.APIKey)
	if err := sig.Dial(ctx); err != nil {
		log.Fatal().Err(err).Msg("signaling dial failed")
	}
	defer sig.Close()

	sink := render.NewStatsSink()
	aggFactory := func(sid domain.SessionID, audioOnly bool, s core.RenderSink) core.StreamAggregator {
		return media.NewAggregator(sid, audioOnly, s)
	}

	o := orch.New(sig, rtc.NewMediaConnection, aggFactory, sink, defaultSampler(), orch.Options{
		RetryAttempts:  cfg.RetryAttempts,
		FirstFrameWait: cfg.FirstFrameWait,
		ReconnectWait:  cfg.ReconnectWait,
		StopWait:       cfg.StopWait,
		PrewarmTTL:     cfg.PrewarmTTL,
		SpeechPerChar:  cfg.SpeechPerChar,
		SpeechMinimum:  cfg.SpeechMinimum,
		SampleInterval: cfg.SampleInterval,
		Thresholds: netmon.Thresholds{
			GoodDownlinkMbps: cfg.GoodDownlinkMbps,
			PoorDownlinkMbps: cfg.PoorDownlinkMbps,
			GoodRTT:          cfg.GoodRTT,
			PoorRTT:          cfg.PoorRTT,
		},
	})

	r := router.SetupRouter(ctx, cfg, o, sink)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("kinlive control server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	o.Stop()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}

// defaultSampler reports a healthy link until a platform probe or the
// pion stats API is wired in; the monitor still exercises the full
// debounce path through change notifications.
func defaultSampler() netmon.Sampler {
	return netmon.SamplerFunc(func(ctx context.Context) (float64, time.Duration, error) {
		return 5.0, 50 * time.Millisecond, nil
	})
}
