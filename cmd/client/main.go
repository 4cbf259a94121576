package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/dkeye/VoiceAgent/internal/adapters/http"
	"github.com/dkeye/VoiceAgent/internal/adapters/media"
	redismirror "github.com/dkeye/VoiceAgent/internal/adapters/redis"
	"github.com/dkeye/VoiceAgent/internal/adapters/rtc"
	sig "github.com/dkeye/VoiceAgent/internal/adapters/signal"
	"github.com/dkeye/VoiceAgent/internal/adapters/token"
	"github.com/dkeye/VoiceAgent/internal/app/alert"
	"github.com/dkeye/VoiceAgent/internal/app/contact"
	"github.com/dkeye/VoiceAgent/internal/app/orch"
	"github.com/dkeye/VoiceAgent/internal/app/results"
	"github.com/dkeye/VoiceAgent/internal/app/rpc"
	"github.com/dkeye/VoiceAgent/internal/app/session"
	"github.com/dkeye/VoiceAgent/internal/config"
	"github.com/dkeye/VoiceAgent/internal/core"
	"github.com/dkeye/VoiceAgent/internal/domain"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && lvl != zerolog.NoLevel {
		zerolog.SetGlobalLevel(lvl)
	}

	clientID := uuid.NewString()
	alerts := alert.NewQueue(alert.DefaultCapacity)

	var observers []results.Observer
	rdb, err := redismirror.NewClient(ctx, cfg.Redis)
	if err != nil {
		log.Warn().Err(err).Msg("results mirror disabled")
	}
	if rdb != nil {
		defer rdb.Close()
		mirror := redismirror.NewResultMirror(rdb, cfg.Redis.KeyPrefix, clientID, cfg.Redis.TTL)
		observers = append(observers, mirror)
		log.Info().Str("key", mirror.Key()).Msg("mirroring results to redis")
	}

	cache := results.NewCache(observers...)
	machine := contact.NewMachine(alerts, cfg.PromptDelay)

	var audio core.AudioSource = media.SilenceSource{}
	if cfg.AudioFile != "" {
		audio = media.OggSource{Path: cfg.AudioFile, Loop: cfg.AudioLoop, Paced: true}
	}

	transportOpts := sig.DefaultOptions()
	transportOpts.ReadLimit = cfg.ReadLimit
	transportOpts.PingPeriod = cfg.PingPeriod
	transportOpts.RPCTimeout = cfg.RPCTimeout
	transportOpts.RPCRateLimit = cfg.RPCRateLimit
	transportOpts.WebRTC = rtc.DefaultWebRTCConfig(cfg.ICEServers...)
	transportOpts.Sinks = media.RecordTo(cfg.RecordPath)

	lang, _ := domain.ParseLanguage(cfg.Language)
	manager := session.NewManager(session.Options{
		SignalURL:      cfg.SignalURL,
		Tokens:         token.NewClient(cfg.TokenURL, nil),
		NewTransport:   sig.Factory(transportOpts),
		Audio:          audio,
		RPC:            rpc.NewTable(cache, machine),
		Alerts:         alerts,
		Language:       lang,
		ConnectTimeout: cfg.ConnectTimeout,
	})

	o := &orch.Orchestrator{
		Session:    manager,
		Results:    cache,
		Contact:    machine,
		Alerts:     alerts,
		Room:       domain.RoomName(cfg.Room),
		RoomPrefix: cfg.RoomPrefix,
		UserPrefix: cfg.UserPrefix,
	}
	defer o.Close()

	r := router.SetupRouter(cfg, o)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Str("client_id", clientID).Msg("VoiceAgent client started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		log.Error().Err(err).Msg("server error")
	}
	log.Info().Msg("Shutting down")
	o.Close()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Client exited gracefully")
}
