// Command alertd is the daemon: it loads configuration, opens the
// store, starts the three ingestors (SNMP trap listener, webhook
// handler, active-poll driver), wires the event bus to the WebSocket
// gateway, and serves the REST control plane.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/nocalert/core/internal/addons"
	"github.com/nocalert/core/internal/alertengine"
	"github.com/nocalert/core/internal/api"
	"github.com/nocalert/core/internal/auth"
	"github.com/nocalert/core/internal/config"
	"github.com/nocalert/core/internal/eventbus"
	"github.com/nocalert/core/internal/ingest/poll"
	"github.com/nocalert/core/internal/ingest/trap"
	"github.com/nocalert/core/internal/ingest/webhook"
	"github.com/nocalert/core/internal/store"
	"github.com/nocalert/core/internal/wsgateway"
)

// Version is stamped at build time with -ldflags.
var Version = "dev"

const shutdownGrace = 30 * time.Second

// reloadSystemSettings applies the system_settings table on SIGHUP,
// the same trigger the teacher's ConfigWatcher reacts to. Unlike the
// .env overlay (watched continuously by fsnotify), these are
// operator-editable at runtime via the API and only take
// effect on an explicit reload signal.
func reloadSystemSettings(ctx context.Context, s *store.Store) {
	settings, err := s.Settings.All(ctx)
	if err != nil {
		log.Error().Err(err).Msg("alertd: failed to reload system_settings")
		return
	}
	if level, ok := settings["log_level"]; ok {
		if parsed, err := zerolog.ParseLevel(level); err == nil {
			zerolog.SetGlobalLevel(parsed)
		}
	}
	log.Info().Int("count", len(settings)).Msg("alertd: system_settings reloaded")
}

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("alertd: failed to load configuration")
	}
	if level, parseErr := zerolog.ParseLevel(cfg.LogLevel); parseErr == nil {
		zerolog.SetGlobalLevel(level)
	}

	api.Version = Version
	log.Info().Str("version", Version).Msg("starting alertd")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, err := store.Open(ctx, store.Config{DataDir: cfg.DataDir})
	if err != nil {
		log.Fatal().Err(err).Msg("alertd: failed to open store")
	}
	defer s.Close()

	registry := addons.New(s.Addons)
	if err := registry.Reload(ctx); err != nil {
		log.Fatal().Err(err).Msg("alertd: failed to load addon registry")
	}

	var cross eventbus.CrossProcessPublisher
	if cfg.RedisURL != "" {
		redisPub, err := eventbus.NewRedisPublisher(cfg.RedisURL)
		if err != nil {
			log.Warn().Err(err).Msg("alertd: failed to connect to redis, running single-process")
		} else {
			cross = redisPub
			defer redisPub.Close()
		}
	}
	bus := eventbus.New(ctx, cross)

	hub := wsgateway.NewHub()
	hub.SetAllowedOrigins(cfg.WSAllowedOrigins)
	go hub.Run()
	bus.Subscribe(hub.Publish)

	engine := alertengine.New(s.Alerts, bus)

	trapListener := trap.NewListener(registry, engine).WithMIBs(s.MIB)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.TrapPort)
		if err := trapListener.ListenAndServe(ctx, addr); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("alertd: trap listener stopped")
		}
	}()
	defer trapListener.Close()

	webhookHandler := webhook.NewHandler(registry, engine, 0)

	credResolver := store.NewEnvCredentialResolver()
	pollDriver := poll.NewDriver(s.Targets, registry, engine, credResolver)
	go pollDriver.Run(ctx)

	issuer := auth.NewTokenIssuer(cfg.JWTSecret, time.Hour)
	apiServer := api.New(s, registry, engine, issuer, pollDriver).WithCredentialResolver(credResolver)

	if cfg.OIDCIssuerURL != "" {
		oidcProvider, err := auth.NewOIDCProvider(ctx, auth.OIDCConfig{
			IssuerURL:    cfg.OIDCIssuerURL,
			ClientID:     cfg.OIDCClientID,
			ClientSecret: cfg.OIDCClientSecret,
			RedirectURL:  cfg.OIDCRedirectURL,
		})
		if err != nil {
			log.Warn().Err(err).Msg("alertd: oidc provider setup failed, sso login disabled")
		} else {
			apiServer.WithOIDC(oidcProvider)
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/api/v1/", apiServer.Router())
	mux.Handle("/webhooks/", webhookHandler)
	mux.HandleFunc("/ws", hub.HandleWebSocket)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	watcher, err := config.NewWatcher(cfg)
	if err != nil {
		log.Warn().Err(err).Msg("alertd: failed to start config watcher, .env changes require restart")
	} else {
		defer watcher.Stop()
	}

	go func() {
		var serveErr error
		if cfg.TLSCertFile != "" && cfg.TLSKeyFile != "" {
			log.Info().Int("port", cfg.HTTPPort).Str("protocol", "https").Msg("api server listening")
			serveErr = httpServer.ListenAndServeTLS(cfg.TLSCertFile, cfg.TLSKeyFile)
		} else {
			log.Info().Int("port", cfg.HTTPPort).Str("protocol", "http").Msg("api server listening")
			serveErr = httpServer.ListenAndServe()
		}
		if serveErr != nil && serveErr != http.ErrServerClosed {
			log.Fatal().Err(serveErr).Msg("alertd: api server failed")
		}
	}()

	hupCh := make(chan os.Signal, 1)
	signal.Notify(hupCh, syscall.SIGHUP)
	go func() {
		for range hupCh {
			reloadSystemSettings(ctx, s)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	log.Info().Msg("alertd: shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("alertd: api server shutdown error")
	}

	cancel()
	log.Info().Msg("alertd: stopped")
}
