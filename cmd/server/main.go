package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/ernestchu/christmas-tree/internal/config"
	"github.com/ernestchu/christmas-tree/internal/gateway"
	"github.com/ernestchu/christmas-tree/internal/logging"
	"github.com/ernestchu/christmas-tree/internal/server"
	"github.com/ernestchu/christmas-tree/internal/session"
	"github.com/ernestchu/christmas-tree/internal/version"
	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"
)

func main() {
	configPath := flag.StringP("config", "c", "", "path to config.yaml")
	addr := flag.StringP("addr", "a", "", "listen address, overrides the config")
	flag.Parse()

	cfg, err := config.LoadServer(*configPath)
	if err != nil {
		l := logging.Init("", zerolog.InfoLevel)
		l.Fatal().Err(err).Msg("config")
	}
	if *addr != "" {
		cfg.Address = *addr
	}

	log := logging.Init(cfg.LogLevel, zerolog.InfoLevel)
	log.Info().Msgf("version %s", version.Version)
	if log.GetLevel() <= zerolog.DebugLevel {
		log.Debug().Msgf("config: %+v", cfg)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := gateway.NewHub(session.NewRegistry(), cfg.Websocket, log)
	hubDone := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(hubDone)
	}()

	srv := &http.Server{
		Addr:    cfg.Address,
		Handler: server.NewRouter(hub, cfg, log),
	}
	go func() {
		log.Info().Str("addr", cfg.Address).Msg("coordination server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("http server")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("service shutdown errors")
	}
	<-hubDone
}
