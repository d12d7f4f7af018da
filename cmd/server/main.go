package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/caic-labs/caic/internal/adapter/driven/media/zego"
	"github.com/caic-labs/caic/internal/adapter/driven/persistence/bolt"
	"github.com/caic-labs/caic/internal/adapter/driven/store/memory"
	handler "github.com/caic-labs/caic/internal/adapter/driving/http"
	"github.com/caic-labs/caic/internal/config"
	"github.com/caic-labs/caic/internal/core/service"
)

func main() {
	configPath := flag.String("config", "caic.ini", "path to ini config file")
	flag.Parse()

	w := zerolog.ConsoleWriter{Out: os.Stdout}
	l := zerolog.New(w).With().Timestamp().Caller().Logger()
	zlog.Logger = l

	cfg, err := config.Load(*configPath)
	if err != nil {
		l.Fatal().Err(err).Msg("Failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		l.Fatal().Err(err).Msg("Invalid config")
	}

	if err := os.MkdirAll(cfg.DataDir, 0750); err != nil {
		l.Fatal().Err(err).Msg("Failed to create data dir")
	}
	db, err := bolt.Open(filepath.Join(cfg.DataDir, "caic.db"))
	if err != nil {
		l.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()

	tokens, err := zego.NewTokenIssuer(cfg.ZegoAppID, cfg.ZegoSecret)
	if err != nil {
		l.Fatal().Err(err).Msg("Invalid media credentials")
	}

	store := memory.NewStore()
	directory := bolt.NewDirectory(db)
	history := bolt.NewHistoryStore(db)

	h := handler.NewHandler(handler.Deps{
		Directory:     directory,
		History:       history,
		Store:         store,
		Tokens:        tokens,
		Presence:      service.NewPresenceService(store),
		Chat:          service.NewChatService(store),
		Notifications: service.NewNotificationService(store),
		Config:        cfg,
	})

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: h.NewRouter(),
	}

	go func() {
		l.Info().Str("addr", cfg.ListenAddr).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			l.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	l.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		l.Error().Err(err).Msg("Server forced to shutdown")
	}

	l.Info().Msg("Server exited")
}
