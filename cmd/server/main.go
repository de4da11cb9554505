package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	router "github.com/mgrn/tamari/internal/adapters/http"
	"github.com/mgrn/tamari/internal/adapters/presence"
	"github.com/mgrn/tamari/internal/adapters/profile"
	"github.com/mgrn/tamari/internal/adapters/ws"
	"github.com/mgrn/tamari/internal/config"
	"github.com/mgrn/tamari/internal/core"
	"github.com/mgrn/tamari/internal/domain"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
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

	var transport core.Transport = presence.NewMemoryTransport()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("redis unreachable")
		}
		transport = presence.NewRedisTransport(rdb)
		log.Info().Str("addr", cfg.RedisAddr).Msg("presence transport: redis")
	} else {
		log.Info().Msg("presence transport: in-memory")
	}

	guests := profile.NewGuestStore()
	profiles := profile.Sources{Guest: guests}
	if cfg.PostgresDSN != "" {
		db, err := gorm.Open(postgres.Open(cfg.PostgresDSN), &gorm.Config{})
		if err != nil {
			log.Fatal().Err(err).Msg("postgres unreachable")
		}
		profiles.Google = profile.NewPostgresSource(db)
		log.Info().Msg("registered-user profiles: postgres")
	} else {
		log.Warn().Msg("no postgres configured, guest identities only")
	}

	registry := core.NewRegistry(domain.MainRoom(cfg.RoomMaxOccupants))

	// The observer coordinator serves read-only queries and feeds the
	// recent-activity log; it never publishes presence itself.
	observer := core.NewCoordinator(registry, core.NewChannelClient(transport, cfg.ConnectTimeout))
	eventLog := core.NewEventLog(cfg.EventLogSize)
	for _, room := range registry.Rooms() {
		if _, err := observer.SubscribeDeltas(ctx, room.ID, eventLog.Append); err != nil {
			log.Fatal().Err(err).Str("room", string(room.ID)).Msg("observer subscribe failed")
		}
	}

	ctl := router.NewController(cfg, registry, transport, observer, guests, profiles)
	events := ws.NewEventsController(observer, eventLog, cfg.ReadLimit, cfg.PingPeriod)

	r := router.SetupRouter(ctx, cfg, ctl, events)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Tamari server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
