package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/carebridge/telehealth-core/internal/api"
	"github.com/carebridge/telehealth-core/internal/caresession"
	"github.com/carebridge/telehealth-core/internal/config"
	"github.com/carebridge/telehealth-core/internal/db"
	"github.com/carebridge/telehealth-core/internal/event"
	redisclient "github.com/carebridge/telehealth-core/internal/redis"
	"github.com/carebridge/telehealth-core/internal/scheduling"
	"github.com/carebridge/telehealth-core/internal/subscription"
	"github.com/carebridge/telehealth-core/internal/user"
)

const version = "0.3.0"

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Str("service", "api-server").Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}
	if cfg.Env == "dev" {
		log = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}
	log.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Msg("api-server starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := db.Migrate(cfg.PostgresDSN); err != nil {
		log.Fatal().Err(err).Msg("migration error")
	}

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	log.Info().Msg("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatal().Err(err).Msg("redis connection error")
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Error().Err(err).Msg("error closing redis")
		}
	}()
	log.Info().Msg("connected to Redis")

	bus := event.NewBus(event.NewPgLog(pgPool), log)

	userRepo := user.NewPgRepository(pgPool)
	subRepo := subscription.NewPgRepository(pgPool)
	apptRepo := scheduling.NewPgRepository(pgPool)
	sessionRepo := caresession.NewPgRepository(pgPool)

	ledger := subscription.NewLedger(subRepo, userRepo, bus, log)

	locker := redisclient.NewRedisDoctorLocker(rdb, cfg.LockTTL)
	scheduler := scheduling.NewScheduler(apptRepo, userRepo, ledger, locker, bus, scheduling.Config{
		SlotDuration: cfg.SlotDuration,
		CancelCutoff: cfg.CancelCutoff,
	}, log)

	var provider caresession.RoomProvider
	if cfg.ProviderBaseURL != "" {
		provider = caresession.NewHTTPRoomProvider(cfg.ProviderBaseURL, cfg.ProviderTimeout)
	} else {
		provider = &caresession.LocalRoomProvider{}
	}
	orchestrator := caresession.NewOrchestrator(sessionRepo, apptRepo, ledger, provider, bus, caresession.Config{
		SlotDuration: cfg.SlotDuration,
		SessionGrace: cfg.SessionGrace,
	}, log)
	orchestrator.Register(bus)

	router := api.NewRouter(api.RouterConfig{
		Scheduler:    scheduler,
		Ledger:       ledger,
		Orchestrator: orchestrator,
		Pool:         pgPool,
		Redis:        rdb,
		Log:          log,
		Env:          cfg.Env,
		Version:      version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-rootCtx.Done()
	log.Info().Msg("shutting down api-server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown error")
	}
}
