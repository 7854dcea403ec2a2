package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/carebridge/telehealth-core/internal/caresession"
	"github.com/carebridge/telehealth-core/internal/config"
	"github.com/carebridge/telehealth-core/internal/db"
	"github.com/carebridge/telehealth-core/internal/event"
	redisclient "github.com/carebridge/telehealth-core/internal/redis"
	"github.com/carebridge/telehealth-core/internal/scheduling"
	"github.com/carebridge/telehealth-core/internal/subscription"
	"github.com/carebridge/telehealth-core/internal/user"
)

// The sweeper is the safety net behind lazy expiry: it periodically
// expires ended subscriptions, completes elapsed approved appointments,
// and force-ends stale video sessions.
func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Str("service", "sweeper").Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load error")
	}
	log.Info().Str("env", cfg.Env).Dur("interval", cfg.SweepInterval).Msg("sweeper starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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
	orchestrator := caresession.NewOrchestrator(sessionRepo, apptRepo, ledger, &caresession.LocalRoomProvider{}, bus, caresession.Config{
		SlotDuration: cfg.SlotDuration,
		SessionGrace: cfg.SessionGrace,
	}, log)

	sweeps := []sweep{
		{"expire_subscriptions", ledger.SweepExpired},
		{"complete_appointments", func(ctx context.Context) error {
			return scheduler.SweepCompletable(ctx, cfg.SlotDuration, cfg.SessionGrace)
		}},
		{"end_stale_sessions", orchestrator.SweepStaleSessions},
	}

	runOnce(rootCtx, log, sweeps)

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Info().Msg("shutdown signal received, stopping sweeper")
			return
		case <-ticker.C:
			runOnce(rootCtx, log, sweeps)
		}
	}
}

type sweep struct {
	name string
	run  func(context.Context) error
}

func runOnce(ctx context.Context, log zerolog.Logger, sweeps []sweep) {
	runCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	for _, s := range sweeps {
		start := time.Now()
		if err := s.run(runCtx); err != nil {
			log.Error().Err(err).Str("sweep", s.name).Msg("sweep run error")
			continue
		}
		log.Info().Str("sweep", s.name).Dur("elapsed", time.Since(start)).Msg("sweep run complete")
	}
}
