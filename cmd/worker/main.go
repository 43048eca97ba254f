package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"

	"github.com/osdentaire/agenda-api/internal/config"
	"github.com/osdentaire/agenda-api/internal/realtime"
	"github.com/osdentaire/agenda-api/internal/repository/postgres"
	"github.com/osdentaire/agenda-api/internal/service/scheduling"
	"github.com/osdentaire/agenda-api/pkg/logger"
)

var (
	refreshRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "availability_refresh_runs_total",
		Help: "Completed availability recompute sweeps",
	})
	refreshFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "availability_refresh_failures_total",
		Help: "Recompute sweeps that ended with an error",
	})
	refreshedProviders = promauto.NewCounter(prometheus.CounterOpts{
		Name: "availability_refreshed_providers_total",
		Help: "Providers whose next available slot was recomputed",
	})
	refreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "availability_refresh_duration_seconds",
		Help:    "Time spent recomputing provider availability",
		Buckets: prometheus.DefBuckets,
	})
)

// workerConfig is read straight from the environment; the worker is meant to
// run as a cron-style sidecar and carries no config file.
type workerConfig struct {
	Interval    time.Duration `envconfig:"REFRESH_INTERVAL" default:"5m"`
	Timezone    string        `envconfig:"TIMEZONE" default:"Europe/Paris"`
	SlotMinutes int           `envconfig:"SLOT_MINUTES" default:"15"`
	LogLevel    string        `envconfig:"LOG_LEVEL" default:"info"`
}

func main() {
	var wcfg workerConfig
	if err := envconfig.Process("AGENDA_WORKER", &wcfg); err != nil {
		log.Fatal().Err(err).Msg("failed to load worker configuration")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.New(&logger.Config{
		Level:   logger.ParseLevel(wcfg.LogLevel),
		Console: cfg.Logging.Console,
	})
	log.Logger = appLogger

	loc, err := time.LoadLocation(wcfg.Timezone)
	if err != nil {
		log.Fatal().Err(err).Str("timezone", wcfg.Timezone).Msg("invalid timezone")
	}

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	repo := postgres.NewSchedulingRepository(db)
	svc := scheduling.NewService(repo, realtime.NewBroker(), scheduling.Config{
		Location:    loc,
		SlotMinutes: wcfg.SlotMinutes,
	}, scheduling.WithLogger(appLogger))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().Dur("interval", wcfg.Interval).Msg("starting availability refresher")

	ticker := time.NewTicker(wcfg.Interval)
	defer ticker.Stop()

	runSweep(ctx, svc)
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("availability refresher stopped")
			return
		case <-ticker.C:
			runSweep(ctx, svc)
		}
	}
}

func runSweep(ctx context.Context, svc *scheduling.Service) {
	start := time.Now()
	refreshed, err := svc.RecomputeAvailability(ctx)
	refreshDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		refreshFailures.Inc()
		log.Error().Err(err).Msg("availability sweep failed")
		return
	}
	refreshRuns.Inc()
	refreshedProviders.Add(float64(refreshed))
	log.Info().Int("providers", refreshed).Dur("took", time.Since(start)).Msg("availability sweep complete")
}
