package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/osdentaire/agenda-api/internal/config"
	"github.com/osdentaire/agenda-api/internal/handler"
	appointmentHandler "github.com/osdentaire/agenda-api/internal/handler/appointment"
	realtimeHandler "github.com/osdentaire/agenda-api/internal/handler/realtime"
	"github.com/osdentaire/agenda-api/internal/middleware"
	"github.com/osdentaire/agenda-api/internal/realtime"
	"github.com/osdentaire/agenda-api/internal/repository/postgres"
	"github.com/osdentaire/agenda-api/internal/router"
	"github.com/osdentaire/agenda-api/internal/service/scheduling"
	"github.com/osdentaire/agenda-api/pkg/logger"
	"github.com/osdentaire/agenda-api/pkg/messaging/redis"
	"github.com/osdentaire/agenda-api/pkg/metrics"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	appLogger := logger.New(&logger.Config{
		Level:   logger.ParseLevel(cfg.Logging.Level),
		Console: cfg.Logging.Console,
	})
	log.Logger = appLogger

	loc, err := time.LoadLocation(cfg.Scheduling.Timezone)
	if err != nil {
		log.Fatal().Err(err).Str("timezone", cfg.Scheduling.Timezone).Msg("invalid scheduling timezone")
	}

	db, err := postgres.NewDB(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	schedulingRepo := postgres.NewSchedulingRepository(db)

	m := metrics.NewMetrics("agenda")

	broker := realtime.NewBroker(
		realtime.WithHistoryLimit(cfg.Scheduling.HistoryLimit),
		realtime.WithMetrics(m.Realtime),
	)

	svcOpts := []scheduling.Option{
		scheduling.WithMetrics(m.Scheduling),
		scheduling.WithLogger(appLogger),
	}

	if cfg.Redis.Enabled {
		redisBroker, err := redis.NewRedisBroker(redis.Config{
			URL:          cfg.Redis.URL,
			MaxRetries:   cfg.Redis.MaxRetries,
			RetryBackoff: cfg.Redis.RetryBackoff,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
		}, appLogger)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisBroker.Close()

		relay := realtime.NewRelay(redisBroker, cfg.Redis.Channel, appLogger)
		svcOpts = append(svcOpts, scheduling.WithRelay(relay))
	}

	schedulingSvc := scheduling.NewService(schedulingRepo, broker, scheduling.Config{
		Location:    loc,
		SlotMinutes: cfg.Scheduling.SlotMinutes,
		RosterTTL:   cfg.Scheduling.RosterTTL,
	}, svcOpts...)

	appointmentH := appointmentHandler.NewHandler(schedulingSvc)
	realtimeH := realtimeHandler.NewHandler(broker, cfg.Scheduling.PollTimeout, m.Realtime)
	baseH := handler.NewHandler(db)

	r := router.NewRouter(appointmentH, realtimeH, baseH, router.Config{
		RateLimitEnabled: cfg.RateLimit.Enabled,
		RateLimit:        rate.Limit(cfg.RateLimit.RequestsPerSecond),
		RateBurst:        cfg.RateLimit.Burst,
		CORSConfig:       middleware.DefaultCORSConfig(),
		MetricsPrefix:    "agenda_http",
	})
	r.Setup()

	srv := &http.Server{
		Addr:        fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:     r.Engine(),
		ReadTimeout: cfg.Server.ReadTimeout,
		// Write timeout must outlast the long-poll window.
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Int("port", cfg.Server.Port).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}
	log.Info().Msg("server stopped")
}
