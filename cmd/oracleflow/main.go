// Command oracleflow runs the oracle backend process: admission, bus
// consumption, aggregation and the REST/WebSocket API all share one
// binary, per spec.md §6, with a context-cancel-on-signal shutdown.
package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"oracleflow/internal/admission"
	"oracleflow/internal/aggregate"
	"oracleflow/internal/bus"
	"oracleflow/internal/config"
	"oracleflow/internal/domain"
	"oracleflow/internal/httpapi"
	"oracleflow/internal/logger"
	"oracleflow/internal/merkle"
	"oracleflow/internal/metrics"
	"oracleflow/internal/optioncache"
	"oracleflow/internal/ratelimit"
	"oracleflow/internal/registry"
	"oracleflow/internal/store"
)

const (
	registryCacheCapacity = 10_000
	registryCacheTTL      = time.Minute
	merkleCacheCapacity   = 256
	optionCacheTTL        = 5 * time.Second
	dedupCacheCapacity    = 100_000
)

func main() {
	log := logger.Get()

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("error loading .env file")
	}

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("failed to load configuration")
	}

	if err := log.Configure(cfg.LogLevel, cfg.LogFormat, cfg.LogOutput); err != nil {
		log.WithError(err).Fatal("failed to configure logger")
	}

	log.WithFields(logger.Fields{"mode": cfg.Mode, "port": cfg.Port}).Info("starting oracleflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleShutdown(cancel)

	logger.StartReport(ctx, log, 30*time.Second)
	metrics.Init(ctx, "0.0.0.0:"+strconv.Itoa(cfg.MetricsPort))

	st, err := store.Open(ctx, cfg.OffchainDatabaseURL, cfg.DatabaseMaxConn)
	if err != nil {
		log.WithError(err).Fatal("failed to open store")
	}
	defer st.Close()

	registryCache, err := registry.New(st, registryCacheCapacity, registryCacheTTL)
	if err != nil {
		log.WithError(err).Fatal("failed to build registry cache")
	}

	producer, err := bus.NewProducer(cfg.KafkaBrokers, cfg.Topic, log)
	if err != nil {
		log.WithError(err).Fatal("failed to build bus producer")
	}
	defer producer.Close()

	consumer := bus.NewConsumer(bus.ConsumerConfig{
		Brokers: cfg.KafkaBrokers,
		Topic:   cfg.Topic,
		GroupID: cfg.GroupID,
	}, st, log)
	if err := consumer.Start(ctx); err != nil {
		log.WithError(err).Fatal("failed to start bus consumer")
	}
	defer consumer.Stop()

	admissionPipeline, err := admission.New(registryCache, producer, admission.Config{
		Window:               domain.AdmissionWindow{MaxAge: cfg.AdmissionMaxAge, MaxFuture: cfg.AdmissionMaxFuture},
		PublisherMaxSessions: cfg.PublisherMaxSessions,
		DedupCapacity:        dedupCacheCapacity,
	}, log)
	if err != nil {
		log.WithError(err).Fatal("failed to build admission pipeline")
	}
	admissionPipeline.StartSessionSweeper(ctx, time.Minute, 10*time.Minute)

	engine := aggregate.New(st, aggregate.WithOutlierFiltering(domain.Width10s))

	merkleCache, err := merkle.New(st, merkleCacheCapacity)
	if err != nil {
		log.WithError(err).Fatal("failed to build merkle cache")
	}

	optionCache, err := optioncache.New(ctx, cfg.RedisURL, st, optionCacheTTL)
	if err != nil {
		log.WithError(err).Fatal("failed to build option cache")
	}
	defer optionCache.Close()

	limiter := ratelimit.New(map[ratelimit.RouteClass]ratelimit.Limits{
		ratelimit.ClassPublic:  {RPS: cfg.RateLimit.PublicRPS, Burst: cfg.RateLimit.PublicBurst},
		ratelimit.ClassPublish: {RPS: cfg.RateLimit.PublishRPS, Burst: cfg.RateLimit.PublishBurst},
	})

	server := httpapi.New(cfg, log, admissionPipeline, engine, merkleCache, optionCache, st, producer, limiter)
	if err := server.Run(ctx); err != nil {
		log.WithError(err).Fatal("http server exited with error")
	}
}

func handleShutdown(cancel context.CancelFunc) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	<-ch
	cancel()
}
