package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/02loveslollipop/sensorlink/services/api/config"
	"github.com/02loveslollipop/sensorlink/services/api/db"
	httpserver "github.com/02loveslollipop/sensorlink/services/api/http"
	"github.com/02loveslollipop/sensorlink/services/api/internal/actuator"
	"github.com/02loveslollipop/sensorlink/services/api/internal/broadcast"
	"github.com/02loveslollipop/sensorlink/services/api/internal/command"
	"github.com/02loveslollipop/sensorlink/services/api/internal/ingest"
	"github.com/02loveslollipop/sensorlink/services/api/internal/liveness"
	"github.com/02loveslollipop/sensorlink/services/api/internal/metrics"
	"github.com/02loveslollipop/sensorlink/services/api/internal/sensor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil)).With("svc", "sensorlink-api")
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("db connection error: %v", err)
	}
	defer store.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	hub := broadcast.NewHub(logger)
	defer hub.Close()

	// Mirrors publish from a queue. Its Close is deferred after the sink's
	// so the queue drains first.
	mirrorFailed := func(event string, err error) {
		m.BroadcastError(event)
		logger.Warn("mirror_publish_failed", "event", event, "err", err)
	}
	sinks := broadcast.Multi{hub}
	if cfg.MQTTBroker != "" {
		mq, err := broadcast.NewMQTT(cfg.MQTTBroker, "sensorlink-api-"+uuid.NewString()[:8], cfg.MQTTTopicPrefix)
		if err != nil {
			logger.Warn("mqtt_mirror_disabled", "broker", cfg.MQTTBroker, "err", err)
		} else {
			defer mq.Close()
			mirror := broadcast.NewAsync(mq, broadcast.DefaultQueueSize, mirrorFailed)
			defer mirror.Close()
			sinks = append(sinks, mirror)
			logger.Info("mqtt_mirror_enabled", "broker", cfg.MQTTBroker, "prefix", cfg.MQTTTopicPrefix, "connected", mq.IsConnected())
		}
	}
	if len(cfg.KafkaBrokers) > 0 {
		kw := broadcast.NewKafka(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kw.Close()
		mirror := broadcast.NewAsync(kw, broadcast.DefaultQueueSize, mirrorFailed)
		defer mirror.Close()
		sinks = append(sinks, mirror)
		logger.Info("kafka_mirror_enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}
	bc := broadcast.ErrorHook{
		Next: sinks,
		OnError: func(event string, err error) {
			m.BroadcastError(event)
		},
	}

	set, err := cfg.Device.ActuatorSet()
	if err != nil {
		log.Fatalf("actuator config error: %v", err)
	}
	channels := cfg.Device.ChannelSpecs()

	tracker := liveness.NewTracker(cfg.LivenessWindow)
	metrics.RegisterDeviceActive(reg, func() bool { return tracker.IsActive(time.Now()) })

	actuators := actuator.NewStore(set, store, bc, actuator.WithMetrics(m), actuator.WithLogger(logger))
	initCtx, initCancel := context.WithTimeout(ctx, 10*time.Second)
	actuators.Initialize(initCtx)
	initCancel()

	ingestor := ingest.New(store, sensor.NewFilter(channels, cfg.StalenessWindow), tracker, bc,
		ingest.WithMetrics(m), ingest.WithLogger(logger))

	srv := httpserver.New(cfg, httpserver.Deps{
		Store:     store,
		Ingestor:  ingestor,
		Commands:  command.NewChannel(bc, command.WithMetrics(m), command.WithLogger(logger)),
		Actuators: actuators,
		Liveness:  tracker,
		Channels:  channels,
		Events:    hub,
		Metrics:   promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Log:       logger,
	})
	logger.Info("api_listening", "addr", cfg.ListenAddr(), "storage", cfg.Storage, "actuators", cfg.Device.Actuators)

	if err := srv.Run(ctx); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func openStore(ctx context.Context, cfg config.Config) (db.Gateway, error) {
	switch cfg.Storage {
	case config.StorageMemory:
		return db.NewMemoryStore(), nil
	case config.StoragePostgres:
		pg, err := db.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return pg, nil
	default:
		return nil, fmt.Errorf("unknown storage %q", cfg.Storage)
	}
}
