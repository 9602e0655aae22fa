// FieldComm Core - device communication pipeline.
//
// Consumes device events from MQTT event sources, decodes them into a
// canonical form, admits devices through registration policy, and persists
// the result. Outbound, it routes commands to per-specification MQTT
// destinations and runs throttled batch operations against device fleets.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/calebren/fieldcomm-core/internal/batch"
	"github.com/calebren/fieldcomm-core/internal/codec"
	"github.com/calebren/fieldcomm-core/internal/command"
	"github.com/calebren/fieldcomm-core/internal/infrastructure/config"
	"github.com/calebren/fieldcomm-core/internal/infrastructure/database"
	"github.com/calebren/fieldcomm-core/internal/infrastructure/influxdb"
	"github.com/calebren/fieldcomm-core/internal/infrastructure/logging"
	"github.com/calebren/fieldcomm-core/internal/infrastructure/metrics"
	"github.com/calebren/fieldcomm-core/internal/infrastructure/mqtt"
	"github.com/calebren/fieldcomm-core/internal/pipeline"
	"github.com/calebren/fieldcomm-core/internal/registration"
	_ "github.com/calebren/fieldcomm-core/migrations"
)

// version is set at build time via -ldflags.
var version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to configuration file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("fieldcomm %s\n", version)
		return
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "fieldcomm: %v\n", err)
		os.Exit(1)
	}
}

// run wires the pipeline together and blocks until shutdown. Everything
// that can be validated eagerly (config, topic expressions, routing table,
// codec formats) fails here, before any event is consumed.
func run(configPath string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := logging.New(cfg.Logging, version)
	logger.Info("starting fieldcomm",
		"version", version,
		"service_id", cfg.Service.ID,
		"event_sources", len(cfg.EventSources),
		"destinations", len(cfg.Destinations),
	)

	// Database and migrations.
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close() //nolint:errcheck // Best effort on shutdown

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}

	// Registration manager over its SQLite repository.
	regRepo := registration.NewSQLiteRepository(db.DB)
	registrar, err := registration.NewManager(regRepo, registration.Policy{
		AllowNewDevices:  cfg.Registration.AllowNewDevices,
		AutoAssignSite:   cfg.Registration.AutoAssignSite,
		DefaultSiteToken: cfg.Registration.AutoAssignSiteToken,
	})
	if err != nil {
		return fmt.Errorf("building registration manager: %w", err)
	}
	registrar.SetLogger(logger)
	if err := registrar.RefreshCache(ctx); err != nil {
		return fmt.Errorf("warming registration cache: %w", err)
	}

	codecs := codec.NewRegistry()
	metricsCollectors := metrics.New()

	// Command destinations: one MQTT client each, eager construction so a
	// bad topic expression or unreachable broker fails start-up.
	destinations := make(map[string]*command.Destination, len(cfg.Destinations))
	var destClients []*mqtt.Client
	closeClients := func() {
		for _, c := range destClients {
			c.Close() //nolint:errcheck // Best effort on shutdown
		}
	}
	for _, dc := range cfg.Destinations {
		enc, err := codecs.Lookup(codec.Format(dc.Encoder))
		if err != nil {
			closeClients()
			return fmt.Errorf("destination %s: %w", dc.ID, err)
		}
		extractor, err := command.NewTopicExtractor(dc.CommandTopic, dc.SystemTopic)
		if err != nil {
			closeClients()
			return fmt.Errorf("destination %s: %w", dc.ID, err)
		}
		client, err := mqtt.Connect(dc.Transport)
		if err != nil {
			closeClients()
			return fmt.Errorf("destination %s: connecting: %w", dc.ID, err)
		}
		client.SetLogger(logger)
		destClients = append(destClients, client)

		dst := command.NewDestination(dc.ID, enc, extractor, client, client.DefaultQoS())
		dst.SetObserver(func(destinationID, status string) {
			metricsCollectors.CommandsSent.WithLabelValues(destinationID, status).Inc()
		})
		destinations[dc.ID] = dst
	}
	defer closeClients()

	// Routing table, validated against the registered destinations.
	var router *command.Router
	if len(cfg.Destinations) > 0 {
		mappings := make([]command.Mapping, len(cfg.Routing.Mappings))
		for i, m := range cfg.Routing.Mappings {
			mappings[i] = command.Mapping{
				SpecificationToken: m.Specification,
				DestinationID:      m.Destination,
			}
		}
		router, err = command.NewRouter(mappings, cfg.Routing.DefaultDestination, destinations)
		if err != nil {
			return fmt.Errorf("building command router: %w", err)
		}
	}

	// Event sinks: InfluxDB when enabled, otherwise log-only.
	var sinks []pipeline.EventSink
	if cfg.InfluxDB.Enabled {
		influx, err := influxdb.Connect(cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting influxdb: %w", err)
		}
		defer influx.Close() //nolint:errcheck // Flushes buffered writes
		influx.SetOnError(func(err error) {
			logger.Warn("influxdb write failed", "error", err)
		})
		sinks = append(sinks, pipeline.NewInfluxSink(influx))
	} else {
		sinks = append(sinks, pipeline.NewLogSink(logger))
	}

	// Inbound pipeline: processor chain, dispatcher, sources.
	processor := pipeline.NewProcessor(registrar, sinks, logger)

	var monitorInterval time.Duration
	if cfg.Dispatcher.Monitoring.Enabled {
		monitorInterval = time.Duration(cfg.Dispatcher.Monitoring.IntervalSec) * time.Second
	}
	dispatcher := pipeline.NewDispatcher(processor.Process, pipeline.DispatcherOptions{
		QueueCapacity:   cfg.Dispatcher.QueueCapacity,
		Workers:         cfg.Dispatcher.WorkerCount,
		MonitorInterval: monitorInterval,
		Metrics:         metricsCollectors,
		Logger:          logger,
	})

	sources := make([]*pipeline.Source, 0, len(cfg.EventSources))
	var sourceClients []*mqtt.Client
	defer func() {
		for _, c := range sourceClients {
			c.Close() //nolint:errcheck // Best effort on shutdown
		}
	}()
	for _, sc := range cfg.EventSources {
		dec, err := codecs.Lookup(codec.Format(sc.Decoder))
		if err != nil {
			return fmt.Errorf("event source %s: %w", sc.ID, err)
		}
		client, err := mqtt.Connect(sc.Transport)
		if err != nil {
			return fmt.Errorf("event source %s: connecting: %w", sc.ID, err)
		}
		client.SetLogger(logger)
		sourceClients = append(sourceClients, client)

		sources = append(sources, pipeline.NewSource(pipeline.SourceOptions{
			ID:        sc.ID,
			Topic:     sc.Topic,
			Decoder:   dec,
			Transport: client,
			Queue:     dispatcher,
			Metrics:   metricsCollectors,
			Logger:    logger,
		}))
	}

	pipe, err := pipeline.NewPipeline(sources, dispatcher, logger)
	if err != nil {
		return fmt.Errorf("assembling pipeline: %w", err)
	}
	if err := pipe.Start(ctx); err != nil {
		return err
	}

	// Batch operations, routed through the same destinations.
	var batchMgr *batch.Manager
	if router != nil {
		batchRepo := batch.NewSQLiteRepository(db.DB)
		throttle := time.Duration(cfg.Batch.ThrottleDelayMs) * time.Millisecond
		batchMgr = batch.NewManager(batchRepo, registrar,
			func(specToken string) batch.Sender { return router.Route(specToken) },
			throttle,
		)
		batchMgr.SetLogger(logger)
		batchMgr.SetObserver(func(status batch.ElementStatus) {
			metricsCollectors.BatchElements.WithLabelValues(string(status)).Inc()
		})
	}

	// Metrics exposition.
	var metricsSrv *metrics.Server
	if cfg.Metrics.Enabled {
		registry := prometheus.NewRegistry()
		if err := metricsCollectors.Register(registry); err != nil {
			return fmt.Errorf("registering metrics: %w", err)
		}
		addr := net.JoinHostPort(cfg.Metrics.Host, strconv.Itoa(cfg.Metrics.Port))
		metricsSrv = metrics.NewServer(addr, registry)
		go func() {
			if err := metricsSrv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		logger.Info("metrics listening", "addr", addr)
	}

	logger.Info("fieldcomm running")
	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Intake first: stop sources and drain the dispatcher, then let batch
	// operations finish, then close the ancillary servers.
	if err := pipe.Stop(shutdownCtx); err != nil {
		logger.Warn("pipeline shutdown incomplete", "error", err)
	}
	if batchMgr != nil {
		if err := batchMgr.Stop(shutdownCtx); err != nil {
			logger.Warn("batch shutdown incomplete", "error", err)
		}
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(); err != nil {
			logger.Warn("metrics shutdown failed", "error", err)
		}
	}

	logger.Info("fieldcomm stopped")
	return nil
}
