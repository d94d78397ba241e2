package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/speedwagon-io/motordiag/internal/api"
	"github.com/speedwagon-io/motordiag/internal/config"
	"github.com/speedwagon-io/motordiag/internal/health"
	"github.com/speedwagon-io/motordiag/internal/ingest"
	"github.com/speedwagon-io/motordiag/internal/lib/logger/sl"
	"github.com/speedwagon-io/motordiag/internal/metrics"
	"github.com/speedwagon-io/motordiag/internal/monitor"
	"github.com/speedwagon-io/motordiag/internal/pipeline"
	"github.com/speedwagon-io/motordiag/internal/stream"
)

const shutdownTimeout = 10 * time.Second

func newServeCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the ingest and diagnosis service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(root.configPath)
			if err != nil {
				return err
			}
			return serve(cmd.Context(), cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	log := sl.SetupLogger(cfg.Log.Level, cfg.Log.Format)

	log.Info("starting motordiag",
		slog.String("env", cfg.Env),
		slog.String("storage", cfg.Storage.Driver),
		slog.String("backend", cfg.Inference.Backend),
	)

	store, err := openStore(log, cfg.Storage)
	if err != nil {
		log.Error("failed to open store", sl.Err(err))
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("failed to close store", sl.Err(err))
		}
	}()

	artifacts, err := loadArtifacts(ctx, log, cfg)
	if err != nil {
		log.Error("failed to load artifacts", sl.Err(err))
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	diag := pipeline.FromArtifacts(log, store, artifacts, pipeline.WithObserver(m))
	ingester := ingest.NewService(log, store, m)
	hub := stream.NewHub(log, stream.WithClientGauge(m.SetStreamClients))
	notifier := newNotifier(log, cfg.Notify)

	handler := api.NewHandler(log, ingester, diag, cfg.HTTP.MaxBodyBytes)
	router := api.NewRouter(log, handler, api.RouterOptions{
		KeyHashes: cfg.API.KeyHashes,
		Stream:    hub,
	})
	apiServer := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	healthServer := health.NewServer(log, cfg.Health.Address,
		health.WithMetricsHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})),
	)
	healthServer.AddChecker(health.NewStoreHealthChecker(store.Count))
	healthServer.AddChecker(health.NewComponentHealthChecker("artifacts", health.StatusUnhealthy, diag.Probe))
	healthServer.AddChecker(health.NewComponentHealthChecker("notifier", health.StatusDegraded, notifier.Health))

	var runners []func(context.Context) error
	runners = append(runners, hub.Run)

	if cfg.MQTT.Enabled {
		sub, err := ingest.NewSubscriber(log, ingest.MQTTConfig{
			BrokerURL: cfg.MQTT.BrokerURL,
			ClientID:  cfg.MQTT.ClientID,
			Topic:     cfg.MQTT.Topic,
			QoS:       cfg.MQTT.QoS,
			Username:  cfg.MQTT.Username,
			Password:  cfg.MQTT.Password,
			KeepAlive: cfg.MQTT.KeepAlive,
		}, ingester)
		if err != nil {
			log.Error("failed to create mqtt subscriber", sl.Err(err))
			return err
		}
		healthServer.AddChecker(health.NewComponentHealthChecker("mqtt", health.StatusDegraded, sub.Health))
		runners = append(runners, sub.Run)
	}

	if cfg.Poll.Enabled {
		poller, err := ingest.NewPoller(log, ingest.PollConfig{
			URL:      cfg.Poll.URL,
			Method:   cfg.Poll.Method,
			Body:     cfg.Poll.Body,
			Interval: cfg.Poll.Interval,
			Timeout:  cfg.Poll.Timeout,
			Fields:   cfg.Poll.Fields,
		}, ingester)
		if err != nil {
			log.Error("failed to create poller", sl.Err(err))
			return err
		}
		healthServer.AddChecker(health.NewComponentHealthChecker("poller", health.StatusDegraded, poller.Health))
		runners = append(runners, poller.Run)
	}

	if cfg.Monitor.Enabled {
		mon := monitor.New(log, monitor.Config{
			Interval:          cfg.Monitor.Interval,
			RULAlertThreshold: cfg.Monitor.RULAlertThreshold,
			PruneInterval:     cfg.Monitor.PruneInterval,
			Retention:         cfg.Storage.Retention,
		}, diag,
			monitor.WithPublisher(hub),
			monitor.WithNotifier(notifier),
			monitor.WithPruner(store),
			monitor.WithAlertRecorder(m),
		)
		runners = append(runners, mon.Run)
	}

	if err := healthServer.Start(); err != nil {
		log.Error("failed to start health server", sl.Err(err))
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	for _, run := range runners {
		run := run
		g.Go(func() error {
			return run(gctx)
		})
	}

	g.Go(func() error {
		log.Info("starting api server", slog.String("address", cfg.HTTP.Address))
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			log.Error("failed to stop api server", sl.Err(err))
		}
		if err := healthServer.Stop(shutdownCtx); err != nil {
			log.Error("failed to stop health server", sl.Err(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error("service stopped with error", sl.Err(err))
		return err
	}

	log.Info("motordiag stopped")
	return nil
}
