// Command octoreflex runs the anomaly-detection agent: the scoring engine,
// the baseline store, and the gossip quorum layer behind one process.
package main

import (
	"context"
	"flag"
	"fmt"
	stdlog "log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/octoreflex/octoreflex/internal/anomaly"
	"github.com/octoreflex/octoreflex/internal/application"
	"github.com/octoreflex/octoreflex/internal/config"
	"github.com/octoreflex/octoreflex/internal/gossip"
	"github.com/octoreflex/octoreflex/internal/infrastructure/baselinestore"
	"github.com/octoreflex/octoreflex/internal/infrastructure/monitoring"
	"github.com/octoreflex/octoreflex/internal/infrastructure/telemetry"
	octohttp "github.com/octoreflex/octoreflex/internal/interfaces/http"
	"github.com/octoreflex/octoreflex/pkg/logger"
)

func main() {
	var (
		configPath  = flag.String("config", "", "path to config file (default: /etc/octoreflex/config.yaml)")
		showVersion = flag.Bool("version", false, "print version and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("octoreflex %s (commit %s, built %s)\n", config.Version, config.GitCommit, config.BuildTime)
		return
	}

	startupLog, err := monitoring.NewZapLogger(&config.ObservabilityConfig{LogLevel: "info", LogFormat: "json"})
	if err != nil {
		stdlog.Fatalf("failed to create startup logger: %v", err)
	}

	cfg, err := config.Load(*configPath, startupLog)
	if err != nil {
		startupLog.Fatal(context.Background(), "failed to load config", err)
	}

	log, err := monitoring.NewZapLogger(&cfg.Observability)
	if err != nil {
		startupLog.Fatal(context.Background(), "failed to create logger", err)
	}

	if err := run(cfg, *configPath, log); err != nil {
		log.Fatal(context.Background(), "agent exited with error", err)
	}
}

func run(cfg *config.Config, configPath string, log logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info(ctx, "starting octoreflex agent", logger.Fields{
		"version":    config.Version,
		"git_commit": config.GitCommit,
		"node_id":    cfg.NodeID,
	})

	tracing, err := monitoring.NewTracingManager(&cfg.Tracing, log)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracing.Shutdown(shutdownCtx); err != nil {
			log.Warn(shutdownCtx, "tracer shutdown failed", logger.Fields{"error": err.Error()})
		}
	}()

	metrics := monitoring.NewMetrics()

	store, err := baselinestore.Open(cfg.Storage.DBPath, cfg.Storage.BaselineCacheTTL, metrics, log)
	if err != nil {
		return err
	}
	defer store.Close()

	engine, err := anomaly.NewEngine(cfg.Anomaly.EntropyWeight)
	if err != nil {
		return err
	}

	var (
		emitter      gossip.Emitter
		channelSink  *telemetry.ChannelEmitter
		kafkaEmitter *telemetry.KafkaEmitter
	)
	if cfg.Kafka.Enabled {
		kafkaEmitter = telemetry.NewKafkaEmitter(cfg.Kafka, cfg.Gossip.EventBuffer, metrics, log)
		defer kafkaEmitter.Close()
		emitter = kafkaEmitter
	} else {
		channelSink = telemetry.NewChannelEmitter(cfg.Gossip.EventBuffer, metrics)
		emitter = channelSink
	}

	evaluator, err := gossip.NewEvaluator(gossip.Config{
		QuorumMin:          cfg.Gossip.QuorumMin,
		ObservationTTL:     cfg.Gossip.ObservationTTL,
		SweepInterval:      cfg.Gossip.SweepInterval,
		TotalPeers:         len(cfg.Gossip.Peers),
		PartitionThreshold: cfg.Gossip.PartitionThreshold,
		QuorumFraction:     cfg.Gossip.QuorumFraction,
	}, emitter, log, metrics)
	if err != nil {
		return err
	}

	scoring, err := application.NewScoringService(
		engine, store, evaluator, tracing, metrics, log,
		cfg.NodeID, cfg.Anomaly.EscalateThreshold,
	)
	if err != nil {
		return err
	}

	router := octohttp.NewRouter(
		cfg, log,
		octohttp.NewGossipHandler(evaluator, cfg.Gossip.EnvelopeTTL, log, metrics),
		octohttp.NewScoreHandler(scoring),
		tracing,
	)

	if configPath != "" {
		config.Watch(configPath, log, func(next *config.Config) {
			// Most knobs require a restart; log so operators can see the
			// file change landed.
			log.Info(context.Background(), "config file reloaded", logger.Fields{
				"quorum_min":      next.Gossip.QuorumMin,
				"observation_ttl": next.Gossip.ObservationTTL.String(),
			})
		})
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		evaluator.RunSweeper(ctx)
		return nil
	})

	if channelSink != nil {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case event := <-channelSink.Events():
					log.Warn(ctx, "partition event", logger.Fields{
						"event_id":        event.ID,
						"mode":            event.Mode.String(),
						"reachable_peers": event.ReachablePeers,
						"total_peers":     event.TotalPeers,
						"effective_min":   event.EffectiveMin,
					})
				}
			}
		})
	}

	if cfg.Gossip.Enabled && len(cfg.Gossip.Peers) > 0 {
		prober := gossip.NewProber(cfg.Gossip.Peers, evaluator, cfg.Gossip.ProbeInterval, cfg.Gossip.ProbeTimeout, log)
		g.Go(func() error {
			prober.Run(ctx)
			return nil
		})
	}

	g.Go(func() error {
		return router.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return router.Stop(shutdownCtx)
	})

	if cfg.Observability.MetricsAddr != "" {
		metricsServer := &http.Server{
			Addr:    cfg.Observability.MetricsAddr,
			Handler: promhttp.Handler(),
		}
		g.Go(func() error {
			log.Info(ctx, "metrics listener starting", logger.Fields{"addr": cfg.Observability.MetricsAddr})
			if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return metricsServer.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	log.Info(context.Background(), "octoreflex agent stopped")
	if err != nil && err != context.Canceled {
		return err
	}
	return nil
}
