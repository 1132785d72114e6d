package config

import (
	"context"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/octoreflex/octoreflex/pkg/errors"
	"github.com/octoreflex/octoreflex/pkg/logger"
)

// Load reads and validates agent configuration. An empty path searches the
// default locations (/etc/octoreflex, then the working directory); a missing
// file is fine and leaves the defaults in force, any other read error is not.
func Load(path string, log logger.Logger) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("/etc/octoreflex/")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.Wrap(err, errors.CodeConfigInvalid, "failed to read config file")
		}
	}

	v.SetEnvPrefix("OCTOREFLEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := Defaults()
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, errors.CodeConfigInvalid, "failed to unmarshal config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if log != nil && v.ConfigFileUsed() != "" {
		log.Info(context.Background(), "config loaded", logger.Fields{
			"file": v.ConfigFileUsed(),
		})
	}

	return &cfg, nil
}

// Watch re-reads the config file on change and invokes onReload with the new
// validated config. An invalid reload is logged and dropped; the running
// config stays active, so a bad edit never takes down the agent.
//
// Only non-destructive fields should be applied by onReload (log level,
// entropy weight, escalate threshold); listen addresses and store paths
// require a restart.
func Watch(path string, log logger.Logger, onReload func(*Config)) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)

	v.OnConfigChange(func(e fsnotify.Event) {
		cfg, err := Load(path, nil)
		if err != nil {
			log.Error(context.Background(), "config hot-reload failed, retaining old config", err, logger.Fields{
				"file": e.Name,
			})
			return
		}
		log.Info(context.Background(), "config hot-reload applied", logger.Fields{
			"file": e.Name,
		})
		onReload(cfg)
	})
	v.WatchConfig()
}

func setDefaults(v *viper.Viper) {
	d := Defaults()

	v.SetDefault("node_id", d.NodeID)
	v.SetDefault("anomaly.entropy_weight", d.Anomaly.EntropyWeight)
	v.SetDefault("anomaly.escalate_threshold", d.Anomaly.EscalateThreshold)
	v.SetDefault("gossip.enabled", d.Gossip.Enabled)
	v.SetDefault("gossip.listen_addr", d.Gossip.ListenAddr)
	v.SetDefault("gossip.quorum_min", d.Gossip.QuorumMin)
	v.SetDefault("gossip.observation_ttl", d.Gossip.ObservationTTL)
	v.SetDefault("gossip.sweep_interval", d.Gossip.SweepInterval)
	v.SetDefault("gossip.envelope_ttl", d.Gossip.EnvelopeTTL)
	v.SetDefault("gossip.partition_threshold", d.Gossip.PartitionThreshold)
	v.SetDefault("gossip.quorum_fraction", d.Gossip.QuorumFraction)
	v.SetDefault("gossip.probe_interval", d.Gossip.ProbeInterval)
	v.SetDefault("gossip.probe_timeout", d.Gossip.ProbeTimeout)
	v.SetDefault("gossip.event_buffer", d.Gossip.EventBuffer)
	v.SetDefault("storage.db_path", d.Storage.DBPath)
	v.SetDefault("storage.baseline_cache_ttl", d.Storage.BaselineCacheTTL)
	v.SetDefault("kafka.enabled", d.Kafka.Enabled)
	v.SetDefault("kafka.topic", d.Kafka.Topic)
	v.SetDefault("kafka.write_timeout", d.Kafka.WriteTimeout)
	v.SetDefault("kafka.read_timeout", d.Kafka.ReadTimeout)
	v.SetDefault("kafka.required_acks", d.Kafka.RequiredAcks)
	v.SetDefault("kafka.batch_size", d.Kafka.BatchSize)
	v.SetDefault("kafka.batch_timeout", d.Kafka.BatchTimeout)
	v.SetDefault("observability.metrics_addr", d.Observability.MetricsAddr)
	v.SetDefault("observability.log_level", d.Observability.LogLevel)
	v.SetDefault("observability.log_format", d.Observability.LogFormat)
	v.SetDefault("observability.pprof_enabled", d.Observability.PprofEnabled)
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("tracing.sampling_rate", d.Tracing.SamplingRate)
	v.SetDefault("tracing.environment", d.Tracing.Environment)
}
