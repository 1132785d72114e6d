// Package config provides configuration loading, validation, and hot-reload
// for the OCTOREFLEX agent.
//
// Sources, in increasing precedence: built-in defaults, the YAML config file
// (default /etc/octoreflex/config.yaml), and OCTOREFLEX_* environment
// variables. An invalid config on startup is fatal; an invalid config on
// hot-reload is logged and the old config stays active.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/octoreflex/octoreflex/pkg/constants"
	"github.com/octoreflex/octoreflex/pkg/errors"
)

// Version, GitCommit, and BuildTime are injected at build time via -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

// Config is the root configuration structure for the agent.
type Config struct {
	// NodeID uniquely identifies this node in gossip envelopes and
	// partition events. Default: hostname.
	NodeID string `mapstructure:"node_id"`

	Anomaly       AnomalyConfig       `mapstructure:"anomaly"`
	Gossip        GossipConfig        `mapstructure:"gossip"`
	Storage       StorageConfig       `mapstructure:"storage"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Tracing       TracingConfig       `mapstructure:"tracing"`
}

// AnomalyConfig holds anomaly engine parameters.
type AnomalyConfig struct {
	// EntropyWeight is wₑ in the anomaly formula A = mahal + wₑ·|ΔH|.
	// Range: [0.0, 1.0]. Default: 0.3.
	EntropyWeight float64 `mapstructure:"entropy_weight"`

	// EscalateThreshold is the local score above which this node records
	// its own observation into the quorum evaluator. Default: 3.0.
	EscalateThreshold float64 `mapstructure:"escalate_threshold"`
}

// GossipConfig holds the distributed quorum parameters.
type GossipConfig struct {
	// Enabled controls whether the gossip layer is active.
	// Default: false (standalone mode).
	Enabled bool `mapstructure:"enabled"`

	// ListenAddr is the intake HTTP listen address. Default: 0.0.0.0:9443.
	ListenAddr string `mapstructure:"listen_addr"`

	// Peers is the static list of peer base URLs.
	Peers []string `mapstructure:"peers"`

	// QuorumMin is the minimum number of distinct reporting nodes required
	// in Normal mode. Default: 2.
	QuorumMin int `mapstructure:"quorum_min"`

	// ObservationTTL is how long a peer observation stays live.
	// Default: 30s.
	ObservationTTL time.Duration `mapstructure:"observation_ttl"`

	// SweepInterval is the background expiry sweep period. Default: 10s.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`

	// EnvelopeTTL is the maximum age of a gossip envelope before the
	// intake rejects it. Default: 30s.
	EnvelopeTTL time.Duration `mapstructure:"envelope_ttl"`

	// PartitionThreshold is the reachable-peer fraction below which the
	// node runs Isolated. Range: (0, 1]. Default: 0.5.
	PartitionThreshold float64 `mapstructure:"partition_threshold"`

	// QuorumFraction scales the effective quorum minimum while Isolated.
	// Range: (0, 1]. Default: 0.5.
	QuorumFraction float64 `mapstructure:"quorum_fraction"`

	// ProbeInterval is the peer reachability probe period. Default: 5s.
	ProbeInterval time.Duration `mapstructure:"probe_interval"`

	// ProbeTimeout is the per-peer probe timeout. Default: 2s.
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`

	// EventBuffer is the capacity of the non-blocking partition event
	// channel. Default: 64.
	EventBuffer int `mapstructure:"event_buffer"`

	// TLSCertFile, TLSKeyFile, and TLSCAFile configure mutual TLS between
	// peers. All three are required when gossip is enabled.
	TLSCertFile string `mapstructure:"tls_cert_file"`
	TLSKeyFile  string `mapstructure:"tls_key_file"`
	TLSCAFile   string `mapstructure:"tls_ca_file"`
}

// StorageConfig holds baseline store parameters.
type StorageConfig struct {
	// DBPath is the path to the SQLite baseline database.
	// Default: /var/lib/octoreflex/baselines.db.
	DBPath string `mapstructure:"db_path"`

	// BaselineCacheTTL bounds the in-memory read cache.
	// Default: 1m.
	BaselineCacheTTL time.Duration `mapstructure:"baseline_cache_ttl"`
}

// KafkaConfig holds the optional partition-event sink parameters.
type KafkaConfig struct {
	// Enabled gates the Kafka sink. When false, partition events go to the
	// in-process channel sink only. Default: false.
	Enabled bool `mapstructure:"enabled"`

	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	RequiredAcks int           `mapstructure:"required_acks"`
	BatchSize    int           `mapstructure:"batch_size"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
}

// ObservabilityConfig holds metrics and logging parameters.
type ObservabilityConfig struct {
	// MetricsAddr is the Prometheus metrics bind address.
	// Default: 127.0.0.1:9091.
	MetricsAddr string `mapstructure:"metrics_addr"`

	// LogLevel is the minimum log level (debug, info, warn, error).
	// Default: info.
	LogLevel string `mapstructure:"log_level"`

	// LogFormat is json or console. Default: json.
	LogFormat string `mapstructure:"log_format"`

	// PprofEnabled mounts the pprof handlers on the intake router.
	// Default: false.
	PprofEnabled bool `mapstructure:"pprof_enabled"`
}

// TracingConfig holds OpenTelemetry parameters.
type TracingConfig struct {
	Enabled        bool    `mapstructure:"enabled"`
	JaegerEndpoint string  `mapstructure:"jaeger_endpoint"`
	ServiceName    string  `mapstructure:"service_name"`
	SamplingRate   float64 `mapstructure:"sampling_rate"`
	Environment    string  `mapstructure:"environment"`
}

// Defaults returns a Config populated with all default values.
func Defaults() Config {
	hostname, _ := os.Hostname()
	return Config{
		NodeID: hostname,
		Anomaly: AnomalyConfig{
			EntropyWeight:     constants.DefaultEntropyWeight,
			EscalateThreshold: constants.DefaultEscalateThreshold,
		},
		Gossip: GossipConfig{
			Enabled:            false,
			ListenAddr:         "0.0.0.0:9443",
			QuorumMin:          constants.DefaultQuorumMin,
			ObservationTTL:     constants.DefaultObservationTTL,
			SweepInterval:      constants.DefaultSweepInterval,
			EnvelopeTTL:        constants.DefaultEnvelopeTTL,
			PartitionThreshold: constants.DefaultPartitionThreshold,
			QuorumFraction:     constants.DefaultQuorumFraction,
			ProbeInterval:      5 * time.Second,
			ProbeTimeout:       2 * time.Second,
			EventBuffer:        constants.DefaultPartitionEventBuffer,
		},
		Storage: StorageConfig{
			DBPath:           constants.DefaultBaselineDBPath,
			BaselineCacheTTL: constants.DefaultBaselineCacheTTL,
		},
		Kafka: KafkaConfig{
			Enabled:      false,
			Topic:        "octoreflex.partition-events",
			WriteTimeout: 10 * time.Second,
			ReadTimeout:  10 * time.Second,
			RequiredAcks: 1,
			BatchSize:    100,
			BatchTimeout: time.Second,
		},
		Observability: ObservabilityConfig{
			MetricsAddr: "127.0.0.1:9091",
			LogLevel:    "info",
			LogFormat:   "json",
		},
		Tracing: TracingConfig{
			Enabled:      false,
			ServiceName:  "octoreflex",
			SamplingRate: 0.1,
			Environment:  "production",
		},
	}
}

// Validate checks all config fields and returns a descriptive error listing
// every violation found.
func (c *Config) Validate() error {
	var errs []string

	if c.NodeID == "" {
		errs = append(errs, "node_id must not be empty")
	}
	if c.Anomaly.EntropyWeight < 0.0 || c.Anomaly.EntropyWeight > 1.0 {
		errs = append(errs, fmt.Sprintf("anomaly.entropy_weight must be in [0.0, 1.0], got %v", c.Anomaly.EntropyWeight))
	}
	if c.Anomaly.EscalateThreshold < 0 {
		errs = append(errs, fmt.Sprintf("anomaly.escalate_threshold must be >= 0, got %v", c.Anomaly.EscalateThreshold))
	}
	if c.Gossip.QuorumMin < 1 {
		errs = append(errs, fmt.Sprintf("gossip.quorum_min must be >= 1, got %d", c.Gossip.QuorumMin))
	}
	if c.Gossip.ObservationTTL <= 0 {
		errs = append(errs, fmt.Sprintf("gossip.observation_ttl must be > 0, got %s", c.Gossip.ObservationTTL))
	}
	if c.Gossip.SweepInterval < time.Second {
		errs = append(errs, fmt.Sprintf("gossip.sweep_interval must be >= 1s, got %s", c.Gossip.SweepInterval))
	}
	if c.Gossip.EnvelopeTTL < time.Second {
		errs = append(errs, fmt.Sprintf("gossip.envelope_ttl must be >= 1s, got %s", c.Gossip.EnvelopeTTL))
	}
	if c.Gossip.PartitionThreshold <= 0 || c.Gossip.PartitionThreshold > 1 {
		errs = append(errs, fmt.Sprintf("gossip.partition_threshold must be in (0, 1], got %v", c.Gossip.PartitionThreshold))
	}
	if c.Gossip.QuorumFraction <= 0 || c.Gossip.QuorumFraction > 1 {
		errs = append(errs, fmt.Sprintf("gossip.quorum_fraction must be in (0, 1], got %v", c.Gossip.QuorumFraction))
	}
	if c.Gossip.Enabled {
		if c.Gossip.TLSCertFile == "" || c.Gossip.TLSKeyFile == "" || c.Gossip.TLSCAFile == "" {
			errs = append(errs, "gossip.tls_cert_file, tls_key_file, and tls_ca_file are required when gossip is enabled")
		}
	}
	if c.Storage.DBPath == "" {
		errs = append(errs, "storage.db_path must not be empty")
	}
	if c.Storage.BaselineCacheTTL <= 0 {
		errs = append(errs, fmt.Sprintf("storage.baseline_cache_ttl must be > 0, got %s", c.Storage.BaselineCacheTTL))
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, "kafka.brokers must not be empty when the kafka sink is enabled")
	}
	if c.Tracing.Enabled {
		if c.Tracing.JaegerEndpoint == "" {
			errs = append(errs, "tracing.jaeger_endpoint is required when tracing is enabled")
		}
		if c.Tracing.SamplingRate < 0 || c.Tracing.SamplingRate > 1 {
			errs = append(errs, fmt.Sprintf("tracing.sampling_rate must be in [0, 1], got %v", c.Tracing.SamplingRate))
		}
	}

	if len(errs) > 0 {
		msg := errs[0]
		for _, e := range errs[1:] {
			msg += "; " + e
		}
		return errors.Newf(errors.CodeConfigInvalid, "config validation failed: %s", msg)
	}
	return nil
}
