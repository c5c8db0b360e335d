package internal

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the full application configuration. Values are read once at
// startup and never mutated.
type Config struct {
	// Server holds the HTTP listener configuration.
	Server struct {
		Port           int    `yaml:"port"`
		ReadTimeoutMS  int64  `yaml:"read_timeout_ms"`
		WriteTimeoutMS int64  `yaml:"write_timeout_ms"`
		IdleTimeoutMS  int64  `yaml:"idle_timeout_ms"`
		ReadHeaderMS   int64  `yaml:"read_header_timeout_ms"`
		MaxBodyBytes   int64  `yaml:"max_body_bytes"`
		RateLimitRPS   int64  `yaml:"rate_limit_rps"`
		RateLimitBurst int64  `yaml:"rate_limit_burst"`
		MetricsEnabled bool   `yaml:"metrics_enabled"`
		MetricsPath    string `yaml:"metrics_path"`
		StatusPath     string `yaml:"status_path"`
	} `yaml:"server"`

	// Webhook configures the inbound GitHub endpoint.
	Webhook struct {
		Path            string `yaml:"path"`
		Secret          string `yaml:"secret"`
		GitHubToken     string `yaml:"github_token"`
		IncludeDiff     bool   `yaml:"include_diff"`
		EnrichTimeoutMS int64  `yaml:"enrich_timeout_ms"`
	} `yaml:"webhook"`

	// Rules, when present, allowlist which events get notified.
	Rules       []Rule `yaml:"rules"`
	RulesStrict bool   `yaml:"rules_strict"`

	// Scheduler configures dedup, lanes, and the retry policy.
	Scheduler SchedulerConfig `yaml:"scheduler"`

	// Queue selects the lane transport.
	Queue QueueConfig `yaml:"queue"`

	// Sink is the downstream notification API.
	Sink struct {
		URL       string `yaml:"url"`
		APIKey    string `yaml:"api_key"`
		TimeoutMS int64  `yaml:"timeout_ms"`
	} `yaml:"sink"`

	// DeadLetter configures the dead-letter record and the optional durable
	// redelivery queue.
	DeadLetter struct {
		Capacity int         `yaml:"capacity"`
		River    RiverConfig `yaml:"river"`
	} `yaml:"dead_letter"`
}

// SchedulerConfig bounds the delivery pipeline. Durations are milliseconds.
type SchedulerConfig struct {
	MaxActiveLanes   int64 `yaml:"max_active_lanes"`
	LaneDepth        int   `yaml:"lane_depth"`
	MaxAttempts      int   `yaml:"max_attempts"`
	InitialBackoffMS int64 `yaml:"initial_backoff_ms"`
	MaxBackoffMS     int64 `yaml:"max_backoff_ms"`
	RetryWindowMS    int64 `yaml:"retry_window_ms"`
	DrainTimeoutMS   int64 `yaml:"drain_timeout_ms"`
	DedupTTLMS       int64 `yaml:"dedup_ttl_ms"`
	DedupSize        int   `yaml:"dedup_size"`
}

// QueueConfig selects and configures the watermill transport backing the
// delivery lanes.
type QueueConfig struct {
	Driver string          `yaml:"driver"`
	Buffer int64           `yaml:"buffer"`
	AMQP   AMQPQueueConfig `yaml:"amqp"`
	Kafka  KafkaConfig     `yaml:"kafka"`
	NATS   NATSConfig      `yaml:"nats"`
	SQL    SQLConfig       `yaml:"sql"`
}

type AMQPQueueConfig struct {
	URL  string `yaml:"url"`
	Mode string `yaml:"mode"`
}

type KafkaConfig struct {
	Brokers       []string `yaml:"brokers"`
	ConsumerGroup string   `yaml:"consumer_group"`
}

type NATSConfig struct {
	ClusterID string `yaml:"cluster_id"`
	ClientID  string `yaml:"client_id"`
	URL       string `yaml:"url"`
	Durable   string `yaml:"durable"`
}

type SQLConfig struct {
	Driver           string `yaml:"driver"`
	DSN              string `yaml:"dsn"`
	Dialect          string `yaml:"dialect"`
	ConsumerGroup    string `yaml:"consumer_group"`
	InitializeSchema bool   `yaml:"initialize_schema"`
}

// RiverConfig configures the durable dead-letter redelivery queue.
type RiverConfig struct {
	Enabled     bool     `yaml:"enabled"`
	DSN         string   `yaml:"dsn"`
	Queue       string   `yaml:"queue"`
	Kind        string   `yaml:"kind"`
	MaxAttempts int      `yaml:"max_attempts"`
	Tags        []string `yaml:"tags"`
}

// LoadConfig loads the configuration from a YAML file. Environment variables
// referenced as ${VAR} are expanded before parsing, and defaults are applied.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return cfg, err
	}

	applyDefaults(&cfg)
	if err := validate(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeoutMS == 0 {
		cfg.Server.ReadTimeoutMS = 5000
	}
	if cfg.Server.WriteTimeoutMS == 0 {
		cfg.Server.WriteTimeoutMS = 10000
	}
	if cfg.Server.IdleTimeoutMS == 0 {
		cfg.Server.IdleTimeoutMS = 60000
	}
	if cfg.Server.ReadHeaderMS == 0 {
		cfg.Server.ReadHeaderMS = 5000
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = 1 << 20
	}
	if cfg.Server.MetricsPath == "" {
		cfg.Server.MetricsPath = "/metrics"
	}
	if cfg.Server.StatusPath == "" {
		cfg.Server.StatusPath = "/status"
	}
	if cfg.Webhook.Path == "" {
		cfg.Webhook.Path = "/webhooks/github"
	}
	if cfg.Webhook.EnrichTimeoutMS == 0 {
		cfg.Webhook.EnrichTimeoutMS = 3000
	}
	if cfg.Scheduler.MaxActiveLanes == 0 {
		cfg.Scheduler.MaxActiveLanes = 8
	}
	if cfg.Scheduler.LaneDepth == 0 {
		cfg.Scheduler.LaneDepth = 64
	}
	if cfg.Scheduler.MaxAttempts == 0 {
		cfg.Scheduler.MaxAttempts = 5
	}
	if cfg.Scheduler.InitialBackoffMS == 0 {
		cfg.Scheduler.InitialBackoffMS = 500
	}
	if cfg.Scheduler.MaxBackoffMS == 0 {
		cfg.Scheduler.MaxBackoffMS = 30000
	}
	if cfg.Scheduler.RetryWindowMS == 0 {
		cfg.Scheduler.RetryWindowMS = 5 * 60 * 1000
	}
	if cfg.Scheduler.DrainTimeoutMS == 0 {
		cfg.Scheduler.DrainTimeoutMS = 10000
	}
	if cfg.Scheduler.DedupTTLMS == 0 {
		cfg.Scheduler.DedupTTLMS = 24 * 60 * 60 * 1000
	}
	if cfg.Scheduler.DedupSize == 0 {
		cfg.Scheduler.DedupSize = 65536
	}
	if cfg.Queue.Driver == "" {
		cfg.Queue.Driver = "gochannel"
	}
	if cfg.Queue.Buffer == 0 {
		cfg.Queue.Buffer = 64
	}
	// gochannel publishes block once the subscriber buffer is full, which
	// would stall Enqueue before the lane depth bound is reached.
	if strings.ToLower(cfg.Queue.Driver) == "gochannel" && cfg.Queue.Buffer < int64(cfg.Scheduler.LaneDepth) {
		cfg.Queue.Buffer = int64(cfg.Scheduler.LaneDepth)
	}
	if cfg.Sink.TimeoutMS == 0 {
		cfg.Sink.TimeoutMS = 10000
	}
	if cfg.DeadLetter.Capacity == 0 {
		cfg.DeadLetter.Capacity = 100
	}
	if cfg.DeadLetter.River.Queue == "" {
		cfg.DeadLetter.River.Queue = "default"
	}
	if cfg.DeadLetter.River.Kind == "" {
		cfg.DeadLetter.River.Kind = "pokebridge.redeliver"
	}
	if cfg.DeadLetter.River.MaxAttempts == 0 {
		cfg.DeadLetter.River.MaxAttempts = 25
	}
}

func validate(cfg *Config) error {
	if cfg.Sink.URL == "" {
		return fmt.Errorf("sink.url is required")
	}
	if cfg.DeadLetter.River.Enabled && cfg.DeadLetter.River.DSN == "" {
		return fmt.Errorf("dead_letter.river.dsn is required when river is enabled")
	}
	return nil
}
