package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

type TierConfig struct {
	ID               string        `yaml:"id"`
	MinMagnitude     float64       `yaml:"min_magnitude"`
	MinConfidence    float64       `yaml:"min_confidence"`
	ScanInterval     time.Duration `yaml:"scan_interval" default:"60s"`
	MaxAlertsPerHour int           `yaml:"max_alerts_per_hour" default:"6"`
	Cooldown         time.Duration `yaml:"cooldown" default:"10m"`
	Override         bool          `yaml:"override"`
	Enabled          bool          `yaml:"enabled" default:"true"`
}

type Config struct {
	Environment string `yaml:"environment" default:"development"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s"`
	} `yaml:"server"`
	Logging struct {
		Level  string `yaml:"level" default:"info"`
		Format string `yaml:"format" default:"console"`
		Output string `yaml:"output" default:"stdout"`
	} `yaml:"logging"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	MarketData struct {
		Source          string        `yaml:"source" default:"websocket"` // websocket | kafka
		APIKey          string        `yaml:"api_key"`
		WebSocketURL    string        `yaml:"websocket_url"`
		ReferenceSymbol string        `yaml:"reference_symbol" default:"BTCUSDT"`
		Symbols         []string      `yaml:"symbols"`
		ReconnectDelay  time.Duration `yaml:"reconnect_delay" default:"5s"`
		PingInterval    time.Duration `yaml:"ping_interval" default:"30s"`
		WindowSize      int           `yaml:"window_size" default:"240"`
		SnapshotTTL     time.Duration `yaml:"snapshot_ttl" default:"5s"`
	} `yaml:"marketdata"`
	Kafka struct {
		Brokers     []string `yaml:"brokers"`
		AlertsTopic string   `yaml:"alerts_topic" default:"driftwatch.alerts"`
		QuotesTopic string   `yaml:"quotes_topic" default:"driftwatch.quotes"`
		Producer    struct {
			RequiredAcks int           `yaml:"required_acks" default:"-1"`
			Compression  string        `yaml:"compression" default:"gzip"`
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			BatchSize    int           `yaml:"batch_size" default:"100"`
			BatchBytes   int           `yaml:"batch_bytes" default:"1048576"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"10s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"10s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Consumer struct {
			GroupID    string        `yaml:"group_id" default:"driftwatch"`
			Workers    int           `yaml:"workers" default:"2"`
			BufferSize int           `yaml:"buffer_size" default:"256"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"50ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"2s"`
			MinBytes   int           `yaml:"min_bytes" default:"10000"`
			MaxBytes   int           `yaml:"max_bytes" default:"10000000"`
		} `yaml:"consumer"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"driftwatch"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"10s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"30s"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr" default:"localhost:6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Alerts struct {
		Sink       string        `yaml:"sink" default:"log"` // kafka | webhook | log
		WebhookURL string        `yaml:"webhook_url"`
		Timeout    time.Duration `yaml:"timeout" default:"5s"`
		DLQ        struct {
			Enabled bool   `yaml:"enabled"`
			Queue   string `yaml:"queue" default:"driftwatch:alerts:dlq"`
			// Redeliver runs queue workers that replay parked alerts
			// through the sink; off, the queue is publish-only.
			Redeliver  bool          `yaml:"redeliver"`
			Workers    int           `yaml:"workers" default:"1"`
			RetryLimit int           `yaml:"retry_limit" default:"3"`
			RetryDelay time.Duration `yaml:"retry_delay" default:"30s"`
		} `yaml:"dlq"`
	} `yaml:"alerts"`
	Scanner struct {
		MinValueScore float64       `yaml:"min_value_score" default:"55"`
		Workers       int           `yaml:"workers" default:"4"`
		ScanInterval  time.Duration `yaml:"scan_interval" default:"15s"`
		Weights       struct {
			Magnitude  float64 `yaml:"magnitude" default:"0.30"`
			Confidence float64 `yaml:"confidence" default:"0.30"`
			Pattern    float64 `yaml:"pattern" default:"0.15"`
			Volume     float64 `yaml:"volume" default:"0.10"`
			Risk       float64 `yaml:"risk" default:"0.15"`
		} `yaml:"weights"`
		// PatternWeights act both as priority inputs to the value score and
		// as an enablement gate: weight zero skips the pattern entirely.
		PatternWeights map[string]float64 `yaml:"pattern_weights"`
		Analyzer       struct {
			LongWindow         int     `yaml:"long_window" default:"120"`
			ShortWindow        int     `yaml:"short_window" default:"20"`
			MinObservations    int     `yaml:"min_observations" default:"40"`
			VolumeConfirmRatio float64 `yaml:"volume_confirm_ratio" default:"1.5"`
			BetaMinShift       float64 `yaml:"beta_min_shift" default:"0.35"`
			CorrelationMinDrop float64 `yaml:"correlation_min_drop" default:"0.40"`
			MomentumMinZ       float64 `yaml:"momentum_min_z" default:"2.5"`
			VolumeMinZ         float64 `yaml:"volume_min_z" default:"3.0"`
			StrengthMinSpread  float64 `yaml:"strength_min_spread" default:"0.06"`
		} `yaml:"analyzer"`
		Tiers     []TierConfig `yaml:"tiers"`
		Emergency struct {
			MinMagnitude  float64 `yaml:"min_magnitude" default:"0.40"`
			MinConfidence float64 `yaml:"min_confidence" default:"0.97"`
		} `yaml:"emergency"`
		Restricted struct {
			Enabled         bool          `yaml:"enabled"`
			Patterns        []string      `yaml:"patterns"`
			MinMagnitude    float64       `yaml:"min_magnitude" default:"0.30"`
			MinConfidence   float64       `yaml:"min_confidence" default:"0.95"`
			Cooldown        time.Duration `yaml:"cooldown" default:"4h"`
			MaxAlertsPerDay int           `yaml:"max_alerts_per_day" default:"5"`
		} `yaml:"restricted"`
	} `yaml:"scanner"`
	Rollout struct {
		LegacyEnabled    bool          `yaml:"legacy_enabled" default:"true"`
		OptimizedEnabled bool          `yaml:"optimized_enabled" default:"true"`
		DetectorTimeout  time.Duration `yaml:"detector_timeout" default:"10s"`
		SampleCapacity   int           `yaml:"sample_capacity" default:"1000"`
		Seed             int64         `yaml:"seed"`
		Legacy           struct {
			MinMagnitude  float64 `yaml:"min_magnitude" default:"0.08"`
			MinConfidence float64 `yaml:"min_confidence" default:"0.50"`
		} `yaml:"legacy"`
	} `yaml:"rollout"`
	Safety struct {
		CronSpec          string        `yaml:"cron_spec" default:"@every 5m"`
		SampleWindow      int           `yaml:"sample_window" default:"200"`
		SampleMaxAge      time.Duration `yaml:"sample_max_age" default:"6h"`
		MaxErrorRate      float64       `yaml:"max_error_rate" default:"0.05"`
		CriticalErrorRate float64       `yaml:"critical_error_rate" default:"0.20"`
		MinQualityRatio   float64       `yaml:"min_quality_ratio" default:"0.90"`
		MaxLatencyRatio   float64       `yaml:"max_latency_ratio" default:"1.50"`
		MinProfitableRate float64       `yaml:"min_profitable_rate" default:"0.10"`
		MaxConsecCritical int           `yaml:"max_consecutive_critical" default:"3"`
		RolloutIncrement  float64       `yaml:"rollout_increment" default:"10"`
		RolloutInterval   time.Duration `yaml:"rollout_interval" default:"24h"`
		MinSamples        int           `yaml:"min_samples" default:"10"`
		AuditRetention    time.Duration `yaml:"audit_retention" default:"168h"`
		AuditCapacity     int           `yaml:"audit_capacity" default:"500"`
	} `yaml:"safety"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Fill defaults before validating
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}
	c.fillFallbacks()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("MARKETDATA_API_KEY"); v != "" {
		c.MarketData.APIKey = v
	}
	if v := os.Getenv("SYMBOLS"); v != "" {
		c.MarketData.Symbols = strings.Split(v, ",")
	}
	if v := os.Getenv("REFERENCE_SYMBOL"); v != "" {
		c.MarketData.ReferenceSymbol = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("ALERTS_SINK"); v != "" {
		c.Alerts.Sink = v
	}

	return c, nil
}

// fillFallbacks sets structured defaults the tag mechanism cannot express.
func (c *Config) fillFallbacks() {
	if len(c.Scanner.PatternWeights) == 0 {
		c.Scanner.PatternWeights = map[string]float64{
			"beta_divergence":   1.0,
			"correlation_break": 0.9,
			"momentum_shift":    0.8,
			"volume_anomaly":    0.6,
			"relative_strength": 0.7,
		}
	}
	if len(c.Scanner.Tiers) == 0 {
		c.Scanner.Tiers = []TierConfig{
			{ID: "watch", MinMagnitude: 0.02, MinConfidence: 0.40, ScanInterval: 5 * time.Minute, MaxAlertsPerHour: 2, Cooldown: 30 * time.Minute, Enabled: true},
			{ID: "standard", MinMagnitude: 0.05, MinConfidence: 0.50, ScanInterval: 2 * time.Minute, MaxAlertsPerHour: 4, Cooldown: 15 * time.Minute, Enabled: true},
			{ID: "priority", MinMagnitude: 0.12, MinConfidence: 0.60, ScanInterval: time.Minute, MaxAlertsPerHour: 6, Cooldown: 10 * time.Minute, Enabled: true},
			{ID: "critical", MinMagnitude: 0.25, MinConfidence: 0.70, ScanInterval: 30 * time.Second, MaxAlertsPerHour: 12, Cooldown: 5 * time.Minute, Override: true, Enabled: true},
		}
	}
}

// Validate checks if the configuration is valid. Errors here are fatal at
// startup.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if len(c.MarketData.Symbols) == 0 {
		return fmt.Errorf("marketdata.symbols cannot be empty")
	}
	if c.MarketData.ReferenceSymbol == "" {
		return fmt.Errorf("marketdata.reference_symbol is required")
	}
	for _, s := range c.MarketData.Symbols {
		if s == c.MarketData.ReferenceSymbol {
			return fmt.Errorf("marketdata.symbols must not include the reference symbol %q", s)
		}
	}
	switch c.MarketData.Source {
	case "websocket":
		if c.MarketData.WebSocketURL == "" {
			return fmt.Errorf("marketdata.websocket_url is required for websocket source")
		}
	case "kafka":
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers are required for kafka source")
		}
	default:
		return fmt.Errorf("marketdata.source must be 'websocket' or 'kafka', got %q", c.MarketData.Source)
	}
	switch c.Alerts.Sink {
	case "kafka":
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers are required for kafka alert sink")
		}
	case "webhook":
		if c.Alerts.WebhookURL == "" {
			return fmt.Errorf("alerts.webhook_url is required for webhook sink")
		}
	case "log":
	default:
		return fmt.Errorf("alerts.sink must be 'kafka', 'webhook' or 'log', got %q", c.Alerts.Sink)
	}
	if !c.Rollout.LegacyEnabled && !c.Rollout.OptimizedEnabled {
		return fmt.Errorf("rollout: at least one detector must be enabled")
	}
	if c.Safety.RolloutIncrement <= 0 || c.Safety.RolloutIncrement > 100 {
		return fmt.Errorf("safety.rollout_increment must be in (0, 100]")
	}
	if c.Safety.MaxErrorRate < 0 || c.Safety.MaxErrorRate > 1 {
		return fmt.Errorf("safety.max_error_rate must be in [0, 1]")
	}
	if c.Safety.CriticalErrorRate < c.Safety.MaxErrorRate {
		return fmt.Errorf("safety.critical_error_rate must be >= max_error_rate")
	}
	seen := make(map[string]bool, len(c.Scanner.Tiers))
	for _, t := range c.Scanner.Tiers {
		if t.ID == "" {
			return fmt.Errorf("scanner.tiers: tier id is required")
		}
		if seen[t.ID] {
			return fmt.Errorf("scanner.tiers: duplicate tier id %q", t.ID)
		}
		seen[t.ID] = true
		if t.MinConfidence < 0 || t.MinConfidence > 1 {
			return fmt.Errorf("scanner.tiers[%s]: min_confidence must be in [0, 1]", t.ID)
		}
	}
	return nil
}
