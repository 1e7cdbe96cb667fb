package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port" default:"8080"`
		ReadTimeout     time.Duration `yaml:"read_timeout" default:"10s"`
		WriteTimeout    time.Duration `yaml:"write_timeout" default:"10s"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"15s"`
	} `yaml:"server"`
	Metrics struct {
		Enabled bool   `yaml:"enabled" default:"true"`
		Path    string `yaml:"path" default:"/metrics"`
	} `yaml:"metrics"`
	Binance struct {
		WebSocketURL string        `yaml:"websocket_url" default:"wss://fstream.binance.com"`
		Symbols      []string      `yaml:"symbols"`
		PingInterval time.Duration `yaml:"ping_interval" default:"30s"`
		MaxBackoff   time.Duration `yaml:"max_backoff" default:"30s"`
	} `yaml:"binance"`
	Kafka struct {
		Brokers        []string `yaml:"brokers"`
		DecisionsTopic string   `yaml:"decisions_topic" default:"tradepulse.decisions"`
		LogsTopic      string   `yaml:"logs_topic" default:"tradepulse.logs"`
		RequiredAcks   int      `yaml:"required_acks" default:"1"`
		Compression    string   `yaml:"compression" default:"snappy"`
		Producer       struct {
			MaxAttempts  int           `yaml:"max_attempts" default:"3"`
			Linger       time.Duration `yaml:"linger" default:"50ms"`
			BatchBytes   int           `yaml:"batch_bytes"`
			BatchSize    int           `yaml:"batch_size"`
			WriteTimeout time.Duration `yaml:"write_timeout" default:"5s"`
			ReadTimeout  time.Duration `yaml:"read_timeout" default:"5s"`
			Async        bool          `yaml:"async"`
		} `yaml:"producer"`
		Fills struct {
			Topic      string        `yaml:"topic" default:"tradepulse.fills"`
			GroupID    string        `yaml:"group_id" default:"tradepulse"`
			Workers    int           `yaml:"workers" default:"2"`
			BufferSize int           `yaml:"buffer_size" default:"256"`
			RetryMax   int           `yaml:"retry_max" default:"3"`
			BackoffMin time.Duration `yaml:"backoff_min" default:"100ms"`
			BackoffMax time.Duration `yaml:"backoff_max" default:"5s"`
			DLQTopic   string        `yaml:"dlq_topic"`
			MinBytes   int           `yaml:"min_bytes"`
			MaxBytes   int           `yaml:"max_bytes"`
		} `yaml:"fills"`
	} `yaml:"kafka"`
	ClickHouse struct {
		Enabled          bool          `yaml:"enabled"`
		Host             string        `yaml:"host" default:"localhost"`
		Port             int           `yaml:"port" default:"9000"`
		Database         string        `yaml:"database" default:"tradepulse"`
		User             string        `yaml:"user" default:"default"`
		Password         string        `yaml:"password"`
		UseHTTP          bool          `yaml:"use_http"`
		AsyncInsert      bool          `yaml:"async_insert"`
		WaitForAsync     bool          `yaml:"wait_for_async_insert"`
		DialTimeout      time.Duration `yaml:"dial_timeout" default:"5s"`
		ReadTimeout      time.Duration `yaml:"read_timeout" default:"30s"`
		WriteTimeout     time.Duration `yaml:"write_timeout" default:"30s"`
		MaxExecutionTime time.Duration `yaml:"max_execution_time" default:"60s"`
	} `yaml:"clickhouse"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr" default:"localhost:6379"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Account struct {
		InitialBalance float64 `yaml:"initial_balance" default:"10000"`
	} `yaml:"account"`
	Fusion struct {
		Weights             map[string]float64 `yaml:"weights"`
		ActivationThreshold float64            `yaml:"activation_threshold" default:"0.65"`
		HistorySize         int                `yaml:"history_size" default:"1000"`
	} `yaml:"fusion"`
	EV struct {
		BetaAlpha   float64 `yaml:"beta_alpha" default:"2"`
		BetaBeta    float64 `yaml:"beta_beta" default:"2"`
		TradeWindow int     `yaml:"trade_window" default:"500"`
		RandomSeed  int64   `yaml:"random_seed"`
	} `yaml:"ev"`
	Executor struct {
		EntryThreshold float64       `yaml:"entry_threshold" default:"0.03"`
		EVFloor        float64       `yaml:"ev_floor" default:"-0.05"`
		MaxHolding     time.Duration `yaml:"max_holding" default:"24h"`
		StaleAfter     time.Duration `yaml:"stale_after" default:"15m"`
		EntryCooldown  time.Duration `yaml:"entry_cooldown" default:"5m"`
		EVDecayRatio   float64       `yaml:"ev_decay_ratio" default:"0.5"`
		RotationRatio  float64       `yaml:"rotation_ratio" default:"0.8"`
	} `yaml:"executor"`
	Risk struct {
		DailyDrawdownLimit    float64       `yaml:"daily_drawdown_limit" default:"0.1"`
		MarginHealthThreshold float64       `yaml:"margin_health_threshold" default:"0.3"`
		BreakerCooldown       time.Duration `yaml:"breaker_cooldown" default:"180m"`
		MaxLossStreak         int           `yaml:"max_loss_streak" default:"3"`
		DrawdownHistorySize   int           `yaml:"drawdown_history_size" default:"100"`
	} `yaml:"risk"`
	Sentiment struct {
		ServiceURL string        `yaml:"service_url"`
		Interval   time.Duration `yaml:"interval" default:"60s"`
		Timeout    time.Duration `yaml:"timeout" default:"3s"`
		Attempts   int           `yaml:"attempts" default:"2"`
	} `yaml:"sentiment"`
	Cycle struct {
		Interval       time.Duration `yaml:"interval" default:"5s"`
		PatienceCycles int           `yaml:"patience_cycles" default:"30"`
		ThresholdDecay float64       `yaml:"threshold_decay" default:"0.9"`
		ThresholdFloor float64       `yaml:"threshold_floor" default:"0.01"`
	} `yaml:"cycle"`
}

// Load reads and parses a YAML configuration file, fills defaults, and
// validates required fields.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := defaults.Set(&c); err != nil {
		return nil, fmt.Errorf("apply defaults: %w", err)
	}

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

	if v := os.Getenv("SYMBOLS"); v != "" {
		c.Binance.Symbols = strings.Split(v, ",")
	}
	if v := os.Getenv("BINANCE_WS_URL"); v != "" {
		c.Binance.WebSocketURL = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("KAFKA_DECISIONS_TOPIC"); v != "" {
		c.Kafka.DecisionsTopic = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("CLICKHOUSE_PASSWORD"); v != "" {
		c.ClickHouse.Password = v
	}

	return c, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if len(c.Binance.Symbols) == 0 {
		return fmt.Errorf("binance.symbols cannot be empty")
	}
	if c.Executor.EntryThreshold <= c.Executor.EVFloor {
		return fmt.Errorf("executor.entry_threshold must be above executor.ev_floor")
	}
	if c.Risk.DailyDrawdownLimit <= 0 || c.Risk.DailyDrawdownLimit >= 1 {
		return fmt.Errorf("risk.daily_drawdown_limit must be in (0, 1)")
	}
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers cannot be empty")
	}
	return nil
}
