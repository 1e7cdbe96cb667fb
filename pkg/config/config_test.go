package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const minimalYAML = `
environment: production
binance:
  symbols: ["BTCUSDT", "ETHUSDT"]
kafka:
  brokers: ["localhost:9092"]
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	c, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Server.Port != 8080 {
		t.Fatalf("server.port = %d, want 8080", c.Server.Port)
	}
	if c.Binance.WebSocketURL != "wss://fstream.binance.com" {
		t.Fatalf("websocket_url = %q", c.Binance.WebSocketURL)
	}
	if c.Kafka.DecisionsTopic != "tradepulse.decisions" {
		t.Fatalf("decisions_topic = %q", c.Kafka.DecisionsTopic)
	}
	if c.Kafka.Fills.Topic != "tradepulse.fills" {
		t.Fatalf("fills.topic = %q", c.Kafka.Fills.Topic)
	}
	if c.Executor.EntryThreshold != 0.03 || c.Executor.EVFloor != -0.05 {
		t.Fatalf("executor thresholds = %v / %v", c.Executor.EntryThreshold, c.Executor.EVFloor)
	}
	if c.Executor.MaxHolding != 24*time.Hour || c.Executor.StaleAfter != 15*time.Minute {
		t.Fatalf("executor timing = %v / %v", c.Executor.MaxHolding, c.Executor.StaleAfter)
	}
	if c.Risk.BreakerCooldown != 180*time.Minute || c.Risk.MaxLossStreak != 3 {
		t.Fatalf("risk defaults = %v / %d", c.Risk.BreakerCooldown, c.Risk.MaxLossStreak)
	}
	if c.Cycle.Interval != 5*time.Second || c.Cycle.PatienceCycles != 30 {
		t.Fatalf("cycle defaults = %v / %d", c.Cycle.Interval, c.Cycle.PatienceCycles)
	}
	if c.Account.InitialBalance != 10000 {
		t.Fatalf("initial_balance = %v", c.Account.InitialBalance)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	body := minimalYAML + `
server:
  port: 9999
executor:
  entry_threshold: 0.05
`
	c, err := Load(writeConfig(t, body))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Server.Port != 9999 {
		t.Fatalf("server.port = %d, want override 9999", c.Server.Port)
	}
	if c.Executor.EntryThreshold != 0.05 {
		t.Fatalf("entry_threshold = %v, want override 0.05", c.Executor.EntryThreshold)
	}
	// siblings keep their defaults
	if c.Executor.EVFloor != -0.05 {
		t.Fatalf("ev_floor = %v, want default", c.Executor.EVFloor)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestValidateFailures(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"missing environment", `
binance:
  symbols: ["BTCUSDT"]
kafka:
  brokers: ["localhost:9092"]
`},
		{"no symbols", `
environment: production
kafka:
  brokers: ["localhost:9092"]
`},
		{"no brokers", `
environment: production
binance:
  symbols: ["BTCUSDT"]
`},
		{"threshold under floor", minimalYAML + `
executor:
  entry_threshold: -0.1
`},
		{"drawdown out of range", minimalYAML + `
risk:
  daily_drawdown_limit: 1.5
`},
	}
	for _, c := range cases {
		if _, err := Load(writeConfig(t, c.body)); err == nil {
			t.Fatalf("%s: expected a validation error", c.name)
		}
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("SYMBOLS", "SOLUSDT,XRPUSDT")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")
	t.Setenv("REDIS_ADDR", "redis:6380")

	c, err := LoadWithEnv(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(c.Binance.Symbols) != 2 || c.Binance.Symbols[0] != "SOLUSDT" {
		t.Fatalf("symbols = %v", c.Binance.Symbols)
	}
	if len(c.Kafka.Brokers) != 2 || c.Kafka.Brokers[1] != "kafka-2:9092" {
		t.Fatalf("brokers = %v", c.Kafka.Brokers)
	}
	if c.Redis.Addr != "redis:6380" {
		t.Fatalf("redis addr = %q", c.Redis.Addr)
	}
}
