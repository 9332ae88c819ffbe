package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const minimalYAML = `
marketdata:
  websocket_url: wss://stream.example.com/ws
  symbols: [ETHUSDT, SOLUSDT]
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	c, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if c.Server.Port != 8080 {
		t.Errorf("server.port = %d, want 8080", c.Server.Port)
	}
	if c.MarketData.ReferenceSymbol != "BTCUSDT" {
		t.Errorf("reference symbol = %q, want BTCUSDT", c.MarketData.ReferenceSymbol)
	}
	if c.MarketData.WindowSize != 240 {
		t.Errorf("window size = %d, want 240", c.MarketData.WindowSize)
	}
	if c.Alerts.Sink != "log" {
		t.Errorf("alerts.sink = %q, want log", c.Alerts.Sink)
	}
	if !c.Rollout.LegacyEnabled || !c.Rollout.OptimizedEnabled {
		t.Error("both detectors should default to enabled")
	}
	if c.Rollout.DetectorTimeout != 10*time.Second {
		t.Errorf("detector timeout = %v, want 10s", c.Rollout.DetectorTimeout)
	}
	if c.Safety.RolloutIncrement != 10 {
		t.Errorf("rollout increment = %v, want 10", c.Safety.RolloutIncrement)
	}
	if c.Safety.RolloutInterval != 24*time.Hour {
		t.Errorf("rollout interval = %v, want 24h", c.Safety.RolloutInterval)
	}
	if c.Safety.CronSpec != "@every 5m" {
		t.Errorf("cron spec = %q", c.Safety.CronSpec)
	}
}

func TestLoadFillsTierAndPatternFallbacks(t *testing.T) {
	c, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if len(c.Scanner.Tiers) != 4 {
		t.Fatalf("tiers = %d, want 4 defaults", len(c.Scanner.Tiers))
	}
	if c.Scanner.Tiers[3].ID != "critical" || !c.Scanner.Tiers[3].Override {
		t.Errorf("critical tier misconfigured: %+v", c.Scanner.Tiers[3])
	}
	if w := c.Scanner.PatternWeights["beta_divergence"]; w != 1.0 {
		t.Errorf("beta_divergence weight = %v, want 1.0", w)
	}
	if len(c.Scanner.PatternWeights) != 5 {
		t.Errorf("pattern weights = %d, want 5", len(c.Scanner.PatternWeights))
	}
}

func TestLoadExplicitTiersKept(t *testing.T) {
	c, err := Load(writeConfig(t, minimalYAML+`
scanner:
  tiers:
    - id: solo
      min_magnitude: 0.10
      min_confidence: 0.60
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(c.Scanner.Tiers) != 1 || c.Scanner.Tiers[0].ID != "solo" {
		t.Fatalf("tiers = %+v, want the single configured one", c.Scanner.Tiers)
	}
	// tag defaults still fill the omitted tier fields
	if c.Scanner.Tiers[0].ScanInterval != 60*time.Second {
		t.Errorf("tier scan interval = %v, want 60s default", c.Scanner.Tiers[0].ScanInterval)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{
			name: "no symbols",
			yaml: "marketdata:\n  websocket_url: wss://x\n",
			want: "symbols cannot be empty",
		},
		{
			name: "reference in symbols",
			yaml: "marketdata:\n  websocket_url: wss://x\n  symbols: [BTCUSDT, ETHUSDT]\n",
			want: "must not include the reference symbol",
		},
		{
			name: "unknown source",
			yaml: "marketdata:\n  source: carrier-pigeon\n  symbols: [ETHUSDT]\n",
			want: "marketdata.source must be",
		},
		{
			name: "websocket source without url",
			yaml: "marketdata:\n  symbols: [ETHUSDT]\n",
			want: "websocket_url is required",
		},
		{
			name: "kafka source without brokers",
			yaml: "marketdata:\n  source: kafka\n  symbols: [ETHUSDT]\n",
			want: "kafka.brokers are required",
		},
		{
			name: "unknown sink",
			yaml: minimalYAML + "alerts:\n  sink: pigeon\n",
			want: "alerts.sink must be",
		},
		{
			name: "webhook sink without url",
			yaml: minimalYAML + "alerts:\n  sink: webhook\n",
			want: "webhook_url is required",
		},
		{
			name: "increment out of range",
			yaml: minimalYAML + "safety:\n  rollout_increment: 150\n",
			want: "rollout_increment",
		},
		{
			name: "critical below max error rate",
			yaml: minimalYAML + "safety:\n  max_error_rate: 0.30\n  critical_error_rate: 0.10\n",
			want: "critical_error_rate",
		},
		{
			name: "duplicate tier id",
			yaml: minimalYAML + "scanner:\n  tiers:\n    - id: a\n      min_confidence: 0.5\n    - id: a\n      min_confidence: 0.5\n",
			want: "duplicate tier id",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.yaml))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}

func TestValidateRequiresADetector(t *testing.T) {
	c, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	c.Rollout.LegacyEnabled = false
	c.Rollout.OptimizedEnabled = false
	if err := c.Validate(); err == nil {
		t.Fatal("expected error with no detector enabled")
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("SYMBOLS", "ADAUSDT,DOTUSDT")
	t.Setenv("REFERENCE_SYMBOL", "ETHUSDT")
	t.Setenv("ALERTS_SINK", "log")

	c, err := LoadWithEnv(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("LoadWithEnv: %v", err)
	}
	if len(c.MarketData.Symbols) != 2 || c.MarketData.Symbols[0] != "ADAUSDT" {
		t.Errorf("symbols = %v", c.MarketData.Symbols)
	}
	if c.MarketData.ReferenceSymbol != "ETHUSDT" {
		t.Errorf("reference = %q", c.MarketData.ReferenceSymbol)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
