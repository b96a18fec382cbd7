package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("JWT_ACCESS_SECRET", "secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate defaults: %v", err)
	}
	if cfg.Resolver.PredictionInterval != 10*time.Second ||
		cfg.Resolver.PriceInterval != time.Minute ||
		cfg.Resolver.EventInterval != 5*time.Minute {
		t.Errorf("resolver intervals = %+v", cfg.Resolver)
	}
	if got := cfg.Betting.PredictionOdds[60]; got != 1.95 {
		t.Errorf("odds[60] = %v, want 1.95", got)
	}
	if got := cfg.Betting.PredictionDurations(); len(got) != 3 || got[0] != 60 {
		t.Errorf("durations = %v", got)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("BETTING_PREDICTION_ODDS", "30:2.5")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("RESOLVER_ENABLED", "false")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Betting.PredictionOdds) != 1 || cfg.Betting.PredictionOdds[30] != 2.5 {
		t.Errorf("odds = %v", cfg.Betting.PredictionOdds)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("brokers = %v", cfg.Kafka.Brokers)
	}
	if cfg.Resolver.Enabled {
		t.Error("resolver should be disabled")
	}
}

func TestLoad_BadOddsTable(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("BETTING_PREDICTION_ODDS", "60=1.95")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for malformed odds table")
	}
}

func TestLoad_YAMLOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
betting:
  max_stake: 500
  prediction_odds:
    120: 1.8
resolver:
  price_interval: 15s
  max_price_age: 1m
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Betting.MaxStake != 500 {
		t.Errorf("max stake = %v, want 500", cfg.Betting.MaxStake)
	}
	if cfg.Betting.MinStake != 1 {
		t.Errorf("min stake = %v, want env default 1", cfg.Betting.MinStake)
	}
	if cfg.Betting.PredictionOdds[120] != 1.8 || len(cfg.Betting.PredictionOdds) != 1 {
		t.Errorf("odds = %v", cfg.Betting.PredictionOdds)
	}
	if cfg.Resolver.PriceInterval != 15*time.Second || cfg.Resolver.MaxPriceAge != time.Minute {
		t.Errorf("resolver = %+v", cfg.Resolver)
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg.JWT.AccessSecret = ""
	cfg.Store.Driver = "sqlite"
	cfg.Betting.MinLeverage = 0.5
	cfg.Price.OKXWeight = 0

	err = cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"JWT_ACCESS_SECRET", "STORE_DRIVER", "leverage", "weights"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestValidate_ResolverDurations(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("JWT_ACCESS_SECRET", "secret")
	t.Setenv("RESOLVER_RESTART_BACKOFF", "0s")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Resolver.RestartBackoff != 0 {
		t.Fatalf("RestartBackoff = %s, want 0", cfg.Resolver.RestartBackoff)
	}
	err = cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "RESOLVER_RESTART_BACKOFF") {
		t.Errorf("Validate = %v, want RESOLVER_RESTART_BACKOFF error", err)
	}

	cfg.Resolver.RestartBackoff = -time.Second
	cfg.Resolver.PriceInterval = 0
	err = cfg.Validate()
	for _, want := range []string{"RESOLVER_RESTART_BACKOFF", "RESOLVER_PRICE_INTERVAL"} {
		if err == nil || !strings.Contains(err.Error(), want) {
			t.Errorf("Validate = %v, want mention of %s", err, want)
		}
	}
}
