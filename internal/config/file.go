package config

import (
	"fmt"
	"os"
	"time"

	"go.yaml.in/yaml/v4"
)

// Duration is a time.Duration written as "10s" / "5m" in YAML.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("couldn't parse duration: %w", err)
	}
	*d = Duration(parsed)
	return nil
}

func (d *Duration) Duration() time.Duration {
	return time.Duration(*d)
}

// fileConfig is the YAML overlay.  Only keys present in the file override the
// environment; everything is optional.
type fileConfig struct {
	Betting struct {
		MinStake       *float64          `yaml:"min_stake"`
		MaxStake       *float64          `yaml:"max_stake"`
		MinLeverage    *float64          `yaml:"min_leverage"`
		MaxLeverage    *float64          `yaml:"max_leverage"`
		SignupBonus    *float64          `yaml:"signup_bonus"`
		PredictionOdds map[int64]float64 `yaml:"prediction_odds"`
	} `yaml:"betting"`
	Resolver struct {
		Enabled            *bool     `yaml:"enabled"`
		PredictionInterval *Duration `yaml:"prediction_interval"`
		PriceInterval      *Duration `yaml:"price_interval"`
		EventInterval      *Duration `yaml:"event_interval"`
		FetchTimeout       *Duration `yaml:"fetch_timeout"`
		MaxPriceAge        *Duration `yaml:"max_price_age"`
		RestartBackoff     *Duration `yaml:"restart_backoff"`
	} `yaml:"resolver"`
	Price struct {
		BinanceWeight *int `yaml:"binance_weight"`
		BybitWeight   *int `yaml:"bybit_weight"`
		OKXWeight     *int `yaml:"okx_weight"`
	} `yaml:"price"`
}

func applyFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("couldn't read file %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("couldn't parse config %s: %w", path, err)
	}

	setFloat(&cfg.Betting.MinStake, fc.Betting.MinStake)
	setFloat(&cfg.Betting.MaxStake, fc.Betting.MaxStake)
	setFloat(&cfg.Betting.MinLeverage, fc.Betting.MinLeverage)
	setFloat(&cfg.Betting.MaxLeverage, fc.Betting.MaxLeverage)
	setFloat(&cfg.Betting.SignupBonus, fc.Betting.SignupBonus)
	if len(fc.Betting.PredictionOdds) > 0 {
		cfg.Betting.PredictionOdds = fc.Betting.PredictionOdds
	}

	if fc.Resolver.Enabled != nil {
		cfg.Resolver.Enabled = *fc.Resolver.Enabled
	}
	setDuration(&cfg.Resolver.PredictionInterval, fc.Resolver.PredictionInterval)
	setDuration(&cfg.Resolver.PriceInterval, fc.Resolver.PriceInterval)
	setDuration(&cfg.Resolver.EventInterval, fc.Resolver.EventInterval)
	setDuration(&cfg.Resolver.FetchTimeout, fc.Resolver.FetchTimeout)
	setDuration(&cfg.Resolver.MaxPriceAge, fc.Resolver.MaxPriceAge)
	setDuration(&cfg.Resolver.RestartBackoff, fc.Resolver.RestartBackoff)

	if fc.Price.BinanceWeight != nil {
		cfg.Price.BinanceWeight = *fc.Price.BinanceWeight
	}
	if fc.Price.BybitWeight != nil {
		cfg.Price.BybitWeight = *fc.Price.BybitWeight
	}
	if fc.Price.OKXWeight != nil {
		cfg.Price.OKXWeight = *fc.Price.OKXWeight
	}
	return nil
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *Duration) {
	if v != nil {
		*dst = v.Duration()
	}
}
