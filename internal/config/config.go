// Package config provides application configuration loaded from environment
// variables, optionally overlaid by a YAML file named in CONFIG_FILE.
// Use the package-level Get() function to obtain the singleton Config instance.
package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ──────────────────────────────────────────────────────────────────────────────
// Sub-config structs
// ──────────────────────────────────────────────────────────────────────────────

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port           string        // e.g. "8080"
	Env            string        // "development" | "production"
	ReadTimeout    time.Duration // default 10s
	WriteTimeout   time.Duration // default 10s
	AllowedOrigins []string      // CORS + WebSocket origins; empty = allow all
	BetRateLimit   int           // bet requests per second per caller, default 30
}

// DBConfig holds PostgreSQL connection settings.
type DBConfig struct {
	DSN             string        // full postgres DSN
	MaxOpenConns    int           // default 25
	MaxIdleConns    int           // default 10
	ConnMaxLifetime time.Duration // default 5m
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver string // "postgres" | "memory"
}

// JWTConfig holds the shared secret used to verify bearer tokens issued by
// the identity provider.
type JWTConfig struct {
	AccessSecret string // must be set
}

// PriceConfig holds exchange API settings.
type PriceConfig struct {
	BinanceURL   string        // default "https://api.binance.com"
	BybitURL     string        // default "https://api.bybit.com"
	OKXURL       string        // default "https://www.okx.com"
	Symbols      []string      // tradable symbols, e.g. BTCUSDT
	FetchTimeout time.Duration // default 2s
	CacheTTL     time.Duration // default 1s
	// Weight percentages (must sum to 100)
	BinanceWeight int // default 50
	BybitWeight   int // default 30
	OKXWeight     int // default 20
}

// PolymarketConfig holds the event market data source.
type PolymarketConfig struct {
	ClobURL      string        // default "https://clob.polymarket.com"
	FetchTimeout time.Duration // default 5s
	CacheTTL     time.Duration // default 5s
}

// BettingConfig holds placement limits and quoted odds.
type BettingConfig struct {
	MinStake    float64
	MaxStake    float64
	MinLeverage float64
	MaxLeverage float64
	SignupBonus float64
	// PredictionOdds maps an allowed prediction duration (seconds) to its
	// fixed payout multiplier.
	PredictionOdds map[int64]float64
}

// PredictionDurations returns the allowed durations in ascending order.
func (b BettingConfig) PredictionDurations() []int64 {
	out := make([]int64, 0, len(b.PredictionOdds))
	for d := range b.PredictionOdds {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ResolverConfig holds the background settlement loop settings.
type ResolverConfig struct {
	Enabled            bool          // run the resolver inside cmd/server
	PredictionInterval time.Duration // default 10s
	PriceInterval      time.Duration // default 60s
	EventInterval      time.Duration // default 5m
	FetchTimeout       time.Duration // default 5s
	MaxPriceAge        time.Duration // default 30s
	RestartBackoff     time.Duration // default 5s
}

// RedisConfig holds the shared price cache.  Empty Addr disables it.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	PriceTTL time.Duration // default 2s
}

// KafkaConfig holds the event publisher.  No brokers disables it.
type KafkaConfig struct {
	Brokers []string
}

// MetricsConfig holds the Prometheus listener.  Empty Port disables it.
type MetricsConfig struct {
	Port string // default "9090"
}

// ──────────────────────────────────────────────────────────────────────────────
// Top-level Config
// ──────────────────────────────────────────────────────────────────────────────

// Config is the root configuration object for the entire application.
type Config struct {
	Server     ServerConfig
	DB         DBConfig
	Store      StoreConfig
	JWT        JWTConfig
	Price      PriceConfig
	Polymarket PolymarketConfig
	Betting    BettingConfig
	Resolver   ResolverConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	Metrics    MetricsConfig
}

// IsProd returns true when running in the production environment.
func (c *Config) IsProd() bool {
	return c.Server.Env == "production"
}

// Validate checks that all required configuration values are present and valid.
// All problems are reported together.
func (c *Config) Validate() error {
	var errs []error

	if c.JWT.AccessSecret == "" {
		errs = append(errs, errors.New("JWT_ACCESS_SECRET must be set"))
	}

	switch c.Store.Driver {
	case "postgres":
		if c.IsProd() && c.DB.DSN == "" {
			errs = append(errs, errors.New("DATABASE_DSN must be set in production"))
		}
	case "memory":
		if c.IsProd() {
			errs = append(errs, errors.New("STORE_DRIVER=memory is not allowed in production"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be postgres or memory, got %q", c.Store.Driver))
	}

	// Price weights must sum to 100
	total := c.Price.BinanceWeight + c.Price.BybitWeight + c.Price.OKXWeight
	if total != 100 {
		errs = append(errs, fmt.Errorf(
			"price weights must sum to 100, got %d (Binance=%d Bybit=%d OKX=%d)",
			total, c.Price.BinanceWeight, c.Price.BybitWeight, c.Price.OKXWeight,
		))
	}

	if len(c.Price.Symbols) == 0 {
		errs = append(errs, errors.New("PRICE_SYMBOLS must list at least one symbol"))
	}

	b := c.Betting
	if b.MinStake <= 0 || b.MaxStake < b.MinStake {
		errs = append(errs, fmt.Errorf(
			"betting stake bounds invalid: min=%.8f max=%.8f", b.MinStake, b.MaxStake))
	}
	if b.MinLeverage < 1 || b.MaxLeverage < b.MinLeverage {
		errs = append(errs, fmt.Errorf(
			"betting leverage bounds invalid: min=%.2f max=%.2f (min must be >= 1)", b.MinLeverage, b.MaxLeverage))
	}
	if b.SignupBonus < 0 {
		errs = append(errs, fmt.Errorf("BETTING_SIGNUP_BONUS must not be negative, got %.2f", b.SignupBonus))
	}
	if len(b.PredictionOdds) == 0 {
		errs = append(errs, errors.New("at least one prediction duration must be quoted"))
	}
	for dur, odds := range b.PredictionOdds {
		if dur <= 0 || odds <= 1 {
			errs = append(errs, fmt.Errorf("prediction odds %ds=%.4f: duration must be > 0 and odds > 1", dur, odds))
		}
	}

	r := c.Resolver
	for name, d := range map[string]time.Duration{
		"RESOLVER_PREDICTION_INTERVAL": r.PredictionInterval,
		"RESOLVER_PRICE_INTERVAL":      r.PriceInterval,
		"RESOLVER_EVENT_INTERVAL":      r.EventInterval,
		"RESOLVER_FETCH_TIMEOUT":       r.FetchTimeout,
		"RESOLVER_MAX_PRICE_AGE":       r.MaxPriceAge,
		"RESOLVER_RESTART_BACKOFF":     r.RestartBackoff,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Singleton
// ──────────────────────────────────────────────────────────────────────────────

var (
	instance *Config
	once     sync.Once
	loadErr  error
)

// Get returns the singleton Config, loading it once from the environment.
// Panics if loading fails; call this early in main() to catch
// misconfigurations at startup.
func Get() *Config {
	once.Do(func() {
		instance, loadErr = Load()
	})
	if loadErr != nil {
		panic(fmt.Sprintf("config: failed to load: %v", loadErr))
	}
	return instance
}

// MustLoad loads and validates configuration. Intended for use in main().
// Panics on any error so misconfiguration is caught immediately at boot.
func MustLoad() *Config {
	cfg := Get()
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("config: validation failed: %v", err))
	}
	return cfg
}

// ──────────────────────────────────────────────────────────────────────────────
// Loader
// ──────────────────────────────────────────────────────────────────────────────

// Load reads the environment and, when CONFIG_FILE is set, applies the YAML
// overlay on top.  It does not validate.
func Load() (*Config, error) {
	cfg, err := loadEnv()
	if err != nil {
		return nil, err
	}
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := applyFile(cfg, path); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func loadEnv() (*Config, error) {
	cfg := &Config{}

	// ── Server ────────────────────────────────────────────────────────────────
	betRPS, err := getInt("BET_RATE_LIMIT", 30)
	if err != nil {
		return nil, fmt.Errorf("BET_RATE_LIMIT: %w", err)
	}
	cfg.Server = ServerConfig{
		Port:           getEnv("SERVER_PORT", "8080"),
		Env:            getEnv("ENVIRONMENT", "development"),
		ReadTimeout:    getDuration("SERVER_READ_TIMEOUT", 10*time.Second),
		WriteTimeout:   getDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
		AllowedOrigins: getList("ALLOWED_ORIGINS"),
		BetRateLimit:   betRPS,
	}

	// ── Database ──────────────────────────────────────────────────────────────
	dsn := os.Getenv("DATABASE_DSN")
	if dsn == "" {
		// Build DSN from individual components for convenience in dev
		dsn = fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			getEnv("DB_HOST", "localhost"),
			getEnv("DB_PORT", "5432"),
			getEnv("DB_USER", "postgres"),
			getEnv("DB_PASSWORD", ""),
			getEnv("DB_NAME", "betengine"),
			getEnv("DB_SSLMODE", "disable"),
		)
	}

	maxOpen, err := getInt("DB_MAX_OPEN_CONNS", 25)
	if err != nil {
		return nil, fmt.Errorf("DB_MAX_OPEN_CONNS: %w", err)
	}
	maxIdle, err := getInt("DB_MAX_IDLE_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("DB_MAX_IDLE_CONNS: %w", err)
	}

	cfg.DB = DBConfig{
		DSN:             dsn,
		MaxOpenConns:    maxOpen,
		MaxIdleConns:    maxIdle,
		ConnMaxLifetime: getDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
	}

	cfg.Store = StoreConfig{Driver: getEnv("STORE_DRIVER", "postgres")}

	// ── JWT ───────────────────────────────────────────────────────────────────
	cfg.JWT = JWTConfig{AccessSecret: getEnv("JWT_ACCESS_SECRET", "")}

	// ── Price ─────────────────────────────────────────────────────────────────
	binW, err := getInt("PRICE_BINANCE_WEIGHT", 50)
	if err != nil {
		return nil, fmt.Errorf("PRICE_BINANCE_WEIGHT: %w", err)
	}
	byW, err := getInt("PRICE_BYBIT_WEIGHT", 30)
	if err != nil {
		return nil, fmt.Errorf("PRICE_BYBIT_WEIGHT: %w", err)
	}
	okxW, err := getInt("PRICE_OKX_WEIGHT", 20)
	if err != nil {
		return nil, fmt.Errorf("PRICE_OKX_WEIGHT: %w", err)
	}

	cfg.Price = PriceConfig{
		BinanceURL:    getEnv("PRICE_BINANCE_URL", "https://api.binance.com"),
		BybitURL:      getEnv("PRICE_BYBIT_URL", "https://api.bybit.com"),
		OKXURL:        getEnv("PRICE_OKX_URL", "https://www.okx.com"),
		Symbols:       getListDefault("PRICE_SYMBOLS", []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"}),
		FetchTimeout:  getDuration("PRICE_FETCH_TIMEOUT", 2*time.Second),
		CacheTTL:      getDuration("PRICE_CACHE_TTL", 1*time.Second),
		BinanceWeight: binW,
		BybitWeight:   byW,
		OKXWeight:     okxW,
	}

	// ── Polymarket ────────────────────────────────────────────────────────────
	cfg.Polymarket = PolymarketConfig{
		ClobURL:      getEnv("POLYMARKET_CLOB_URL", "https://clob.polymarket.com"),
		FetchTimeout: getDuration("POLYMARKET_FETCH_TIMEOUT", 5*time.Second),
		CacheTTL:     getDuration("POLYMARKET_CACHE_TTL", 5*time.Second),
	}

	// ── Betting ───────────────────────────────────────────────────────────────
	minStake, err := getFloat("BETTING_MIN_STAKE", 1)
	if err != nil {
		return nil, fmt.Errorf("BETTING_MIN_STAKE: %w", err)
	}
	maxStake, err := getFloat("BETTING_MAX_STAKE", 10000)
	if err != nil {
		return nil, fmt.Errorf("BETTING_MAX_STAKE: %w", err)
	}
	minLev, err := getFloat("BETTING_MIN_LEVERAGE", 1)
	if err != nil {
		return nil, fmt.Errorf("BETTING_MIN_LEVERAGE: %w", err)
	}
	maxLev, err := getFloat("BETTING_MAX_LEVERAGE", 100)
	if err != nil {
		return nil, fmt.Errorf("BETTING_MAX_LEVERAGE: %w", err)
	}
	bonus, err := getFloat("BETTING_SIGNUP_BONUS", 1000)
	if err != nil {
		return nil, fmt.Errorf("BETTING_SIGNUP_BONUS: %w", err)
	}
	odds, err := parseOddsTable(getEnv("BETTING_PREDICTION_ODDS", "60:1.95,300:1.95,900:1.9"))
	if err != nil {
		return nil, fmt.Errorf("BETTING_PREDICTION_ODDS: %w", err)
	}

	cfg.Betting = BettingConfig{
		MinStake:       minStake,
		MaxStake:       maxStake,
		MinLeverage:    minLev,
		MaxLeverage:    maxLev,
		SignupBonus:    bonus,
		PredictionOdds: odds,
	}

	// ── Resolver ──────────────────────────────────────────────────────────────
	cfg.Resolver = ResolverConfig{
		Enabled:            getBool("RESOLVER_ENABLED", true),
		PredictionInterval: getDuration("RESOLVER_PREDICTION_INTERVAL", 10*time.Second),
		PriceInterval:      getDuration("RESOLVER_PRICE_INTERVAL", 60*time.Second),
		EventInterval:      getDuration("RESOLVER_EVENT_INTERVAL", 5*time.Minute),
		FetchTimeout:       getDuration("RESOLVER_FETCH_TIMEOUT", 5*time.Second),
		MaxPriceAge:        getDuration("RESOLVER_MAX_PRICE_AGE", 30*time.Second),
		RestartBackoff:     getDuration("RESOLVER_RESTART_BACKOFF", 5*time.Second),
	}

	// ── Redis / Kafka / Metrics ───────────────────────────────────────────────
	redisDB, err := getInt("REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("REDIS_DB: %w", err)
	}
	cfg.Redis = RedisConfig{
		Addr:     getEnv("REDIS_ADDR", ""),
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       redisDB,
		PriceTTL: getDuration("REDIS_PRICE_TTL", 2*time.Second),
	}
	cfg.Kafka = KafkaConfig{Brokers: getList("KAFKA_BROKERS")}
	cfg.Metrics = MetricsConfig{Port: getEnv("METRICS_PORT", "9090")}

	return cfg, nil
}

// parseOddsTable parses "60:1.95,300:1.9" into duration-seconds → odds.
func parseOddsTable(s string) (map[int64]float64, error) {
	out := make(map[int64]float64)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		durStr, oddsStr, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, fmt.Errorf("invalid entry %q, want seconds:odds", pair)
		}
		dur, err := strconv.ParseInt(strings.TrimSpace(durStr), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid duration in %q", pair)
		}
		odds, err := strconv.ParseFloat(strings.TrimSpace(oddsStr), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid odds in %q", pair)
		}
		out[dur] = odds
	}
	return out, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Helper functions
// ──────────────────────────────────────────────────────────────────────────────

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", v)
	}
	return n, nil
}

func getFloat(key string, defaultVal float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid float %q", v)
	}
	return f, nil
}

func getBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

// getList splits a comma-separated env var, dropping blanks.
func getList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getListDefault(key string, defaultVal []string) []string {
	if l := getList(key); len(l) > 0 {
		return l
	}
	return defaultVal
}

// getDuration parses an env var as a Go duration string (e.g. "15m", "2s").
// Falls back to defaultVal if the variable is unset or empty.
func getDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		// fall back to default; do not crash on parse error
		return defaultVal
	}
	return d
}
