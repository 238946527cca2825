package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"marketwatch/internal/provider"
)

type Log struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" default:"console" validate:"oneof=console json"`
}

type Provider struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url" default:"https://www.alphavantage.co/query" validate:"required,url"`
	// MinInterval is the minimum spacing between dispatches; 0 disables pacing.
	MinInterval time.Duration `yaml:"min_interval" default:"1200ms" validate:"gte=0"`
	Timeout     time.Duration `yaml:"timeout" default:"10s" validate:"gt=0"`
	// MaxRequestsPerMinute adds a token bucket on top of the interval gate; 0 disables it.
	MaxRequestsPerMinute int `yaml:"max_requests_per_minute" validate:"gte=0"`
	Burst                int `yaml:"burst" default:"1" validate:"gte=1"`
	// ThrottleRetries re-queries a throttled instrument; 0 never retries.
	ThrottleRetries int           `yaml:"throttle_retries" validate:"gte=0,lte=5"`
	ThrottleBackoff time.Duration `yaml:"throttle_backoff" default:"15s" validate:"gte=0"`
}

type Series struct {
	Intraday bool   `yaml:"intraday" default:"true"`
	Daily    bool   `yaml:"daily"`
	Interval string `yaml:"interval" default:"5min" validate:"oneof=1min 5min 15min 30min 60min"`
	// Instruments lists the bases fetched as series; they share the default quote.
	Instruments []string `yaml:"instruments" default:"[\"BTC\"]"`
	Limit       int      `yaml:"limit" default:"5" validate:"gte=1"`
}

type Store struct {
	Dir         string `yaml:"dir" default:"data" validate:"required"`
	History     bool   `yaml:"history" default:"true"`
	HistoryPath string `yaml:"history_path" default:"data/marketwatch.db"`
}

type Redis struct {
	Addr     string `yaml:"addr" default:"localhost:6379"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix" default:"marketwatch"`
}

type Cache struct {
	Backend  string        `yaml:"backend" default:"memory" validate:"oneof=memory redis none"`
	TTL      time.Duration `yaml:"ttl" validate:"gte=0"`
	MaxItems int           `yaml:"max_items" default:"1000" validate:"gte=0"`
	Redis    Redis         `yaml:"redis"`
}

type Server struct {
	Port              string        `yaml:"port" default:"8080" validate:"required"`
	Schedule          string        `yaml:"schedule" default:"@every 5m" validate:"required"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" default:"5s"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" default:"10s"`
}

type Betting struct {
	Seed  uint64  `yaml:"seed" default:"42"`
	Count int     `yaml:"count" default:"15" validate:"gte=0"`
	MinEV float64 `yaml:"min_ev" default:"0.05"`
}

type Config struct {
	Log          Log      `yaml:"log"`
	Provider     Provider `yaml:"provider"`
	Instruments  []string `yaml:"instruments" default:"[\"BTC\",\"ETH\",\"USDT\",\"BNB\"]" validate:"min=1,dive,required"`
	DefaultQuote string   `yaml:"default_quote" default:"USD" validate:"required,alpha"`
	Series       Series   `yaml:"series"`
	Store        Store    `yaml:"store"`
	Cache        Cache    `yaml:"cache"`
	Server       Server   `yaml:"server"`
	Betting      Betting  `yaml:"betting"`
}

var validate = validator.New()

// Default returns the configuration with every struct default applied.
func Default() Config {
	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		panic(fmt.Sprintf("config defaults: %v", err))
	}
	return cfg
}

// Load reads YAML config from path. If path is empty it falls back to
// config.yaml when present, otherwise defaults. A .env file is loaded first
// and environment variables override select fields for secrecy.
func Load(path string) (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path == "" {
		if _, err := os.Stat("config.yaml"); err == nil {
			path = "config.yaml"
		}
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config: %w", err)
			}
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks struct constraints and that every instrument parses.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	if _, err := c.ParsedInstruments(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}
	return nil
}

// ParsedInstruments resolves Instruments against DefaultQuote.
func (c Config) ParsedInstruments() ([]provider.Instrument, error) {
	return parseAll(c.Instruments, c.DefaultQuote)
}

// SeriesInstruments resolves Series.Instruments against DefaultQuote.
func (c Config) SeriesInstruments() ([]provider.Instrument, error) {
	return parseAll(c.Series.Instruments, c.DefaultQuote)
}

func parseAll(in []string, quote string) ([]provider.Instrument, error) {
	out := make([]provider.Instrument, 0, len(in))
	for _, s := range in {
		inst, err := provider.ParseInstrument(s, quote)
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("ALPHAVANTAGE_API_KEY"); v != "" {
		cfg.Provider.APIKey = v
	}
	if v := os.Getenv("ALPHAVANTAGE_BASE_URL"); v != "" {
		cfg.Provider.BaseURL = v
	}
	if v := os.Getenv("MARKETWATCH_INSTRUMENTS"); v != "" {
		cfg.Instruments = splitCSV(v)
	}
	if v := os.Getenv("MARKETWATCH_DEFAULT_QUOTE"); v != "" {
		cfg.DefaultQuote = strings.ToUpper(strings.TrimSpace(v))
	}
	if v := os.Getenv("MARKETWATCH_MIN_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("MARKETWATCH_MIN_INTERVAL: %w", err)
		}
		cfg.Provider.MinInterval = d
	}
	if v := os.Getenv("MARKETWATCH_THROTTLE_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MARKETWATCH_THROTTLE_RETRIES: %w", err)
		}
		cfg.Provider.ThrottleRetries = n
	}
	if v := os.Getenv("MARKETWATCH_DATA_DIR"); v != "" {
		cfg.Store.Dir = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = strings.ToLower(v)
	}
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Cache.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Cache.Redis.Password = v
	}
	return nil
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
