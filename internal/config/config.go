package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to environment overrides, e.g. STACKRABBIT_ENGINE.
const EnvPrefix = "STACKRABBIT"

// Config is the complete runtime configuration of the API server.
type Config struct {
	// Server
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read-timeout"`
	WriteTimeout    time.Duration `mapstructure:"write-timeout"` // 0 = none; engine calls can be slow
	ShutdownTimeout time.Duration `mapstructure:"shutdown-timeout"`
	CORSOrigin      string        `mapstructure:"cors-origin"`

	// Engine
	Engine     string   `mapstructure:"engine"`
	EngineArgs []string `mapstructure:"engine-args"`
	EngineNice int      `mapstructure:"engine-nice"`

	// Pool
	Workers    int `mapstructure:"workers"`
	MaxPending int `mapstructure:"max-pending"` // 0 = unbounded

	// Rate limiting per client IP on engine routes (0 = disabled)
	RateLimit float64 `mapstructure:"rate-limit"`
	RateBurst int     `mapstructure:"rate-burst"`

	// Logging
	LogLevel  string `mapstructure:"log-level"`
	LogFormat string `mapstructure:"log-format"`
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		Addr:            ":4500",
		ReadTimeout:     30 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		CORSOrigin:      "*",
		Engine:          "stackrabbit",
		Workers:         runtime.NumCPU(),
		RateBurst:       10,
		LogLevel:        "info",
		LogFormat:       "console",
	}
}

// RegisterFlags adds every setting to fs with its default value.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("config", "", "optional config file (yaml, toml or json)")

	fs.String("addr", d.Addr, "listen address")
	fs.Duration("read-timeout", d.ReadTimeout, "HTTP read timeout")
	fs.Duration("write-timeout", d.WriteTimeout, "HTTP write timeout (0 = none)")
	fs.Duration("shutdown-timeout", d.ShutdownTimeout, "grace period for in-flight requests on shutdown")
	fs.String("cors-origin", d.CORSOrigin, "Access-Control-Allow-Origin value (empty = no CORS headers)")

	fs.String("engine", d.Engine, "path to the engine executable")
	fs.StringSlice("engine-args", nil, "extra arguments passed to the engine before the operation kind")
	fs.Int("engine-nice", d.EngineNice, "nice value for engine processes (0 = disabled)")

	fs.Int("workers", d.Workers, "number of pool workers")
	fs.Int("max-pending", d.MaxPending, "maximum queued tasks before rejecting (0 = unbounded)")

	fs.Float64("rate-limit", d.RateLimit, "engine requests per second per client (0 = disabled)")
	fs.Int("rate-burst", d.RateBurst, "rate limit burst size")

	fs.String("log-level", d.LogLevel, "log level (trace, debug, info, warn, error)")
	fs.String("log-format", d.LogFormat, "log format (console, json)")
}

// Load merges, in increasing priority, defaults, an optional config file,
// STACKRABBIT_* environment variables and explicitly set flags.
func Load(fs *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(fs); err != nil {
		return Config{}, fmt.Errorf("bind flags: %w", err)
	}

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := Default()
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if c.Engine == "" {
		errs = append(errs, errors.New("engine is required"))
	}
	if c.Workers <= 0 {
		errs = append(errs, fmt.Errorf("workers must be positive, got %d", c.Workers))
	}
	if c.MaxPending < 0 {
		errs = append(errs, fmt.Errorf("max-pending must be 0 or higher, got %d", c.MaxPending))
	}
	if c.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("rate-limit must be 0 or higher, got %v", c.RateLimit))
	}
	if c.RateLimit > 0 && c.RateBurst <= 0 {
		errs = append(errs, fmt.Errorf("rate-burst must be positive when rate limiting, got %d", c.RateBurst))
	}
	return errors.Join(errs...)
}
