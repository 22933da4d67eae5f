package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/MikhailRaia/shortcode/internal/generator"
	"github.com/MikhailRaia/shortcode/internal/service"
)

type Config struct {
	ServerAddress   string        `env:"SERVER_ADDRESS" mapstructure:"server_address"`
	GRPCAddress     string        `env:"GRPC_ADDRESS" mapstructure:"grpc_address"`
	BaseURL         string        `env:"BASE_URL" mapstructure:"base_url"`
	FileStoragePath string        `env:"FILE_STORAGE_PATH" mapstructure:"file_storage_path"`
	DatabaseDSN     string        `env:"DATABASE_DSN" mapstructure:"database_dsn"`
	MySQLDSN        string        `env:"MYSQL_DSN" mapstructure:"mysql_dsn"`
	RedisAddr       string        `env:"REDIS_ADDR" mapstructure:"redis_addr"`
	RedisPassword   string        `env:"REDIS_PASSWORD" mapstructure:"redis_password"`
	CacheTTL        time.Duration `env:"CACHE_TTL" mapstructure:"cache_ttl"`
	CodeLength      int           `env:"CODE_LENGTH" mapstructure:"code_length"`
	CodeStrategy    string        `env:"CODE_STRATEGY" mapstructure:"code_strategy"`
	ReusePolicy     string        `env:"REUSE_POLICY" mapstructure:"reuse_policy"`
	MaxAttempts     int           `env:"MAX_ATTEMPTS" mapstructure:"max_attempts"`
	LogLevel        string        `env:"LOG_LEVEL" mapstructure:"log_level"`
	PurgeWorkers    int           `env:"PURGE_WORKERS" mapstructure:"purge_workers"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" mapstructure:"shutdown_timeout"`
	MemProfile      string        `env:"MEMPROFILE" mapstructure:"mem_profile"`
	ConfigPath      string        `env:"CONFIG" mapstructure:"-"`
}

// Default returns the configuration used when nothing else is set.
func Default() Config {
	return Config{
		ServerAddress:   ":8080",
		GRPCAddress:     ":3200",
		BaseURL:         "http://localhost:8080",
		CacheTTL:        time.Hour,
		CodeLength:      7,
		CodeStrategy:    generator.StrategyRandom,
		ReusePolicy:     string(service.PolicyIdempotent),
		MaxAttempts:     service.DefaultMaxAttempts,
		LogLevel:        "info",
		PurgeWorkers:    2,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Load builds the configuration from, in increasing priority: defaults, the
// config file (-c or CONFIG), command-line flags and environment variables.
// A .env file in the working directory is loaded into the environment first.
func Load(args []string) (*Config, error) {
	def := Default()
	fl := def

	fset := flag.NewFlagSet("shortener", flag.ContinueOnError)
	fset.StringVar(&fl.ServerAddress, "a", def.ServerAddress, "HTTP server address (e.g. localhost:8888)")
	fset.StringVar(&fl.GRPCAddress, "g", def.GRPCAddress, "gRPC server address, empty disables gRPC")
	fset.StringVar(&fl.BaseURL, "b", def.BaseURL, "Base URL for absolute short URLs (e.g. http://localhost:8000)")
	fset.StringVar(&fl.FileStoragePath, "f", def.FileStoragePath, "Path to file storage")
	fset.StringVar(&fl.DatabaseDSN, "d", def.DatabaseDSN, "PostgreSQL connection string")
	fset.StringVar(&fl.MySQLDSN, "m", def.MySQLDSN, "MySQL connection string (e.g. user:pass@tcp(localhost:3306)/shortcode)")
	fset.StringVar(&fl.RedisAddr, "r", def.RedisAddr, "Redis address for the lookup cache")
	fset.IntVar(&fl.CodeLength, "l", def.CodeLength, "Length of generated codes")
	fset.StringVar(&fl.CodeStrategy, "s", def.CodeStrategy, "Code generator strategy: random or counter")
	fset.StringVar(&fl.ReusePolicy, "p", def.ReusePolicy, "Reuse policy: idempotent or always-new")
	fset.StringVar(&fl.LogLevel, "log-level", def.LogLevel, "Log level")
	fset.StringVar(&fl.MemProfile, "memprofile", def.MemProfile, "Write a heap profile to `file` on exit")
	fset.StringVar(&fl.ConfigPath, "c", "", "Path to a JSON or YAML config file")

	if err := fset.Parse(args); err != nil {
		return nil, err
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env: %w", err)
	}

	cfg := def
	path := fl.ConfigPath
	if p := os.Getenv("CONFIG"); p != "" {
		path = p
	}
	if path != "" {
		if err := readFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	fset.Visit(func(f *flag.Flag) {
		applyFlag(&cfg, &fl, f.Name)
	})

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("error parsing env variables: %w", err)
	}
	cfg.ConfigPath = path

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func readFile(path string, cfg *Config) error {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file %s: %w", path, err)
	}
	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("error decoding config file %s: %w", path, err)
	}

	return nil
}

func applyFlag(cfg, fl *Config, name string) {
	switch name {
	case "a":
		cfg.ServerAddress = fl.ServerAddress
	case "g":
		cfg.GRPCAddress = fl.GRPCAddress
	case "b":
		cfg.BaseURL = fl.BaseURL
	case "f":
		cfg.FileStoragePath = fl.FileStoragePath
	case "d":
		cfg.DatabaseDSN = fl.DatabaseDSN
	case "m":
		cfg.MySQLDSN = fl.MySQLDSN
	case "r":
		cfg.RedisAddr = fl.RedisAddr
	case "l":
		cfg.CodeLength = fl.CodeLength
	case "s":
		cfg.CodeStrategy = fl.CodeStrategy
	case "p":
		cfg.ReusePolicy = fl.ReusePolicy
	case "log-level":
		cfg.LogLevel = fl.LogLevel
	case "memprofile":
		cfg.MemProfile = fl.MemProfile
	}
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	if c.CodeLength < 1 || c.CodeLength > generator.MaxCodeLength {
		return fmt.Errorf("code length must be between 1 and %d, got %d", generator.MaxCodeLength, c.CodeLength)
	}
	if c.CodeStrategy != generator.StrategyRandom && c.CodeStrategy != generator.StrategyCounter {
		return fmt.Errorf("unknown code strategy %q", c.CodeStrategy)
	}
	if _, err := service.ParseReusePolicy(c.ReusePolicy); err != nil {
		return err
	}
	if c.MaxAttempts < 1 {
		return fmt.Errorf("max attempts must be positive, got %d", c.MaxAttempts)
	}
	if c.PurgeWorkers < 1 {
		return fmt.Errorf("purge workers must be positive, got %d", c.PurgeWorkers)
	}
	return nil
}
