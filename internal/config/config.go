package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Store    StoreConfig    `mapstructure:"store"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Mailbox  MailboxConfig  `mapstructure:"mailbox"`
	Retry    RetryConfig    `mapstructure:"retry"`
	Scan     ScanConfig     `mapstructure:"scan"`
	Deadline DeadlineConfig `mapstructure:"deadline"`
	Enrich   EnrichConfig   `mapstructure:"enrich"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr" validate:"required"`
	// EnrichInterval drives the periodic sweep of unknown-confidence orders
	// when running `serve`. Zero disables it.
	EnrichInterval time.Duration `mapstructure:"enrich_interval"`
}

type StoreConfig struct {
	Backend      string      `mapstructure:"backend" validate:"oneof=memory sqlite mysql postgres redis"`
	DSN          string      `mapstructure:"dsn" validate:"required_if=Backend sqlite,required_if=Backend mysql,required_if=Backend postgres"`
	MaxOpenConns int         `mapstructure:"max_open_conns" validate:"gte=0"`
	KeyPrefix    string      `mapstructure:"key_prefix"`
	Redis        RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type LLMConfig struct {
	Generator         ProviderConfig `mapstructure:"generator"`
	RequestsPerSecond float64        `mapstructure:"requests_per_second" validate:"gt=0"`
	MaxTokens         int            `mapstructure:"max_tokens" validate:"gt=0"`
}

type ProviderConfig struct {
	Provider  string `mapstructure:"provider" validate:"oneof=openai anthropic mock"`
	Model     string `mapstructure:"model"`
	APIKeyEnv string `mapstructure:"api_key_env"`
	APIKey    string `mapstructure:"api_key"`
}

type MailboxConfig struct {
	FixturePath string        `mapstructure:"fixture_path"`
	FetchDelay  time.Duration `mapstructure:"fetch_delay" validate:"gte=0"`
}

type RetryConfig struct {
	MaxAttempts     uint          `mapstructure:"max_attempts" validate:"gte=1"`
	InitialInterval time.Duration `mapstructure:"initial_interval" validate:"gt=0"`
	MaxInterval     time.Duration `mapstructure:"max_interval" validate:"gtefield=InitialInterval"`
}

type ScanConfig struct {
	Lookback    time.Duration `mapstructure:"lookback" validate:"gt=0"`
	ThreadHints bool          `mapstructure:"thread_hints"`
}

type DeadlineConfig struct {
	DefaultWindowDays   int     `mapstructure:"default_window_days" validate:"gte=0,lte=365"`
	TimeWindowDays      int     `mapstructure:"time_window_days" validate:"gt=0"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold" validate:"gt=0,lte=1"`
}

type EnrichConfig struct {
	ContextBudget int `mapstructure:"context_budget" validate:"gte=200"`
	WindowRadius  int `mapstructure:"window_radius" validate:"gt=0"`
	MaxCandidates int `mapstructure:"max_candidates" validate:"gte=0"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=trace debug info warn error"`
	Pretty bool   `mapstructure:"pretty"`
}

// LoadConfig loads configuration from config.yaml and environment variables
func LoadConfig() (*Config, error) {
	return LoadConfigFrom("")
}

// LoadConfigFrom loads configuration from an explicit file when path is set,
// otherwise from the standard search locations. A missing config file is not
// an error; defaults and environment variables still apply.
func LoadConfigFrom(path string) (*Config, error) {
	// .env is optional and only feeds the environment
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./deploy/")
		v.AddConfigPath("./")
		v.AddConfigPath("$HOME/.shopq/")
		v.AddConfigPath("/etc/shopq/")
	}

	// Enable environment variable override with SHOPQ_ prefix
	v.SetEnvPrefix("SHOPQ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var config Config
	// defaults are static and always decode
	_ = v.Unmarshal(&config)
	return &config
}

// Validate checks the struct tags on the configuration tree.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.enrich_interval", "15m")

	v.SetDefault("store.backend", "sqlite")
	v.SetDefault("store.dsn", "file:shopq.db?_pragma=busy_timeout(5000)")
	v.SetDefault("store.max_open_conns", 1)
	v.SetDefault("store.key_prefix", "shopq:")
	v.SetDefault("store.redis.addr", "localhost:6379")

	v.SetDefault("llm.generator.provider", "mock")
	v.SetDefault("llm.generator.model", "return-policy-extractor")
	v.SetDefault("llm.requests_per_second", 1.0)
	v.SetDefault("llm.max_tokens", 400)

	v.SetDefault("mailbox.fixture_path", "./deploy/mailbox.json")
	v.SetDefault("mailbox.fetch_delay", "200ms")

	v.SetDefault("retry.max_attempts", 4)
	v.SetDefault("retry.initial_interval", "500ms")
	v.SetDefault("retry.max_interval", "10s")

	v.SetDefault("scan.lookback", "2160h")
	v.SetDefault("scan.thread_hints", true)

	v.SetDefault("deadline.default_window_days", 0)
	v.SetDefault("deadline.time_window_days", 14)
	v.SetDefault("deadline.similarity_threshold", 0.60)

	v.SetDefault("enrich.context_budget", 2000)
	v.SetDefault("enrich.window_radius", 300)
	v.SetDefault("enrich.max_candidates", 5)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", true)
}
