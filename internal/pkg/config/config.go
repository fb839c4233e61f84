package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Logging  LoggingConfig  `yaml:"logging"`
	Server   ServerConfig   `yaml:"server"`
	Source   SourceConfig   `yaml:"source"`
	Redis    RedisConfig    `yaml:"redis"`
	Storage  StorageConfig  `yaml:"storage"`
	Engine   EngineConfig   `yaml:"engine"`
	Trainer  TrainerConfig  `yaml:"trainer"`
	Value    ValueConfig    `yaml:"value"`
	Telegram TelegramConfig `yaml:"telegram"`
}

type LoggingConfig struct {
	Level     string `yaml:"level"`  // debug, info, warn, error
	Format    string `yaml:"format"` // text or json
	AddSource bool   `yaml:"add_source"`
	File      string `yaml:"file"` // optional JSON sink in addition to stdout
}

type ServerConfig struct {
	Addr              string        `yaml:"addr"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
}

// SourceConfig configures the fixtures/odds provider. An empty APIKey selects synthetic data.
type SourceConfig struct {
	BaseURL         string        `yaml:"base_url"`
	APIKey          string        `yaml:"api_key"`
	Host            string        `yaml:"host"`
	League          int           `yaml:"league"`
	Season          int           `yaml:"season"` // 0 derives seasons from the requested dates
	Competition     string        `yaml:"competition"`
	Timeout         time.Duration `yaml:"timeout"`
	RatePerMinute   int           `yaml:"rate_per_minute"`
	RetryMax        int           `yaml:"retry_max"`
	RequestCacheTTL time.Duration `yaml:"request_cache_ttl"`
	Lookback        time.Duration `yaml:"lookback"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type StorageConfig struct {
	Driver                 string `yaml:"driver"` // sqlite, postgres or memory
	DSN                    string `yaml:"dsn"`
	PredictionHistoryLimit int    `yaml:"prediction_history_limit"`
}

type EngineConfig struct {
	CacheTTL      time.Duration `yaml:"cache_ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	OddsFreshness time.Duration `yaml:"odds_freshness"`
	MinEdge       float64       `yaml:"min_edge"`
	MinConfidence float64       `yaml:"min_confidence"`
	FormWindow    int           `yaml:"form_window"`
	GoalsLine     float64       `yaml:"goals_line"`
	FixtureWindow time.Duration `yaml:"fixture_window"`
}

type TrainerConfig struct {
	MinSamples         int           `yaml:"min_samples"`
	ValidationFraction float64       `yaml:"validation_fraction"`
	Seed               int64         `yaml:"seed"`
	Epochs             int           `yaml:"epochs"`
	LearningRate       float64       `yaml:"learning_rate"`
	L2                 float64       `yaml:"l2"`
	RetrainInterval    time.Duration `yaml:"retrain_interval"`
}

type ValueConfig struct {
	KellyFraction float64 `yaml:"kelly_fraction"`
	MaxStakePct   float64 `yaml:"max_stake_pct"`
	Bankroll      float64 `yaml:"bankroll"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
	MinTier  string `yaml:"min_tier"`
}

// Default returns a config with every default applied
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// .env is optional
	_ = godotenv.Load()
	if err := config.ApplyEnv(); err != nil {
		return nil, err
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// ApplyEnv overrides secrets and deployment specific values from the environment
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("API_FOOTBALL_KEY"); v != "" {
		c.Source.APIKey = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.Storage.Driver = "postgres"
		c.Storage.DSN = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		c.Storage.Driver = "sqlite"
		c.Storage.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		chatID, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid TELEGRAM_CHAT_ID: %w", err)
		}
		c.Telegram.ChatID = chatID
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	return nil
}

// ApplyDefaults fills zero values
func (c *Config) ApplyDefaults() {
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}

	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadHeaderTimeout == 0 {
		c.Server.ReadHeaderTimeout = 5 * time.Second
	}

	if c.Source.BaseURL == "" {
		c.Source.BaseURL = "https://v3.football.api-sports.io"
	}
	if c.Source.Host == "" {
		c.Source.Host = "v3.football.api-sports.io"
	}
	if c.Source.League == 0 {
		c.Source.League = 39
	}
	if c.Source.Competition == "" {
		c.Source.Competition = "Premier League"
	}
	if c.Source.Timeout == 0 {
		c.Source.Timeout = 10 * time.Second
	}
	if c.Source.RatePerMinute == 0 {
		c.Source.RatePerMinute = 10
	}
	if c.Source.RetryMax == 0 {
		c.Source.RetryMax = 3
	}
	if c.Source.RequestCacheTTL == 0 {
		c.Source.RequestCacheTTL = 5 * time.Minute
	}
	if c.Source.Lookback == 0 {
		c.Source.Lookback = 365 * 24 * time.Hour
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = "sqlite"
	}
	if c.Storage.Driver == "sqlite" && c.Storage.DSN == "" {
		c.Storage.DSN = "footpredict.db"
	}
	if c.Storage.PredictionHistoryLimit == 0 {
		c.Storage.PredictionHistoryLimit = 1000
	}

	if c.Engine.CacheTTL == 0 {
		c.Engine.CacheTTL = 10 * time.Minute
	}
	if c.Engine.SweepInterval == 0 {
		c.Engine.SweepInterval = time.Minute
	}
	if c.Engine.OddsFreshness == 0 {
		c.Engine.OddsFreshness = 15 * time.Minute
	}
	if c.Engine.MinEdge == 0 {
		c.Engine.MinEdge = 0.05
	}
	if c.Engine.MinConfidence == 0 {
		c.Engine.MinConfidence = 0.40
	}
	if c.Engine.FormWindow == 0 {
		c.Engine.FormWindow = 10
	}
	if c.Engine.GoalsLine == 0 {
		c.Engine.GoalsLine = 2.5
	}
	if c.Engine.FixtureWindow == 0 {
		c.Engine.FixtureWindow = 48 * time.Hour
	}

	if c.Trainer.MinSamples == 0 {
		c.Trainer.MinSamples = 50
	}
	if c.Trainer.ValidationFraction == 0 {
		c.Trainer.ValidationFraction = 0.2
	}
	if c.Trainer.Seed == 0 {
		c.Trainer.Seed = 42
	}
	if c.Trainer.Epochs == 0 {
		c.Trainer.Epochs = 300
	}
	if c.Trainer.LearningRate == 0 {
		c.Trainer.LearningRate = 0.1
	}
	if c.Trainer.L2 == 0 {
		c.Trainer.L2 = 0.001
	}
	if c.Trainer.RetrainInterval == 0 {
		c.Trainer.RetrainInterval = 2 * time.Hour
	}

	if c.Value.KellyFraction == 0 {
		c.Value.KellyFraction = 0.25
	}
	if c.Value.MaxStakePct == 0 {
		c.Value.MaxStakePct = 0.05
	}

	if c.Telegram.MinTier == "" {
		c.Telegram.MinTier = "strong"
	}
}

// Validate rejects values the engine cannot work with
func (c *Config) Validate() error {
	var errs []error
	if c.Engine.CacheTTL < 0 {
		errs = append(errs, fmt.Errorf("engine.cache_ttl must not be negative"))
	}
	if c.Engine.OddsFreshness < 0 {
		errs = append(errs, fmt.Errorf("engine.odds_freshness must not be negative"))
	}
	if c.Engine.MinEdge < 0 || c.Engine.MinEdge > 1 {
		errs = append(errs, fmt.Errorf("engine.min_edge must be in [0,1], got %v", c.Engine.MinEdge))
	}
	if c.Engine.MinConfidence < 0 || c.Engine.MinConfidence > 1 {
		errs = append(errs, fmt.Errorf("engine.min_confidence must be in [0,1], got %v", c.Engine.MinConfidence))
	}
	if c.Engine.FormWindow < 1 {
		errs = append(errs, fmt.Errorf("engine.form_window must be positive"))
	}
	if c.Trainer.MinSamples < 2 {
		errs = append(errs, fmt.Errorf("trainer.min_samples must be at least 2"))
	}
	if c.Trainer.ValidationFraction <= 0 || c.Trainer.ValidationFraction >= 1 {
		errs = append(errs, fmt.Errorf("trainer.validation_fraction must be in (0,1)"))
	}
	if c.Value.KellyFraction < 0 || c.Value.KellyFraction > 1 {
		errs = append(errs, fmt.Errorf("value.kelly_fraction must be in [0,1]"))
	}
	switch c.Storage.Driver {
	case "sqlite", "postgres", "memory":
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q is not supported", c.Storage.Driver))
	}
	if c.Storage.Driver == "postgres" && c.Storage.DSN == "" {
		errs = append(errs, fmt.Errorf("storage.dsn is required for postgres (or set POSTGRES_DSN)"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
