package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment
// variables, optionally seeded from a .env file.
type Config struct {
	// Service
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`
	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9090"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT" envDefault:"json"` // json, text

	// Infrastructure
	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	DBDriver      string `env:"DB_DRIVER" envDefault:"sqlite3"` // sqlite3, postgres
	DBDSN         string `env:"DB_DSN" envDefault:"data/cryptodash.db"`

	// Secrets at rest
	EncryptionKey string `env:"ENCRYPTION_KEY" envDefault:"default-secret-key"`

	// Market data upstreams
	BinanceBaseURL    string        `env:"BINANCE_BASE_URL" envDefault:"https://api.binance.com"`
	BinanceTestnetURL string        `env:"BINANCE_TESTNET_URL" envDefault:"https://testnet.binance.vision"`
	BinanceRPS        float64       `env:"BINANCE_RPS" envDefault:"10"`
	CoinGeckoBaseURL  string        `env:"COINGECKO_BASE_URL" envDefault:"https://api.coingecko.com/api/v3"`
	UpstreamTimeout   time.Duration `env:"UPSTREAM_TIMEOUT" envDefault:"10s"`
	CandleCacheTTL    time.Duration `env:"CANDLE_CACHE_TTL" envDefault:"30s"`
	TickerCacheTTL    time.Duration `env:"TICKER_CACHE_TTL" envDefault:"15s"`

	// Indicator engine
	IndicatorConfigFile string        `env:"INDICATOR_CONFIG_FILE"`
	Symbols             []string      `env:"SYMBOLS" envSeparator:"," envDefault:"BTCUSDT,ETHUSDT,BNBUSDT"`
	Intervals           []string      `env:"INTERVALS" envSeparator:"," envDefault:"1h"`
	CandleLimit         int           `env:"CANDLE_LIMIT" envDefault:"200"`
	PollInterval        time.Duration `env:"POLL_INTERVAL" envDefault:"30s"`
	PollConcurrency     int           `env:"POLL_CONCURRENCY" envDefault:"4"`
	AlertInterval       time.Duration `env:"ALERT_INTERVAL" envDefault:"15s"`

	// Paper trading
	PaperInitialUSDT float64 `env:"PAPER_INITIAL_USDT" envDefault:"10000"`
	PaperSlippageBps int64   `env:"PAPER_SLIPPAGE_BPS" envDefault:"5"`

	// Notifications
	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID   string `env:"TELEGRAM_CHAT_ID"`
	WebhookURL       string `env:"ALERT_WEBHOOK_URL"`
	SMTPHost         string `env:"SMTP_HOST"`
	SMTPPort         int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUser         string `env:"SMTP_USER"`
	SMTPPassword     string `env:"SMTP_PASSWORD"`
	SMTPFrom         string `env:"SMTP_FROM"`
	AlertEmailTo     string `env:"ALERT_EMAIL_TO"`
	WhatsAppAPIURL   string `env:"WHATSAPP_API_URL"`
	WhatsAppAPIKey   string `env:"WHATSAPP_API_KEY"`
	WhatsAppNumber   string `env:"WHATSAPP_NUMBER"`

	// Market commentary
	LLMProvider    string  `env:"LLM_PROVIDER"` // openai, anthropic, gemini, deepseek
	LLMAPIKey      string  `env:"LLM_API_KEY"`
	LLMModel       string  `env:"LLM_MODEL"`
	LLMTemperature float64 `env:"LLM_TEMPERATURE" envDefault:"0.7"`
	LLMBaseURL     string  `env:"LLM_BASE_URL"`
}

// Load reads configuration from environment variables with sensible defaults.
// A missing .env file is not an error.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: load .env: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if cfg.EncryptionKey == "default-secret-key" {
		log.Printf("[config] ENCRYPTION_KEY not set, using the built-in default")
	}
	return cfg, nil
}

// Validate rejects settings no process can run with.
func (c *Config) Validate() error {
	var errs []error
	switch c.DBDriver {
	case "sqlite3", "postgres":
	default:
		errs = append(errs, fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver))
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("unsupported LOG_FORMAT %q", c.LogFormat))
	}
	if c.CandleLimit <= 0 || c.CandleLimit > 1000 {
		errs = append(errs, fmt.Errorf("CANDLE_LIMIT=%d must be in [1, 1000]", c.CandleLimit))
	}
	if c.PollConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("POLL_CONCURRENCY=%d must be positive", c.PollConcurrency))
	}
	if c.BinanceRPS <= 0 {
		errs = append(errs, fmt.Errorf("BINANCE_RPS=%v must be positive", c.BinanceRPS))
	}
	if c.TelegramBotToken != "" && c.TelegramChatID == "" {
		errs = append(errs, errors.New("TELEGRAM_CHAT_ID is required with TELEGRAM_BOT_TOKEN"))
	}
	if c.LLMProvider != "" && c.LLMAPIKey == "" {
		errs = append(errs, fmt.Errorf("LLM_API_KEY is required for LLM_PROVIDER %q", c.LLMProvider))
	}
	return errors.Join(errs...)
}
