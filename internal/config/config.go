package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// ErrMissingToken is returned when no bot credential can be found.
var ErrMissingToken = errors.New("bot token not found: no docker secret, BOT_TOKEN or TELEGRAM_BOT_TOKEN")

// secretPath is where docker swarm / compose mounts the bot token.
var secretPath = "/run/secrets/telegram_bot_token"

type Config struct {
	TelegramToken string `env:"-"`

	TargetUsernames []string `env:"TARGET_USERNAMES" envSeparator:"," envDefault:"gofordylan"`
	Timezone        string   `env:"TIMEZONE" envDefault:"America/New_York"`
	MorningHour     int      `env:"MORNING_HOUR" envDefault:"5"`
	MorningMinute   int      `env:"MORNING_MINUTE" envDefault:"0"`
	EveningHour     int      `env:"EVENING_HOUR" envDefault:"19"`
	EveningMinute   int      `env:"EVENING_MINUTE" envDefault:"0"`

	DBPath       string `env:"DB_PATH" envDefault:"data/bot.db"`
	HistoryLimit int    `env:"HISTORY_LIMIT" envDefault:"10"`

	// Логирование
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"LOG_FORMAT"` // console, json; empty picks by environment
	LogFile     string `env:"LOG_FILE" envDefault:"stdout"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	// HTTP / webhook
	ListenAddr    string `env:"LISTEN_ADDR" envDefault:":8080"`
	WebhookSecret string `env:"WEBHOOK_SECRET"`
	PublicURL     string `env:"PUBLIC_URL"`
}

// Load reads .env (if present) and the process environment. A missing bot
// credential is an error.
func Load() (Config, error) {
	return load(true)
}

// LoadOffline is Load for commands that never talk to Telegram: the token is
// picked up if present but not required.
func LoadOffline() (Config, error) {
	return load(false)
}

func load(requireToken bool) (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.TargetUsernames = normalizeHandles(cfg.TargetUsernames)

	token, err := getBotToken()
	if err != nil && requireToken {
		return Config{}, err
	}
	cfg.TelegramToken = token

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func getBotToken() (string, error) {
	if data, err := os.ReadFile(secretPath); err == nil {
		token := strings.TrimSpace(string(data))
		if token != "" {
			return token, nil
		}
	}
	for _, key := range []string{"BOT_TOKEN", "TELEGRAM_BOT_TOKEN"} {
		if token := strings.TrimSpace(os.Getenv(key)); token != "" {
			return token, nil
		}
	}
	return "", ErrMissingToken
}

func (c Config) Validate() error {
	if c.MorningHour < 0 || c.MorningHour > 23 || c.EveningHour < 0 || c.EveningHour > 23 {
		return fmt.Errorf("trigger hours must be in [0,23], got morning=%d evening=%d", c.MorningHour, c.EveningHour)
	}
	if c.MorningMinute < 0 || c.MorningMinute > 59 || c.EveningMinute < 0 || c.EveningMinute > 59 {
		return fmt.Errorf("trigger minutes must be in [0,59], got morning=%d evening=%d", c.MorningMinute, c.EveningMinute)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid TIMEZONE %q: %w", c.Timezone, err)
	}
	if len(c.TargetUsernames) == 0 {
		return errors.New("TARGET_USERNAMES must name at least one user")
	}
	if c.HistoryLimit <= 0 {
		return fmt.Errorf("HISTORY_LIMIT must be positive, got %d", c.HistoryLimit)
	}
	return nil
}

func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

// Location returns the configured zone. Validate guarantees it loads.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// normalizeHandles strips "@" and whitespace and drops empty entries.
func normalizeHandles(in []string) []string {
	out := make([]string, 0, len(in))
	for _, h := range in {
		h = strings.TrimPrefix(strings.TrimSpace(h), "@")
		if h != "" {
			out = append(out, h)
		}
	}
	return out
}
