package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	DataSource DataSource `yaml:"data_source"`
	Screen     Screen     `yaml:"screen"`
	Analysis   struct {
		Concurrency int `yaml:"concurrency"`
		HistoryDays int `yaml:"history_days"`
	} `yaml:"analysis"`
	Schedule struct {
		ScreenCron string `yaml:"screen_cron"`
	} `yaml:"schedule"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Log struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"log"`
	Proxy string `yaml:"proxy"`
}

// DataSource configures the market-data provider.
type DataSource struct {
	ListURL   string `yaml:"list_url"`
	KLineURL  string `yaml:"kline_url"`
	Attempts  int    `yaml:"attempts"`
	BackoffMS int    `yaml:"backoff_ms"`
	TimeoutS  int    `yaml:"timeout_s"`
}

// Backoff returns the fixed wait between attempts.
func (d DataSource) Backoff() time.Duration {
	return time.Duration(d.BackoffMS) * time.Millisecond
}

// Timeout returns the per-request HTTP timeout.
func (d DataSource) Timeout() time.Duration {
	return time.Duration(d.TimeoutS) * time.Second
}

// Screen holds the screen-stage thresholds. Market cap bounds are in
// hundreds of millions of yuan (亿) as written, converted with MinCap/MaxCap.
type Screen struct {
	MinFloatCapYi float64  `yaml:"min_float_cap_yi"`
	MaxFloatCapYi float64  `yaml:"max_float_cap_yi"`
	MaxPrice      float64  `yaml:"max_price"`
	ExcludeName   string   `yaml:"exclude_name"`
	CodePrefixes  []string `yaml:"code_prefixes"`
	NameKeywords  []string `yaml:"name_keywords"`
	Board         string   `yaml:"board"`
}

// MinCap returns the lower float market cap bound in yuan.
func (s Screen) MinCap() float64 { return s.MinFloatCapYi * 1e8 }

// MaxCap returns the upper float market cap bound in yuan.
func (s Screen) MaxCap() float64 { return s.MaxFloatCapYi * 1e8 }

// Default returns a config populated with defaults only.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads an optional .env file and the YAML config, then applies
// environment variable overrides and defaults.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(".env"); err != nil {
			return nil, fmt.Errorf("load .env: %w", err)
		}
	}

	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		c.Telegram.ChatID = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		c.Proxy = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		c.Database.SQLitePath = v
	}
	if v := os.Getenv("SCREEN_CRON"); v != "" {
		c.Schedule.ScreenCron = v
	}
	if v := os.Getenv("SCREEN_BOARD"); v != "" {
		c.Screen.Board = strings.ToUpper(strings.TrimSpace(v))
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("ANALYSIS_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Analysis.Concurrency = n
		}
	}
}

func (c *Config) applyDefaults() {
	if c.DataSource.ListURL == "" {
		c.DataSource.ListURL = "https://82.push2.eastmoney.com/api/qt/clist/get"
	}
	if c.DataSource.KLineURL == "" {
		c.DataSource.KLineURL = "https://push2his.eastmoney.com/api/qt/stock/kline/get"
	}
	if c.DataSource.Attempts == 0 {
		c.DataSource.Attempts = 3
	}
	if c.DataSource.BackoffMS == 0 {
		c.DataSource.BackoffMS = 2000
	}
	if c.DataSource.TimeoutS == 0 {
		c.DataSource.TimeoutS = 15
	}
	if c.Screen.MinFloatCapYi == 0 && c.Screen.MaxFloatCapYi == 0 {
		c.Screen.MinFloatCapYi = 15
		c.Screen.MaxFloatCapYi = 100
	}
	if c.Screen.MaxPrice == 0 {
		c.Screen.MaxPrice = 50
	}
	if c.Screen.ExcludeName == "" {
		c.Screen.ExcludeName = "ST"
	}
	if c.Screen.CodePrefixes == nil {
		c.Screen.CodePrefixes = []string{"600", "601", "603", "605", "000", "001", "002"}
	}
	if c.Screen.NameKeywords == nil {
		c.Screen.NameKeywords = []string{"智能", "AI", "机器视觉", "人工智能", "自然语言处理"}
	}
	if c.Analysis.Concurrency == 0 {
		c.Analysis.Concurrency = 4
	}
	if c.Analysis.HistoryDays == 0 {
		c.Analysis.HistoryDays = 250
	}
	if c.Schedule.ScreenCron == "" {
		c.Schedule.ScreenCron = "0 */30 9-15 * * 1-5"
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "data/fib_sentinel.db"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate checks that all settings are usable. Telegram is optional but
// both of its fields must be set together.
func (c *Config) Validate() error {
	var errs error
	if (c.Telegram.BotToken == "") != (c.Telegram.ChatID == "") {
		errs = errors.Join(errs, fmt.Errorf("telegram.bot_token and telegram.chat_id must be set together"))
	}
	if c.DataSource.Attempts < 1 {
		errs = errors.Join(errs, fmt.Errorf("data_source.attempts must be at least 1"))
	}
	if c.DataSource.BackoffMS < 0 {
		errs = errors.Join(errs, fmt.Errorf("data_source.backoff_ms cannot be negative"))
	}
	if c.Screen.MinFloatCapYi < 0 || c.Screen.MaxFloatCapYi < c.Screen.MinFloatCapYi {
		errs = errors.Join(errs, fmt.Errorf("screen float cap band [%v, %v] is invalid",
			c.Screen.MinFloatCapYi, c.Screen.MaxFloatCapYi))
	}
	if c.Screen.MaxPrice <= 0 {
		errs = errors.Join(errs, fmt.Errorf("screen.max_price must be positive"))
	}
	if c.Screen.Board != "" && !strings.HasPrefix(c.Screen.Board, "BK") {
		errs = errors.Join(errs, fmt.Errorf("screen.board %q must start with BK", c.Screen.Board))
	}
	if c.Analysis.Concurrency < 1 {
		errs = errors.Join(errs, fmt.Errorf("analysis.concurrency must be at least 1"))
	}
	if c.Analysis.HistoryDays < 5 {
		errs = errors.Join(errs, fmt.Errorf("analysis.history_days must be at least 5"))
	}
	return errs
}

// TelegramEnabled reports whether report delivery is configured.
func (c *Config) TelegramEnabled() bool {
	return c.Telegram.BotToken != "" && c.Telegram.ChatID != ""
}
