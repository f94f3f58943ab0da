// Package config loads runtime settings from the environment and an optional thresholds file
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/abelzeko/water-monitor/internal/safety"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds everything the entry points need
type Config struct {
	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string

	TelegramBotToken string

	HTTPAddr string

	StoreDriver string
	StoreDSN    string

	PredictionTimeout time.Duration
	RefreshDelay      time.Duration
	AutoRefreshCron   string

	ThresholdsFile string
	Debug          bool

	Thresholds    safety.Thresholds
	DisplayRanges safety.DisplayRanges
}

// Defaults
const (
	DefaultHTTPAddr          = ":8080"
	DefaultStoreDriver       = "memory"
	DefaultPredictionTimeout = 30 * time.Second
	DefaultRefreshDelay      = 1500 * time.Millisecond
)

// Default returns a configuration with every default applied
func Default() *Config {
	return &Config{
		HTTPAddr:          DefaultHTTPAddr,
		StoreDriver:       DefaultStoreDriver,
		PredictionTimeout: DefaultPredictionTimeout,
		RefreshDelay:      DefaultRefreshDelay,
		Thresholds:        safety.DefaultThresholds(),
		DisplayRanges:     safety.DefaultDisplayRanges(),
	}
}

// Load reads .env files (if any) and then the process environment
func Load(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load env file: %w", err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a configuration from a variable lookup function
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := Default()

	cfg.OpenAIAPIKey = getenv("OPENAI_API_KEY")
	cfg.OpenAIBaseURL = getenv("OPENAI_BASE_URL")
	cfg.OpenAIModel = getenv("OPENAI_MODEL")
	cfg.TelegramBotToken = getenv("TELEGRAM_BOT_TOKEN")
	cfg.AutoRefreshCron = strings.TrimSpace(getenv("AUTO_REFRESH_CRON"))
	cfg.ThresholdsFile = getenv("THRESHOLDS_FILE")
	cfg.StoreDSN = getenv("STORE_DSN")

	if v := getenv("HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := getenv("STORE_DRIVER"); v != "" {
		cfg.StoreDriver = strings.ToLower(v)
	}

	var err error
	if cfg.PredictionTimeout, err = durationVar(getenv, "PREDICTION_TIMEOUT", cfg.PredictionTimeout); err != nil {
		return nil, err
	}
	if cfg.RefreshDelay, err = durationVar(getenv, "REFRESH_DELAY", cfg.RefreshDelay); err != nil {
		return nil, err
	}
	if v := getenv("DEBUG"); v != "" {
		if cfg.Debug, err = strconv.ParseBool(v); err != nil {
			return nil, fmt.Errorf("invalid DEBUG value %q: %w", v, err)
		}
	}

	if cfg.ThresholdsFile != "" {
		if err := cfg.LoadThresholdsFile(cfg.ThresholdsFile); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func durationVar(getenv func(string) string, name string, def time.Duration) (time.Duration, error) {
	v := getenv(name)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", name, v, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", name, v)
	}
	return d, nil
}

// thresholdsFile is the on-disk layout of THRESHOLDS_FILE. Either section may be omitted.
type thresholdsFile struct {
	Thresholds    *safety.Thresholds    `yaml:"thresholds"`
	DisplayRanges *safety.DisplayRanges `yaml:"display_ranges"`
}

// LoadThresholdsFile overrides the classifier table and gauge ranges from a YAML file.
// Keys missing from the file keep their current values.
func (c *Config) LoadThresholdsFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read thresholds file: %w", err)
	}

	file := thresholdsFile{
		Thresholds:    &c.Thresholds,
		DisplayRanges: &c.DisplayRanges,
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse thresholds file: %w", err)
	}
	return c.Validate()
}

// Validate checks the gauge ranges are usable
func (c *Config) Validate() error {
	ranges := map[string]safety.Range{
		"ph":        c.DisplayRanges.PH,
		"temp":      c.DisplayRanges.Temp,
		"turbidity": c.DisplayRanges.Turbidity,
		"tds":       c.DisplayRanges.TDS,
	}
	for name, r := range ranges {
		if r.Min > r.Max {
			return fmt.Errorf("display range %s: min %g is above max %g", name, r.Min, r.Max)
		}
	}
	return nil
}
