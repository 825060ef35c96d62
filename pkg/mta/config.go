package mta

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config holds configuration for the MTA client
// APIKey required for accessing MTA's GTFS-RT feeds
type Config struct {
	APIKey               string        `validate:"required"`
	UpdateInterval       time.Duration `validate:"required"`
	StaticUpdateInterval time.Duration
	StopsFile            string   `validate:"required"`
	FeedURLs             []string `validate:"dive,url"`
	ArrivalWindow        time.Duration
}

// fileConfig is the YAML shape of Config. Intervals are plain integers so the
// file stays readable without duration syntax.
type fileConfig struct {
	APIKey                    string   `yaml:"api_key"`
	UpdateIntervalSeconds     int      `yaml:"update_interval_seconds"`
	StaticUpdateIntervalHours int      `yaml:"static_update_interval_hours"`
	StopsFile                 string   `yaml:"stops_file"`
	FeedURLs                  []string `yaml:"feed_urls"`
	ArrivalWindowMinutes      int      `yaml:"arrival_window_minutes"`
}

// DefaultConfig returns default configuration
// 60-second update interval balances freshness with API rate limits
func DefaultConfig() Config {
	return Config{
		UpdateInterval:       60 * time.Second,
		StaticUpdateInterval: 6 * time.Hour,
		StopsFile:            "data/stops.txt",
		ArrivalWindow:        60 * time.Minute,
	}
}

// LoadConfig reads a YAML config file, applies defaults for unset fields,
// and validates the result.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	cfg := DefaultConfig()
	if fc.APIKey != "" {
		cfg.APIKey = fc.APIKey
	}
	if fc.UpdateIntervalSeconds > 0 {
		cfg.UpdateInterval = time.Duration(fc.UpdateIntervalSeconds) * time.Second
	}
	if fc.StaticUpdateIntervalHours > 0 {
		cfg.StaticUpdateInterval = time.Duration(fc.StaticUpdateIntervalHours) * time.Hour
	}
	if fc.StopsFile != "" {
		cfg.StopsFile = fc.StopsFile
	}
	if len(fc.FeedURLs) > 0 {
		cfg.FeedURLs = fc.FeedURLs
	}
	if fc.ArrivalWindowMinutes > 0 {
		cfg.ArrivalWindow = time.Duration(fc.ArrivalWindowMinutes) * time.Minute
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks required fields and value shapes.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
