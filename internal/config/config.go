package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/Zuo-Peng/slopwatch/internal/classifier"
	"github.com/Zuo-Peng/slopwatch/internal/feed"
)

type Browser struct {
	DebuggerURL string `toml:"debugger_url"`
	Bin         string `toml:"bin"`
	ProfileDir  string `toml:"profile_dir"`
	Headless    bool   `toml:"headless"`
}

type Config struct {
	DBPath       string  `toml:"db_path"`
	FeedURL      string  `toml:"feed_url"`
	PostSelector string  `toml:"post_selector"`
	TextSelector string  `toml:"text_selector"`
	Endpoint     string  `toml:"endpoint"`
	Model        string  `toml:"model"`
	MaxTokens    int     `toml:"max_tokens"`
	Temperature  float64 `toml:"temperature"`
	MaxInFlight  int     `toml:"max_in_flight"` // 0 = unbounded
	LogLevel     string  `toml:"log_level"`
	LogFile      string  `toml:"log_file"`
	MetricsAddr  string  `toml:"metrics_addr"`
	Browser      Browser `toml:"browser"`
}

func Load() (*Config, error) {
	// a missing .env is fine
	_ = godotenv.Load()

	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return loadFrom(home)
}

func loadFrom(home string) (*Config, error) {
	cfgDir := filepath.Join(home, ".config", "slopwatch")
	cfg := &Config{
		DBPath:       filepath.Join(cfgDir, "slopwatch.db"),
		FeedURL:      feed.DefaultFeedURL,
		PostSelector: feed.DefaultPostSelector,
		TextSelector: feed.DefaultTextSelector,
		Endpoint:     classifier.DefaultEndpoint,
		Model:        classifier.DefaultModel,
		MaxTokens:    classifier.DefaultMaxTokens,
		Temperature:  classifier.DefaultTemperature,
		LogLevel:     "info",
		LogFile:      filepath.Join(cfgDir, "slopwatch.log"),
		Browser: Browser{
			ProfileDir: filepath.Join(cfgDir, "chrome-profile"),
		},
	}

	cfgPath := filepath.Join(cfgDir, "config.toml")
	if _, err := os.Stat(cfgPath); err == nil {
		if _, err := toml.DecodeFile(cfgPath, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", cfgPath, err)
		}
	}

	applyEnv(cfg)

	// expand ~ in paths
	cfg.DBPath = expandHome(cfg.DBPath, home)
	cfg.LogFile = expandHome(cfg.LogFile, home)
	cfg.Browser.ProfileDir = expandHome(cfg.Browser.ProfileDir, home)
	cfg.Browser.Bin = expandHome(cfg.Browser.Bin, home)

	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("SLOPWATCH_ENDPOINT"); v != "" {
		cfg.Endpoint = v
	}
	if v := os.Getenv("SLOPWATCH_MODEL"); v != "" {
		cfg.Model = v
	}
	if v := os.Getenv("SLOPWATCH_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("SLOPWATCH_DEBUGGER_URL"); v != "" {
		cfg.Browser.DebuggerURL = v
	}
}

func expandHome(path, home string) string {
	if len(path) > 1 && path[0] == '~' && path[1] == '/' {
		return filepath.Join(home, path[2:])
	}
	return path
}
