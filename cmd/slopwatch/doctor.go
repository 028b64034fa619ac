package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Zuo-Peng/slopwatch/internal/config"
	"github.com/Zuo-Peng/slopwatch/internal/credstore"
	"github.com/Zuo-Peng/slopwatch/internal/feed"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Self-check: verify config, key store and browser",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}

			fmt.Println("=== Config ===")
			home, _ := os.UserHomeDir()
			checkFile("Config file", filepath.Join(home, ".config", "slopwatch", "config.toml"))
			fmt.Printf("  Feed:      %s\n", cfg.FeedURL)
			fmt.Printf("  Posts:     %s\n", cfg.PostSelector)
			fmt.Printf("  Text:      %s\n", cfg.TextSelector)
			fmt.Printf("  Endpoint:  %s\n", cfg.Endpoint)
			fmt.Printf("  Model:     %s (max_tokens=%d, temperature=%.1f)\n", cfg.Model, cfg.MaxTokens, cfg.Temperature)
			if cfg.MaxInFlight > 0 {
				fmt.Printf("  In flight: at most %d\n", cfg.MaxInFlight)
			} else {
				fmt.Println("  In flight: unbounded")
			}

			fmt.Println("\n=== Key Store ===")
			store, err := credstore.Open(cfg.DBPath, zap.NewNop())
			if err != nil {
				fmt.Printf("  Path: %s\n", cfg.DBPath)
				fmt.Printf("  Status: ERROR (%v)\n", err)
			} else {
				defer store.Close()
				fmt.Printf("  Path: %s\n", store.Path())
				key, ok, err := store.Get()
				switch {
				case err != nil:
					fmt.Printf("  Status: ERROR (%v)\n", err)
				case !ok:
					fmt.Println("  API key: NOT SET (run 'slopwatch key set')")
				case credstore.ValidateKey(key) != nil:
					fmt.Printf("  API key: %s (INVALID FORMAT)\n", credstore.Mask(key))
				default:
					fmt.Printf("  API key: %s (OK)\n", credstore.Mask(key))
				}
			}

			fmt.Println("\n=== Browser ===")
			src, err := feed.CheckBrowser(feed.BrowserOptions{
				DebuggerURL: cfg.Browser.DebuggerURL,
				Bin:         cfg.Browser.Bin,
				ProfileDir:  cfg.Browser.ProfileDir,
				Headless:    cfg.Browser.Headless,
			})
			if err != nil {
				fmt.Printf("  Status: %v\n", err)
			} else {
				fmt.Printf("  Using: %s (OK)\n", src)
			}
			fmt.Printf("  Profile: %s\n", cfg.Browser.ProfileDir)

			fmt.Println("\n=== Logging ===")
			fmt.Printf("  Level: %s\n", cfg.LogLevel)
			fmt.Printf("  File:  %s (dashboard mode)\n", cfg.LogFile)
			if cfg.MetricsAddr != "" {
				fmt.Printf("  Metrics: http://%s/metrics\n", cfg.MetricsAddr)
			}
			return nil
		},
	}
}

func checkFile(name, path string) {
	if info, err := os.Stat(path); err != nil {
		fmt.Printf("  %s: %s (NOT FOUND, using defaults)\n", name, path)
	} else if info.IsDir() {
		fmt.Printf("  %s: %s (IS A DIRECTORY)\n", name, path)
	} else {
		fmt.Printf("  %s: %s (OK)\n", name, path)
	}
}
