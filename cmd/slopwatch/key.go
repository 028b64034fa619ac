package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Zuo-Peng/slopwatch/internal/config"
	"github.com/Zuo-Peng/slopwatch/internal/credstore"
)

func openStore() (*credstore.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return credstore.Open(cfg.DBPath, zap.NewNop())
}

func keyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Manage the stored OpenAI API key",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set [key]",
		Short: "Validate and store an API key (defaults to $OPENAI_API_KEY)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := os.Getenv("OPENAI_API_KEY")
			if len(args) == 1 {
				key = args[0]
			}
			key = strings.TrimSpace(key)
			if err := credstore.ValidateKey(key); err != nil {
				if errors.Is(err, credstore.ErrEmptyKey) {
					return errors.New("please enter an API key")
				}
				return errors.New("invalid API key format (should start with sk-)")
			}

			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Set(key); err != nil {
				return fmt.Errorf("save key: %w", err)
			}
			fmt.Printf("API key saved: %s\n", credstore.Mask(key))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show the stored API key, masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			key, ok, err := store.Get()
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("No API key stored (run 'slopwatch key set')")
				return nil
			}
			fmt.Println(credstore.Mask(key))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove the stored API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Clear(); err != nil {
				return fmt.Errorf("clear key: %w", err)
			}
			fmt.Println("API key removed")
			return nil
		},
	})

	return cmd
}
