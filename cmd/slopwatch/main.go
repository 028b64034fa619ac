package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "slopwatch",
		Short:   "Flag engagement-bait posts in the LinkedIn feed",
		Version: version,
	}

	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(scanCmd())
	rootCmd.AddCommand(keyCmd())
	rootCmd.AddCommand(doctorCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
