// Package cmd implements the forge cobra CLI: build, status, init, cleanup
// and monitor subcommands over the service package.
package cmd

import (
	"fmt"
	"os"

	"forge/config"

	"github.com/spf13/cobra"
)

var (
	cfgDir  string
	profile string
)

var rootCmd = &cobra.Command{
	Use:   "forge",
	Short: "forge is an incremental build driver for project trees",
	Long: `forge discovers a target dependency graph, tracks per-target dirty
state across runs, and builds only what changed.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(cfgDir, profile)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		config.SetConfig(cfg)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgDir, "config-dir", "", "configuration directory")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "default", "configuration profile")
}

// Execute runs the root command, exiting the process on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
