package cmd

import (
	"fmt"
	"os"

	"forge/config"
	"forge/service"

	"github.com/spf13/cobra"
)

var cleanupForce bool

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove stale worker directories and build artifacts",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.GetConfig()
		svc, err := service.NewService(cfg)
		if err != nil {
			fmt.Printf("Error creating service: %v\n", err)
			os.Exit(1)
		}
		defer svc.Close()

		result, err := svc.Cleanup(service.CleanupOptions{Force: cleanupForce})
		if err != nil {
			fmt.Printf("Cleanup failed: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Cleaned %d worker directories\n", result.WorkersCleaned)
		for _, e := range result.Errors {
			fmt.Printf("Warning: %v\n", e)
		}
	},
}

func init() {
	cleanupCmd.Flags().BoolVarP(&cleanupForce, "force", "f", false, "force cleanup even if worker scratch dirs appear in use")
	rootCmd.AddCommand(cleanupCmd)
}
