package cmd

import (
	"fmt"
	"os"

	"forge/config"
	"forge/service"

	"github.com/spf13/cobra"
)

var initAutoMigrate bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the build environment (directories, database)",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.GetConfig()
		svc, err := service.NewService(cfg)
		if err != nil {
			fmt.Printf("Error creating service: %v\n", err)
			os.Exit(1)
		}
		defer svc.Close()

		result, err := svc.Initialize(service.InitOptions{AutoMigrate: initAutoMigrate})
		if err != nil {
			fmt.Printf("Initialization failed: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Created %d directories\n", len(result.DirsCreated))
		if result.DatabaseInitialized {
			fmt.Println("Build database initialized")
		}
		fmt.Printf("Targets found: %d\n", result.TargetsFound)
		for _, w := range result.Warnings {
			fmt.Printf("Warning: %s\n", w)
		}
		if result.MigrationNeeded && !result.MigrationPerformed {
			fmt.Println("Legacy CRC data detected; run with --migrate to import it")
		}
	},
}

func init() {
	initCmd.Flags().BoolVar(&initAutoMigrate, "migrate", false, "automatically migrate legacy CRC data if found")
	rootCmd.AddCommand(initCmd)
}
