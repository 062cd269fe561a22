package cmd

import (
	"fmt"
	"os"

	"forge/config"
	"forge/service"
	"forge/util"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [targets...]",
	Short: "Show build status for targets, or overall database statistics",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.GetConfig()
		svc, err := service.NewService(cfg)
		if err != nil {
			fmt.Printf("Error creating service: %v\n", err)
			os.Exit(1)
		}
		defer svc.Close()

		result, err := svc.GetStatus(service.StatusOptions{TargetList: args})
		if err != nil {
			fmt.Printf("Error getting status: %v\n", err)
			os.Exit(1)
		}

		if len(result.Targets) == 0 {
			fmt.Printf("Database size: %s\n", util.FormatBytes(result.DatabaseSize))
			if result.Stats != nil {
				fmt.Printf("Builds: %d  Targets: %d\n", result.Stats.TotalBuilds, result.Stats.TotalTargets)
			}
			return
		}

		for _, tgt := range result.Targets {
			status := "up to date"
			if tgt.NeedsBuild {
				status = "needs build"
			}
			fmt.Printf("%-30s %s (crc=%08x)\n", tgt.TargetID, status, tgt.CRC)
		}
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
