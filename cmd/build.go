package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"forge/config"
	"forge/driver"
	"forge/service"
	"forge/uincurses"
	"forge/uiplain"

	"github.com/spf13/cobra"
)

var (
	buildForce bool
	buildUI    string
)

var buildCmd = &cobra.Command{
	Use:   "build [targets...]",
	Short: "Build specified targets",
	Long:  `Build the specified targets and their dependencies`,
	Run:   runBuild,
}

func init() {
	buildCmd.Flags().BoolVarP(&buildForce, "force", "f", false, "force rebuild even if up to date")
	buildCmd.Flags().StringVar(&buildUI, "ui", "plain", "progress display: plain or ncurses")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) {
	if len(args) == 0 {
		fmt.Println("Error: no targets specified")
		os.Exit(1)
	}

	cfg := config.GetConfig()
	svc, err := service.NewService(cfg)
	if err != nil {
		fmt.Printf("Error creating service: %v\n", err)
		os.Exit(1)
	}
	defer svc.Close()

	plan, err := svc.GetBuildPlan(args)
	if err != nil {
		fmt.Printf("Error planning build: %v\n", err)
		os.Exit(1)
	}

	if plan.NeedBuild == 0 && !buildForce {
		fmt.Println("\nAll targets are up to date!")
		return
	}

	fmt.Printf("\nBuild %d of %d targets? [Y/n]: ", plan.NeedBuild, plan.TotalTargets)
	var response string
	fmt.Scanln(&response)
	if response != "" && response != "y" && response != "Y" {
		fmt.Println("Build cancelled")
		return
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		sig := <-sigChan
		fmt.Fprintf(os.Stderr, "\nReceived signal %v, cleaning up...\n", sig)
		if cleanup := svc.GetActiveCleanup(); cleanup != nil {
			cleanup()
		}
		os.Exit(1)
	}()

	bus := driver.NewMessageBus()
	var plain *uiplain.Subscriber
	var dashboard *uincurses.Dashboard
	switch buildUI {
	case "ncurses":
		dashboard = uincurses.NewDashboard(plan.TotalTargets)
		dashboard.SetInterruptHandler(func() {
			if cleanup := svc.GetActiveCleanup(); cleanup != nil {
				cleanup()
			}
			os.Exit(1)
		})
		if err := dashboard.Start(); err != nil {
			fmt.Printf("Error starting dashboard: %v\n", err)
			os.Exit(1)
		}
		dashboard.Subscribe(bus)
	default:
		plain = uiplain.NewSubscriber(plan.TotalTargets)
		plain.Subscribe(bus)
	}

	result, err := svc.Build(service.BuildOptions{TargetList: args, Force: buildForce, Bus: bus})
	if dashboard != nil {
		dashboard.Stop()
	}
	if plain != nil {
		plain.Finish()
	}
	if err != nil {
		fmt.Printf("Build error: %v\n", err)
		os.Exit(1)
	}
	if result.Cleanup != nil {
		defer result.Cleanup()
	}
	svc.ClearActiveCleanup()

	fmt.Printf("\nBuild Statistics:\n")
	fmt.Printf("  Total targets: %d\n", result.Stats.Total)
	fmt.Printf("  Success: %d\n", result.Stats.Success)
	fmt.Printf("  Failed: %d\n", result.Stats.Failed)
	fmt.Printf("  Skipped (up to date): %d\n", result.Stats.Skipped)
	fmt.Printf("  Duration: %s\n\n", result.Stats.Duration)

	if result.Stats.Failed > 0 {
		os.Exit(1)
	}
}
