package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"forge/builddb"
	"forge/config"
	"forge/stats"

	"github.com/spf13/cobra"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor [--file PATH | export PATH]",
	Short: "Watch an active build in real time",
	RunE: func(cmd *cobra.Command, args []string) error {
		return DoMonitor(config.GetConfig(), args)
	},
}

func init() {
	rootCmd.AddCommand(monitorCmd)
}

// DoMonitor implements the `forge monitor` command for real-time build
// monitoring. It polls the BuildDB for the active run's live snapshot
// and displays it.
//
// Usage:
//
//	forge monitor              # Watch active build from BuildDB (default)
//	forge monitor --file PATH  # Watch a legacy monitor.dat file
//	forge monitor export PATH  # Export current snapshot to file
func DoMonitor(cfg *config.Config, args []string) error {
	// Parse subcommand
	if len(args) > 0 && args[0] == "export" {
		if len(args) < 2 {
			return fmt.Errorf("export requires a file path argument")
		}
		return doMonitorExport(cfg, args[1])
	}

	// Check for --file flag
	if len(args) > 0 && (args[0] == "--file" || args[0] == "-f") {
		if len(args) < 2 {
			return fmt.Errorf("--file requires a path argument")
		}
		return doMonitorFile(args[1])
	}

	// Default: watch BuildDB
	return doMonitorBuildDB(cfg)
}

// openMonitorDB opens the build database the monitor reads from.
func openMonitorDB(cfg *config.Config) (*builddb.DB, error) {
	dbPath := cfg.Database.Path
	if dbPath == "" {
		dbPath = filepath.Join(cfg.BuildBase, "forge.db")
	}
	return builddb.OpenDB(dbPath)
}

// activeSnapshot reads the active run's live snapshot. A run that has
// not produced a sample yet (collector hasn't ticked) is reported from
// its run record instead, so the monitor shows something immediately.
func activeSnapshot(db *builddb.DB) (string, *stats.TopInfo, error) {
	runID, rec, err := db.ActiveRun()
	if err != nil || rec == nil {
		return "", nil, err
	}

	if rec.LiveSnapshot != "" {
		var info stats.TopInfo
		if err := json.Unmarshal([]byte(rec.LiveSnapshot), &info); err == nil {
			return runID, &info, nil
		}
	}

	// No sample yet: synthesize from the run record
	info := &stats.TopInfo{
		Elapsed:   time.Since(rec.StartTime),
		StartTime: rec.StartTime,
		Built:     rec.Stats.Success,
		Failed:    rec.Stats.Failed,
		Ignored:   rec.Stats.Ignored,
		Skipped:   rec.Stats.Skipped,
		Queued:    rec.Stats.Total,
		Remaining: rec.Stats.Total - (rec.Stats.Success + rec.Stats.Failed + rec.Stats.Ignored),
	}
	return runID, info, nil
}

// doMonitorBuildDB polls the active run's snapshot every second and
// displays it.
func doMonitorBuildDB(cfg *config.Config) error {
	db, err := openMonitorDB(cfg)
	if err != nil {
		return fmt.Errorf("failed to open builddb: %w", err)
	}
	defer db.Close()

	fmt.Println("Monitoring active build (press Ctrl+C to exit)...")
	fmt.Println()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	lastRunID := ""
	noActiveBuildCount := 0

	for {
		runID, snapshot, err := activeSnapshot(db)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading active run: %v\n", err)
			time.Sleep(1 * time.Second)
			continue
		}

		// No active build
		if snapshot == nil {
			noActiveBuildCount++
			if noActiveBuildCount == 1 || noActiveBuildCount%5 == 0 {
				fmt.Printf("\r%-100s\r", "") // Clear line
				fmt.Printf("No active build... (checked %d times)\r", noActiveBuildCount)
			}
			lastRunID = ""
			<-ticker.C
			continue
		}

		// Active build found - reset counter
		noActiveBuildCount = 0

		// Print header if new build detected
		if runID != lastRunID {
			fmt.Printf("\n\n")
			fmt.Printf("═══════════════════════════════════════════════════════════════════════\n")
			fmt.Printf(" Build Run: %s\n", runID[:8])
			fmt.Printf("═══════════════════════════════════════════════════════════════════════\n")
			lastRunID = runID
		}

		displaySnapshot(*snapshot)

		<-ticker.C
	}
}

// displaySnapshot formats and prints a TopInfo snapshot to stdout
func displaySnapshot(info stats.TopInfo) {
	fmt.Printf("\r%-100s\r", "") // Clear line

	// Line 1: Workers and system metrics
	fmt.Printf("Workers: %2d/%2d", info.ActiveWorkers, info.MaxWorkers)
	if info.DynMaxWorkers < info.MaxWorkers {
		fmt.Printf("  [DynMax: %2d - THROTTLED]", info.DynMaxWorkers)
	} else {
		fmt.Printf("  [DynMax: %2d]", info.DynMaxWorkers)
	}
	fmt.Printf("  Load: %4.2f  Swap: %2d%%", info.Load, info.SwapPct)
	if info.NoSwap {
		fmt.Printf(" (no swap)")
	}
	fmt.Println()

	// Line 2: Build rate and timing
	fmt.Printf("Elapsed: %s  Rate: %s tgt/hr  Impulse: %.0f\n",
		stats.FormatDuration(info.Elapsed), stats.FormatRate(info.Rate), info.Impulse)

	// Line 3: Build totals
	fmt.Printf("Queued: %d  Built: %d  Failed: %d  Ignored: %d  Skipped: %d  Remaining: %d\n",
		info.Queued, info.Built, info.Failed, info.Ignored, info.Skipped, info.Remaining)

	// Throttle warning
	if info.DynMaxWorkers < info.MaxWorkers {
		reason := stats.ThrottleReason(info)
		fmt.Printf("\n⚠️  Workers throttled due to: %s\n", reason)
	}

	fmt.Println()
}

// doMonitorFile polls a legacy monitor.dat file and displays it
func doMonitorFile(path string) error {
	fmt.Printf("Monitoring file: %s (press Ctrl+C to exit)\n", path)
	fmt.Println()

	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()

	for {
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Printf("\rError reading file: %v%-50s\r", err, "")
			<-ticker.C
			continue
		}

		// Clear screen and display file contents
		fmt.Print("\033[2J\033[H")
		fmt.Printf("═══════════════════════════════════════════════════════════════════════\n")
		fmt.Printf(" Monitor File: %s\n", path)
		fmt.Printf("═══════════════════════════════════════════════════════════════════════\n\n")
		fmt.Print(string(data))
		fmt.Println()

		<-ticker.C
	}
}

// doMonitorExport exports the current active build snapshot to a
// monitor.dat-compatible file.
func doMonitorExport(cfg *config.Config, exportPath string) error {
	db, err := openMonitorDB(cfg)
	if err != nil {
		return fmt.Errorf("failed to open builddb: %w", err)
	}
	defer db.Close()

	runID, info, err := activeSnapshot(db)
	if err != nil {
		return fmt.Errorf("failed to read active run: %w", err)
	}
	if info == nil {
		return fmt.Errorf("no active build to export")
	}

	// Format as monitor.dat
	content := fmt.Sprintf(`Load=%.2f
Swap=%d
Workers=%d/%d
DynMax=%d
Rate=%s
Impulse=%.0f
Elapsed=%d
Queued=%d
Built=%d
Failed=%d
Ignored=%d
Skipped=%d
`,
		info.Load,
		info.SwapPct,
		info.ActiveWorkers, info.MaxWorkers,
		info.DynMaxWorkers,
		stats.FormatRate(info.Rate),
		info.Impulse,
		int(info.Elapsed.Seconds()),
		info.Queued,
		info.Built,
		info.Failed,
		info.Ignored,
		info.Skipped,
	)

	if err := os.WriteFile(exportPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}

	fmt.Printf("Exported snapshot from build %s to %s\n", runID[:8], exportPath)
	return nil
}
