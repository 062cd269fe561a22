package log

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"forge/config"
)

// categoryAliases maps the short names accepted on the command line to
// the category files Logger writes.
var categoryAliases = map[string]string{
	"00": categoryResults, "results": categoryResults,
	"01": categoryBuilt, "built": categoryBuilt, "success": categoryBuilt,
	"02": categoryFailed, "failure": categoryFailed, "failed": categoryFailed,
	"03": categoryIgnored, "ignored": categoryIgnored,
	"04": categorySkipped, "skipped": categorySkipped,
	"05": categoryAbnormal, "abnormal": categoryAbnormal,
	"06": categoryStale, "stale": categoryStale,
	"07": categoryDebug, "debug": categoryDebug,
}

// ResolveLogName maps a category alias ("02", "failed") to its file
// name, passing through anything that isn't an alias.
func ResolveLogName(name string) string {
	if resolved, ok := categoryAliases[strings.ToLower(name)]; ok {
		return resolved
	}
	return name
}

// ListLogs lists all available log files
func ListLogs(cfg *config.Config) {
	fmt.Println("Available log files:")
	fmt.Println()
	fmt.Println("Summary logs:")
	fmt.Println("  00 or results  - " + categoryResults)
	fmt.Println("  01 or built    - " + categoryBuilt)
	fmt.Println("  02 or failed   - " + categoryFailed)
	fmt.Println("  03 or ignored  - " + categoryIgnored)
	fmt.Println("  04 or skipped  - " + categorySkipped)
	fmt.Println("  05 or abnormal - " + categoryAbnormal)
	fmt.Println("  06 or stale    - " + categoryStale)
	fmt.Println("  07 or debug    - " + categoryDebug)
	fmt.Println()
	fmt.Println("Target transcripts:")
	fmt.Println("  Use group/name to view a target's build transcript")
	fmt.Println()

	entries, err := os.ReadDir(cfg.LogsPath)
	if err != nil {
		return
	}
	var transcripts []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.Contains(name, "___") || !strings.HasSuffix(name, ".log") {
			continue
		}
		id := strings.ReplaceAll(strings.TrimSuffix(name, ".log"), "___", "/")
		transcripts = append(transcripts, id)
	}
	if len(transcripts) > 0 {
		fmt.Println("Recent target transcripts:")
		for _, id := range transcripts {
			fmt.Printf("  %s\n", id)
		}
	}
}

// ViewLog views a category log file by name or alias
func ViewLog(cfg *config.Config, logName string) {
	printFile(filepath.Join(cfg.LogsPath, ResolveLogName(logName)))
}

// ViewTargetLog views a target's build transcript
func ViewTargetLog(cfg *config.Config, targetID string) {
	name := strings.ReplaceAll(targetID, "/", "___") + ".log"
	printFile(filepath.Join(cfg.LogsPath, name))
}

// printFile pages or prints a log file.
func printFile(logPath string) {
	file, err := os.Open(logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening log file: %v\n", err)
		return
	}
	defer file.Close()

	if usePager() {
		viewWithPager(logPath)
		return
	}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		fmt.Println(scanner.Text())
	}
}

// usePager checks if a pager is available
func usePager() bool {
	pager := os.Getenv("PAGER")
	if pager == "" {
		pager = "less"
	}

	// Check if pager exists
	_, err := os.Stat("/usr/bin/" + pager)
	return err == nil
}

// viewWithPager views a file using a pager
func viewWithPager(filepath string) {
	pager := os.Getenv("PAGER")
	if pager == "" {
		pager = "less"
	}

	cmd := exec.Command(pager, filepath)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Run()
}

// TailLog shows the last N lines of a log file
func TailLog(cfg *config.Config, logName string, lines int) {
	logPath := filepath.Join(cfg.LogsPath, ResolveLogName(logName))

	file, err := os.Open(logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening log file: %v\n", err)
		return
	}
	defer file.Close()

	var allLines []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		allLines = append(allLines, scanner.Text())
	}

	start := len(allLines) - lines
	if start < 0 {
		start = 0
	}

	for i := start; i < len(allLines); i++ {
		fmt.Println(allLines[i])
	}
}

// GrepLog searches for a pattern in a log file
func GrepLog(cfg *config.Config, logName, pattern string) {
	logPath := filepath.Join(cfg.LogsPath, ResolveLogName(logName))

	file, err := os.Open(logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening log file: %v\n", err)
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Text()
		if strings.Contains(line, pattern) {
			fmt.Printf("%d: %s\n", lineNum, line)
		}
	}
}

// GetLogSummary returns per-outcome counts from the category list files.
func GetLogSummary(cfg *config.Config) map[string]int {
	summary := make(map[string]int)

	counts := map[string]string{
		"success": categoryBuilt,
		"failed":  categoryFailed,
		"ignored": categoryIgnored,
		"skipped": categorySkipped,
	}
	for key, category := range counts {
		if lines, err := countLines(filepath.Join(cfg.LogsPath, category)); err == nil {
			summary[key] = lines
		}
	}

	return summary
}

// countLines counts the non-comment, non-blank lines in a file.
func countLines(filepath string) (int, error) {
	file, err := os.Open(filepath)
	if err != nil {
		return 0, err
	}
	defer file.Close()

	count := 0
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			count++
		}
	}

	return count, scanner.Err()
}
