package log

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"forge/config"
)

// Log categories written by Logger. Each category is one file under
// cfg.LogsPath; the numeric prefix keeps directory listings in reading
// order.
const (
	categoryResults  = "00_last_results.log"
	categoryBuilt    = "01_built_targets.log"
	categoryFailed   = "02_failed_targets.log"
	categoryIgnored  = "03_ignored_targets.log"
	categorySkipped  = "04_skipped_targets.log"
	categoryAbnormal = "05_abnormal_command_output.log"
	categoryStale    = "06_stale_artifacts.log"
	categoryDebug    = "07_debug.log"
)

// categoryHeaders names the categories that get a banner line. The list
// files (built/failed/ignored/skipped/stale) stay banner-free so their
// line counts are the outcome counts.
var categoryHeaders = map[string]string{
	categoryAbnormal: "Abnormal output",
	categoryDebug:    "Debug log",
}

// Logger manages the per-invocation categorized log files for forge
// builds: one rolling results log plus one list file per outcome
// category. All writes are fsynced so a crashed build leaves usable
// logs behind.
type Logger struct {
	cfg   *config.Config
	files map[string]*os.File
	mu    sync.Mutex
}

// NewLogger creates a Logger writing into cfg.LogsPath, truncating any
// logs left over from the previous invocation.
func NewLogger(cfg *config.Config) (*Logger, error) {
	if err := os.MkdirAll(cfg.LogsPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	l := &Logger{cfg: cfg, files: make(map[string]*os.File)}

	names := []string{
		categoryResults, categoryBuilt, categoryFailed, categoryIgnored,
		categorySkipped, categoryAbnormal, categoryStale, categoryDebug,
	}
	for _, name := range names {
		f, err := os.Create(filepath.Join(cfg.LogsPath, name))
		if err != nil {
			l.Close()
			return nil, err
		}
		l.files[name] = f
	}

	l.writeHeaders()
	return l, nil
}

// Close closes all log files
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, f := range l.files {
		if f != nil {
			f.Close()
		}
	}
	l.files = nil
}

// writeHeaders writes initial headers to log files
func (l *Logger) writeHeaders() {
	timestamp := time.Now().Format(time.RFC3339)

	fmt.Fprintf(l.files[categoryResults], "forge build log - %s\n", timestamp)
	fmt.Fprintf(l.files[categoryResults], "%s\n\n", strings.Repeat("=", 70))

	for name, header := range categoryHeaders {
		fmt.Fprintf(l.files[name], "%s - %s\n\n", header, timestamp)
	}
}

// write appends a line to the given category file and fsyncs it. The
// caller holds l.mu.
func (l *Logger) write(category, line string) {
	f := l.files[category]
	if f == nil {
		return
	}
	f.WriteString(line)
	f.Sync()
}

// result appends a timestamped line to the rolling results log. The
// caller holds l.mu.
func (l *Logger) result(kind, detail string) {
	timestamp := time.Now().Format("15:04:05")
	l.write(categoryResults, fmt.Sprintf("[%s] %s: %s\n", timestamp, kind, detail))
}

// Success logs a successfully built target
func (l *Logger) Success(targetID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.result("SUCCESS", targetID)
	l.write(categoryBuilt, targetID+"\n")
}

// Failed logs a failed target build and the phase it died in
func (l *Logger) Failed(targetID, phase string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.result("FAILED", fmt.Sprintf("%s (phase: %s)", targetID, phase))
	l.write(categoryFailed, fmt.Sprintf("%s (phase: %s)\n", targetID, phase))
}

// Skipped logs an up-to-date target that was not rebuilt
func (l *Logger) Skipped(targetID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.result("SKIPPED", targetID)
	l.write(categorySkipped, targetID+"\n")
}

// Ignored logs a target excluded from the build with the reason
func (l *Logger) Ignored(targetID, reason string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.result("IGNORED", fmt.Sprintf("%s (%s)", targetID, reason))
	l.write(categoryIgnored, fmt.Sprintf("%s: %s\n", targetID, reason))
}

// Abnormal logs unexpected command output from a target's build
func (l *Logger) Abnormal(targetID, output string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("15:04:05")
	l.write(categoryAbnormal, fmt.Sprintf("[%s] ABNORMAL: %s\n%s\n\n", timestamp, targetID, output))
}

// Stale logs an artifact whose producing source no longer exists
func (l *Logger) Stale(artifactPath string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.write(categoryStale, artifactPath+"\n")
}

// Debug logs debug information. Implements log.LibraryLogger.
func (l *Logger) Debug(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("15:04:05")
	l.write(categoryDebug, fmt.Sprintf("[%s] %s\n", timestamp, fmt.Sprintf(format, args...)))
}

// Error logs an error message. Implements log.LibraryLogger.
func (l *Logger) Error(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	msg := fmt.Sprintf(format, args...)
	l.result("ERROR", msg)
	timestamp := time.Now().Format("15:04:05")
	l.write(categoryDebug, fmt.Sprintf("[%s] ERROR: %s\n", timestamp, msg))
}

// Info logs an informational message. Implements log.LibraryLogger.
func (l *Logger) Info(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.result("INFO", fmt.Sprintf(format, args...))
}

// Warn logs a warning message. Implements log.LibraryLogger.
func (l *Logger) Warn(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.result("WARN", fmt.Sprintf(format, args...))
}

// WriteSummary writes a summary to the results log
func (l *Logger) WriteSummary(total, success, failed, skipped, ignored int, duration time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f := l.files[categoryResults]
	if f == nil {
		return
	}

	fmt.Fprintf(f, "\n%s\n", strings.Repeat("=", 70))
	fmt.Fprintf(f, "BUILD SUMMARY\n")
	fmt.Fprintf(f, "%s\n", strings.Repeat("=", 70))
	fmt.Fprintf(f, "Total targets:     %d\n", total)
	fmt.Fprintf(f, "Success:           %d\n", success)
	fmt.Fprintf(f, "Failed:            %d\n", failed)
	fmt.Fprintf(f, "Skipped:           %d\n", skipped)
	fmt.Fprintf(f, "Ignored:           %d\n", ignored)
	fmt.Fprintf(f, "Duration:          %s\n", duration)
	fmt.Fprintf(f, "%s\n", strings.Repeat("=", 70))

	f.Sync()
}
