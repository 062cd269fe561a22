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

// TargetLogger captures the full build transcript of one target: phase
// banners, raw command output, and the final outcome. Each target gets
// its own file under cfg.LogsPath, named from the target ID with path
// separators flattened ("app/core" -> "app___core.log").
//
// All methods are safe on a TargetLogger whose file failed to open; they
// silently drop output, so transcript logging never fails a build.
type TargetLogger struct {
	targetID string
	path     string
	file     *os.File
	mu       sync.Mutex
}

// NewTargetLogger opens (truncating) the transcript file for targetID.
// Open failures are swallowed: the returned logger discards writes.
func NewTargetLogger(cfg *config.Config, targetID string) *TargetLogger {
	name := strings.ReplaceAll(targetID, "/", "___") + ".log"
	path := filepath.Join(cfg.LogsPath, name)

	tl := &TargetLogger{targetID: targetID, path: path}
	if f, err := os.Create(path); err == nil {
		tl.file = f
	}
	return tl
}

// LogPath returns the transcript file path, whether or not it opened.
func (tl *TargetLogger) LogPath() string { return tl.path }

// Close flushes and closes the transcript. Safe to call twice.
func (tl *TargetLogger) Close() {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	if tl.file != nil {
		tl.file.Sync()
		tl.file.Close()
		tl.file = nil
	}
}

// Write appends raw command output. Implements io.Writer so the
// transcript can be wired directly as a command's stdout/stderr.
func (tl *TargetLogger) Write(p []byte) (int, error) {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	if tl.file == nil {
		return len(p), nil
	}
	return tl.file.Write(p)
}

// WriteString appends a string of raw output.
func (tl *TargetLogger) WriteString(s string) {
	tl.Write([]byte(s))
}

// WriteHeader writes the opening banner.
func (tl *TargetLogger) WriteHeader() {
	tl.banner(func() {
		fmt.Fprintf(tl.file, "Build Log: %s\n", tl.targetID)
		fmt.Fprintf(tl.file, "Started: %s\n", time.Now().Format(time.RFC3339))
	})
}

// WritePhase writes a banner announcing the next build phase.
func (tl *TargetLogger) WritePhase(phase string) {
	tl.banner(func() {
		fmt.Fprintf(tl.file, "Phase: %s\n", phase)
		fmt.Fprintf(tl.file, "Time: %s\n", time.Now().Format("15:04:05"))
	})
}

// WriteCommand records the command line about to run.
func (tl *TargetLogger) WriteCommand(cmd string) {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	if tl.file == nil {
		return
	}
	fmt.Fprintf(tl.file, "\n$ %s\n", cmd)
	tl.file.Sync()
}

// WriteWarning records a non-fatal problem in the transcript.
func (tl *TargetLogger) WriteWarning(msg string) {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	if tl.file == nil {
		return
	}
	fmt.Fprintf(tl.file, "WARNING: %s\n", msg)
	tl.file.Sync()
}

// WriteError records an error in the transcript.
func (tl *TargetLogger) WriteError(msg string) {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	if tl.file == nil {
		return
	}
	fmt.Fprintf(tl.file, "ERROR: %s\n", msg)
	tl.file.Sync()
}

// WriteSuccess writes the closing banner for a successful build.
func (tl *TargetLogger) WriteSuccess(duration time.Duration) {
	tl.banner(func() {
		fmt.Fprintf(tl.file, "BUILD SUCCESS\n")
		fmt.Fprintf(tl.file, "Completed: %s\n", time.Now().Format(time.RFC3339))
		fmt.Fprintf(tl.file, "Duration: %s\n", duration)
	})
}

// WriteFailure writes the closing banner for a failed build.
func (tl *TargetLogger) WriteFailure(duration time.Duration, reason string) {
	tl.banner(func() {
		fmt.Fprintf(tl.file, "BUILD FAILED\n")
		fmt.Fprintf(tl.file, "Reason: %s\n", reason)
		fmt.Fprintf(tl.file, "Completed: %s\n", time.Now().Format(time.RFC3339))
		fmt.Fprintf(tl.file, "Duration: %s\n", duration)
	})
}

// banner runs body between two separator rules under the lock.
func (tl *TargetLogger) banner(body func()) {
	tl.mu.Lock()
	defer tl.mu.Unlock()

	if tl.file == nil {
		return
	}
	rule := strings.Repeat("=", 70)
	fmt.Fprintf(tl.file, "\n%s\n", rule)
	body()
	fmt.Fprintf(tl.file, "%s\n", rule)
	tl.file.Sync()
}
