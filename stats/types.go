// Package stats provides real-time build statistics collection and
// monitoring for forge. It tracks worker counts, system load, swap
// usage, build rates, and per-run target completion totals.
//
// The stats system uses a 1 Hz sampling loop to collect metrics and
// notify registered consumers (UI displays, BuildDB writers).
package stats

import (
	"fmt"
	"time"
)

// TopInfo is one snapshot of live build statistics: the unified payload
// shared across all stats consumers (UI, CLI, monitor).
//
// Field types are chosen for cheap concurrent sampling and snapshotting:
// float64 for the rate metrics, a 0-100 int for swap so displays don't
// need to scale it, time.Duration for elapsed.
type TopInfo struct {
	// Worker metrics
	ActiveWorkers int // currently building
	MaxWorkers    int // configured max
	DynMaxWorkers int // dynamic max (throttled by load/swap)

	// System metrics
	Load    float64 // 1-min load average
	SwapPct int     // swap usage percentage (0-100)
	NoSwap  bool    // true if no swap configured

	// Build rate metrics
	Rate    float64 // targets/hour (60s sliding window)
	Impulse float64 // instant completions/sec (last 1s bucket)

	// Timing
	Elapsed   time.Duration // time since build start
	StartTime time.Time     // build start timestamp

	// Build totals
	Queued    int // total targets to build
	Built     int // successfully built
	Failed    int // build failures
	Ignored   int // excluded from the build
	Skipped   int // skipped because a dependency failed
	Meta      int // aggregate-only targets with no build step
	Remaining int // calculated: Queued - (Built + Failed + Ignored)
}

// BuildStatus records a target build outcome for rate calculation and
// totals.
type BuildStatus int

const (
	BuildSuccess BuildStatus = iota // successfully built
	BuildFailed                     // build failed
	BuildIgnored                    // excluded from the build
	BuildSkipped                    // skipped because a dependency failed
)

// String returns the string representation of BuildStatus
func (bs BuildStatus) String() string {
	switch bs {
	case BuildSuccess:
		return "success"
	case BuildFailed:
		return "failed"
	case BuildIgnored:
		return "ignored"
	case BuildSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// StatsConsumer receives OnStatsUpdate() once per sampling tick with a
// fresh TopInfo snapshot.
type StatsConsumer interface {
	OnStatsUpdate(info TopInfo)
}

// FormatDuration formats a duration as HH:MM:SS for display
func FormatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}

// FormatRate formats a build rate (targets/hour) for display
func FormatRate(rate float64) string {
	if rate < 0.1 {
		return "0.0"
	}
	return fmt.Sprintf("%.1f", rate)
}

// ThrottleReason returns a human-readable reason for worker throttling
// based on current system metrics. Returns empty string if not throttled.
func ThrottleReason(info TopInfo) string {
	if info.DynMaxWorkers >= info.MaxWorkers {
		return "" // not throttled
	}

	// These mirror the WorkerThrottler's thresholds loosely; this is a
	// display label, not the throttling decision itself.
	estimatedNCPUs := info.MaxWorkers

	if info.Load > float64(estimatedNCPUs)*2.0 {
		return "high load"
	}

	if info.SwapPct > 10 {
		return "high swap"
	}

	return "system resources"
}
