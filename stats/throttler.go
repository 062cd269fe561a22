package stats

import "runtime"

// Throttling thresholds. The load cap interpolates between loadLow and
// loadHigh multiples of ncpus; the swap cap between swapLow and swapHigh
// percent usage. Past the high mark either cap pins the pool at
// hardCapShare of the configured maximum.
const (
	loadLow      = 1.5
	loadHigh     = 5.0
	swapLow      = 10
	swapHigh     = 40
	hardCapShare = 0.25
)

// WorkerThrottler derives a dynamic worker limit from system health:
// a load-based cap and a swap-based cap, with the more restrictive of
// the two winning. Throttling keeps I/O-heavy builds from driving the
// host into swap-thrash while builds are in flight.
type WorkerThrottler struct {
	maxWorkers int
	ncpus      int
	disabled   bool // always report maxWorkers when set
}

// NewWorkerThrottler creates a throttler for a pool of maxWorkers.
// ncpus comes from runtime.NumCPU(). A disabled throttler reports
// maxWorkers unconditionally.
func NewWorkerThrottler(maxWorkers int, disabled bool) *WorkerThrottler {
	return &WorkerThrottler{
		maxWorkers: maxWorkers,
		ncpus:      runtime.NumCPU(),
		disabled:   disabled,
	}
}

// CalculateDynMax computes the dynamic worker limit for the given
// metrics, between 1 and maxWorkers.
//
// Both metrics reading zero means the platform samplers aren't
// reporting; the throttler then auto-disables rather than throttling on
// missing data.
func (wt *WorkerThrottler) CalculateDynMax(load float64, swapPct int) int {
	if wt.disabled {
		return wt.maxWorkers
	}

	if load == 0.0 && swapPct == 0 {
		return wt.maxWorkers
	}

	dynMax := wt.loadCap(load)
	if swapCap := wt.swapCap(swapPct); swapCap < dynMax {
		dynMax = swapCap
	}

	if dynMax < 1 {
		dynMax = 1
	}
	return dynMax
}

// loadCap interpolates the worker limit over the load range: full pool
// below loadLow x ncpus, hardCapShare of it at loadHigh x ncpus and
// beyond.
func (wt *WorkerThrottler) loadCap(load float64) int {
	lo := loadLow * float64(wt.ncpus)
	hi := loadHigh * float64(wt.ncpus)

	switch {
	case load < lo:
		return wt.maxWorkers
	case load >= hi:
		return int(float64(wt.maxWorkers) * hardCapShare)
	}

	ratio := (load - lo) / (hi - lo)
	reduction := int(float64(wt.maxWorkers) * (1 - hardCapShare) * ratio)
	return wt.maxWorkers - reduction
}

// swapCap interpolates the worker limit over the swap-usage range the
// same way loadCap does over load.
func (wt *WorkerThrottler) swapCap(swapPct int) int {
	switch {
	case swapPct < swapLow:
		return wt.maxWorkers
	case swapPct >= swapHigh:
		return int(float64(wt.maxWorkers) * hardCapShare)
	}

	ratio := float64(swapPct-swapLow) / float64(swapHigh-swapLow)
	reduction := int(float64(wt.maxWorkers) * (1 - hardCapShare) * ratio)
	return wt.maxWorkers - reduction
}
