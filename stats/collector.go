package stats

import (
	"context"
	"sync"
	"time"
)

// StatsCollector samples live build statistics at 1 Hz. It keeps a
// 60-second sliding window of completion counts for the rate metric and
// fans each tick's snapshot out to registered consumers (UI, BuildDB
// writer).
//
// Safe for concurrent use by build workers and the sampling goroutine.
type StatsCollector struct {
	mu            sync.RWMutex
	topInfo       TopInfo         // current snapshot
	rateBuckets   [60]int         // ring buffer of 1-second completion buckets
	currentBucket int             // index into rateBuckets (0-59)
	bucketStart   time.Time       // start time of the current bucket
	startTime     time.Time       // build start timestamp
	ticker        *time.Ticker    // 1 Hz sampling ticker
	consumers     []StatsConsumer // notified in registration order
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

// NewStatsCollector creates a StatsCollector and starts its sampling
// loop. The collector runs until Close() is called or ctx is cancelled.
//
// maxWorkers is the configured maximum number of build workers.
func NewStatsCollector(ctx context.Context, maxWorkers int) *StatsCollector {
	collectorCtx, cancel := context.WithCancel(ctx)
	now := time.Now()

	sc := &StatsCollector{
		topInfo: TopInfo{
			MaxWorkers: maxWorkers,
			StartTime:  now,
		},
		bucketStart: now,
		startTime:   now,
		ticker:      time.NewTicker(1 * time.Second),
		ctx:         collectorCtx,
		cancel:      cancel,
	}

	sc.wg.Add(1)
	go sc.sampleLoop()

	return sc
}

// RecordCompletion records one target build outcome, updating the
// current rate bucket and the build totals.
//
// BuildSkipped events do NOT count toward the rate — a skip is not
// build work. BuildSuccess, BuildFailed, and BuildIgnored all count as
// completions.
func (sc *StatsCollector) RecordCompletion(status BuildStatus) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	// Bring the bucket window up to date first
	sc.advanceBucketLocked(time.Now())

	switch status {
	case BuildSuccess:
		sc.topInfo.Built++
	case BuildFailed:
		sc.topInfo.Failed++
	case BuildIgnored:
		sc.topInfo.Ignored++
	case BuildSkipped:
		sc.topInfo.Skipped++
		return
	}

	sc.rateBuckets[sc.currentBucket]++
}

// UpdateWorkerCount updates the active worker count.
func (sc *StatsCollector) UpdateWorkerCount(active int) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.topInfo.ActiveWorkers = active
}

// UpdateQueuedCount updates the total queued target count.
func (sc *StatsCollector) UpdateQueuedCount(queued int) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.topInfo.Queued = queued
}

// GetSnapshot returns a copy of the current TopInfo.
func (sc *StatsCollector) GetSnapshot() TopInfo {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.topInfo
}

// AddConsumer registers a consumer to receive a snapshot on each tick.
func (sc *StatsCollector) AddConsumer(consumer StatsConsumer) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.consumers = append(sc.consumers, consumer)
}

// Close stops the sampling loop and waits for it to exit.
func (sc *StatsCollector) Close() error {
	sc.cancel()
	sc.ticker.Stop()
	sc.wg.Wait()
	return nil
}

// sampleLoop drives the 1 Hz ticks until cancellation.
func (sc *StatsCollector) sampleLoop() {
	defer sc.wg.Done()

	for {
		select {
		case <-sc.ticker.C:
			sc.sample()
		case <-sc.ctx.Done():
			return
		}
	}
}

// sample performs one tick: advance the window, derive the rate and
// impulse metrics, and notify consumers.
func (sc *StatsCollector) sample() {
	now := time.Now()

	sc.mu.Lock()

	sc.advanceBucketLocked(now)

	sc.topInfo.Elapsed = now.Sub(sc.startTime)
	sc.topInfo.Rate = sc.windowRateLocked()

	// Impulse is the completion count of the previous (full) bucket
	prevBucket := (sc.currentBucket + 59) % 60
	sc.topInfo.Impulse = float64(sc.rateBuckets[prevBucket])

	sc.topInfo.Remaining = sc.topInfo.Queued - (sc.topInfo.Built + sc.topInfo.Failed + sc.topInfo.Ignored)

	// Copy out so consumers run without the lock
	snapshot := sc.topInfo
	consumers := sc.consumers

	sc.mu.Unlock()

	for _, consumer := range consumers {
		consumer.OnStatsUpdate(snapshot)
	}
}

// advanceBucketLocked rotates the ring buffer once per elapsed second,
// zeroing each bucket it enters. Must be called with the lock held.
func (sc *StatsCollector) advanceBucketLocked(now time.Time) {
	elapsed := now.Sub(sc.bucketStart)

	for elapsed >= time.Second {
		sc.currentBucket = (sc.currentBucket + 1) % 60
		sc.rateBuckets[sc.currentBucket] = 0
		sc.bucketStart = sc.bucketStart.Add(time.Second)
		elapsed = now.Sub(sc.bucketStart)
	}
}

// windowRateLocked derives targets/hour from the 60-second window.
// Must be called with the lock held.
func (sc *StatsCollector) windowRateLocked() float64 {
	sum := 0
	for _, count := range sc.rateBuckets {
		sum += count
	}

	// completions in the last 60s, scaled to an hour
	return float64(sum * 60)
}
