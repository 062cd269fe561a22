package service

import (
	"strings"
	"sync"
	"time"

	"forge/builddb"
	"forge/driver"
)

// runTargetTracker turns the Message Bus's lifecycle and diagnostic
// traffic into per-target RunTargetRecords: a target's start is stamped
// when its chunk enters the pipeline, any ERROR diagnostic attributed
// to it marks the outcome failed, and the record is written when the
// chunk finishes. Writes are best-effort — run history never fails a
// build.
type runTargetTracker struct {
	db    *builddb.DB
	runID string
	warn  func(format string, args ...any)

	mu      sync.Mutex
	started map[string]time.Time
	failure map[string]string // target name -> last ERROR text
}

func newRunTargetTracker(db *builddb.DB, runID string, warn func(format string, args ...any)) *runTargetTracker {
	return &runTargetTracker{
		db:      db,
		runID:   runID,
		warn:    warn,
		started: make(map[string]time.Time),
		failure: make(map[string]string),
	}
}

// Handle is the tracker's bus subscription. Bus handlers run on the
// emitting goroutine, so chunk workers may call this concurrently.
func (rt *runTargetTracker) Handle(m driver.Message) {
	switch msg := m.(type) {
	case driver.CompilerMessage:
		if msg.Kind != driver.Error || msg.Source == "" {
			return
		}
		rt.mu.Lock()
		rt.failure[msg.Source] = msg.Text
		rt.mu.Unlock()

	case driver.BuildingTargetProgressMessage:
		switch msg.Stage {
		case driver.TargetStarted:
			now := time.Now()
			rt.mu.Lock()
			for _, t := range msg.Targets {
				rt.started[t.Name] = now
			}
			rt.mu.Unlock()

		case driver.TargetFinished:
			now := time.Now()
			for _, t := range msg.Targets {
				rt.finish(t, now)
			}
		}
	}
}

// finish writes one target's record, consuming its tracked state.
func (rt *runTargetTracker) finish(t *driver.Target, end time.Time) {
	rt.mu.Lock()
	start, sawStart := rt.started[t.Name]
	errText, failed := rt.failure[t.Name]
	delete(rt.started, t.Name)
	delete(rt.failure, t.Name)
	rt.mu.Unlock()

	if !sawStart {
		start = end
	}

	rec := &builddb.RunTargetRecord{
		TargetID:  t.ID,
		Status:    builddb.RunStatusSuccess,
		StartTime: start,
		EndTime:   end,
	}
	if failed {
		rec.Status = builddb.RunStatusFailed
		rec.LastPhase = phaseFromError(errText)
	}

	if err := rt.db.PutRunTarget(rt.runID, rec); err != nil {
		rt.warn("Failed to record run target %s: %v", t.ID, err)
	}
}

// phaseFromError extracts the phase name from the builder error texts
// that carry one ("phase build exited 2", "phase fetch failed to
// execute: ..."). Returns "" for anything else.
func phaseFromError(text string) string {
	fields := strings.Fields(text)
	if len(fields) >= 2 && fields[0] == "phase" {
		return fields[1]
	}
	return ""
}
