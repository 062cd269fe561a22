package stats

import (
	"encoding/json"
	"log"
)

// BuildDBWriter is the StatsConsumer that persists live stats to the
// build database — the canonical storage for live build statistics, so
// `forge monitor` in another process can read them without attaching to
// the builder.
//
// On every OnStatsUpdate (once per collector tick) the writer replaces
// the active run's LiveSnapshot with the JSON-encoded TopInfo.
//
// Database write failures are logged but never interrupt builds; stats
// persistence is best-effort.
type BuildDBWriter struct {
	db    BuildDB
	runID string
}

// BuildDB is the minimal slice of the build database BuildDBWriter
// needs, kept as a local interface so tests can mock it without opening
// a real bbolt file.
type BuildDB interface {
	UpdateRunSnapshot(runID string, snapshot string) error
}

// NewBuildDBWriter creates a stats consumer persisting into the given
// run. The runID must match an active build run in the database.
func NewBuildDBWriter(db BuildDB, runID string) *BuildDBWriter {
	return &BuildDBWriter{
		db:    db,
		runID: runID,
	}
}

// OnStatsUpdate persists the current snapshot. Called by StatsCollector
// once per tick during builds.
func (w *BuildDBWriter) OnStatsUpdate(info TopInfo) {
	data, err := json.Marshal(info)
	if err != nil {
		// Should never happen with a valid TopInfo struct
		log.Printf("Warning: Failed to marshal stats snapshot: %v", err)
		return
	}

	if err := w.db.UpdateRunSnapshot(w.runID, string(data)); err != nil {
		// Non-critical compared to the build itself; keep going
		log.Printf("Warning: Failed to update run snapshot for %s: %v", w.runID, err)
	}
}
