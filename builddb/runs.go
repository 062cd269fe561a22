package builddb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Buckets backing build-run history. A run is one driver invocation; run
// target records are the per-target outcomes observed within it.
const (
	BucketBuildRuns  = "build_runs"
	BucketRunTargets = "run_targets"
)

const (
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusFailed  = "failed"
	RunStatusSkipped = "skipped"
	RunStatusIgnored = "ignored"
)

// RunStats aggregates per-run target outcomes.
type RunStats struct {
	Total   int `json:"total"`
	Success int `json:"success"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
	Ignored int `json:"ignored"`
}

// RunRecord captures metadata for a forge build invocation. LiveSnapshot
// holds the most recent JSON-encoded stats sample written by the stats
// collector while the run is active; monitors read it instead of
// attaching to the running process.
type RunRecord struct {
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	Aborted      bool      `json:"aborted"`
	Stats        RunStats  `json:"stats"`
	LiveSnapshot string    `json:"live_snapshot,omitempty"`
}

// RunTargetRecord represents a target build that ran within a build
// run: one row per target per run, written as each target leaves the
// build pipeline. LastPhase names the phase a failed build died in,
// when the failure reported one.
type RunTargetRecord struct {
	TargetID  string    `json:"target"`
	Version   string    `json:"version"`
	Status    string    `json:"status"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
	LastPhase string    `json:"last_phase,omitempty"`
}

// StartRun writes a new run entry with the provided run ID and start time.
func (db *DB) StartRun(runID string, startTime time.Time) error {
	if runID == "" {
		return &ValidationError{Field: "runID", Err: ErrEmptyUUID}
	}

	rec := RunRecord{StartTime: startTime, Stats: RunStats{}}
	return db.saveRunRecord(runID, &rec)
}

// FinishRun updates an existing run with stats, end time, and abortion flag.
func (db *DB) FinishRun(runID string, stats RunStats, endTime time.Time, aborted bool) error {
	if runID == "" {
		return &ValidationError{Field: "runID", Err: ErrEmptyUUID}
	}

	return db.updateRunRecord(runID, func(rec *RunRecord) {
		rec.EndTime = endTime
		rec.Aborted = aborted
		rec.Stats = stats
	})
}

// UpdateRunSnapshot replaces the run's live stats snapshot. Called at the
// stats collector's sampling rate while a build is active; best-effort
// from the caller's point of view.
func (db *DB) UpdateRunSnapshot(runID string, snapshot string) error {
	if runID == "" {
		return &ValidationError{Field: "runID", Err: ErrEmptyUUID}
	}

	return db.updateRunRecord(runID, func(rec *RunRecord) {
		rec.LiveSnapshot = snapshot
	})
}

// GetRun fetches a run record by its ID.
func (db *DB) GetRun(runID string) (*RunRecord, error) {
	if runID == "" {
		return nil, &ValidationError{Field: "runID", Err: ErrEmptyUUID}
	}

	var rec RunRecord
	err := db.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(BucketBuildRuns))
		if bucket == nil {
			return &DatabaseError{Op: "get bucket", Bucket: BucketBuildRuns, Err: ErrBucketNotFound}
		}

		data := bucket.Get([]byte(runID))
		if data == nil {
			return &RecordError{Op: "get run", UUID: runID, Err: ErrRecordNotFound}
		}

		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListRuns returns every recorded build run keyed by run ID.
func (db *DB) ListRuns() (map[string]*RunRecord, error) {
	runs := map[string]*RunRecord{}

	err := db.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(BucketBuildRuns))
		if bucket == nil {
			return &DatabaseError{Op: "get bucket", Bucket: BucketBuildRuns, Err: ErrBucketNotFound}
		}

		return bucket.ForEach(func(k, v []byte) error {
			var rec RunRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			runs[string(k)] = &rec
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return runs, nil
}

// ActiveRun returns the first run that has no end time (if any).
func (db *DB) ActiveRun() (string, *RunRecord, error) {
	var runID string
	var rec *RunRecord

	err := db.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(BucketBuildRuns))
		if bucket == nil {
			return &DatabaseError{Op: "get bucket", Bucket: BucketBuildRuns, Err: ErrBucketNotFound}
		}

		c := bucket.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var r RunRecord
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			if r.EndTime.IsZero() {
				runID = string(k)
				rec = &r
				break
			}
		}
		return nil
	})

	if err != nil {
		return "", nil, err
	}
	if rec == nil {
		return "", nil, nil
	}
	return runID, rec, nil
}

// ActiveRunSnapshot returns the active run's ID and its live stats
// snapshot. The snapshot is empty until the collector's first sample
// lands. Returns ("", "", nil) when no run is active.
func (db *DB) ActiveRunSnapshot() (string, string, error) {
	runID, rec, err := db.ActiveRun()
	if err != nil || rec == nil {
		return "", "", err
	}
	return runID, rec.LiveSnapshot, nil
}

// PutRunTarget writes or updates a target record for the given run.
func (db *DB) PutRunTarget(runID string, rt *RunTargetRecord) error {
	if runID == "" {
		return &ValidationError{Field: "runID", Err: ErrEmptyUUID}
	}
	if rt == nil {
		return fmt.Errorf("run target record is nil")
	}

	key := runTargetKey(runID, rt.TargetID, rt.Version)
	data, err := json.Marshal(rt)
	if err != nil {
		return &RecordError{Op: "marshal run target", UUID: runID, Err: err}
	}

	return db.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(BucketRunTargets))
		if bucket == nil {
			return &DatabaseError{Op: "get bucket", Bucket: BucketRunTargets, Err: ErrBucketNotFound}
		}
		return bucket.Put(key, data)
	})
}

// ListRunTargets returns all target records for the given run.
func (db *DB) ListRunTargets(runID string) ([]RunTargetRecord, error) {
	if runID == "" {
		return nil, &ValidationError{Field: "runID", Err: ErrEmptyUUID}
	}

	prefix := runTargetPrefix(runID)
	var records []RunTargetRecord

	err := db.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(BucketRunTargets))
		if bucket == nil {
			return &DatabaseError{Op: "get bucket", Bucket: BucketRunTargets, Err: ErrBucketNotFound}
		}

		c := bucket.Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			var rec RunTargetRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			records = append(records, rec)
		}
		return nil
	})

	if err != nil {
		return nil, err
	}

	return records, nil
}

func runTargetKey(runID, targetID, version string) []byte {
	key := fmt.Sprintf("%s@%s", targetID, version)
	return append(runTargetPrefix(runID), []byte(key)...)
}

func runTargetPrefix(runID string) []byte {
	return []byte(runID + "\x00")
}

func (db *DB) saveRunRecord(runID string, rec *RunRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return &RecordError{Op: "marshal run", UUID: runID, Err: err}
	}

	return db.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(BucketBuildRuns))
		if bucket == nil {
			return &DatabaseError{Op: "get bucket", Bucket: BucketBuildRuns, Err: ErrBucketNotFound}
		}
		return bucket.Put([]byte(runID), data)
	})
}

func (db *DB) updateRunRecord(runID string, mutate func(*RunRecord)) error {
	return db.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(BucketBuildRuns))
		if bucket == nil {
			return &DatabaseError{Op: "get bucket", Bucket: BucketBuildRuns, Err: ErrBucketNotFound}
		}

		data := bucket.Get([]byte(runID))
		if data == nil {
			return &RecordError{Op: "update run", UUID: runID, Err: ErrRecordNotFound}
		}

		var rec RunRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return &RecordError{Op: "unmarshal run", UUID: runID, Err: err}
		}

		mutate(&rec)

		updated, err := json.Marshal(&rec)
		if err != nil {
			return &RecordError{Op: "marshal run", UUID: runID, Err: err}
		}

		return bucket.Put([]byte(runID), updated)
	})
}
