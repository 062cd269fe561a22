package builddb

import (
	"os"

	bolt "go.etcd.io/bbolt"
)

// DBStats summarizes the build database for reporting, without requiring
// the caller to know anything about bucket layout.
type DBStats struct {
	TotalBuilds  int
	TotalTargets int
	DatabaseSize int64
	DatabasePath string
}

// Stats computes database-wide counters by walking the builds and
// artifacts buckets in a single read transaction.
func (db *DB) Stats() (*DBStats, error) {
	stats := &DBStats{DatabasePath: db.path}

	err := db.db.View(func(tx *bolt.Tx) error {
		if b := tx.Bucket([]byte(BucketBuilds)); b != nil {
			stats.TotalBuilds = b.Stats().KeyN
		}
		if b := tx.Bucket([]byte(BucketArtifacts)); b != nil {
			stats.TotalTargets = b.Stats().KeyN
		}
		return nil
	})
	if err != nil {
		return nil, &DatabaseError{Op: "stats", Err: err}
	}

	if info, err := os.Stat(db.path); err == nil {
		stats.DatabaseSize = info.Size()
	}

	return stats, nil
}
