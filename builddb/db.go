// Package builddb provides build database functionality using bbolt
// for persistent tracking of build attempts, artifact indexing, and
// CRC-based change detection.
package builddb

import (
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Bucket names for bbolt database
const (
	BucketBuilds    = "builds"
	BucketArtifacts = "artifacts"
	BucketCRCIndex  = "crc_index"
)

// DB wraps a bbolt database for build tracking and CRC indexing
type DB struct {
	db   *bolt.DB
	path string
}

// BuildRecord represents a single build attempt with status and timestamps
type BuildRecord struct {
	UUID      string    `json:"uuid"`
	TargetID  string    `json:"target"`
	Version   string    `json:"version"`
	Status    string    `json:"status"` // "running" | "success" | "failed"
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// OpenDB opens or creates a bbolt database at the given path.
// It automatically initializes the required buckets (builds, artifacts,
// crc_index) if they don't exist. The database is opened with 0600
// permissions.
//
// Example:
//
//	db, err := OpenDB("/var/db/forge/builds.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
func OpenDB(path string) (*DB, error) {
	// Open database with user read/write permissions only (0600)
	bdb, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, &DatabaseError{Op: "open", Err: err}
	}

	// Initialize required buckets in a single write transaction
	err = bdb.Update(func(tx *bolt.Tx) error {
		// Create builds bucket for storing BuildRecord JSON
		if _, err := tx.CreateBucketIfNotExists([]byte(BucketBuilds)); err != nil {
			return &DatabaseError{Op: "create bucket", Bucket: BucketBuilds, Err: err}
		}

		// Create artifacts bucket for tracking latest successful builds
		// Key format: "target@version" -> UUID
		if _, err := tx.CreateBucketIfNotExists([]byte(BucketArtifacts)); err != nil {
			return &DatabaseError{Op: "create bucket", Bucket: BucketArtifacts, Err: err}
		}

		// Create crc_index bucket for fast CRC lookups
		// Key: target ID -> binary uint32 CRC value
		if _, err := tx.CreateBucketIfNotExists([]byte(BucketCRCIndex)); err != nil {
			return &DatabaseError{Op: "create bucket", Bucket: BucketCRCIndex, Err: err}
		}

		// Create run-history buckets
		if _, err := tx.CreateBucketIfNotExists([]byte(BucketBuildRuns)); err != nil {
			return &DatabaseError{Op: "create bucket", Bucket: BucketBuildRuns, Err: err}
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(BucketRunTargets)); err != nil {
			return &DatabaseError{Op: "create bucket", Bucket: BucketRunTargets, Err: err}
		}

		return nil
	})

	if err != nil {
		// Close database if bucket initialization fails
		bdb.Close()
		return nil, err
	}

	return &DB{
		db:   bdb,
		path: path,
	}, nil
}

// Close closes the database connection and flushes any pending writes to
// disk. It is safe to call Close multiple times. After Close is called,
// the DB should not be used.
func (db *DB) Close() error {
	if db.db == nil {
		return nil
	}
	return db.db.Close()
}

// SaveRecord stores a BuildRecord in the database. The record is
// serialized to JSON and stored in the builds bucket with the UUID as
// the key.
//
// Example:
//
//	rec := &BuildRecord{
//	    UUID:      "abc-123",
//	    TargetID:  "app/core",
//	    Version:   "1.4.0",
//	    Status:    "running",
//	    StartTime: time.Now(),
//	}
//	if err := db.SaveRecord(rec); err != nil {
//	    log.Fatal(err)
//	}
func (db *DB) SaveRecord(rec *BuildRecord) error {
	if rec.UUID == "" {
		return &ValidationError{Field: "record.UUID", Err: ErrEmptyUUID}
	}

	// Marshal BuildRecord to JSON
	data, err := json.Marshal(rec)
	if err != nil {
		return &RecordError{Op: "marshal", UUID: rec.UUID, Err: err}
	}

	// Store in builds bucket
	err = db.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(BucketBuilds))
		if bucket == nil {
			return &DatabaseError{Op: "get bucket", Bucket: BucketBuilds, Err: ErrBucketNotFound}
		}
		return bucket.Put([]byte(rec.UUID), data)
	})

	if err != nil {
		return &RecordError{Op: "save", UUID: rec.UUID, Err: err}
	}

	return nil
}

// GetRecord retrieves a BuildRecord from the database by its UUID.
func (db *DB) GetRecord(uuid string) (*BuildRecord, error) {
	if uuid == "" {
		return nil, &ValidationError{Field: "uuid", Err: ErrEmptyUUID}
	}

	var rec BuildRecord

	err := db.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(BucketBuilds))
		if bucket == nil {
			return &DatabaseError{Op: "get bucket", Bucket: BucketBuilds, Err: ErrBucketNotFound}
		}

		data := bucket.Get([]byte(uuid))
		if data == nil {
			return &RecordError{Op: "get", UUID: uuid, Err: ErrRecordNotFound}
		}

		return json.Unmarshal(data, &rec)
	})

	if err != nil {
		return nil, err
	}

	return &rec, nil
}

// UpdateRecordStatus updates the status and end time of an existing
// BuildRecord. This is more efficient than retrieving the full record,
// modifying it, and saving it back, as it does the read-modify-write in
// a single transaction.
func (db *DB) UpdateRecordStatus(uuid, status string, endTime time.Time) error {
	if uuid == "" {
		return &ValidationError{Field: "uuid", Err: ErrEmptyUUID}
	}

	err := db.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(BucketBuilds))
		if bucket == nil {
			return &DatabaseError{Op: "get bucket", Bucket: BucketBuilds, Err: ErrBucketNotFound}
		}

		// Read existing record
		data := bucket.Get([]byte(uuid))
		if data == nil {
			return &RecordError{Op: "update status", UUID: uuid, Err: ErrRecordNotFound}
		}

		// Unmarshal, update, marshal
		var rec BuildRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			return &RecordError{Op: "unmarshal", UUID: uuid, Err: err}
		}

		rec.Status = status
		rec.EndTime = endTime

		updatedData, err := json.Marshal(&rec)
		if err != nil {
			return &RecordError{Op: "marshal", UUID: uuid, Err: err}
		}

		// Save back
		return bucket.Put([]byte(uuid), updatedData)
	})

	if err != nil {
		return &RecordError{Op: "update status", UUID: uuid, Err: err}
	}

	return nil
}

// LatestFor retrieves the most recent successful build record for a given
// target and version combination.
//
// The function looks up the artifact index using the key format
// "target@version" (e.g., "app/core@1.4.0") and returns the full
// BuildRecord for the associated UUID. Returns nil with no error if no
// record exists for this target/version.
func (db *DB) LatestFor(targetID, version string) (*BuildRecord, error) {
	key := []byte(targetID + "@" + version)
	var rec *BuildRecord

	err := db.db.View(func(tx *bolt.Tx) error {
		artifacts := tx.Bucket([]byte(BucketArtifacts))
		if artifacts == nil {
			return &DatabaseError{Op: "get bucket", Bucket: BucketArtifacts, Err: ErrBucketNotFound}
		}

		// Look up UUID in artifacts bucket
		uuidBytes := artifacts.Get(key)
		if uuidBytes == nil {
			// No record found - not an error, just means no builds yet
			return nil
		}

		// Retrieve the full record from builds bucket
		builds := tx.Bucket([]byte(BucketBuilds))
		if builds == nil {
			return &DatabaseError{Op: "get bucket", Bucket: BucketBuilds, Err: ErrBucketNotFound}
		}

		recordBytes := builds.Get(uuidBytes)
		if recordBytes == nil {
			// UUID points to non-existent record - data inconsistency
			return &ArtifactIndexError{
				Op:       "validate",
				TargetID: targetID,
				Version:  version,
				Err:      ErrOrphanedRecord,
			}
		}

		// Unmarshal the build record
		rec = &BuildRecord{}
		if err := json.Unmarshal(recordBytes, rec); err != nil {
			return &RecordError{Op: "unmarshal", UUID: string(uuidBytes), Err: err}
		}

		return nil
	})

	if err != nil {
		return nil, &ArtifactIndexError{Op: "lookup", TargetID: targetID, Version: version, Err: err}
	}

	return rec, nil
}

// UpdateArtifactIndex updates the artifact index to point to the latest
// successful build for a given target and version combination.
//
// This function should be called when a build completes successfully so
// the artifact index tracks the most recent successful build. The key
// format is "target@version".
func (db *DB) UpdateArtifactIndex(targetID, version, uuid string) error {
	key := []byte(targetID + "@" + version)
	value := []byte(uuid)

	err := db.db.Update(func(tx *bolt.Tx) error {
		artifacts := tx.Bucket([]byte(BucketArtifacts))
		if artifacts == nil {
			return &DatabaseError{Op: "get bucket", Bucket: BucketArtifacts, Err: ErrBucketNotFound}
		}

		return artifacts.Put(key, value)
	})

	if err != nil {
		return &ArtifactIndexError{Op: "update", TargetID: targetID, Version: version, Err: err}
	}

	return nil
}

// NeedsBuild determines whether a target needs to be rebuilt based on CRC
// comparison.
//
// The function compares the provided currentCRC against the stored CRC in
// the crc_index bucket. Returns true if the target needs rebuilding (CRC
// changed or no stored CRC exists), and false if the CRC matches.
//
// This is the primary function for coarse incremental build detection -
// call it before starting a build to determine if any of the target's
// source files have changed since the last successful build.
func (db *DB) NeedsBuild(targetID string, currentCRC uint32) (bool, error) {
	storedCRC, exists, err := db.GetCRC(targetID)
	if err != nil {
		return false, &CRCError{Op: "check needs build", TargetID: targetID, Err: err}
	}

	// No stored CRC means this target has never been built
	if !exists {
		return true, nil
	}

	// CRC mismatch means the target's sources have changed
	return storedCRC != currentCRC, nil
}

// UpdateCRC updates the stored CRC checksum for a given target.
//
// This function should be called after a successful build to record the
// target's current source state. The CRC is stored as a 4-byte binary
// value (little-endian uint32) in the crc_index bucket.
func (db *DB) UpdateCRC(targetID string, crc uint32) error {
	key := []byte(targetID)
	value := make([]byte, 4)

	// Store CRC as little-endian binary (4 bytes)
	value[0] = byte(crc)
	value[1] = byte(crc >> 8)
	value[2] = byte(crc >> 16)
	value[3] = byte(crc >> 24)

	err := db.db.Update(func(tx *bolt.Tx) error {
		crcIndex := tx.Bucket([]byte(BucketCRCIndex))
		if crcIndex == nil {
			return &DatabaseError{Op: "get bucket", Bucket: BucketCRCIndex, Err: ErrBucketNotFound}
		}

		return crcIndex.Put(key, value)
	})

	if err != nil {
		return &CRCError{Op: "update", TargetID: targetID, Err: err}
	}

	return nil
}

// GetCRC retrieves the stored CRC checksum for a given target.
//
// The function reads the 4-byte binary CRC value from the crc_index
// bucket and returns it as a uint32. The second return value indicates
// whether a CRC exists for this target (false means the target has never
// been built).
func (db *DB) GetCRC(targetID string) (uint32, bool, error) {
	key := []byte(targetID)
	var crc uint32
	var found bool

	err := db.db.View(func(tx *bolt.Tx) error {
		crcIndex := tx.Bucket([]byte(BucketCRCIndex))
		if crcIndex == nil {
			return &DatabaseError{Op: "get bucket", Bucket: BucketCRCIndex, Err: ErrBucketNotFound}
		}

		value := crcIndex.Get(key)
		if value == nil {
			// No CRC stored for this target
			found = false
			return nil
		}

		// Validate value length
		if len(value) != 4 {
			return &ValidationError{
				Field: "crc",
				Value: fmt.Sprintf("%d bytes", len(value)),
				Err:   ErrCorruptedData,
			}
		}

		// Read little-endian binary CRC (4 bytes)
		crc = uint32(value[0]) | uint32(value[1])<<8 | uint32(value[2])<<16 | uint32(value[3])<<24
		found = true
		return nil
	})

	if err != nil {
		return 0, false, &CRCError{Op: "get", TargetID: targetID, Err: err}
	}

	return crc, found, nil
}

// ComputeTreeCRC calculates a CRC32 checksum of all files under a
// target's source directory.
//
// Unlike metadata-based approaches (which hash file size + mtime), this
// function hashes actual file contents to reliably detect changes
// regardless of modification times. This eliminates false positives from
// operations like git clone, rsync, or tar extraction that reset file
// timestamps.
//
// The function walks the directory and:
//   - Hashes each file's relative path (to detect structure changes like renamed files)
//   - Hashes each file's actual content (to detect content changes)
//   - Skips work directories and version control systems (.git, .svn, CVS)
//   - Uses CRC32-IEEE polynomial for speed and collision resistance
//
// Use this function before calling NeedsBuild() to determine if a
// target's source files have changed since the last successful build.
//
// Example:
//
//	crc, err := builddb.ComputeTreeCRC("/usr/projects/app/core")
//	if err != nil {
//	    return fmt.Errorf("failed to compute CRC: %w", err)
//	}
//	needsBuild, err := db.NeedsBuild("app/core", crc)
func ComputeTreeCRC(dirPath string) (uint32, error) {
	hash := crc32.NewIEEE()

	// Walk the source directory tree
	err := filepath.Walk(dirPath, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		// Skip work directories and version control systems
		base := filepath.Base(path)
		if base == ".git" || base == "work" || base == ".svn" || base == "CVS" {
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		// Only process regular files
		if !info.Mode().IsRegular() {
			return nil
		}

		// Hash relative file path (detects renamed/moved files)
		relPath, err := filepath.Rel(dirPath, path)
		if err != nil {
			return &CRCError{Op: "compute", TargetID: dirPath, Err: err}
		}
		hash.Write([]byte(relPath))
		hash.Write([]byte{0}) // Null separator

		// Hash actual file contents (detects content changes)
		data, err := os.ReadFile(path)
		if err != nil {
			return &CRCError{Op: "compute", TargetID: dirPath, Err: err}
		}
		hash.Write(data)

		return nil
	})

	if err != nil {
		return 0, &CRCError{Op: "compute", TargetID: dirPath, Err: err}
	}

	return hash.Sum32(), nil
}
