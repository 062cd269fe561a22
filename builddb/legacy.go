package builddb

import (
	"bufio"
	"os"
	"regexp"
	"strconv"
	"strings"

	bolt "go.etcd.io/bbolt"
)

// Older forge releases kept the CRC index as a flat text file at
// <BuildBase>/crc_index, one "group/name:crc32_hex" row per target.
// ImportLegacyIndex folds such a file into the crc_index bucket so the
// first build after an upgrade doesn't rebuild the world.

// legacyKey is the target-ID scheme ("group/name") rows must carry to
// be importable; anything else in the file is noise from hand edits or
// corruption and is skipped, not imported.
var legacyKey = regexp.MustCompile(`^[A-Za-z0-9_.+-]+/[A-Za-z0-9_.+-]+$`)

// LegacyImportStats summarizes one legacy-index import.
type LegacyImportStats struct {
	Scanned  int // data rows seen (comments and blanks excluded)
	Imported int // rows written to the crc_index bucket
	Skipped  int // rows rejected by key or CRC validation
}

// ImportLegacyIndex reads the legacy flat index at path and writes every
// valid row into the crc_index bucket in a single transaction, so a
// crash mid-import leaves the database unchanged rather than
// half-migrated. Rows whose key doesn't match the target-ID scheme or
// whose value isn't a 32-bit hex CRC are reported through warn and
// counted in Skipped.
//
// The caller owns the file's afterlife (backup or removal); a second
// import of the same file is harmless.
func (db *DB) ImportLegacyIndex(path string, warn func(format string, args ...any)) (LegacyImportStats, error) {
	if warn == nil {
		warn = func(string, ...any) {}
	}

	var stats LegacyImportStats

	f, err := os.Open(path)
	if err != nil {
		return stats, &DatabaseError{Op: "open legacy index", Err: err}
	}
	defer f.Close()

	type row struct {
		targetID string
		crc      uint32
	}
	var rows []row

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		stats.Scanned++

		key, value, found := strings.Cut(line, ":")
		if !found || !legacyKey.MatchString(key) {
			warn("legacy index: skipping row with malformed target ID: %s", line)
			stats.Skipped++
			continue
		}

		crc, err := strconv.ParseUint(value, 16, 32)
		if err != nil {
			warn("legacy index: skipping %s: bad CRC %q", key, value)
			stats.Skipped++
			continue
		}

		rows = append(rows, row{targetID: key, crc: uint32(crc)})
	}
	if err := scanner.Err(); err != nil {
		return stats, &DatabaseError{Op: "read legacy index", Err: err}
	}

	err = db.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(BucketCRCIndex))
		if bucket == nil {
			return &DatabaseError{Op: "get bucket", Bucket: BucketCRCIndex, Err: ErrBucketNotFound}
		}
		for _, r := range rows {
			value := []byte{byte(r.crc), byte(r.crc >> 8), byte(r.crc >> 16), byte(r.crc >> 24)}
			if err := bucket.Put([]byte(r.targetID), value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return stats, &DatabaseError{Op: "import legacy index", Err: err}
	}

	stats.Imported = len(rows)
	return stats, nil
}
