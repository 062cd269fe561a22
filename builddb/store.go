package builddb

import (
	"encoding/json"

	bolt "go.etcd.io/bbolt"

	"forge/driver"
)

// Additional bbolt buckets backing the driver package's persistent state.
// The build/CRC buckets above exist for CLI-facing build history; these
// exist for the driver's own incremental-build bookkeeping.
const (
	BucketSourceOutput = "driver_source_output"
	BucketSourceForms  = "driver_source_forms"
	BucketDirtyFiles   = "driver_dirty_files"
	BucketDeletedPaths = "driver_deleted_paths"
)

// Store adapts a bbolt-backed DB to the driver package's persistence
// interfaces (DataManager, TimestampStorage, SourceToOutputMap,
// OneToManyPathsMapping, DirtyStateStore), so incremental build state
// survives across CLI invocations the same way build records and CRCs do.
//
// Dirty-file tracking is hybrid: an in-memory layer (embedded) answers
// SourcesToRecompile during a build, hydrated from bbolt at construction
// and persisted on every mutation. Deleted-path tracking reads and writes
// bbolt directly since it is drained once per target per build.
type Store struct {
	*driver.InMemoryDirtyStateStore

	db      *DB
	so      *boltSourceToOutputMap
	inverse driver.OutputToSourceRegistry
	forms   *boltFormsMap
}

// NewStore builds a Store over an already-open DB.
func NewStore(db *DB) *Store {
	so := &boltSourceToOutputMap{db: db.db}
	s := &Store{
		InMemoryDirtyStateStore: driver.NewInMemoryDirtyStateStore(),
		db:                      db,
		so:                      so,
		inverse:                 driver.NewOutputToSourceRegistry(so),
		forms:                   &boltFormsMap{db: db.db},
	}
	s.hydrateDirty()
	return s
}

var (
	_ driver.DataManager      = (*Store)(nil)
	_ driver.TimestampStorage = (*Store)(nil)
	_ driver.DirtyStateStore  = (*Store)(nil)
	_ driver.DirtyStateMarker = (*Store)(nil)
)

// --- DataManager ---

func (s *Store) Flush(final bool) error { return nil }

func (s *Store) SaveVersion() error { return nil }

// Clean wipes all driver-owned buckets, leaving the build-history buckets
// (builds, artifacts, crc_index) untouched.
func (s *Store) Clean() error {
	err := s.db.db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{BucketSourceOutput, BucketSourceForms, BucketDirtyFiles, BucketDeletedPaths} {
			if err := tx.DeleteBucket([]byte(name)); err != nil && err != bolt.ErrBucketNotFound {
				return err
			}
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return s.InMemoryDirtyStateStore.ClearAll()
}

func (s *Store) CloseSourceToOutputStorages(chunks []*driver.Chunk) error { return nil }

func (s *Store) GetSourceToOutputMap(t *driver.Target) driver.SourceToOutputMap { return s.so }

func (s *Store) GetOutputToSourceRegistry() driver.OutputToSourceRegistry { return s.inverse }

func (s *Store) GetSourceToFormMap() driver.OneToManyPathsMapping { return s.forms }

func (s *Store) Timestamps() driver.TimestampStorage { return s }

// --- TimestampStorage ---

// Force fsyncs the underlying bbolt file, standing in for a timestamp
// cache flush: bbolt commits each Update transaction already, so there is
// nothing buffered beyond what the OS itself may still hold back.
func (s *Store) Force() error { return s.db.db.Sync() }

// --- DirtyStateStore overrides (persistence on top of the embedded
// in-memory layer) ---

func (s *Store) MarkDirty(t *driver.Target, root, file string) {
	s.InMemoryDirtyStateStore.MarkDirty(t, root, file)
	s.persistDirty(t)
}

func (s *Store) ClearRecompile(t *driver.Target, root, file string) {
	s.InMemoryDirtyStateStore.ClearRecompile(t, root, file)
	s.persistDirty(t)
}

func (s *Store) ClearContextChunk(ctx driver.BuildContext, c *driver.Chunk) {
	s.InMemoryDirtyStateStore.ClearContextChunk(ctx, c)
	s.db.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(BucketDirtyFiles))
		if err != nil {
			return err
		}
		for _, t := range c.Targets {
			b.Delete([]byte(t.ID))
		}
		return nil
	})
}

func (s *Store) ClearAll() error {
	return s.Clean()
}

// RegisterDeleted and GetAndClearDeletedPaths bypass the embedded
// in-memory layer entirely: deleted paths are drained once per target per
// build, so there is no benefit to an in-memory cache and bbolt is the
// single source of truth.
func (s *Store) RegisterDeleted(t *driver.Target, file string, stamp int64) {
	s.db.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(BucketDeletedPaths))
		if err != nil {
			return err
		}
		var paths []string
		if v := b.Get([]byte(t.ID)); v != nil {
			json.Unmarshal(v, &paths)
		}
		paths = append(paths, file)
		data, err := json.Marshal(paths)
		if err != nil {
			return err
		}
		return b.Put([]byte(t.ID), data)
	})
}

func (s *Store) GetAndClearDeletedPaths(t *driver.Target) []string {
	var paths []string
	s.db.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(BucketDeletedPaths))
		if err != nil {
			return err
		}
		if v := b.Get([]byte(t.ID)); v != nil {
			json.Unmarshal(v, &paths)
		}
		return b.Delete([]byte(t.ID))
	})
	return paths
}

// MarkAllDirty satisfies driver.DirtyStateMarker for CHUNK_REBUILD_REQUIRED
// mark every source of every target in the chunk dirty, in both
// the in-memory layer and bbolt.
func (s *Store) MarkAllDirty(c *driver.Chunk, roots driver.BuildRootIndex, ctx driver.BuildContext) {
	s.InMemoryDirtyStateStore.MarkAllDirty(c, roots, ctx)
	for _, t := range c.Targets {
		s.persistDirty(t)
	}
}

func (s *Store) persistDirty(t *driver.Target) {
	snapshot := s.InMemoryDirtyStateStore.SourcesToRecompile(nil, t)
	data, err := json.Marshal(snapshot)
	if err != nil {
		return
	}
	s.db.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(BucketDirtyFiles))
		if err != nil {
			return err
		}
		if len(snapshot) == 0 {
			return b.Delete([]byte(t.ID))
		}
		return b.Put([]byte(t.ID), data)
	})
}

func (s *Store) hydrateDirty() {
	s.db.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(BucketDirtyFiles))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var byRoot map[string][]string
			if err := json.Unmarshal(v, &byRoot); err != nil {
				return nil
			}
			t := &driver.Target{ID: string(k)}
			for root, files := range byRoot {
				for _, f := range files {
					s.InMemoryDirtyStateStore.MarkDirty(t, root, f)
				}
			}
			return nil
		})
	})
}

// boltSourceToOutputMap is the bbolt-backed driver.SourceToOutputMap,
// keyed globally by source path (mirroring InMemorySourceToOutputMap's
// shape: the driver never looks up outputs per-target, only per-source).
type boltSourceToOutputMap struct {
	db *bolt.DB
}

func (m *boltSourceToOutputMap) Sources() []string {
	var out []string
	m.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(BucketSourceOutput))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			out = append(out, string(k))
			return nil
		})
	})
	return out
}

func (m *boltSourceToOutputMap) Outputs(src string) []string {
	var outs []string
	m.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(BucketSourceOutput))
		if b == nil {
			return nil
		}
		v := b.Get([]byte(src))
		if v == nil {
			return nil
		}
		return json.Unmarshal(v, &outs)
	})
	return outs
}

func (m *boltSourceToOutputMap) SetOutputs(src string, outputs []string) {
	m.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(BucketSourceOutput))
		if err != nil {
			return err
		}
		if len(outputs) == 0 {
			return b.Delete([]byte(src))
		}
		data, err := json.Marshal(outputs)
		if err != nil {
			return err
		}
		return b.Put([]byte(src), data)
	})
}

// boltFormsMap is the bbolt-backed driver.OneToManyPathsMapping.
type boltFormsMap struct {
	db *bolt.DB
}

func (m *boltFormsMap) GetState(source string) []string {
	var forms []string
	m.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(BucketSourceForms))
		if b == nil {
			return nil
		}
		v := b.Get([]byte(source))
		if v == nil {
			return nil
		}
		return json.Unmarshal(v, &forms)
	})
	return forms
}

func (m *boltFormsMap) Set(source string, forms []string) {
	m.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(BucketSourceForms))
		if err != nil {
			return err
		}
		if len(forms) == 0 {
			return b.Delete([]byte(source))
		}
		data, err := json.Marshal(forms)
		if err != nil {
			return err
		}
		return b.Put([]byte(source), data)
	})
}

func (m *boltFormsMap) Remove(source string) {
	m.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(BucketSourceForms))
		if err != nil {
			return err
		}
		return b.Delete([]byte(source))
	})
}
