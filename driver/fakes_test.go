package driver

// fakeTargetBuilder is a configurable TargetBuilder double.
type fakeTargetBuilder struct {
	name      string
	buildFunc func(ctx BuildContext, t *Target) (ExitCode, error)

	buildCalls         int
	startedCalls       int
	finishedCalls      int
	chunkStartedCalls  int
	chunkFinishedCalls int
}

func (b *fakeTargetBuilder) PresentableName() string {
	if b.name != "" {
		return b.name
	}
	return "fake-target-builder"
}

func (b *fakeTargetBuilder) BuildStarted(ctx BuildContext)            { b.startedCalls++ }
func (b *fakeTargetBuilder) BuildFinished(ctx BuildContext)           { b.finishedCalls++ }
func (b *fakeTargetBuilder) ChunkBuildStarted(ctx BuildContext, c *Chunk)  { b.chunkStartedCalls++ }
func (b *fakeTargetBuilder) ChunkBuildFinished(ctx BuildContext, c *Chunk) { b.chunkFinishedCalls++ }

func (b *fakeTargetBuilder) BuildTarget(ctx BuildContext, t *Target) (ExitCode, error) {
	b.buildCalls++
	if b.buildFunc != nil {
		return b.buildFunc(ctx, t)
	}
	return OK, nil
}

var _ TargetBuilder = (*fakeTargetBuilder)(nil)

// fakeModuleBuilder is a configurable ModuleLevelBuilder double.
type fakeModuleBuilder struct {
	name string
	cat  Category

	buildFunc func(ctx BuildContext, c *Chunk, dirty DirtyFilesHolder, out OutputConsumer) (ExitCode, error)
	buildCalls int
}

func (b *fakeModuleBuilder) PresentableName() string {
	if b.name != "" {
		return b.name
	}
	return "fake-module-builder"
}

func (b *fakeModuleBuilder) Category() Category {
	if b.cat.Name != "" {
		return b.cat
	}
	return CategoryTranslator
}

func (b *fakeModuleBuilder) BuildStarted(ctx BuildContext)            {}
func (b *fakeModuleBuilder) BuildFinished(ctx BuildContext)           {}
func (b *fakeModuleBuilder) ChunkBuildStarted(ctx BuildContext, c *Chunk)  {}
func (b *fakeModuleBuilder) ChunkBuildFinished(ctx BuildContext, c *Chunk) {}

func (b *fakeModuleBuilder) Build(ctx BuildContext, c *Chunk, dirty DirtyFilesHolder, out OutputConsumer) (ExitCode, error) {
	b.buildCalls++
	if b.buildFunc != nil {
		return b.buildFunc(ctx, c, dirty, out)
	}
	return OK, nil
}

var _ ModuleLevelBuilder = (*fakeModuleBuilder)(nil)

// fakeTimestamps is a TimestampStorage double that can be told to fail,
// simulating persistent-storage corruption during a chunk finalize flush.
type fakeTimestamps struct {
	forceErr   error
	forceCalls int
	cleanCalls int
}

func (f *fakeTimestamps) Force() error { f.forceCalls++; return f.forceErr }
func (f *fakeTimestamps) Clean() error { f.cleanCalls++; return nil }

// fakeDataManager wraps InMemoryDataManager, swapping in a fakeTimestamps
// and recording Flush calls so tests can assert on the low-memory hook and
// finalize/flush wiring without a real bbolt store.
type fakeDataManager struct {
	*InMemoryDataManager
	ts         *fakeTimestamps
	flushCalls []bool
}

func newFakeDataManager() *fakeDataManager {
	return &fakeDataManager{InMemoryDataManager: NewInMemoryDataManager(), ts: &fakeTimestamps{}}
}

func (f *fakeDataManager) Timestamps() TimestampStorage { return f.ts }

func (f *fakeDataManager) Flush(final bool) error {
	f.flushCalls = append(f.flushCalls, final)
	return nil
}

var _ DataManager = (*fakeDataManager)(nil)

// fakeLowMemoryHook is a driver.LowMemoryHook double recording
// Register/Unregister calls and capturing the flush callback so a test can
// invoke it directly.
type fakeLowMemoryHook struct {
	registerCalls   int
	unregisterCalls int
	flush           func()
}

func (h *fakeLowMemoryHook) Register(flush func()) {
	h.registerCalls++
	h.flush = flush
}

func (h *fakeLowMemoryHook) Unregister() { h.unregisterCalls++ }

var _ LowMemoryHook = (*fakeLowMemoryHook)(nil)

// spyDirtyStateStore wraps InMemoryDirtyStateStore, recording MarkAllDirty
// invocations so a test can assert CHUNK_REBUILD_REQUIRED handling without
// racing the chunk-end ClearContextChunk wipe.
type spyDirtyStateStore struct {
	*InMemoryDirtyStateStore
	markAllDirtyCalls int
}

func newSpyDirtyStateStore() *spyDirtyStateStore {
	return &spyDirtyStateStore{InMemoryDirtyStateStore: NewInMemoryDirtyStateStore()}
}

func (s *spyDirtyStateStore) MarkAllDirty(c *Chunk, roots BuildRootIndex, ctx BuildContext) {
	s.markAllDirtyCalls++
	s.InMemoryDirtyStateStore.MarkAllDirty(c, roots, ctx)
}

var _ DirtyStateMarker = (*spyDirtyStateStore)(nil)

// fakeBeforeAfterTask is a configurable BeforeAfterTask double.
type fakeBeforeAfterTask struct {
	name  string
	err   error
	calls int
}

func (t *fakeBeforeAfterTask) Name() string { return t.name }

func (t *fakeBeforeAfterTask) Run(ctx BuildContext) error {
	t.calls++
	return t.err
}

var _ BeforeAfterTask = (*fakeBeforeAfterTask)(nil)
