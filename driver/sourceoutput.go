package driver

import "sync"

// SourceToOutputMap is the persistent many-to-many association between
// source paths and the output paths they produce.
type SourceToOutputMap interface {
	Sources() []string
	Outputs(srcPath string) []string
	SetOutputs(srcPath string, outputs []string)
}

// InMemorySourceToOutputMap is a concurrency-safe SourceToOutputMap. A
// durable implementation (builddb.Store) persists the same shape to bbolt.
type InMemorySourceToOutputMap struct {
	mu   sync.RWMutex
	data map[string][]string
}

func NewInMemorySourceToOutputMap() *InMemorySourceToOutputMap {
	return &InMemorySourceToOutputMap{data: map[string][]string{}}
}

func (m *InMemorySourceToOutputMap) Sources() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.data))
	for s := range m.data {
		out = append(out, s)
	}
	return out
}

func (m *InMemorySourceToOutputMap) Outputs(srcPath string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.data[srcPath]...)
}

func (m *InMemorySourceToOutputMap) SetOutputs(srcPath string, outputs []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(outputs) == 0 {
		delete(m.data, srcPath)
		return
	}
	m.data[srcPath] = append([]string(nil), outputs...)
}

// OutputToSourceRegistry answers "is this output safe to delete" by
// checking whether any other currently-tracked source still claims it.
type OutputToSourceRegistry interface {
	SafeToDeleteOutputs(outputs []string, source string) []string
}

// invertedOutputRegistry is the standard OutputToSourceRegistry
// implementation, built from a SourceToOutputMap's inverse index.
type invertedOutputRegistry struct {
	m SourceToOutputMap
}

// NewOutputToSourceRegistry builds an OutputToSourceRegistry over m.
func NewOutputToSourceRegistry(m SourceToOutputMap) OutputToSourceRegistry {
	return &invertedOutputRegistry{m: m}
}

func (r *invertedOutputRegistry) SafeToDeleteOutputs(outputs []string, source string) []string {
	// Build the inverse index lazily: output path -> claiming sources.
	claimants := map[string][]string{}
	for _, src := range r.m.Sources() {
		for _, out := range r.m.Outputs(src) {
			claimants[out] = append(claimants[out], src)
		}
	}

	safe := make([]string, 0, len(outputs))
	for _, out := range outputs {
		ownedByOther := false
		for _, src := range claimants[out] {
			if src != source {
				ownedByOther = true
				break
			}
		}
		if !ownedByOther {
			safe = append(safe, out)
		}
	}
	return safe
}

// OneToManyPathsMapping tracks the source-to-form binding (e.g. a source
// file and the auxiliary "form" files bound to it) a module-based target's
// builders may use to decide which forms need re-marking dirty when their
// bound source is deleted.
type OneToManyPathsMapping interface {
	GetState(source string) []string
	Remove(source string)
}

// InMemoryOneToManyPathsMapping is a concurrency-safe OneToManyPathsMapping.
type InMemoryOneToManyPathsMapping struct {
	mu   sync.Mutex
	data map[string][]string
}

func NewInMemoryOneToManyPathsMapping() *InMemoryOneToManyPathsMapping {
	return &InMemoryOneToManyPathsMapping{data: map[string][]string{}}
}

func (m *InMemoryOneToManyPathsMapping) GetState(source string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.data[source]...)
}

func (m *InMemoryOneToManyPathsMapping) Set(source string, forms []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[source] = append([]string(nil), forms...)
}

func (m *InMemoryOneToManyPathsMapping) Remove(source string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, source)
}

// ClearedOutputRegistry records, per target, whether an output-clear
// operation has completed this invocation — so later deletion steps can
// skip redundant work. Guarded by a single coarse lock.
type ClearedOutputRegistry struct {
	mu      sync.Mutex
	cleared map[string]bool
}

func NewClearedOutputRegistry() *ClearedOutputRegistry {
	return &ClearedOutputRegistry{cleared: map[string]bool{}}
}

func (r *ClearedOutputRegistry) MarkCleared(t *Target) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleared[t.ID] = true
}

func (r *ClearedOutputRegistry) IsCleared(t *Target) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cleared[t.ID]
}

// RemovedSourcesRegistry is invocation-wide user data merging the per-chunk
// removed-sources map, guarded by a coarse lock.
type RemovedSourcesRegistry struct {
	mu      sync.Mutex
	removed map[string]map[string]bool // target -> source -> true
}

func NewRemovedSourcesRegistry() *RemovedSourcesRegistry {
	return &RemovedSourcesRegistry{removed: map[string]map[string]bool{}}
}

func (r *RemovedSourcesRegistry) Merge(t *Target, sources []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.removed[t.ID]
	if !ok {
		set = map[string]bool{}
		r.removed[t.ID] = set
	}
	for _, s := range sources {
		set[s] = true
	}
}

func (r *RemovedSourcesRegistry) For(t *Target) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.removed[t.ID]
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	return out
}

var GlobalClearedOutputsKey = NewGlobalKey[*ClearedOutputRegistry]("cleared-outputs")
var GlobalRemovedSourcesKey = NewGlobalKey[*RemovedSourcesRegistry]("removed-sources")
