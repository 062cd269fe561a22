package driver

// TargetIndex is the external collaborator providing the target dependency
// graph. A real implementation would be backed by project configuration
// loading (out of scope here); StaticTargetIndex is a concrete in-memory
// adapter sufficient to exercise the driver end to end.
type TargetIndex interface {
	AllTargets() []*Target
	// SortedTargetChunks returns chunks topologically sorted, predecessors
	// first.
	SortedTargetChunks(ctx BuildContext) ([]*Chunk, error)
	Dependencies(t *Target, ctx BuildContext) []*Target
}

// BuildRootIndex resolves per-target source/output roots and clears
// temporary roots created during a build.
type BuildRootIndex interface {
	TargetRoots(t *Target, ctx BuildContext) []SourceRoot
	ClearTempRoots(ctx BuildContext) error
}

// ModuleExcludeIndex answers content/exclusion questions about a path,
// consulted by the Output Cleaner when deciding whether a source root can
// safely overlap an output root.
type ModuleExcludeIndex interface {
	IsInContent(file string) bool
	IsExcluded(file string) bool
}

// StaticTargetIndex is a simple in-memory TargetIndex built from a fixed
// target list, computing chunks via Tarjan SCC (see chunkgraph.go).
type StaticTargetIndex struct {
	Targets []*Target
}

func NewStaticTargetIndex(targets []*Target) *StaticTargetIndex {
	return &StaticTargetIndex{Targets: targets}
}

func (idx *StaticTargetIndex) AllTargets() []*Target { return idx.Targets }

func (idx *StaticTargetIndex) SortedTargetChunks(ctx BuildContext) ([]*Chunk, error) {
	return ChunksFromTargets(idx.Targets)
}

func (idx *StaticTargetIndex) Dependencies(t *Target, ctx BuildContext) []*Target {
	return t.Deps
}

// StaticBuildRootIndex returns each target's configured source roots and
// performs no temp-root bookkeeping.
type StaticBuildRootIndex struct{}

func (StaticBuildRootIndex) TargetRoots(t *Target, ctx BuildContext) []SourceRoot {
	return t.SourceRoots
}

func (StaticBuildRootIndex) ClearTempRoots(ctx BuildContext) error { return nil }

// PermissiveModuleExcludeIndex treats every file as in-content and
// non-excluded; useful as a default when no real exclude configuration is
// available.
type PermissiveModuleExcludeIndex struct {
	ExcludedPaths map[string]bool
}

func (p PermissiveModuleExcludeIndex) IsInContent(file string) bool { return true }

func (p PermissiveModuleExcludeIndex) IsExcluded(file string) bool {
	return p.ExcludedPaths != nil && p.ExcludedPaths[file]
}

// ProjectDescriptor bundles the project-wide collaborators a Context
// carries a reference to: the target graph, the root/exclude indices, the
// dirty-state store, and the builder registry.
type ProjectDescriptor struct {
	Targets    TargetIndex
	Roots      BuildRootIndex
	Excludes   ModuleExcludeIndex
	DirtyState DirtyStateStore
	Builders   *BuilderRegistry
	Data       DataManager
}
