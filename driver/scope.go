package driver

// Scope is an immutable predicate object describing what a build
// invocation affects.
type Scope interface {
	Affects(t *Target) bool
	AffectsFile(t *Target, file string) bool
	IsForced(t *Target) bool
	IsRebuild() bool
}

// FullScope affects every target passed to it. Used for whole-project
// rebuilds and as the default scope for a plain invocation.
type FullScope struct {
	Rebuild bool
	forced  map[string]bool
}

// NewFullScope returns a Scope that affects every target.
func NewFullScope(rebuild bool) *FullScope {
	return &FullScope{Rebuild: rebuild, forced: map[string]bool{}}
}

// Force marks a target as forced (full recompile regardless of dirtiness).
func (s *FullScope) Force(t *Target) { s.forced[t.ID] = true }

func (s *FullScope) Affects(*Target) bool             { return true }
func (s *FullScope) AffectsFile(*Target, string) bool { return true }
func (s *FullScope) IsForced(t *Target) bool          { return s.forced[t.ID] }
func (s *FullScope) IsRebuild() bool                  { return s.Rebuild }

// DeltaScope affects only an explicit set of targets and files, for
// invocations driven by an external change notification (a VFS watcher,
// an IDE "compile this file" action). Everything not listed is unaffected.
type DeltaScope struct {
	targets map[string]bool
	files   map[string]map[string]bool
	forced  map[string]bool
}

// NewDeltaScope returns an empty DeltaScope.
func NewDeltaScope() *DeltaScope {
	return &DeltaScope{
		targets: map[string]bool{},
		files:   map[string]map[string]bool{},
		forced:  map[string]bool{},
	}
}

// AddTarget marks a target as affected, with no specific file.
func (s *DeltaScope) AddTarget(t *Target) { s.targets[t.ID] = true }

// AddFile marks a specific source file of a target as affected.
func (s *DeltaScope) AddFile(t *Target, file string) {
	s.targets[t.ID] = true
	m, ok := s.files[t.ID]
	if !ok {
		m = map[string]bool{}
		s.files[t.ID] = m
	}
	m[file] = true
}

// Force marks a target as forced.
func (s *DeltaScope) Force(t *Target) {
	s.targets[t.ID] = true
	s.forced[t.ID] = true
}

func (s *DeltaScope) Affects(t *Target) bool { return s.targets[t.ID] }

func (s *DeltaScope) AffectsFile(t *Target, file string) bool {
	if !s.targets[t.ID] {
		return false
	}
	m, ok := s.files[t.ID]
	if !ok || len(m) == 0 {
		// Target affected with no specific file list means every file of it.
		return true
	}
	return m[file]
}

func (s *DeltaScope) IsForced(t *Target) bool { return s.forced[t.ID] }
func (s *DeltaScope) IsRebuild() bool         { return false }
