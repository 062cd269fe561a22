// Package targets discovers the driver.Target graph for a set of
// requested targets: it is the project's TargetIndex source, a
// configuration-loading collaborator that sits outside the driver's
// scope. Discovery is a direct Makefile scan of the project tree —
// enough to build a realistic dependency graph for the driver to
// schedule without requiring a running build tool on the host.
package targets

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"forge/config"
	"forge/driver"
)

// dependsVars are the Makefile variables that name a target's dependency
// origins, in the order a target's Makefile typically declares them.
var dependsVars = []string{
	"DEPENDS",
	"BUILD_DEPENDS",
	"RUN_DEPENDS",
}

// dependsAssignment matches "VAR=value" and "VAR+=value" Makefile lines.
// Continuations are not followed — good enough for the common
// single-line-per-dependency-class style most targets use.
var dependsAssignment = regexp.MustCompile(`^([A-Z_]+)\s*[+?]?=\s*(.*)$`)

// originToken extracts a "group/name" origin from one dependency token,
// tolerating an optional "@variant" suffix and an optional "pattern:"
// prefix carried over from pkg-style dependency lines.
var originToken = regexp.MustCompile(`(?:^|[\s:])([A-Za-z0-9_.+-]+/[A-Za-z0-9_.+-]+)(@[A-Za-z0-9_.+-]+)?(?:\s|$)`)

// variantsAssignment matches a Makefile's VARIANTS declaration. A target
// that declares VARIANTS builds more than one artifact from a single
// source tree (one shared fetch/extract/configure pass feeding several
// package passes) — module-based in this driver's sense, since the
// variants share dirty-file state and must run through the multi-pass
// module-level builders pipeline rather than the single-target path.
var variantsAssignment = regexp.MustCompile(`^VARIANTS\s*[+?]?=\s*(.+)$`)

// Querier abstracts reading a target's declared dependencies so tests
// can supply fixtures instead of a real project tree.
type Querier interface {
	// Dependencies returns the origins ("group/name") this target
	// directly depends on.
	Dependencies(targetID string) ([]string, error)

	// HasVariants reports whether the target declares multiple build
	// variants, making it a module-based target.
	HasVariants(targetID string) (bool, error)
}

// MakefileQuerier reads DEPENDS/BUILD_DEPENDS/RUN_DEPENDS directly out
// of a target's Makefile beneath root.
type MakefileQuerier struct {
	Root string
}

func (q *MakefileQuerier) Dependencies(targetID string) ([]string, error) {
	path := filepath.Join(q.Root, targetID, "Makefile")
	f, err := os.Open(path)
	if err != nil {
		return nil, &TargetNotFoundError{TargetID: targetID, Path: path}
	}
	defer f.Close()

	wanted := map[string]bool{}
	for _, v := range dependsVars {
		wanted[v] = true
	}

	var origins []string
	seen := map[string]bool{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		m := dependsAssignment.FindStringSubmatch(scanner.Text())
		if m == nil || !wanted[m[1]] {
			continue
		}
		for _, field := range strings.Fields(m[2]) {
			for _, tok := range originToken.FindAllStringSubmatch(field, -1) {
				origin := tok[1]
				if !seen[origin] {
					seen[origin] = true
					origins = append(origins, origin)
				}
			}
		}
	}
	return origins, scanner.Err()
}

func (q *MakefileQuerier) HasVariants(targetID string) (bool, error) {
	path := filepath.Join(q.Root, targetID, "Makefile")
	f, err := os.Open(path)
	if err != nil {
		return false, &TargetNotFoundError{TargetID: targetID, Path: path}
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if m := variantsAssignment.FindStringSubmatch(scanner.Text()); m != nil && len(strings.Fields(m[1])) > 0 {
			return true, nil
		}
	}
	return false, scanner.Err()
}

// TargetNotFoundError reports a requested or transitively-depended-on
// target whose Makefile could not be read.
type TargetNotFoundError struct {
	TargetID string
	Path     string
}

func (e *TargetNotFoundError) Error() string {
	return fmt.Sprintf("target %s: Makefile not found at %s", e.TargetID, e.Path)
}

// Discover resolves the full transitive dependency graph reachable from
// the given target list and returns it as a driver.Target slice, ready
// to hand to driver.NewStaticTargetIndex. A target becomes a
// TargetModuleBased target if its Makefile declares VARIANTS (several
// artifacts sharing one source tree), otherwise a plain TargetOther
// target; source root is the target's directory in the project tree,
// output root is its directory under the artifacts repository.
func Discover(ids []string, cfg *config.Config, q Querier) ([]*driver.Target, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("no targets specified")
	}
	if q == nil {
		q = &MakefileQuerier{Root: cfg.TreePath}
	}

	byOrigin := map[string]*driver.Target{}
	var order []string

	var visit func(origin string) error
	visit = func(origin string) error {
		if _, ok := byOrigin[origin]; ok {
			return nil
		}
		variant, err := q.HasVariants(origin)
		if err != nil {
			return err
		}
		t := newTreeTarget(origin, cfg, variant)
		byOrigin[origin] = t
		order = append(order, origin)

		deps, err := q.Dependencies(origin)
		if err != nil {
			return err
		}
		for _, dep := range deps {
			if dep == origin {
				continue // a target never depends on itself; ignore malformed self-edges
			}
			if err := visit(dep); err != nil {
				return err
			}
		}
		return nil
	}

	for _, id := range ids {
		if err := visit(normalizeOrigin(id)); err != nil {
			return nil, err
		}
	}

	result := make([]*driver.Target, 0, len(order))
	for _, origin := range order {
		t := byOrigin[origin]
		deps, err := q.Dependencies(origin)
		if err != nil {
			return nil, err
		}
		for _, dep := range deps {
			if dep == origin {
				continue
			}
			if dt, ok := byOrigin[dep]; ok {
				t.Deps = append(t.Deps, dt)
			}
		}
		result = append(result, t)
	}
	return result, nil
}

func normalizeOrigin(id string) string {
	return strings.Trim(id, "/")
}

func newTreeTarget(origin string, cfg *config.Config, variant bool) *driver.Target {
	kind := driver.TargetOther
	if variant {
		kind = driver.TargetModuleBased
	}
	return &driver.Target{
		ID:   origin,
		Name: origin,
		SourceRoots: []driver.SourceRoot{
			{Path: filepath.Join(cfg.TreePath, origin), InContent: true},
		},
		OutputRoots: []string{filepath.Join(cfg.ArtifactsPath, origin)},
		Kind:        kind,
	}
}
