package targets

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"forge/config"
	"forge/driver"
)

// fixtureQuerier serves canned dependency data for Discover tests.
type fixtureQuerier struct {
	deps     map[string][]string
	variants map[string]bool
}

func (q *fixtureQuerier) Dependencies(id string) ([]string, error) {
	if _, ok := q.deps[id]; !ok {
		return nil, &TargetNotFoundError{TargetID: id, Path: id + "/Makefile"}
	}
	return q.deps[id], nil
}

func (q *fixtureQuerier) HasVariants(id string) (bool, error) {
	if _, ok := q.deps[id]; !ok {
		return false, &TargetNotFoundError{TargetID: id, Path: id + "/Makefile"}
	}
	return q.variants[id], nil
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	base := t.TempDir()
	return &config.Config{
		TreePath:      filepath.Join(base, "tree"),
		ArtifactsPath: filepath.Join(base, "artifacts"),
		BuildBase:     base,
	}
}

func TestDiscoverTransitive(t *testing.T) {
	q := &fixtureQuerier{
		deps: map[string][]string{
			"app/core":   {"lib/parser", "lib/codec"},
			"lib/parser": {"lib/codec"},
			"lib/codec":  {},
		},
		variants: map[string]bool{},
	}

	tgts, err := Discover([]string{"app/core"}, testConfig(t), q)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}

	if len(tgts) != 3 {
		t.Fatalf("got %d targets, want 3", len(tgts))
	}

	byID := map[string]*driver.Target{}
	for _, tg := range tgts {
		byID[tg.ID] = tg
	}

	core := byID["app/core"]
	if core == nil {
		t.Fatal("app/core missing from result")
	}
	if len(core.Deps) != 2 {
		t.Errorf("app/core deps = %d, want 2", len(core.Deps))
	}
	if len(byID["lib/parser"].Deps) != 1 || byID["lib/parser"].Deps[0].ID != "lib/codec" {
		t.Errorf("lib/parser deps wrong: %+v", byID["lib/parser"].Deps)
	}

	// Dependency Target pointers must be shared, not duplicated
	if core.Deps[1] != byID["lib/codec"] && core.Deps[0] != byID["lib/codec"] {
		t.Error("app/core does not share the lib/codec target instance")
	}
}

func TestDiscoverVariantsAreModuleBased(t *testing.T) {
	q := &fixtureQuerier{
		deps:     map[string][]string{"app/multi": {}, "app/plain": {}},
		variants: map[string]bool{"app/multi": true},
	}

	tgts, err := Discover([]string{"app/multi", "app/plain"}, testConfig(t), q)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}

	for _, tg := range tgts {
		switch tg.ID {
		case "app/multi":
			if tg.Kind != driver.TargetModuleBased {
				t.Error("variant target should be module-based")
			}
		case "app/plain":
			if tg.Kind != driver.TargetOther {
				t.Error("plain target should not be module-based")
			}
		}
	}
}

func TestDiscoverSelfEdgeIgnored(t *testing.T) {
	q := &fixtureQuerier{
		deps:     map[string][]string{"app/self": {"app/self"}},
		variants: map[string]bool{},
	}

	tgts, err := Discover([]string{"app/self"}, testConfig(t), q)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if len(tgts) != 1 {
		t.Fatalf("got %d targets, want 1", len(tgts))
	}
	if len(tgts[0].Deps) != 0 {
		t.Errorf("self-edge should be dropped, got deps %+v", tgts[0].Deps)
	}
}

func TestDiscoverCycleTerminates(t *testing.T) {
	q := &fixtureQuerier{
		deps: map[string][]string{
			"mod/a": {"mod/b"},
			"mod/b": {"mod/a"},
		},
		variants: map[string]bool{"mod/a": true, "mod/b": true},
	}

	tgts, err := Discover([]string{"mod/a"}, testConfig(t), q)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if len(tgts) != 2 {
		t.Fatalf("got %d targets, want 2", len(tgts))
	}
	// Both sides of the cycle keep their edge; the driver's chunk graph
	// contracts them into one chunk later.
	for _, tg := range tgts {
		if len(tg.Deps) != 1 {
			t.Errorf("%s deps = %d, want 1", tg.ID, len(tg.Deps))
		}
	}
}

func TestDiscoverMissingTarget(t *testing.T) {
	q := &fixtureQuerier{
		deps:     map[string][]string{"app/root": {"no/such"}},
		variants: map[string]bool{},
	}

	_, err := Discover([]string{"app/root"}, testConfig(t), q)
	if err == nil {
		t.Fatal("Discover should fail on missing dependency")
	}
	var nf *TargetNotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("expected TargetNotFoundError, got %T", err)
	}
	if nf.TargetID != "no/such" {
		t.Errorf("TargetID = %q, want no/such", nf.TargetID)
	}
}

func TestMakefileQuerier(t *testing.T) {
	cfg := testConfig(t)

	write := func(id, content string) {
		dir := filepath.Join(cfg.TreePath, id)
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, "Makefile"), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	write("app/core", "TARGET=core\nDEPENDS=lib/parser lib/codec\nBUILD_DEPENDS=tool/gen:tool/gen\n")
	write("lib/parser", "TARGET=parser\nVARIANTS=static shared\n")
	write("lib/codec", "TARGET=codec\n")
	write("tool/gen", "TARGET=gen\n")

	q := &MakefileQuerier{Root: cfg.TreePath}

	deps, err := q.Dependencies("app/core")
	if err != nil {
		t.Fatalf("Dependencies failed: %v", err)
	}
	want := []string{"lib/parser", "lib/codec", "tool/gen"}
	if len(deps) != len(want) {
		t.Fatalf("deps = %v, want %v", deps, want)
	}
	for i := range want {
		if deps[i] != want[i] {
			t.Errorf("deps[%d] = %q, want %q", i, deps[i], want[i])
		}
	}

	variants, err := q.HasVariants("lib/parser")
	if err != nil {
		t.Fatalf("HasVariants failed: %v", err)
	}
	if !variants {
		t.Error("lib/parser declares VARIANTS, HasVariants = false")
	}

	variants, err = q.HasVariants("lib/codec")
	if err != nil {
		t.Fatalf("HasVariants failed: %v", err)
	}
	if variants {
		t.Error("lib/codec has no VARIANTS, HasVariants = true")
	}

	if _, err := q.Dependencies("no/such"); err == nil {
		t.Error("Dependencies should fail for a missing target")
	}
}

func TestDiscoverEndToEndOnTree(t *testing.T) {
	cfg := testConfig(t)

	write := func(id, content string) {
		dir := filepath.Join(cfg.TreePath, id)
		os.MkdirAll(dir, 0755)
		os.WriteFile(filepath.Join(dir, "Makefile"), []byte(content), 0644)
	}
	write("app/web", "DEPENDS=lib/http\n")
	write("lib/http", "")

	tgts, err := Discover([]string{"/app/web/"}, cfg, nil)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if len(tgts) != 2 {
		t.Fatalf("got %d targets, want 2", len(tgts))
	}
	web := tgts[0]
	if web.ID != "app/web" {
		t.Errorf("normalizeOrigin failed: ID = %q", web.ID)
	}
	if got := web.SourceRoots[0].Path; got != filepath.Join(cfg.TreePath, "app/web") {
		t.Errorf("source root = %q", got)
	}
	if got := web.OutputRoots[0]; got != filepath.Join(cfg.ArtifactsPath, "app/web") {
		t.Errorf("output root = %q", got)
	}
}
