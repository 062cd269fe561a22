package driver

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Cleaner implements the Output Cleaner component: whole-project and
// selective output-directory cleaning, with overlap detection between
// output roots and source roots.
type Cleaner struct {
	Roots    BuildRootIndex
	Excludes ModuleExcludeIndex
	Data     DataManager
}

func NewCleaner(roots BuildRootIndex, excludes ModuleExcludeIndex, data DataManager) *Cleaner {
	return &Cleaner{Roots: roots, Excludes: excludes, Data: data}
}

func clearedRegistry(ctx BuildContext) *ClearedOutputRegistry {
	cleared, _ := GetData(ctx, GlobalClearedOutputsKey)
	if cleared == nil {
		cleared = NewClearedOutputRegistry()
		PutData(ctx, GlobalClearedOutputsKey, cleared)
	}
	return cleared
}

// CleanWholeProject implements the whole-project clean: a rebuild with
// "clear output dir" enabled.
func (c *Cleaner) CleanWholeProject(ctx BuildContext, targets []*Target) error {
	ctx.Emit(ProgressMessage{Text: "Cleaning output directories..."})

	outputOwners := map[string][]*Target{}
	sourceRoots := map[string]bool{}

	for _, t := range targets {
		for _, out := range t.OutputRoots {
			outputOwners[out] = append(outputOwners[out], t)
		}
		for _, sr := range c.Roots.TargetRoots(t, ctx) {
			if sr.Generated || sr.Excluded || !sr.InContent {
				continue
			}
			sourceRoots[sr.Path] = true
		}
	}

	cleared := clearedRegistry(ctx)
	var asyncFailed []string

	for outRoot, owners := range outputOwners {
		if err := ctx.CheckCanceled(); err != nil {
			return err
		}

		if !c.okToDelete(outRoot, sourceRoots) {
			ctx.Emit(CompilerMessage{
				Source: outRoot,
				Kind:   Warning,
				Text:   fmt.Sprintf("output root %s overlaps a source root, falling back to selective clean", outRoot),
			})
			for _, t := range owners {
				if err := c.SelectiveClean(ctx, t); err != nil {
					ctx.Emit(CompilerMessage{Source: t.Name, Kind: Warning, Text: err.Error()})
				}
			}
			continue
		}

		entries, err := os.ReadDir(outRoot)
		if err != nil {
			if !os.IsNotExist(err) {
				ctx.Emit(CompilerMessage{Source: outRoot, Kind: Warning, Text: err.Error()})
				asyncFailed = append(asyncFailed, outRoot)
			}
		} else {
			for _, e := range entries {
				child := filepath.Join(outRoot, e.Name())
				if err := os.RemoveAll(child); err != nil {
					asyncFailed = append(asyncFailed, child)
				}
			}
		}
		for _, t := range owners {
			cleared.MarkCleared(t)
		}
	}

	if len(asyncFailed) > 0 {
		go removeLeftovers(asyncFailed)
	}
	return nil
}

// okToDelete determines whether an output root is safe to bulk-delete
// unless it overlaps a non-generated, in-content, non-excluded source root.
func (c *Cleaner) okToDelete(outRoot string, sourceRoots map[string]bool) bool {
	if c.Excludes.IsExcluded(outRoot) {
		return true
	}
	for sr := range sourceRoots {
		if pathUnderOrEqual(outRoot, sr) || pathUnderOrEqual(sr, outRoot) {
			return false
		}
	}
	return true
}

func pathUnderOrEqual(path, ancestor string) bool {
	rel, err := filepath.Rel(ancestor, path)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func removeLeftovers(paths []string) {
	for _, p := range paths {
		os.RemoveAll(p)
	}
}

// SelectiveClean implements the per-target selective clean: every
// tracked source's outputs are deleted individually via the source↔output
// map, rather than bulk-deleting the output root.
func (c *Cleaner) SelectiveClean(ctx BuildContext, t *Target) error {
	som := c.Data.GetSourceToOutputMap(t)
	var deletedPaths []string
	emptyDirs := map[string]bool{}
	var firstErr error

	for _, src := range som.Sources() {
		for _, out := range som.Outputs(src) {
			if err := os.RemoveAll(out); err != nil {
				if firstErr == nil {
					firstErr = fmt.Errorf("removing output %s for target %s: %w", out, t.Name, err)
				}
				continue
			}
			deletedPaths = append(deletedPaths, out)
			if t.IsModuleBased() {
				emptyDirs[filepath.Dir(out)] = true
			}
		}
		som.SetOutputs(src, nil)
	}

	if len(deletedPaths) > 0 {
		ctx.Emit(FileDeletedEvent{Paths: deletedPaths})
	}
	if t.IsModuleBased() {
		pruneEmptyDirs(emptyDirs)
	}
	clearedRegistry(ctx).MarkCleared(t)
	return firstErr
}

func pruneEmptyDirs(dirs map[string]bool) {
	for d := range dirs {
		entries, err := os.ReadDir(d)
		if err == nil && len(entries) == 0 {
			os.Remove(d)
		}
	}
}

// CleanOutputsForChangedFiles deletes the previously recorded outputs of
// each currently-dirty (changed, not deleted) source of the given targets
// so the next builder pass re-emits them fresh. Returns, per target, the
// source files whose source↔output entries were cleared — used both by
// the single-non-module-target path and module-level pass (b).
func (c *Cleaner) CleanOutputsForChangedFiles(ctx BuildContext, dirty DirtyFilesHolder, targets []*Target) map[*Target][]string {
	result := map[*Target][]string{}
	for _, t := range targets {
		som := c.Data.GetSourceToOutputMap(t)
		var changed []string
		for _, files := range dirty.DirtyFiles(t) {
			for _, f := range files {
				for _, out := range som.Outputs(f) {
					os.RemoveAll(out)
				}
				som.SetOutputs(f, nil)
				changed = append(changed, f)
			}
		}
		if len(changed) > 0 {
			result[t] = changed
		}
	}
	return result
}
