package driver

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Runner drives the per-chunk build pipeline, dispatching to the
// single-non-module-target path or the module-level builders pipeline,
// and rejecting an illegal heterogeneous chunk. Builders run in declared
// category order; their exit codes steer re-pass and rebuild handling.
type Runner struct {
	Registry *BuilderRegistry
	Cleaner  *Cleaner
}

func NewRunner(registry *BuilderRegistry, cleaner *Cleaner) *Runner {
	return &Runner{Registry: registry, Cleaner: cleaner}
}

type deletionFailure struct {
	target *Target
	path   string
}

// BuildChunk runs the full per-chunk pipeline. The finalize block —
// scratch clears, temp-root cleanup, ChunkFinished — runs on every exit
// path, including a failed deleted-path pass.
func (r *Runner) BuildChunk(ctx BuildContext, project *ProjectDescriptor, c *Chunk) error {
	ctx.GetBus().TargetProgress(c.Targets, TargetStarted)
	ctx.ClearErrorsDetected()

	defer func() {
		project.DirtyState.ClearContextRoundData(ctx)
		project.DirtyState.ClearContextChunk(ctx, c)

		if err := project.Roots.ClearTempRoots(ctx); err != nil {
			ctx.Emit(CompilerMessage{Source: c.Name(), Kind: Warning, Text: err.Error()})
		}

		ctx.GetBus().TargetProgress(c.Targets, TargetFinished)
	}()

	for _, t := range c.Targets {
		project.DirtyState.SourcesToRecompile(ctx, t) // load/reconcile dirty state for the target
	}

	if err := r.processDeletedPaths(ctx, project, c); err != nil {
		return err
	}

	project.DirtyState.BeforeChunkBuildStart(ctx, c)

	switch {
	case len(c.Targets) == 1 && !c.Targets[0].IsModuleBased():
		return r.runTargetBuilders(ctx, project, c)
	case c.ModuleBased():
		return r.runModuleLevelBuilders(ctx, project, c)
	default:
		for _, t := range c.Targets {
			if !t.IsModuleBased() {
				ctx.Emit(CompilerMessage{
					Source: t.Name,
					Kind:   Error,
					Text:   (&IllegalChunkError{Target: t.Name}).Error(),
				})
			}
		}
		return nil
	}
}

// runTargetBuilders implements the single-non-module-target path.
func (r *Runner) runTargetBuilders(ctx BuildContext, project *ProjectDescriptor, c *Chunk) error {
	target := c.Targets[0]
	builders := r.Registry.TargetBuilders()
	if len(builders) == 0 {
		return nil
	}

	for _, b := range builders {
		b.ChunkBuildStarted(ctx, c)
	}
	defer func() {
		for _, b := range builders {
			b.ChunkBuildFinished(ctx, c)
		}
	}()

	if scope := ctx.GetScope(); scope == nil || !scope.IsForced(target) {
		dirty := &chunkDirtyFilesHolder{ctx: ctx, state: project.DirtyState, c: c}
		r.Cleaner.CleanOutputsForChangedFiles(ctx, dirty, []*Target{target})
	}

	count := float64(len(builders))
	for _, b := range builders {
		ec, err := b.BuildTarget(ctx, target)
		if err != nil {
			return &BuildError{Message: fmt.Sprintf("builder %s failed on %s", b.PresentableName(), target.Name), Cause: err}
		}
		switch ec {
		case Abort:
			return &StopBuildError{Builder: b.PresentableName(), Message: "builder requested abort"}
		case OK:
			ctx.Emit(DoneSomethingNotification{})
		}
		ctx.SetDone(ctx.Done() + 1.0/count)
		if err := ctx.CheckCanceled(); err != nil {
			return err
		}
	}
	return nil
}

// runModuleLevelBuilders implements the multi-pass module-level
// builders pipeline.
func (r *Runner) runModuleLevelBuilders(ctx BuildContext, project *ProjectDescriptor, c *Chunk) error {
	categories := r.Registry.Categories()
	if len(categories) == 0 {
		categories = DefaultCategories
	}

	var allBuilders []ModuleLevelBuilder
	for _, cat := range categories {
		allBuilders = append(allBuilders, r.Registry.Builders(cat)...)
	}
	if len(allBuilders) == 0 {
		return nil
	}

	for _, b := range allBuilders {
		b.ChunkBuildStarted(ctx, c)
	}
	out := NewOutputConsumer()
	defer func() {
		out.PersistInstrumented()
		out.FirePendingFileGeneratedEvents(ctx.GetBus())
		out.Clear()
		for _, b := range allBuilders {
			b.ChunkBuildFinished(ctx, c)
		}
	}()

	dirty := &chunkDirtyFilesHolder{ctx: ctx, state: project.DirtyState, c: c}
	modulesInChunk := float64(len(c.Targets))
	totalBuilderCount := len(allBuilders)

	forcedAll := true
	if scope := ctx.GetScope(); scope != nil {
		for _, t := range c.Targets {
			if !scope.IsForced(t) {
				forcedAll = false
				break
			}
		}
	} else {
		forcedAll = false
	}

	chunkRebuildUsed := false
	total := float64(totalBuilderCount)
	processed := 0.0

	for {
		project.DirtyState.BeforeNextRoundStart(ctx, c)

		if !forcedAll {
			r.Cleaner.CleanOutputsForChangedFiles(ctx, dirty, c.Targets)
		}

		additionalPassRequested := false
		rebuildRequested := false

	categoryLoop:
		for _, cat := range categories {
			builders := r.Registry.Builders(cat)

			if cat.Name == CategoryClassPostProcessor.Name {
				if err := out.PersistInstrumented(); err != nil {
					return err
				}
			}

			for _, b := range builders {
				if err := r.processDeletedPaths(ctx, project, c); err != nil {
					return err
				}

				ec, err := b.Build(ctx, c, dirty, out)
				if err != nil {
					return &BuildError{Message: fmt.Sprintf("builder %s failed", b.PresentableName()), Cause: err}
				}

				switch ec {
				case Abort:
					return &StopBuildError{Builder: b.PresentableName(), Message: "builder requested abort"}
				case OK:
					ctx.Emit(DoneSomethingNotification{})
				case AdditionalPassRequired:
					if !additionalPassRequested {
						additionalPassRequested = true
						oldTotal := total
						total += float64(totalBuilderCount)
						if oldTotal > 0 {
							processed = processed / oldTotal * total
						}
					}
				case ChunkRebuildRequired:
					if !chunkRebuildUsed && !forcedAll {
						chunkRebuildUsed = true
						rebuildRequested = true
					}
				}

				processed += modulesInChunk
				if total > 0 {
					ctx.SetDone(processed / total)
				}

				if err := ctx.CheckCanceled(); err != nil {
					return err
				}
				if rebuildRequested {
					break categoryLoop
				}
			}
		}

		if rebuildRequested {
			project.DirtyState.ClearContextRoundData(ctx)
			if marker, ok := project.DirtyState.(DirtyStateMarker); ok {
				marker.MarkAllDirty(c, project.Roots, ctx)
			}
			out.Clear()
			total = float64(totalBuilderCount)
			processed = 0
			continue
		}

		if !additionalPassRequested {
			return nil
		}
	}
}

// processDeletedPaths drains and applies a chunk's deleted source paths.
func (r *Runner) processDeletedPaths(ctx BuildContext, project *ProjectDescriptor, c *Chunk) error {
	cleared := clearedRegistry(ctx)

	removedRegistry, _ := GetData(ctx, GlobalRemovedSourcesKey)
	if removedRegistry == nil {
		removedRegistry = NewRemovedSourcesRegistry()
		PutData(ctx, GlobalRemovedSourcesKey, removedRegistry)
	}

	testMode := false
	if v, ok := ctx.ConfigValue(ConfigTestMode); ok && v == "true" {
		testMode = true
	}

	emptyDirs := map[string]bool{}
	var failures []deletionFailure

	for _, t := range c.Targets {
		deletedPaths := project.DirtyState.GetAndClearDeletedPaths(t)
		if len(deletedPaths) == 0 {
			continue
		}
		if cleared.IsCleared(t) {
			continue
		}
		if testMode {
			sort.Strings(deletedPaths)
		}

		som := project.Data.GetSourceToOutputMap(t)
		registry := project.Data.GetOutputToSourceRegistry()
		forms := project.Data.GetSourceToFormMap()

		var removedSources []string
		for _, src := range deletedPaths {
			if err := ctx.CheckCanceled(); err != nil {
				return err
			}

			outputs := som.Outputs(src)
			safe := registry.SafeToDeleteOutputs(outputs, src)
			safeSet := make(map[string]bool, len(safe))
			for _, out := range safe {
				safeSet[out] = true
			}

			var deletedOutputs, remaining []string
			for _, out := range outputs {
				if !safeSet[out] {
					continue // not ours alone to delete; drop the association, leave the file
				}
				if err := os.RemoveAll(out); err != nil {
					failures = append(failures, deletionFailure{target: t, path: src})
					remaining = append(remaining, out) // retry next build
					continue
				}
				deletedOutputs = append(deletedOutputs, out)
				if t.IsModuleBased() {
					emptyDirs[filepath.Dir(out)] = true
				}
			}
			som.SetOutputs(src, remaining)
			if len(deletedOutputs) > 0 {
				ctx.Emit(FileDeletedEvent{Paths: deletedOutputs})
			}

			if t.IsModuleBased() {
				for _, form := range forms.GetState(src) {
					if _, err := os.Stat(form); err == nil {
						project.DirtyState.MarkDirty(t, filepath.Dir(form), form)
					}
				}
				forms.Remove(src)
			}
			removedSources = append(removedSources, src)
		}
		if len(removedSources) > 0 {
			removedRegistry.Merge(t, removedSources)
		}
	}

	pruneEmptyDirs(emptyDirs)

	for _, f := range failures {
		project.DirtyState.RegisterDeleted(f.target, f.path, 0)
	}
	if len(failures) > 0 {
		return &BuildError{Message: fmt.Sprintf("failed to remove %d output(s) for deleted source(s) in chunk %s", len(failures), c.Name())}
	}
	return nil
}
