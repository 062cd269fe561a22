package driver

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// LowMemoryHook lets an external memory-pressure monitor (stats.LowMemoryMonitor)
// force a persistent-store flush without the driver depending on its
// implementation.
type LowMemoryHook interface {
	Register(flush func())
	Unregister()
}

// ExternalHelper is an attached compiler helper process the Lifecycle
// Coordinator shuts down gracefully on every exit path.
type ExternalHelper interface {
	Shutdown(gracePeriod time.Duration) error
}

// RebuildRequested is returned by Lifecycle.Build when persistent state is
// suspected corrupt; the caller should retry with scope.IsRebuild() true.
type RebuildRequested struct {
	Cause error
}

func (e *RebuildRequested) Error() string  { return fmt.Sprintf("rebuild requested: %v", e.Cause) }
func (e *RebuildRequested) Unwrap() error { return e.Cause }

// Lifecycle is the top-level coordinator for one build invocation:
// setup, clean roots, before/after tasks, chunk execution, and the
// unconditional finalize path.
type Lifecycle struct {
	Project *ProjectDescriptor
	Bus     *MessageBus
	Cleaner *Cleaner
	Runner  *Runner

	LowMemory LowMemoryHook
	Helper    ExternalHelper

	// TempRoot restricts the async temp-directory sweep to
	// paths under the project's system root.
	TempRoot string

	// Config is the invocation's configuration map, exposed to builders
	// and the scheduler through the context (compile.parallel,
	// compile.parallel.max.threads, generate.classpath.index, ...).
	Config map[string]string
}

func NewLifecycle(project *ProjectDescriptor, bus *MessageBus, cleaner *Cleaner, runner *Runner) *Lifecycle {
	return &Lifecycle{Project: project, Bus: bus, Cleaner: cleaner, Runner: runner}
}

// Build runs one invocation of the driver end to end: scope/force-clean
// handling, before-tasks, chunk build, after-tasks, and the unconditional
// finalize path.
func (l *Lifecycle) Build(scope Scope, forceCleanCaches bool) error {
	ctx := NewContext(l.Project, scope, l.Bus, l.Config)

	if l.LowMemory != nil {
		l.LowMemory.Register(func() {
			l.Project.Data.Flush(false)
			l.Project.Data.Timestamps().Force()
		})
		defer l.LowMemory.Unregister()
	}

	for _, b := range l.Project.Builders.TargetBuilders() {
		b.BuildStarted(ctx)
	}
	for _, b := range l.Project.Builders.ModuleLevelBuilders() {
		b.BuildStarted(ctx)
	}

	tempDone := l.startAsyncTempCleanup(ctx)

	var buildErr error

	if scope.IsRebuild() || forceCleanCaches {
		if err := l.Cleaner.CleanWholeProject(ctx, l.Project.Targets.AllTargets()); err != nil {
			buildErr = err
		}
		if buildErr == nil {
			if err := l.Project.Data.Clean(); err != nil {
				buildErr = err
			}
		}
		if buildErr == nil {
			if err := l.Project.Data.Timestamps().Clean(); err != nil {
				buildErr = err
			}
		}
	}

	if buildErr == nil {
		for _, task := range l.Project.Builders.BeforeTasks() {
			if err := task.Run(ctx); err != nil {
				buildErr = err
				break
			}
		}
	}

	if buildErr == nil {
		chunks, err := l.Project.Targets.SortedTargetChunks(ctx)
		if err != nil {
			buildErr = err
		} else {
			buildErr = RunChunks(ctx, chunks, func(c BuildContext, chunk *Chunk) error {
				return l.Runner.BuildChunk(c, l.Project, chunk)
			})
		}
	}

	if buildErr == nil {
		for _, task := range l.Project.Builders.AfterTasks() {
			if err := task.Run(ctx); err != nil {
				buildErr = err
				break
			}
		}
	}

	l.finalize(ctx, tempDone)

	return l.classify(buildErr)
}

func (l *Lifecycle) finalize(ctx *Context, tempDone <-chan struct{}) {
	for _, b := range l.Project.Builders.TargetBuilders() {
		b.BuildFinished(ctx)
	}
	for _, b := range l.Project.Builders.ModuleLevelBuilders() {
		b.BuildFinished(ctx)
	}

	// Final flush always completes, cancellation notwithstanding.
	l.Project.Data.Timestamps().Force()
	l.Project.Data.Flush(true)

	if l.Helper != nil {
		l.Helper.Shutdown(500 * time.Millisecond)
	}

	l.awaitAsync(ctx, tempDone)
}

func (l *Lifecycle) awaitAsync(ctx *Context, done <-chan struct{}) {
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if ctx.Cancel.IsCanceled() {
				return
			}
		}
	}
}

func (l *Lifecycle) startAsyncTempCleanup(ctx *Context) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if l.TempRoot == "" {
			return
		}
		entries, err := os.ReadDir(l.TempRoot)
		if err != nil {
			return
		}
		for _, e := range entries {
			if ctx.Cancel.IsCanceled() {
				return
			}
			os.RemoveAll(filepath.Join(l.TempRoot, e.Name()))
		}
	}()
	return done
}

// classify implements the failure classification / error taxonomy.
func (l *Lifecycle) classify(err error) error {
	if err == nil {
		return nil
	}

	var stop *StopBuildError
	if errors.As(err, &stop) {
		l.Bus.Progress(stop.Message)
		return nil
	}

	if isStorageCorruption(err) {
		l.Bus.Compiler("", Info, "build metadata corrupted, rebuild requested")
		return &RebuildRequested{Cause: err}
	}

	var canceled ErrCanceled
	if errors.As(err, &canceled) {
		return err
	}

	l.Bus.Compiler("", Error, err.Error())
	return err
}
