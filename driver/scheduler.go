package driver

import (
	"errors"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
)

// Configuration keys recognized by MaxBuilderThreads and ParallelEnabled,
// matching the environment/config inputs recognized at build time.
const (
	ConfigMaxBuilderThreads = "compile.parallel.max.threads"
	ConfigParallelBuild     = "compile.parallel"

	// ConfigGenerateClasspathIndex gates classpath-index emission next
	// to module outputs. The flag is recognized and threaded through to
	// builders; no built-in builder currently emits the index.
	ConfigGenerateClasspathIndex = "generate.classpath.index"

	// ConfigTestMode makes order-insensitive operations (deleted-path
	// processing) deterministic for test logs.
	ConfigTestMode = "test.mode"
)

// MaxBuilderThreads computes the worker pool size: max(1, min(6, CPU-1)),
// overridable via compile.parallel.max.threads.
func MaxBuilderThreads(ctx BuildContext) int {
	if v, ok := ctx.ConfigValue(ConfigMaxBuilderThreads); ok {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	n := runtime.NumCPU() - 1
	if n > 6 {
		n = 6
	}
	if n < 1 {
		n = 1
	}
	return n
}

func parallelBuildEnabled(ctx BuildContext) bool {
	if v, ok := ctx.ConfigValue(ConfigParallelBuild); ok {
		return v == "true" || v == "1"
	}
	return true
}

// ChunkBuilder runs one chunk's full pipeline (Runner.BuildChunk).
type ChunkBuilder func(ctx BuildContext, c *Chunk) error

// finalizeChunk performs the per-chunk finalize actions shared by the
// parallel and sequential executors: update the compilation start stamp,
// close the chunk's source/output storages, flush the data manager
// (non-final).
func finalizeChunk(base *Context, c *Chunk) error {
	var errs []error
	if err := base.Project.Data.Timestamps().Force(); err != nil {
		errs = append(errs, err)
	}
	if err := base.Project.Data.CloseSourceToOutputStorages([]*Chunk{c}); err != nil {
		errs = append(errs, err)
	}
	if err := base.Project.Data.Flush(false); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// RunChunks builds every chunk of an invocation, choosing the parallel or
// sequential executor: sequential when PARALLEL_BUILD_ENABLED
// is false or the computed pool size is 1.
func RunChunks(base *Context, chunks []*Chunk, build ChunkBuilder) error {
	n := MaxBuilderThreads(base)
	if !parallelBuildEnabled(base) || n <= 1 {
		return runChunksSequential(base, chunks, build)
	}
	return runChunksParallel(base, chunks, n, build)
}

func runChunksSequential(base *Context, chunks []*Chunk, build ChunkBuilder) error {
	for _, c := range chunks {
		if err := base.CheckCanceled(); err != nil {
			return err
		}

		wrapped := WrapContext(base)
		buildErr := build(wrapped, c)
		finalizeErr := finalizeChunk(base, c)

		if buildErr != nil {
			return buildErr
		}
		if finalizeErr != nil {
			return &StorageCorruptionError{Op: "chunk finalize", Err: finalizeErr}
		}
	}
	return nil
}

// runChunksParallel runs the parallel protocol: a bounded worker
// pool draining a ready queue built from the chunk task DAG, a CAS
// firstException slot, and a countdown latch. Finished tasks release
// their dependents into the queue, so no worker ever busy-waits on a
// prerequisite.
func runChunksParallel(base *Context, chunks []*Chunk, workers int, build ChunkBuilder) error {
	tasks := BuildChunkTasks(chunks)
	total := len(tasks)
	if total == 0 {
		return nil
	}

	var remaining int64 = int64(total)
	done := make(chan struct{})

	var failMu sync.Mutex
	var firstErr error
	recordFailure := func(err error) {
		failMu.Lock()
		defer failMu.Unlock()
		if firstErr == nil {
			firstErr = err
		}
	}
	hasFailure := func() bool {
		failMu.Lock()
		defer failMu.Unlock()
		return firstErr != nil
	}

	ready := make(chan *ChunkTask, total)
	var queueMu sync.Mutex

	var initial []*ChunkTask
	for _, t := range tasks {
		if t.Ready() {
			initial = append(initial, t)
		}
	}
	SortTasksByPriority(initial)
	for _, t := range initial {
		ready <- t
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				var task *ChunkTask
				select {
				case t, ok := <-ready:
					if !ok {
						return
					}
					task = t
				case <-done:
					return
				}

				if !hasFailure() && !base.Cancel.IsCanceled() {
					wrapped := WrapContext(base)
					if err := build(wrapped, task.Chunk); err != nil {
						recordFailure(err)
					}
				}
				if err := finalizeChunk(base, task.Chunk); err != nil {
					recordFailure(&StorageCorruptionError{Op: "chunk finalize", Err: err})
				}

				queueMu.Lock()
				newlyReady := task.MarkFinished()
				SortTasksByPriority(newlyReady)
				for _, nr := range newlyReady {
					ready <- nr
				}
				queueMu.Unlock()

				if atomic.AddInt64(&remaining, -1) == 0 {
					close(done)
				}
			}
		}()
	}

	wg.Wait()

	if firstErr != nil {
		return firstErr
	}
	if base.Cancel.IsCanceled() {
		return ErrCanceled{}
	}
	return nil
}
