package driver

import (
	"fmt"
	"sort"
	"sync"
)

// tarjanSCC computes the strongly connected components of the target
// dependency graph (edges point from a target to each of its
// dependencies), returning components dependencies-first: every component
// is completed only after all the components it depends on. Unlike a
// plain topological sort it legally admits cycles, which the chunk model
// requires for module-based targets.
func tarjanSCC(targets []*Target) [][]*Target {
	byID := make(map[string]*Target, len(targets))
	for _, t := range targets {
		byID[t.ID] = t
	}

	index := map[string]int{}
	low := map[string]int{}
	onStack := map[string]bool{}
	var stack []*Target
	counter := 0
	var result [][]*Target

	var strongconnect func(v *Target)
	strongconnect = func(v *Target) {
		index[v.ID] = counter
		low[v.ID] = counter
		counter++
		stack = append(stack, v)
		onStack[v.ID] = true

		deps := append([]*Target(nil), v.Deps...)
		sort.Slice(deps, func(i, j int) bool { return deps[i].ID < deps[j].ID })

		for _, w := range deps {
			if _, ok := byID[w.ID]; !ok {
				continue // dependency outside this target set; not our concern
			}
			if _, seen := index[w.ID]; !seen {
				strongconnect(w)
				if low[w.ID] < low[v.ID] {
					low[v.ID] = low[w.ID]
				}
			} else if onStack[w.ID] {
				if index[w.ID] < low[v.ID] {
					low[v.ID] = index[w.ID]
				}
			}
		}

		if low[v.ID] == index[v.ID] {
			var scc []*Target
			for {
				n := len(stack) - 1
				w := stack[n]
				stack = stack[:n]
				onStack[w.ID] = false
				scc = append(scc, w)
				if w.ID == v.ID {
					break
				}
			}
			result = append(result, scc)
		}
	}

	ids := make([]string, 0, len(targets))
	for _, t := range targets {
		ids = append(ids, t.ID)
	}
	sort.Strings(ids)

	for _, id := range ids {
		t := byID[id]
		if _, seen := index[t.ID]; !seen {
			strongconnect(t)
		}
	}
	return result
}

// ChunksFromTargets groups targets into chunks (SCCs of the dependency
// graph), in dependency order (a chunk's dependencies appear earlier in the
// returned slice).
func ChunksFromTargets(targets []*Target) ([]*Chunk, error) {
	sccs := tarjanSCC(targets)
	chunks := make([]*Chunk, 0, len(sccs))
	for _, scc := range sccs {
		chunks = append(chunks, &Chunk{Targets: scc})
	}
	return chunks, nil
}

// ChunkTask is one node of the scheduler's task DAG: a chunk plus its
// unresolved dependency count and the tasks waiting on it. Represented with
// plain slices/maps rather than shared-ownership graph types, per the
// "arena allocation ... integer indices" guidance generalized to Go
// pointers (no GC concerns to work around, unlike the reflective-proxy
// source).
type ChunkTask struct {
	Chunk *Chunk

	mu            sync.Mutex
	remainingDeps map[*ChunkTask]bool
	dependents    []*ChunkTask
}

func newChunkTask(c *Chunk) *ChunkTask {
	return &ChunkTask{Chunk: c, remainingDeps: map[*ChunkTask]bool{}}
}

// Ready reports whether every prerequisite of this task has finished.
func (t *ChunkTask) Ready() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.remainingDeps) == 0
}

func (t *ChunkTask) removeDep(dep *ChunkTask) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.remainingDeps[dep]; !ok {
		// The dependent/dependency lists are built together in
		// BuildChunkTasks; an edge missing here means the DAG was
		// corrupted or a task finished twice.
		panic(fmt.Sprintf("chunk task %s finished but dependent %s does not list it as a dependency",
			dep.Chunk.Name(), t.Chunk.Name()))
	}
	delete(t.remainingDeps, dep)
	return len(t.remainingDeps) == 0
}

// MarkFinished notifies every dependent that this task completed, removing
// it from their remainingDeps, and returns the dependents that became
// ready as a result. A missing edge (a dependent that doesn't list this
// task as a dependency) is a programmer error and panics.
func (t *ChunkTask) MarkFinished() []*ChunkTask {
	var ready []*ChunkTask
	for _, d := range t.dependents {
		becameReady := d.removeDep(t)
		if becameReady {
			ready = append(ready, d)
		}
	}
	return ready
}

// BuildChunkTasks materializes the scheduler's task DAG from a sorted
// chunk list: for each target in a chunk, for each of its dependency
// targets, if that dependency's owning chunk differs, add a dependency
// edge; self-edges (dependency within the same chunk) are ignored.
func BuildChunkTasks(chunks []*Chunk) []*ChunkTask {
	chunkOf := map[*Target]*Chunk{}
	for _, c := range chunks {
		for _, t := range c.Targets {
			chunkOf[t] = c
		}
	}

	tasks := make([]*ChunkTask, len(chunks))
	taskOf := map[*Chunk]*ChunkTask{}
	for i, c := range chunks {
		tasks[i] = newChunkTask(c)
		taskOf[c] = tasks[i]
	}

	for _, c := range chunks {
		task := taskOf[c]
		for _, t := range c.Targets {
			for _, dep := range t.Deps {
				depChunk, ok := chunkOf[dep]
				if !ok || depChunk == c {
					continue
				}
				depTask := taskOf[depChunk]
				if !task.remainingDeps[depTask] {
					task.remainingDeps[depTask] = true
					depTask.dependents = append(depTask.dependents, task)
				}
			}
		}
	}
	return tasks
}

// SortTasksByPriority orders ready tasks so that chunks with more
// dependents (higher fan-out, unlocking more work when finished) run
// first, tie-broken by chunk name for determinism. Dependency depth is
// not used as a key: it stops being well-defined once cycles are legal.
func SortTasksByPriority(tasks []*ChunkTask) {
	sort.Slice(tasks, func(i, j int) bool {
		ti, tj := tasks[i], tasks[j]
		if len(ti.dependents) != len(tj.dependents) {
			return len(ti.dependents) > len(tj.dependents)
		}
		return ti.Chunk.Name() < tj.Chunk.Name()
	})
}
