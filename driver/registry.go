package driver

import "sort"

// BeforeAfterTask is a lifecycle hook the Lifecycle Coordinator runs before
// or after the main chunk build.
type BeforeAfterTask interface {
	Name() string
	Run(ctx BuildContext) error
}

// BuilderRegistry is the external collaborator exposing the configured
// builders, grouped by category, plus the before/after task lists.
type BuilderRegistry struct {
	targetBuilders  []TargetBuilder
	moduleBuilders  []ModuleLevelBuilder
	before          []BeforeAfterTask
	after           []BeforeAfterTask
}

func NewBuilderRegistry() *BuilderRegistry { return &BuilderRegistry{} }

func (r *BuilderRegistry) RegisterTargetBuilder(b TargetBuilder) { r.targetBuilders = append(r.targetBuilders, b) }

func (r *BuilderRegistry) RegisterModuleLevelBuilder(b ModuleLevelBuilder) {
	r.moduleBuilders = append(r.moduleBuilders, b)
}

func (r *BuilderRegistry) RegisterBeforeTask(t BeforeAfterTask) { r.before = append(r.before, t) }
func (r *BuilderRegistry) RegisterAfterTask(t BeforeAfterTask)  { r.after = append(r.after, t) }

func (r *BuilderRegistry) TargetBuilders() []TargetBuilder { return r.targetBuilders }

func (r *BuilderRegistry) ModuleLevelBuilders() []ModuleLevelBuilder { return r.moduleBuilders }

func (r *BuilderRegistry) ModuleLevelBuilderCount() int { return len(r.moduleBuilders) }

func (r *BuilderRegistry) BeforeTasks() []BeforeAfterTask { return r.before }
func (r *BuilderRegistry) AfterTasks() []BeforeAfterTask  { return r.after }

// Builders returns the module-level builders of one category, in
// registration order.
func (r *BuilderRegistry) Builders(cat Category) []ModuleLevelBuilder {
	out := make([]ModuleLevelBuilder, 0)
	for _, b := range r.moduleBuilders {
		if b.Category().Name == cat.Name {
			out = append(out, b)
		}
	}
	return out
}

// Categories returns the distinct categories present among the registered
// module-level builders, in ascending Order.
func (r *BuilderRegistry) Categories() []Category {
	seen := map[string]Category{}
	for _, b := range r.moduleBuilders {
		seen[b.Category().Name] = b.Category()
	}
	out := make([]Category, 0, len(seen))
	for _, c := range seen {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out
}
