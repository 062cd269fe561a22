package builders

import (
	"context"
	"fmt"

	"forge/driver"
	"forge/environment"
	"forge/log"
)

// ModuleLinkBuilder is a ModuleLevelBuilder over a (possibly cyclic)
// module-based chunk. It runs one link phase per target in the chunk and,
// while any target in the chunk still has dirty sources, requests another
// pass so the targets observe the fresh output —
// mirroring how a dependency cycle is driven to a fixed point one
// iteration at a time rather than rejected outright.
type ModuleLinkBuilder struct {
	Env    environment.Environment
	Logger log.LibraryLogger
	Phase  Phase

	WorkDir WorkDirFunc

	// passesSeen counts completed passes per chunk, so a chunk with a
	// genuine dependency cycle cannot spin forever: after len(chunk)+1
	// passes, the builder reports OK instead of requesting another pass,
	// even if targets are still dirty.
	passesSeen map[string]int
}

func NewModuleLinkBuilder(env environment.Environment, logger log.LibraryLogger, phase Phase) *ModuleLinkBuilder {
	return &ModuleLinkBuilder{Env: env, Logger: logger, Phase: phase, passesSeen: map[string]int{}}
}

func (b *ModuleLinkBuilder) PresentableName() string { return "module-link" }
func (b *ModuleLinkBuilder) Category() driver.Category { return driver.CategoryTranslator }

func (b *ModuleLinkBuilder) BuildStarted(ctx driver.BuildContext)  {}
func (b *ModuleLinkBuilder) BuildFinished(ctx driver.BuildContext) {}

func (b *ModuleLinkBuilder) ChunkBuildStarted(ctx driver.BuildContext, c *driver.Chunk) {
	b.passesSeen[c.Name()] = 0
}

func (b *ModuleLinkBuilder) ChunkBuildFinished(ctx driver.BuildContext, c *driver.Chunk) {
	delete(b.passesSeen, c.Name())
}

// Build links every target in the chunk. While any target in the chunk
// still has dirty sources, it returns ADDITIONAL_PASS_REQUIRED, on each of
// the first len(chunk)+1 passes at most, so a genuine cycle still converges;
// otherwise it returns OK.
func (b *ModuleLinkBuilder) Build(ctx driver.BuildContext, c *driver.Chunk, dirty driver.DirtyFilesHolder, out driver.OutputConsumer) (driver.ExitCode, error) {
	anyDirty := false

	for _, t := range c.Targets {
		if err := ctx.CheckCanceled(); err != nil {
			return driver.Abort, err
		}

		workDir := t.Name
		if b.WorkDir != nil {
			workDir = b.WorkDir(t)
		}

		cmd := &environment.ExecCommand{
			Command: b.Phase.Command,
			Args:    b.Phase.Args,
			WorkDir: workDir,
		}

		result, err := b.Env.Execute(context.Background(), cmd)
		if err != nil {
			ctx.Emit(driver.CompilerMessage{Source: t.Name, Kind: driver.Error, Text: fmt.Sprintf("link failed: %v", err)})
			return driver.Abort, err
		}
		if result.ExitCode != 0 {
			ctx.Emit(driver.CompilerMessage{Source: t.Name, Kind: driver.Error, Text: fmt.Sprintf("link exited %d", result.ExitCode)})
			return driver.Abort, nil
		}

		out.AddOutput(t.Name, t.Name+".link")

		if len(dirty.DirtyFiles(t)) > 0 {
			anyDirty = true
		}
	}

	b.passesSeen[c.Name()]++

	if anyDirty && b.passesSeen[c.Name()] <= len(c.Targets)+1 {
		return driver.AdditionalPassRequired, nil
	}

	return driver.OK, nil
}

var _ driver.ModuleLevelBuilder = (*ModuleLinkBuilder)(nil)
