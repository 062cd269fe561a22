// Package builders provides the concrete TargetBuilder and
// ModuleLevelBuilder implementations plugged into a driver.BuilderRegistry
// to actually build targets: running their ordered phases in an isolated
// environment and linking cyclic module chunks.
package builders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"forge/driver"
	"forge/environment"
	"forge/log"
)

// Phase is one ordered step of a target build: fetch, extract, patch,
// configure, build, stage, package.
type Phase struct {
	Name    string
	Command string
	Args    []string
}

// WorkDirFunc resolves the in-environment working directory for a target.
type WorkDirFunc func(t *driver.Target) string

// TranscriptFunc opens the build transcript for a target. Nil disables
// transcript capture.
type TranscriptFunc func(t *driver.Target) *log.TargetLogger

// ShellPhaseBuilder is a TargetBuilder that runs a fixed, ordered list of
// shell phases for a target inside an isolated environment.Environment.
type ShellPhaseBuilder struct {
	Env        environment.Environment
	Logger     log.LibraryLogger
	Phases     []Phase
	WorkDir    WorkDirFunc
	Transcript TranscriptFunc

	// PhaseTimeout bounds each individual phase; zero means no timeout.
	PhaseTimeout time.Duration
}

func NewShellPhaseBuilder(env environment.Environment, logger log.LibraryLogger, phases []Phase) *ShellPhaseBuilder {
	return &ShellPhaseBuilder{Env: env, Logger: logger, Phases: phases}
}

func (b *ShellPhaseBuilder) PresentableName() string { return "shell-phase" }

func (b *ShellPhaseBuilder) BuildStarted(ctx driver.BuildContext)  {}
func (b *ShellPhaseBuilder) BuildFinished(ctx driver.BuildContext) {}

func (b *ShellPhaseBuilder) ChunkBuildStarted(ctx driver.BuildContext, c *driver.Chunk)  {}
func (b *ShellPhaseBuilder) ChunkBuildFinished(ctx driver.BuildContext, c *driver.Chunk) {}

// BuildTarget runs every configured phase in order for t, capturing
// command output into the target's transcript when one is configured.
func (b *ShellPhaseBuilder) BuildTarget(ctx driver.BuildContext, t *driver.Target) (driver.ExitCode, error) {
	workDir := t.Name
	if b.WorkDir != nil {
		workDir = b.WorkDir(t)
	}

	var transcript *log.TargetLogger
	if b.Transcript != nil {
		transcript = b.Transcript(t)
		transcript.WriteHeader()
		defer transcript.Close()
	}
	start := time.Now()

	for _, phase := range b.Phases {
		if err := ctx.CheckCanceled(); err != nil {
			if transcript != nil {
				transcript.WriteFailure(time.Since(start), "build canceled")
			}
			return driver.Abort, err
		}

		cmd := &environment.ExecCommand{
			Command: phase.Command,
			Args:    phase.Args,
			WorkDir: workDir,
			Timeout: b.PhaseTimeout,
		}
		if transcript != nil {
			transcript.WritePhase(phase.Name)
			transcript.WriteCommand(phase.Command + " " + strings.Join(phase.Args, " "))
			cmd.Stdout = transcript
			cmd.Stderr = transcript
		}

		result, err := b.Env.Execute(context.Background(), cmd)
		if err != nil {
			reason := fmt.Sprintf("phase %s failed to execute: %v", phase.Name, err)
			if transcript != nil {
				transcript.WriteFailure(time.Since(start), reason)
			}
			ctx.Emit(driver.CompilerMessage{
				Source: t.Name,
				Kind:   driver.Error,
				Text:   reason,
			})
			return driver.Abort, err
		}

		if result.ExitCode != 0 {
			reason := fmt.Sprintf("phase %s exited %d", phase.Name, result.ExitCode)
			if transcript != nil {
				transcript.WriteFailure(time.Since(start), reason)
			}
			ctx.Emit(driver.CompilerMessage{
				Source: t.Name,
				Kind:   driver.Error,
				Text:   reason,
			})
			return driver.Abort, nil
		}

		b.Logger.Debug("target %s: phase %s done in %s", t.Name, phase.Name, result.Duration)
	}

	if transcript != nil {
		transcript.WriteSuccess(time.Since(start))
	}
	return driver.OK, nil
}

var _ driver.TargetBuilder = (*ShellPhaseBuilder)(nil)
