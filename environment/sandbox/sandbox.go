//go:build unix

// Package sandbox implements the "sandbox" environment backend: each
// worker gets its own scratch directory tree under the build base, and
// every command runs in its own process group at reduced priority so a
// runaway build can be killed (and deprioritized) as a unit.
//
// It deliberately stops short of chroot/jail isolation: forge builds
// trees the invoking user already owns, so the sandbox only has to keep
// workers from trampling each other's scratch space and keep stray
// child processes reapable.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"forge/config"
	"forge/environment"
	"forge/log"
)

// buildNice is the scheduling priority build process groups run at.
const buildNice = 10

func init() {
	environment.Register("sandbox", func() environment.Environment {
		return &Sandbox{}
	})
}

// Sandbox is the unix sandbox backend.
type Sandbox struct {
	mu       sync.Mutex
	workerID int
	basePath string
	logger   log.LibraryLogger
	ready    bool
}

// Setup creates the worker's scratch tree: <BuildBase>/workers/NN with
// work/ and tmp/ beneath it. When the build base sits on tmpfs that is
// logged, since scratch contents then die with the mount.
func (s *Sandbox) Setup(workerID int, cfg *config.Config, logger log.LibraryLogger) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if logger == nil {
		logger = log.NoOpLogger{}
	}
	s.logger = logger
	s.workerID = workerID
	s.basePath = filepath.Join(cfg.BuildBase, "workers", fmt.Sprintf("%02d", workerID))

	for _, dir := range []string{s.basePath, filepath.Join(s.basePath, "work"), filepath.Join(s.basePath, "tmp")} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return &environment.ErrSetupFailed{Op: "mkdir", Err: err}
		}
	}

	if onTmpfs(s.basePath) {
		logger.Debug("worker %02d scratch space is on tmpfs", workerID)
	}

	s.ready = true
	return nil
}

// onTmpfs reports whether path lives on a memory-backed filesystem.
func onTmpfs(path string) bool {
	var fs unix.Statfs_t
	if err := unix.Statfs(path, &fs); err != nil {
		return false
	}
	// TMPFS_MAGIC on Linux; BSDs report via f_fstypename which the
	// portable Statfs_t doesn't carry, so they just report false here.
	return fs.Type == 0x01021994
}

// Execute runs cmd in its own process group. On timeout or context
// cancellation the whole group is killed, so grandchildren spawned by
// build scripts die with the build.
func (s *Sandbox) Execute(ctx context.Context, cmd *environment.ExecCommand) (*environment.ExecResult, error) {
	s.mu.Lock()
	base := s.basePath
	ready := s.ready
	logger := s.logger
	s.mu.Unlock()

	if !ready {
		return nil, &environment.ErrExecutionFailed{
			Op:      "start",
			Command: cmd.Command,
			Err:     fmt.Errorf("sandbox not set up"),
		}
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if cmd.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	c := exec.Command(cmd.Command, cmd.Args...)
	c.Dir = cmd.WorkDir
	if c.Dir == "" {
		c.Dir = base
	}
	c.Stdout = cmd.Stdout
	c.Stderr = cmd.Stderr
	c.Env = os.Environ()
	c.Env = append(c.Env, "TMPDIR="+filepath.Join(base, "tmp"))
	for k, v := range cmd.Env {
		c.Env = append(c.Env, k+"="+v)
	}
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	start := time.Now()
	if err := c.Start(); err != nil {
		return nil, &environment.ErrExecutionFailed{Op: "start", Command: cmd.Command, Err: err}
	}

	pgid := c.Process.Pid
	if err := unix.Setpriority(unix.PRIO_PGRP, pgid, buildNice); err != nil && logger != nil {
		logger.Debug("setpriority(pgrp %d): %v", pgid, err)
	}

	// Reap in a goroutine so cancellation can kill the group while
	// Wait is still outstanding.
	waitErr := make(chan error, 1)
	go func() { waitErr <- c.Wait() }()

	select {
	case <-runCtx.Done():
		unix.Kill(-pgid, unix.SIGKILL)
		<-waitErr
		op := "cancel"
		if ctx.Err() == nil {
			op = "timeout"
		}
		return &environment.ExecResult{
				ExitCode: -1,
				Duration: time.Since(start),
				Error:    runCtx.Err(),
			}, &environment.ErrExecutionFailed{
				Op:      op,
				Command: cmd.Command,
				Err:     runCtx.Err(),
			}
	case err := <-waitErr:
		result := &environment.ExecResult{Duration: time.Since(start)}
		if err == nil {
			return result, nil
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			// Ran to completion with a non-zero status: not an error
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		result.ExitCode = -1
		result.Error = err
		return result, &environment.ErrExecutionFailed{Op: "wait", Command: cmd.Command, Err: err}
	}
}

// Cleanup removes the worker's scratch tree. Idempotent; safe after a
// failed Setup.
func (s *Sandbox) Cleanup() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.basePath == "" {
		return nil
	}

	// Retry once: a straggler process may still hold files briefly
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		if err = os.RemoveAll(s.basePath); err == nil {
			s.ready = false
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	if s.logger != nil {
		s.logger.Warn("worker %02d scratch cleanup left residue: %v", s.workerID, err)
	}
	return &environment.ErrCleanupFailed{Op: "rmdir", Err: err, Leftovers: []string{s.basePath}}
}

// GetBasePath returns the worker's scratch directory.
func (s *Sandbox) GetBasePath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.basePath
}
