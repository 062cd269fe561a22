package service

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"forge/builddb"
	"forge/builders"
	"forge/driver"
	"forge/environment"
	"forge/log"
	"forge/stats"
	"forge/targets"
)

// Build orchestrates the complete build workflow for the specified targets.
//
// The build process includes:
//  1. Optional migration of legacy CRC data (if enabled and needed)
//  2. Target-graph discovery and dependency resolution
//  3. Marking targets that need building (CRC-based coarse staleness)
//  4. Driving driver.Lifecycle to run the incremental build
//  5. Cleanup of the build environment on failure (on success the cleanup
//     function is returned in BuildResult.Cleanup)
//
// This method handles all the business logic but does not interact with
// the user. The caller is responsible for displaying progress, prompting
// for confirmations, and signal handling.
//
// Returns BuildResult containing stats and target information, or an
// error if the build fails.
func (s *Service) Build(opts BuildOptions) (*BuildResult, error) {
	startTime := time.Now()

	if err := s.detectAndMigrate(); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	tgts, err := s.parseAndResolve(opts.TargetList)
	if err != nil {
		return nil, err
	}

	needBuild, err := s.markNeedingBuild(tgts, opts.Force)
	if err != nil {
		return nil, fmt.Errorf("failed to check build status: %w", err)
	}

	if needBuild == 0 && !opts.Force {
		for _, t := range tgts {
			s.logger.Skipped(t.ID)
		}
		return &BuildResult{
			Stats: &BuildStats{
				Total:    len(tgts),
				Success:  len(tgts),
				Skipped:  len(tgts),
				Duration: time.Since(startTime),
			},
			Targets:   tgts,
			NeedBuild: 0,
			Duration:  time.Since(startTime),
		}, nil
	}

	result, err := s.runLifecycle(tgts, opts)
	if err != nil {
		return nil, err
	}
	result.NeedBuild = needBuild
	result.Duration = time.Since(startTime)
	result.Stats.Duration = result.Duration
	result.Stats.Skipped = len(tgts) - needBuild
	return result, nil
}

// runLifecycle wires one driver.Lifecycle invocation over tgts: a
// bbolt-backed project descriptor (builddb.Store), a shared build
// environment running the standard phases via builders.ShellPhaseBuilder,
// a stats collector persisting live snapshots into the run record, and a
// message-bus subscriber that tallies BuildStats from the emitted
// messages. If opts.Bus is set, the caller already subscribed a UI
// (uiplain.Subscriber, uincurses.Dashboard) to it and sees the same
// messages this tally sees.
func (s *Service) runLifecycle(tgts []*driver.Target, opts BuildOptions) (*BuildResult, error) {
	store := builddb.NewStore(s.db)
	roots := driver.StaticBuildRootIndex{}
	excludes := driver.PermissiveModuleExcludeIndex{}
	index := driver.NewStaticTargetIndex(tgts)

	registry := driver.NewBuilderRegistry()
	project := &driver.ProjectDescriptor{
		Targets:    index,
		Roots:      roots,
		Excludes:   excludes,
		DirtyState: store,
		Builders:   registry,
		Data:       store,
	}

	backend := opts.EnvironmentBackend
	if backend == "" {
		backend = defaultEnvironmentBackend()
	}
	env, err := environment.New(backend)
	if err != nil {
		return nil, fmt.Errorf("failed to create build environment: %w", err)
	}
	if err := env.Setup(0, s.cfg, s.logger); err != nil {
		return nil, fmt.Errorf("failed to set up build environment: %w", err)
	}
	cleanup := func() { env.Cleanup() }
	s.SetActiveCleanup(cleanup)

	workDir := func(t *driver.Target) string {
		if len(t.SourceRoots) > 0 {
			return t.SourceRoots[0].Path
		}
		return t.Name
	}

	shellBuilder := builders.NewShellPhaseBuilder(env, s.logger, defaultPhases(s.cfg.MaxJobs))
	shellBuilder.WorkDir = workDir
	shellBuilder.Transcript = func(t *driver.Target) *log.TargetLogger {
		return log.NewTargetLogger(s.cfg, t.ID)
	}
	registry.RegisterTargetBuilder(shellBuilder)

	// Multi-variant targets (targets.Discover marks them
	// TargetModuleBased) share a source tree across artifact variants,
	// so they build as a module-level chunk instead of the
	// single-target path: one pass packages every variant, requesting
	// another pass if a variant's build left a sibling's sources dirty.
	variantBuilder := builders.NewModuleLinkBuilder(env, s.logger, builders.Phase{
		Name:    "variant-package",
		Command: "/usr/bin/make",
		Args:    []string{"package"},
	})
	variantBuilder.WorkDir = workDir
	registry.RegisterModuleLevelBuilder(variantBuilder)

	// Run record plus live stats: the collector samples at 1 Hz and the
	// BuildDB writer persists each snapshot so `forge monitor` in
	// another process can follow along.
	runID := uuid.New().String()
	runStart := time.Now()
	if err := s.db.StartRun(runID, runStart); err != nil {
		s.logger.Warn("Failed to record build run: %v", err)
	}
	collector := stats.NewStatsCollector(context.Background(), s.cfg.MaxWorkers)
	collector.UpdateQueuedCount(len(tgts))
	collector.AddConsumer(stats.NewBuildDBWriter(s.db, runID))

	tracker := newRunTargetTracker(s.db, runID, s.logger.Warn)

	// Bus handlers run on the emitting goroutine, which under the
	// parallel scheduler means concurrent chunk workers; the tally
	// needs its own lock.
	buildStats := &BuildStats{Total: len(tgts)}
	var statsMu sync.Mutex
	bus := opts.Bus
	if bus == nil {
		bus = driver.NewMessageBus()
	}
	bus.Subscribe(func(m driver.Message) {
		switch msg := m.(type) {
		case driver.CompilerMessage:
			if msg.Kind == driver.Error {
				statsMu.Lock()
				buildStats.Failed++
				statsMu.Unlock()
				collector.RecordCompletion(stats.BuildFailed)
			}
		case driver.DoneSomethingNotification:
			statsMu.Lock()
			buildStats.Success++
			statsMu.Unlock()
			collector.RecordCompletion(stats.BuildSuccess)
		}
	})
	bus.Subscribe(tracker.Handle)

	cleaner := driver.NewCleaner(roots, excludes, store)
	runner := driver.NewRunner(registry, cleaner)
	lifecycle := driver.NewLifecycle(project, bus, cleaner, runner)
	lifecycle.Config = s.driverConfig(opts)
	lifecycle.TempRoot = s.tempRoot()

	throttler := stats.NewWorkerThrottler(s.cfg.MaxWorkers, false)
	lowMemory := stats.NewLowMemoryMonitor(throttler, 0)
	lifecycle.LowMemory = lowMemory

	scope := driver.NewFullScope(false)
	if opts.Force {
		for _, t := range tgts {
			scope.Force(t)
		}
	}

	buildErr := lifecycle.Build(scope, opts.Force)

	collector.Close()
	runStats := builddb.RunStats{
		Total:   len(tgts),
		Success: buildStats.Success,
		Failed:  buildStats.Failed,
	}
	if err := s.db.FinishRun(runID, runStats, time.Now(), buildErr != nil); err != nil {
		s.logger.Warn("Failed to finalize build run: %v", err)
	}

	if buildErr != nil {
		cleanup()
		s.ClearActiveCleanup()
		return nil, fmt.Errorf("build failed: %w", buildErr)
	}

	for _, t := range tgts {
		if len(t.SourceRoots) == 0 {
			continue
		}
		crc, err := builddb.ComputeTreeCRC(t.SourceRoots[0].Path)
		if err != nil {
			continue
		}
		s.db.UpdateCRC(t.ID, crc)
		s.logger.Success(t.ID)
	}

	return &BuildResult{
		Stats:   buildStats,
		Targets: tgts,
		Cleanup: cleanup,
	}, nil
}

// driverConfig maps the loaded Config (plus per-invocation options)
// onto the configuration keys the driver recognizes.
func (s *Service) driverConfig(opts BuildOptions) map[string]string {
	cfg := map[string]string{
		driver.ConfigMaxBuilderThreads: strconv.Itoa(s.cfg.MaxWorkers),
		driver.ConfigParallelBuild:     strconv.FormatBool(s.cfg.ParallelBuild),
	}
	if s.cfg.GenerateClasspathIndex {
		cfg[driver.ConfigGenerateClasspathIndex] = "true"
	}
	if opts.TestMode {
		cfg[driver.ConfigTestMode] = "true"
	}
	return cfg
}

// tempRoot returns the directory the lifecycle's async temp sweep may
// clean: the process tmpdir, but only when it lies under the build
// base (never a shared system /tmp).
func (s *Service) tempRoot() string {
	tmp := os.TempDir()
	if strings.HasPrefix(tmp, s.cfg.BuildBase+string(os.PathSeparator)) {
		return tmp
	}
	return ""
}

// defaultEnvironmentBackend picks "sandbox" (process-group isolation)
// on unix systems, falling back to "mock" everywhere else so the driver
// still runs on any development machine.
func defaultEnvironmentBackend() string {
	switch runtime.GOOS {
	case "linux", "freebsd", "dragonfly", "darwin", "netbsd", "openbsd":
		return "sandbox"
	default:
		return "mock"
	}
}

// defaultPhases are the standard ordered build phases run by
// ShellPhaseBuilder against each target's Makefile.
func defaultPhases(maxJobs int) []builders.Phase {
	jobs := fmt.Sprintf("-j%d", maxJobs)
	return []builders.Phase{
		{Name: "fetch", Command: "/usr/bin/make", Args: []string{"fetch"}},
		{Name: "extract", Command: "/usr/bin/make", Args: []string{"extract"}},
		{Name: "patch", Command: "/usr/bin/make", Args: []string{"patch"}},
		{Name: "build", Command: "/usr/bin/make", Args: []string{jobs, "build"}},
		{Name: "stage", Command: "/usr/bin/make", Args: []string{"stage"}},
		{Name: "package", Command: "/usr/bin/make", Args: []string{"package"}},
	}
}

// detectAndMigrate imports a pending legacy CRC index if auto-migration
// is configured.
func (s *Service) detectAndMigrate() error {
	if !s.cfg.Migration.AutoMigrate {
		return nil
	}

	if !s.NeedsMigration() {
		return nil
	}

	if err := s.importLegacyIndex(); err != nil {
		return fmt.Errorf("legacy CRC import failed: %w", err)
	}

	return nil
}

// parseAndResolve discovers the target graph for targetList: every
// requested target plus every target it transitively depends on, per
// targets.Discover.
func (s *Service) parseAndResolve(targetList []string) ([]*driver.Target, error) {
	if len(targetList) == 0 {
		return nil, fmt.Errorf("no targets specified")
	}

	return targets.Discover(targetList, s.cfg, nil)
}

// markNeedingBuild determines which targets need building based on CRC comparison.
//
// If force is true, all targets are marked as needing a build regardless
// of CRC status. Returns the number of targets that need building.
func (s *Service) markNeedingBuild(tgts []*driver.Target, force bool) (int, error) {
	if force {
		return len(tgts), nil
	}

	needBuild := 0
	for _, t := range tgts {
		if len(t.SourceRoots) == 0 {
			needBuild++
			continue
		}
		crc, err := builddb.ComputeTreeCRC(t.SourceRoots[0].Path)
		if err != nil {
			if os.IsNotExist(err) {
				needBuild++
				continue
			}
			return 0, fmt.Errorf("computing CRC for %s: %w", t.Name, err)
		}
		stale, err := s.db.NeedsBuild(t.ID, crc)
		if err != nil {
			return 0, fmt.Errorf("checking build status for %s: %w", t.Name, err)
		}
		if stale {
			needBuild++
		}
	}
	return needBuild, nil
}

// GetBuildPlan returns information about what would be built without actually building.
//
// This is useful for displaying a build plan to the user before executing the build.
func (s *Service) GetBuildPlan(targetList []string) (*BuildPlan, error) {
	tgts, err := s.parseAndResolve(targetList)
	if err != nil {
		return nil, err
	}

	needBuild, err := s.markNeedingBuild(tgts, false)
	if err != nil {
		return nil, fmt.Errorf("failed to check build status: %w", err)
	}

	var toBuild, toSkip []string
	for _, t := range tgts {
		stale := true
		if len(t.SourceRoots) > 0 {
			if crc, err := builddb.ComputeTreeCRC(t.SourceRoots[0].Path); err == nil {
				stale, _ = s.db.NeedsBuild(t.ID, crc)
			}
		}
		if stale {
			toBuild = append(toBuild, t.Name)
		} else {
			toSkip = append(toSkip, t.Name)
		}
	}

	return &BuildPlan{
		TotalTargets: len(tgts),
		ToBuild:      toBuild,
		ToSkip:       toSkip,
		NeedBuild:    needBuild,
	}, nil
}

// BuildPlan contains information about a planned build.
type BuildPlan struct {
	TotalTargets int      // total number of targets (including dependencies)
	ToBuild      []string // targets that will be built
	ToSkip       []string // targets that will be skipped (already up to date)
	NeedBuild    int      // number of targets that need building
}

// MigrationStatus returns information about legacy CRC migration.
type MigrationStatus struct {
	Needed     bool   // whether migration is needed
	LegacyFile string // path to the legacy CRC file (if it exists)
}

// CheckMigrationStatus checks if legacy CRC migration is needed.
func (s *Service) CheckMigrationStatus() (*MigrationStatus, error) {
	if !s.NeedsMigration() {
		return &MigrationStatus{}, nil
	}
	return &MigrationStatus{
		Needed:     true,
		LegacyFile: s.legacyIndexPath(),
	}, nil
}

// PerformMigration manually triggers the legacy CRC import.
//
// This is useful when the caller wants explicit control over when
// migration happens, rather than relying on auto-migration during
// Build().
func (s *Service) PerformMigration() error {
	if !s.NeedsMigration() {
		return fmt.Errorf("no migration needed")
	}

	if err := s.importLegacyIndex(); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	return nil
}
