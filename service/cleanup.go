package service

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// Cleanup removes leftover worker scratch directories from crashed or
// interrupted builds.
//
// It scans <BuildBase>/workers for per-worker scratch trees and removes
// them. A running build holds no lock on these directories, so the
// caller decides when cleanup is safe (opts.Force skips the staleness
// heuristic).
//
// This method handles all the business logic but does not interact with
// the user; the caller displays progress and confirms destruction.
//
// Returns CleanupResult with the number of workers cleaned and any
// per-worker errors.
func (s *Service) Cleanup(opts CleanupOptions) (*CleanupResult, error) {
	result := &CleanupResult{
		WorkersCleaned: 0,
		Errors:         make([]error, 0),
	}

	workersDir := filepath.Join(s.cfg.BuildBase, "workers")
	entries, err := os.ReadDir(workersDir)
	if err != nil {
		if os.IsNotExist(err) {
			s.logger.Info("No worker directories found")
			return result, nil
		}
		return nil, fmt.Errorf("failed to read workers directory: %w", err)
	}

	workersFound := 0

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		workersFound++
		workerPath := filepath.Join(workersDir, entry.Name())

		if !opts.Force && scratchLooksActive(workerPath) {
			s.logger.Warn("Skipping %s: scratch space looks active (use force to override)", entry.Name())
			continue
		}

		if err := os.RemoveAll(workerPath); err != nil {
			result.Errors = append(result.Errors,
				fmt.Errorf("failed to cleanup %s: %w", entry.Name(), err))
			s.logger.Warn("Failed to cleanup %s: %v", entry.Name(), err)
			continue
		}

		result.WorkersCleaned++
		s.logger.Info("Cleaned up worker %s", entry.Name())
	}

	if workersFound == 0 {
		s.logger.Info("No worker directories found")
	}

	return result, nil
}

// scratchLooksActive reports whether a worker scratch tree appears to
// belong to a live build: a pidfile whose process still exists.
func scratchLooksActive(workerPath string) bool {
	pidfile := filepath.Join(workerPath, "worker.pid")
	data, err := os.ReadFile(pidfile)
	if err != nil {
		return false
	}
	var pid int
	if _, err := fmt.Sscanf(string(data), "%d", &pid); err != nil || pid <= 0 {
		return false
	}
	// Signal 0 probes existence without touching the process
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// GetWorkerDirectories returns the current worker scratch directories.
func (s *Service) GetWorkerDirectories() ([]string, error) {
	workersDir := filepath.Join(s.cfg.BuildBase, "workers")
	entries, err := os.ReadDir(workersDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read workers directory: %w", err)
	}

	workers := make([]string, 0)
	for _, entry := range entries {
		if entry.IsDir() {
			workers = append(workers, filepath.Join(workersDir, entry.Name()))
		}
	}

	return workers, nil
}
