package service

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

// makeWorkerDir creates a worker scratch tree under the build base.
func makeWorkerDir(t *testing.T, buildBase, name string) string {
	t.Helper()
	dir := filepath.Join(buildBase, "workers", name)
	if err := os.MkdirAll(filepath.Join(dir, "work"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "work", "scratch.o"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestCleanup_NoWorkers(t *testing.T) {
	svc, _ := newTestService(t)

	result, err := svc.Cleanup(CleanupOptions{})
	if err != nil {
		t.Fatalf("Cleanup() failed: %v", err)
	}

	if result.WorkersCleaned != 0 {
		t.Errorf("WorkersCleaned = %d, want 0", result.WorkersCleaned)
	}
	if len(result.Errors) != 0 {
		t.Errorf("Expected no errors, got %d", len(result.Errors))
	}
}

func TestCleanup_SingleWorker(t *testing.T) {
	svc, cfg := newTestService(t)

	workerDir := makeWorkerDir(t, cfg.BuildBase, "00")

	result, err := svc.Cleanup(CleanupOptions{})
	if err != nil {
		t.Fatalf("Cleanup() failed: %v", err)
	}

	if result.WorkersCleaned != 1 {
		t.Errorf("WorkersCleaned = %d, want 1", result.WorkersCleaned)
	}
	if _, err := os.Stat(workerDir); !os.IsNotExist(err) {
		t.Error("worker directory still present after cleanup")
	}
}

func TestCleanup_MultipleWorkers(t *testing.T) {
	svc, cfg := newTestService(t)

	for _, name := range []string{"00", "01", "02"} {
		makeWorkerDir(t, cfg.BuildBase, name)
	}

	result, err := svc.Cleanup(CleanupOptions{})
	if err != nil {
		t.Fatalf("Cleanup() failed: %v", err)
	}

	if result.WorkersCleaned != 3 {
		t.Errorf("WorkersCleaned = %d, want 3", result.WorkersCleaned)
	}
}

func TestCleanup_SkipsActiveWorker(t *testing.T) {
	svc, cfg := newTestService(t)

	active := makeWorkerDir(t, cfg.BuildBase, "00")
	stale := makeWorkerDir(t, cfg.BuildBase, "01")

	// A pidfile naming this very test process marks the worker active
	pid := os.Getpid()
	if err := os.WriteFile(filepath.Join(active, "worker.pid"), []byte(strconv.Itoa(pid)), 0644); err != nil {
		t.Fatal(err)
	}

	result, err := svc.Cleanup(CleanupOptions{})
	if err != nil {
		t.Fatalf("Cleanup() failed: %v", err)
	}

	if result.WorkersCleaned != 1 {
		t.Errorf("WorkersCleaned = %d, want 1 (active skipped)", result.WorkersCleaned)
	}
	if _, err := os.Stat(active); err != nil {
		t.Error("active worker was removed")
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Error("stale worker survived")
	}

	// Force overrides the staleness heuristic
	result, err = svc.Cleanup(CleanupOptions{Force: true})
	if err != nil {
		t.Fatalf("forced Cleanup() failed: %v", err)
	}
	if result.WorkersCleaned != 1 {
		t.Errorf("forced WorkersCleaned = %d, want 1", result.WorkersCleaned)
	}
	if _, err := os.Stat(active); !os.IsNotExist(err) {
		t.Error("forced cleanup left the worker behind")
	}
}

func TestCleanup_IgnoresPlainFiles(t *testing.T) {
	svc, cfg := newTestService(t)

	workersDir := filepath.Join(cfg.BuildBase, "workers")
	if err := os.MkdirAll(workersDir, 0755); err != nil {
		t.Fatal(err)
	}
	marker := filepath.Join(workersDir, "README")
	if err := os.WriteFile(marker, []byte("not a worker"), 0644); err != nil {
		t.Fatal(err)
	}

	result, err := svc.Cleanup(CleanupOptions{})
	if err != nil {
		t.Fatalf("Cleanup() failed: %v", err)
	}

	if result.WorkersCleaned != 0 {
		t.Errorf("WorkersCleaned = %d, want 0", result.WorkersCleaned)
	}
	if _, err := os.Stat(marker); err != nil {
		t.Error("plain file removed by cleanup")
	}
}

func TestGetWorkerDirectories(t *testing.T) {
	svc, cfg := newTestService(t)

	want := []string{
		makeWorkerDir(t, cfg.BuildBase, "00"),
		makeWorkerDir(t, cfg.BuildBase, "01"),
	}

	workers, err := svc.GetWorkerDirectories()
	if err != nil {
		t.Fatalf("GetWorkerDirectories() failed: %v", err)
	}

	if len(workers) != len(want) {
		t.Fatalf("workers = %v, want %v", workers, want)
	}
	for i := range want {
		if workers[i] != want[i] {
			t.Errorf("workers[%d] = %q, want %q", i, workers[i], want[i])
		}
	}
}

func TestGetWorkerDirectories_Empty(t *testing.T) {
	svc, _ := newTestService(t)

	workers, err := svc.GetWorkerDirectories()
	if err != nil {
		t.Fatalf("GetWorkerDirectories() failed: %v", err)
	}
	if len(workers) != 0 {
		t.Errorf("workers = %v, want none", workers)
	}
}
