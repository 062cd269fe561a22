package environment

import (
	"context"
	"sync"
	"time"

	"forge/config"
	"forge/log"
)

// MockEnvironment is the recording Environment used in tests. Every
// method call is captured for later inspection, and the results each
// method returns are configurable. Safe for concurrent use, so it can
// stand in for a real backend under the parallel scheduler.
//
//	mock := NewMockEnvironment().(*MockEnvironment)
//	mock.ExecuteResult = &ExecResult{ExitCode: 1}
//
//	result, _ := mock.Execute(ctx, cmd)    // result.ExitCode == 1
//	mock.GetExecuteCallCount()             // == 1
type MockEnvironment struct {
	mu sync.Mutex

	// Setup tracking
	SetupCalled   bool
	SetupWorkerID int
	SetupConfig   *config.Config
	SetupError    error

	// Execute tracking
	ExecuteCalls  []*ExecCommand
	ExecuteResult *ExecResult
	ExecuteError  error

	// Cleanup tracking
	CleanupCalled bool
	CleanupError  error

	// GetBasePath return value
	BasePath string
}

// NewMockEnvironment creates a mock that reports success for everything:
// BasePath "/mock/base", exit code 0, nil errors.
func NewMockEnvironment() Environment {
	return &MockEnvironment{
		BasePath:      "/mock/base",
		ExecuteResult: &ExecResult{ExitCode: 0, Duration: 0},
	}
}

func init() {
	// The mock backend is always registered so tests (and platforms
	// with no real backend) can environment.New("mock")
	Register("mock", NewMockEnvironment)
}

// Setup records the call and returns the configured SetupError.
func (m *MockEnvironment) Setup(workerID int, cfg *config.Config, logger log.LibraryLogger) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SetupCalled = true
	m.SetupWorkerID = workerID
	m.SetupConfig = cfg

	return m.SetupError
}

// Execute records cmd and returns a copy of the configured result. A
// cancelled context short-circuits with exit code -1, mirroring what a
// real backend reports for a killed command.
func (m *MockEnvironment) Execute(ctx context.Context, cmd *ExecCommand) (*ExecResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ExecuteCalls = append(m.ExecuteCalls, cmd)

	select {
	case <-ctx.Done():
		return &ExecResult{ExitCode: -1}, ctx.Err()
	default:
	}

	if m.ExecuteResult == nil {
		return &ExecResult{ExitCode: 0}, m.ExecuteError
	}

	// Copy so callers can't mutate the shared template
	result := *m.ExecuteResult
	return &result, m.ExecuteError
}

// Cleanup records the call and returns the configured CleanupError.
func (m *MockEnvironment) Cleanup() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CleanupCalled = true
	return m.CleanupError
}

// GetBasePath returns the configured base path.
func (m *MockEnvironment) GetBasePath() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.BasePath
}

// GetExecuteCallCount returns how many times Execute was called.
func (m *MockEnvironment) GetExecuteCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ExecuteCalls)
}

// GetLastExecuteCall returns the most recent Execute call, or nil.
func (m *MockEnvironment) GetLastExecuteCall() *ExecCommand {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.ExecuteCalls) == 0 {
		return nil
	}
	return m.ExecuteCalls[len(m.ExecuteCalls)-1]
}

// GetExecuteCall returns the Execute call at index, or nil when out of
// range.
func (m *MockEnvironment) GetExecuteCall(index int) *ExecCommand {
	m.mu.Lock()
	defer m.mu.Unlock()

	if index < 0 || index >= len(m.ExecuteCalls) {
		return nil
	}
	return m.ExecuteCalls[index]
}

// Reset clears all recorded calls and restores the defaults, so one
// mock can serve several test cases.
func (m *MockEnvironment) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SetupCalled = false
	m.SetupWorkerID = 0
	m.SetupConfig = nil
	m.SetupError = nil

	m.ExecuteCalls = nil
	m.ExecuteResult = &ExecResult{ExitCode: 0, Duration: 0}
	m.ExecuteError = nil

	m.CleanupCalled = false
	m.CleanupError = nil
}

// WasSetupCalled reports whether Setup has been called.
func (m *MockEnvironment) WasSetupCalled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.SetupCalled
}

// WasCleanupCalled reports whether Cleanup has been called.
func (m *MockEnvironment) WasCleanupCalled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CleanupCalled
}

// SimulateExecutionTime sleeps for d and adds it to the configured
// result's duration, for timeout and cancellation tests.
func (m *MockEnvironment) SimulateExecutionTime(d time.Duration) {
	time.Sleep(d)
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ExecuteResult != nil {
		m.ExecuteResult.Duration += d
	}
}
