package driver

import "fmt"

// Sentinel errors checked with errors.Is(), paired with wrapper types
// carrying structured detail for the same condition.
var (
	// ErrRebuildRequested is surfaced to the caller when persistent state
	// is suspected corrupt; the caller should retry with scope.IsRebuild()
	// true.
	ErrRebuildRequested = fmt.Errorf("build metadata corrupted, rebuild requested")

	// ErrStopBuild marks a builder-requested, deliberate early stop. It is
	// not a failure: the Lifecycle Coordinator treats it as
	// success-with-early-stop.
	ErrStopBuild = fmt.Errorf("build stopped by builder")

	// ErrIllegalChunk is raised when a chunk mixes a non-module target with
	// other targets.
	ErrIllegalChunk = fmt.Errorf("chunk contains a non-module target in a circular dependency")
)

// StopBuildError wraps ErrStopBuild with the aborting builder's name and
// message.
type StopBuildError struct {
	Builder string
	Message string
}

func (e *StopBuildError) Error() string {
	return fmt.Sprintf("%s: stop build: %s", e.Builder, e.Message)
}

func (e *StopBuildError) Unwrap() error { return ErrStopBuild }

// StorageCorruptionError wraps ErrRebuildRequested with the underlying
// storage failure that triggered the rebuild-requested classification
// (persistent-enumerator corruption, mapping failure, I/O error, build-data
// corruption).
type StorageCorruptionError struct {
	Op  string
	Err error
}

func (e *StorageCorruptionError) Error() string {
	return fmt.Sprintf("storage corruption (%s): %v", e.Op, e.Err)
}

func (e *StorageCorruptionError) Unwrap() error { return ErrRebuildRequested }

// IllegalChunkError wraps ErrIllegalChunk, naming the offending target.
type IllegalChunkError struct {
	Target string
}

func (e *IllegalChunkError) Error() string {
	return fmt.Sprintf("Cannot build %s because it is included into a circular dependency", e.Target)
}

func (e *IllegalChunkError) Unwrap() error { return ErrIllegalChunk }

// BuildError is the catch-all for an uncaught builder exception or ERROR
// message, composed into a compiler-message-shaped error.
type BuildError struct {
	Message string
	Cause   error
}

func (e *BuildError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *BuildError) Unwrap() error { return e.Cause }

// isStorageCorruption reports whether err (or any error in its Unwrap
// chain) indicates persistent-storage corruption, matching the "Data
// corruption" classification.
func isStorageCorruption(err error) bool {
	for err != nil {
		if _, ok := err.(*StorageCorruptionError); ok {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
