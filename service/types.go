package service

import (
	"time"

	"forge/builddb"
	"forge/driver"
)

// BuildOptions contains options for the Build service.
type BuildOptions struct {
	TargetList         []string           // targets to build ("group/name")
	Force              bool               // force rebuild even if up-to-date
	JustBuild          bool               // skip pre-build checks
	TestMode           bool               // enable deterministic test-mode behavior
	EnvironmentBackend string             // environment.New backend name; defaults to "sandbox" on unix, "mock" elsewhere
	Bus                *driver.MessageBus // optional externally-owned bus a caller can subscribe UI to before Build(); a private bus is used if nil
}

// BuildStats summarizes one driver.Lifecycle invocation for CLI/API display.
type BuildStats struct {
	Total    int           // targets considered
	Success  int           // builder invocations that reported OK
	Failed   int           // ERROR compiler messages emitted
	Skipped  int           // targets already up to date
	Duration time.Duration // wall-clock duration of the invocation
}

// BuildResult contains the results of a build operation.
type BuildResult struct {
	Stats     *BuildStats      // build statistics
	Targets   []*driver.Target // all targets (including dependencies)
	NeedBuild int              // number of targets that were stale
	Duration  time.Duration    // total build duration
	Cleanup   func()           // cleanup function for caller to manage worker environments
}

// InitOptions contains options for the Initialize service.
type InitOptions struct {
	AutoMigrate bool // automatically migrate legacy CRC data if found
}

// InitResult contains the results of an initialization operation.
type InitResult struct {
	DirsCreated         []string // directories created
	DatabaseInitialized bool     // whether the database was initialized
	MigrationNeeded     bool     // whether legacy CRC migration is needed
	MigrationPerformed  bool     // whether migration was performed
	TargetsFound        int      // buildable targets found in the project tree
	Warnings            []string // non-fatal warnings
}

// StatusOptions contains options for the GetStatus service.
type StatusOptions struct {
	TargetList []string // targets to check status for (empty = database totals only)
}

// StatusResult contains the results of a status query.
type StatusResult struct {
	Targets      []TargetStatus   // status of individual targets
	DatabaseSize int64            // size of BuildDB in bytes
	Stats        *builddb.DBStats // database statistics
}

// TargetStatus contains status information for a single target.
type TargetStatus struct {
	TargetID   string               // target ID ("group/name")
	Version    string               // target version
	LastBuild  *builddb.BuildRecord // most recent build record (nil if never built)
	NeedsBuild bool                 // whether the target is stale
	CRC        uint32               // current source tree CRC
}

// CleanupOptions contains options for the Cleanup service.
type CleanupOptions struct {
	Force bool // force cleanup even if worker scratch dirs look in use
}

// CleanupResult contains the results of a cleanup operation.
type CleanupResult struct {
	WorkersCleaned int     // number of worker scratch dirs removed
	Errors         []error // non-fatal errors encountered
}

// DatabaseOptions contains options for database operations.
type DatabaseOptions struct {
	Backup bool // create backup before operation
	Force  bool // force operation without confirmation
}
