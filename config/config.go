package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
	"gopkg.in/ini.v1"
)

// Config holds all forge configuration
type Config struct {
	// Paths
	ConfigPath    string // directory the active forge.ini was loaded from
	TreePath      string // project tree root; targets live at <tree>/<group>/<name>
	ArtifactsPath string // repository of produced build artifacts
	BuildBase     string // scratch base: work dirs, logs, database
	DownloadsPath string // cache of fetched sources
	LogsPath      string
	SystemPath    string // system root the build environment is provisioned from
	CCachePath    string

	// Build settings
	MaxWorkers    int // worker pool size for parallel chunk builds
	MaxJobs       int // jobs passed to each target's build phases
	SlowStart     int // stagger worker startup by this many seconds
	UseCCache     bool
	UseTmpfs      bool // back work directories with tmpfs
	TmpfsWorkSize string

	// Behavior
	Debug                  bool
	Force                  bool
	YesAll                 bool
	DevMode                bool
	DisableUI              bool
	ParallelBuild          bool // run independent chunks concurrently
	GenerateClasspathIndex bool // emit a classpath index next to module outputs

	// Profile
	Profile string

	// Migration controls legacy CRC-index migration into the build database.
	Migration MigrationConfig

	// Database controls the build database location.
	Database DatabaseConfig
}

// MigrationConfig controls legacy CRC-index migration behavior.
type MigrationConfig struct {
	AutoMigrate  bool
	BackupLegacy bool
}

// DatabaseConfig controls the build database location.
type DatabaseConfig struct {
	Path       string
	AutoVacuum bool
}

// LoadConfig loads configuration from file
func LoadConfig(configDir string, profile string) (*Config, error) {
	cfg := &Config{
		MaxWorkers:    runtime.NumCPU(),
		MaxJobs:       1,
		SlowStart:     0,
		Profile:       profile,
		BuildBase:     "/build/forge",
		SystemPath:    "/",
		UseCCache:     false,
		UseTmpfs:      true,
		ParallelBuild: true,
		TmpfsWorkSize: "64g",
	}

	if cfg.MaxWorkers > 16 {
		cfg.MaxWorkers = 16
	}
	if cfg.MaxWorkers < 1 {
		cfg.MaxWorkers = 1
	}

	// Determine config path
	if configDir == "" {
		if _, err := os.Stat("/etc/forge"); err == nil {
			configDir = "/etc/forge"
		} else if _, err := os.Stat("/usr/local/etc/forge"); err == nil {
			configDir = "/usr/local/etc/forge"
		} else {
			configDir = "/etc/forge"
		}
	}
	cfg.ConfigPath = configDir

	// Load config file if it exists
	configFile := filepath.Join(configDir, "forge.ini")
	if _, err := os.Stat(configFile); err == nil {
		if err := cfg.parseINI(configFile); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	// Apply defaults for unset paths
	if cfg.BuildBase == "" {
		cfg.BuildBase = "/build/forge"
	}
	if cfg.TreePath == "" {
		cfg.TreePath = "/usr/projects"
	}
	if cfg.ArtifactsPath == "" {
		cfg.ArtifactsPath = cfg.BuildBase + "/artifacts"
	}
	if cfg.DownloadsPath == "" {
		cfg.DownloadsPath = cfg.BuildBase + "/downloads"
	}
	if cfg.LogsPath == "" {
		cfg.LogsPath = cfg.BuildBase + "/logs"
	}
	if cfg.CCachePath == "" {
		cfg.CCachePath = cfg.BuildBase + "/ccache"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = cfg.BuildBase + "/forge.db"
	}

	return cfg, nil
}

// parseINI parses an INI-format configuration file via gopkg.in/ini.v1.
// The unnamed default section applies first; if cfg.Profile is empty it is
// taken from Global Configuration's profile_selected; a section matching
// cfg.Profile (case-insensitive) then overrides, and Global Configuration
// is applied last so it wins over per-profile values.
func (cfg *Config) parseINI(filename string) error {
	f, err := ini.Load(filename)
	if err != nil {
		return err
	}

	cfg.applySection(f.Section(ini.DefaultSection))

	global := f.Section("Global Configuration")
	if cfg.Profile == "" {
		if k, err := global.GetKey("profile_selected"); err == nil {
			cfg.Profile = k.Value()
		}
	}

	if cfg.Profile != "" {
		for _, sec := range f.Sections() {
			if strings.EqualFold(sec.Name(), cfg.Profile) {
				cfg.applySection(sec)
			}
		}
	}

	// Global Configuration applies last so it overrides any conflicting
	// per-profile value.
	cfg.applySection(global)

	return nil
}

func (cfg *Config) applySection(sec *ini.Section) {
	for _, key := range sec.Keys() {
		cfg.setConfigValue(key.Name(), key.Value())
	}
}

func (cfg *Config) setConfigValue(key, value string) {
	// Normalize key (replace _ with space, lowercase, etc.)
	key = strings.ToLower(key)
	key = strings.ReplaceAll(key, "_", "")
	key = strings.ReplaceAll(key, " ", "")

	switch key {
	case "profileselected":
		if cfg.Profile == "" {
			cfg.Profile = value
		}
	case "numberofworkers", "workers", "builders":
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			cfg.MaxWorkers = n
		}
	case "maxjobs", "jobs", "maxjobsperworker":
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			cfg.MaxJobs = n
		}
	case "slowstart":
		if n, err := strconv.Atoi(value); err == nil && n >= 0 {
			cfg.SlowStart = n
		}
	case "directorytree", "treedir", "projecttree":
		cfg.TreePath = value
	case "directoryartifacts", "artifacts":
		cfg.ArtifactsPath = value
	case "directorybuildbase", "buildbase":
		cfg.BuildBase = value
	case "directorydownloads", "downloads":
		cfg.DownloadsPath = value
	case "directorylogs", "logs":
		cfg.LogsPath = value
	case "directorysystem", "systempath":
		cfg.SystemPath = value
	case "directoryccache", "ccachedir", "ccache":
		cfg.CCachePath = value
		cfg.UseCCache = true
	case "useccache":
		cfg.UseCCache = parseBool(value)
	case "usetmpfs", "tmpfsworkdir":
		cfg.UseTmpfs = parseBool(value)
	case "tmpfsworksize":
		cfg.TmpfsWorkSize = value
	case "parallelbuild", "compileparallel":
		cfg.ParallelBuild = parseBool(value)
	case "generateclasspathindex":
		cfg.GenerateClasspathIndex = parseBool(value)
	case "displaywithncurses":
		cfg.DisableUI = !parseBool(value)
	case "databasepath":
		cfg.Database.Path = value
	case "databaseautovacuum":
		cfg.Database.AutoVacuum = parseBool(value)
	case "migrationautomigrate":
		cfg.Migration.AutoMigrate = parseBool(value)
	case "migrationbackuplegacy":
		cfg.Migration.BackupLegacy = parseBool(value)
	}
}

func parseBool(value string) bool {
	value = strings.ToLower(value)
	return value == "yes" || value == "true" || value == "1" || value == "on"
}

// WriteDefaultConfig writes a default configuration file
func WriteDefaultConfig(filename string, cfg *Config) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	fmt.Fprintln(file, "# forge configuration file")
	fmt.Fprintln(file, "# See forge(1) for details")
	fmt.Fprintln(file, "")
	fmt.Fprintln(file, "[Global Configuration]")
	fmt.Fprintln(file, "")
	fmt.Fprintln(file, "# Number of build workers")
	fmt.Fprintf(file, "Number_of_workers=%d\n", cfg.MaxWorkers)
	fmt.Fprintln(file, "")
	fmt.Fprintln(file, "# Maximum jobs per worker")
	fmt.Fprintf(file, "Max_jobs=%d\n", cfg.MaxJobs)
	fmt.Fprintln(file, "")
	fmt.Fprintln(file, "# Directory paths")
	fmt.Fprintf(file, "Directory_tree=%s\n", cfg.TreePath)
	fmt.Fprintf(file, "Directory_buildbase=%s\n", cfg.BuildBase)
	fmt.Fprintf(file, "Directory_artifacts=%s\n", cfg.ArtifactsPath)
	fmt.Fprintf(file, "Directory_downloads=%s\n", cfg.DownloadsPath)
	fmt.Fprintf(file, "Directory_logs=%s\n", cfg.LogsPath)
	fmt.Fprintln(file, "")
	fmt.Fprintln(file, "# System path (use / for native)")
	fmt.Fprintf(file, "System_path=%s\n", cfg.SystemPath)
	fmt.Fprintln(file, "")
	fmt.Fprintln(file, "# Run independent chunks in parallel")
	fmt.Fprintf(file, "Parallel_build=%v\n", cfg.ParallelBuild)
	fmt.Fprintln(file, "")
	fmt.Fprintln(file, "# Use tmpfs for work directories")
	fmt.Fprintf(file, "Use_tmpfs=%v\n", cfg.UseTmpfs)
	fmt.Fprintf(file, "Tmpfs_worksize=%s\n", cfg.TmpfsWorkSize)
	fmt.Fprintln(file, "")
	fmt.Fprintln(file, "# Use ccache")
	fmt.Fprintf(file, "Use_ccache=%v\n", cfg.UseCCache)
	if cfg.UseCCache {
		fmt.Fprintf(file, "Ccache_dir=%s\n", cfg.CCachePath)
	}
	fmt.Fprintln(file, "")

	return nil
}

// SaveConfig writes cfg to filename as an INI file under a single Global
// Configuration section, via gopkg.in/ini.v1, and updates cfg.ConfigPath to
// filename.
func SaveConfig(filename string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return err
	}

	f := ini.Empty()
	sec, err := f.NewSection("Global Configuration")
	if err != nil {
		return err
	}

	set := func(key, value string) {
		sec.Key(key).SetValue(value)
	}
	setBool := func(key string, value bool) {
		if value {
			set(key, "yes")
		} else {
			set(key, "no")
		}
	}

	set("Directory_buildbase", cfg.BuildBase)
	set("Directory_tree", cfg.TreePath)
	set("Directory_artifacts", cfg.ArtifactsPath)
	set("Directory_downloads", cfg.DownloadsPath)
	set("Directory_logs", cfg.LogsPath)
	set("Directory_system", cfg.SystemPath)
	if cfg.UseCCache {
		set("Directory_ccache", cfg.CCachePath)
	}
	set("Number_of_workers", strconv.Itoa(cfg.MaxWorkers))
	set("Max_jobs_per_worker", strconv.Itoa(cfg.MaxJobs))
	setBool("Use_ccache", cfg.UseCCache)
	setBool("Parallel_build", cfg.ParallelBuild)
	setBool("Generate_classpath_index", cfg.GenerateClasspathIndex)
	setBool("Tmpfs_workdir", cfg.UseTmpfs)
	if cfg.TmpfsWorkSize != "" {
		set("Tmpfs_worksize", cfg.TmpfsWorkSize)
	}
	setBool("Display_with_ncurses", !cfg.DisableUI)
	if cfg.Database.Path != "" {
		set("Database_path", cfg.Database.Path)
	}
	setBool("Database_autovacuum", cfg.Database.AutoVacuum)
	setBool("Migration_automigrate", cfg.Migration.AutoMigrate)
	setBool("Migration_backuplegacy", cfg.Migration.BackupLegacy)

	if err := f.SaveTo(filename); err != nil {
		return err
	}

	cfg.ConfigPath = filename
	return nil
}

// Validate checks configuration validity
func (cfg *Config) Validate() error {
	// Check required paths exist or can be created
	requiredDirs := map[string]string{
		"BuildBase":     cfg.BuildBase,
		"TreePath":      cfg.TreePath,
		"ArtifactsPath": cfg.ArtifactsPath,
		"DownloadsPath": cfg.DownloadsPath,
	}

	for name, path := range requiredDirs {
		if path == "" {
			return fmt.Errorf("%s is not configured", name)
		}

		// Check if exists or is creatable
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				// Try to create it
				if err := os.MkdirAll(path, 0755); err != nil {
					return fmt.Errorf("%s directory %s cannot be created: %w", name, path, err)
				}
			} else {
				return fmt.Errorf("%s directory %s: %w", name, path, err)
			}
		} else if !info.IsDir() {
			return fmt.Errorf("%s path %s is not a directory", name, path)
		}
	}

	// Validate workers count
	if cfg.MaxWorkers < 1 {
		return fmt.Errorf("MaxWorkers must be at least 1")
	}
	if cfg.MaxWorkers > 1024 {
		return fmt.Errorf("MaxWorkers is too large (max 1024)")
	}

	return nil
}

// GetSystemInfo returns system information
func GetSystemInfo() (osname, osversion, arch string, ncpus int) {
	// Get OS information
	var utsname unix.Utsname
	if err := unix.Uname(&utsname); err == nil {
		osname = string(utsname.Sysname[:])
		osversion = string(utsname.Release[:])
		arch = string(utsname.Machine[:])
		// Trim null bytes
		osname = strings.TrimRight(osname, "\x00")
		osversion = strings.TrimRight(osversion, "\x00")
		arch = strings.TrimRight(arch, "\x00")
	}

	ncpus = runtime.NumCPU()

	return
}

// globalConfig is the process-wide active configuration, set once at
// startup by the CLI entrypoint and read by code that doesn't carry a
// *Config of its own (e.g. package-level helpers invoked from tests).
var globalConfig *Config

// SetConfig installs cfg as the process-wide active configuration.
func SetConfig(cfg *Config) { globalConfig = cfg }

// GetConfig returns the process-wide active configuration, or nil if
// SetConfig has not been called.
func GetConfig() *Config { return globalConfig }
