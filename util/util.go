// Package util holds small filesystem helpers shared by the service and
// environment layers: directory/file existence checks, directory creation,
// and file copies that shell out to cp so permissions and ACLs survive the
// copy the way a plain io.Copy wouldn't.
package util

import (
	"fmt"
	"os"
	"os/exec"
)

// FileExists reports whether path exists and is not a directory.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// DirExists reports whether path exists and is a directory.
func DirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// CopyFile copies a single file from src to dst, preserving mode and
// timestamps.
func CopyFile(src, dst string) error {
	cmd := exec.Command("cp", "-p", src, dst)
	return cmd.Run()
}

// CopyDir recursively copies a directory tree from src to dst, preserving
// mode and timestamps.
func CopyDir(src, dst string) error {
	cmd := exec.Command("cp", "-Rp", src, dst)
	return cmd.Run()
}

// EnsureDir creates path and any missing parents with the default
// directory mode.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// FormatBytes formats a byte count as a human-readable string (B/KB/MB/...).
func FormatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
		if exp >= 5 { // limit to PB
			break
		}
	}
	units := "KMGTPE"
	if exp >= len(units) {
		exp = len(units) - 1
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), units[exp])
}
