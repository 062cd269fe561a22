//go:build linux

package stats

import "golang.org/x/sys/unix"

// getAdjustedLoad returns the 1-minute load average via sysinfo(2).
func getAdjustedLoad() (float64, error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0, err
	}
	// Loads are fixed-point, scaled by 2^16
	return float64(info.Loads[0]) / 65536.0, nil
}

// getSwapUsage returns swap usage as a percentage (0-100) via
// sysinfo(2). Returns 0 if no swap is configured.
func getSwapUsage() (int, error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return 0, err
	}
	total := uint64(info.Totalswap) * uint64(info.Unit)
	if total == 0 {
		return 0, nil
	}
	free := uint64(info.Freeswap) * uint64(info.Unit)
	used := total - free
	return int(used * 100 / total), nil
}
