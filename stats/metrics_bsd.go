//go:build dragonfly || freebsd

package stats

import (
	"encoding/binary"

	"golang.org/x/sys/unix"
)

// getAdjustedLoad returns the 1-minute load average read from the
// vm.loadavg sysctl. The kernel exports struct loadavg: three
// fixed-point samples followed by the scale factor.
func getAdjustedLoad() (float64, error) {
	raw, err := unix.SysctlRaw("vm.loadavg")
	if err != nil {
		return 0, err
	}
	if len(raw) < 16 {
		return 0, unix.EINVAL
	}

	sample := binary.LittleEndian.Uint32(raw[0:4])

	// fscale is a C long: 8 bytes (offset 16, after padding) on 64-bit,
	// 4 bytes (offset 12) on 32-bit.
	var fscale uint64
	if len(raw) >= 24 {
		fscale = binary.LittleEndian.Uint64(raw[16:24])
	} else {
		fscale = uint64(binary.LittleEndian.Uint32(raw[12:16]))
	}
	if fscale == 0 {
		return 0, unix.EINVAL
	}

	return float64(sample) / float64(fscale), nil
}

// getSwapUsage returns swap usage as a percentage (0-100). DragonFly
// exports page counts directly via sysctl; on kernels without those
// nodes the sampler reports 0 and the throttler's swap cap stays
// inactive.
func getSwapUsage() (int, error) {
	total, err := unix.SysctlUint32("vm.swap_size")
	if err != nil || total == 0 {
		return 0, nil
	}

	anon, err := unix.SysctlUint32("vm.swap_anon_use")
	if err != nil {
		return 0, nil
	}
	cache, _ := unix.SysctlUint32("vm.swap_cache_use")

	used := uint64(anon) + uint64(cache)
	return int(used * 100 / uint64(total)), nil
}
