//go:build linux

package power

import (
	"time"

	"golang.org/x/sys/unix"
)

// systemClocks reads CLOCK_BOOTTIME, which keeps counting while the host is
// asleep, and CLOCK_MONOTONIC, which does not.
type systemClocks struct{}

func (systemClocks) Read() (boot, mono time.Duration, err error) {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_BOOTTIME, &ts); err != nil {
		return 0, 0, err
	}
	boot = time.Duration(ts.Nano())
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return 0, 0, err
	}
	mono = time.Duration(ts.Nano())
	return boot, mono, nil
}
