//go:build linux

package scheduler

import (
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/sys/unix"
)

// pin binds the calling OS thread to a CPU and lowers its nice value by priority.
// The caller must hold runtime.LockOSThread.
func pin(core, priority int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(core % runtime.NumCPU())

	var errs []error
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		errs = append(errs, fmt.Errorf("affinity: %w", err))
	}

	if priority != 0 {
		if err := unix.Setpriority(unix.PRIO_PROCESS, unix.Gettid(), -priority); err != nil {
			errs = append(errs, fmt.Errorf("priority: %w", err))
		}
	}

	return errors.Join(errs...)
}
