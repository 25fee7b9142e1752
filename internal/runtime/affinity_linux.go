//go:build linux

package runtime

import (
	goruntime "runtime"

	"golang.org/x/sys/unix"
)

// pin, when affinity is non-empty, locks the calling goroutine to its OS
// thread and sets that thread's CPU affinity to affinity[idx % len(affinity)].
// With an empty affinity it does nothing.
func pin(affinity []int, idx int) {
	if len(affinity) == 0 {
		return
	}
	goruntime.LockOSThread()

	cpu := affinity[idx%len(affinity)]
	var mask unix.CPUSet
	mask.Set(cpu)
	_ = unix.SchedSetaffinity(0, &mask)
}
