package guard

import (
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// startTolerance absorbs the ~1s granularity of process start times and the
// delay between queueing a run and spawning its executor
const startTolerance = 5 * time.Second

// executorAlive reports whether pid is still the executor of a run that was
// started (or queued) at since. A pid created after that has been recycled.
// When the process table cannot be read the executor is assumed alive.
func executorAlive(pid int, since time.Time) bool {
	exists, err := process.PidExists(int32(pid))
	if err != nil {
		return true
	}
	if !exists {
		return false
	}

	proc, err := process.NewProcess(int32(pid))
	if err != nil {
		return true
	}
	createdMs, err := proc.CreateTime()
	if err != nil {
		return true
	}

	created := time.UnixMilli(createdMs)
	return !created.After(since.Add(startTolerance))
}
