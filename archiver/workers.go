package archiver

import (
	"runtime"

	"github.com/pbnjay/memory"
)

const (
	// Used when an archive size limit is not configured.
	assumedArchiveSize = 1 << 30

	minWorkers = 1
)

// Picks a worker count for a machine. Every worker holds one archive in
// memory plus the object being added to it, so the count is bounded by a
// quarter of physical memory divided by twice the archive limit, and by
// four workers per CPU since workers mostly wait on the network.
func autoWorkers(maxArchiveSize int64) int {
	per := uint64(assumedArchiveSize)
	if maxArchiveSize > 0 {
		per = uint64(maxArchiveSize)
	}
	per *= 2
	n := int(memory.TotalMemory() / 4 / per)
	if limit := runtime.NumCPU() * 4; n > limit {
		n = limit
	}
	if n < minWorkers {
		n = minWorkers
	}
	return n
}
