package sandbox

import "time"

type Constraints struct {
	WallTime time.Duration
	// OutputLimit caps stdout and stderr separately, in bytes.
	OutputLimit int
	// MemoryKiB is advisory. It is reported against, never enforced.
	MemoryKiB int64
	// Env replaces the default environment when not nil.
	Env []string
}

const DefaultOutputLimit = 1 << 20

func DefaultConstraints() Constraints {
	return Constraints{
		WallTime:    5 * time.Second,
		OutputLimit: DefaultOutputLimit,
		MemoryKiB:   256 * 1024,
	}
}
