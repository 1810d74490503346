package api

// RuntimeData is a trimmed view of one process run used in progress events.
type RuntimeData struct {
	Stdin    string `json:"in"`
	Stdout   string `json:"out"`
	Stderr   string `json:"err"`
	ExitCode int    `json:"exit"`

	CpuMillis  int64 `json:"cpu_ms"`
	WallMillis int64 `json:"wall_ms"`
	RamKiBytes int64 `json:"ram_kib"`

	ExitSignal *int `json:"signal"`
	TimedOut   bool `json:"timed_out"`
	Truncated  bool `json:"truncated"`
}
