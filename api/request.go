package api

// ExecReq is a synchronous execution request.
type ExecReq struct {
	Language  string     `json:"language"`
	Code      string     `json:"code"`
	TestCases []TestCase `json:"testcases"`
	Limits    Limits     `json:"constraints"`

	// StreamInbox, when set, receives progress events while the request
	// is being evaluated.
	StreamInbox string `json:"stream_inbox,omitempty"`
}

type TestCase struct {
	Input          string   `json:"input"`
	ExpectedOutput string   `json:"expected_output"`
	Weight         *float64 `json:"weight,omitempty"`
	Hidden         bool     `json:"hidden,omitempty"`
}

// Limits with zero values fall back to server defaults.
type Limits struct {
	TimeLimitMs int `json:"time_limit_ms"`
	MemoryMb    int `json:"memory_mb"`
}
