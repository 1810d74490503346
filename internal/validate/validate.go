// Package validate rejects malformed execution requests before any
// process is spawned.
package validate

import (
	"fmt"
	"sort"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/programme-lv/sandbox/api"
	"github.com/programme-lv/sandbox/internal"
	"github.com/programme-lv/sandbox/internal/lang"
)

// Violations is the list of reasons a request was rejected.
type Violations []string

func (v Violations) Error() string {
	return "invalid request: " + strings.Join(v, "; ")
}

// Caps bound every request. Limits above a ceiling are rejected.
type Caps struct {
	MaxCodeBytes       int
	MaxTestCases       int
	MaxTimeLimitMs     int
	MaxMemoryMb        int
	DefaultTimeLimitMs int
	DefaultMemoryMb    int
}

func DefaultCaps() Caps {
	return Caps{
		MaxCodeBytes:       50_000,
		MaxTestCases:       100,
		MaxTimeLimitMs:     10_000,
		MaxMemoryMb:        512,
		DefaultTimeLimitMs: 5_000,
		DefaultMemoryMb:    256,
	}
}

// DefaultDenylist holds substrings associated with process or
// filesystem escape. Matching is advisory and not a security boundary.
func DefaultDenylist() []string {
	return []string{
		"import os",
		"import subprocess",
		"eval(",
		"exec(",
		"__import__",
		"open(",
		"file(",
		"System.exit",
		"Runtime.getRuntime",
		"ProcessBuilder",
		"system(",
		"popen(",
		"fork(",
		"execve(",
	}
}

type Languages interface {
	Get(id string) (lang.Language, error)
}

type Validator struct {
	langs    Languages
	caps     Caps
	denylist mapset.Set[string]
}

type Option func(*Validator)

func WithCaps(c Caps) Option {
	return func(v *Validator) { v.caps = c }
}

// WithDenylist replaces the default denylist. An empty list disables
// the check.
func WithDenylist(tokens []string) Option {
	return func(v *Validator) { v.denylist = mapset.NewSet(tokens...) }
}

func New(langs Languages, opts ...Option) *Validator {
	v := &Validator{
		langs:    langs,
		caps:     DefaultCaps(),
		denylist: mapset.NewSet(DefaultDenylist()...),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *Validator) Caps() Caps {
	return v.caps
}

// Validate checks req and returns a normalized copy. The error, when
// not nil, is always Violations.
func (v *Validator) Validate(req api.ExecReq) (internal.Request, error) {
	var errs Violations

	if _, err := v.langs.Get(req.Language); err != nil {
		errs = append(errs, fmt.Sprintf("unsupported language: %q", req.Language))
	}

	switch {
	case strings.TrimSpace(req.Code) == "":
		errs = append(errs, "code must not be empty")
	case len(req.Code) > v.caps.MaxCodeBytes:
		errs = append(errs, fmt.Sprintf("code is %d bytes, at most %d allowed", len(req.Code), v.caps.MaxCodeBytes))
	}

	switch n := len(req.TestCases); {
	case n == 0:
		errs = append(errs, "at least one test case is required")
	case n > v.caps.MaxTestCases:
		errs = append(errs, fmt.Sprintf("%d test cases given, at most %d allowed", n, v.caps.MaxTestCases))
	}

	for i, tc := range req.TestCases {
		if tc.Weight != nil && *tc.Weight < 0 {
			errs = append(errs, fmt.Sprintf("testcases[%d].weight must not be negative", i))
		}
	}

	timeMs := req.Limits.TimeLimitMs
	switch {
	case timeMs < 0:
		errs = append(errs, "time_limit_ms must not be negative")
	case timeMs > v.caps.MaxTimeLimitMs:
		errs = append(errs, fmt.Sprintf("time_limit_ms %d exceeds ceiling of %d", timeMs, v.caps.MaxTimeLimitMs))
	case timeMs == 0:
		timeMs = v.caps.DefaultTimeLimitMs
	}

	memMb := req.Limits.MemoryMb
	switch {
	case memMb < 0:
		errs = append(errs, "memory_mb must not be negative")
	case memMb > v.caps.MaxMemoryMb:
		errs = append(errs, fmt.Sprintf("memory_mb %d exceeds ceiling of %d", memMb, v.caps.MaxMemoryMb))
	case memMb == 0:
		memMb = v.caps.DefaultMemoryMb
	}

	errs = append(errs, v.scan(req.Code)...)

	if len(errs) > 0 {
		return internal.Request{}, errs
	}

	tests := make([]internal.TestCase, 0, len(req.TestCases))
	for _, tc := range req.TestCases {
		var w *float64
		if tc.Weight != nil {
			wv := *tc.Weight
			w = &wv
		}
		tests = append(tests, internal.TestCase{
			Input:    tc.Input,
			Expected: tc.ExpectedOutput,
			Weight:   w,
			Hidden:   tc.Hidden,
		})
	}

	return internal.Request{
		Language:  req.Language,
		Code:      req.Code,
		TestCases: tests,
		Limits: internal.Limits{
			Time:     time.Duration(timeMs) * time.Millisecond,
			MemoryMB: memMb,
		},
	}, nil
}

func (v *Validator) scan(code string) Violations {
	tokens := v.denylist.ToSlice()
	sort.Strings(tokens)
	var errs Violations
	for _, tok := range tokens {
		if tok != "" && strings.Contains(code, tok) {
			errs = append(errs, fmt.Sprintf("code contains forbidden pattern %q", tok))
		}
	}
	return errs
}
