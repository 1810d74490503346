// Package behave runs behaviour scenarios described in TOML against the
// sandbox and compares the verdicts with the expected ones.
package behave

import (
	"context"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/programme-lv/sandbox/api"
	"github.com/programme-lv/sandbox/internal/lang"
)

// SpecTest is a single test case in the behaviour file
type SpecTest struct {
	In     string   `toml:"in"`
	Ans    string   `toml:"ans"`
	Weight *float64 `toml:"weight"`
	Hidden bool     `toml:"hidden"`
}

// SpecLanguage references a language by id, provides one inline, or both
// (inline fields override the referenced ones).
type SpecLanguage struct {
	LangID        string `toml:"lang_id"`
	LangName      string `toml:"lang_name"`
	CodeFname     string `toml:"code_fname"`
	CompileCmd    string `toml:"compile_cmd"`
	CompiledFname string `toml:"compiled_fname"`
	ExecCmd       string `toml:"exec_cmd"`
}

func (l SpecLanguage) inline() bool {
	return l.LangName != "" || l.CodeFname != "" || l.CompileCmd != "" || l.CompiledFname != "" || l.ExecCmd != ""
}

type SpecRequest struct {
	Code     string       `toml:"code"`
	Tests    []SpecTest   `toml:"tests"`
	Language SpecLanguage `toml:"language"`
	Limits   SpecLimits   `toml:"limits"`
}

type SpecLimits struct {
	TimeMs   int `toml:"time_ms"`
	MemoryMb int `toml:"memory_mb"`
}

type SpecTestVerdict struct {
	Verdict string `toml:"verdict"`
}

// SpecExpect describes expected overall status and per-test verdicts
type SpecExpect struct {
	Status      string            `toml:"status"`
	Passed      *int              `toml:"passed"`
	TestResults []SpecTestVerdict `toml:"test_results"`
}

// specSuite maps to [[scenarios]] entries. The request is an
// array-of-tables; only the first element is used.
type specSuite struct {
	Description string        `toml:"description"`
	RequestAOT  []SpecRequest `toml:"request"`
	Expect      SpecExpect    `toml:"expect"`
}

type specRoot struct {
	Suites    []specSuite     `toml:"scenarios"`
	Languages []lang.Language `toml:"languages"`
}

// Case is a runnable scenario converted from TOML
type Case struct {
	Name    string
	Request api.ExecReq
	// Language is set when the scenario brings its own language, which
	// must be registered before the request is run.
	Language *lang.Language
	Expect   SpecExpect
}

// Parse reads a behaviour TOML file and converts it to runnable cases.
func Parse(path string) ([]Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read behaviour file: %w", err)
	}
	return ParseBytes(data)
}

func ParseBytes(data []byte) ([]Case, error) {
	var root specRoot
	if err := toml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse TOML: %w", err)
	}

	fileLangs := make(map[string]lang.Language, len(root.Languages))
	for _, l := range root.Languages {
		if l.ID != "" {
			fileLangs[l.ID] = l
		}
	}

	cases := make([]Case, 0, len(root.Suites))
	for i, suite := range root.Suites {
		if len(suite.RequestAOT) == 0 {
			return nil, fmt.Errorf("scenario %q is missing request block", suite.Description)
		}
		spec := suite.RequestAOT[0]

		c := Case{Name: suite.Description, Expect: suite.Expect}
		langID, own, err := resolveLanguage(i, spec.Language, fileLangs)
		if err != nil {
			return nil, fmt.Errorf("scenario %q: %w", suite.Description, err)
		}
		c.Language = own

		tests := make([]api.TestCase, 0, len(spec.Tests))
		for _, t := range spec.Tests {
			tests = append(tests, api.TestCase{
				Input:          t.In,
				ExpectedOutput: t.Ans,
				Weight:         t.Weight,
				Hidden:         t.Hidden,
			})
		}

		timeMs := spec.Limits.TimeMs
		if timeMs == 0 {
			timeMs = 2000
		}
		memMb := spec.Limits.MemoryMb
		if memMb == 0 {
			memMb = 256
		}

		c.Request = api.ExecReq{
			Language:  langID,
			Code:      spec.Code,
			TestCases: tests,
			Limits:    api.Limits{TimeLimitMs: timeMs, MemoryMb: memMb},
		}
		cases = append(cases, c)
	}
	return cases, nil
}

// resolveLanguage returns the id to request and, when the scenario
// defines its own language, that language. A bare lang_id that is not in
// the file refers to a built-in language.
func resolveLanguage(idx int, spec SpecLanguage, fileLangs map[string]lang.Language) (string, *lang.Language, error) {
	base, inFile := fileLangs[spec.LangID]
	if !spec.inline() {
		if spec.LangID == "" {
			return "", nil, fmt.Errorf("language is not specified")
		}
		if inFile {
			return base.ID, &base, nil
		}
		return spec.LangID, nil, nil
	}

	if spec.LangID != "" && !inFile {
		return "", nil, fmt.Errorf("unknown language id: %s", spec.LangID)
	}
	eff := base
	eff.ID = fmt.Sprintf("scenario-%d", idx+1)
	if spec.LangName != "" {
		eff.Name = spec.LangName
	}
	if spec.CodeFname != "" {
		eff.CodeFname = spec.CodeFname
	}
	if spec.CompileCmd != "" {
		eff.CompileCmd = spec.CompileCmd
	}
	if spec.CompiledFname != "" {
		eff.CompiledFname = spec.CompiledFname
	}
	if spec.ExecCmd != "" {
		eff.ExecCmd = spec.ExecCmd
	}
	if eff.Name == "" || eff.CodeFname == "" || eff.ExecCmd == "" {
		return "", nil, fmt.Errorf("language specification incomplete; require lang_name, code_fname, exec_cmd (lang_id=%q)", spec.LangID)
	}
	return eff.ID, &eff, nil
}

// Check lists how resp differs from the expectation. An empty result
// means the scenario passed.
func (c Case) Check(resp api.ExecResponse) []string {
	var diffs []string
	if c.Expect.Status != "" && string(resp.Status) != c.Expect.Status {
		diffs = append(diffs, fmt.Sprintf("status: expected %s, got %s", c.Expect.Status, resp.Status))
	}
	if c.Expect.Passed != nil && resp.Passed != *c.Expect.Passed {
		diffs = append(diffs, fmt.Sprintf("passed: expected %d, got %d", *c.Expect.Passed, resp.Passed))
	}
	if len(c.Expect.TestResults) == 0 {
		return diffs
	}
	if len(resp.Details) != len(c.Expect.TestResults) {
		diffs = append(diffs, fmt.Sprintf("test results: expected %d, got %d", len(c.Expect.TestResults), len(resp.Details)))
	}
	for i, want := range c.Expect.TestResults {
		if i >= len(resp.Details) {
			break
		}
		if got := string(resp.Details[i].Status); got != want.Verdict {
			diffs = append(diffs, fmt.Sprintf("test %d: expected %s, got %s", i+1, want.Verdict, got))
		}
	}
	return diffs
}

type Runner interface {
	Run(ctx context.Context, req api.ExecReq) api.ExecResponse
}

type Registry interface {
	Register(l lang.Language) error
}

// Report is the outcome of one scenario.
type Report struct {
	Case     Case
	Response api.ExecResponse
	Diffs    []string
}

func (r Report) Passed() bool {
	return len(r.Diffs) == 0
}

// RunAll registers scenario languages in reg and runs every case in order.
func RunAll(ctx context.Context, cases []Case, reg Registry, runner Runner) ([]Report, error) {
	reports := make([]Report, 0, len(cases))
	for _, c := range cases {
		if c.Language != nil {
			if err := reg.Register(*c.Language); err != nil {
				return reports, fmt.Errorf("scenario %q: %w", c.Name, err)
			}
		}
		resp := runner.Run(ctx, c.Request)
		reports = append(reports, Report{Case: c, Response: resp, Diffs: c.Check(resp)})
	}
	return reports, nil
}
