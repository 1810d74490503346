// Package respbuilder converts evaluation results to api responses.
package respbuilder

import (
	"github.com/programme-lv/sandbox/api"
	"github.com/programme-lv/sandbox/internal"
)

// Build maps a finished evaluation to the synchronous response. Output of
// hidden test cases is withheld.
func Build(res *internal.Result, tests []internal.TestCase) api.ExecResponse {
	resp := api.ExecResponse{
		Status:    api.Status(res.Verdict),
		Passed:    res.Passed,
		Total:     res.Total,
		Score:     res.Score,
		RuntimeMs: res.TotalTimeMs,
		MemoryKiB: res.MaxMemKiB,
		Details:   make([]api.TestDetail, 0, len(res.Outcomes)),
	}
	if res.Message != "" {
		resp.Message = strPtr(res.Message)
	}
	if res.Compile != nil {
		resp.Compile = &api.CompileResult{
			Success:   res.Verdict != internal.CompileError,
			ExitCode:  res.Compile.ExitCode,
			WallMs:    res.Compile.WallMs,
			MemoryKiB: res.Compile.MemKiB,
			Stdout:    nonEmpty(string(res.Compile.Stdout)),
			Stderr:    nonEmpty(string(res.Compile.Stderr)),
		}
	}

	for _, o := range res.Outcomes {
		hidden := o.Index < len(tests) && tests[o.Index].Hidden
		d := api.TestDetail{
			TestCase:  o.Index + 1,
			Status:    api.Status(o.Verdict),
			Passed:    o.Passed,
			TimeMs:    o.TimeMs,
			MemoryKiB: o.MemKiB,
			Message:   nonEmpty(o.Message),
			Hidden:    hidden,
		}
		if !hidden {
			d.Stdout = strPtr(o.Stdout)
			d.Stderr = strPtr(o.Stderr)
			if o.Index < len(tests) {
				d.Expected = strPtr(tests[o.Index].Expected)
			}
		}
		resp.Details = append(resp.Details, d)
	}
	return resp
}

// Error is the response for an infrastructure failure.
func Error(total int, msg string) api.ExecResponse {
	return api.ExecResponse{
		Status:  api.StatusError,
		Total:   total,
		Message: strPtr(msg),
		Details: []api.TestDetail{},
	}
}

// Validation is the response for a rejected request.
func Validation(total int, errs []string) api.ExecResponse {
	return api.ExecResponse{
		Status:  api.StatusValidationError,
		Total:   total,
		Message: strPtr("validation failed"),
		Details: []api.TestDetail{},
		Errors:  errs,
	}
}

func strPtr(s string) *string {
	return &s
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
