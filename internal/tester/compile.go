package tester

import (
	"context"
	"fmt"
	"strings"

	"github.com/programme-lv/sandbox/internal"
	"github.com/programme-lv/sandbox/internal/lang"
	"github.com/programme-lv/sandbox/internal/sandbox"
)

const maxCompileMessage = 4096

func (t *Tester) compileSourceCode(ctx context.Context, box *sandbox.Box, l lang.Language) (*internal.RunData, error) {
	args, err := l.CompileArgs()
	if err != nil {
		return nil, infraErr("compile command", err)
	}

	t.logger.Debug("compiling", "language", l.ID, "box", box.Id())
	data, err := t.exec.Run(ctx, box.Path(), args, nil, sandbox.Constraints{
		WallTime:    t.cfg.CompileTimeout,
		OutputLimit: t.cfg.OutputLimit,
	})
	if err != nil {
		return nil, infraErr("run compiler", err)
	}
	return data, nil
}

// compileFailure returns a non-empty message when the compile step did
// not produce a usable artifact.
func (t *Tester) compileFailure(data *internal.RunData, box *sandbox.Box, l lang.Language) string {
	switch {
	case data.TimedOut:
		return fmt.Sprintf("compilation timed out after %s", t.cfg.CompileTimeout)
	case data.ExitCode != 0 || data.ExitSignal != nil:
		msg := strings.TrimSpace(string(data.Stderr))
		if msg == "" {
			msg = strings.TrimSpace(string(data.Stdout))
		}
		if msg == "" {
			msg = fmt.Sprintf("compiler exited with code %d", data.ExitCode)
		}
		if len(msg) > maxCompileMessage {
			msg = msg[:maxCompileMessage] + "\n[...]"
		}
		return msg
	case !box.HasFile(l.CompiledFname):
		return fmt.Sprintf("compiler did not produce %s", l.CompiledFname)
	}
	return ""
}
