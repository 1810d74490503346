// Package lang holds per-language compile and run command templates.
package lang

import (
	"errors"
	"fmt"

	"github.com/google/shlex"
)

var ErrLanguageNotFound = errors.New("language not found")

// Language describes how source code of one language is laid out in a
// scratch box, compiled and executed. Commands run with the box as the
// working directory.
type Language struct {
	ID            string `toml:"id" json:"id"`
	Name          string `toml:"name" json:"name"`
	CodeFname     string `toml:"code_fname" json:"code_fname"`
	CompileCmd    string `toml:"compile_cmd" json:"compile_cmd,omitempty"`
	CompiledFname string `toml:"compiled_fname" json:"compiled_fname,omitempty"`
	ExecCmd       string `toml:"exec_cmd" json:"exec_cmd"`
}

func (l Language) NeedsCompile() bool {
	return l.CompileCmd != ""
}

func (l Language) CompileArgs() ([]string, error) {
	return split(l.CompileCmd)
}

func (l Language) ExecArgs() ([]string, error) {
	return split(l.ExecCmd)
}

func (l Language) check() error {
	if l.ID == "" {
		return fmt.Errorf("language id is empty")
	}
	if l.CodeFname == "" || l.ExecCmd == "" {
		return fmt.Errorf("language %q: code_fname and exec_cmd are required", l.ID)
	}
	if l.NeedsCompile() && l.CompiledFname == "" {
		return fmt.Errorf("language %q: compile_cmd requires compiled_fname", l.ID)
	}
	if _, err := l.ExecArgs(); err != nil {
		return fmt.Errorf("language %q: %w", l.ID, err)
	}
	if l.NeedsCompile() {
		if _, err := l.CompileArgs(); err != nil {
			return fmt.Errorf("language %q: %w", l.ID, err)
		}
	}
	return nil
}

func split(cmd string) ([]string, error) {
	args, err := shlex.Split(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to split command %q: %w", cmd, err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	return args, nil
}

func defaults() []Language {
	return []Language{
		{
			ID:            "cpp",
			Name:          "C++17 (GCC)",
			CodeFname:     "main.cpp",
			CompileCmd:    "g++ -std=c++17 -O2 -o main main.cpp",
			CompiledFname: "main",
			ExecCmd:       "./main",
		},
		{
			ID:            "c",
			Name:          "C11 (GCC)",
			CodeFname:     "main.c",
			CompileCmd:    "gcc -std=c11 -O2 -o main main.c -lm",
			CompiledFname: "main",
			ExecCmd:       "./main",
		},
		{
			ID:            "java",
			Name:          "Java",
			CodeFname:     "Main.java",
			CompileCmd:    "javac Main.java",
			CompiledFname: "Main.class",
			ExecCmd:       "java -cp . Main",
		},
		{
			ID:        "python",
			Name:      "Python 3",
			CodeFname: "main.py",
			ExecCmd:   "python3 main.py",
		},
		{
			ID:        "javascript",
			Name:      "JavaScript (Node.js)",
			CodeFname: "main.js",
			ExecCmd:   "node main.js",
		},
	}
}

// DefaultIDs lists the built-in language ids.
func DefaultIDs() []string {
	ids := []string{}
	for _, l := range defaults() {
		ids = append(ids, l.ID)
	}
	return ids
}
