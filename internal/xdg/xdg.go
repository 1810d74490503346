// Package xdg resolves the sandbox's default directories following the
// XDG Base Directory layout.
package xdg

import (
	"os"
	"path/filepath"
)

const appName = "sandbox"

// Dirs holds the base directories the sandbox uses.
type Dirs struct {
	configHome string
	stateHome  string
	runtimeDir string
}

// Lookup resolves the directories from the environment. getenv is
// os.Getenv outside of tests.
func Lookup(getenv func(string) string) *Dirs {
	home := getenv("HOME")
	if home == "" {
		if h, err := os.UserHomeDir(); err == nil {
			home = h
		} else {
			home = os.TempDir()
		}
	}

	d := &Dirs{
		configHome: getenv("XDG_CONFIG_HOME"),
		stateHome:  getenv("XDG_STATE_HOME"),
		runtimeDir: getenv("XDG_RUNTIME_DIR"),
	}
	if d.configHome == "" {
		d.configHome = filepath.Join(home, ".config")
	}
	if d.stateHome == "" {
		d.stateHome = filepath.Join(home, ".local", "state")
	}
	if d.runtimeDir == "" {
		// XDG wants a replacement directory when unset
		d.runtimeDir = filepath.Join(os.TempDir(), appName+"-runtime-"+getenv("USER"))
	}
	return d
}

func New() *Dirs {
	return Lookup(os.Getenv)
}

// ConfigFile is the default TOML configuration path.
func (d *Dirs) ConfigFile() string {
	return filepath.Join(d.configHome, appName, "config.toml")
}

// StateDir holds persistent data such as the SQLite database.
func (d *Dirs) StateDir() string {
	return filepath.Join(d.stateHome, appName)
}

// ScratchDir holds per-submission boxes. Its contents never outlive one
// evaluation.
func (d *Dirs) ScratchDir() string {
	return filepath.Join(d.runtimeDir, appName)
}

// EnsureDir creates path with owner-only permissions.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0700)
}
