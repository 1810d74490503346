package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
)

type Box struct {
	id      string
	path    string
	scratch *Scratch
	closed  bool
}

func (box *Box) Id() string {
	return box.id
}

func (box *Box) Path() string {
	return box.path
}

// Close removes the box with everything in it. Calling it again is a no-op.
func (box *Box) Close() error {
	if box.closed {
		return nil
	}
	box.closed = true
	box.scratch.active.Add(-1)
	if err := os.RemoveAll(box.path); err != nil {
		return fmt.Errorf("failed to remove box %s: %w", box.id, err)
	}
	return nil
}

func (box *Box) AddFile(name string, content []byte) error {
	path, err := box.file(name)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	return nil
}

func (box *Box) HasFile(name string) bool {
	path, err := box.file(name)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

func (box *Box) file(name string) (string, error) {
	if !filepath.IsLocal(name) {
		return "", fmt.Errorf("file name %q escapes the box", name)
	}
	return filepath.Join(box.path, name), nil
}
