// Package sandbox spawns untrusted programs inside private scratch
// directories and enforces wall-clock and output limits on them.
//
// It does not provide OS-level isolation. Namespaces, cgroups or a
// micro-VM have to be layered underneath by the deploying system.
package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/google/uuid"
)

// Scratch hands out per-submission boxes under one root directory.
type Scratch struct {
	root   string
	active atomic.Int64
}

func NewScratch(root string) (*Scratch, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create scratch root: %w", err)
	}
	return &Scratch{root: root}, nil
}

func (s *Scratch) Root() string {
	return s.root
}

// Active returns the number of boxes that have not been closed yet.
func (s *Scratch) Active() int64 {
	return s.active.Load()
}

// NewBox creates a uniquely named, empty box directory.
func (s *Scratch) NewBox() (*Box, error) {
	id := uuid.NewString()
	path := filepath.Join(s.root, "box-"+id)
	if err := os.Mkdir(path, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create box: %w", err)
	}
	s.active.Add(1)
	return &Box{id: id, path: path, scratch: s}, nil
}

// Writable checks that boxes can be created without running anything.
func (s *Scratch) Writable() error {
	f, err := os.CreateTemp(s.root, ".probe-*")
	if err != nil {
		return fmt.Errorf("scratch root not writable: %w", err)
	}
	name := f.Name()
	if err := f.Close(); err != nil {
		return err
	}
	return os.Remove(name)
}
