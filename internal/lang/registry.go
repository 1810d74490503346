package lang

import (
	"fmt"
	"os"
	"sort"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/pelletier/go-toml/v2"
)

type Registry struct {
	mu        sync.RWMutex
	languages map[string]Language
}

// NewRegistry returns a registry filled with the built-in languages.
func NewRegistry() *Registry {
	r := &Registry{languages: make(map[string]Language)}
	for _, l := range defaults() {
		r.languages[l.ID] = l
	}
	return r
}

// Register adds or replaces a language.
func (r *Registry) Register(l Language) error {
	if err := l.check(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.languages[l.ID] = l
	return nil
}

func (r *Registry) Get(id string) (Language, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.languages[id]
	if !ok {
		return Language{}, fmt.Errorf("%w: %s", ErrLanguageNotFound, id)
	}
	return l, nil
}

func (r *Registry) IDs() mapset.Set[string] {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := mapset.NewThreadUnsafeSet[string]()
	for id := range r.languages {
		ids.Add(id)
	}
	return ids
}

// List returns all languages sorted by id.
func (r *Registry) List() []Language {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make([]Language, 0, len(r.languages))
	for _, l := range r.languages {
		res = append(res, l)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

type languagesFile struct {
	Languages []Language `toml:"languages"`
}

// LoadFile registers every [[languages]] entry of a TOML file on top of
// the current contents.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read languages file: %w", err)
	}
	var f languagesFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to parse languages file: %w", err)
	}
	for _, l := range f.Languages {
		if err := r.Register(l); err != nil {
			return err
		}
	}
	return nil
}
