package catalog

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Registry holds the registered integrations: descriptor plus factory,
// keyed by descriptor id. Construction is explicit; each caller owns its
// instance and discovery runs at startup (or on an explicit LoadDir), never
// via a live file watch.
type Registry struct {
	log *zap.SugaredLogger

	mu      sync.RWMutex
	entries map[string]entry
}

type entry struct {
	desc    Descriptor
	factory Factory
}

func NewRegistry(log *zap.SugaredLogger) *Registry {
	return &Registry{log: log, entries: map[string]entry{}}
}

// Register adds an integration. A duplicate id replaces the earlier
// registration (last wins) with a warning, matching manifest reload
// semantics.
func (r *Registry) Register(desc Descriptor, f Factory) error {
	if err := desc.Validate(); err != nil {
		return err
	}
	if f == nil {
		return fmt.Errorf("descriptor %s: nil factory", desc.ID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[desc.ID]; exists && r.log != nil {
		r.log.Warnw("duplicate integration id, replacing", "id", desc.ID)
	}
	r.entries[desc.ID] = entry{desc: desc, factory: f}
	return nil
}

// Get returns the factory and descriptor for an id.
func (r *Registry) Get(id string) (Factory, Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[strings.TrimSpace(id)]
	if !ok {
		return nil, Descriptor{}, false
	}
	return e.factory, e.desc, true
}

// List returns all descriptors sorted by id. Descriptors carry no secrets
// and are safe to expose to callers.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.desc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// LoadDir walks a manifest directory and registers a descriptor for every
// parseable YAML/JSON unit, bound to the supplied factory (typically the
// generic REST adapter). Units that fail to parse or validate are skipped
// with a warning, not fatal. Loading an unchanged directory twice yields an
// identical descriptor set.
func (r *Registry) LoadDir(dir string, f Factory) error {
	if dir == "" {
		return nil
	}
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".yaml" && ext != ".yml" && ext != ".json" {
			return nil
		}
		b, err := os.ReadFile(path)
		if err != nil {
			r.warn("manifest unreadable", path, err)
			return nil
		}
		var desc Descriptor
		if ext == ".json" {
			err = json.Unmarshal(b, &desc)
		} else {
			err = yaml.Unmarshal(b, &desc)
		}
		if err != nil {
			r.warn("manifest parse failed", path, err)
			return nil
		}
		if err := r.Register(desc, f); err != nil {
			r.warn("manifest rejected", path, err)
		}
		return nil
	})
}

func (r *Registry) warn(msg, path string, err error) {
	if r.log != nil {
		r.log.Warnw(msg, "path", path, "err", err)
	}
}
