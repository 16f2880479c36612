package commands

import (
	"sort"
	"sync"

	"github.com/pkg/errors"

	"image-workflow/internal/pipeline"
)

// ErrDuplicateCommand is returned when an identifier is registered twice.
var ErrDuplicateCommand = errors.New("command already registered")

// Registry maps stable identifiers to command kinds. Recorded pipelines refer
// to commands only by identifier, so a registry is needed to replay them.
type Registry struct {
	mu    sync.RWMutex
	kinds map[string]*Kind
}

func NewRegistry() *Registry {
	return &Registry{kinds: make(map[string]*Kind)}
}

// Register adds k. Identifiers are unique within a registry.
func (r *Registry) Register(k Kind) error {
	if err := k.validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.kinds[k.Identifier]; exists {
		return errors.Wrap(ErrDuplicateCommand, k.Identifier)
	}
	kind := k
	kind.Outputs = append([]string(nil), k.Outputs...)
	kind.Params = append([]ParameterInfo(nil), k.Params...)
	r.kinds[k.Identifier] = &kind
	return nil
}

// MustRegister is Register for static command sets.
func (r *Registry) MustRegister(kinds ...Kind) {
	for _, k := range kinds {
		if err := r.Register(k); err != nil {
			panic(err)
		}
	}
}

func (r *Registry) Lookup(identifier string) (*Kind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.kinds[identifier]
	return k, ok
}

// Resolve is Lookup returning ErrUnknownCommand for missing identifiers.
func (r *Registry) Resolve(identifier string) (*Kind, error) {
	k, ok := r.Lookup(identifier)
	if !ok {
		return nil, errors.Wrapf(pipeline.ErrUnknownCommand, "%q", identifier)
	}
	return k, nil
}

// Branches returns the output suffixes of a one-to-many command and nil for
// anything else, including unknown identifiers.
func (r *Registry) Branches(identifier string) []string {
	k, ok := r.Lookup(identifier)
	if !ok || k.Arity != OneToMany {
		return nil
	}
	return append([]string(nil), k.Outputs...)
}

// Identifiers lists every registered identifier in sorted order.
func (r *Registry) Identifiers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.kinds))
	for id := range r.kinds {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ByCategory groups identifiers for menus. Uncategorized kinds go under "Other".
func (r *Registry) ByCategory() map[string][]string {
	groups := make(map[string][]string)
	for _, id := range r.Identifiers() {
		k, _ := r.Lookup(id)
		category := k.Category
		if category == "" {
			category = "Other"
		}
		groups[category] = append(groups[category], id)
	}
	return groups
}
