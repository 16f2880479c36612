package pipeline

import (
	"sort"

	"github.com/google/uuid"
)

// FinalStage is the downstream configuration attached to a pipeline once it
// has been selected for a later stage. The pipeline engine never interprets
// its attributes.
type FinalStage struct {
	ID         string         `json:"id"`
	Attributes map[string]Arg `json:"attributes"`
}

// NewFinalStage returns an empty final stage with a fresh identity.
func NewFinalStage() *FinalStage {
	return &FinalStage{
		ID:         uuid.NewString(),
		Attributes: make(map[string]Arg),
	}
}

func (f *FinalStage) Set(name string, value Arg) {
	if f.Attributes == nil {
		f.Attributes = make(map[string]Arg)
	}
	f.Attributes[name] = value
}

func (f *FinalStage) Get(name string) (Arg, bool) {
	v, ok := f.Attributes[name]
	return v, ok
}

// Keys returns attribute names in sorted order.
func (f *FinalStage) Keys() []string {
	keys := make([]string, 0, len(f.Attributes))
	for k := range f.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (f *FinalStage) Clone() *FinalStage {
	if f == nil {
		return nil
	}
	out := &FinalStage{ID: f.ID, Attributes: make(map[string]Arg, len(f.Attributes))}
	for k, v := range f.Attributes {
		out.Attributes[k] = v
	}
	return out
}
