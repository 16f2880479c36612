// Package store keeps saved pipelines under stable integer keys.
package store

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"image-workflow/internal/pipeline"
)

// Key identifies a stored pipeline. Keys increase monotonically and are
// never reused within a store.
type Key int

// Entry is a listing row.
type Entry struct {
	Key  Key
	Name string
}

// Store holds saved pipelines. Pipelines go in and come out as deep copies,
// so stored pipelines cannot be edited from outside.
type Store struct {
	mu        sync.RWMutex
	pipelines map[Key]*pipeline.Pipeline
	next      Key
	logger    *slog.Logger
}

func New(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Store{
		pipelines: make(map[Key]*pipeline.Pipeline),
		logger:    logger,
	}
}

// Save commits a copy of p under the next key. An unnamed pipeline is given
// the placeholder name "workflow <key>".
func (s *Store) Save(p *pipeline.Pipeline) (Key, error) {
	if p == nil || p.IsEmpty() {
		return 0, pipeline.ErrEmptyPipeline
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := s.next
	s.next++

	stored := p.Clone()
	if stored.Name == "" {
		stored.Name = fmt.Sprintf("workflow %d", key)
	}
	s.pipelines[key] = stored

	s.logger.Info("STORE: pipeline saved", "key", key, "name", stored.Name, "steps", stored.Len())
	return key, nil
}

// Get returns a copy of the pipeline under key.
func (s *Store) Get(key Key) (*pipeline.Pipeline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.pipelines[key]
	if !ok {
		return nil, errors.Wrapf(pipeline.ErrPipelineNotFound, "key %d", key)
	}
	return p.Clone(), nil
}

func (s *Store) Delete(key Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pipelines[key]
	if !ok {
		return errors.Wrapf(pipeline.ErrPipelineNotFound, "key %d", key)
	}
	delete(s.pipelines, key)
	s.logger.Info("STORE: pipeline deleted", "key", key, "name", p.Name)
	return nil
}

// List returns every stored pipeline ordered by key.
func (s *Store) List() []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]Entry, 0, len(s.pipelines))
	for key, p := range s.pipelines {
		entries = append(entries, Entry{Key: key, Name: p.Name})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pipelines)
}

// Export writes the pipeline under key, final stage included.
func (s *Store) Export(key Key, w io.Writer) error {
	p, err := s.Get(key)
	if err != nil {
		return err
	}
	if err := pipeline.Encode(w, p); err != nil {
		return errors.Wrapf(err, "unable to export pipeline %d", key)
	}
	return nil
}

// Import decodes a pipeline document and saves it. Identifiers are not
// checked against any registry here; replay reports unknown commands.
func (s *Store) Import(r io.Reader) (Key, error) {
	p, err := pipeline.Decode(r)
	if err != nil {
		return 0, err
	}
	key, err := s.Save(p)
	if err != nil {
		return 0, err
	}
	s.logger.Info("STORE: pipeline imported", "key", key, "name", p.Name)
	return key, nil
}

// AttachFinalStage gives the pipeline under key a fresh final stage, replacing
// any earlier one, and returns a copy of the updated pipeline.
func (s *Store) AttachFinalStage(key Key) (*pipeline.Pipeline, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pipelines[key]
	if !ok {
		return nil, errors.Wrapf(pipeline.ErrPipelineNotFound, "key %d", key)
	}
	p.FinalStage = pipeline.NewFinalStage()
	s.logger.Info("STORE: final stage attached", "key", key, "final_stage", p.FinalStage.ID)
	return p.Clone(), nil
}

// SetFinalStageAttribute updates one attribute of the final stage attached to key.
func (s *Store) SetFinalStageAttribute(key Key, name string, value pipeline.Arg) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.pipelines[key]
	if !ok {
		return errors.Wrapf(pipeline.ErrPipelineNotFound, "key %d", key)
	}
	if p.FinalStage == nil {
		return errors.Wrapf(pipeline.ErrNoFinalStage, "pipeline %d", key)
	}
	if !value.Finite() {
		return errors.Wrapf(pipeline.ErrNonFiniteValue, "attribute %s", name)
	}
	p.FinalStage.Set(name, value)
	return nil
}
