package core

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"image-workflow/internal/pipeline"
	"image-workflow/internal/store"
)

// Outcome of choosing a pipeline for the downstream stage.
type Outcome int

const (
	// OutcomeCancelled: the user backed out; nothing happens.
	OutcomeCancelled Outcome = iota
	// OutcomeNoPipeline: continue downstream without a pipeline.
	OutcomeNoPipeline
	// OutcomePipeline: the chosen pipeline gets a fresh final stage.
	OutcomePipeline
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeNoPipeline:
		return "no_pipeline"
	case OutcomePipeline:
		return "pipeline"
	default:
		return "unknown"
	}
}

// Choice is what the host's selection dialog returns.
type Choice struct {
	Outcome Outcome
	Key     store.Key
}

func CancelChoice() Choice { return Choice{Outcome: OutcomeCancelled} }

func NoPipelineChoice() Choice { return Choice{Outcome: OutcomeNoPipeline} }

func PipelineChoice(key store.Key) Choice {
	return Choice{Outcome: OutcomePipeline, Key: key}
}

// FinalStageOption is one entry of the selection dialog.
type FinalStageOption struct {
	Label  string
	Choice Choice
}

// Selection is the resolved choice. Pipeline is set only for OutcomePipeline
// and is a copy carrying the newly attached final stage.
type Selection struct {
	Outcome  Outcome
	Key      store.Key
	Pipeline *pipeline.Pipeline
}

// Selector asks the user to pick one of options. Hosts with blocking dialogs
// implement it; others call ResolveFinalStage from their dialog callback.
type Selector interface {
	SelectPipeline(ctx context.Context, options []FinalStageOption) (Choice, error)
}

const noPipelineLabel = "No pipeline"

// FinalStageOptions lists every stored pipeline followed by "No pipeline".
func (s *Session) FinalStageOptions() []FinalStageOption {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.store.List()
	options := make([]FinalStageOption, 0, len(entries)+1)
	for _, e := range entries {
		options = append(options, FinalStageOption{
			Label:  fmt.Sprintf("%d: %s", e.Key, e.Name),
			Choice: PipelineChoice(e.Key),
		})
	}
	return append(options, FinalStageOption{Label: noPipelineLabel, Choice: NoPipelineChoice()})
}

// ResolveFinalStage applies the user's choice.
func (s *Session) ResolveFinalStage(choice Choice) (Selection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch choice.Outcome {
	case OutcomeCancelled:
		s.logger.Debug("SESSION: final stage selection cancelled")
		return Selection{Outcome: OutcomeCancelled}, nil

	case OutcomeNoPipeline:
		s.attached = nil
		s.say("[Update] continuing without a pipeline")
		return Selection{Outcome: OutcomeNoPipeline}, nil

	case OutcomePipeline:
		p, err := s.store.AttachFinalStage(choice.Key)
		if err != nil {
			return Selection{}, s.fail("select pipeline", err)
		}
		key := choice.Key
		s.attached = &key
		s.say("[Update] workflow %q selected for the final stage", p.Name)
		return Selection{Outcome: OutcomePipeline, Key: key, Pipeline: p}, nil
	}
	return Selection{}, errors.Errorf("unknown selection outcome %d", int(choice.Outcome))
}

// SelectFinalStagePipeline shows the options through sel and resolves the
// answer. sel is called without the session lock held.
func (s *Session) SelectFinalStagePipeline(ctx context.Context, sel Selector) (Selection, error) {
	choice, err := sel.SelectPipeline(ctx, s.FinalStageOptions())
	if err != nil {
		return Selection{}, errors.Wrap(err, "pipeline selection failed")
	}
	return s.ResolveFinalStage(choice)
}

// AttachedPipeline reports the pipeline chosen for the final stage, if any.
func (s *Session) AttachedPipeline() (store.Key, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.attached == nil {
		return 0, false
	}
	return *s.attached, true
}

// SetFinalStageAttribute records a downstream setting on the attached pipeline.
func (s *Session) SetFinalStageAttribute(name string, value pipeline.Arg) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.attached == nil {
		return s.fail("set final stage attribute", pipeline.ErrNoFinalStage)
	}
	if err := s.store.SetFinalStageAttribute(*s.attached, name, value); err != nil {
		return s.fail("set final stage attribute", err)
	}
	return nil
}
