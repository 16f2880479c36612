// Package recorder captures applied commands into a pipeline while recording.
package recorder

import (
	"io"
	"log/slog"

	"image-workflow/internal/pipeline"
	"image-workflow/internal/store"
)

// State of the recorder.
type State int

const (
	Idle State = iota
	Recording
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	default:
		return "unknown"
	}
}

// Committer persists a finished pipeline.
type Committer interface {
	Save(p *pipeline.Pipeline) (store.Key, error)
}

// Recorder owns the pipeline being recorded (the target). The target stays
// editable after Stop until it is saved or a new recording starts.
type Recorder struct {
	state  State
	target *pipeline.Pipeline
	logger *slog.Logger
}

func New(logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Recorder{target: pipeline.New(""), logger: logger}
}

func (r *Recorder) State() State { return r.state }

func (r *Recorder) IsRecording() bool { return r.state == Recording }

// Start begins a new recording with an empty target, discarding any unsaved
// steps. It does nothing when already recording.
func (r *Recorder) Start() bool {
	if r.state == Recording {
		return false
	}
	if !r.target.IsEmpty() {
		r.logger.Info("RECORDER: discarding unsaved steps", "steps", r.target.Len())
	}
	r.target = pipeline.New("")
	r.state = Recording
	r.logger.Info("RECORDER: recording started")
	return true
}

// Stop pauses recording. The target is kept.
func (r *Recorder) Stop() {
	if r.state != Recording {
		return
	}
	r.state = Idle
	r.logger.Info("RECORDER: recording stopped", "steps", r.target.Len())
}

// Record appends cmd to the target while recording.
func (r *Recorder) Record(cmd pipeline.Command) {
	if r.state != Recording {
		return
	}
	r.target.Append(cmd)
	r.logger.Debug("RECORDER: step recorded", "step", r.target.Len()-1, "command", cmd.String())
}

// SetName names the target.
func (r *Recorder) SetName(name string) {
	r.target.Name = name
}

// Save commits the target through c. On success a fresh empty target replaces
// it and the recorder goes idle; on failure nothing changes.
func (r *Recorder) Save(c Committer) (store.Key, error) {
	if r.target.IsEmpty() {
		return 0, pipeline.ErrEmptyPipeline
	}
	key, err := c.Save(r.target)
	if err != nil {
		return 0, err
	}
	r.logger.Info("RECORDER: recording saved", "key", key, "steps", r.target.Len())
	r.target = pipeline.New("")
	r.state = Idle
	return key, nil
}

// Target is the pipeline being recorded. Callers must not modify it.
func (r *Recorder) Target() *pipeline.Pipeline {
	return r.target
}

// RemoveStep deletes the step at index from p, which must be the target.
func (r *Recorder) RemoveStep(p *pipeline.Pipeline, index int) (pipeline.Command, error) {
	if p != r.target {
		return pipeline.Command{}, pipeline.ErrNotRecordingTarget
	}
	removed, err := p.RemoveAt(index)
	if err != nil {
		return pipeline.Command{}, err
	}
	r.logger.Debug("RECORDER: step removed", "step", index, "command", removed.String())
	return removed, nil
}

// RemoveStepByIdentifier deletes the first step of p matching identifier.
func (r *Recorder) RemoveStepByIdentifier(p *pipeline.Pipeline, identifier string) (int, error) {
	if p != r.target {
		return -1, pipeline.ErrNotRecordingTarget
	}
	idx, err := p.RemoveIdentifier(identifier)
	if err != nil {
		return -1, err
	}
	r.logger.Debug("RECORDER: step removed", "step", idx, "command", identifier)
	return idx, nil
}
