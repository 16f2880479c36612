// Package executor replays stored pipelines against an image.
package executor

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"image-workflow/internal/commands"
	"image-workflow/internal/metrics"
	"image-workflow/internal/pipeline"
)

// Output is one side output of a one-to-many step.
type Output struct {
	Step       int
	Identifier string
	Label      string
	Suffix     string
	Image      gocv.Mat
}

// Name is the display name of the output, e.g. "Split Channels_r".
func (o Output) Name() string {
	return o.Label + "_" + o.Suffix
}

// Result of a replay. The caller owns every Mat and must call Close.
type Result struct {
	// Final is the working image after the last one-to-one step, or a copy of
	// the input when no step replaced it.
	Final gocv.Mat
	// Chained counts the one-to-one steps that produced Final.
	Chained  int
	Branches []Output
}

func (r *Result) Close() {
	if r == nil {
		return
	}
	r.Final.Close()
	for i := range r.Branches {
		r.Branches[i].Image.Close()
	}
	r.Branches = nil
}

// Option configures an Executor.
type Option func(*Executor)

// WithStepTimeout bounds every step. Zero means no bound.
func WithStepTimeout(d time.Duration) Option {
	return func(e *Executor) { e.stepTimeout = d }
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// Executor folds pipeline steps over an image using a command registry. It
// keeps no per-replay state and may be shared between goroutines.
type Executor struct {
	registry    *commands.Registry
	stepTimeout time.Duration
	logger      *slog.Logger
}

func New(registry *commands.Registry, opts ...Option) *Executor {
	e := &Executor{
		registry: registry,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Resolve looks up every step of p. The first unknown identifier aborts with
// ErrUnknownCommand.
func (e *Executor) Resolve(p *pipeline.Pipeline) ([]*commands.Kind, error) {
	kinds := make([]*commands.Kind, len(p.Steps))
	for i, step := range p.Steps {
		k, err := e.registry.Resolve(step.Identifier)
		if err != nil {
			return nil, errors.Wrapf(err, "step %d", i)
		}
		kinds[i] = k
	}
	return kinds, nil
}

// Apply replays p on input. Input is not modified. Every identifier is
// resolved before the first transform runs.
func (e *Executor) Apply(ctx context.Context, p *pipeline.Pipeline, input gocv.Mat) (*Result, error) {
	start := time.Now()
	res, err := e.apply(ctx, p, input)
	metrics.RecordReplay(time.Since(start).Seconds(), err)
	return res, err
}

func (e *Executor) apply(ctx context.Context, p *pipeline.Pipeline, input gocv.Mat) (*Result, error) {
	if p == nil || p.IsEmpty() {
		return nil, pipeline.ErrEmptyPipeline
	}
	if input.Empty() {
		return nil, pipeline.ErrNoImageSelected
	}

	kinds, err := e.Resolve(p)
	if err != nil {
		e.logger.Error("EXECUTOR: Unresolvable pipeline", "pipeline", p.Name, "error", err)
		return nil, err
	}

	e.logger.Debug("EXECUTOR: Replaying pipeline", "pipeline", p.Name, "step_count", p.Len())

	res := &Result{Final: input.Clone()}
	for i, step := range p.Steps {
		kind := kinds[i]
		e.logger.Debug("EXECUTOR: Processing step", "step", i, "command", step.String())

		outputs, err := e.Invoke(ctx, metrics.ModeReplay, kind, res.Final, step.Args)
		if err != nil {
			res.Close()
			e.logger.Error("EXECUTOR: Step failed", "step", i, "command", step.Identifier, "error", err)
			return nil, &pipeline.TransformError{Step: i, Identifier: step.Identifier, Err: err}
		}

		if kind.Arity == commands.OneToMany {
			for j, img := range outputs {
				res.Branches = append(res.Branches, Output{
					Step:       i,
					Identifier: kind.Identifier,
					Label:      kind.Label(),
					Suffix:     kind.Outputs[j],
					Image:      img,
				})
			}
			continue
		}

		res.Final.Close()
		res.Final = outputs[0]
		res.Chained++
	}

	e.logger.Debug("EXECUTOR: Replay completed", "pipeline", p.Name, "branches", len(res.Branches))
	return res, nil
}

// Invoke runs a single command under the step timeout. Live applies and
// replays both go through here; mode labels the metrics.
func (e *Executor) Invoke(ctx context.Context, mode string, kind *commands.Kind, img gocv.Mat, args []pipeline.Arg) ([]gocv.Mat, error) {
	if e.stepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.stepTimeout)
		defer cancel()
	}
	start := time.Now()
	outputs, err := kind.Invoke(ctx, img, args)
	metrics.RecordCommand(kind.Identifier, mode, time.Since(start).Seconds(), err)
	return outputs, err
}
