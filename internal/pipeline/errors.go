package pipeline

import (
	"fmt"

	"github.com/pkg/errors"
)

// Usage errors: the caller asked for something the current state does not allow.
var (
	ErrNoImageSelected    = errors.New("no image selected")
	ErrEmptyPipeline      = errors.New("cannot save empty workflow")
	ErrPipelineNotFound   = errors.New("pipeline does not exist")
	ErrNotRecordingTarget = errors.New("pipeline is not the active recording target")
	ErrStepOutOfRange     = errors.New("step index out of range")
	ErrStepNotFound       = errors.New("no recorded step with that identifier")
	ErrNoFinalStage       = errors.New("no pipeline attached for the final stage")
	ErrNonFiniteValue     = errors.New("value must be a finite number")
)

// Data errors: a pipeline document or one of its steps cannot be used.
var (
	ErrUnrecognizedPipeline = errors.New("not a recognized pipeline")
	ErrUnknownCommand       = errors.New("unknown command")
)

// ErrInvalidArgs is returned when recorded or supplied arguments do not fit
// a command's parameters.
var ErrInvalidArgs = errors.New("invalid command arguments")

// TransformError reports a failure raised while a command ran. Step is the
// zero-based position in the pipeline being replayed, or -1 for a live apply.
type TransformError struct {
	Step       int
	Identifier string
	Err        error
}

func (e *TransformError) Error() string {
	if e.Step < 0 {
		return fmt.Sprintf("%s failed: %v", e.Identifier, e.Err)
	}
	return fmt.Sprintf("step %d (%s) failed: %v", e.Step, e.Identifier, e.Err)
}

func (e *TransformError) Unwrap() error { return e.Err }

// Category groups errors by who has to act on them.
type Category int

const (
	CategoryNone Category = iota
	CategoryUsage
	CategoryData
	CategoryTransform
)

func (c Category) String() string {
	switch c {
	case CategoryUsage:
		return "usage"
	case CategoryData:
		return "data"
	case CategoryTransform:
		return "transform"
	default:
		return "none"
	}
}

// CategoryOf classifies err. Unknown errors are CategoryNone.
func CategoryOf(err error) Category {
	if err == nil {
		return CategoryNone
	}

	var te *TransformError
	if errors.As(err, &te) || errors.Is(err, ErrInvalidArgs) {
		return CategoryTransform
	}

	for _, target := range []error{ErrUnrecognizedPipeline, ErrUnknownCommand} {
		if errors.Is(err, target) {
			return CategoryData
		}
	}

	for _, target := range []error{
		ErrNoImageSelected, ErrEmptyPipeline, ErrPipelineNotFound,
		ErrNotRecordingTarget, ErrStepOutOfRange, ErrStepNotFound,
		ErrNoFinalStage, ErrNonFiniteValue,
	} {
		if errors.Is(err, target) {
			return CategoryUsage
		}
	}
	return CategoryNone
}
