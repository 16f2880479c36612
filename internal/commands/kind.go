// Command kinds: named, parameterized image transforms
package commands

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"image-workflow/internal/pipeline"
)

// ErrInvalidArgs is returned when arguments do not fit a kind's parameters.
var ErrInvalidArgs = pipeline.ErrInvalidArgs

// Arity tells callers how many images a transform produces.
type Arity int

const (
	// OneToOne transforms replace the working image.
	OneToOne Arity = iota
	// OneToMany transforms produce side outputs; the working image is kept.
	OneToMany
)

func (a Arity) String() string {
	switch a {
	case OneToOne:
		return "one_to_one"
	case OneToMany:
		return "one_to_many"
	default:
		return fmt.Sprintf("arity(%d)", int(a))
	}
}

// TransformFunc produces output images from input. The input is owned by the
// caller and must not be closed; every returned Mat is owned by the caller.
type TransformFunc func(ctx context.Context, input gocv.Mat, args []pipeline.Arg) ([]gocv.Mat, error)

// Range bounds a numeric parameter, inclusive.
type Range struct {
	Min float64
	Max float64
}

// ParameterInfo describes a parameter for validation and UI generation
type ParameterInfo struct {
	Name        string
	Kind        pipeline.ArgKind
	Range       *Range
	Default     pipeline.Arg
	Description string
}

// Kind is a registered command.
type Kind struct {
	Identifier  string
	DisplayName string
	Description string
	Category    string
	Arity       Arity
	// Outputs names the suffix of each output of a OneToMany kind, in order.
	Outputs []string
	// GrayscaleInput converts colour input to a single channel before Transform runs.
	GrayscaleInput bool
	Params         []ParameterInfo
	Transform      TransformFunc
}

func (k *Kind) validate() error {
	if k.Identifier == "" {
		return errors.New("command identifier is required")
	}
	if k.Transform == nil {
		return errors.Errorf("command %s has no transform", k.Identifier)
	}
	if k.Arity == OneToMany && len(k.Outputs) == 0 {
		return errors.Errorf("one-to-many command %s must name its outputs", k.Identifier)
	}
	if k.Arity == OneToOne && len(k.Outputs) != 0 {
		return errors.Errorf("one-to-one command %s cannot name outputs", k.Identifier)
	}
	for _, p := range k.Params {
		if p.Default.Kind() != p.Kind {
			return errors.Errorf("command %s: default for %s is %s, want %s",
				k.Identifier, p.Name, p.Default.Kind(), p.Kind)
		}
	}
	return nil
}

// Label is the name used when deriving output image names.
func (k *Kind) Label() string {
	if k.DisplayName != "" {
		return k.DisplayName
	}
	return k.Identifier
}

// ResolveArgs checks args against the kind's parameters and fills trailing
// defaults. Int values are accepted for float parameters and widened.
func (k *Kind) ResolveArgs(args []pipeline.Arg) ([]pipeline.Arg, error) {
	if len(args) > len(k.Params) {
		return nil, errors.Wrapf(ErrInvalidArgs, "%s takes %d argument(s), got %d",
			k.Identifier, len(k.Params), len(args))
	}

	resolved := make([]pipeline.Arg, len(k.Params))
	for i, param := range k.Params {
		if i >= len(args) {
			resolved[i] = param.Default
			continue
		}

		arg := args[i]
		if arg.Kind() == pipeline.KindInt && param.Kind == pipeline.KindFloat {
			v, _ := arg.AsFloat()
			arg = pipeline.Float(v)
		}
		if arg.Kind() != param.Kind {
			return nil, errors.Wrapf(ErrInvalidArgs, "%s: %s must be %s, got %s",
				k.Identifier, param.Name, param.Kind, arg.Kind())
		}
		if !arg.Finite() {
			return nil, errors.Wrapf(ErrInvalidArgs, "%s: %s must be finite, got %s",
				k.Identifier, param.Name, arg)
		}
		if param.Range != nil {
			v, _ := arg.AsFloat()
			if v < param.Range.Min || v > param.Range.Max {
				return nil, errors.Wrapf(ErrInvalidArgs, "%s: %s must be between %g and %g, got %g",
					k.Identifier, param.Name, param.Range.Min, param.Range.Max, v)
			}
		}
		resolved[i] = arg
	}
	return resolved, nil
}

// Invoke resolves args and runs the transform on input. On error no output
// Mats leak to the caller.
func (k *Kind) Invoke(ctx context.Context, input gocv.Mat, args []pipeline.Arg) ([]gocv.Mat, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrapf(err, "%s not started", k.Identifier)
	}
	if input.Empty() {
		return nil, errors.New("input image is empty")
	}

	resolved, err := k.ResolveArgs(args)
	if err != nil {
		return nil, err
	}

	src := input
	if k.GrayscaleInput {
		gray, converted, err := toGray(input)
		if err != nil {
			return nil, err
		}
		if converted {
			defer gray.Close()
		}
		src = gray
	}

	outputs, err := k.Transform(ctx, src, resolved)
	if err != nil {
		closeAll(outputs)
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		closeAll(outputs)
		return nil, errors.Wrapf(err, "%s interrupted", k.Identifier)
	}

	want := 1
	if k.Arity == OneToMany {
		want = len(k.Outputs)
	}
	if len(outputs) != want {
		closeAll(outputs)
		return nil, errors.Errorf("%s produced %d image(s), want %d", k.Identifier, len(outputs), want)
	}
	return outputs, nil
}

func toGray(input gocv.Mat) (gocv.Mat, bool, error) {
	var code gocv.ColorConversionCode
	switch input.Channels() {
	case 1:
		return input, false, nil
	case 3:
		code = gocv.ColorBGRToGray
	case 4:
		code = gocv.ColorBGRAToGray
	default:
		return gocv.Mat{}, false, errors.Errorf("unsupported channel count %d", input.Channels())
	}
	gray := gocv.NewMat()
	if err := gocv.CvtColor(input, &gray, code); err != nil {
		gray.Close()
		return gocv.Mat{}, false, errors.Wrap(err, "grayscale conversion failed")
	}
	return gray, true, nil
}

func closeAll(mats []gocv.Mat) {
	for i := range mats {
		mats[i].Close()
	}
}
