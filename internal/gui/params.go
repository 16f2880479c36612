package gui

import (
	"math"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"image-workflow/internal/commands"
	"image-workflow/internal/pipeline"
)

// parseArg converts form text into an argument of the given kind.
func parseArg(kind pipeline.ArgKind, text string) (pipeline.Arg, error) {
	text = strings.TrimSpace(text)
	switch kind {
	case pipeline.KindFloat:
		v, err := strconv.ParseFloat(text, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
			return pipeline.Arg{}, errors.Wrapf(commands.ErrInvalidArgs, "%q is not a number", text)
		}
		return pipeline.Float(v), nil
	case pipeline.KindInt:
		v, err := strconv.ParseInt(text, 10, 64)
		if err != nil {
			return pipeline.Arg{}, errors.Wrapf(commands.ErrInvalidArgs, "%q is not a whole number", text)
		}
		return pipeline.Int(v), nil
	case pipeline.KindBool:
		v, err := strconv.ParseBool(text)
		if err != nil {
			return pipeline.Arg{}, errors.Wrapf(commands.ErrInvalidArgs, "%q is not true or false", text)
		}
		return pipeline.Bool(v), nil
	case pipeline.KindString:
		return pipeline.String(text), nil
	}
	return pipeline.Arg{}, errors.Errorf("unsupported parameter kind %s", kind)
}

// argText is the editable form of a default value.
func argText(a pipeline.Arg) string {
	if s, ok := a.AsString(); ok {
		return s
	}
	return a.String()
}

// parseArgs reads one value per parameter, in order.
func parseArgs(params []commands.ParameterInfo, texts []string) ([]pipeline.Arg, error) {
	args := make([]pipeline.Arg, 0, len(params))
	for i, param := range params {
		if i >= len(texts) {
			break
		}
		arg, err := parseArg(param.Kind, texts[i])
		if err != nil {
			return nil, errors.Wrap(err, param.Name)
		}
		args = append(args, arg)
	}
	return args, nil
}
