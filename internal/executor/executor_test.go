package executor

import (
	"context"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"image-workflow/internal/commands"
	"image-workflow/internal/pipeline"
)

type fixture struct {
	registry *commands.Registry
	calls    map[string]int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{registry: commands.NewRegistry(), calls: make(map[string]int)}

	f.registry.MustRegister(
		commands.Kind{
			Identifier:  "add",
			DisplayName: "Add",
			Params: []commands.ParameterInfo{{
				Name: "amount", Kind: pipeline.KindInt, Default: pipeline.Int(1),
			}},
			Transform: func(_ context.Context, in gocv.Mat, args []pipeline.Arg) ([]gocv.Mat, error) {
				f.calls["add"]++
				amount, _ := args[0].AsInt()
				out := in.Clone()
				out.AddUChar(uint8(amount))
				return []gocv.Mat{out}, nil
			},
		},
		commands.Kind{
			Identifier:  "double",
			DisplayName: "Double",
			Transform: func(_ context.Context, in gocv.Mat, _ []pipeline.Arg) ([]gocv.Mat, error) {
				f.calls["double"]++
				out := in.Clone()
				out.MultiplyUChar(2)
				return []gocv.Mat{out}, nil
			},
		},
		commands.Kind{
			Identifier:  "fan",
			DisplayName: "Fan",
			Arity:       commands.OneToMany,
			Outputs:     []string{"a", "b"},
			Transform: func(_ context.Context, in gocv.Mat, _ []pipeline.Arg) ([]gocv.Mat, error) {
				f.calls["fan"]++
				a, b := in.Clone(), in.Clone()
				b.AddUChar(100)
				return []gocv.Mat{a, b}, nil
			},
		},
		commands.Kind{
			Identifier: "fail",
			Transform: func(_ context.Context, _ gocv.Mat, _ []pipeline.Arg) ([]gocv.Mat, error) {
				f.calls["fail"]++
				return nil, errors.New("cannot process")
			},
		},
		commands.Kind{
			Identifier: "wait",
			Transform: func(ctx context.Context, _ gocv.Mat, _ []pipeline.Arg) ([]gocv.Mat, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			},
		},
	)
	return f
}

func input(t *testing.T, v float64) gocv.Mat {
	t.Helper()
	m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(v, 0, 0, 0), 4, 4, gocv.MatTypeCV8U)
	t.Cleanup(func() { m.Close() })
	return m
}

func build(steps ...pipeline.Command) *pipeline.Pipeline {
	p := pipeline.New("test")
	for _, s := range steps {
		p.Append(s)
	}
	return p
}

func TestReplayMatchesSequentialApplication(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	e := New(f.registry)
	in := input(t, 10)

	res, err := e.Apply(context.Background(), build(
		pipeline.NewCommand("add", pipeline.Int(5)),
		pipeline.NewCommand("double"),
	), in)
	require.NoError(t, err)
	defer res.Close()

	// by hand: (10 + 5) * 2
	add, _ := f.registry.Lookup("add")
	double, _ := f.registry.Lookup("double")
	step1, err := add.Invoke(context.Background(), in, []pipeline.Arg{pipeline.Int(5)})
	require.NoError(t, err)
	defer step1[0].Close()
	step2, err := double.Invoke(context.Background(), step1[0], nil)
	require.NoError(t, err)
	defer step2[0].Close()

	assert.Equal(t, step2[0].ToBytes(), res.Final.ToBytes())
	assert.Equal(t, uint8(30), res.Final.GetUCharAt(0, 0))
	assert.Equal(t, 2, res.Chained)
	assert.Equal(t, uint8(10), in.GetUCharAt(0, 0), "input untouched")
}

func TestOneToManyOutputsAreNotChained(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	res, err := New(f.registry).Apply(context.Background(), build(
		pipeline.NewCommand("add", pipeline.Int(1)),
		pipeline.NewCommand("fan"),
		pipeline.NewCommand("double"),
	), input(t, 10))
	require.NoError(t, err)
	defer res.Close()

	assert.Equal(t, uint8(22), res.Final.GetUCharAt(0, 0))
	require.Len(t, res.Branches, 2)
	assert.Equal(t, "Fan_a", res.Branches[0].Name())
	assert.Equal(t, 1, res.Branches[0].Step)
	assert.Equal(t, uint8(11), res.Branches[0].Image.GetUCharAt(0, 0))
	assert.Equal(t, uint8(111), res.Branches[1].Image.GetUCharAt(0, 0))
}

func TestUnknownCommandAbortsBeforeAnyTransform(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := New(f.registry).Apply(context.Background(), build(
		pipeline.NewCommand("add"),
		pipeline.NewCommand("vanished"),
		pipeline.NewCommand("double"),
	), input(t, 1))

	require.Error(t, err)
	assert.ErrorIs(t, err, pipeline.ErrUnknownCommand)
	assert.Equal(t, pipeline.CategoryData, pipeline.CategoryOf(err))
	assert.Zero(t, f.calls["add"])
}

func TestTransformFailureNamesTheStep(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := New(f.registry).Apply(context.Background(), build(
		pipeline.NewCommand("add"),
		pipeline.NewCommand("fail"),
		pipeline.NewCommand("double"),
	), input(t, 1))

	var te *pipeline.TransformError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, 1, te.Step)
	assert.Equal(t, "fail", te.Identifier)
	assert.Zero(t, f.calls["double"])
}

func TestRecordedArgsThatNoLongerFitAreTransformErrors(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := New(f.registry).Apply(context.Background(), build(
		pipeline.NewCommand("add", pipeline.String("lots")),
	), input(t, 1))

	assert.ErrorIs(t, err, pipeline.ErrInvalidArgs)
	assert.Equal(t, pipeline.CategoryTransform, pipeline.CategoryOf(err))
}

func TestStepTimeout(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	e := New(f.registry, WithStepTimeout(20*time.Millisecond))

	_, err := e.Apply(context.Background(), build(pipeline.NewCommand("wait")), input(t, 1))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestEmptyInputs(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	e := New(f.registry)

	_, err := e.Apply(context.Background(), pipeline.New("empty"), input(t, 1))
	assert.ErrorIs(t, err, pipeline.ErrEmptyPipeline)

	empty := gocv.NewMat()
	defer empty.Close()
	_, err = e.Apply(context.Background(), build(pipeline.NewCommand("add")), empty)
	assert.ErrorIs(t, err, pipeline.ErrNoImageSelected)
}

func TestReplayWithBuiltins(t *testing.T) {
	t.Parallel()

	registry := commands.NewDefaultRegistry()
	colour := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(30, 60, 90, 0), 32, 32, gocv.MatTypeCV8UC3)
	defer colour.Close()

	res, err := New(registry).Apply(context.Background(), build(
		pipeline.NewCommand("grayscale"),
		pipeline.NewCommand("gaussian_blur", pipeline.Float(2.0)),
	), colour)
	require.NoError(t, err)
	defer res.Close()

	assert.Equal(t, 1, res.Final.Channels())
	assert.Equal(t, 32, res.Final.Rows())
}
