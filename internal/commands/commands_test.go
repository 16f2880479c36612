package commands

import (
	"context"
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"image-workflow/internal/pipeline"
)

func solidBGR(t *testing.T, b, g, r float64) gocv.Mat {
	t.Helper()
	m := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(b, g, r, 0), 16, 16, gocv.MatTypeCV8UC3)
	t.Cleanup(func() { m.Close() })
	return m
}

func closeOutputs(t *testing.T, mats []gocv.Mat) {
	t.Helper()
	t.Cleanup(func() { closeAll(mats) })
}

func TestRegisterRejectsDuplicatesAndBrokenKinds(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	noop := func(_ context.Context, in gocv.Mat, _ []pipeline.Arg) ([]gocv.Mat, error) {
		return []gocv.Mat{in.Clone()}, nil
	}

	require.NoError(t, r.Register(Kind{Identifier: "noop", Transform: noop}))
	assert.ErrorIs(t, r.Register(Kind{Identifier: "noop", Transform: noop}), ErrDuplicateCommand)

	assert.Error(t, r.Register(Kind{Identifier: "", Transform: noop}))
	assert.Error(t, r.Register(Kind{Identifier: "no_transform"}))
	assert.Error(t, r.Register(Kind{Identifier: "fan", Arity: OneToMany, Transform: noop}))
	assert.Error(t, r.Register(Kind{
		Identifier: "bad_default",
		Transform:  noop,
		Params:     []ParameterInfo{{Name: "x", Kind: pipeline.KindFloat, Default: pipeline.Int(1)}},
	}))
}

func TestResolveUnknownIsDataError(t *testing.T) {
	t.Parallel()

	_, err := NewDefaultRegistry().Resolve("does_not_exist")
	require.Error(t, err)
	assert.ErrorIs(t, err, pipeline.ErrUnknownCommand)
	assert.Equal(t, pipeline.CategoryData, pipeline.CategoryOf(err))
}

func TestDefaultRegistryContents(t *testing.T) {
	t.Parallel()

	r := NewDefaultRegistry()
	assert.Equal(t, []string{
		"adaptive_threshold", "closing", "contrast_enhancement", "dilation", "edge_detection",
		"erosion", "gaussian_blur", "grayscale", "opening", "otsu_threshold", "saturation",
		"sharpen", "split_channels",
	}, r.Identifiers())

	assert.Equal(t, []string{"r", "g", "b"}, r.Branches("split_channels"))
	assert.Nil(t, r.Branches("gaussian_blur"))
	assert.Nil(t, r.Branches("missing"))
	assert.Contains(t, r.ByCategory()[categoryThreshold], "otsu_threshold")
	assert.Len(t, r.ByCategory()[categoryMorphology], 4)
}

func TestResolveArgs(t *testing.T) {
	t.Parallel()

	blur, ok := NewDefaultRegistry().Lookup("gaussian_blur")
	require.True(t, ok)

	tests := []struct {
		name    string
		args    []pipeline.Arg
		want    pipeline.Arg
		wantErr bool
	}{
		{name: "default", args: nil, want: pipeline.Float(2.0)},
		{name: "explicit", args: []pipeline.Arg{pipeline.Float(4.5)}, want: pipeline.Float(4.5)},
		{name: "int widened", args: []pipeline.Arg{pipeline.Int(3)}, want: pipeline.Float(3)},
		{name: "wrong kind", args: []pipeline.Arg{pipeline.String("big")}, wantErr: true},
		{name: "below range", args: []pipeline.Arg{pipeline.Float(-1)}, wantErr: true},
		{name: "nan", args: []pipeline.Arg{pipeline.Float(math.NaN())}, wantErr: true},
		{name: "infinite", args: []pipeline.Arg{pipeline.Float(math.Inf(1))}, wantErr: true},
		{name: "too many", args: []pipeline.Arg{pipeline.Float(1), pipeline.Float(2)}, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := blur.ResolveArgs(tt.args)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidArgs)
				assert.Equal(t, pipeline.CategoryTransform, pipeline.CategoryOf(err))
				return
			}
			require.NoError(t, err)
			require.Len(t, got, 1)
			assert.True(t, tt.want.Equal(got[0]), "got %s", got[0])
		})
	}
}

func TestGrayscaleInputIsConverted(t *testing.T) {
	t.Parallel()

	r := NewDefaultRegistry()
	input := solidBGR(t, 40, 120, 200)

	for _, id := range []string{"grayscale", "edge_detection", "otsu_threshold", "adaptive_threshold"} {
		k, ok := r.Lookup(id)
		require.True(t, ok)

		out, err := k.Invoke(context.Background(), input, nil)
		require.NoError(t, err, id)
		closeOutputs(t, out)
		require.Len(t, out, 1)
		assert.Equal(t, 1, out[0].Channels(), id)
	}
	assert.Equal(t, 3, input.Channels(), "input must be left untouched")
}

func TestSplitChannelsReturnsRGBOrder(t *testing.T) {
	t.Parallel()

	k, ok := NewDefaultRegistry().Lookup("split_channels")
	require.True(t, ok)

	out, err := k.Invoke(context.Background(), solidBGR(t, 10, 20, 30), nil)
	require.NoError(t, err)
	closeOutputs(t, out)
	require.Len(t, out, 3)

	assert.Equal(t, uint8(30), out[0].GetUCharAt(0, 0))
	assert.Equal(t, uint8(20), out[1].GetUCharAt(0, 0))
	assert.Equal(t, uint8(10), out[2].GetUCharAt(0, 0))
}

func TestSplitChannelsRejectsGrayInput(t *testing.T) {
	t.Parallel()

	k, _ := NewDefaultRegistry().Lookup("split_channels")
	gray := gocv.NewMatWithSize(8, 8, gocv.MatTypeCV8U)
	defer gray.Close()

	_, err := k.Invoke(context.Background(), gray, nil)
	assert.Error(t, err)
}

func TestBuiltinsKeepShape(t *testing.T) {
	t.Parallel()

	r := NewDefaultRegistry()
	input := solidBGR(t, 50, 100, 150)

	for _, id := range []string{"gaussian_blur", "saturation", "contrast_enhancement", "sharpen"} {
		k, _ := r.Lookup(id)
		out, err := k.Invoke(context.Background(), input, nil)
		require.NoError(t, err, id)
		closeOutputs(t, out)
		require.Len(t, out, 1)
		assert.Equal(t, input.Rows(), out[0].Rows(), id)
		assert.Equal(t, input.Cols(), out[0].Cols(), id)
		assert.Equal(t, 3, out[0].Channels(), id)
	}
}

func TestBlurOfUniformImageIsUniform(t *testing.T) {
	t.Parallel()

	k, _ := NewDefaultRegistry().Lookup("gaussian_blur")
	out, err := k.Invoke(context.Background(), solidBGR(t, 90, 90, 90), []pipeline.Arg{pipeline.Float(2.0)})
	require.NoError(t, err)
	closeOutputs(t, out)

	assert.Equal(t, uint8(90), out[0].GetUCharAt(8, 8*3))
}

func TestAdaptiveThresholdRejectsEvenBlock(t *testing.T) {
	t.Parallel()

	k, _ := NewDefaultRegistry().Lookup("adaptive_threshold")
	_, err := k.Invoke(context.Background(), solidBGR(t, 1, 2, 3), []pipeline.Arg{pipeline.Int(10)})
	assert.ErrorIs(t, err, ErrInvalidArgs)
}

func TestInvokeChecksOutputCount(t *testing.T) {
	t.Parallel()

	k := &Kind{
		Identifier: "greedy",
		Transform: func(_ context.Context, in gocv.Mat, _ []pipeline.Arg) ([]gocv.Mat, error) {
			return []gocv.Mat{in.Clone(), in.Clone()}, nil
		},
	}
	_, err := k.Invoke(context.Background(), solidBGR(t, 0, 0, 0), nil)
	assert.Error(t, err)
}

func TestInvokeHonoursCancellation(t *testing.T) {
	t.Parallel()

	called := false
	k := &Kind{
		Identifier: "slow",
		Transform: func(_ context.Context, in gocv.Mat, _ []pipeline.Arg) ([]gocv.Mat, error) {
			called = true
			return []gocv.Mat{in.Clone()}, nil
		},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := k.Invoke(ctx, solidBGR(t, 0, 0, 0), nil)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.False(t, called)
}

func TestInvokeRejectsEmptyInput(t *testing.T) {
	t.Parallel()

	k, _ := NewDefaultRegistry().Lookup("sharpen")
	empty := gocv.NewMat()
	defer empty.Close()

	_, err := k.Invoke(context.Background(), empty, nil)
	assert.Error(t, err)
}

func TestMorphologyOnBinaryDot(t *testing.T) {
	t.Parallel()

	r := NewDefaultRegistry()
	dot := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), 9, 9, gocv.MatTypeCV8U)
	defer dot.Close()
	dot.SetUCharAt(4, 4, 255)

	erosion, _ := r.Lookup("erosion")
	out, err := erosion.Invoke(context.Background(), dot, nil)
	require.NoError(t, err)
	closeOutputs(t, out)
	assert.Equal(t, 0, gocv.CountNonZero(out[0]), "a single pixel erodes away")

	dilation, _ := r.Lookup("dilation")
	out, err = dilation.Invoke(context.Background(), dot, []pipeline.Arg{pipeline.Int(3), pipeline.Int(2)})
	require.NoError(t, err)
	closeOutputs(t, out)
	assert.Equal(t, 25, gocv.CountNonZero(out[0]), "two 3x3 passes grow the pixel to 5x5")

	opening, _ := r.Lookup("opening")
	_, err = opening.Invoke(context.Background(), dot, []pipeline.Arg{pipeline.Int(16)})
	assert.ErrorIs(t, err, ErrInvalidArgs)
}
