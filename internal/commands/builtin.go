// Built-in commands backed by OpenCV
package commands

import (
	"context"
	"image"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"image-workflow/internal/pipeline"
)

const (
	categoryColour    = "Colour"
	categoryFilters   = "Filters"
	categoryThreshold = "Binarization"
)

// NewDefaultRegistry returns a registry holding every built-in command.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister(Builtins()...)
	r.MustRegister(morphologyKinds()...)
	return r
}

// Builtins returns the built-in command kinds.
func Builtins() []Kind {
	return []Kind{
		{
			Identifier:     "grayscale",
			DisplayName:    "Grayscale",
			Description:    "Convert to a single luminance channel",
			Category:       categoryColour,
			GrayscaleInput: true,
			Transform:      grayscale,
		},
		{
			Identifier:  "gaussian_blur",
			DisplayName: "Gaussian Blur",
			Description: "Gaussian blur with the given radius",
			Category:    categoryFilters,
			Params: []ParameterInfo{{
				Name:        "radius",
				Kind:        pipeline.KindFloat,
				Range:       &Range{Min: 0, Max: 50},
				Default:     pipeline.Float(2.0),
				Description: "Standard deviation of the kernel in pixels",
			}},
			Transform: gaussianBlur,
		},
		{
			Identifier:  "saturation",
			DisplayName: "Saturation",
			Description: "Scale colour saturation",
			Category:    categoryColour,
			Params: []ParameterInfo{{
				Name:        "factor",
				Kind:        pipeline.KindFloat,
				Range:       &Range{Min: 0, Max: 2},
				Default:     pipeline.Float(1.0),
				Description: "Saturation multiplier",
			}},
			Transform: saturation,
		},
		{
			Identifier:  "contrast_enhancement",
			DisplayName: "Contrast Enhancement",
			Description: "Contrast-limited adaptive histogram equalisation",
			Category:    categoryFilters,
			Params: []ParameterInfo{{
				Name:        "clip_limit",
				Kind:        pipeline.KindFloat,
				Range:       &Range{Min: 0.1, Max: 40},
				Default:     pipeline.Float(1.5),
				Description: "CLAHE clip limit",
			}},
			Transform: contrastEnhancement,
		},
		{
			Identifier:     "edge_detection",
			DisplayName:    "Edge Detection",
			Description:    "Canny edge map",
			Category:       categoryFilters,
			GrayscaleInput: true,
			Transform:      edgeDetection,
		},
		{
			Identifier:  "sharpen",
			DisplayName: "Sharpen",
			Description: "3x3 sharpening kernel",
			Category:    categoryFilters,
			Transform:   sharpen,
		},
		{
			Identifier:     "adaptive_threshold",
			DisplayName:    "Adaptive Threshold",
			Description:    "Gaussian-weighted local threshold",
			Category:       categoryThreshold,
			GrayscaleInput: true,
			Params: []ParameterInfo{{
				Name:        "block_size",
				Kind:        pipeline.KindInt,
				Range:       &Range{Min: 3, Max: 99},
				Default:     pipeline.Int(11),
				Description: "Neighbourhood size, odd",
			}},
			Transform: adaptiveThreshold,
		},
		{
			Identifier:     "otsu_threshold",
			DisplayName:    "Otsu Threshold",
			Description:    "Global threshold chosen by Otsu's method",
			Category:       categoryThreshold,
			GrayscaleInput: true,
			Transform:      otsuThreshold,
		},
		{
			Identifier:  "split_channels",
			DisplayName: "Split Channels",
			Description: "Split into red, green and blue images",
			Category:    categoryColour,
			Arity:       OneToMany,
			Outputs:     []string{"r", "g", "b"},
			Transform:   splitChannels,
		},
	}
}

func grayscale(_ context.Context, input gocv.Mat, _ []pipeline.Arg) ([]gocv.Mat, error) {
	// input already converted by Invoke
	return []gocv.Mat{input.Clone()}, nil
}

func gaussianBlur(_ context.Context, input gocv.Mat, args []pipeline.Arg) ([]gocv.Mat, error) {
	radius, _ := args[0].AsFloat()
	if radius == 0 {
		return []gocv.Mat{input.Clone()}, nil
	}

	output := gocv.NewMat()
	if err := gocv.GaussianBlur(input, &output, image.Pt(0, 0), radius, radius, gocv.BorderDefault); err != nil {
		output.Close()
		return nil, errors.Wrap(err, "gaussian blur failed")
	}
	return []gocv.Mat{output}, nil
}

func saturation(_ context.Context, input gocv.Mat, args []pipeline.Arg) ([]gocv.Mat, error) {
	factor, _ := args[0].AsFloat()
	if input.Channels() != 3 {
		// nothing to saturate
		return []gocv.Mat{input.Clone()}, nil
	}

	hsv := gocv.NewMat()
	defer hsv.Close()
	if err := gocv.CvtColor(input, &hsv, gocv.ColorBGRToHSV); err != nil {
		return nil, errors.Wrap(err, "BGR to HSV conversion failed")
	}

	channels := gocv.Split(hsv)
	defer closeAll(channels)
	channels[1].MultiplyFloat(float32(factor))
	gocv.Merge(channels, &hsv)

	output := gocv.NewMat()
	if err := gocv.CvtColor(hsv, &output, gocv.ColorHSVToBGR); err != nil {
		output.Close()
		return nil, errors.Wrap(err, "HSV to BGR conversion failed")
	}
	return []gocv.Mat{output}, nil
}

func contrastEnhancement(_ context.Context, input gocv.Mat, args []pipeline.Arg) ([]gocv.Mat, error) {
	clipLimit, _ := args[0].AsFloat()
	clahe := gocv.NewCLAHEWithParams(clipLimit, image.Pt(8, 8))
	defer clahe.Close()

	if input.Channels() == 1 {
		output := gocv.NewMat()
		clahe.Apply(input, &output)
		return []gocv.Mat{output}, nil
	}
	if input.Channels() != 3 {
		return nil, errors.Errorf("contrast enhancement needs 1 or 3 channels, got %d", input.Channels())
	}

	// equalise lightness only
	lab := gocv.NewMat()
	defer lab.Close()
	if err := gocv.CvtColor(input, &lab, gocv.ColorBGRToLab); err != nil {
		return nil, errors.Wrap(err, "BGR to Lab conversion failed")
	}

	channels := gocv.Split(lab)
	defer closeAll(channels)
	equalised := gocv.NewMat()
	clahe.Apply(channels[0], &equalised)
	channels[0].Close()
	channels[0] = equalised
	gocv.Merge(channels, &lab)

	output := gocv.NewMat()
	if err := gocv.CvtColor(lab, &output, gocv.ColorLabToBGR); err != nil {
		output.Close()
		return nil, errors.Wrap(err, "Lab to BGR conversion failed")
	}
	return []gocv.Mat{output}, nil
}

func edgeDetection(_ context.Context, input gocv.Mat, _ []pipeline.Arg) ([]gocv.Mat, error) {
	output := gocv.NewMat()
	gocv.Canny(input, &output, 100, 200)
	return []gocv.Mat{output}, nil
}

func sharpen(_ context.Context, input gocv.Mat, _ []pipeline.Arg) ([]gocv.Mat, error) {
	kernel := gocv.NewMatWithSize(3, 3, gocv.MatTypeCV32F)
	defer kernel.Close()
	weights := [3][3]float32{
		{0, -1, 0},
		{-1, 5, -1},
		{0, -1, 0},
	}
	for row := range weights {
		for col, w := range weights[row] {
			kernel.SetFloatAt(row, col, w)
		}
	}

	output := gocv.NewMat()
	if err := gocv.Filter2D(input, &output, -1, kernel, image.Pt(-1, -1), 0, gocv.BorderDefault); err != nil {
		output.Close()
		return nil, errors.Wrap(err, "sharpen filter failed")
	}
	return []gocv.Mat{output}, nil
}

func adaptiveThreshold(_ context.Context, input gocv.Mat, args []pipeline.Arg) ([]gocv.Mat, error) {
	blockSize, _ := args[0].AsInt()
	if blockSize%2 == 0 {
		return nil, errors.Wrapf(ErrInvalidArgs, "block_size must be odd, got %d", blockSize)
	}

	output := gocv.NewMat()
	gocv.AdaptiveThreshold(input, &output, 255, gocv.AdaptiveThresholdGaussian, gocv.ThresholdBinary, int(blockSize), 2)
	return []gocv.Mat{output}, nil
}

func otsuThreshold(_ context.Context, input gocv.Mat, _ []pipeline.Arg) ([]gocv.Mat, error) {
	output := gocv.NewMat()
	gocv.Threshold(input, &output, 0, 255, gocv.ThresholdBinary|gocv.ThresholdOtsu)
	return []gocv.Mat{output}, nil
}

func splitChannels(_ context.Context, input gocv.Mat, _ []pipeline.Arg) ([]gocv.Mat, error) {
	if input.Channels() < 3 {
		return nil, errors.Errorf("split needs a colour image, got %d channel(s)", input.Channels())
	}

	channels := gocv.Split(input)
	for _, extra := range channels[3:] {
		extra.Close()
	}
	// OpenCV stores BGR
	return []gocv.Mat{channels[2], channels[1], channels[0]}, nil
}
