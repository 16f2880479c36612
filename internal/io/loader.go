// Image and pipeline file operations
package io

import (
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

var supportedFormats = []string{".jpg", ".jpeg", ".png", ".tiff", ".tif", ".bmp"}

// ErrUnsupportedFormat is returned for file extensions OpenCV is not asked to handle.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// ImageLoader handles image file operations
type ImageLoader struct {
	logger *slog.Logger
}

func NewImageLoader(logger *slog.Logger) *ImageLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &ImageLoader{logger: logger}
}

// LoadImage reads a colour image. The caller owns the returned Mat.
func (il *ImageLoader) LoadImage(path string) (gocv.Mat, error) {
	il.logger.Debug("IO: Loading image", "filepath", path)

	if !IsSupportedImage(path) {
		return gocv.NewMat(), errors.Wrap(ErrUnsupportedFormat, path)
	}

	mat := gocv.IMRead(path, gocv.IMReadColor)
	if mat.Empty() {
		mat.Close()
		return gocv.NewMat(), errors.Errorf("failed to load image: %s", path)
	}

	il.logger.Info("IO: Image loaded",
		"filepath", path,
		"width", mat.Cols(),
		"height", mat.Rows(),
		"channels", mat.Channels())
	return mat, nil
}

func (il *ImageLoader) SaveImage(mat gocv.Mat, path string) error {
	il.logger.Debug("IO: Saving image", "filepath", path)

	if mat.Empty() {
		return errors.New("cannot save empty image")
	}
	if !IsSupportedImage(path) {
		return errors.Wrap(ErrUnsupportedFormat, path)
	}
	if !gocv.IMWrite(path, mat) {
		return errors.Errorf("failed to save image: %s", path)
	}

	il.logger.Info("IO: Image saved",
		"filepath", path,
		"width", mat.Cols(),
		"height", mat.Rows(),
		"channels", mat.Channels())
	return nil
}

// IsSupportedImage reports whether path has an image extension we read and write.
func IsSupportedImage(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, format := range supportedFormats {
		if ext == format {
			return true
		}
	}
	return false
}

// ImageName is the layer name used for a file: its base name without extension.
func ImageName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// SupportedFormats lists extensions for file dialogs.
func SupportedFormats() []string {
	return append([]string(nil), supportedFormats...)
}
