// Named image layers with a current selection, safe for concurrent use
package core

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"image-workflow/internal/pipeline"
)

// Layers is what the session needs from the host's image viewer.
type Layers interface {
	// CurrentImage returns a copy of the selected image.
	CurrentImage() (gocv.Mat, error)
	CurrentImageName() (string, error)
	// PushImage adds a copy of data under a unique name derived from name,
	// selects it and returns the name used.
	PushImage(data gocv.Mat, name string) (string, error)
	// RestoreCurrentImage replaces the selected image's pixels with a copy of data.
	RestoreCurrentImage(data gocv.Mat) error
	Remove(name string) error
	Select(name string) error
}

// ImageMetadata contains image information
type ImageMetadata struct {
	Width    int
	Height   int
	Channels int
	Type     gocv.MatType
}

type layer struct {
	name  string
	image gocv.Mat
}

// Workspace is an in-memory Layers implementation.
type Workspace struct {
	mu       sync.RWMutex
	layers   []*layer
	selected int
	onChange func()
}

func NewWorkspace() *Workspace {
	return &Workspace{selected: -1}
}

// OnChange registers fn to run after every change to layers or selection.
// fn runs without the workspace lock held.
func (w *Workspace) OnChange(fn func()) {
	w.mu.Lock()
	w.onChange = fn
	w.mu.Unlock()
}

func (w *Workspace) changed() {
	w.mu.RLock()
	fn := w.onChange
	w.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

func validateImage(mat gocv.Mat) error {
	if mat.Empty() {
		return errors.New("cannot set empty image")
	}
	if mat.Cols() <= 0 || mat.Rows() <= 0 {
		return errors.Errorf("invalid image dimensions: %dx%d", mat.Cols(), mat.Rows())
	}
	channels := mat.Channels()
	if channels != 1 && channels != 3 && channels != 4 {
		return errors.Errorf("unsupported number of channels: %d", channels)
	}
	return nil
}

// uniqueName must be called with the lock held.
func (w *Workspace) uniqueName(name string) string {
	if w.indexOf(name) < 0 {
		return name
	}
	for n := 2; ; n++ {
		candidate := fmt.Sprintf("%s (%d)", name, n)
		if w.indexOf(candidate) < 0 {
			return candidate
		}
	}
}

func (w *Workspace) indexOf(name string) int {
	for i, l := range w.layers {
		if l.name == name {
			return i
		}
	}
	return -1
}

// PushImage implements Layers. Add is the same operation for loaded files.
func (w *Workspace) PushImage(data gocv.Mat, name string) (string, error) {
	if err := validateImage(data); err != nil {
		return "", err
	}

	w.mu.Lock()
	unique := w.uniqueName(name)
	w.layers = append(w.layers, &layer{name: unique, image: data.Clone()})
	w.selected = len(w.layers) - 1
	w.mu.Unlock()

	w.changed()
	return unique, nil
}

func (w *Workspace) Add(data gocv.Mat, name string) (string, error) {
	return w.PushImage(data, name)
}

func (w *Workspace) CurrentImage() (gocv.Mat, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.selected < 0 {
		return gocv.NewMat(), pipeline.ErrNoImageSelected
	}
	return w.layers[w.selected].image.Clone(), nil
}

func (w *Workspace) CurrentImageName() (string, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.selected < 0 {
		return "", pipeline.ErrNoImageSelected
	}
	return w.layers[w.selected].name, nil
}

func (w *Workspace) RestoreCurrentImage(data gocv.Mat) error {
	if err := validateImage(data); err != nil {
		return err
	}

	w.mu.Lock()
	if w.selected < 0 {
		w.mu.Unlock()
		return pipeline.ErrNoImageSelected
	}
	l := w.layers[w.selected]
	l.image.Close()
	l.image = data.Clone()
	w.mu.Unlock()

	w.changed()
	return nil
}

// Select makes name the current image.
func (w *Workspace) Select(name string) error {
	w.mu.Lock()
	idx := w.indexOf(name)
	if idx < 0 {
		w.mu.Unlock()
		return errors.Errorf("no image named %q", name)
	}
	w.selected = idx
	w.mu.Unlock()

	w.changed()
	return nil
}

// Remove drops a layer. The selection moves to the previous layer.
func (w *Workspace) Remove(name string) error {
	w.mu.Lock()
	idx := w.indexOf(name)
	if idx < 0 {
		w.mu.Unlock()
		return errors.Errorf("no image named %q", name)
	}
	w.layers[idx].image.Close()
	w.layers = append(w.layers[:idx], w.layers[idx+1:]...)
	switch {
	case len(w.layers) == 0:
		w.selected = -1
	case w.selected >= idx && w.selected > 0:
		w.selected--
	}
	w.mu.Unlock()

	w.changed()
	return nil
}

// Names lists layers in insertion order.
func (w *Workspace) Names() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()

	names := make([]string, len(w.layers))
	for i, l := range w.layers {
		names[i] = l.name
	}
	return names
}

// Image returns a copy of the named layer.
func (w *Workspace) Image(name string) (gocv.Mat, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	idx := w.indexOf(name)
	if idx < 0 {
		return gocv.NewMat(), false
	}
	return w.layers[idx].image.Clone(), true
}

// Metadata describes the selected image.
func (w *Workspace) Metadata() (ImageMetadata, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.selected < 0 {
		return ImageMetadata{}, pipeline.ErrNoImageSelected
	}
	img := w.layers[w.selected].image
	return ImageMetadata{
		Width:    img.Cols(),
		Height:   img.Rows(),
		Channels: img.Channels(),
		Type:     img.Type(),
	}, nil
}

// Close releases every layer.
func (w *Workspace) Close() {
	w.mu.Lock()
	for _, l := range w.layers {
		l.image.Close()
	}
	w.layers = nil
	w.selected = -1
	w.mu.Unlock()
}
