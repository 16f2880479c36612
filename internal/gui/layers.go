// Image list and preview of the selected image
package gui

import (
	"image"
	"image/color"
	"log/slog"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"

	"image-workflow/internal/core"
)

// LayerPanel shows every image in the workspace; tapping one selects it.
type LayerPanel struct {
	workspace *core.Workspace
	logger    *slog.Logger

	list    *widget.List
	preview *canvas.Image
	info    *widget.Label

	names []string
}

func NewLayerPanel(workspace *core.Workspace, logger *slog.Logger) *LayerPanel {
	lp := &LayerPanel{workspace: workspace, logger: logger}
	lp.initializeUI()
	return lp
}

func (lp *LayerPanel) initializeUI() {
	lp.list = widget.NewList(
		func() int {
			return len(lp.names)
		},
		func() fyne.CanvasObject {
			return widget.NewLabel("image")
		},
		func(id widget.ListItemID, item fyne.CanvasObject) {
			if id >= len(lp.names) {
				return
			}
			item.(*widget.Label).SetText(lp.names[id])
		},
	)
	lp.list.OnSelected = func(id widget.ListItemID) {
		if id >= len(lp.names) {
			return
		}
		if err := lp.workspace.Select(lp.names[id]); err != nil {
			lp.logger.Error("Unable to select image", "name", lp.names[id], "error", err)
		}
	}

	placeholder := image.NewRGBA(image.Rect(0, 0, 1, 1))
	placeholder.Set(0, 0, color.Gray{Y: 64})
	lp.preview = canvas.NewImageFromImage(placeholder)
	lp.preview.FillMode = canvas.ImageFillContain
	lp.preview.SetMinSize(fyne.NewSize(400, 300))

	lp.info = widget.NewLabel("No image loaded")
}

// ListContainer is the image list for the side panel.
func (lp *LayerPanel) ListContainer() fyne.CanvasObject {
	return widget.NewCard("🖼 Images", "", lp.list)
}

// PreviewContainer is the preview for the centre panel.
func (lp *LayerPanel) PreviewContainer() fyne.CanvasObject {
	return container.NewBorder(nil, lp.info, nil, nil, lp.preview)
}

// Refresh reloads names and the preview from the workspace.
func (lp *LayerPanel) Refresh() {
	lp.names = lp.workspace.Names()
	lp.list.Refresh()

	name, err := lp.workspace.CurrentImageName()
	if err != nil {
		lp.info.SetText("No image loaded")
		return
	}
	for i, n := range lp.names {
		if n == name {
			lp.list.Select(i)
			break
		}
	}

	mat, err := lp.workspace.CurrentImage()
	if err != nil {
		return
	}
	defer mat.Close()

	img, err := mat.ToImage()
	if err != nil {
		lp.logger.Error("Unable to render preview", "name", name, "error", err)
		return
	}
	lp.preview.Image = img
	lp.preview.Refresh()

	if md, err := lp.workspace.Metadata(); err == nil {
		lp.info.SetText(formatInfo(name, md))
	}
}

// Names is what the list currently shows.
func (lp *LayerPanel) Names() []string {
	return lp.names
}
