// Menu handler for application actions
package gui

import (
	"fmt"
	"log/slog"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/widget"

	"image-workflow/internal/core"
	wfio "image-workflow/internal/io"
)

// MenuHandler handles menu actions
type MenuHandler struct {
	window    fyne.Window
	workspace *core.Workspace
	session   *core.Session
	loader    *wfio.ImageLoader
	logger    *slog.Logger

	onImageLoaded func(string)
	onImageSaved  func(string)
	onUndo        func()
	onWorkflow    func()
}

func NewMenuHandler(window fyne.Window, workspace *core.Workspace, session *core.Session, loader *wfio.ImageLoader, logger *slog.Logger) *MenuHandler {
	return &MenuHandler{
		window:    window,
		workspace: workspace,
		session:   session,
		loader:    loader,
		logger:    logger,
	}
}

func (mh *MenuHandler) GetMainMenu() *fyne.MainMenu {
	fileMenu := fyne.NewMenu("File",
		fyne.NewMenuItem("Open Image...", mh.openImage),
		fyne.NewMenuItem("Save Image...", mh.saveImage),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Exit", func() {
			mh.window.Close()
		}),
	)

	editMenu := fyne.NewMenu("Edit",
		fyne.NewMenuItem("Undo", func() {
			if mh.onUndo != nil {
				mh.onUndo()
			}
		}),
	)

	workflowMenu := fyne.NewMenu("Workflow",
		fyne.NewMenuItem("Start Recording", func() {
			mh.session.StartRecording()
			mh.workflowChanged()
		}),
		fyne.NewMenuItem("Stop Recording", func() {
			mh.session.StopRecording()
			mh.workflowChanged()
		}),
		fyne.NewMenuItem("Save Recording", func() {
			_, _ = mh.session.SaveRecording()
			mh.workflowChanged()
		}),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Select for Final Stage...", func() {
			ShowFinalStageDialog(mh.window, mh.session, mh.logger, mh.workflowChanged)
		}),
	)

	helpMenu := fyne.NewMenu("Help",
		fyne.NewMenuItem("About", mh.showAbout),
	)

	return fyne.NewMainMenu(fileMenu, editMenu, workflowMenu, helpMenu)
}

func (mh *MenuHandler) workflowChanged() {
	if mh.onWorkflow != nil {
		mh.onWorkflow()
	}
}

func (mh *MenuHandler) openImage() {
	mh.logger.Info("Opening file dialog for image selection")

	fileDialog := dialog.NewFileOpen(func(reader fyne.URIReadCloser, err error) {
		if err != nil {
			mh.showError("File Dialog Error", err)
			return
		}
		if reader == nil {
			return
		}
		defer reader.Close()

		path := reader.URI().Path()
		if err := mh.LoadImage(path); err != nil {
			mh.showError("Failed to Load Image", err)
		}
	}, mh.window)

	fileDialog.SetFilter(storage.NewExtensionFileFilter(wfio.SupportedFormats()))
	fileDialog.Show()
}

// LoadImage reads path and adds it to the workspace as the selected image.
func (mh *MenuHandler) LoadImage(path string) error {
	mat, err := mh.loader.LoadImage(path)
	if err != nil {
		return err
	}
	defer mat.Close()

	name, err := mh.workspace.Add(mat, wfio.ImageName(path))
	if err != nil {
		return err
	}
	mh.logger.Info("Image loaded successfully", "filepath", path, "name", name)

	if mh.onImageLoaded != nil {
		mh.onImageLoaded(name)
	}
	return nil
}

func (mh *MenuHandler) saveImage() {
	name, err := mh.workspace.CurrentImageName()
	if err != nil {
		mh.showError("No Image", fmt.Errorf("no image loaded to save"))
		return
	}

	fileDialog := dialog.NewFileSave(func(writer fyne.URIWriteCloser, err error) {
		if err != nil {
			mh.showError("File Dialog Error", err)
			return
		}
		if writer == nil {
			return
		}
		path := writer.URI().Path()
		writer.Close()

		current, err := mh.workspace.CurrentImage()
		if err != nil {
			mh.showError("No Image", err)
			return
		}
		defer current.Close()

		if err := mh.loader.SaveImage(current, path); err != nil {
			mh.showError("Failed to Save Image", err)
			return
		}
		if mh.onImageSaved != nil {
			mh.onImageSaved(path)
		}
	}, mh.window)

	fileDialog.SetFileName(strings.ReplaceAll(name, " | ", "_") + ".png")
	fileDialog.SetFilter(storage.NewExtensionFileFilter(wfio.SupportedFormats()))
	fileDialog.Show()
}

func (mh *MenuHandler) showAbout() {
	content := container.NewVBox(
		widget.NewLabel("Image Workflow"),
		widget.NewSeparator(),
		widget.NewLabel("Apply filters, undo them, and record the steps"),
		widget.NewLabel("as workflows you can save, share and replay."),
		widget.NewSeparator(),
		widget.NewLabel("Built with Go, Fyne v2.6, and OpenCV"),
	)

	aboutDialog := dialog.NewCustom("About", "Close", content, mh.window)
	aboutDialog.Resize(fyne.NewSize(400, 250))
	aboutDialog.Show()
}

func (mh *MenuHandler) showError(title string, err error) {
	mh.logger.Error(title, "error", err)
	dialog.ShowError(err, mh.window)
}

func (mh *MenuHandler) SetCallbacks(onImageLoaded, onImageSaved func(string), onUndo, onWorkflow func()) {
	mh.onImageLoaded = onImageLoaded
	mh.onImageSaved = onImageSaved
	mh.onUndo = onUndo
	mh.onWorkflow = onWorkflow
}
