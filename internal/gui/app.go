// Main application window: toolbar, image list, preview, workflow panel and status
package gui

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"

	"image-workflow/internal/commands"
	"image-workflow/internal/config"
	"image-workflow/internal/core"
	wfio "image-workflow/internal/io"
	"image-workflow/internal/pipeline"
)

// Application represents the main application window
type Application struct {
	app    fyne.App
	window fyne.Window
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// Core components
	workspace *core.Workspace
	session   *core.Session
	loader    *wfio.ImageLoader

	// GUI components
	toolbar       *Toolbar
	layerPanel    *LayerPanel
	workflowPanel *WorkflowPanel
	status        *StatusLog
	menuHandler   *MenuHandler

	// undo availability per image, fed by the session
	undoMu    sync.Mutex
	undoState map[string]bool
}

func NewApplication(app fyne.App, registry *commands.Registry, cfg config.Config, logger *slog.Logger) *Application {
	window := app.NewWindow("Image Workflow")
	window.Resize(fyne.NewSize(1600, 1000))
	window.CenterOnScreen()

	ctx, cancel := context.WithCancel(context.Background())
	a := &Application{
		app:       app,
		window:    window,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		undoState: make(map[string]bool),
	}

	a.initializeCore(registry, cfg)
	a.initializeGUI()
	a.setupLayout()
	a.setupCallbacks()
	return a
}

func (a *Application) initializeCore(registry *commands.Registry, cfg config.Config) {
	a.status = NewStatusLog()
	a.workspace = core.NewWorkspace()
	a.loader = wfio.NewImageLoader(a.logger)
	a.session = core.NewSession(registry, a.workspace,
		core.WithLogger(a.logger),
		core.WithNotifier(a.status.Append),
		core.WithHistoryCapacity(cfg.History.Capacity),
		core.WithStepTimeout(cfg.Executor.StepTimeout),
	)
}

func (a *Application) initializeGUI() {
	a.toolbar = NewToolbar(a.window, a.session.Registry(), a.logger)
	a.layerPanel = NewLayerPanel(a.workspace, a.logger)
	a.workflowPanel = NewWorkflowPanel(a.ctx, a.window, a.session, a.logger)
	a.menuHandler = NewMenuHandler(a.window, a.workspace, a.session, a.loader, a.logger)
}

func (a *Application) setupLayout() {
	center := container.NewBorder(
		widget.NewCard("🛠️ Tools", "", a.toolbar.GetContainer()),
		nil, nil, nil,
		container.NewPadded(a.layerPanel.PreviewContainer()),
	)

	right := container.NewVSplit(
		a.workflowPanel.GetContainer(),
		a.status.GetContainer(),
	)
	right.SetOffset(0.7)

	centerAndRight := container.NewHSplit(center, right)
	centerAndRight.SetOffset(0.7)

	content := container.NewHSplit(a.layerPanel.ListContainer(), centerAndRight)
	content.SetOffset(0.18)

	a.window.SetMainMenu(a.menuHandler.GetMainMenu())
	a.window.SetContent(content)
}

// Session callbacks run with the session lock held; they only touch widgets
// and the workspace, never the session.
func (a *Application) setupCallbacks() {
	a.session.OnUndoAvailabilityChange(func(name string, available bool) {
		a.undoMu.Lock()
		a.undoState[name] = available
		a.undoMu.Unlock()
		fyne.Do(a.refreshUndo)
	})

	a.workspace.OnChange(func() {
		fyne.Do(func() {
			a.layerPanel.Refresh()
			a.toolbar.SetImageLoaded(len(a.workspace.Names()) > 0)
			a.refreshUndo()
		})
	})

	a.toolbar.SetCallbacks(
		a.menuHandler.openImage,
		a.menuHandler.saveImage,
		a.undo,
		a.apply,
	)

	a.menuHandler.SetCallbacks(
		// onImageLoaded
		func(name string) {
			a.logger.Info("Image added", "name", name)
		},
		// onImageSaved
		func(path string) {
			a.status.Append(fmt.Sprintf("[Update] saved image to %s", path))
		},
		a.undo,
		a.workflowPanel.Refresh,
	)

	a.workflowPanel.SetReplayedCallback(a.layerPanel.Refresh)
}

func (a *Application) refreshUndo() {
	name, err := a.workspace.CurrentImageName()
	available := false
	if err == nil {
		a.undoMu.Lock()
		available = a.undoState[name]
		a.undoMu.Unlock()
	}
	a.toolbar.SetUndoAvailable(available)
}

func (a *Application) apply(identifier string, args []pipeline.Arg) {
	if _, err := a.session.Apply(a.ctx, identifier, args...); err != nil {
		a.logger.Debug("Apply failed", "command", identifier, "error", err)
	}
	a.workflowPanel.Refresh()
}

func (a *Application) undo() {
	restored, ok, err := a.session.Undo()
	restored.Close()
	if err != nil || !ok {
		return
	}
	a.layerPanel.Refresh()
}

// Session exposes the session to components outside the window, such as the
// import watcher.
func (a *Application) Session() *core.Session {
	return a.session
}

// RefreshWorkflows reloads the workflow panel on the UI goroutine.
func (a *Application) RefreshWorkflows() {
	fyne.Do(a.workflowPanel.Refresh)
}

// LoadImageFromPath adds an image file to the workspace.
func (a *Application) LoadImageFromPath(path string) error {
	if err := a.menuHandler.LoadImage(path); err != nil {
		return fmt.Errorf("failed to load image: %w", err)
	}
	return nil
}

func (a *Application) ShowAndRun() {
	a.logger.Info("Showing main application window")

	a.window.SetCloseIntercept(func() {
		a.cleanup()
		a.app.Quit()
	})

	a.window.ShowAndRun()
}

func (a *Application) cleanup() {
	a.logger.Info("Cleaning up application resources")
	a.cancel()
	a.workspace.Close()
}
