// Workflow panel: recording controls, recorded steps and stored workflows
package gui

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"image-workflow/internal/core"
	"image-workflow/internal/pipeline"
	"image-workflow/internal/recorder"
	"image-workflow/internal/store"
)

type WorkflowPanel struct {
	ctx     context.Context
	window  fyne.Window
	session *core.Session
	logger  *slog.Logger

	container *fyne.Container

	stateLabel *widget.Label
	nameEntry  *widget.Entry
	recordBtn  *widget.Button
	stopBtn    *widget.Button
	saveBtn    *widget.Button
	stepList   *widget.List

	workflowList *widget.List
	replayBtn    *widget.Button
	exportBtn    *widget.Button
	deleteBtn    *widget.Button
	graphBtn     *widget.Button
	importBtn    *widget.Button
	finalBtn     *widget.Button

	steps     []pipeline.Command
	workflows []store.Entry
	selected  int

	onReplayed func()
}

func NewWorkflowPanel(ctx context.Context, window fyne.Window, session *core.Session, logger *slog.Logger) *WorkflowPanel {
	panel := &WorkflowPanel{
		ctx:      ctx,
		window:   window,
		session:  session,
		logger:   logger,
		selected: -1,
	}
	panel.initializeUI()
	panel.Refresh()
	return panel
}

func (wp *WorkflowPanel) initializeUI() {
	wp.stateLabel = widget.NewLabel("")

	wp.nameEntry = widget.NewEntry()
	wp.nameEntry.SetPlaceHolder("Workflow name")
	wp.nameEntry.OnChanged = func(name string) {
		wp.session.SetRecordingName(name)
	}

	wp.recordBtn = widget.NewButtonWithIcon("Record", theme.MediaRecordIcon(), func() {
		wp.session.StartRecording()
		wp.session.SetRecordingName(wp.nameEntry.Text)
		wp.Refresh()
	})
	wp.recordBtn.Importance = widget.HighImportance

	wp.stopBtn = widget.NewButtonWithIcon("Stop", theme.MediaStopIcon(), func() {
		wp.session.StopRecording()
		wp.Refresh()
	})

	wp.saveBtn = widget.NewButtonWithIcon("Save", theme.DocumentSaveIcon(), func() {
		if _, err := wp.session.SaveRecording(); err == nil {
			wp.nameEntry.SetText("")
		}
		wp.Refresh()
	})

	wp.stepList = widget.NewList(
		func() int {
			return len(wp.steps)
		},
		func() fyne.CanvasObject {
			return container.NewBorder(nil, nil, nil,
				widget.NewButtonWithIcon("", theme.DeleteIcon(), nil),
				widget.NewLabel("step"))
		},
		func(id widget.ListItemID, item fyne.CanvasObject) {
			if id >= len(wp.steps) {
				return
			}
			row := item.(*fyne.Container)
			label := row.Objects[0].(*widget.Label)
			removeBtn := row.Objects[1].(*widget.Button)

			label.SetText(fmt.Sprintf("%d. %s", id+1, wp.steps[id].String()))
			removeBtn.OnTapped = func() {
				_ = wp.session.RemoveRecordedStep(id)
				wp.Refresh()
			}
		},
	)

	recording := container.NewVBox(
		wp.stateLabel,
		wp.nameEntry,
		container.NewHBox(wp.recordBtn, wp.stopBtn, wp.saveBtn),
	)

	wp.workflowList = widget.NewList(
		func() int {
			return len(wp.workflows)
		},
		func() fyne.CanvasObject {
			return widget.NewLabel("workflow")
		},
		func(id widget.ListItemID, item fyne.CanvasObject) {
			if id >= len(wp.workflows) {
				return
			}
			e := wp.workflows[id]
			item.(*widget.Label).SetText(fmt.Sprintf("%d: %s", e.Key, e.Name))
		},
	)
	wp.workflowList.OnSelected = func(id widget.ListItemID) {
		wp.selected = id
		wp.updateButtons()
	}
	wp.workflowList.OnUnselected = func(widget.ListItemID) {
		wp.selected = -1
		wp.updateButtons()
	}

	wp.replayBtn = widget.NewButtonWithIcon("Replay", theme.MediaPlayIcon(), wp.replaySelected)
	wp.exportBtn = widget.NewButtonWithIcon("Export", theme.UploadIcon(), wp.exportSelected)
	wp.deleteBtn = widget.NewButtonWithIcon("Delete", theme.DeleteIcon(), wp.deleteSelected)
	wp.graphBtn = widget.NewButtonWithIcon("Graph", theme.InfoIcon(), wp.showGraph)
	wp.importBtn = widget.NewButtonWithIcon("Import", theme.DownloadIcon(), wp.importWorkflow)
	wp.finalBtn = widget.NewButtonWithIcon("Final stage...", theme.ConfirmIcon(), func() {
		ShowFinalStageDialog(wp.window, wp.session, wp.logger, wp.Refresh)
	})

	stored := container.NewBorder(nil,
		container.NewVBox(
			container.NewHBox(wp.replayBtn, wp.graphBtn, wp.deleteBtn),
			container.NewHBox(wp.importBtn, wp.exportBtn, wp.finalBtn),
		),
		nil, nil,
		wp.workflowList,
	)

	split := container.NewVSplit(
		widget.NewCard("⏺ Recording", "", container.NewBorder(recording, nil, nil, nil, wp.stepList)),
		widget.NewCard("📚 Workflows", "", stored),
	)
	split.SetOffset(0.5)
	wp.container = container.NewStack(split)
}

func (wp *WorkflowPanel) selectedKey() (store.Key, bool) {
	if wp.selected < 0 || wp.selected >= len(wp.workflows) {
		return 0, false
	}
	return wp.workflows[wp.selected].Key, true
}

func (wp *WorkflowPanel) replaySelected() {
	key, ok := wp.selectedKey()
	if !ok {
		return
	}
	if _, err := wp.session.ReplayPipeline(wp.ctx, key); err != nil {
		wp.logger.Error("Replay failed", "workflow", key, "error", err)
		return
	}
	if wp.onReplayed != nil {
		wp.onReplayed()
	}
}

func (wp *WorkflowPanel) deleteSelected() {
	key, ok := wp.selectedKey()
	if !ok {
		return
	}
	dialog.ShowConfirm("Delete workflow", fmt.Sprintf("Delete workflow %d?", key), func(confirmed bool) {
		if !confirmed {
			return
		}
		_ = wp.session.DeletePipeline(key)
		wp.workflowList.UnselectAll()
		wp.Refresh()
	}, wp.window)
}

func (wp *WorkflowPanel) showGraph() {
	key, ok := wp.selectedKey()
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := wp.session.PipelineGraph(key, &buf); err != nil {
		dialog.ShowError(err, wp.window)
		return
	}
	dot := widget.NewMultiLineEntry()
	dot.SetText(buf.String())
	dot.Wrapping = fyne.TextWrapOff

	d := dialog.NewCustom("Workflow graph (DOT)", "Close", container.NewScroll(dot), wp.window)
	d.Resize(fyne.NewSize(600, 400))
	d.Show()
}

func (wp *WorkflowPanel) exportSelected() {
	key, ok := wp.selectedKey()
	if !ok {
		return
	}
	fileDialog := dialog.NewFileSave(func(writer fyne.URIWriteCloser, err error) {
		if err != nil {
			dialog.ShowError(err, wp.window)
			return
		}
		if writer == nil {
			return
		}
		path := writer.URI().Path()
		// the export replaces the file atomically, so release the dialog's handle first
		writer.Close()

		if err := wp.session.ExportPipelineFile(key, path); err != nil {
			dialog.ShowError(err, wp.window)
		}
	}, wp.window)
	fileDialog.SetFileName(fmt.Sprintf("workflow_%d.json", key))
	fileDialog.SetFilter(storage.NewExtensionFileFilter([]string{".json"}))
	fileDialog.Show()
}

func (wp *WorkflowPanel) importWorkflow() {
	fileDialog := dialog.NewFileOpen(func(reader fyne.URIReadCloser, err error) {
		if err != nil {
			dialog.ShowError(err, wp.window)
			return
		}
		if reader == nil {
			return
		}
		path := reader.URI().Path()
		reader.Close()

		if _, err := wp.session.ImportPipelineFile(path); err != nil {
			dialog.ShowError(err, wp.window)
		}
		wp.Refresh()
	}, wp.window)
	fileDialog.SetFilter(storage.NewExtensionFileFilter([]string{".json"}))
	fileDialog.Show()
}

// Refresh reloads steps and workflows from the session. It must not be called
// from a session callback.
func (wp *WorkflowPanel) Refresh() {
	wp.steps = wp.session.RecordedSteps()
	wp.workflows = wp.session.ListPipelines()
	if wp.selected >= len(wp.workflows) {
		wp.selected = -1
	}

	state := wp.session.RecordingState()
	text := fmt.Sprintf("State: %s, %d step(s)", state, len(wp.steps))
	if key, ok := wp.session.AttachedPipeline(); ok {
		text += fmt.Sprintf(", final stage: %d", key)
	}
	wp.stateLabel.SetText(text)

	setEnabled(wp.recordBtn, state != recorder.Recording)
	setEnabled(wp.stopBtn, state == recorder.Recording)
	setEnabled(wp.saveBtn, len(wp.steps) > 0)

	wp.stepList.Refresh()
	wp.workflowList.Refresh()
	wp.updateButtons()
}

func (wp *WorkflowPanel) updateButtons() {
	_, ok := wp.selectedKey()
	for _, btn := range []*widget.Button{wp.replayBtn, wp.exportBtn, wp.deleteBtn, wp.graphBtn} {
		setEnabled(btn, ok)
	}
	setEnabled(wp.finalBtn, true)
}

func (wp *WorkflowPanel) GetContainer() fyne.CanvasObject {
	return wp.container
}

// SetReplayedCallback is called after a replay pushed new images.
func (wp *WorkflowPanel) SetReplayedCallback(fn func()) {
	wp.onReplayed = fn
}
