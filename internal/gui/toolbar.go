// Top toolbar: file buttons, undo and one button per registered command
package gui

import (
	"log/slog"
	"sort"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"image-workflow/internal/commands"
	"image-workflow/internal/pipeline"
)

type Toolbar struct {
	window   fyne.Window
	registry *commands.Registry
	logger   *slog.Logger

	container *fyne.Container

	openBtn *widget.Button
	saveBtn *widget.Button
	undoBtn *widget.Button

	filterBtns map[string]*widget.Button

	// Callbacks
	onOpen  func()
	onSave  func()
	onUndo  func()
	onApply func(identifier string, args []pipeline.Arg)
}

func NewToolbar(window fyne.Window, registry *commands.Registry, logger *slog.Logger) *Toolbar {
	tb := &Toolbar{
		window:     window,
		registry:   registry,
		logger:     logger,
		filterBtns: make(map[string]*widget.Button),
	}
	tb.initializeUI()
	return tb
}

func (tb *Toolbar) initializeUI() {
	tb.openBtn = widget.NewButtonWithIcon("OPEN IMAGE", theme.FolderOpenIcon(), func() {
		if tb.onOpen != nil {
			tb.onOpen()
		}
	})
	tb.openBtn.Importance = widget.HighImportance

	tb.saveBtn = widget.NewButtonWithIcon("SAVE IMAGE", theme.DocumentSaveIcon(), func() {
		if tb.onSave != nil {
			tb.onSave()
		}
	})
	tb.saveBtn.Disable()

	tb.undoBtn = widget.NewButtonWithIcon("Undo", theme.ContentUndoIcon(), func() {
		if tb.onUndo != nil {
			tb.onUndo()
		}
	})
	tb.undoBtn.Disable()

	fileSection := container.NewHBox(tb.openBtn, tb.saveBtn, widget.NewSeparator(), tb.undoBtn)

	groups := tb.registry.ByCategory()
	categories := make([]string, 0, len(groups))
	for category := range groups {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	filterRows := container.NewVBox()
	for _, category := range categories {
		row := container.NewHBox(widget.NewLabelWithStyle(category+":", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}))
		for _, id := range groups[category] {
			kind, _ := tb.registry.Lookup(id)
			btn := widget.NewButton(kind.Label(), tb.filterClicked(kind))
			btn.Disable()
			tb.filterBtns[id] = btn
			row.Add(btn)
		}
		filterRows.Add(row)
	}

	tb.container = container.NewVBox(fileSection, widget.NewSeparator(), filterRows)
}

func (tb *Toolbar) filterClicked(kind *commands.Kind) func() {
	return func() {
		if len(kind.Params) == 0 {
			tb.apply(kind.Identifier, nil)
			return
		}
		tb.showParamsDialog(kind)
	}
}

// showParamsDialog asks for the command's parameters, prefilled with defaults.
func (tb *Toolbar) showParamsDialog(kind *commands.Kind) {
	entries := make([]*widget.Entry, len(kind.Params))
	items := make([]*widget.FormItem, len(kind.Params))
	for i, param := range kind.Params {
		entry := widget.NewEntry()
		entry.SetText(argText(param.Default))
		entries[i] = entry
		item := widget.NewFormItem(param.Name, entry)
		item.HintText = param.Description
		items[i] = item
	}

	dialog.ShowForm(kind.Label(), "Apply", "Cancel", items, func(confirmed bool) {
		if !confirmed {
			return
		}
		texts := make([]string, len(entries))
		for i, e := range entries {
			texts[i] = e.Text
		}
		args, err := parseArgs(kind.Params, texts)
		if err != nil {
			tb.logger.Error("Invalid parameters", "command", kind.Identifier, "error", err)
			dialog.ShowError(err, tb.window)
			return
		}
		tb.apply(kind.Identifier, args)
	}, tb.window)
}

func (tb *Toolbar) apply(identifier string, args []pipeline.Arg) {
	if tb.onApply != nil {
		tb.onApply(identifier, args)
	}
}

func (tb *Toolbar) GetContainer() fyne.CanvasObject {
	return tb.container
}

// SetImageLoaded enables the buttons that need a selected image.
func (tb *Toolbar) SetImageLoaded(loaded bool) {
	for _, btn := range tb.filterBtns {
		setEnabled(btn, loaded)
	}
	setEnabled(tb.saveBtn, loaded)
}

func (tb *Toolbar) SetUndoAvailable(available bool) {
	setEnabled(tb.undoBtn, available)
}

func (tb *Toolbar) SetCallbacks(onOpen, onSave, onUndo func(), onApply func(string, []pipeline.Arg)) {
	tb.onOpen = onOpen
	tb.onSave = onSave
	tb.onUndo = onUndo
	tb.onApply = onApply
}

func setEnabled(w fyne.Disableable, enabled bool) {
	if enabled {
		w.Enable()
	} else {
		w.Disable()
	}
}
