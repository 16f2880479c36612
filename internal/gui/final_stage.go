package gui

import (
	"log/slog"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"image-workflow/internal/core"
)

// choiceFor maps a picked label back to its choice. An empty or unknown label
// counts as a cancel.
func choiceFor(options []core.FinalStageOption, label string) core.Choice {
	for _, opt := range options {
		if opt.Label == label {
			return opt.Choice
		}
	}
	return core.CancelChoice()
}

func optionLabels(options []core.FinalStageOption) []string {
	labels := make([]string, len(options))
	for i, opt := range options {
		labels[i] = opt.Label
	}
	return labels
}

// ShowFinalStageDialog lets the user pick the workflow for the downstream stage.
// Closing the dialog is a cancel and changes nothing.
func ShowFinalStageDialog(window fyne.Window, session *core.Session, logger *slog.Logger, onResolved func()) {
	options := session.FinalStageOptions()

	radio := widget.NewRadioGroup(optionLabels(options), nil)
	if len(options) > 0 {
		radio.SetSelected(options[0].Label)
	}

	items := []*widget.FormItem{widget.NewFormItem("Workflow", radio)}
	d := dialog.NewForm("Select workflow for final stage", "Select", "Cancel", items, func(confirmed bool) {
		choice := core.CancelChoice()
		if confirmed {
			choice = choiceFor(options, radio.Selected)
		}
		selection, err := session.ResolveFinalStage(choice)
		if err != nil {
			logger.Error("Final stage selection failed", "error", err)
			return
		}
		logger.Info("Final stage selection resolved", "outcome", selection.Outcome.String())
		if onResolved != nil {
			onResolved()
		}
	}, window)
	d.Resize(fyne.NewSize(400, 300))
	d.Show()
}
