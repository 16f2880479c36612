package gui

import (
	"fmt"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/widget"

	"image-workflow/internal/core"
)

const maxStatusLines = 200

// StatusLog shows the session's status messages, newest last.
type StatusLog struct {
	mu    sync.Mutex
	lines []string
	list  *widget.List
}

func NewStatusLog() *StatusLog {
	sl := &StatusLog{}
	sl.list = widget.NewList(
		func() int {
			sl.mu.Lock()
			defer sl.mu.Unlock()
			return len(sl.lines)
		},
		func() fyne.CanvasObject {
			return widget.NewLabel("status")
		},
		func(id widget.ListItemID, item fyne.CanvasObject) {
			sl.mu.Lock()
			defer sl.mu.Unlock()
			if id < len(sl.lines) {
				item.(*widget.Label).SetText(sl.lines[id])
			}
		},
	)
	return sl
}

// Append is a core.Notifier. It may be called from any goroutine.
func (sl *StatusLog) Append(message string) {
	sl.mu.Lock()
	sl.lines = append(sl.lines, message)
	if len(sl.lines) > maxStatusLines {
		sl.lines = sl.lines[len(sl.lines)-maxStatusLines:]
	}
	last := len(sl.lines) - 1
	sl.mu.Unlock()

	fyne.Do(func() {
		sl.list.Refresh()
		sl.list.ScrollTo(last)
	})
}

func (sl *StatusLog) Lines() []string {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return append([]string(nil), sl.lines...)
}

func (sl *StatusLog) GetContainer() fyne.CanvasObject {
	return widget.NewCard("📊 Status", "", sl.list)
}

func formatInfo(name string, md core.ImageMetadata) string {
	return fmt.Sprintf("%s  %dx%d, %d channel(s)", name, md.Width, md.Height, md.Channels)
}
