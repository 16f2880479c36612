package history

import (
	"io"
	"log/slog"

	"gocv.io/x/gocv"
)

// AvailabilityFunc is called when undo becomes available or unavailable for key.
type AvailabilityFunc func(key string, available bool)

// Manager keeps one Stack per image selection.
type Manager struct {
	stacks   map[string]*Stack
	capacity int
	onChange AvailabilityFunc
	logger   *slog.Logger
}

func NewManager(capacity int, logger *slog.Logger) *Manager {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Manager{
		stacks:   make(map[string]*Stack),
		capacity: capacity,
		logger:   logger,
	}
}

// OnAvailabilityChange registers fn to be told when CanUndo flips for a key.
func (m *Manager) OnAvailabilityChange(fn AvailabilityFunc) {
	m.onChange = fn
}

// Push snapshots img as the prior state of key.
func (m *Manager) Push(key string, img gocv.Mat) {
	before := m.CanUndo(key)
	s, ok := m.stacks[key]
	if !ok {
		s = NewStack(m.capacity)
		m.stacks[key] = s
	}
	s.Push(img)
	m.logger.Debug("HISTORY: snapshot pushed", "image", key, "depth", s.Len())
	m.notify(key, before)
}

// Pop returns the most recent snapshot for key. The caller owns the Mat.
func (m *Manager) Pop(key string) (gocv.Mat, bool) {
	s, ok := m.stacks[key]
	if !ok {
		return gocv.Mat{}, false
	}
	img, ok := s.Pop()
	if !ok {
		return gocv.Mat{}, false
	}
	if s.IsEmpty() {
		delete(m.stacks, key)
	}
	m.logger.Debug("HISTORY: snapshot popped", "image", key, "depth", s.Len())
	m.notify(key, true)
	return img, true
}

func (m *Manager) CanUndo(key string) bool {
	s, ok := m.stacks[key]
	return ok && !s.IsEmpty()
}

func (m *Manager) Depth(key string) int {
	if s, ok := m.stacks[key]; ok {
		return s.Len()
	}
	return 0
}

// Transfer moves the history of from onto to, replacing whatever to had.
// Used when an apply leaves a new image selected.
func (m *Manager) Transfer(from, to string) {
	if from == to {
		return
	}
	fromBefore, toBefore := m.CanUndo(from), m.CanUndo(to)

	if old, ok := m.stacks[to]; ok {
		old.Reset()
		delete(m.stacks, to)
	}
	if s, ok := m.stacks[from]; ok {
		m.stacks[to] = s
		delete(m.stacks, from)
	}

	m.notify(from, fromBefore)
	m.notify(to, toBefore)
}

// Reset drops all history.
func (m *Manager) Reset() {
	for key, s := range m.stacks {
		s.Reset()
		delete(m.stacks, key)
		m.notify(key, true)
	}
	m.logger.Debug("HISTORY: reset")
}

func (m *Manager) notify(key string, before bool) {
	after := m.CanUndo(key)
	if m.onChange != nil && before != after {
		m.onChange(key, after)
	}
}
