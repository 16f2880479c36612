// Package history keeps bounded undo snapshots of image buffers.
package history

import (
	"gocv.io/x/gocv"
)

// DefaultCapacity is the number of snapshots kept per image.
const DefaultCapacity = 20

// Stack is a bounded LIFO of image snapshots. When full, the oldest snapshot
// is evicted.
type Stack struct {
	entries  []gocv.Mat
	capacity int
}

func NewStack(capacity int) *Stack {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Stack{capacity: capacity}
}

// Push stores a copy of img.
func (s *Stack) Push(img gocv.Mat) {
	if len(s.entries) == s.capacity {
		s.entries[0].Close()
		copy(s.entries, s.entries[1:])
		s.entries = s.entries[:len(s.entries)-1]
	}
	s.entries = append(s.entries, img.Clone())
}

// Pop removes the most recent snapshot. The caller owns the returned Mat.
func (s *Stack) Pop() (gocv.Mat, bool) {
	if len(s.entries) == 0 {
		return gocv.Mat{}, false
	}
	last := len(s.entries) - 1
	img := s.entries[last]
	s.entries[last] = gocv.Mat{}
	s.entries = s.entries[:last]
	return img, true
}

func (s *Stack) IsEmpty() bool { return len(s.entries) == 0 }

func (s *Stack) Len() int { return len(s.entries) }

func (s *Stack) Cap() int { return s.capacity }

// Reset drops every snapshot.
func (s *Stack) Reset() {
	for i := range s.entries {
		s.entries[i].Close()
	}
	s.entries = nil
}
