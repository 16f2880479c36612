package recorder

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"image-workflow/internal/pipeline"
	"image-workflow/internal/store"
)

type failingCommitter struct{}

func (failingCommitter) Save(*pipeline.Pipeline) (store.Key, error) {
	return 0, errors.New("disk full")
}

func record(r *Recorder, ids ...string) {
	for _, id := range ids {
		r.Record(pipeline.NewCommand(id))
	}
}

func TestStateMachine(t *testing.T) {
	t.Parallel()

	r := New(nil)
	assert.Equal(t, Idle, r.State())

	record(r, "ignored")
	assert.True(t, r.Target().IsEmpty(), "idle recorder must not record")

	assert.True(t, r.Start())
	assert.Equal(t, Recording, r.State())
	record(r, "grayscale")

	assert.False(t, r.Start(), "start while recording is a no-op")
	assert.Equal(t, 1, r.Target().Len())

	r.Stop()
	assert.Equal(t, Idle, r.State())
	record(r, "sharpen")
	assert.Equal(t, 1, r.Target().Len())
}

func TestStartDiscardsUnsavedTarget(t *testing.T) {
	t.Parallel()

	r := New(nil)
	r.Start()
	record(r, "a", "b")
	r.Stop()

	r.Start()
	assert.True(t, r.Target().IsEmpty())
}

func TestSaveCommitsAndResets(t *testing.T) {
	t.Parallel()

	s := store.New(nil)
	r := New(nil)
	r.Start()
	record(r, "grayscale", "sharpen")
	r.SetName("crisp")

	key, err := r.Save(s)
	require.NoError(t, err)
	assert.Equal(t, Idle, r.State())
	assert.True(t, r.Target().IsEmpty())
	assert.Empty(t, r.Target().Name)

	saved, err := s.Get(key)
	require.NoError(t, err)
	assert.Equal(t, "crisp", saved.Name)
	assert.Equal(t, []string{"grayscale", "sharpen"}, saved.Identifiers())
}

func TestSaveAfterStop(t *testing.T) {
	t.Parallel()

	s := store.New(nil)
	r := New(nil)
	r.Start()
	record(r, "grayscale")
	r.Stop()

	_, err := r.Save(s)
	require.NoError(t, err)
	assert.Len(t, s.List(), 1)
}

func TestSaveEmptyFailsWithoutStateChange(t *testing.T) {
	t.Parallel()

	s := store.New(nil)
	r := New(nil)
	r.Start()

	_, err := r.Save(s)
	assert.ErrorIs(t, err, pipeline.ErrEmptyPipeline)
	assert.Equal(t, Recording, r.State())
	assert.Empty(t, s.List())
}

func TestSaveFailureKeepsTarget(t *testing.T) {
	t.Parallel()

	r := New(nil)
	r.Start()
	record(r, "grayscale")
	target := r.Target()

	_, err := r.Save(failingCommitter{})
	assert.Error(t, err)
	assert.Same(t, target, r.Target())
	assert.Equal(t, Recording, r.State())
}

func TestRemoveStepShiftsSubsequentSteps(t *testing.T) {
	t.Parallel()

	r := New(nil)
	r.Start()
	record(r, "s0", "s1", "s2", "s3")

	removed, err := r.RemoveStep(r.Target(), 1)
	require.NoError(t, err)
	assert.Equal(t, "s1", removed.Identifier)
	assert.Equal(t, []string{"s0", "s2", "s3"}, r.Target().Identifiers())

	_, err = r.RemoveStep(r.Target(), 3)
	assert.ErrorIs(t, err, pipeline.ErrStepOutOfRange)
}

func TestRemoveStepByIdentifierFirstMatch(t *testing.T) {
	t.Parallel()

	r := New(nil)
	r.Start()
	record(r, "blur", "sharpen", "blur")

	idx, err := r.RemoveStepByIdentifier(r.Target(), "blur")
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
	assert.Equal(t, []string{"sharpen", "blur"}, r.Target().Identifiers())

	_, err = r.RemoveStepByIdentifier(r.Target(), "nope")
	assert.ErrorIs(t, err, pipeline.ErrStepNotFound)
}

func TestRemoveFromOtherPipelineIsRejected(t *testing.T) {
	t.Parallel()

	s := store.New(nil)
	r := New(nil)
	r.Start()
	record(r, "a", "b")
	saved := r.Target()
	_, err := r.Save(s)
	require.NoError(t, err)

	_, err = r.RemoveStep(saved, 0)
	assert.ErrorIs(t, err, pipeline.ErrNotRecordingTarget)
	_, err = r.RemoveStepByIdentifier(saved, "a")
	assert.ErrorIs(t, err, pipeline.ErrNotRecordingTarget)

	stranger := pipeline.New("stranger")
	stranger.Append(pipeline.NewCommand("a"))
	_, err = r.RemoveStep(stranger, 0)
	assert.ErrorIs(t, err, pipeline.ErrNotRecordingTarget)
	assert.Equal(t, 1, stranger.Len())
}

func TestStateString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "recording", Recording.String())
}
