package core

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"image-workflow/internal/commands"
	"image-workflow/internal/executor"
	"image-workflow/internal/history"
	wfio "image-workflow/internal/io"
	"image-workflow/internal/metrics"
	"image-workflow/internal/pipeline"
	"image-workflow/internal/recorder"
	"image-workflow/internal/store"
)

// Notifier receives short status lines for the user, e.g. "[Error] ...".
type Notifier func(message string)

// Option configures a Session.
type Option func(*Session)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithNotifier(n Notifier) Option {
	return func(s *Session) { s.notify = n }
}

// WithHistoryCapacity sets the number of undo snapshots kept per image.
func WithHistoryCapacity(capacity int) Option {
	return func(s *Session) { s.historyCapacity = capacity }
}

// WithStepTimeout bounds every command run, live or replayed.
func WithStepTimeout(d time.Duration) Option {
	return func(s *Session) { s.stepTimeout = d }
}

// Session is the entry point for a host: it applies commands to the selected
// image, keeps undo history, records and stores pipelines and replays them.
// All methods are serialized; none of them start goroutines.
type Session struct {
	mu sync.Mutex

	registry *commands.Registry
	layers   Layers
	history  *history.Manager
	recorder *recorder.Recorder
	store    *store.Store
	executor *executor.Executor

	logger          *slog.Logger
	notify          Notifier
	historyCapacity int
	stepTimeout     time.Duration
	attached        *store.Key
	// exported files by cleaned path, so a watched import directory does
	// not read them back as new pipelines
	exported map[string]exportedFile
}

type exportedFile struct {
	key  store.Key
	data []byte
}

func NewSession(registry *commands.Registry, layers Layers, opts ...Option) *Session {
	s := &Session{
		registry:        registry,
		layers:          layers,
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
		historyCapacity: history.DefaultCapacity,
		exported:        make(map[string]exportedFile),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.history = history.NewManager(s.historyCapacity, s.logger)
	s.recorder = recorder.New(s.logger)
	s.store = store.New(s.logger)
	s.executor = executor.New(registry,
		executor.WithStepTimeout(s.stepTimeout),
		executor.WithLogger(s.logger))
	return s
}

func (s *Session) Registry() *commands.Registry { return s.registry }

// OnUndoAvailabilityChange lets the host enable or disable its undo control.
func (s *Session) OnUndoAvailabilityChange(fn history.AvailabilityFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history.OnAvailabilityChange(fn)
}

func (s *Session) say(format string, args ...interface{}) {
	if s.notify != nil {
		s.notify(fmt.Sprintf(format, args...))
	}
}

func (s *Session) fail(op string, err error) error {
	s.logger.Error("SESSION: "+op+" failed", "error", err, "category", pipeline.CategoryOf(err).String())
	s.say("[Error] %v", err)
	return err
}

// Apply runs a command on the selected image and pushes its output(s) as new
// images, returning their names. On success the prior image is kept for undo
// and, while recording, the command is appended with its resolved arguments.
// On failure nothing changes.
func (s *Session) Apply(ctx context.Context, identifier string, args ...pipeline.Arg) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	names, err := s.apply(ctx, identifier, args)
	if err != nil {
		return names, s.fail("apply "+identifier, err)
	}
	return names, nil
}

func (s *Session) apply(ctx context.Context, identifier string, args []pipeline.Arg) ([]string, error) {
	kind, err := s.registry.Resolve(identifier)
	if err != nil {
		return nil, err
	}
	source, err := s.layers.CurrentImageName()
	if err != nil {
		return nil, err
	}
	img, err := s.layers.CurrentImage()
	if err != nil {
		return nil, err
	}
	defer img.Close()

	resolved, err := kind.ResolveArgs(args)
	if err != nil {
		return nil, &pipeline.TransformError{Step: -1, Identifier: identifier, Err: err}
	}

	outputs, err := s.executor.Invoke(ctx, metrics.ModeApply, kind, img, resolved)
	if err != nil {
		return nil, &pipeline.TransformError{Step: -1, Identifier: identifier, Err: err}
	}
	defer closeMats(outputs)

	names := make([]string, 0, len(outputs))
	for i, out := range outputs {
		pushed, err := s.layers.PushImage(out, derivedName(source, kind, i))
		if err != nil {
			s.discardPushed(source, names)
			return nil, &pipeline.TransformError{Step: -1, Identifier: identifier,
				Err: errors.Wrapf(err, "unable to show output %d", i)}
		}
		names = append(names, pushed)
	}

	current, err := s.layers.CurrentImageName()
	if err != nil {
		current = names[len(names)-1]
	}
	s.history.Push(source, img)
	s.history.Transfer(source, current)
	s.recorder.Record(pipeline.NewCommand(identifier, resolved...))
	metrics.SetHistoryDepth(s.history.Depth(current))

	s.logger.Info("SESSION: command applied", "command", identifier, "source", source, "outputs", len(names))
	return names, nil
}

// discardPushed removes the outputs of a partly shown apply and selects
// source again.
func (s *Session) discardPushed(source string, names []string) {
	for i := len(names) - 1; i >= 0; i-- {
		if err := s.layers.Remove(names[i]); err != nil {
			s.logger.Warn("SESSION: unable to remove partial output", "image", names[i], "error", err)
		}
	}
	if err := s.layers.Select(source); err != nil {
		s.logger.Warn("SESSION: unable to reselect source", "image", source, "error", err)
	}
}

func derivedName(source string, kind *commands.Kind, output int) string {
	if kind.Arity == commands.OneToMany {
		return fmt.Sprintf("%s | %s_%s", source, kind.Label(), kind.Outputs[output])
	}
	return fmt.Sprintf("%s | %s", source, kind.Label())
}

func closeMats(mats []gocv.Mat) {
	for i := range mats {
		mats[i].Close()
	}
}

// Undo restores the selected image to its state before the last apply. It
// returns a copy of the restored pixels, owned by the caller, and false when
// there is nothing to undo.
func (s *Session) Undo() (gocv.Mat, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	name, err := s.layers.CurrentImageName()
	if err != nil {
		return gocv.NewMat(), false, s.fail("undo", err)
	}

	prev, ok := s.history.Pop(name)
	metrics.RecordUndo(ok)
	if !ok {
		s.say("[Info] nothing to undo")
		return gocv.NewMat(), false, nil
	}
	if err := s.layers.RestoreCurrentImage(prev); err != nil {
		s.history.Push(name, prev)
		prev.Close()
		return gocv.NewMat(), false, s.fail("undo", err)
	}
	metrics.SetHistoryDepth(s.history.Depth(name))
	s.logger.Info("SESSION: undo", "image", name, "remaining", s.history.Depth(name))
	return prev, true, nil
}

// CanUndo reports whether the selected image has undo history.
func (s *Session) CanUndo() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	name, err := s.layers.CurrentImageName()
	if err != nil {
		return false
	}
	return s.history.CanUndo(name)
}

// StartRecording begins a new recording and clears undo history. It is a
// no-op while already recording.
func (s *Session) StartRecording() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.recorder.Start() {
		return
	}
	s.history.Reset()
	metrics.SetHistoryDepth(0)
	s.say("[Update] recording started")
}

func (s *Session) StopRecording() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.recorder.IsRecording() {
		return
	}
	s.recorder.Stop()
	s.say("[Update] recording stopped with %d step(s)", s.recorder.Target().Len())
}

func (s *Session) SetRecordingName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recorder.SetName(name)
}

func (s *Session) RecordingName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recorder.Target().Name
}

// SaveRecording commits the recorded steps to the store.
func (s *Session) SaveRecording() (store.Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, err := s.recorder.Save(s.store)
	if err != nil {
		return 0, s.fail("save", err)
	}
	metrics.SetPipelinesStored(s.store.Len())

	p, err := s.store.Get(key)
	if err == nil {
		s.say("[Update] saved workflow %q (%d)", p.Name, key)
	}
	return key, nil
}

func (s *Session) RecordingState() recorder.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recorder.State()
}

// RecordedSteps returns a copy of the steps recorded so far.
func (s *Session) RecordedSteps() []pipeline.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recorder.Target().Clone().Steps
}

func (s *Session) RemoveRecordedStep(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.recorder.RemoveStep(s.recorder.Target(), index); err != nil {
		return s.fail("remove step", err)
	}
	return nil
}

func (s *Session) RemoveRecordedStepByIdentifier(identifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.recorder.RemoveStepByIdentifier(s.recorder.Target(), identifier); err != nil {
		return s.fail("remove step", err)
	}
	return nil
}

func (s *Session) ListPipelines() []store.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.List()
}

// Pipeline returns a copy of a stored pipeline.
func (s *Session) Pipeline(key store.Key) (*pipeline.Pipeline, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Get(key)
}

func (s *Session) DeletePipeline(key store.Key) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Delete(key); err != nil {
		return s.fail("delete", err)
	}
	if s.attached != nil && *s.attached == key {
		s.attached = nil
	}
	metrics.SetPipelinesStored(s.store.Len())
	s.say("[Update] deleted workflow %d", key)
	return nil
}

func (s *Session) ExportPipeline(key store.Key, w io.Writer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Export(key, w); err != nil {
		return s.fail("export", err)
	}
	return nil
}

// ExportPipelineFile writes the pipeline to path. path is replaced only once
// the whole document has been written.
func (s *Session) ExportPipelineFile(key store.Key, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var buf bytes.Buffer
	if err := s.store.Export(key, &buf); err != nil {
		return s.fail("export", err)
	}
	err := wfio.WriteFileAtomic(path, func(w io.Writer) error {
		_, err := w.Write(buf.Bytes())
		return err
	})
	if err != nil {
		return s.fail("export", err)
	}
	s.exported[filepath.Clean(path)] = exportedFile{key: key, data: buf.Bytes()}
	s.say("[Update] exported workflow %d to %s", key, path)
	return nil
}

func (s *Session) ImportPipeline(r io.Reader) (store.Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.importPipeline(r)
}

func (s *Session) ImportPipelineFile(path string) (store.Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var key store.Key
	err := wfio.ReadFile(path, func(r io.Reader) error {
		var err error
		key, err = s.importPipeline(r)
		return err
	})
	return key, err
}

// ImportWatchedFile is ImportPipelineFile for files found in a watched
// directory. A file this session exported, unchanged since and whose pipeline
// is still stored, resolves to the existing key instead of a new entry.
func (s *Session) ImportWatchedFile(path string) (store.Key, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var key store.Key
	err := wfio.ReadFile(path, func(r io.Reader) error {
		data, err := io.ReadAll(r)
		if err != nil {
			return errors.Wrapf(err, "unable to read %s", path)
		}
		if own, ok := s.exported[filepath.Clean(path)]; ok && bytes.Equal(own.data, data) {
			if _, err := s.store.Get(own.key); err == nil {
				s.logger.Debug("SESSION: skipping own export", "filepath", path, "key", own.key)
				key = own.key
				return nil
			}
		}
		key, err = s.importPipeline(bytes.NewReader(data))
		return err
	})
	return key, err
}

func (s *Session) importPipeline(r io.Reader) (store.Key, error) {
	key, err := s.store.Import(r)
	if err != nil {
		return 0, s.fail("import", err)
	}
	metrics.SetPipelinesStored(s.store.Len())
	if p, err := s.store.Get(key); err == nil {
		s.say("[Update] imported workflow %q (%d)", p.Name, key)
	}
	return key, nil
}

// ReplayPipeline runs a stored pipeline on the selected image and pushes the
// results: one image per side output, then the final image if any step
// replaced the working image. Replays never touch undo history or the recording.
func (s *Session) ReplayPipeline(ctx context.Context, key store.Key) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	names, err := s.replay(ctx, key)
	if err != nil {
		return names, s.fail("replay", err)
	}
	return names, nil
}

func (s *Session) replay(ctx context.Context, key store.Key) ([]string, error) {
	p, err := s.store.Get(key)
	if err != nil {
		return nil, err
	}
	source, err := s.layers.CurrentImageName()
	if err != nil {
		return nil, err
	}
	img, err := s.layers.CurrentImage()
	if err != nil {
		return nil, err
	}
	defer img.Close()

	res, err := s.executor.Apply(ctx, p, img)
	if err != nil {
		return nil, err
	}
	defer res.Close()

	var names []string
	for _, b := range res.Branches {
		pushed, err := s.layers.PushImage(b.Image, fmt.Sprintf("%s | %s", source, b.Name()))
		if err != nil {
			return names, errors.Wrap(err, "unable to show result")
		}
		names = append(names, pushed)
	}
	if res.Chained > 0 {
		pushed, err := s.layers.PushImage(res.Final, fmt.Sprintf("%s | %s", source, p.Name))
		if err != nil {
			return names, errors.Wrap(err, "unable to show result")
		}
		names = append(names, pushed)
	}

	s.logger.Info("SESSION: pipeline replayed", "pipeline", p.Name, "source", source, "outputs", len(names))
	return names, nil
}

// ReplayPipelineOn runs a stored pipeline on img without touching any layer.
// The caller owns the result.
func (s *Session) ReplayPipelineOn(ctx context.Context, key store.Key, img gocv.Mat) (*executor.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.store.Get(key)
	if err != nil {
		return nil, s.fail("replay", err)
	}
	res, err := s.executor.Apply(ctx, p, img)
	if err != nil {
		return nil, s.fail("replay", err)
	}
	return res, nil
}

// PipelineGraph writes a Graphviz rendering of a stored pipeline.
func (s *Session) PipelineGraph(key store.Key, w io.Writer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.store.Get(key)
	if err != nil {
		return s.fail("graph", err)
	}
	return pipeline.WriteDOT(w, p, s.registry.Branches)
}
