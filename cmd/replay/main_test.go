package main

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"image-workflow/internal/commands"
	"image-workflow/internal/config"
	"image-workflow/internal/executor"
	wfio "image-workflow/internal/io"
	"image-workflow/internal/pipeline"
)

func newTestReplayer(t *testing.T) *replayer {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return &replayer{
		cfg:    config.Default(),
		outDir: t.TempDir(),
		logger: logger,
		loader: wfio.NewImageLoader(nil),
		exec:   executor.New(commands.NewDefaultRegistry()),
	}
}

func writePipeline(t *testing.T, p *pipeline.Pipeline) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "flow.json")
	require.NoError(t, wfio.WriteFileAtomic(path, func(w io.Writer) error {
		return pipeline.Encode(w, p)
	}))
	return path
}

func writeImage(t *testing.T, dir, name string) string {
	t.Helper()
	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(10, 20, 30, 0), 16, 16, gocv.MatTypeCV8UC3)
	defer img.Close()
	path := filepath.Join(dir, name)
	require.True(t, gocv.IMWrite(path, img))
	return path
}

func TestReplayWritesFinalAndBranches(t *testing.T) {
	r := newTestReplayer(t)

	p := pipeline.New("soft gray")
	p.Append(pipeline.NewCommand("split_channels"))
	p.Append(pipeline.NewCommand("grayscale"))
	flow := writePipeline(t, p)

	inputs := t.TempDir()
	images := []string{writeImage(t, inputs, "a.png"), writeImage(t, inputs, "b.png")}

	require.NoError(t, r.run(context.Background(), flow, images))

	for _, name := range []string{"a", "b"} {
		for _, suffix := range []string{"soft_gray", "Split_Channels_r", "Split_Channels_g", "Split_Channels_b"} {
			_, err := os.Stat(filepath.Join(r.outDir, name+"_"+suffix+".png"))
			assert.NoError(t, err, "%s_%s", name, suffix)
		}
	}
}

func TestReplayKeepsSameNamedInputsApart(t *testing.T) {
	r := newTestReplayer(t)

	p := pipeline.New("gray")
	p.Append(pipeline.NewCommand("grayscale"))
	flow := writePipeline(t, p)

	root := t.TempDir()
	for _, dir := range []string{"day", "night"} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, dir), 0o755))
	}
	images := []string{
		writeImage(t, filepath.Join(root, "day"), "img.png"),
		writeImage(t, filepath.Join(root, "night"), "img.png"),
		writeImage(t, filepath.Join(root, "night"), "img.jpg"),
		writeImage(t, root, "solo.png"),
	}

	require.NoError(t, r.run(context.Background(), flow, images))

	entries, err := os.ReadDir(r.outDir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{
		"day_img_gray.png", "night_img_gray.png", "night_img_2_gray.png", "solo_gray.png",
	}, names)
}

func TestOutputBases(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, outputBases([]string{"x/a.png", "y/b.png"}))
	assert.Equal(t,
		[]string{"x_img", "y_img", "img_2_x"},
		outputBases([]string{"x/img.png", "y/img.jpg", "img_2_x.png"}))
	assert.Equal(t,
		[]string{"x_img", "x_img_2"},
		outputBases([]string{"x/img.png", "x/img.png"}))
}

func TestReplayRejectsUnknownCommandBeforeLoading(t *testing.T) {
	r := newTestReplayer(t)

	p := pipeline.New("alien")
	p.Append(pipeline.NewCommand("teleport"))
	flow := writePipeline(t, p)

	err := r.run(context.Background(), flow, []string{"does-not-exist.png"})
	assert.ErrorIs(t, err, pipeline.ErrUnknownCommand)
}

func TestReplayRejectsGarbageWorkflow(t *testing.T) {
	r := newTestReplayer(t)
	path := filepath.Join(t.TempDir(), "flow.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o600))

	err := r.run(context.Background(), path, nil)
	assert.ErrorIs(t, err, pipeline.ErrUnrecognizedPipeline)
	assert.Equal(t, pipeline.CategoryData, pipeline.CategoryOf(err))
}

func TestFileSafe(t *testing.T) {
	assert.Equal(t, "photo___Gaussian_Blur", fileSafe("photo | Gaussian Blur"))
	assert.Equal(t, "a-b_c", fileSafe("a-b_c"))
}
