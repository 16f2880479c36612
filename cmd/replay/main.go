// Replays a saved workflow over a batch of images without the GUI.

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"image-workflow/internal/commands"
	"image-workflow/internal/config"
	"image-workflow/internal/executor"
	wfio "image-workflow/internal/io"
	"image-workflow/internal/pipeline"
)

func main() {
	debugMode := flag.Bool("debug", false, "Enable debug logging")
	configPath := flag.String("config", "", "Path to a YAML configuration file")
	pipelinePath := flag.String("pipeline", "", "Workflow file to replay")
	outDir := flag.String("out", ".", "Directory for the results")
	concurrency := flag.Int("concurrency", 0, "Images processed in parallel (overrides the config)")
	printSchema := flag.Bool("schema", false, "Print the workflow file JSON schema and exit")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s -pipeline flow.json [flags] image...\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	logger := initLogger(*debugMode)

	if *printSchema {
		schema, err := pipeline.Schema()
		if err != nil {
			logger.WithError(err).Fatal("Unable to build schema")
		}
		fmt.Println(string(schema))
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("Unable to load configuration")
	}
	if *concurrency > 0 {
		cfg.Replay.Concurrency = *concurrency
	}
	if *pipelinePath == "" || flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := &replayer{
		cfg:    cfg,
		outDir: *outDir,
		logger: logger,
		loader: wfio.NewImageLoader(slogFor(logger)),
		exec: executor.New(commands.NewDefaultRegistry(),
			executor.WithStepTimeout(cfg.Executor.StepTimeout),
			executor.WithLogger(slogFor(logger))),
	}

	if err := r.run(ctx, *pipelinePath, flag.Args()); err != nil {
		logger.WithError(err).WithField("category", pipeline.CategoryOf(err).String()).Fatal("Replay failed")
	}
	logger.WithField("images", flag.NArg()).Info("Replay finished")
}

type replayer struct {
	cfg    config.Config
	outDir string
	logger *logrus.Logger
	loader *wfio.ImageLoader
	exec   *executor.Executor
}

func (r *replayer) run(ctx context.Context, pipelinePath string, images []string) error {
	var p *pipeline.Pipeline
	err := wfio.ReadFile(pipelinePath, func(rd io.Reader) error {
		var err error
		p, err = pipeline.Decode(rd)
		return err
	})
	if err != nil {
		return err
	}
	// fail before touching any image if a command is unknown
	if _, err := r.exec.Resolve(p); err != nil {
		return err
	}
	if err := os.MkdirAll(r.outDir, 0o755); err != nil {
		return errors.Wrapf(err, "unable to create %s", r.outDir)
	}

	r.logger.WithFields(logrus.Fields{
		"workflow":    p.Name,
		"steps":       p.Len(),
		"images":      len(images),
		"concurrency": r.cfg.Replay.Concurrency,
	}).Info("Replaying workflow")

	bases := outputBases(images)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Replay.Concurrency)
	for i, path := range images {
		path, base := path, bases[i]
		if base != wfio.ImageName(path) {
			r.logger.WithFields(logrus.Fields{"image": path, "prefix": base}).Warn("Image name shared by several inputs")
		}
		g.Go(func() error {
			return r.replayOne(gctx, p, path, base)
		})
	}
	return g.Wait()
}

// outputBases picks the file name prefix for each input's results. Inputs
// whose names clash get their parent directory prepended, then a counter.
func outputBases(images []string) []string {
	key := func(s string) string { return strings.ToLower(fileSafe(s)) }

	counts := make(map[string]int, len(images))
	for _, path := range images {
		counts[key(wfio.ImageName(path))]++
	}

	bases := make([]string, len(images))
	used := make(map[string]bool, len(images))
	for i, path := range images {
		if name := wfio.ImageName(path); counts[key(name)] == 1 {
			bases[i] = name
			used[key(name)] = true
		}
	}
	for i, path := range images {
		if bases[i] != "" {
			continue
		}
		dir := filepath.Dir(path)
		if abs, err := filepath.Abs(path); err == nil {
			dir = filepath.Dir(abs)
		}
		base := filepath.Base(dir) + "_" + wfio.ImageName(path)
		candidate := base
		for n := 2; used[key(candidate)]; n++ {
			candidate = fmt.Sprintf("%s_%d", base, n)
		}
		used[key(candidate)] = true
		bases[i] = candidate
	}
	return bases
}

func (r *replayer) replayOne(ctx context.Context, p *pipeline.Pipeline, path, base string) error {
	img, err := r.loader.LoadImage(path)
	if err != nil {
		return err
	}
	defer img.Close()

	res, err := r.exec.Apply(ctx, p, img)
	if err != nil {
		return errors.Wrap(err, path)
	}
	defer res.Close()

	written := 0
	for _, b := range res.Branches {
		if err := r.loader.SaveImage(b.Image, r.outputPath(base, b.Name())); err != nil {
			return err
		}
		written++
	}
	if res.Chained > 0 {
		if err := r.loader.SaveImage(res.Final, r.outputPath(base, p.Name)); err != nil {
			return err
		}
		written++
	}

	r.logger.WithFields(logrus.Fields{"image": path, "outputs": written}).Debug("Image replayed")
	return nil
}

func (r *replayer) outputPath(base, suffix string) string {
	name := fileSafe(base + "_" + suffix)
	return filepath.Join(r.outDir, name+"."+r.cfg.Replay.OutputFormat)
}

// fileSafe replaces everything but letters, digits, '-' and '_' with '_'.
func fileSafe(s string) string {
	return strings.Map(func(c rune) rune {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_':
			return c
		}
		return '_'
	}, s)
}

func initLogger(debugMode bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	if debugMode {
		logger.SetLevel(logrus.DebugLevel)
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetLevel(logrus.InfoLevel)
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02 15:04:05"})
	}
	return logger
}

// slogFor gives the internal packages a logger on the same output and level.
func slogFor(logger *logrus.Logger) *slog.Logger {
	level := slog.LevelInfo
	if logger.IsLevelEnabled(logrus.DebugLevel) {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(logger.Out, &slog.HandlerOptions{Level: level}))
}
