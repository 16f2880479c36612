// Image Workflow desktop application

package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"time"

	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/theme"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"image-workflow/internal/commands"
	"image-workflow/internal/config"
	"image-workflow/internal/gui"
	wfio "image-workflow/internal/io"
	"image-workflow/internal/metrics"
)

const (
	AppName    = "Image Workflow"
	AppID      = "com.example.image-workflow"
	AppVersion = "1.0.0"
)

func main() {
	debugMode := flag.Bool("debug", false, "Enable debug mode with verbose logging")
	configPath := flag.String("config", "", "Path to a YAML configuration file")
	imagePath := flag.String("image", "", "Image to open on start")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("Unable to load configuration")
	}
	debug := *debugMode || cfg.Log.Debug

	logger := initLogger(debug)
	logger.WithFields(logrus.Fields{
		"version":    AppVersion,
		"debug_mode": debug,
		"config":     *configPath,
	}).Info("Starting " + AppName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Metrics.Enabled {
		exporter := metrics.NewExporter(cfg.Metrics.Address)
		go func() {
			if err := exporter.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.WithError(err).Error("Metrics server stopped")
			}
		}()
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			_ = exporter.Shutdown(shutdownCtx)
		}()
		logger.WithField("address", cfg.Metrics.Address).Info("Serving metrics")
	}

	myApp := app.NewWithID(AppID)
	myApp.SetIcon(theme.DocumentIcon())
	myApp.Settings().SetTheme(theme.DefaultTheme())

	mainApp := gui.NewApplication(myApp, commands.NewDefaultRegistry(), cfg, newSlogger(debug))

	if *imagePath != "" {
		if err := mainApp.LoadImageFromPath(*imagePath); err != nil {
			logger.WithError(err).Warn("Unable to open start-up image")
		}
	}

	if cfg.ImportDir != "" {
		session := mainApp.Session()
		watcher := wfio.NewImportWatcher(cfg.ImportDir, func(path string) error {
			_, err := session.ImportWatchedFile(path)
			if err == nil {
				mainApp.RefreshWorkflows()
			}
			return err
		}, newSlogger(debug))
		go func() {
			if err := watcher.Run(ctx); err != nil {
				logger.WithError(err).Error("Import watcher stopped")
			}
		}()
	}

	mainApp.ShowAndRun()

	logger.Info("Application shutting down gracefully")
}

// initLogger initializes the logger with appropriate level
func initLogger(debugMode bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	if debugMode {
		logger.SetLevel(logrus.DebugLevel)
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
			ForceColors:   true,
		})
		logger.Debug("Debug logging enabled")
	} else {
		logger.SetLevel(logrus.InfoLevel)
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	return logger
}

// newSlogger is the structured logger handed to the internal packages.
func newSlogger(debugMode bool) *slog.Logger {
	level := slog.LevelInfo
	if debugMode {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
