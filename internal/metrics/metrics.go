// Package metrics exposes Prometheus collectors for command application,
// pipeline replay and undo.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "image_workflow"

// Modes label how a command was run.
const (
	ModeApply  = "apply"
	ModeReplay = "replay"
)

// Status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

var (
	// commandDuration is a histogram of single command run time.
	commandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "command_duration_seconds",
			Help:      "Histogram of command run time in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"command", "mode"},
	)

	// commandsTotal counts command runs.
	commandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Total number of command runs",
		},
		[]string{"command", "mode", "status"},
	)

	// replayDuration is a histogram of whole pipeline replays.
	replayDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "replay_duration_seconds",
			Help:      "Histogram of pipeline replay duration in seconds",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"status"},
	)

	// undoTotal counts undo requests by outcome.
	undoTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "undo_total",
			Help:      "Total number of undo requests",
		},
		[]string{"result"}, // restored, empty
	)

	// historyDepth is the number of snapshots behind the selected image.
	historyDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "history_depth",
			Help:      "Undo snapshots available for the selected image",
		},
	)

	// pipelinesStored is the number of pipelines in the store.
	pipelinesStored = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipelines_stored",
			Help:      "Number of saved pipelines",
		},
	)

	allMetrics = []prometheus.Collector{
		commandDuration,
		commandsTotal,
		replayDuration,
		undoTotal,
		historyDepth,
		pipelinesStored,
	}
)

// Collectors returns every collector of this package.
func Collectors() []prometheus.Collector {
	return append([]prometheus.Collector(nil), allMetrics...)
}

// MustRegister registers every collector with reg.
func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(allMetrics...)
}

func status(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusSuccess
}

// RecordCommand records one command run.
func RecordCommand(command, mode string, durationSeconds float64, err error) {
	commandDuration.WithLabelValues(command, mode).Observe(durationSeconds)
	commandsTotal.WithLabelValues(command, mode, status(err)).Inc()
}

// RecordReplay records one pipeline replay.
func RecordReplay(durationSeconds float64, err error) {
	replayDuration.WithLabelValues(status(err)).Observe(durationSeconds)
}

// RecordUndo records an undo request.
func RecordUndo(restored bool) {
	result := "empty"
	if restored {
		result = "restored"
	}
	undoTotal.WithLabelValues(result).Inc()
}

func SetHistoryDepth(depth int) {
	historyDepth.Set(float64(depth))
}

func SetPipelinesStored(n int) {
	pipelinesStored.Set(float64(n))
}
