package metrics

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultReadHeaderTimeout = 10 * time.Second

// Exporter serves the collectors at /metrics.
type Exporter struct {
	addr     string
	registry *prometheus.Registry

	mu     sync.Mutex
	server *http.Server
}

// NewExporter creates an exporter with this package's collectors and the Go
// runtime collectors registered on a private registry.
func NewExporter(addr string) *Exporter {
	reg := prometheus.NewRegistry()
	MustRegister(reg)
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return &Exporter{addr: addr, registry: reg}
}

func (e *Exporter) Registry() *prometheus.Registry { return e.registry }

// Handler returns the /metrics handler.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Start serves until Shutdown. It returns http.ErrServerClosed after a clean shutdown.
func (e *Exporter) Start() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", e.Handler())

	e.mu.Lock()
	if e.server != nil {
		e.mu.Unlock()
		return nil
	}
	e.server = &http.Server{
		Addr:              e.addr,
		Handler:           mux,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
	}
	srv := e.server
	e.mu.Unlock()

	return srv.ListenAndServe()
}

func (e *Exporter) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.server == nil {
		return nil
	}
	err := e.server.Shutdown(ctx)
	e.server = nil
	return err
}
