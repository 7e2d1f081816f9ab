package runtime

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	loggingpkg "github.com/drblury/webviewflow/internal/runtime/logging"
)

const shutdownTimeout = 5 * time.Second

// HTTPServer collects the handlers of a host (the socket endpoint, /metrics
// and /status) on a single listener.
type HTTPServer struct {
	Addr   string
	Logger loggingpkg.ServiceLogger

	mu  sync.Mutex
	mux *http.ServeMux
}

func NewHTTPServer(addr string, log loggingpkg.ServiceLogger) *HTTPServer {
	return &HTTPServer{
		Addr:   addr,
		Logger: loggingpkg.OrNop(log),
		mux:    http.NewServeMux(),
	}
}

// RegisterHTTPHandler mounts handler at pattern. Call it before Run.
func (s *HTTPServer) RegisterHTTPHandler(pattern string, handler http.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mux.Handle(pattern, handler)
}

// RegisterMetrics exposes gatherer at /metrics.
func (s *HTTPServer) RegisterMetrics(gatherer prometheus.Gatherer) {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s.RegisterHTTPHandler("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
}

// Handler returns the mux with every registered route.
func (s *HTTPServer) Handler() http.Handler {
	return s.mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *HTTPServer) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *HTTPServer) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.Logger.Info("Starting HTTP server", loggingpkg.LogFields{"address": ln.Addr().String()})
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		s.Logger.Error("HTTP server failed", err, loggingpkg.LogFields{"address": ln.Addr().String()})
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.Logger.Info("Stopping HTTP server", loggingpkg.LogFields{"address": ln.Addr().String()})
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
