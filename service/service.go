// Package service exposes the harness process's own observability surface:
// a healthz probe and the prometheus metrics endpoint, on one listener,
// separate from the runtime server under test.
package service

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/agentstack/agent-acceptor/metrics"
)

// DefaultAddr is where the observability endpoints listen.
const DefaultAddr = "0.0.0.0:7300"

type Service struct {
	log    *zap.SugaredLogger
	addr   string
	server *http.Server
}

// Option customizes a Service.
type Option func(*Service)

// WithAddr overrides the listen address.
func WithAddr(addr string) Option {
	return func(s *Service) { s.addr = addr }
}

func New(log *zap.SugaredLogger, opts ...Option) *Service {
	s := &Service{log: log, addr: DefaultAddr}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins serving in the background. A bind failure is reported but
// never fails the run; the harness works without its observability surface.
func (s *Service) Start(ctx context.Context) {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("OK")) //nolint:errcheck
	})
	mux.Handle("/metrics", promhttp.Handler())

	s.server = &http.Server{Addr: s.addr, Handler: mux}
	s.log.Infow("observability endpoints starting", "addr", s.addr)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Errorw("observability endpoints stopped", "err", err)
			metrics.RecordErrorDetails("observability_serve", err)
		}
	}()
}

// Shutdown stops the listener.
func (s *Service) Shutdown() {
	if s.server == nil {
		return
	}
	if err := s.server.Shutdown(context.Background()); err != nil {
		s.log.Warnw("shutting down observability endpoints", "err", err)
	}
}
