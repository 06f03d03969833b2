package http

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
)

const (
	// The time servers have to finish in-flight requests once they are asked
	// to stop.
	ShutdownTimeout = 5 * time.Second

	PprofPath = "/debug/pprof/"
)

// ListenAndServe runs the servers until ctx is done. It returns once every
// server is stopped.
func ListenAndServe(ctx context.Context, servers ...*http.Server) {
	go func() {
		<-ctx.Done()
		shutdown(servers)
	}()

	var wg sync.WaitGroup
	for _, s := range servers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			serve(s)
		}()
	}
	wg.Wait()
}

func serve(s *http.Server) {
	logger := logs.WithTag("addr", s.Addr)
	logger.Info("starting server")

	switch err := s.ListenAndServe(); err {
	case nil, http.ErrServerClosed, context.Canceled:
		logger.Info("stopping server")

	default:
		logger.Warn(errors.New("server stopped").Wrap(err))
	}
}

func shutdown(servers []*http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	var wg sync.WaitGroup
	for _, s := range servers {
		wg.Add(1)
		go func() {
			defer wg.Done()

			if err := s.Shutdown(ctx); err != nil {
				logs.Warn(errors.New("shutting down the server failed").
					WithTag("addr", s.Addr).
					WithTag("timeout", ShutdownTimeout).
					Wrap(err))
				s.Close()
			}
		}()
	}
	wg.Wait()
}

// MetricsPathFormatter returns the path label of a request. Requests that
// did not match a route get an empty label and every profile served under
// PprofPath shares one.
func MetricsPathFormatter(statusCode int, path string) string {
	switch statusCode {
	case http.StatusMovedPermanently,
		http.StatusNotFound,
		http.StatusMethodNotAllowed:
		return ""
	}

	if strings.HasPrefix(path, PprofPath) {
		return PprofPath
	}
	return path
}
