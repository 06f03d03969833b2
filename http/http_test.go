package http

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestListenAndServe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		defer close(done)
		ListenAndServe(ctx,
			&http.Server{Addr: "127.0.0.1:0", Handler: http.HandlerFunc(HandleHealthCheck)},
			&http.Server{Addr: "127.0.0.1:0", Handler: http.HandlerFunc(HandleHealthCheck)},
		)
	}()

	time.Sleep(time.Millisecond * 20)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second * 5):
		t.Fatal("servers did not stop")
	}
}

func TestMetricsPathFormatter(t *testing.T) {
	t.Run("routed paths keep their label", func(t *testing.T) {
		require.Equal(t, "/stats", MetricsPathFormatter(http.StatusOK, "/stats"))
		require.Equal(t, "/stress-test", MetricsPathFormatter(http.StatusAccepted, "/stress-test"))
		require.Equal(t, "/stress-test", MetricsPathFormatter(http.StatusConflict, "/stress-test"))
		require.Equal(t, "/stress-test", MetricsPathFormatter(http.StatusBadRequest, "/stress-test"))
	})

	t.Run("unrouted paths are not labelled", func(t *testing.T) {
		require.Empty(t, MetricsPathFormatter(http.StatusNotFound, "/random"))
		require.Empty(t, MetricsPathFormatter(http.StatusMethodNotAllowed, "/stats"))
		require.Empty(t, MetricsPathFormatter(http.StatusMovedPermanently, "/debug/pprof"))
	})

	t.Run("profiles share a label", func(t *testing.T) {
		require.Equal(t, PprofPath, MetricsPathFormatter(http.StatusOK, "/debug/pprof/"))
		require.Equal(t, PprofPath, MetricsPathFormatter(http.StatusOK, "/debug/pprof/heap"))
		require.Equal(t, PprofPath, MetricsPathFormatter(http.StatusOK, "/debug/pprof/goroutine"))
		require.Equal(t, PprofPath, MetricsPathFormatter(http.StatusOK, "/debug/pprof/profile"))
	})
}

func TestListenAndServeStopsUnreachableServer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		ListenAndServe(ctx, &http.Server{Addr: "127.0.0.1:-1"})
	}()

	select {
	case <-done:
	case <-time.After(time.Second * 5):
		t.Fatal("server with an invalid address did not return")
	}
}
