package stresstest

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aukilabs/octant/sim"
	"github.com/segmentio/encoding/json"
	"github.com/stretchr/testify/require"
)

func postStressTest(t *testing.T, h http.HandlerFunc, req any) *httptest.ResponseRecorder {
	body, err := json.Marshal(req)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "http://localoctant/stress-test", bytes.NewBuffer(body)))
	return rec
}

func TestStressTest(t *testing.T) {
	t.Run("stress test success", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		results := make(chan sim.Result, 1)
		stressTest := HandleStressTest(ctx, Options{
			Runner: &sim.Runner{Frames: 2},
			SendResult: func(_ context.Context, res sim.Result) error {
				results <- res
				return nil
			},
		})

		rec := postStressTest(t, stressTest, Request{Scenario: "baseline_50", Frames: 3})
		require.Equal(t, http.StatusAccepted, rec.Code)

		var accepted Response
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &accepted))
		require.Equal(t, "baseline_50", accepted.Scenario)
		require.Equal(t, 3, accepted.Frames)

		select {
		case res := <-results:
			require.Equal(t, "baseline_50", res.Scenario)
			require.Equal(t, 3, res.Frames)
			require.NotEmpty(t, res.ID)
			require.Equal(t, 50, res.Metrics.Entities)

		case <-ctx.Done():
			t.Fatal("no stress test result")
		}
	})

	t.Run("stress test already running", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		release := make(chan struct{})
		results := make(chan sim.Result)
		stressTest := HandleStressTest(ctx, Options{
			Runner: &sim.Runner{Frames: 1},
			SendResult: func(_ context.Context, res sim.Result) error {
				<-release
				results <- res
				return nil
			},
		})

		rec := postStressTest(t, stressTest, Request{Scenario: "baseline_50"})
		require.Equal(t, http.StatusAccepted, rec.Code)

		rec = postStressTest(t, stressTest, Request{Scenario: "standard_200"})
		require.Equal(t, http.StatusConflict, rec.Code)

		close(release)
		<-results

		require.Eventually(t, func() bool {
			rec := postStressTest(t, stressTest, Request{Scenario: "baseline_50"})
			return rec.Code == http.StatusAccepted
		}, time.Second*5, time.Millisecond*10)
		<-results
	})

	t.Run("stress test interrupted", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		results := make(chan sim.Result, 1)
		stressTest := HandleStressTest(ctx, Options{
			Runner: &sim.Runner{Frames: 5},
			SendResult: func(_ context.Context, res sim.Result) error {
				results <- res
				return nil
			},
		})

		rec := postStressTest(t, stressTest, Request{Scenario: "baseline_50"})
		require.Equal(t, http.StatusAccepted, rec.Code)

		select {
		case res := <-results:
			require.False(t, res.Passed)
			require.NotEmpty(t, res.FailureReason)

		case <-time.After(time.Second * 10):
			t.Fatal("no stress test result")
		}
	})

	t.Run("unknown scenario", func(t *testing.T) {
		stressTest := HandleStressTest(context.Background(), Options{
			Runner: &sim.Runner{},
			SendResult: func(context.Context, sim.Result) error {
				t.Fatal("unexpected result")
				return nil
			},
		})

		rec := postStressTest(t, stressTest, Request{Scenario: "bulbasaur_9000"})
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("too many frames", func(t *testing.T) {
		stressTest := HandleStressTest(context.Background(), Options{Runner: &sim.Runner{}})

		rec := postStressTest(t, stressTest, Request{Scenario: "baseline_50", Frames: MaxFrames + 1})
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid body", func(t *testing.T) {
		stressTest := HandleStressTest(context.Background(), Options{Runner: &sim.Runner{}})

		rec := httptest.NewRecorder()
		stressTest.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "http://localoctant/stress-test", bytes.NewBufferString("{")))
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("body too large", func(t *testing.T) {
		stressTest := HandleStressTest(context.Background(), Options{
			Runner: &sim.Runner{},
			SendResult: func(context.Context, sim.Result) error {
				t.Fatal("unexpected result")
				return nil
			},
		})

		body := `{"scenario":"baseline_50","padding":"` + strings.Repeat("x", MaxRequestSize) + `"}`
		rec := httptest.NewRecorder()
		stressTest.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "http://localoctant/stress-test", strings.NewReader(body)))
		require.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("get is not allowed", func(t *testing.T) {
		stressTest := HandleStressTest(context.Background(), Options{Runner: &sim.Runner{}})

		rec := httptest.NewRecorder()
		stressTest.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "http://localoctant/stress-test", nil))
		require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}
