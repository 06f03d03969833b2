// Package stresstest serves stress runs of the spatial index over HTTP.
package stresstest

import (
	"context"
	"io"
	"net/http"
	"sync/atomic"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	octanthttp "github.com/aukilabs/octant/http"
	"github.com/aukilabs/octant/sim"
	"github.com/segmentio/encoding/json"
)

const (
	// The maximum number of frames a request can ask for.
	MaxFrames = 10000

	// The maximum size of a request body, in bytes.
	MaxRequestSize = 1 << 16
)

type Options struct {
	Runner     *sim.Runner
	SendResult func(context.Context, sim.Result) error
}

// Request is the body of a stress test request.
type Request struct {
	Scenario string `json:"scenario"`

	// Overrides the number of frames of the runner when positive.
	Frames int `json:"frames"`
}

// Response is the body written when a stress test is accepted.
type Response struct {
	Scenario string `json:"scenario"`
	Frames   int    `json:"frames"`
}

// HandleStressTest returns a handler that starts the requested scenario in
// the background and sends its result with opts.SendResult. Only one stress
// test runs at a time.
func HandleStressTest(ctx context.Context, opts Options) http.HandlerFunc {
	var running atomic.Bool

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			octanthttp.MethodNotAllowed(w, http.MethodPost)
			return
		}

		b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxRequestSize))
		if err != nil {
			octanthttp.BadRequest(w, errors.New("reading body failed").
				WithType(octanthttp.ErrTypeBadRequest).
				WithTag("max_size", MaxRequestSize).
				Wrap(err))
			return
		}

		var req Request
		if err := json.Unmarshal(b, &req); err != nil {
			octanthttp.BadRequest(w, errors.New("decoding stress test request failed").
				WithType(octanthttp.ErrTypeBadRequest).
				Wrap(err))
			return
		}
		if req.Frames < 0 || req.Frames > MaxFrames {
			octanthttp.BadRequest(w, errors.Newf("frames must be between 0 and %d", MaxFrames).
				WithType(octanthttp.ErrTypeBadRequest).
				WithTag("frames", req.Frames))
			return
		}

		scenario, err := sim.ScenarioByName(req.Scenario)
		if err != nil {
			octanthttp.BadRequest(w, err)
			return
		}

		if !running.CompareAndSwap(false, true) {
			octanthttp.Conflict(w, errors.New("a stress test is already running").
				WithType(octanthttp.ErrTypeConflict).
				WithTag("scenario", scenario.Name))
			return
		}

		runner := *opts.Runner
		if req.Frames > 0 {
			runner.Frames = req.Frames
		}

		go func() {
			defer running.Store(false)

			res, err := runner.Run(ctx, scenario)
			if err != nil {
				logs.Warn(err)
				res.Passed = false
				res.FailureReason = err.Error()
			}

			if err := opts.SendResult(ctx, res); err != nil {
				logs.WithTag("scenario", scenario.Name).
					WithTag("run_id", res.ID).
					Warn(errors.New("sending stress test result failed").Wrap(err))
			}
		}()

		octanthttp.JSON(w, http.StatusAccepted, Response{
			Scenario: scenario.Name,
			Frames:   runner.Frames,
		})
	}
}
