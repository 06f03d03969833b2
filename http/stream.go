package http

import (
	"context"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

const DefaultStreamInterval = time.Second

// StreamOptions configures a stats stream.
type StreamOptions struct {
	// The duration between two sent snapshots.
	Interval time.Duration

	// Returns the value sent to clients as a JSON text message.
	Snapshot func() any
}

// HandleStream returns a websocket server that sends a snapshot to connected
// clients at every interval, until the client disconnects or ctx is done.
func HandleStream(ctx context.Context, opts StreamOptions) websocket.Server {
	if opts.Interval <= 0 {
		opts.Interval = DefaultStreamInterval
	}

	return websocket.Server{
		Handler: func(conn *websocket.Conn) {
			defer conn.Close()

			remote := conn.Request().RemoteAddr
			logs.WithTag("remote_addr", remote).Info("stats stream opened")

			if err := stream(ctx, conn, opts); err != nil {
				logs.WithTag("remote_addr", remote).Debug(err)
			}
			logs.WithTag("remote_addr", remote).Info("stats stream closed")
		},
	}
}

func stream(ctx context.Context, conn *websocket.Conn, opts StreamOptions) error {
	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	for {
		b, err := json.Marshal(opts.Snapshot())
		if err != nil {
			return errors.New("encoding stats snapshot failed").Wrap(err)
		}

		if err := websocket.Message.Send(conn, string(b)); err != nil {
			return errors.New("sending stats snapshot failed").Wrap(err)
		}

		select {
		case <-ctx.Done():
			return nil

		case <-ticker.C:
		}
	}
}
