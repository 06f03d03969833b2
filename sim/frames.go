package sim

import (
	"context"
	"sync"
	"time"

	"github.com/aukilabs/octant/models"
)

// Frames calls registered handlers at a fixed frame duration.
type Frames struct {
	startFrameOnce  sync.Once
	closeFrameChan  chan struct{}
	frameTicker     *time.Ticker
	frameHandlerIDs models.SequentialIDGenerator[uint32]
	frameHandlers   map[uint32]func(dt time.Duration)
	frameMutex      sync.RWMutex

	closeOnce sync.Once
}

func NewFrames(frameDuration time.Duration) *Frames {
	return &Frames{
		closeFrameChan: make(chan struct{}, 1),
		frameTicker:    time.NewTicker(frameDuration),
		frameHandlers:  make(map[uint32]func(time.Duration)),
	}
}

func (f *Frames) Close() {
	f.closeOnce.Do(func() {
		f.frameTicker.Stop()
		f.closeFrameChan <- struct{}{}
	})
}

// HandleFrame registers h to be called on every frame with the time elapsed
// since the previous one.
func (f *Frames) HandleFrame(h func(dt time.Duration)) (cancel func()) {
	f.frameMutex.Lock()
	defer f.frameMutex.Unlock()

	id := f.frameHandlerIDs.New()
	f.frameHandlers[id] = h

	return func() {
		f.frameMutex.Lock()
		defer f.frameMutex.Unlock()

		delete(f.frameHandlers, id)
		f.frameHandlerIDs.Reuse(id)
	}
}

// StartDispatchFrames dispatches frames until the frames are closed or ctx is
// done. Handlers run one after the other, in no particular order.
func (f *Frames) StartDispatchFrames(ctx context.Context) {
	f.startFrameOnce.Do(func() {
		last := time.Now()

		for {
			select {
			case <-ctx.Done():
				return

			case <-f.closeFrameChan:
				return

			case now := <-f.frameTicker.C:
				dt := now.Sub(last)
				last = now

				f.frameMutex.RLock()
				for _, h := range f.frameHandlers {
					h(dt)
				}
				f.frameMutex.RUnlock()
			}
		}
	})
}
