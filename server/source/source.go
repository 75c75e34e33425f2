package source

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cyclopcam/adas/server/pipeline"
)

// Source produces frames for the pipeline.
//
// Acquire returns the next frame, or io.EOF when there are no more frames.
// A frame returned by Acquire is held once by the caller, and must be released.
// Hold adds another hold, for example while a frame is queued for rendering.
type Source interface {
	Acquire(ctx context.Context) (*pipeline.FrameInput, error)
	Hold(f *pipeline.FrameInput)
	Release(f *pipeline.FrameInput)
	Close() error
}

var ErrFramesHeld = errors.New("frames still held")

// holds counts outstanding holds on frames. It is shared by all Source implementations.
type holds struct {
	lock   sync.Mutex
	counts map[*pipeline.FrameInput]int
}

func (h *holds) Hold(f *pipeline.FrameInput) {
	if f == nil {
		return
	}
	h.lock.Lock()
	defer h.lock.Unlock()
	if h.counts == nil {
		h.counts = map[*pipeline.FrameInput]int{}
	}
	h.counts[f]++
}

func (h *holds) Release(f *pipeline.FrameInput) {
	if f == nil {
		return
	}
	h.lock.Lock()
	defer h.lock.Unlock()
	n := h.counts[f]
	if n <= 1 {
		delete(h.counts, f)
	} else {
		h.counts[f] = n - 1
	}
}

// Number of distinct frames with at least one hold
func (h *holds) Held() int {
	h.lock.Lock()
	defer h.lock.Unlock()
	return len(h.counts)
}

// Returns an error if any frames are still held, and forgets about them
func (h *holds) check() error {
	h.lock.Lock()
	defer h.lock.Unlock()
	if len(h.counts) == 0 {
		return nil
	}
	err := fmt.Errorf("%w: %v", ErrFramesHeld, len(h.counts))
	h.counts = nil
	return err
}
