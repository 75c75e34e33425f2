package source

import (
	"context"
	"io"

	"github.com/cyclopcam/adas/server/pipeline"
)

// ChannelSource receives frames from a live producer, such as a capture thread.
// The producer closes the channel after the last frame.
type ChannelSource struct {
	holds
	frames <-chan *pipeline.FrameInput
}

func NewChannelSource(frames <-chan *pipeline.FrameInput) *ChannelSource {
	return &ChannelSource{
		frames: frames,
	}
}

// Acquire blocks until a frame is available, the channel is closed, or ctx is done
func (s *ChannelSource) Acquire(ctx context.Context) (*pipeline.FrameInput, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case f, ok := <-s.frames:
		if !ok {
			return nil, io.EOF
		}
		s.Hold(f)
		return f, nil
	}
}

func (s *ChannelSource) Close() error {
	return s.check()
}
