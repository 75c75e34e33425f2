package source

import (
	"context"
	"io"

	"github.com/cyclopcam/adas/server/pipeline"
)

// MemorySource replays a list of frames that are already in memory
type MemorySource struct {
	holds
	frames []*pipeline.FrameInput
	next   int
}

func NewMemorySource(frames []*pipeline.FrameInput) *MemorySource {
	return &MemorySource{
		frames: frames,
	}
}

func (s *MemorySource) Acquire(ctx context.Context) (*pipeline.FrameInput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.next >= len(s.frames) {
		return nil, io.EOF
	}
	f := s.frames[s.next]
	s.next++
	s.Hold(f)
	return f, nil
}

func (s *MemorySource) Close() error {
	return s.check()
}
