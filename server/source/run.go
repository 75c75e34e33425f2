package source

import (
	"context"
	"errors"
	"io"

	"github.com/cyclopcam/adas/server/pipeline"
)

// Run feeds every frame from src through p, and passes each result to emit.
// When src is exhausted, Run signals the last frame to the pipeline and returns its stats.
// The source is not closed.
func Run(ctx context.Context, src Source, p *pipeline.Pipeline, emit func(res *pipeline.FrameResult) error) (pipeline.Stats, error) {
	for {
		in, err := src.Acquire(ctx)
		if errors.Is(err, io.EOF) {
			return p.Finish(), nil
		} else if err != nil {
			return pipeline.Stats{}, err
		}
		res, err := p.ProcessFrame(in)
		if err == nil && emit != nil {
			err = emit(res)
		}
		src.Release(in)
		if err != nil {
			return pipeline.Stats{}, err
		}
	}
}
