package source

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/cyclopcam/adas/server/pipeline"
	"go.uber.org/multierr"
)

// FileSource reads recorded frames from a file containing a stream of JSON objects,
// one per frame.
type FileSource struct {
	holds
	filename string
	file     *os.File
	decoder  *json.Decoder
	frame    int
}

func OpenFileSource(filename string) (*FileSource, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	return &FileSource{
		filename: filename,
		file:     f,
		decoder:  json.NewDecoder(bufio.NewReader(f)),
	}, nil
}

func (s *FileSource) Acquire(ctx context.Context) (*pipeline.FrameInput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f := &pipeline.FrameInput{}
	if err := s.decoder.Decode(f); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%v frame %v: %w", s.filename, s.frame, err)
	}
	s.frame++
	s.Hold(f)
	return f, nil
}

func (s *FileSource) Close() error {
	return multierr.Combine(s.check(), s.file.Close())
}
