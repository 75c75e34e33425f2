// Package nn decodes the raw output tensors of the ADAS detection model into boxes,
// and holds the box geometry that the rest of the pipeline is built on.
package nn

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

const DefaultProbabilityThreshold = 0.5
const DefaultNmsIouThreshold = 0.5
const DefaultMaxDetections = 100

var (
	ErrMissingInput  = errors.New("missing input buffer")
	ErrShapeMismatch = errors.New("buffer shape mismatch")
)

// NN detection postprocessing parameters
type DetectionParams struct {
	ProbabilityThreshold float32 `json:"probabilityThreshold"` // Boxes with a confidence below this are discarded
	NmsIouThreshold      float32 `json:"nmsIouThreshold"`      // Boxes of the same class with an IoU above this are suppressed
	MaxDetections        int     `json:"maxDetections"`        // Output is truncated to this many boxes
}

// Create a default DetectionParams object
func NewDetectionParams() *DetectionParams {
	return &DetectionParams{
		ProbabilityThreshold: DefaultProbabilityThreshold,
		NmsIouThreshold:      DefaultNmsIouThreshold,
		MaxDetections:        DefaultMaxDetections,
	}
}

// ModelConfig describes the geometry of the model's input and output tensors.
// It is saved in a JSON file along with the weights of the NN model.
type ModelConfig struct {
	Architecture string   `json:"architecture"` // eg "yolov8-adas"
	Width        int      `json:"width"`        // Input width, eg 576
	Height       int      `json:"height"`       // Input height, eg 320
	SegWidth     int      `json:"segWidth"`     // Segmentation mask width, eg 72
	SegHeight    int      `json:"segHeight"`    // Segmentation mask height, eg 40
	NumAnchors   int      `json:"numAnchors"`   // eg 3780
	BoxStride    int      `json:"boxStride"`    // Floats per anchor in the box tensor. Zero means 4.
	NumClasses   int      `json:"numClasses"`
	Classes      []string `json:"classes,omitempty"`
}

func DefaultModelConfig() *ModelConfig {
	return &ModelConfig{
		Architecture: "yolov8-adas",
		Width:        576,
		Height:       320,
		SegWidth:     72,
		SegHeight:    40,
		NumAnchors:   3780,
		BoxStride:    4,
		NumClasses:   DefaultNumClasses,
	}
}

// Load model config from a JSON file.
// Fields missing from the file keep their default values.
func LoadModelConfig(filename string) (*ModelConfig, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	config := DefaultModelConfig()
	err = json.Unmarshal(b, config)
	if err != nil {
		return nil, fmt.Errorf("invalid model config %v: %w", filename, err)
	}
	return config, nil
}
