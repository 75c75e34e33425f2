package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/cyclopcam/adas/pkg/filter"
	"github.com/cyclopcam/adas/pkg/lane"
	"github.com/cyclopcam/adas/pkg/nn"
	"github.com/cyclopcam/adas/pkg/track"
	"go.uber.org/multierr"
)

var ErrInvalidConfig = errors.New("invalid config")

// Per-class confidence thresholds for the class filters
type Thresholds struct {
	Pedestrian float32 `json:"pedestrian"`
	Rider      float32 `json:"rider"`
	Vehicle    float32 `json:"vehicle"`
	RoadSign   float32 `json:"roadSign"`
	StopSign   float32 `json:"stopSign"`
}

// Rect is a box in video coordinates
type Rect struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

func (r Rect) IsZero() bool {
	return r == Rect{}
}

type Track struct {
	FrameInterval  int     `json:"frameInterval"`  // Number of history entries used for velocity estimates
	HistoryLength  int     `json:"historyLength"`  // Maximum number of boxes kept per track
	MinAliveFrames int     `json:"minAliveFrames"` // Tracks younger than this are not rendered
	MaxDisappear   int     `json:"maxDisappear"`   // Tracks that coast for longer than this are removed. Zero keeps them forever.
	ScaleRatio     float32 `json:"scaleRatio"`     // Expansion applied to the current box for display
}

type Config struct {
	Model          nn.ModelConfig       `json:"model"`
	Detection      nn.DetectionParams   `json:"detection"`
	Thresholds     Thresholds           `json:"thresholds"`
	VideoWidth     int                  `json:"videoWidth"`     // Used when a frame does not carry its own size
	VideoHeight    int                  `json:"videoHeight"`    // Used when a frame does not carry its own size
	ROI            Rect                 `json:"roi"`            // Forward collision warning region, in video coordinates. Zero means the whole frame.
	ExpandRatio    float32              `json:"expandRatio"`    // Box expansion when mapping boxes into video coordinates
	OverlapTrigger float32              `json:"overlapTrigger"` // Directional overlap for rider merging and suppression
	Vehicle        filter.VehicleLimits `json:"vehicle"`
	Lane           lane.Config          `json:"lane"`
	Track          Track                `json:"track"`
}

func DefaultConfig() *Config {
	model := nn.DefaultModelConfig()
	laneCfg := lane.DefaultConfig()
	laneCfg.Width = model.SegWidth
	laneCfg.Height = model.SegHeight
	return &Config{
		Model:     *model,
		Detection: *nn.NewDetectionParams(),
		Thresholds: Thresholds{
			Pedestrian: 0.5,
			Rider:      0.5,
			Vehicle:    0.5,
			RoadSign:   0.5,
			StopSign:   0.5,
		},
		VideoWidth:     1920,
		VideoHeight:    1080,
		ExpandRatio:    nn.DefaultExpandRatio,
		OverlapTrigger: filter.DefaultOverlapTrigger,
		Vehicle:        filter.DefaultVehicleLimits(),
		Lane:           laneCfg,
		Track: Track{
			FrameInterval:  2,
			HistoryLength:  30,
			MinAliveFrames: track.DefaultMinAliveFrames,
			MaxDisappear:   0,
			ScaleRatio:     0.1,
		},
	}
}

// LoadConfig reads a JSON file on top of DefaultConfig, so the file only needs to
// contain the values that differ from the defaults.
func LoadConfig(filename string) (*Config, error) {
	if filename == "" {
		filename = "adas.json"
	}
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("Error loading %v: %w", filename, err)
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("Error loading as JSON %v: %w", filename, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%v: %w", filename, err)
	}
	return cfg, nil
}

func unitRange(name string, v float32) error {
	if v < 0 || v > 1 {
		return fmt.Errorf("%v %v must be between 0 and 1", name, v)
	}
	return nil
}

// Validate returns every problem with the config, wrapped in ErrInvalidConfig
func (c *Config) Validate() error {
	var err error
	m := &c.Model
	if m.Width <= 0 || m.Height <= 0 {
		err = multierr.Append(err, fmt.Errorf("model input size %v x %v must be positive", m.Width, m.Height))
	}
	if m.NumAnchors <= 0 {
		err = multierr.Append(err, fmt.Errorf("numAnchors %v must be positive", m.NumAnchors))
	}
	if m.BoxStride != 0 && m.BoxStride < 4 {
		err = multierr.Append(err, fmt.Errorf("boxStride %v must be at least 4", m.BoxStride))
	}
	if m.NumClasses <= 0 {
		err = multierr.Append(err, fmt.Errorf("numClasses %v must be positive", m.NumClasses))
	}
	if c.Lane.Width != m.SegWidth || c.Lane.Height != m.SegHeight {
		err = multierr.Append(err, fmt.Errorf("lane size %v x %v does not match model segmentation size %v x %v", c.Lane.Width, c.Lane.Height, m.SegWidth, m.SegHeight))
	}
	err = multierr.Append(err, c.Lane.Validate())

	err = multierr.Append(err, unitRange("detection.probabilityThreshold", c.Detection.ProbabilityThreshold))
	err = multierr.Append(err, unitRange("detection.nmsIouThreshold", c.Detection.NmsIouThreshold))
	if c.Detection.MaxDetections <= 0 {
		err = multierr.Append(err, fmt.Errorf("detection.maxDetections %v must be positive", c.Detection.MaxDetections))
	}
	err = multierr.Append(err, unitRange("thresholds.pedestrian", c.Thresholds.Pedestrian))
	err = multierr.Append(err, unitRange("thresholds.rider", c.Thresholds.Rider))
	err = multierr.Append(err, unitRange("thresholds.vehicle", c.Thresholds.Vehicle))
	err = multierr.Append(err, unitRange("thresholds.roadSign", c.Thresholds.RoadSign))
	err = multierr.Append(err, unitRange("thresholds.stopSign", c.Thresholds.StopSign))
	err = multierr.Append(err, unitRange("overlapTrigger", c.OverlapTrigger))

	if c.VideoWidth <= 0 || c.VideoHeight <= 0 {
		err = multierr.Append(err, fmt.Errorf("video size %v x %v must be positive", c.VideoWidth, c.VideoHeight))
	}
	if !c.ROI.IsZero() && (c.ROI.X2 < c.ROI.X1 || c.ROI.Y2 < c.ROI.Y1) {
		err = multierr.Append(err, fmt.Errorf("roi %+v is inverted", c.ROI))
	}
	if c.ExpandRatio <= 0 {
		err = multierr.Append(err, fmt.Errorf("expandRatio %v must be positive", c.ExpandRatio))
	}
	if c.Track.FrameInterval <= 0 {
		err = multierr.Append(err, fmt.Errorf("track.frameInterval %v must be positive", c.Track.FrameInterval))
	}
	if c.Track.HistoryLength <= c.Track.FrameInterval {
		err = multierr.Append(err, fmt.Errorf("track.historyLength %v must be greater than track.frameInterval %v", c.Track.HistoryLength, c.Track.FrameInterval))
	}
	if c.Track.MaxDisappear < 0 {
		err = multierr.Append(err, fmt.Errorf("track.maxDisappear %v may not be negative", c.Track.MaxDisappear))
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// ROIBox returns the ROI as a box, substituting the whole video frame if the ROI is not set
func (c *Config) ROIBox(videoWidth, videoHeight int) nn.BoundingBox {
	if c.ROI.IsZero() {
		return nn.NewBoundingBox(0, 0, videoWidth-1, videoHeight-1, -1)
	}
	return nn.NewBoundingBox(c.ROI.X1, c.ROI.Y1, c.ROI.X2, c.ROI.Y2, -1)
}
