package pipeline

import (
	"github.com/cyclopcam/adas/pkg/lane"
	"github.com/cyclopcam/adas/pkg/nn"
)

// TrackUpdate feeds a single externally associated box to the tracker.
// An ID of zero opens a new track. A nil Box means that the track had no
// detection in this frame, so it coasts on its prediction.
type TrackUpdate struct {
	ID  int             `json:"id,omitempty"`
	Box *nn.BoundingBox `json:"box,omitempty"` // Video coordinates
}

// FrameInput is everything the pipeline needs for a single frame
type FrameInput struct {
	Frame       int                 `json:"frame"`
	VideoWidth  int                 `json:"videoWidth,omitempty"`  // Zero means the configured default
	VideoHeight int                 `json:"videoHeight,omitempty"` // Zero means the configured default
	Detections  nn.DetectionTensors `json:"detections"`
	LaneClasses []float32           `json:"laneClasses"` // One lane class per segmentation pixel
	LineClasses []float32           `json:"lineClasses"` // One line class per segmentation pixel
	Tracks      []TrackUpdate       `json:"tracks,omitempty"`
}

// TrackState is the tracker output for a single track
type TrackState struct {
	ID         int            `json:"id"`
	Box        nn.BoundingBox `json:"box"`       // Current box
	Predicted  nn.BoundingBox `json:"predicted"` // Expected position in the next frame
	Scaled     nn.BoundingBox `json:"scaled"`    // Current box, expanded for display
	Coasting   bool           `json:"coasting"`
	Renderable bool           `json:"renderable"`
}

// FrameResult holds the per-class boxes (in video coordinates), lane geometry and
// track states for a single frame. Fields are nil when their inputs were missing.
type FrameResult struct {
	Frame       int                `json:"frame"`
	Decode      nn.DecodeStats     `json:"decode"`
	Pedestrians []nn.BoundingBox   `json:"pedestrians"`
	Riders      []nn.BoundingBox   `json:"riders"`
	Vehicles    []nn.BoundingBox   `json:"vehicles"`
	RoadSigns   []nn.BoundingBox   `json:"roadSigns"`
	StopSigns   []nn.BoundingBox   `json:"stopSigns"`
	Lane        *lane.LaneLineInfo `json:"lane,omitempty"`
	Tracks      []TrackState       `json:"tracks,omitempty"`

	// Not serialized. These are for rendering layers that want the raw masks.
	LaneMasks *lane.Result `json:"-"`
}
