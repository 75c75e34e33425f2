package nn

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/cyclopcam/adas/pkg/perfstats"
	"github.com/cyclopcam/logs"
)

// DetectionTensors are the raw output buffers of the detection head, for a single frame.
// All coordinates are in model input pixels.
type DetectionTensors struct {
	Boxes       []float32 // BoxStride floats per anchor. The first 4 are x1,y1,x2,y2.
	Confidences []float32 // One objectness confidence per anchor
	Classes     []float32 // Either one class ID per anchor, or NumClasses probabilities per anchor
}

// DecodeStats summarizes a single call to Decoder.Decode
type DecodeStats struct {
	Candidates int // Boxes that passed the confidence filter
	Kept       int // Boxes that survived NMS
	Truncated  int // Boxes dropped because of MaxDetections
}

// Decoder turns the raw detection tensors into a short list of boxes
type Decoder struct {
	Log        logs.Log
	Model      *ModelConfig
	Truncation perfstats.Counter // Number of boxes dropped by the MaxDetections cap, over all frames
}

func NewDecoder(log logs.Log, model *ModelConfig) *Decoder {
	if model == nil {
		model = DefaultModelConfig()
	}
	return &Decoder{
		Log:   DefaultLog(log),
		Model: model,
	}
}

func (d *Decoder) boxStride() int {
	if d.Model.BoxStride <= 0 {
		return 4
	}
	return d.Model.BoxStride
}

// Decode filters by confidence, performs per-class NMS, and caps the result at params.MaxDetections.
// The returned boxes are sorted by descending confidence. A frame with no boxes above the
// confidence threshold produces an empty list, not an error.
func (d *Decoder) Decode(t DetectionTensors, params *DetectionParams) ([]DetectionBox, DecodeStats, error) {
	if params == nil {
		params = NewDetectionParams()
	}
	stats := DecodeStats{}
	n := d.Model.NumAnchors
	stride := d.boxStride()

	if len(t.Boxes) == 0 || len(t.Confidences) == 0 || len(t.Classes) == 0 {
		return nil, stats, ErrMissingInput
	}
	if len(t.Boxes) != n*stride {
		return nil, stats, fmt.Errorf("%w: box tensor has %v floats, expected %v", ErrShapeMismatch, len(t.Boxes), n*stride)
	}
	if len(t.Confidences) != n {
		return nil, stats, fmt.Errorf("%w: confidence tensor has %v floats, expected %v", ErrShapeMismatch, len(t.Confidences), n)
	}
	classVector := 0
	switch len(t.Classes) {
	case n:
		classVector = 1
	case n * d.Model.NumClasses:
		classVector = d.Model.NumClasses
	default:
		return nil, stats, fmt.Errorf("%w: class tensor has %v floats, expected %v or %v", ErrShapeMismatch, len(t.Classes), n, n*d.Model.NumClasses)
	}

	candidates := []DetectionBox{}
	for i := 0; i < n; i++ {
		conf := t.Confidences[i]
		// Written this way so that NaN is rejected
		if !(conf >= params.ProbabilityThreshold) {
			continue
		}
		class := 0
		if classVector == 1 {
			class = int(math32.Round(t.Classes[i]))
		} else {
			class = argmax(t.Classes[i*classVector : (i+1)*classVector])
		}
		if class < 0 {
			continue
		}
		b := t.Boxes[i*stride : i*stride+4]
		candidates = append(candidates, DetectionBox{
			X1:         b[0],
			Y1:         b[1],
			X2:         b[2],
			Y2:         b[3],
			Class:      class,
			Confidence: conf,
			Anchor:     i,
		})
	}
	stats.Candidates = len(candidates)

	kept := NonMaxSuppression(candidates, params.NmsIouThreshold)
	stats.Kept = len(kept)

	maxDetections := params.MaxDetections
	if maxDetections <= 0 {
		maxDetections = DefaultMaxDetections
	}
	if len(kept) > maxDetections {
		stats.Truncated = len(kept) - maxDetections
		d.Truncation.Add(stats.Truncated)
		d.Log.Warnf("Truncated %v of %v detections", stats.Truncated, len(kept))
		kept = kept[:maxDetections]
	}
	if kept == nil {
		kept = []DetectionBox{}
	}
	return kept, stats, nil
}

// Index of the largest element. Ties go to the lowest index.
func argmax(v []float32) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}
