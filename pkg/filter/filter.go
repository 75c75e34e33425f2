package filter

import (
	flatbush "github.com/bmharper/flatbush-go"
	"github.com/cyclopcam/adas/pkg/nn"
	"github.com/cyclopcam/logs"
)

// Frame is the input to every class filter.
// Boxes are in model input coordinates, and the ROI is in video coordinates.
type Frame struct {
	Boxes       []nn.DetectionBox
	InputWidth  int
	InputHeight int
	VideoWidth  int
	VideoHeight int
	ROI         nn.BoundingBox // Only the X extent of the top edge is used
}

func (f *Frame) valid() bool {
	return f != nil && f.Boxes != nil && f.InputWidth > 0 && f.InputHeight > 0 && f.VideoWidth > 0 && f.VideoHeight > 0
}

// Ratio of model input size to video size
func (f *Frame) ratios() (wRatio, hRatio float32) {
	return float32(f.InputWidth) / float32(f.VideoWidth), float32(f.InputHeight) / float32(f.VideoHeight)
}

// Returns true if the center of the box, in video coordinates, lies within the horizontal span of the ROI
func (f *Frame) insideROI(b nn.BoundingBox) bool {
	wRatio, _ := f.ratios()
	corners := f.ROI.Corners()
	cx := float32(b.Center().X) / wRatio
	return cx >= float32(corners[nn.CornerTopLeft].X) && cx <= float32(corners[nn.CornerTopRight].X)
}

// VehicleLimits are the plausibility checks applied to vehicle boxes, in video pixels
type VehicleLimits struct {
	MaxFrameFraction float32 `json:"maxFrameFraction"` // Boxes wider or taller than this fraction of the video are rejected
	MinWidth         float32 `json:"minWidth"`
	MinHeight        float32 `json:"minHeight"`
	MinAspectRatio   float32 `json:"minAspectRatio"` // Height / Width
}

func DefaultVehicleLimits() VehicleLimits {
	return VehicleLimits{
		MaxFrameFraction: 0.8,
		MinWidth:         15,
		MinHeight:        10,
		MinAspectRatio:   0.4,
	}
}

// DefaultOverlapTrigger is the directional overlap above which a pedestrian is merged into a rider,
// and above which the larger of two riders is suppressed
const DefaultOverlapTrigger = 0.1

// Filter selects the boxes of each semantic class from a decoded frame.
// Every method returns a freshly built list. ok is false only if the frame is missing
// or incomplete.
type Filter struct {
	Log            logs.Log
	Vehicle        VehicleLimits
	OverlapTrigger float32
}

func NewFilter(log logs.Log) *Filter {
	return &Filter{
		Log:            nn.DefaultLog(log),
		Vehicle:        DefaultVehicleLimits(),
		OverlapTrigger: DefaultOverlapTrigger,
	}
}

// Boxes of the given class, at or above the given confidence
func candidates(fr *Frame, class int, confidence float32) []nn.BoundingBox {
	out := []nn.BoundingBox{}
	for _, d := range fr.Boxes {
		if d.Class == class && d.Confidence >= confidence {
			out = append(out, d.ToBoundingBox())
		}
	}
	return out
}

// Pedestrians returns human boxes whose center lies inside the ROI
func (f *Filter) Pedestrians(fr *Frame, confidence float32) ([]nn.BoundingBox, bool) {
	if !fr.valid() {
		return nil, false
	}
	out := []nn.BoundingBox{}
	for _, b := range candidates(fr, nn.ClassHuman, confidence) {
		if !fr.insideROI(b) {
			f.Log.Debugf("Pedestrian %v,%v-%v,%v outside ROI", b.X1, b.Y1, b.X2, b.Y2)
			continue
		}
		out = append(out, b)
	}
	return out, true
}

// Vehicles returns big vehicle boxes that have a plausible size and shape, and whose center lies inside the ROI
func (f *Filter) Vehicles(fr *Frame, confidence float32) ([]nn.BoundingBox, bool) {
	if !fr.valid() {
		return nil, false
	}
	wRatio, hRatio := fr.ratios()
	lim := &f.Vehicle
	out := []nn.BoundingBox{}
	for _, b := range candidates(fr, nn.ClassBigVehicle, confidence) {
		width := float32(b.Width()) / wRatio
		height := float32(b.Height()) / hRatio
		switch {
		case width > float32(fr.VideoWidth)*lim.MaxFrameFraction || height > float32(fr.VideoHeight)*lim.MaxFrameFraction:
			f.Log.Debugf("Vehicle %v x %v too large", width, height)
			continue
		case width < lim.MinWidth || height < lim.MinHeight:
			f.Log.Debugf("Vehicle %v x %v too small", width, height)
			continue
		case b.AspectRatio() < lim.MinAspectRatio:
			f.Log.Debugf("Vehicle aspect ratio %v too low", b.AspectRatio())
			continue
		case !fr.insideROI(b):
			f.Log.Debugf("Vehicle %v,%v-%v,%v outside ROI", b.X1, b.Y1, b.X2, b.Y2)
			continue
		}
		out = append(out, b)
	}
	return out, true
}

// Riders returns small vehicle boxes inside the ROI. A rider absorbs every pedestrian box
// that overlaps it, and is then labelled ClassRiderPedestrian. Where two riders overlap,
// the smaller one is dropped.
func (f *Filter) Riders(fr *Frame, confidence float32) ([]nn.BoundingBox, bool) {
	if !fr.valid() {
		return nil, false
	}

	// Spatial index of all pedestrians, regardless of confidence
	peds := []nn.BoundingBox{}
	for _, d := range fr.Boxes {
		if d.Class == nn.ClassHuman {
			peds = append(peds, d.ToBoundingBox())
		}
	}
	pedIndex := newBoxIndex(peds)

	riders := []nn.BoundingBox{}
	nearby := []int{}
	for _, b := range candidates(fr, nn.ClassSmallVehicle, confidence) {
		if !fr.insideROI(b) {
			f.Log.Debugf("Rider %v,%v-%v,%v outside ROI", b.X1, b.Y1, b.X2, b.Y2)
			continue
		}
		merged := b
		nearby = pedIndex.search(b, nearby)
		for _, j := range nearby {
			if nn.OverlapRatio(b, peds[j]) > f.OverlapTrigger {
				merged = nn.MergeBoxes(merged, peds[j], nn.ClassRiderPedestrian)
			}
		}
		merged.Confidence = b.Confidence
		riders = append(riders, merged)
	}

	riderIndex := newBoxIndex(riders)
	out := []nn.BoundingBox{}
	for i, a := range riders {
		keep := true
		nearby = riderIndex.search(a, nearby)
		for _, j := range nearby {
			if j == i {
				continue
			}
			// The intersection is measured against a's area, which is the larger ratio whenever a is the smaller box
			if a.Area() < riders[j].Area() && nn.OverlapRatio(a, riders[j]) > f.OverlapTrigger {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, a)
		} else {
			f.Log.Debugf("Rider %v,%v-%v,%v suppressed by a larger overlapping rider", a.X1, a.Y1, a.X2, a.Y2)
		}
	}
	return out, true
}

// RoadSigns returns road sign boxes. Signs are usually at the side of the road, so the ROI is not applied.
func (f *Filter) RoadSigns(fr *Frame, confidence float32) ([]nn.BoundingBox, bool) {
	if !fr.valid() {
		return nil, false
	}
	return candidates(fr, nn.ClassRoadSign, confidence), true
}

// StopSigns returns stop sign boxes. The ROI is not applied.
func (f *Filter) StopSigns(fr *Frame, confidence float32) ([]nn.BoundingBox, bool) {
	if !fr.valid() {
		return nil, false
	}
	return candidates(fr, nn.ClassStopSign, confidence), true
}

// boxIndex is a flatbush index over a list of boxes.
// It stays empty when there are no boxes, so that we never search an unbuilt index.
type boxIndex struct {
	searchFast func(minX, minY, maxX, maxY int32, results []int) []int
}

func newBoxIndex(boxes []nn.BoundingBox) boxIndex {
	if len(boxes) == 0 {
		return boxIndex{}
	}
	fb := flatbush.NewFlatbush[int32]()
	fb.Reserve(len(boxes))
	for _, b := range boxes {
		fb.Add(bounds(b))
	}
	fb.Finish()
	return boxIndex{searchFast: fb.SearchFast}
}

// Indices of boxes whose bounds touch b. 'results' is reused.
func (x boxIndex) search(b nn.BoundingBox, results []int) []int {
	if x.searchFast == nil {
		return results[:0]
	}
	minX, minY, maxX, maxY := bounds(b)
	return x.searchFast(minX, minY, maxX, maxY, results)
}

func bounds(b nn.BoundingBox) (minX, minY, maxX, maxY int32) {
	return int32(min(b.X1, b.X2)), int32(min(b.Y1, b.Y2)), int32(max(b.X1, b.X2)), int32(max(b.Y1, b.Y2))
}
