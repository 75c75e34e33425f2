package nn

import (
	"github.com/chewxy/math32"
	"github.com/cyclopcam/adas/pkg/gen"
)

// Default values of the auxiliary Point fields
const (
	UnknownDistance = 65535.0
	NoObjectID      = -1
)

// Point is an integer pixel coordinate. The auxiliary fields are carried along for
// downstream consumers (warning logic, distance estimation), and are not used by any
// of the geometry here.
type Point struct {
	X              int     `json:"x"`
	Y              int     `json:"y"`
	Behavior       int     `json:"behavior,omitempty"` // special use for human behavior
	NeedWarn       bool    `json:"needWarn,omitempty"`
	VisionDistance float32 `json:"visionDistance"`
	RadarDistance  float32 `json:"radarDistance"`
	ObjectID       int     `json:"objectID"`
}

func NewPoint(x, y int) Point {
	return Point{
		X:              x,
		Y:              y,
		VisionDistance: UnknownDistance,
		RadarDistance:  UnknownDistance,
		ObjectID:       NoObjectID,
	}
}

func (p Point) Distance(b Point) float32 {
	return math32.Sqrt(float32((p.X-b.X)*(p.X-b.X) + (p.Y-b.Y)*(p.Y-b.Y)))
}

// Indices into the result of BoundingBox.Corners()
const (
	CornerTopLeft = iota
	CornerTopRight
	CornerBottomLeft
	CornerBottomRight
)

// BoundingBox is an axis aligned box in integer pixel coordinates.
// Consumers expect X1 <= X2 and Y1 <= Y2, but this is not enforced when a box is created.
// Use Check() before relying on it.
type BoundingBox struct {
	X1               int     `json:"x1"`
	Y1               int     `json:"y1"`
	X2               int     `json:"x2"`
	Y2               int     `json:"y2"`
	Label            int     `json:"label"`
	Confidence       float32 `json:"confidence"`
	FrameStamp       int     `json:"frameStamp"`
	ObjectID         int     `json:"objectID"`
	BoxID            int     `json:"boxID"`
	DistanceToCamera float32 `json:"distanceToCamera"`
	NeedWarn         bool    `json:"needWarn,omitempty"`
}

func NewBoundingBox(x1, y1, x2, y2, label int) BoundingBox {
	return BoundingBox{
		X1:               x1,
		Y1:               y1,
		X2:               x2,
		Y2:               y2,
		Label:            label,
		Confidence:       -1,
		ObjectID:         NoObjectID,
		BoxID:            -1,
		DistanceToCamera: -1,
	}
}

// EmptyBoundingBox is the "no box" value (-1,-1,-1,-1,-1)
func EmptyBoundingBox() BoundingBox {
	return NewBoundingBox(-1, -1, -1, -1, -1)
}

// Returns true if the coordinates are those of EmptyBoundingBox
func (b BoundingBox) IsEmpty() bool {
	return b.X1 == -1 && b.Y1 == -1 && b.X2 == -1 && b.Y2 == -1
}

func (b BoundingBox) Height() int {
	return b.Y2 - b.Y1
}

func (b BoundingBox) Width() int {
	return b.X2 - b.X1
}

// Area is Width * Height. It is zero iff X1 == X2 or Y1 == Y2.
func (b BoundingBox) Area() int {
	return b.Width() * b.Height()
}

// AspectRatio is Height / Width.
// A box with zero width has an aspect ratio of 0.
func (b BoundingBox) AspectRatio() float32 {
	w := b.Width()
	if w == 0 {
		return 0
	}
	return float32(b.Height()) / float32(w)
}

// Center returns the midpoint, truncated towards zero
func (b BoundingBox) Center() Point {
	return NewPoint((b.X1+b.X2)/2, (b.Y1+b.Y2)/2)
}

// Corners returns the four corners in the order top-left, top-right, bottom-left, bottom-right.
func (b BoundingBox) Corners() [4]Point {
	return [4]Point{
		NewPoint(b.X1, b.Y1),
		NewPoint(b.X2, b.Y1),
		NewPoint(b.X1, b.Y2),
		NewPoint(b.X2, b.Y2),
	}
}

// Check returns true if the box is well ordered and lies inside a frame of the given size.
func (b BoundingBox) Check(frameWidth, frameHeight int) bool {
	return b.X1 >= 0 && b.Y1 >= 0 && b.X1 <= b.X2 && b.Y1 <= b.Y2 && b.X2 < frameWidth && b.Y2 < frameHeight
}

func (b *BoundingBox) SetFrameStamp(frameStamp int) {
	b.FrameStamp = frameStamp
}

// Clamped returns a copy of the box with each edge independently clamped into [0,imgW-1] x [0,imgH-1]
func (b BoundingBox) Clamped(imgH, imgW int) BoundingBox {
	b.X1 = gen.ClampToFrame(b.X1, imgW)
	b.Y1 = gen.ClampToFrame(b.Y1, imgH)
	b.X2 = gen.ClampToFrame(b.X2, imgW)
	b.Y2 = gen.ClampToFrame(b.Y2, imgH)
	return b
}

// FromCenter builds a box from a center point and a width and height.
// The half extents are truncated independently on each side.
func FromCenter(cx, cy, width, height int, label int) BoundingBox {
	halfW := int(float32(width) * 0.5)
	halfH := int(float32(height) * 0.5)
	return NewBoundingBox(cx-halfW, cy-halfH, cx+halfW, cy+halfH, label)
}

// Scaled expands the box by a factor of (1+r) around its center, and then clamps
// each coordinate into [0,imgW-1] x [0,imgH-1].
// The result is always well ordered, even if the input box is not.
func (b BoundingBox) Scaled(r float32, imgH, imgW int) BoundingBox {
	newHeight := int(math32.Abs(float32(b.Height()) * (1 + r)))
	newWidth := int(math32.Abs(float32(b.Width()) * (1 + r)))
	c := b.Center()
	s := FromCenter(c.X, c.Y, newWidth, newHeight, b.Label).Clamped(imgH, imgW)
	s.Confidence = b.Confidence
	s.FrameStamp = b.FrameStamp
	return s
}

// Intersection area of a and b (zero if they don't overlap)
func IntersectionArea(a, b BoundingBox) int {
	w := min(a.X2, b.X2) - max(a.X1, b.X1)
	h := min(a.Y2, b.Y2) - max(a.Y1, b.Y1)
	return max(w, 0) * max(h, 0)
}

// Intersection over Union.
// Returns 0 if the union is empty.
func (b BoundingBox) IOU(o BoundingBox) float32 {
	inter := IntersectionArea(b, o)
	union := b.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return float32(inter) / float32(union)
}

// OverlapRatio is the area of the intersection of a and b, divided by the area of a.
// This is NOT symmetric. It answers "how much of a is covered by b".
// Returns 0 if a has no area.
func OverlapRatio(a, b BoundingBox) float32 {
	areaA := a.Area()
	if areaA <= 0 {
		return 0
	}
	return float32(IntersectionArea(a, b)) / float32(areaA)
}

// MergeBoxes produces a box whose X extent is the union of the X extents of a and b,
// but whose Y1 and Y2 are the minimum of the two Y1 and the two Y2 values.
// The other fields are taken from a.
func MergeBoxes(a, b BoundingBox, label int) BoundingBox {
	m := a
	m.X1 = min(a.X1, b.X1)
	m.X2 = max(a.X2, b.X2)
	m.Y1 = min(a.Y1, b.Y1)
	m.Y2 = min(a.Y2, b.Y2)
	m.Label = label
	return m
}
