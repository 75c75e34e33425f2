package nn

import "strconv"

// Detection classes produced by the ADAS model
const (
	ClassHuman        = 0
	ClassSmallVehicle = 1
	ClassBigVehicle   = 2
	ClassStopSign     = 3
	ClassRoadSign     = 4

	// Not produced by the model. Assigned to a rider box after it has absorbed
	// the pedestrian box that was detected on top of it.
	ClassRiderPedestrian = 6
)

// DefaultNumClasses is the width of the class probability vector emitted by the model
const DefaultNumClasses = 6

var classNames = map[int]string{
	ClassHuman:           "human",
	ClassSmallVehicle:    "smallVehicle",
	ClassBigVehicle:      "bigVehicle",
	ClassStopSign:        "stopSign",
	ClassRoadSign:        "roadSign",
	ClassRiderPedestrian: "riderPedestrian",
}

// ClassName returns a human readable name for a class ID
func ClassName(class int) string {
	if n, ok := classNames[class]; ok {
		return n
	}
	return "class" + strconv.Itoa(class)
}

// IsVehicle returns true for both small and big vehicles
func IsVehicle(class int) bool {
	return class == ClassSmallVehicle || class == ClassBigVehicle
}

// DetectionBox is a single decoded detection, in model input coordinates.
// Anchor is the index of the anchor that produced it, and is used to break
// ties between boxes of equal confidence.
type DetectionBox struct {
	X1         float32 `json:"x1"`
	Y1         float32 `json:"y1"`
	X2         float32 `json:"x2"`
	Y2         float32 `json:"y2"`
	Class      int     `json:"class"`
	Confidence float32 `json:"confidence"`
	Anchor     int     `json:"anchor"`
}

func (d DetectionBox) Width() float32 {
	return d.X2 - d.X1
}

func (d DetectionBox) Height() float32 {
	return d.Y2 - d.Y1
}

// Area is zero for boxes that are degenerate or inverted
func (d DetectionBox) Area() float32 {
	return max(d.Width(), 0) * max(d.Height(), 0)
}

// Intersection over Union, in float coordinates
func (d DetectionBox) IOU(b DetectionBox) float32 {
	w := min(d.X2, b.X2) - max(d.X1, b.X1)
	h := min(d.Y2, b.Y2) - max(d.Y1, b.Y1)
	inter := max(w, 0) * max(h, 0)
	union := d.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// ToBoundingBox truncates the coordinates to integers
func (d DetectionBox) ToBoundingBox() BoundingBox {
	b := NewBoundingBox(int(d.X1), int(d.Y1), int(d.X2), int(d.Y2), d.Class)
	b.Confidence = d.Confidence
	return b
}
