package track

import (
	"github.com/chewxy/math32"
	"github.com/cyclopcam/adas/pkg/gen"
	"github.com/cyclopcam/adas/pkg/nn"
)

type Status int

const (
	StatusInactive Status = iota
	StatusActive
)

// Extrapolation step, as a fraction of a frame
const predictionStep = 0.5

// After this many frames of coasting, the previous prediction is discarded before being replaced
const longOcclusionFrames = 30

// DefaultMinAliveFrames is the number of frames a track must be alive before it is rendered
const DefaultMinAliveFrames = 10

// Object is a single tracked object.
// Association of detections to tracks happens outside of this package. The owner of
// an Object feeds it boxes, and increments AliveCounter and DisappearCounter once per frame.
//
// An Object is not safe for concurrent use. It must be confined to a single stream of frames.
type Object struct {
	ID               int
	Status           Status
	BBox             nn.BoundingBox   // Current box
	BBoxList         []nn.BoundingBox // History used as the velocity basis. Grows while coasting.
	PCenter          nn.Point
	AliveCounter     int // Frames since the track was opened
	DisappearCounter int // Consecutive frames without an associated detection
	DistanceToCamera float32
	NeedWarn         bool

	lastDetectBox nn.BoundingBox // Most recent confirmed detection
	lastPredBox   nn.BoundingBox // Prediction snapshot taken when DisappearCounter == frameInterval
	prevPredBox   nn.BoundingBox // Most recent prediction
}

func NewObject(id int, frameStamp int) *Object {
	o := &Object{ID: id}
	o.Init(frameStamp)
	return o
}

// Init resets the track to its initial state
func (o *Object) Init(frameStamp int) {
	o.Status = StatusInactive
	o.PCenter = nn.NewPoint(-1, -1)
	o.BBox = nn.EmptyBoundingBox()
	o.BBox.SetFrameStamp(frameStamp)
	o.BBoxList = o.BBoxList[:0]
	o.AliveCounter = 0
	o.DisappearCounter = 0
	o.DistanceToCamera = -1
	o.NeedWarn = false
	o.lastDetectBox = nn.EmptyBoundingBox()
	o.lastPredBox = nn.EmptyBoundingBox()
	o.prevPredBox = nn.EmptyBoundingBox()
}

func (o *Object) UpdateStatus(status Status) {
	o.Status = status
}

func (o *Object) UpdateBoundingBox(box nn.BoundingBox) {
	o.BBox = box
}

func (o *Object) UpdatePointCenter(p nn.Point) {
	o.PCenter = p
}

// UpdateBoundingBoxList replaces the history
func (o *Object) UpdateBoundingBoxList(boxes []nn.BoundingBox) {
	o.BBoxList = append(o.BBoxList[:0], boxes...)
}

// UpdateLastDetection records a confirmed detection, which becomes the current box.
// The width and height of this box are reused while the track is coasting.
func (o *Object) UpdateLastDetection(box nn.BoundingBox) {
	o.BBox = box
	o.lastDetectBox = box
	o.PCenter = box.Center()
}

// Renderable returns false for tracks that have not been alive long enough to be shown
func (o *Object) Renderable(minAliveFrames int) bool {
	return o.AliveCounter >= minAliveFrames
}

// IsCoasting is true when the track had no detection in the most recent frame
func (o *Object) IsCoasting() bool {
	return o.DisappearCounter > 0
}

// PrevPredBoundingBox returns the most recent prediction, or the empty box if there is none
func (o *Object) PrevPredBoundingBox() nn.BoundingBox {
	return o.prevPredBox
}

// LastPredBoundingBox returns the prediction that was frozen after frameInterval frames of coasting
func (o *Object) LastPredBoundingBox() nn.BoundingBox {
	return o.lastPredBox
}

// ScaledBoundingBox expands the current box by (1+r) around its center, clamped to the image
func (o *Object) ScaledBoundingBox(r float32, imgH, imgW int) nn.BoundingBox {
	return o.BBox.Scaled(r, imgH, imgW)
}

// The trailing window of history used for velocity estimates
func (o *Object) window(frameInterval int) []nn.BoundingBox {
	if len(o.BBoxList) <= frameInterval {
		return o.BBoxList
	}
	return o.BBoxList[len(o.BBoxList)-frameInterval:]
}

// Sum of consecutive differences of f over the trailing window, divided by frameInterval
func (o *Object) velocity(frameInterval int, f func(b nn.BoundingBox) float32) float32 {
	if frameInterval <= 0 || len(o.BBoxList) == 0 {
		return 0
	}
	w := o.window(frameInterval)
	d := float32(0)
	for i := 1; i < len(w); i++ {
		d += f(w[i]) - f(w[i-1])
	}
	return d / float32(frameInterval)
}

func centerX(b nn.BoundingBox) float32 { return float32(b.Center().X) }
func centerY(b nn.BoundingBox) float32 { return float32(b.Center().Y) }
func height(b nn.BoundingBox) float32  { return float32(b.Height()) }
func aspect(b nn.BoundingBox) float32  { return b.AspectRatio() }

// PredNextBoundingBox predicts where the object will be in the next frame.
// disappear is the number of consecutive frames for which the track has had no detection.
// While coasting, the prediction is appended to the history, so that subsequent
// predictions continue from it.
func (o *Object) PredNextBoundingBox(curr nn.BoundingBox, frameInterval, disappear, imgH, imgW int) nn.BoundingBox {
	ref := curr
	if disappear > 0 && len(o.BBoxList) > 0 {
		ref = o.BBoxList[len(o.BBoxList)-1]
	}
	refCenter := ref.Center()

	velX := o.velocity(frameInterval, centerX)
	velY := o.velocity(frameInterval, centerY)
	velHeight := o.velocity(frameInterval, height)
	velAspect := o.velocity(frameInterval, aspect)
	if disappear > 0 {
		velAspect = 0
	}

	nextX := float32(refCenter.X) + velX*predictionStep
	nextY := float32(refCenter.Y) + velY*predictionStep
	nextAspect := ref.AspectRatio() + velAspect*predictionStep
	nextHeight := int(float32(ref.Height()) + velHeight*predictionStep)
	nextWidth := ref.Width()
	if nextAspect != 0 {
		nextWidth = truncate(float32(nextHeight) / nextAspect)
	}

	if disappear > frameInterval && !o.lastPredBox.IsEmpty() {
		// Long occlusion: stop extrapolating
		c := o.lastPredBox.Center()
		nextHeight = o.lastPredBox.Height()
		nextWidth = o.lastPredBox.Width()
		nextX = float32(c.X)
		nextY = float32(c.Y)
	} else if disappear > 0 && !o.lastDetectBox.IsEmpty() {
		nextHeight = o.lastDetectBox.Height()
		nextWidth = o.lastDetectBox.Width()
	}

	halfW := nextWidth / 2
	halfH := nextHeight / 2
	box := nn.NewBoundingBox(
		gen.ClampToFrame(truncate(nextX-float32(halfW)), imgW),
		gen.ClampToFrame(truncate(nextY-float32(halfH)), imgH),
		gen.ClampToFrame(truncate(nextX+float32(halfW)), imgW),
		gen.ClampToFrame(truncate(nextY+float32(halfH)), imgH),
		curr.Label,
	)
	box.FrameStamp = curr.FrameStamp + 1

	if disappear > 0 {
		o.BBoxList = append(o.BBoxList, box)
	}
	if disappear == frameInterval {
		o.lastPredBox = box
	}
	if disappear > longOcclusionFrames {
		o.prevPredBox = nn.EmptyBoundingBox()
	}
	o.prevPredBox = box
	return box
}

// Truncate towards zero, saturating instead of overflowing
func truncate(v float32) int {
	if math32.IsNaN(v) {
		return 0
	}
	v = math32.Trunc(gen.Clamp(v, -(1 << 30), 1<<30))
	return int(v)
}
