package lane

import (
	"errors"
	"fmt"
	"math"

	"github.com/bmharper/ringbuffer"
	"github.com/cyclopcam/adas/pkg/gen"
	"github.com/cyclopcam/adas/pkg/nn"
	"github.com/cyclopcam/adas/pkg/stats"
	"github.com/cyclopcam/logs"
	"go.uber.org/multierr"
)

// Config holds the tunables of the lane calibrator
type Config struct {
	Width              int     `json:"width"`              // Segmentation grid width
	Height             int     `json:"height"`             // Segmentation grid height
	Classes            Classes `json:"classes"`            // Meaning of the lane and line class IDs
	MaskHistory        int     `json:"maskHistory"`        // Number of previous lane masks merged into the current one
	YBottomHistory     int     `json:"yBottomHistory"`     // Number of yBottom samples that the median is taken over
	YBottomGateRatio   float32 `json:"yBottomGateRatio"`   // A yBottom candidate that moves more than this fraction of the grid height is not recorded
	YellowRatioTrigger float32 `json:"yellowRatioTrigger"` // Above this yellow ratio, yellow pixels are also treated as horizontal markings
	AreaChangeTrigger  float32 `json:"areaChangeTrigger"`  // Above this relative change in lane area, the previous lane mask is reused
	MinPrevArea        int     `json:"minPrevArea"`        // The previous lane mask is only reused if its area is above this
}

func DefaultConfig() Config {
	return Config{
		Width:              72,
		Height:             40,
		Classes:            DefaultClasses(),
		MaskHistory:        4,
		YBottomHistory:     10,
		YBottomGateRatio:   0.1,
		YellowRatioTrigger: 0.12,
		AreaChangeTrigger:  0.3,
		MinPrevArea:        10,
	}
}

func (c *Config) Validate() error {
	var err error
	if c.Width <= 0 || c.Height <= 0 {
		err = multierr.Append(err, fmt.Errorf("segmentation size %v x %v must be positive", c.Width, c.Height))
	}
	if c.MaskHistory < 0 {
		err = multierr.Append(err, fmt.Errorf("maskHistory %v may not be negative", c.MaskHistory))
	}
	if c.YBottomHistory <= 0 {
		err = multierr.Append(err, fmt.Errorf("yBottomHistory %v must be positive", c.YBottomHistory))
	}
	if len(c.Classes.LineWhitelist) == 0 {
		err = multierr.Append(err, errors.New("lineWhitelist is empty"))
	}
	return err
}

// Calibrator turns per-pixel lane and line classes into stable lane and line masks.
// It keeps history across frames, so a Calibrator must only ever see a single stream
// of frames, in order.
type Calibrator struct {
	Log logs.Log
	cfg Config

	yBottom   int                     // Current stabilized yBottom
	yBottoms  ringbuffer.RingP[int]   // Recent accepted yBottom candidates
	masks     ringbuffer.RingP[*Mask] // Recent lane masks, after noise removal, before merging
	prevArea  int                     // Area of the most recent lane mask that was not replaced by prevLane
	prevLane  *Mask                   // Most recent stabilized lane mask
	numFrames int
}

func NewCalibrator(log logs.Log, cfg Config) (*Calibrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := &Calibrator{
		Log: nn.DefaultLog(log),
		cfg: cfg,
	}
	c.Reset()
	return c, nil
}

func (c *Calibrator) Config() Config {
	return c.cfg
}

// Reset discards all history, as if no frames had been seen
func (c *Calibrator) Reset() {
	c.yBottom = 0
	c.yBottoms = ringbuffer.NewRingP[int](ringSize(c.cfg.YBottomHistory))
	c.masks = ringbuffer.NewRingP[*Mask](ringSize(c.cfg.MaskHistory))
	c.prevArea = 0
	c.prevLane = nil
	c.numFrames = 0
}

// Number of frames processed since the last Reset
func (c *Calibrator) NumFrames() int {
	return c.numFrames
}

// Process runs the calibrator on a single frame.
// The inputs are validated before any history is modified, so a failed call leaves the
// calibrator in the same state as before.
func (c *Calibrator) Process(laneMap, lineMap ClassMap) (*Result, error) {
	if err := laneMap.validate(c.cfg.Width, c.cfg.Height); err != nil {
		return nil, fmt.Errorf("lane map: %w", err)
	}
	if err := lineMap.validate(c.cfg.Width, c.cfg.Height); err != nil {
		return nil, fmt.Errorf("line map: %w", err)
	}

	r := &Result{
		Lane:       NewMask(c.cfg.Width, c.cfg.Height),
		Line:       NewMask(c.cfg.Width, c.cfg.Height),
		Horizontal: NewMask(c.cfg.Width, c.cfg.Height),
	}
	info := &r.Info

	c.extract(laneMap, lineMap, r)

	yHead, candidate, maxWidth := scanLane(r.Lane)
	info.YLaneHead = yHead
	info.YBottomCandidate = candidate
	info.MaxLaneWidth = maxWidth
	info.YLaneBottom = c.updateYBottom(candidate)

	lane, area := LargestRegion(r.Lane)

	c.markYellow(lineMap, r)

	r.Lane = c.stabilize(lane, area, info)

	// Line pixels above the lane head or below the lane bottom are not plausible
	for y := 0; y < r.Line.Height; y++ {
		if y < info.YLaneHead || y > info.YLaneBottom {
			r.Line.ClearRow(y)
		}
	}

	c.describe(r)
	c.numFrames++

	c.Log.Debugf("Lane: yHead %v, yBottom %v (candidate %v), width %v, area %v -> %v (ratio %.2f, reuse %v), yellow %.3f",
		info.YLaneHead, info.YLaneBottom, info.YBottomCandidate, info.MaxLaneWidth, info.PrevArea, info.CurrArea,
		info.CurrAreaRatio, info.UsePrevLaneMask, info.YellowLineAreaRatio)
	return r, nil
}

// Convert class IDs into binary masks
func (c *Calibrator) extract(laneMap, lineMap ClassMap, r *Result) {
	cls := &c.cfg.Classes
	for i, laneCls := range laneMap.Pix {
		if laneCls == cls.DirectLane {
			r.Lane.Pix[i] = On
		}
		lineCls := lineMap.Pix[i]
		if cls.isLine(lineCls) {
			r.Line.Pix[i] = On
		}
		if lineCls == cls.HorizontalLine {
			r.Horizontal.Pix[i] = On
		}
	}
}

// scanLane finds the first row of the lane, and the widest row.
// If several rows share the maximum width, the lowest of them is returned.
// If the mask is empty, yHead is the mask height, and yBottom and maxWidth are zero.
func scanLane(m *Mask) (yHead, yBottom, maxWidth int) {
	yHead = m.Height
	for y := 0; y < m.Height; y++ {
		first, last, ok := m.RowExtent(y)
		if !ok {
			continue
		}
		if y < yHead {
			yHead = y
		}
		width := last - first + 1
		if width >= maxWidth {
			maxWidth = width
			yBottom = y
		}
	}
	return
}

// Record the yBottom candidate, if it is plausible, and return the new stabilized yBottom
func (c *Calibrator) updateYBottom(candidate int) int {
	jump := float32(gen.Abs(c.yBottom-candidate)) / float32(c.cfg.Height)
	if c.yBottom == 0 || jump < c.cfg.YBottomGateRatio {
		c.yBottoms.Add(candidate)
	} else {
		c.Log.Debugf("Rejected yBottom candidate %v (current %v)", candidate, c.yBottom)
	}

	recent := lastN(&c.yBottoms, c.cfg.YBottomHistory)
	if len(recent) >= c.cfg.YBottomHistory {
		c.yBottom = stats.Median(recent)
	} else {
		c.yBottom = candidate
	}
	return c.yBottom
}

// Compute the yellow line ratio inside the lane's rows. If it is high, then we're
// probably looking at a yellow grid painted on the road, so all yellow pixels
// become horizontal markings too.
func (c *Calibrator) markYellow(lineMap ClassMap, r *Result) {
	info := &r.Info
	yellow := c.cfg.Classes.YellowLine
	y1 := max(info.YLaneHead, 0)
	y2 := min(info.YLaneBottom, lineMap.Height-1)
	count := 0
	for y := y1; y <= y2; y++ {
		for x := 0; x < lineMap.Width; x++ {
			if lineMap.At(x, y) == yellow {
				count++
			}
		}
	}
	info.YellowLineArea = count
	rows := info.YLaneBottom - info.YLaneHead + 1
	if rows <= 0 {
		info.YellowLineAreaRatio = 0
		return
	}
	info.YellowLineAreaRatio = float32(count) / float32(lineMap.Width*rows)
	if info.YellowLineAreaRatio > c.cfg.YellowRatioTrigger {
		for i, v := range lineMap.Pix {
			if v == yellow {
				r.Horizontal.Pix[i] = On
			}
		}
	}
}

// Temporal stabilization of the lane mask.
// A sudden large change in lane area is treated as flicker, and the previous mask is reused.
// Otherwise, the current mask is merged with the recent history.
func (c *Calibrator) stabilize(lane *Mask, area int, info *LaneLineInfo) *Mask {
	ratio := float32(0)
	if c.prevArea > 0 {
		ratio = float32(gen.Abs(area-c.prevArea)) / float32(c.prevArea)
	}
	info.PrevArea = c.prevArea
	info.CurrArea = area
	info.CurrAreaRatio = ratio

	if ratio > c.cfg.AreaChangeTrigger && c.prevArea > c.cfg.MinPrevArea && area != 0 && c.prevLane != nil {
		info.UsePrevLaneMask = true
		return c.prevLane.Clone()
	}

	merged := lane.Clone()
	for _, m := range lastN(&c.masks, c.cfg.MaskHistory) {
		merged.Or(m)
	}
	if c.cfg.MaskHistory > 0 {
		c.masks.Add(lane)
	}
	merged, _ = LargestRegion(merged)

	c.prevArea = area
	c.prevLane = merged
	return merged.Clone()
}

// Fill in the descriptive parts of the result
func (c *Calibrator) describe(r *Result) {
	info := &r.Info
	mids := []int{}
	info.MidLinePoints = []nn.Point{}
	info.LeftLinePoints = []nn.Point{}
	info.RightLinePoints = []nn.Point{}
	for y := 0; y < r.Lane.Height; y++ {
		first, last, ok := r.Lane.RowExtent(y)
		if !ok {
			continue
		}
		mid := (first + last) / 2
		mids = append(mids, mid)
		info.MidLinePoints = append(info.MidLinePoints, nn.NewPoint(mid, y))
		if y < info.YLaneHead || y > info.YLaneBottom {
			continue
		}
		for x := mid; x >= 0; x-- {
			if r.Line.At(x, y) != 0 {
				info.LeftLinePoints = append(info.LeftLinePoints, nn.NewPoint(x, y))
				break
			}
		}
		for x := mid; x < r.Line.Width; x++ {
			if r.Line.At(x, y) != 0 {
				info.RightLinePoints = append(info.RightLinePoints, nn.NewPoint(x, y))
				break
			}
		}
	}
	info.XLaneAvgMid = float32(stats.Mean(mids))
	info.HoriLineArea = r.Horizontal.CountNonZero()
}

// The most recent n items in the ring, oldest first
func lastN[T any](r *ringbuffer.RingP[T], n int) []T {
	count := min(r.Len(), n)
	items := make([]T, 0, count)
	for i := r.Len() - count; i < r.Len(); i++ {
		items = append(items, r.Peek(i))
	}
	return items
}

// RingP keeps one slot empty, so a ring that must hold n items needs n+1 slots
func ringSize(n int) int {
	return max(nextPowerOf2(n+1), 2)
}

func nextPowerOf2(n int) int {
	if n <= 1 {
		return 1
	}
	return 1 << int(math.Ceil(math.Log2(float64(n))))
}
