package lane

import (
	"errors"
	"testing"

	"github.com/cyclopcam/adas/pkg/nn"
	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

// A lane map that is background everywhere, except for a rectangle of direct lane
func laneRect(cfg Config, x1, y1, x2, y2 int) ClassMap {
	m := NewClassMap(cfg.Width, cfg.Height)
	for i := range m.Pix {
		m.Pix[i] = LaneBackground
	}
	for y := y1; y <= y2; y++ {
		for x := x1; x <= x2; x++ {
			m.Pix[y*m.Width+x] = LaneDirect
		}
	}
	return m
}

func emptyLines(cfg Config) ClassMap {
	return NewClassMap(cfg.Width, cfg.Height)
}

func newTestCalibrator(t *testing.T) (*Calibrator, Config) {
	cfg := DefaultConfig()
	c, err := NewCalibrator(logs.NewTestingLog(t), cfg)
	require.NoError(t, err)
	return c, cfg
}

func TestLaneGeometryColdStart(t *testing.T) {
	c, cfg := newTestCalibrator(t)
	r, err := c.Process(laneRect(cfg, 30, 20, 39, 30), emptyLines(cfg))
	require.NoError(t, err)
	require.Equal(t, 20, r.Info.YLaneHead)
	require.Equal(t, 10, r.Info.MaxLaneWidth)
	require.Equal(t, 30, r.Info.YLaneBottom)
	require.Equal(t, 110, r.Info.CurrArea)
	require.Equal(t, 110, r.Lane.CountNonZero())
	require.Len(t, r.Info.MidLinePoints, 11)
	require.Equal(t, float32(34), r.Info.XLaneAvgMid)
	require.Equal(t, 1, c.NumFrames())
}

func TestYBottomGatingAndMedian(t *testing.T) {
	c, cfg := newTestCalibrator(t)

	// Before the history is full, a rejected candidate is still used directly
	r, err := c.Process(laneRect(cfg, 30, 20, 39, 30), emptyLines(cfg))
	require.NoError(t, err)
	require.Equal(t, 30, r.Info.YLaneBottom)
	r, err = c.Process(laneRect(cfg, 30, 20, 39, 35), emptyLines(cfg))
	require.NoError(t, err)
	require.Equal(t, 35, r.Info.YLaneBottom)

	c.Reset()
	for i := 0; i < 10; i++ {
		r, err = c.Process(laneRect(cfg, 30, 20, 39, 30), emptyLines(cfg))
		require.NoError(t, err)
		require.Equal(t, 30, r.Info.YLaneBottom)
	}

	// A jump of 5 rows (12.5% of the height) is rejected
	r, err = c.Process(laneRect(cfg, 30, 20, 39, 35), emptyLines(cfg))
	require.NoError(t, err)
	require.Equal(t, 35, r.Info.YBottomCandidate)
	require.Equal(t, 30, r.Info.YLaneBottom)

	// A jump of 3 rows is accepted, but the median is still 30
	r, err = c.Process(laneRect(cfg, 30, 20, 39, 33), emptyLines(cfg))
	require.NoError(t, err)
	require.Equal(t, 30, r.Info.YLaneBottom)

	// Keep feeding 33, and the median moves over
	for i := 0; i < 5; i++ {
		r, err = c.Process(laneRect(cfg, 30, 20, 39, 33), emptyLines(cfg))
		require.NoError(t, err)
	}
	require.Equal(t, 33, r.Info.YLaneBottom)
}

func TestFlickerReusesPreviousMask(t *testing.T) {
	c, cfg := newTestCalibrator(t)

	// 40 x 25 = 1000 pixels
	r1, err := c.Process(laneRect(cfg, 10, 10, 49, 34), emptyLines(cfg))
	require.NoError(t, err)
	require.Equal(t, 1000, r1.Info.CurrArea)
	require.False(t, r1.Info.UsePrevLaneMask)

	// 40 x 35 = 1400 pixels, a 40% jump
	r2, err := c.Process(laneRect(cfg, 10, 5, 49, 39), emptyLines(cfg))
	require.NoError(t, err)
	require.True(t, r2.Info.UsePrevLaneMask)
	require.Equal(t, 1000, r2.Info.PrevArea)
	require.Equal(t, 1400, r2.Info.CurrArea)
	require.InDelta(t, 0.4, r2.Info.CurrAreaRatio, 1e-6)
	require.Equal(t, r1.Lane.Pix, r2.Lane.Pix)

	// 40 x 26 = 1040 pixels, a 4% change relative to the last accepted frame
	r3, err := c.Process(laneRect(cfg, 10, 10, 49, 35), emptyLines(cfg))
	require.NoError(t, err)
	require.False(t, r3.Info.UsePrevLaneMask)
	require.Equal(t, 1000, r3.Info.PrevArea)
	require.Equal(t, 1040, r3.Lane.CountNonZero())
}

func TestMergeWithHistory(t *testing.T) {
	c, cfg := newTestCalibrator(t)
	_, err := c.Process(laneRect(cfg, 10, 10, 29, 29), emptyLines(cfg))
	require.NoError(t, err)
	// Shifted by 2 pixels. The area is unchanged, so the masks are merged.
	r, err := c.Process(laneRect(cfg, 12, 10, 31, 29), emptyLines(cfg))
	require.NoError(t, err)
	require.False(t, r.Info.UsePrevLaneMask)
	require.Equal(t, 22*20, r.Lane.CountNonZero())
}

func TestMaskHistoryIsBounded(t *testing.T) {
	c, cfg := newTestCalibrator(t)
	// Each frame moves one pixel right. Only the last 4 frames + the current one contribute.
	var r *Result
	var err error
	for i := 0; i < 8; i++ {
		r, err = c.Process(laneRect(cfg, 10+i, 10, 29+i, 29), emptyLines(cfg))
		require.NoError(t, err)
	}
	first, last, ok := r.Lane.RowExtent(15)
	require.True(t, ok)
	require.Equal(t, 13, first)
	require.Equal(t, 36, last)
}

func TestMaskHistoryDepth(t *testing.T) {
	c, cfg := newTestCalibrator(t)
	for i := 0; i < 6; i++ {
		_, err := c.Process(laneRect(cfg, 10+i, 10, 29+i, 29), emptyLines(cfg))
		require.NoError(t, err)
	}
	require.Equal(t, cfg.MaskHistory, c.masks.Len())
}

func TestYBottomMedianWithPowerOfTwoHistory(t *testing.T) {
	cfg := DefaultConfig()
	cfg.YBottomHistory = 16
	c, err := NewCalibrator(logs.NewTestingLog(t), cfg)
	require.NoError(t, err)

	for i := 0; i < 15; i++ {
		r, err := c.Process(laneRect(cfg, 30, 20, 39, 30), emptyLines(cfg))
		require.NoError(t, err)
		require.Equal(t, 30, r.Info.YLaneBottom)
	}
	// The 16th sample completes the history, so the median takes over from the raw candidate
	r, err := c.Process(laneRect(cfg, 30, 20, 39, 33), emptyLines(cfg))
	require.NoError(t, err)
	require.Equal(t, 33, r.Info.YBottomCandidate)
	require.Equal(t, 30, r.Info.YLaneBottom)
	require.Equal(t, 16, c.yBottoms.Len())
}

func TestSmallHistories(t *testing.T) {
	for _, h := range []struct{ masks, yBottoms int }{{0, 10}, {1, 10}, {4, 1}, {0, 1}} {
		cfg := DefaultConfig()
		cfg.MaskHistory = h.masks
		cfg.YBottomHistory = h.yBottoms
		require.NoError(t, cfg.Validate())
		c, err := NewCalibrator(logs.NewTestingLog(t), cfg)
		require.NoError(t, err)

		var r *Result
		for i := 0; i < 3; i++ {
			r, err = c.Process(laneRect(cfg, 10+i, 10, 29+i, 29+i), emptyLines(cfg))
			require.NoError(t, err)
		}
		require.Equal(t, min(3, h.masks), c.masks.Len())
		require.Equal(t, min(3, h.yBottoms), c.yBottoms.Len())
		if h.yBottoms == 1 {
			// With a single sample, the median is the latest accepted candidate
			require.Equal(t, 31, r.Info.YLaneBottom)
		}
	}
}

func TestNoiseRemoval(t *testing.T) {
	c, cfg := newTestCalibrator(t)
	lane := laneRect(cfg, 30, 20, 39, 30)
	// A speck far away from the lane
	lane.Pix[2*lane.Width+2] = LaneDirect
	r, err := c.Process(lane, emptyLines(cfg))
	require.NoError(t, err)
	require.Equal(t, 110, r.Lane.CountNonZero())
	require.Equal(t, uint8(0), r.Lane.At(2, 2))
	// The speck still counts as the head of the lane
	require.Equal(t, 2, r.Info.YLaneHead)
}

func TestLineTrimmingAndLinePoints(t *testing.T) {
	c, cfg := newTestCalibrator(t)
	lines := emptyLines(cfg)
	set := func(x, y int, cls uint8) {
		lines.Pix[y*lines.Width+x] = cls
	}
	set(28, 5, LineWhite)
	set(28, 25, LineWhite)
	set(41, 25, LineCurb)
	set(28, 38, LineWhite)
	set(50, 26, LineBackground)

	r, err := c.Process(laneRect(cfg, 30, 20, 39, 30), lines)
	require.NoError(t, err)
	require.Equal(t, 2, r.Line.CountNonZero())
	require.Equal(t, uint8(On), r.Line.At(28, 25))
	require.Equal(t, uint8(On), r.Line.At(41, 25))
	require.Equal(t, uint8(0), r.Line.At(28, 5))
	require.Equal(t, uint8(0), r.Line.At(28, 38))

	require.Len(t, r.Info.LeftLinePoints, 1)
	require.Equal(t, 28, r.Info.LeftLinePoints[0].X)
	require.Equal(t, 25, r.Info.LeftLinePoints[0].Y)
	require.Len(t, r.Info.RightLinePoints, 1)
	require.Equal(t, 41, r.Info.RightLinePoints[0].X)
}

func TestHorizontalAndYellow(t *testing.T) {
	c, cfg := newTestCalibrator(t)
	lines := emptyLines(cfg)
	// Crosswalk inside the lane
	for x := 30; x < 40; x++ {
		lines.Pix[22*lines.Width+x] = LineCrosswalk
	}
	// 5 yellow columns over the 11 rows of the lane is about 7%
	for y := 20; y <= 30; y++ {
		for x := 0; x < 5; x++ {
			lines.Pix[y*lines.Width+x] = LineYellow
		}
	}
	r, err := c.Process(laneRect(cfg, 30, 20, 39, 30), lines)
	require.NoError(t, err)
	require.Equal(t, 55, r.Info.YellowLineArea)
	require.InDelta(t, 55.0/(72.0*11.0), r.Info.YellowLineAreaRatio, 1e-6)
	require.Equal(t, 10, r.Info.HoriLineArea)
	require.Equal(t, 55, r.Line.CountNonZero())

	// 10 yellow columns is about 14%, which turns every yellow pixel into a horizontal marking
	for y := 20; y <= 30; y++ {
		for x := 5; x < 10; x++ {
			lines.Pix[y*lines.Width+x] = LineYellow
		}
	}
	lines.Pix[2*lines.Width+60] = LineYellow
	c.Reset()
	r, err = c.Process(laneRect(cfg, 30, 20, 39, 30), lines)
	require.NoError(t, err)
	require.Equal(t, 110, r.Info.YellowLineArea)
	require.Greater(t, r.Info.YellowLineAreaRatio, cfg.YellowRatioTrigger)
	require.Equal(t, 10+111, r.Info.HoriLineArea)
	require.Equal(t, uint8(On), r.Horizontal.At(60, 2))
}

func TestEmptyLane(t *testing.T) {
	c, cfg := newTestCalibrator(t)
	lines := emptyLines(cfg)
	lines.Pix[100] = LineWhite
	r, err := c.Process(laneRect(cfg, 0, 0, -1, -1), lines)
	require.NoError(t, err)
	require.Equal(t, cfg.Height, r.Info.YLaneHead)
	require.Equal(t, 0, r.Info.MaxLaneWidth)
	require.Equal(t, 0, r.Info.CurrArea)
	require.Equal(t, float32(0), r.Info.YellowLineAreaRatio)
	require.Equal(t, 0, r.Line.CountNonZero())
	require.Equal(t, 0, r.Lane.CountNonZero())
	require.Len(t, r.Info.MidLinePoints, 0)
}

func TestProcessRejectsBadInput(t *testing.T) {
	c, cfg := newTestCalibrator(t)

	_, err := c.Process(ClassMap{}, emptyLines(cfg))
	require.True(t, errors.Is(err, nn.ErrMissingInput))

	_, err = c.Process(laneRect(cfg, 0, 0, 5, 5), NewClassMap(cfg.Width, cfg.Height-1))
	require.True(t, errors.Is(err, nn.ErrShapeMismatch))

	// A failed call does not disturb the history
	require.Equal(t, 0, c.NumFrames())
	r, err := c.Process(laneRect(cfg, 30, 20, 39, 30), emptyLines(cfg))
	require.NoError(t, err)
	require.Equal(t, 0, r.Info.PrevArea)
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	cfg.Width = 0
	cfg.YBottomHistory = 0
	err := cfg.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "segmentation size")
	require.Contains(t, err.Error(), "yBottomHistory")
	_, err = NewCalibrator(nil, cfg)
	require.Error(t, err)
}
