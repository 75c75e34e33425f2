package pipeline

import (
	"errors"
	"testing"

	"github.com/cyclopcam/adas/pkg/lane"
	"github.com/cyclopcam/adas/pkg/nn"
	"github.com/cyclopcam/adas/server/config"
	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

type anchor struct {
	x1, y1, x2, y2 float32
	class          int
	conf           float32
}

func testConfig(numAnchors int) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Model.NumAnchors = numAnchors
	cfg.VideoWidth = 1152
	cfg.VideoHeight = 640
	cfg.Track.MaxDisappear = 2
	return cfg
}

func newTestPipeline(t *testing.T, cfg *config.Config) *Pipeline {
	p, err := NewPipeline(logs.NewTestingLog(t), cfg)
	require.NoError(t, err)
	return p
}

func tensors(anchors []anchor) nn.DetectionTensors {
	t := nn.DetectionTensors{}
	for _, a := range anchors {
		t.Boxes = append(t.Boxes, a.x1, a.y1, a.x2, a.y2)
		t.Confidences = append(t.Confidences, a.conf)
		t.Classes = append(t.Classes, float32(a.class))
	}
	return t
}

// Lane classes with a rectangle of direct lane, and line classes that are all background
func segmentation(cfg *config.Config, x1, y1, x2, y2 int) (laneClasses, lineClasses []float32) {
	w, h := cfg.Lane.Width, cfg.Lane.Height
	laneClasses = make([]float32, w*h)
	lineClasses = make([]float32, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if x >= x1 && x <= x2 && y >= y1 && y <= y2 {
				laneClasses[y*w+x] = lane.LaneDirect
			} else {
				laneClasses[y*w+x] = lane.LaneBackground
			}
		}
	}
	return
}

func TestProcessFrame(t *testing.T) {
	anchors := []anchor{
		{100, 100, 160, 160, nn.ClassBigVehicle, 0.9},
		{101, 100, 160, 160, nn.ClassBigVehicle, 0.8}, // suppressed by NMS
		{300, 100, 320, 160, nn.ClassHuman, 0.7},
		{400, 100, 420, 160, nn.ClassHuman, 0.3}, // below threshold
	}
	cfg := testConfig(len(anchors))
	p := newTestPipeline(t, cfg)

	laneClasses, lineClasses := segmentation(cfg, 20, 20, 39, 35)
	res, err := p.ProcessFrame(&FrameInput{
		Frame:       1,
		Detections:  tensors(anchors),
		LaneClasses: laneClasses,
		LineClasses: lineClasses,
	})
	require.NoError(t, err)
	require.Equal(t, nn.DecodeStats{Candidates: 3, Kept: 2}, res.Decode)

	require.Len(t, res.Vehicles, 1)
	v := res.Vehicles[0]
	require.Equal(t, nn.ClassBigVehicle, v.Label)
	require.Equal(t, float32(0.9), v.Confidence)
	// Video is twice the model input size. Height is unchanged by the default expand ratio, width grows.
	require.Equal(t, 200, v.Y1)
	require.Equal(t, 320, v.Y2)
	require.Less(t, v.X1, 200)
	require.Greater(t, v.X2, 320)

	require.Len(t, res.Pedestrians, 1)
	require.Equal(t, nn.ClassHuman, res.Pedestrians[0].Label)
	require.Empty(t, res.Riders)
	require.Empty(t, res.RoadSigns)
	require.Empty(t, res.StopSigns)

	require.NotNil(t, res.Lane)
	require.Equal(t, 20, res.Lane.YLaneHead)
	require.Equal(t, 35, res.Lane.YLaneBottom)
	require.Equal(t, 20, res.Lane.MaxLaneWidth)
	require.NotNil(t, res.LaneMasks)
	require.Equal(t, 1, p.NumFrames())
	require.Equal(t, int64(1), p.Times.Get(StageDecode).Samples)
	require.Equal(t, int64(1), p.Times.Get(StageLane).Samples)
}

func TestROI(t *testing.T) {
	anchors := []anchor{
		{100, 100, 120, 160, nn.ClassHuman, 0.9}, // center x 220 in video
		{400, 100, 420, 160, nn.ClassHuman, 0.9}, // center x 820 in video
	}
	cfg := testConfig(len(anchors))
	cfg.ROI = config.Rect{X1: 500, Y1: 0, X2: 900, Y2: 639}
	p := newTestPipeline(t, cfg)
	res, err := p.ProcessFrame(&FrameInput{Frame: 1, Detections: tensors(anchors)})
	require.NoError(t, err)
	require.Len(t, res.Pedestrians, 1)
	require.Greater(t, res.Pedestrians[0].X1, 700)
}

func TestMissingInputs(t *testing.T) {
	p := newTestPipeline(t, testConfig(4))
	res, err := p.ProcessFrame(&FrameInput{Frame: 7})
	require.NoError(t, err)
	require.Equal(t, 7, res.Frame)
	require.Nil(t, res.Vehicles)
	require.Nil(t, res.Pedestrians)
	require.Nil(t, res.Lane)
	require.Equal(t, 1, p.NumFrames())

	_, err = p.ProcessFrame(nil)
	require.ErrorIs(t, err, nn.ErrMissingInput)
}

func TestMalformedInputLeavesHistoryAlone(t *testing.T) {
	cfg := testConfig(1)
	p := newTestPipeline(t, cfg)

	_, err := p.ProcessFrame(&FrameInput{
		Frame:       1,
		LaneClasses: []float32{0, 1, 2},
		LineClasses: []float32{0, 1, 2},
	})
	require.ErrorIs(t, err, nn.ErrShapeMismatch)
	require.Equal(t, 0, p.NumFrames())
	require.Equal(t, 0, p.calibrator.NumFrames())

	_, err = p.ProcessFrame(&FrameInput{
		Frame:      2,
		Detections: nn.DetectionTensors{Boxes: []float32{1, 2, 3}, Confidences: []float32{1}, Classes: []float32{0}},
	})
	require.ErrorIs(t, err, nn.ErrShapeMismatch)
	require.Equal(t, 0, p.NumFrames())
}

func TestTracks(t *testing.T) {
	cfg := testConfig(1)
	p := newTestPipeline(t, cfg)

	b0 := nn.NewBoundingBox(100, 100, 120, 120, nn.ClassSmallVehicle)
	res, err := p.ProcessFrame(&FrameInput{Frame: 1, Tracks: []TrackUpdate{{Box: &b0}}})
	require.NoError(t, err)
	require.Len(t, res.Tracks, 1)
	s := res.Tracks[0]
	require.Equal(t, 1, s.ID)
	require.False(t, s.Coasting)
	require.False(t, s.Renderable)
	require.Equal(t, [4]int{100, 100, 120, 120}, [4]int{s.Predicted.X1, s.Predicted.Y1, s.Predicted.X2, s.Predicted.Y2})

	// Moving right by 10 pixels per frame. With a frame interval of 2, velocity is 5, and the step is 0.5.
	b1 := nn.NewBoundingBox(110, 100, 130, 120, nn.ClassSmallVehicle)
	res, err = p.ProcessFrame(&FrameInput{Frame: 2, Tracks: []TrackUpdate{{ID: 1, Box: &b1}, {ID: 99, Box: &b1}}})
	require.NoError(t, err)
	require.Len(t, res.Tracks, 1)
	s = res.Tracks[0]
	require.Equal(t, [4]int{112, 100, 132, 120}, [4]int{s.Predicted.X1, s.Predicted.Y1, s.Predicted.X2, s.Predicted.Y2})
	require.Equal(t, 3, s.Predicted.FrameStamp)
	require.Equal(t, 1, s.Box.ObjectID)

	// Coast until the track is evicted
	for frame := 3; frame <= 5; frame++ {
		res, err = p.ProcessFrame(&FrameInput{Frame: frame, Tracks: []TrackUpdate{{ID: 1}}})
		require.NoError(t, err)
		require.Len(t, res.Tracks, 1)
		require.True(t, res.Tracks[0].Coasting)
		require.Equal(t, res.Tracks[0].Predicted, res.Tracks[0].Box)
	}
	require.Equal(t, 0, p.Tracks().Len())
}

func TestDefaultConfigNeverEvicts(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Model.NumAnchors = 1
	p := newTestPipeline(t, cfg)

	b := nn.NewBoundingBox(100, 100, 120, 120, nn.ClassSmallVehicle)
	_, err := p.ProcessFrame(&FrameInput{Frame: 1, Tracks: []TrackUpdate{{Box: &b}}})
	require.NoError(t, err)
	for frame := 2; frame <= 60; frame++ {
		_, err = p.ProcessFrame(&FrameInput{Frame: frame, Tracks: []TrackUpdate{{ID: 1}}})
		require.NoError(t, err)
	}
	require.Equal(t, 1, p.Tracks().Len())
	require.Equal(t, 59, p.Tracks().Get(1).DisappearCounter)
}

func TestTrackHistoryIsBounded(t *testing.T) {
	cfg := testConfig(1)
	cfg.Track.HistoryLength = 5
	p := newTestPipeline(t, cfg)

	b := nn.NewBoundingBox(100, 100, 120, 120, nn.ClassSmallVehicle)
	_, err := p.ProcessFrame(&FrameInput{Frame: 1, Tracks: []TrackUpdate{{Box: &b}}})
	require.NoError(t, err)
	for frame := 2; frame < 20; frame++ {
		_, err = p.ProcessFrame(&FrameInput{Frame: frame, Tracks: []TrackUpdate{{ID: 1, Box: &b}}})
		require.NoError(t, err)
	}
	o := p.Tracks().Get(1)
	require.NotNil(t, o)
	require.Len(t, o.BBoxList, 5)
	require.Equal(t, 18, o.AliveCounter)
	require.True(t, o.Renderable(cfg.Track.MinAliveFrames))
}

func TestFinish(t *testing.T) {
	p := newTestPipeline(t, testConfig(1))
	_, err := p.ProcessFrame(&FrameInput{Frame: 1})
	require.NoError(t, err)

	stats := p.Finish()
	require.Equal(t, 1, stats.Frames)
	_, err = p.ProcessFrame(&FrameInput{Frame: 2})
	require.True(t, errors.Is(err, ErrFinished))

	p.Reset()
	_, err = p.ProcessFrame(&FrameInput{Frame: 1})
	require.NoError(t, err)
	require.Equal(t, 1, p.NumFrames())
}

func TestInvalidConfig(t *testing.T) {
	cfg := testConfig(1)
	cfg.Detection.NmsIouThreshold = 2
	_, err := NewPipeline(logs.NewTestingLog(t), cfg)
	require.ErrorIs(t, err, config.ErrInvalidConfig)
}
