package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/cyclopcam/adas/pkg/filter"
	"github.com/cyclopcam/adas/pkg/lane"
	"github.com/cyclopcam/adas/pkg/nn"
	"github.com/cyclopcam/adas/pkg/perfstats"
	"github.com/cyclopcam/adas/pkg/track"
	"github.com/cyclopcam/adas/server/config"
	"github.com/cyclopcam/logs"
)

// Names of the stages measured in StageTimes
const (
	StageDecode = "decode"
	StageFilter = "filter"
	StageLane   = "lane"
	StageTrack  = "track"
)

var ErrFinished = errors.New("pipeline is finished")

// Pipeline owns all per-stream state: the lane history, the tracks, and the counters.
// Frames must be fed in order, from a single goroutine.
type Pipeline struct {
	Log    logs.Log
	Config *config.Config
	Times  *perfstats.StageTimes

	decoder    *nn.Decoder
	filter     *filter.Filter
	calibrator *lane.Calibrator
	tracks     *track.Tracks
	numFrames  int
	finished   bool
}

// Stats is returned by Finish
type Stats struct {
	Frames     int               `json:"frames"`
	Truncation perfstats.Counter `json:"truncation"` // Boxes dropped by the detection cap
	Tracks     int               `json:"tracks"`     // Tracks still alive at the end
}

func NewPipeline(log logs.Log, cfg *config.Config) (*Pipeline, error) {
	log = nn.DefaultLog(log)
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	calibrator, err := lane.NewCalibrator(log, cfg.Lane)
	if err != nil {
		return nil, err
	}
	flt := filter.NewFilter(log)
	flt.Vehicle = cfg.Vehicle
	flt.OverlapTrigger = cfg.OverlapTrigger

	var policy track.EvictionPolicy = track.NeverEvict{}
	if cfg.Track.MaxDisappear > 0 {
		maxDisappear := cfg.Track.MaxDisappear
		policy = track.EvictionFunc(func(o *track.Object) bool {
			return o.DisappearCounter > maxDisappear
		})
	}

	return &Pipeline{
		Log:        log,
		Config:     cfg,
		Times:      perfstats.NewStageTimes(),
		decoder:    nn.NewDecoder(log, &cfg.Model),
		filter:     flt,
		calibrator: calibrator,
		tracks:     track.NewTracks(log, policy),
	}, nil
}

// Number of frames processed
func (p *Pipeline) NumFrames() int {
	return p.numFrames
}

// Tracks gives access to the live tracks, for callers that do their own association
func (p *Pipeline) Tracks() *track.Tracks {
	return p.tracks
}

// ProcessFrame runs decode, class filtering, lane calibration and track prediction on a single frame.
// Missing inputs are logged, and the corresponding parts of the result are left nil.
// Malformed inputs produce an error, and in that case no history is modified.
func (p *Pipeline) ProcessFrame(in *FrameInput) (*FrameResult, error) {
	if p.finished {
		return nil, ErrFinished
	}
	if in == nil {
		return nil, fmt.Errorf("frame: %w", nn.ErrMissingInput)
	}
	videoW, videoH := in.VideoWidth, in.VideoHeight
	if videoW <= 0 || videoH <= 0 {
		videoW, videoH = p.Config.VideoWidth, p.Config.VideoHeight
	}
	res := &FrameResult{
		Frame: in.Frame,
	}

	// Validate everything that touches history before we run any stage
	laneMap, lineMap, haveLane, err := p.segmentation(in)
	if err != nil {
		return nil, fmt.Errorf("frame %v: %w", in.Frame, err)
	}

	start := time.Now()
	boxes, decodeStats, err := p.decoder.Decode(in.Detections, &p.Config.Detection)
	p.Times.Since(StageDecode, start)
	res.Decode = decodeStats
	if errors.Is(err, nn.ErrMissingInput) {
		p.Log.Errorf("Frame %v: detection tensors missing", in.Frame)
	} else if err != nil {
		return nil, fmt.Errorf("frame %v: %w", in.Frame, err)
	} else {
		start = time.Now()
		p.filterFrame(boxes, videoW, videoH, res)
		p.Times.Since(StageFilter, start)
	}

	if haveLane {
		start = time.Now()
		laneRes, err := p.calibrator.Process(laneMap, lineMap)
		p.Times.Since(StageLane, start)
		if err != nil {
			return nil, fmt.Errorf("frame %v: %w", in.Frame, err)
		}
		res.Lane = &laneRes.Info
		res.LaneMasks = laneRes
	} else {
		p.Log.Errorf("Frame %v: lane segmentation missing", in.Frame)
	}

	start = time.Now()
	res.Tracks = p.updateTracks(in, videoW, videoH)
	p.Times.Since(StageTrack, start)

	p.numFrames++
	p.Log.Debugf("Frame %v: %v pedestrians, %v riders, %v vehicles, %v road signs, %v stop signs, %v tracks",
		in.Frame, len(res.Pedestrians), len(res.Riders), len(res.Vehicles), len(res.RoadSigns), len(res.StopSigns), len(res.Tracks))
	return res, nil
}

// Convert the segmentation buffers into class maps. Returns haveLane=false if either buffer is absent.
func (p *Pipeline) segmentation(in *FrameInput) (laneMap, lineMap lane.ClassMap, haveLane bool, err error) {
	if len(in.LaneClasses) == 0 || len(in.LineClasses) == 0 {
		return
	}
	w, h := p.Config.Lane.Width, p.Config.Lane.Height
	if laneMap, err = lane.ClassMapFromFloat(w, h, in.LaneClasses); err != nil {
		err = fmt.Errorf("lane classes: %w", err)
		return
	}
	if lineMap, err = lane.ClassMapFromFloat(w, h, in.LineClasses); err != nil {
		err = fmt.Errorf("line classes: %w", err)
		return
	}
	haveLane = true
	return
}

func (p *Pipeline) filterFrame(boxes []nn.DetectionBox, videoW, videoH int, res *FrameResult) {
	cfg := p.Config
	fr := &filter.Frame{
		Boxes:       boxes,
		InputWidth:  cfg.Model.Width,
		InputHeight: cfg.Model.Height,
		VideoWidth:  videoW,
		VideoHeight: videoH,
		ROI:         cfg.ROIBox(videoW, videoH),
	}
	th := &cfg.Thresholds
	toVideo := func(b []nn.BoundingBox, ok bool) []nn.BoundingBox {
		if !ok {
			return nil
		}
		return p.toVideo(b, videoW, videoH)
	}
	res.Pedestrians = toVideo(p.filter.Pedestrians(fr, th.Pedestrian))
	res.Riders = toVideo(p.filter.Riders(fr, th.Rider))
	res.Vehicles = toVideo(p.filter.Vehicles(fr, th.Vehicle))
	res.RoadSigns = toVideo(p.filter.RoadSigns(fr, th.RoadSign))
	res.StopSigns = toVideo(p.filter.StopSigns(fr, th.StopSign))
}

// Map filtered boxes from model input coordinates into video coordinates
func (p *Pipeline) toVideo(boxes []nn.BoundingBox, videoW, videoH int) []nn.BoundingBox {
	dets := make([]nn.DetectionBox, len(boxes))
	for i, b := range boxes {
		dets[i] = nn.DetectionBox{
			X1:         float32(b.X1),
			Y1:         float32(b.Y1),
			X2:         float32(b.X2),
			Y2:         float32(b.Y2),
			Class:      b.Label,
			Confidence: b.Confidence,
		}
	}
	return nn.RescaleBoxes(dets, p.Config.Model.Width, p.Config.Model.Height, videoW, videoH, p.Config.ExpandRatio)
}

func (p *Pipeline) updateTracks(in *FrameInput, videoW, videoH int) []TrackState {
	tc := &p.Config.Track
	states := []TrackState{}
	for _, u := range in.Tracks {
		var o *track.Object
		var pred nn.BoundingBox
		switch {
		case u.ID == 0 && u.Box == nil:
			p.Log.Warnf("Frame %v: track update has neither an ID nor a box", in.Frame)
			continue
		case u.ID == 0:
			box := *u.Box
			box.SetFrameStamp(in.Frame)
			o = p.tracks.Open(box)
			o.UpdateBoundingBoxList([]nn.BoundingBox{o.BBox})
			pred = o.PredNextBoundingBox(o.BBox, tc.FrameInterval, 0, videoH, videoW)
		default:
			o = p.tracks.Get(u.ID)
			if o == nil {
				p.Log.Warnf("Frame %v: unknown track %v", in.Frame, u.ID)
				continue
			}
			o.AliveCounter++
			if u.Box != nil {
				box := *u.Box
				box.SetFrameStamp(in.Frame)
				box.ObjectID = o.ID
				o.DisappearCounter = 0
				o.UpdateLastDetection(box)
				o.BBoxList = append(o.BBoxList, box)
				pred = o.PredNextBoundingBox(box, tc.FrameInterval, 0, videoH, videoW)
			} else {
				o.DisappearCounter++
				pred = o.PredNextBoundingBox(o.BBox, tc.FrameInterval, o.DisappearCounter, videoH, videoW)
				pred.ObjectID = o.ID
				o.UpdateBoundingBox(pred)
				o.UpdatePointCenter(pred.Center())
			}
		}
		if len(o.BBoxList) > tc.HistoryLength {
			o.UpdateBoundingBoxList(o.BBoxList[len(o.BBoxList)-tc.HistoryLength:])
		}
		states = append(states, TrackState{
			ID:         o.ID,
			Box:        o.BBox,
			Predicted:  pred,
			Scaled:     o.ScaledBoundingBox(tc.ScaleRatio, videoH, videoW),
			Coasting:   o.IsCoasting(),
			Renderable: o.Renderable(tc.MinAliveFrames),
		})
	}
	p.tracks.Sweep()
	return states
}

// Finish is the last frame signal. It logs the accumulated timings, and any further
// call to ProcessFrame fails with ErrFinished.
func (p *Pipeline) Finish() Stats {
	if !p.finished {
		p.finished = true
		p.Log.Infof("Pipeline finished after %v frames", p.numFrames)
		if p.decoder.Truncation.Total != 0 {
			p.Log.Warnf("%v detections were truncated, over %v frames", p.decoder.Truncation.Total, p.decoder.Truncation.Samples)
		}
		p.Log.Infof("Stage times:\n%v", p.Times.Summary())
	}
	return Stats{
		Frames:     p.numFrames,
		Truncation: p.decoder.Truncation,
		Tracks:     p.tracks.Len(),
	}
}

// Reset discards all history, so that the pipeline can be reused for a new stream
func (p *Pipeline) Reset() {
	p.calibrator.Reset()
	p.tracks.Reset()
	p.decoder.Truncation.Reset()
	p.Times.Reset()
	p.numFrames = 0
	p.finished = false
}
