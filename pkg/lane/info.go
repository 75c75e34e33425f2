package lane

import "github.com/cyclopcam/adas/pkg/nn"

// LaneLineInfo describes the lane geometry of a single frame
type LaneLineInfo struct {
	YLaneHead        int     `json:"yLaneHead"`   // First row containing lane pixels. Equal to the mask height if there is no lane.
	YLaneBottom      int     `json:"yLaneBottom"` // Temporally stabilized bottom row of the lane
	YBottomCandidate int     `json:"yBottomCandidate"`
	MaxLaneWidth     int     `json:"maxLaneWidth"`
	XLaneAvgMid      float32 `json:"xLaneAvgMid"` // Mean x of the lane mid-line

	CurrArea        int     `json:"currArea"`
	PrevArea        int     `json:"prevArea"`
	CurrAreaRatio   float32 `json:"currAreaRatio"` // |CurrArea - PrevArea| / PrevArea
	UsePrevLaneMask bool    `json:"usePrevLaneMask"`

	YellowLineArea      int     `json:"yellowLineArea"`
	YellowLineAreaRatio float32 `json:"yellowLineAreaRatio"`
	HoriLineArea        int     `json:"horiLineArea"`

	MidLinePoints   []nn.Point `json:"midLinePoints"`
	LeftLinePoints  []nn.Point `json:"leftLinePoints"`
	RightLinePoints []nn.Point `json:"rightLinePoints"`
}

// Result is the output of Calibrator.Process
type Result struct {
	Lane       *Mask // Stabilized lane mask
	Line       *Mask // Line mask, trimmed to the lane's rows
	Horizontal *Mask // Horizontal markings
	Info       LaneLineInfo
}
