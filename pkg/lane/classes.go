package lane

import "slices"

// Lane area classes
const (
	LaneDirect      = 0 // The lane the vehicle is driving in
	LaneAlternative = 1 // Adjacent drivable area
	LaneBackground  = 2
)

// Line classes
const (
	LineBackground = 0
	LineWhite      = 1
	LineCrosswalk  = 2 // Horizontal markings
	LineYellow     = 3
	LineCurb       = 4
)

// Classes maps segmentation class IDs to their meaning for the calibrator
type Classes struct {
	DirectLane     uint8   `json:"directLane"`     // Lane class that becomes the lane mask
	LineWhitelist  []uint8 `json:"lineWhitelist"`  // Line classes that become the line mask
	HorizontalLine uint8   `json:"horizontalLine"` // Line class that becomes the horizontal line mask
	YellowLine     uint8   `json:"yellowLine"`     // Line class that is counted for the yellow ratio
}

func DefaultClasses() Classes {
	return Classes{
		DirectLane:     LaneDirect,
		LineWhitelist:  []uint8{LineWhite, LineYellow, LineCurb},
		HorizontalLine: LineCrosswalk,
		YellowLine:     LineYellow,
	}
}

func (c *Classes) isLine(class uint8) bool {
	return slices.Contains(c.LineWhitelist, class)
}
