package nn

import "github.com/cyclopcam/adas/pkg/gen"

// DefaultExpandRatio leaves box heights unchanged, and widens boxes by 15%
const DefaultExpandRatio = 1.0

// expandWidthBias is added to the expand ratio for widths only
const expandWidthBias = 0.15

// RescaleBoxes maps boxes from model input coordinates (inputW x inputH) into frame
// coordinates (frameW x frameH), expands them around their center, and clamps every edge into the frame.
// Heights are multiplied by expandRatio, and widths by expandRatio + 0.15.
func RescaleBoxes(boxes []DetectionBox, inputW, inputH, frameW, frameH int, expandRatio float32) []BoundingBox {
	out := make([]BoundingBox, 0, len(boxes))
	if inputW <= 0 || inputH <= 0 || frameW <= 0 || frameH <= 0 {
		return out
	}
	wRatio := float32(inputW) / float32(frameW)
	hRatio := float32(inputH) / float32(frameH)

	for _, d := range boxes {
		x1 := int(d.X1 / wRatio)
		y1 := int(d.Y1 / hRatio)
		x2 := int(d.X2 / wRatio)
		y2 := int(d.Y2 / hRatio)

		w := x2 - x1
		h := y2 - y1
		cx := x1 + int(float32(w)/2)
		cy := y1 + int(float32(h)/2)
		w = int(float32(w) * (expandRatio + expandWidthBias))
		h = int(float32(h) * expandRatio)

		b := NewBoundingBox(cx-int(float32(w)/2), cy-int(float32(h)/2), cx+int(float32(w)/2), cy+int(float32(h)/2), d.Class)
		b.Confidence = d.Confidence
		b.X1 = gen.ClampToFrame(b.X1, frameW)
		b.Y1 = gen.ClampToFrame(b.Y1, frameH)
		b.X2 = gen.ClampToFrame(b.X2, frameW)
		b.Y2 = gen.ClampToFrame(b.Y2, frameH)
		out = append(out, b)
	}
	return out
}
