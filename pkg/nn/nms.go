package nn

import (
	"sort"

	flatbush "github.com/bmharper/flatbush-go"
	"github.com/chewxy/math32"
)

// SortByConfidence sorts boxes by descending confidence.
// Boxes of equal confidence are ordered by ascending anchor index.
func SortByConfidence(boxes []DetectionBox) {
	sort.SliceStable(boxes, func(i, j int) bool {
		if boxes[i].Confidence != boxes[j].Confidence {
			return boxes[i].Confidence > boxes[j].Confidence
		}
		return boxes[i].Anchor < boxes[j].Anchor
	})
}

// NonMaxSuppression performs greedy per-class NMS.
// Boxes are visited in order of descending confidence, and every lower ranked box
// of the same class whose IoU with a kept box exceeds iouThreshold is suppressed.
// The returned boxes are in descending confidence order. The input slice is reordered.
func NonMaxSuppression(boxes []DetectionBox, iouThreshold float32) []DetectionBox {
	if len(boxes) == 0 {
		return nil
	}
	SortByConfidence(boxes)

	// Spatial index to avoid O(N^2) comparisons. Index i in fb is rank i in 'boxes'.
	fb := flatbush.NewFlatbush[int32]()
	fb.Reserve(len(boxes))
	for _, b := range boxes {
		fb.Add(indexBounds(b))
	}
	fb.Finish()

	suppressed := make([]bool, len(boxes))
	keep := make([]DetectionBox, 0, len(boxes))
	nearby := []int{}
	for i := range boxes {
		if suppressed[i] {
			continue
		}
		keep = append(keep, boxes[i])
		minX, minY, maxX, maxY := indexBounds(boxes[i])
		nearby = fb.SearchFast(minX, minY, maxX, maxY, nearby)
		for _, j := range nearby {
			if j <= i || suppressed[j] || boxes[j].Class != boxes[i].Class {
				continue
			}
			if boxes[i].IOU(boxes[j]) > iouThreshold {
				suppressed[j] = true
			}
		}
	}
	return keep
}

// Integer bounds that fully contain the box, even if its corners are swapped
func indexBounds(b DetectionBox) (minX, minY, maxX, maxY int32) {
	minX = int32(math32.Floor(min(b.X1, b.X2)))
	minY = int32(math32.Floor(min(b.Y1, b.Y2)))
	maxX = int32(math32.Ceil(max(b.X1, b.X2)))
	maxY = int32(math32.Ceil(max(b.Y1, b.Y2)))
	return
}
