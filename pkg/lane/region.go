package lane

// LargestRegion returns a copy of m containing only its largest 8-connected region,
// and the area of that region. If two regions have the same area, the one that
// is reached first in row-major order wins.
func LargestRegion(m *Mask) (*Mask, int) {
	out := NewMask(m.Width, m.Height)
	labels := make([]int32, len(m.Pix))
	queue := make([]int, 0, 64)
	bestLabel := int32(0)
	bestArea := 0
	nextLabel := int32(1)

	for start, v := range m.Pix {
		if v == 0 || labels[start] != 0 {
			continue
		}
		area := labelRegion(m, labels, start, nextLabel, queue)
		if area > bestArea {
			bestArea = area
			bestLabel = nextLabel
		}
		nextLabel++
	}

	if bestArea != 0 {
		for i, l := range labels {
			if l == bestLabel {
				out.Pix[i] = On
			}
		}
	}
	return out, bestArea
}

// Flood fill from 'start', writing 'label' into 'labels'. Returns the number of pixels filled.
func labelRegion(m *Mask, labels []int32, start int, label int32, queue []int) int {
	queue = append(queue[:0], start)
	labels[start] = label
	area := 0
	for len(queue) != 0 {
		p := queue[0]
		queue = queue[1:]
		area++
		px := p % m.Width
		py := p / m.Width
		for dy := -1; dy <= 1; dy++ {
			y := py + dy
			if y < 0 || y >= m.Height {
				continue
			}
			for dx := -1; dx <= 1; dx++ {
				x := px + dx
				if x < 0 || x >= m.Width || (dx == 0 && dy == 0) {
					continue
				}
				n := y*m.Width + x
				if m.Pix[n] != 0 && labels[n] == 0 {
					labels[n] = label
					queue = append(queue, n)
				}
			}
		}
	}
	return area
}
