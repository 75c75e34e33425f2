package lane

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/cyclopcam/adas/pkg/nn"
)

// Value of a set pixel in a binary mask
const On = 255

// ClassMap is a grid of per-pixel class IDs, as produced by a segmentation head
type ClassMap struct {
	Width  int
	Height int
	Pix    []uint8
}

func NewClassMap(width, height int) ClassMap {
	return ClassMap{
		Width:  width,
		Height: height,
		Pix:    make([]uint8, width*height),
	}
}

// ClassMapFromFloat converts a float tensor of class IDs into a ClassMap.
// Values are rounded, and saturated to [0,255].
func ClassMapFromFloat(width, height int, data []float32) (ClassMap, error) {
	if len(data) == 0 {
		return ClassMap{}, nn.ErrMissingInput
	}
	if len(data) != width*height {
		return ClassMap{}, fmt.Errorf("%w: class map has %v values, expected %v x %v", nn.ErrShapeMismatch, len(data), width, height)
	}
	m := NewClassMap(width, height)
	for i, v := range data {
		if math32.IsNaN(v) {
			continue
		}
		m.Pix[i] = uint8(math32.Round(max(0, min(v, 255))))
	}
	return m, nil
}

func (c ClassMap) At(x, y int) uint8 {
	return c.Pix[y*c.Width+x]
}

func (c ClassMap) IsEmpty() bool {
	return len(c.Pix) == 0
}

func (c ClassMap) validate(width, height int) error {
	if c.IsEmpty() {
		return nn.ErrMissingInput
	}
	if c.Width != width || c.Height != height || len(c.Pix) != width*height {
		return fmt.Errorf("%w: class map is %v x %v (%v values), expected %v x %v", nn.ErrShapeMismatch, c.Width, c.Height, len(c.Pix), width, height)
	}
	return nil
}

// Mask is a binary image. Pixels are either 0 or On.
type Mask struct {
	Width  int
	Height int
	Pix    []uint8
}

func NewMask(width, height int) *Mask {
	return &Mask{
		Width:  width,
		Height: height,
		Pix:    make([]uint8, width*height),
	}
}

func (m *Mask) At(x, y int) uint8 {
	return m.Pix[y*m.Width+x]
}

func (m *Mask) Set(x, y int, v uint8) {
	m.Pix[y*m.Width+x] = v
}

func (m *Mask) Clone() *Mask {
	c := &Mask{
		Width:  m.Width,
		Height: m.Height,
		Pix:    make([]uint8, len(m.Pix)),
	}
	copy(c.Pix, m.Pix)
	return c
}

func (m *Mask) Clear() {
	clear(m.Pix)
}

// ClearRow zeroes every pixel in row y
func (m *Mask) ClearRow(y int) {
	clear(m.Pix[y*m.Width : (y+1)*m.Width])
}

// CountNonZero returns the number of set pixels
func (m *Mask) CountNonZero() int {
	n := 0
	for _, v := range m.Pix {
		if v != 0 {
			n++
		}
	}
	return n
}

// Or sets every pixel that is set in b. The masks must be the same size.
func (m *Mask) Or(b *Mask) {
	for i, v := range b.Pix {
		if v != 0 {
			m.Pix[i] = On
		}
	}
}

// RowExtent returns the first and last set pixel in row y, or ok=false if the row is empty
func (m *Mask) RowExtent(y int) (first, last int, ok bool) {
	row := m.Pix[y*m.Width : (y+1)*m.Width]
	first = -1
	for x, v := range row {
		if v != 0 {
			if first == -1 {
				first = x
			}
			last = x
		}
	}
	return first, last, first != -1
}
