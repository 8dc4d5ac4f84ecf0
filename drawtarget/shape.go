package drawtarget

import "image"

// Shape maps 2D points to linear pixel indexes of a physical LED
// arrangement. Only points in [0,w)×[0,h) map.
type Shape interface {
	Size() image.Point
	PixelLen() int
	// PixelIndex returns false for points outside the shape.
	PixelIndex(p image.Point) (int, bool)
}

// Matrix is a Width×Height panel wired row by row, every row left to right.
type Matrix struct {
	Width, Height int
}

func (m Matrix) Size() image.Point { return image.Pt(m.Width, m.Height) }

func (m Matrix) PixelLen() int { return m.Width * m.Height }

func (m Matrix) PixelIndex(p image.Point) (int, bool) {
	if !in(p, m.Width, m.Height) {
		return 0, false
	}
	return p.X + p.Y*m.Width, true
}

// Strip is a single row of n pixels.
type Strip int

func (s Strip) Size() image.Point { return image.Pt(int(s), 1) }

func (s Strip) PixelLen() int { return int(s) }

func (s Strip) PixelIndex(p image.Point) (int, bool) {
	if !in(p, int(s), 1) {
		return 0, false
	}
	return p.X, true
}

// Serpentine is a Width×Height panel whose odd rows run right to left, the
// usual wiring of flexible matrices.
type Serpentine struct {
	Width, Height int
}

func (s Serpentine) Size() image.Point { return image.Pt(s.Width, s.Height) }

func (s Serpentine) PixelLen() int { return s.Width * s.Height }

func (s Serpentine) PixelIndex(p image.Point) (int, bool) {
	if !in(p, s.Width, s.Height) {
		return 0, false
	}
	x := p.X
	if p.Y%2 == 1 {
		x = s.Width - 1 - p.X
	}
	return x + p.Y*s.Width, true
}

func in(p image.Point, w, h int) bool {
	return p.X >= 0 && p.X < w && p.Y >= 0 && p.Y < h
}
