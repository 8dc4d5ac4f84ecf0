package drawtarget

import (
	"image"
	"image/color"
	"iter"
)

// Translated draws into a Target with every point shifted by an offset.
// It shares the Target buffer.
type Translated struct {
	t      *Target
	offset image.Point
}

func (v *Translated) Offset() image.Point {
	return v.offset
}

// Size is the size of the underlying Target.
func (v *Translated) Size() image.Point {
	return v.t.Size()
}

func (v *Translated) SetPixel(p image.Point, c color.Color) {
	v.t.SetPixel(p.Add(v.offset), c)
}

func (v *Translated) DrawIter(pixels iter.Seq[Pixel]) {
	for px := range pixels {
		v.SetPixel(px.Point, px.Color)
	}
}

// Clear fills the whole underlying Target, offset or not.
func (v *Translated) Clear(c color.Color) {
	v.t.Clear(c)
}

// Translated returns a view shifted by offset relative to v.
func (v *Translated) Translated(offset image.Point) *Translated {
	return &Translated{t: v.t, offset: v.offset.Add(offset)}
}

var _ Canvas = &Translated{}
