package patterns

import (
	"image"
	"image/color"
	"iter"
	"math"

	"github.com/coreman2200/ledrmt/drawtarget"
)

// WhiteCap wraps a Canvas so every drawn color satisfies
// r+g+b <= Cap*3*255. Cap outside (0,1) disables the limit.
type WhiteCap struct {
	drawtarget.Canvas
	Cap float64
}

func (w WhiteCap) limit(c color.Color) color.Color {
	if w.Cap <= 0 || w.Cap >= 1 {
		return c
	}
	r, g, b, a := c.RGBA()
	rgb := [3]float64{float64(r >> 8), float64(g >> 8), float64(b >> 8)}
	limit := w.Cap * 3.0 * 255.0
	s := rgb[0] + rgb[1] + rgb[2]
	if s <= limit {
		return c
	}
	scale := limit / s
	return color.RGBA{
		R: uint8(math.Round(rgb[0] * scale)),
		G: uint8(math.Round(rgb[1] * scale)),
		B: uint8(math.Round(rgb[2] * scale)),
		A: uint8(a >> 8),
	}
}

func (w WhiteCap) SetPixel(p image.Point, c color.Color) {
	w.Canvas.SetPixel(p, w.limit(c))
}

func (w WhiteCap) DrawIter(pixels iter.Seq[drawtarget.Pixel]) {
	for px := range pixels {
		w.SetPixel(px.Point, px.Color)
	}
}

func (w WhiteCap) Clear(c color.Color) {
	w.Canvas.Clear(w.limit(c))
}
