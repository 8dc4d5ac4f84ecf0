// Package patterns draws bring-up and diagnostic patterns on a
// drawtarget.Canvas.
package patterns

import (
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/lucasb-eyer/go-colorful"

	"github.com/coreman2200/ledrmt/drawtarget"
)

type Kind string

const (
	None       Kind = ""
	IndexSweep Kind = "index_sweep"
	RGBTest    Kind = "rgb_channels"
	RowSweep   Kind = "row_sweep"
	Rainbow    Kind = "rainbow"
)

// ParseKind accepts the names of the Kind constants.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case None, IndexSweep, RGBTest, RowSweep, Rainbow:
		return k, nil
	}
	return None, fmt.Errorf("patterns: unknown pattern %q", s)
}

type Runner struct {
	kind  Kind
	step  int
	phase float64
}

func NewRunner(kind Kind) *Runner { return &Runner{kind: kind} }

func (r *Runner) Kind() Kind { return r.kind }

var (
	white = color.RGBA{255, 255, 255, 255}
	black = color.RGBA{0, 0, 0, 255}
	cyan  = color.RGBA{0, 255, 255, 255}
)

// Step draws the next frame on c; returns false when the pattern is
// complete. Rainbow never completes.
func (r *Runner) Step(c drawtarget.Canvas) bool {
	size := c.Size()
	n := size.X * size.Y

	switch r.kind {
	case IndexSweep:
		if r.step >= n {
			return false
		}
		c.Clear(black)
		c.SetPixel(image.Pt(r.step%size.X, r.step/size.X), white)
	case RGBTest:
		if r.step >= 3 {
			return false
		}
		c.Clear([]color.RGBA{{255, 0, 0, 255}, {0, 255, 0, 255}, {0, 0, 255, 255}}[r.step])
	case RowSweep:
		if r.step >= size.Y {
			return false
		}
		c.Clear(black)
		for x := 0; x < size.X; x++ {
			c.SetPixel(image.Pt(x, r.step), cyan)
		}
	case Rainbow:
		for y := 0; y < size.Y; y++ {
			for x := 0; x < size.X; x++ {
				u := float64(x) / float64(max(1, size.X-1))
				v := float64(y) / float64(max(1, size.Y-1))
				h := math.Mod(u+v+r.phase, 1.0)
				c.SetPixel(image.Pt(x, y), colorful.Hsv(h*360, 1, 1).Clamped())
			}
		}
		r.phase += 0.01
	default:
		return false
	}
	r.step++
	return true
}
