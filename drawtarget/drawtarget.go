// Package drawtarget is a framebuffer for addressable LED arrangements.
//
// A Target keeps device-ordered pixel bytes for a Shape, tracks whether
// they changed since the last flush and hands them to a Writer, usually a
// *ws2812.Driver, on Flush. Brightness is applied when pixels are drawn;
// changing it does not rescale pixels already in the buffer.
//
// Target also implements periph.io's display.Drawer so it can be used with
// any code written against that interface.
package drawtarget

import (
	"fmt"
	"image"
	"image/color"
	"io"
	"iter"

	"periph.io/x/conn/v3/display"

	"github.com/coreman2200/ledrmt/ledcolor"
)

// Writer transmits a whole frame of device-ordered pixel bytes. The slice
// is only valid for the duration of the call.
type Writer interface {
	WriteBlocking(data []byte) error
}

// Pixel is a point and its logical color.
type Pixel struct {
	Point image.Point
	Color color.Color
}

// Canvas is the drawing surface shared by Target and its views.
type Canvas interface {
	Size() image.Point
	SetPixel(p image.Point, c color.Color)
	DrawIter(pixels iter.Seq[Pixel])
	Clear(c color.Color)
}

// Target is a framebuffer bound to a Writer. It is not safe for concurrent
// use.
type Target struct {
	w          Writer
	shape      Shape
	layout     ledcolor.Layout
	data       []byte
	brightness uint8
	changed    bool
}

// New returns a black, dirty Target so that the first Flush puts the LEDs
// in a known state. The Target owns w from now on.
//
// New panics if layout is not Valid.
func New(w Writer, shape Shape, layout ledcolor.Layout) *Target {
	if err := layout.Valid(); err != nil {
		panic("drawtarget: " + err.Error())
	}
	return &Target{
		w:          w,
		shape:      shape,
		layout:     layout,
		data:       make([]byte, shape.PixelLen()*layout.BPP),
		brightness: 255,
		changed:    true,
	}
}

func (t *Target) Size() image.Point {
	return t.shape.Size()
}

func (t *Target) Shape() Shape {
	return t.shape
}

func (t *Target) Layout() ledcolor.Layout {
	return t.layout
}

func (t *Target) device(c color.Color) ledcolor.Color {
	return t.layout.Color(c).Brightness(t.brightness)
}

func (t *Target) set(p image.Point, c ledcolor.Color) {
	i, ok := t.shape.PixelIndex(p)
	if !ok {
		return
	}
	off := i * t.layout.BPP
	for j := 0; j < t.layout.BPP; j++ {
		t.data[off+j] = c.Byte(j)
	}
	t.changed = true
}

// SetPixel draws c at p. Points outside the shape are ignored.
func (t *Target) SetPixel(p image.Point, c color.Color) {
	t.set(p, t.device(c))
}

// DrawIter draws every pixel of pixels. Points outside the shape are
// ignored.
func (t *Target) DrawIter(pixels iter.Seq[Pixel]) {
	for px := range pixels {
		t.SetPixel(px.Point, px.Color)
	}
}

// Clear fills every pixel with c.
func (t *Target) Clear(c color.Color) {
	dc := t.device(c)
	for i := range t.data {
		t.data[i] = dc.Byte(i % t.layout.BPP)
	}
	t.changed = true
}

// ClearWithBlack zeroes the buffer.
func (t *Target) ClearWithBlack() {
	clear(t.data)
	t.changed = true
}

// SetBrightness sets the level applied to pixels drawn from now on.
func (t *Target) SetBrightness(level uint8) {
	t.brightness = level
	t.changed = true
}

func (t *Target) Brightness() uint8 {
	return t.brightness
}

// Changed reports whether the buffer changed since the last successful
// Flush.
func (t *Target) Changed() bool {
	return t.changed
}

// Bytes returns the buffer. It must not be modified.
func (t *Target) Bytes() []byte {
	return t.data
}

// Flush writes the buffer if it changed. On error the buffer stays dirty so
// Flush can be retried.
func (t *Target) Flush() error {
	if !t.changed {
		return nil
	}
	if err := t.w.WriteBlocking(t.data); err != nil {
		return err
	}
	t.changed = false
	return nil
}

// Translated returns a view of t whose points are shifted by offset before
// they are mapped.
func (t *Target) Translated(offset image.Point) *Translated {
	return &Translated{t: t, offset: offset}
}

// Close closes the Writer when it is an io.Closer.
func (t *Target) Close() error {
	if c, ok := t.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// display.Drawer

func (t *Target) String() string {
	s := t.shape.Size()
	return fmt.Sprintf("drawtarget{%dx%d %s}", s.X, s.Y, t.layout)
}

// Halt turns every LED off.
func (t *Target) Halt() error {
	t.ClearWithBlack()
	return t.Flush()
}

// ColorModel converts to the device color of the Target layout.
func (t *Target) ColorModel() color.Model {
	return color.ModelFunc(func(c color.Color) color.Color {
		return t.layout.Color(c)
	})
}

func (t *Target) Bounds() image.Rectangle {
	return image.Rectangle{Max: t.shape.Size()}
}

// Draw copies src, aligned with sp, into the part of r inside the Target
// and flushes.
func (t *Target) Draw(r image.Rectangle, src image.Image, sp image.Point) error {
	clipped := r.Intersect(t.Bounds())
	sp = sp.Add(clipped.Min.Sub(r.Min))
	r = clipped
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			t.SetPixel(image.Pt(x, y), src.At(sp.X+x-r.Min.X, sp.Y+y-r.Min.Y))
		}
	}
	return t.Flush()
}

var _ display.Drawer = &Target{}
var _ Canvas = &Target{}
