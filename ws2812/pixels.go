package ws2812

import (
	"image/color"
	"iter"

	"github.com/coreman2200/ledrmt/ledcolor"
)

// PixelWriter writes streams of colors straight to a Driver, without a
// framebuffer.
type PixelWriter struct {
	d      *Driver
	layout ledcolor.Layout
	buf    []byte
}

// NewPixelWriter returns a PixelWriter that converts colors to layout.
func NewPixelWriter(d *Driver, layout ledcolor.Layout) *PixelWriter {
	return &PixelWriter{d: d, layout: layout}
}

// Write converts every color first, then transmits the whole frame. The
// conversion buffer is reused across calls.
func (w *PixelWriter) Write(colors iter.Seq[color.Color]) error {
	w.buf = w.buf[:0]
	for c := range colors {
		lc := w.layout.Color(c)
		for i := 0; i < lc.BPP(); i++ {
			w.buf = append(w.buf, lc.Byte(i))
		}
	}
	return w.d.WriteBlocking(w.buf)
}

// WriteNoCopy converts colors while they are being transmitted. colors must
// be cheap to produce since it is consumed from the transmit path.
func (w *PixelWriter) WriteNoCopy(colors iter.Seq[color.Color]) error {
	return w.d.WriteSeq(w.bytes(colors))
}

func (w *PixelWriter) bytes(colors iter.Seq[color.Color]) iter.Seq[byte] {
	return func(yield func(byte) bool) {
		for c := range colors {
			lc := w.layout.Color(c)
			for i := 0; i < lc.BPP(); i++ {
				if !yield(lc.Byte(i)) {
					return
				}
			}
		}
	}
}
