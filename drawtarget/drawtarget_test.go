package drawtarget

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreman2200/ledrmt/ledcolor"
)

type recorder struct {
	frames [][]byte
	err    error
	closed int
}

func (r *recorder) WriteBlocking(data []byte) error {
	if r.err != nil {
		return r.err
	}
	r.frames = append(r.frames, bytes.Clone(data))
	return nil
}

func (r *recorder) Close() error {
	r.closed++
	return nil
}

func rgb(r, g, b uint8) color.Color {
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

func TestNew(t *testing.T) {
	tgt := New(&recorder{}, Matrix{Width: 10, Height: 5}, ledcolor.GRB24)
	assert.True(t, tgt.Changed())
	assert.Equal(t, make([]byte, 150), tgt.Bytes())
	assert.Equal(t, uint8(255), tgt.Brightness())
	assert.Equal(t, image.Pt(10, 5), tgt.Size())
	assert.Equal(t, "drawtarget{10x5 GRB}", tgt.String())
}

func TestDrawClear(t *testing.T) {
	tgt := New(&recorder{}, Matrix{Width: 10, Height: 5}, ledcolor.GRB24)
	tgt.DrawIter(slices.Values([]Pixel{
		{image.Pt(0, 0), rgb(1, 2, 3)},
		{image.Pt(9, 4), rgb(4, 5, 6)},
		{image.Pt(10, 5), rgb(255, 255, 255)},
	}))
	data := tgt.Bytes()
	assert.Equal(t, []byte{2, 1, 3}, data[0:3])
	assert.Equal(t, make([]byte, 144), data[3:147])
	assert.Equal(t, []byte{5, 4, 6}, data[147:150])

	tgt.Clear(rgb(7, 8, 10))
	assert.Equal(t, bytes.Repeat([]byte{8, 7, 10}, 50), tgt.Bytes())

	tgt.ClearWithBlack()
	assert.Equal(t, make([]byte, 150), tgt.Bytes())
}

func TestDrawOutOfBounds(t *testing.T) {
	w := &recorder{}
	tgt := New(w, Matrix{Width: 10, Height: 5}, ledcolor.GRB24)
	require.NoError(t, tgt.Flush())
	for _, p := range []image.Point{{-1, 0}, {0, -1}, {10, 0}, {0, 5}} {
		tgt.SetPixel(p, rgb(255, 255, 255))
	}
	assert.False(t, tgt.Changed())
	assert.Equal(t, make([]byte, 150), tgt.Bytes())
}

func TestFlush(t *testing.T) {
	w := &recorder{}
	tgt := New(w, Strip(4), ledcolor.GRB24)

	require.NoError(t, tgt.Flush())
	require.Len(t, w.frames, 1)
	assert.False(t, tgt.Changed())

	require.NoError(t, tgt.Flush())
	assert.Len(t, w.frames, 1)

	tgt.SetPixel(image.Pt(1, 0), rgb(1, 2, 3))
	assert.True(t, tgt.Changed())
	require.NoError(t, tgt.Flush())
	require.Len(t, w.frames, 2)
	assert.Equal(t, []byte{0, 0, 0, 2, 1, 3, 0, 0, 0, 0, 0, 0}, w.frames[1])
}

func TestFlushErrorKeepsDirty(t *testing.T) {
	w := &recorder{err: errors.New("boom")}
	tgt := New(w, Strip(2), ledcolor.GRB24)
	assert.EqualError(t, tgt.Flush(), "boom")
	assert.True(t, tgt.Changed())

	w.err = nil
	require.NoError(t, tgt.Flush())
	assert.False(t, tgt.Changed())
	assert.Len(t, w.frames, 1)
}

func TestBrightness(t *testing.T) {
	tgt := New(&recorder{}, Strip(2), ledcolor.GRB24)
	tgt.SetPixel(image.Pt(0, 0), rgb(255, 128, 64))
	require.NoError(t, tgt.Flush())

	tgt.SetBrightness(128)
	assert.True(t, tgt.Changed())
	assert.Equal(t, uint8(128), tgt.Brightness())
	tgt.SetPixel(image.Pt(1, 0), rgb(255, 128, 64))
	// Pixel 0 keeps its full brightness value.
	assert.Equal(t, []byte{128, 255, 64, 64, 128, 32}, tgt.Bytes())

	tgt.SetBrightness(0)
	tgt.Clear(rgb(255, 255, 255))
	assert.Equal(t, make([]byte, 6), tgt.Bytes())
}

func TestRGBWLayout(t *testing.T) {
	tgt := New(&recorder{}, Strip(2), ledcolor.GRBW32)
	tgt.SetPixel(image.Pt(1, 0), ledcolor.RGBW{R: 1, G: 2, B: 3, W: 4})
	assert.Equal(t, []byte{0, 0, 0, 0, 2, 1, 3, 4}, tgt.Bytes())
	tgt.Clear(ledcolor.RGBW{W: 9})
	assert.Equal(t, []byte{0, 0, 0, 9, 0, 0, 0, 9}, tgt.Bytes())
}

func TestTranslated(t *testing.T) {
	tgt := New(&recorder{}, Matrix{Width: 10, Height: 5}, ledcolor.GRB24)
	v := tgt.Translated(image.Pt(2, 1))
	assert.Equal(t, image.Pt(10, 5), v.Size())

	v.SetPixel(image.Pt(0, 0), rgb(1, 2, 3))
	assert.Equal(t, []byte{2, 1, 3}, tgt.Bytes()[36:39])

	// (8,4) + (2,1) is outside the target.
	v.SetPixel(image.Pt(8, 4), rgb(1, 2, 3))
	assert.Equal(t, 3, countNonZero(tgt.Bytes()))

	nested := v.Translated(image.Pt(-2, -1))
	assert.Equal(t, image.Point{}, nested.Offset())
	nested.DrawIter(slices.Values([]Pixel{{image.Pt(0, 0), rgb(4, 5, 6)}}))
	assert.Equal(t, []byte{5, 4, 6}, tgt.Bytes()[0:3])

	v.Clear(rgb(7, 8, 10))
	assert.Equal(t, bytes.Repeat([]byte{8, 7, 10}, 50), tgt.Bytes())
}

func TestDrawer(t *testing.T) {
	w := &recorder{}
	tgt := New(w, Matrix{Width: 3, Height: 2}, ledcolor.GRB24)
	assert.Equal(t, image.Rect(0, 0, 3, 2), tgt.Bounds())
	assert.Equal(t, ledcolor.GRB24.RGB(1, 2, 3), tgt.ColorModel().Convert(rgb(1, 2, 3)))

	src := image.NewRGBA(image.Rect(0, 0, 3, 1))
	src.Set(1, 0, rgb(9, 8, 7))
	// The part of the rectangle left of the target is clipped away along
	// with the matching source column.
	require.NoError(t, tgt.Draw(image.Rect(-1, 0, 2, 1), src, image.Point{}))
	require.Len(t, w.frames, 1)
	assert.Equal(t, []byte{8, 9, 7}, w.frames[0][0:3])
	assert.False(t, tgt.Changed())

	require.NoError(t, tgt.Draw(tgt.Bounds(), &image.Uniform{C: rgb(1, 2, 3)}, image.Point{}))
	assert.Equal(t, bytes.Repeat([]byte{2, 1, 3}, 6), w.frames[1])

	require.NoError(t, tgt.Halt())
	assert.Equal(t, make([]byte, 18), w.frames[2])
}

func TestClose(t *testing.T) {
	w := &recorder{}
	tgt := New(w, Strip(1), ledcolor.GRB24)
	require.NoError(t, tgt.Close())
	assert.Equal(t, 1, w.closed)

	type plain struct{ Writer }
	assert.NoError(t, New(plain{w}, Strip(1), ledcolor.GRB24).Close())
	assert.Equal(t, 1, w.closed)
}

func TestNewInvalidLayout(t *testing.T) {
	assert.Panics(t, func() { New(&recorder{}, Strip(3), ledcolor.Layout{}) })
}

func TestShapes(t *testing.T) {
	tests := []struct {
		name  string
		shape Shape
		p     image.Point
		want  int
		ok    bool
	}{
		{"matrix origin", Matrix{4, 2}, image.Pt(0, 0), 0, true},
		{"matrix second row", Matrix{4, 2}, image.Pt(1, 1), 5, true},
		{"matrix outside", Matrix{4, 2}, image.Pt(4, 0), 0, false},
		{"strip", Strip(8), image.Pt(7, 0), 7, true},
		{"strip second row", Strip(8), image.Pt(0, 1), 0, false},
		{"serpentine even row", Serpentine{4, 2}, image.Pt(1, 0), 1, true},
		{"serpentine odd row", Serpentine{4, 2}, image.Pt(0, 1), 7, true},
		{"serpentine odd row end", Serpentine{4, 2}, image.Pt(3, 1), 4, true},
		{"serpentine outside", Serpentine{4, 2}, image.Pt(0, -1), 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.shape.PixelIndex(tt.p)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.Equal(t, 8, Serpentine{4, 2}.PixelLen())
	assert.Equal(t, image.Pt(8, 1), Strip(8).Size())
}

func countNonZero(b []byte) int {
	n := 0
	for _, v := range b {
		if v != 0 {
			n++
		}
	}
	return n
}
