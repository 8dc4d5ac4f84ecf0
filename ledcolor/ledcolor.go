// Package ledcolor describes the device dependent byte layout of LED pixel
// colors.
//
// A Layout maps each logical channel (red, green, blue, white) to a byte
// offset inside a BPP-byte pixel. A channel whose offset is BPP or larger is
// absent: reading it yields 0 and writing it is silently dropped.
package ledcolor

import (
	"bytes"
	"fmt"
	"image/color"
	"iter"
	"strings"
)

// Channel is a logical color channel.
type Channel uint8

const (
	Red Channel = iota
	Green
	Blue
	White
)

func (c Channel) String() string {
	switch c {
	case Red:
		return "R"
	case Green:
		return "G"
	case Blue:
		return "B"
	case White:
		return "W"
	}
	return fmt.Sprintf("Channel(%d)", uint8(c))
}

// Absent is the offset used for a channel that the device does not have.
const Absent uint8 = 0xFF

// MaxBPP is the largest pixel size supported.
const MaxBPP = 4

// Layout is a channel-to-byte-offset map for one LED pixel.
type Layout struct {
	BPP int
	R   uint8
	G   uint8
	B   uint8
	W   uint8
}

var (
	// GRB24 is the typical WS2812B/SK6812 RGB pixel: green, red, blue.
	GRB24 = Layout{BPP: 3, R: 1, G: 0, B: 2, W: Absent}
	// RGB24 sends red first.
	RGB24 = Layout{BPP: 3, R: 0, G: 1, B: 2, W: Absent}
	// RGBW32 is the SK6812 RGBW pixel.
	RGBW32 = Layout{BPP: 4, R: 0, G: 1, B: 2, W: 3}
	// GRBW32 is the SK6812 GRBW pixel.
	GRBW32 = Layout{BPP: 4, R: 1, G: 0, B: 2, W: 3}
)

// ParseLayout builds a Layout from a channel order string such as "GRB" or
// "RGBW". The string length is the BPP.
func ParseLayout(order string) (Layout, error) {
	order = strings.ToUpper(strings.TrimSpace(order))
	if len(order) < 3 || len(order) > MaxBPP {
		return Layout{}, fmt.Errorf("ledcolor: invalid color order %q", order)
	}
	l := Layout{BPP: len(order), R: Absent, G: Absent, B: Absent, W: Absent}
	for i := 0; i < len(order); i++ {
		var dst *uint8
		switch order[i] {
		case 'R':
			dst = &l.R
		case 'G':
			dst = &l.G
		case 'B':
			dst = &l.B
		case 'W':
			dst = &l.W
		default:
			return Layout{}, fmt.Errorf("ledcolor: invalid channel %q in color order %q", order[i], order)
		}
		if *dst != Absent {
			return Layout{}, fmt.Errorf("ledcolor: duplicate channel %q in color order %q", order[i], order)
		}
		*dst = uint8(i)
	}
	return l, nil
}

// Valid reports whether l describes a usable pixel: BPP between 1 and
// MaxBPP and no two present channels sharing a byte.
func (l Layout) Valid() error {
	if l.BPP < 1 || l.BPP > MaxBPP {
		return fmt.Errorf("ledcolor: invalid BPP %d", l.BPP)
	}
	var seen [MaxBPP]bool
	for _, c := range []Channel{Red, Green, Blue, White} {
		off, ok := l.Offset(c)
		if !ok {
			continue
		}
		if seen[off] {
			return fmt.Errorf("ledcolor: channel %s shares byte %d", c, off)
		}
		seen[off] = true
	}
	return nil
}

// bpp is BPP clamped to [0, MaxBPP].
func (l Layout) bpp() int {
	return min(max(l.BPP, 0), MaxBPP)
}

// Offset returns the byte offset of c, or false if the channel is absent.
func (l Layout) Offset(c Channel) (int, bool) {
	var off uint8
	switch c {
	case Red:
		off = l.R
	case Green:
		off = l.G
	case Blue:
		off = l.B
	case White:
		off = l.W
	default:
		return 0, false
	}
	if int(off) >= l.bpp() {
		return 0, false
	}
	return int(off), true
}

// Has reports whether the layout carries channel c.
func (l Layout) Has(c Channel) bool {
	_, ok := l.Offset(c)
	return ok
}

func (l Layout) String() string {
	var b strings.Builder
	for i := 0; i < l.bpp(); i++ {
		ch := byte('-')
		for _, c := range []Channel{Red, Green, Blue, White} {
			if off, ok := l.Offset(c); ok && off == i {
				ch = c.String()[0]
			}
		}
		b.WriteByte(ch)
	}
	return b.String()
}

// RGB builds a device color. The white channel, if any, is 0.
func (l Layout) RGB(r, g, b uint8) Color {
	return l.RGBW(r, g, b, 0)
}

// RGBW builds a device color. Values for absent channels are dropped.
func (l Layout) RGBW(r, g, b, w uint8) Color {
	c := Color{layout: l}
	c.set(Red, r)
	c.set(Green, g)
	c.set(Blue, b)
	c.set(White, w)
	return c
}

// Color converts a logical color. A ledcolor.RGBW keeps its white value;
// any other color.Color contributes its 8-bit RGB.
func (l Layout) Color(c color.Color) Color {
	switch v := c.(type) {
	case RGBW:
		return l.RGBW(v.R, v.G, v.B, v.W)
	case Color:
		return l.RGBW(v.R(), v.G(), v.B(), v.W())
	case color.RGBA:
		return l.RGB(v.R, v.G, v.B)
	case color.NRGBA:
		if v.A == 0xFF {
			return l.RGB(v.R, v.G, v.B)
		}
	}
	r, g, b, _ := c.RGBA()
	return l.RGB(uint8(r>>8), uint8(g>>8), uint8(b>>8))
}

// FromBytes reads one device color from the first BPP bytes of b. Missing
// bytes read as 0.
func (l Layout) FromBytes(b []byte) Color {
	c := Color{layout: l}
	copy(c.raw[:l.bpp()], b)
	return c
}

// Pixels splits a frame of device bytes into colors. A trailing partial
// pixel is ignored. A layout without bytes yields nothing.
func (l Layout) Pixels(frame []byte) iter.Seq2[int, Color] {
	return func(yield func(int, Color) bool) {
		n := l.bpp()
		if n == 0 {
			return
		}
		for i := 0; (i+1)*n <= len(frame); i++ {
			if !yield(i, l.FromBytes(frame[i*n:])) {
				return
			}
		}
	}
}

// Black returns the all-off color for the layout.
func (l Layout) Black() Color {
	return Color{layout: l}
}

// Color is a device color: exactly Layout.BPP raw bytes.
type Color struct {
	layout Layout
	raw    [MaxBPP]byte
}

func (c *Color) set(ch Channel, v uint8) {
	if off, ok := c.layout.Offset(ch); ok {
		c.raw[off] = v
	}
}

// Channel returns the value of ch, or 0 if the layout does not carry it.
func (c Color) Channel(ch Channel) uint8 {
	if off, ok := c.layout.Offset(ch); ok {
		return c.raw[off]
	}
	return 0
}

func (c Color) R() uint8 { return c.Channel(Red) }
func (c Color) G() uint8 { return c.Channel(Green) }
func (c Color) B() uint8 { return c.Channel(Blue) }
func (c Color) W() uint8 { return c.Channel(White) }

// Layout returns the layout the color was built with.
func (c Color) Layout() Layout {
	return c.layout
}

// BPP is the number of raw bytes.
func (c Color) BPP() int {
	return c.layout.bpp()
}

// Bytes returns a copy of the raw bytes in device order.
func (c Color) Bytes() []byte {
	out := make([]byte, c.layout.bpp())
	copy(out, c.raw[:])
	return out
}

// Byte returns raw byte i, or 0 past BPP.
func (c Color) Byte(i int) byte {
	if i < 0 || i >= c.layout.bpp() {
		return 0
	}
	return c.raw[i]
}

// Brightness returns the color with every channel scaled by (level+1)/256,
// truncated. 255 leaves the color unchanged and 0 turns it fully off.
func (c Color) Brightness(level uint8) Color {
	out := Color{layout: c.layout}
	for i := 0; i < c.layout.bpp(); i++ {
		out.raw[i] = uint8(uint16(c.raw[i]) * (uint16(level) + 1) / 256)
	}
	return out
}

// Equal compares the raw bytes only.
func (c Color) Equal(o Color) bool {
	return bytes.Equal(c.raw[:c.layout.bpp()], o.raw[:o.layout.bpp()])
}

// Compare orders colors by their raw bytes.
func (c Color) Compare(o Color) int {
	return bytes.Compare(c.raw[:c.layout.bpp()], o.raw[:o.layout.bpp()])
}

// RGBA implements color.Color. The white channel is not represented.
func (c Color) RGBA() (r, g, b, a uint32) {
	return color.RGBA{R: c.R(), G: c.G(), B: c.B(), A: 0xFF}.RGBA()
}

func (c Color) String() string {
	return fmt.Sprintf("%s%v", c.layout, c.raw[:c.layout.bpp()])
}

// RGBW is a logical 8-bit color with a white channel.
type RGBW struct {
	R, G, B, W uint8
}

// RGBA implements color.Color. White is ignored.
func (c RGBW) RGBA() (r, g, b, a uint32) {
	return color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xFF}.RGBA()
}

// Model converts any color.Color to an opaque RGBW.
var Model = color.ModelFunc(func(c color.Color) color.Color {
	switch v := c.(type) {
	case RGBW:
		return v
	case Color:
		return RGBW{R: v.R(), G: v.G(), B: v.B(), W: v.W()}
	}
	r, g, b, _ := c.RGBA()
	return RGBW{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8)}
})

var (
	_ color.Color = Color{}
	_ color.Color = RGBW{}
)
