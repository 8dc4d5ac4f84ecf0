// Package led provides frame sinks that do not go through a pulse-train
// channel. They accept the same device-ordered frames as ws2812.Driver.
package led

import "github.com/coreman2200/ledrmt/ledcolor"

// Driver abstracts an LED output sink.
type Driver interface {
	// WriteBlocking pushes a frame of device-ordered pixel bytes.
	WriteBlocking(data []byte) error
	// Close releases resources.
	Close() error
}

// logical reorders a device frame into R, G, B(, W) order.
func logical(dst, frame []byte, layout ledcolor.Layout, channels int) []byte {
	dst = dst[:0]
	for _, c := range layout.Pixels(frame) {
		dst = append(dst, c.R(), c.G(), c.B())
		if channels == 4 {
			dst = append(dst, c.W())
		}
	}
	return dst
}
