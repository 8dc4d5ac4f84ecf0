package led

import (
	"fmt"
	"image"
	"sync"

	"periph.io/x/conn/v3/display"
	"periph.io/x/extra/devices/screen"

	"github.com/coreman2200/ledrmt/ledcolor"
)

// Console prints frames as a line of colored cells on the terminal. Useful
// when no SPI port or pulse-train capable pin is available.
type Console struct {
	mu     sync.Mutex
	dev    display.Drawer
	layout ledcolor.Layout
	img    *image.NRGBA
}

// NewConsole returns a Console showing n pixels.
func NewConsole(n int, layout ledcolor.Layout) *Console {
	return &Console{
		dev:    screen.New(n),
		layout: layout,
		img:    image.NewNRGBA(image.Rect(0, 0, n, 1)),
	}
}

// WriteBlocking implements Driver.
func (c *Console) WriteBlocking(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	w := c.img.Bounds().Dx()
	for i, px := range c.layout.Pixels(data) {
		if i >= w {
			break
		}
		c.img.Set(i, 0, px)
	}
	if err := c.dev.Draw(c.dev.Bounds(), c.img, image.Point{}); err != nil {
		return fmt.Errorf("led: console: %w", err)
	}
	return nil
}

// Close implements Driver.
func (c *Console) Close() error {
	return c.dev.Halt()
}
