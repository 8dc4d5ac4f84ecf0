package led

import (
	"fmt"
	"sync"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/devices/v3/nrzled"

	"github.com/coreman2200/ledrmt/ledcolor"
)

// NRZ drives a strip through periph's nrzled SPI encoder, which expands
// every bit to three SPI bits instead of using a pulse-train channel.
type NRZ struct {
	mu       sync.Mutex
	dev      *nrzled.Dev
	layout   ledcolor.Layout
	channels int
	buf      []byte
}

// NewNRZ opens an nrzled device for n pixels of layout on p. freq 0 means
// 2.5MHz.
func NewNRZ(p spi.Port, n int, layout ledcolor.Layout, freq physic.Frequency) (*NRZ, error) {
	if n <= 0 {
		return nil, fmt.Errorf("led: invalid LED count: %d", n)
	}
	if freq == 0 {
		freq = 2500 * physic.KiloHertz
	}
	channels := 3
	if layout.Has(ledcolor.White) {
		channels = 4
	}
	d, err := nrzled.NewSPI(p, &nrzled.Opts{NumPixels: n, Channels: channels, Freq: freq})
	if err != nil {
		return nil, fmt.Errorf("led: nrzled: %w", err)
	}
	return &NRZ{dev: d, layout: layout, channels: channels}, nil
}

// WriteBlocking implements Driver. nrzled applies the wire order itself so
// the frame is handed over in logical order.
func (n *NRZ) WriteBlocking(data []byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.dev == nil {
		return fmt.Errorf("led: nrz closed")
	}
	n.buf = logical(n.buf, data, n.layout, n.channels)
	if _, err := n.dev.Write(n.buf); err != nil {
		return fmt.Errorf("led: nrz write: %w", err)
	}
	return nil
}

// Close turns the strip off.
func (n *NRZ) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.dev == nil {
		return nil
	}
	err := n.dev.Halt()
	n.dev = nil
	return err
}

func (n *NRZ) String() string {
	return fmt.Sprintf("led.NRZ{%s}", n.layout)
}
