package ws2812

import (
	"errors"
	"fmt"

	"github.com/coreman2200/ledrmt/rmt"
)

var (
	// ErrClosed is returned when using a Driver after Close.
	ErrClosed = errors.New("ws2812: driver is closed")
	// ErrBusy is returned when a write is issued while a non-blocking
	// transfer is still in flight.
	ErrBusy = errors.New("ws2812: transfer in progress")
	// ErrAsyncUnsupported is returned by Start when the channel cannot
	// transmit without blocking.
	ErrAsyncUnsupported = errors.New("ws2812: channel does not support non-blocking transmission")
)

// HardwareError reports a failure of the transmit peripheral.
type HardwareError struct {
	// Op is one of bind, clock, encoder, transmit or uninstall.
	Op      string
	Channel rmt.ChannelID
	Pin     string
	Err     error
}

func (e *HardwareError) Error() string {
	return fmt.Sprintf("ws2812: %s %s/%s: %v", e.Op, e.Channel, e.Pin, e.Err)
}

func (e *HardwareError) Unwrap() error {
	return e.Err
}
