// Package rmt defines the pulse-train peripheral capability the LED drivers
// transmit through.
//
// A remote-control style transmitter emits a sequence of Symbols, each made
// of two Pulses with a level and a duration counted in ticks of the channel
// counter clock. The package also provides two periph.io backed
// implementations: StreamPeripheral, which streams the rasterized pulse train
// through a gpiostream capable pin, and SPIPeripheral, which shifts it out of
// the MOSI line of a SPI port.
package rmt

import (
	"errors"
	"fmt"
	"iter"
	"math/bits"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

// MaxTicks is the largest duration a single Pulse can hold.
const MaxTicks = 1<<15 - 1

var (
	// ErrZeroClock is returned when a duration is converted against a zero
	// counter clock.
	ErrZeroClock = errors.New("rmt: counter clock is zero")
	// ErrTickOverflow is returned when a duration needs more than MaxTicks.
	ErrTickOverflow = errors.New("rmt: duration exceeds the pulse tick range")
	// ErrTickUnderflow is returned when a non-zero duration is shorter than
	// one tick.
	ErrTickUnderflow = errors.New("rmt: duration is shorter than one tick")
	// ErrInUse is returned when a channel or pin is already bound.
	ErrInUse = errors.New("rmt: channel or pin already bound")
	// ErrUnbound is returned when using a channel after Uninstall.
	ErrUnbound = errors.New("rmt: channel is not installed")
)

// ChannelID identifies a transmit channel of a peripheral.
type ChannelID uint8

func (c ChannelID) String() string {
	return fmt.Sprintf("ch%d", uint8(c))
}

// Pulse is one level held for a number of counter clock ticks.
type Pulse struct {
	Level gpio.Level
	Ticks uint16
}

// NewPulse converts d to ticks of clock, truncating:
//
//	ticks = d[ns] * clock[Hz] / 1e9
func NewPulse(clock physic.Frequency, level gpio.Level, d time.Duration) (Pulse, error) {
	ticks, err := DurationToTicks(clock, d)
	if err != nil {
		return Pulse{}, err
	}
	return Pulse{Level: level, Ticks: ticks}, nil
}

// DurationToTicks converts d to ticks of clock, truncating.
func DurationToTicks(clock physic.Frequency, d time.Duration) (uint16, error) {
	hz := int64(clock / physic.Hertz)
	if hz <= 0 {
		return 0, ErrZeroClock
	}
	if d < 0 {
		return 0, fmt.Errorf("rmt: negative duration %s", d)
	}
	hi, lo := bits.Mul64(uint64(d.Nanoseconds()), uint64(hz))
	if hi != 0 {
		return 0, fmt.Errorf("%w: %s at %s", ErrTickOverflow, d, clock)
	}
	ticks := lo / uint64(time.Second)
	if ticks > MaxTicks {
		return 0, fmt.Errorf("%w: %s at %s", ErrTickOverflow, d, clock)
	}
	if ticks == 0 && d != 0 {
		return 0, fmt.Errorf("%w: %s at %s", ErrTickUnderflow, d, clock)
	}
	return uint16(ticks), nil
}

// Symbol is a pair of pulses, the unit a transmit channel emits.
type Symbol struct {
	First  Pulse
	Second Pulse
}

// NewSymbol returns the symbol made of first then second.
func NewSymbol(first, second Pulse) Symbol {
	return Symbol{First: first, Second: second}
}

// Ticks is the total duration of the symbol in ticks.
func (s Symbol) Ticks() uint32 {
	return uint32(s.First.Ticks) + uint32(s.Second.Ticks)
}

func (s Symbol) String() string {
	return fmt.Sprintf("{%s:%d %s:%d}", s.First.Level, s.First.Ticks, s.Second.Level, s.Second.Ticks)
}

// TxConfig is the transmit configuration applied when binding a channel.
type TxConfig struct {
	// ClockDivider divides the peripheral source clock to obtain the counter
	// clock. 0 is treated as 1.
	ClockDivider uint8
	// WaitTxDone makes StartBlocking return only once the last symbol left the
	// pin. When false StartBlocking returns once the symbols are queued and the
	// next operation on the channel waits for the previous transmission.
	WaitTxDone bool
	// IdleLevel is the level the pin is left at between transmissions.
	IdleLevel gpio.Level
}

func (c TxConfig) divider() physic.Frequency {
	if c.ClockDivider == 0 {
		return 1
	}
	return physic.Frequency(c.ClockDivider)
}

// Channel is a bound transmit channel.
//
// Implementations may iterate the symbol sequence from an interrupt or
// completion context; sequences passed in must not block or allocate.
type Channel interface {
	// CounterClock returns the tick rate of the channel.
	CounterClock() (physic.Frequency, error)
	// StartBlocking transmits symbols and blocks until the peripheral is done
	// with them.
	StartBlocking(symbols iter.Seq[Symbol]) error
	// Uninstall releases the channel and its pin. It waits for queued
	// transmissions but does not report their errors; see Flusher.
	Uninstall() error
}

// AsyncChannel is a Channel that can also transmit without blocking.
type AsyncChannel interface {
	Channel
	// Start hands symbols over to the peripheral and returns immediately.
	// done is called exactly once, from the completion context, when the
	// transmission finished or failed.
	Start(symbols iter.Seq[Symbol], done func(error)) error
}

// Flusher is implemented by channels that can queue blocking transmissions
// when TxConfig.WaitTxDone is false. Flush waits for the queued transmission
// and returns its error, if no later call reported it already.
type Flusher interface {
	Flush() error
}

// Peripheral binds transmit channels to output pins.
type Peripheral interface {
	Bind(ch ChannelID, pin string, cfg TxConfig) (Channel, error)
}
