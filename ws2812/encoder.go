// Package ws2812 drives WS2812 / SK6812 class addressable LEDs through a
// pulse-train transmit channel.
//
// Every data bit is one rmt.Symbol: a high pulse followed by a low pulse
// whose lengths tell a 0 from a 1. Bytes go out most significant bit first.
package ws2812

import (
	"fmt"
	"iter"
	"slices"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"

	"github.com/coreman2200/ledrmt/rmt"
)

// Bit timings from the WS2812 datasheet.
const (
	T0H = 400 * time.Nanosecond
	T0L = 850 * time.Nanosecond
	T1H = 800 * time.Nanosecond
	T1L = 450 * time.Nanosecond
)

// SymbolsPerByte is the number of symbols Encode emits for each input byte.
const SymbolsPerByte = 8

// Encoder maps bytes to symbols for a given counter clock. It is immutable
// once built and safe for concurrent use.
type Encoder struct {
	clock physic.Frequency
	bit0  rmt.Symbol
	bit1  rmt.Symbol
}

// NewEncoder builds the two bit symbols at clock. Tick conversion errors from
// rmt.NewPulse are returned unchanged.
func NewEncoder(clock physic.Frequency) (*Encoder, error) {
	durations := [4]time.Duration{T0H, T0L, T1H, T1L}
	var p [4]rmt.Pulse
	for i, d := range durations {
		level := gpio.High
		if i%2 == 1 {
			level = gpio.Low
		}
		var err error
		if p[i], err = rmt.NewPulse(clock, level, d); err != nil {
			return nil, err
		}
	}
	return &Encoder{
		clock: clock,
		bit0:  rmt.NewSymbol(p[0], p[1]),
		bit1:  rmt.NewSymbol(p[2], p[3]),
	}, nil
}

// Clock is the counter clock the encoder was built for.
func (e *Encoder) Clock() physic.Frequency { return e.clock }

// Bit0 is the symbol of a 0 bit.
func (e *Encoder) Bit0() rmt.Symbol { return e.bit0 }

// Bit1 is the symbol of a 1 bit.
func (e *Encoder) Bit1() rmt.Symbol { return e.bit1 }

// Encode lazily maps each byte of data to 8 symbols, MSB first.
func (e *Encoder) Encode(data iter.Seq[byte]) iter.Seq[rmt.Symbol] {
	return func(yield func(rmt.Symbol) bool) {
		for b := range data {
			for mask := byte(0x80); mask != 0; mask >>= 1 {
				s := e.bit0
				if b&mask != 0 {
					s = e.bit1
				}
				if !yield(s) {
					return
				}
			}
		}
	}
}

// EncodeBytes is Encode over a byte slice.
func (e *Encoder) EncodeBytes(data []byte) iter.Seq[rmt.Symbol] {
	return e.Encode(slices.Values(data))
}

// Decode turns symbols back into bytes. A symbol whose high time is at or
// above the midpoint between T0H and T1H reads as a 1.
func (e *Encoder) Decode(symbols iter.Seq[rmt.Symbol]) ([]byte, error) {
	mid := (uint32(e.bit0.First.Ticks) + uint32(e.bit1.First.Ticks) + 1) / 2
	var out []byte
	var cur byte
	n := 0
	for s := range symbols {
		if s.First.Level != gpio.High || s.Second.Level != gpio.Low {
			return out, fmt.Errorf("ws2812: symbol %d is not a high/low pair: %s", n, s)
		}
		cur <<= 1
		if uint32(s.First.Ticks) >= mid {
			cur |= 1
		}
		n++
		if n%8 == 0 {
			out = append(out, cur)
			cur = 0
		}
	}
	if n%8 != 0 {
		return out, fmt.Errorf("ws2812: %d symbols do not make whole bytes", n)
	}
	return out, nil
}

func (e *Encoder) String() string {
	return fmt.Sprintf("ws2812.Encoder{%s 0:%s 1:%s}", e.clock, e.bit0, e.bit1)
}
