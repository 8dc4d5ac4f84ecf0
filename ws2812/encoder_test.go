package ws2812

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"

	"github.com/coreman2200/ledrmt/rmt"
)

func newTestEncoder(t *testing.T) *Encoder {
	e, err := NewEncoder(80 * physic.MegaHertz)
	require.NoError(t, err)
	return e
}

func TestNewEncoderTicks(t *testing.T) {
	e := newTestEncoder(t)
	assert.Equal(t, rmt.Symbol{
		First:  rmt.Pulse{Level: gpio.High, Ticks: 32},
		Second: rmt.Pulse{Level: gpio.Low, Ticks: 68},
	}, e.Bit0())
	assert.Equal(t, rmt.Symbol{
		First:  rmt.Pulse{Level: gpio.High, Ticks: 64},
		Second: rmt.Pulse{Level: gpio.Low, Ticks: 36},
	}, e.Bit1())
	assert.Equal(t, 80*physic.MegaHertz, e.Clock())
}

func TestNewEncoderErrors(t *testing.T) {
	_, err := NewEncoder(0)
	assert.ErrorIs(t, err, rmt.ErrZeroClock)
	_, err = NewEncoder(physic.MegaHertz)
	assert.ErrorIs(t, err, rmt.ErrTickUnderflow)
	_, err = NewEncoder(40 * physic.GigaHertz)
	assert.ErrorIs(t, err, rmt.ErrTickOverflow)
}

func TestEncodeLength(t *testing.T) {
	e := newTestEncoder(t)
	for _, n := range []int{0, 1, 3, 150} {
		got := slices.Collect(e.EncodeBytes(make([]byte, n)))
		assert.Len(t, got, n*SymbolsPerByte)
	}
}

func TestEncodeBitOrder(t *testing.T) {
	e := newTestEncoder(t)
	b0, b1 := e.Bit0(), e.Bit1()
	got := slices.Collect(e.EncodeBytes([]byte{0b10110000}))
	assert.Equal(t, []rmt.Symbol{b1, b0, b1, b1, b0, b0, b0, b0}, got)
}

func TestEncodeStopsEarly(t *testing.T) {
	e := newTestEncoder(t)
	n := 0
	for range e.EncodeBytes([]byte{0xFF, 0xFF}) {
		n++
		if n == 3 {
			break
		}
	}
	assert.Equal(t, 3, n)
}

func TestDecode(t *testing.T) {
	e := newTestEncoder(t)
	data := []byte{0xA5, 0x00, 0xFF, 0x3C}
	got, err := e.Decode(e.EncodeBytes(data))
	require.NoError(t, err)
	assert.Equal(t, data, got)

	partial := slices.Collect(e.EncodeBytes([]byte{0xFF}))[:5]
	_, err = e.Decode(slices.Values(partial))
	assert.Error(t, err)

	inverted := []rmt.Symbol{{First: rmt.Pulse{Level: gpio.Low, Ticks: 32}, Second: rmt.Pulse{Level: gpio.High, Ticks: 68}}}
	_, err = e.Decode(slices.Values(inverted))
	assert.Error(t, err)
}
