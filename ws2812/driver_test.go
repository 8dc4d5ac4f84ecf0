package ws2812

import (
	"errors"
	"image/color"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiostream"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/physic"

	"github.com/coreman2200/ledrmt/ledcolor"
	"github.com/coreman2200/ledrmt/rmt"
	"github.com/coreman2200/ledrmt/rmt/rmttest"
)

func newTestDriver(t *testing.T, r *rmttest.Record) *Driver {
	d, err := New(r, 0, "GPIO18", nil)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func decodeLast(t *testing.T, d *Driver, r *rmttest.Record) []byte {
	e, err := d.Encoder()
	require.NoError(t, err)
	b, err := e.Decode(slices.Values(r.Last()))
	require.NoError(t, err)
	return b
}

func TestNewDefaults(t *testing.T) {
	r := &rmttest.Record{}
	d := newTestDriver(t, r)
	assert.Equal(t, []rmt.TxConfig{{ClockDivider: 1, WaitTxDone: true, IdleLevel: gpio.Low}}, r.Configs())
	assert.Equal(t, "ws2812{ch0/GPIO18}", d.String())
}

func TestNewOpts(t *testing.T) {
	r := &rmttest.Record{}
	d, err := New(r, 2, "GPIO21", &Opts{ClockDivider: 2})
	require.NoError(t, err)
	defer d.Close()
	e, err := d.Encoder()
	require.NoError(t, err)
	assert.Equal(t, 40*physic.MegaHertz, e.Clock())
	assert.False(t, r.Configs()[0].WaitTxDone)
}

func TestWriteBlocking(t *testing.T) {
	r := &rmttest.Record{}
	d := newTestDriver(t, r)
	e, err := d.Encoder()
	require.NoError(t, err)

	require.NoError(t, d.WriteBlocking([]byte{0b10110000}))
	b0, b1 := e.Bit0(), e.Bit1()
	assert.Equal(t, []rmt.Symbol{b1, b0, b1, b1, b0, b0, b0, b0}, r.Last())

	require.NoError(t, d.WriteBlocking([]byte{1, 2, 3}))
	assert.Equal(t, 2, r.Transmissions())
	assert.Equal(t, []byte{1, 2, 3}, decodeLast(t, d, r))
}

func TestWriteSymbols(t *testing.T) {
	r := &rmttest.Record{}
	d := newTestDriver(t, r)
	s := []rmt.Symbol{{First: rmt.Pulse{Level: gpio.High, Ticks: 1}, Second: rmt.Pulse{Level: gpio.Low, Ticks: 1}}}
	require.NoError(t, d.WriteSymbols(slices.Values(s)))
	assert.Equal(t, s, r.Last())
}

func TestNewFailures(t *testing.T) {
	tests := []struct {
		name       string
		r          *rmttest.Record
		op         string
		target     error
		uninstalls int
	}{
		{"bind", &rmttest.Record{BindErr: rmttest.ErrInjected}, "bind", rmttest.ErrInjected, 0},
		{"clock", &rmttest.Record{ClockErr: rmttest.ErrInjected}, "clock", rmttest.ErrInjected, 1},
		{"encoder", &rmttest.Record{Source: physic.MegaHertz}, "encoder", rmt.ErrTickUnderflow, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := New(tt.r, 0, "GPIO18", nil)
			assert.Nil(t, d)
			var hw *HardwareError
			require.True(t, errors.As(err, &hw), "got %v", err)
			assert.Equal(t, tt.op, hw.Op)
			assert.Equal(t, "GPIO18", hw.Pin)
			assert.ErrorIs(t, err, tt.target)
			assert.Equal(t, tt.uninstalls, tt.r.Uninstalls())
		})
	}
}

func TestNewRejectsSecondDriver(t *testing.T) {
	r := &rmttest.Record{}
	newTestDriver(t, r)
	_, err := New(r, 0, "GPIO19", nil)
	assert.ErrorIs(t, err, rmt.ErrInUse)
	_, err = New(r, 1, "GPIO18", nil)
	assert.ErrorIs(t, err, rmt.ErrInUse)
}

func TestWriteError(t *testing.T) {
	r := &rmttest.Record{}
	d := newTestDriver(t, r)
	r.TxErr = rmttest.ErrInjected
	err := d.WriteBlocking([]byte{1})
	var hw *HardwareError
	require.True(t, errors.As(err, &hw))
	assert.Equal(t, "transmit", hw.Op)
	assert.ErrorIs(t, err, rmttest.ErrInjected)
	assert.Equal(t, "ws2812: transmit ch0/GPIO18: rmttest: injected failure", err.Error())
}

func TestCloseOnce(t *testing.T) {
	r := &rmttest.Record{}
	d, err := New(r, 0, "GPIO18", nil)
	require.NoError(t, err)
	require.NoError(t, d.Close())
	require.NoError(t, d.Close())
	assert.Equal(t, 1, r.Uninstalls())
	assert.ErrorIs(t, d.WriteBlocking([]byte{1}), ErrClosed)
	_, err = d.Start([]byte{1})
	assert.ErrorIs(t, err, ErrClosed)

	// The channel and pin are free again.
	d, err = New(r, 0, "GPIO18", nil)
	require.NoError(t, err)
	require.NoError(t, d.Close())
}

func TestCloseUninstallFailure(t *testing.T) {
	r := &rmttest.Record{UninstallErr: rmttest.ErrInjected}
	d, err := New(r, 0, "GPIO18", nil)
	require.NoError(t, err)
	err = d.Close()
	var hw *HardwareError
	require.True(t, errors.As(err, &hw))
	assert.Equal(t, "uninstall", hw.Op)
	assert.Equal(t, err, d.Close())
	assert.Equal(t, 1, r.Uninstalls())
}

// faultyPin streams nothing and fails every frame.
type faultyPin struct {
	*gpiotest.Pin
}

func (faultyPin) StreamOut(gpiostream.Stream) error { return errors.New("pin fault") }

func TestCloseReportsQueuedFailure(t *testing.T) {
	pin := faultyPin{&gpiotest.Pin{N: "GPIO18", Num: 18, L: gpio.High}}
	p := &rmt.StreamPeripheral{Lookup: func(string) gpio.PinIO { return pin }}
	d, err := New(p, 0, "GPIO18", &Opts{ClockDivider: 1, WaitTxDone: false})
	require.NoError(t, err)

	// The frame is only queued, so the write itself succeeds.
	require.NoError(t, d.WriteBlocking([]byte{0xff, 0x00, 0x00}))

	err = d.Close()
	var hw *HardwareError
	require.True(t, errors.As(err, &hw))
	assert.Equal(t, "transmit", hw.Op)
	assert.EqualError(t, hw.Err, "pin fault")
	assert.Equal(t, err, d.Close())

	// The channel and pin were still released.
	assert.Equal(t, gpio.Low, pin.Read())
	c, err := p.Bind(0, "GPIO18", rmt.TxConfig{})
	require.NoError(t, err)
	assert.NoError(t, c.Uninstall())
}

func TestQueuedFailureSurfacesOnNextWrite(t *testing.T) {
	pin := faultyPin{&gpiotest.Pin{N: "GPIO18", Num: 18}}
	p := &rmt.StreamPeripheral{Lookup: func(string) gpio.PinIO { return pin }}
	d, err := New(p, 0, "GPIO18", &Opts{ClockDivider: 1})
	require.NoError(t, err)

	require.NoError(t, d.WriteBlocking([]byte{0x01}))
	err = d.WriteBlocking([]byte{0x02})
	var hw *HardwareError
	require.True(t, errors.As(err, &hw))
	assert.Equal(t, "transmit", hw.Op)
	// The second frame was refused along with the report, so nothing is
	// left queued for Close.
	assert.NoError(t, d.Close())
}

func TestStart(t *testing.T) {
	r := &rmttest.Record{Hold: make(chan struct{})}
	d := newTestDriver(t, r)

	data := []byte{0xAA, 0x55}
	tr, err := d.Start(data)
	require.NoError(t, err)
	assert.NoError(t, tr.Err())

	assert.ErrorIs(t, d.WriteBlocking([]byte{1}), ErrBusy)
	_, err = d.Start([]byte{1})
	assert.ErrorIs(t, err, ErrBusy)

	close(r.Hold)
	got, err := tr.Wait()
	require.NoError(t, err)
	assert.Equal(t, data, got)
	<-tr.Done()
	assert.Equal(t, data, decodeLast(t, d, r))

	require.NoError(t, d.WriteBlocking([]byte{1}))
	assert.Equal(t, 2, r.Transmissions())
}

func TestStartFailure(t *testing.T) {
	r := &rmttest.Record{}
	d := newTestDriver(t, r)
	r.TxErr = rmttest.ErrInjected
	tr, err := d.Start([]byte{1})
	require.NoError(t, err)
	_, err = tr.Wait()
	assert.ErrorIs(t, err, rmttest.ErrInjected)
	assert.ErrorIs(t, tr.Err(), rmttest.ErrInjected)
}

func TestStartUnsupported(t *testing.T) {
	r := &rmttest.Record{NoAsync: true}
	d := newTestDriver(t, r)
	_, err := d.Start([]byte{1})
	assert.ErrorIs(t, err, ErrAsyncUnsupported)
}

func TestCloseWaitsForTransfer(t *testing.T) {
	r := &rmttest.Record{Hold: make(chan struct{})}
	d, err := New(r, 0, "GPIO18", nil)
	require.NoError(t, err)
	tr, err := d.Start([]byte{1, 2, 3})
	require.NoError(t, err)

	go close(r.Hold)
	require.NoError(t, d.Close())
	select {
	case <-tr.Done():
	default:
		t.Fatal("Close returned before the transfer completed")
	}
	assert.Equal(t, 1, r.Transmissions())
}

func TestEncoderInitOnce(t *testing.T) {
	r := &rmttest.Record{}
	d := newTestDriver(t, r)
	var wg sync.WaitGroup
	got := make([]*Encoder, 8)
	for i := range got {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got[i], _ = d.Encoder()
		}()
	}
	wg.Wait()
	for _, e := range got {
		assert.Same(t, got[0], e)
	}
}

func TestPixelWriter(t *testing.T) {
	r := &rmttest.Record{}
	d := newTestDriver(t, r)
	w := NewPixelWriter(d, ledcolor.GRB24)
	colors := []color.Color{
		color.RGBA{R: 1, G: 2, B: 3, A: 255},
		ledcolor.RGBW{R: 10, G: 20, B: 30, W: 40},
	}
	want := []byte{2, 1, 3, 20, 10, 30}

	require.NoError(t, w.Write(slices.Values(colors)))
	assert.Equal(t, want, decodeLast(t, d, r))

	require.NoError(t, w.WriteNoCopy(slices.Values(colors)))
	assert.Equal(t, want, decodeLast(t, d, r))
	assert.Equal(t, 2, r.Transmissions())
}

func TestPixelWriterRGBW(t *testing.T) {
	r := &rmttest.Record{}
	d := newTestDriver(t, r)
	w := NewPixelWriter(d, ledcolor.GRBW32)
	require.NoError(t, w.Write(slices.Values([]color.Color{ledcolor.RGBW{R: 10, G: 20, B: 30, W: 40}})))
	assert.Equal(t, []byte{20, 10, 30, 40}, decodeLast(t, d, r))
}
