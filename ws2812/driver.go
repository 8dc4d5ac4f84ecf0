package ws2812

import (
	"errors"
	"fmt"
	"iter"
	"slices"
	"sync"

	"github.com/rs/zerolog"
	"periph.io/x/conn/v3/gpio"

	"github.com/coreman2200/ledrmt/rmt"
)

// Opts configures a Driver.
type Opts struct {
	// ClockDivider divides the peripheral source clock. 0 is treated as 1.
	ClockDivider uint8
	// WaitTxDone makes blocking writes return only once the last symbol has
	// left the pin. When false, a write returns once the frame is queued and
	// its failure is reported by the next write or by Close. The failed frame
	// is not retransmitted: callers tracking changes have already marked it
	// sent.
	WaitTxDone bool
	// Logger receives driver events. The zero value is silent.
	Logger zerolog.Logger
}

// DefaultOpts is used when New is given nil options.
var DefaultOpts = Opts{
	ClockDivider: 1,
	WaitTxDone:   true,
}

// Driver owns one bound transmit channel and writes device-ordered pixel
// bytes to it.
//
// Writes are serialized and complete in issue order. At most one
// non-blocking Transfer may be in flight; any write issued meanwhile
// returns ErrBusy.
type Driver struct {
	ch  rmt.Channel
	id  rmt.ChannelID
	pin string
	log zerolog.Logger

	// encoder is built once from the channel clock on first use.
	encoder func() (*Encoder, error)

	mu       sync.Mutex
	closed   bool
	inflight *Transfer

	closeOnce sync.Once
	closeErr  error
}

// New binds channel ch of p to pin and prepares the encoder for the channel
// clock. When anything fails after the bind, the channel is uninstalled
// before New returns.
func New(p rmt.Peripheral, ch rmt.ChannelID, pin string, opts *Opts) (*Driver, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	cfg := rmt.TxConfig{
		ClockDivider: opts.ClockDivider,
		WaitTxDone:   opts.WaitTxDone,
		IdleLevel:    gpio.Low,
	}
	c, err := p.Bind(ch, pin, cfg)
	if err != nil {
		return nil, &HardwareError{Op: "bind", Channel: ch, Pin: pin, Err: err}
	}
	d := &Driver{ch: c, id: ch, pin: pin, log: opts.Logger}
	d.encoder = sync.OnceValues(d.buildEncoder)
	e, err := d.encoder()
	if err != nil {
		if uerr := c.Uninstall(); uerr != nil {
			d.log.Error().Err(uerr).Stringer("channel", ch).Str("pin", pin).Msg("uninstall after failed setup")
		}
		return nil, err
	}
	d.log.Debug().Stringer("channel", ch).Str("pin", pin).Stringer("clock", e.Clock()).
		Uint16("t0h", e.Bit0().First.Ticks).Uint16("t1h", e.Bit1().First.Ticks).Msg("ws2812 ready")
	return d, nil
}

func (d *Driver) buildEncoder() (*Encoder, error) {
	clock, err := d.ch.CounterClock()
	if err != nil {
		return nil, d.hwErr("clock", err)
	}
	e, err := NewEncoder(clock)
	if err != nil {
		return nil, d.hwErr("encoder", err)
	}
	return e, nil
}

func (d *Driver) hwErr(op string, err error) error {
	return &HardwareError{Op: op, Channel: d.id, Pin: d.pin, Err: err}
}

// Encoder returns the encoder for the channel clock.
func (d *Driver) Encoder() (*Encoder, error) {
	return d.encoder()
}

// ready must be called with d.mu held.
func (d *Driver) ready() error {
	if d.closed {
		return ErrClosed
	}
	if t := d.inflight; t != nil {
		select {
		case <-t.done:
			d.inflight = nil
		default:
			return ErrBusy
		}
	}
	return nil
}

// WriteBlocking transmits data, device-ordered pixel bytes, and returns once
// the peripheral is done with it.
func (d *Driver) WriteBlocking(data []byte) error {
	return d.WriteSeq(slices.Values(data))
}

// WriteSeq is WriteBlocking over a lazily produced byte sequence.
func (d *Driver) WriteSeq(data iter.Seq[byte]) error {
	e, err := d.encoder()
	if err != nil {
		return err
	}
	return d.WriteSymbols(e.Encode(data))
}

// WriteSymbols transmits already encoded symbols.
func (d *Driver) WriteSymbols(symbols iter.Seq[rmt.Symbol]) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.ready(); err != nil {
		return err
	}
	if err := d.ch.StartBlocking(symbols); err != nil {
		d.log.Warn().Err(err).Stringer("channel", d.id).Msg("transmit failed")
		return d.hwErr("transmit", err)
	}
	return nil
}

// Start begins transmitting data and returns without waiting. data belongs
// to the returned Transfer until its Done channel is closed.
func (d *Driver) Start(data []byte) (*Transfer, error) {
	ac, ok := d.ch.(rmt.AsyncChannel)
	if !ok {
		return nil, ErrAsyncUnsupported
	}
	e, err := d.encoder()
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.ready(); err != nil {
		return nil, err
	}
	t := &Transfer{d: d, data: data, done: make(chan struct{})}
	if err := ac.Start(e.EncodeBytes(data), t.complete); err != nil {
		return nil, d.hwErr("transmit", err)
	}
	d.inflight = t
	d.log.Debug().Stringer("channel", d.id).Int("bytes", len(data)).Msg("transfer started")
	return t, nil
}

// Close waits for an in-flight transfer and uninstalls the channel. A queued
// frame that failed is reported as a "transmit" HardwareError; the channel is
// released either way. Only the first call does any work; later calls return
// its result.
func (d *Driver) Close() error {
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		t := d.inflight
		d.inflight = nil
		d.mu.Unlock()
		if t != nil {
			<-t.done
		}
		var txErr error
		if f, ok := d.ch.(rmt.Flusher); ok {
			if err := f.Flush(); err != nil {
				d.log.Warn().Err(err).Stringer("channel", d.id).Str("pin", d.pin).Msg("queued frame failed")
				txErr = d.hwErr("transmit", err)
			}
		}
		if err := d.ch.Uninstall(); err != nil {
			d.log.Error().Err(err).Stringer("channel", d.id).Str("pin", d.pin).Msg("uninstall failed")
			d.closeErr = d.hwErr("uninstall", err)
			if txErr != nil {
				d.closeErr = errors.Join(txErr, d.closeErr)
			}
			return
		}
		d.closeErr = txErr
		d.log.Debug().Stringer("channel", d.id).Str("pin", d.pin).Msg("ws2812 closed")
	})
	return d.closeErr
}

func (d *Driver) String() string {
	return fmt.Sprintf("ws2812{%s/%s}", d.id, d.pin)
}

// Transfer is a non-blocking transmission started by Driver.Start.
type Transfer struct {
	d    *Driver
	data []byte
	done chan struct{}
	err  error
}

func (t *Transfer) complete(err error) {
	if err != nil {
		t.err = t.d.hwErr("transmit", err)
		t.d.log.Warn().Err(err).Stringer("channel", t.d.id).Msg("transfer failed")
	}
	close(t.done)
}

// Done is closed once the transmission completed or failed.
func (t *Transfer) Done() <-chan struct{} {
	return t.done
}

// Err returns the result of the transmission. It is nil until Done is
// closed.
func (t *Transfer) Err() error {
	select {
	case <-t.done:
		return t.err
	default:
		return nil
	}
}

// Wait blocks until the transmission is over and hands the buffer back.
func (t *Transfer) Wait() ([]byte, error) {
	<-t.done
	return t.data, t.err
}
