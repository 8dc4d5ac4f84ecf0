package rmt

import (
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/gpio/gpiostream"
	"periph.io/x/conn/v3/physic"
)

// ErrNotStreamer is returned when the bound pin cannot stream bits.
var ErrNotStreamer = errors.New("rmt: pin must implement gpiostream.PinOut")

// StreamPeripheral transmits through pins that support gpiostream output,
// such as the PCM/PWM backed pins of bcm283x hosts. Each channel renders its
// pulse train into a gpiostream.BitStream clocked at the counter clock.
type StreamPeripheral struct {
	// Source is the bit clock before the channel divider. 0 means 8MHz.
	Source physic.Frequency
	// Reset is the low time appended after every frame. 0 means 300µs.
	Reset time.Duration
	// Lookup resolves a pin name. nil means gpioreg.ByName.
	Lookup func(name string) gpio.PinIO
	// Logger receives debug output. The zero value is silent.
	Logger zerolog.Logger

	bound bindings
}

// Bind implements Peripheral.
func (s *StreamPeripheral) Bind(ch ChannelID, pin string, cfg TxConfig) (Channel, error) {
	lookup := s.Lookup
	if lookup == nil {
		lookup = gpioreg.ByName
	}
	p := lookup(pin)
	if p == nil {
		return nil, fmt.Errorf("rmt: unknown pin %q", pin)
	}
	out, ok := p.(gpiostream.PinOut)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotStreamer, pin)
	}
	if err := s.bound.acquire(ch, p.Name()); err != nil {
		return nil, fmt.Errorf("rmt: bind %s to %s: %w", ch, p.Name(), err)
	}
	source := s.Source
	if source == 0 {
		source = 8 * physic.MegaHertz
	}
	reset := s.Reset
	if reset == 0 {
		reset = 300 * time.Microsecond
	}
	c := &streamChannel{
		p:     s,
		id:    ch,
		pin:   p,
		out:   out,
		cfg:   cfg,
		clock: source / cfg.divider(),
	}
	c.idle = int(int64(reset) * int64(c.clock/physic.Hertz) / int64(time.Second))
	s.Logger.Debug().Stringer("channel", ch).Str("pin", p.Name()).Stringer("clock", c.clock).Msg("stream channel bound")
	return c, nil
}

type streamChannel struct {
	p     *StreamPeripheral
	id    ChannelID
	pin   gpio.PinIO
	out   gpiostream.PinOut
	cfg   TxConfig
	clock physic.Frequency
	idle  int

	mu          sync.Mutex
	queued      pending
	uninstalled bool
}

func (c *streamChannel) CounterClock() (physic.Frequency, error) {
	return c.clock, nil
}

func (c *streamChannel) stream(symbols iter.Seq[Symbol]) *gpiostream.BitStream {
	return &gpiostream.BitStream{
		Freq: c.clock,
		Bits: Rasterize(symbols, c.cfg.IdleLevel, c.idle),
		LSBF: false,
	}
}

func (c *streamChannel) StartBlocking(symbols iter.Seq[Symbol]) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.uninstalled {
		return ErrUnbound
	}
	if err := c.queued.wait(); err != nil {
		return err
	}
	b := c.stream(symbols)
	if c.cfg.WaitTxDone {
		return c.out.StreamOut(b)
	}
	c.queued.run(func() error { return c.out.StreamOut(b) }, nil)
	return nil
}

func (c *streamChannel) Start(symbols iter.Seq[Symbol], done func(error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.uninstalled {
		return ErrUnbound
	}
	if err := c.queued.wait(); err != nil {
		return err
	}
	c.queued.run(func() error { return c.out.StreamOut(c.stream(symbols)) }, done)
	return nil
}

// Flush implements Flusher.
func (c *streamChannel) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queued.wait()
}

func (c *streamChannel) Uninstall() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.uninstalled {
		return ErrUnbound
	}
	if qerr := c.queued.wait(); qerr != nil {
		c.p.Logger.Warn().Err(qerr).Stringer("channel", c.id).Msg("queued frame failed before uninstall")
	}
	c.uninstalled = true
	c.p.bound.release(c.id)
	err := c.pin.Out(c.cfg.IdleLevel)
	c.p.Logger.Debug().Stringer("channel", c.id).Str("pin", c.pin.Name()).Err(err).Msg("stream channel uninstalled")
	return err
}

var (
	_ AsyncChannel = &streamChannel{}
	_ Flusher      = &streamChannel{}
)
