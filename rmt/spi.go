package rmt

import (
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

var (
	// ErrPinMismatch is returned when the requested pin is not the MOSI line
	// of the SPI port.
	ErrPinMismatch = errors.New("rmt: pin is not the SPI MOSI line")
	// ErrFrameTooLarge is returned when a rasterized frame does not fit in a
	// single SPI transaction; a split transaction would stretch the pulses.
	ErrFrameTooLarge = errors.New("rmt: frame exceeds the SPI transaction size")
)

// SPIPeripheral uses the MOSI line of a SPI port as a single transmit
// channel. Every counter clock tick is one SPI bit.
type SPIPeripheral struct {
	Port spi.Port
	// Freq is the SPI clock before the channel divider. 0 means 8MHz.
	Freq physic.Frequency
	// Reset is the low time appended after every frame. 0 means 300µs.
	Reset time.Duration
	// Logger receives debug output. The zero value is silent.
	Logger zerolog.Logger

	bound bindings
}

// Bind implements Peripheral. The port carries a single channel; pin may be
// empty or must name the port's MOSI line.
func (s *SPIPeripheral) Bind(ch ChannelID, pin string, cfg TxConfig) (Channel, error) {
	if s.Port == nil {
		return nil, errors.New("rmt: no SPI port")
	}
	// One port, one channel, whatever the id.
	if err := s.bound.acquire(0, "mosi"); err != nil {
		return nil, fmt.Errorf("rmt: bind %s: %w", ch, err)
	}
	freq := s.Freq
	if freq == 0 {
		freq = 8 * physic.MegaHertz
	}
	clock := freq / cfg.divider()
	c, err := s.Port.Connect(clock, spi.Mode0, 8)
	if err != nil {
		s.bound.release(0)
		return nil, fmt.Errorf("rmt: spi connect at %s: %w", clock, err)
	}
	if pin != "" {
		if err := checkMOSI(s.Port, c, pin); err != nil {
			s.bound.release(0)
			return nil, err
		}
	}
	reset := s.Reset
	if reset == 0 {
		reset = 300 * time.Microsecond
	}
	sc := &spiChannel{
		p:     s,
		id:    ch,
		c:     c,
		cfg:   cfg,
		clock: clock,
		idle:  int(int64(reset) * int64(clock/physic.Hertz) / int64(time.Second)),
	}
	s.Logger.Debug().Stringer("channel", ch).Str("port", fmt.Sprint(s.Port)).Stringer("clock", clock).Msg("spi channel bound")
	return sc, nil
}

func checkMOSI(port spi.Port, c spi.Conn, pin string) error {
	var pins spi.Pins
	if p, ok := c.(spi.Pins); ok {
		pins = p
	} else if p, ok := port.(spi.Pins); ok {
		pins = p
	} else {
		// Nothing to compare against.
		return nil
	}
	mosi := pins.MOSI()
	if mosi == nil || mosi.Name() != pin {
		return fmt.Errorf("%w: %q", ErrPinMismatch, pin)
	}
	return nil
}

type spiChannel struct {
	p     *SPIPeripheral
	id    ChannelID
	c     spi.Conn
	cfg   TxConfig
	clock physic.Frequency
	idle  int

	mu          sync.Mutex
	queued      pending
	uninstalled bool
}

func (c *spiChannel) CounterClock() (physic.Frequency, error) {
	return c.clock, nil
}

func (c *spiChannel) frame(symbols iter.Seq[Symbol]) []byte {
	return Rasterize(symbols, c.cfg.IdleLevel, c.idle)
}

func (c *spiChannel) tx(b []byte) error {
	if l, ok := c.c.(conn.Limits); ok {
		if limit := l.MaxTxSize(); limit > 0 && len(b) > limit {
			return fmt.Errorf("%w: %d > %d bytes", ErrFrameTooLarge, len(b), limit)
		}
	}
	return c.c.Tx(b, nil)
}

func (c *spiChannel) StartBlocking(symbols iter.Seq[Symbol]) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.uninstalled {
		return ErrUnbound
	}
	if err := c.queued.wait(); err != nil {
		return err
	}
	b := c.frame(symbols)
	if c.cfg.WaitTxDone {
		return c.tx(b)
	}
	c.queued.run(func() error { return c.tx(b) }, nil)
	return nil
}

func (c *spiChannel) Start(symbols iter.Seq[Symbol], done func(error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.uninstalled {
		return ErrUnbound
	}
	if err := c.queued.wait(); err != nil {
		return err
	}
	c.queued.run(func() error { return c.tx(c.frame(symbols)) }, done)
	return nil
}

// Flush implements Flusher.
func (c *spiChannel) Flush() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.queued.wait()
}

func (c *spiChannel) Uninstall() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.uninstalled {
		return ErrUnbound
	}
	if qerr := c.queued.wait(); qerr != nil {
		c.p.Logger.Warn().Err(qerr).Stringer("channel", c.id).Msg("queued frame failed before uninstall")
	}
	c.uninstalled = true
	c.p.bound.release(0)
	c.p.Logger.Debug().Stringer("channel", c.id).Msg("spi channel uninstalled")
	return nil
}

var (
	_ AsyncChannel = &spiChannel{}
	_ Flusher      = &spiChannel{}
)
