// Package sim is a software transmit peripheral. It decodes the symbols it
// is given back into pixel bytes so the whole ws2812 path can run on hosts
// without pulse-train hardware.
package sim

import (
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"periph.io/x/conn/v3/physic"

	"github.com/coreman2200/ledrmt/rmt"
	"github.com/coreman2200/ledrmt/ws2812"
)

// Peripheral implements rmt.Peripheral in software.
type Peripheral struct {
	// Source is the clock before the channel divider. 0 means 80MHz.
	Source physic.Frequency
	// Realtime makes every transmission take as long as it would on the wire.
	Realtime bool
	// OnFrame, when set, receives every decoded frame. The slice is owned by
	// the callee.
	OnFrame func(ch rmt.ChannelID, frame []byte)
	// Logger receives decode failures. The zero value is silent.
	Logger zerolog.Logger

	mu    sync.Mutex
	bound map[rmt.ChannelID]string
	stats map[rmt.ChannelID]*Stats
}

// Stats counts what a channel received.
type Stats struct {
	Frames  int
	Symbols int
	Errors  int
	Last    []byte
	Wire    time.Duration
}

// Bind implements rmt.Peripheral.
func (p *Peripheral) Bind(ch rmt.ChannelID, pin string, cfg rmt.TxConfig) (rmt.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.bound == nil {
		p.bound = map[rmt.ChannelID]string{}
		p.stats = map[rmt.ChannelID]*Stats{}
	}
	if _, ok := p.bound[ch]; ok {
		return nil, fmt.Errorf("sim: bind %s: %w", ch, rmt.ErrInUse)
	}
	for other, bp := range p.bound {
		if bp == pin {
			return nil, fmt.Errorf("sim: bind %s to %s, held by %s: %w", ch, pin, other, rmt.ErrInUse)
		}
	}
	source := p.Source
	if source == 0 {
		source = 80 * physic.MegaHertz
	}
	div := physic.Frequency(cfg.ClockDivider)
	if div == 0 {
		div = 1
	}
	clock := source / div
	enc, err := ws2812.NewEncoder(clock)
	if err != nil {
		return nil, fmt.Errorf("sim: %s: %w", ch, err)
	}
	p.bound[ch] = pin
	p.stats[ch] = &Stats{}
	p.Logger.Debug().Stringer("channel", ch).Str("pin", pin).Stringer("clock", clock).Msg("sim channel bound")
	return &channel{p: p, id: ch, clock: clock, enc: enc}, nil
}

// Stats returns a copy of the counters of ch.
func (p *Peripheral) Stats(ch rmt.ChannelID) (Stats, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.stats[ch]
	if !ok {
		return Stats{}, false
	}
	out := *s
	out.Last = append([]byte(nil), s.Last...)
	return out, true
}

func (p *Peripheral) String() string {
	return "sim"
}

type channel struct {
	p     *Peripheral
	id    rmt.ChannelID
	clock physic.Frequency
	enc   *ws2812.Encoder

	mu          sync.Mutex
	uninstalled bool
}

func (c *channel) CounterClock() (physic.Frequency, error) {
	return c.clock, nil
}

func (c *channel) transmit(symbols iter.Seq[rmt.Symbol]) error {
	var ticks uint64
	n := 0
	counted := func(yield func(rmt.Symbol) bool) {
		for s := range symbols {
			ticks += uint64(s.Ticks())
			n++
			if !yield(s) {
				return
			}
		}
	}
	frame, err := c.enc.Decode(counted)
	wire := time.Duration(ticks * uint64(time.Second) / uint64(c.clock/physic.Hertz))
	if c.p.Realtime {
		time.Sleep(wire)
	}

	c.p.mu.Lock()
	st := c.p.stats[c.id]
	st.Symbols += n
	st.Wire += wire
	if err != nil {
		st.Errors++
	} else {
		st.Frames++
		st.Last = frame
	}
	onFrame := c.p.OnFrame
	c.p.mu.Unlock()

	if err != nil {
		c.p.Logger.Warn().Err(err).Stringer("channel", c.id).Int("symbols", n).Msg("undecodable frame")
		return err
	}
	if onFrame != nil {
		onFrame(c.id, append([]byte(nil), frame...))
	}
	return nil
}

func (c *channel) StartBlocking(symbols iter.Seq[rmt.Symbol]) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.uninstalled {
		return rmt.ErrUnbound
	}
	return c.transmit(symbols)
}

func (c *channel) Start(symbols iter.Seq[rmt.Symbol], done func(error)) error {
	c.mu.Lock()
	if c.uninstalled {
		c.mu.Unlock()
		return rmt.ErrUnbound
	}
	go func() {
		defer c.mu.Unlock()
		done(c.transmit(symbols))
	}()
	return nil
}

func (c *channel) Uninstall() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.uninstalled {
		return rmt.ErrUnbound
	}
	c.uninstalled = true
	c.p.mu.Lock()
	delete(c.p.bound, c.id)
	c.p.mu.Unlock()
	return nil
}

var (
	_ rmt.Peripheral   = &Peripheral{}
	_ rmt.AsyncChannel = &channel{}
)
