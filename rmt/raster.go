package rmt

import (
	"iter"
	"sync"

	"periph.io/x/conn/v3/gpio"
)

// raster packs a pulse train into a bit stream, one bit per tick, most
// significant bit first.
type raster struct {
	buf []byte
	n   int // bits written
}

func (r *raster) push(level gpio.Level, ticks uint16) {
	for i := uint16(0); i < ticks; i++ {
		if r.n%8 == 0 {
			r.buf = append(r.buf, 0)
		}
		if level {
			r.buf[len(r.buf)-1] |= 0x80 >> uint(r.n%8)
		}
		r.n++
	}
}

func (r *raster) symbols(symbols iter.Seq[Symbol]) {
	for s := range symbols {
		r.push(s.First.Level, s.First.Ticks)
		r.push(s.Second.Level, s.Second.Ticks)
	}
}

// idle appends n ticks of level, used for the latch period after a frame.
func (r *raster) idle(level gpio.Level, n int) {
	for n > 0 {
		t := n
		if t > MaxTicks {
			t = MaxTicks
		}
		r.push(level, uint16(t))
		n -= t
	}
}

// Rasterize renders symbols followed by idle ticks at idleLevel into a
// bit stream, one bit per tick, MSB first. The last byte is padded with
// idleLevel.
func Rasterize(symbols iter.Seq[Symbol], idleLevel gpio.Level, idle int) []byte {
	r := raster{}
	r.symbols(symbols)
	r.idle(idleLevel, idle)
	if pad := r.n % 8; pad != 0 {
		r.push(idleLevel, uint16(8-pad))
	}
	return r.buf
}

// bindings tracks which channels and pins a peripheral has handed out.
type bindings struct {
	mu       sync.Mutex
	channels map[ChannelID]string
	pins     map[string]ChannelID
}

func (b *bindings) acquire(ch ChannelID, pin string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.channels == nil {
		b.channels = map[ChannelID]string{}
		b.pins = map[string]ChannelID{}
	}
	if _, ok := b.channels[ch]; ok {
		return ErrInUse
	}
	if _, ok := b.pins[pin]; ok && pin != "" {
		return ErrInUse
	}
	b.channels[ch] = pin
	if pin != "" {
		b.pins[pin] = ch
	}
	return nil
}

func (b *bindings) release(ch ChannelID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if pin, ok := b.channels[ch]; ok {
		delete(b.pins, pin)
		delete(b.channels, ch)
	}
}

// pending serializes transmissions on one channel; a queued transmission's
// result is reported by the next operation.
type pending struct {
	done chan error
}

func (p *pending) wait() error {
	if p.done == nil {
		return nil
	}
	err := <-p.done
	p.done = nil
	return err
}

func (p *pending) run(f func() error, after func(error)) {
	done := make(chan error, 1)
	p.done = done
	go func() {
		err := f()
		if after != nil {
			after(err)
			// The callback owns the error from here on.
			err = nil
		}
		done <- err
	}()
}
