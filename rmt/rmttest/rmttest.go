// Package rmttest is meant to be used to test drivers over a fake
// transmit peripheral.
package rmttest

import (
	"errors"
	"fmt"
	"iter"
	"sync"

	"periph.io/x/conn/v3/physic"

	"github.com/coreman2200/ledrmt/rmt"
)

// Record implements rmt.Peripheral and records every transmitted frame.
//
// The error fields are read at the time of each call so a test can make a
// later operation fail.
type Record struct {
	// Source is the clock before the channel divider. 0 means 80MHz.
	Source physic.Frequency
	// NoAsync makes bound channels implement only rmt.Channel.
	NoAsync bool
	// Hold, when not nil, blocks asynchronous completions until it is closed
	// or receives a value.
	Hold chan struct{}

	BindErr      error
	ClockErr     error
	TxErr        error
	UninstallErr error

	mu         sync.Mutex
	frames     [][]rmt.Symbol
	configs    []rmt.TxConfig
	binds      int
	uninstalls int
	bound      map[rmt.ChannelID]string
}

// Bind implements rmt.Peripheral.
func (r *Record) Bind(ch rmt.ChannelID, pin string, cfg rmt.TxConfig) (rmt.Channel, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.BindErr != nil {
		return nil, r.BindErr
	}
	if r.bound == nil {
		r.bound = map[rmt.ChannelID]string{}
	}
	if _, ok := r.bound[ch]; ok {
		return nil, rmt.ErrInUse
	}
	for _, p := range r.bound {
		if p == pin {
			return nil, rmt.ErrInUse
		}
	}
	r.bound[ch] = pin
	r.binds++
	r.configs = append(r.configs, cfg)
	c := &channel{r: r, id: ch, cfg: cfg}
	if r.NoAsync {
		return blocking{c}, nil
	}
	return c, nil
}

// Frames returns a copy of every frame transmitted so far.
func (r *Record) Frames() [][]rmt.Symbol {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([][]rmt.Symbol, len(r.frames))
	copy(out, r.frames)
	return out
}

// Transmissions is the number of transmitted frames.
func (r *Record) Transmissions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

// Last returns the last transmitted frame, or nil.
func (r *Record) Last() []rmt.Symbol {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.frames) == 0 {
		return nil
	}
	return r.frames[len(r.frames)-1]
}

// Binds is the number of successful Bind calls.
func (r *Record) Binds() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.binds
}

// Uninstalls is the number of Uninstall calls that reached the peripheral.
func (r *Record) Uninstalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.uninstalls
}

// Configs returns the transmit configurations passed to Bind.
func (r *Record) Configs() []rmt.TxConfig {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]rmt.TxConfig(nil), r.configs...)
}

// Reset forgets the recorded frames.
func (r *Record) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = nil
}

func (r *Record) String() string {
	return "rmttest.Record"
}

type channel struct {
	r           *Record
	id          rmt.ChannelID
	cfg         rmt.TxConfig
	uninstalled bool
}

func (c *channel) CounterClock() (physic.Frequency, error) {
	c.r.mu.Lock()
	defer c.r.mu.Unlock()
	if c.r.ClockErr != nil {
		return 0, c.r.ClockErr
	}
	src := c.r.Source
	if src == 0 {
		src = 80 * physic.MegaHertz
	}
	div := physic.Frequency(c.cfg.ClockDivider)
	if div == 0 {
		div = 1
	}
	return src / div, nil
}

func (c *channel) record(symbols iter.Seq[rmt.Symbol]) error {
	var frame []rmt.Symbol
	for s := range symbols {
		frame = append(frame, s)
	}
	c.r.mu.Lock()
	defer c.r.mu.Unlock()
	if c.uninstalled {
		return rmt.ErrUnbound
	}
	if c.r.TxErr != nil {
		return c.r.TxErr
	}
	c.r.frames = append(c.r.frames, frame)
	return nil
}

func (c *channel) StartBlocking(symbols iter.Seq[rmt.Symbol]) error {
	return c.record(symbols)
}

func (c *channel) Start(symbols iter.Seq[rmt.Symbol], done func(error)) error {
	c.r.mu.Lock()
	hold := c.r.Hold
	uninstalled := c.uninstalled
	c.r.mu.Unlock()
	if uninstalled {
		return rmt.ErrUnbound
	}
	go func() {
		if hold != nil {
			<-hold
		}
		done(c.record(symbols))
	}()
	return nil
}

func (c *channel) Uninstall() error {
	c.r.mu.Lock()
	defer c.r.mu.Unlock()
	if c.uninstalled {
		return fmt.Errorf("rmttest: %s uninstalled twice: %w", c.id, rmt.ErrUnbound)
	}
	c.r.uninstalls++
	if c.r.UninstallErr != nil {
		return c.r.UninstallErr
	}
	c.uninstalled = true
	delete(c.r.bound, c.id)
	return nil
}

// blocking hides Start.
type blocking struct {
	c *channel
}

func (b blocking) CounterClock() (physic.Frequency, error)    { return b.c.CounterClock() }
func (b blocking) StartBlocking(s iter.Seq[rmt.Symbol]) error { return b.c.StartBlocking(s) }
func (b blocking) Uninstall() error                           { return b.c.Uninstall() }

// ErrInjected is a convenience error for tests.
var ErrInjected = errors.New("rmttest: injected failure")

var (
	_ rmt.Peripheral   = &Record{}
	_ rmt.AsyncChannel = &channel{}
)
