package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi/spireg"

	"github.com/coreman2200/ledrmt/drawtarget"
	"github.com/coreman2200/ledrmt/internal/config"
	"github.com/coreman2200/ledrmt/internal/led"
	"github.com/coreman2200/ledrmt/internal/sim"
	"github.com/coreman2200/ledrmt/ledcolor"
	"github.com/coreman2200/ledrmt/rmt"
	"github.com/coreman2200/ledrmt/ws2812"
)

// needsHost reports whether driver talks to real hardware.
func needsHost(driver string) bool {
	switch driver {
	case "stream", "spi", "nrz":
		return true
	}
	return false
}

// openOutput builds the frame sink selected by cfg.Driver.
func openOutput(cfg *config.Config, layout ledcolor.Layout, n int, logger zerolog.Logger) (drawtarget.Writer, error) {
	ch := rmt.ChannelID(cfg.Channel)
	wait := true
	if cfg.WaitTxDone != nil {
		wait = *cfg.WaitTxDone
	}
	opts := &ws2812.Opts{ClockDivider: uint8(cfg.ClockDivider), WaitTxDone: wait, Logger: logger}
	reset := time.Duration(cfg.ResetUs) * time.Microsecond

	switch cfg.Driver {
	case "stream":
		p := &rmt.StreamPeripheral{
			Source: physic.Frequency(cfg.SourceHz) * physic.Hertz,
			Reset:  reset,
			Logger: logger,
		}
		d, err := ws2812.New(p, ch, cfg.Pin, opts)
		if err != nil {
			return nil, err
		}
		return d, nil

	case "spi":
		port, err := spireg.Open(cfg.SPI.Dev)
		if err != nil {
			return nil, fmt.Errorf("open spi %q: %w", cfg.SPI.Dev, err)
		}
		p := &rmt.SPIPeripheral{
			Port:   port,
			Freq:   physic.Frequency(cfg.SPI.SpeedHz) * physic.Hertz,
			Reset:  reset,
			Logger: logger,
		}
		d, err := ws2812.New(p, ch, "", opts)
		if err != nil {
			return nil, errors.Join(err, port.Close())
		}
		return withPort{Writer: d, port: port}, nil

	case "nrz":
		port, err := spireg.Open(cfg.SPI.Dev)
		if err != nil {
			return nil, fmt.Errorf("open spi %q: %w", cfg.SPI.Dev, err)
		}
		d, err := led.NewNRZ(port, n, layout, physic.Frequency(cfg.SPI.SpeedHz)*physic.Hertz)
		if err != nil {
			return nil, errors.Join(err, port.Close())
		}
		return withPort{Writer: d, port: port}, nil

	case "console":
		return led.NewConsole(n, layout), nil

	case "sim":
		p := &sim.Peripheral{Realtime: true, Logger: logger}
		d, err := ws2812.New(p, ch, cfg.Pin, opts)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
	return nil, fmt.Errorf("unknown driver %q", cfg.Driver)
}

// withPort closes the SPI port after the writer using it.
type withPort struct {
	drawtarget.Writer
	port io.Closer
}

func (w withPort) Close() error {
	var err error
	if c, ok := w.Writer.(io.Closer); ok {
		err = c.Close()
	}
	return errors.Join(err, w.port.Close())
}
