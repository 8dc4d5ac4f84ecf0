// Command ledstrip drives a WS2812 strip or matrix with test patterns and
// serves a live monitor over WebSocket.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
	"periph.io/x/host/v3"

	"github.com/coreman2200/ledrmt/drawtarget"
	"github.com/coreman2200/ledrmt/internal/config"
	"github.com/coreman2200/ledrmt/internal/monitor"
	"github.com/coreman2200/ledrmt/internal/patterns"
)

func main() {
	// ---- Flags (config.yaml overrides what it sets) ----
	cfg := config.Default()
	wait := *cfg.WaitTxDone
	pflag.StringVar(&cfg.Driver, "driver", cfg.Driver, "output: stream | spi | nrz | console | sim")
	pflag.IntVar(&cfg.Channel, "channel", cfg.Channel, "transmit channel")
	pflag.StringVar(&cfg.Pin, "pin", cfg.Pin, "data pin name")
	pflag.StringVar(&cfg.ColorOrder, "color", cfg.ColorOrder, "LED color order (e.g. GRB, RGB, GRBW)")
	pflag.IntVar(&cfg.Brightness, "brightness", cfg.Brightness, "brightness 0..255")
	pflag.IntVarP(&cfg.Width, "width", "x", cfg.Width, "LEDs per row")
	pflag.IntVarP(&cfg.Height, "height", "y", cfg.Height, "rows")
	pflag.BoolVar(&cfg.Serpentine, "serpentine", cfg.Serpentine, "odd rows run right to left")
	pflag.IntVar(&cfg.FPS, "fps", cfg.FPS, "target frames per second")
	pflag.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP listen address")
	pflag.IntVar(&cfg.ClockDivider, "clock-divider", cfg.ClockDivider, "transmit clock divider")
	pflag.BoolVar(&wait, "wait-tx-done", wait, "block writes until the frame left the pin")
	pflag.IntVar(&cfg.SourceHz, "source-hz", cfg.SourceHz, "stream bit clock before the divider")
	pflag.IntVar(&cfg.ResetUs, "reset-us", cfg.ResetUs, "latch time after each frame (µs)")
	pflag.Float64Var(&cfg.WhiteCap, "white-cap", cfg.WhiteCap, "per-LED white cap 0..1 (0 disables)")
	pflag.StringVar(&cfg.Pattern, "pattern", cfg.Pattern, "index_sweep | rgb_channels | row_sweep | rainbow")
	pflag.StringVar(&cfg.SPI.Dev, "spi-dev", cfg.SPI.Dev, "SPI port for the spi and nrz drivers")
	pflag.IntVar(&cfg.SPI.SpeedHz, "spi-hz", cfg.SPI.SpeedHz, "SPI clock")
	configPath := pflag.StringP("config", "c", "config.yaml", "path to config.yaml")
	debug := pflag.Bool("debug", false, "debug logging")
	pflag.Parse()
	cfg.WaitTxDone = &wait

	// ---- Logging ----
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})

	// ---- Load config.yaml (optional) ----
	if c, err := config.Load(*configPath); err != nil {
		log.Warn().Err(err).Str("path", *configPath).Msg("config load failed; proceeding with flags")
	} else {
		cfg.Merge(c)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	layout, _ := cfg.Layout()
	kind, err := patterns.ParseKind(cfg.Pattern)
	if err != nil || kind == patterns.None {
		log.Warn().Err(err).Str("pattern", cfg.Pattern).Msg("using rainbow")
		kind = patterns.Rainbow
	}

	var shape drawtarget.Shape = drawtarget.Matrix{Width: cfg.Width, Height: cfg.Height}
	switch {
	case cfg.Height == 1:
		shape = drawtarget.Strip(cfg.Width)
	case cfg.Serpentine:
		shape = drawtarget.Serpentine{Width: cfg.Width, Height: cfg.Height}
	}

	// ---- Output selection: hardware drivers fall back to sim ----
	if needsHost(cfg.Driver) {
		if _, err := host.Init(); err != nil {
			log.Warn().Err(err).Str("driver", cfg.Driver).Msg("host init failed; falling back to SIM")
			cfg.Driver = "sim"
		}
	}
	out, err := openOutput(cfg, layout, shape.PixelLen(), log.Logger)
	if err != nil && cfg.Driver != "sim" {
		log.Warn().Err(err).Str("driver", cfg.Driver).Str("pin", cfg.Pin).Msg("output init failed; falling back to SIM")
		cfg.Driver = "sim"
		out, err = openOutput(cfg, layout, shape.PixelLen(), log.Logger)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("no output")
	}

	mon := monitor.New(shape.Size(), layout, log.Logger)
	mon.Driver = cfg.Driver
	target := drawtarget.New(monitor.Tee{W: out, M: mon}, shape, layout)
	target.SetBrightness(uint8(cfg.Brightness))
	l := &loop{
		target:  target,
		canvas:  patterns.WhiteCap{Canvas: target, Cap: cfg.WhiteCap},
		monitor: mon,
		runner:  patterns.NewRunner(kind),
		fps:     cfg.FPS,
		log:     log.Logger,
	}

	srv := &http.Server{
		Addr:         cfg.Addr,
		Handler:      mon.Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// ---- Run render loop & server until a signal ----
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return l.run(ctx) })
	g.Go(func() error {
		log.Info().Str("addr", cfg.Addr).Str("driver", cfg.Driver).Stringer("target", target).Msg("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("shutdown")
		os.Exit(1)
	}
	log.Info().Msg("bye")
}
