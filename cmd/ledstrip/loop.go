package main

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/coreman2200/ledrmt/drawtarget"
	"github.com/coreman2200/ledrmt/internal/monitor"
	"github.com/coreman2200/ledrmt/internal/patterns"
)

type loop struct {
	target  *drawtarget.Target
	canvas  drawtarget.Canvas
	monitor *monitor.Monitor
	runner  *patterns.Runner
	fps     int
	log     zerolog.Logger
}

// run draws and flushes one frame per tick until ctx is done, then turns the
// LEDs off and releases the output.
func (l *loop) run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second / time.Duration(max(1, l.fps)))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return errors.Join(l.target.Halt(), l.target.Close())
		case c := <-l.monitor.Controls():
			l.apply(c)
		case <-ticker.C:
			l.frame()
		}
	}
}

func (l *loop) frame() {
	if !l.runner.Step(l.canvas) {
		l.monitor.Diagnose(monitor.Diagnostic{Severity: monitor.Info, Code: "TEST.DONE", Summary: "Test complete", Detail: string(l.runner.Kind())})
		l.runner = patterns.NewRunner(patterns.Rainbow)
		l.runner.Step(l.canvas)
	}
	if err := l.target.Flush(); err != nil {
		l.log.Warn().Err(err).Msg("flush failed")
	}
}

func (l *loop) apply(c monitor.Control) {
	if c.Brightness != nil {
		b := min(max(*c.Brightness, 0), 255)
		l.target.SetBrightness(uint8(b))
		l.log.Info().Int("brightness", b).Msg("brightness changed")
	}
	if c.Pattern == "" {
		return
	}
	kind, err := patterns.ParseKind(c.Pattern)
	if err != nil {
		l.monitor.Diagnose(monitor.Diagnostic{
			Severity: monitor.Warn, Code: "TEST.UNKNOWN", Summary: "Unknown test name",
			Evidence: map[string]any{"name": c.Pattern},
		})
		return
	}
	l.monitor.Diagnose(monitor.Diagnostic{Severity: monitor.Info, Code: "TEST.RUNNING", Summary: "Running test", Detail: c.Pattern})
	l.runner = patterns.NewRunner(kind)
}
