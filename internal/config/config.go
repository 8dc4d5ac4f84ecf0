package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/coreman2200/ledrmt/ledcolor"
)

type SPI struct {
	Dev     string `yaml:"dev"`      // e.g. /dev/spidev0.0, empty for the first port
	SpeedHz int    `yaml:"speed_hz"` // e.g. 2500000 for nrz, 8000000 for spi
}

type Config struct {
	Driver     string `yaml:"driver"` // "stream" | "spi" | "nrz" | "console" | "sim"
	Channel    int    `yaml:"channel"`
	Pin        string `yaml:"pin"`
	ColorOrder string `yaml:"color_order"`
	Brightness int    `yaml:"brightness"` // 1..255; 0 leaves the flag value
	FPS        int    `yaml:"fps"`
	Addr       string `yaml:"addr"`

	Width      int  `yaml:"width"`
	Height     int  `yaml:"height"`
	Serpentine bool `yaml:"serpentine"`

	ClockDivider int     `yaml:"clock_divider"`
	WaitTxDone   *bool   `yaml:"wait_tx_done,omitempty"`
	SourceHz     int     `yaml:"source_hz"`
	ResetUs      int     `yaml:"reset_us"`
	WhiteCap     float64 `yaml:"white_cap"`
	Pattern      string  `yaml:"pattern"`

	SPI SPI `yaml:"spi,omitempty"`
}

// Default returns the settings used when neither a flag nor the config file
// sets a value.
func Default() *Config {
	wait := true
	return &Config{
		Driver:       "sim",
		Channel:      0,
		Pin:          "GPIO18",
		ColorOrder:   "GRB",
		Brightness:   255,
		FPS:          30,
		Addr:         ":8080",
		Width:        10,
		Height:       5,
		ClockDivider: 1,
		WaitTxDone:   &wait,
		SourceHz:     8000000,
		ResetUs:      300,
		Pattern:      "rainbow",
	}
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &c, nil
}

func Save(path string, c *Config) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}

// Layout parses ColorOrder.
func (c *Config) Layout() (ledcolor.Layout, error) {
	return ledcolor.ParseLayout(c.ColorOrder)
}

// Validate reports every invalid field.
func (c *Config) Validate() error {
	var errs []error
	switch c.Driver {
	case "stream", "spi", "nrz", "console", "sim":
	default:
		errs = append(errs, fmt.Errorf("config: unknown driver %q", c.Driver))
	}
	if c.Channel < 0 || c.Channel > 255 {
		errs = append(errs, fmt.Errorf("config: channel %d out of range", c.Channel))
	}
	if _, err := c.Layout(); err != nil {
		errs = append(errs, fmt.Errorf("config: color_order: %w", err))
	}
	if c.Brightness < 0 || c.Brightness > 255 {
		errs = append(errs, fmt.Errorf("config: brightness %d out of range 0..255", c.Brightness))
	}
	if c.Width <= 0 || c.Height <= 0 {
		errs = append(errs, fmt.Errorf("config: invalid size %dx%d", c.Width, c.Height))
	}
	if c.FPS <= 0 {
		errs = append(errs, fmt.Errorf("config: fps must be positive, got %d", c.FPS))
	}
	if c.ClockDivider < 0 || c.ClockDivider > 255 {
		errs = append(errs, fmt.Errorf("config: clock_divider %d out of range", c.ClockDivider))
	}
	if c.WhiteCap < 0 || c.WhiteCap > 1 {
		errs = append(errs, fmt.Errorf("config: white_cap %v out of range 0..1", c.WhiteCap))
	}
	return errors.Join(errs...)
}

// Merge copies every field of o that is set over c.
func (c *Config) Merge(o *Config) {
	if o.Driver != "" {
		c.Driver = o.Driver
	}
	if o.Channel != 0 {
		c.Channel = o.Channel
	}
	if o.Pin != "" {
		c.Pin = o.Pin
	}
	if o.ColorOrder != "" {
		c.ColorOrder = o.ColorOrder
	}
	if o.Brightness > 0 {
		c.Brightness = o.Brightness
	}
	if o.FPS > 0 {
		c.FPS = o.FPS
	}
	if o.Addr != "" {
		c.Addr = o.Addr
	}
	if o.Width > 0 {
		c.Width = o.Width
	}
	if o.Height > 0 {
		c.Height = o.Height
	}
	if o.Serpentine {
		c.Serpentine = true
	}
	if o.ClockDivider > 0 {
		c.ClockDivider = o.ClockDivider
	}
	if o.WaitTxDone != nil {
		c.WaitTxDone = o.WaitTxDone
	}
	if o.SourceHz > 0 {
		c.SourceHz = o.SourceHz
	}
	if o.ResetUs > 0 {
		c.ResetUs = o.ResetUs
	}
	if o.WhiteCap > 0 {
		c.WhiteCap = o.WhiteCap
	}
	if o.Pattern != "" {
		c.Pattern = o.Pattern
	}
	if o.SPI.Dev != "" {
		c.SPI.Dev = o.SPI.Dev
	}
	if o.SPI.SpeedHz > 0 {
		c.SPI.SpeedHz = o.SPI.SpeedHz
	}
}
