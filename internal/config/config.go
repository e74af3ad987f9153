// Package config loads seqclick run settings from flags, environment and a YAML file.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/v0xg/seqclick/internal/browser"
	"github.com/v0xg/seqclick/internal/clicker"
)

// EnvPrefix prefixes every environment override, e.g. SEQCLICK_DELAY=250ms
const EnvPrefix = "SEQCLICK"

// SelectorSeparator splits a selector list given as a single string, e.g.
// SEQCLICK_SELECTORS="form button; #next". A semicolon never occurs in a CSS selector.
const SelectorSeparator = ";"

// Config contains a seqclick run configuration.
type Config struct {
	// URL is the page to open.
	URL string

	// Selectors are clicked in order, one per step.
	Selectors []string

	// Delay is the pause after each click.
	// Default: 100ms.
	Delay time.Duration

	// Timeout bounds the wait for each selector to appear.
	// Default: 10s.
	Timeout time.Duration

	// Repeat is the number of full cycles; 0 repeats until interrupted.
	Repeat int

	Width    int
	Height   int
	Headless bool
	Profile  string

	// Record is an optional GIF output path.
	Record string
	FPS    int

	Verbose bool
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() Config {
	d := clicker.DefaultConfig()
	return Config{
		Delay:    d.Delay,
		Timeout:  d.Timeout,
		Repeat:   d.Repeat,
		Width:    1280,
		Height:   720,
		Headless: true,
		FPS:      2,
	}
}

// Load resolves the configuration with precedence flags > env > file > defaults.
// flags and file are optional.
func Load(flags *pflag.FlagSet, file string) (Config, error) {
	v := viper.New()

	def := DefaultConfig()
	v.SetDefault("url", def.URL)
	v.SetDefault("delay", def.Delay)
	v.SetDefault("timeout", def.Timeout)
	v.SetDefault("repeat", def.Repeat)
	v.SetDefault("width", def.Width)
	v.SetDefault("height", def.Height)
	v.SetDefault("headless", def.Headless)
	v.SetDefault("profile", def.Profile)
	v.SetDefault("record", def.Record)
	v.SetDefault("fps", def.FPS)
	v.SetDefault("verbose", def.Verbose)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config %s: %w", file, err)
		}
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("binding flags: %w", err)
		}
	}

	cfg := Config{
		URL:       v.GetString("url"),
		Selectors: selectors(v),
		Delay:     v.GetDuration("delay"),
		Timeout:   v.GetDuration("timeout"),
		Repeat:    v.GetInt("repeat"),
		Width:     v.GetInt("width"),
		Height:    v.GetInt("height"),
		Headless:  v.GetBool("headless"),
		Profile:   v.GetString("profile"),
		Record:    v.GetString("record"),
		FPS:       v.GetInt("fps"),
		Verbose:   v.GetBool("verbose"),
	}
	return cfg, nil
}

// selectors reads the selector list. Lists from YAML are kept as is; a single
// string (from the environment) is split on SelectorSeparator so that
// descendant selectors keep their spaces.
func selectors(v *viper.Viper) []string {
	raw, ok := v.Get("selectors").(string)
	if !ok {
		return v.GetStringSlice("selectors")
	}

	var out []string
	for _, s := range strings.Split(raw, SelectorSeparator) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Validate checks the configuration is runnable.
func (c Config) Validate() error {
	var errs []error
	if c.URL == "" {
		errs = append(errs, errors.New("url is required"))
	}
	if len(c.Selectors) == 0 {
		errs = append(errs, errors.New("at least one selector is required"))
	}
	for i, s := range c.Selectors {
		if strings.TrimSpace(s) == "" {
			errs = append(errs, fmt.Errorf("selector %d is empty", i))
		}
	}
	if c.Delay < 0 {
		errs = append(errs, errors.New("delay must not be negative"))
	}
	if c.Timeout <= 0 {
		errs = append(errs, errors.New("timeout must be positive"))
	}
	if c.Repeat < 0 {
		errs = append(errs, errors.New("repeat must not be negative"))
	}
	if c.Record != "" && c.FPS <= 0 {
		errs = append(errs, errors.New("fps must be positive when recording"))
	}
	return errors.Join(errs...)
}

// Clicker builds the activator configuration for this run.
func (c Config) Clicker(cb clicker.Callbacks, logger zerolog.Logger) clicker.Config {
	ds := make([]clicker.Descriptor, 0, len(c.Selectors))
	for _, s := range c.Selectors {
		ds = append(ds, clicker.Descriptor(s))
	}
	return clicker.Config{
		Descriptors: ds,
		Delay:       c.Delay,
		Timeout:     c.Timeout,
		Repeat:      c.Repeat,
		Callbacks:   cb,
		Logger:      logger,
	}
}

// Browser builds the browser launch options for this run.
func (c Config) Browser() browser.Options {
	return browser.Options{
		Width:      c.Width,
		Height:     c.Height,
		Headless:   c.Headless,
		ProfileDir: c.Profile,
	}
}
