package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/v0xg/seqclick/internal/browser"
	"github.com/v0xg/seqclick/internal/clicker"
	"github.com/v0xg/seqclick/internal/config"
	"github.com/v0xg/seqclick/internal/gifgen"
	"github.com/v0xg/seqclick/internal/recording"
)

var configFile string

func main() {
	// Load .env file if present (silently ignore if not found)
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "seqclick",
		Short: "Click through a sequence of page elements, cycle after cycle",
		Long: `seqclick opens a page in a headless browser, waits for each selector in
turn to appear, clicks it, and starts over after the last one.

Example:
  seqclick run "https://myapp.com" "#accept" "button.next" --repeat 3`,
		SilenceUsage: true,
	}

	def := config.DefaultConfig()
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&configFile, "config", "c", "", "YAML file with url, selectors and any flag value")
	pf.Int("width", def.Width, "Viewport width")
	pf.Int("height", def.Height, "Viewport height")
	pf.Bool("headless", def.Headless, "Run the browser without a window")
	pf.String("profile", "", "Chrome/Chromium profile directory for authenticated sessions (close browser first)")
	pf.BoolP("verbose", "v", false, "Show detailed progress")

	runCmd := &cobra.Command{
		Use:   "run [url] [selector...]",
		Short: "Run a click sequence until it completes, fails or is interrupted",
		RunE:  run,
	}
	rf := runCmd.Flags()
	rf.Duration("delay", def.Delay, "Delay after each click")
	rf.Duration("timeout", def.Timeout, "How long to wait for each selector")
	rf.Int("repeat", def.Repeat, "Number of cycles (0 = until interrupted)")
	rf.String("record", "", "Write a GIF of every click to this path")
	rf.Int("fps", def.FPS, "Frames per second of the recorded GIF")

	elementsCmd := &cobra.Command{
		Use:   "elements [url]",
		Short: "List clickable elements of a page with usable selectors",
		Args:  cobra.MaximumNArgs(1),
		RunE:  elements,
	}

	rootCmd.AddCommand(runCmd, elementsCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command, args []string) (config.Config, error) {
	cfg, err := config.Load(cmd.Flags(), configFile)
	if err != nil {
		return cfg, err
	}
	if len(args) > 0 {
		cfg.URL = args[0]
	}
	if len(args) > 1 {
		cfg.Selectors = args[1:]
	}
	return cfg, nil
}

func newLogger(verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		Level(level).
		With().Timestamp().Logger()
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logger := newLogger(cfg.Verbose)

	logger.Debug().
		Str("url", cfg.URL).
		Strs("selectors", cfg.Selectors).
		Dur("delay", cfg.Delay).
		Dur("timeout", cfg.Timeout).
		Int("repeat", cfg.Repeat).
		Msg("starting seqclick")

	fmt.Printf("→ Opening %s... ", cfg.URL)
	b, err := browser.Launch(cfg.URL, cfg.Browser())
	if err != nil {
		fmt.Println("failed")
		return err
	}
	defer b.Close()
	fmt.Println("done")

	var rec *recording.Recorder
	cb := clicker.Callbacks{
		OnStart: func() {
			fmt.Printf("→ Clicking %d selectors (%s)\n", len(cfg.Selectors), cycles(cfg.Repeat))
		},
		OnError: func(err error, d clicker.Descriptor) {
			fmt.Printf("✗ %s: %v\n", d, err)
		},
	}
	if cfg.Record != "" {
		rec = recording.New(b, logger)
		cb.AfterClick = rec.Capture
	}

	a, err := clicker.New(cfg.Clicker(cb, logger), b.Environment())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := a.Run(ctx)
	st := a.State()
	if errors.Is(ctx.Err(), context.Canceled) && runErr == nil {
		fmt.Println("→ Interrupted")
	}

	if rec != nil && rec.Len() > 0 {
		fmt.Printf("→ Generating GIF (%d frames)... ", rec.Len())
		size, err := rec.Save(cfg.Record, gifgen.Options{FPS: cfg.FPS})
		if err != nil {
			fmt.Println("failed")
			return err
		}
		fmt.Printf("done (%.1f KB)\n", float64(size)/1024)
	}

	if runErr != nil {
		return fmt.Errorf("sequence aborted after %d cycles: %w", st.CompletedCycles, runErr)
	}
	fmt.Printf("✓ Completed %d cycles\n", st.CompletedCycles)
	return nil
}

func cycles(repeat int) string {
	if repeat == clicker.RepeatForever {
		return "until interrupted"
	}
	return strconv.Itoa(repeat) + " cycles"
}

func elements(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd, args)
	if err != nil {
		return err
	}
	if cfg.URL == "" {
		return errors.New("url is required")
	}

	fmt.Printf("→ Opening %s... ", cfg.URL)
	b, err := browser.Launch(cfg.URL, cfg.Browser())
	if err != nil {
		fmt.Println("failed")
		return err
	}
	defer b.Close()
	fmt.Println("done")

	els, err := b.Elements(cmd.Context())
	if err != nil {
		return err
	}
	for i, el := range els {
		if el.Text != "" {
			fmt.Printf("  [%d] %-8s %s (%q)\n", i+1, el.Type, el.Selector, el.Text)
		} else {
			fmt.Printf("  [%d] %-8s %s\n", i+1, el.Type, el.Selector)
		}
	}
	return nil
}
