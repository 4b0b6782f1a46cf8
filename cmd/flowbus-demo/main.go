// Command flowbus-demo replays the demo scenario: a Low priority event with
// many slow subscribers emitted once, and a High priority event emitted on a
// schedule while the Low batches are still running.
//
// Usage:
//
//	flowbus-demo [-config flowbus.yaml] [-speed 10]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/randalmurphal/flowbus/internal/demo"
	"github.com/randalmurphal/flowbus/pkg/flowbus"
	"github.com/randalmurphal/flowbus/pkg/flowbus/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "flowbus-demo:", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to a YAML or JSON config file")
	speed := flag.Float64("speed", 0, "time scale for delays and offsets (overrides demo.speed)")
	flag.Parse()

	settings := config.Defaults()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return err
		}
		settings = loaded
	}
	if *speed > 0 {
		settings.Demo.Speed = *speed
	}
	if err := settings.Validate(); err != nil {
		return err
	}

	logger, err := settings.Logger(os.Stderr)
	if err != nil {
		return err
	}

	opts, failures := settings.BusOptions(logger)
	bus := flowbus.NewBus(opts...)
	defer bus.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := demo.NewRunner(bus, os.Stdout,
		demo.WithLogger(logger),
		demo.WithEventOptions(settings.EventOptions()...),
	)
	err = runner.Run(ctx, demo.FromSettings(settings.Demo))

	if failures != nil && failures.Len() > 0 {
		logger.Warn("subscriber failures recorded", "count", failures.Len())
	}
	if errors.Is(err, context.Canceled) {
		logger.Info("demo interrupted")
		return nil
	}
	return err
}
