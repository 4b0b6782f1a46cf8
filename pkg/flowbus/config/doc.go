/*
Package config loads bus settings from YAML or JSON files.

# Overview

A config document is decoded into a Config, which wraps the raw map and
provides typed accessors that fall back to defaults on missing keys or type
mismatches. FromConfig resolves a Config into Settings and validates it.

# Usage

	settings, err := config.Load("flowbus.yaml")
	if err != nil {
	    log.Fatal(err)
	}

	logger, err := settings.Logger(os.Stderr)
	if err != nil {
	    log.Fatal(err)
	}

	opts, failures := settings.BusOptions(logger)
	bus := flowbus.NewBus(opts...)
	defer bus.Close()

	evt := flowbus.NewEvent[string](bus, "reindex", flowbus.PriorityLow, settings.EventOptions()...)

# Type Coercion

Duration accepts a time.ParseDuration string ("1s", "250ms") or a number of
seconds. Int accepts a float64 only when it has no fractional part, so JSON
numbers decode as expected.
*/
package config
