package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/randalmurphal/flowbus/pkg/flowbus"
)

// Log output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Settings is the resolved configuration of a bus and its events.
type Settings struct {
	// LowBatchSize is the number of subscribers per Low priority run.
	LowBatchSize int
	// LogLevel is one of debug, info, warn, error.
	LogLevel string
	// LogFormat is FormatText or FormatJSON.
	LogFormat string
	// Metrics enables OpenTelemetry metrics on the global meter provider.
	Metrics bool
	// Tracing enables OpenTelemetry spans on the global tracer provider.
	Tracing bool
	// FailureLogSize bounds the in-memory failure log. 0 disables it.
	FailureLogSize int

	Demo DemoSettings
}

// DemoSettings configures the demo scenario under the "demo" key.
type DemoSettings struct {
	HighSubscribers int
	LowSubscribers  int
	SubscriberDelay time.Duration
	// Speed divides every demo delay and offset. 2 runs twice as fast.
	Speed float64
}

// Defaults returns the settings used when no config file is given.
func Defaults() Settings {
	return Settings{
		LowBatchSize:   flowbus.DefaultBatchSize,
		LogLevel:       "info",
		LogFormat:      FormatText,
		FailureLogSize: flowbus.DefaultFailureLogConfig.MaxSize,
		Demo: DemoSettings{
			HighSubscribers: 10,
			LowSubscribers:  100,
			SubscriberDelay: time.Second,
			Speed:           1,
		},
	}
}

// FromConfig resolves settings from a decoded document, starting from Defaults.
//
// Recognized keys:
//
//	low_batch_size: 20
//	log_level: info
//	log_format: text
//	metrics: false
//	tracing: false
//	failure_log_size: 1000
//	demo:
//	  high_subscribers: 10
//	  low_subscribers: 100
//	  subscriber_delay: 1s
//	  speed: 1
func FromConfig(c Config) (Settings, error) {
	d := Defaults()
	s := Settings{
		LowBatchSize:   c.Int("low_batch_size", d.LowBatchSize),
		LogLevel:       c.String("log_level", d.LogLevel),
		LogFormat:      c.String("log_format", d.LogFormat),
		Metrics:        c.Bool("metrics", d.Metrics),
		Tracing:        c.Bool("tracing", d.Tracing),
		FailureLogSize: c.Int("failure_log_size", d.FailureLogSize),
	}

	demo := c.Section("demo")
	s.Demo = DemoSettings{
		HighSubscribers: demo.Int("high_subscribers", d.Demo.HighSubscribers),
		LowSubscribers:  demo.Int("low_subscribers", d.Demo.LowSubscribers),
		SubscriberDelay: demo.Duration("subscriber_delay", d.Demo.SubscriberDelay),
		Speed:           demo.Float("speed", d.Demo.Speed),
	}

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Load reads and resolves settings from a YAML or JSON file.
func Load(path string) (Settings, error) {
	c, err := FromFile(path)
	if err != nil {
		return Settings{}, err
	}
	s, err := FromConfig(c)
	if err != nil {
		return Settings{}, fmt.Errorf("config %s: %w", path, err)
	}
	return s, nil
}

// Validate reports every invalid field.
func (s Settings) Validate() error {
	var errs []error
	if s.LowBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("low_batch_size must be positive, got %d", s.LowBatchSize))
	}
	if _, err := parseLevel(s.LogLevel); err != nil {
		errs = append(errs, err)
	}
	switch s.LogFormat {
	case FormatText, FormatJSON:
	default:
		errs = append(errs, fmt.Errorf("log_format must be %q or %q, got %q", FormatText, FormatJSON, s.LogFormat))
	}
	if s.FailureLogSize < 0 {
		errs = append(errs, fmt.Errorf("failure_log_size must not be negative, got %d", s.FailureLogSize))
	}
	if s.Demo.HighSubscribers < 0 || s.Demo.LowSubscribers < 0 {
		errs = append(errs, errors.New("demo subscriber counts must not be negative"))
	}
	if s.Demo.SubscriberDelay < 0 {
		errs = append(errs, fmt.Errorf("demo.subscriber_delay must not be negative, got %s", s.Demo.SubscriberDelay))
	}
	if s.Demo.Speed <= 0 {
		errs = append(errs, fmt.Errorf("demo.speed must be positive, got %g", s.Demo.Speed))
	}
	return errors.Join(errs...)
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

// Logger builds a slog logger writing to w in the configured format and level.
func (s Settings) Logger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(s.LogLevel)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if s.LogFormat == FormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// BusOptions maps settings to bus options. The returned failure log is the
// sink the bus records into, or nil when FailureLogSize is 0.
func (s Settings) BusOptions(logger *slog.Logger) ([]flowbus.BusOption, *flowbus.FailureLog) {
	opts := []flowbus.BusOption{
		flowbus.WithLogger(logger),
		flowbus.WithMetrics(s.Metrics),
		flowbus.WithTracing(s.Tracing),
	}

	var failures *flowbus.FailureLog
	if s.FailureLogSize > 0 {
		failures = flowbus.NewFailureLog(flowbus.FailureLogConfig{MaxSize: s.FailureLogSize})
		opts = append(opts, flowbus.WithFailureSink(failures))
	}
	return opts, failures
}

// EventOptions returns the options applied to every event.
func (s Settings) EventOptions() []flowbus.EventOption {
	return []flowbus.EventOption{flowbus.WithBatchSize(s.LowBatchSize)}
}
