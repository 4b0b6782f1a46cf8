package config_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/randalmurphal/flowbus/pkg/flowbus"
	"github.com/randalmurphal/flowbus/pkg/flowbus/config"
)

// TestAccessors verifies typed extraction with defaults.
func TestAccessors(t *testing.T) {
	cfg := config.New(map[string]any{
		"name":      "bus",
		"wrong":     123,
		"enabled":   true,
		"count":     7,
		"count64":   int64(8),
		"countf":    9.0,
		"fraction":  9.5,
		"ratio":     2,
		"timeout":   "250ms",
		"seconds":   3,
		"badtime":   "soon",
		"section":   map[string]any{"inner": "value"},
		"scalar":    "flat",
	})

	assert.Equal(t, "bus", cfg.String("name", "x"))
	assert.Equal(t, "x", cfg.String("wrong", "x"))
	assert.Equal(t, "x", cfg.String("missing", "x"))

	assert.True(t, cfg.Bool("enabled", false))
	assert.True(t, cfg.Bool("name", true))

	assert.Equal(t, 7, cfg.Int("count", 0))
	assert.Equal(t, 8, cfg.Int("count64", 0))
	assert.Equal(t, 9, cfg.Int("countf", 0))
	assert.Equal(t, -1, cfg.Int("fraction", -1), "fractional floats are not truncated")

	assert.Equal(t, 2.0, cfg.Float("ratio", 0))
	assert.Equal(t, 9.5, cfg.Float("fraction", 0))
	assert.Equal(t, 1.5, cfg.Float("name", 1.5))

	assert.Equal(t, 250*time.Millisecond, cfg.Duration("timeout", 0))
	assert.Equal(t, 3*time.Second, cfg.Duration("seconds", 0))
	assert.Equal(t, time.Minute, cfg.Duration("badtime", time.Minute))

	assert.Equal(t, "value", cfg.Section("section").String("inner", ""))
	assert.False(t, cfg.Section("scalar").Has("inner"))
	assert.False(t, cfg.Section("missing").Has("inner"))

	assert.True(t, cfg.Has("name"))
	assert.False(t, cfg.Has("missing"))
	assert.False(t, config.New(nil).Has("name"))
}

func TestDefaults(t *testing.T) {
	s := config.Defaults()

	require.NoError(t, s.Validate())
	assert.Equal(t, flowbus.DefaultBatchSize, s.LowBatchSize)
	assert.Equal(t, "info", s.LogLevel)
	assert.Equal(t, config.FormatText, s.LogFormat)
	assert.Equal(t, 10, s.Demo.HighSubscribers)
	assert.Equal(t, 100, s.Demo.LowSubscribers)
	assert.Equal(t, time.Second, s.Demo.SubscriberDelay)
}

func TestFromConfig(t *testing.T) {
	tests := []struct {
		name    string
		data    map[string]any
		check   func(t *testing.T, s config.Settings)
		wantErr string
	}{
		{
			name: "empty uses defaults",
			data: nil,
			check: func(t *testing.T, s config.Settings) {
				assert.Equal(t, config.Defaults(), s)
			},
		},
		{
			name: "overrides",
			data: map[string]any{
				"low_batch_size":   5,
				"log_level":        "DEBUG",
				"log_format":       "json",
				"metrics":          true,
				"tracing":          true,
				"failure_log_size": 0,
				"demo": map[string]any{
					"high_subscribers": 2,
					"low_subscribers":  3,
					"subscriber_delay": "10ms",
					"speed":            4,
				},
			},
			check: func(t *testing.T, s config.Settings) {
				assert.Equal(t, 5, s.LowBatchSize)
				assert.Equal(t, "DEBUG", s.LogLevel)
				assert.Equal(t, config.FormatJSON, s.LogFormat)
				assert.True(t, s.Metrics)
				assert.True(t, s.Tracing)
				assert.Equal(t, 0, s.FailureLogSize)
				assert.Equal(t, 2, s.Demo.HighSubscribers)
				assert.Equal(t, 3, s.Demo.LowSubscribers)
				assert.Equal(t, 10*time.Millisecond, s.Demo.SubscriberDelay)
				assert.Equal(t, 4.0, s.Demo.Speed)
			},
		},
		{
			name:    "zero batch size",
			data:    map[string]any{"low_batch_size": 0},
			wantErr: "low_batch_size",
		},
		{
			name:    "bad level",
			data:    map[string]any{"log_level": "loud"},
			wantErr: "log_level",
		},
		{
			name:    "bad format",
			data:    map[string]any{"log_format": "xml"},
			wantErr: "log_format",
		},
		{
			name:    "negative failure log",
			data:    map[string]any{"failure_log_size": -1},
			wantErr: "failure_log_size",
		},
		{
			name:    "zero speed",
			data:    map[string]any{"demo": map[string]any{"speed": 0}},
			wantErr: "demo.speed",
		},
		{
			name:    "negative subscribers",
			data:    map[string]any{"demo": map[string]any{"low_subscribers": -4}},
			wantErr: "subscriber counts",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := config.FromConfig(config.New(tt.data))
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, s)
		})
	}
}

func TestValidate_ReportsEveryField(t *testing.T) {
	s := config.Defaults()
	s.LowBatchSize = 0
	s.LogFormat = "xml"

	err := s.Validate()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "low_batch_size")
	assert.Contains(t, err.Error(), "log_format")
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "flowbus.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
low_batch_size: 10
log_format: json
demo:
  low_subscribers: 40
  subscriber_delay: 50ms
`), 0o644))

	jsonPath := filepath.Join(dir, "flowbus.JSON")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"low_batch_size": 8, "demo": {"speed": 2.5}}`), 0o644))

	badPath := filepath.Join(dir, "flowbus.yml")
	require.NoError(t, os.WriteFile(badPath, []byte("low_batch_size: -2\n"), 0o644))

	txtPath := filepath.Join(dir, "flowbus.txt")
	require.NoError(t, os.WriteFile(txtPath, []byte("x"), 0o644))

	emptyPath := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(emptyPath, nil, 0o644))

	listPath := filepath.Join(dir, "list.yaml")
	require.NoError(t, os.WriteFile(listPath, []byte("- low_batch_size: 4\n"), 0o644))

	brokenPath := filepath.Join(dir, "broken.json")
	require.NoError(t, os.WriteFile(brokenPath, []byte(`{"low_batch_size": `), 0o644))

	t.Run("yaml", func(t *testing.T) {
		s, err := config.Load(yamlPath)
		require.NoError(t, err)
		assert.Equal(t, 10, s.LowBatchSize)
		assert.Equal(t, config.FormatJSON, s.LogFormat)
		assert.Equal(t, 40, s.Demo.LowSubscribers)
		assert.Equal(t, 10, s.Demo.HighSubscribers)
		assert.Equal(t, 50*time.Millisecond, s.Demo.SubscriberDelay)
	})

	t.Run("json uppercase extension", func(t *testing.T) {
		s, err := config.Load(jsonPath)
		require.NoError(t, err)
		assert.Equal(t, 8, s.LowBatchSize)
		assert.Equal(t, 2.5, s.Demo.Speed)
	})

	t.Run("invalid values", func(t *testing.T) {
		_, err := config.Load(badPath)
		require.Error(t, err)
		assert.Contains(t, err.Error(), badPath)
	})

	t.Run("unsupported extension", func(t *testing.T) {
		_, err := config.Load(txtPath)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported config file extension")
		assert.Contains(t, err.Error(), txtPath)
	})

	t.Run("empty file keeps defaults", func(t *testing.T) {
		s, err := config.Load(emptyPath)
		require.NoError(t, err)
		assert.Equal(t, config.Defaults(), s)
	})

	t.Run("list root", func(t *testing.T) {
		_, err := config.Load(listPath)
		require.Error(t, err)
		assert.Contains(t, err.Error(), listPath)
		assert.Contains(t, err.Error(), "mapping")
	})

	t.Run("parse error names file", func(t *testing.T) {
		_, err := config.Load(brokenPath)
		require.Error(t, err)
		assert.Contains(t, err.Error(), brokenPath)
		assert.Contains(t, err.Error(), "parse json")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := config.Load(filepath.Join(dir, "absent.yaml"))
		require.Error(t, err)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestFromYAML_Invalid(t *testing.T) {
	_, err := config.FromYAML([]byte("key: [unclosed"))
	assert.Error(t, err)

	_, err = config.FromJSON([]byte("{"))
	assert.Error(t, err)

	_, err = config.FromJSON([]byte(`"scalar"`))
	assert.Error(t, err)

	c, err := config.FromJSON([]byte("  \n"))
	require.NoError(t, err)
	assert.False(t, c.Has("low_batch_size"))
}

func TestLogger(t *testing.T) {
	t.Run("json at warn", func(t *testing.T) {
		s := config.Defaults()
		s.LogFormat = config.FormatJSON
		s.LogLevel = "warn"

		var buf bytes.Buffer
		logger, err := s.Logger(&buf)
		require.NoError(t, err)

		logger.Info("hidden")
		logger.Warn("shown", "k", "v")

		out := buf.String()
		assert.NotContains(t, out, "hidden")
		assert.Contains(t, out, `"msg":"shown"`)
		assert.Contains(t, out, `"k":"v"`)
	})

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		logger, err := config.Defaults().Logger(&buf)
		require.NoError(t, err)

		logger.Info("hello")
		assert.Contains(t, buf.String(), "msg=hello")
	})

	t.Run("bad level", func(t *testing.T) {
		s := config.Defaults()
		s.LogLevel = "chatty"
		_, err := s.Logger(&bytes.Buffer{})
		assert.Error(t, err)
	})
}

func TestBusOptions(t *testing.T) {
	s := config.Defaults()
	s.LowBatchSize = 3
	s.FailureLogSize = 5

	opts, failures := s.BusOptions(nil)
	require.NotNil(t, failures)

	bus := flowbus.NewBus(opts...)
	defer func() { require.NoError(t, bus.Close()) }()

	evt := flowbus.NewEvent[int](bus, "configured", flowbus.PriorityLow, s.EventOptions()...)
	for i := range 7 {
		evt.Subscribe(func(context.Context, int) error {
			if i == 6 {
				return assert.AnError
			}
			return nil
		})
	}

	err := evt.Emit(context.Background(), 1)

	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, int64(3), bus.Executed(), "7 subscribers in batches of 3")
	assert.Equal(t, 1, failures.Len())
}

func TestBusOptions_NoFailureLog(t *testing.T) {
	s := config.Defaults()
	s.FailureLogSize = 0

	opts, failures := s.BusOptions(nil)

	assert.Nil(t, failures)
	assert.Len(t, opts, 3)
}
