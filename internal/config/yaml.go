// SPDX-License-Identifier: MIT

// Package config loads the startup configuration: a YAML file, then ENV_*
// overrides, then command line flags (applied by cmd). The file is only
// read; live parameter changes are never written back.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"lumen/internal/analyzer"
	"lumen/internal/audio"
	"lumen/internal/capture"
	applog "lumen/internal/log"
	"lumen/internal/params"
	"lumen/pkg/bitint"
)

// Config represents the main application configuration structure.
type Config struct {
	Debug     bool               `yaml:"debug"`     // Shorthand for log_level: debug.
	LogLevel  string             `yaml:"log_level"` // debug, info, warn, error.
	Audio     AudioConfig        `yaml:"audio"`
	Analyzer  AnalyzerConfig     `yaml:"analyzer"`
	Params    map[string]float64 `yaml:"params"` // Initial parameter values by name.
	Transport TransportConfig    `yaml:"transport"`
	Monitor   bool               `yaml:"monitor"` // Run the terminal monitor.
}

// AudioConfig holds the capture settings.
type AudioConfig struct {
	DeviceID   int     `yaml:"device"`      // PortAudio device index (-1 for default).
	SampleRate float64 `yaml:"sample_rate"` // Hz.
	Channels   int     `yaml:"channels"`    // Captured channels, downmixed to mono.
	LowLatency bool    `yaml:"low_latency"` // Request the device's low input latency.
	FPS        float64 `yaml:"fps"`         // Analysis frames per second.
	FrameSize  int     `yaml:"frame_size"`  // Spectrogram frame, power of 2.
	BlockHops  int     `yaml:"block_hops"`  // Hops reduced into one message.
	InputFile  string  `yaml:"input_file"`  // WAV file to replay instead of a device.
	Loop       bool    `yaml:"loop"`        // Loop the input file.
	RecordFile string  `yaml:"record_file"` // Record the captured stream to this WAV file.
}

// AnalyzerConfig holds the analyzer settings.
type AnalyzerConfig struct {
	PollRate   time.Duration `yaml:"poll_rate"`
	StartGrace time.Duration `yaml:"start_grace"`
	Stage      string        `yaml:"stage"` // process or goroutine.
}

// TransportConfig holds the publishing settings.
type TransportConfig struct {
	PublishInterval  time.Duration `yaml:"publish_interval"`
	UDPEnabled       bool          `yaml:"udp_enabled"`
	UDPTargetAddress string        `yaml:"udp_target_address"`
	WebSocketEnabled bool          `yaml:"websocket_enabled"`
	WebSocketAddress string        `yaml:"websocket_address"`
	Log              bool          `yaml:"log"` // Log every frame at debug level.
}

// Default search locations when no path is given.
var candidates = []string{"lumen.yaml", "config.yaml"}

// LoadConfig loads configuration from a YAML file specified by path. If path
// is empty it searches the default locations and falls back to the built-in
// defaults. Environment overrides are applied after loading, then the result
// is validated.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		for _, candidate := range candidates {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		applog.Debugf("Config: loaded %s", path)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks every section.
func (c *Config) Validate() error {
	var errs []error

	if _, ok := applog.ParseLevel(c.LogLevel); !ok {
		errs = append(errs, fmt.Errorf("log_level %q is not one of debug, info, warn, error", c.LogLevel))
	}

	a := c.Audio
	if a.DeviceID < MinDeviceID {
		errs = append(errs, fmt.Errorf("audio.device must be >= %d, got %d", MinDeviceID, a.DeviceID))
	}
	if a.SampleRate < MinSampleRate || a.SampleRate > MaxSampleRate {
		errs = append(errs, fmt.Errorf("audio.sample_rate must be in [%d, %d], got %v", MinSampleRate, MaxSampleRate, a.SampleRate))
	}
	if a.Channels < 1 {
		errs = append(errs, fmt.Errorf("audio.channels must be at least 1, got %d", a.Channels))
	}
	if !bitint.IsPowerOfTwo(a.FrameSize) || a.FrameSize > MaxFrameSize {
		errs = append(errs, fmt.Errorf("audio.frame_size must be a power of 2 up to %d, got %d", MaxFrameSize, a.FrameSize))
	}
	if err := c.CaptureConfig().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("audio: %w", err))
	}

	if c.Analyzer.PollRate <= 0 {
		errs = append(errs, fmt.Errorf("analyzer.poll_rate must be positive, got %s", c.Analyzer.PollRate))
	}
	if c.Analyzer.StartGrace < 0 {
		errs = append(errs, fmt.Errorf("analyzer.start_grace must not be negative, got %s", c.Analyzer.StartGrace))
	}
	if c.Analyzer.Stage != StageProcess && c.Analyzer.Stage != StageGoroutine {
		errs = append(errs, fmt.Errorf("analyzer.stage must be %q or %q, got %q", StageProcess, StageGoroutine, c.Analyzer.Stage))
	}

	if _, err := c.NewStore(); err != nil {
		errs = append(errs, fmt.Errorf("params: %w", err))
	}

	t := c.Transport
	if t.PublishInterval <= 0 {
		errs = append(errs, fmt.Errorf("transport.publish_interval must be positive, got %s", t.PublishInterval))
	}
	if t.UDPEnabled {
		if _, _, err := net.SplitHostPort(t.UDPTargetAddress); err != nil {
			errs = append(errs, fmt.Errorf("transport.udp_target_address %q: %w", t.UDPTargetAddress, err))
		}
	}
	if t.WebSocketEnabled {
		if _, _, err := net.SplitHostPort(t.WebSocketAddress); err != nil {
			errs = append(errs, fmt.Errorf("transport.websocket_address %q: %w", t.WebSocketAddress, err))
		}
	}

	return errors.Join(errs...)
}

// Level returns the effective log level.
func (c *Config) Level() applog.LogLevel {
	if c.Debug {
		return applog.LevelDebug
	}
	level, ok := applog.ParseLevel(c.LogLevel)
	if !ok {
		return applog.LevelInfo
	}
	return level
}

// CaptureConfig returns the capture stage settings.
func (c *Config) CaptureConfig() capture.Config {
	cc := capture.DefaultConfig()
	cc.SampleRate = c.Audio.SampleRate
	cc.FPS = c.Audio.FPS
	cc.FrameSize = c.Audio.FrameSize
	cc.BlockHops = c.Audio.BlockHops
	return cc
}

// InputConfig returns the live input settings.
func (c *Config) InputConfig() audio.InputConfig {
	return audio.InputConfig{
		DeviceID:   c.Audio.DeviceID,
		SampleRate: c.Audio.SampleRate,
		Channels:   c.Audio.Channels,
		LowLatency: c.Audio.LowLatency,
	}
}

// AnalyzerOptions returns the analyzer settings.
func (c *Config) AnalyzerOptions() analyzer.Options {
	return analyzer.Options{
		PollRate:    c.Analyzer.PollRate,
		FramePeriod: c.CaptureConfig().FramePeriod(),
		StartGrace:  c.Analyzer.StartGrace,
	}
}

// NewStore returns a parameter store holding the configured initial values.
func (c *Config) NewStore() (*params.Store, error) {
	store := params.NewStore()
	if err := store.Apply(c.Params); err != nil {
		return nil, err
	}
	return store, nil
}

// CaptureArgs returns the arguments that make a re-executed binary run the
// capture stage with this configuration.
func (c *Config) CaptureArgs() []string {
	a := c.Audio
	args := []string{
		"capture",
		"--device=" + strconv.Itoa(a.DeviceID),
		"--sample-rate=" + strconv.FormatFloat(a.SampleRate, 'g', -1, 64),
		"--channels=" + strconv.Itoa(a.Channels),
		"--fps=" + strconv.FormatFloat(a.FPS, 'g', -1, 64),
		"--frame-size=" + strconv.Itoa(a.FrameSize),
		"--block-hops=" + strconv.Itoa(a.BlockHops),
		"--log-level=" + c.Level().String(),
	}
	if a.LowLatency {
		args = append(args, "--low-latency")
	}
	if a.InputFile != "" {
		args = append(args, "--input="+a.InputFile)
	}
	if a.Loop {
		args = append(args, "--loop")
	}
	if a.RecordFile != "" {
		args = append(args, "--record="+a.RecordFile)
	}
	return args
}

// applyEnvOverrides applies ENV_* variables on top of the file values.
// Unparsable values are ignored with a warning.
func (c *Config) applyEnvOverrides() {
	lookup := func(name string, apply func(string) error) {
		val, ok := os.LookupEnv(name)
		if !ok {
			return
		}
		if err := apply(val); err != nil {
			applog.Warnf("Config: ignoring %s=%q: %v", name, val, err)
			return
		}
		applog.Infof("Config: overriding from %s: %s", name, val)
	}
	boolVar := func(dst *bool) func(string) error {
		return func(s string) (err error) { *dst, err = strconv.ParseBool(s); return }
	}
	intVar := func(dst *int) func(string) error {
		return func(s string) (err error) { *dst, err = strconv.Atoi(s); return }
	}
	durationVar := func(dst *time.Duration) func(string) error {
		return func(s string) (err error) { *dst, err = time.ParseDuration(s); return }
	}
	stringVar := func(dst *string) func(string) error {
		return func(s string) error { *dst = s; return nil }
	}

	lookup("ENV_DEBUG", boolVar(&c.Debug))
	lookup("ENV_LOG_LEVEL", stringVar(&c.LogLevel))
	lookup("ENV_DEVICE", intVar(&c.Audio.DeviceID))
	lookup("ENV_INPUT_FILE", stringVar(&c.Audio.InputFile))
	lookup("ENV_STAGE", stringVar(&c.Analyzer.Stage))
	lookup("ENV_PUBLISH_INTERVAL", durationVar(&c.Transport.PublishInterval))
	lookup("ENV_UDP_ENABLED", boolVar(&c.Transport.UDPEnabled))
	lookup("ENV_UDP_TARGET_ADDRESS", stringVar(&c.Transport.UDPTargetAddress))
	lookup("ENV_WEBSOCKET_ENABLED", boolVar(&c.Transport.WebSocketEnabled))
	lookup("ENV_WEBSOCKET_ADDRESS", stringVar(&c.Transport.WebSocketAddress))
}
