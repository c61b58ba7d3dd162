// SPDX-License-Identifier: MIT
package cmd

import (
	"bytes"
	"strings"
	"testing"

	"lumen/internal/config"
)

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		command string
		output  string
		check   func(*testing.T, *config.Config)
	}{
		{
			name:    "defaults",
			args:    nil,
			command: CommandRun,
			check: func(t *testing.T, c *config.Config) {
				if c.Audio.DeviceID != config.DefaultDeviceID || !c.Transport.WebSocketEnabled || c.Monitor {
					t.Errorf("config = %+v", c)
				}
			},
		},
		{
			name:    "run flags",
			args:    []string{"-d", "4", "--fps", "30", "--udp", "127.0.0.1:7000", "--no-ws", "-t", "--stage", "goroutine"},
			command: CommandRun,
			check: func(t *testing.T, c *config.Config) {
				if c.Audio.DeviceID != 4 || c.Audio.FPS != 30 || c.Analyzer.Stage != config.StageGoroutine {
					t.Errorf("audio/analyzer = %+v %+v", c.Audio, c.Analyzer)
				}
				if !c.Transport.UDPEnabled || c.Transport.UDPTargetAddress != "127.0.0.1:7000" || c.Transport.WebSocketEnabled {
					t.Errorf("transport = %+v", c.Transport)
				}
				if !c.Monitor {
					t.Error("monitor not enabled")
				}
			},
		},
		{
			name:    "list",
			args:    []string{"list"},
			command: CommandList,
		},
		{
			name:    "devices",
			args:    []string{"devices"},
			command: CommandDevices,
		},
		{
			name:    "capture args round trip",
			args:    config.Default().CaptureArgs(),
			command: CommandCapture,
			check: func(t *testing.T, c *config.Config) {
				def := config.Default()
				if c.Audio != def.Audio {
					t.Errorf("audio = %+v, want %+v", c.Audio, def.Audio)
				}
			},
		},
		{
			name:    "record default name",
			args:    []string{"--record", "--input=take.wav", "--loop"},
			command: CommandRun,
			check: func(t *testing.T, c *config.Config) {
				if !strings.HasPrefix(c.Audio.RecordFile, "recording-") || !strings.HasSuffix(c.Audio.RecordFile, ".wav") {
					t.Errorf("record file = %q", c.Audio.RecordFile)
				}
				if c.Audio.InputFile != "take.wav" || !c.Audio.Loop {
					t.Errorf("input = %+v", c.Audio)
				}
			},
		},
		{
			name:    "help",
			args:    []string{"--help"},
			command: CommandNone,
			output:  "Usage:",
		},
		{
			name:    "subcommand help",
			args:    []string{"list", "-h"},
			command: CommandNone,
			output:  "List available audio devices",
		},
		{
			name:    "version",
			args:    []string{"--version"},
			command: CommandNone,
			output:  "dev",
		},
		{
			name:    "verbose",
			args:    []string{"-v"},
			command: CommandRun,
			check: func(t *testing.T, c *config.Config) {
				if !c.Debug || !c.Transport.Log {
					t.Errorf("verbose not applied: %+v", c)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			opts, err := parseArgs(tt.args, &out)
			if err != nil {
				t.Fatalf("ParseArgs(%v) error = %v", tt.args, err)
			}
			if opts.Command != tt.command {
				t.Errorf("Command = %q, want %q", opts.Command, tt.command)
			}
			if !strings.Contains(out.String(), tt.output) {
				t.Errorf("output = %q, want it to contain %q", out.String(), tt.output)
			}
			if tt.command == CommandNone {
				if opts.Config != nil {
					t.Errorf("Config = %+v, want nil when nothing runs", opts.Config)
				}
				return
			}
			if opts.Config == nil {
				t.Fatal("nil config")
			}
			if tt.check != nil {
				tt.check(t, opts.Config)
			}
		})
	}
}

func TestParseArgsErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"unknown flag", []string{"--bogus"}},
		{"invalid frame size", []string{"--frame-size", "1000"}},
		{"invalid stage", []string{"--stage", "thread"}},
		{"stray argument", []string{"list", "extra"}},
		{"missing config file", []string{"--config", "does-not-exist.yaml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseArgs(tt.args); err == nil {
				t.Errorf("ParseArgs(%v) succeeded", tt.args)
			}
		})
	}
}
