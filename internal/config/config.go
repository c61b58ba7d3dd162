// SPDX-License-Identifier: MIT
package config

import "time"

// Core configuration constants that define the boundaries and defaults.
const (
	DefaultDeviceID   = MinDeviceID // system default input device
	DefaultChannels   = 1
	DefaultSampleRate = 44100
	DefaultFPS        = 60
	DefaultFrameSize  = 2048
	DefaultBlockHops  = 1
	DefaultLowLatency = false
	DefaultLogLevel   = "info"
	DefaultStage      = StageProcess

	DefaultPollRate        = time.Second / 60
	DefaultStartGrace      = 250 * time.Millisecond
	DefaultPublishInterval = time.Second / 60
	DefaultUDPTarget       = "127.0.0.1:9090"
	DefaultWebSocketAddr   = "127.0.0.1:8080"

	// Hardware and processing limits
	MinDeviceID   = -1     // -1 represents system default device
	MinSampleRate = 8000   // Hz
	MaxSampleRate = 192000 // Hz
	MaxFrameSize  = 16384  // power of 2
)

// Capture stage execution contexts.
const (
	StageProcess   = "process"
	StageGoroutine = "goroutine"
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel: DefaultLogLevel,
		Audio: AudioConfig{
			DeviceID:   DefaultDeviceID,
			SampleRate: DefaultSampleRate,
			Channels:   DefaultChannels,
			FPS:        DefaultFPS,
			FrameSize:  DefaultFrameSize,
			BlockHops:  DefaultBlockHops,
			LowLatency: DefaultLowLatency,
		},
		Analyzer: AnalyzerConfig{
			PollRate:   DefaultPollRate,
			StartGrace: DefaultStartGrace,
			Stage:      DefaultStage,
		},
		Transport: TransportConfig{
			PublishInterval:  DefaultPublishInterval,
			UDPTargetAddress: DefaultUDPTarget,
			WebSocketEnabled: true,
			WebSocketAddress: DefaultWebSocketAddr,
		},
	}
}
