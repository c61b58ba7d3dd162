// SPDX-License-Identifier: MIT
package cmd

import (
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"lumen/internal/config"
	"lumen/pkg/build"
)

// Commands selected on the command line. CommandNone means cobra already
// handled the invocation (help or version) and there is nothing to run.
const (
	CommandNone    = ""
	CommandRun     = "run"
	CommandList    = "list"
	CommandDevices = "devices"
	CommandCapture = "capture"
)

// Options is the parsed command line: the command to run and the final
// configuration (file, then environment, then flags). Config is nil when
// Command is CommandNone.
type Options struct {
	Command string
	Config  *config.Config
}

type flagValues struct {
	configPath string
	device     int
	channels   int
	sampleRate float64
	fps        float64
	frameSize  int
	blockHops  int
	lowLatency bool
	input      string
	loop       bool
	record     string
	stage      string
	udp        string
	websocket  string
	noWS       bool
	monitor    bool
	verbose    bool
	logLevel   string
}

// ParseArgs parses args (without the program name). Help and version output
// is written to stdout.
func ParseArgs(args []string) (*Options, error) {
	return parseArgs(args, os.Stdout)
}

func parseArgs(args []string, out io.Writer) (*Options, error) {
	buildInfo := build.GetBuildInfo()
	options := &Options{}
	var fv flagValues

	command := func(name string) func(*cobra.Command, []string) {
		return func(*cobra.Command, []string) { options.Command = name }
	}

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Version:       buildInfo.Version,
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(fv.configPath)
			if err != nil {
				return err
			}
			fv.apply(cmd.Flags(), cfg)
			if err := cfg.Validate(); err != nil {
				return err
			}
			options.Config = cfg
			return nil
		},
		Run: command(CommandRun),
	}

	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})
	rootCmd.SetOut(out)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List available audio devices",
		Args:  cobra.NoArgs,
		Run:   command(CommandList),
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:   "devices",
		Short: "Browse audio devices interactively",
		Args:  cobra.NoArgs,
		Run:   command(CommandDevices),
	})
	rootCmd.AddCommand(&cobra.Command{
		Use:    "capture",
		Short:  "Run the capture stage over stdin/stdout",
		Hidden: true,
		Args:   cobra.NoArgs,
		Run:    command(CommandCapture),
	})

	flags := rootCmd.PersistentFlags()

	flags.StringVarP(&fv.configPath, "config", "f", "",
		"Configuration file (default: lumen.yaml or config.yaml if present)")

	// Audio Device Configuration
	flags.IntVarP(&fv.device, "device", "d", config.DefaultDeviceID,
		"Specify input device ID. Use 'list' command to see available devices.")
	flags.IntVarP(&fv.channels, "channels", "c", config.DefaultChannels,
		"Number of channels to capture, downmixed to mono")
	flags.Float64VarP(&fv.sampleRate, "sample-rate", "s", config.DefaultSampleRate,
		"Sample rate, measured in Hertz (Hz)")
	flags.BoolVarP(&fv.lowLatency, "low-latency", "l", config.DefaultLowLatency,
		"Use low latency mode for real-time processing")

	// Analysis
	flags.Float64Var(&fv.fps, "fps", config.DefaultFPS, "Analysis frames per second")
	flags.IntVarP(&fv.frameSize, "frame-size", "b", config.DefaultFrameSize,
		"Spectrogram frame size in samples (power of 2)")
	flags.IntVar(&fv.blockHops, "block-hops", config.DefaultBlockHops,
		"Hops reduced into one feature message")
	flags.StringVar(&fv.stage, "stage", config.DefaultStage,
		"Capture stage execution: process or goroutine")

	// File input and recording
	flags.StringVarP(&fv.input, "input", "i", "", "Replay a WAV file instead of a device")
	flags.BoolVar(&fv.loop, "loop", false, "Loop the input file")
	flags.StringVarP(&fv.record, "record", "r", "",
		"Record the captured audio. Default file is recording-DD-MM-YYYY-HHMMSS.wav")
	flags.Lookup("record").NoOptDefVal = "auto"

	// Publishing
	flags.StringVar(&fv.udp, "udp", "", "Send binary frames to this UDP host:port")
	flags.StringVar(&fv.websocket, "ws", config.DefaultWebSocketAddr, "Serve the websocket on this address")
	flags.BoolVar(&fv.noWS, "no-ws", false, "Disable the websocket server")
	flags.BoolVarP(&fv.monitor, "monitor", "t", false, "Show the terminal monitor")

	// Debug Configuration
	flags.BoolVarP(&fv.verbose, "verbose", "v", false, "Show verbose output")
	flags.StringVar(&fv.logLevel, "log-level", config.DefaultLogLevel, "Log level: debug, info, warn, error")

	if args == nil {
		args = []string{}
	}
	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}
	if options.Command == CommandNone {
		options.Config = nil
	}
	return options, nil
}

// apply copies the flags that were set explicitly over cfg.
func (fv *flagValues) apply(flags *pflag.FlagSet, cfg *config.Config) {
	set := flags.Changed

	if set("device") {
		cfg.Audio.DeviceID = fv.device
	}
	if set("channels") {
		cfg.Audio.Channels = fv.channels
	}
	if set("sample-rate") {
		cfg.Audio.SampleRate = fv.sampleRate
	}
	if set("low-latency") {
		cfg.Audio.LowLatency = fv.lowLatency
	}
	if set("fps") {
		cfg.Audio.FPS = fv.fps
	}
	if set("frame-size") {
		cfg.Audio.FrameSize = fv.frameSize
	}
	if set("block-hops") {
		cfg.Audio.BlockHops = fv.blockHops
	}
	if set("stage") {
		cfg.Analyzer.Stage = fv.stage
	}
	if set("input") {
		cfg.Audio.InputFile = fv.input
	}
	if set("loop") {
		cfg.Audio.Loop = fv.loop
	}
	if set("record") {
		cfg.Audio.RecordFile = fv.record
		if fv.record == "auto" {
			cfg.Audio.RecordFile = "recording-" + time.Now().UTC().Format("02-01-2006-150405") + ".wav"
		}
	}
	if set("udp") {
		cfg.Transport.UDPEnabled = fv.udp != ""
		cfg.Transport.UDPTargetAddress = fv.udp
	}
	if set("ws") {
		cfg.Transport.WebSocketEnabled = true
		cfg.Transport.WebSocketAddress = fv.websocket
	}
	if set("no-ws") && fv.noWS {
		cfg.Transport.WebSocketEnabled = false
	}
	if set("monitor") {
		cfg.Monitor = fv.monitor
	}
	if set("log-level") {
		cfg.LogLevel = fv.logLevel
	}
	if set("verbose") && fv.verbose {
		cfg.Debug = true
		cfg.Transport.Log = true
	}
}
