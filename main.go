// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"lumen/cmd"
	"lumen/internal/analyzer"
	"lumen/internal/audio"
	"lumen/internal/beat"
	"lumen/internal/capture"
	"lumen/internal/config"
	applog "lumen/internal/log"
	"lumen/internal/signals"
	"lumen/internal/transport"
	"lumen/internal/transport/udp"
	"lumen/internal/tui"
	"lumen/pkg/build"
)

// main is the entry point. The program flow is divided into three phases:
//
// 1. Startup:
//   - Initialize build information
//   - Parse command line arguments and the configuration file
//   - Execute one-off commands (device listing, capture stage) if requested
//
// 2. Running:
//   - Spawn the capture stage and start the analyzer
//   - Start the beat tracker and the publishers
//   - Show the monitor, or wait for a termination signal
//
// 3. Shutdown:
//   - Stop publishers, the analyzer and the capture stage
func main() {
	if err := build.Initialize(); err != nil {
		applog.Debugf("Build: %v", err)
	}

	opts, err := cmd.ParseArgs(os.Args[1:])
	if err != nil {
		applog.Fatalf("%v", err)
	}
	if opts.Command == cmd.CommandNone {
		return
	}
	cfg := opts.Config
	applog.SetLevel(cfg.Level())

	switch opts.Command {
	case cmd.CommandList:
		err = listDevices()
	case cmd.CommandDevices:
		err = browseDevices()
	case cmd.CommandCapture:
		err = runCapture(cfg)
	default:
		err = run(cfg)
	}
	if err != nil {
		applog.Fatalf("%v", err)
	}
}

func listDevices() error {
	if err := audio.Initialize(); err != nil {
		return err
	}
	defer audio.Terminate()
	return audio.ListDevices(os.Stdout)
}

func browseDevices() error {
	sel, ok, err := tui.StartDeviceListUI()
	if err != nil || !ok {
		return err
	}
	fmt.Printf("--device %d --sample-rate %.0f\n", sel.DeviceID, sel.SampleRate)
	return nil
}

// openSource returns the source opener for the configured input. It runs
// on the capture stage's thread.
func openSource(cfg *config.Config) capture.OpenFunc {
	cc := cfg.CaptureConfig()
	if cfg.Audio.InputFile != "" {
		return func() (capture.Source, error) {
			return capture.OpenWav(cfg.Audio.InputFile, cc.SampleRate, capture.WavOptions{
				Loop:     cfg.Audio.Loop,
				Realtime: true,
			})
		}
	}
	return func() (capture.Source, error) {
		return audio.OpenInput(cfg.InputConfig(), cc.Hop())
	}
}

func newRecorder(cfg *config.Config) (*audio.Recorder, error) {
	if cfg.Audio.RecordFile == "" {
		return nil, nil
	}
	rec := audio.NewRecorder(int(cfg.Audio.SampleRate))
	if err := rec.Start(cfg.Audio.RecordFile); err != nil {
		return nil, err
	}
	return rec, nil
}

func stopRecorder(rec *audio.Recorder, path string) {
	if rec == nil {
		return
	}
	if err := rec.Stop(); err != nil {
		applog.Errorf("Error stopping recording: %v", err)
		return
	}
	applog.Infof("Recording saved to: %s", path)
}

// runCapture is the child side of the process spawner. stdout carries the
// feature channel, so nothing else may write to it.
func runCapture(cfg *config.Config) error {
	applog.SetComponent("capture")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Audio.InputFile == "" {
		if err := audio.Initialize(); err != nil {
			return err
		}
		defer audio.Terminate()
	}

	rec, err := newRecorder(cfg)
	if err != nil {
		return err
	}
	defer stopRecorder(rec, cfg.Audio.RecordFile)

	return capture.ServeStdio(ctx, cfg.CaptureConfig(), openSource(cfg), rec)
}

func newSpawner(cfg *config.Config, stderr io.Writer, rec *audio.Recorder) capture.Spawner {
	if cfg.Analyzer.Stage == config.StageGoroutine {
		return capture.GoroutineSpawner{
			Config:   cfg.CaptureConfig(),
			Open:     openSource(cfg),
			Recorder: rec,
		}
	}
	return capture.ProcessSpawner{
		Args:   cfg.CaptureArgs(),
		Stderr: stderr,
	}
}

func run(cfg *config.Config) error {
	store, err := cfg.NewStore()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The child's log output would tear the monitor's screen.
	var stageStderr io.Writer = os.Stderr
	if cfg.Monitor {
		stageStderr = io.Discard
	}

	// In goroutine mode the stage lives in this process.
	var rec *audio.Recorder
	if cfg.Analyzer.Stage == config.StageGoroutine {
		if cfg.Audio.InputFile == "" {
			if err := audio.Initialize(); err != nil {
				return err
			}
			defer audio.Terminate()
		}
		if rec, err = newRecorder(cfg); err != nil {
			return err
		}
		defer stopRecorder(rec, cfg.Audio.RecordFile)
	}

	an := analyzer.New(store, newSpawner(cfg, stageStderr, rec), cfg.AnalyzerOptions())
	if err := an.Start(ctx); err != nil {
		return err
	}
	defer an.Close()

	tracker := beat.New(store, beat.SystemClock{})
	go tracker.Run(ctx, cfg.Analyzer.PollRate)

	var transports []transport.Transport
	if cfg.Transport.WebSocketEnabled {
		ws := transport.NewWebSocketTransport(cfg.Transport.WebSocketAddress, store)
		if err := ws.Start(); err != nil {
			ws.Close()
			return fmt.Errorf("websocket: %w", err)
		}
		transports = append(transports, ws)
	}
	if cfg.Transport.UDPEnabled {
		u, err := udp.NewTransport(cfg.Transport.UDPTargetAddress)
		if err != nil {
			return err
		}
		transports = append(transports, u)
	}
	if cfg.Transport.Log {
		transports = append(transports, transport.NewLoggingTransport())
	}

	pub, err := transport.NewPublisher(cfg.Transport.PublishInterval, signals.NewCollector(an, tracker), transports...)
	if err != nil {
		return err
	}
	pub.Start()
	defer pub.Close()

	if cfg.Monitor {
		applog.SetOutput(io.Discard)
		defer applog.SetOutput(os.Stderr)

		monitor := tui.NewMonitorModel(signals.NewCollector(an, tracker).Collect, an.Err, store, 0)
		return tui.StartMonitorUI(monitor)
	}

	applog.Infof("Running, press Ctrl+C to stop. '%s --help' for usage information.", build.GetBuildInfo().Name)
	<-ctx.Done()
	applog.Infof("Shutting down")
	return nil
}
