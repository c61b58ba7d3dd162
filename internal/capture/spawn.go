// SPDX-License-Identifier: MIT
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"sync"

	"lumen/internal/audio"
	"lumen/internal/featurechan"
	applog "lumen/internal/log"
)

// Queue depths of the feature channel. Configure is latest-wins, so one
// slot is enough; a second of features covers a stalled analyzer.
const (
	ConfigureDepth = 1
	FeaturesDepth  = 64
)

// ErrStageExited reports that the capture stage stopped on its own.
var ErrStageExited = errors.New("capture stage exited")

// AnalyzerEnd is the analyzer side of the feature channel.
type AnalyzerEnd = featurechan.End[featurechan.Configure, featurechan.Features]

// Handle controls a running capture stage.
type Handle interface {
	// End returns the analyzer side of the feature channel.
	End() *AnalyzerEnd
	// Exited is closed once the stage has stopped.
	Exited() <-chan struct{}
	// Err describes why the stage stopped. It is nil until Exited is closed.
	Err() error
	// Kill terminates the stage without draining and waits for it.
	Kill() error
}

// Spawner starts capture stages.
type Spawner interface {
	Spawn(ctx context.Context) (Handle, error)
}

// OpenFunc opens the audio source inside the stage's execution context.
type OpenFunc func() (Source, error)

// exitState is shared by both handle kinds.
type exitState struct {
	once   sync.Once
	exited chan struct{}
	mu     sync.Mutex
	err    error
}

func newExitState() *exitState {
	return &exitState{exited: make(chan struct{})}
}

func (x *exitState) finish(err error) {
	x.once.Do(func() {
		x.mu.Lock()
		x.err = err
		x.mu.Unlock()
		close(x.exited)
	})
}

func (x *exitState) Exited() <-chan struct{} { return x.exited }

func (x *exitState) Err() error {
	select {
	case <-x.exited:
	default:
		return nil
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.err
}

// GoroutineSpawner runs the stage on a goroutine locked to its own OS
// thread, connected by an in-memory pipe.
type GoroutineSpawner struct {
	Config   Config
	Open     OpenFunc
	Recorder *audio.Recorder
}

type goroutineHandle struct {
	*exitState
	end    *AnalyzerEnd
	cancel context.CancelFunc
}

// Spawn starts the stage. Failures to open the source are reported through
// the handle, as they would be for a child process.
func (g GoroutineSpawner) Spawn(ctx context.Context) (Handle, error) {
	if g.Open == nil {
		return nil, errors.New("capture: no source")
	}
	if err := g.Config.Validate(); err != nil {
		return nil, err
	}

	analyzerEnd, stageEnd := featurechan.Pipe[featurechan.Configure, featurechan.Features](ConfigureDepth, FeaturesDepth)
	runCtx, cancel := context.WithCancel(ctx)
	h := &goroutineHandle{exitState: newExitState(), end: analyzerEnd, cancel: cancel}

	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		defer stageEnd.Close()

		h.finish(h.run(runCtx, g, stageEnd))
	}()
	return h, nil
}

func (h *goroutineHandle) run(ctx context.Context, g GoroutineSpawner, end *StageEnd) error {
	src, err := g.Open()
	if err != nil {
		return fmt.Errorf("%w: open source: %w", ErrStageExited, err)
	}
	defer src.Close()

	stage, err := NewStage(g.Config, src, g.Recorder)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrStageExited, err)
	}
	if err := stage.Run(ctx, end); err != nil {
		return fmt.Errorf("%w: %w", ErrStageExited, err)
	}
	return ErrStageExited
}

func (h *goroutineHandle) End() *AnalyzerEnd { return h.end }

// Kill stops the stage at its next hop boundary. The source is closed on
// the stage's own thread.
func (h *goroutineHandle) Kill() error {
	h.cancel()
	h.end.Close()
	<-h.exited
	return nil
}

// ProcessSpawner runs the stage in a child process, by default this binary
// re-executed with the hidden capture subcommand. The feature channel runs
// over the child's stdin and stdout; its stderr is passed through.
type ProcessSpawner struct {
	Path   string   // executable; empty means os.Executable
	Args   []string // arguments, e.g. {"capture", "--device", "2"}
	Env    []string // added to the parent's environment
	Stderr io.Writer
}

type processHandle struct {
	*exitState
	cmd *exec.Cmd
	end *AnalyzerEnd
}

// Spawn starts the child process.
func (p ProcessSpawner) Spawn(ctx context.Context) (Handle, error) {
	path := p.Path
	if path == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("capture: locate executable: %w", err)
		}
		path = exe
	}

	cmd := exec.Command(path, p.Args...)
	cmd.Env = append(os.Environ(), p.Env...)
	cmd.Stderr = p.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("capture: stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("capture: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("capture: start %s: %w", path, err)
	}
	applog.Infof("Capture: started stage process %d", cmd.Process.Pid)

	h := &processHandle{
		exitState: newExitState(),
		cmd:       cmd,
		end:       featurechan.NewStreamEnd(stdout, stdin, featurechan.AnalyzerCodec, ConfigureDepth, FeaturesDepth),
	}
	go func() {
		// Wait closes stdout, so let the reader see EOF first.
		<-h.end.Done()
		err := cmd.Wait()
		if err != nil {
			h.finish(fmt.Errorf("%w: %w", ErrStageExited, err))
			return
		}
		h.finish(ErrStageExited)
	}()
	return h, nil
}

func (h *processHandle) End() *AnalyzerEnd { return h.end }

func (h *processHandle) Kill() error {
	err := h.cmd.Process.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		err = nil
	}
	h.end.Close()
	<-h.exited
	return err
}

// ServeStdio is the child side of ProcessSpawner: it opens the source and
// runs the stage over stdin and stdout until the parent goes away.
func ServeStdio(ctx context.Context, cfg Config, open OpenFunc, recorder *audio.Recorder) error {
	src, err := open()
	if err != nil {
		return fmt.Errorf("capture: open source: %w", err)
	}
	defer src.Close()

	stage, err := NewStage(cfg, src, recorder)
	if err != nil {
		return err
	}

	end := featurechan.NewStreamEnd(os.Stdin, os.Stdout, featurechan.StageCodec, FeaturesDepth, ConfigureDepth)
	defer end.Close()
	return stage.Run(ctx, end)
}
