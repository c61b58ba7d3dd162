// SPDX-License-Identifier: MIT
package audio

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-audio/wav"

	"lumen/pkg/utils"
)

const (
	testSampleRate = 44100
	testHop        = 735
)

func TestRecorderWritesWav(t *testing.T) {
	filename := filepath.Join(t.TempDir(), "capture.wav")
	rec := NewRecorder(testSampleRate)

	if err := rec.Start(filename); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !rec.Recording() {
		t.Error("Recording() = false after Start")
	}

	hop := utils.GenerateSineWave(testHop, testSampleRate, 440, 0.5)
	for range 4 {
		if err := rec.Write(hop); err != nil {
			t.Fatalf("Write() error = %v", err)
		}
	}
	if err := rec.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if rec.Recording() {
		t.Error("Recording() = true after Stop")
	}

	f, err := os.Open(filename)
	if err != nil {
		t.Fatalf("open recording: %v", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		t.Fatalf("decode recording: %v", err)
	}
	if dec.SampleRate != testSampleRate || dec.NumChans != 1 || dec.BitDepth != recordBitDepth {
		t.Errorf("format = %d Hz, %d ch, %d bit", dec.SampleRate, dec.NumChans, dec.BitDepth)
	}
	if len(buf.Data) != 4*testHop {
		t.Fatalf("decoded %d samples, want %d", len(buf.Data), 4*testHop)
	}

	got := float64(buf.Data[100]) / math.MaxInt32
	if math.Abs(got-float64(hop[100])) > 1e-6 {
		t.Errorf("sample 100 = %v, want %v", got, hop[100])
	}
}

func TestRecorderErrors(t *testing.T) {
	dir := t.TempDir()
	rec := NewRecorder(testSampleRate)

	if err := rec.Write([]float32{0.1}); err != nil {
		t.Errorf("Write() while stopped error = %v", err)
	}
	if err := rec.Stop(); err != nil {
		t.Errorf("Stop() while stopped error = %v", err)
	}
	if err := rec.Start(filepath.Join(dir, "missing", "x.wav")); err == nil {
		t.Error("expected error for missing directory")
	}

	if err := rec.Start(filepath.Join(dir, "a.wav")); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer rec.Stop()
	if err := rec.Start(filepath.Join(dir, "b.wav")); err == nil || !strings.Contains(err.Error(), "already recording") {
		t.Errorf("second Start() error = %v", err)
	}
}

func TestClampUnit(t *testing.T) {
	for _, tt := range []struct {
		in   float32
		want float64
	}{{2, 1}, {-3, -1}, {0.25, 0.25}} {
		if got := clampUnit(tt.in); got != tt.want {
			t.Errorf("clampUnit(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func BenchmarkRecorderWrite(b *testing.B) {
	rec := NewRecorder(testSampleRate)
	if err := rec.Start(filepath.Join(b.TempDir(), "bench.wav")); err != nil {
		b.Fatal(err)
	}
	defer rec.Stop()
	hop := utils.GenerateComplexWave(testHop, testSampleRate)

	b.ReportAllocs()
	for b.Loop() {
		_ = rec.Write(hop)
	}
}
