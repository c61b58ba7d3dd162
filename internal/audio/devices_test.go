// SPDX-License-Identifier: MIT
package audio

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gordonklaus/portaudio"
)

func mockDevices(t *testing.T, infos []*portaudio.DeviceInfo, err error) {
	t.Helper()
	orig := paLibDevicesFunc
	paLibDevicesFunc = func() ([]*portaudio.DeviceInfo, error) { return infos, err }
	t.Cleanup(func() { paLibDevicesFunc = orig })
}

func fakeInfos() []*portaudio.DeviceInfo {
	return []*portaudio.DeviceInfo{
		{Name: "Built-in Microphone", MaxInputChannels: 2, DefaultSampleRate: 44100,
			DefaultLowInputLatency: 3 * time.Millisecond, DefaultHighInputLatency: 12 * time.Millisecond},
		{Name: "Built-in Output", MaxOutputChannels: 2, DefaultSampleRate: 48000},
		{Name: "Interface", MaxInputChannels: 8, MaxOutputChannels: 8, DefaultSampleRate: 96000,
			HostApi: &portaudio.HostApiInfo{Name: "Core Audio"}},
	}
}

func TestHostDevices(t *testing.T) {
	mockDevices(t, fakeInfos(), nil)

	devices, err := HostDevices()
	if err != nil {
		t.Fatalf("HostDevices() error = %v", err)
	}
	if len(devices) != 3 {
		t.Fatalf("got %d devices, want 3", len(devices))
	}

	tests := []struct {
		id      int
		kind    string
		isInput bool
	}{
		{0, "Input", true},
		{1, "Output", false},
		{2, "Input/Output", true},
	}
	for _, tt := range tests {
		d := devices[tt.id]
		if d.ID != tt.id {
			t.Errorf("device %d has ID %d", tt.id, d.ID)
		}
		if d.Kind() != tt.kind {
			t.Errorf("device %d Kind() = %q, want %q", tt.id, d.Kind(), tt.kind)
		}
		if d.IsInput() != tt.isInput {
			t.Errorf("device %d IsInput() = %v", tt.id, d.IsInput())
		}
	}
	if devices[2].HostAPI != "Core Audio" {
		t.Errorf("HostAPI = %q", devices[2].HostAPI)
	}
}

func TestHostDevicesError(t *testing.T) {
	mockDevices(t, nil, errors.New("mock error"))

	if _, err := HostDevices(); err == nil || !strings.Contains(err.Error(), "mock error") {
		t.Errorf("expected mock error, got %v", err)
	}
}

func TestNilDevices(t *testing.T) {
	mockDevices(t, nil, nil)

	devices, err := paDevices()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if devices == nil || len(devices) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", devices)
	}
}

func TestInputDevice(t *testing.T) {
	mockDevices(t, fakeInfos(), nil)

	if dev, err := InputDevice(0); err != nil || dev.Name != "Built-in Microphone" {
		t.Errorf("InputDevice(0) = %v, %v", dev, err)
	}

	tests := []struct {
		name   string
		id     int
		substr string
	}{
		{"negative ID", -2, "invalid device ID"},
		{"too high ID", 13, "invalid device ID"},
		{"output only", 1, "does not support input"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := InputDevice(tt.id)
			if err == nil || !strings.Contains(err.Error(), tt.substr) {
				t.Errorf("InputDevice(%d) error = %v, want substring %q", tt.id, err, tt.substr)
			}
		})
	}
}

func TestInputDeviceDefault(t *testing.T) {
	mockDevices(t, fakeInfos(), nil)
	orig := paLibDefaultInputDeviceFunc
	t.Cleanup(func() { paLibDefaultInputDeviceFunc = orig })

	paLibDefaultInputDeviceFunc = func() (*portaudio.DeviceInfo, error) {
		return fakeInfos()[2], nil
	}
	if dev, err := InputDevice(DefaultDevice); err != nil || dev.Name != "Interface" {
		t.Errorf("InputDevice(default) = %v, %v", dev, err)
	}

	paLibDefaultInputDeviceFunc = func() (*portaudio.DeviceInfo, error) {
		return nil, errors.New("mock default input error")
	}
	if _, err := InputDevice(DefaultDevice); err == nil || !strings.Contains(err.Error(), "mock default input error") {
		t.Errorf("expected mock error, got %v", err)
	}
}

func TestInitializeTerminateErrors(t *testing.T) {
	origInit, origTerm := paLibInitialize, paLibTerminate
	t.Cleanup(func() { paLibInitialize, paLibTerminate = origInit, origTerm })

	paLibInitialize = func() error { return errors.New("mock init error") }
	paLibTerminate = func() error { return errors.New("mock term error") }

	if err := Initialize(); err == nil || !strings.Contains(err.Error(), "mock init error") {
		t.Errorf("Initialize() error = %v", err)
	}
	if err := Terminate(); err == nil || !strings.Contains(err.Error(), "mock term error") {
		t.Errorf("Terminate() error = %v", err)
	}

	paLibInitialize = func() error { return nil }
	paLibTerminate = func() error { return nil }
	if err := Initialize(); err != nil {
		t.Errorf("Initialize() error = %v", err)
	}
	if err := Terminate(); err != nil {
		t.Errorf("Terminate() error = %v", err)
	}
}

func TestListDevices(t *testing.T) {
	mockDevices(t, fakeInfos(), nil)

	var buf bytes.Buffer
	if err := ListDevices(&buf); err != nil {
		t.Fatalf("ListDevices() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{"[0] Built-in Microphone (Input)", "[1] Built-in Output (Output)", "Low=3.00ms, High=12.00ms"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestDownmix(t *testing.T) {
	dst := make([]float32, 3)
	downmix(dst, []float32{1, 0, 0.5, 0.5, -1, 1}, 2)
	want := []float32{0.5, 0.5, 0}
	for i := range want {
		if dst[i] != want[i] {
			t.Errorf("downmix()[%d] = %v, want %v", i, dst[i], want[i])
		}
	}

	allocs := testing.AllocsPerRun(100, func() {
		downmix(dst, []float32{1, 0, 0.5, 0.5, -1, 1}, 2)
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations in downmix, got %.1f", allocs)
	}
}
