// SPDX-License-Identifier: MIT
package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"lumen/internal/audio"
	"lumen/internal/params"
	"lumen/internal/signals"
)

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func isQuit(cmd tea.Cmd) bool {
	if cmd == nil {
		return false
	}
	_, ok := cmd().(tea.QuitMsg)
	return ok
}

func testFrame() signals.Frame {
	return signals.Frame{
		SPL:           0.8,
		RawSPL:        -23.5,
		Spec3:         []float64{0.1, 0.5, 1.4},
		Spec4:         []float64{0, 0.25, 0.5, 0.75},
		Spec12:        []float64{-0.5, 0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1},
		BPM:           128,
		TimeSignature: 4,
		BeatRaw:       0.3,
		DownbeatRaw:   0.6,
		BeatCount:     2.4,
	}
}

func TestMonitorTick(t *testing.T) {
	calls := 0
	collect := func() signals.Frame { calls++; return testFrame() }
	stageErr := errors.New("stage gone")

	m := NewMonitorModel(collect, func() error { return stageErr }, params.NewStore(), time.Millisecond)
	next, cmd := m.Update(tickMsg(time.Now()))
	if cmd == nil {
		t.Error("tick must schedule the next tick")
	}
	if calls != 1 {
		t.Errorf("collect called %d times", calls)
	}

	view := next.View()
	for _, want := range []string{"128.0 BPM", "3/4", "-23.5 dB", "capture: stage gone", "spec12"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestMonitorKeys(t *testing.T) {
	store := params.NewStore()
	m := NewMonitorModel(testFrame, nil, store, 0)

	if _, cmd := m.Update(tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}); cmd != nil {
		t.Error("tap must not return a command")
	}
	if !store.ReadAndClear(params.TriggerTap) {
		t.Error("space did not raise the tap trigger")
	}

	m.Update(runes("+"))
	m.Update(runes("+"))
	m.Update(runes("-"))
	if bpm := store.Tempo().BPM; bpm != 61 {
		t.Errorf("BPM = %v, want 61", bpm)
	}

	if _, cmd := m.Update(runes("q")); !isQuit(cmd) {
		t.Error("q must quit")
	}
}

func TestSparkline(t *testing.T) {
	got := sparkline([]float64{-1, 0, 0.5, 1, 2})
	if got != "▁▁▅██" {
		t.Errorf("sparkline = %q", got)
	}
}

func testDevices() ([]audio.Device, error) {
	return []audio.Device{
		{ID: 0, Name: "Speakers", MaxOutputChannels: 2, DefaultSampleRate: 48000},
		{ID: 1, Name: "Mic", MaxInputChannels: 1, DefaultSampleRate: 48000},
	}, nil
}

func update(t *testing.T, m DeviceListModel, msg tea.Msg) (DeviceListModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(DeviceListModel), cmd
}

func TestDeviceListSelection(t *testing.T) {
	m := newDeviceListModel(testDevices)
	m, _ = update(t, m, m.Init()())
	m, _ = update(t, m, tea.WindowSizeMsg{Width: 80, Height: 24})

	if view := m.View(); !strings.Contains(view, "[1] Mic (Input)") || !strings.Contains(view, "[0] Speakers (Output)") {
		t.Errorf("list view = %q", view)
	}

	// Output-only devices cannot be configured.
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.activeScreen != ListScreen {
		t.Fatal("entered config screen for an output device")
	}

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyDown})
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.activeScreen != ConfigScreen || sampleRates[m.sampleRateIndex] != 48000 {
		t.Fatalf("screen=%v rate=%v", m.activeScreen, sampleRates[m.sampleRateIndex])
	}

	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyUp})
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if !isQuit(cmd) {
		t.Error("confirming must quit")
	}
	sel, ok := m.Selection()
	if !ok || sel.DeviceID != 1 || sel.SampleRate != 44100 {
		t.Errorf("Selection() = %+v, %v", sel, ok)
	}
}

func TestDeviceListBack(t *testing.T) {
	m := newDeviceListModel(testDevices)
	m, _ = update(t, m, m.Init()())
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyDown})
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.activeScreen != ListScreen {
		t.Error("esc did not return to the list")
	}
	if _, ok := m.Selection(); ok {
		t.Error("selection set without confirmation")
	}
}

func TestDeviceListError(t *testing.T) {
	m := newDeviceListModel(func() ([]audio.Device, error) { return nil, errors.New("no portaudio") })
	m, _ = update(t, m, m.Init()())
	if !strings.Contains(m.View(), "no portaudio") {
		t.Errorf("view = %q", m.View())
	}
	if _, cmd := update(t, m, runes("x")); !isQuit(cmd) {
		t.Error("any key must quit after an error")
	}
}
