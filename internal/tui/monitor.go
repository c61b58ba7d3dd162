// SPDX-License-Identifier: MIT

// Package tui holds the terminal interfaces: a live signal monitor with
// tap-tempo input and an audio device browser.
package tui

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"lumen/internal/params"
	"lumen/internal/signals"
)

const (
	defaultMeterWidth = 40
	bpmStep           = 1
)

var (
	labelStyle = lipgloss.NewStyle().Width(8)
	beatStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F25D94")).Bold(true)
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F5F"))
)

type tickMsg time.Time

// MonitorModel shows the published signals and turns the space bar into
// tap-tempo input.
type MonitorModel struct {
	collect  func() signals.Frame
	status   func() error
	store    *params.Store
	interval time.Duration

	frame signals.Frame
	meter progress.Model
	err   error
}

// NewMonitorModel creates a monitor refreshing every interval. status, if
// not nil, reports a fatal condition (a dead capture stage) to display.
func NewMonitorModel(collect func() signals.Frame, status func() error, store *params.Store, interval time.Duration) MonitorModel {
	if interval <= 0 {
		interval = time.Second / 30
	}
	return MonitorModel{
		collect:  collect,
		status:   status,
		store:    store,
		interval: interval,
		meter: progress.New(
			progress.WithDefaultGradient(),
			progress.WithWidth(defaultMeterWidth),
			progress.WithoutPercentage(),
		),
	}
}

func (m MonitorModel) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m MonitorModel) Init() tea.Cmd {
	return m.tick()
}

func (m MonitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tickMsg:
		m.frame = m.collect()
		if m.status != nil {
			m.err = m.status()
		}
		return m, m.tick()

	case tea.WindowSizeMsg:
		m.meter.Width = max(10, min(msg.Width-labelStyle.GetWidth()-12, 80))

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keyQuit):
			return m, tea.Quit
		case key.Matches(msg, keyTap):
			_ = m.store.Activate(params.TriggerTap)
		case key.Matches(msg, keyFaster):
			_, _ = m.store.SetBPM(m.store.Tempo().BPM + bpmStep)
		case key.Matches(msg, keySlower):
			_, _ = m.store.SetBPM(m.store.Tempo().BPM - bpmStep)
		}
	}
	return m, nil
}

func (m MonitorModel) View() string {
	var sb strings.Builder
	f := m.frame

	sb.WriteString(titleStyle.Render("lumen"))
	sb.WriteString("\n\n")

	m.row(&sb, "SPL", f.SPL, fmt.Sprintf("%6.1f dB", f.RawSPL))
	sb.WriteString("\n")
	for i, v := range f.Spec3 {
		m.row(&sb, fmt.Sprintf("spec3.%d", i), v, "")
	}
	sb.WriteString("\n")
	for i, v := range f.Spec4 {
		m.row(&sb, fmt.Sprintf("spec4.%d", i), v, "")
	}
	sb.WriteString("\n")
	sb.WriteString(labelStyle.Render("spec12"))
	sb.WriteString(sparkline(f.Spec12))
	sb.WriteString("\n\n")

	sb.WriteString(m.tempoLine())
	sb.WriteString("\n")
	m.row(&sb, "beat", f.BeatRaw, "")
	m.row(&sb, "measure", f.DownbeatRaw, "")

	if m.err != nil {
		sb.WriteString("\n")
		sb.WriteString(errStyle.Render("capture: " + m.err.Error()))
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	sb.WriteString(infoStyle.Render("space: Tap • +/-: BPM • q: Quit"))
	return sb.String()
}

func (m MonitorModel) row(sb *strings.Builder, label string, v float64, suffix string) {
	sb.WriteString(labelStyle.Render(label))
	sb.WriteString(m.meter.ViewAs(unit(v)))
	if suffix != "" {
		sb.WriteString(" ")
		sb.WriteString(dimStyle.Render(suffix))
	}
	sb.WriteString("\n")
}

func (m MonitorModel) tempoLine() string {
	f := m.frame
	ts := max(f.TimeSignature, 1)
	current := int(f.BeatCount)

	var dots strings.Builder
	for i := range ts {
		if i == current {
			dots.WriteString(beatStyle.Render("●"))
		} else {
			dots.WriteString(dimStyle.Render("○"))
		}
		dots.WriteString(" ")
	}
	return fmt.Sprintf("%s%6.1f BPM  %s %d/%d", labelStyle.Render("tempo"), f.BPM, dots.String(), current+1, ts)
}

var sparkLevels = []rune("▁▂▃▄▅▆▇█")

// sparkline draws one cell per value, clamped to [0, 1].
func sparkline(values []float64) string {
	var sb strings.Builder
	for _, v := range values {
		i := int(math.Round(unit(v) * float64(len(sparkLevels)-1)))
		sb.WriteRune(sparkLevels[i])
	}
	return sb.String()
}

func unit(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Min(1, math.Max(0, v))
}

// StartMonitorUI runs the monitor until the user quits.
func StartMonitorUI(model MonitorModel) error {
	p := tea.NewProgram(model, tea.WithAltScreen())
	_, err := p.Run()
	return err
}
