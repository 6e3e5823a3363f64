// Package tui renders the meter in the terminal. The model is the polling
// consumer: it snapshots the meter on a fixed tick and never touches the
// audio path.
package tui

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"tracktweak/internal/analysis"
	"tracktweak/internal/meter"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// DefaultRefreshInterval is the display poll cadence (~30 Hz).
const DefaultRefreshInterval = 33 * time.Millisecond

const (
	defaultWidth     = 60
	labelWidth       = 12
	spectrumRows     = 8
	levelFloorDBFS   = -60.0
	spectrumCeiling  = 0.0
	spectrumBarRunes = " ▁▂▃▄▅▆▇█"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1).
			Bold(true)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5"))

	labelStyle = lipgloss.NewStyle().
			Width(labelWidth).
			Bold(true)

	spectrumStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#25A065"))

	zoneColors = map[analysis.LoudnessZone]lipgloss.Color{
		analysis.ZoneVeryQuiet: lipgloss.Color("#888888"),
		analysis.ZoneQuiet:     lipgloss.Color("#4B9BFF"),
		analysis.ZoneGood:      lipgloss.Color("#25A065"),
		analysis.ZoneLoud:      lipgloss.Color("#FFA500"),
		analysis.ZoneTooLoud:   lipgloss.Color("#FF4B4B"),
	}

	quitKeys = key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"))
)

// Source is what the model polls. *meter.Meter satisfies it.
type Source interface {
	ID() string
	SampleRate() float64
	SnapshotInto(s *meter.Snapshot)
}

type tickMsg time.Time

// MeterModel is the Bubble Tea model for the live meter display.
type MeterModel struct {
	source   Source
	interval time.Duration
	snapshot meter.Snapshot
	width    int
	polls    uint64

	level      progress.Model
	momentary  progress.Model
	shortTerm  progress.Model
	integrated progress.Model
}

// NewMeterModel creates a model polling source every interval. A
// non-positive interval uses DefaultRefreshInterval.
func NewMeterModel(source Source, interval time.Duration) MeterModel {
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	m := MeterModel{
		source:     source,
		interval:   interval,
		level:      progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		momentary:  progress.New(progress.WithSolidFill(string(zoneColors[analysis.ZoneGood])), progress.WithoutPercentage()),
		shortTerm:  progress.New(progress.WithSolidFill(string(zoneColors[analysis.ZoneGood])), progress.WithoutPercentage()),
		integrated: progress.New(progress.WithSolidFill(string(zoneColors[analysis.ZoneGood])), progress.WithoutPercentage()),
	}
	m.resize(defaultWidth)
	source.SnapshotInto(&m.snapshot)
	return m
}

func tick(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Init starts the poll loop.
func (m MeterModel) Init() tea.Cmd {
	return tick(m.interval)
}

// Update handles ticks, resizes and quit keys.
func (m MeterModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width)
		return m, nil

	case tickMsg:
		m.source.SnapshotInto(&m.snapshot)
		m.polls++
		m.recolour()
		return m, tick(m.interval)

	case tea.KeyMsg:
		if key.Matches(msg, quitKeys) {
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m *MeterModel) resize(width int) {
	if width <= labelWidth+12 {
		width = labelWidth + 12
	}
	m.width = width
	barWidth := width - labelWidth - 12
	m.level.Width = barWidth
	m.momentary.Width = barWidth
	m.shortTerm.Width = barWidth
	m.integrated.Width = barWidth
}

// recolour fills each loudness bar with the colour of its zone.
func (m *MeterModel) recolour() {
	for _, p := range []struct {
		bar  *progress.Model
		lufs float64
	}{
		{&m.momentary, m.snapshot.Momentary},
		{&m.shortTerm, m.snapshot.ShortTerm},
		{&m.integrated, m.snapshot.Integrated},
	} {
		colour := string(zoneColors[analysis.ClassifyLoudness(p.lufs)])
		p.bar.FullColor = colour
	}
}

// View renders the meter.
func (m MeterModel) View() string {
	var sb strings.Builder

	title := titleStyle.Render(fmt.Sprintf("tracktweak  %.0f Hz", m.source.SampleRate()))
	sb.WriteString(title)
	sb.WriteString("\n\n")

	sb.WriteString(m.row("Level", m.level.ViewAs(levelFraction(m.snapshot.Level)), formatDBFS(m.snapshot.Level)))
	sb.WriteString(m.row("Momentary", m.momentary.ViewAs(loudnessFraction(m.snapshot.Momentary)), formatLUFS(m.snapshot.Momentary)))
	sb.WriteString(m.row("Short-term", m.shortTerm.ViewAs(loudnessFraction(m.snapshot.ShortTerm)), formatLUFS(m.snapshot.ShortTerm)))
	sb.WriteString(m.row("Integrated", m.integrated.ViewAs(loudnessFraction(m.snapshot.Integrated)), formatLUFS(m.snapshot.Integrated)))

	zone := analysis.ClassifyLoudness(m.snapshot.ShortTerm)
	sb.WriteString("\n")
	sb.WriteString(lipgloss.NewStyle().Foreground(zoneColors[zone]).Bold(true).Render(strings.ToUpper(zone.String())))
	sb.WriteString("  ")
	sb.WriteString(infoStyle.Render(analysis.LoudnessAdvice(m.snapshot.ShortTerm)))
	sb.WriteString("\n\n")

	sb.WriteString(spectrumStyle.Render(renderSpectrum(m.snapshot.Spectrum, m.width, spectrumRows)))
	sb.WriteString("\n\n")
	sb.WriteString(infoStyle.Render("q: Quit"))
	return sb.String()
}

func (m MeterModel) row(label, bar, value string) string {
	return fmt.Sprintf("%s%s %10s\n", labelStyle.Render(label), bar, value)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// levelFraction maps a linear RMS level onto [0, 1] over a 60 dB range.
func levelFraction(level float64) float64 {
	if !finite(level) || level <= 0 {
		return 0
	}
	db := 20 * math.Log10(level)
	return clamp01((db - levelFloorDBFS) / -levelFloorDBFS)
}

// loudnessFraction maps [LoudnessFloor, 0] LUFS onto [0, 1].
func loudnessFraction(lufs float64) float64 {
	if !finite(lufs) {
		return 0
	}
	return clamp01((lufs - analysis.LoudnessFloor) / -analysis.LoudnessFloor)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func formatDBFS(level float64) string {
	if !finite(level) {
		return "--"
	}
	if level <= 0 {
		return "-inf dBFS"
	}
	return fmt.Sprintf("%.1f dBFS", 20*math.Log10(level))
}

func formatLUFS(lufs float64) string {
	if !finite(lufs) {
		return "--"
	}
	return fmt.Sprintf("%.1f LUFS", lufs)
}

// renderSpectrum draws the display spectrum as rows of block characters,
// one column per group of bins, taking the loudest bin of each group.
func renderSpectrum(spectrum []float64, width, rows int) string {
	if len(spectrum) == 0 || width <= 0 || rows <= 0 {
		return ""
	}
	cols := min(width, len(spectrum))
	heights := make([]float64, cols)
	for c := range cols {
		lo := c * len(spectrum) / cols
		hi := max((c+1)*len(spectrum)/cols, lo+1)
		peak := analysis.SpectrumFloor
		for _, v := range spectrum[lo:hi] {
			if finite(v) && v > peak {
				peak = v
			}
		}
		// Height in eighths of a row.
		frac := (peak - analysis.SpectrumFloor) / (spectrumCeiling - analysis.SpectrumFloor)
		heights[c] = clamp01(frac) * float64(rows*8)
	}

	glyphs := []rune(spectrumBarRunes)
	var sb strings.Builder
	for r := rows - 1; r >= 0; r-- {
		for _, h := range heights {
			fill := int(math.Round(h)) - r*8
			switch {
			case fill <= 0:
				sb.WriteRune(glyphs[0])
			case fill >= 8:
				sb.WriteRune(glyphs[8])
			default:
				sb.WriteRune(glyphs[fill])
			}
		}
		if r > 0 {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// Run shows the meter until the user quits or ctx ends.
func Run(ctx context.Context, source Source, interval time.Duration) error {
	p := tea.NewProgram(
		NewMeterModel(source, interval),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
