// Package ui renders build progress in the terminal.
package ui

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"fyrc/internal/buildpipeline"
)

const statusWidth = 10

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("7"))
	workingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	idleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

type progressModel struct {
	title   string
	events  <-chan buildpipeline.Event
	spinner spinner.Model
	bar     progress.Model
	items   []unitRow
	index   map[string]int
	failure error
	width   int
	done    bool
}

// unitRow is one input package.
type unitRow struct {
	path    string
	status  string
	stage   buildpipeline.Stage
	elapsed time.Duration
	err     error
}

func (r unitRow) finished() bool {
	return r.status == "done" || r.status == "cached" || r.status == "error"
}

type eventMsg buildpipeline.Event
type doneMsg struct{}

// NewProgressModel returns a Bubble Tea model that renders one row per
// input. The model quits when events is closed.
func NewProgressModel(title string, files []string, events <-chan buildpipeline.Event) tea.Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = workingStyle

	bar := progress.New(progress.WithDefaultGradient())
	bar.Width = 76

	m := &progressModel{
		title:   title,
		events:  events,
		spinner: sp,
		bar:     bar,
		items:   make([]unitRow, len(files)),
		index:   make(map[string]int, len(files)),
		width:   80,
	}
	for i, file := range files {
		m.items[i] = unitRow{path: file, status: "queued"}
		m.index[file] = i
	}
	return m
}

func (m *progressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.next())
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		return m, tea.Batch(m.applyEvent(buildpipeline.Event(msg)), m.next())
	case doneMsg:
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			m.width = msg.Width
			m.bar.Width = msg.Width - 4
		}
		return m, nil
	case progress.FrameMsg:
		bar, cmd := m.bar.Update(msg)
		m.bar = bar.(progress.Model)
		return m, cmd
	}
	return m, nil
}

func (m *progressModel) View() string {
	if len(m.items) == 0 {
		return ""
	}
	finished := 0
	for _, it := range m.items {
		if it.finished() {
			finished++
		}
	}
	header := fmt.Sprintf("%s %d/%d", m.title, finished, len(m.items))
	if m.done {
		header = "done: " + header
	} else {
		header = m.spinner.View() + " " + header
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(header))
	b.WriteString("\n\n")

	nameWidth := max(m.width-statusWidth-14, 20)
	for _, it := range m.items {
		status := styleStatus(it.status).Render(fmt.Sprintf("%*s", statusWidth, it.status))
		fmt.Fprintf(&b, "  %s %s", status, truncate(it.path, nameWidth))
		if it.finished() && it.elapsed > 0 {
			b.WriteString(idleStyle.Render(" " + it.elapsed.Round(time.Millisecond).String()))
		}
		b.WriteByte('\n')
		if it.err != nil {
			b.WriteString(errorStyle.Render("    " + truncate(it.err.Error(), m.width-6)))
			b.WriteByte('\n')
		}
	}
	if m.failure != nil {
		b.WriteString(errorStyle.Render("build failed: " + truncate(m.failure.Error(), m.width-14)))
		b.WriteByte('\n')
	}

	b.WriteByte('\n')
	if m.done {
		b.WriteString(m.bar.ViewAs(1.0))
	} else {
		b.WriteString(m.bar.View())
	}
	b.WriteByte('\n')
	return b.String()
}

func (m *progressModel) next() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return doneMsg{}
		}
		return eventMsg(ev)
	}
}

func (m *progressModel) applyEvent(ev buildpipeline.Event) tea.Cmd {
	if ev.File == "" {
		if ev.Status == buildpipeline.StatusError {
			m.failure = ev.Err
		}
		return nil
	}
	idx, ok := m.index[ev.File]
	if !ok {
		return nil
	}
	row := &m.items[idx]
	if label := statusLabel(ev.Stage, ev.Status); label != "" {
		row.status = label
		row.stage = ev.Stage
	}
	if ev.Elapsed > 0 {
		row.elapsed = ev.Elapsed
	}
	if ev.Err != nil {
		row.err = ev.Err
	}

	total := 0.0
	for _, it := range m.items {
		total += rowProgress(it)
	}
	return m.bar.SetPercent(total / float64(len(m.items)))
}

// rowProgress counts a working stage as half done.
func rowProgress(r unitRow) float64 {
	if r.finished() {
		return 1
	}
	i := slices.Index(buildpipeline.Stages, r.stage)
	if i < 0 {
		return 0
	}
	return (float64(i) + 0.5) / float64(len(buildpipeline.Stages))
}

var stageLabels = map[buildpipeline.Stage]string{
	buildpipeline.StageDecode:   "decoding",
	buildpipeline.StageLower:    "lowering",
	buildpipeline.StageGenerate: "generating",
	buildpipeline.StageWrite:    "writing",
}

func statusLabel(stage buildpipeline.Stage, status buildpipeline.Status) string {
	if status == buildpipeline.StatusWorking {
		return stageLabels[stage]
	}
	return string(status)
}

func styleStatus(status string) lipgloss.Style {
	switch status {
	case "done", "cached":
		return okStyle
	case "error":
		return errorStyle
	case "queued":
		return idleStyle
	}
	return workingStyle
}

func truncate(value string, width int) string {
	if width <= 0 || runewidth.StringWidth(value) <= width {
		return value
	}
	if width <= 3 {
		return runewidth.Truncate(value, width, "")
	}
	return runewidth.Truncate(value, width, "...")
}
