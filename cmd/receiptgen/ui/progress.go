package ui

import (
	"fmt"
	"strings"

	"receiptgen/internal/bulk"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// ProgressMsg carries one pipeline progress update.
type ProgressMsg bulk.Progress

// DoneMsg ends the progress view.
type DoneMsg struct {
	Result *bulk.Result
	Err    error
}

// stageOrder numbers the stages for the "step n/4" label.
var stageOrder = map[bulk.Stage]int{
	bulk.StageSignature: 1,
	bulk.StageData:      2,
	bulk.StageImages:    3,
	bulk.StageZipping:   4,
}

// ProgressModel shows a bulk job's stage and a progress bar.
type ProgressModel struct {
	bar     progress.Model
	spinner spinner.Model
	styles  Styles
	title   string

	cur     bulk.Progress
	notice  string
	done    bool
	result  *bulk.Result
	err     error
	percent float64
}

// NewProgressModel creates the view for a job over total names.
func NewProgressModel(total int) ProgressModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	return ProgressModel{
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(48)),
		spinner: sp,
		styles:  DefaultStyles(),
		title:   fmt.Sprintf("Bulk export of %d receipts", total),
		cur:     bulk.Progress{Stage: bulk.StageSignature, Total: total},
	}
}

func (m ProgressModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m ProgressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.notice = "A running bulk export cannot be cancelled; it will finish shortly."
		}
		return m, nil

	case tea.WindowSizeMsg:
		if w := msg.Width - 8; w > 10 && w < 80 {
			m.bar.Width = w
		}
		return m, nil

	case ProgressMsg:
		if msg.Stage == bulk.StageIdle {
			return m, nil
		}
		m.cur = bulk.Progress(msg)
		m.percent = Fraction(m.cur)
		return m, m.bar.SetPercent(m.percent)

	case DoneMsg:
		m.done = true
		m.result = msg.Result
		m.err = msg.Err
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progress.FrameMsg:
		bar, cmd := m.bar.Update(msg)
		m.bar = bar.(progress.Model)
		return m, cmd
	}
	return m, nil
}

// Fraction is the share of the job done, counting each stage as a quarter.
func Fraction(p bulk.Progress) float64 {
	step, ok := stageOrder[p.Stage]
	if !ok {
		return 0
	}
	within := 0.0
	if p.Total > 0 {
		within = float64(p.Current) / float64(p.Total)
	}
	if within > 1 {
		within = 1
	}
	return (float64(step-1) + within) / float64(len(stageOrder))
}

func (m ProgressModel) View() string {
	if m.done {
		return ""
	}
	var b strings.Builder
	b.WriteString(m.styles.Title.Render(m.title))
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "%s %s %s\n", m.spinner.View(),
		m.styles.Stage.Render(string(m.cur.Stage)),
		m.styles.Muted.Render(fmt.Sprintf("step %d/%d  %d/%d", stageOrder[m.cur.Stage], len(stageOrder), m.cur.Current, m.cur.Total)))
	b.WriteString(m.bar.View())
	b.WriteString("\n")
	if m.notice != "" {
		b.WriteString(m.styles.Warning.Render(m.notice))
		b.WriteString("\n")
	}
	return b.String()
}

// Result returns the job outcome once DoneMsg arrived.
func (m ProgressModel) Result() (*bulk.Result, error) {
	return m.result, m.err
}
