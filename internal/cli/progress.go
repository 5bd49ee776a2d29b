package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"

	"github.com/raphaelgruber/sitechat/internal/models"
)

const pollInterval = 500 * time.Millisecond

// jobSource is the part of the job manager the progress display polls.
type jobSource interface {
	GetJob(ctx context.Context, id string) (*models.IngestionJob, error)
}

// Theme holds the color scheme for the progress display.
type Theme struct {
	Status  lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
}

var defaultTheme = Theme{
	Status:  lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Error:   lipgloss.Color("#FF005F"), // red
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

type tickMsg time.Time

type jobUpdateMsg struct {
	job *models.IngestionJob
	err error
}

// progressModel is the bubbletea model for a running ingestion job.
type progressModel struct {
	ctx      context.Context
	jobs     jobSource
	jobID    string
	job      *models.IngestionJob
	progress progress.Model
	theme    Theme
	done     bool
	quitting bool
	err      error
}

func newProgressModel(ctx context.Context, jobs jobSource, job *models.IngestionJob) progressModel {
	return progressModel{
		ctx:      ctx,
		jobs:     jobs,
		jobID:    job.ID,
		job:      job,
		progress: progress.New(progress.WithDefaultBlend(), progress.WithWidth(40)),
		theme:    defaultTheme,
	}
}

func (m progressModel) Init() tea.Cmd {
	return tea.Batch(tickCmd(), m.progress.Init())
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		return m, m.fetchJob()

	case jobUpdateMsg:
		if msg.err != nil {
			m.err = fmt.Errorf("failed to fetch job status: %w", msg.err)
			m.done = true
			return m, tea.Quit
		}
		m.job = msg.job
		switch m.job.Status {
		case models.JobStatusCompleted:
			m.done = true
			return m, tea.Quit
		case models.JobStatusFailed:
			m.done = true
			m.err = errors.New(m.job.Error)
			return m, tea.Quit
		}
		return m, tickCmd()

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m progressModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m progressModel) renderContent() string {
	if m.done || m.quitting {
		return m.finalView()
	}
	if m.job == nil {
		return "Loading job status...\n"
	}

	p := m.job.Progress
	stage := p.Stage
	if stage == "" {
		stage = string(m.job.Status)
	}
	status := m.theme.statusStyle().Render(fmt.Sprintf("[%s]", stage))
	bar := m.progress.ViewAs(fraction(p))
	counts := fmt.Sprintf("%d pages, %d/%d chunks embedded", p.Pages, p.Embedded+p.Failed, p.Chunks)
	hint := m.theme.hintStyle().Render("Press q to stop watching")

	return fmt.Sprintf("%s %s %s\n%s\n%s\n", status, bar, counts, p.Message, hint)
}

// fraction estimates completion: embedding dominates a job's run time.
func fraction(p models.JobProgress) float64 {
	if p.Chunks == 0 {
		return 0
	}
	if p.Stored > 0 {
		return 1
	}
	return float64(p.Embedded+p.Failed) / float64(p.Chunks)
}

func (m progressModel) finalView() string {
	if m.quitting {
		// The job belongs to this process; leaving cancels it.
		return m.theme.hintStyle().Render(fmt.Sprintf("\nStopped watching job %s.\n", m.jobID))
	}
	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ Job failed: %s\n", m.err))
	}

	var b strings.Builder
	b.WriteString(m.theme.completedStyle().Render("✓ Completed") + "\n\n")
	if m.job != nil {
		p := m.job.Progress
		fmt.Fprintf(&b, "  Pages:    %d\n", p.Pages)
		fmt.Fprintf(&b, "  Chunks:   %d\n", p.Chunks)
		fmt.Fprintf(&b, "  Stored:   %d\n", p.Stored)
		if p.Failed > 0 {
			b.WriteString(m.theme.errorStyle().Render(fmt.Sprintf("  Failed:   %d", p.Failed)) + "\n")
		}
	}
	return b.String()
}

// fetchJob runs as a command so Update never blocks on the store.
func (m progressModel) fetchJob() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(m.ctx, 10*time.Second)
		defer cancel()
		job, err := m.jobs.GetJob(ctx, m.jobID)
		return jobUpdateMsg{job: job, err: err}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// RunJobProgress shows a live progress display until the job finishes.
// It returns the job's failure as an error.
func RunJobProgress(ctx context.Context, jobs jobSource, job *models.IngestionJob) error {
	p := tea.NewProgram(newProgressModel(ctx, jobs, job), tea.WithContext(ctx))

	final, err := p.Run()
	if err != nil {
		return fmt.Errorf("progress UI error: %w", err)
	}
	if m, ok := final.(progressModel); ok && m.err != nil {
		return m.err
	}
	return nil
}
