package indexer

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Progress reports how many entries an indexing run has added so far.
// Indexer calls Update once per entry added to the context (streamed by
// FetchAll on the full path, or taken from the diff on the incremental
// path) and Done once at the end of every successful run, an unchanged
// one included; implementations must tolerate calls after Done (a no-op).
type Progress interface {
	Update(filesSeen int)
	Done(result string)
}

// NewProgress picks a single-updating-line bubbletea renderer when out
// is a terminal, and a periodic slog.Info progress line otherwise (CI,
// pipes, redirected logs).
func NewProgress(out io.Writer, logger *slog.Logger) Progress {
	if logger == nil {
		logger = slog.Default()
	}
	if f, ok := out.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		return newTeaProgress(f)
	}
	return &logProgress{logger: logger, interval: 2 * time.Second}
}

// logProgress logs a progress line no more often than interval, for
// non-TTY output (CI, pipes, redirected logs).
type logProgress struct {
	mu       sync.Mutex
	logger   *slog.Logger
	interval time.Duration
	last     time.Time
}

func (p *logProgress) Update(filesSeen int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if time.Since(p.last) < p.interval {
		return
	}
	p.last = time.Now()
	p.logger.Info("indexing in progress", slog.Int("filesSeen", filesSeen))
}

func (p *logProgress) Done(result string) {
	p.logger.Info("indexing complete", slog.String("result", result))
}

// teaProgress renders a single updating status line via bubbletea,
// without the alternate screen buffer, since only one line ever needs
// to be in flight.
type teaProgress struct {
	program *tea.Program
}

func newTeaProgress(out *os.File) *teaProgress {
	m := progressModel{}
	p := tea.NewProgram(m, tea.WithOutput(out))
	go func() { _, _ = p.Run() }()
	return &teaProgress{program: p}
}

func (p *teaProgress) Update(filesSeen int) {
	p.program.Send(progressTickMsg{filesSeen: filesSeen})
}

func (p *teaProgress) Done(result string) {
	p.program.Send(progressDoneMsg{result: result})
}

type progressTickMsg struct{ filesSeen int }
type progressDoneMsg struct{ result string }

type progressModel struct {
	filesSeen int
	done      bool
	result    string
}

func (m progressModel) Init() tea.Cmd { return nil }

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch v := msg.(type) {
	case progressTickMsg:
		m.filesSeen = v.filesSeen
		return m, nil
	case progressDoneMsg:
		m.done = true
		m.result = v.result
		return m, tea.Quit
	case tea.KeyMsg:
		if v.String() == "ctrl+c" {
			return m, tea.Quit
		}
	}
	return m, nil
}

var progressStyle = lipgloss.NewStyle().Faint(true)

func (m progressModel) View() string {
	if m.done {
		return fmt.Sprintf("indexed %s\n", m.result)
	}
	return progressStyle.Render(fmt.Sprintf("indexing… %d files", m.filesSeen))
}

// noopProgress discards every update, used where the caller does not
// want progress reporting (e.g. the webhook handler).
type noopProgress struct{}

func (noopProgress) Update(int)  {}
func (noopProgress) Done(string) {}

// NoopProgress is the Progress that discards all updates.
var NoopProgress Progress = noopProgress{}
