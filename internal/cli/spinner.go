// internal/cli/spinner.go
package ragask

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/mwiater/ragask/internal/appconfig"
	"github.com/mwiater/ragask/internal/util"
)

// answerWidth is the column answers are wrapped at on a terminal.
const answerWidth = 100

var (
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	answerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
)

// statusMsg replaces the text shown next to the spinner.
type statusMsg string

// printMsg is a console line printed above the spinner.
type printMsg string

// stopMsg clears the spinner line and ends the program.
type stopMsg struct{}

// progressModel is a one-line spinner with a status message.
type progressModel struct {
	spinner  spinner.Model
	status   string
	quitting bool
}

func newProgressModel() progressModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	return progressModel{spinner: s, status: "Starting"}
}

func (m progressModel) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case statusMsg:
		m.status = string(msg)
		return m, nil
	case printMsg:
		return m, tea.Println(string(msg))
	case stopMsg:
		m.quitting = true
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m progressModel) View() string {
	if m.quitting {
		return ""
	}
	return fmt.Sprintf("%s %s\n", m.spinner.View(), statusStyle.Render(m.status+"..."))
}

// progress drives a progressModel in the background. A disabled progress only passes
// console writes through to out, which is what non-interactive runs get.
type progress struct {
	out     io.Writer
	program *tea.Program
	done    chan struct{}

	mu      sync.Mutex
	stopped bool
}

func startProgress(out io.Writer, enabled bool) *progress {
	p := &progress{out: out}
	if !enabled {
		return p
	}

	p.program = tea.NewProgram(newProgressModel(),
		tea.WithOutput(out),
		tea.WithInput(nil),
		tea.WithoutSignalHandler(),
	)
	p.done = make(chan struct{})
	go func() {
		defer close(p.done)
		_, _ = p.program.Run()
	}()
	return p
}

// Set updates the status text.
func (p *progress) Set(status string) {
	if p.program == nil {
		return
	}
	p.program.Send(statusMsg(status))
}

// Write prints console lines above the spinner while it runs and straight to out otherwise.
func (p *progress) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.program == nil || p.stopped {
		return p.out.Write(b)
	}
	p.program.Send(printMsg(strings.TrimRight(string(b), "\n")))
	return len(b), nil
}

// Stop clears the spinner and waits for the terminal to be released. It is safe to call
// more than once.
func (p *progress) Stop() {
	if p.program == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	p.stopped = true
	p.program.Send(stopMsg{})
	<-p.done
}

// spinnerEnabled reports whether out is an interactive terminal and debug output is off.
func spinnerEnabled(cfg *appconfig.Config, out io.Writer) bool {
	if cfg != nil && cfg.Debug {
		return false
	}
	return isTerminal(out)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// answerRenderer styles answers written to a terminal and leaves piped output untouched.
func answerRenderer(out io.Writer) func(string) string {
	if !isTerminal(out) {
		return func(s string) string { return s }
	}
	return func(s string) string { return answerStyle.Render(util.WrapAnswer(s, answerWidth)) }
}
