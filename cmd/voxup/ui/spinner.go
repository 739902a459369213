package ui

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// elapsedAfter is how long an operation runs before the spinner grows a
// running clock. Model downloads and lfs fetches routinely take minutes;
// the clock tells the operator the process is alive, not hung.
const elapsedAfter = 3 * time.Second

// RunWithSpinner runs op while animating msg on stderr, adding an
// elapsed-time suffix once the operation takes noticeable time. In
// non-interactive mode the message is printed once and op runs
// synchronously. Ctrl+C cancels op's context.
func RunWithSpinner(ctx context.Context, msg string, op func(ctx context.Context) error) error {
	if IsNoInteraction() {
		fmt.Fprintln(os.Stderr, msg+"...")
		return op(ctx)
	}

	opCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := &spinView{
		frames: spinner.New(
			spinner.WithSpinner(spinner.MiniDot),
			spinner.WithStyle(AccentStyle),
		),
		msg:     msg,
		started: time.Now(),
	}
	prog := tea.NewProgram(m, tea.WithOutput(os.Stderr), tea.WithContext(ctx))

	go func() {
		prog.Send(opFinished{err: op(opCtx)})
	}()

	if _, err := prog.Run(); err != nil {
		return fmt.Errorf("spinner: %w", err)
	}
	if m.interrupted {
		return context.Canceled
	}
	return m.result
}

// opFinished carries op's error back into the render loop.
type opFinished struct{ err error }

type spinView struct {
	frames  spinner.Model
	msg     string
	started time.Time

	result      error
	finished    bool
	interrupted bool
}

func (m *spinView) Init() tea.Cmd { return m.frames.Tick }

func (m *spinView) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case opFinished:
		m.result = msg.err
		m.finished = true
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.interrupted = true
			return m, tea.Quit
		}
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.frames, cmd = m.frames.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *spinView) View() string {
	if m.finished || m.interrupted {
		return ""
	}
	line := m.frames.View() + " " + m.msg
	if since := time.Since(m.started); since >= elapsedAfter {
		line += " " + MutedStyle.Render(elapsedLabel(since))
	}
	return line + "\n"
}

func elapsedLabel(d time.Duration) string {
	d = d.Round(time.Second)
	if d < time.Minute {
		return fmt.Sprintf("(%ds)", int(d.Seconds()))
	}
	return fmt.Sprintf("(%dm%02ds)", int(d.Minutes()), int(d.Seconds())%60)
}
