package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/go-go-golems/mangiafuoco/pkg/events"
	"github.com/go-go-golems/mangiafuoco/pkg/server"
)

const maxVisibleLines = 20

var spinnerFrames = []string{"|", "/", "-", "\\"}

type eventMsg struct{ e events.Event }

type doneMsg struct {
	outcome *server.Outcome
	err     error
}

type tickMsg time.Time

// taskModel is a minimal live view of one running task: a header with
// elapsed time, the tail of the event stream, and a final status line.
type taskModel struct {
	taskID  string
	started time.Time
	lines   []string
	frame   int
	done    bool
	err     error

	cancel context.CancelFunc
}

func newTaskModel(taskID string, cancel context.CancelFunc) taskModel {
	return taskModel{
		taskID:  taskID,
		started: time.Now(),
		cancel:  cancel,
	}
}

func (m taskModel) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m taskModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.cancel()
			return m, nil
		}
	case tickMsg:
		m.frame++
		if m.done {
			return m, nil
		}
		return m, tick()
	case eventMsg:
		var buf bytes.Buffer
		if err := events.TaskPrinterFunc(&buf)(msg.e); err == nil && buf.Len() > 0 {
			for _, line := range strings.Split(strings.TrimRight(buf.String(), "\n"), "\n") {
				m.lines = append(m.lines, line)
			}
			if len(m.lines) > maxVisibleLines {
				m.lines = m.lines[len(m.lines)-maxVisibleLines:]
			}
		}
	case doneMsg:
		m.done = true
		m.err = msg.err
		return m, tea.Quit
	}
	return m, nil
}

func (m taskModel) View() string {
	var b strings.Builder
	elapsed := time.Since(m.started).Round(time.Second)
	switch {
	case !m.done:
		fmt.Fprintf(&b, "%s task %s running (%s, q to cancel)\n\n",
			spinnerFrames[m.frame%len(spinnerFrames)], m.taskID, elapsed)
	case m.err != nil:
		fmt.Fprintf(&b, "task %s failed after %s: %s\n\n", m.taskID, elapsed, m.err)
	default:
		fmt.Fprintf(&b, "task %s completed in %s\n\n", m.taskID, elapsed)
	}
	for _, line := range m.lines {
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}

// runWithTUI executes the task while rendering live events. Pressing q
// cancels the task through the shared context.
func runWithTUI(ctx context.Context, rt *runtime, taskID, description, taskType string) (*server.Outcome, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ch, err := rt.bus.Subscribe(ctx, taskID)
	if err != nil {
		return nil, err
	}

	p := tea.NewProgram(newTaskModel(taskID, cancel), tea.WithOutput(os.Stderr))

	go func() {
		for e := range ch {
			p.Send(eventMsg{e: e})
		}
	}()

	result := make(chan doneMsg, 1)
	go func() {
		outcome, err := rt.orchestrator.ExecuteTask(ctx, taskID, description, taskType)
		msg := doneMsg{outcome: outcome, err: err}
		result <- msg
		p.Send(msg)
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		return nil, err
	}
	msg := <-result
	return msg.outcome, msg.err
}
