package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	stateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

// historyLimit bounds the transcript kept on screen.
const historyLimit = 20

type entry struct {
	input  string
	output string
	err    error
}

type interactiveModel struct {
	ctx     context.Context
	session *session
	input   textinput.Model
	history []entry
	// recall indexes history while browsing with up/down; -1 when idle.
	recall  int
	busy    bool
	quitting bool
}

type resultMsg struct {
	entry
	quit bool
}

func newInteractiveModel(ctx context.Context, s *session) *interactiveModel {
	ti := textinput.New()
	ti.Prompt = promptStyle.Render(">>> ")
	ti.Placeholder = "statement or :help"
	ti.Width = 72
	ti.Focus()
	return &interactiveModel{ctx: ctx, session: s, input: ti, recall: -1}
}

func (m *interactiveModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m *interactiveModel) submit(line string) tea.Cmd {
	return func() tea.Msg {
		out, err := m.session.handle(m.ctx, line)
		if err == errQuit {
			return resultMsg{quit: true}
		}
		return resultMsg{entry: entry{input: line, output: out, err: err}}
	}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "ctrl+d":
			m.quitting = true
			return m, tea.Quit

		case "enter":
			if m.busy {
				return m, nil
			}
			line := strings.TrimSpace(m.input.Value())
			if line == "" {
				return m, nil
			}
			m.busy = true
			m.recall = -1
			m.input.Reset()
			return m, m.submit(line)

		case "up":
			if len(m.history) == 0 {
				return m, nil
			}
			if m.recall < 0 {
				m.recall = len(m.history)
			}
			if m.recall > 0 {
				m.recall--
			}
			m.input.SetValue(m.history[m.recall].input)
			m.input.CursorEnd()
			return m, nil

		case "down":
			if m.recall < 0 {
				return m, nil
			}
			m.recall++
			if m.recall >= len(m.history) {
				m.recall = -1
				m.input.Reset()
				return m, nil
			}
			m.input.SetValue(m.history[m.recall].input)
			m.input.CursorEnd()
			return m, nil
		}

	case resultMsg:
		m.busy = false
		if msg.quit {
			m.quitting = true
			return m, tea.Quit
		}
		m.history = append(m.history, msg.entry)
		if len(m.history) > historyLimit {
			m.history = m.history[len(m.history)-historyLimit:]
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *interactiveModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("hotpatch console"))
	b.WriteString(" ")
	b.WriteString(m.session.file)
	b.WriteString("\n")
	b.WriteString(stateStyle.Render(strings.ReplaceAll(formatState(m.session.c.State()), "\n", "  ")))
	b.WriteString("\n\n")

	for _, e := range m.history {
		b.WriteString(promptStyle.Render(">>> "))
		b.WriteString(e.input)
		b.WriteString("\n")
		switch {
		case e.err != nil:
			b.WriteString(errorStyle.Render(fmt.Sprintf("error: %v", e.err)))
			b.WriteString("\n")
		case e.output != "":
			b.WriteString(resultStyle.Render(e.output))
			b.WriteString("\n")
		}
	}

	b.WriteString(m.input.View())
	b.WriteString("\n\n")
	b.WriteString(helpStyle.Render("enter run • ↑/↓ history • :help commands • ctrl+c quit"))
	return b.String()
}

func runInteractive(ctx context.Context, s *session) error {
	p := tea.NewProgram(newInteractiveModel(ctx, s), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
