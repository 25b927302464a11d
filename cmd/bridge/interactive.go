package main

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/wasm-bridge/signature"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

const logLines = 6

// logBuffer keeps the last lines written by plugins and the bridge logger.
type logBuffer struct {
	lines []string
	mu    sync.Mutex
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, line := range strings.Split(strings.TrimRight(string(p), "\n"), "\n") {
		b.lines = append(b.lines, line)
	}
	if n := len(b.lines); n > logLines {
		b.lines = append(b.lines[:0], b.lines[n-logLines:]...)
	}
	return len(p), nil
}

func (b *logBuffer) tail() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.lines...)
}

type interactiveModel struct {
	err      error
	session  *session
	logs     *logBuffer
	dir      string
	result   string
	inputs   []textinput.Model
	selected int
	focusIdx int
	state    modelState
}

type modelState int

const (
	stateSelectFunc modelState = iota
	stateInputArgs
	stateShowResult
)

type loadedMsg struct {
	err     error
	session *session
}

type callResultMsg struct {
	err    error
	result string
}

func newInteractiveModel(dir string) *interactiveModel {
	return &interactiveModel{dir: dir, logs: &logBuffer{}, state: stateSelectFunc}
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.loadPlugins
}

func (m *interactiveModel) loadPlugins() tea.Msg {
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig()),
		zapcore.AddSync(m.logs),
		zapcore.DebugLevel)
	s, err := openSession(context.Background(), m.dir, zap.New(core), m.logs)
	return loadedMsg{session: s, err: err}
}

func (m *interactiveModel) shutdown() {
	if m.session != nil {
		m.session.close(context.Background())
		m.session = nil
	}
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.state != stateInputArgs || msg.String() == "ctrl+c" {
				m.shutdown()
				return m, tea.Quit
			}

		case "up", "k":
			if m.state == stateSelectFunc && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectFunc && m.session != nil && m.selected < len(m.session.names)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelectFunc:
				if m.session == nil || len(m.session.names) == 0 {
					return m, nil
				}
				m.prepareInputs()
				if len(m.inputs) == 0 {
					return m, m.callMethod
				}
				m.state = stateInputArgs

			case stateInputArgs:
				return m, m.callMethod

			case stateShowResult:
				m.state = stateSelectFunc
				m.result = ""
				m.err = nil
			}

		case "tab":
			if m.state == stateInputArgs && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}

		case "esc":
			switch m.state {
			case stateInputArgs:
				m.state = stateSelectFunc
				m.inputs = nil
			case stateShowResult:
				m.state = stateSelectFunc
				m.result = ""
				m.err = nil
			}
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.session = msg.session

	case callResultMsg:
		m.result = msg.result
		m.err = msg.err
		m.state = stateShowResult
	}

	if m.state == stateInputArgs {
		var cmds []tea.Cmd
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m *interactiveModel) current() exported {
	return m.session.methods[m.session.names[m.selected]]
}

func (m *interactiveModel) prepareInputs() {
	x := m.current()
	params := x.desc.Params()
	m.inputs = make([]textinput.Model, len(params))
	for i, p := range params {
		ti := textinput.New()
		ti.Placeholder = typeName(p)
		ti.Prompt = fmt.Sprintf("p%d: ", i)
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

func (m *interactiveModel) callMethod() tea.Msg {
	x := m.current()
	raw := make([]string, len(m.inputs))
	for i, input := range m.inputs {
		raw[i] = input.Value()
	}
	res, err := m.session.call(x.name, raw)
	return callResultMsg{result: res, err: err}
}

func typeName(p signature.Param) string {
	s := signature.WITName(p.Type.WIT())
	if p.Ref {
		s = "ref " + s
	}
	return s
}

func (m *interactiveModel) View() string {
	if m.err != nil && m.state != stateShowResult {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}
	if m.session == nil {
		return "Loading plugins..."
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Bridge Runner"))
	b.WriteString(" ")
	b.WriteString(m.dir)
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectFunc:
		if len(m.session.names) == 0 {
			b.WriteString("No exported methods.\n")
			break
		}
		b.WriteString("Select a method to call:\n\n")
		for i, name := range m.session.names {
			line := m.formatMethod(m.session.methods[name])
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + line))
			} else {
				b.WriteString("  " + line)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter call • q quit"))

	case stateInputArgs:
		x := m.current()
		b.WriteString(fmt.Sprintf("Calling %s\n\n", funcStyle.Render(x.name)))
		for i, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString(" ")
			b.WriteString(typeStyle.Render(typeName(x.desc.Param(i))))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter call • esc back"))

	case stateShowResult:
		x := m.current()
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", funcStyle.Render(x.name)))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	if lines := m.logs.tail(); len(lines) > 0 {
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render(strings.Join(lines, "\n")))
	}
	return b.String()
}

func (m *interactiveModel) formatMethod(x exported) string {
	var params []string
	for i, p := range x.desc.Params() {
		params = append(params, fmt.Sprintf("p%d: ", i)+typeStyle.Render(typeName(p)))
	}
	result := ""
	if r := x.desc.Return(); r != signature.Void {
		result = " -> " + typeStyle.Render(signature.WITName(r.WIT()))
	}
	return funcStyle.Render(x.name) + "(" + strings.Join(params, ", ") + ")" + result
}

func runInteractive(_ context.Context, dir string) error {
	m := newInteractiveModel(dir)
	p := tea.NewProgram(m, tea.WithAltScreen())
	_, err := p.Run()
	m.shutdown()
	return err
}
