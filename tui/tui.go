// Package tui holds the prompt shown before the editor starts.
package tui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// ErrCancelled is returned when the user quits the prompt.
var ErrCancelled = errors.New("prompt cancelled")

// Session is what the prompt collects.
type Session struct {
	DocID string
	Token string
}

// Prompt asks for the fields of s that are empty.
func Prompt(s Session) (Session, error) {
	m := initialModel(s)
	if len(m.inputs) == 0 {
		return s, nil
	}

	p := tea.NewProgram(m)
	final, err := p.StartReturningModel()
	if err != nil {
		return s, err
	}

	fm := final.(model)
	if fm.quitting {
		return s, ErrCancelled
	}
	return fm.session(), nil
}

type field struct {
	name  string
	input textinput.Model
}

type model struct {
	base     Session
	inputs   []field
	focus    int
	quitting bool
	done     bool
	err      error
}

func initialModel(s Session) model {
	m := model{base: s}

	if s.DocID == "" {
		ti := textinput.New()
		ti.Placeholder = "Document ID"
		ti.CharLimit = 128
		ti.Width = 40
		m.inputs = append(m.inputs, field{name: "doc", input: ti})
	}
	if s.Token == "" {
		ti := textinput.New()
		ti.Placeholder = "Token"
		ti.CharLimit = 4096
		ti.Width = 40
		ti.EchoMode = textinput.EchoPassword
		ti.EchoCharacter = '•'
		m.inputs = append(m.inputs, field{name: "token", input: ti})
	}

	if len(m.inputs) > 0 {
		m.inputs[0].input.Focus()
	}
	return m
}

func (m model) session() Session {
	s := m.base
	for _, f := range m.inputs {
		v := strings.TrimSpace(f.input.Value())
		switch f.name {
		case "doc":
			s.DocID = v
		case "token":
			s.Token = v
		}
	}
	return s
}

func (m model) Init() tea.Cmd {
	return textinput.Blink
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.quitting = true
			return m, tea.Quit

		case tea.KeyEnter:
			if strings.TrimSpace(m.inputs[m.focus].input.Value()) == "" {
				m.err = fmt.Errorf("%s is required", m.inputs[m.focus].input.Placeholder)
				return m, nil
			}
			m.err = nil
			if m.focus == len(m.inputs)-1 {
				m.done = true
				return m, tea.Quit
			}
			m.inputs[m.focus].input.Blur()
			m.focus++
			m.inputs[m.focus].input.Focus()
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.inputs[m.focus].input, cmd = m.inputs[m.focus].input.Update(msg)
	return m, cmd
}

func (m model) View() string {
	if m.quitting {
		return "\n  See you later!\n\n"
	}
	if m.done {
		return ""
	}

	var b strings.Builder
	b.WriteString("Open a document:\n\n")
	for _, f := range m.inputs {
		b.WriteString(f.input.View())
		b.WriteString("\n")
	}
	if m.err != nil {
		fmt.Fprintf(&b, "\n%s\n", m.err)
	}
	b.WriteString("\n(enter to continue, esc to quit)\n")
	return b.String()
}
