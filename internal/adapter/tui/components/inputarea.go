package components

import (
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"lattice/internal/adapter/tui/theme"
)

// InputSubmitMsg carries a submitted, trimmed, non-empty input line.
type InputSubmitMsg struct {
	Value string
}

const maxHistory = 100

// InputAreaModel wraps a textarea with slash-command autocomplete and
// Up/Down recall of earlier submissions.
type InputAreaModel struct {
	Textarea     textarea.Model
	Autocomplete AutocompleteModel
	Enabled      bool

	history []string
	cursor  int // index into history while recalling; len(history) = editing
	draft   string
}

func NewInputArea() InputAreaModel {
	ta := textarea.New()
	ta.Placeholder = "Ask something... (/help)"
	ta.Prompt = "> "
	ta.ShowLineNumbers = false
	ta.CharLimit = 0
	ta.SetHeight(3)
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.FocusedStyle.Prompt = theme.InputPrompt
	ta.FocusedStyle.Placeholder = theme.InputPlaceholder
	ta.Focus()

	return InputAreaModel{
		Textarea: ta,
		Enabled:  true,
	}
}

func (m *InputAreaModel) SetWidth(w int) {
	m.Textarea.SetWidth(w - 2)
	m.Autocomplete.SetWidth(w)
}

// SetEnabled toggles input, e.g. while a turn is running.
func (m *InputAreaModel) SetEnabled(enabled bool) {
	m.Enabled = enabled
	if enabled {
		m.Textarea.Focus()
	} else {
		m.Textarea.Blur()
	}
}

func (m InputAreaModel) Value() string {
	return m.Textarea.Value()
}

// ParseSlashCommand splits "/cmd a b" into "/cmd" (lower-cased) and its args.
func ParseSlashCommand(input string) (cmd string, args []string, ok bool) {
	input = strings.TrimSpace(input)
	if !strings.HasPrefix(input, "/") {
		return "", nil, false
	}
	parts := strings.Fields(input)
	return strings.ToLower(parts[0]), parts[1:], true
}

// Update handles keys. Enter submits; Alt+Enter inserts a newline through
// the textarea. With the popup open, Tab and arrows move the selection.
func (m InputAreaModel) Update(msg tea.Msg) (InputAreaModel, tea.Cmd) {
	if !m.Enabled {
		return m, nil
	}
	if _, ok := msg.(tea.MouseMsg); ok {
		return m, nil
	}

	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		if m.Autocomplete.Visible {
			switch keyMsg.Type {
			case tea.KeyTab, tea.KeyDown:
				m.Autocomplete.SelectNext()
				return m, nil
			case tea.KeyShiftTab, tea.KeyUp:
				m.Autocomplete.SelectPrev()
				return m, nil
			case tea.KeyEnter:
				if accepted := m.Autocomplete.Accept(); accepted != "" {
					m.Textarea.SetValue(accepted + " ")
					m.Textarea.CursorEnd()
				}
				return m, nil
			case tea.KeyEsc:
				m.Autocomplete.Hide()
				return m, nil
			}
		}

		switch keyMsg.Type {
		case tea.KeyEnter:
			if keyMsg.Alt {
				m.Textarea.InsertString("\n")
				return m, nil
			}
			value := strings.TrimSpace(m.Textarea.Value())
			if value == "" {
				return m, nil
			}
			m.remember(value)
			m.Textarea.Reset()
			m.Autocomplete.Hide()
			return m, func() tea.Msg { return InputSubmitMsg{Value: value} }
		case tea.KeyUp:
			if m.Textarea.Line() == 0 && m.recall(-1) {
				return m, nil
			}
		case tea.KeyDown:
			if m.Textarea.Line() == m.Textarea.LineCount()-1 && m.recall(1) {
				return m, nil
			}
		}
	}

	var cmd tea.Cmd
	m.Textarea, cmd = m.Textarea.Update(msg)
	m.Autocomplete.Filter(m.Textarea.Value())
	return m, cmd
}

func (m *InputAreaModel) remember(value string) {
	if n := len(m.history); n == 0 || m.history[n-1] != value {
		m.history = append(m.history, value)
		if len(m.history) > maxHistory {
			m.history = m.history[len(m.history)-maxHistory:]
		}
	}
	m.cursor = len(m.history)
	m.draft = ""
}

// recall moves through history by delta and reports whether it did.
func (m *InputAreaModel) recall(delta int) bool {
	next := m.cursor + delta
	if next < 0 || next > len(m.history) || len(m.history) == 0 {
		return false
	}
	if m.cursor == len(m.history) {
		m.draft = m.Textarea.Value()
	}
	m.cursor = next
	if next == len(m.history) {
		m.Textarea.SetValue(m.draft)
	} else {
		m.Textarea.SetValue(m.history[next])
	}
	m.Textarea.CursorEnd()
	return true
}

// View renders the input with the autocomplete popup above it.
func (m InputAreaModel) View() string {
	if popup := m.Autocomplete.View(); popup != "" {
		return popup + "\n" + m.Textarea.View()
	}
	return m.Textarea.View()
}
