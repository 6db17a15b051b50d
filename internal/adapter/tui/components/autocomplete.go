package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"lattice/internal/adapter/tui/theme"
)

// CommandDef describes a slash command for the popup.
type CommandDef struct {
	Name        string // e.g. "/help"
	Usage       string // argument hint, e.g. "<id>"
	Description string
}

// AutocompleteModel filters a popup of slash commands, then of arguments
// for commands that have registered candidates (thread ids, agent ids,
// model names).
type AutocompleteModel struct {
	Commands []CommandDef
	Filtered []CommandDef
	Selected int
	Visible  bool
	args     map[string][]string
	maxShow  int
	width    int
}

func NewAutocomplete(commands []CommandDef) AutocompleteModel {
	return AutocompleteModel{
		Commands: commands,
		args:     make(map[string][]string),
		maxShow:  7,
	}
}

func (m *AutocompleteModel) SetWidth(w int) {
	m.width = w
}

// SetArgs registers argument candidates for command.
func (m *AutocompleteModel) SetArgs(command string, candidates []string) {
	if m.args == nil {
		m.args = make(map[string][]string)
	}
	m.args[command] = candidates
}

// Filter recomputes the popup for the current input value.
func (m *AutocompleteModel) Filter(value string) {
	if !strings.HasPrefix(value, "/") || strings.Contains(value, "\n") {
		m.Hide()
		return
	}
	cmd, rest, hasArg := strings.Cut(value, " ")
	cmd = strings.ToLower(cmd)

	m.Filtered = nil
	if !hasArg {
		for _, c := range m.Commands {
			if strings.HasPrefix(c.Name, cmd) {
				m.Filtered = append(m.Filtered, c)
			}
		}
	} else if !strings.Contains(rest, " ") {
		needle := strings.ToLower(rest)
		for _, cand := range m.args[cmd] {
			if strings.HasPrefix(strings.ToLower(cand), needle) && cand != rest {
				m.Filtered = append(m.Filtered, CommandDef{Name: cmd + " " + cand})
			}
		}
	}
	m.Visible = len(m.Filtered) > 0
	if m.Selected >= len(m.Filtered) {
		m.Selected = 0
	}
}

func (m *AutocompleteModel) Hide() {
	m.Visible = false
	m.Filtered = nil
	m.Selected = 0
}

func (m *AutocompleteModel) SelectNext() {
	if len(m.Filtered) == 0 {
		return
	}
	m.Selected = (m.Selected + 1) % len(m.Filtered)
}

func (m *AutocompleteModel) SelectPrev() {
	if len(m.Filtered) == 0 {
		return
	}
	m.Selected = (m.Selected - 1 + len(m.Filtered)) % len(m.Filtered)
}

// Accept returns the selected entry and hides the popup.
func (m *AutocompleteModel) Accept() string {
	if len(m.Filtered) == 0 {
		return ""
	}
	name := m.Filtered[m.Selected].Name
	m.Hide()
	return name
}

func (m AutocompleteModel) View() string {
	if !m.Visible || len(m.Filtered) == 0 {
		return ""
	}
	popupWidth := max(m.width-4, 30)

	show := m.Filtered
	if len(show) > m.maxShow {
		show = show[:m.maxShow]
	}

	lines := make([]string, 0, len(show))
	for i, c := range show {
		label := c.Name
		if c.Usage != "" {
			label += " " + c.Usage
		}
		const nameW = 18
		if len(label) < nameW {
			label += strings.Repeat(" ", nameW-len(label))
		}
		desc := c.Description
		if maxDesc := popupWidth - nameW - 4; maxDesc > 0 && len(desc) > maxDesc {
			desc = desc[:maxDesc-1] + theme.SymbolEllipsis
		}
		line := label + " " + theme.TextMuted.Render(desc)
		if i == m.Selected {
			line = theme.TextInfo.Render(theme.SymbolArrowR+" ") + line
		} else {
			line = "  " + line
		}
		lines = append(lines, line)
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(theme.ColorBorderActive).
		Padding(0, 1).
		Render(strings.Join(lines, "\n"))
}
