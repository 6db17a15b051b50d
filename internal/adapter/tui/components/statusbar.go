package components

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"lattice/internal/adapter/tui/theme"
)

// KeyHint is one keybinding shown in the status bar.
type KeyHint struct {
	Key  string
	Desc string
}

// StatusBarModel renders the bottom line: key hints on the left and the
// connection plus any transient status on the right.
type StatusBarModel struct {
	Hints      []KeyHint
	Connection string // e.g. "local" or the server URL
	Extra      string // transient status such as "Thinking..."
	width      int
}

func NewStatusBar() StatusBarModel {
	return StatusBarModel{}
}

func (m *StatusBarModel) SetWidth(w int) {
	m.width = w
}

func (m StatusBarModel) View() string {
	hints := make([]string, 0, len(m.Hints))
	for _, h := range m.Hints {
		hints = append(hints, theme.StatusKey.Render(h.Key)+": "+h.Desc)
	}
	left := strings.Join(hints, "  "+theme.Dim.Render("|")+"  ")

	var right []string
	if m.Extra != "" {
		right = append(right, theme.TextInfo.Render(m.Extra))
	}
	if m.Connection != "" {
		right = append(right, theme.TextMuted.Render(m.Connection))
	}
	return theme.StatusBar.Width(m.width).Render(spread(left, strings.Join(right, "  "), m.width-2))
}

// HeaderModel renders the top line naming the session, thread, agent and
// model the next message will use.
type HeaderModel struct {
	Session string
	Thread  string
	Agent   string
	Model   string
	width   int
}

func (m *HeaderModel) SetWidth(w int) {
	m.width = w
}

func (m HeaderModel) View() string {
	left := "lattice " + theme.SymbolBullet + " thread " + m.Thread
	var parts []string
	if m.Agent != "" {
		parts = append(parts, m.Agent)
	}
	if m.Model != "" {
		parts = append(parts, m.Model)
	}
	right := strings.Join(parts, " "+theme.SymbolBullet+" ")
	return theme.Header.Width(m.width).Render(spread(left, right, m.width-2))
}

// spread places left and right at either end of width columns.
func spread(left, right string, width int) string {
	gap := width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right
}
