package components

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"lattice/internal/adapter/tui/theme"
	"lattice/internal/domain"
)

// MessageRole identifies who a rendered line belongs to. The first four
// mirror domain roles; RoleError is local to the terminal.
type MessageRole string

const (
	RoleUser      MessageRole = domain.RoleUser
	RoleAssistant MessageRole = domain.RoleAssistant
	RoleSystem    MessageRole = domain.RoleSystem
	RoleTool      MessageRole = domain.RoleTool
	RoleError     MessageRole = "error"
)

// ChatMessage is one entry in the transcript.
type ChatMessage struct {
	Role      MessageRole
	Content   string
	Agent     string // display name of the answering agent, assistant only
	Model     string
	Rendered  string // cached glamour output; empty means not yet rendered
	Timestamp time.Time
}

// FromDomain converts stored thread history for display. agent labels
// assistant messages.
func FromDomain(msgs []domain.Message, agent string) []ChatMessage {
	out := make([]ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		cm := ChatMessage{Role: MessageRole(m.Role), Content: m.Content, Timestamp: m.Timestamp}
		if m.Role == domain.RoleAssistant {
			cm.Agent = agent
		}
		if m.Role == domain.RoleTool && m.Name != "" {
			cm.Content = m.Name + ": " + m.Content
		}
		out = append(out, cm)
	}
	return out
}

// MessageListModel is an ordered transcript with an optional size cap.
type MessageListModel struct {
	Messages    []ChatMessage
	MaxMessages int // 0 = unlimited
	trimCount   int
	width       int
	mdRenderer  *glamour.TermRenderer
}

func NewMessageList() MessageListModel {
	return MessageListModel{}
}

// SetWidth updates the rendering width and drops cached renders.
func (m *MessageListModel) SetWidth(w int) {
	if w == m.width {
		return
	}
	m.width = w
	m.mdRenderer = nil
	for i := range m.Messages {
		m.Messages[i].Rendered = ""
	}
}

func (m *MessageListModel) SetMaxMessages(max int) {
	m.MaxMessages = max
}

// TrimmedIndicator describes how many old messages were dropped, or "".
func (m *MessageListModel) TrimmedIndicator() string {
	if m.trimCount == 0 {
		return ""
	}
	return fmt.Sprintf("(%d older messages trimmed)", m.trimCount)
}

// Add appends msg, dropping the oldest entries beyond MaxMessages.
func (m *MessageListModel) Add(msg ChatMessage) {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	m.Messages = append(m.Messages, msg)
	if m.MaxMessages > 0 && len(m.Messages) > m.MaxMessages {
		excess := len(m.Messages) - m.MaxMessages
		m.Messages = m.Messages[excess:]
		m.trimCount += excess
	}
}

func (m *MessageListModel) Clear() {
	m.Messages = nil
	m.trimCount = 0
}

// View renders the whole transcript.
func (m *MessageListModel) View() string {
	if len(m.Messages) == 0 {
		return theme.TextMuted.Render("  No messages yet. Type a message or /help.")
	}

	width := ContentWidth(m.width)
	var sb strings.Builder
	if indicator := m.TrimmedIndicator(); indicator != "" {
		sb.WriteString(theme.TextMuted.Render("  "+indicator) + "\n\n")
	}
	for i := range m.Messages {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(m.renderMessage(&m.Messages[i], width))
	}
	return sb.String()
}

func (m *MessageListModel) renderMessage(msg *ChatMessage, width int) string {
	header := roleLabel(msg)
	if ts := RelativeTime(msg.Timestamp); ts != "" {
		header += " " + theme.Timestamp.Render(ts)
	}

	var body string
	switch msg.Role {
	case RoleAssistant:
		if msg.Rendered == "" {
			msg.Rendered = m.renderMarkdown(msg.Content, width)
		}
		body = strings.TrimRight(msg.Rendered, "\n")
	case RoleError:
		body = "  " + theme.TextError.Render(wrapText(msg.Content, width-2))
	case RoleSystem, RoleTool:
		body = "  " + theme.TextMuted.Render(wrapText(msg.Content, width-2))
	default:
		body = "  " + wrapText(msg.Content, width-2)
	}
	if strings.TrimSpace(body) == "" {
		return header
	}
	return header + "\n" + body
}

func roleLabel(msg *ChatMessage) string {
	switch msg.Role {
	case RoleUser:
		return theme.UserLabel.Render(theme.SymbolUser)
	case RoleAssistant:
		name := msg.Agent
		if name == "" {
			name = "Agent"
		}
		if msg.Model != "" {
			return theme.AgentLabel.Render(name) + theme.TextMuted.Render(" ("+msg.Model+")")
		}
		return theme.AgentLabel.Render(name)
	case RoleSystem:
		return theme.SystemLabel.Render("System")
	case RoleTool:
		return theme.SystemLabel.Render(theme.SymbolArrowR + " Tool")
	case RoleError:
		return theme.ErrorLabel.Render(theme.SymbolError + " Error")
	default:
		return theme.TextMuted.Render(string(msg.Role))
	}
}

func (m *MessageListModel) renderMarkdown(content string, width int) string {
	if m.mdRenderer == nil {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(width),
		)
		if err != nil {
			return "  " + content
		}
		m.mdRenderer = r
	}
	rendered, err := m.mdRenderer.Render(content)
	if err != nil {
		return "  " + content
	}
	return rendered
}

// RelativeTime formats t relative to now; zero times render as "".
func RelativeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return t.Format("Jan 2 15:04")
	}
}

// wrapText wraps s at width runes, indenting continuation lines by two
// spaces. Existing newlines are kept.
func wrapText(s string, width int) string {
	if width <= 0 {
		return s
	}
	paragraphs := strings.Split(s, "\n")
	for i, p := range paragraphs {
		paragraphs[i] = wrapLine(p, width)
	}
	return strings.Join(paragraphs, "\n  ")
}

func wrapLine(s string, width int) string {
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	var lines []string
	for len(runes) > width {
		idx := -1
		for i := width - 1; i > 0; i-- {
			if runes[i] == ' ' {
				idx = i
				break
			}
		}
		if idx <= 0 {
			idx = width
		}
		lines = append(lines, string(runes[:idx]))
		runes = runes[idx:]
		for len(runes) > 0 && runes[0] == ' ' {
			runes = runes[1:]
		}
	}
	if len(runes) > 0 {
		lines = append(lines, string(runes))
	}
	return strings.Join(lines, "\n  ")
}

// ContentWidth is the body width for a terminal termWidth columns wide.
func ContentWidth(termWidth int) int {
	return theme.ClampWidth(termWidth-4, 40, theme.MaxContentWidth)
}

// Divider renders a horizontal rule width columns wide.
func Divider(width int) string {
	if width <= 0 {
		return ""
	}
	return lipgloss.NewStyle().
		Foreground(theme.ColorBorder).
		Render(strings.Repeat("─", width))
}
