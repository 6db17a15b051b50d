package chat

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"lattice/internal/adapter/client"
	"lattice/internal/adapter/tui/components"
	"lattice/internal/adapter/tui/theme"
	"lattice/internal/adapter/tui/uxerror"
	"lattice/internal/domain"
)

// ChatModelDeps are injected into the chat model.
type ChatModelDeps struct {
	Session    *Session
	History    []domain.Message
	Connection client.ConnectionInfo
	Logger     *slog.Logger
}

// ChatModel is the root Bubble Tea model.
type ChatModel struct {
	deps ChatModelDeps

	chatView  components.ChatViewModel
	input     components.InputAreaModel
	statusBar components.StatusBarModel
	header    components.HeaderModel
	spinner   spinner.Model

	waiting  bool
	width    int
	height   int
	quitting bool

	// gen increases with every request; results from older gens are dropped.
	gen      uint64
	cancelFn context.CancelFunc
}

// NewChatModel builds the model around an opened session.
func NewChatModel(deps ChatModelDeps) ChatModel {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(theme.ColorInfo)

	input := components.NewInputArea()
	input.Autocomplete = components.NewAutocomplete(Commands)

	sb := components.NewStatusBar()
	sb.Hints = defaultHints()
	sb.Connection = connectionLabel(deps.Connection)

	m := ChatModel{
		deps:      deps,
		chatView:  components.NewChatView(),
		input:     input,
		statusBar: sb,
		spinner:   s,
	}
	m.chatView.SetMaxMessages(1000)
	m.applyState(deps.Session.State())
	m.chatView.Replace(m.transcript(deps.History))
	m.chatView.AddMessage(components.ChatMessage{Role: components.RoleSystem, Content: deps.Connection.StatusMessage()})
	return m
}

func (m ChatModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, completionsCmd(context.Background(), m.deps.Session))
}

func (m ChatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case components.InputSubmitMsg:
		return m.handleSubmit(msg.Value)

	case ChatDoneMsg:
		if msg.Gen != m.gen {
			return m, nil
		}
		m.finish()
		if msg.Err != nil {
			m.showError(msg.Err)
			return m, nil
		}
		replies := make([]domain.Message, 0, len(msg.Resp.Messages))
		for _, nm := range msg.Resp.Messages {
			if nm.Role == domain.RoleAssistant || nm.Role == domain.RoleTool {
				replies = append(replies, nm)
			}
		}
		for _, cm := range components.FromDomain(replies, msg.Resp.AgentName) {
			cm.Model = msg.Resp.Model
			m.chatView.AddMessage(cm)
		}
		return m, nil

	case CommandDoneMsg:
		if msg.Gen != m.gen {
			return m, nil
		}
		m.finish()
		if msg.Err != nil {
			m.showError(msg.Err)
			return m, nil
		}
		return m.applyResult(msg.Result)

	case CompletionsMsg:
		m.input.Autocomplete.SetArgs("/switch", msg.Threads)
		m.input.Autocomplete.SetArgs("/delete", msg.Threads)
		m.input.Autocomplete.SetArgs("/agent", msg.Agents)
		m.input.Autocomplete.SetArgs("/model", msg.Models)
		return m, nil

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	if !m.waiting {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}
	var cmd tea.Cmd
	m.chatView, cmd = m.chatView.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m ChatModel) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}
	if m.width == 0 {
		return "  Initializing..."
	}

	inputView := m.input.View()
	if m.waiting {
		inputView = theme.Dim.Render("> waiting for response...") + "\n" + m.spinner.View() + " " + m.statusBar.Extra
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		m.header.View(),
		m.chatView.View(),
		components.Divider(m.width),
		inputView,
		m.statusBar.View(),
	)
}

func (m *ChatModel) layout() {
	const headerH, inputH, statusH, dividerH = 1, 3, 1, 1
	contentH := max(m.height-headerH-inputH-statusH-dividerH, 5)

	m.header.SetWidth(m.width)
	m.statusBar.SetWidth(m.width)
	m.chatView.SetSize(m.width, contentH)
	m.input.SetWidth(m.width)
}

func (m ChatModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		if m.waiting {
			m.cancelRequest("Request cancelled.")
			return m, nil
		}
		m.quitting = true
		return m, tea.Quit
	case tea.KeyCtrlL:
		if !m.waiting {
			return m.handleSubmit("/clear")
		}
		return m, nil
	case tea.KeyPgUp, tea.KeyPgDown:
		var cmd tea.Cmd
		m.chatView, cmd = m.chatView.Update(msg)
		return m, cmd
	}
	if m.waiting {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// handleSubmit starts a slash command or a chat turn.
func (m ChatModel) handleSubmit(value string) (tea.Model, tea.Cmd) {
	ctx := m.begin()
	if _, _, ok := components.ParseSlashCommand(value); ok {
		m.statusBar.Extra = theme.SymbolSpinner + " Working..."
		return m, executeCmd(ctx, m.deps.Session, value, m.gen)
	}

	m.chatView.AddMessage(components.ChatMessage{
		Role:      components.RoleUser,
		Content:   value,
		Timestamp: time.Now(),
	})
	m.statusBar.Extra = theme.SymbolSpinner + " Thinking..."
	return m, sendCmd(ctx, m.deps.Session, value, m.gen)
}

func (m *ChatModel) begin() context.Context {
	if m.cancelFn != nil {
		m.cancelFn()
	}
	m.gen++
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelFn = cancel
	m.waiting = true
	m.input.SetEnabled(false)
	return ctx
}

func (m *ChatModel) finish() {
	if m.cancelFn != nil {
		m.cancelFn()
		m.cancelFn = nil
	}
	m.waiting = false
	m.input.SetEnabled(true)
	m.statusBar.Extra = ""
}

func (m ChatModel) applyResult(res Result) (tea.Model, tea.Cmd) {
	if res.Quit {
		m.quitting = true
		return m, tea.Quit
	}
	m.applyState(res.State)
	if res.Replace {
		m.chatView.Replace(m.transcript(res.Transcript))
	}
	if res.Output != "" {
		m.chatView.AddMessage(components.ChatMessage{Role: components.RoleSystem, Content: res.Output})
	}
	return m, completionsCmd(context.Background(), m.deps.Session)
}

func (m *ChatModel) applyState(st State) {
	m.header.Session = st.SessionID
	m.header.Thread = st.ThreadID
	m.header.Agent = st.AgentName
	if m.header.Agent == "" {
		m.header.Agent = st.AgentID
	}
	m.header.Model = st.Model
}

func (m ChatModel) transcript(msgs []domain.Message) []components.ChatMessage {
	return components.FromDomain(msgs, m.header.Agent)
}

func (m *ChatModel) showError(err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	m.deps.Logger.Debug("chat request failed", "error", err)
	m.chatView.AddMessage(components.ChatMessage{
		Role:    components.RoleError,
		Content: uxerror.Humanize(err).Render(),
	})
}

// cancelRequest abandons the in-flight request; its result is dropped.
func (m *ChatModel) cancelRequest(reason string) {
	m.gen++
	m.finish()
	m.chatView.AddMessage(components.ChatMessage{Role: components.RoleSystem, Content: reason})
}

func connectionLabel(info client.ConnectionInfo) string {
	if info.Mode == client.ModeServer {
		return info.ServerURL
	}
	return client.ModeLocal
}

func defaultHints() []components.KeyHint {
	return []components.KeyHint{
		{Key: "Enter", Desc: "Send"},
		{Key: "Alt+Enter", Desc: "Newline"},
		{Key: "/help", Desc: "Commands"},
		{Key: "Ctrl+C", Desc: "Cancel/Quit"},
	}
}
