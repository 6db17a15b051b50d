package chat

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
)

// sendCmd runs one turn off the UI goroutine.
func sendCmd(ctx context.Context, sess *Session, text string, gen uint64) tea.Cmd {
	return func() tea.Msg {
		resp, err := sess.Send(ctx, text)
		return ChatDoneMsg{Resp: resp, Err: err, Gen: gen}
	}
}

// executeCmd runs a slash command off the UI goroutine.
func executeCmd(ctx context.Context, sess *Session, line string, gen uint64) tea.Cmd {
	return func() tea.Msg {
		res, err := sess.Execute(ctx, line)
		return CommandDoneMsg{Result: res, Err: err, Gen: gen}
	}
}

// completionsCmd loads autocomplete candidates.
func completionsCmd(ctx context.Context, sess *Session) tea.Cmd {
	return func() tea.Msg {
		return CompletionsMsg{
			Threads: sess.ThreadIDs(ctx),
			Agents:  sess.AgentIDs(ctx),
			Models:  sess.ModelNames(ctx),
		}
	}
}
