package chat

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
)

// Run starts the terminal UI and blocks until the user quits or ctx is done.
func Run(ctx context.Context, deps ChatModelDeps) error {
	program := tea.NewProgram(
		NewChatModel(deps),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	go func() {
		<-ctx.Done()
		program.Send(QuitMsg{})
	}()

	_, err := program.Run()
	return err
}
