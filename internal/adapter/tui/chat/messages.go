// Package chat is the Bubble Tea terminal chat for lattice.
package chat

import "lattice/pkg/protocol"

// ChatDoneMsg reports a finished turn. Gen identifies the request so a
// result arriving after cancellation is dropped.
type ChatDoneMsg struct {
	Resp protocol.ChatResponse
	Err  error
	Gen  uint64
}

// CommandDoneMsg reports a finished slash command.
type CommandDoneMsg struct {
	Result Result
	Err    error
	Gen    uint64
}

// CompletionsMsg refreshes autocomplete argument candidates.
type CompletionsMsg struct {
	Threads []string
	Agents  []string
	Models  []string
}

// QuitMsg asks the program to exit.
type QuitMsg struct{}
