package chat

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"lattice/internal/adapter/client"
	"lattice/internal/adapter/tui/components"
	"lattice/internal/domain"
	"lattice/pkg/protocol"
)

// DefaultThreadID is created when a session has no threads yet.
const DefaultThreadID = "default"

// listLimit caps /agents and /models output.
const listLimit = 30

// Session tracks the terminal's current thread and the agent and model it
// resolves to. Exported methods serialize on mu.
type Session struct {
	mu        sync.Mutex
	client    client.Client
	sessionID string
	threadID  string
	agent     protocol.ThreadAgentResponse
	model     protocol.SessionModelResponse
	agents    []protocol.AgentInfo
}

// State is a snapshot for the header line.
type State struct {
	SessionID string
	ThreadID  string
	AgentID   string
	AgentName string
	Model     string
}

// Result is what a slash command produced.
type Result struct {
	// Output is shown as a system message when non-empty.
	Output string
	// Replace swaps the transcript for Transcript (thread switch or clear).
	Replace    bool
	Transcript []domain.Message
	Quit       bool
	State      State
}

// Open starts a session on threadID, creating it when missing. A blank
// threadID picks the first existing thread, or creates DefaultThreadID.
// It returns the thread's stored history.
func Open(ctx context.Context, c client.Client, sessionID, threadID string) (*Session, []domain.Message, error) {
	s := &Session{client: c, sessionID: sessionID}
	if threadID == "" {
		ids, err := c.ListThreads(ctx, sessionID)
		if err != nil {
			return nil, nil, fmt.Errorf("list threads: %w", err)
		}
		threadID = DefaultThreadID
		if len(ids) > 0 {
			threadID = ids[0]
		}
	}
	msgs, err := s.enter(ctx, threadID)
	if err != nil {
		return nil, nil, err
	}
	return s, msgs, nil
}

// State returns the current header snapshot.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state()
}

func (s *Session) state() State {
	return State{
		SessionID: s.sessionID,
		ThreadID:  s.threadID,
		AgentID:   s.agent.Agent,
		AgentName: s.agent.AgentName,
		Model:     s.model.Model,
	}
}

// Send runs one chat turn on the current thread.
func (s *Session) Send(ctx context.Context, text string) (protocol.ChatResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client.Chat(ctx, protocol.ChatRequest{
		SessionID: s.sessionID,
		ThreadID:  s.threadID,
		Messages:  []protocol.Message{{Role: domain.RoleUser, Content: text}},
	})
}

// Execute runs a slash command line.
func (s *Session) Execute(ctx context.Context, line string) (Result, error) {
	cmd, args, ok := components.ParseSlashCommand(line)
	if !ok {
		return Result{}, fmt.Errorf("%w: not a command: %q", domain.ErrInvalidInput, line)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.dispatch(ctx, cmd, args)
	res.State = s.state()
	return res, err
}

func (s *Session) dispatch(ctx context.Context, cmd string, args []string) (Result, error) {
	switch cmd {
	case "/help", "/?":
		return Result{Output: HelpText()}, nil
	case "/quit", "/exit":
		return Result{Quit: true}, nil
	case "/threads":
		return s.listThreads(ctx)
	case "/new":
		return s.newThread(ctx, firstArg(args))
	case "/switch":
		if len(args) == 0 {
			return Result{Output: "Usage: /switch <id>"}, nil
		}
		return s.switchThread(ctx, args[0])
	case "/delete":
		return s.deleteThread(ctx, firstArg(args))
	case "/clear":
		if err := s.client.ClearThread(ctx, s.sessionID, s.threadID); err != nil {
			return Result{}, err
		}
		return Result{Output: "Thread cleared.", Replace: true}, nil
	case "/agent":
		return s.agentCommand(ctx, strings.Join(args, " "))
	case "/agents":
		return s.listAgents(ctx, strings.Join(args, " "))
	case "/model":
		return s.modelCommand(ctx, strings.Join(args, " "))
	case "/models":
		return s.listModels(ctx, strings.Join(args, " "))
	}
	return Result{Output: fmt.Sprintf("Unknown command: %s. Type /help for commands.", cmd)}, nil
}

// HelpText lists the slash commands.
func HelpText() string {
	var sb strings.Builder
	sb.WriteString("Commands:")
	for _, c := range Commands {
		name := c.Name
		if c.Usage != "" {
			name += " " + c.Usage
		}
		fmt.Fprintf(&sb, "\n  %-20s %s", name, c.Description)
	}
	return sb.String()
}

// Commands feeds /help and the input autocomplete.
var Commands = []components.CommandDef{
	{Name: "/help", Description: "Show this help"},
	{Name: "/threads", Description: "List threads"},
	{Name: "/new", Usage: "[id]", Description: "Create a thread and switch to it"},
	{Name: "/switch", Usage: "<id>", Description: "Switch to a thread"},
	{Name: "/delete", Usage: "[id]", Description: "Delete a thread (default: current)"},
	{Name: "/clear", Description: "Clear the current thread's history"},
	{Name: "/agent", Usage: "[name|n|default]", Description: "Show or set the thread's agent"},
	{Name: "/agents", Usage: "[filter]", Description: "List agents"},
	{Name: "/model", Usage: "[name|default]", Description: "Show or set the session model"},
	{Name: "/models", Usage: "[filter]", Description: "List models for the current agent"},
	{Name: "/quit", Description: "Exit"},
}

// --- threads ---

func (s *Session) listThreads(ctx context.Context) (Result, error) {
	ids, err := s.client.ListThreads(ctx, s.sessionID)
	if err != nil {
		return Result{}, err
	}
	if len(ids) == 0 {
		return Result{Output: "No threads."}, nil
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Threads (%d):", len(ids))
	for _, id := range ids {
		marker := " "
		if id == s.threadID {
			marker = "*"
		}
		fmt.Fprintf(&sb, "\n%s %s", marker, id)
	}
	return Result{Output: sb.String()}, nil
}

func (s *Session) newThread(ctx context.Context, id string) (Result, error) {
	created, err := s.client.CreateThread(ctx, s.sessionID, id)
	if err != nil {
		return Result{}, err
	}
	if _, err := s.enter(ctx, created); err != nil {
		return Result{}, err
	}
	return Result{Output: "Created thread " + created + ".", Replace: true}, nil
}

func (s *Session) switchThread(ctx context.Context, id string) (Result, error) {
	if id == s.threadID {
		return Result{Output: "Already on thread " + id + "."}, nil
	}
	msgs, err := s.enter(ctx, id)
	if err != nil {
		return Result{}, err
	}
	return Result{Output: "Switched to thread " + id + ".", Replace: true, Transcript: msgs}, nil
}

func (s *Session) deleteThread(ctx context.Context, id string) (Result, error) {
	if id == "" {
		id = s.threadID
	}
	if err := s.client.DeleteThread(ctx, s.sessionID, id); err != nil {
		return Result{}, err
	}
	out := "Deleted thread " + id + "."
	if id != s.threadID {
		return Result{Output: out}, nil
	}

	// The current thread is gone; move to the first remaining one.
	ids, err := s.client.ListThreads(ctx, s.sessionID)
	if err != nil {
		return Result{}, err
	}
	next := DefaultThreadID
	if len(ids) > 0 {
		next = ids[0]
	}
	msgs, err := s.enter(ctx, next)
	if err != nil {
		return Result{}, err
	}
	return Result{Output: out + " Now on thread " + next + ".", Replace: true, Transcript: msgs}, nil
}

// enter makes threadID current, creating it when missing, and loads its
// history, agent and model.
func (s *Session) enter(ctx context.Context, threadID string) ([]domain.Message, error) {
	msgs, err := s.client.Messages(ctx, s.sessionID, threadID)
	if client.IsNotFound(err) {
		if _, err = s.client.CreateThread(ctx, s.sessionID, threadID); err != nil {
			return nil, err
		}
		msgs, err = nil, nil
	}
	if err != nil {
		return nil, err
	}
	s.threadID = threadID
	if err := s.refresh(ctx); err != nil {
		return nil, err
	}
	return msgs, nil
}

func (s *Session) refresh(ctx context.Context) error {
	agent, err := s.client.ThreadAgent(ctx, s.sessionID, s.threadID)
	if err != nil {
		return err
	}
	s.agent = agent
	return s.refreshModel(ctx)
}

func (s *Session) refreshModel(ctx context.Context) error {
	model, err := s.client.SessionModel(ctx, s.sessionID, s.threadID)
	if err != nil {
		return err
	}
	s.model = model
	return nil
}

// --- agents ---

func (s *Session) agentCommand(ctx context.Context, arg string) (Result, error) {
	switch strings.ToLower(arg) {
	case "", "current", "show":
		if err := s.refresh(ctx); err != nil {
			return Result{}, err
		}
		return Result{Output: fmt.Sprintf("Current agent: %s (%s)", s.agent.AgentName, s.agent.Agent)}, nil
	case "default", "reset":
		arg = ""
	}

	if n, err := strconv.Atoi(arg); err == nil {
		agents, err := s.loadAgents(ctx)
		if err != nil {
			return Result{}, err
		}
		if n < 1 || n > len(agents) {
			return Result{Output: fmt.Sprintf("Agent number out of range (1-%d).", len(agents))}, nil
		}
		arg = agents[n-1].ID
	}

	agent, err := s.client.SetThreadAgent(ctx, s.sessionID, s.threadID, arg)
	if err != nil {
		return Result{}, err
	}
	s.agent = agent
	if err := s.refreshModel(ctx); err != nil {
		return Result{}, err
	}
	label := agent.AgentName
	if label == "" {
		label = agent.Agent
	}
	if agent.IsDefault {
		return Result{Output: "Agent reset to default: " + label}, nil
	}
	return Result{Output: "Agent set to: " + label}, nil
}

func (s *Session) loadAgents(ctx context.Context) ([]protocol.AgentInfo, error) {
	if s.agents != nil {
		return s.agents, nil
	}
	list, err := s.client.Agents(ctx)
	if err != nil {
		return nil, err
	}
	s.agents = list.Agents
	return s.agents, nil
}

// AgentIDs returns the cached agent ids for autocomplete.
func (s *Session) AgentIDs(ctx context.Context) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	agents, err := s.loadAgents(ctx)
	if err != nil {
		return nil
	}
	ids := make([]string, len(agents))
	for i, a := range agents {
		ids[i] = a.ID
	}
	return ids
}

func (s *Session) listAgents(ctx context.Context, filter string) (Result, error) {
	s.agents = nil
	agents, err := s.loadAgents(ctx)
	if err != nil {
		return Result{}, err
	}
	needle := strings.ToLower(strings.TrimSpace(filter))

	var sb strings.Builder
	shown, matched := 0, 0
	for i, a := range agents {
		if needle != "" && !strings.Contains(strings.ToLower(a.ID), needle) && !strings.Contains(strings.ToLower(a.Name), needle) {
			continue
		}
		matched++
		if shown == listLimit {
			continue
		}
		shown++
		label := a.ID
		if a.Name != "" && a.Name != a.ID {
			label = a.Name + " (" + a.ID + ")"
		}
		marker := " "
		if a.ID == s.agent.Agent {
			marker = "*"
		}
		fmt.Fprintf(&sb, "\n%s %d. %s", marker, i+1, label)
	}
	if matched == 0 {
		return Result{Output: fmt.Sprintf("No agents found for %q.", filter)}, nil
	}
	out := fmt.Sprintf("Agents (%d):", matched) + sb.String()
	if matched > shown {
		out += fmt.Sprintf("\n... showing first %d. Use /agents <filter> to narrow.", listLimit)
	}
	return Result{Output: out}, nil
}

// --- models ---

func (s *Session) modelCommand(ctx context.Context, arg string) (Result, error) {
	switch strings.ToLower(arg) {
	case "", "current", "show":
		if err := s.refreshModel(ctx); err != nil {
			return Result{}, err
		}
		current := s.model.Model
		if current == "" {
			current = "(none)"
		}
		return Result{Output: "Current model: " + current}, nil
	case "default", "reset":
		arg = ""
	}

	model, err := s.client.SetSessionModel(ctx, s.sessionID, s.threadID, arg)
	if err != nil {
		return Result{}, err
	}
	s.model = model
	if arg == "" {
		return Result{Output: "Model reset to default: " + orNone(model.Model)}, nil
	}
	return Result{Output: "Model set to: " + model.Model}, nil
}

func (s *Session) listModels(ctx context.Context, filter string) (Result, error) {
	list, err := s.client.ThreadModels(ctx, s.sessionID, s.threadID)
	if err != nil {
		return Result{}, err
	}
	needle := strings.ToLower(strings.TrimSpace(filter))
	var matches []string
	for _, m := range list.Models {
		if needle == "" || strings.Contains(strings.ToLower(m), needle) {
			matches = append(matches, m)
		}
	}
	if len(matches) == 0 {
		if needle == "" {
			return Result{Output: "This agent does not list models. Default: " + orNone(list.DefaultModel)}, nil
		}
		return Result{Output: fmt.Sprintf("No models found for %q.", filter)}, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Models (%d):", len(matches))
	for i, m := range matches {
		if i == listLimit {
			fmt.Fprintf(&sb, "\n... showing first %d. Use /models <filter> to narrow.", listLimit)
			break
		}
		marker := " "
		if m == s.model.Model {
			marker = "*"
		}
		fmt.Fprintf(&sb, "\n%s %s", marker, m)
	}
	return Result{Output: sb.String()}, nil
}

// ModelNames returns the current agent's models for autocomplete.
func (s *Session) ModelNames(ctx context.Context) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	list, err := s.client.ThreadModels(ctx, s.sessionID, s.threadID)
	if err != nil {
		return nil
	}
	return list.Models
}

// ThreadIDs returns the session's threads for autocomplete.
func (s *Session) ThreadIDs(ctx context.Context) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids, err := s.client.ListThreads(ctx, s.sessionID)
	if err != nil {
		return nil
	}
	return ids
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
