package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"lattice/internal/domain"
	"lattice/internal/infra/config"
	"lattice/internal/infra/tracer"
)

const (
	defaultOpenAIBaseURL = "https://api.openai.com/v1"
	defaultModelsTTL     = 5 * time.Minute
)

// OpenAIAgent talks to any OpenAI-compatible chat completions API.
type OpenAIAgent struct {
	def     config.AgentDefinition
	baseURL string
	client  *http.Client
	breaker *breaker
	log     *slog.Logger

	models *expirable.LRU[string, []string]
	group  singleflight.Group
}

// NewOpenAIAgent creates an agent backend for def.
func NewOpenAIAgent(def config.AgentDefinition, cb config.CircuitBreakerConfig, log *slog.Logger) *OpenAIAgent {
	baseURL := strings.TrimRight(def.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
	}
	ttl := def.ModelsTTL
	if ttl <= 0 {
		ttl = defaultModelsTTL
	}
	return &OpenAIAgent{
		def:     def,
		baseURL: baseURL,
		client:  NewHTTPClient(def.Timeout),
		breaker: newBreaker(def.ID, cb, log),
		log:     log,
		models:  expirable.NewLRU[string, []string](1, nil, ttl),
	}
}

// Plugin returns the descriptor registered for this agent.
func (a *OpenAIAgent) Plugin() *domain.AgentPlugin {
	return &domain.AgentPlugin{
		ID:            a.def.ID,
		Name:          a.def.Name,
		DefaultModel:  a.def.DefaultModel,
		CreateAgent:   a.createRunner,
		ListModels:    a.ListModels,
		ValidateModel: a.ValidateModel,
	}
}

func (a *OpenAIAgent) createRunner(model string) (domain.Runner, error) {
	if strings.TrimSpace(model) == "" {
		return nil, &domain.ModelValidationError{Err: fmt.Errorf("agent %q has no model configured", a.def.ID)}
	}
	return domain.RunnerFunc(func(ctx context.Context, in domain.RunInput) (*domain.RunResult, error) {
		return a.chat(ctx, model, in)
	}), nil
}

// ListModels returns the configured model list, or the backend's /models
// listing. Listings are cached and concurrent fetches share one request.
func (a *OpenAIAgent) ListModels(ctx context.Context) ([]string, error) {
	if len(a.def.Models) > 0 {
		return slices.Clone(a.def.Models), nil
	}
	if cached, ok := a.models.Get(a.baseURL); ok {
		return slices.Clone(cached), nil
	}

	ch := a.group.DoChan(a.baseURL, func() (any, error) {
		models, err := a.fetchModels(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		a.models.Add(a.baseURL, models)
		return models, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return slices.Clone(res.Val.([]string)), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ValidateModel checks model against the configured list, or against the
// last cached listing. With neither available every model is accepted.
func (a *OpenAIAgent) ValidateModel(model string) error {
	if len(a.def.Models) > 0 {
		return staticValidator(a.def.ID, a.def.Models)(model)
	}
	if cached, ok := a.models.Get(a.baseURL); ok && len(cached) > 0 {
		return staticValidator(a.def.ID, cached)(model)
	}
	return nil
}

func (a *OpenAIAgent) fetchModels(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultConnTimeout)
	defer cancel()

	body, err := doJSON(ctx, a.client, http.MethodGet, a.baseURL+"/models", nil, a.headers())
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	var resp openaiModelList
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal models: %w", err)
	}
	ids := make([]string, 0, len(resp.Data))
	for _, m := range resp.Data {
		if m.ID != "" {
			ids = append(ids, m.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (a *OpenAIAgent) chat(ctx context.Context, model string, in domain.RunInput) (*domain.RunResult, error) {
	ctx, span := tracer.StartSpan(ctx, "agent.chat",
		trace.WithAttributes(
			tracer.StringAttr(tracer.AttrAgent, a.def.ID),
			tracer.StringAttr(tracer.AttrModel, model),
		),
	)
	defer span.End()

	body, err := json.Marshal(a.buildRequest(model, in))
	if err != nil {
		tracer.RecordError(span, err)
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	result, err := a.breaker.execute(a.def.ID, func() (*domain.RunResult, error) {
		respBody, err := doJSON(ctx, a.client, http.MethodPost, a.baseURL+"/chat/completions", body, a.headers())
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %w", errCallerCancelled, err)
			}
			return nil, err
		}
		var resp openaiResponse
		if err := json.Unmarshal(respBody, &resp); err != nil {
			return nil, fmt.Errorf("unmarshal response: %w", err)
		}
		return fromOpenAIResponse(resp)
	})
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	tracer.SetOK(span)
	a.log.Debug("agent chat completed", "agent", a.def.ID, "model", model, "messages", len(result.NewMessages))
	return result, nil
}

func (a *OpenAIAgent) headers() map[string]string {
	headers := map[string]string{}
	if a.def.APIKey != "" {
		headers["Authorization"] = "Bearer " + a.def.APIKey
	}
	return headers
}

// --- OpenAI API wire types ---

type openaiRequest struct {
	Model    string          `json:"model"`
	Messages []openaiMessage `json:"messages"`
}

type openaiMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content"`
	Name       string           `json:"name,omitempty"`
	ToolCalls  []openaiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
}

type openaiToolCall struct {
	ID       string                 `json:"id"`
	Type     string                 `json:"type"`
	Function openaiToolCallFunction `json:"function"`
}

type openaiToolCallFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type openaiResponse struct {
	ID      string         `json:"id"`
	Model   string         `json:"model"`
	Choices []openaiChoice `json:"choices"`
	Created int64          `json:"created"`
}

type openaiChoice struct {
	Index        int           `json:"index"`
	Message      openaiMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type openaiModelList struct {
	Data []struct {
		ID string `json:"id"`
	} `json:"data"`
}

var errNoChoices = errors.New("response has no choices")

// buildRequest lays out the system prompt, then the chosen history, then the
// request's own messages. The prompt is skipped when the conversation already
// carries a system message.
func (a *OpenAIAgent) buildRequest(model string, in domain.RunInput) openaiRequest {
	msgs := make([]openaiMessage, 0, len(in.History)+len(in.Messages)+1)
	if prompt := strings.TrimSpace(a.def.SystemPrompt); prompt != "" && !hasSystem(in.History) && !hasSystem(in.Messages) {
		msgs = append(msgs, openaiMessage{Role: domain.RoleSystem, Content: prompt})
	}
	for _, m := range in.History {
		msgs = append(msgs, toOpenAIMessage(m))
	}
	for _, m := range in.Messages {
		msgs = append(msgs, toOpenAIMessage(m))
	}
	return openaiRequest{Model: model, Messages: msgs}
}

func hasSystem(msgs []domain.Message) bool {
	return slices.ContainsFunc(msgs, func(m domain.Message) bool { return m.Role == domain.RoleSystem })
}

func toOpenAIMessage(m domain.Message) openaiMessage {
	out := openaiMessage{
		Role:       m.Role,
		Content:    m.Content,
		Name:       m.Name,
		ToolCallID: m.ToolCallID,
	}
	if len(m.ToolCalls) > 0 {
		out.ToolCalls = make([]openaiToolCall, len(m.ToolCalls))
		for i, tc := range m.ToolCalls {
			out.ToolCalls[i] = openaiToolCall{
				ID:   tc.ID,
				Type: "function",
				Function: openaiToolCallFunction{
					Name:      tc.Name,
					Arguments: string(tc.Arguments),
				},
			}
		}
	}
	return out
}

func fromOpenAIResponse(resp openaiResponse) (*domain.RunResult, error) {
	if len(resp.Choices) == 0 {
		return nil, errNoChoices
	}
	choice := resp.Choices[0].Message
	msg := domain.Message{
		Role:    choice.Role,
		Content: choice.Content,
		Name:    choice.Name,
	}
	if msg.Role == "" {
		msg.Role = domain.RoleAssistant
	}
	if resp.Created > 0 {
		msg.Timestamp = time.Unix(resp.Created, 0).UTC()
	}
	if len(choice.ToolCalls) > 0 {
		msg.ToolCalls = make([]domain.ToolCall, len(choice.ToolCalls))
		for i, tc := range choice.ToolCalls {
			msg.ToolCalls[i] = domain.ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: rawArguments(tc.Function.Arguments),
			}
		}
	}
	return &domain.RunResult{NewMessages: []domain.Message{msg}, Output: msg.Content}, nil
}

// rawArguments keeps valid JSON arguments as-is and quotes anything else.
func rawArguments(args string) json.RawMessage {
	if args == "" {
		return nil
	}
	if json.Valid([]byte(args)) {
		return json.RawMessage(args)
	}
	quoted, _ := json.Marshal(args)
	return quoted
}
