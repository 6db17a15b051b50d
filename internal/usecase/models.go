package usecase

import (
	"context"
	"strings"

	"lattice/internal/domain"
	"lattice/internal/infra/env"
)

// DefaultModelEnv lists the env vars consulted, in order, when a plugin has
// no configured default model.
var DefaultModelEnv = []string{"AGENT_MODEL", "LATTICE_MODEL"}

// ModelSelection is the model a session resolves to for a given agent.
type ModelSelection struct {
	Model        string
	DefaultModel string
	IsDefault    bool
}

// ListModels returns the plugin's models. A missing capability or a failing
// call yields nil; the error is handed to onErr when it is non-nil.
func ListModels(ctx context.Context, plugin *domain.AgentPlugin, onErr func(error)) []string {
	if plugin == nil || plugin.ListModels == nil {
		return nil
	}
	models, err := plugin.ListModels(ctx)
	if err != nil {
		if onErr != nil {
			onErr(err)
		}
		return nil
	}
	return models
}

// ResolveDefaultModel picks the plugin's default model: its configured
// default, then the first set DefaultModelEnv var, then the first listed
// model, then "". It never fails.
func ResolveDefaultModel(ctx context.Context, plugin *domain.AgentPlugin, onErr func(error)) string {
	if plugin == nil {
		return ""
	}
	if m := strings.TrimSpace(plugin.DefaultModel); m != "" {
		return m
	}
	if m, ok := env.First(DefaultModelEnv...); ok {
		return m
	}
	if models := ListModels(ctx, plugin, onErr); len(models) > 0 {
		return strings.TrimSpace(models[0])
	}
	return ""
}

// SelectSessionModel returns the session's stored model when set, else the
// plugin's default.
func SelectSessionModel(ctx context.Context, store domain.SessionStore, sessionID string, plugin *domain.AgentPlugin, onErr func(error)) (ModelSelection, error) {
	stored, err := store.GetSessionModel(ctx, sessionID)
	if err != nil {
		return ModelSelection{}, domain.WrapOp("select model", err)
	}
	def := ResolveDefaultModel(ctx, plugin, onErr)
	model := strings.TrimSpace(stored)
	if model == "" {
		model = def
	}
	return ModelSelection{Model: model, DefaultModel: def, IsDefault: model == def}, nil
}

// ValidateModel runs the plugin's validator, if any, wrapping a rejection in
// *domain.ModelValidationError.
func ValidateModel(plugin *domain.AgentPlugin, model string) error {
	if plugin == nil || plugin.ValidateModel == nil {
		return nil
	}
	if err := plugin.ValidateModel(model); err != nil {
		return &domain.ModelValidationError{Model: model, Err: err}
	}
	return nil
}

// SetSessionModel stores the session's model override. A blank request clears
// it. A non-blank request must pass the plugin's validator first; a rejected
// model is not persisted.
func SetSessionModel(ctx context.Context, store domain.SessionStore, sessionID string, plugin *domain.AgentPlugin, requested string, onErr func(error)) (ModelSelection, error) {
	model := strings.TrimSpace(requested)
	if model == "" {
		if err := store.SetSessionModel(ctx, sessionID, ""); err != nil {
			return ModelSelection{}, domain.WrapOp("clear model", err)
		}
		def := ResolveDefaultModel(ctx, plugin, onErr)
		return ModelSelection{Model: def, DefaultModel: def, IsDefault: true}, nil
	}

	if err := ValidateModel(plugin, model); err != nil {
		return ModelSelection{}, err
	}
	if err := store.SetSessionModel(ctx, sessionID, model); err != nil {
		return ModelSelection{}, domain.WrapOp("set model", err)
	}
	def := ResolveDefaultModel(ctx, plugin, onErr)
	return ModelSelection{Model: model, DefaultModel: def, IsDefault: model == def}, nil
}
