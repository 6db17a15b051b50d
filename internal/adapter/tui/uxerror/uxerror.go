// Package uxerror turns backend errors into short terminal messages with
// recovery hints.
package uxerror

import (
	"errors"
	"fmt"
	"strings"

	"lattice/internal/adapter/tui/theme"
	"lattice/internal/domain"
)

// FriendlyError is a user-facing rendering of an error.
type FriendlyError struct {
	Title   string
	Message string
	Hints   []string
	Raw     string
}

// Render formats the error for the transcript.
func (fe FriendlyError) Render() string {
	var sb strings.Builder
	sb.WriteString(fe.Title)
	if fe.Message != "" {
		sb.WriteString("\n")
		sb.WriteString(fe.Message)
	}
	for _, h := range fe.Hints {
		fmt.Fprintf(&sb, "\n%s %s", theme.SymbolBullet, h)
	}
	return sb.String()
}

type errorPattern struct {
	match   func(err error) bool
	produce func(err error) FriendlyError
}

// patterns are checked in order; sentinels first so errors.Is sees through
// wrapping, string matches last for transport errors that carry no sentinel.
var patterns = []errorPattern{
	{
		match: is(domain.ErrUnknownAgent),
		produce: func(err error) FriendlyError {
			return FriendlyError{Title: "Unknown Agent", Message: message(err), Hints: []string{"Run /agents to list agents"}, Raw: err.Error()}
		},
	},
	{
		match: is(domain.ErrInvalidModel),
		produce: func(err error) FriendlyError {
			return FriendlyError{Title: "Model Rejected", Message: message(err), Hints: []string{"Run /models to list models for this agent"}, Raw: err.Error()}
		},
	},
	{
		match: is(domain.ErrThreadNotFound),
		produce: func(err error) FriendlyError {
			return FriendlyError{Title: "Thread Not Found", Message: message(err), Hints: []string{"Run /threads to list threads", "Use /new <id> to create one"}, Raw: err.Error()}
		},
	},
	{
		match: is(domain.ErrThreadExists),
		produce: func(err error) FriendlyError {
			return FriendlyError{Title: "Thread Exists", Message: message(err), Hints: []string{"Use /switch <id> to open it"}, Raw: err.Error()}
		},
	},
	{
		match:   is(domain.ErrAgentUnavailable),
		produce: constantError("Agent Unavailable", "The agent backend failed or is temporarily disabled.", []string{"Wait a moment before retrying", "Check the agent's base_url and api_key", "Switch agents with /agent <name>"}),
	},
	{
		match:   is(domain.ErrRateLimit),
		produce: constantError("Rate Limited", "Too many requests were sent.", []string{"Wait a moment before retrying"}),
	},
	{
		match:   is(domain.ErrAuthInvalid),
		produce: constantError("Authentication Failed", "The credentials were rejected.", []string{"Check the agent's api_key", "Set LATTICE_CONFIG_KEY if the key is encrypted"}),
	},
	{
		match: is(domain.ErrInvalidInput),
		produce: func(err error) FriendlyError {
			return FriendlyError{Title: "Invalid Request", Message: message(err), Raw: err.Error()}
		},
	},
	{
		match:   containsAny("connection refused", "connection reset", "dial tcp", "no such host"),
		produce: constantError("Connection Failed", "Could not reach the lattice server.", []string{"Start it with `lattice server`", "Or run `lattice chat --local`"}),
	},
	{
		match:   containsAny("deadline exceeded", "timeout"),
		produce: constantError("Request Timed Out", "The request took too long to complete.", []string{"Try again", "Increase the agent's timeout in config"}),
	},
}

// Humanize maps err to a FriendlyError.
func Humanize(err error) FriendlyError {
	if err == nil {
		return FriendlyError{Title: "Unknown Error", Raw: "nil"}
	}
	for _, p := range patterns {
		if p.match(err) {
			return p.produce(err)
		}
	}
	return FriendlyError{
		Title:   "Unexpected Error",
		Message: err.Error(),
		Hints:   []string{"Try again", "Run with LATTICE_LOG_LEVEL=debug for details"},
		Raw:     err.Error(),
	}
}

func is(target error) func(error) bool {
	return func(err error) bool { return errors.Is(err, target) }
}

// message prefers the bare user-facing text of typed errors over the
// wrapping op chain.
func message(err error) string {
	var ua *domain.UnknownAgentError
	if errors.As(err, &ua) {
		return ua.Error()
	}
	var mv *domain.ModelValidationError
	if errors.As(err, &mv) {
		return mv.Error()
	}
	var de *domain.DomainError
	if errors.As(err, &de) && de.Detail != "" {
		return de.Detail
	}
	return err.Error()
}

func containsAny(substrs ...string) func(error) bool {
	return func(err error) bool {
		lower := strings.ToLower(err.Error())
		for _, s := range substrs {
			if strings.Contains(lower, s) {
				return true
			}
		}
		return false
	}
}

func constantError(title, msg string, hints []string) func(error) FriendlyError {
	return func(err error) FriendlyError {
		return FriendlyError{Title: title, Message: msg, Hints: hints, Raw: err.Error()}
	}
}
