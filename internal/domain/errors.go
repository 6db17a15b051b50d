package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Category sentinels.
var (
	ErrNotFound     = fmt.Errorf("not found")
	ErrDuplicate    = fmt.Errorf("duplicate")
	ErrInvalidInput = fmt.Errorf("invalid input")
	ErrTimeout      = fmt.Errorf("operation timed out")
)

// Sentinel errors for the session/thread core.
var (
	ErrThreadNotFound   = fmt.Errorf("thread not found")
	ErrThreadExists     = fmt.Errorf("thread already exists")
	ErrUnknownAgent     = fmt.Errorf("unknown or ambiguous agent")
	ErrInvalidModel     = fmt.Errorf("invalid model")
	ErrAgentUnavailable = fmt.Errorf("agent unavailable")
	ErrNoAgents         = fmt.Errorf("no agents registered")
	ErrConfigLoad       = fmt.Errorf("failed to load configuration")
	ErrDecryption       = fmt.Errorf("decryption failed")

	// Gateway / RPC errors.
	ErrAuthInvalid       = fmt.Errorf("authentication failed")
	ErrGatewayAuthFailed = fmt.Errorf("gateway: %w", ErrAuthInvalid)
	ErrRPCMethodNotFound = fmt.Errorf("rpc method not found")
	ErrRPCInvalidPayload = fmt.Errorf("rpc payload invalid")
	ErrRateLimit         = fmt.Errorf("rate limit exceeded")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "ThreadService.Delete")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// UnknownAgentError reports a requested agent that matched zero or several
// registered agents. Available lists the distinct display names.
type UnknownAgentError struct {
	Query     string
	Available []string
}

func (e *UnknownAgentError) Error() string {
	return fmt.Sprintf("Unknown or ambiguous agent '%s'. Available: %s", e.Query, strings.Join(e.Available, ", "))
}

func (e *UnknownAgentError) Unwrap() error { return ErrUnknownAgent }

// ModelValidationError carries the message of a plugin that rejected a model.
type ModelValidationError struct {
	Model string
	Err   error
}

func (e *ModelValidationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("invalid model %q", e.Model)
	}
	return e.Err.Error()
}

// Unwrap exposes both ErrInvalidModel and the plugin's own error.
func (e *ModelValidationError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrInvalidModel}
	}
	return []error{ErrInvalidModel, e.Err}
}

// ErrorCode is a machine-parseable error category for clients and monitoring.
type ErrorCode string

const (
	CodeUnknown           ErrorCode = "UNKNOWN"
	CodeNotFound          ErrorCode = "NOT_FOUND"
	CodeDuplicate         ErrorCode = "DUPLICATE"
	CodeInvalidInput      ErrorCode = "INVALID_INPUT"
	CodeTimeout           ErrorCode = "TIMEOUT"
	CodeThreadNotFound    ErrorCode = "THREAD_NOT_FOUND"
	CodeThreadExists      ErrorCode = "THREAD_EXISTS"
	CodeUnknownAgent      ErrorCode = "UNKNOWN_AGENT"
	CodeInvalidModel      ErrorCode = "INVALID_MODEL"
	CodeAgentUnavailable  ErrorCode = "AGENT_UNAVAILABLE"
	CodeNoAgents          ErrorCode = "NO_AGENTS"
	CodeConfigLoad        ErrorCode = "CONFIG_LOAD"
	CodeDecryption        ErrorCode = "DECRYPTION"
	CodeAuthInvalid       ErrorCode = "AUTH_INVALID"
	CodeGatewayAuth       ErrorCode = "GATEWAY_AUTH"
	CodeRPCMethodNotFound ErrorCode = "RPC_METHOD_NOT_FOUND"
	CodeRPCInvalidPayload ErrorCode = "RPC_INVALID_PAYLOAD"
	CodeRateLimit         ErrorCode = "RATE_LIMIT"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrNotFound:     CodeNotFound,
	ErrDuplicate:    CodeDuplicate,
	ErrInvalidInput: CodeInvalidInput,
	ErrTimeout:      CodeTimeout,

	ErrThreadNotFound:    CodeThreadNotFound,
	ErrThreadExists:      CodeThreadExists,
	ErrUnknownAgent:      CodeUnknownAgent,
	ErrInvalidModel:      CodeInvalidModel,
	ErrAgentUnavailable:  CodeAgentUnavailable,
	ErrNoAgents:          CodeNoAgents,
	ErrConfigLoad:        CodeConfigLoad,
	ErrDecryption:        CodeDecryption,
	ErrAuthInvalid:       CodeAuthInvalid,
	ErrGatewayAuthFailed: CodeGatewayAuth,
	ErrRPCMethodNotFound: CodeRPCMethodNotFound,
	ErrRPCInvalidPayload: CodeRPCInvalidPayload,
	ErrRateLimit:         CodeRateLimit,
}

// specificFirst lists sentinels checked before the category ones so that
// an error wrapping both resolves to the narrower code.
var specificFirst = []error{
	ErrGatewayAuthFailed,
	ErrThreadNotFound,
	ErrThreadExists,
	ErrUnknownAgent,
	ErrInvalidModel,
	ErrAgentUnavailable,
	ErrNoAgents,
	ErrConfigLoad,
	ErrDecryption,
	ErrAuthInvalid,
	ErrRPCMethodNotFound,
	ErrRPCInvalidPayload,
	ErrRateLimit,
	ErrNotFound,
	ErrDuplicate,
	ErrInvalidInput,
	ErrTimeout,
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	// Fast path: direct sentinel lookup.
	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	for _, sentinel := range specificFirst {
		if errors.Is(err, sentinel) {
			return errorCodeMap[sentinel]
		}
	}
	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying error.
func (e *DomainError) Code() ErrorCode {
	return ErrorCodeOf(e.Err)
}

// SentinelFor returns the sentinel error for code, or nil for CodeUnknown and
// unrecognized codes. Clients use it to restore errors.Is matching on errors
// decoded from the wire.
func SentinelFor(code ErrorCode) error {
	for _, sentinel := range specificFirst {
		if errorCodeMap[sentinel] == code {
			return sentinel
		}
	}
	return nil
}
