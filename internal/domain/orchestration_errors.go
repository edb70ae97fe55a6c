package domain

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Sentinels for the orchestration error taxonomy - use with errors.Is()
var (
	ErrProviderTransport     = errors.New("provider transport error")
	ErrToolExecution         = errors.New("tool execution error")
	ErrLoopExhausted         = errors.New("tool loop exhausted")
	ErrModelTimeout          = errors.New("model deadline exceeded")
	ErrApprovalStateConflict = errors.New("approval is not pending")
	ErrTotalConsensusFailure = errors.New("every selected model failed")
)

// ProviderErrorKind classifies provider transport failures.
type ProviderErrorKind string

const (
	ProviderErrorTimeout        ProviderErrorKind = "timeout"
	ProviderErrorRateLimit      ProviderErrorKind = "rate_limit"
	ProviderErrorMalformed      ProviderErrorKind = "malformed_response"
	ProviderErrorNetwork        ProviderErrorKind = "network"
	ProviderErrorUnavailable    ProviderErrorKind = "unavailable"
	ProviderErrorAuth           ProviderErrorKind = "auth"
	ProviderErrorInvalidRequest ProviderErrorKind = "invalid_request"
)

// ProviderError is returned by provider adapters for any failed round-trip.
type ProviderError struct {
	Provider   string
	Model      string
	Kind       ProviderErrorKind
	HTTPStatus int // status reported by the provider API, 0 if none
	Err        error
}

func (e *ProviderError) Error() string {
	msg := fmt.Sprintf("%s/%s: %s", e.Provider, e.Model, e.Kind)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProviderError) Unwrap() error { return e.Err }

func (e *ProviderError) Is(target error) bool { return target == ErrProviderTransport }

// Retryable reports whether a retry with backoff may succeed.
func (e *ProviderError) Retryable() bool {
	switch e.Kind {
	case ProviderErrorTimeout, ProviderErrorRateLimit, ProviderErrorNetwork, ProviderErrorUnavailable:
		return true
	default:
		return false
	}
}

// ToolFailureReason classifies tool execution failures.
type ToolFailureReason string

const (
	ToolFailureNotFound         ToolFailureReason = "tool_not_found"
	ToolFailureInvalidArguments ToolFailureReason = "invalid_arguments"
	ToolFailureHandler          ToolFailureReason = "handler_failed"
	ToolFailurePanic            ToolFailureReason = "handler_panicked"
	ToolFailureCanceled         ToolFailureReason = "canceled"
	ToolFailureApproval         ToolFailureReason = "approval_failed"
)

// ToolExecutionError is reported back to the model as an error tool result. It is never retried.
type ToolExecutionError struct {
	Tool   string
	CallID string
	Reason ToolFailureReason
	Err    error
}

func (e *ToolExecutionError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("tool %s: %s", e.Tool, e.Reason)
	}
	return fmt.Sprintf("tool %s: %s: %v", e.Tool, e.Reason, e.Err)
}

func (e *ToolExecutionError) Unwrap() error { return e.Err }

func (e *ToolExecutionError) Is(target error) bool { return target == ErrToolExecution }

// LoopExhaustedError means the iteration cap was hit and the forced final call
// did not yield a textual answer. BestEffort holds the last text seen, if any.
type LoopExhaustedError struct {
	Model      string
	Iterations int
	BestEffort string
	Err        error // failure of the forced final call, if it failed outright
}

func (e *LoopExhaustedError) Error() string {
	msg := fmt.Sprintf("model %s: no final answer after %d tool iterations", e.Model, e.Iterations)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *LoopExhaustedError) Unwrap() error { return e.Err }

func (e *LoopExhaustedError) Is(target error) bool { return target == ErrLoopExhausted }

// TimeoutScope names which deadline fired.
type TimeoutScope string

const (
	TimeoutScopeModel TimeoutScope = "model"
	TimeoutScopeTurn  TimeoutScope = "turn"
)

// TimeoutError is recorded for a model whose run exceeded its deadline.
type TimeoutError struct {
	Model   string
	Scope   TimeoutScope
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	if e.Timeout > 0 {
		return fmt.Sprintf("model %s: %s deadline of %s exceeded", e.Model, e.Scope, e.Timeout)
	}
	return fmt.Sprintf("model %s: %s deadline exceeded", e.Model, e.Scope)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrModelTimeout || target == context.DeadlineExceeded
}

// ApprovalStateConflictError is returned when a transition is attempted on a record that is not pending.
type ApprovalStateConflictError struct {
	ApprovalID string
	Current    string
	Attempted  string
}

func (e *ApprovalStateConflictError) Error() string {
	return fmt.Sprintf("approval %s cannot become %s: status is %s", e.ApprovalID, e.Attempted, e.Current)
}

func (e *ApprovalStateConflictError) StatusCode() int { return http.StatusConflict }

func (e *ApprovalStateConflictError) Is(target error) bool { return target == ErrApprovalStateConflict }

// ModelFailure summarizes one failed model for TotalConsensusFailureError.
type ModelFailure struct {
	ModelID string `json:"model_id"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// TotalConsensusFailureError fails a whole turn: no selected model produced an answer.
type TotalConsensusFailureError struct {
	Failures []ModelFailure
}

func (e *TotalConsensusFailureError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = fmt.Sprintf("%s (%s)", f.ModelID, f.Kind)
	}
	return fmt.Sprintf("every selected model failed: %s", strings.Join(parts, ", "))
}

func (e *TotalConsensusFailureError) StatusCode() int { return http.StatusBadGateway }

func (e *TotalConsensusFailureError) Is(target error) bool { return target == ErrTotalConsensusFailure }

// ErrorKind returns a stable, serializable kind for an orchestration error.
func ErrorKind(err error) string {
	var providerErr *ProviderError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrLoopExhausted):
		return "loop_exhausted"
	case errors.Is(err, ErrModelTimeout):
		return "timeout"
	case errors.As(err, &providerErr):
		return "provider_" + string(providerErr.Kind)
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrToolExecution):
		return "tool_execution"
	case errors.Is(err, ErrApprovalStateConflict):
		return "approval_state_conflict"
	case errors.Is(err, ErrTotalConsensusFailure):
		return "total_consensus_failure"
	default:
		return "internal"
	}
}
