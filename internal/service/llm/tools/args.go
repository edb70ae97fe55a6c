package tools

import (
	"strings"
	"time"

	"council/internal/domain"
)

// Input values arrive JSON-decoded: strings, float64, bool, []interface{}, maps.

func stringArg(input map[string]interface{}, key string) string {
	s, _ := input[key].(string)
	return strings.TrimSpace(s)
}

// rawStringArg returns the value without trimming (content edits keep whitespace).
func rawStringArg(input map[string]interface{}, key string) (string, bool) {
	s, ok := input[key].(string)
	return s, ok
}

func intArg(input map[string]interface{}, key string, def int) int {
	if n, ok := numberOf(input[key]); ok {
		return int(n)
	}
	return def
}

// clampedIntArg reads an integer and bounds it to [1, max].
func clampedIntArg(input map[string]interface{}, key string, def, max int) int {
	n := intArg(input, key, def)
	if n < 1 {
		return 1
	}
	if n > max {
		return max
	}
	return n
}

// confidenceArg returns the model-supplied confidence, or nil if absent.
func confidenceArg(input map[string]interface{}) *int {
	n, ok := numberOf(input["confidence"])
	if !ok {
		return nil
	}
	score := int(n)
	return &score
}

func ttlArg(input map[string]interface{}) time.Duration {
	hours, ok := numberOf(input["ttl_hours"])
	if !ok || hours <= 0 {
		return 0
	}
	return time.Duration(hours * float64(time.Hour))
}

// CodedError is a handler failure the model can recover from.
// Error codes help the LLM understand what went wrong and how to recover.
type CodedError struct {
	Code    string
	Message string
}

func (e *CodedError) Error() string { return e.Code + ": " + e.Message }

// toolError fails the call with an error tool result carrying code.
func toolError(inv Invocation, code, message string) error {
	return &domain.ToolExecutionError{
		Tool:   inv.Name,
		CallID: inv.CallID,
		Reason: domain.ToolFailureHandler,
		Err:    &CodedError{Code: code, Message: message},
	}
}

// Shared schema fragments for content-mutating tools
var (
	reasoningProperty = map[string]interface{}{
		"type":        "string",
		"description": "Why this change answers the user's request. Shown to the user when they review it.",
	}
	confidenceProperty = map[string]interface{}{
		"type":        "integer",
		"description": "How confident you are that this change is what the user wants, from 0 to 100.",
		"minimum":     0,
		"maximum":     100,
	}
	ttlProperty = map[string]interface{}{
		"type":        "number",
		"description": "Hours the user has to review the change before it expires (default 24).",
		"minimum":     0,
	}
)
