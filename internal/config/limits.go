package config

import "time"

const (
	// DefaultMaxToolIterations is the number of tool-calling rounds a model gets
	// before one forced final call with tool use disabled.
	DefaultMaxToolIterations = 10

	// DefaultMaxToolConcurrency bounds parallel tool executions within one iteration.
	DefaultMaxToolConcurrency = 8

	// DefaultHistoryLimit is how many persisted turns seed a new conversation.
	DefaultHistoryLimit = 50

	// DefaultApprovalTTL applies when a tool does not supply one.
	DefaultApprovalTTL = 24 * time.Hour

	// MaxApprovalTTL caps caller-supplied approval lifetimes.
	MaxApprovalTTL = 30 * 24 * time.Hour

	// MaxModelsPerTurn limits fan-out width.
	MaxModelsPerTurn = 8

	// MaxUserMessageLength is the longest accepted user message, in bytes.
	MaxUserMessageLength = 100_000

	// MaxFileReadBytes truncates file_read output sent to models.
	MaxFileReadBytes = 200_000
)
