package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"council/internal/domain"
	contentRepo "council/internal/domain/repositories/content"
)

// FileReadTool implements the 'file_read' tool.
type FileReadTool struct {
	store  contentRepo.ContentStore
	config *ToolConfig
}

// NewFileReadTool creates a new FileReadTool instance.
func NewFileReadTool(store contentRepo.ContentStore, config *ToolConfig) *FileReadTool {
	if config == nil {
		config = DefaultToolConfig()
	}
	return &FileReadTool{store: store, config: config}
}

// FileReadToolDefinition declares file_read.
func FileReadToolDefinition() Definition {
	return Definition{
		Name:        "file_read",
		Description: "Read the text content of a file by its ID. Long files are truncated.",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"file_id": map[string]interface{}{
					"type":        "string",
					"description": "ID of the file to read.",
					"minLength":   1,
				},
			},
			"required": []string{"file_id"},
		},
		Reentrant: true,
	}
}

// Execute implements ToolExecutor interface.
// Returns:
//   - {file_id: string, content: string, truncated: bool, line_count: int}
func (t *FileReadTool) Execute(ctx context.Context, inv Invocation) (*Result, error) {
	fileID := stringArg(inv.Input, "file_id")

	text, err := t.store.ReadFileContent(ctx, fileID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, toolError(inv, "FILE_NOT_FOUND", fmt.Sprintf("File not found: %s", fileID))
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	truncated := false
	if len(text) > t.config.MaxContentSize {
		text = truncateUTF8(text, t.config.MaxContentSize)
		truncated = true
	}

	return Output(map[string]interface{}{
		"file_id":    fileID,
		"content":    text,
		"truncated":  truncated,
		"line_count": strings.Count(text, "\n") + 1,
	}), nil
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
