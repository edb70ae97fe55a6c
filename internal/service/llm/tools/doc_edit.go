package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"council/internal/domain"
	"council/internal/domain/models/approval"
	contentRepo "council/internal/domain/repositories/content"
)

// EditTool implements the 'doc_edit' tool.
// It never writes: each command computes the proposed content and returns it
// as an effect for the user to approve.
type EditTool struct {
	store  contentRepo.ContentStore
	config *ToolConfig
}

// NewEditTool creates a new EditTool instance.
func NewEditTool(store contentRepo.ContentStore, config *ToolConfig) *EditTool {
	if config == nil {
		config = DefaultToolConfig()
	}
	return &EditTool{store: store, config: config}
}

// EditToolDefinition declares doc_edit.
func EditToolDefinition() Definition {
	return Definition{
		Name: "doc_edit",
		Description: "Propose a change to a document. The change is not applied until the user approves it. " +
			"Commands: str_replace (replace one exact, unique occurrence of old_str with new_str), " +
			"insert (insert new_str after line insert_line, 0 = start), append (add new_str at the end), " +
			"overwrite (replace the whole document with file_text), create (new document with title and file_text).",
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"command": map[string]interface{}{
					"type": "string",
					"enum": []string{"str_replace", "insert", "append", "overwrite", "create"},
				},
				"file_id": map[string]interface{}{
					"type":        "string",
					"description": "ID of the document to change. Omit for create.",
				},
				"title":       map[string]interface{}{"type": "string", "description": "Title for create, or a short label for the change."},
				"old_str":     map[string]interface{}{"type": "string", "description": "For str_replace: exact text to find."},
				"new_str":     map[string]interface{}{"type": "string", "description": "For str_replace, insert, append: new text."},
				"insert_line": map[string]interface{}{"type": "integer", "minimum": 0},
				"file_text":   map[string]interface{}{"type": "string", "description": "For overwrite and create: full content."},
				"reasoning":   reasoningProperty,
				"confidence":  confidenceProperty,
				"ttl_hours":   ttlProperty,
			},
			"required": []string{"command"},
		},
		Mutating:  true,
		Reentrant: true,
	}
}

// Execute implements ToolExecutor interface.
func (t *EditTool) Execute(ctx context.Context, inv Invocation) (*Result, error) {
	input := inv.Input
	command := stringArg(input, "command")

	if command == "create" {
		return t.executeCreate(inv)
	}

	fileID := stringArg(input, "file_id")
	if fileID == "" {
		return nil, toolError(inv, "MISSING_FILE_ID", fmt.Sprintf("%s requires file_id", command))
	}

	original, err := t.store.ReadFileContent(ctx, fileID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, toolError(inv, "FILE_NOT_FOUND", fmt.Sprintf("File not found: %s", fileID))
		}
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var proposed, description string
	switch command {
	case "str_replace":
		oldStr, _ := rawStringArg(input, "old_str")
		newStr, _ := rawStringArg(input, "new_str") // can be empty (deletion)
		if oldStr == "" {
			return nil, toolError(inv, "MISSING_OLD_STR", "str_replace requires old_str")
		}
		switch n := strings.Count(original, oldStr); {
		case n == 0:
			return nil, toolError(inv, "NO_MATCH", "Text not found in document. Use file_read to see current content and try again.")
		case n > 1:
			return nil, toolError(inv, "AMBIGUOUS_MATCH", fmt.Sprintf("Text appears %d times. Provide more surrounding context to make the match unique.", n))
		}
		proposed = strings.Replace(original, oldStr, newStr, 1)
		description = "Replace text"

	case "insert":
		newStr, ok := rawStringArg(input, "new_str")
		if !ok {
			return nil, toolError(inv, "MISSING_NEW_STR", "insert requires new_str")
		}
		lines := strings.Split(original, "\n")
		insertLine := intArg(input, "insert_line", -1)
		// 0 = before line 1, len(lines) = at the end
		if insertLine < 0 || insertLine > len(lines) {
			return nil, toolError(inv, "INVALID_LINE", fmt.Sprintf("Line %d out of range. Document has %d lines (valid range: 0-%d).", insertLine, len(lines), len(lines)))
		}
		newLines := make([]string, 0, len(lines)+1)
		newLines = append(newLines, lines[:insertLine]...)
		newLines = append(newLines, newStr)
		newLines = append(newLines, lines[insertLine:]...)
		proposed = strings.Join(newLines, "\n")
		description = fmt.Sprintf("Insert text after line %d", insertLine)

	case "append":
		newStr, _ := rawStringArg(input, "new_str")
		if newStr == "" {
			return nil, toolError(inv, "MISSING_NEW_STR", "append requires new_str")
		}
		proposed = original
		if original != "" && !strings.HasSuffix(original, "\n") {
			proposed += "\n"
		}
		proposed += newStr
		description = "Append text"

	case "overwrite":
		fileText, ok := rawStringArg(input, "file_text")
		if !ok {
			return nil, toolError(inv, "MISSING_FILE_TEXT", "overwrite requires file_text")
		}
		proposed = fileText
		description = "Replace the whole document"

	default:
		return nil, toolError(inv, "UNKNOWN_COMMAND", fmt.Sprintf("unknown command: %s", command))
	}

	if proposed == original {
		return nil, toolError(inv, "NO_CHANGE", "The proposed content is identical to the current content.")
	}

	confidence := confidenceArg(input)
	if confidence == nil {
		d := t.config.DefaultEditConfidence
		confidence = &d
	}

	return Propose(&approval.Proposal{
		FileID:          fileID,
		Title:           titleOr(stringArg(input, "title"), description),
		Description:     description,
		ChangeType:      approval.ChangeTypeEdit,
		OriginalContent: original,
		ProposedContent: proposed,
		Reasoning:       stringArg(input, "reasoning"),
		Confidence:      confidence,
		TTL:             ttlArg(input),
	}), nil
}

func (t *EditTool) executeCreate(inv Invocation) (*Result, error) {
	input := inv.Input
	title := stringArg(input, "title")
	if title == "" {
		return nil, toolError(inv, "MISSING_TITLE", "create requires title")
	}
	fileText, ok := rawStringArg(input, "file_text")
	if !ok {
		return nil, toolError(inv, "MISSING_FILE_TEXT", "create requires file_text")
	}

	confidence := confidenceArg(input)
	if confidence == nil {
		d := t.config.DefaultCreateConfidence
		confidence = &d
	}

	return Propose(&approval.Proposal{
		FileID:          uuid.NewString(),
		Title:           title,
		Description:     "Create a new document",
		ChangeType:      approval.ChangeTypeCreate,
		ProposedContent: fileText,
		Reasoning:       stringArg(input, "reasoning"),
		Confidence:      confidence,
		TTL:             ttlArg(input),
		Payload:         map[string]interface{}{"title": title},
	}), nil
}

func titleOr(title, fallback string) string {
	if title != "" {
		return title
	}
	return fallback
}
