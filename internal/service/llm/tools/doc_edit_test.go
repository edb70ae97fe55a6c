package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"council/internal/domain"
	"council/internal/domain/models/approval"
)

func runEdit(t *testing.T, store *memoryContent, input map[string]interface{}) *Result {
	t.Helper()
	res, err := NewEditTool(store, nil).Execute(context.Background(), Invocation{Name: "doc_edit", Input: input})
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

// errorCode requires err to be a handler failure and returns its code.
func errorCode(t *testing.T, err error) string {
	t.Helper()
	var toolErr *domain.ToolExecutionError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, domain.ToolFailureHandler, toolErr.Reason)
	var coded *CodedError
	require.True(t, errors.As(err, &coded), "expected a coded error, got %v", err)
	return coded.Code
}

func TestEditTool_Commands(t *testing.T) {
	const doc = "line one\nline two\nline three"

	tests := []struct {
		name     string
		input    map[string]interface{}
		proposed string
	}{
		{
			name:     "str_replace",
			input:    map[string]interface{}{"command": "str_replace", "old_str": "two", "new_str": "2"},
			proposed: "line one\nline 2\nline three",
		},
		{
			name:     "str_replace deletion",
			input:    map[string]interface{}{"command": "str_replace", "old_str": "line two\n", "new_str": ""},
			proposed: "line one\nline three",
		},
		{
			name:     "insert at start",
			input:    map[string]interface{}{"command": "insert", "insert_line": float64(0), "new_str": "title"},
			proposed: "title\nline one\nline two\nline three",
		},
		{
			name:     "insert after line 2",
			input:    map[string]interface{}{"command": "insert", "insert_line": float64(2), "new_str": "between"},
			proposed: "line one\nline two\nbetween\nline three",
		},
		{
			name:     "append",
			input:    map[string]interface{}{"command": "append", "new_str": "line four"},
			proposed: doc + "\nline four",
		},
		{
			name:     "overwrite",
			input:    map[string]interface{}{"command": "overwrite", "file_text": "fresh"},
			proposed: "fresh",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemoryContent(map[string]string{"doc": doc})
			tt.input["file_id"] = "doc"

			res := runEdit(t, store, tt.input)
			require.NotNil(t, res.Effect, "expected a proposal, got %v", res.Output)

			assert.Equal(t, approval.ChangeTypeEdit, res.Effect.ChangeType)
			assert.Equal(t, "doc", res.Effect.FileID)
			assert.Equal(t, doc, res.Effect.OriginalContent)
			assert.Equal(t, tt.proposed, res.Effect.ProposedContent)
			require.NotNil(t, res.Effect.Confidence)
			assert.Equal(t, DefaultToolConfig().DefaultEditConfidence, *res.Effect.Confidence)

			// The tool never writes
			text, _ := store.ReadFileContent(context.Background(), "doc")
			assert.Equal(t, doc, text)
		})
	}
}

func TestEditTool_Errors(t *testing.T) {
	const doc = "a b a"

	tests := []struct {
		name  string
		input map[string]interface{}
		code  string
	}{
		{"missing file id", map[string]interface{}{"command": "append", "new_str": "x"}, "MISSING_FILE_ID"},
		{"unknown file", map[string]interface{}{"command": "append", "file_id": "nope", "new_str": "x"}, "FILE_NOT_FOUND"},
		{"no match", map[string]interface{}{"command": "str_replace", "file_id": "doc", "old_str": "z", "new_str": "y"}, "NO_MATCH"},
		{"ambiguous match", map[string]interface{}{"command": "str_replace", "file_id": "doc", "old_str": "a", "new_str": "y"}, "AMBIGUOUS_MATCH"},
		{"line out of range", map[string]interface{}{"command": "insert", "file_id": "doc", "insert_line": float64(9), "new_str": "y"}, "INVALID_LINE"},
		{"no change", map[string]interface{}{"command": "overwrite", "file_id": "doc", "file_text": doc}, "NO_CHANGE"},
		{"create without title", map[string]interface{}{"command": "create", "file_text": "x"}, "MISSING_TITLE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := NewEditTool(newMemoryContent(map[string]string{"doc": doc}), nil).Execute(context.Background(), Invocation{Name: "doc_edit", Input: tt.input})
			assert.Nil(t, res)
			assert.Equal(t, tt.code, errorCode(t, err))
		})
	}
}

func TestEditTool_Create(t *testing.T) {
	res := runEdit(t, newMemoryContent(nil), map[string]interface{}{
		"command":    "create",
		"title":      "Launch notes",
		"file_text":  "# Launch",
		"confidence": float64(150),
		"ttl_hours":  float64(2),
		"reasoning":  "user asked for notes",
	})
	require.NotNil(t, res.Effect)

	p := res.Effect
	assert.Equal(t, approval.ChangeTypeCreate, p.ChangeType)
	assert.NotEmpty(t, p.FileID)
	assert.Equal(t, "Launch notes", p.Title)
	assert.Equal(t, "# Launch", p.ProposedContent)
	assert.Empty(t, p.OriginalContent)
	assert.Equal(t, "user asked for notes", p.Reasoning)
	assert.Equal(t, "Launch notes", p.Payload["title"])
	require.NotNil(t, p.Confidence)
	assert.Equal(t, 150, *p.Confidence, "clamping happens in the approval gate")
	assert.Equal(t, 2*3600.0, p.TTL.Seconds())
}

func TestFileReadTool(t *testing.T) {
	store := newMemoryContent(map[string]string{"doc": "one\ntwo", "big": "héllo wörld"})
	cfg := DefaultToolConfig()
	cfg.MaxContentSize = 2
	tool := NewFileReadTool(store, cfg)

	res, err := tool.Execute(context.Background(), Invocation{Input: map[string]interface{}{"file_id": "big"}})
	require.NoError(t, err)
	out := res.Output.(map[string]interface{})
	assert.Equal(t, true, out["truncated"])
	assert.Equal(t, "h", out["content"], "truncation never splits a multi-byte rune")

	res, err = NewFileReadTool(store, nil).Execute(context.Background(), Invocation{Input: map[string]interface{}{"file_id": "doc"}})
	require.NoError(t, err)
	out = res.Output.(map[string]interface{})
	assert.Equal(t, "one\ntwo", out["content"])
	assert.Equal(t, 2, out["line_count"])

	_, err = tool.Execute(context.Background(), Invocation{Input: map[string]interface{}{"file_id": "missing"}})
	assert.Equal(t, "FILE_NOT_FOUND", errorCode(t, err))
}
