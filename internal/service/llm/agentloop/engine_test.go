package agentloop

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"council/internal/domain"
	"council/internal/domain/models/approval"
	"council/internal/domain/models/llm"
	domainllm "council/internal/domain/services/llm"
	"council/internal/service/llm/llmtest"
	"council/internal/service/llm/tools"
	"council/internal/service/llm/tools/external"
)

type recordingSink struct {
	mu        sync.Mutex
	proposals []approval.Proposal
}

func (s *recordingSink) Propose(ctx context.Context, p *approval.Proposal) (*approval.DocumentApproval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.proposals = append(s.proposals, *p)
	return &approval.DocumentApproval{
		ID:        fmt.Sprintf("appr-%d", len(s.proposals)),
		FileID:    p.FileID,
		Status:    approval.StatusPending,
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}, nil
}

type fakeDrive struct {
	mu     sync.Mutex
	files  map[string]external.DriveFile
	copies int
}

func (f *fakeDrive) Search(ctx context.Context, userID string, q external.DriveQuery) ([]external.DriveFile, error) {
	var out []external.DriveFile
	for _, file := range f.files {
		if strings.Contains(file.Name, q.NameContains) && (q.MimeType == "" || q.MimeType == file.MimeType) {
			out = append(out, file)
		}
	}
	return out, nil
}

func (f *fakeDrive) GetFile(ctx context.Context, userID, fileID string) (*external.DriveFile, error) {
	file, ok := f.files[fileID]
	if !ok {
		return nil, errors.New("not found")
	}
	return &file, nil
}

func (f *fakeDrive) CopyFile(ctx context.Context, userID, fileID, folderID, name string) (*external.DriveFile, error) {
	f.mu.Lock()
	f.copies++
	f.mu.Unlock()
	return &external.DriveFile{ID: "copy"}, nil
}

func echoDefinition() tools.Definition {
	return tools.Definition{Name: "echo", Description: "echo input", Reentrant: true}
}

func newEngine(t *testing.T, sink tools.EffectSink, configure func(*tools.ToolRegistryBuilder)) *Engine {
	t.Helper()
	b := tools.NewToolRegistryBuilder().WithTool(echoDefinition(), tools.ToolExecutorFunc(
		func(ctx context.Context, inv tools.Invocation) (*tools.Result, error) {
			return tools.Output(map[string]interface{}{"echo": inv.Input}), nil
		}))
	if configure != nil {
		configure(b)
	}
	registry, err := b.Build()
	require.NoError(t, err)
	return NewEngine(tools.NewExecutor(registry, sink, 4, nil), Config{MaxIterations: 10}, nil)
}

func input(provider domainllm.Provider, caps domainllm.ModelCapabilities) Input {
	caps.ModelID = "model-a"
	conv := llm.NewConversation("system", nil)
	conv.AppendUser("question")
	return Input{ModelID: "model-a", Provider: provider, Capabilities: &caps, Conversation: conv, SessionID: "s", UserID: "u"}
}

func TestEngine_FinalAnswerOnFirstCall(t *testing.T) {
	provider := llmtest.NewScriptedProvider("p", llmtest.Text("42"))
	out := newEngine(t, nil, nil).Run(context.Background(), input(provider, llmtest.ParallelToolCapable()))

	require.True(t, out.Succeeded())
	assert.Equal(t, "42", out.Answer())
	assert.Equal(t, 0, out.IterationsUsed)
	assert.Equal(t, 0, out.ToolCallsMade)
	require.Equal(t, 1, provider.CallCount())

	call := provider.Calls()[0]
	assert.Equal(t, domainllm.ToolChoiceAuto, call.Options.ToolChoice, "the engine never forces a tool call")
	assert.Equal(t, []string{"echo"}, call.ToolNames)
	assert.True(t, call.Options.Idempotent)
	assert.Equal(t, "system", call.System)
}

func TestEngine_AlwaysRequestingToolsTerminatesAfterCapPlusOne(t *testing.T) {
	provider := llmtest.NewGeneratedProvider("p", func(n int) llmtest.Step {
		return llmtest.Calls(llmtest.Call(fmt.Sprintf("call-%d", n), "echo", nil))
	})
	out := newEngine(t, nil, nil).Run(context.Background(), input(provider, llmtest.ParallelToolCapable()))

	assert.Equal(t, 11, provider.CallCount(), "10 iterations plus one forced final call")
	assert.Equal(t, 10, out.IterationsUsed)
	assert.Equal(t, 10, out.ToolCallsMade)
	assert.True(t, out.Degraded)
	assert.ErrorIs(t, out.Err, domain.ErrLoopExhausted)
	assert.Nil(t, out.FinalAnswer, "no text was ever produced")

	calls := provider.Calls()
	for _, c := range calls[:10] {
		assert.Equal(t, domainllm.ToolChoiceAuto, c.Options.ToolChoice)
	}
	forced := calls[10]
	assert.Equal(t, domainllm.ToolChoiceNone, forced.Options.ToolChoice)
	assert.Equal(t, []string{"echo"}, forced.ToolNames, "tools stay declared on the forced call")
}

func TestEngine_ForcedFinalCall(t *testing.T) {
	loopSteps := func(final llmtest.Step) []llmtest.Step {
		steps := make([]llmtest.Step, 0, 11)
		for i := 1; i <= 10; i++ {
			step := llmtest.Calls(llmtest.Call(fmt.Sprintf("c%d", i), "echo", nil))
			if i == 7 {
				step.Response.Text = "thinking out loud"
			}
			steps = append(steps, step)
		}
		return append(steps, final)
	}

	t.Run("text answer succeeds", func(t *testing.T) {
		provider := llmtest.NewScriptedProvider("p", loopSteps(llmtest.Text("wrapped up"))...)
		out := newEngine(t, nil, nil).Run(context.Background(), input(provider, llmtest.ParallelToolCapable()))

		require.True(t, out.Succeeded(), "err: %v", out.Err)
		assert.Equal(t, "wrapped up", out.Answer())
		assert.False(t, out.Degraded)
		assert.Equal(t, 10, out.IterationsUsed)
	})

	t.Run("tool request degrades with best effort text", func(t *testing.T) {
		provider := llmtest.NewScriptedProvider("p", loopSteps(llmtest.Calls(llmtest.Call("c11", "echo", nil)))...)
		out := newEngine(t, nil, nil).Run(context.Background(), input(provider, llmtest.ParallelToolCapable()))

		assert.True(t, out.Degraded)
		var exhausted *domain.LoopExhaustedError
		require.ErrorAs(t, out.Err, &exhausted)
		assert.Equal(t, "thinking out loud", exhausted.BestEffort)
		assert.Equal(t, "thinking out loud", out.Answer())
		assert.False(t, out.Succeeded())
	})

	t.Run("provider failure degrades", func(t *testing.T) {
		boom := &domain.ProviderError{Provider: "p", Model: "model-a", Kind: domain.ProviderErrorUnavailable}
		provider := llmtest.NewScriptedProvider("p", loopSteps(llmtest.Fail(boom))...)
		out := newEngine(t, nil, nil).Run(context.Background(), input(provider, llmtest.ParallelToolCapable()))

		assert.True(t, out.Degraded)
		assert.ErrorIs(t, out.Err, domain.ErrLoopExhausted)
		assert.ErrorIs(t, out.Err, domain.ErrProviderTransport)
		assert.Equal(t, "loop_exhausted", domain.ErrorKind(out.Err))
	})
}

func TestEngine_ParallelCallsAllAnsweredBeforeNextCall(t *testing.T) {
	provider := llmtest.NewScriptedProvider("p",
		llmtest.Calls(
			llmtest.Call("a", "echo", map[string]interface{}{"n": 1.0}),
			llmtest.Call("b", "echo", map[string]interface{}{"n": 2.0}),
			llmtest.Call("c", "missing_tool", nil),
		),
		llmtest.Text("done"),
	)
	var iterations []Iteration
	in := input(provider, llmtest.ParallelToolCapable())
	in.OnIteration = func(it Iteration) { iterations = append(iterations, it) }

	out := newEngine(t, nil, nil).Run(context.Background(), in)
	require.True(t, out.Succeeded())
	assert.Equal(t, 1, out.IterationsUsed)
	assert.Equal(t, 3, out.ToolCallsMade)

	second := provider.Calls()[1]
	assert.True(t, provider.Calls()[0].Options.AllowParallelToolCalls)

	// user, assistant(3 calls), 3 tool turns
	require.Len(t, second.Turns, 5)
	ids := map[string]bool{}
	for _, turn := range second.Turns[2:] {
		require.Equal(t, llm.RoleTool, turn.Role)
		ids[turn.ToolResult.ToolCallID] = true
	}
	assert.Equal(t, map[string]bool{"a": true, "b": true, "c": true}, ids)
	assert.True(t, second.Turns[4].ToolResult.IsError, "a failed tool call is reported, not fatal")

	require.Len(t, iterations, 1)
	assert.Len(t, iterations[0].Results, 3)
}

func TestEngine_SequentialModelCompletesDependentWorkflow(t *testing.T) {
	drive := &fakeDrive{files: map[string]external.DriveFile{
		"folder-mkt": {ID: "folder-mkt", Name: "Marketing", MimeType: external.MimeTypeFolder},
		"doc-q4":     {ID: "doc-q4", Name: "Q4 report", MimeType: external.MimeTypeDocument},
	}}
	sink := &recordingSink{}
	engine := newEngine(t, sink, func(b *tools.ToolRegistryBuilder) { b.WithDriveTools(drive) })

	provider := llmtest.NewScriptedProvider("p",
		llmtest.Calls(llmtest.Call("t1", "drive_search", map[string]interface{}{"name": "Marketing", "kind": "folder"})),
		llmtest.Calls(llmtest.Call("t2", "drive_search", map[string]interface{}{"name": "Q4 report"})),
		llmtest.Calls(llmtest.Call("t3", "drive_copy", map[string]interface{}{"file_id": "doc-q4", "folder_id": "folder-mkt"})),
		llmtest.Text("Copy of Q4 report into Marketing is awaiting your approval."),
	)
	provider.Strict = true

	out := engine.Run(context.Background(), input(provider, llmtest.ToolCapable()))
	require.True(t, out.Succeeded(), "err: %v", out.Err)
	assert.Equal(t, 3, out.IterationsUsed)
	assert.Equal(t, 3, out.ToolCallsMade)
	assert.Equal(t, 4, provider.CallCount())

	calls := provider.Calls()
	for _, c := range calls {
		assert.False(t, c.Options.AllowParallelToolCalls)
	}
	// Each iteration's result feeds the next call
	for i := 1; i < 4; i++ {
		last := calls[i].Turns[len(calls[i].Turns)-1]
		require.Equal(t, llm.RoleTool, last.Role)
		assert.Equal(t, fmt.Sprintf("t%d", i), last.ToolResult.ToolCallID)
	}
	assert.Contains(t, calls[1].Turns[len(calls[1].Turns)-1].Content, "folder-mkt")
	assert.Contains(t, calls[3].Turns[len(calls[3].Turns)-1].Content, "pending_approval")

	assert.Zero(t, drive.copies, "the copy waits for approval")
	require.Len(t, sink.proposals, 1)
	assert.Equal(t, approval.ChangeTypeCopy, sink.proposals[0].ChangeType)
	assert.Equal(t, "model-a", sink.proposals[0].ModelID)
	assert.Equal(t, "t3", sink.proposals[0].ToolCallID)
}

func TestEngine_TextOnlyModelRunsSingleShot(t *testing.T) {
	provider := llmtest.NewScriptedProvider("p", llmtest.Text("plain answer"))
	out := newEngine(t, nil, nil).Run(context.Background(), input(provider, llmtest.TextOnly()))

	require.True(t, out.Succeeded())
	assert.Equal(t, "plain answer", out.Answer())
	require.Equal(t, 1, provider.CallCount())
	call := provider.Calls()[0]
	assert.Empty(t, call.ToolNames)
	assert.Equal(t, domainllm.ToolChoiceNone, call.Options.ToolChoice)
}

func TestEngine_ProviderErrorEndsRun(t *testing.T) {
	rateLimited := &domain.ProviderError{Provider: "p", Model: "model-a", Kind: domain.ProviderErrorRateLimit}
	provider := llmtest.NewScriptedProvider("p",
		llmtest.Calls(llmtest.Call("a", "echo", nil)),
		llmtest.Fail(rateLimited),
	)
	out := newEngine(t, nil, nil).Run(context.Background(), input(provider, llmtest.ParallelToolCapable()))

	assert.False(t, out.Succeeded())
	assert.False(t, out.Degraded)
	assert.ErrorIs(t, out.Err, rateLimited)
	assert.Equal(t, 1, out.IterationsUsed)
	assert.Equal(t, "provider_rate_limit", domain.ErrorKind(out.Err))
}

func TestEngine_DuplicateToolCallIDsAreMalformed(t *testing.T) {
	provider := llmtest.NewScriptedProvider("p",
		llmtest.Calls(llmtest.Call("same", "echo", nil), llmtest.Call("same", "echo", nil)),
	)
	out := newEngine(t, nil, nil).Run(context.Background(), input(provider, llmtest.ParallelToolCapable()))

	var pe *domain.ProviderError
	require.ErrorAs(t, out.Err, &pe)
	assert.Equal(t, domain.ProviderErrorMalformed, pe.Kind)
}

func TestEngine_DuplicateIDsRunNoTools(t *testing.T) {
	drive := &fakeDrive{files: map[string]external.DriveFile{
		"folder-mkt": {ID: "folder-mkt", Name: "Marketing", MimeType: external.MimeTypeFolder},
		"doc-q4":     {ID: "doc-q4", Name: "Q4 report", MimeType: external.MimeTypeDocument},
	}}
	sink := &recordingSink{}
	engine := newEngine(t, sink, func(b *tools.ToolRegistryBuilder) { b.WithDriveTools(drive) })

	args := map[string]interface{}{"file_id": "doc-q4", "folder_id": "folder-mkt"}
	provider := llmtest.NewScriptedProvider("p",
		llmtest.Calls(llmtest.Call("dup", "drive_copy", args), llmtest.Call("dup", "drive_copy", args)),
	)
	in := input(provider, llmtest.ParallelToolCapable())
	out := engine.Run(context.Background(), in)

	var pe *domain.ProviderError
	require.ErrorAs(t, out.Err, &pe)
	assert.Equal(t, domain.ProviderErrorMalformed, pe.Kind)
	assert.Empty(t, sink.proposals, "no approval is proposed for a rejected batch")
	assert.Zero(t, out.ToolCallsMade)
	assert.Equal(t, 1, in.Conversation.Len(), "the rejected assistant turn is not appended")
}

func TestEngine_MaxTokensUsesSmallerLimit(t *testing.T) {
	provider := llmtest.NewScriptedProvider("p", llmtest.Text("ok"))
	registry := tools.NewToolRegistry()
	engine := NewEngine(tools.NewExecutor(registry, nil, 0, nil), Config{MaxTokens: 4096}, nil)
	caps := llmtest.TextOnly()
	caps.MaxOutput = 1024

	engine.Run(context.Background(), input(provider, caps))
	assert.Equal(t, 1024, provider.Calls()[0].Options.MaxTokens)
	assert.Equal(t, 10, engine.MaxIterations(), "zero config falls back to the default cap")
}
