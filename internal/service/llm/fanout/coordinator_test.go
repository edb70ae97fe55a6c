package fanout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"council/internal/domain"
	"council/internal/domain/models/llm"
	"council/internal/service/llm/agentloop"
	"council/internal/service/llm/llmtest"
)

type runnerFunc func(ctx context.Context, in agentloop.Input) llm.ModelRunOutcome

func (f runnerFunc) Run(ctx context.Context, in agentloop.Input) llm.ModelRunOutcome {
	return f(ctx, in)
}

func snapshot() *llm.Conversation {
	conv := llm.NewConversation("be brief", nil)
	conv.AppendUser("what is 6x7?")
	return conv
}

func singleShotEngine() *agentloop.Engine {
	return agentloop.NewEngine(nil, agentloop.Config{}, nil)
}

func TestCoordinator_Run_OutcomesInSelectionOrder(t *testing.T) {
	a := llmtest.NewScriptedProvider("pa", llmtest.Slow(20*time.Millisecond, llmtest.Text("from a")))
	b := llmtest.NewScriptedProvider("pb", llmtest.Text("from b"))
	resolver := llmtest.NewResolver().
		Add("model-a", a, llmtest.TextOnly()).
		Add("model-b", b, llmtest.TextOnly())

	snap := snapshot()
	c := NewCoordinator(resolver, singleShotEngine(), Config{ModelDeadline: time.Second}, nil)
	outcomes := c.Run(context.Background(), Request{ModelIDs: []string{"model-a", "model-b"}, Snapshot: snap})

	require.Len(t, outcomes, 2)
	assert.Equal(t, "model-a", outcomes[0].ModelID)
	assert.Equal(t, "from a", outcomes[0].Answer())
	assert.Equal(t, "model-b", outcomes[1].ModelID)
	assert.Equal(t, "from b", outcomes[1].Answer())

	// Both models saw the same snapshot and the snapshot was left alone
	assert.Equal(t, 1, snap.Len())
	assert.Equal(t, a.Calls()[0].Turns, b.Calls()[0].Turns)
}

func TestCoordinator_Run_StragglerTimesOutWithoutBlocking(t *testing.T) {
	fast := llmtest.NewScriptedProvider("fast", llmtest.Text("quick answer"))
	slow := llmtest.NewScriptedProvider("slow", llmtest.Slow(10*time.Second, llmtest.Text("too late")))
	resolver := llmtest.NewResolver().
		Add("fast", fast, llmtest.TextOnly()).
		Add("slow", slow, llmtest.TextOnly())

	c := NewCoordinator(resolver, singleShotEngine(), Config{ModelDeadline: 50 * time.Millisecond}, nil)

	start := time.Now()
	outcomes := c.Run(context.Background(), Request{ModelIDs: []string{"fast", "slow"}, Snapshot: snapshot()})
	assert.Less(t, time.Since(start), 2*time.Second)

	require.True(t, outcomes[0].Succeeded())
	assert.False(t, outcomes[1].Succeeded())

	var timeout *domain.TimeoutError
	require.ErrorAs(t, outcomes[1].Err, &timeout)
	assert.Equal(t, domain.TimeoutScopeModel, timeout.Scope)
	assert.Equal(t, "slow", timeout.Model)
	assert.ErrorIs(t, outcomes[1].Err, domain.ErrModelTimeout)
	assert.Equal(t, "timeout", domain.ErrorKind(outcomes[1].Err))
}

func TestCoordinator_Run_RunnerIgnoringContextIsAbandoned(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	runner := runnerFunc(func(ctx context.Context, in agentloop.Input) llm.ModelRunOutcome {
		if in.ModelID == "stuck" {
			<-release
		}
		answer := "ok"
		return llm.ModelRunOutcome{ModelID: in.ModelID, FinalAnswer: &answer}
	})
	p := llmtest.NewScriptedProvider("p", llmtest.Text("unused"))
	resolver := llmtest.NewResolver().Add("stuck", p, llmtest.TextOnly()).Add("fine", p, llmtest.TextOnly())

	c := NewCoordinator(resolver, runner, Config{ModelDeadline: 30 * time.Millisecond}, nil)

	done := make(chan []llm.ModelRunOutcome, 1)
	go func() {
		done <- c.Run(context.Background(), Request{ModelIDs: []string{"stuck", "fine"}, Snapshot: snapshot()})
	}()

	select {
	case outcomes := <-done:
		assert.ErrorIs(t, outcomes[0].Err, domain.ErrModelTimeout)
		assert.True(t, outcomes[1].Succeeded())
	case <-time.After(2 * time.Second):
		t.Fatal("coordinator waited on a straggler past its deadline")
	}
}

func TestCoordinator_Run_TurnDeadline(t *testing.T) {
	slow := llmtest.NewScriptedProvider("slow", llmtest.Slow(10*time.Second, llmtest.Text("late")))
	resolver := llmtest.NewResolver().Add("a", slow, llmtest.TextOnly()).Add("b", slow, llmtest.TextOnly())

	tests := []struct {
		name string
		cfg  Config
		req  Request
	}{
		{"configured", Config{TurnDeadline: 40 * time.Millisecond}, Request{}},
		{"request deadline is earlier", Config{TurnDeadline: time.Hour}, Request{Deadline: time.Now().Add(40 * time.Millisecond)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			req.ModelIDs = []string{"a", "b"}
			req.Snapshot = snapshot()

			outcomes := NewCoordinator(resolver, singleShotEngine(), tt.cfg, nil).Run(context.Background(), req)
			require.Len(t, outcomes, 2)
			for _, o := range outcomes {
				var timeout *domain.TimeoutError
				require.ErrorAs(t, o.Err, &timeout)
				assert.Equal(t, domain.TimeoutScopeTurn, timeout.Scope)
			}
		})
	}
}

func TestCoordinator_Run_CallerCancellation(t *testing.T) {
	slow := llmtest.NewScriptedProvider("slow", llmtest.Slow(10*time.Second, llmtest.Text("late")))
	resolver := llmtest.NewResolver().Add("a", slow, llmtest.TextOnly())

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	outcomes := NewCoordinator(resolver, singleShotEngine(), Config{}, nil).
		Run(ctx, Request{ModelIDs: []string{"a"}, Snapshot: snapshot()})

	require.Len(t, outcomes, 1)
	assert.ErrorIs(t, outcomes[0].Err, context.Canceled)
	assert.False(t, errors.Is(outcomes[0].Err, domain.ErrModelTimeout))
	assert.Equal(t, "canceled", domain.ErrorKind(outcomes[0].Err))
}

func TestCoordinator_Run_UnknownModelIsAnOutcome(t *testing.T) {
	ok := llmtest.NewScriptedProvider("p", llmtest.Text("fine"))
	resolver := llmtest.NewResolver().Add("known", ok, llmtest.TextOnly())

	outcomes := NewCoordinator(resolver, singleShotEngine(), Config{}, nil).
		Run(context.Background(), Request{ModelIDs: []string{"ghost", "known"}, Snapshot: snapshot()})

	assert.ErrorIs(t, outcomes[0].Err, domain.ErrNotFound)
	assert.True(t, outcomes[1].Succeeded())
}

func TestCoordinator_Run_ProgressHooks(t *testing.T) {
	p := llmtest.NewScriptedProvider("p", llmtest.Text("x"))
	resolver := llmtest.NewResolver().Add("a", p, llmtest.TextOnly()).Add("b", p, llmtest.TextOnly())

	var mu sync.Mutex
	started := map[string]bool{}
	completed := map[string]bool{}
	req := Request{
		ModelIDs: []string{"a", "b"},
		Snapshot: snapshot(),
		OnModelStart: func(id string) {
			mu.Lock()
			started[id] = true
			mu.Unlock()
		},
		OnModelComplete: func(out llm.ModelRunOutcome) {
			mu.Lock()
			completed[out.ModelID] = out.Succeeded()
			mu.Unlock()
		},
	}
	NewCoordinator(resolver, singleShotEngine(), Config{}, nil).Run(context.Background(), req)

	assert.Equal(t, map[string]bool{"a": true, "b": true}, started)
	assert.Equal(t, map[string]bool{"a": true, "b": true}, completed)
}
