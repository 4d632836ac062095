package agent

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stepwise/llm"
	"stepwise/plan"
	"stepwise/prompts"
	"stepwise/tools"
)

// fakeLLM replays a scripted sequence of responses.
type fakeLLM struct {
	mu        sync.Mutex
	responses []*llm.Response
	calls     int
}

func (f *fakeLLM) next() (*llm.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls >= len(f.responses) {
		return nil, fmt.Errorf("fake LLM script exhausted after %d calls", f.calls)
	}
	resp := f.responses[f.calls]
	f.calls++
	return resp, nil
}

func (f *fakeLLM) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	return f.next()
}

func (f *fakeLLM) Stream(ctx context.Context, req llm.Request, ch chan<- llm.StreamChunk) error {
	defer close(ch)
	resp, err := f.next()
	if err != nil {
		return err
	}
	if resp.Content != "" {
		ch <- llm.StreamChunk{Delta: resp.Content}
	}
	for i := range resp.ToolCalls {
		tc := resp.ToolCalls[i]
		ch <- llm.StreamChunk{ToolCall: &tc}
	}
	ch <- llm.StreamChunk{Done: true}
	return nil
}

func newTestRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	r := tools.NewRegistry()
	require.NoError(t, r.Register(&tools.FuncTool{
		ToolName: "write_file",
		ToolDesc: "fake write",
		Fn: func(ctx context.Context, args map[string]any) tools.Result {
			return tools.Result{
				Success: true,
				Output:  "Wrote file",
				Data:    map[string]any{"files_changed": []string{"main.py"}},
			}
		},
	}))
	require.NoError(t, r.Register(&tools.FuncTool{
		ToolName: "fail_tool",
		ToolDesc: "always fails",
		Fn: func(ctx context.Context, args map[string]any) tools.Result {
			return tools.Fail("command exited with code 1")
		},
	}))
	return r
}

func newTestAgent(t *testing.T, script []*llm.Response) *Agent {
	t.Helper()
	cfg := &AgentConfig{Name: "test"}
	a := New("test", cfg, &fakeLLM{responses: script}, "fake-model", newTestRegistry(t), prompts.Default())
	t.Cleanup(a.Sessions.Close)
	return a
}

func runTurn(t *testing.T, a *Agent, sessionID, text string) []StreamEvent {
	t.Helper()
	eventCh := make(chan StreamEvent, 16)
	done := make(chan struct{})
	var events []StreamEvent
	go func() {
		defer close(done)
		for ev := range eventCh {
			events = append(events, ev)
		}
	}()
	a.RunTurn(context.Background(), sessionID, text, eventCh)
	<-done
	return events
}

func eventsNamed(events []StreamEvent, name string) []StreamEvent {
	var out []StreamEvent
	for _, ev := range events {
		if ev.Event == name {
			out = append(out, ev)
		}
	}
	return out
}

func createPlanCall(id string, descriptions ...string) llm.ToolCall {
	steps := make([]any, len(descriptions))
	for i, d := range descriptions {
		steps[i] = map[string]any{"description": d}
	}
	return llm.ToolCall{ID: id, Name: tools.CreatePlanName, Args: map[string]any{
		"analysis": "scripted analysis",
		"steps":    steps,
	}}
}

func TestRunTurn_DirectMode(t *testing.T) {
	a := newTestAgent(t, []*llm.Response{
		{Content: "The answer is 42."},
	})

	events := runTurn(t, a, "s1", "what is the answer?")

	starts := eventsNamed(events, "response_start")
	require.Len(t, starts, 1)
	assert.Equal(t, map[string]string{"mode": ModeDirect}, starts[0].Data)
	assert.Len(t, eventsNamed(events, "response_end"), 1)
	assert.Empty(t, eventsNamed(events, "error"))

	sess := a.Sessions.Get("s1")
	require.NotNil(t, sess)
	require.Len(t, sess.Messages, 2)
	assert.Equal(t, "user", sess.Messages[0].Role)
	assert.Equal(t, "The answer is 42.", sess.Messages[1].Content)
	assert.Nil(t, sess.Tracker.Plan())
}

func TestRunTurn_DirectModeWithTool(t *testing.T) {
	a := newTestAgent(t, []*llm.Response{
		{ToolCalls: []llm.ToolCall{{ID: "c1", Name: "write_file", Args: map[string]any{"path": "main.py"}}}},
		{Content: "Done, file written."},
	})

	events := runTurn(t, a, "s1", "write main.py")

	assert.Equal(t, map[string]string{"mode": ModeDirect}, eventsNamed(events, "response_start")[0].Data)
	require.Len(t, eventsNamed(events, "on_tool_start"), 1)
	require.Len(t, eventsNamed(events, "on_tool_end"), 1)
	assert.Empty(t, eventsNamed(events, "error"))

	sess := a.Sessions.Get("s1")
	roles := make([]string, len(sess.Messages))
	for i, m := range sess.Messages {
		roles[i] = m.Role
	}
	assert.Equal(t, []string{"user", "assistant", "tool", "assistant"}, roles)
}

func TestRunTurn_PlanModeRunsToCompletion(t *testing.T) {
	a := newTestAgent(t, []*llm.Response{
		{ToolCalls: []llm.ToolCall{createPlanCall("c1", "write the code", "verify the result")}},
		{ToolCalls: []llm.ToolCall{{ID: "c2", Name: "write_file", Args: map[string]any{"path": "main.py"}}}},
		{Content: "Step one finished."},
		{Content: "Step two finished."},
	})

	events := runTurn(t, a, "s1", "implement the feature")

	assert.Equal(t, map[string]string{"mode": ModePlan}, eventsNamed(events, "response_start")[0].Data)
	assert.Len(t, eventsNamed(events, "plan_created"), 1)
	assert.Len(t, eventsNamed(events, "step_start"), 2)
	assert.Len(t, eventsNamed(events, "step_end"), 2)
	assert.Len(t, eventsNamed(events, "response_end"), 1)
	assert.Empty(t, eventsNamed(events, "error"))
	assert.Empty(t, eventsNamed(events, "replan"))

	p := a.Sessions.Get("s1").Tracker.Plan()
	require.NotNil(t, p)
	assert.Equal(t, plan.PlanDone, p.Status)
	assert.Equal(t, "implement the feature", p.Task)
	assert.Equal(t, 1, p.Version)
	assert.Equal(t, []string{"main.py"}, p.Steps[0].FilesChanged)
	assert.Equal(t, plan.StepDone, p.Steps[0].Status)
	assert.Equal(t, plan.StepDone, p.Steps[1].Status)
}

func TestRunTurn_StepFailureTriggersReplan(t *testing.T) {
	a := newTestAgent(t, []*llm.Response{
		{ToolCalls: []llm.ToolCall{createPlanCall("c1", "run the build")}},
		{ToolCalls: []llm.ToolCall{{ID: "c2", Name: "fail_tool", Args: map[string]any{}}}},
		{Content: "The build keeps failing, giving up on this step."},
		// Replan request answered with a fresh plan.
		{ToolCalls: []llm.ToolCall{createPlanCall("c3", "fix the config then build")}},
		{Content: "Fixed and built successfully."},
	})

	events := runTurn(t, a, "s1", "build the project")

	replans := eventsNamed(events, "replan")
	require.Len(t, replans, 1)
	assert.Len(t, eventsNamed(events, "plan_created"), 2)
	assert.Empty(t, eventsNamed(events, "error"))

	p := a.Sessions.Get("s1").Tracker.Plan()
	require.NotNil(t, p)
	assert.Equal(t, plan.PlanDone, p.Status)
	assert.Equal(t, 2, p.Version)
	assert.Equal(t, "fix the config then build", p.Steps[0].Description)

	// The replan prompt carried the abandoned plan's summary forward.
	var found bool
	for _, m := range a.Sessions.Get("s1").Messages {
		if m.Role == "user" && strings.Contains(m.Content, "abandoned") {
			found = true
		}
	}
	assert.True(t, found, "replan prompt not injected into the conversation")
}

func TestRunTurn_AnomalyInjectsCorrection(t *testing.T) {
	a := newTestAgent(t, []*llm.Response{
		{ToolCalls: []llm.ToolCall{createPlanCall("c1", "write the code", "verify the result")}},
		// Skip-ahead announcement during step 1; its call must not execute.
		{
			Content:   "Moving on to step 2 now.",
			ToolCalls: []llm.ToolCall{{ID: "c2", Name: "write_file", Args: map[string]any{"path": "wrong.py"}}},
		},
		{Content: "Back on step one, finished it."},
		{Content: "Step two finished."},
	})

	events := runTurn(t, a, "s1", "implement the feature")

	anomalies := eventsNamed(events, "anomaly")
	require.Len(t, anomalies, 1)
	data := anomalies[0].Data.(map[string]any)
	assert.Equal(t, "skip_ahead", data["kind"])
	assert.Empty(t, eventsNamed(events, "error"))

	// The flagged turn's tool call was skipped, so nothing recorded a file.
	p := a.Sessions.Get("s1").Tracker.Plan()
	assert.Equal(t, plan.PlanDone, p.Status)
	assert.Empty(t, p.Steps[0].FilesChanged)

	var corrected bool
	for _, m := range a.Sessions.Get("s1").Messages {
		if m.Role == "user" && strings.Contains(m.Content, "Return to step 1") {
			corrected = true
		}
	}
	assert.True(t, corrected, "correction prompt not injected")
}

func TestRunTurn_InvalidPlanArgsRetried(t *testing.T) {
	a := newTestAgent(t, []*llm.Response{
		{ToolCalls: []llm.ToolCall{{ID: "c1", Name: tools.CreatePlanName, Args: map[string]any{"analysis": "x"}}}},
		{ToolCalls: []llm.ToolCall{createPlanCall("c2", "only step")}},
		{Content: "Did the only step."},
	})

	events := runTurn(t, a, "s1", "small task")

	assert.Len(t, eventsNamed(events, "plan_created"), 1)
	assert.Empty(t, eventsNamed(events, "error"))

	// The validation failure went back to the model as a tool result.
	var surfaced bool
	for _, m := range a.Sessions.Get("s1").Messages {
		if m.Role == "tool" && strings.Contains(m.Content, "invalid steps") {
			surfaced = true
		}
	}
	assert.True(t, surfaced)
}

func TestRunTurn_LLMFailureIsFatal(t *testing.T) {
	a := newTestAgent(t, []*llm.Response{}) // script exhausted immediately

	events := runTurn(t, a, "s1", "anything")

	require.Len(t, eventsNamed(events, "error"), 1)
	assert.Empty(t, eventsNamed(events, "response_end"))
}

func TestSessionStore(t *testing.T) {
	ss := NewSessionStore(func() *plan.Tracker {
		return plan.NewTracker(plan.TrackerOptions{})
	})
	defer ss.Close()

	s1 := ss.LoadOrCreate("a")
	require.NotNil(t, s1.Tracker)
	assert.Same(t, s1, ss.LoadOrCreate("a"))
	assert.Equal(t, 1, ss.Len())

	assert.Nil(t, ss.Get("missing"))
	ss.Delete("a")
	assert.Equal(t, 0, ss.Len())
}

func TestAgentConfig_ModelStr(t *testing.T) {
	cases := []struct {
		name  string
		model any
		want  string
	}{
		{"string", "ollama:llama3", "ollama:llama3"},
		{"map full", map[string]any{"provider": "anthropic", "model": "claude-sonnet-4"}, "anthropic:claude-sonnet-4"},
		{"map model only", map[string]any{"model": "gpt-4o"}, "gpt-4o"},
		{"nil", nil, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := &AgentConfig{Model: tc.model}
			assert.Equal(t, tc.want, cfg.ModelStr())
		})
	}
}
