// Package agent runs the supervised turn loop: it lets the model choose
// between answering directly and executing under a tracked plan, injects
// corrective prompts on anomalies, and abandons a plan when the tracker
// says so.
package agent

import (
	"context"
	"fmt"
	"log"
	"sync"

	"stepwise/llm"
	"stepwise/plan"
	"stepwise/prompts"
	"stepwise/tools"
)

// Loop iteration and replan bounds.
const (
	DefaultMaxIterations = 25
	DefaultMaxReplans    = 2

	// createPlanAttempts bounds the validation retries when the model emits
	// malformed create_plan arguments.
	createPlanAttempts = 3
)

// Agent is a configured agent instance ready to run turns.
type Agent struct {
	ID       string
	Config   *AgentConfig
	LLM      llm.Client
	Model    string
	Registry *tools.Registry
	Prompts  *prompts.Provider
	Sessions *SessionStore

	maxIterations int
	maxReplans    int
}

// New creates an Agent. The session store builds a fresh tracker per session
// from the planner config.
func New(id string, cfg *AgentConfig, client llm.Client, model string, registry *tools.Registry, prov *prompts.Provider) *Agent {
	maxIter := cfg.Planner.MaxIterations
	if maxIter == 0 {
		maxIter = DefaultMaxIterations
	}
	maxReplans := cfg.Planner.MaxReplans
	if maxReplans == 0 {
		maxReplans = DefaultMaxReplans
	}
	sessions := NewSessionStore(func() *plan.Tracker {
		return plan.NewTracker(plan.TrackerOptions{
			MaxAnomalies: cfg.Planner.MaxAnomalies,
			LoopWindow:   cfg.Planner.LoopWindow,
		})
	})
	return &Agent{
		ID:            id,
		Config:        cfg,
		LLM:           client,
		Model:         model,
		Registry:      registry,
		Prompts:       prov,
		Sessions:      sessions,
		maxIterations: maxIter,
		maxReplans:    maxReplans,
	}
}

// RunTurn processes one user turn, streaming lifecycle events to eventCh and
// closing it when the turn ends. An LLM failure is turn-fatal and reported as
// an error event; the tracker is left inspectable (current step IN_PROGRESS
// or FAILED), never silently cleared.
func (a *Agent) RunTurn(ctx context.Context, sessionID, userText string, eventCh chan<- StreamEvent) {
	defer close(eventCh)

	sess := a.Sessions.LoadOrCreate(sessionID)
	sess.Messages = append(sess.Messages, User(userText))

	// The first response decides the mode: a create_plan call enters plan
	// mode, anything else is answered directly.
	resp, err := a.complete(ctx, sess.Messages, a.systemPrompt(), eventCh)
	if err != nil {
		eventCh <- StreamEvent{Event: "error", SessionID: sessionID, Data: map[string]string{"error": err.Error()}}
		return
	}

	mode := ModeDirect
	if findCall(resp, tools.CreatePlanName) != nil {
		mode = ModePlan
	}
	eventCh <- StreamEvent{Event: "response_start", SessionID: sessionID, Data: map[string]string{"mode": mode}}

	if mode == ModePlan {
		err = a.runPlanMode(ctx, sess, userText, resp, eventCh)
	} else {
		err = a.runDirectMode(ctx, sess, resp, eventCh)
	}
	if err != nil {
		eventCh <- StreamEvent{Event: "error", SessionID: sessionID, Data: map[string]string{"error": err.Error()}}
		return
	}

	a.Sessions.Save(sessionID, sess)
	eventCh <- StreamEvent{Event: "response_end", SessionID: sessionID}
}

// runDirectMode answers the turn with a bounded sequence of LLM-tool
// exchanges and no tracked plan.
func (a *Agent) runDirectMode(ctx context.Context, sess *Session, first *llm.Response, eventCh chan<- StreamEvent) error {
	resp := first
	for iter := 0; iter < a.maxIterations; iter++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		sess.Messages = append(sess.Messages, AI(resp.Content, resp.ToolCalls...))
		if len(resp.ToolCalls) == 0 {
			return nil
		}

		for _, tc := range resp.ToolCalls {
			res := a.execTool(ctx, tc, eventCh)
			sess.Messages = append(sess.Messages, ToolMsg(tc.ID, tc.Name, res.Output))
		}

		var err error
		resp, err = a.complete(ctx, sess.Messages, a.systemPrompt(), eventCh)
		if err != nil {
			return err
		}
	}
	log.Printf("agent %s: direct mode hit iteration limit (%d)", a.ID, a.maxIterations)
	return nil
}

// runPlanMode builds a plan from the model's create_plan call, executes it
// step by step under the tracker, and replans a bounded number of times when
// the tracker escalates.
func (a *Agent) runPlanMode(ctx context.Context, sess *Session, task string, first *llm.Response, eventCh chan<- StreamEvent) error {
	sess.Replans = 0

	p, err := a.establishPlan(ctx, sess, task, first, eventCh)
	if err != nil {
		return err
	}
	if p == nil {
		// The model gave up on planning after validation failures; whatever
		// it said last stands as the answer.
		return nil
	}

	for {
		sess.Tracker.SetPlan(p)
		eventCh <- StreamEvent{Event: "plan_created", SessionID: sess.ID, Data: p.ToMap()}

		finished, err := a.executePlan(ctx, sess, eventCh)
		if err != nil {
			return err
		}
		if finished {
			return nil
		}

		// Tracker escalated: abandon and ask for a fresh plan, carrying the
		// outcome summary forward in the conversation.
		if sess.Replans >= a.maxReplans {
			log.Printf("agent %s: replan limit (%d) reached, giving up on task", a.ID, a.maxReplans)
			sess.Messages = append(sess.Messages, User(
				"The plan was abandoned and the replan limit was reached. Summarize what was accomplished and what failed."))
			resp, err := a.complete(ctx, sess.Messages, a.systemPrompt(), eventCh)
			if err != nil {
				return err
			}
			sess.Messages = append(sess.Messages, AI(resp.Content, resp.ToolCalls...))
			return nil
		}
		sess.Replans++

		old := sess.Tracker.Plan()
		if err := sess.Tracker.Abandon(); err != nil {
			return err
		}
		eventCh <- StreamEvent{Event: "replan", SessionID: sess.ID, Data: map[string]any{
			"replan":  sess.Replans,
			"summary": old.Summary(),
		}}

		sess.Messages = append(sess.Messages, User(a.Prompts.ReplanPrompt(old.Summary())))
		resp, err := a.complete(ctx, sess.Messages, a.systemPrompt(), eventCh)
		if err != nil {
			return err
		}
		p, err = a.establishPlan(ctx, sess, task, resp, eventCh)
		if err != nil {
			return err
		}
		if p == nil {
			return nil
		}
		p.Version = old.Version + 1
	}
}

// establishPlan executes the model's create_plan call and parses the result.
// Validation failures are surfaced back to the model as tool results for
// self-correction, a bounded number of times. A nil plan with nil error means
// the model stopped asking to plan.
func (a *Agent) establishPlan(ctx context.Context, sess *Session, task string, resp *llm.Response, eventCh chan<- StreamEvent) (*plan.Plan, error) {
	for attempt := 0; attempt < createPlanAttempts; attempt++ {
		tc := findCall(resp, tools.CreatePlanName)
		if tc == nil {
			sess.Messages = append(sess.Messages, AI(resp.Content, resp.ToolCalls...))
			return nil, nil
		}

		res := a.execTool(ctx, *tc, eventCh)
		sess.Messages = append(sess.Messages, AI(resp.Content, resp.ToolCalls...))

		if res.Success {
			planMap, ok := res.Data["plan"].(map[string]any)
			if !ok {
				return nil, fmt.Errorf("create_plan returned no plan data")
			}
			p, err := plan.FromMap(planMap)
			if err != nil {
				return nil, fmt.Errorf("parse plan: %w", err)
			}
			p.Task = task
			sess.Messages = append(sess.Messages, ToolMsg(tc.ID, tc.Name, "Plan created:\n"+p.Summary()))
			return p, nil
		}

		sess.Messages = append(sess.Messages, ToolMsg(tc.ID, tc.Name, res.Output))

		var err error
		resp, err = a.complete(ctx, sess.Messages, a.systemPrompt(), eventCh)
		if err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("no valid plan after %d attempts", createPlanAttempts)
}

// executePlan runs pending steps in order. Returns finished=true when the
// plan completed or ran out of runnable steps, false when the tracker wants
// a replan.
func (a *Agent) executePlan(ctx context.Context, sess *Session, eventCh chan<- StreamEvent) (bool, error) {
	tracker := sess.Tracker
	for {
		p := tracker.Plan()
		step := nextPending(p)
		if step == nil {
			return true, nil
		}

		if err := tracker.StartStep(step.ID); err != nil {
			return false, err
		}
		eventCh <- StreamEvent{Event: "step_start", SessionID: sess.ID, Data: map[string]any{
			"step_id":     step.ID,
			"description": step.Description,
		}}

		result, err := a.runStep(ctx, sess, step, eventCh)
		if err != nil {
			// Fatal collaborator failure: leave the step IN_PROGRESS for
			// inspection and propagate.
			return false, err
		}

		if result.Success {
			if err := tracker.CompleteStep(step.ID, result); err != nil {
				return false, err
			}
		} else {
			if err := tracker.FailStep(step.ID, result.Error); err != nil {
				return false, err
			}
		}
		eventCh <- StreamEvent{Event: "step_end", SessionID: sess.ID, Data: map[string]any{
			"step_id": step.ID,
			"status":  step.Status.String(),
			"error":   step.Error,
		}}

		if tracker.ShouldReplan() {
			return false, nil
		}
	}
}

// runStep drives one step to an outcome: scoped LLM turns with anomaly
// supervision, tool execution through the registry, and an iteration budget.
func (a *Agent) runStep(ctx context.Context, sess *Session, step *plan.Step, eventCh chan<- StreamEvent) (plan.StepResult, error) {
	tracker := sess.Tracker
	sess.Messages = append(sess.Messages, User(a.Prompts.StepInstruction(step)))

	var result plan.StepResult
	for iter := 0; iter < a.maxIterations; iter++ {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		resp, err := a.complete(ctx, sess.Messages, a.Prompts.PlanningSystemPrompt(), eventCh)
		if err != nil {
			return result, err
		}

		// Supervise the turn before acting on it. On an anomaly the turn's
		// tool calls are not executed; a corrective prompt is injected
		// instead.
		if anomaly := tracker.DetectAnomaly(resp.Content, resp.ToolCallNames()); anomaly != nil {
			eventCh <- StreamEvent{Event: "anomaly", SessionID: sess.ID, Data: map[string]any{
				"kind":    anomaly.Kind.String(),
				"message": anomaly.Message,
				"step_id": step.ID,
				"count":   tracker.AnomalyCount(),
			}}
			sess.Messages = append(sess.Messages, AI(resp.Content, resp.ToolCalls...))
			for _, tc := range resp.ToolCalls {
				sess.Messages = append(sess.Messages, ToolMsg(tc.ID, tc.Name, "Call not executed: supervision anomaly."))
			}
			sess.Messages = append(sess.Messages, User(tracker.CorrectionPrompt(a.Prompts.CorrectionTemplate(), anomaly)))
			if tracker.ShouldReplan() {
				result.Success = false
				result.Error = "repeated supervision anomalies"
				return result, nil
			}
			continue
		}

		sess.Messages = append(sess.Messages, AI(resp.Content, resp.ToolCalls...))

		if len(resp.ToolCalls) == 0 {
			// The model stopped acting. The step succeeded unless its last
			// tool call failed and was never retried.
			result.Response = resp.Content
			result.Success = result.Error == ""
			return result, nil
		}

		for _, tc := range resp.ToolCalls {
			res := a.execTool(ctx, tc, eventCh)
			result.ToolCalls = append(result.ToolCalls, plan.ToolCall{Name: tc.Name, Args: tc.Args})
			result.FilesChanged = append(result.FilesChanged, filesChanged(res)...)
			if res.Success {
				result.Error = ""
			} else {
				result.Error = res.Error
			}
			sess.Messages = append(sess.Messages, ToolMsg(tc.ID, tc.Name, res.Output))
		}
	}

	result.Success = false
	if result.Error == "" {
		result.Error = "step iteration limit reached"
	}
	return result, nil
}

// execTool looks up and runs one tool call. A missing tool or a sandbox
// failure becomes a failed Result fed back to the model, never a dropped
// call.
func (a *Agent) execTool(ctx context.Context, tc llm.ToolCall, eventCh chan<- StreamEvent) tools.Result {
	eventCh <- StreamEvent{Event: "on_tool_start", Name: tc.Name, RunID: tc.ID, Data: map[string]any{"input": tc.Args}}

	var res tools.Result
	if tool := a.Registry.Get(tc.Name); tool != nil {
		res = tool.Execute(ctx, tc.Args)
	} else {
		res = tools.Fail(fmt.Sprintf("unknown tool: %s", tc.Name))
	}

	eventCh <- StreamEvent{Event: "on_tool_end", Name: tc.Name, RunID: tc.ID, Data: map[string]any{
		"output":  res.Output,
		"success": res.Success,
	}}
	return res
}

// complete makes one streaming LLM call, forwarding text deltas as events
// and accumulating the full response.
func (a *Agent) complete(ctx context.Context, msgs []llm.Message, system string, eventCh chan<- StreamEvent) (*llm.Response, error) {
	req := llm.Request{
		Model:        a.Model,
		Messages:     msgs,
		Tools:        a.toolDefs(),
		SystemPrompt: system,
		MaxTokens:    4096,
	}

	eventCh <- StreamEvent{Event: "on_chat_model_start", Name: a.Model}

	chunkCh := make(chan llm.StreamChunk, 64)
	var streamErr error
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		streamErr = a.LLM.Stream(ctx, req, chunkCh)
	}()

	resp := &llm.Response{}
	for chunk := range chunkCh {
		if chunk.Error != nil {
			wg.Wait()
			return nil, chunk.Error
		}
		if chunk.Delta != "" {
			resp.Content += chunk.Delta
			eventCh <- StreamEvent{Event: "on_chat_model_stream", Name: a.Model, Data: map[string]any{
				"chunk": map[string]any{"content": chunk.Delta},
			}}
		}
		if chunk.ToolCall != nil {
			resp.ToolCalls = append(resp.ToolCalls, *chunk.ToolCall)
		}
	}
	wg.Wait()
	if streamErr != nil {
		return nil, fmt.Errorf("LLM call: %w", streamErr)
	}

	eventCh <- StreamEvent{Event: "on_chat_model_end", Name: a.Model}
	return resp, nil
}

func (a *Agent) systemPrompt() string {
	if a.Config.SystemPrompt != "" {
		return a.Config.SystemPrompt
	}
	return a.Prompts.SystemPrompt()
}

func (a *Agent) toolDefs() []llm.ToolDef {
	defs := a.Registry.Definitions()
	out := make([]llm.ToolDef, len(defs))
	for i, d := range defs {
		out[i] = llm.ToolDef{Name: d.Name, Description: d.Description, Parameters: d.Parameters}
	}
	return out
}

// findCall returns the first tool call with the given name, or nil.
func findCall(resp *llm.Response, name string) *llm.ToolCall {
	for i := range resp.ToolCalls {
		if resp.ToolCalls[i].Name == name {
			return &resp.ToolCalls[i]
		}
	}
	return nil
}

// nextPending returns the lowest-id pending step, or nil.
func nextPending(p *plan.Plan) *plan.Step {
	for _, s := range p.Steps {
		if s.Status == plan.StepPending {
			return s
		}
	}
	return nil
}

// filesChanged extracts the files_changed list from a tool result, tolerating
// both []string and JSON-decoded []any shapes.
func filesChanged(res tools.Result) []string {
	if res.Data == nil {
		return nil
	}
	switch v := res.Data["files_changed"].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
