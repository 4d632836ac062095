package tools

import (
	"context"
	"fmt"

	"stepwise/plan"
)

// CreatePlanName is the capability the LLM invokes to propose a plan.
const CreatePlanName = "create_plan"

// CreatePlanTool validates the LLM's proposed step list and builds a plan
// with sequential ids. Malformed arguments come back as a failed Result so
// the model can self-correct; nothing is raised to the caller.
type CreatePlanTool struct{}

// NewCreatePlanTool creates the create_plan capability.
func NewCreatePlanTool() *CreatePlanTool { return &CreatePlanTool{} }

func (t *CreatePlanTool) Name() string { return CreatePlanName }

func (t *CreatePlanTool) Description() string {
	return "Propose an ordered plan of work steps for the current task. " +
		"Call this before starting multi-step work. Each step needs a description; " +
		"expected_outcome and tools are optional."
}

func (t *CreatePlanTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"analysis": map[string]any{
				"type":        "string",
				"description": "Brief analysis of the task and approach.",
			},
			"steps": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"description":      map[string]any{"type": "string"},
						"expected_outcome": map[string]any{"type": "string"},
						"tools": map[string]any{
							"type":  "array",
							"items": map[string]any{"type": "string"},
						},
					},
					"required": []string{"description"},
				},
			},
		},
		"required": []string{"steps"},
	}
}

func (t *CreatePlanTool) Execute(ctx context.Context, args map[string]any) Result {
	analysis, _ := args["analysis"].(string) // empty allowed

	rawSteps, ok := args["steps"].([]any)
	if !ok {
		return Fail("invalid steps")
	}
	if len(rawSteps) == 0 {
		return Fail("at least one step is required")
	}

	steps := make([]*plan.Step, 0, len(rawSteps))
	for i, raw := range rawSteps {
		entry, ok := raw.(map[string]any)
		if !ok {
			return Fail(fmt.Sprintf("step %d missing description", i+1))
		}
		desc, _ := entry["description"].(string)
		if desc == "" {
			return Fail(fmt.Sprintf("step %d missing description", i+1))
		}
		step := &plan.Step{Description: desc}
		if outcome, ok := entry["expected_outcome"].(string); ok {
			step.ExpectedOutcome = outcome
		}
		if rawTools, ok := entry["tools"].([]any); ok {
			for _, rt := range rawTools {
				if name, ok := rt.(string); ok {
					step.ToolsNeeded = append(step.ToolsNeeded, name)
				}
			}
		}
		steps = append(steps, step)
	}

	p := plan.New(analysis, steps)
	// The plan's task is the analysis when provided; the agent loop sets the
	// user task before installing the plan.
	return Result{
		Success: true,
		Output:  fmt.Sprintf("Plan created with %d step(s)", len(steps)),
		Data:    map[string]any{"plan": p.ToMap()},
	}
}
