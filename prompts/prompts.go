// Package prompts holds the templates the agent loop feeds the model. A
// Provider is constructed explicitly and injected, so tests can substitute
// deterministic templates.
package prompts

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"stepwise/plan"
)

// Provider supplies the system prompt and the templates used while
// supervising plan execution.
type Provider struct {
	System         string `yaml:"system"`
	PlanningSystem string `yaml:"planning_system"`
	Step           string `yaml:"step"`
	Correction     string `yaml:"correction"`
	Replan         string `yaml:"replan"`
}

// Default returns the built-in English templates.
func Default() *Provider {
	return &Provider{
		System: `You are a coding agent operating in a sandboxed workspace.
You can run commands, read and write files, and list directory contents.
For multi-step tasks, call create_plan first with a short analysis and a list of steps.
For simple questions or one-shot actions, just answer or act directly.
Work on exactly one step at a time and report what you did.`,

		PlanningSystem: `You are executing a previously agreed plan one step at a time.
Only work on the current step. Do not start, reference, or complete other steps.
When the current step is done, summarize the outcome and stop.`,

		Step: `Current step {step_id}: {description}
Expected outcome: {expected_outcome}
Complete this step now. Do not work on any other step.`,

		Correction: `Supervision notice: {anomaly}
Return to step {step_id} and complete only that step before anything else.`,

		Replan: `The previous plan was abandoned.
{summary}
Create a new plan with create_plan that accounts for the work already done and the failures above.`,
	}
}

// LoadFile reads templates from a YAML file, filling any empty field from the
// defaults.
func LoadFile(path string) (*Provider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompts file: %w", err)
	}

	p := &Provider{}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parse prompts file %s: %w", path, err)
	}

	def := Default()
	if p.System == "" {
		p.System = def.System
	}
	if p.PlanningSystem == "" {
		p.PlanningSystem = def.PlanningSystem
	}
	if p.Step == "" {
		p.Step = def.Step
	}
	if p.Correction == "" {
		p.Correction = def.Correction
	}
	if p.Replan == "" {
		p.Replan = def.Replan
	}
	return p, nil
}

// SystemPrompt returns the base system prompt.
func (p *Provider) SystemPrompt() string { return p.System }

// PlanningSystemPrompt returns the system prompt used while executing a plan.
func (p *Provider) PlanningSystemPrompt() string { return p.PlanningSystem }

// StepInstruction renders the per-step instruction for a step.
func (p *Provider) StepInstruction(s *plan.Step) string {
	outcome := s.ExpectedOutcome
	if outcome == "" {
		outcome = "step completed"
	}
	return strings.NewReplacer(
		"{step_id}", fmt.Sprintf("%d", s.ID),
		"{description}", s.Description,
		"{expected_outcome}", outcome,
	).Replace(p.Step)
}

// CorrectionTemplate returns the raw correction template with {anomaly} and
// {step_id} placeholders for the tracker to fill.
func (p *Provider) CorrectionTemplate() string { return p.Correction }

// ReplanPrompt renders the replan request around a progress summary.
func (p *Provider) ReplanPrompt(summary string) string {
	return strings.ReplaceAll(p.Replan, "{summary}", summary)
}
