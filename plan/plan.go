// Package plan holds the plan data model and the tracker that supervises
// its execution: step state transitions, anomaly detection and the
// replanning policy.
package plan

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
)

// PlanStatus is the lifecycle status of a whole plan.
type PlanStatus int

const (
	PlanPlanning PlanStatus = iota
	PlanExecuting
	PlanDone
	PlanAbandoned
)

var planStatusNames = map[PlanStatus]string{
	PlanPlanning:  "planning",
	PlanExecuting: "executing",
	PlanDone:      "done",
	PlanAbandoned: "abandoned",
}

func (s PlanStatus) String() string {
	if name, ok := planStatusNames[s]; ok {
		return name
	}
	return "unknown"
}

// ParsePlanStatus maps a wire/display string back to its status.
func ParsePlanStatus(s string) (PlanStatus, error) {
	for status, name := range planStatusNames {
		if name == s {
			return status, nil
		}
	}
	return 0, fmt.Errorf("unknown plan status %q", s)
}

func (s PlanStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *PlanStatus) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParsePlanStatus(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// StepStatus is the lifecycle status of a single step.
type StepStatus int

const (
	StepPending StepStatus = iota
	StepInProgress
	StepDone
	StepFailed
	StepSkipped
)

var stepStatusNames = map[StepStatus]string{
	StepPending:    "pending",
	StepInProgress: "in_progress",
	StepDone:       "done",
	StepFailed:     "failed",
	StepSkipped:    "skipped",
}

func (s StepStatus) String() string {
	if name, ok := stepStatusNames[s]; ok {
		return name
	}
	return "unknown"
}

// Icon returns the display glyph used by Summary.
func (s StepStatus) Icon() string {
	switch s {
	case StepPending:
		return "○"
	case StepInProgress:
		return "◐"
	case StepDone:
		return "●"
	case StepFailed:
		return "✗"
	case StepSkipped:
		return "⊘"
	default:
		return "?"
	}
}

// Terminal reports whether no further transition is allowed out of s.
func (s StepStatus) Terminal() bool {
	return s == StepDone || s == StepFailed || s == StepSkipped
}

// ParseStepStatus maps a wire/display string back to its status.
func ParseStepStatus(s string) (StepStatus, error) {
	for status, name := range stepStatusNames {
		if name == s {
			return status, nil
		}
	}
	return 0, fmt.Errorf("unknown step status %q", s)
}

func (s StepStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *StepStatus) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseStepStatus(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Step is one unit of planned work.
type Step struct {
	ID              int        `json:"id"`
	Description     string     `json:"description"`
	ExpectedOutcome string     `json:"expected_outcome,omitempty"`
	ToolsNeeded     []string   `json:"tools_needed,omitempty"`
	Status          StepStatus `json:"status"`
	Error           string     `json:"error,omitempty"`
	FilesChanged    []string   `json:"files_changed,omitempty"`
}

// Plan is an ordered set of steps produced by the LLM for one task.
// A plan is owned by exactly one Tracker for the lifetime of one session.
type Plan struct {
	Task          string     `json:"task"`
	Steps         []*Step    `json:"steps"`
	Status        PlanStatus `json:"status"`
	CurrentStepID int        `json:"current_step_id,omitempty"` // 0 = no step in progress
	Version       int        `json:"version"`
}

// New creates a plan in PLANNING state with sequential step ids from 1.
func New(task string, steps []*Step) *Plan {
	for i, s := range steps {
		s.ID = i + 1
		s.Status = StepPending
	}
	return &Plan{
		Task:    task,
		Steps:   steps,
		Status:  PlanPlanning,
		Version: 1,
	}
}

// Step returns the step with the given id, or nil.
func (p *Plan) Step(id int) *Step {
	for _, s := range p.Steps {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// CurrentStep returns the step referenced by CurrentStepID, or nil.
func (p *Plan) CurrentStep() *Step {
	if p.CurrentStepID == 0 {
		return nil
	}
	return p.Step(p.CurrentStepID)
}

// Progress holds per-status step counts.
type Progress struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	InProgress int `json:"in_progress"`
	Done       int `json:"done"`
	Failed     int `json:"failed"`
	Skipped    int `json:"skipped"`
	Percent    int `json:"progress_percent"`
}

// Progress counts steps per status. Percent is round(100*done/total).
func (p *Plan) Progress() Progress {
	prog := Progress{Total: len(p.Steps)}
	for _, s := range p.Steps {
		switch s.Status {
		case StepPending:
			prog.Pending++
		case StepInProgress:
			prog.InProgress++
		case StepDone:
			prog.Done++
		case StepFailed:
			prog.Failed++
		case StepSkipped:
			prog.Skipped++
		}
	}
	if prog.Total > 0 {
		prog.Percent = int(math.Round(100 * float64(prog.Done) / float64(prog.Total)))
	}
	return prog
}

// IsComplete reports whether every step is done.
func (p *Plan) IsComplete() bool {
	if len(p.Steps) == 0 {
		return false
	}
	for _, s := range p.Steps {
		if s.Status != StepDone {
			return false
		}
	}
	return true
}

// HasFailed reports whether at least one step failed.
func (p *Plan) HasFailed() bool {
	for _, s := range p.Steps {
		if s.Status == StepFailed {
			return true
		}
	}
	return false
}

// Summary renders a human-readable view of the plan, one line per step with
// a status glyph and a marker on the current step. Display only, never parsed.
func (p *Plan) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Plan (v%d, %s): %s\n", p.Version, p.Status, p.Task)
	for _, s := range p.Steps {
		marker := "  "
		if s.ID == p.CurrentStepID {
			marker = "→ "
		}
		fmt.Fprintf(&b, "%s%d. [%s] %s", marker, s.ID, s.Status.Icon(), s.Description)
		if s.Error != "" {
			fmt.Fprintf(&b, " (%s)", s.Error)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// ToMap serializes the plan to a plain map, losslessly.
func (p *Plan) ToMap() map[string]any {
	steps := make([]any, len(p.Steps))
	for i, s := range p.Steps {
		step := map[string]any{
			"id":          s.ID,
			"description": s.Description,
			"status":      s.Status.String(),
		}
		if s.ExpectedOutcome != "" {
			step["expected_outcome"] = s.ExpectedOutcome
		}
		if len(s.ToolsNeeded) > 0 {
			step["tools_needed"] = append([]string(nil), s.ToolsNeeded...)
		}
		if s.Error != "" {
			step["error"] = s.Error
		}
		if len(s.FilesChanged) > 0 {
			step["files_changed"] = append([]string(nil), s.FilesChanged...)
		}
		steps[i] = step
	}
	return map[string]any{
		"task":            p.Task,
		"steps":           steps,
		"status":          p.Status.String(),
		"current_step_id": p.CurrentStepID,
		"version":         p.Version,
	}
}

// FromMap reconstructs a plan from the ToMap representation.
// Round-trips via JSON for type safety on numbers and nested maps.
func FromMap(m map[string]any) (*Plan, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode plan map: %w", err)
	}
	var p Plan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	return &p, nil
}

// ToolCall records one tool invocation made while executing a step.
type ToolCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"arguments,omitempty"`
}

// StepResult is the outcome of one step execution attempt. It is consumed by
// the tracker to update the step and is not retained afterwards.
type StepResult struct {
	Success      bool
	Response     string
	Error        string
	FilesChanged []string
	ToolCalls    []ToolCall
}

// unionPaths merges b into a, deduplicated and sorted.
func unionPaths(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	for _, p := range a {
		seen[p] = struct{}{}
	}
	for _, p := range b {
		seen[p] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
