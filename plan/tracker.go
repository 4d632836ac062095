package plan

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// Sentinel errors returned by tracker operations.
var (
	ErrNoPlan      = errors.New("no plan is set")
	ErrUnknownStep = errors.New("step does not exist in the current plan")
)

// DefaultMaxAnomalies is how many detected anomalies a plan survives before
// ShouldReplan turns true. A single anomaly only injects a corrective prompt.
const DefaultMaxAnomalies = 3

// TrackerOptions tune the anomaly heuristics.
type TrackerOptions struct {
	MaxAnomalies      int              // anomalies tolerated before replanning; default DefaultMaxAnomalies
	LoopWindow        int              // identical trailing calls that count as a loop; default DefaultLoopWindow
	SkipAheadPatterns []*regexp.Regexp // default DefaultSkipAheadPatterns
}

// Tracker owns one plan at a time and supervises its execution: step state
// transitions, anomaly detection and the replanning decision. Not safe for
// concurrent use; each session runs a single cooperative loop.
type Tracker struct {
	plan         *Plan
	anomalyCount int
	maxAnomalies int
	loopWindow   int
	patterns     []*regexp.Regexp
	callWindow   []string // recent tool-call names; detection inspects the tail
}

// NewTracker creates a tracker with no plan installed.
func NewTracker(opts TrackerOptions) *Tracker {
	if opts.MaxAnomalies == 0 {
		opts.MaxAnomalies = DefaultMaxAnomalies
	}
	if opts.LoopWindow == 0 {
		opts.LoopWindow = DefaultLoopWindow
	}
	if opts.SkipAheadPatterns == nil {
		opts.SkipAheadPatterns = DefaultSkipAheadPatterns
	}
	return &Tracker{
		maxAnomalies: opts.MaxAnomalies,
		loopWindow:   opts.LoopWindow,
		patterns:     opts.SkipAheadPatterns,
	}
}

// Plan returns the current plan, or nil.
func (t *Tracker) Plan() *Plan { return t.plan }

// AnomalyCount returns the number of anomalies seen for the current plan.
func (t *Tracker) AnomalyCount() int { return t.anomalyCount }

// SetPlan installs a new plan, resetting the anomaly count and the
// tool-call window. The previous plan, if any, is simply discarded.
func (t *Tracker) SetPlan(p *Plan) {
	t.plan = p
	t.anomalyCount = 0
	t.callWindow = nil
}

// StartStep moves the step to IN_PROGRESS and points CurrentStepID at it.
func (t *Tracker) StartStep(id int) error {
	step, err := t.lookup(id)
	if err != nil {
		return err
	}
	if step.Status.Terminal() {
		return fmt.Errorf("step %d is already %s", id, step.Status)
	}
	step.Status = StepInProgress
	t.plan.CurrentStepID = id
	t.plan.Status = PlanExecuting
	return nil
}

// CompleteStep marks the step DONE and unions the result's files into the
// step. The result's tool calls were already recorded turn by turn through
// DetectAnomaly; replaying them here would double-count the window.
func (t *Tracker) CompleteStep(id int, result StepResult) error {
	step, err := t.lookup(id)
	if err != nil {
		return err
	}
	if step.Status != StepInProgress {
		return fmt.Errorf("step %d is %s, not in progress", id, step.Status)
	}
	if !result.Success {
		return fmt.Errorf("step %d: CompleteStep requires a successful result", id)
	}
	step.Status = StepDone
	step.Error = ""
	step.FilesChanged = unionPaths(step.FilesChanged, result.FilesChanged)
	if t.plan.CurrentStepID == id {
		t.plan.CurrentStepID = 0
	}
	if t.plan.IsComplete() {
		t.plan.Status = PlanDone
	}
	return nil
}

// FailStep marks the step FAILED and stores the error.
func (t *Tracker) FailStep(id int, errMsg string) error {
	step, err := t.lookup(id)
	if err != nil {
		return err
	}
	if step.Status.Terminal() {
		return fmt.Errorf("step %d is already %s", id, step.Status)
	}
	step.Status = StepFailed
	step.Error = errMsg
	if t.plan.CurrentStepID == id {
		t.plan.CurrentStepID = 0
	}
	return nil
}

// SkipStep marks the step SKIPPED, storing the reason in the error field.
func (t *Tracker) SkipStep(id int, reason string) error {
	step, err := t.lookup(id)
	if err != nil {
		return err
	}
	if step.Status.Terminal() {
		return fmt.Errorf("step %d is already %s", id, step.Status)
	}
	step.Status = StepSkipped
	step.Error = reason
	if t.plan.CurrentStepID == id {
		t.plan.CurrentStepID = 0
	}
	return nil
}

// DetectAnomaly inspects one LLM turn before its tool calls are acted on.
// The turn's tool-call names are recorded in the sliding window first, then
// the pure heuristics run over the text and the window tail. A detection
// increments the anomaly count; a nil return leaves it unchanged.
func (t *Tracker) DetectAnomaly(llmText string, toolCalls []string) *Anomaly {
	for _, name := range toolCalls {
		t.recordCall(name)
	}
	currentID := 0
	if t.plan != nil {
		currentID = t.plan.CurrentStepID
	}
	a := detect(llmText, t.callWindow, currentID, t.loopWindow, t.patterns)
	if a != nil {
		t.anomalyCount++
	}
	return a
}

// CorrectionPrompt fills the template's {anomaly} and {step_id} placeholders
// for injection into the next LLM turn.
func (t *Tracker) CorrectionPrompt(template string, a *Anomaly) string {
	stepID := ""
	if t.plan != nil && t.plan.CurrentStepID != 0 {
		stepID = fmt.Sprintf("%d", t.plan.CurrentStepID)
	}
	r := strings.NewReplacer("{anomaly}", a.Message, "{step_id}", stepID)
	return r.Replace(template)
}

// Abandon marks the current plan ABANDONED ahead of a replan. The plan stays
// installed for inspection until SetPlan replaces it.
func (t *Tracker) Abandon() error {
	if t.plan == nil {
		return ErrNoPlan
	}
	t.plan.Status = PlanAbandoned
	t.plan.CurrentStepID = 0
	return nil
}

// ShouldReplan reports whether the current plan should be abandoned: the
// anomaly count exceeded the threshold, or a step failed outright.
func (t *Tracker) ShouldReplan() bool {
	if t.plan == nil {
		return false
	}
	return t.anomalyCount > t.maxAnomalies || t.plan.HasFailed()
}

// StepInfo is a display-oriented view of one step.
type StepInfo struct {
	ID          int    `json:"id"`
	Description string `json:"description"`
	Status      string `json:"status"`
}

// ProgressSummary bundles plan progress with the current step.
type ProgressSummary struct {
	Progress    Progress  `json:"progress"`
	CurrentStep *StepInfo `json:"current_step,omitempty"`
}

// GetProgressSummary returns the plan's progress counts plus the step
// currently in progress, if any.
func (t *Tracker) GetProgressSummary() (ProgressSummary, error) {
	if t.plan == nil {
		return ProgressSummary{}, ErrNoPlan
	}
	summary := ProgressSummary{Progress: t.plan.Progress()}
	if step := t.plan.CurrentStep(); step != nil {
		summary.CurrentStep = &StepInfo{
			ID:          step.ID,
			Description: step.Description,
			Status:      step.Status.String(),
		}
	}
	return summary, nil
}

func (t *Tracker) lookup(id int) (*Step, error) {
	if t.plan == nil {
		return nil, ErrNoPlan
	}
	step := t.plan.Step(id)
	if step == nil {
		return nil, fmt.Errorf("step %d: %w", id, ErrUnknownStep)
	}
	return step, nil
}

// recordCall appends a tool-call name, evicting the oldest entries once the
// window grows past twice the detection size to bound memory.
func (t *Tracker) recordCall(name string) {
	t.callWindow = append(t.callWindow, name)
	if max := t.loopWindow * 2; len(t.callWindow) > max {
		t.callWindow = t.callWindow[len(t.callWindow)-max:]
	}
}
