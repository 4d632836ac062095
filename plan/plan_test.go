package plan

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func threeStepPlan() *Plan {
	return New("Add RSI module", []*Step{
		{Description: "research indicator formula"},
		{Description: "write the module", ExpectedOutcome: "rsi.py exists", ToolsNeeded: []string{"write_file"}},
		{Description: "run the backtest"},
	})
}

func TestNew_AssignsSequentialIDs(t *testing.T) {
	p := threeStepPlan()
	require.Len(t, p.Steps, 3)
	for i, s := range p.Steps {
		assert.Equal(t, i+1, s.ID)
		assert.Equal(t, StepPending, s.Status)
	}
	assert.Equal(t, PlanPlanning, p.Status)
	assert.Equal(t, 1, p.Version)
	assert.Zero(t, p.CurrentStepID)
}

func TestProgress_CountsSumToTotal(t *testing.T) {
	p := threeStepPlan()
	p.Steps[0].Status = StepDone
	p.Steps[1].Status = StepFailed
	p.Steps[2].Status = StepSkipped

	prog := p.Progress()
	assert.Equal(t, len(p.Steps), prog.Total)
	sum := prog.Pending + prog.InProgress + prog.Done + prog.Failed + prog.Skipped
	assert.Equal(t, prog.Total, sum)
	assert.Equal(t, 33, prog.Percent)
}

func TestProgress_EmptyPlan(t *testing.T) {
	p := New("noop", nil)
	prog := p.Progress()
	assert.Zero(t, prog.Total)
	assert.Zero(t, prog.Percent)
	assert.False(t, p.IsComplete())
}

func TestIsCompleteAndHasFailed(t *testing.T) {
	p := threeStepPlan()
	assert.False(t, p.IsComplete())
	assert.False(t, p.HasFailed())

	for _, s := range p.Steps {
		s.Status = StepDone
	}
	assert.True(t, p.IsComplete())

	p.Steps[1].Status = StepFailed
	assert.False(t, p.IsComplete())
	assert.True(t, p.HasFailed())
}

func TestStatusStringRoundTrip(t *testing.T) {
	for _, s := range []StepStatus{StepPending, StepInProgress, StepDone, StepFailed, StepSkipped} {
		parsed, err := ParseStepStatus(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}
	for _, s := range []PlanStatus{PlanPlanning, PlanExecuting, PlanDone, PlanAbandoned} {
		parsed, err := ParsePlanStatus(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, parsed)
	}
	_, err := ParseStepStatus("bogus")
	assert.Error(t, err)
}

func TestMapRoundTrip(t *testing.T) {
	p := threeStepPlan()
	p.Status = PlanExecuting
	p.CurrentStepID = 2
	p.Version = 3
	p.Steps[0].Status = StepDone
	p.Steps[0].FilesChanged = []string{"notes.md"}
	p.Steps[1].Status = StepInProgress
	p.Steps[2].Status = StepFailed
	p.Steps[2].Error = "backtest crashed"

	restored, err := FromMap(p.ToMap())
	require.NoError(t, err)

	assert.Equal(t, p.Task, restored.Task)
	assert.Equal(t, p.Status, restored.Status)
	assert.Equal(t, p.CurrentStepID, restored.CurrentStepID)
	assert.Equal(t, p.Version, restored.Version)
	require.Len(t, restored.Steps, len(p.Steps))
	for i, s := range p.Steps {
		r := restored.Steps[i]
		assert.Equal(t, s.ID, r.ID)
		assert.Equal(t, s.Description, r.Description)
		assert.Equal(t, s.ExpectedOutcome, r.ExpectedOutcome)
		assert.Equal(t, s.ToolsNeeded, r.ToolsNeeded)
		assert.Equal(t, s.Status, r.Status)
		assert.Equal(t, s.Error, r.Error)
		assert.Equal(t, s.FilesChanged, r.FilesChanged)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	p := threeStepPlan()
	p.Steps[0].Status = StepDone

	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"status":"done"`)

	var restored Plan
	require.NoError(t, json.Unmarshal(data, &restored))
	assert.Equal(t, StepDone, restored.Steps[0].Status)
	assert.Equal(t, p.Task, restored.Task)
}

func TestSummary_MarksCurrentStep(t *testing.T) {
	p := threeStepPlan()
	p.CurrentStepID = 2
	p.Steps[0].Status = StepDone
	p.Steps[1].Status = StepInProgress

	out := p.Summary()
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[1], "●")
	assert.True(t, strings.HasPrefix(lines[2], "→ "))
	assert.Contains(t, lines[2], "◐")
	assert.False(t, strings.HasPrefix(lines[3], "→ "))
}
