package prompts

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stepwise/plan"
)

func TestStepInstruction(t *testing.T) {
	p := Default()
	s := &plan.Step{ID: 2, Description: "write the parser", ExpectedOutcome: "parser.go exists"}

	out := p.StepInstruction(s)
	assert.Contains(t, out, "step 2")
	assert.Contains(t, out, "write the parser")
	assert.Contains(t, out, "parser.go exists")
}

func TestStepInstruction_DefaultOutcome(t *testing.T) {
	p := Default()
	out := p.StepInstruction(&plan.Step{ID: 1, Description: "x"})
	assert.Contains(t, out, "step completed")
}

func TestCorrectionTemplate_Placeholders(t *testing.T) {
	p := Default()
	tpl := p.CorrectionTemplate()
	assert.Contains(t, tpl, "{anomaly}")
	assert.Contains(t, tpl, "{step_id}")
}

func TestReplanPrompt(t *testing.T) {
	p := Default()
	out := p.ReplanPrompt("1 done, 1 failed")
	assert.Contains(t, out, "1 done, 1 failed")
	assert.False(t, strings.Contains(out, "{summary}"))
}

func TestLoadFile_MergesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("system: custom system\n"), 0644))

	p, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "custom system", p.SystemPrompt())
	assert.Equal(t, Default().Correction, p.CorrectionTemplate())
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile("/nonexistent/prompts.yaml")
	assert.Error(t, err)
}
