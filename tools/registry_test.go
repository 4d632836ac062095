package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopTool(name string) Tool {
	return &FuncTool{
		ToolName:   name,
		ToolDesc:   "test tool",
		ToolParams: map[string]any{"type": "object"},
		Fn: func(ctx context.Context, args map[string]any) Result {
			return Result{Success: true, Output: "ok"}
		},
	}
}

func TestRegistry_CreatePlanAlwaysPresent(t *testing.T) {
	r := NewRegistry()
	assert.NotNil(t, r.Get(CreatePlanName))
	assert.Contains(t, r.List(), CreatePlanName)
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(noopTool("run_command")))
	assert.NotNil(t, r.Get("run_command"))

	err := r.Register(noopTool("run_command"))
	require.Error(t, err)
	var dup *DuplicateNameError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "run_command", dup.Name)
}

func TestRegistry_Definitions(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(noopTool("write_file")))
	require.NoError(t, r.Register(noopTool("read_file")))

	defs := r.Definitions()
	require.Len(t, defs, 3)
	// Sorted by name for a stable catalogue.
	assert.Equal(t, CreatePlanName, defs[0].Name)
	assert.Equal(t, "read_file", defs[1].Name)
	assert.Equal(t, "write_file", defs[2].Name)
	for _, d := range defs {
		assert.NotEmpty(t, d.Description)
		assert.NotNil(t, d.Parameters)
	}
}
