// Package tools defines the capability interface the LLM may invoke, the
// registry that names them, and the built-in capabilities (create_plan plus
// the sandbox-backed file and command tools).
package tools

import "context"

// Definition describes a tool for presentation to the LLM.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON Schema
}

// Result is the structured outcome of a tool invocation. Validation and
// execution failures are reported through Success/Error, never panics, so
// the LLM can self-correct from the tool result.
type Result struct {
	Success bool           `json:"success"`
	Output  string         `json:"output"`
	Data    map[string]any `json:"data,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Fail builds a failed result with the given error message.
func Fail(msg string) Result {
	return Result{Success: false, Output: "Error: " + msg, Error: msg}
}

// Tool is a named capability the LLM may invoke with structured arguments.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any // JSON Schema
	Execute(ctx context.Context, args map[string]any) Result
}

// FuncTool wraps a plain function as a Tool.
type FuncTool struct {
	ToolName   string
	ToolDesc   string
	ToolParams map[string]any
	Fn         func(ctx context.Context, args map[string]any) Result
}

func (f *FuncTool) Name() string               { return f.ToolName }
func (f *FuncTool) Description() string        { return f.ToolDesc }
func (f *FuncTool) Parameters() map[string]any { return f.ToolParams }
func (f *FuncTool) Execute(ctx context.Context, args map[string]any) Result {
	return f.Fn(ctx, args)
}

// stringArg extracts a string argument, tolerating absence.
func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}
