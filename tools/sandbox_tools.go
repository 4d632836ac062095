package tools

import (
	"context"
	"fmt"
	"strings"

	"stepwise/sandbox"
)

// SandboxTools builds the builtin capabilities backed by an execution
// sandbox: run_command, read_file, write_file, list_files. Write and command
// tools report touched paths under Data["files_changed"] so the agent loop
// can attribute file changes to the step that made them.
func SandboxTools(sb sandbox.Sandbox) []Tool {
	return []Tool{
		runCommandTool(sb),
		readFileTool(sb),
		writeFileTool(sb),
		listFilesTool(sb),
	}
}

func runCommandTool(sb sandbox.Sandbox) Tool {
	return &FuncTool{
		ToolName: "run_command",
		ToolDesc: "Run a shell command in the workspace and return its output.",
		ToolParams: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"command": map[string]any{"type": "string"},
			},
			"required": []string{"command"},
		},
		Fn: func(ctx context.Context, args map[string]any) Result {
			command := stringArg(args, "command")
			if command == "" {
				return Fail("'command' is required")
			}
			res := sb.Execute(command)
			if res.ExitCode != 0 {
				return Result{
					Success: false,
					Output:  res.Output,
					Error:   fmt.Sprintf("command exited with code %d", res.ExitCode),
					Data:    map[string]any{"exit_code": res.ExitCode},
				}
			}
			return Result{
				Success: true,
				Output:  res.Output,
				Data:    map[string]any{"exit_code": res.ExitCode, "truncated": res.Truncated},
			}
		},
	}
}

func readFileTool(sb sandbox.Sandbox) Tool {
	return &FuncTool{
		ToolName: "read_file",
		ToolDesc: "Read a file from the workspace.",
		ToolParams: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{"type": "string"},
			},
			"required": []string{"path"},
		},
		Fn: func(ctx context.Context, args map[string]any) Result {
			path := stringArg(args, "path")
			if path == "" {
				return Fail("'path' is required")
			}
			content, err := sb.ReadFile(path)
			if err != nil {
				return Fail("read " + path + ": " + err.Error())
			}
			return Result{Success: true, Output: string(content)}
		},
	}
}

func writeFileTool(sb sandbox.Sandbox) Tool {
	return &FuncTool{
		ToolName: "write_file",
		ToolDesc: "Write content to a file in the workspace, creating parent directories.",
		ToolParams: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":    map[string]any{"type": "string"},
				"content": map[string]any{"type": "string"},
			},
			"required": []string{"path", "content"},
		},
		Fn: func(ctx context.Context, args map[string]any) Result {
			path := stringArg(args, "path")
			if path == "" {
				return Fail("'path' is required")
			}
			content, ok := args["content"].(string)
			if !ok {
				return Fail("'content' is required")
			}
			if err := sb.WriteFile(path, []byte(content)); err != nil {
				return Fail("write " + path + ": " + err.Error())
			}
			return Result{
				Success: true,
				Output:  fmt.Sprintf("Wrote %d bytes to %s", len(content), path),
				Data:    map[string]any{"files_changed": []string{path}},
			}
		},
	}
}

func listFilesTool(sb sandbox.Sandbox) Tool {
	return &FuncTool{
		ToolName: "list_files",
		ToolDesc: "List directory entries in the workspace. Directories carry a trailing slash.",
		ToolParams: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path": map[string]any{"type": "string", "description": "Relative directory; empty for the workspace root."},
			},
		},
		Fn: func(ctx context.Context, args map[string]any) Result {
			entries, err := sb.ListFiles(stringArg(args, "path"))
			if err != nil {
				return Fail("list files: " + err.Error())
			}
			return Result{Success: true, Output: strings.Join(entries, "\n")}
		},
	}
}
