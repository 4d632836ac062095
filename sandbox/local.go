package sandbox

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Local executes commands directly on the host via sh -c, jailed to a
// workspace directory. Useful for development; production sessions should
// point at a Remote sandbox.
type Local struct {
	workdir        string
	timeout        time.Duration
	maxOutputBytes int
}

// NewLocal creates a local sandbox rooted at workdir. Zero values get
// defaults: 120s timeout, 100 KB output cap.
func NewLocal(workdir string, timeout float64, maxOutputBytes int) *Local {
	if workdir == "" {
		workdir, _ = os.Getwd()
		if workdir == "" {
			workdir = "/tmp/stepwise-workspace"
		}
	}
	if !filepath.IsAbs(workdir) {
		if abs, err := filepath.Abs(workdir); err == nil {
			workdir = abs
		}
	}
	if timeout == 0 {
		timeout = 120
	}
	if maxOutputBytes == 0 {
		maxOutputBytes = 100_000
	}

	os.MkdirAll(workdir, 0755)

	return &Local{
		workdir:        workdir,
		timeout:        time.Duration(timeout * float64(time.Second)),
		maxOutputBytes: maxOutputBytes,
	}
}

func (s *Local) ID() string      { return "local" }
func (s *Local) Workdir() string { return s.workdir }

// Execute runs a command in the workspace via sh -c.
func (s *Local) Execute(command string) ExecResult {
	if command == "" {
		return ExecResult{Output: "Error: Command must be a non-empty string.", ExitCode: 1}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = s.workdir

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return s.buildResult(stdout.String(), stderr.String(), err, ctx)
}

func (s *Local) buildResult(stdoutStr, stderrStr string, err error, ctx context.Context) ExecResult {
	var parts []string
	if stdoutStr != "" {
		parts = append(parts, stdoutStr)
	}
	if stderrStr != "" {
		for _, line := range strings.Split(strings.TrimSpace(stderrStr), "\n") {
			parts = append(parts, "[stderr] "+line)
		}
	}

	output := "<no output>"
	if len(parts) > 0 {
		output = strings.Join(parts, "\n")
	}

	truncated := false
	if len(output) > s.maxOutputBytes {
		output = output[:s.maxOutputBytes]
		output += fmt.Sprintf("\n\n... Output truncated at %d bytes.", s.maxOutputBytes)
		truncated = true
	}

	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else if ctx.Err() != nil {
			return ExecResult{
				Output:   fmt.Sprintf("Error: Command timed out after %.1f seconds.", s.timeout.Seconds()),
				ExitCode: 124,
			}
		} else {
			return ExecResult{Output: "Error executing command: " + err.Error(), ExitCode: 1}
		}
	}

	if exitCode != 0 {
		output = strings.TrimRight(output, "\n") + fmt.Sprintf("\n\nExit code: %d", exitCode)
	}

	return ExecResult{Output: output, ExitCode: exitCode, Truncated: truncated}
}

// WriteFile writes content to a workspace-relative path, creating parents.
func (s *Local) WriteFile(path string, content []byte) error {
	resolved, err := resolvePath(s.workdir, path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(resolved), 0755); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}
	return os.WriteFile(resolved, content, 0644)
}

// ReadFile reads a workspace-relative path.
func (s *Local) ReadFile(path string) ([]byte, error) {
	resolved, err := resolvePath(s.workdir, path)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(resolved)
}

// ListFiles lists entries under a workspace-relative directory. Directories
// get a trailing slash.
func (s *Local) ListFiles(path string) ([]string, error) {
	resolved, err := resolvePath(s.workdir, path)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(resolved)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	return names, nil
}
