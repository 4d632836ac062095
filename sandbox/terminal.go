package sandbox

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/creack/pty"
)

// Terminal is an interactive shell attached to a local sandbox workspace,
// running under a pseudo-terminal so line editing and job control behave as
// in a real shell.
type Terminal struct {
	cmd *exec.Cmd
	pty *os.File
}

// OpenTerminal starts an interactive sh in the sandbox workdir.
func OpenTerminal(s *Local) (*Terminal, error) {
	cmd := exec.Command("sh", "-i")
	cmd.Dir = s.Workdir()
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")

	f, err := pty.Start(cmd)
	if err != nil {
		return nil, fmt.Errorf("start terminal: %w", err)
	}
	return &Terminal{cmd: cmd, pty: f}, nil
}

// Read reads terminal output.
func (t *Terminal) Read(p []byte) (int, error) { return t.pty.Read(p) }

// Write sends input to the shell.
func (t *Terminal) Write(p []byte) (int, error) { return t.pty.Write(p) }

// Resize adjusts the pseudo-terminal window size.
func (t *Terminal) Resize(rows, cols uint16) error {
	return pty.Setsize(t.pty, &pty.Winsize{Rows: rows, Cols: cols})
}

// Close terminates the shell and releases the pty.
func (t *Terminal) Close() error {
	t.pty.Close()
	if t.cmd.Process != nil {
		t.cmd.Process.Kill()
	}
	return t.cmd.Wait()
}
