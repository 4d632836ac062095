package sandbox

import (
	"encoding/base64"
	"fmt"
	"path"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// daemonRequest is the JSON command sent to a stepwise sandbox daemon.
type daemonRequest struct {
	ID      string `json:"id"`
	Op      string `json:"op"` // "exec", "write", "read", "ls"
	Cmd     string `json:"cmd,omitempty"`
	Path    string `json:"path,omitempty"`
	Content string `json:"content,omitempty"` // base64 for write
	Timeout int    `json:"timeout,omitempty"`
}

// daemonResponse is the JSON result from the daemon.
type daemonResponse struct {
	ID       string   `json:"id"`
	Output   string   `json:"output,omitempty"`
	Content  string   `json:"content,omitempty"` // base64 for read
	Entries  []string `json:"entries,omitempty"`
	ExitCode int      `json:"exit_code"`
	Error    string   `json:"error,omitempty"`
}

// Remote talks to a sandbox daemon over a persistent websocket connection.
// The daemon applies every effect inside its own container workspace and
// enforces its own execution bound; this client only serializes requests.
type Remote struct {
	mu      sync.Mutex
	conn    *websocket.Conn
	url     string
	workdir string
	timeout time.Duration
	nextID  atomic.Int64
}

// DialRemote connects to a sandbox daemon, e.g. "ws://172.17.0.2:9090/sandbox".
func DialRemote(url, workdir string, timeout float64) (*Remote, error) {
	if workdir == "" {
		workdir = "/workspace"
	}
	if timeout == 0 {
		timeout = 120
	}
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, _, err := dialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("sandbox dial %s: %w", url, err)
	}
	return &Remote{
		conn:    conn,
		url:     url,
		workdir: workdir,
		timeout: time.Duration(timeout * float64(time.Second)),
	}, nil
}

func (s *Remote) ID() string      { return "remote" }
func (s *Remote) Workdir() string { return s.workdir }

// Close tears down the daemon connection.
func (s *Remote) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}

// roundTrip sends one request and waits for its response. Requests are
// serialized with a mutex; the daemon answers in order.
func (s *Remote) roundTrip(req daemonRequest) (*daemonResponse, error) {
	req.ID = fmt.Sprintf("%d", s.nextID.Add(1))
	req.Timeout = int(s.timeout.Seconds())

	s.mu.Lock()
	defer s.mu.Unlock()

	s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := s.conn.WriteJSON(req); err != nil {
		return nil, fmt.Errorf("sandbox write: %w", err)
	}

	// The daemon enforces the execution bound; allow a margin on top.
	s.conn.SetReadDeadline(time.Now().Add(s.timeout + 30*time.Second))
	var resp daemonResponse
	if err := s.conn.ReadJSON(&resp); err != nil {
		return nil, fmt.Errorf("sandbox read: %w", err)
	}
	if resp.ID != req.ID {
		return nil, fmt.Errorf("sandbox response id mismatch: sent %s, got %s", req.ID, resp.ID)
	}
	return &resp, nil
}

// Execute runs a shell command inside the daemon's workspace.
func (s *Remote) Execute(command string) ExecResult {
	if command == "" {
		return ExecResult{Output: "Error: Command must be a non-empty string.", ExitCode: 1}
	}
	resp, err := s.roundTrip(daemonRequest{Op: "exec", Cmd: command})
	if err != nil {
		return ExecResult{Output: "Error executing command: " + err.Error(), ExitCode: 1}
	}
	if resp.Error != "" {
		return ExecResult{Output: "Error executing command: " + resp.Error, ExitCode: 1}
	}
	return ExecResult{Output: resp.Output, ExitCode: resp.ExitCode}
}

// WriteFile writes content to a workspace-relative path in the daemon.
func (s *Remote) WriteFile(p string, content []byte) error {
	if err := checkRemotePath(p); err != nil {
		return err
	}
	resp, err := s.roundTrip(daemonRequest{
		Op:      "write",
		Path:    p,
		Content: base64.StdEncoding.EncodeToString(content),
	})
	if err != nil {
		return err
	}
	if resp.Error != "" {
		return fmt.Errorf("sandbox write %s: %s", p, resp.Error)
	}
	return nil
}

// ReadFile reads a workspace-relative path from the daemon.
func (s *Remote) ReadFile(p string) ([]byte, error) {
	if err := checkRemotePath(p); err != nil {
		return nil, err
	}
	resp, err := s.roundTrip(daemonRequest{Op: "read", Path: p})
	if err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("sandbox read %s: %s", p, resp.Error)
	}
	return base64.StdEncoding.DecodeString(resp.Content)
}

// ListFiles lists a workspace-relative directory in the daemon.
func (s *Remote) ListFiles(p string) ([]string, error) {
	if err := checkRemotePath(p); err != nil {
		return nil, err
	}
	resp, err := s.roundTrip(daemonRequest{Op: "ls", Path: p})
	if err != nil {
		return nil, err
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("sandbox ls %s: %s", p, resp.Error)
	}
	return resp.Entries, nil
}

// checkRemotePath rejects obvious workspace escapes before the request is
// even sent; the daemon re-validates on its side.
func checkRemotePath(p string) error {
	cleaned := path.Clean(p)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return fmt.Errorf("path %q escapes the workspace", p)
	}
	return nil
}
