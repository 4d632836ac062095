package sandbox

import (
	"net/http/httptest"
	"strings"
	"testing"
)

// TestDaemonRoundTrip drives a Remote client against a real Daemon over a
// websocket, exercising the full wire protocol.
func TestDaemonRoundTrip(t *testing.T) {
	dir := t.TempDir()
	srv := httptest.NewServer(NewDaemon(NewLocal(dir, 5, 0)))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	remote, err := DialRemote(url, dir, 5)
	if err != nil {
		t.Fatalf("DialRemote: %v", err)
	}
	defer remote.Close()

	if err := remote.WriteFile("notes/a.txt", []byte("hello daemon")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	content, err := remote.ReadFile("notes/a.txt")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(content) != "hello daemon" {
		t.Errorf("ReadFile = %q, want %q", content, "hello daemon")
	}

	entries, err := remote.ListFiles("")
	if err != nil {
		t.Fatalf("ListFiles: %v", err)
	}
	if len(entries) != 1 || entries[0] != "notes/" {
		t.Errorf("ListFiles = %v, want [notes/]", entries)
	}

	res := remote.Execute("echo daemon says hi")
	if res.ExitCode != 0 {
		t.Fatalf("Execute exit code = %d, output %q", res.ExitCode, res.Output)
	}
	if !strings.Contains(res.Output, "daemon says hi") {
		t.Errorf("Execute output = %q", res.Output)
	}

	res = remote.Execute("exit 3")
	if res.ExitCode != 3 {
		t.Errorf("Execute exit code = %d, want 3", res.ExitCode)
	}
}

func TestDaemonRejectsEscape(t *testing.T) {
	dir := t.TempDir()
	srv := httptest.NewServer(NewDaemon(NewLocal(dir, 5, 0)))
	defer srv.Close()

	remote, err := DialRemote("ws"+strings.TrimPrefix(srv.URL, "http"), dir, 5)
	if err != nil {
		t.Fatalf("DialRemote: %v", err)
	}
	defer remote.Close()

	if err := remote.WriteFile("../outside.txt", []byte("x")); err == nil {
		t.Error("WriteFile outside the workspace should fail")
	}
	if _, err := remote.ReadFile("../../etc/hostname"); err == nil {
		t.Error("ReadFile outside the workspace should fail")
	}
}
