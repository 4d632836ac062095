package sandbox

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestLocal_ID(t *testing.T) {
	s := NewLocal(t.TempDir(), 30, 10_000)
	if s.ID() != "local" {
		t.Fatalf("expected 'local', got %q", s.ID())
	}
}

func TestLocal_Execute(t *testing.T) {
	s := NewLocal(t.TempDir(), 30, 10_000)

	t.Run("echo", func(t *testing.T) {
		res := s.Execute("echo hello")
		if res.ExitCode != 0 {
			t.Fatalf("expected exit 0, got %d: %s", res.ExitCode, res.Output)
		}
		if res.Output != "hello\n" {
			t.Fatalf("expected 'hello\\n', got %q", res.Output)
		}
	})

	t.Run("empty command", func(t *testing.T) {
		res := s.Execute("")
		if res.ExitCode != 1 {
			t.Fatalf("expected exit 1, got %d", res.ExitCode)
		}
	})

	t.Run("nonzero exit", func(t *testing.T) {
		res := s.Execute("exit 3")
		if res.ExitCode != 3 {
			t.Fatalf("expected exit 3, got %d", res.ExitCode)
		}
		if !strings.Contains(res.Output, "Exit code: 3") {
			t.Fatalf("expected exit code in output, got %q", res.Output)
		}
	})

	t.Run("stderr tagged", func(t *testing.T) {
		res := s.Execute("echo oops 1>&2")
		if !strings.Contains(res.Output, "[stderr] oops") {
			t.Fatalf("expected stderr tag, got %q", res.Output)
		}
	})
}

func TestLocal_ExecuteTruncation(t *testing.T) {
	s := NewLocal(t.TempDir(), 30, 100)
	res := s.Execute("yes x | head -n 200")
	if !res.Truncated {
		t.Fatal("expected truncated output")
	}
	if !strings.Contains(res.Output, "truncated at 100 bytes") {
		t.Fatalf("expected truncation notice, got %q", res.Output)
	}
}

func TestResolvePath(t *testing.T) {
	dir := t.TempDir()

	t.Run("relative", func(t *testing.T) {
		resolved, err := resolvePath(dir, "foo/bar.txt")
		if err != nil {
			t.Fatal(err)
		}
		if expected := filepath.Join(dir, "foo/bar.txt"); resolved != expected {
			t.Fatalf("expected %q, got %q", expected, resolved)
		}
	})

	t.Run("escape", func(t *testing.T) {
		if _, err := resolvePath(dir, "../../etc/passwd"); err == nil {
			t.Fatal("expected error for path escape")
		}
	})

	t.Run("absolute outside", func(t *testing.T) {
		if _, err := resolvePath(dir, "/etc/passwd"); err == nil {
			t.Fatal("expected error for absolute path outside workspace")
		}
	})

	t.Run("empty", func(t *testing.T) {
		resolved, err := resolvePath(dir, "")
		if err != nil {
			t.Fatal(err)
		}
		if resolved != dir {
			t.Fatalf("expected %q, got %q", dir, resolved)
		}
	})
}

func TestLocal_Files(t *testing.T) {
	s := NewLocal(t.TempDir(), 30, 10_000)

	if err := s.WriteFile("src/main.py", []byte("print('hi')")); err != nil {
		t.Fatal(err)
	}

	content, err := s.ReadFile("src/main.py")
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "print('hi')" {
		t.Fatalf("unexpected content %q", content)
	}

	entries, err := s.ListFiles("")
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0] != "src/" {
		t.Fatalf("unexpected entries %v", entries)
	}

	if err := s.WriteFile("../outside.txt", []byte("x")); err == nil {
		t.Fatal("expected workspace escape to be rejected")
	}
}
