package agent

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

// writeFakeCLI writes script to a temporary POSIX shell script and returns
// the argv that runs it. The script plays the agent side of ACP: it reads
// request lines from stdin and prints response lines to stdout. The client
// sends three lines (initialize, initialized, agents/run) before it reads
// the stream, so every script reads all three before streaming.
func writeFakeCLI(t *testing.T, script string) []string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake CLI script requires a POSIX shell")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "fake-cli.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return []string{"/bin/sh", path}
}

func TestRunConcatenatesTextDeltasWithNoSeparator(t *testing.T) {
	script := `read _
printf '{"jsonrpc":"2.0","id":1,"result":{}}\n'
read _
read _
printf '{"jsonrpc":"2.0","method":"agents/textDelta","params":{"delta":{"type":"text","text":"Hello, "}}}\n'
printf '{"jsonrpc":"2.0","method":"agents/textDelta","params":{"delta":{"type":"text","text":"world!"}}}\n'
printf '{"jsonrpc":"2.0","method":"agents/turnDone"}\n'
printf '{"jsonrpc":"2.0","method":"agents/done"}\n'
`
	c := New(writeFakeCLI(t, script), "", true)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	run := c.Run(ctx, "hi", t.TempDir(), "")
	if !run.Success {
		t.Fatalf("expected success, got error: %s", run.Error)
	}
	if run.Output != "Hello, world!" {
		t.Fatalf("Output = %q, want %q", run.Output, "Hello, world!")
	}
	if run.Turns != 1 {
		t.Fatalf("Turns = %d, want 1", run.Turns)
	}
}

func TestRunEOFWithoutDoneZeroExitIsSuccess(t *testing.T) {
	script := `read _
printf '{"jsonrpc":"2.0","id":1,"result":{}}\n'
read _
read _
printf '{"jsonrpc":"2.0","method":"agents/textDelta","params":{"delta":{"type":"text","text":"partial"}}}\n'
exit 0
`
	c := New(writeFakeCLI(t, script), "", true)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	run := c.Run(ctx, "hi", t.TempDir(), "")
	if !run.Success {
		t.Fatalf("expected EOF-without-done with exit 0 to be success, got: %s", run.Error)
	}
	if run.Output != "partial" {
		t.Fatalf("Output = %q, want partial", run.Output)
	}
}

func TestRunEOFWithoutDoneNonZeroExitIsFailure(t *testing.T) {
	script := `read _
printf '{"jsonrpc":"2.0","id":1,"result":{}}\n'
read _
read _
exit 7
`
	c := New(writeFakeCLI(t, script), "", true)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	run := c.Run(ctx, "hi", t.TempDir(), "")
	if run.Success {
		t.Fatal("expected failure for non-zero exit without agents/done")
	}
}

func TestRunAutoApprovesPermissionsWhenEnabled(t *testing.T) {
	script := `read _
printf '{"jsonrpc":"2.0","id":1,"result":{}}\n'
read _
read _
printf '{"jsonrpc":"2.0","method":"permissions/requested","params":{"permissionsRequestId":"p1"}}\n'
read grant
case "$grant" in
  *permissions/granted*) printf '{"jsonrpc":"2.0","method":"agents/done"}\n' ;;
  *) printf '{"jsonrpc":"2.0","method":"agents/textDelta","params":{"delta":{"type":"text","text":"no-grant-seen"}}}\n'
     printf '{"jsonrpc":"2.0","method":"agents/done"}\n' ;;
esac
`
	c := New(writeFakeCLI(t, script), "", true)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	run := c.Run(ctx, "hi", t.TempDir(), "")
	if !run.Success {
		t.Fatalf("expected success, got: %s", run.Error)
	}
	if run.Output == "no-grant-seen" {
		t.Fatal("expected permissions/granted to be sent back to the CLI")
	}
}

func TestRunDoesNotGrantPermissionsWhenDisabled(t *testing.T) {
	script := `read _
printf '{"jsonrpc":"2.0","id":1,"result":{}}\n'
read _
read _
printf '{"jsonrpc":"2.0","method":"permissions/requested","params":{"permissionsRequestId":"p1"}}\n'
printf '{"jsonrpc":"2.0","method":"agents/done"}\n'
`
	c := New(writeFakeCLI(t, script), "", false)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	run := c.Run(ctx, "hi", t.TempDir(), "")
	if !run.Success {
		t.Fatalf("expected success, got: %s", run.Error)
	}
}

func TestRunCLINotFound(t *testing.T) {
	c := New([]string{"definitely-not-a-real-cli-binary"}, "", true)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	run := c.Run(ctx, "hi", t.TempDir(), "")
	if run.Success {
		t.Fatal("expected failure for missing CLI binary")
	}
}

func TestGeminiCLIBuildsExpectedArgv(t *testing.T) {
	c := GeminiCLI("gemini-2.5-pro", "")
	want := []string{"gemini", "--experimental-acp", "--model", "gemini-2.5-pro"}
	if len(c.cmd) != len(want) {
		t.Fatalf("cmd = %v, want %v", c.cmd, want)
	}
	for i := range want {
		if c.cmd[i] != want[i] {
			t.Fatalf("cmd = %v, want %v", c.cmd, want)
		}
	}
}

func TestCodexBuildsExpectedArgv(t *testing.T) {
	c := Codex("", "")
	want := []string{"codex", "--mode", "acp"}
	if len(c.cmd) != len(want) {
		t.Fatalf("cmd = %v, want %v", c.cmd, want)
	}
}
