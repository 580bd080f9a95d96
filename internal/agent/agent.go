// Package agent drives coding-agent CLIs over the Agent Client Protocol
// (ACP): JSON-RPC 2.0, line-delimited, spoken over a subprocess's stdin and
// stdout. Gemini CLI and Codex CLI both speak it; see
// https://agentclientprotocol.com.
package agent

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/specq-run/specq/internal/models"
)

const (
	initTimeout     = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

// Client runs one coding-agent turn per Run call by spawning the
// configured CLI as a subprocess and speaking ACP over its stdio pipes.
type Client struct {
	cmd                    []string
	systemPrompt           string
	autoApprovePermissions bool
}

// New constructs a Client that invokes cmd (argv, including the binary
// name) for every Run.
func New(cmd []string, systemPrompt string, autoApprovePermissions bool) *Client {
	return &Client{cmd: cmd, systemPrompt: systemPrompt, autoApprovePermissions: autoApprovePermissions}
}

// GeminiCLI returns a Client driving `gemini --experimental-acp [--model M]`.
func GeminiCLI(model, systemPrompt string) *Client {
	cmd := []string{"gemini", "--experimental-acp"}
	if model != "" {
		cmd = append(cmd, "--model", model)
	}
	return New(cmd, systemPrompt, true)
}

// Codex returns a Client driving `codex --mode acp [--model M]`.
func Codex(model, systemPrompt string) *Client {
	cmd := []string{"codex", "--mode", "acp"}
	if model != "" {
		cmd = append(cmd, "--model", model)
	}
	return New(cmd, systemPrompt, true)
}

type rpcMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int             `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Run spawns the CLI in cwd, sends prompt (with an optional per-call
// system prompt override), and blocks until the agent signals done, the
// subprocess exits, or ctx is cancelled.
func (c *Client) Run(ctx context.Context, prompt, cwd, systemPromptOverride string) models.AgentRun {
	start := time.Now()
	effectiveSystem := c.systemPrompt
	if systemPromptOverride != "" {
		effectiveSystem = systemPromptOverride
	}

	if len(c.cmd) == 0 {
		return models.AgentRun{Success: false, Error: "agent: empty command", Duration: time.Since(start)}
	}

	cmd := exec.CommandContext(ctx, c.cmd[0], c.cmd[1:]...)
	cmd.Dir = cwd

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return models.AgentRun{Success: false, Error: fmt.Sprintf("agent: stdin pipe: %v", err), Duration: time.Since(start)}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return models.AgentRun{Success: false, Error: fmt.Sprintf("agent: stdout pipe: %v", err), Duration: time.Since(start)}
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return models.AgentRun{Success: false, Error: fmt.Sprintf("agent: stderr pipe: %v", err), Duration: time.Since(start)}
	}

	if err := cmd.Start(); err != nil {
		if strings.Contains(err.Error(), "executable file not found") {
			return models.AgentRun{
				Success:  false,
				Error:    fmt.Sprintf("CLI not found: %q. Please install it and ensure it is on PATH.", c.cmd[0]),
				Duration: time.Since(start),
			}
		}
		return models.AgentRun{Success: false, Error: fmt.Sprintf("agent: start: %v", err), Duration: time.Since(start)}
	}

	// Drain stderr concurrently so its pipe buffer never fills up and
	// deadlocks the subprocess — this must run for the process's whole
	// lifetime, not just while we're reading stdout.
	stderrDone := make(chan struct{})
	go func() {
		io.Copy(io.Discard, stderr)
		close(stderrDone)
	}()

	// cmd.Wait (and therefore cmd.ProcessState) can only be observed once;
	// waitForExit lets the exit-code check below and the deferred cleanup
	// share the same call without racing or double-waiting.
	var waitOnce sync.Once
	waitForExit := func() {
		waitOnce.Do(func() {
			stdin.Close()
			done := make(chan error, 1)
			go func() { done <- cmd.Wait() }()
			select {
			case <-done:
			case <-time.After(shutdownTimeout):
				cmd.Process.Kill()
				<-done
			}
		})
	}
	defer func() {
		waitForExit()
		<-stderrDone
	}()

	writer := bufio.NewWriter(stdin)
	reader := bufio.NewReaderSize(stdout, 1<<20)

	send := func(msg any) error {
		b, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		if _, err := writer.Write(b); err != nil {
			return err
		}
		if err := writer.WriteByte('\n'); err != nil {
			return err
		}
		return writer.Flush()
	}

	nextID := 0
	id := func() int { nextID++; return nextID }

	if err := send(map[string]any{
		"jsonrpc": "2.0",
		"id":      id(),
		"method":  "initialize",
		"params": map[string]any{
			"protocolVersion": "0.1",
			"capabilities":    map[string]any{},
			"clientInfo":      map[string]any{"name": "specq", "version": "0.1.0"},
		},
	}); err != nil {
		return models.AgentRun{Success: false, Error: fmt.Sprintf("agent: send initialize: %v", err), Duration: time.Since(start)}
	}

	initLine, err := readLineWithTimeout(reader, initTimeout)
	if err != nil {
		return models.AgentRun{Success: false, Error: fmt.Sprintf("ACP initialize timed out after %s", initTimeout), Duration: time.Since(start)}
	}
	if initLine != "" {
		var initResp rpcMessage
		if json.Unmarshal([]byte(initLine), &initResp) == nil && initResp.Error != nil {
			return models.AgentRun{
				Success:  false,
				Error:    fmt.Sprintf("ACP initialize failed: %d %s", initResp.Error.Code, initResp.Error.Message),
				Duration: time.Since(start),
			}
		}
	}

	if err := send(map[string]any{"jsonrpc": "2.0", "method": "initialized", "params": map[string]any{}}); err != nil {
		return models.AgentRun{Success: false, Error: fmt.Sprintf("agent: send initialized: %v", err), Duration: time.Since(start)}
	}

	var inputMsgs []map[string]any
	if effectiveSystem != "" {
		inputMsgs = append(inputMsgs, map[string]any{
			"role":    "system",
			"content": []map[string]any{{"type": "text", "text": effectiveSystem}},
		})
	}
	inputMsgs = append(inputMsgs, map[string]any{
		"role":    "user",
		"content": []map[string]any{{"type": "text", "text": prompt}},
	})

	runReqID := id()
	if err := send(map[string]any{
		"jsonrpc": "2.0",
		"id":      runReqID,
		"method":  "agents/run",
		"params":  map[string]any{"input": inputMsgs},
	}); err != nil {
		return models.AgentRun{Success: false, Error: fmt.Sprintf("agent: send agents/run: %v", err), Duration: time.Since(start)}
	}

	var output strings.Builder
	turns := 0
	doneReceived := false

	for {
		line, readErr := reader.ReadString('\n')
		if line == "" && readErr != nil {
			break // EOF — subprocess exited
		}
		line = strings.TrimSpace(line)
		if line == "" {
			if readErr != nil {
				break
			}
			continue
		}

		var msg rpcMessage
		if json.Unmarshal([]byte(line), &msg) != nil {
			if readErr != nil {
				break
			}
			continue
		}

		switch msg.Method {
		case "permissions/requested":
			if c.autoApprovePermissions {
				var params struct {
					PermissionsRequestID string `json:"permissionsRequestId"`
				}
				json.Unmarshal(msg.Params, &params)
				send(map[string]any{
					"jsonrpc": "2.0",
					"method":  "permissions/granted",
					"params":  map[string]any{"permissionsRequestId": params.PermissionsRequestID},
				})
			}
		case "agents/textDelta":
			var params struct {
				Delta struct {
					Type string `json:"type"`
					Text string `json:"text"`
				} `json:"delta"`
			}
			json.Unmarshal(msg.Params, &params)
			if params.Delta.Type == "text" {
				output.WriteString(params.Delta.Text)
			}
		case "agents/turnDone":
			turns++
		case "agents/done":
			doneReceived = true
		default:
			if msg.ID == runReqID {
				if msg.Error != nil {
					return models.AgentRun{
						Success:  false,
						Output:   fmt.Sprintf("ACP error %d: %s", msg.Error.Code, msg.Error.Message),
						Turns:    turns,
						Duration: time.Since(start),
					}
				}
				if msg.Result != nil && output.Len() == 0 {
					output.WriteString(extractResultText(msg.Result))
				}
				goto doneReading
			}
		}
		if readErr != nil {
			break
		}
		if doneReceived {
			break
		}
	}
doneReading:

	if !doneReceived {
		waitForExit()
		if cmd.ProcessState != nil && cmd.ProcessState.ExitCode() > 0 {
			return models.AgentRun{
				Success:  false,
				Output:   fmt.Sprintf("subprocess exited with code %d without completing", cmd.ProcessState.ExitCode()),
				Turns:    turns,
				Duration: time.Since(start),
			}
		}
	}

	return models.AgentRun{Success: true, Output: output.String(), Turns: turns, Duration: time.Since(start)}
}

func extractResultText(raw json.RawMessage) string {
	var result struct {
		Output []struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		} `json:"output"`
	}
	if json.Unmarshal(raw, &result) != nil {
		return ""
	}
	var b strings.Builder
	for _, out := range result.Output {
		for _, blk := range out.Content {
			if blk.Type == "text" {
				b.WriteString(blk.Text)
			}
		}
	}
	return b.String()
}

func readLineWithTimeout(r *bufio.Reader, timeout time.Duration) (string, error) {
	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		line, err := r.ReadString('\n')
		ch <- result{line, err}
	}()
	select {
	case res := <-ch:
		return strings.TrimSpace(res.line), res.err
	case <-time.After(timeout):
		return "", fmt.Errorf("timed out after %s", timeout)
	}
}
