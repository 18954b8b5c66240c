package predictor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// maxStderr bounds how much of the child's stderr is kept in error messages.
const maxStderr = 512

// ExecPredictor runs the model as a child process per request. The request
// envelope is written to stdin and the response envelope is read from stdout.
// Model scripts tend to print progress lines before their result, so the last
// line of stdout that parses as a response wins.
type ExecPredictor struct {
	command []string
	workdir string
}

// NewExecPredictor creates a subprocess predictor. command is the argv of the
// model entrypoint, e.g. ["python3", "ml/manage_agent_cli.py"].
func NewExecPredictor(command []string, workdir string) (*ExecPredictor, error) {
	if len(command) == 0 || command[0] == "" {
		return nil, fmt.Errorf("exec predictor requires a command")
	}
	return &ExecPredictor{command: append([]string{}, command...), workdir: workdir}, nil
}

func (p *ExecPredictor) Name() string {
	return "exec:" + filepath.Base(p.command[0])
}

func (p *ExecPredictor) Predict(ctx context.Context, req Request) (*Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	cmd := exec.CommandContext(ctx, p.command[0], p.command[1:]...)
	if p.workdir != "" {
		cmd.Dir = p.workdir
	}
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdin = bytes.NewReader(payload)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err = cmd.Run()
	if ctx.Err() != nil {
		return nil, &Error{Reason: ReasonTimeout, Err: ctx.Err()}
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, &Error{
				Reason: ReasonExit,
				Status: exitErr.ExitCode(),
				Err:    fmt.Errorf("exit status %d: %s", exitErr.ExitCode(), tail(stderr.String(), maxStderr)),
			}
		}
		return nil, &Error{Reason: ReasonUnavailable, Err: fmt.Errorf("start %s: %w", p.command[0], err)}
	}

	return decodeOutput(stdout.Bytes())
}

// decodeOutput parses the whole output as a Response, falling back to the
// last line that does.
func decodeOutput(out []byte) (*Response, error) {
	out = bytes.TrimSpace(out)
	if len(out) == 0 {
		return nil, &Error{Reason: ReasonDecode, Err: fmt.Errorf("no output")}
	}

	var resp Response
	if err := json.Unmarshal(out, &resp); err == nil {
		return &resp, nil
	}

	lines := bytes.Split(out, []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		line := bytes.TrimSpace(lines[i])
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		var r Response
		if err := json.Unmarshal(line, &r); err == nil {
			return &r, nil
		}
	}
	return nil, &Error{Reason: ReasonDecode, Err: fmt.Errorf("unparseable output: %s", tail(string(out), maxStderr))}
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
