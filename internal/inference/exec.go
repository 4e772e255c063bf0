package inference

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ankittk/agentsync/internal/config"
	"github.com/ankittk/agentsync/internal/sandbox"
)

const waitDelay = 500 * time.Millisecond

// execRequest is written to the command's stdin as one JSON line.
type execRequest struct {
	Prompt string `json:"prompt"`
	Schema Schema `json:"schema"`
	Model  string `json:"model,omitempty"`
}

// Exec runs a local model command once per inference. The last JSON object
// line on stdout is the result; other lines are logged as progress.
type Exec struct {
	Command []string
	Model   string
	// Sandbox, if set, confines the command with bubblewrap (Linux) to this writable directory.
	Sandbox string
}

// NewExec returns an Exec backend for cfg.Command.
func NewExec(cfg config.InferenceConfig) (*Exec, error) {
	if len(cfg.Command) == 0 || cfg.Command[0] == "" {
		return nil, errors.New("exec inference: command is required")
	}
	return &Exec{Command: cfg.Command, Model: cfg.Model, Sandbox: cfg.Sandbox}, nil
}

func (e *Exec) Infer(ctx context.Context, prompt string, schema Schema) (json.RawMessage, error) {
	if len(e.Command) == 0 {
		return nil, errors.New("exec inference: command is required")
	}
	req, err := json.Marshal(execRequest{Prompt: prompt, Schema: schema, Model: e.Model})
	if err != nil {
		return nil, err
	}
	cmd := sandbox.WrapCommand(ctx, e.Sandbox, e.Command[0], e.Command[1:])
	cmd.Stdin = bytes.NewReader(append(req, '\n'))
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// children that inherit the pipes must not hold Wait open after a cancel
	cmd.WaitDelay = waitDelay
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("exec inference %s: %w: %s", e.Command[0], err, strings.TrimSpace(stderr.String()))
	}

	var last json.RawMessage
	var text strings.Builder
	sc := bufio.NewScanner(&stdout)
	sc.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "{") && json.Valid([]byte(line)) {
			last = json.RawMessage(line)
			continue
		}
		slog.Debug("exec inference output", "command", e.Command[0], "line", line)
		text.WriteString(line)
		text.WriteString("\n")
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if last != nil {
		return last, nil
	}
	return ExtractJSON(text.String())
}
