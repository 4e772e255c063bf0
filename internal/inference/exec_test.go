package inference

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/ankittk/agentsync/internal/config"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts")
	}
	path := filepath.Join(t.TempDir(), "model.sh")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

var execSchema = Schema{Type: "object", Properties: map[string]Property{"summary": {Type: "string"}}, Required: []string{"summary"}}

func TestNewExec_requiresCommand(t *testing.T) {
	if _, err := NewExec(config.InferenceConfig{Provider: "exec"}); err == nil {
		t.Fatal("expected error without command")
	}
	inf, err := New(config.InferenceConfig{Provider: "exec", Command: []string{"/bin/true"}})
	if err != nil {
		t.Fatalf("New exec: %v", err)
	}
	if _, ok := inf.(*Exec); !ok {
		t.Fatalf("New exec returned %T", inf)
	}
}

func TestExec_lastJSONLineWins(t *testing.T) {
	script := writeScript(t, `read req
case "$req" in *'"prompt":"hello'*) ;; *) echo "bad request: $req" >&2; exit 3;; esac
echo "thinking..."
echo '{"summary":"draft"}'
echo '{"summary":"final","actions":["ship"]}'
`)
	e := &Exec{Command: []string{script}}
	raw, err := e.Infer(context.Background(), "hello world", execSchema)
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	if string(raw) != `{"summary":"final","actions":["ship"]}` {
		t.Fatalf("raw = %s", raw)
	}
	if err := Validate(raw, execSchema); err != nil {
		t.Fatal(err)
	}
}

func TestExec_prettyPrintedOutput(t *testing.T) {
	script := writeScript(t, "cat >/dev/null\nprintf '{\\n  \"summary\": \"multi\"\\n}\\n'\n")
	raw, err := (&Exec{Command: []string{script}}).Infer(context.Background(), "p", execSchema)
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	if !strings.Contains(string(raw), `"multi"`) {
		t.Fatalf("raw = %s", raw)
	}
}

func TestExec_failureIncludesStderr(t *testing.T) {
	script := writeScript(t, "echo 'model not loaded' >&2\nexit 2\n")
	_, err := (&Exec{Command: []string{script}}).Infer(context.Background(), "p", execSchema)
	if err == nil || !strings.Contains(err.Error(), "model not loaded") {
		t.Fatalf("err = %v", err)
	}
}

func TestExec_noJSON(t *testing.T) {
	script := writeScript(t, "echo 'I cannot answer that'\n")
	_, err := (&Exec{Command: []string{script}}).Infer(context.Background(), "p", execSchema)
	if !errors.Is(err, ErrShape) {
		t.Fatalf("err = %v, want ErrShape", err)
	}
}

func TestExec_contextCancel(t *testing.T) {
	script := writeScript(t, "exec sleep 5\necho '{\"summary\":\"late\"}'\n")
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := (&Exec{Command: []string{script}}).Infer(ctx, "p", execSchema)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v", err)
	}
	if time.Since(start) > 4*time.Second {
		t.Fatal("command was not killed on cancel")
	}
}
