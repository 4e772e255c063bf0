package httpapi

import (
	"bufio"
	"context"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/ankittk/agentsync/internal/notify"
	"github.com/ankittk/agentsync/pkg/models"
)

func TestStreamDeliversBanner(t *testing.T) {
	t.Parallel()
	app, ts := newTestServer(t, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/stream", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("stream: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("content-type = %q", ct)
	}

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	sawConnected := false
	for sc.Scan() {
		line := sc.Text()
		if strings.Contains(line, `"connected"`) {
			sawConnected = true
			go app.Router.Announce(context.Background(), models.CategoryMessage, "ping from test", notify.Options{})
			continue
		}
		if sawConnected && strings.Contains(line, "ping from test") {
			if app.Hub.Subscribers() != 1 {
				t.Errorf("subscribers = %d, want 1", app.Hub.Subscribers())
			}
			return
		}
	}
	t.Fatalf("banner not seen on stream (connected=%v, err=%v)", sawConnected, sc.Err())
}

func TestInFlightEndpoint(t *testing.T) {
	t.Parallel()
	_, ts := newTestServer(t, nil)
	code, b := do(t, http.MethodGet, ts.URL+"/collaborations/in-flight", "")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if got := strings.TrimSpace(string(b)); got != `{"keys":[]}` {
		t.Fatalf("body = %s", got)
	}
}

func TestDashboardRoutes(t *testing.T) {
	t.Parallel()
	_, ts := newTestServer(t, func(o *ServerOptions) { o.APIKey = "k" })
	for _, path := range []string{"/", "/app.js"} {
		code, _ := do(t, http.MethodGet, ts.URL+path, "")
		if code != http.StatusOK {
			t.Errorf("GET %s: status = %d, want 200 without a key", path, code)
		}
	}
	if code, _ := do(t, http.MethodGet, ts.URL+"/nope", "", "X-API-Key", "k"); code != http.StatusNotFound {
		t.Errorf("GET /nope: status = %d, want 404", code)
	}
}
