package collab

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ankittk/agentsync/internal/agents"
	"github.com/ankittk/agentsync/internal/inference"
	"github.com/ankittk/agentsync/internal/memory"
	"github.com/ankittk/agentsync/internal/notify"
	"github.com/ankittk/agentsync/internal/store"
	"github.com/ankittk/agentsync/pkg/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		// started at init by the genai client's transport dependencies
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
	)
}

type announcement struct {
	category string
	text     string
	opts     notify.Options
}

type recordingAnnouncer struct {
	mu    sync.Mutex
	calls []announcement
}

func (r *recordingAnnouncer) Announce(_ context.Context, category, text string, opts notify.Options) models.AnnounceReport {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, announcement{category, text, opts})
	return models.AnnounceReport{Delivered: []string{notify.ChannelBanner}}
}

func (r *recordingAnnouncer) all() []announcement {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]announcement(nil), r.calls...)
}

type statusLog struct {
	mu       sync.Mutex
	statuses []string
}

func (l *statusLog) PublishJSON(v any) {
	m, ok := v.(map[string]any)
	if !ok {
		return
	}
	c, ok := m["collaboration"].(models.Collaboration)
	if !ok {
		return
	}
	l.mu.Lock()
	l.statuses = append(l.statuses, c.Status)
	l.mu.Unlock()
}

func (l *statusLog) all() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.statuses...)
}

type fixture struct {
	mgr  *Manager
	st   store.Store
	ann  *recordingAnnouncer
	pub  *statusLog
	home string
}

func newFixture(t *testing.T, inf inference.Inferrer, timeout time.Duration) *fixture {
	t.Helper()
	home := t.TempDir()
	st, err := store.Open(home)
	require.NoError(t, err)
	f := &fixture{st: st, ann: &recordingAnnouncer{}, pub: &statusLog{}, home: home}
	f.mgr, err = New(Options{
		Store:       st,
		Inferrer:    inf,
		Announcer:   f.ann,
		Publisher:   f.pub,
		Home:        home,
		ExecTimeout: timeout,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		f.mgr.Wait()
		_ = st.Close()
	})
	return f
}

func fixedResult(body string) inference.Func {
	return func(context.Context, string, inference.Schema) (json.RawMessage, error) {
		return json.RawMessage(body), nil
	}
}

func criticalRequest() Request {
	return Request{
		Source:      agents.MarketMonitor,
		Target:      agents.StrategyDocGenerator,
		TriggerType: "critical_alert",
		Reason:      "Critical market shift requires strategy update",
		Context:     json.RawMessage(`{"ticker":"ACME","move":-0.12}`),
		Priority:    models.PriorityCritical,
		RuleID:      "mm-sdg-critical",
	}
}

func waitDone(t *testing.T, h *Handle) (models.Collaboration, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := h.Wait(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded, "execution did not finish")
	return c, err
}

func TestTrigger_criticalCompletes(t *testing.T) {
	var gotPrompt string
	inf := inference.Func(func(_ context.Context, prompt string, s inference.Schema) (json.RawMessage, error) {
		gotPrompt = prompt
		assert.Equal(t, ResultSchema.Required, s.Required)
		return json.RawMessage(`{"summary":"Drafted Q4 pivot memo","actions":["brief leadership"],"confidence":0.8}`), nil
	})
	f := newFixture(t, inf, 0)
	ctx := context.Background()

	h, err := f.mgr.Trigger(ctx, criticalRequest())
	require.NoError(t, err)
	c, err := waitDone(t, h)
	require.NoError(t, err)

	assert.Equal(t, models.StatusCompleted, c.Status)
	assert.JSONEq(t, `{"summary":"Drafted Q4 pivot memo","actions":["brief leadership"],"confidence":0.8}`, string(c.Result))
	assert.Equal(t, "mm-sdg-critical", c.RuleID)
	assert.Contains(t, gotPrompt, "Strategy Doc Generator")
	assert.Contains(t, gotPrompt, `"ticker": "ACME"`)

	stored, err := f.st.GetCollaboration(ctx, h.ID())
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, stored.Status)
	assert.NotEmpty(t, stored.Result)

	assert.Equal(t, []string{models.StatusPending, models.StatusInProgress, models.StatusCompleted}, f.pub.all())

	calls := f.ann.all()
	require.Len(t, calls, 2)
	assert.Equal(t, models.CategoryTask, calls[0].category)
	assert.Equal(t, models.CategoryCritical, calls[1].category)
	assert.Empty(t, f.mgr.InFlight())

	j := &memory.Journal{Home: f.home, AgentID: agents.StrategyDocGenerator}
	log, err := j.Read(ctx, 0)
	require.NoError(t, err)
	assert.Contains(t, log, "completed (from market_monitor)")
	assert.Contains(t, log, "Drafted Q4 pivot memo")
}

func TestTrigger_nonCriticalAnnouncesOnce(t *testing.T) {
	f := newFixture(t, fixedResult(`{"summary":"filed"}`), 0)
	req := criticalRequest()
	req.Target = agents.KnowledgeCurator
	req.Priority = models.PriorityMedium

	h, err := f.mgr.Trigger(context.Background(), req)
	require.NoError(t, err)
	_, err = waitDone(t, h)
	require.NoError(t, err)

	calls := f.ann.all()
	require.Len(t, calls, 1)
	assert.Equal(t, models.CategoryTask, calls[0].category)
	assert.Empty(t, calls[0].opts.Title)
}

func TestExecute_inferenceFailure(t *testing.T) {
	boom := errors.New("backend unavailable")
	inf := inference.Func(func(context.Context, string, inference.Schema) (json.RawMessage, error) {
		return nil, boom
	})
	f := newFixture(t, inf, 0)

	h, err := f.mgr.Trigger(context.Background(), criticalRequest())
	require.NoError(t, err)
	c, err := waitDone(t, h)
	require.ErrorIs(t, err, boom)

	assert.Equal(t, models.StatusFailed, c.Status)
	assert.Empty(t, c.Result)

	calls := f.ann.all()
	require.Len(t, calls, 1, "failure must not emit completion or critical announcements")
	assert.Equal(t, models.CategoryTask, calls[0].category)
	assert.Equal(t, "Collaboration Failed", calls[0].opts.Title)
	assert.Equal(t, notify.SeverityError, calls[0].opts.Severity)
	assert.NotContains(t, calls[0].text, "finished")

	// terminal: no further transition
	_, err = f.st.UpdateCollaboration(context.Background(), c.ID, store.StatusPatch(models.StatusCompleted))
	assert.ErrorIs(t, err, store.ErrTerminal)
}

func TestExecute_shapeViolationFails(t *testing.T) {
	f := newFixture(t, fixedResult(`{"actions":["x"]}`), 0)
	h, err := f.mgr.Trigger(context.Background(), criticalRequest())
	require.NoError(t, err)
	c, err := waitDone(t, h)
	assert.ErrorIs(t, err, inference.ErrShape)
	assert.Equal(t, models.StatusFailed, c.Status)
	assert.Empty(t, c.Result)
}

func TestExecute_unknownTargetFails(t *testing.T) {
	called := false
	inf := inference.Func(func(context.Context, string, inference.Schema) (json.RawMessage, error) {
		called = true
		return json.RawMessage(`{"summary":"x"}`), nil
	})
	f := newFixture(t, inf, 0)
	req := criticalRequest()
	req.Target = "ops_bot"

	h, err := f.mgr.Trigger(context.Background(), req)
	require.NoError(t, err)
	c, err := waitDone(t, h)
	assert.ErrorIs(t, err, ErrNoTemplate)
	assert.Equal(t, models.StatusFailed, c.Status)
	assert.False(t, called)
}

func TestTrigger_inFlightRejectsSameKey(t *testing.T) {
	release := make(chan struct{})
	inf := inference.Func(func(ctx context.Context, _ string, _ inference.Schema) (json.RawMessage, error) {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return json.RawMessage(`{"summary":"ok"}`), nil
	})
	f := newFixture(t, inf, 0)
	ctx := context.Background()

	h1, err := f.mgr.Trigger(ctx, criticalRequest())
	require.NoError(t, err)
	assert.Equal(t, []string{"market_monitor-strategy_doc_generator"}, f.mgr.InFlight())

	_, err = f.mgr.Trigger(ctx, criticalRequest())
	require.ErrorIs(t, err, ErrInFlight)

	other := criticalRequest()
	other.Target = agents.KnowledgeCurator
	h2, err := f.mgr.Trigger(ctx, other)
	require.NoError(t, err, "different rule keys do not serialize")
	assert.Len(t, f.mgr.InFlight(), 2)

	close(release)
	_, err = waitDone(t, h1)
	require.NoError(t, err)
	_, err = waitDone(t, h2)
	require.NoError(t, err)
	assert.Empty(t, f.mgr.InFlight())

	// a finished key can be re-triggered, which creates a new record
	h3, err := f.mgr.Trigger(ctx, criticalRequest())
	require.NoError(t, err)
	assert.NotEqual(t, h1.ID(), h3.ID())
	_, err = waitDone(t, h3)
	require.NoError(t, err)
}

func TestTrigger_createFailureLeavesNothingInFlight(t *testing.T) {
	f := newFixture(t, fixedResult(`{"summary":"x"}`), 0)
	req := criticalRequest()
	req.Priority = "urgent"
	_, err := f.mgr.Trigger(context.Background(), req)
	require.Error(t, err)
	assert.Empty(t, f.mgr.InFlight())

	calls := f.ann.all()
	require.Len(t, calls, 1, "a rejected write surfaces a failure banner")
	assert.Equal(t, models.CategoryTask, calls[0].category)
	assert.Equal(t, notify.Failure(), calls[0].opts)
}

func TestTrigger_closedStoreAnnouncesFailure(t *testing.T) {
	f := newFixture(t, fixedResult(`{"summary":"x"}`), 0)
	require.NoError(t, f.st.Close())

	h, err := f.mgr.Trigger(context.Background(), criticalRequest())
	require.Error(t, err)
	assert.Nil(t, h)
	assert.Empty(t, f.mgr.InFlight())

	calls := f.ann.all()
	require.Len(t, calls, 1)
	assert.Equal(t, notify.SeverityError, calls[0].opts.Severity)
	assert.Contains(t, calls[0].text, agents.StrategyDocGenerator)
}

func TestExecute_terminalRecordIsLeftAlone(t *testing.T) {
	f := newFixture(t, fixedResult(`{"summary":"done","actions":["a"]}`), 0)
	h, err := f.mgr.Trigger(context.Background(), criticalRequest())
	require.NoError(t, err)
	done, err := waitDone(t, h)
	require.NoError(t, err)
	require.Equal(t, models.StatusCompleted, done.Status)
	before := len(f.ann.all())

	// a stale in-memory copy still reaches the store's terminal guard
	stale := done
	stale.Status = models.StatusPending
	for _, c := range []models.Collaboration{done, stale} {
		got, err := waitDone(t, f.mgr.Execute(context.Background(), c))
		assert.ErrorIs(t, err, store.ErrTerminal)
		assert.Equal(t, models.StatusCompleted, got.Status)
	}

	stored, err := f.st.GetCollaboration(context.Background(), h.ID())
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, stored.Status)
	assert.JSONEq(t, `{"summary":"done","actions":["a"]}`, string(stored.Result))
	assert.Len(t, f.ann.all(), before, "no failure announced for finished work")
}

func TestHandle_cancel(t *testing.T) {
	started := make(chan struct{})
	inf := inference.Func(func(ctx context.Context, _ string, _ inference.Schema) (json.RawMessage, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	f := newFixture(t, inf, 0)
	h, err := f.mgr.Trigger(context.Background(), criticalRequest())
	require.NoError(t, err)
	<-started
	h.Cancel()
	c, err := waitDone(t, h)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, models.StatusFailed, c.Status)

	stored, err := f.st.GetCollaboration(context.Background(), h.ID())
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, stored.Status, "terminal write survives cancellation")
}

func TestExecute_timeout(t *testing.T) {
	inf := inference.Func(func(ctx context.Context, _ string, _ inference.Schema) (json.RawMessage, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	f := newFixture(t, inf, 20*time.Millisecond)
	h, err := f.mgr.Trigger(context.Background(), criticalRequest())
	require.NoError(t, err)
	c, err := waitDone(t, h)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, models.StatusFailed, c.Status)
}

func TestExecute_callerCancelDoesNotStopExecution(t *testing.T) {
	f := newFixture(t, fixedResult(`{"summary":"ok"}`), 0)
	ctx, cancel := context.WithCancel(context.Background())
	h, err := f.mgr.Trigger(ctx, criticalRequest())
	require.NoError(t, err)
	cancel()
	c, err := waitDone(t, h)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, c.Status)
}

func TestExecute_existingPending(t *testing.T) {
	f := newFixture(t, fixedResult(`{"summary":"ok"}`), 0)
	ctx := context.Background()
	c, err := f.st.CreateCollaboration(ctx, models.Collaboration{
		SourceAgent:   agents.KnowledgeCurator,
		TargetAgent:   agents.MarketMonitor,
		TriggerReason: "Gap found in coverage",
	})
	require.NoError(t, err)
	got, err := waitDone(t, f.mgr.Execute(ctx, c))
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
	assert.Empty(t, f.mgr.InFlight())
}

func TestRemove(t *testing.T) {
	f := newFixture(t, fixedResult(`{"summary":"ok"}`), 0)
	ctx := context.Background()
	h, err := f.mgr.Trigger(ctx, criticalRequest())
	require.NoError(t, err)
	_, err = waitDone(t, h)
	require.NoError(t, err)

	require.NoError(t, f.mgr.Remove(ctx, h.ID()))
	_, err = f.st.GetCollaboration(ctx, h.ID())
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.ErrorIs(t, f.mgr.Remove(ctx, h.ID()), store.ErrNotFound)
}

func TestNew_requiresStoreAndInferrer(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	defer func() { _ = st.Close() }()
	_, err = New(Options{Store: st})
	assert.Error(t, err)
}

func TestRenderPrompt(t *testing.T) {
	for _, target := range []string{agents.MarketMonitor, agents.StrategyDocGenerator, agents.KnowledgeCurator} {
		p, err := RenderPrompt(PromptData{Source: "x", Target: target, Reason: "because", Priority: "high", Context: "(none)"})
		require.NoError(t, err, target)
		assert.Contains(t, p, "because")
		assert.NotContains(t, p, "Workspace brief")
	}
	_, err := RenderPrompt(PromptData{Target: "nobody"})
	assert.ErrorIs(t, err, ErrNoTemplate)
	assert.False(t, HasTemplate("nobody"))
}

func TestPromptData_homeContext(t *testing.T) {
	var gotPrompt string
	inf := inference.Func(func(_ context.Context, prompt string, _ inference.Schema) (json.RawMessage, error) {
		gotPrompt = prompt
		return json.RawMessage(`{"summary":"ok"}`), nil
	})
	f := newFixture(t, inf, 0)
	require.NoError(t, memory.WriteBrief(f.home, "Focus on EMEA this quarter."))
	require.NoError(t, memory.SaveProfile(f.home, agents.StrategyDocGenerator, &memory.Profile{Instructions: "Keep it under one page."}))

	h, err := f.mgr.Trigger(context.Background(), criticalRequest())
	require.NoError(t, err)
	_, err = waitDone(t, h)
	require.NoError(t, err)

	assert.Contains(t, gotPrompt, "Focus on EMEA this quarter.")
	assert.Contains(t, gotPrompt, "Keep it under one page.")
	assert.Contains(t, gotPrompt, "(no prior collaborations)")
	_, err = os.Stat(memory.JournalPath(filepath.Join(f.home, "agents", agents.StrategyDocGenerator)))
	assert.NoError(t, err)
	assert.True(t, strings.HasPrefix(gotPrompt, "You are the Strategy Doc Generator."))
}

func TestFormatContext(t *testing.T) {
	assert.Equal(t, "(none)", formatContext(nil))
	assert.Equal(t, "(none)", formatContext(json.RawMessage("null")))
	assert.Equal(t, "{\n  \"a\": 1\n}", formatContext(json.RawMessage(`{"a":1}`)))
}
