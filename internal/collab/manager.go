// Package collab drives collaborations from pending to a terminal status: it
// creates the record, runs the role prompt through the inference backend,
// persists the outcome and announces it.
package collab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ankittk/agentsync/internal/inference"
	"github.com/ankittk/agentsync/internal/memory"
	"github.com/ankittk/agentsync/internal/notify"
	"github.com/ankittk/agentsync/internal/otel"
	"github.com/ankittk/agentsync/internal/store"
	"github.com/ankittk/agentsync/pkg/models"
)

var (
	// ErrInFlight is returned when the rule key already has a running collaboration.
	ErrInFlight = errors.New("collaboration already in flight")
	// ErrNoTemplate is returned when the target agent has no prompt template.
	ErrNoTemplate = errors.New("no prompt template for target agent")
)

// Request describes a collaboration to create.
type Request struct {
	Source      string
	Target      string
	TriggerType string
	Reason      string
	Context     json.RawMessage
	Priority    string
	RuleID      string
}

// Options configures a Manager. Store and Inferrer are required.
type Options struct {
	Store     store.Store
	Inferrer  inference.Inferrer
	Announcer notify.Announcer
	Publisher notify.Publisher
	// Home enables per-agent journals, profiles and the shared brief. Empty disables them.
	Home string
	// ExecTimeout bounds each execution. 0 means no timeout.
	ExecTimeout time.Duration
}

// Manager owns collaborations for their whole life.
type Manager struct {
	opts Options

	mu       sync.Mutex
	inflight map[string]string // rule key -> collaboration id ("" while creating)
	wg       sync.WaitGroup
}

// New returns a Manager.
func New(opts Options) (*Manager, error) {
	if opts.Store == nil {
		return nil, errors.New("collab: store required")
	}
	if opts.Inferrer == nil {
		return nil, errors.New("collab: inferrer required")
	}
	return &Manager{opts: opts, inflight: make(map[string]string)}, nil
}

// Trigger creates a pending collaboration and starts executing it. At most one
// collaboration per source-target key runs at a time.
func (m *Manager) Trigger(ctx context.Context, req Request) (*Handle, error) {
	key := models.RuleKey(req.Source, req.Target)
	m.mu.Lock()
	if _, busy := m.inflight[key]; busy {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrInFlight, key)
	}
	m.inflight[key] = ""
	m.mu.Unlock()

	c, err := m.opts.Store.CreateCollaboration(ctx, models.Collaboration{
		RuleID:        req.RuleID,
		SourceAgent:   req.Source,
		TargetAgent:   req.Target,
		TriggerReason: req.Reason,
		Context:       req.Context,
		Priority:      req.Priority,
	})
	if err != nil {
		m.release(key)
		slog.Error("create collaboration", "source", req.Source, "target", req.Target, "rule", req.RuleID, "err", err)
		m.announce(ctx, models.CategoryTask, fmt.Sprintf("Could not start %s work for %s: %v", req.Target, req.Source, err), notify.Failure())
		return nil, fmt.Errorf("create collaboration: %w", err)
	}
	slog.Info("collaboration created", "id", c.ID, "source", c.SourceAgent, "target", c.TargetAgent, "rule", c.RuleID, "priority", c.Priority)
	otel.RecordCollaboration(ctx, c.TargetAgent, c.Status)
	m.publish(c)

	m.mu.Lock()
	m.inflight[key] = c.ID
	m.mu.Unlock()
	return m.start(ctx, c, key), nil
}

// Execute runs c asynchronously. The execution is detached from ctx cancellation;
// use Handle.Cancel to stop it.
func (m *Manager) Execute(ctx context.Context, c models.Collaboration) *Handle {
	return m.start(ctx, c, "")
}

func (m *Manager) start(ctx context.Context, c models.Collaboration, key string) *Handle {
	execCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if m.opts.ExecTimeout > 0 {
		var cancelTimeout context.CancelFunc
		execCtx, cancelTimeout = context.WithTimeout(execCtx, m.opts.ExecTimeout)
		parent := cancel
		cancel = func() { cancelTimeout(); parent() }
	}
	h := newHandle(c.ID, cancel)
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		final, err := m.run(execCtx, c)
		if key != "" {
			m.release(key)
		}
		h.finish(final, err)
	}()
	return h
}

func (m *Manager) release(key string) {
	m.mu.Lock()
	delete(m.inflight, key)
	m.mu.Unlock()
}

// run performs one execution and returns the persisted terminal record.
func (m *Manager) run(ctx context.Context, c models.Collaboration) (models.Collaboration, error) {
	began := time.Now()
	// terminal writes must land even when ctx is cancelled or timed out
	persistCtx := context.WithoutCancel(ctx)

	// an execution never rewrites a finished record
	if models.IsTerminal(c.Status) {
		return c, fmt.Errorf("%w: %s", store.ErrTerminal, c.ID)
	}
	cur, err := m.opts.Store.UpdateCollaboration(persistCtx, c.ID, store.StatusPatch(models.StatusInProgress))
	if errors.Is(err, store.ErrTerminal) {
		slog.Warn("collaboration already finished", "id", c.ID)
		if stored, gerr := m.opts.Store.GetCollaboration(persistCtx, c.ID); gerr == nil {
			c = stored
		}
		return c, err
	}
	if err != nil {
		return m.fail(persistCtx, c, began, fmt.Errorf("mark in progress: %w", err))
	}
	c = cur
	slog.Info("collaboration started", "id", c.ID, "target", c.TargetAgent)
	otel.RecordCollaboration(ctx, c.TargetAgent, c.Status)
	m.publish(c)

	prompt, err := RenderPrompt(m.promptData(ctx, c))
	if err != nil {
		return m.fail(persistCtx, c, began, err)
	}
	raw, err := m.opts.Inferrer.Infer(ctx, prompt, ResultSchema)
	if err != nil {
		return m.fail(persistCtx, c, began, fmt.Errorf("inference: %w", err))
	}
	if err := inference.Validate(raw, ResultSchema); err != nil {
		return m.fail(persistCtx, c, began, err)
	}

	status := models.StatusCompleted
	done, err := m.opts.Store.UpdateCollaboration(persistCtx, c.ID, store.Patch{Status: &status, Result: raw})
	if err != nil {
		return m.fail(persistCtx, c, began, fmt.Errorf("mark completed: %w", err))
	}
	slog.Info("collaboration completed", "id", done.ID, "target", done.TargetAgent, "duration", time.Since(began))
	otel.RecordCollaboration(persistCtx, done.TargetAgent, done.Status)
	otel.RecordCollaborationDuration(persistCtx, done.TargetAgent, done.Status, time.Since(began))
	m.publish(done)
	m.journal(persistCtx, done, summaryOf(done.Result))

	text := fmt.Sprintf("%s finished work for %s: %s", done.TargetAgent, done.SourceAgent, done.TriggerReason)
	m.announce(persistCtx, models.CategoryTask, text, notify.Options{})
	if done.Priority == models.PriorityCritical {
		m.announce(persistCtx, models.CategoryCritical, "Critical collaboration resolved: "+done.TriggerReason, notify.Options{})
	}
	return done, nil
}

// fail writes the failed status (no result) and announces the failure. The
// returned error is cause, joined with the write error if that failed too.
func (m *Manager) fail(ctx context.Context, c models.Collaboration, began time.Time, cause error) (models.Collaboration, error) {
	slog.Warn("collaboration failed", "id", c.ID, "target", c.TargetAgent, "err", cause)
	failed, err := m.opts.Store.UpdateCollaboration(ctx, c.ID, store.StatusPatch(models.StatusFailed))
	if err != nil {
		slog.Error("persist failed status", "id", c.ID, "err", err)
		cause = errors.Join(cause, err)
	} else {
		c = failed
		otel.RecordCollaboration(ctx, c.TargetAgent, c.Status)
		otel.RecordCollaborationDuration(ctx, c.TargetAgent, c.Status, time.Since(began))
		m.publish(c)
		m.journal(ctx, c, cause.Error())
	}
	text := fmt.Sprintf("%s could not complete work for %s: %s", c.TargetAgent, c.SourceAgent, c.TriggerReason)
	m.announce(ctx, models.CategoryTask, text, notify.Options{Title: "Collaboration Failed", Severity: notify.SeverityError})
	return c, cause
}

// Remove deletes a collaboration unconditionally.
func (m *Manager) Remove(ctx context.Context, id string) error {
	if err := m.opts.Store.DeleteCollaboration(ctx, id); err != nil {
		return err
	}
	slog.Info("collaboration removed", "id", id)
	if m.opts.Publisher != nil {
		m.opts.Publisher.PublishJSON(map[string]any{"type": "collaboration_removed", "id": id})
	}
	return nil
}

// InFlight returns the rule keys with a running collaboration, sorted.
func (m *Manager) InFlight() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.inflight))
	for k := range m.inflight {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// InFlightCount is the number of running collaborations (metrics gauge).
func (m *Manager) InFlightCount() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.inflight))
}

// Wait blocks until every started execution has finished.
func (m *Manager) Wait() {
	m.wg.Wait()
}

func (m *Manager) promptData(ctx context.Context, c models.Collaboration) PromptData {
	d := PromptData{
		Source:   c.SourceAgent,
		Target:   c.TargetAgent,
		Reason:   c.TriggerReason,
		Priority: c.Priority,
		Context:  formatContext(c.Context),
	}
	if m.opts.Home == "" {
		return d
	}
	j := &memory.Journal{Home: m.opts.Home, AgentID: c.TargetAgent}
	if recent, err := j.Summary(ctx, 1500); err == nil {
		d.Recent = recent
	} else {
		slog.Debug("read journal", "agent", c.TargetAgent, "err", err)
	}
	if brief, err := memory.ReadBrief(m.opts.Home); err == nil {
		d.Brief = brief
	}
	if p, err := memory.LoadProfile(m.opts.Home, c.TargetAgent); err == nil && p != nil {
		d.Instructions = p.Instructions
	} else if err != nil {
		slog.Warn("load agent profile", "agent", c.TargetAgent, "err", err)
	}
	return d
}

func (m *Manager) journal(ctx context.Context, c models.Collaboration, summary string) {
	if m.opts.Home == "" {
		return
	}
	j := &memory.Journal{Home: m.opts.Home, AgentID: c.TargetAgent}
	err := j.Append(ctx, memory.JournalEntry{
		CollaborationID: c.ID,
		SourceAgent:     c.SourceAgent,
		Reason:          c.TriggerReason,
		Status:          c.Status,
		Summary:         summary,
		CreatedAt:       c.UpdatedAt,
	})
	if err != nil {
		slog.Warn("journal append failed", "agent", c.TargetAgent, "err", err)
	}
}

func (m *Manager) announce(ctx context.Context, category, text string, opts notify.Options) {
	if m.opts.Announcer == nil {
		return
	}
	m.opts.Announcer.Announce(ctx, category, text, opts)
}

func (m *Manager) publish(c models.Collaboration) {
	if m.opts.Publisher == nil {
		return
	}
	m.opts.Publisher.PublishJSON(map[string]any{"type": "collaboration_update", "collaboration": c})
}

func summaryOf(result json.RawMessage) string {
	var r struct {
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal(result, &r); err != nil {
		return ""
	}
	return r.Summary
}
