// Package workspace is the shared task board. Every mutation rewrites the whole
// task list in the local store before memory changes.
package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ankittk/agentsync/internal/localstore"
	"github.com/ankittk/agentsync/internal/notify"
	"github.com/ankittk/agentsync/pkg/models"
)

var (
	// ErrNotFound is returned for an unknown task id.
	ErrNotFound = errors.New("task not found")
	// ErrEmptyTitle is returned when adding a task without a title.
	ErrEmptyTitle = errors.New("task title required")
	// ErrUnknownAgent is returned when assigning to an agent outside the roster.
	ErrUnknownAgent = errors.New("unknown agent")

	errSave = errors.New("save tasks")
)

// Options configures a Workspace. KV is required.
type Options struct {
	KV        localstore.KV
	Announcer notify.Announcer
	Publisher notify.Publisher
	// KnownAgent validates assignees. Nil accepts any non-empty id.
	KnownAgent func(id string) bool
	Now        func() time.Time
}

// Workspace holds the task list.
type Workspace struct {
	opts  Options
	mu    sync.Mutex
	tasks []models.SharedTask
}

// New returns a Workspace loaded from the local store.
func New(opts Options) *Workspace {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	w := &Workspace{opts: opts}
	w.tasks = load(opts.KV)
	return w
}

// load reads the stored list; a missing or malformed record is an empty list.
func load(kv localstore.KV) []models.SharedTask {
	raw, ok, err := kv.Get(localstore.KeyTasks)
	if err != nil {
		slog.Debug("tasks unreadable, starting empty", "err", err)
		return nil
	}
	if !ok || raw == "" {
		return nil
	}
	var tasks []models.SharedTask
	if err := json.Unmarshal([]byte(raw), &tasks); err != nil {
		slog.Debug("tasks malformed, starting empty", "err", err)
		return nil
	}
	return tasks
}

// List returns a copy of the tasks in creation order.
func (w *Workspace) List() []models.SharedTask {
	w.mu.Lock()
	defer w.mu.Unlock()
	return cloneTasks(w.tasks)
}

// Add appends a task and announces it.
func (w *Workspace) Add(ctx context.Context, title string) (models.SharedTask, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return models.SharedTask{}, ErrEmptyTitle
	}
	t := models.SharedTask{
		ID:        uuid.NewString(),
		Title:     title,
		CreatedAt: w.opts.Now().UTC(),
	}
	w.mu.Lock()
	next := append(cloneTasks(w.tasks), t)
	if err := w.commit(next); err != nil {
		w.mu.Unlock()
		w.failed(ctx, "add", err)
		return models.SharedTask{}, err
	}
	w.mu.Unlock()

	slog.Info("task added", "id", t.ID, "title", t.Title)
	w.publish("added", t)
	w.announce(ctx, fmt.Sprintf("New task: %s", t.Title))
	return t, nil
}

// ToggleComplete flips the completed flag.
func (w *Workspace) ToggleComplete(ctx context.Context, id string) (models.SharedTask, error) {
	t, err := w.mutate(id, func(t *models.SharedTask) error {
		t.Completed = !t.Completed
		return nil
	})
	if err != nil {
		w.failed(ctx, "update", err)
		return models.SharedTask{}, err
	}
	w.publish("updated", t)
	return t, nil
}

// Assign sets the assignee and announces it. An empty agentID clears the
// assignment without an announcement.
func (w *Workspace) Assign(ctx context.Context, id, agentID string) (models.SharedTask, error) {
	agentID = strings.TrimSpace(agentID)
	if agentID != "" && w.opts.KnownAgent != nil && !w.opts.KnownAgent(agentID) {
		return models.SharedTask{}, fmt.Errorf("%w: %s", ErrUnknownAgent, agentID)
	}
	t, err := w.mutate(id, func(t *models.SharedTask) error {
		if agentID == "" {
			t.AssignedTo = nil
			return nil
		}
		a := agentID
		t.AssignedTo = &a
		return nil
	})
	if err != nil {
		w.failed(ctx, "assign", err)
		return models.SharedTask{}, err
	}
	slog.Info("task assigned", "id", t.ID, "agent", agentID)
	w.publish("updated", t)
	if agentID != "" {
		w.announce(ctx, fmt.Sprintf("Task %q assigned to %s", t.Title, agentID))
	}
	return t, nil
}

// Delete removes a task.
func (w *Workspace) Delete(ctx context.Context, id string) error {
	w.mu.Lock()
	i := w.index(id)
	if i < 0 {
		w.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	next := cloneTasks(w.tasks)
	removed := next[i]
	next = append(next[:i], next[i+1:]...)
	if err := w.commit(next); err != nil {
		w.mu.Unlock()
		w.failed(ctx, "delete", err)
		return err
	}
	w.mu.Unlock()
	w.publish("deleted", removed)
	return nil
}

func (w *Workspace) mutate(id string, fn func(*models.SharedTask) error) (models.SharedTask, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	i := w.index(id)
	if i < 0 {
		return models.SharedTask{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	next := cloneTasks(w.tasks)
	if err := fn(&next[i]); err != nil {
		return models.SharedTask{}, err
	}
	if err := w.commit(next); err != nil {
		return models.SharedTask{}, err
	}
	return next[i], nil
}

// commit persists next as the full list and only then adopts it. Caller holds mu.
func (w *Workspace) commit(next []models.SharedTask) error {
	if next == nil {
		next = []models.SharedTask{}
	}
	data, err := json.Marshal(next)
	if err != nil {
		return err
	}
	if err := w.opts.KV.Set(localstore.KeyTasks, string(data)); err != nil {
		return fmt.Errorf("%w: %w", errSave, err)
	}
	w.tasks = next
	return nil
}

func (w *Workspace) index(id string) int {
	for i := range w.tasks {
		if w.tasks[i].ID == id {
			return i
		}
	}
	return -1
}

// failed raises a failure banner when err is a rejected write. Validation
// errors are left to the caller.
func (w *Workspace) failed(ctx context.Context, action string, err error) {
	if !errors.Is(err, errSave) {
		return
	}
	slog.Error("task write failed", "action", action, "err", err)
	if w.opts.Announcer != nil {
		w.opts.Announcer.Announce(ctx, models.CategoryTask, fmt.Sprintf("Could not %s task: %v", action, err), notify.Failure())
	}
}

func (w *Workspace) announce(ctx context.Context, text string) {
	if w.opts.Announcer != nil {
		w.opts.Announcer.Announce(ctx, models.CategoryTask, text, notify.Options{})
	}
}

func (w *Workspace) publish(action string, t models.SharedTask) {
	if w.opts.Publisher != nil {
		w.opts.Publisher.PublishJSON(map[string]any{"type": "task_update", "action": action, "task": t})
	}
}

func cloneTasks(in []models.SharedTask) []models.SharedTask {
	out := make([]models.SharedTask, len(in))
	for i, t := range in {
		if t.AssignedTo != nil {
			a := *t.AssignedTo
			t.AssignedTo = &a
		}
		out[i] = t
	}
	return out
}
