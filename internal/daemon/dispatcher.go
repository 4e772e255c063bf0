package daemon

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/semaphore"

	"github.com/ankittk/agentsync/internal/collab"
	"github.com/ankittk/agentsync/internal/httpapi"
	"github.com/ankittk/agentsync/pkg/models"
)

// dispatcher drains queued agent events and starts a collaboration for each,
// keeping at most maxConcurrent executions running.
type dispatcher struct {
	app *httpapi.App
	sem *semaphore.Weighted
}

func newDispatcher(app *httpapi.App, maxConcurrent int) *dispatcher {
	if maxConcurrent <= 0 {
		maxConcurrent = models.DefaultDispatcherConcurrent
	}
	return &dispatcher{app: app, sem: semaphore.NewWeighted(int64(maxConcurrent))}
}

// Run returns when ctx is done. Executions already started keep running; App.Close waits for them.
func (d *dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-d.app.Events:
			if err := d.sem.Acquire(ctx, 1); err != nil {
				slog.Debug("dispatcher stopping with queued event", "source", ev.SourceAgent, "target", ev.TargetAgent)
				return nil
			}
			d.dispatch(ctx, ev)
		}
	}
}

func (d *dispatcher) dispatch(ctx context.Context, ev models.Event) {
	h, err := d.app.DispatchEvent(ctx, ev)
	if err != nil {
		d.sem.Release(1)
		switch {
		case errors.Is(err, collab.ErrInFlight):
			slog.Info("event dropped, collaboration in flight", "source", ev.SourceAgent, "target", ev.TargetAgent, "trigger", ev.TriggerType)
		case errors.Is(err, httpapi.ErrNoMatch):
			slog.Debug("event no longer matches a rule", "source", ev.SourceAgent, "target", ev.TargetAgent, "trigger", ev.TriggerType)
		default:
			// the collaboration manager has already raised the failure banner
			slog.Error("dispatch event failed", "source", ev.SourceAgent, "target", ev.TargetAgent, "err", err)
		}
		return
	}
	go func() {
		defer d.sem.Release(1)
		<-h.Done()
	}()
}
