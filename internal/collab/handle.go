package collab

import (
	"context"
	"sync"

	"github.com/ankittk/agentsync/pkg/models"
)

// Handle tracks one asynchronous execution.
type Handle struct {
	id     string
	done   chan struct{}
	cancel context.CancelFunc

	mu     sync.Mutex
	result models.Collaboration
	err    error
}

func newHandle(id string, cancel context.CancelFunc) *Handle {
	return &Handle{id: id, done: make(chan struct{}), cancel: cancel}
}

// ID is the collaboration id.
func (h *Handle) ID() string { return h.id }

// Done is closed once the terminal status has been written (or the write failed).
func (h *Handle) Done() <-chan struct{} { return h.done }

// Cancel stops the execution. A cancelled execution ends as failed.
func (h *Handle) Cancel() { h.cancel() }

// Wait blocks until the execution finishes or ctx is done.
func (h *Handle) Wait(ctx context.Context) (models.Collaboration, error) {
	select {
	case <-h.done:
		return h.Result()
	case <-ctx.Done():
		return models.Collaboration{}, ctx.Err()
	}
}

// Result returns the final record and error. Only meaningful after Done.
func (h *Handle) Result() (models.Collaboration, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result, h.err
}

func (h *Handle) finish(c models.Collaboration, err error) {
	h.mu.Lock()
	h.result, h.err = c, err
	h.mu.Unlock()
	h.cancel()
	close(h.done)
}
