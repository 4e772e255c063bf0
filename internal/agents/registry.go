// Package agents holds the static agent roster and the presence simulator that
// animates it.
package agents

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ankittk/agentsync/pkg/models"
)

// Roster ids.
const (
	MarketMonitor        = "market_monitor"
	StrategyDocGenerator = "strategy_doc_generator"
	KnowledgeCurator     = "knowledge_curator"
)

// ErrUnknownAgent is returned for ids outside the roster.
var ErrUnknownAgent = errors.New("unknown agent")

// DefaultRoster returns the deployment's three agents, all active.
func DefaultRoster() []models.Agent {
	return []models.Agent{
		{ID: MarketMonitor, DisplayName: "Market Monitor", RoleColor: "#2563eb", Presence: models.PresenceActive},
		{ID: StrategyDocGenerator, DisplayName: "Strategy Doc Generator", RoleColor: "#7c3aed", Presence: models.PresenceActive},
		{ID: KnowledgeCurator, DisplayName: "Knowledge Curator", RoleColor: "#059669", Presence: models.PresenceActive},
	}
}

// Registry is the fixed agent roster. Membership never changes after construction;
// only presence is mutable.
type Registry struct {
	mu     sync.RWMutex
	agents []models.Agent
	index  map[string]int
}

// NewRegistry validates ids (non-empty, unique) and presence values.
func NewRegistry(roster []models.Agent) (*Registry, error) {
	r := &Registry{index: make(map[string]int, len(roster))}
	for _, a := range roster {
		if a.ID == "" {
			return nil, errors.New("agent id required")
		}
		if _, dup := r.index[a.ID]; dup {
			return nil, fmt.Errorf("duplicate agent id %q", a.ID)
		}
		if a.Presence == "" {
			a.Presence = models.PresenceActive
		}
		if !validPresence(a.Presence) {
			return nil, fmt.Errorf("agent %s: invalid presence %q", a.ID, a.Presence)
		}
		r.index[a.ID] = len(r.agents)
		r.agents = append(r.agents, a)
	}
	return r, nil
}

// MustDefault returns a registry over DefaultRoster.
func MustDefault() *Registry {
	r, err := NewRegistry(DefaultRoster())
	if err != nil {
		panic(err)
	}
	return r
}

// List returns a copy of the roster in construction order.
func (r *Registry) List() []models.Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]models.Agent(nil), r.agents...)
}

// IDs returns the roster ids in construction order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, len(r.agents))
	for i, a := range r.agents {
		ids[i] = a.ID
	}
	return ids
}

// Get returns the agent with id.
func (r *Registry) Get(id string) (models.Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.index[id]
	if !ok {
		return models.Agent{}, false
	}
	return r.agents[i], true
}

// Has reports whether id is in the roster.
func (r *Registry) Has(id string) bool {
	_, ok := r.Get(id)
	return ok
}

// SetPresence updates one agent's presence and stamps the change time.
func (r *Registry) SetPresence(id, presence string, at time.Time) (models.Agent, error) {
	if !validPresence(presence) {
		return models.Agent{}, fmt.Errorf("invalid presence %q", presence)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.index[id]
	if !ok {
		return models.Agent{}, fmt.Errorf("%w: %s", ErrUnknownAgent, id)
	}
	r.agents[i].Presence = presence
	r.agents[i].PresenceUpdatedAt = at.UTC()
	return r.agents[i], nil
}

func validPresence(p string) bool {
	switch p {
	case models.PresenceActive, models.PresenceIdle, models.PresenceBusy:
		return true
	}
	return false
}
