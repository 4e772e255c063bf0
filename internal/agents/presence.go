package agents

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/ankittk/agentsync/pkg/models"
)

// DefaultPresenceInterval is the simulator tick.
const DefaultPresenceInterval = 8 * time.Second

// PresenceStates lists the values a source may assign.
var PresenceStates = []string{models.PresenceActive, models.PresenceIdle, models.PresenceBusy}

// PresenceSource decides the next presence change. ok=false skips the tick.
// A real liveness feed can replace RandomSource without touching callers.
type PresenceSource interface {
	Next(agentIDs []string) (agentID, presence string, ok bool)
}

// RandomSource picks an agent and a state uniformly at random.
type RandomSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomSource seeds a source; seed 0 uses a random seed.
func NewRandomSource(seed uint64) *RandomSource {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &RandomSource{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (s *RandomSource) Next(agentIDs []string) (string, string, bool) {
	if len(agentIDs) == 0 {
		return "", "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return agentIDs[s.rng.IntN(len(agentIDs))], PresenceStates[s.rng.IntN(len(PresenceStates))], true
}

// Simulator applies PresenceSource changes to a Registry on a fixed interval.
type Simulator struct {
	Registry *Registry
	Source   PresenceSource
	Interval time.Duration
	// OnChange is called after every applied change (e.g. to publish an SSE event).
	OnChange func(models.Agent)
	Now      func() time.Time
}

// Tick applies a single change. It returns false when the source skipped.
func (s *Simulator) Tick() (models.Agent, bool) {
	id, presence, ok := s.Source.Next(s.Registry.IDs())
	if !ok {
		return models.Agent{}, false
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	a, err := s.Registry.SetPresence(id, presence, now())
	if err != nil {
		slog.Warn("presence update rejected", "agent", id, "presence", presence, "err", err)
		return models.Agent{}, false
	}
	if s.OnChange != nil {
		s.OnChange(a)
	}
	return a, true
}

// Run ticks until ctx is done.
func (s *Simulator) Run(ctx context.Context) error {
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultPresenceInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	slog.Debug("presence simulator started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Tick()
		}
	}
}
