package agents

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ankittk/agentsync/pkg/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestNewRegistry_validation(t *testing.T) {
	_, err := NewRegistry([]models.Agent{{ID: "a"}, {ID: "a"}})
	assert.Error(t, err, "duplicate id")
	_, err = NewRegistry([]models.Agent{{ID: ""}})
	assert.Error(t, err, "empty id")
	_, err = NewRegistry([]models.Agent{{ID: "a", Presence: "asleep"}})
	assert.Error(t, err, "bad presence")

	r := MustDefault()
	assert.Equal(t, []string{MarketMonitor, StrategyDocGenerator, KnowledgeCurator}, r.IDs())
	assert.True(t, r.Has(KnowledgeCurator))
	assert.False(t, r.Has("user"))
}

func TestRegistry_listIsCopy(t *testing.T) {
	r := MustDefault()
	list := r.List()
	list[0].Presence = models.PresenceBusy
	a, _ := r.Get(MarketMonitor)
	assert.Equal(t, models.PresenceActive, a.Presence)
}

func TestSetPresence(t *testing.T) {
	r := MustDefault()
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	a, err := r.SetPresence(StrategyDocGenerator, models.PresenceIdle, at)
	require.NoError(t, err)
	assert.Equal(t, models.PresenceIdle, a.Presence)
	assert.Equal(t, at, a.PresenceUpdatedAt)

	_, err = r.SetPresence("ghost", models.PresenceIdle, at)
	assert.ErrorIs(t, err, ErrUnknownAgent)
	_, err = r.SetPresence(StrategyDocGenerator, "away", at)
	assert.Error(t, err)
}

func TestRandomSource_coversAllStates(t *testing.T) {
	src := NewRandomSource(42)
	ids := []string{"a", "b", "c"}
	seenAgent := map[string]bool{}
	seenState := map[string]bool{}
	for i := 0; i < 300; i++ {
		id, st, ok := src.Next(ids)
		require.True(t, ok)
		seenAgent[id] = true
		seenState[st] = true
	}
	assert.Len(t, seenAgent, 3)
	assert.Len(t, seenState, 3)

	_, _, ok := src.Next(nil)
	assert.False(t, ok)
}

type fixedSource struct{ id, presence string }

func (f fixedSource) Next([]string) (string, string, bool) { return f.id, f.presence, f.id != "" }

func TestSimulator_tickAppliesAndNotifies(t *testing.T) {
	r := MustDefault()
	at := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	var got []models.Agent
	sim := &Simulator{
		Registry: r,
		Source:   fixedSource{KnowledgeCurator, models.PresenceBusy},
		OnChange: func(a models.Agent) { got = append(got, a) },
		Now:      func() time.Time { return at },
	}
	a, ok := sim.Tick()
	require.True(t, ok)
	assert.Equal(t, models.PresenceBusy, a.Presence)
	require.Len(t, got, 1)
	assert.Equal(t, at, got[0].PresenceUpdatedAt)

	sim.Source = fixedSource{}
	_, ok = sim.Tick()
	assert.False(t, ok)
	assert.Len(t, got, 1)
}

func TestSimulator_runStopsOnCancel(t *testing.T) {
	r := MustDefault()
	var mu sync.Mutex
	changes := 0
	sim := &Simulator{
		Registry: r,
		Source:   NewRandomSource(7),
		Interval: 5 * time.Millisecond,
		OnChange: func(models.Agent) { mu.Lock(); changes++; mu.Unlock() },
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sim.Run(ctx) }()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return changes >= 2
	}, 2*time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("simulator did not stop")
	}
}
