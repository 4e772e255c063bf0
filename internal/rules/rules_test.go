package rules

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ankittk/agentsync/pkg/models"
)

type memStates struct {
	mu    sync.Mutex
	m     map[string]bool
	fail  error
	calls int
}

func (s *memStates) ListRuleStates(context.Context) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]bool{}
	for k, v := range s.m {
		out[k] = v
	}
	return out, nil
}

func (s *memStates) SetRuleEnabled(_ context.Context, id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.fail != nil {
		return s.fail
	}
	if s.m == nil {
		s.m = map[string]bool{}
	}
	s.m[id] = enabled
	return nil
}

func rule(id, src, dst, trig string) models.Rule {
	return models.Rule{ID: id, SourceAgent: src, TargetAgent: dst, TriggerType: trig, Priority: models.PriorityHigh, Enabled: true}
}

func defaultSet(t *testing.T, opts ...Option) *RuleSet {
	t.Helper()
	defs, err := Defaults()
	require.NoError(t, err)
	rs, err := New(defs, opts...)
	require.NoError(t, err)
	return rs
}

func TestDefaults_valid(t *testing.T) {
	known := map[string]bool{"market_monitor": true, "strategy_doc_generator": true, "knowledge_curator": true}
	rs := defaultSet(t, WithKnownAgents(func(id string) bool { return known[id] }))
	list := rs.List()
	require.Len(t, list, 5)
	r, ok := rs.Match("market_monitor", "strategy_doc_generator", "critical_alert")
	require.True(t, ok)
	assert.Equal(t, models.PriorityCritical, r.Priority)
	assert.Equal(t, "Generate Strategic Response", r.ActionLabel)
}

func TestNew_validation(t *testing.T) {
	cases := []struct {
		name string
		defs []models.Rule
		want error
	}{
		{"duplicate key", []models.Rule{rule("a", "x", "y", "t"), rule("b", "x", "y", "t")}, ErrDuplicateKey},
		{"duplicate id", []models.Rule{rule("a", "x", "y", "t"), rule("a", "x", "y", "u")}, ErrDuplicateID},
		{"self rule", []models.Rule{rule("a", "x", "x", "t")}, ErrSelfRule},
		{"empty id", []models.Rule{rule("", "x", "y", "t")}, ErrInvalidRule},
		{"bad priority", []models.Rule{{ID: "a", SourceAgent: "x", TargetAgent: "y", TriggerType: "t", Priority: "urgent"}}, ErrInvalidRule},
		{"unknown agent", []models.Rule{rule("a", "x", "ghost", "t")}, ErrUnknownAgent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(tc.defs, WithKnownAgents(func(id string) bool { return id != "ghost" }))
			assert.ErrorIs(t, err, tc.want)
		})
	}

	// same pair, different trigger is fine
	_, err := New([]models.Rule{rule("a", "x", "y", "t"), rule("b", "x", "y", "u")})
	assert.NoError(t, err)
}

func TestMatch_deterministic(t *testing.T) {
	rs := defaultSet(t)
	first, ok1 := rs.Match("knowledge_curator", "market_monitor", "insight_discovered")
	second, ok2 := rs.Match("knowledge_curator", "market_monitor", "insight_discovered")
	assert.Equal(t, ok1, ok2)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Fatalf("Match not deterministic (-first +second):\n%s", diff)
	}
	_, ok := rs.Match("knowledge_curator", "market_monitor", "nope")
	assert.False(t, ok)
	_, ok = rs.Match("market_monitor", "knowledge_curator", "insight_discovered")
	assert.False(t, ok, "direction matters")
}

func TestToggle_disableRemovesFromMatchingOnly(t *testing.T) {
	states := &memStates{}
	rs := defaultSet(t, WithStateStore(states))
	ctx := context.Background()

	r, err := rs.Toggle(ctx, "mm-sdg-critical")
	require.NoError(t, err)
	assert.False(t, r.Enabled)

	_, ok := rs.Match("market_monitor", "strategy_doc_generator", "critical_alert")
	assert.False(t, ok)
	looked, ok := rs.Lookup("market_monitor", "strategy_doc_generator", "critical_alert")
	assert.True(t, ok)
	assert.False(t, looked.Enabled)
	assert.Len(t, rs.List(), 5, "disabled rule stays listable")

	_, err = rs.Toggle(ctx, "mm-sdg-critical")
	require.NoError(t, err)
	_, ok = rs.Match("market_monitor", "strategy_doc_generator", "critical_alert")
	assert.True(t, ok)
	assert.Equal(t, map[string]bool{"mm-sdg-critical": true}, states.m)
}

func TestToggle_failedWriteLeavesStateUnchanged(t *testing.T) {
	states := &memStates{fail: errors.New("db down")}
	rs := defaultSet(t, WithStateStore(states))
	_, err := rs.Toggle(context.Background(), "kc-sdg-gap")
	require.Error(t, err)
	r, err := rs.Get("kc-sdg-gap")
	require.NoError(t, err)
	assert.True(t, r.Enabled)
}

func TestToggle_unknown(t *testing.T) {
	rs := defaultSet(t)
	_, err := rs.Toggle(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = rs.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestToggle_concurrentLastWriteWins(t *testing.T) {
	states := &memStates{}
	rs := defaultSet(t, WithStateStore(states))
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = rs.Toggle(context.Background(), "mm-kc-trend")
		}()
	}
	wg.Wait()
	r, _ := rs.Get("mm-kc-trend")
	assert.True(t, r.Enabled, "even number of flips restores the original state")
	assert.Equal(t, r.Enabled, states.m["mm-kc-trend"], "memory and store agree")
	assert.Equal(t, 50, states.calls)
}

func TestLoad_overlaysPersistedState(t *testing.T) {
	states := &memStates{m: map[string]bool{"sdg-kc-document": false, "ghost": true}}
	rs := defaultSet(t, WithStateStore(states))
	require.NoError(t, rs.Load(context.Background()))
	r, _ := rs.Get("sdg-kc-document")
	assert.False(t, r.Enabled)
	_, ok := rs.Match("strategy_doc_generator", "knowledge_curator", "document_created")
	assert.False(t, ok)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	body := "- id: one\n  source_agent: a\n  target_agent: b\n  trigger_type: ping\n  priority: low\n  enabled: false\n"
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	defs, err := LoadFile(path)
	require.NoError(t, err)
	want := []models.Rule{{ID: "one", SourceAgent: "a", TargetAgent: "b", TriggerType: "ping", Priority: "low"}}
	if diff := cmp.Diff(want, defs); diff != "" {
		t.Fatalf("LoadFile (-want +got):\n%s", diff)
	}
	_, err = Parse([]byte("{not a list"))
	assert.Error(t, err)
}
